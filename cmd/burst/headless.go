package main

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/xlab/closer"

	"github.com/valydumitru01/Burst/internal/config"
	"github.com/valydumitru01/Burst/internal/gpu"
	"github.com/valydumitru01/Burst/internal/gpu/sim"
	"github.com/valydumitru01/Burst/internal/render"
	"github.com/valydumitru01/Burst/internal/streaming"
)

// flightPath returns the camera position and heading for frame i: a wide
// circle so chunks stream in ahead and out behind.
func flightPath(i int, speed float64, altitude float32) (mgl32.Vec3, float64) {
	const radius = 600.0
	angle := float64(i) * speed / radius
	x := float32(radius * math.Cos(angle))
	z := float32(radius * math.Sin(angle))
	yaw := angle*180/math.Pi + 90
	return mgl32.Vec3{x, altitude, z}, yaw
}

func runHeadless(cfg config.Config, opts options, log *slog.Logger) error {
	dev := sim.NewAuto(cfg.GPU.MemoryBudget, cfg.GPU.FramesInFlight-1)
	pipe, err := streaming.NewPipeline(cfg, dev, dev, log)
	if err != nil {
		return err
	}
	ctx := context.Background()
	closer.Bind(func() { _ = pipe.Close(ctx) })

	renderer := render.NewHeadless(dev, cfg.Chunk.Edge)
	altitude := float32(cfg.Terrain.BaseHeight) + float32(cfg.Terrain.Amplitude)
	cam := render.NewCamera(winWidth, winHeight, mgl32.Vec3{})
	stats := newFrameLog(log, time.Second)
	start := time.Now()

	for i := range opts.frames {
		cam.Position, cam.Yaw = flightPath(i, opts.speed, altitude)
		var rs render.Stats
		st, err := pipe.Frame(ctx, cam.Position, config.GetLoadRadius(), func(frame uint64, cmds []gpu.DrawCommand) error {
			var err error
			rs, err = renderer.Draw(frame, cam, cmds)
			return err
		})
		if err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
		stats.frame(st, rs)
	}

	up := pipe.Uploader().Stats()
	if err := pipe.Close(ctx); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	live, bytes, created, destroyed := dev.Stats()
	log.Info("headless run finished",
		"frames", opts.frames,
		"elapsed", time.Since(start).Round(time.Millisecond),
		"uploads", up.Uploads,
		"staged", up.StagedUploads,
		"failed", up.FailedUploads,
		"reclaimed", up.ReclaimedChunks,
		"buffers_created", created,
		"buffers_destroyed", destroyed,
		"buffers_live", live,
		"bytes_live", bytes)

	if v := dev.Violations(); len(v) > 0 {
		for _, x := range v {
			log.Error("buffer lifetime violation", "detail", x.String())
		}
		return fmt.Errorf("%d buffer lifetime violations", len(v))
	}
	return nil
}
