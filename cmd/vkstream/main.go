// Command vkstream streams terrain along a straight flight on a Vulkan
// device without a window: meshes go to device-local memory through staging
// copies and buffers are freed behind per-frame fences.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/xlab/closer"

	"github.com/valydumitru01/Burst/internal/config"
	"github.com/valydumitru01/Burst/internal/gpu/vkdevice"
	"github.com/valydumitru01/Burst/internal/profiling"
	"github.com/valydumitru01/Burst/internal/streaming"
)

func main() {
	defer closer.Close()

	var (
		configPath = flag.String("config", "", "YAML configuration file")
		frames     = flag.Int("frames", 600, "frames to run")
		speed      = flag.Float64("speed", 2, "flight speed in voxels per frame")
		verbose    = flag.Bool("v", false, "debug logging")
	)
	flagCfg := config.Default()
	flag.IntVar(&flagCfg.Streaming.LoadRadius, "radius", flagCfg.Streaming.LoadRadius, "load radius in chunks")
	flag.IntVar(&flagCfg.GPU.FramesInFlight, "frames-in-flight", flagCfg.GPU.FramesInFlight, "frames the GPU may lag behind")
	flag.Int64Var(&flagCfg.Terrain.Seed, "seed", flagCfg.Terrain.Seed, "terrain seed")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			log.Error("config", "err", err)
			closer.Exit(2)
		}
	}
	explicit := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { explicit[f.Name] = true })
	config.Merge(&cfg, flagCfg, explicit)

	if err := run(cfg, *frames, *speed, log); err != nil {
		log.Error("vkstream stopped", "err", err)
		closer.Exit(1)
	}
}

func run(cfg config.Config, frames int, speed float64, log *slog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	var cleanup teardown
	closer.Bind(cleanup.run)

	vc, err := vkdevice.NewContext("vkstream", log)
	if err != nil {
		return err
	}
	cleanup.push(vc.Destroy)

	dev, err := vkdevice.New(vc, cfg.GPU.FramesInFlight, log)
	if err != nil {
		return err
	}
	cleanup.push(dev.Close)

	pipe, err := streaming.NewPipeline(cfg, dev, dev, log)
	if err != nil {
		return err
	}
	ctx := context.Background()
	cleanup.push(func() { _ = pipe.Close(ctx) })

	altitude := float32(cfg.Terrain.BaseHeight) + float32(cfg.Terrain.Amplitude)
	start := time.Now()
	last := start
	for i := range frames {
		viewer := mgl32.Vec3{float32(float64(i) * speed), altitude, 0}
		st, err := pipe.Frame(ctx, viewer, 0, nil)
		if err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
		if now := time.Now(); now.Sub(last) >= time.Second {
			live, bytes := dev.Allocated()
			log.Info("frame",
				"frame", i,
				"center", st.Center,
				"loaded", st.Loaded,
				"uploaded", st.Uploaded,
				"evicting", st.Evicting,
				"buffers", live,
				"bytes", bytes,
				"top", profiling.Default().TopN(5))
			profiling.Default().Reset()
			last = now
		}
	}

	up := pipe.Uploader().Stats()
	if err := pipe.Close(ctx); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	live, bytes := dev.Allocated()
	log.Info("vkstream finished",
		"device", vc.DeviceName,
		"frames", frames,
		"elapsed", time.Since(start).Round(time.Millisecond),
		"uploads", up.Uploads,
		"staged", up.StagedUploads,
		"reclaimed", up.ReclaimedChunks,
		"buffers_live", live,
		"bytes_live", bytes)
	return nil
}

// teardown releases resources in reverse order of creation.
type teardown []func()

func (t *teardown) push(fn func()) { *t = append(*t, fn) }

func (t *teardown) run() {
	for i := len(*t) - 1; i >= 0; i-- {
		(*t)[i]()
	}
	*t = nil
}
