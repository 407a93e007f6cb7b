package streaming

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/valydumitru01/Burst/internal/config"
	"github.com/valydumitru01/Burst/internal/gpu"
	"github.com/valydumitru01/Burst/internal/world"
)

// DrawFunc records draw calls for the resident meshes of a frame. It runs
// after the frame's uploads, on the same thread.
type DrawFunc func(frame uint64, cmds []gpu.DrawCommand) error

// Pipeline owns the chunk store, the scheduler and the uploader, and is the
// single place that begins and submits frames.
type Pipeline struct {
	store    *world.ChunkStore
	recycle  *world.RecycleCache
	sched    *Scheduler
	uploader *gpu.Uploader
	log      *slog.Logger
	closed   bool
}

// NewPipeline builds the whole chunk pipeline over a device backend. cfg must
// be valid.
func NewPipeline(cfg config.Config, dev gpu.Device, fence gpu.Fence, log *slog.Logger) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	edge := cfg.Chunk.Edge
	gen, err := world.NewGenerator(cfg.Terrain, edge, cfg.Chunk.MinY*edge)
	if err != nil {
		return nil, err
	}
	recycle, err := world.NewRecycleCache(cfg.Cache.RecycleEntries, edge)
	if err != nil {
		return nil, fmt.Errorf("recycle cache: %w", err)
	}
	store := world.NewChunkStore(edge)
	up := gpu.NewUploader(dev, fence, gpu.UploaderConfig{
		FramesInFlight:   cfg.GPU.FramesInFlight,
		Edge:             edge,
		StagingThreshold: cfg.GPU.StagingThreshold,
		BytesPerSecond:   cfg.GPU.UploadBytesPerSecond,
	}, log)
	log.Info("chunk pipeline ready",
		"edge", edge,
		"generator", cfg.Terrain.Generator,
		"radius", cfg.Streaming.LoadRadius,
		"frames_in_flight", cfg.GPU.FramesInFlight,
		"greedy", cfg.Meshing.Greedy)
	return &Pipeline{
		store:    store,
		recycle:  recycle,
		sched:    NewScheduler(OptionsFromConfig(cfg), store, gen, recycle, up, log),
		uploader: up,
		log:      log,
	}, nil
}

func (p *Pipeline) Store() *world.ChunkStore     { return p.store }
func (p *Pipeline) Scheduler() *Scheduler        { return p.sched }
func (p *Pipeline) Uploader() *gpu.Uploader      { return p.uploader }
func (p *Pipeline) Recycle() *world.RecycleCache { return p.recycle }

// Frame runs one frame: wait for a free slot, stream chunks around viewer,
// draw, submit. Only device loss and context cancellation are returned.
func (p *Pipeline) Frame(ctx context.Context, viewer mgl32.Vec3, radius int, draw DrawFunc) (FrameStats, error) {
	frame, err := p.uploader.BeginFrame(ctx)
	if err != nil {
		return FrameStats{}, fmt.Errorf("begin frame: %w", err)
	}
	stats, err := p.sched.Update(viewer, radius)
	if err != nil {
		// device is gone; the frame cannot be submitted either
		return stats, err
	}
	if draw != nil {
		if err := draw(frame, p.uploader.DrawList()); err != nil {
			if errors.Is(err, gpu.ErrDeviceLost) {
				return stats, err
			}
			p.log.Warn("draw failed", "frame", frame, "err", err)
		}
	}
	if err := p.uploader.EndFrame(); err != nil {
		return stats, fmt.Errorf("end frame %d: %w", frame, err)
	}
	return stats, nil
}

// Close stops the workers and releases every GPU resource once the device
// is idle.
func (p *Pipeline) Close(ctx context.Context) error {
	if p.closed {
		return nil
	}
	p.closed = true
	p.sched.Close()
	return errors.Join(p.uploader.Close(ctx), p.recycle.Close())
}
