// Package streaming decides each frame which chunks to generate, mesh,
// upload and evict around the viewer. All chunk state transitions happen on
// the thread that calls Update; workers only compute.
package streaming

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/valydumitru01/Burst/internal/config"
	"github.com/valydumitru01/Burst/internal/gpu"
	"github.com/valydumitru01/Burst/internal/meshing"
	"github.com/valydumitru01/Burst/internal/profiling"
	"github.com/valydumitru01/Burst/internal/workers"
	"github.com/valydumitru01/Burst/internal/world"
)

// frames to skip uploads after the device ran out of memory
const oomBackoffFrames = 8

// MeshSink receives meshes and eviction requests. *gpu.Uploader implements
// it; calls happen inside a recorded frame.
type MeshSink interface {
	Upload(coord world.ChunkCoord, mesh *meshing.Mesh) (gpu.Handle, error)
	Evict(coord world.ChunkCoord) (bool, error)
	Reclaimed() []world.ChunkCoord
}

// Options configures a Scheduler.
type Options struct {
	Edge       int
	MinY, MaxY int // vertical chunk band
	LoadRadius int
	Distance   string
	Budget     config.Budget
	Greedy     bool
	Workers    int
	QueueSize  int
}

// OptionsFromConfig extracts scheduler options from cfg.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		Edge:       cfg.Chunk.Edge,
		MinY:       cfg.Chunk.MinY,
		MaxY:       cfg.Chunk.MaxY,
		LoadRadius: cfg.Streaming.LoadRadius,
		Distance:   cfg.Streaming.Distance,
		Budget:     cfg.Streaming.Budget,
		Greedy:     cfg.Meshing.Greedy,
		Workers:    cfg.Streaming.Workers,
		QueueSize:  cfg.Streaming.QueueSize,
	}
}

// FrameStats summarizes one Update.
type FrameStats struct {
	Center world.ChunkCoord
	Radius int

	Desired       int
	Loaded        int
	Queued        int
	Generating    int
	Meshing       int
	PendingUpload int
	Evicting      int

	Generated  int
	Recycled   int
	Meshed     int
	Uploaded   int
	Evicted    int
	Removed    int
	Discarded  int
	UploadFail int
}

type genJob struct {
	coord world.ChunkCoord
	id    uint64
}

type genResult struct {
	voxels   []world.Material
	recycled bool
}

type meshJob struct {
	coord   world.ChunkCoord
	id      uint64
	version uint64
	input   meshing.Input
}

type meshInFlight struct {
	id      uint64
	version uint64
}

// Scheduler streams chunks around a moving viewer.
type Scheduler struct {
	opts    Options
	store   *world.ChunkStore
	recycle *world.RecycleCache
	sink    MeshSink
	log     *slog.Logger

	genPool  *workers.Pool[genJob, genResult]
	meshPool *workers.Pool[meshJob, *meshing.Mesh]

	region     *region
	queue      []world.ChunkCoord // nearest-first load queue
	queued     map[world.ChunkCoord]struct{}
	queueDirty bool
	generating map[world.ChunkCoord]uint64 // chunk id
	meshing    map[world.ChunkCoord]meshInFlight
	uploads    map[world.ChunkCoord]*meshing.Mesh
	evicting   map[world.ChunkCoord]struct{}
	evictRetry map[world.ChunkCoord]struct{} // sink.Evict failed
	oomBackoff int

	stats FrameStats
}

// NewScheduler wires a scheduler over store. recycle may be nil.
func NewScheduler(opts Options, store *world.ChunkStore, gen world.Generator, recycle *world.RecycleCache, sink MeshSink, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	s := &Scheduler{
		opts:       opts,
		store:      store,
		recycle:    recycle,
		sink:       sink,
		log:        log.With("component", "streaming"),
		queued:     make(map[world.ChunkCoord]struct{}),
		generating: make(map[world.ChunkCoord]uint64),
		meshing:    make(map[world.ChunkCoord]meshInFlight),
		uploads:    make(map[world.ChunkCoord]*meshing.Mesh),
		evicting:   make(map[world.ChunkCoord]struct{}),
		evictRetry: make(map[world.ChunkCoord]struct{}),
	}
	s.genPool = workers.New("generate", opts.Workers, opts.QueueSize, func(j genJob) (genResult, error) {
		defer profiling.Track("world.Generate")()
		v, recycled := recycle.Generate(gen, j.coord)
		return genResult{voxels: v, recycled: recycled}, nil
	})
	greedy := opts.Greedy
	s.meshPool = workers.New("mesh", opts.Workers, opts.QueueSize, func(j meshJob) (*meshing.Mesh, error) {
		return meshing.Extract(j.input, meshing.Options{Greedy: greedy})
	})
	return s
}

// Store returns the chunk store the scheduler owns.
func (s *Scheduler) Store() *world.ChunkStore { return s.store }

// Update advances the pipeline by one frame for a viewer at the given world
// position. radius <= 0 uses the configured load radius. It must run inside
// a recorded GPU frame. Only fatal device errors are returned.
func (s *Scheduler) Update(viewer mgl32.Vec3, radius int) (FrameStats, error) {
	defer profiling.Track("streaming.Update")()
	s.stats = FrameStats{}
	if radius <= 0 {
		radius = s.opts.LoadRadius
	}

	s.removeReclaimed()
	s.retryEvictions()
	s.collectGenerated()
	s.collectMeshes()

	center := world.ChunkAt(viewer, s.opts.Edge)
	if s.region == nil || s.region.center != center || s.region.radius != radius {
		s.retarget(center, radius)
	}

	s.dispatchGeneration()
	s.dispatchMeshing()
	if err := s.uploadReady(); err != nil {
		return s.snapshot(), err
	}
	return s.snapshot(), nil
}

func (s *Scheduler) snapshot() FrameStats {
	st := s.stats
	st.Center = s.region.center
	st.Radius = s.region.radius
	st.Desired = len(s.region.set)
	st.Loaded = s.store.Len()
	st.Queued = len(s.queue)
	st.Generating = len(s.generating)
	st.Meshing = len(s.meshing)
	st.PendingUpload = len(s.uploads)
	st.Evicting = len(s.evicting) + len(s.evictRetry)
	return st
}

// enqueue adds coord to the load queue unless it is already queued or owned.
func (s *Scheduler) enqueue(coord world.ChunkCoord) {
	if _, ok := s.queued[coord]; ok || s.store.Has(coord) {
		return
	}
	s.queued[coord] = struct{}{}
	s.queue = append(s.queue, coord)
	s.queueDirty = true
}

// retarget recomputes the wanted set, drops queued work that fell out of it,
// evicts loaded chunks outside it and queues what is missing.
func (s *Scheduler) retarget(center world.ChunkCoord, radius int) {
	defer profiling.Track("streaming.retarget")()
	s.region = newRegion(center, radius, s.opts.Distance, s.opts.MinY, s.opts.MaxY)

	kept := s.queue[:0]
	for _, c := range s.queue {
		if s.region.contains(c) {
			kept = append(kept, c)
		} else {
			delete(s.queued, c)
		}
	}
	s.queue = kept

	for _, c := range s.store.Coords() {
		if !s.region.contains(c) {
			s.evict(c)
		}
	}
	for c := range s.region.set {
		s.enqueue(c)
	}
	s.queueDirty = true
}

// evict starts removing the chunk at coord. Chunks without GPU resources
// leave the store at once; the others wait for the uploader.
func (s *Scheduler) evict(coord world.ChunkCoord) {
	ch, ok := s.store.Get(coord)
	if !ok || ch.State() == world.StatePendingEvict {
		return
	}
	if err := ch.Transition(world.StatePendingEvict); err != nil {
		s.log.Error("evict", "chunk", coord, "err", err)
		return
	}
	delete(s.uploads, coord)
	s.stats.Evicted++

	if _, inFlight := s.generating[coord]; inFlight {
		// removed when the result comes back
		return
	}
	s.evictGPU(ch)
}

// evictGPU hands a PendingEvict chunk's mesh to the sink, or releases the
// chunk when it holds none. A failed eviction is retried on later updates.
func (s *Scheduler) evictGPU(ch *world.Chunk) {
	coord := ch.Coord()
	if ch.GPUHeld() {
		found, err := s.sink.Evict(coord)
		if err != nil {
			s.log.Warn("evict gpu mesh, will retry", "chunk", coord, "err", err)
			s.evictRetry[coord] = struct{}{}
			return
		}
		delete(s.evictRetry, coord)
		if found {
			s.evicting[coord] = struct{}{}
			return
		}
		ch.SetGPUHeld(false)
	}
	s.release(ch)
}

func (s *Scheduler) retryEvictions() {
	for coord := range s.evictRetry {
		ch, ok := s.store.Get(coord)
		if !ok || ch.State() != world.StatePendingEvict {
			delete(s.evictRetry, coord)
			continue
		}
		s.evictGPU(ch)
	}
}

// release removes a PendingEvict chunk from the store. Pristine grids go to
// the recycle cache.
func (s *Scheduler) release(ch *world.Chunk) {
	coord := ch.Coord()
	if _, err := s.store.Remove(coord); err != nil {
		s.log.Error("remove chunk", "chunk", coord, "err", err)
		return
	}
	s.stats.Removed++
	if !ch.Dirty() {
		s.recycle.Put(coord, ch.Snapshot())
	}
	if s.region.contains(coord) {
		// came back into range while leaving
		s.enqueue(coord)
	}
}

func (s *Scheduler) removeReclaimed() {
	for _, coord := range s.sink.Reclaimed() {
		delete(s.evicting, coord)
		ch, ok := s.store.Get(coord)
		if !ok {
			continue
		}
		ch.SetGPUHeld(false)
		if ch.State() != world.StatePendingEvict {
			s.log.Warn("reclaimed chunk not pending eviction", "chunk", coord, "state", ch.State())
			continue
		}
		s.release(ch)
	}
}

func (s *Scheduler) collectGenerated() {
	defer profiling.Track("streaming.collectGenerated")()
	for _, r := range s.genPool.Drain() {
		coord := r.Job.coord
		if id, ok := s.generating[coord]; ok && id == r.Job.id {
			delete(s.generating, coord)
		}
		ch, ok := s.store.Get(coord)
		if !ok || ch.ID() != r.Job.id {
			s.stats.Discarded++
			continue
		}
		if ch.State() == world.StatePendingEvict || !s.region.contains(coord) {
			s.log.Debug("discard generated chunk", "chunk", coord)
			s.stats.Discarded++
			if ch.State() != world.StatePendingEvict {
				_ = ch.Transition(world.StatePendingEvict)
			}
			s.release(ch)
			continue
		}
		if r.Err != nil {
			s.log.Warn("generation failed", "chunk", coord, "err", r.Err)
			_ = ch.Transition(world.StatePendingEvict)
			s.release(ch) // re-queued by release
			continue
		}
		if err := ch.Fill(r.Value.voxels); err != nil {
			s.log.Error("fill chunk", "chunk", coord, "err", err)
			_ = ch.Transition(world.StatePendingEvict)
			s.release(ch)
			continue
		}
		s.stats.Generated++
		if r.Value.recycled {
			s.stats.Recycled++
		}
		// neighbors meshed, or being meshed, without this chunk treated it
		// as solid
		for _, f := range world.Faces {
			if n, ok := s.store.Get(coord.Neighbor(f)); ok && n.State().AtLeastGenerated() {
				n.Invalidate()
			}
		}
	}
}

func (s *Scheduler) collectMeshes() {
	defer profiling.Track("streaming.collectMeshes")()
	for _, r := range s.meshPool.Drain() {
		coord := r.Job.coord
		if m, ok := s.meshing[coord]; ok && m.id == r.Job.id && m.version == r.Job.version {
			delete(s.meshing, coord)
		}
		ch, ok := s.store.Get(coord)
		if !ok || ch.ID() != r.Job.id || ch.State() == world.StatePendingEvict {
			s.stats.Discarded++
			continue
		}
		if r.Err != nil {
			s.log.Warn("mesh extraction failed", "chunk", coord, "err", r.Err)
			continue
		}
		if r.Job.version != ch.Version() {
			// voxels or neighbors changed meanwhile; NeedsMesh stays true
			s.stats.Discarded++
			continue
		}
		if err := ch.MarkMeshed(r.Job.version); err != nil {
			s.log.Error("mark meshed", "chunk", coord, "err", err)
			continue
		}
		s.stats.Meshed++
		s.uploads[coord] = r.Value
	}
}

func (s *Scheduler) dispatchGeneration() {
	defer profiling.Track("streaming.dispatchGeneration")()
	if s.queueDirty {
		sortNearest(s.queue, s.region.center)
		s.queueDirty = false
	}
	issued := 0
	for len(s.queue) > 0 && issued < s.opts.Budget.Generate {
		coord := s.queue[0]
		if s.store.Has(coord) {
			s.queue = s.queue[1:]
			delete(s.queued, coord)
			continue
		}
		ch, err := s.store.Create(coord)
		if err != nil {
			s.log.Error("create chunk", "chunk", coord, "err", err)
			s.queue = s.queue[1:]
			delete(s.queued, coord)
			continue
		}
		if !s.genPool.Submit(genJob{coord: coord, id: ch.ID()}) {
			// workers saturated; try again next frame
			_, _ = s.store.Remove(coord)
			break
		}
		s.queue = s.queue[1:]
		delete(s.queued, coord)
		s.generating[coord] = ch.ID()
		issued++
	}
}

// meshReady reports whether every face neighbor of coord is generated or
// will never be: missing neighbors outside the wanted set read as solid.
func (s *Scheduler) meshReady(coord world.ChunkCoord) bool {
	for _, f := range world.Faces {
		nc := coord.Neighbor(f)
		if n, ok := s.store.Get(nc); ok {
			st := n.State()
			if st.AtLeastGenerated() || st == world.StatePendingEvict {
				continue
			}
			return false
		}
		if s.region.contains(nc) {
			return false
		}
	}
	return true
}

func (s *Scheduler) dispatchMeshing() {
	defer profiling.Track("streaming.dispatchMeshing")()
	var candidates []world.ChunkCoord
	for _, coord := range s.store.Coords() {
		if _, busy := s.meshing[coord]; busy {
			continue
		}
		ch, ok := s.store.Get(coord)
		if !ok || !ch.NeedsMesh() || !s.meshReady(coord) {
			continue
		}
		candidates = append(candidates, coord)
	}
	sortNearest(candidates, s.region.center)

	issued := 0
	for _, coord := range candidates {
		if issued >= s.opts.Budget.Mesh {
			break
		}
		ch, _ := s.store.Get(coord)
		job := meshJob{
			coord:   coord,
			id:      ch.ID(),
			version: ch.Version(),
			input:   meshing.NewInput(s.store, ch),
		}
		if !s.meshPool.Submit(job) {
			break
		}
		s.meshing[coord] = meshInFlight{id: job.id, version: job.version}
		issued++
	}
}

func (s *Scheduler) uploadReady() error {
	defer profiling.Track("streaming.uploadReady")()
	if s.oomBackoff > 0 {
		s.oomBackoff--
		return nil
	}
	pending := make([]world.ChunkCoord, 0, len(s.uploads))
	for c := range s.uploads {
		pending = append(pending, c)
	}
	sortNearest(pending, s.region.center)

	issued := 0
	for _, coord := range pending {
		if issued >= s.opts.Budget.Upload {
			break
		}
		ch, ok := s.store.Get(coord)
		if !ok || ch.State() != world.StateMeshed {
			delete(s.uploads, coord)
			continue
		}
		_, err := s.sink.Upload(coord, s.uploads[coord])
		switch {
		case err == nil:
		case errors.Is(err, gpu.ErrOutOfMemory):
			s.stats.UploadFail++
			s.oomBackoff = oomBackoffFrames
			s.log.Warn("gpu out of memory, backing off", "chunk", coord, "frames", oomBackoffFrames, "err", err)
			return nil
		case errors.Is(err, gpu.ErrThrottled):
			return nil
		case errors.Is(err, gpu.ErrDeviceLost):
			return err
		default:
			s.stats.UploadFail++
			s.log.Warn("upload failed", "chunk", coord, "err", err)
			continue
		}
		ch.SetGPUHeld(true)
		if err := ch.Transition(world.StateGpuResident); err != nil {
			return fmt.Errorf("chunk %v: %w", coord, err)
		}
		delete(s.uploads, coord)
		s.stats.Uploaded++
		issued++
	}
	return nil
}

// SetVoxel edits the voxel at a world position. Border edits also mark the
// touching neighbor for re-extraction.
func (s *Scheduler) SetVoxel(wx, wy, wz int, m world.Material) error {
	coord, lx, ly, lz := world.SplitVoxel(wx, wy, wz, s.opts.Edge)
	ch, ok := s.store.Get(coord)
	if !ok {
		return fmt.Errorf("%w: %v", world.ErrChunkNotFound, coord)
	}
	changed, err := ch.SetVoxel(lx, ly, lz, m)
	if err != nil || !changed {
		return err
	}
	local := [3]int{lx, ly, lz}
	last := s.opts.Edge - 1
	for _, f := range world.Faces {
		at := 0
		if f.Positive() {
			at = last
		}
		if local[f.Axis()] != at {
			continue
		}
		if n, ok := s.store.Get(coord.Neighbor(f)); ok && n.State().AtLeastGenerated() {
			n.Invalidate()
		}
	}
	return nil
}

// Close stops the worker pools. In-flight results are dropped.
func (s *Scheduler) Close() {
	s.genPool.Shutdown()
	s.meshPool.Shutdown()
}
