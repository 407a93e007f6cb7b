package gpu

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/time/rate"

	"github.com/valydumitru01/Burst/internal/meshing"
	"github.com/valydumitru01/Burst/internal/profiling"
	"github.com/valydumitru01/Burst/internal/world"
)

// UploaderConfig sizes the uploader.
type UploaderConfig struct {
	FramesInFlight   int
	Edge             int // chunk edge, for draw transforms
	StagingThreshold int // meshes above this many bytes go through staging
	BytesPerSecond   int // 0 = unlimited
}

// Stats is a snapshot of the uploader's bookkeeping.
type Stats struct {
	Frame           uint64
	Resident        int // chunks with a live mesh
	ResidentBytes   int
	PendingRetire   int
	Uploads         uint64
	StagedUploads   uint64
	FailedUploads   uint64
	BuffersFreed    uint64
	ReclaimedChunks uint64
}

// Uploader owns every chunk mesh on the GPU. It is used from the submission
// thread only.
type Uploader struct {
	dev     Device
	ring    *frameRing
	log     *slog.Logger
	cfg     UploaderConfig
	limiter *rate.Limiter
	now     func() time.Time

	arena     arena
	byCoord   map[world.ChunkCoord]Handle
	reclaimed []world.ChunkCoord
	stats     Stats
}

// NewUploader creates an uploader over dev whose frames complete through
// fence. A nil logger means slog.Default().
func NewUploader(dev Device, fence Fence, cfg UploaderConfig, log *slog.Logger) *Uploader {
	if log == nil {
		log = slog.Default()
	}
	limit, burst := rate.Inf, 0
	if cfg.BytesPerSecond > 0 {
		limit, burst = rate.Limit(cfg.BytesPerSecond), cfg.BytesPerSecond
	}
	return &Uploader{
		dev:     dev,
		ring:    newFrameRing(cfg.FramesInFlight, fence),
		log:     log.With("component", "gpu.uploader"),
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, burst),
		now:     time.Now,
		byCoord: make(map[world.ChunkCoord]Handle),
	}
}

// BeginFrame waits for a free frame slot and frees resources whose frames
// have completed. Chunks whose eviction finished become available from
// Reclaimed.
func (u *Uploader) BeginFrame(ctx context.Context) (uint64, error) {
	defer profiling.Track("gpu.BeginFrame")()
	frame, freed, err := u.ring.Begin(ctx)
	if err != nil {
		return frame, err
	}
	u.free(freed)
	u.stats.Frame = frame
	return frame, nil
}

// EndFrame submits the frame's recorded work.
func (u *Uploader) EndFrame() error {
	return u.ring.End()
}

// Frame returns the frame being recorded.
func (u *Uploader) Frame() uint64 { return u.ring.Frame() }

func (u *Uploader) free(items []retirement) {
	for _, it := range items {
		for _, b := range it.buffers {
			if err := u.dev.DestroyBuffer(b); err != nil {
				u.log.Warn("destroy buffer failed", "buffer", b, "err", err)
			}
			u.stats.BuffersFreed++
		}
		if !it.handle.Valid() {
			continue
		}
		r, err := u.arena.get(it.handle)
		if err != nil {
			continue
		}
		coord := r.coord
		u.stats.ResidentBytes -= r.bytes
		u.arena.release(it.handle)
		if it.evicted {
			u.reclaimed = append(u.reclaimed, coord)
			u.stats.ReclaimedChunks++
		}
	}
}

// Upload puts mesh on the GPU for coord and returns its handle. A previous
// mesh for coord is retired, not freed: in-flight frames may still draw it.
//
// Small meshes are written straight into host-visible buffers. Larger ones
// are written to staging buffers and copied into device-local buffers; the
// staging buffers are retired in the same frame.
//
// ErrOutOfMemory and ErrThrottled leave the previous mesh, if any, in place.
func (u *Uploader) Upload(coord world.ChunkCoord, mesh *meshing.Mesh) (Handle, error) {
	defer profiling.Track("gpu.Upload")()
	if !u.ring.Recording() {
		return Handle{}, ErrNotInFrame
	}
	frame := u.ring.Frame()
	size := 0
	if mesh != nil {
		size = mesh.ByteSize()
	}

	if size > 0 && u.limiter.Limit() != rate.Inf {
		n := min(size, u.limiter.Burst())
		if !u.limiter.AllowN(u.now(), n) {
			return Handle{}, ErrThrottled
		}
	}

	res := resource{coord: coord, uploaded: frame}
	if size > 0 {
		var err error
		staged := size > u.cfg.StagingThreshold
		if staged {
			err = u.uploadStaged(frame, mesh, &res)
		} else {
			err = u.uploadDirect(frame, mesh, &res)
		}
		if err != nil {
			u.stats.FailedUploads++
			// the buffers may be named by recorded commands: defer like any other
			u.retireBuffers(res.buffers()...)
			return Handle{}, fmt.Errorf("upload chunk %v: %w", coord, err)
		}
		if staged {
			u.stats.StagedUploads++
		}
		res.vertexCount = len(mesh.Vertices)
		res.indexCount = len(mesh.Indices)
		res.bytes = size
	}

	if old, ok := u.byCoord[coord]; ok {
		if err := u.retire(old, false); err != nil {
			u.log.Warn("retire replaced mesh", "chunk", coord, "err", err)
		}
	}
	h := u.arena.alloc(res)
	u.byCoord[coord] = h
	u.stats.Uploads++
	u.stats.ResidentBytes += size
	return h, nil
}

func (u *Uploader) uploadDirect(frame uint64, mesh *meshing.Mesh, res *resource) error {
	var err error
	res.vertexBuffer, err = u.createAndWrite(frame, UsageVertex, MemoryHostVisible, mesh.VertexBytes())
	if err != nil {
		return err
	}
	res.indexBuffer, err = u.createAndWrite(frame, UsageIndex, MemoryHostVisible, mesh.IndexBytes())
	return err
}

func (u *Uploader) uploadStaged(frame uint64, mesh *meshing.Mesh, res *resource) error {
	stage := func(usage Usage, data []byte) (BufferID, error) {
		dst, err := u.dev.CreateBuffer(BufferDesc{Size: len(data), Usage: usage, Memory: MemoryDeviceLocal})
		if err != nil {
			return 0, err
		}
		src, err := u.createAndWrite(frame, UsageStaging, MemoryHostVisible, data)
		if err != nil {
			return dst, err
		}
		// staging is dead once the copy executes, i.e. once this frame completes
		if rerr := u.ring.Retire(retirement{buffers: []BufferID{src}}); rerr != nil {
			return dst, rerr
		}
		return dst, u.dev.CopyBuffer(frame, src, dst, len(data))
	}
	var err error
	res.vertexBuffer, err = stage(UsageVertex, mesh.VertexBytes())
	if err != nil {
		return err
	}
	res.indexBuffer, err = stage(UsageIndex, mesh.IndexBytes())
	return err
}

// createAndWrite creates a host-visible buffer holding data. A buffer whose
// write failed is retired before returning.
func (u *Uploader) createAndWrite(frame uint64, usage Usage, mem Memory, data []byte) (BufferID, error) {
	id, err := u.dev.CreateBuffer(BufferDesc{Size: len(data), Usage: usage, Memory: mem})
	if err != nil {
		return 0, err
	}
	if err := u.dev.WriteBuffer(frame, id, data); err != nil {
		u.retireBuffers(id)
		return 0, err
	}
	return id, nil
}

// retireBuffers defers freeing bare buffers left over from a failed upload.
func (u *Uploader) retireBuffers(ids ...BufferID) {
	if len(ids) == 0 {
		return
	}
	if err := u.ring.Retire(retirement{buffers: ids}); err != nil {
		u.log.Warn("retire buffers of failed upload", "buffers", ids, "err", err)
	}
}

// Retire queues h for deferred freeing. It is freed once every frame that
// may reference it has completed.
func (u *Uploader) Retire(h Handle) error {
	return u.retire(h, false)
}

func (u *Uploader) retire(h Handle, evicted bool) error {
	r, err := u.arena.get(h)
	if err != nil {
		return err
	}
	if r.retired {
		return fmt.Errorf("%w: %v already retired", ErrStaleHandle, h)
	}
	if !u.ring.Recording() {
		return ErrNotInFrame
	}
	if cur, ok := u.byCoord[r.coord]; ok && cur == h {
		delete(u.byCoord, r.coord)
	}
	r.retired = true
	return u.ring.Retire(retirement{buffers: r.buffers(), handle: h, evicted: evicted})
}

// Evict retires coord's mesh and reports the chunk through Reclaimed once
// freed. It returns false if coord has no mesh.
func (u *Uploader) Evict(coord world.ChunkCoord) (bool, error) {
	h, ok := u.byCoord[coord]
	if !ok {
		return false, nil
	}
	if err := u.retire(h, true); err != nil {
		return false, err
	}
	return true, nil
}

// Reclaimed returns chunks whose evicted meshes have been freed since the
// last call.
func (u *Uploader) Reclaimed() []world.ChunkCoord {
	out := u.reclaimed
	u.reclaimed = nil
	return out
}

// Resident reports whether coord has a live mesh.
func (u *Uploader) Resident(coord world.ChunkCoord) bool {
	_, ok := u.byCoord[coord]
	return ok
}

// HandleOf returns coord's current mesh handle.
func (u *Uploader) HandleOf(coord world.ChunkCoord) (Handle, bool) {
	h, ok := u.byCoord[coord]
	return h, ok
}

// DrawCommand is what the renderer needs to draw one chunk.
type DrawCommand struct {
	Coord        world.ChunkCoord
	Handle       Handle
	VertexBuffer BufferID
	IndexBuffer  BufferID
	VertexCount  int
	IndexCount   int
	Origin       mgl32.Vec3 // world position of the chunk's minimum corner
	Model        mgl32.Mat4 // chunk-local to world
}

// DrawList returns a draw descriptor for every resident chunk with geometry,
// ordered by coordinate. Empty meshes are resident but have nothing to draw.
func (u *Uploader) DrawList() []DrawCommand {
	out := make([]DrawCommand, 0, len(u.byCoord))
	for coord, h := range u.byCoord {
		r, err := u.arena.get(h)
		if err != nil || r.indexCount == 0 {
			continue
		}
		origin := coord.OriginVec(u.cfg.Edge)
		out = append(out, DrawCommand{
			Coord:        coord,
			Handle:       h,
			VertexBuffer: r.vertexBuffer,
			IndexBuffer:  r.indexBuffer,
			VertexCount:  r.vertexCount,
			IndexCount:   r.indexCount,
			Origin:       origin,
			Model:        mgl32.Translate3D(origin.X(), origin.Y(), origin.Z()),
		})
	}
	slices.SortFunc(out, func(a, b DrawCommand) int {
		return cmp.Or(cmp.Compare(a.Coord.X, b.Coord.X), cmp.Compare(a.Coord.Y, b.Coord.Y), cmp.Compare(a.Coord.Z, b.Coord.Z))
	})
	return out
}

// Stats returns current counters.
func (u *Uploader) Stats() Stats {
	s := u.stats
	s.Resident = len(u.byCoord)
	s.PendingRetire = u.ring.Pending()
	return s
}

// Close waits for every submitted frame and frees all resources.
func (u *Uploader) Close(ctx context.Context) error {
	if u.ring.Recording() {
		if err := u.ring.End(); err != nil {
			return err
		}
	}
	freed, err := u.ring.Drain(ctx)
	if err != nil {
		return err
	}
	u.free(freed)
	var errs []error
	for coord, h := range u.byCoord {
		r, err := u.arena.get(h)
		if err != nil {
			continue
		}
		for _, b := range r.buffers() {
			errs = append(errs, u.dev.DestroyBuffer(b))
		}
		u.arena.release(h)
		delete(u.byCoord, coord)
	}
	u.stats.ResidentBytes = 0
	return errors.Join(errs...)
}
