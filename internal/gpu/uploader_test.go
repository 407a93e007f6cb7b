package gpu_test

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/valydumitru01/Burst/internal/gpu"
	"github.com/valydumitru01/Burst/internal/gpu/sim"
	"github.com/valydumitru01/Burst/internal/meshing"
	"github.com/valydumitru01/Burst/internal/world"
)

const edge = 8

// blockMesh extracts n isolated voxels so the mesh size grows with n.
func blockMesh(t testing.TB, n int) *meshing.Mesh {
	t.Helper()
	in := meshing.Input{Edge: edge, Voxels: make([]world.Material, edge*edge*edge)}
	for _, f := range world.Faces {
		in.Neighbors[f] = make([]world.Material, edge*edge)
	}
	for i := range n {
		in.Voxels[world.Index(edge, (2*i)%edge, 2*((2*i)/edge%4), 1)] = world.Stone
	}
	m, err := meshing.Extract(in, meshing.Options{})
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func newUploader(dev *sim.Device, frames, threshold, bps int) *gpu.Uploader {
	return gpu.NewUploader(dev, dev, gpu.UploaderConfig{
		FramesInFlight:   frames,
		Edge:             edge,
		StagingThreshold: threshold,
		BytesPerSecond:   bps,
	}, nil)
}

func begin(t *testing.T, u *gpu.Uploader) uint64 {
	t.Helper()
	f, err := u.BeginFrame(context.Background())
	if err != nil {
		t.Fatalf("BeginFrame: %v", err)
	}
	return f
}

func end(t *testing.T, u *gpu.Uploader) {
	t.Helper()
	if err := u.EndFrame(); err != nil {
		t.Fatalf("EndFrame: %v", err)
	}
}

// draw marks every drawable buffer as read by the current frame.
func draw(dev *sim.Device, u *gpu.Uploader) {
	for _, dc := range u.DrawList() {
		dev.Use(u.Frame(), dc.VertexBuffer, dc.IndexBuffer)
	}
}

func TestUploadSmallMeshWritesDirectly(t *testing.T) {
	dev := sim.New(0)
	u := newUploader(dev, 2, 1<<20, 0)
	mesh := blockMesh(t, 1)
	coord := world.ChunkCoord{X: 1, Y: 0, Z: -2}

	begin(t, u)
	h, err := u.Upload(coord, mesh)
	if err != nil {
		t.Fatal(err)
	}
	end(t, u)

	list := u.DrawList()
	if len(list) != 1 {
		t.Fatalf("DrawList has %d entries, want 1", len(list))
	}
	dc := list[0]
	if dc.Handle != h || dc.Coord != coord || dc.IndexCount != 36 || dc.VertexCount != 24 {
		t.Fatalf("draw command %+v", dc)
	}
	if got := dc.Model.Col(3).Vec3(); got != coord.OriginVec(edge) {
		t.Fatalf("model translation %v, want %v", got, coord.OriginVec(edge))
	}
	got, ok := dev.Contents(dc.VertexBuffer)
	if !ok || !bytes.Equal(got, mesh.VertexBytes()) {
		t.Fatal("vertex buffer does not hold the mesh vertices")
	}
	if s := u.Stats(); s.StagedUploads != 0 || s.Resident != 1 || s.ResidentBytes != mesh.ByteSize() {
		t.Fatalf("stats %+v", s)
	}
}

func TestUploadLargeMeshGoesThroughStaging(t *testing.T) {
	dev := sim.New(0)
	u := newUploader(dev, 2, 0, 0)
	mesh := blockMesh(t, 2)

	begin(t, u)
	if _, err := u.Upload(world.ChunkCoord{}, mesh); err != nil {
		t.Fatal(err)
	}
	end(t, u)
	if live, _, _, _ := dev.Stats(); live != 4 {
		t.Fatalf("%d live buffers, want 2 device-local + 2 staging", live)
	}

	dc := u.DrawList()[0]
	got, _ := dev.Contents(dc.IndexBuffer)
	if !bytes.Equal(got, mesh.IndexBytes()) {
		t.Fatal("device-local index buffer not filled by the staging copy")
	}

	dev.Complete(1)
	begin(t, u)
	end(t, u)
	if live, _, _, _ := dev.Stats(); live != 2 {
		t.Fatalf("%d live buffers after the copy frame completed, want 2", live)
	}
	if s := u.Stats(); s.StagedUploads != 1 {
		t.Fatalf("StagedUploads = %d", s.StagedUploads)
	}
	if v := dev.Violations(); len(v) != 0 {
		t.Fatalf("violations: %v", v)
	}
}

func TestReuploadDefersRetirement(t *testing.T) {
	dev := sim.New(0)
	u := newUploader(dev, 3, 1<<20, 0)
	coord := world.ChunkCoord{}

	begin(t, u)
	first, _ := u.Upload(coord, blockMesh(t, 1))
	draw(dev, u)
	old := u.DrawList()[0]
	end(t, u)

	begin(t, u)
	second, err := u.Upload(coord, blockMesh(t, 2))
	if err != nil {
		t.Fatal(err)
	}
	if second == first {
		t.Fatal("re-upload reused the handle")
	}
	draw(dev, u)
	end(t, u)

	if _, ok := dev.Contents(old.VertexBuffer); !ok {
		t.Fatal("replaced buffer freed while frame 1 was in flight")
	}
	if err := u.Retire(first); !errors.Is(err, gpu.ErrStaleHandle) {
		t.Fatalf("retiring a replaced handle: got %v, want ErrStaleHandle", err)
	}

	dev.Complete(1)
	begin(t, u) // frame 3
	end(t, u)
	if _, ok := dev.Contents(old.VertexBuffer); !ok {
		t.Fatal("buffer retired in frame 2 freed before frame 2 completed")
	}

	dev.Complete(2)
	begin(t, u) // frame 4
	end(t, u)
	if _, ok := dev.Contents(old.VertexBuffer); ok {
		t.Fatal("replaced buffer still alive after its frames completed")
	}
	if v := dev.Violations(); len(v) != 0 {
		t.Fatalf("violations: %v", v)
	}
}

func TestEvictReportsReclaimedAfterCompletion(t *testing.T) {
	dev := sim.New(0)
	u := newUploader(dev, 2, 1<<20, 0)
	coord := world.ChunkCoord{X: 3}

	begin(t, u)
	u.Upload(coord, blockMesh(t, 1))
	end(t, u)

	begin(t, u)
	if ok, err := u.Evict(coord); !ok || err != nil {
		t.Fatalf("Evict = %v, %v", ok, err)
	}
	if u.Resident(coord) || len(u.DrawList()) != 0 {
		t.Fatal("evicted chunk still drawable")
	}
	end(t, u)
	if got := u.Reclaimed(); len(got) != 0 {
		t.Fatalf("reclaimed %v before completion", got)
	}

	dev.Complete(2)
	begin(t, u)
	got := u.Reclaimed()
	if len(got) != 1 || got[0] != coord {
		t.Fatalf("Reclaimed = %v, want [%v]", got, coord)
	}
	end(t, u)
	if ok, _ := u.Evict(coord); ok {
		t.Fatal("second Evict found a mesh")
	}
}

func TestOutOfMemoryIsRecoverable(t *testing.T) {
	dev := sim.New(0)
	u := newUploader(dev, 2, 0, 0)
	coord := world.ChunkCoord{}

	begin(t, u)
	if _, err := u.Upload(coord, blockMesh(t, 1)); err != nil {
		t.Fatal(err)
	}
	dev.FailAllocations(2)
	_, err := u.Upload(coord, blockMesh(t, 2))
	if !errors.Is(err, gpu.ErrOutOfMemory) {
		t.Fatalf("got %v, want ErrOutOfMemory", err)
	}
	if !u.Resident(coord) || len(u.DrawList()) != 1 {
		t.Fatal("failed re-upload dropped the previous mesh")
	}
	end(t, u)

	dev.Complete(1)
	begin(t, u)
	if _, err := u.Upload(coord, blockMesh(t, 2)); !errors.Is(err, gpu.ErrOutOfMemory) {
		t.Fatalf("expected the last injected failure, got %v", err)
	}
	if _, err := u.Upload(coord, blockMesh(t, 2)); err != nil {
		t.Fatalf("retry after failures: %v", err)
	}
	end(t, u)
	if s := u.Stats(); s.FailedUploads != 2 || s.StagedUploads != 2 {
		t.Fatalf("FailedUploads = %d, StagedUploads = %d, want 2 each", s.FailedUploads, s.StagedUploads)
	}
	if v := dev.Violations(); len(v) != 0 {
		t.Fatalf("violations: %v", v)
	}
}

func TestMemoryBudgetExhaustion(t *testing.T) {
	mesh := blockMesh(t, 1)
	dev := sim.New(mesh.ByteSize() + 10)
	u := newUploader(dev, 2, 1<<20, 0)

	begin(t, u)
	if _, err := u.Upload(world.ChunkCoord{X: 0}, mesh); err != nil {
		t.Fatal(err)
	}
	if _, err := u.Upload(world.ChunkCoord{X: 1}, mesh); !errors.Is(err, gpu.ErrOutOfMemory) {
		t.Fatalf("second upload: got %v, want ErrOutOfMemory", err)
	}
	end(t, u)
	if u.Resident(world.ChunkCoord{X: 1}) {
		t.Fatal("failed chunk became resident")
	}
}

func TestEmptyMeshIsResidentButNotDrawn(t *testing.T) {
	dev := sim.New(0)
	u := newUploader(dev, 2, 0, 0)
	begin(t, u)
	h, err := u.Upload(world.ChunkCoord{}, &meshing.Mesh{})
	if err != nil || !h.Valid() {
		t.Fatalf("Upload(empty) = %v, %v", h, err)
	}
	end(t, u)
	if !u.Resident(world.ChunkCoord{}) {
		t.Fatal("empty mesh not resident")
	}
	if len(u.DrawList()) != 0 {
		t.Fatal("empty mesh in the draw list")
	}
	if live, _, _, _ := dev.Stats(); live != 0 {
		t.Fatalf("empty mesh allocated %d buffers", live)
	}
}

func TestUploadOutsideFrame(t *testing.T) {
	dev := sim.New(0)
	u := newUploader(dev, 2, 0, 0)
	if _, err := u.Upload(world.ChunkCoord{}, blockMesh(t, 1)); !errors.Is(err, gpu.ErrNotInFrame) {
		t.Fatalf("got %v, want ErrNotInFrame", err)
	}
}

func TestUploadBandwidthLimit(t *testing.T) {
	mesh := blockMesh(t, 1)
	dev := sim.New(0)
	u := newUploader(dev, 2, 1<<20, mesh.ByteSize())
	begin(t, u)
	if _, err := u.Upload(world.ChunkCoord{X: 0}, mesh); err != nil {
		t.Fatal(err)
	}
	if _, err := u.Upload(world.ChunkCoord{X: 1}, mesh); !errors.Is(err, gpu.ErrThrottled) {
		t.Fatalf("got %v, want ErrThrottled", err)
	}
	end(t, u)
}

func TestDeviceLossSurfaces(t *testing.T) {
	dev := sim.New(0)
	u := newUploader(dev, 2, 0, 0)
	begin(t, u)
	dev.Lose()
	if err := u.EndFrame(); !errors.Is(err, gpu.ErrDeviceLost) {
		t.Fatalf("EndFrame after loss: %v", err)
	}
}

// Random uploads, re-uploads and evictions with frames completing at random
// must never free or overwrite a buffer a pending frame still reads.
func TestLifetimeSafetyUnderRandomWorkload(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for _, frames := range []int{1, 2, 3} {
		dev := sim.New(0)
		u := newUploader(dev, frames, 1000, 0)
		ctx := context.Background()

		for range 300 {
			// the GPU lags by a random amount, but never more than the ring
			next := u.Frame() + 1
			if next > uint64(frames) {
				lo := next - uint64(frames)
				dev.Complete(lo + uint64(rng.Intn(frames)))
			}
			if _, err := u.BeginFrame(ctx); err != nil {
				t.Fatal(err)
			}
			for range rng.Intn(4) {
				c := world.ChunkCoord{X: rng.Intn(6)}
				if rng.Intn(3) == 0 {
					if _, err := u.Evict(c); err != nil {
						t.Fatal(err)
					}
					continue
				}
				if _, err := u.Upload(c, blockMesh(t, 1+rng.Intn(4))); err != nil {
					t.Fatal(err)
				}
			}
			draw(dev, u)
			if err := u.EndFrame(); err != nil {
				t.Fatal(err)
			}
			u.Reclaimed()
		}
		dev.Complete(u.Frame())
		if err := u.Close(ctx); err != nil {
			t.Fatal(err)
		}
		if v := dev.Violations(); len(v) != 0 {
			t.Fatalf("frames=%d: %d violations, first: %v", frames, len(v), v[0])
		}
		if live, _, _, _ := dev.Stats(); live != 0 {
			t.Fatalf("frames=%d: %d buffers leaked", frames, live)
		}
	}
}
