package world

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

type voxelSet map[[3]int]Material

func (v voxelSet) VoxelAt(x, y, z int) (Material, bool) {
	m, ok := v[[3]int{x, y, z}]
	return m, ok
}

func TestRaycast(t *testing.T) {
	src := voxelSet{{5, 0, 0}: Stone}
	start := mgl32.Vec3{0.5, 0.5, 0.5}

	res := Raycast(src, start, mgl32.Vec3{1, 0, 0}, 10)
	if !res.Found {
		t.Fatal("expected hit, got miss")
	}
	if res.Hit != [3]int{5, 0, 0} {
		t.Errorf("Hit = %v, want {5,0,0}", res.Hit)
	}
	if res.Adjacent != [3]int{4, 0, 0} {
		t.Errorf("Adjacent = %v, want {4,0,0}", res.Adjacent)
	}
	if res.Face != FaceNegX {
		t.Errorf("Face = %v, want %v", res.Face, FaceNegX)
	}
	if res.Distance < 4.49 || res.Distance > 4.51 {
		t.Errorf("Distance = %f, want 4.5", res.Distance)
	}

	if res := Raycast(src, start, mgl32.Vec3{1, 0, 0}, 4); res.Found {
		t.Errorf("hit beyond max distance at %v", res.Hit)
	}
	if res := Raycast(src, start, mgl32.Vec3{0, 1, 0}, 10); res.Found {
		t.Errorf("hit in wrong direction at %v", res.Hit)
	}
	if res := Raycast(src, start, mgl32.Vec3{}, 10); res.Found {
		t.Error("zero direction reported a hit")
	}
}

func TestRaycastDiagonal(t *testing.T) {
	src := voxelSet{{2, 2, 2}: Dirt}
	res := Raycast(src, mgl32.Vec3{0.5, 0.5, 0.5}, mgl32.Vec3{1, 1, 1}, 10)
	if !res.Found || res.Hit != [3]int{2, 2, 2} {
		t.Fatalf("got %+v, want hit at {2,2,2}", res)
	}
	// the adjacent voxel shares a face with the hit
	d := 0
	for a := range 3 {
		diff := res.Hit[a] - res.Adjacent[a]
		if diff < 0 {
			diff = -diff
		}
		d += diff
	}
	if d != 1 {
		t.Fatalf("Adjacent %v is not face-adjacent to %v", res.Adjacent, res.Hit)
	}
}

func TestRaycastAgainstStore(t *testing.T) {
	cs := NewChunkStore(4)
	gen := NewFlatGenerator(4, 2, Stone)
	c, _ := cs.Create(ChunkCoord{})
	if err := c.Fill(gen.Generate(c.Coord())); err != nil {
		t.Fatal(err)
	}

	if m, ok := cs.VoxelAt(1, 1, 1); !ok || m != Stone {
		t.Fatalf("VoxelAt(1,1,1) = %v, %v", m, ok)
	}
	if _, ok := cs.VoxelAt(-1, 0, 0); ok {
		t.Fatal("VoxelAt reported a voxel in a missing chunk")
	}

	res := Raycast(cs, mgl32.Vec3{1.5, 3.5, 1.5}, mgl32.Vec3{0, -1, 0}, 10)
	if !res.Found {
		t.Fatal("expected to hit the surface")
	}
	if res.Hit != [3]int{1, 1, 1} || res.Adjacent != [3]int{1, 2, 1} {
		t.Fatalf("Hit %v Adjacent %v", res.Hit, res.Adjacent)
	}
	if res.Face != FacePosY {
		t.Fatalf("Face = %v, want %v", res.Face, FacePosY)
	}
	if res.Distance < 1.49 || res.Distance > 1.51 {
		t.Fatalf("Distance = %f, want 1.5", res.Distance)
	}

	if res := Raycast(NewChunkStore(4), mgl32.Vec3{}, mgl32.Vec3{0, -1, 0}, 10); res.Found {
		t.Fatal("hit in an empty store")
	}
}
