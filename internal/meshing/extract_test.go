package meshing

import (
	"math/rand"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/valydumitru01/Burst/internal/world"
)

func randomInput(rng *rand.Rand, edge int, fill float64) Input {
	in := Input{Edge: edge, Voxels: make([]world.Material, edge*edge*edge)}
	for i := range in.Voxels {
		if rng.Float64() < fill {
			in.Voxels[i] = world.Material(1 + rng.Intn(3))
		}
	}
	for _, f := range world.Faces {
		if rng.Intn(3) == 0 {
			continue // absent neighbor
		}
		cells := make([]world.Material, edge*edge)
		for i := range cells {
			if rng.Float64() < fill {
				cells[i] = world.Stone
			}
		}
		in.Neighbors[f] = cells
	}
	return in
}

// exposedFaces counts solid-to-air faces by brute force.
func exposedFaces(in Input) int {
	e := in.Edge
	count := 0
	for z := range e {
		for y := range e {
			for x := range e {
				if !in.Voxels[world.Index(e, x, y, z)].Solid() {
					continue
				}
				for _, f := range world.Faces {
					q := [3]int{x, y, z}
					o := f.Offset()
					q[0] += o.X
					q[1] += o.Y
					q[2] += o.Z
					d := f.Axis()
					var beyond world.Material
					switch {
					case q[d] >= 0 && q[d] < e:
						beyond = in.Voxels[world.Index(e, q[0], q[1], q[2])]
					case in.Neighbors[f] == nil:
						beyond = world.Stone
					default:
						beyond = in.Neighbors[f][world.BoundaryIndex(e, d, q)]
					}
					if !beyond.Solid() {
						count++
					}
				}
			}
		}
	}
	return count
}

func TestFaceCullingMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := range 40 {
		edge := []int{4, 8, 16}[trial%3]
		in := randomInput(rng, edge, rng.Float64())
		want := exposedFaces(in)

		naive := extract(t, in, false)
		if naive.Quads() != want {
			t.Fatalf("trial %d: naive emitted %d quads, want %d exposed faces", trial, naive.Quads(), want)
		}
		greedy := extract(t, in, true)
		if area := greedy.Area(); area != float32(want) {
			t.Fatalf("trial %d: greedy area %v, want %d", trial, area, want)
		}
		if greedy.Quads() > naive.Quads() {
			t.Fatalf("trial %d: greedy emitted more quads (%d) than naive (%d)", trial, greedy.Quads(), naive.Quads())
		}
	}
}

// Every naive quad must sit between the solid voxel it belongs to and air.
func TestNoInternalFaces(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	in := randomInput(rng, 8, 0.6)
	e := in.Edge
	m := extract(t, in, false)
	for q := 0; q < len(m.Vertices); q += 4 {
		v := m.Vertices[q]
		// centre of the quad, pushed half a voxel inward
		c := v.Position.Add(m.Vertices[q+2].Position).Mul(0.5).Sub(v.Normal.Mul(0.5))
		x, y, z := int(c.X()), int(c.Y()), int(c.Z())
		inner := in.Voxels[world.Index(e, x, y, z)]
		if !inner.Solid() || uint32(inner) != v.Material {
			t.Fatalf("quad %d at %v: inner voxel %v, vertex material %d", q/4, c, inner, v.Material)
		}
		ox, oy, oz := x+int(v.Normal.X()), y+int(v.Normal.Y()), z+int(v.Normal.Z())
		if ox >= 0 && ox < e && oy >= 0 && oy < e && oz >= 0 && oz < e {
			if in.Voxels[world.Index(e, ox, oy, oz)].Solid() {
				t.Fatalf("quad %d at %v faces a solid voxel", q/4, c)
			}
		}
	}
}

func TestWindingIsCounterClockwise(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	in := randomInput(rng, 8, 0.4)
	for _, greedy := range []bool{false, true} {
		m := extract(t, in, greedy)
		for k := 0; k < len(m.Indices); k += 3 {
			a := m.Vertices[m.Indices[k]]
			b := m.Vertices[m.Indices[k+1]]
			c := m.Vertices[m.Indices[k+2]]
			n := b.Position.Sub(a.Position).Cross(c.Position.Sub(a.Position))
			if n.Dot(a.Normal) <= 0 {
				t.Fatalf("greedy=%v: triangle %d is clockwise seen from %v", greedy, k/3, a.Normal)
			}
			if !n.Normalize().ApproxEqual(a.Normal) {
				t.Fatalf("greedy=%v: triangle %d normal %v, vertex normal %v", greedy, k/3, n.Normalize(), a.Normal)
			}
		}
	}
}

func TestVerticesStayInsideChunk(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	in := randomInput(rng, 8, 0.5)
	m := extract(t, in, true)
	for i, v := range m.Vertices {
		for axis := range 3 {
			if v.Position[axis] < 0 || v.Position[axis] > 8 {
				t.Fatalf("vertex %d at %v outside [0,8]", i, v.Position)
			}
		}
	}
}

func TestEmptyChunkExtractsNothing(t *testing.T) {
	for _, edge := range []int{4, 32} {
		in := airInput(edge)
		for _, greedy := range []bool{false, true} {
			m := extract(t, in, greedy)
			if len(m.Vertices) != 0 || len(m.Indices) != 0 || !m.Empty() {
				t.Fatalf("edge %d greedy=%v: %d vertices, %d indices", edge, greedy, len(m.Vertices), len(m.Indices))
			}
			if m.VertexBytes() != nil || m.ByteSize() != 0 {
				t.Fatal("empty mesh has upload bytes")
			}
		}
	}
}

func TestExtractRejectsMalformedInput(t *testing.T) {
	in := airInput(4)
	in.Voxels = in.Voxels[:10]
	if _, err := Extract(in, Options{}); err == nil {
		t.Fatal("expected error for short grid")
	}
	in = airInput(4)
	in.Neighbors[world.FacePosZ] = make([]world.Material, 3)
	if _, err := Extract(in, Options{}); err == nil {
		t.Fatal("expected error for short boundary")
	}
}

// flatInput is an edge-4 chunk at the origin of a world that is solid below
// y=2. Neighbors are taken from the same generator unless overridden.
func flatInput(t *testing.T) (Input, *world.ChunkStore) {
	t.Helper()
	const e = 4
	gen := world.NewFlatGenerator(e, 2, world.Stone)
	store := world.NewChunkStore(e)
	center := world.ChunkCoord{}
	for _, c := range append([]world.ChunkCoord{center}, neighbors(center)...) {
		ch, err := store.Create(c)
		if err != nil {
			t.Fatal(err)
		}
		if err := ch.Fill(gen.Generate(c)); err != nil {
			t.Fatal(err)
		}
	}
	ch, _ := store.Get(center)
	return NewInput(store, ch), store
}

func neighbors(c world.ChunkCoord) []world.ChunkCoord {
	out := make([]world.ChunkCoord, 0, 6)
	for _, f := range world.Faces {
		out = append(out, c.Neighbor(f))
	}
	return out
}

func TestFlatChunkWithMatchingNeighbors(t *testing.T) {
	in, _ := flatInput(t)

	naive := extract(t, in, false)
	if naive.Quads() != 16 || len(naive.Vertices) != 64 || len(naive.Indices) != 96 {
		t.Fatalf("naive: %d quads, %d vertices, %d indices; want top only (16, 64, 96)",
			naive.Quads(), len(naive.Vertices), len(naive.Indices))
	}
	for _, v := range naive.Vertices {
		if v.Normal != (mgl32.Vec3{0, 1, 0}) || v.Position.Y() != 2 {
			t.Fatalf("unexpected vertex %+v, want top face at y=2", v)
		}
		if v.Material != uint32(world.Stone) {
			t.Fatalf("material %d, want %d", v.Material, world.Stone)
		}
	}

	greedy := extract(t, in, true)
	if greedy.Quads() != 1 || greedy.Area() != 16 {
		t.Fatalf("greedy: %d quads covering %v, want one 4x4 quad", greedy.Quads(), greedy.Area())
	}
}

func TestFlatChunkWithOpenSides(t *testing.T) {
	in, _ := flatInput(t)
	for _, f := range []world.Face{world.FacePosX, world.FaceNegX, world.FacePosZ, world.FaceNegZ} {
		in.Neighbors[f] = make([]world.Material, 16)
	}

	m := extract(t, in, false)
	// 4*4 top + 4 sides * 2 rows * 4 columns
	if m.Quads() != 16+32 || len(m.Vertices) != 4*(16+32) {
		t.Fatalf("got %d quads, %d vertices; want 48, 192", m.Quads(), len(m.Vertices))
	}
	var top, sides int
	for q := 0; q < len(m.Vertices); q += 4 {
		switch n := m.Vertices[q].Normal; {
		case n.Y() == 1:
			top++
		case n.Y() == 0:
			sides++
		default:
			t.Fatalf("unexpected face normal %v", n)
		}
	}
	if top != 16 || sides != 32 {
		t.Fatalf("top=%d sides=%d, want 16 and 32", top, sides)
	}
}

func TestFlatChunkWithoutNeighbors(t *testing.T) {
	in, _ := flatInput(t)
	in.Neighbors = [6][]world.Material{}
	if m := extract(t, in, false); m.Quads() != 16 {
		t.Fatalf("got %d quads, want the 16 top faces", m.Quads())
	}
}

// Extracting with a neighbor missing, then again once it arrives, must end
// with the same surface as extracting both with the neighbor present.
func TestBoundaryConsistencyAfterLateNeighbor(t *testing.T) {
	const e = 8
	rng := rand.New(rand.NewSource(21))
	store := world.NewChunkStore(e)
	a, _ := store.Create(world.ChunkCoord{})
	b, _ := store.Create(world.ChunkCoord{X: 1})

	grid := func() []world.Material {
		v := make([]world.Material, e*e*e)
		for i := range v {
			if rng.Float64() < 0.5 {
				v[i] = world.Dirt
			}
		}
		return v
	}
	if err := a.Fill(grid()); err != nil {
		t.Fatal(err)
	}

	early := extract(t, NewInput(store, a), true)

	if err := b.Fill(grid()); err != nil {
		t.Fatal(err)
	}
	late := extract(t, NewInput(store, a), true)
	together := extract(t, NewInput(store, a), false)

	if early.Area() > late.Area() {
		t.Fatalf("early extraction area %v exceeds final %v", early.Area(), late.Area())
	}
	if late.Area() != together.Area() {
		t.Fatalf("re-extracted area %v, want %v", late.Area(), together.Area())
	}
	bMesh := extract(t, NewInput(store, b), true)
	if bMesh.Area() == 0 {
		t.Fatal("neighbor produced no surface")
	}
}
