package meshing

import (
	"fmt"

	"github.com/valydumitru01/Burst/internal/profiling"
	"github.com/valydumitru01/Burst/internal/world"
)

// Input is everything an extraction reads. It is assembled on the owner
// thread and then only read, so extraction can run on any goroutine.
type Input struct {
	Coord  world.ChunkCoord
	Edge   int
	Voxels []world.Material // edge³, world.Index order

	// Neighbors holds, per face, the touching layer of the adjacent chunk
	// in world.BoundaryIndex order. A nil layer means the neighbor is not
	// available and is treated as solid.
	Neighbors [6][]world.Material
}

// Options selects the extraction strategy.
type Options struct {
	// Greedy merges coplanar faces of equal material into larger quads.
	Greedy bool
}

// NewInput snapshots c and the boundary layers of its generated neighbors.
func NewInput(store *world.ChunkStore, c *world.Chunk) Input {
	in := Input{
		Coord:  c.Coord(),
		Edge:   c.Edge(),
		Voxels: c.Snapshot(),
	}
	for _, f := range world.Faces {
		if cells, ok := store.NeighborBoundary(c.Coord(), f); ok {
			in.Neighbors[f] = cells
		}
	}
	return in
}

// faceAxes gives, per face, the normal axis and the in-plane u and v axes.
// u × v points along the outward normal, so quads wound p0→p1→p2→p3 are
// counter-clockwise seen from outside.
var faceAxes = [6][3]int{
	world.FacePosX: {0, 1, 2},
	world.FaceNegX: {0, 2, 1},
	world.FacePosY: {1, 2, 0},
	world.FaceNegY: {1, 0, 2},
	world.FacePosZ: {2, 0, 1},
	world.FaceNegZ: {2, 1, 0},
}

// Extract builds the visible surface of a chunk. A face is emitted where a
// solid voxel touches air, inside the chunk or across a present neighbor.
func Extract(in Input, opts Options) (*Mesh, error) {
	defer profiling.Track("meshing.Extract")()

	e := in.Edge
	if e <= 0 || len(in.Voxels) != e*e*e {
		return nil, fmt.Errorf("chunk %v: grid has %d voxels, want %d", in.Coord, len(in.Voxels), e*e*e)
	}
	for _, f := range world.Faces {
		if n := in.Neighbors[f]; n != nil && len(n) != e*e {
			return nil, fmt.Errorf("chunk %v: %v boundary has %d cells, want %d", in.Coord, f, len(n), e*e)
		}
	}

	mesh := &Mesh{Coord: in.Coord}
	if allAir(in.Voxels) {
		return mesh, nil
	}

	mask := make([]world.Material, e*e)
	for _, f := range world.Faces {
		for layer := range e {
			if !in.faceMask(f, layer, mask) {
				continue
			}
			if opts.Greedy {
				mergeMask(mask, e, func(i, j, w, h int, m world.Material) {
					mesh.addQuad(f, layer, i, j, w, h, m)
				})
				continue
			}
			for j := range e {
				for i := range e {
					if m := mask[j*e+i]; m != world.Air {
						mesh.addQuad(f, layer, i, j, 1, 1, m)
					}
				}
			}
		}
	}
	return mesh, nil
}

func allAir(v []world.Material) bool {
	for _, m := range v {
		if m != world.Air {
			return false
		}
	}
	return true
}

// faceMask fills mask[j*e+i] with the material of every visible f-face in
// the given layer, Air elsewhere. It reports whether any face is visible.
func (in *Input) faceMask(f world.Face, layer int, mask []world.Material) bool {
	e := in.Edge
	axes := faceAxes[f]
	d, u, v := axes[0], axes[1], axes[2]
	step := 1
	if !f.Positive() {
		step = -1
	}
	boundary := in.Neighbors[f]
	visible := false

	var p [3]int
	p[d] = layer
	for j := range e {
		p[v] = j
		for i := range e {
			p[u] = i
			m := in.Voxels[world.Index(e, p[0], p[1], p[2])]
			if m == world.Air {
				mask[j*e+i] = world.Air
				continue
			}
			q := p
			q[d] += step
			var beyond world.Material
			switch {
			case q[d] >= 0 && q[d] < e:
				beyond = in.Voxels[world.Index(e, q[0], q[1], q[2])]
			case boundary != nil:
				beyond = boundary[world.BoundaryIndex(e, d, q)]
			default:
				beyond = world.Stone // missing neighbor hides the face
			}
			if beyond.Solid() {
				mask[j*e+i] = world.Air
				continue
			}
			mask[j*e+i] = m
			visible = true
		}
	}
	return visible
}

// addQuad appends the quad covering w×h cells from (i, j) in the u/v plane of
// face f at the given layer.
func (m *Mesh) addQuad(f world.Face, layer, i, j, w, h int, mat world.Material) {
	axes := faceAxes[f]
	d, u, v := axes[0], axes[1], axes[2]

	var base, du, dv [3]float32
	base[d] = float32(layer)
	if f.Positive() {
		base[d]++
	}
	base[u] = float32(i)
	base[v] = float32(j)
	du[u] = float32(w)
	dv[v] = float32(h)

	normal := f.Normal()
	first := uint32(len(m.Vertices))
	corners := [4][3]float32{
		base,
		{base[0] + du[0], base[1] + du[1], base[2] + du[2]},
		{base[0] + du[0] + dv[0], base[1] + du[1] + dv[1], base[2] + du[2] + dv[2]},
		{base[0] + dv[0], base[1] + dv[1], base[2] + dv[2]},
	}
	for _, c := range corners {
		m.Vertices = append(m.Vertices, Vertex{
			Position: c,
			Normal:   normal,
			Material: uint32(mat),
		})
	}
	m.Indices = append(m.Indices, first, first+1, first+2, first, first+2, first+3)
}
