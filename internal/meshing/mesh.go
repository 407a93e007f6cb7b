package meshing

import (
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/valydumitru01/Burst/internal/world"
)

// Vertex is the layout bound by the pipeline: position, normal, material.
// Positions are local to the chunk; the draw transform carries its origin.
type Vertex struct {
	Position mgl32.Vec3
	Normal   mgl32.Vec3
	Material uint32
}

// Byte layout of Vertex and of one index.
const (
	VertexSize     = 28
	PositionOffset = 0
	NormalOffset   = 12
	MaterialOffset = 24
	IndexSize      = 4
)

// Mesh is the CPU-side geometry of one chunk. Each quad contributes four
// vertices and six indices. A mesh is never modified after extraction.
type Mesh struct {
	Coord    world.ChunkCoord
	Vertices []Vertex
	Indices  []uint32
}

// Empty reports whether there is nothing to draw.
func (m *Mesh) Empty() bool { return m == nil || len(m.Indices) == 0 }

// Quads returns the number of quads in the mesh.
func (m *Mesh) Quads() int { return len(m.Vertices) / 4 }

// VertexBytes views the vertex array as raw bytes for upload.
func (m *Mesh) VertexBytes() []byte {
	if len(m.Vertices) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&m.Vertices[0])), len(m.Vertices)*VertexSize)
}

// IndexBytes views the index array as raw bytes for upload.
func (m *Mesh) IndexBytes() []byte {
	if len(m.Indices) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&m.Indices[0])), len(m.Indices)*IndexSize)
}

// ByteSize is the total upload size of the mesh.
func (m *Mesh) ByteSize() int {
	return len(m.Vertices)*VertexSize + len(m.Indices)*IndexSize
}

// Area sums the surface area covered by the mesh's quads.
func (m *Mesh) Area() float32 {
	var area float32
	for q := 0; q+3 < len(m.Vertices); q += 4 {
		p0 := m.Vertices[q].Position
		e1 := m.Vertices[q+1].Position.Sub(p0)
		e2 := m.Vertices[q+3].Position.Sub(p0)
		area += e1.Cross(e2).Len()
	}
	return area
}
