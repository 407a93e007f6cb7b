package world

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// ChunkCoord identifies a chunk in chunk space. The chunk covers world voxels
// [X*edge, (X+1)*edge) on each axis.
type ChunkCoord struct {
	X, Y, Z int
}

func (c ChunkCoord) String() string {
	return fmt.Sprintf("(%d,%d,%d)", c.X, c.Y, c.Z)
}

// Add returns c offset by d.
func (c ChunkCoord) Add(d ChunkCoord) ChunkCoord {
	return ChunkCoord{c.X + d.X, c.Y + d.Y, c.Z + d.Z}
}

// Neighbor returns the coordinate of the chunk sharing face f with c.
func (c ChunkCoord) Neighbor(f Face) ChunkCoord {
	return c.Add(f.Offset())
}

// Origin returns the world voxel position of the chunk's minimum corner.
func (c ChunkCoord) Origin(edge int) (x, y, z int) {
	return c.X * edge, c.Y * edge, c.Z * edge
}

// OriginVec is Origin as a float vector, for draw transforms.
func (c ChunkCoord) OriginVec(edge int) mgl32.Vec3 {
	x, y, z := c.Origin(edge)
	return mgl32.Vec3{float32(x), float32(y), float32(z)}
}

// ChunkAt returns the chunk containing world position p.
func ChunkAt(p mgl32.Vec3, edge int) ChunkCoord {
	return ChunkCoord{
		X: floorDiv(floorToInt(p.X()), edge),
		Y: floorDiv(floorToInt(p.Y()), edge),
		Z: floorDiv(floorToInt(p.Z()), edge),
	}
}

// SplitVoxel maps a world voxel position to its chunk and local coordinates.
func SplitVoxel(wx, wy, wz, edge int) (ChunkCoord, int, int, int) {
	c := ChunkCoord{floorDiv(wx, edge), floorDiv(wy, edge), floorDiv(wz, edge)}
	return c, floorMod(wx, edge), floorMod(wy, edge), floorMod(wz, edge)
}

func floorToInt(f float32) int {
	i := int(f)
	if f < 0 && float32(i) != f {
		i--
	}
	return i
}

// floorDiv rounds toward negative infinity, unlike Go's truncating division.
func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func floorMod(a, b int) int {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

// Face names one of the six axis-aligned directions.
type Face uint8

const (
	FacePosX Face = iota
	FaceNegX
	FacePosY
	FaceNegY
	FacePosZ
	FaceNegZ
)

// Faces lists all faces in canonical order.
var Faces = [6]Face{FacePosX, FaceNegX, FacePosY, FaceNegY, FacePosZ, FaceNegZ}

// Axis returns 0, 1 or 2 for X, Y or Z.
func (f Face) Axis() int { return int(f) / 2 }

// Positive reports whether the face points along the positive axis.
func (f Face) Positive() bool { return f%2 == 0 }

// Opposite returns the face pointing the other way on the same axis.
func (f Face) Opposite() Face { return f ^ 1 }

// Offset is the unit step in chunk space across the face.
func (f Face) Offset() ChunkCoord {
	var d [3]int
	if f.Positive() {
		d[f.Axis()] = 1
	} else {
		d[f.Axis()] = -1
	}
	return ChunkCoord{d[0], d[1], d[2]}
}

// Normal is the outward unit normal of the face.
func (f Face) Normal() mgl32.Vec3 {
	o := f.Offset()
	return mgl32.Vec3{float32(o.X), float32(o.Y), float32(o.Z)}
}

func (f Face) String() string {
	switch f {
	case FacePosX:
		return "+X"
	case FaceNegX:
		return "-X"
	case FacePosY:
		return "+Y"
	case FaceNegY:
		return "-Y"
	case FacePosZ:
		return "+Z"
	case FaceNegZ:
		return "-Z"
	}
	return fmt.Sprintf("Face(%d)", uint8(f))
}
