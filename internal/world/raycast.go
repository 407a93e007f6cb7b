package world

import (
	"math"

	"github.com/valydumitru01/Burst/internal/profiling"

	"github.com/go-gl/mathgl/mgl32"
)

// MaxReach is the default pick distance used by the viewer.
const MaxReach = 8.0

// VoxelSource answers world-space voxel queries.
type VoxelSource interface {
	VoxelAt(wx, wy, wz int) (Material, bool)
}

// RaycastResult describes the first solid voxel along a ray.
type RaycastResult struct {
	Hit      [3]int
	Adjacent [3]int // empty voxel the ray passed through before Hit
	Face     Face
	Distance float32
	Found    bool
}

// Raycast walks the voxel grid from start along dir and stops at the first
// solid voxel within maxDist. Voxel (x,y,z) spans [x,x+1) on each axis.
// Voxels in missing chunks are treated as empty.
func Raycast(src VoxelSource, start, dir mgl32.Vec3, maxDist float32) RaycastResult {
	defer profiling.Track("world.Raycast")()
	var res RaycastResult
	if dir.Len() == 0 || maxDist <= 0 {
		return res
	}
	dir = dir.Normalize()

	var (
		cell  [3]int
		step  [3]int
		tMax  [3]float32
		tStep [3]float32
	)
	for a := range 3 {
		cell[a] = floorToInt(start[a])
		switch {
		case dir[a] > 0:
			step[a] = 1
			tStep[a] = 1 / dir[a]
			tMax[a] = (float32(cell[a]+1) - start[a]) * tStep[a]
		case dir[a] < 0:
			step[a] = -1
			tStep[a] = -1 / dir[a]
			tMax[a] = (start[a] - float32(cell[a])) * tStep[a]
		default:
			tMax[a] = math.MaxFloat32
			tStep[a] = math.MaxFloat32
		}
	}

	prev := cell
	entered := -1
	var t float32
	for t <= maxDist {
		if m, ok := src.VoxelAt(cell[0], cell[1], cell[2]); ok && m.Solid() {
			res.Hit = cell
			res.Adjacent = prev
			res.Distance = t
			res.Found = true
			if entered >= 0 {
				res.Face = enteredFace(entered, step[entered])
			}
			return res
		}
		a := 0
		if tMax[1] < tMax[a] {
			a = 1
		}
		if tMax[2] < tMax[a] {
			a = 2
		}
		prev = cell
		t = tMax[a]
		cell[a] += step[a]
		tMax[a] += tStep[a]
		entered = a
	}
	return res
}

// enteredFace is the face of the hit voxel the ray crossed.
func enteredFace(axis, step int) Face {
	f := Face(axis * 2)
	if step > 0 {
		// moving +axis enters through the -axis face
		f = f.Opposite()
	}
	return f
}
