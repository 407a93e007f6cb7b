package streaming

import (
	"cmp"
	"slices"

	"github.com/valydumitru01/Burst/internal/config"
	"github.com/valydumitru01/Burst/internal/world"
)

// region is the set of chunk coordinates that should be loaded around a
// center.
type region struct {
	center world.ChunkCoord
	radius int
	metric string
	minY   int
	maxY   int
	set    map[world.ChunkCoord]struct{}
}

func within(metric string, d world.ChunkCoord, r int) bool {
	if metric == config.DistanceChebyshev {
		return max(abs(d.X), abs(d.Y), abs(d.Z)) <= r
	}
	return d.X*d.X+d.Y*d.Y+d.Z*d.Z <= r*r
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// distSq orders work nearest-first regardless of the eviction metric.
func distSq(a, b world.ChunkCoord) int {
	dx, dy, dz := a.X-b.X, a.Y-b.Y, a.Z-b.Z
	return dx*dx + dy*dy + dz*dz
}

func newRegion(center world.ChunkCoord, radius int, metric string, minY, maxY int) *region {
	r := &region{
		center: center,
		radius: radius,
		metric: metric,
		minY:   minY,
		maxY:   maxY,
		set:    make(map[world.ChunkCoord]struct{}),
	}
	lo := max(minY, center.Y-radius)
	hi := min(maxY, center.Y+radius)
	for y := lo; y <= hi; y++ {
		for z := center.Z - radius; z <= center.Z+radius; z++ {
			for x := center.X - radius; x <= center.X+radius; x++ {
				c := world.ChunkCoord{X: x, Y: y, Z: z}
				if within(metric, world.ChunkCoord{X: x - center.X, Y: y - center.Y, Z: z - center.Z}, radius) {
					r.set[c] = struct{}{}
				}
			}
		}
	}
	return r
}

func (r *region) contains(c world.ChunkCoord) bool {
	if r == nil {
		return false
	}
	_, ok := r.set[c]
	return ok
}

// sortNearest orders coords by distance to center, ties broken by
// coordinate so the order is reproducible.
func sortNearest(coords []world.ChunkCoord, center world.ChunkCoord) {
	slices.SortFunc(coords, func(a, b world.ChunkCoord) int {
		return cmp.Or(
			cmp.Compare(distSq(a, center), distSq(b, center)),
			cmp.Compare(a.Y, b.Y),
			cmp.Compare(a.Z, b.Z),
			cmp.Compare(a.X, b.X),
		)
	})
}
