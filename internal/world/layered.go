package world

import (
	"math"

	"github.com/valydumitru01/Burst/internal/config"
)

// LayeredGenerator composes warped continental noise, ridged mountains and
// 3D density into terrain, then carves caves and scatters trees.
type LayeredGenerator struct {
	edge   int
	floorY int
	seed   int64
	freq   float64 // multiplier on the base frequencies, 1 at scale 1/64
	base   float64
	amp    float64
	caves  bool
	trees  bool

	persistence float64
	lacunarity  float64
	n0, n1, n2  Noise
}

const (
	maxSoilDepth   = 6
	steepSlope     = 1.8
	treeSpacing    = 9
	treeOffset     = 5
	treeChance     = 28 // out of 256
	canopyRadius   = 2
	canopyRadiusSq = 6
)

func NewLayeredGenerator(t config.TerrainConfig, edge, floorY int) *LayeredGenerator {
	return &LayeredGenerator{
		edge:        edge,
		floorY:      floorY,
		seed:        t.Seed,
		freq:        t.Scale * 64,
		base:        float64(t.BaseHeight),
		amp:         t.Amplitude,
		caves:       t.Caves,
		trees:       t.Trees,
		persistence: t.Persistence,
		lacunarity:  t.Lacunarity,
		n0:          NewNoise(t.Seed),
		n1:          NewNoise(t.Seed + 1),
		n2:          NewNoise(t.Seed + 2),
	}
}

func (g *LayeredGenerator) oct(n int) Octaves {
	return Octaves{Count: n, Persistence: g.persistence, Lacunarity: g.lacunarity}
}

// surface is the per-column part of the terrain.
type surface struct {
	height   float64 // world Y of the heightmap surface
	mountain float64 // 0 in lowlands, 1 on ridges
	steep    bool
}

func (g *LayeredGenerator) heightAt(x, z float64) (height, mountain float64) {
	f := g.freq
	// domain warp
	wx := Signed(g.n0.Fbm2(x*0.008*f, z*0.008*f, g.oct(4))) * 20
	wz := Signed(g.n1.Fbm2(x*0.008*f, z*0.008*f, g.oct(4))) * 20
	px, pz := x+wx, z+wz

	continental := g.n0.Fbm2(px*0.004*f, pz*0.004*f, g.oct(5))
	ridged := 1 - math.Abs(Signed(g.n1.Fbm2(px*0.012*f, pz*0.012*f, g.oct(5))))
	ridged = math.Pow(ridged, 3.5)
	mountain = smoothstep(0.45, 0.75, ridged)
	detail := Signed(g.n2.Fbm2(px*0.05*f, pz*0.05*f, g.oct(2))) * 3

	height = g.base + continental*g.amp*0.56 + ridged*mountain*g.amp*0.9 + detail
	return height, mountain
}

func (g *LayeredGenerator) column(wx, wz int) surface {
	x, z := float64(wx), float64(wz)
	h, m := g.heightAt(x, z)
	hx0, _ := g.heightAt(x-1, z)
	hx1, _ := g.heightAt(x+1, z)
	hz0, _ := g.heightAt(x, z-1)
	hz1, _ := g.heightAt(x, z+1)
	slope := math.Max(math.Abs(hx1-hx0), math.Abs(hz1-hz0)) / 2
	return surface{height: h, mountain: m, steep: slope > steepSlope}
}

// solidAt evaluates the terrain density, before caves.
func (g *LayeredGenerator) solidAt(wx, wy, wz int, s surface) bool {
	x, y, z := float64(wx), float64(wy), float64(wz)
	f := g.freq
	density := s.height - y
	if s.mountain > 0 {
		density += Signed(g.n1.Fbm3(x*0.035*f, y*0.035*f, z*0.035*f, g.oct(3))) * s.mountain * 6
	}
	density += Signed(g.n2.Fbm3(x*0.07*f, y*0.07*f, z*0.07*f, g.oct(2))) * 2
	return density > 0
}

func (g *LayeredGenerator) caveAt(wx, wy, wz int, s surface) bool {
	if !g.caves || wy <= g.floorY+4 || float64(wy) >= s.height-2 {
		return false
	}
	x, y, z := float64(wx), float64(wy), float64(wz)
	f := g.freq
	if g.n0.Fbm3(x*0.04*f, y*0.04*f, z*0.04*f, g.oct(2)) > 0.78 {
		return true
	}
	return math.Abs(Signed(g.n1.Fbm3(x*0.13*f, y*0.13*f, z*0.13*f, g.oct(3)))) < 0.08
}

func soilDepth(s surface) int {
	if s.steep {
		return 0
	}
	return min(int(2+(1-s.mountain)*4), maxSoilDepth)
}

func (g *LayeredGenerator) Generate(coord ChunkCoord) []Material {
	e := g.edge
	voxels := make([]Material, e*e*e)
	ox, oy, oz := coord.Origin(e)

	// solid samples extend above the chunk so soil depth sees the real surface
	span := e + maxSoilDepth + 1
	solid := make([]bool, span)
	// depth[k] counts solid voxels from k up to the first air, 0 for air
	depth := make([]int, span)

	// highest surface voxel per column, -1 if none
	tops := make([]int, e*e)

	for lz := range e {
		for lx := range e {
			wx, wz := ox+lx, oz+lz
			s := g.column(wx, wz)

			for k := range span {
				solid[k] = g.solidAt(wx, oy+k, wz, s)
			}
			run := maxSoilDepth + 1 // unknown above the span: assume deep
			for k := span - 1; k >= 0; k-- {
				if solid[k] {
					run++
				} else {
					run = 0
				}
				depth[k] = run
			}

			soil := soilDepth(s)
			grassy := !s.steep && s.mountain < 0.6
			top := -1
			for ly := range e {
				if !solid[ly] {
					continue
				}
				wy := oy + ly
				if g.caveAt(wx, wy, wz, s) {
					continue
				}
				m := Stone
				if grassy {
					switch d := depth[ly]; {
					case d == 1:
						m = Grass
					case d-1 <= soil:
						m = Dirt
					}
				}
				voxels[Index(e, lx, ly, lz)] = m
				if depth[ly] == 1 {
					top = ly
				}
			}
			tops[lz*e+lx] = top
		}
	}

	if g.trees {
		g.plantTrees(voxels, tops, ox, oy, oz)
	}
	return voxels
}

// plantTrees places trees on a world-aligned lattice. A tree is only planted
// when trunk and canopy fit inside this chunk, so no chunk depends on another.
func (g *LayeredGenerator) plantTrees(voxels []Material, tops []int, ox, oy, oz int) {
	e := g.edge
	for lz := canopyRadius; lz < e-canopyRadius; lz++ {
		for lx := canopyRadius; lx < e-canopyRadius; lx++ {
			wx, wz := ox+lx, oz+lz
			if floorMod(wx-treeOffset, treeSpacing) != 0 || floorMod(wz-treeOffset, treeSpacing) != 0 {
				continue
			}
			root := tops[lz*e+lx]
			if root < 0 || voxels[Index(e, lx, root, lz)] != Grass {
				continue
			}
			r := hash3(int64(wx), int64(oy+root), int64(wz), g.seed) & 255
			if r >= treeChance {
				continue
			}
			h := 6 + int(r&3)
			if root+h+canopyRadius >= e {
				continue
			}
			free := true
			for ly := root + 1; ly <= root+h+canopyRadius; ly++ {
				if voxels[Index(e, lx, ly, lz)] != Air {
					free = false
					break
				}
			}
			if !free {
				continue
			}

			for ly := root + 1; ly < root+h; ly++ {
				voxels[Index(e, lx, ly, lz)] = Wood
			}
			cy := root + h
			for dy := -canopyRadius; dy <= canopyRadius; dy++ {
				for dz := -canopyRadius; dz <= canopyRadius; dz++ {
					for dx := -canopyRadius; dx <= canopyRadius; dx++ {
						if dx*dx+dy*dy+dz*dz > canopyRadiusSq {
							continue
						}
						i := Index(e, lx+dx, cy+dy, lz+dz)
						if voxels[i] == Air {
							voxels[i] = Leaves
						}
					}
				}
			}
		}
	}
}
