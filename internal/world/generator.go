package world

import (
	"fmt"
	"math"

	"github.com/valydumitru01/Burst/internal/config"
)

// Generator fills chunks from their coordinate alone. Implementations are
// pure: the same coordinate always yields the same grid, and calls for
// different chunks may run concurrently.
type Generator interface {
	// Generate returns a new edge³ grid for the chunk at coord.
	Generate(coord ChunkCoord) []Material
}

// NewGenerator builds the generator named by t. floorY is the world Y of the
// lowest voxel that can ever load.
func NewGenerator(t config.TerrainConfig, edge, floorY int) (Generator, error) {
	switch t.Generator {
	case config.GeneratorLayered:
		return NewLayeredGenerator(t, edge, floorY), nil
	case config.GeneratorHeightmap:
		return NewHeightmapGenerator(t, edge), nil
	case config.GeneratorFlat:
		return NewFlatGenerator(edge, t.FlatHeight, Stone), nil
	}
	return nil, fmt.Errorf("%w: unknown generator %q", config.ErrInvalid, t.Generator)
}

// FlatGenerator fills every voxel below a world height with one material.
type FlatGenerator struct {
	edge     int
	height   int // world Y; voxels with y < height are solid
	material Material
}

func NewFlatGenerator(edge, height int, m Material) *FlatGenerator {
	return &FlatGenerator{edge: edge, height: height, material: m}
}

func (g *FlatGenerator) Generate(coord ChunkCoord) []Material {
	e := g.edge
	voxels := make([]Material, e*e*e)
	_, baseY, _ := coord.Origin(e)
	top := min(g.height-baseY, e)
	for y := 0; y < top; y++ {
		for z := range e {
			for x := range e {
				voxels[Index(e, x, y, z)] = g.material
			}
		}
	}
	return voxels
}

// HeightmapGenerator is an octave value-noise heightmap: grass on top, a few
// voxels of dirt, stone below.
type HeightmapGenerator struct {
	edge       int
	noise      Noise
	octaves    Octaves
	scale      float64
	baseHeight int
	amp        float64
}

const heightmapDirtDepth = 3

func NewHeightmapGenerator(t config.TerrainConfig, edge int) *HeightmapGenerator {
	return &HeightmapGenerator{
		edge:       edge,
		noise:      NewNoise(t.Seed),
		octaves:    Octaves{Count: t.Octaves, Persistence: t.Persistence, Lacunarity: t.Lacunarity},
		scale:      t.Scale,
		baseHeight: t.BaseHeight,
		amp:        t.Amplitude,
	}
}

// HeightAt computes the world surface height (voxel Y) at world X,Z.
func (g *HeightmapGenerator) HeightAt(wx, wz int) int {
	n := g.noise.Fbm2(float64(wx)*g.scale, float64(wz)*g.scale, g.octaves)
	return int(math.Floor(float64(g.baseHeight) + n*g.amp))
}

func (g *HeightmapGenerator) Generate(coord ChunkCoord) []Material {
	e := g.edge
	voxels := make([]Material, e*e*e)
	ox, oy, oz := coord.Origin(e)
	for lz := range e {
		for lx := range e {
			height := g.HeightAt(ox+lx, oz+lz)
			top := min(height-oy, e-1)
			for ly := 0; ly <= top; ly++ {
				wy := oy + ly
				m := Stone
				switch {
				case wy == height:
					m = Grass
				case wy > height-heightmapDirtDepth:
					m = Dirt
				}
				voxels[Index(e, lx, ly, lz)] = m
			}
		}
	}
	return voxels
}
