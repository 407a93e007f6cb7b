package config

// Generator names accepted by TerrainConfig.Generator.
const (
	GeneratorLayered   = "layered"
	GeneratorHeightmap = "heightmap"
	GeneratorFlat      = "flat"
)

// TerrainConfig holds the noise seed and parameters for terrain generation.
type TerrainConfig struct {
	Generator   string  `yaml:"generator"`
	Seed        int64   `yaml:"seed"`
	Scale       float64 `yaml:"scale"` // base noise frequency, per voxel
	Octaves     int     `yaml:"octaves"`
	Persistence float64 `yaml:"persistence"`
	Lacunarity  float64 `yaml:"lacunarity"`
	BaseHeight  int     `yaml:"base_height"` // world Y of the average surface
	Amplitude   float64 `yaml:"amplitude"`   // heightmap swing in voxels
	FlatHeight  int     `yaml:"flat_height"` // flat generator: solid below this world Y
	Caves       bool    `yaml:"caves"`
	Trees       bool    `yaml:"trees"`
}

// DefaultTerrain returns the layered generator defaults.
func DefaultTerrain() TerrainConfig {
	return TerrainConfig{
		Generator:   GeneratorLayered,
		Seed:        1337,
		Scale:       1.0 / 64.0,
		Octaves:     4,
		Persistence: 0.5,
		Lacunarity:  2.0,
		BaseHeight:  6,
		Amplitude:   32,
		FlatHeight:  2,
		Caves:       true,
		Trees:       true,
	}
}

func (t TerrainConfig) validate(invalid func(string, ...any) error) error {
	switch t.Generator {
	case GeneratorLayered, GeneratorHeightmap, GeneratorFlat:
	default:
		return invalid("terrain.generator %q is unknown", t.Generator)
	}
	if t.Octaves <= 0 || t.Octaves > 12 {
		return invalid("terrain.octaves must be in [1,12], got %d", t.Octaves)
	}
	if t.Scale <= 0 {
		return invalid("terrain.scale must be positive, got %v", t.Scale)
	}
	if t.Persistence <= 0 || t.Lacunarity <= 0 {
		return invalid("terrain.persistence and terrain.lacunarity must be positive")
	}
	return nil
}
