package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure. Invalid configuration is
// fatal: callers must stop before any chunk is generated.
var ErrInvalid = errors.New("invalid configuration")

// Distance metrics accepted by StreamingConfig.Distance.
const (
	DistanceEuclidean = "euclidean"
	DistanceChebyshev = "chebyshev"
)

// Config is the full configuration surface of the chunk pipeline.
type Config struct {
	Chunk     ChunkConfig     `yaml:"chunk"`
	Streaming StreamingConfig `yaml:"streaming"`
	GPU       GPUConfig       `yaml:"gpu"`
	Terrain   TerrainConfig   `yaml:"terrain"`
	Meshing   MeshingConfig   `yaml:"meshing"`
	Cache     CacheConfig     `yaml:"cache"`
}

// ChunkConfig sizes chunks and bounds the vertical band of chunks that exist.
type ChunkConfig struct {
	Edge int `yaml:"edge"`  // voxels per chunk edge, power of two
	MinY int `yaml:"min_y"` // lowest chunk Y coordinate ever loaded
	MaxY int `yaml:"max_y"` // highest chunk Y coordinate ever loaded
}

// Budget caps the operations issued per frame.
type Budget struct {
	Generate int `yaml:"generate"`
	Mesh     int `yaml:"mesh"`
	Upload   int `yaml:"upload"`
}

// StreamingConfig drives the scheduler.
type StreamingConfig struct {
	LoadRadius int    `yaml:"load_radius"` // in chunks
	Distance   string `yaml:"distance"`
	Budget     Budget `yaml:"budget"`
	Workers    int    `yaml:"workers"`    // 0 = runtime.NumCPU()
	QueueSize  int    `yaml:"queue_size"` // outstanding jobs per worker pool
}

// GPUConfig drives the uploader and the frame-in-flight ring.
type GPUConfig struct {
	FramesInFlight       int `yaml:"frames_in_flight"`
	StagingThreshold     int `yaml:"staging_threshold"`       // bytes; larger meshes go through staging
	UploadBytesPerSecond int `yaml:"upload_bytes_per_second"` // 0 = unlimited
	MemoryBudget         int `yaml:"memory_budget"`           // simulated device only, 0 = unlimited
}

// MeshingConfig selects the extraction strategy.
type MeshingConfig struct {
	Greedy bool `yaml:"greedy"`
}

// CacheConfig sizes the recycle cache of evicted grids.
type CacheConfig struct {
	RecycleEntries int `yaml:"recycle_entries"` // 0 disables the cache
}

// Default returns a configuration that passes Validate.
func Default() Config {
	return Config{
		Chunk: ChunkConfig{
			Edge: 32,
			MinY: -1,
			MaxY: 2,
		},
		Streaming: StreamingConfig{
			LoadRadius: 8,
			Distance:   DistanceEuclidean,
			Budget:     Budget{Generate: 16, Mesh: 16, Upload: 8},
			QueueSize:  256,
		},
		GPU: GPUConfig{
			FramesInFlight:   3,
			StagingThreshold: 64 * 1024,
		},
		Terrain: DefaultTerrain(),
		Meshing: MeshingConfig{Greedy: true},
		Cache:   CacheConfig{RecycleEntries: 1024},
	}
}

// Load reads a YAML file on top of Default. Fields absent from the file keep
// their default value. The result is validated.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports the first violation found, wrapped in ErrInvalid.
func (c Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
	}

	if !IsPowerOfTwo(c.Chunk.Edge) || c.Chunk.Edge < 4 || c.Chunk.Edge > 128 {
		return invalid("chunk.edge must be a power of two in [4,128], got %d", c.Chunk.Edge)
	}
	if c.Chunk.MinY > c.Chunk.MaxY {
		return invalid("chunk.min_y (%d) above chunk.max_y (%d)", c.Chunk.MinY, c.Chunk.MaxY)
	}
	if c.Streaming.LoadRadius <= 0 {
		return invalid("streaming.load_radius must be positive, got %d", c.Streaming.LoadRadius)
	}
	switch c.Streaming.Distance {
	case DistanceEuclidean, DistanceChebyshev:
	default:
		return invalid("streaming.distance %q is not %q or %q", c.Streaming.Distance, DistanceEuclidean, DistanceChebyshev)
	}
	b := c.Streaming.Budget
	if b.Generate <= 0 || b.Mesh <= 0 || b.Upload <= 0 {
		return invalid("streaming.budget values must be positive, got %+v", b)
	}
	if c.Streaming.Workers < 0 {
		return invalid("streaming.workers must not be negative, got %d", c.Streaming.Workers)
	}
	if c.Streaming.QueueSize <= 0 {
		return invalid("streaming.queue_size must be positive, got %d", c.Streaming.QueueSize)
	}
	if c.GPU.FramesInFlight < 1 || c.GPU.FramesInFlight > 4 {
		return invalid("gpu.frames_in_flight must be in [1,4], got %d", c.GPU.FramesInFlight)
	}
	if c.GPU.StagingThreshold < 0 || c.GPU.UploadBytesPerSecond < 0 || c.GPU.MemoryBudget < 0 {
		return invalid("gpu sizes must not be negative")
	}
	if c.Cache.RecycleEntries < 0 {
		return invalid("cache.recycle_entries must not be negative, got %d", c.Cache.RecycleEntries)
	}
	return c.Terrain.validate(invalid)
}

// IsPowerOfTwo reports whether n is a positive power of two.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// Merge copies into cfg the values of fromFlags whose command-line flag was
// set explicitly, so flags win over the config file.
func Merge(cfg *Config, fromFlags Config, explicitFlags map[string]bool) {
	if explicitFlags["edge"] {
		cfg.Chunk.Edge = fromFlags.Chunk.Edge
	}
	if explicitFlags["radius"] {
		cfg.Streaming.LoadRadius = fromFlags.Streaming.LoadRadius
	}
	if explicitFlags["distance"] {
		cfg.Streaming.Distance = fromFlags.Streaming.Distance
	}
	if explicitFlags["workers"] {
		cfg.Streaming.Workers = fromFlags.Streaming.Workers
	}
	if explicitFlags["frames-in-flight"] {
		cfg.GPU.FramesInFlight = fromFlags.GPU.FramesInFlight
	}
	if explicitFlags["memory-budget"] {
		cfg.GPU.MemoryBudget = fromFlags.GPU.MemoryBudget
	}
	if explicitFlags["generator"] {
		cfg.Terrain.Generator = fromFlags.Terrain.Generator
	}
	if explicitFlags["seed"] {
		cfg.Terrain.Seed = fromFlags.Terrain.Seed
	}
	if explicitFlags["greedy"] {
		cfg.Meshing.Greedy = fromFlags.Meshing.Greedy
	}
}
