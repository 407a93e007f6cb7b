package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(c *Config){
		"edge not power of two": func(c *Config) { c.Chunk.Edge = 24 },
		"edge too small":        func(c *Config) { c.Chunk.Edge = 2 },
		"zero load radius":      func(c *Config) { c.Streaming.LoadRadius = 0 },
		"unknown distance":      func(c *Config) { c.Streaming.Distance = "manhattan" },
		"zero upload budget":    func(c *Config) { c.Streaming.Budget.Upload = 0 },
		"no frames in flight":   func(c *Config) { c.GPU.FramesInFlight = 0 },
		"inverted y band":       func(c *Config) { c.Chunk.MinY, c.Chunk.MaxY = 3, 1 },
		"unknown generator":     func(c *Config) { c.Terrain.Generator = "islands" },
		"zero octaves":          func(c *Config) { c.Terrain.Octaves = 0 },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(&cfg)
		err := cfg.Validate()
		if err == nil {
			t.Errorf("%s: expected error, got nil", name)
			continue
		}
		if !errors.Is(err, ErrInvalid) {
			t.Errorf("%s: error %v does not wrap ErrInvalid", name, err)
		}
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "burst.yaml")
	body := []byte("chunk:\n  edge: 16\nstreaming:\n  load_radius: 4\nterrain:\n  generator: flat\n  seed: 7\n")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Chunk.Edge != 16 {
		t.Errorf("edge = %d, want 16", cfg.Chunk.Edge)
	}
	if cfg.Streaming.LoadRadius != 4 {
		t.Errorf("load radius = %d, want 4", cfg.Streaming.LoadRadius)
	}
	if cfg.Terrain.Generator != GeneratorFlat || cfg.Terrain.Seed != 7 {
		t.Errorf("terrain = %+v", cfg.Terrain)
	}
	// untouched fields keep defaults
	if cfg.GPU.FramesInFlight != Default().GPU.FramesInFlight {
		t.Errorf("frames in flight = %d, want default", cfg.GPU.FramesInFlight)
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "burst.yaml")
	if err := os.WriteFile(path, []byte("chunk:\n  edge: 30\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestSetLoadRadiusClamps(t *testing.T) {
	prev := GetLoadRadius()
	defer SetLoadRadius(prev)

	if got := SetLoadRadius(0); got != minLoadRadius {
		t.Errorf("SetLoadRadius(0) = %d, want %d", got, minLoadRadius)
	}
	if got := SetLoadRadius(1000); got != maxLoadRadius {
		t.Errorf("SetLoadRadius(1000) = %d, want %d", got, maxLoadRadius)
	}
	SetLoadRadius(12)
	if got := GetLoadRadius(); got != 12 {
		t.Errorf("GetLoadRadius() = %d, want 12", got)
	}
}

func TestMergeOnlyExplicitFlags(t *testing.T) {
	fromFile := Default()
	fromFile.Streaming.LoadRadius = 12
	fromFile.Terrain.Seed = 7

	flags := Default()
	flags.Streaming.LoadRadius = 3
	flags.Terrain.Seed = 99
	flags.Meshing.Greedy = false

	cfg := fromFile
	Merge(&cfg, flags, map[string]bool{"radius": true, "greedy": true})

	if cfg.Streaming.LoadRadius != 3 {
		t.Errorf("radius = %d, want flag value 3", cfg.Streaming.LoadRadius)
	}
	if cfg.Meshing.Greedy {
		t.Error("greedy flag was not applied")
	}
	if cfg.Terrain.Seed != 7 {
		t.Errorf("seed = %d, want file value 7", cfg.Terrain.Seed)
	}
}
