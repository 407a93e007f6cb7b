// Command burst streams procedural voxel terrain around a fly camera.
//
// With -headless it runs the same pipeline on the simulated GPU along a
// scripted flight and reports frame statistics.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/xlab/closer"

	"github.com/valydumitru01/Burst/internal/config"
)

func init() {
	// GL and glfw calls must stay on the main thread
	runtime.LockOSThread()
}

type options struct {
	configPath string
	headless   bool
	frames     int
	speed      float64
	vsync      bool
	fps        int
	verbose    bool
}

func parseFlags() (config.Config, options, error) {
	var opts options
	flagCfg := config.Default()

	flag.StringVar(&opts.configPath, "config", "", "YAML configuration file")
	flag.BoolVar(&opts.headless, "headless", false, "run on the simulated GPU without a window")
	flag.IntVar(&opts.frames, "frames", 1200, "frames to run in headless mode")
	flag.Float64Var(&opts.speed, "speed", 1.5, "headless flight speed in voxels per frame")
	flag.BoolVar(&opts.vsync, "vsync", true, "wait for vertical sync")
	flag.IntVar(&opts.fps, "fps", 0, "frame cap when vsync is off (0 = uncapped)")
	flag.BoolVar(&opts.verbose, "v", false, "debug logging")

	flag.IntVar(&flagCfg.Chunk.Edge, "edge", flagCfg.Chunk.Edge, "voxels per chunk edge")
	flag.IntVar(&flagCfg.Streaming.LoadRadius, "radius", flagCfg.Streaming.LoadRadius, "load radius in chunks")
	flag.StringVar(&flagCfg.Streaming.Distance, "distance", flagCfg.Streaming.Distance, "load distance metric: euclidean or chebyshev")
	flag.IntVar(&flagCfg.Streaming.Workers, "workers", flagCfg.Streaming.Workers, "generation and meshing workers (0 = all CPUs)")
	flag.IntVar(&flagCfg.GPU.FramesInFlight, "frames-in-flight", flagCfg.GPU.FramesInFlight, "frames the GPU may lag behind")
	flag.IntVar(&flagCfg.GPU.MemoryBudget, "memory-budget", flagCfg.GPU.MemoryBudget, "GPU memory budget in bytes (0 = unlimited)")
	flag.StringVar(&flagCfg.Terrain.Generator, "generator", flagCfg.Terrain.Generator, "terrain generator: layered, heightmap or flat")
	flag.Int64Var(&flagCfg.Terrain.Seed, "seed", flagCfg.Terrain.Seed, "terrain seed")
	flag.BoolVar(&flagCfg.Meshing.Greedy, "greedy", flagCfg.Meshing.Greedy, "merge coplanar faces")
	flag.Parse()

	explicit := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	cfg := config.Default()
	if opts.configPath != "" {
		var err error
		if cfg, err = config.Load(opts.configPath); err != nil {
			return cfg, opts, err
		}
	}
	config.Merge(&cfg, flagCfg, explicit)
	if err := cfg.Validate(); err != nil {
		return cfg, opts, err
	}
	return cfg, opts, nil
}

func main() {
	defer closer.Close()

	cfg, opts, err := parseFlags()
	if err != nil {
		fmt.Fprintln(os.Stderr, "burst:", err)
		os.Exit(2)
	}

	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)
	config.SetLoadRadius(cfg.Streaming.LoadRadius)

	run := runWindowed
	if opts.headless {
		run = runHeadless
	}
	if err := run(cfg, opts, log); err != nil {
		log.Error("burst stopped", "err", err)
		closer.Exit(1)
	}
}

// teardown releases resources in reverse order of creation.
type teardown []func()

func (t *teardown) push(fn func()) { *t = append(*t, fn) }

func (t *teardown) run() {
	for i := len(*t) - 1; i >= 0; i-- {
		(*t)[i]()
	}
	*t = nil
}
