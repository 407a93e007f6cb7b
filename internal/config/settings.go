package config

import "sync"

const (
	minLoadRadius = 1
	maxLoadRadius = 64
)

// RuntimeSettings holds values that may change while the pipeline runs.
type RuntimeSettings struct {
	mu         sync.RWMutex
	loadRadius int // in chunks
	fpsLimit   int // 0 means uncapped
}

var globalRuntimeSettings = &RuntimeSettings{
	loadRadius: Default().Streaming.LoadRadius,
}

// GetLoadRadius returns the current load radius in chunks
func GetLoadRadius() int {
	globalRuntimeSettings.mu.RLock()
	defer globalRuntimeSettings.mu.RUnlock()
	return globalRuntimeSettings.loadRadius
}

// SetLoadRadius sets the load radius in chunks, clamped to a usable range.
// It returns the value actually stored.
func SetLoadRadius(radius int) int {
	globalRuntimeSettings.mu.Lock()
	defer globalRuntimeSettings.mu.Unlock()

	radius = max(radius, minLoadRadius)
	radius = min(radius, maxLoadRadius)

	globalRuntimeSettings.loadRadius = radius
	return radius
}

// GetFPSLimit returns the frame cap; 0 means uncapped.
func GetFPSLimit() int {
	globalRuntimeSettings.mu.RLock()
	defer globalRuntimeSettings.mu.RUnlock()
	return globalRuntimeSettings.fpsLimit
}

// SetFPSLimit sets the frame cap. Negative values disable it.
func SetFPSLimit(limit int) {
	globalRuntimeSettings.mu.Lock()
	defer globalRuntimeSettings.mu.Unlock()
	globalRuntimeSettings.fpsLimit = max(limit, 0)
}
