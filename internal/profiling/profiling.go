// Package profiling accumulates per-frame stage timings and counters for the
// chunk pipeline.
package profiling

import (
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Frame collects stage durations and event counts between two Reset calls.
// Safe for concurrent use; workers may record into the same Frame as the
// owner thread.
type Frame struct {
	mu       sync.Mutex
	totals   map[string]time.Duration
	counters map[string]int64
}

// NewFrame returns an empty Frame.
func NewFrame() *Frame {
	return &Frame{
		totals:   make(map[string]time.Duration),
		counters: make(map[string]int64),
	}
}

var defaultFrame = NewFrame()

// Default returns the process-wide Frame used by Track.
func Default() *Frame { return defaultFrame }

// Track records elapsed time under name in the process-wide Frame.
// Usage: defer profiling.Track("streaming.Update")()
func Track(name string) func() { return defaultFrame.Track(name) }

// Track returns a stop function that adds the elapsed time to name.
func (f *Frame) Track(name string) func() {
	start := time.Now()
	return func() {
		d := time.Since(start)
		f.mu.Lock()
		f.totals[name] += d
		f.mu.Unlock()
	}
}

// Add increments counter name by delta.
func (f *Frame) Add(name string, delta int64) {
	f.mu.Lock()
	f.counters[name] += delta
	f.mu.Unlock()
}

// Count returns the current value of counter name.
func (f *Frame) Count(name string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counters[name]
}

// Reset clears timings and counters. Call at the start of each frame.
func (f *Frame) Reset() {
	f.mu.Lock()
	clear(f.totals)
	clear(f.counters)
	f.mu.Unlock()
}

// Durations returns a copy of the current stage totals.
func (f *Frame) Durations() map[string]time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]time.Duration, len(f.totals))
	for k, v := range f.totals {
		out[k] = v
	}
	return out
}

// TopN formats the n slowest stages, slowest first.
// Example: "streaming.Update:4.2ms, gpu.Upload:2.1ms"
func (f *Frame) TopN(n int) string {
	type stage struct {
		name string
		dur  time.Duration
	}
	totals := f.Durations()
	list := make([]stage, 0, len(totals))
	for k, v := range totals {
		list = append(list, stage{k, v})
	}
	slices.SortFunc(list, func(a, b stage) int {
		if a.dur != b.dur {
			if a.dur > b.dur {
				return -1
			}
			return 1
		}
		return strings.Compare(a.name, b.name)
	})
	n = min(n, len(list))

	var sb strings.Builder
	for i := range n {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(list[i].name)
		sb.WriteByte(':')
		sb.WriteString(formatMs(list[i].dur))
	}
	return sb.String()
}

// formatMs keeps one decimal and drops a trailing ".0".
func formatMs(d time.Duration) string {
	ms := float64(d.Microseconds()) / 1000.0
	s := strconv.FormatFloat(ms, 'f', 1, 64)
	return strings.TrimSuffix(s, ".0") + "ms"
}
