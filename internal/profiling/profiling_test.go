package profiling

import (
	"strings"
	"testing"
	"time"
)

func TestFrameCountersAndReset(t *testing.T) {
	f := NewFrame()
	f.Add("uploads", 2)
	f.Add("uploads", 3)
	if got := f.Count("uploads"); got != 5 {
		t.Fatalf("Count = %d, want 5", got)
	}
	f.Track("stage")()
	f.Reset()
	if got := f.Count("uploads"); got != 0 {
		t.Fatalf("Count after Reset = %d, want 0", got)
	}
	if len(f.Durations()) != 0 {
		t.Fatal("durations survived Reset")
	}
}

func TestTopNOrdersSlowestFirst(t *testing.T) {
	f := NewFrame()
	f.totals["fast"] = 1 * time.Millisecond
	f.totals["slow"] = 4200 * time.Microsecond
	f.totals["mid"] = 2 * time.Millisecond

	got := f.TopN(2)
	if got != "slow:4.2ms, mid:2ms" {
		t.Fatalf("TopN(2) = %q", got)
	}
	if all := f.TopN(10); strings.Count(all, ",") != 2 {
		t.Fatalf("TopN(10) = %q, want three entries", all)
	}
}
