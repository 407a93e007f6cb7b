package main

import (
	"time"

	"github.com/valydumitru01/Burst/internal/config"
)

// spinWindow is how early the limiter stops sleeping and starts spinning.
const spinWindow = 200 * time.Microsecond

// fpsLimiter paces the render loop to config.GetFPSLimit.
type fpsLimiter struct {
	next time.Time
}

// wait blocks until the next frame is due. A cap of zero returns at once.
func (f *fpsLimiter) wait() {
	limit := config.GetFPSLimit()
	if limit <= 0 {
		f.next = time.Time{}
		return
	}
	target := time.Second / time.Duration(limit)
	if f.next.IsZero() {
		f.next = time.Now().Add(target)
	} else {
		f.next = f.next.Add(target)
	}

	for {
		remaining := time.Until(f.next)
		if remaining <= 0 {
			break
		}
		if remaining > spinWindow {
			time.Sleep(remaining - spinWindow)
		}
	}

	// resync after a hitch instead of racing to catch up
	if late := -time.Until(f.next); late > target {
		f.next = time.Now().Add(target)
	}
}
