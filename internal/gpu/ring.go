package gpu

import (
	"context"
	"fmt"
)

// retirement is work deferred until the frame that queued it has completed.
type retirement struct {
	buffers []BufferID
	handle  Handle // zero for bare buffers such as staging
	evicted bool   // report the chunk as reclaimed once freed
}

type frameSlot struct {
	frame   uint64
	retired []retirement
}

// frameRing tracks a fixed number of frames in flight. Frame F records into
// slot F mod N; anything retired during F is freed only once F is complete.
type frameRing struct {
	fence     Fence
	slots     []frameSlot
	frame     uint64 // frame being recorded, or last recorded
	recording bool
}

// newFrameRing returns a ring of n slots driven by fence.
func newFrameRing(n int, fence Fence) *frameRing {
	return &frameRing{fence: fence, slots: make([]frameSlot, max(n, 1))}
}

// Size returns the number of frames that may be in flight.
func (r *frameRing) Size() int { return len(r.slots) }

// Frame returns the current frame number, 0 before the first Begin.
func (r *frameRing) Frame() uint64 { return r.frame }

// Recording reports whether a frame is open.
func (r *frameRing) Recording() bool { return r.recording }

// Begin opens the next frame. It blocks until the slot's previous frame has
// completed, then returns every retirement whose frame is complete.
func (r *frameRing) Begin(ctx context.Context) (uint64, []retirement, error) {
	if r.recording {
		return r.frame, nil, fmt.Errorf("gpu: frame %d still recording", r.frame)
	}
	next := r.frame + 1
	n := uint64(len(r.slots))
	if next > n {
		if err := r.fence.Wait(ctx, next-n); err != nil {
			return r.frame, nil, err
		}
	}
	freed := r.collect(r.fence.Completed())

	s := &r.slots[next%n]
	s.frame = next
	s.retired = s.retired[:0]
	r.frame = next
	r.recording = true
	return next, freed, nil
}

// collect removes and returns retirements of every slot whose frame is at or
// below completed.
func (r *frameRing) collect(completed uint64) []retirement {
	var out []retirement
	for i := range r.slots {
		s := &r.slots[i]
		if s.frame == 0 || s.frame > completed || len(s.retired) == 0 {
			continue
		}
		out = append(out, s.retired...)
		s.retired = nil
	}
	return out
}

// Retire queues work in the current frame's slot.
func (r *frameRing) Retire(item retirement) error {
	if !r.recording {
		return ErrNotInFrame
	}
	s := &r.slots[r.frame%uint64(len(r.slots))]
	s.retired = append(s.retired, item)
	return nil
}

// End submits the current frame.
func (r *frameRing) End() error {
	if !r.recording {
		return ErrNotInFrame
	}
	r.recording = false
	return r.fence.Submit(r.frame)
}

// Poll returns retirements whose frames completed since the last call,
// without opening a frame.
func (r *frameRing) Poll() []retirement {
	return r.collect(r.fence.Completed())
}

// Pending counts retirements not yet freed.
func (r *frameRing) Pending() int {
	n := 0
	for _, s := range r.slots {
		n += len(s.retired)
	}
	return n
}

// Drain waits for the last submitted frame and returns everything left.
func (r *frameRing) Drain(ctx context.Context) ([]retirement, error) {
	if r.recording {
		return nil, fmt.Errorf("gpu: frame %d still recording", r.frame)
	}
	if r.frame > 0 {
		if err := r.fence.Wait(ctx, r.frame); err != nil {
			return nil, err
		}
	}
	return r.collect(r.frame), nil
}
