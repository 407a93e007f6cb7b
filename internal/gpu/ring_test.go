package gpu

import (
	"context"
	"errors"
	"testing"
	"time"
)

// manualFence completes frames only when told to.
type manualFence struct {
	submitted, completed uint64
}

func (f *manualFence) Submit(frame uint64) error {
	f.submitted = frame
	return nil
}

func (f *manualFence) Completed() uint64 { return f.completed }

func (f *manualFence) Wait(ctx context.Context, frame uint64) error {
	if f.completed >= frame {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestRingFreesOnlyAfterCompletion(t *testing.T) {
	fence := &manualFence{}
	r := newFrameRing(2, fence)
	ctx := context.Background()

	f1, freed, err := r.Begin(ctx)
	if err != nil || f1 != 1 || len(freed) != 0 {
		t.Fatalf("Begin = %d, %v, %v", f1, freed, err)
	}
	if err := r.Retire(retirement{buffers: []BufferID{7}}); err != nil {
		t.Fatal(err)
	}
	if err := r.End(); err != nil {
		t.Fatal(err)
	}

	// frame 2 fits in the ring without waiting; frame 1 is not complete yet
	if _, freed, _ := r.Begin(ctx); len(freed) != 0 {
		t.Fatalf("freed %v before frame 1 completed", freed)
	}
	r.End()

	fence.completed = 1
	f3, freed, err := r.Begin(ctx)
	if err != nil || f3 != 3 {
		t.Fatalf("Begin = %d, %v", f3, err)
	}
	if len(freed) != 1 || freed[0].buffers[0] != 7 {
		t.Fatalf("freed = %v, want buffer 7", freed)
	}
	r.End()
}

func TestRingBlocksWhenFull(t *testing.T) {
	fence := &manualFence{}
	r := newFrameRing(2, fence)
	for range 2 {
		if _, _, err := r.Begin(context.Background()); err != nil {
			t.Fatal(err)
		}
		r.End()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, _, err := r.Begin(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("third Begin with nothing complete: got %v, want deadline", err)
	}
	if r.Recording() {
		t.Fatal("failed Begin left a frame open")
	}
}

func TestRingRejectsWorkOutsideFrame(t *testing.T) {
	r := newFrameRing(3, &manualFence{})
	if err := r.Retire(retirement{}); !errors.Is(err, ErrNotInFrame) {
		t.Fatalf("Retire outside frame: %v", err)
	}
	if err := r.End(); !errors.Is(err, ErrNotInFrame) {
		t.Fatalf("End outside frame: %v", err)
	}
}

func TestRingDrain(t *testing.T) {
	fence := &manualFence{}
	r := newFrameRing(3, fence)
	r.Begin(context.Background())
	r.Retire(retirement{buffers: []BufferID{1, 2}})
	r.End()
	if r.Pending() != 1 {
		t.Fatalf("Pending = %d, want 1", r.Pending())
	}
	fence.completed = 1
	left, err := r.Drain(context.Background())
	if err != nil || len(left) != 1 {
		t.Fatalf("Drain = %v, %v", left, err)
	}
	if r.Pending() != 0 {
		t.Fatal("Drain left retirements behind")
	}
}

func TestArenaGenerations(t *testing.T) {
	var a arena
	h1 := a.alloc(resource{vertexCount: 4})
	a.release(h1)
	h2 := a.alloc(resource{vertexCount: 8})
	if h1.index != h2.index {
		t.Fatalf("slot not reused: %v then %v", h1, h2)
	}
	if _, err := a.get(h1); !errors.Is(err, ErrStaleHandle) {
		t.Fatalf("stale handle resolved: %v", err)
	}
	r, err := a.get(h2)
	if err != nil || r.vertexCount != 8 {
		t.Fatalf("get(h2) = %+v, %v", r, err)
	}
	if _, err := a.get(Handle{}); !errors.Is(err, ErrStaleHandle) {
		t.Fatal("zero handle resolved")
	}
}
