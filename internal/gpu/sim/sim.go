// Package sim is an in-memory GPU: buffers are byte slices and frame
// completion is driven by the caller or by a fixed lag. It records every use
// of a buffer per frame and flags frees or writes that race an in-flight
// frame, which makes it the harness for lifetime tests.
package sim

import (
	"context"
	"fmt"
	"sync"

	"github.com/valydumitru01/Burst/internal/gpu"
)

// Violation describes a buffer touched while a frame using it was in flight.
type Violation struct {
	Buffer    gpu.BufferID
	Op        string
	LastUse   uint64
	Completed uint64
}

func (v Violation) String() string {
	return fmt.Sprintf("%s of buffer %d last used in frame %d, completed %d", v.Op, v.Buffer, v.LastUse, v.Completed)
}

type buffer struct {
	desc    gpu.BufferDesc
	data    []byte
	lastUse uint64
}

// Device implements gpu.Device and gpu.Fence.
type Device struct {
	mu sync.Mutex

	budget  int // bytes, 0 = unlimited
	used    int
	nextID  gpu.BufferID
	buffers map[gpu.BufferID]*buffer
	failN   int // fail the next n allocations

	// lag < 0 means frames only complete through Complete
	lag       int
	submitted uint64
	completed uint64
	changed   chan struct{}
	lost      bool

	violations []Violation
	created    int
	destroyed  int
}

// New returns a device with a memory budget in bytes (0 = unlimited) whose
// frames complete only when Complete is called.
func New(budget int) *Device {
	return &Device{
		budget:  budget,
		buffers: make(map[gpu.BufferID]*buffer),
		lag:     -1,
		changed: make(chan struct{}),
	}
}

// NewAuto returns a device where submitting frame F completes frame F-lag,
// like a GPU running lag frames behind.
func NewAuto(budget, lag int) *Device {
	d := New(budget)
	d.lag = max(lag, 0)
	return d
}

func (d *Device) CreateBuffer(desc gpu.BufferDesc) (gpu.BufferID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return 0, gpu.ErrDeviceLost
	}
	if d.failN > 0 {
		d.failN--
		return 0, fmt.Errorf("sim: injected failure: %w", gpu.ErrOutOfMemory)
	}
	if desc.Size <= 0 {
		return 0, fmt.Errorf("sim: buffer size %d", desc.Size)
	}
	if d.budget > 0 && d.used+desc.Size > d.budget {
		return 0, fmt.Errorf("sim: %d of %d bytes in use, need %d: %w", d.used, d.budget, desc.Size, gpu.ErrOutOfMemory)
	}
	d.nextID++
	d.buffers[d.nextID] = &buffer{desc: desc, data: make([]byte, desc.Size)}
	d.used += desc.Size
	d.created++
	return d.nextID, nil
}

// touch marks b as used by frame, flagging op if an older in-flight frame
// still reads it.
func (d *Device) touch(id gpu.BufferID, b *buffer, frame uint64, op string) {
	if b.lastUse > d.completed && b.lastUse < frame {
		d.violations = append(d.violations, Violation{Buffer: id, Op: op, LastUse: b.lastUse, Completed: d.completed})
	}
	b.lastUse = max(b.lastUse, frame)
}

func (d *Device) WriteBuffer(frame uint64, id gpu.BufferID, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buffers[id]
	if !ok {
		return fmt.Errorf("sim: write to unknown buffer %d", id)
	}
	if b.desc.Memory != gpu.MemoryHostVisible {
		return fmt.Errorf("sim: buffer %d is not host visible", id)
	}
	if len(data) > len(b.data) {
		return fmt.Errorf("sim: write of %d bytes into %d-byte buffer %d", len(data), len(b.data), id)
	}
	d.touch(id, b, frame, "write")
	copy(b.data, data)
	return nil
}

func (d *Device) CopyBuffer(frame uint64, src, dst gpu.BufferID, size int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok1 := d.buffers[src]
	t, ok2 := d.buffers[dst]
	if !ok1 || !ok2 {
		return fmt.Errorf("sim: copy %d -> %d: unknown buffer", src, dst)
	}
	if size > len(s.data) || size > len(t.data) {
		return fmt.Errorf("sim: copy of %d bytes exceeds buffer size", size)
	}
	d.touch(src, s, frame, "copy source")
	d.touch(dst, t, frame, "copy destination")
	copy(t.data[:size], s.data[:size])
	return nil
}

func (d *Device) DestroyBuffer(id gpu.BufferID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buffers[id]
	if !ok {
		return fmt.Errorf("sim: destroy of unknown buffer %d", id)
	}
	if b.lastUse > d.completed {
		d.violations = append(d.violations, Violation{Buffer: id, Op: "destroy", LastUse: b.lastUse, Completed: d.completed})
	}
	d.used -= b.desc.Size
	delete(d.buffers, id)
	d.destroyed++
	return nil
}

// Use records that frame reads the given buffers, as a draw would.
func (d *Device) Use(frame uint64, ids ...gpu.BufferID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, id := range ids {
		if b, ok := d.buffers[id]; ok {
			b.lastUse = max(b.lastUse, frame)
		} else {
			d.violations = append(d.violations, Violation{Buffer: id, Op: "use of freed buffer", Completed: d.completed})
		}
	}
}

// Contents returns a copy of a buffer's bytes.
func (d *Device) Contents(id gpu.BufferID) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buffers[id]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), b.data...), true
}

// Submit implements gpu.Fence.
func (d *Device) Submit(frame uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return gpu.ErrDeviceLost
	}
	d.submitted = max(d.submitted, frame)
	if d.lag >= 0 && frame > uint64(d.lag) {
		d.completeLocked(frame - uint64(d.lag))
	}
	return nil
}

// Completed implements gpu.Fence.
func (d *Device) Completed() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.completed
}

// Wait implements gpu.Fence. In manual mode it blocks until Complete covers
// frame.
func (d *Device) Wait(ctx context.Context, frame uint64) error {
	for {
		d.mu.Lock()
		if d.lost {
			d.mu.Unlock()
			return gpu.ErrDeviceLost
		}
		if d.completed >= frame {
			d.mu.Unlock()
			return nil
		}
		if d.lag >= 0 && frame <= d.submitted {
			// a lagging GPU finishes whatever it was given when waited on
			d.completeLocked(frame)
			d.mu.Unlock()
			return nil
		}
		ch := d.changed
		d.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Complete marks every submitted frame up to frame as finished.
func (d *Device) Complete(frame uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.completeLocked(min(frame, d.submitted))
}

func (d *Device) completeLocked(frame uint64) {
	if frame <= d.completed {
		return
	}
	d.completed = frame
	close(d.changed)
	d.changed = make(chan struct{})
}

// FailAllocations makes the next n CreateBuffer calls fail with
// gpu.ErrOutOfMemory.
func (d *Device) FailAllocations(n int) {
	d.mu.Lock()
	d.failN = n
	d.mu.Unlock()
}

// SetBudget changes the memory budget.
func (d *Device) SetBudget(bytes int) {
	d.mu.Lock()
	d.budget = bytes
	d.mu.Unlock()
}

// Lose simulates device loss; every later call fails with gpu.ErrDeviceLost.
func (d *Device) Lose() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lost = true
	close(d.changed)
	d.changed = make(chan struct{})
}

// Violations returns every lifetime violation seen so far.
func (d *Device) Violations() []Violation {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Violation(nil), d.violations...)
}

// Stats reports live buffers and bytes.
func (d *Device) Stats() (live, bytes, created, destroyed int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.buffers), d.used, d.created, d.destroyed
}

var (
	_ gpu.Device = (*Device)(nil)
	_ gpu.Fence  = (*Device)(nil)
)
