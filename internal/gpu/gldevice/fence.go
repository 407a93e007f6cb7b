package gldevice

import (
	"context"
	"fmt"

	"github.com/go-gl/gl/v4.1-core/gl"

	"github.com/valydumitru01/Burst/internal/gpu"
)

// waitSlice bounds one ClientWaitSync so Wait can observe ctx.
const waitSlice = uint64(2_000_000) // ns

type syncStatus int

const (
	syncPending syncStatus = iota
	syncSignaled
	syncFailed
)

// syncAPI is the slice of GL sync objects the fence needs.
type syncAPI interface {
	fence() uintptr
	wait(s uintptr, timeout uint64) syncStatus
	remove(s uintptr)
}

type glSync struct{}

func (glSync) fence() uintptr {
	s := gl.FenceSync(gl.SYNC_GPU_COMMANDS_COMPLETE, 0)
	gl.Flush()
	return s
}

func (glSync) wait(s uintptr, timeout uint64) syncStatus {
	switch gl.ClientWaitSync(s, gl.SYNC_FLUSH_COMMANDS_BIT, timeout) {
	case gl.ALREADY_SIGNALED, gl.CONDITION_SATISFIED:
		return syncSignaled
	case gl.TIMEOUT_EXPIRED:
		return syncPending
	}
	return syncFailed
}

func (glSync) remove(s uintptr) { gl.DeleteSync(s) }

type pendingSync struct {
	frame uint64
	sync  uintptr
}

// syncQueue keeps one sync object per submitted frame, oldest first.
type syncQueue struct {
	api     syncAPI
	pending []pendingSync
	done    uint64
	lost    bool
}

func newSyncQueue(api syncAPI) *syncQueue {
	return &syncQueue{api: api}
}

func (q *syncQueue) submit(frame uint64) error {
	if q.lost {
		return gpu.ErrDeviceLost
	}
	if n := len(q.pending); n > 0 && q.pending[n-1].frame >= frame {
		return fmt.Errorf("gl: frame %d submitted after %d", frame, q.pending[n-1].frame)
	}
	q.pending = append(q.pending, pendingSync{frame: frame, sync: q.api.fence()})
	return nil
}

// poll retires signaled syncs from the front of the queue.
func (q *syncQueue) poll(timeout uint64) {
	for len(q.pending) > 0 {
		p := q.pending[0]
		switch q.api.wait(p.sync, timeout) {
		case syncPending:
			return
		case syncFailed:
			q.lost = true
			return
		}
		q.api.remove(p.sync)
		q.done = p.frame
		q.pending = q.pending[1:]
		timeout = 0
	}
}

func (q *syncQueue) completed() uint64 {
	q.poll(0)
	return q.done
}

func (q *syncQueue) wait(ctx context.Context, frame uint64) error {
	for {
		if q.lost {
			return gpu.ErrDeviceLost
		}
		if q.done >= frame {
			return nil
		}
		if len(q.pending) == 0 || q.pending[len(q.pending)-1].frame < frame {
			return fmt.Errorf("gl: wait for unsubmitted frame %d", frame)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		q.poll(waitSlice)
	}
}

// Wait blocks until frame's sync object has signaled.
func (d *Device) Wait(ctx context.Context, frame uint64) error {
	return d.fences.wait(ctx, frame)
}

var _ gpu.Fence = (*Device)(nil)
