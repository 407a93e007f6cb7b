// Package workers runs CPU-bound chunk jobs on a pond worker pool and hands
// results back to a single owner.
package workers

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/alitto/pond/v2"
	"golang.org/x/sync/semaphore"
)

// Result pairs a job with its outcome.
type Result[J, R any] struct {
	Job   J
	Value R
	Err   error
}

// Pool runs fn for submitted jobs on a fixed number of workers. The number of
// jobs submitted but not yet collected is bounded; Submit never blocks.
type Pool[J, R any] struct {
	name    string
	fn      func(J) (R, error)
	pool    pond.Pool
	results chan Result[J, R]
	slots   *semaphore.Weighted // submitted and not yet collected
	pending atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// New starts a pool of workers goroutines (NumCPU when workers <= 0) that
// accepts up to capacity outstanding jobs.
func New[J, R any](name string, workers, capacity int, fn func(J) (R, error)) *Pool[J, R] {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	capacity = max(capacity, 1)
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool[J, R]{
		name:    name,
		fn:      fn,
		pool:    pond.NewPool(workers, pond.WithQueueSize(capacity)),
		results: make(chan Result[J, R], capacity),
		slots:   semaphore.NewWeighted(int64(capacity)),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Submit queues a job. It returns false when the pool is at capacity or shut
// down; the caller keeps the job and tries again on a later frame.
func (p *Pool[J, R]) Submit(job J) bool {
	if p.ctx.Err() != nil || !p.slots.TryAcquire(1) {
		return false
	}
	p.pending.Add(1)
	// the queue holds capacity tasks and slots bound it, so this never blocks
	p.pool.Submit(func() {
		if p.ctx.Err() != nil {
			return
		}
		// results has room for every slot
		p.results <- p.run(job)
	})
	return true
}

// Drain returns every result that is ready without blocking and frees their
// slots.
func (p *Pool[J, R]) Drain() []Result[J, R] {
	var out []Result[J, R]
	for {
		select {
		case r := <-p.results:
			p.release()
			out = append(out, r)
		default:
			return out
		}
	}
}

// Wait blocks until one result is ready or ctx is done.
func (p *Pool[J, R]) Wait(ctx context.Context) (Result[J, R], error) {
	select {
	case r := <-p.results:
		p.release()
		return r, nil
	case <-ctx.Done():
		var zero Result[J, R]
		return zero, ctx.Err()
	}
}

func (p *Pool[J, R]) release() {
	p.pending.Add(-1)
	p.slots.Release(1)
}

// Pending returns the number of jobs submitted and not yet collected.
func (p *Pool[J, R]) Pending() int { return int(p.pending.Load()) }

// run isolates a panicking job so siblings keep running.
func (p *Pool[J, R]) run(job J) (r Result[J, R]) {
	r.Job = job
	defer func() {
		if rec := recover(); rec != nil {
			r.Err = fmt.Errorf("%s worker: panic: %v", p.name, rec)
		}
	}()
	r.Value, r.Err = p.fn(job)
	return r
}

// Shutdown stops the workers. Jobs still queued are skipped.
func (p *Pool[J, R]) Shutdown() {
	p.once.Do(func() {
		p.cancel()
		p.pool.StopAndWait()
	})
}
