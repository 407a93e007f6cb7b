// Package gpu owns per-chunk GPU buffers: staged uploads, the frame-in-flight
// ring and deferred retirement of buffers that in-flight frames may read.
package gpu

import (
	"context"
	"errors"
)

var (
	// ErrOutOfMemory is a recoverable allocation failure. The caller keeps
	// the chunk Meshed and retries on a later frame.
	ErrOutOfMemory = errors.New("gpu: out of memory")
	// ErrThrottled means the upload bandwidth budget is spent for now.
	ErrThrottled = errors.New("gpu: upload throttled")
	// ErrDeviceLost is fatal.
	ErrDeviceLost = errors.New("gpu: device lost")
	// ErrNotInFrame is returned for work issued outside BeginFrame/EndFrame.
	ErrNotInFrame = errors.New("gpu: no frame is being recorded")
	// ErrStaleHandle is returned for a handle whose resource was retired.
	ErrStaleHandle = errors.New("gpu: stale mesh handle")
)

// BufferID names a device buffer. Zero is never a valid buffer.
type BufferID uint64

// Usage says how a buffer is bound.
type Usage uint8

const (
	UsageVertex Usage = iota
	UsageIndex
	UsageStaging
)

func (u Usage) String() string {
	switch u {
	case UsageVertex:
		return "vertex"
	case UsageIndex:
		return "index"
	case UsageStaging:
		return "staging"
	}
	return "unknown"
}

// Memory selects where a buffer lives.
type Memory uint8

const (
	// MemoryHostVisible can be written by the CPU directly.
	MemoryHostVisible Memory = iota
	// MemoryDeviceLocal is only filled through CopyBuffer.
	MemoryDeviceLocal
)

// BufferDesc describes a buffer to create.
type BufferDesc struct {
	Size   int
	Usage  Usage
	Memory Memory
}

// Device is the buffer surface the uploader needs from a graphics API.
// All methods are called from the submission thread.
type Device interface {
	// CreateBuffer allocates a buffer. Allocation failure wraps
	// ErrOutOfMemory.
	CreateBuffer(desc BufferDesc) (BufferID, error)
	// WriteBuffer fills a host-visible buffer from the start.
	WriteBuffer(frame uint64, id BufferID, data []byte) error
	// CopyBuffer records a transfer of size bytes from src to dst, ordered
	// before any draw recorded later in the same frame.
	CopyBuffer(frame uint64, src, dst BufferID, size int) error
	// DestroyBuffer frees a buffer. The caller guarantees no frame that
	// used it is still in flight.
	DestroyBuffer(id BufferID) error
}

// Fence is the frame completion surface of the presentation layer. Frames are
// numbered from 1; completion is monotonic, so frame F complete implies every
// earlier frame is complete.
type Fence interface {
	// Submit hands the work recorded for frame to the GPU.
	Submit(frame uint64) error
	// Completed returns the newest frame known to be complete, 0 if none.
	Completed() uint64
	// Wait blocks until frame has completed or ctx is done.
	Wait(ctx context.Context, frame uint64) error
}
