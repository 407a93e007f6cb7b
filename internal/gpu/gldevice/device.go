// Package gldevice implements gpu.Device and gpu.Fence on OpenGL 4.1 core.
// Every method must be called on the thread that owns the GL context.
package gldevice

import (
	"fmt"
	"log/slog"
	"unsafe"

	"github.com/go-gl/gl/v4.1-core/gl"

	"github.com/valydumitru01/Burst/internal/gpu"
)

type buffer struct {
	name uint32
	desc gpu.BufferDesc
}

// Device allocates GL buffer objects. GL has no explicit memory types:
// host-visible buffers are hinted DYNAMIC_DRAW and device-local ones
// STATIC_DRAW so the driver places them accordingly.
type Device struct {
	log     *slog.Logger
	nextID  gpu.BufferID
	buffers map[gpu.BufferID]*buffer
	bytes   int
	budget  int
	fences  *syncQueue
}

// New returns a device for the current context. budget caps allocated bytes
// (0 = whatever the driver gives).
func New(budget int, log *slog.Logger) *Device {
	if log == nil {
		log = slog.Default()
	}
	return &Device{
		log:     log.With("component", "gldevice"),
		buffers: make(map[gpu.BufferID]*buffer),
		budget:  budget,
		fences:  newSyncQueue(glSync{}),
	}
}

func usageHint(desc gpu.BufferDesc) uint32 {
	switch {
	case desc.Usage == gpu.UsageStaging:
		return gl.STREAM_DRAW
	case desc.Memory == gpu.MemoryDeviceLocal:
		return gl.STATIC_DRAW
	}
	return gl.DYNAMIC_DRAW
}

// checkError drains the GL error queue and maps it onto gpu errors.
func checkError(op string) error {
	var first uint32
	for {
		e := gl.GetError()
		if e == gl.NO_ERROR {
			break
		}
		if first == 0 {
			first = e
		}
	}
	switch first {
	case 0:
		return nil
	case gl.OUT_OF_MEMORY:
		return fmt.Errorf("gl %s: %w", op, gpu.ErrOutOfMemory)
	}
	return fmt.Errorf("gl %s: error 0x%x", op, first)
}

func (d *Device) CreateBuffer(desc gpu.BufferDesc) (gpu.BufferID, error) {
	if desc.Size <= 0 {
		return 0, fmt.Errorf("gl: buffer size %d", desc.Size)
	}
	if d.budget > 0 && d.bytes+desc.Size > d.budget {
		return 0, fmt.Errorf("gl: %d of %d bytes in use: %w", d.bytes, d.budget, gpu.ErrOutOfMemory)
	}
	var name uint32
	gl.GenBuffers(1, &name)
	gl.BindBuffer(gl.COPY_WRITE_BUFFER, name)
	gl.BufferData(gl.COPY_WRITE_BUFFER, desc.Size, nil, usageHint(desc))
	gl.BindBuffer(gl.COPY_WRITE_BUFFER, 0)
	if err := checkError("BufferData"); err != nil {
		gl.DeleteBuffers(1, &name)
		return 0, err
	}
	d.nextID++
	d.buffers[d.nextID] = &buffer{name: name, desc: desc}
	d.bytes += desc.Size
	return d.nextID, nil
}

func (d *Device) lookup(id gpu.BufferID) (*buffer, error) {
	b, ok := d.buffers[id]
	if !ok {
		return nil, fmt.Errorf("gl: unknown buffer %d", id)
	}
	return b, nil
}

// WriteBuffer maps the buffer and copies data in. The uploader never writes
// a buffer an in-flight frame reads, so the map is unsynchronized.
func (d *Device) WriteBuffer(frame uint64, id gpu.BufferID, data []byte) error {
	b, err := d.lookup(id)
	if err != nil {
		return err
	}
	if len(data) > b.desc.Size {
		return fmt.Errorf("gl: write of %d bytes into %d byte buffer", len(data), b.desc.Size)
	}
	if len(data) == 0 {
		return nil
	}
	gl.BindBuffer(gl.COPY_WRITE_BUFFER, b.name)
	flags := uint32(gl.MAP_WRITE_BIT | gl.MAP_INVALIDATE_BUFFER_BIT | gl.MAP_UNSYNCHRONIZED_BIT)
	ptr := gl.MapBufferRange(gl.COPY_WRITE_BUFFER, 0, len(data), flags)
	if ptr != nil {
		copy(unsafe.Slice((*byte)(ptr), len(data)), data)
		gl.UnmapBuffer(gl.COPY_WRITE_BUFFER)
	} else {
		gl.BufferSubData(gl.COPY_WRITE_BUFFER, 0, len(data), gl.Ptr(data))
	}
	gl.BindBuffer(gl.COPY_WRITE_BUFFER, 0)
	return checkError("write buffer")
}

func (d *Device) CopyBuffer(frame uint64, src, dst gpu.BufferID, size int) error {
	s, err := d.lookup(src)
	if err != nil {
		return err
	}
	t, err := d.lookup(dst)
	if err != nil {
		return err
	}
	if size > s.desc.Size || size > t.desc.Size {
		return fmt.Errorf("gl: copy of %d bytes exceeds buffers", size)
	}
	gl.BindBuffer(gl.COPY_READ_BUFFER, s.name)
	gl.BindBuffer(gl.COPY_WRITE_BUFFER, t.name)
	gl.CopyBufferSubData(gl.COPY_READ_BUFFER, gl.COPY_WRITE_BUFFER, 0, 0, size)
	gl.BindBuffer(gl.COPY_READ_BUFFER, 0)
	gl.BindBuffer(gl.COPY_WRITE_BUFFER, 0)
	return checkError("CopyBufferSubData")
}

func (d *Device) DestroyBuffer(id gpu.BufferID) error {
	b, err := d.lookup(id)
	if err != nil {
		return err
	}
	gl.DeleteBuffers(1, &b.name)
	delete(d.buffers, id)
	d.bytes -= b.desc.Size
	return nil
}

// Name returns the GL buffer object behind id, for binding at draw time.
func (d *Device) Name(id gpu.BufferID) uint32 {
	if b, ok := d.buffers[id]; ok {
		return b.name
	}
	return 0
}

// Allocated reports live buffers and bytes.
func (d *Device) Allocated() (buffers, bytes int) {
	return len(d.buffers), d.bytes
}

func (d *Device) Submit(frame uint64) error {
	return d.fences.submit(frame)
}

func (d *Device) Completed() uint64 {
	return d.fences.completed()
}

var _ gpu.Device = (*Device)(nil)
