package vkdevice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"

	"github.com/valydumitru01/Burst/internal/gpu"
)

// waitSlice bounds one WaitForFences so Wait can observe ctx.
const waitSlice = uint64(2 * time.Millisecond)

type buffer struct {
	handle vk.Buffer
	memory vk.DeviceMemory
	desc   gpu.BufferDesc
}

// frameSlot records the transfer commands of one frame in flight.
type frameSlot struct {
	cmd       vk.CommandBuffer
	fence     vk.Fence
	frame     uint64
	recording bool
	submitted bool
}

// Device allocates one VkDeviceMemory per buffer and records staging copies
// into a command buffer per frame slot. Frames are submitted in order on a
// single queue, so a signaled fence implies every earlier frame finished.
type Device struct {
	ctx *Context
	log *slog.Logger

	nextID  gpu.BufferID
	buffers map[gpu.BufferID]*buffer
	bytes   int

	slots     []frameSlot
	completed uint64
	lost      bool
}

// New creates a device with framesInFlight command buffers and fences. It
// must match the uploader's frame ring.
func New(c *Context, framesInFlight int, log *slog.Logger) (*Device, error) {
	if log == nil {
		log = slog.Default()
	}
	d := &Device{
		ctx:     c,
		log:     log.With("component", "vkdevice"),
		buffers: make(map[gpu.BufferID]*buffer),
		slots:   make([]frameSlot, framesInFlight),
	}
	cmds := make([]vk.CommandBuffer, framesInFlight)
	alloc := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        c.CommandPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: uint32(framesInFlight),
	}
	if err := check("AllocateCommandBuffers", vk.AllocateCommandBuffers(c.Device, &alloc, cmds)); err != nil {
		return nil, err
	}
	for i := range d.slots {
		d.slots[i].cmd = cmds[i]
		info := vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo}
		var fence vk.Fence
		if err := check("CreateFence", vk.CreateFence(c.Device, &info, nil, &fence)); err != nil {
			d.Close()
			return nil, err
		}
		d.slots[i].fence = fence
	}
	return d, nil
}

func usageFlags(desc gpu.BufferDesc) vk.BufferUsageFlagBits {
	var f vk.BufferUsageFlagBits
	switch desc.Usage {
	case gpu.UsageVertex:
		f = vk.BufferUsageVertexBufferBit
	case gpu.UsageIndex:
		f = vk.BufferUsageIndexBufferBit
	case gpu.UsageStaging:
		return vk.BufferUsageTransferSrcBit
	}
	if desc.Memory == gpu.MemoryDeviceLocal {
		f |= vk.BufferUsageTransferDstBit
	}
	return f
}

func memoryFlags(m gpu.Memory) vk.MemoryPropertyFlagBits {
	if m == gpu.MemoryDeviceLocal {
		return vk.MemoryPropertyDeviceLocalBit
	}
	return vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit
}

// chooseMemoryType returns the first type allowed by typeBits that has all
// of want.
func chooseMemoryType(types []vk.MemoryPropertyFlags, typeBits uint32, want vk.MemoryPropertyFlags) (uint32, bool) {
	for i, flags := range types {
		if typeBits&(1<<uint(i)) != 0 && flags&want == want {
			return uint32(i), true
		}
	}
	return 0, false
}

func (d *Device) CreateBuffer(desc gpu.BufferDesc) (gpu.BufferID, error) {
	if d.lost {
		return 0, gpu.ErrDeviceLost
	}
	if desc.Size <= 0 {
		return 0, fmt.Errorf("vk: buffer size %d", desc.Size)
	}
	dev := d.ctx.Device
	info := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(desc.Size),
		Usage:       vk.BufferUsageFlags(usageFlags(desc)),
		SharingMode: vk.SharingModeExclusive,
	}
	var handle vk.Buffer
	if err := d.track(check("CreateBuffer", vk.CreateBuffer(dev, &info, nil, &handle))); err != nil {
		return 0, err
	}

	var reqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(dev, handle, &reqs)
	reqs.Deref()
	typeIndex, ok := chooseMemoryType(d.ctx.memTypes, reqs.MemoryTypeBits, vk.MemoryPropertyFlags(memoryFlags(desc.Memory)))
	if !ok {
		vk.DestroyBuffer(dev, handle, nil)
		return 0, fmt.Errorf("vk: no memory type for %+v", desc)
	}
	alloc := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  reqs.Size,
		MemoryTypeIndex: typeIndex,
	}
	var memory vk.DeviceMemory
	if err := d.track(check("AllocateMemory", vk.AllocateMemory(dev, &alloc, nil, &memory))); err != nil {
		vk.DestroyBuffer(dev, handle, nil)
		return 0, err
	}
	if err := d.track(check("BindBufferMemory", vk.BindBufferMemory(dev, handle, memory, 0))); err != nil {
		vk.DestroyBuffer(dev, handle, nil)
		vk.FreeMemory(dev, memory, nil)
		return 0, err
	}

	d.nextID++
	d.buffers[d.nextID] = &buffer{handle: handle, memory: memory, desc: desc}
	d.bytes += desc.Size
	return d.nextID, nil
}

// track latches device loss.
func (d *Device) track(err error) error {
	if errors.Is(err, gpu.ErrDeviceLost) {
		d.lost = true
	}
	return err
}

func (d *Device) lookup(id gpu.BufferID) (*buffer, error) {
	b, ok := d.buffers[id]
	if !ok {
		return nil, fmt.Errorf("vk: unknown buffer %d", id)
	}
	return b, nil
}

// WriteBuffer copies data into a host-visible buffer through a mapping.
func (d *Device) WriteBuffer(frame uint64, id gpu.BufferID, data []byte) error {
	b, err := d.lookup(id)
	if err != nil {
		return err
	}
	if b.desc.Memory != gpu.MemoryHostVisible {
		return fmt.Errorf("vk: buffer %d is not host visible", id)
	}
	if len(data) > b.desc.Size {
		return fmt.Errorf("vk: write of %d bytes into %d byte buffer", len(data), b.desc.Size)
	}
	if len(data) == 0 {
		return nil
	}
	var ptr unsafe.Pointer
	if err := d.track(check("MapMemory", vk.MapMemory(d.ctx.Device, b.memory, 0, vk.DeviceSize(len(data)), 0, &ptr))); err != nil {
		return err
	}
	vk.Memcopy(ptr, data)
	vk.UnmapMemory(d.ctx.Device, b.memory)
	return nil
}

// slot returns frame's slot, starting its command buffer on first use.
func (d *Device) slot(frame uint64) (*frameSlot, error) {
	s := &d.slots[frame%uint64(len(d.slots))]
	if s.recording && s.frame == frame {
		return s, nil
	}
	if s.submitted && s.frame > d.Completed() {
		return nil, fmt.Errorf("vk: slot for frame %d still runs frame %d", frame, s.frame)
	}
	if err := check("ResetCommandBuffer", vk.ResetCommandBuffer(s.cmd, 0)); err != nil {
		return nil, err
	}
	begin := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if err := check("BeginCommandBuffer", vk.BeginCommandBuffer(s.cmd, &begin)); err != nil {
		return nil, err
	}
	s.frame = frame
	s.recording = true
	s.submitted = false
	return s, nil
}

// CopyBuffer records a staging copy followed by a barrier that makes it
// visible to vertex input.
func (d *Device) CopyBuffer(frame uint64, src, dst gpu.BufferID, size int) error {
	if d.lost {
		return gpu.ErrDeviceLost
	}
	s, err := d.lookup(src)
	if err != nil {
		return err
	}
	t, err := d.lookup(dst)
	if err != nil {
		return err
	}
	if size > s.desc.Size || size > t.desc.Size {
		return fmt.Errorf("vk: copy of %d bytes exceeds buffers", size)
	}
	slot, err := d.slot(frame)
	if err != nil {
		return err
	}
	vk.CmdCopyBuffer(slot.cmd, s.handle, t.handle, 1, []vk.BufferCopy{{Size: vk.DeviceSize(size)}})
	barrier := vk.MemoryBarrier{
		SType:         vk.StructureTypeMemoryBarrier,
		SrcAccessMask: vk.AccessFlags(vk.AccessTransferWriteBit),
		DstAccessMask: vk.AccessFlags(vk.AccessVertexAttributeReadBit | vk.AccessIndexReadBit),
	}
	vk.CmdPipelineBarrier(slot.cmd,
		vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		vk.PipelineStageFlags(vk.PipelineStageVertexInputBit),
		0, 1, []vk.MemoryBarrier{barrier}, 0, nil, 0, nil)
	return nil
}

func (d *Device) DestroyBuffer(id gpu.BufferID) error {
	b, err := d.lookup(id)
	if err != nil {
		return err
	}
	vk.DestroyBuffer(d.ctx.Device, b.handle, nil)
	vk.FreeMemory(d.ctx.Device, b.memory, nil)
	delete(d.buffers, id)
	d.bytes -= b.desc.Size
	return nil
}

// Buffer returns the Vulkan buffer behind id.
func (d *Device) Buffer(id gpu.BufferID) (vk.Buffer, bool) {
	b, ok := d.buffers[id]
	if !ok {
		return nil, false
	}
	return b.handle, true
}

// Allocated reports live buffers and bytes.
func (d *Device) Allocated() (buffers, bytes int) {
	return len(d.buffers), d.bytes
}

// Submit ends frame's command buffer and submits it with the slot fence.
// Frames without copies still submit an empty buffer so the fence signals.
func (d *Device) Submit(frame uint64) error {
	if d.lost {
		return gpu.ErrDeviceLost
	}
	s, err := d.slot(frame)
	if err != nil {
		return err
	}
	if err := check("EndCommandBuffer", vk.EndCommandBuffer(s.cmd)); err != nil {
		return d.track(err)
	}
	s.recording = false
	if err := check("ResetFences", vk.ResetFences(d.ctx.Device, 1, []vk.Fence{s.fence})); err != nil {
		return d.track(err)
	}
	submit := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{s.cmd},
	}
	if err := check("QueueSubmit", vk.QueueSubmit(d.ctx.Queue, 1, []vk.SubmitInfo{submit}, s.fence)); err != nil {
		return d.track(err)
	}
	s.submitted = true
	return nil
}

// Completed polls slot fences in frame order.
func (d *Device) Completed() uint64 {
	for {
		next := d.completed + 1
		s := &d.slots[next%uint64(len(d.slots))]
		if !s.submitted || s.frame != next {
			return d.completed
		}
		switch res := vk.GetFenceStatus(d.ctx.Device, s.fence); res {
		case vk.Success:
			d.completed = next
		case vk.NotReady:
			return d.completed
		default:
			_ = d.track(check("GetFenceStatus", res))
			return d.completed
		}
	}
}

func (d *Device) Wait(ctx context.Context, frame uint64) error {
	for d.completed < frame {
		if d.lost {
			return gpu.ErrDeviceLost
		}
		s := &d.slots[frame%uint64(len(d.slots))]
		if !s.submitted || s.frame != frame {
			return fmt.Errorf("vk: wait for unsubmitted frame %d", frame)
		}
		switch res := vk.WaitForFences(d.ctx.Device, 1, []vk.Fence{s.fence}, vk.True, waitSlice); res {
		case vk.Success:
			// one queue: everything submitted before frame is done too
			d.completed = frame
		case vk.Timeout:
			if err := ctx.Err(); err != nil {
				return err
			}
		default:
			return d.track(check("WaitForFences", res))
		}
	}
	return nil
}

// Close waits for the queue, then frees every buffer, fence and command
// buffer the device created. The Context stays open.
func (d *Device) Close() {
	if d.slots == nil {
		return
	}
	dev := d.ctx.Device
	vk.DeviceWaitIdle(dev)
	for id := range d.buffers {
		_ = d.DestroyBuffer(id)
	}
	cmds := make([]vk.CommandBuffer, 0, len(d.slots))
	for _, s := range d.slots {
		if s.fence != nil {
			vk.DestroyFence(dev, s.fence, nil)
		}
		if s.cmd != nil {
			cmds = append(cmds, s.cmd)
		}
	}
	if len(cmds) > 0 {
		vk.FreeCommandBuffers(dev, d.ctx.CommandPool, uint32(len(cmds)), cmds)
	}
	d.slots = nil
}

var (
	_ gpu.Device = (*Device)(nil)
	_ gpu.Fence  = (*Device)(nil)
)
