// Package vkdevice implements gpu.Device and gpu.Fence on Vulkan. It only
// needs a queue that supports transfers; presentation is someone else's job.
package vkdevice

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	vk "github.com/vulkan-go/vulkan"

	"github.com/valydumitru01/Burst/internal/gpu"
)

var (
	loaderOnce sync.Once
	loaderErr  error
)

func loadVulkan() error {
	loaderOnce.Do(func() {
		if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
			loaderErr = fmt.Errorf("load vulkan library: %w", err)
			return
		}
		if err := vk.Init(); err != nil {
			loaderErr = fmt.Errorf("init vulkan loader: %w", err)
		}
	})
	return loaderErr
}

// check maps a Vulkan result onto the gpu error set.
func check(op string, res vk.Result) error {
	switch res {
	case vk.Success:
		return nil
	case vk.ErrorOutOfDeviceMemory, vk.ErrorOutOfHostMemory:
		return fmt.Errorf("vk %s: %w", op, gpu.ErrOutOfMemory)
	case vk.ErrorDeviceLost:
		return fmt.Errorf("vk %s: %w", op, gpu.ErrDeviceLost)
	}
	return fmt.Errorf("vk %s: %w", op, vk.Error(res))
}

func cstr(s string) string { return s + "\x00" }

// Context owns the instance, the logical device and one queue.
type Context struct {
	Instance       vk.Instance
	PhysicalDevice vk.PhysicalDevice
	Device         vk.Device
	Queue          vk.Queue
	QueueFamily    uint32
	CommandPool    vk.CommandPool
	DeviceName     string

	memTypes []vk.MemoryPropertyFlags
}

// NewContext loads Vulkan and opens the first device with a graphics queue.
func NewContext(appName string, log *slog.Logger) (*Context, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := loadVulkan(); err != nil {
		return nil, err
	}
	c := &Context{}
	if err := c.createInstance(appName); err != nil {
		return nil, err
	}
	steps := []func() error{c.selectPhysicalDevice, c.createDevice, c.createCommandPool}
	for _, step := range steps {
		if err := step(); err != nil {
			c.Destroy()
			return nil, err
		}
	}
	c.memTypes = memoryTypes(c.PhysicalDevice)
	log.Info("vulkan device ready", "device", c.DeviceName, "queue_family", c.QueueFamily, "memory_types", len(c.memTypes))
	return c, nil
}

func (c *Context) createInstance(appName string) error {
	appInfo := vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		PApplicationName:   cstr(appName),
		ApplicationVersion: vk.MakeVersion(1, 0, 0),
		PEngineName:        cstr("burst"),
		EngineVersion:      vk.MakeVersion(1, 0, 0),
		ApiVersion:         vk.MakeVersion(1, 1, 0),
	}
	info := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: &appInfo,
	}
	var instance vk.Instance
	if err := check("CreateInstance", vk.CreateInstance(&info, nil, &instance)); err != nil {
		return err
	}
	if err := vk.InitInstance(instance); err != nil {
		vk.DestroyInstance(instance, nil)
		return fmt.Errorf("init instance: %w", err)
	}
	c.Instance = instance
	return nil
}

func (c *Context) selectPhysicalDevice() error {
	var count uint32
	if err := check("EnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(c.Instance, &count, nil)); err != nil {
		return err
	}
	if count == 0 {
		return errors.New("vk: no physical devices")
	}
	devices := make([]vk.PhysicalDevice, count)
	if err := check("EnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(c.Instance, &count, devices)); err != nil {
		return err
	}
	for _, dev := range devices {
		var n uint32
		vk.GetPhysicalDeviceQueueFamilyProperties(dev, &n, nil)
		families := make([]vk.QueueFamilyProperties, n)
		vk.GetPhysicalDeviceQueueFamilyProperties(dev, &n, families)
		for i, qf := range families {
			qf.Deref()
			if qf.QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) == 0 {
				continue
			}
			var props vk.PhysicalDeviceProperties
			vk.GetPhysicalDeviceProperties(dev, &props)
			props.Deref()
			c.PhysicalDevice = dev
			c.QueueFamily = uint32(i)
			c.DeviceName = vk.ToString(props.DeviceName[:])
			return nil
		}
	}
	return errors.New("vk: no device with a graphics queue")
}

func (c *Context) createDevice() error {
	queueInfo := vk.DeviceQueueCreateInfo{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: c.QueueFamily,
		QueueCount:       1,
		PQueuePriorities: []float32{1},
	}
	info := vk.DeviceCreateInfo{
		SType:                vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount: 1,
		PQueueCreateInfos:    []vk.DeviceQueueCreateInfo{queueInfo},
	}
	var device vk.Device
	if err := check("CreateDevice", vk.CreateDevice(c.PhysicalDevice, &info, nil, &device)); err != nil {
		return err
	}
	c.Device = device
	var queue vk.Queue
	vk.GetDeviceQueue(device, c.QueueFamily, 0, &queue)
	c.Queue = queue
	return nil
}

func (c *Context) createCommandPool() error {
	info := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: c.QueueFamily,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	var pool vk.CommandPool
	if err := check("CreateCommandPool", vk.CreateCommandPool(c.Device, &info, nil, &pool)); err != nil {
		return err
	}
	c.CommandPool = pool
	return nil
}

func memoryTypes(pd vk.PhysicalDevice) []vk.MemoryPropertyFlags {
	var props vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(pd, &props)
	props.Deref()
	out := make([]vk.MemoryPropertyFlags, props.MemoryTypeCount)
	for i := range out {
		props.MemoryTypes[i].Deref()
		out[i] = props.MemoryTypes[i].PropertyFlags
	}
	return out
}

// Destroy waits for the device to go idle and releases everything the
// context created.
func (c *Context) Destroy() {
	if c.Device != nil {
		vk.DeviceWaitIdle(c.Device)
		if c.CommandPool != nil {
			vk.DestroyCommandPool(c.Device, c.CommandPool, nil)
		}
		vk.DestroyDevice(c.Device, nil)
		c.Device = nil
	}
	if c.Instance != nil {
		vk.DestroyInstance(c.Instance, nil)
		c.Instance = nil
	}
}
