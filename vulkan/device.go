// Package vulkan implements the driver interfaces on top of vkngwrapper.
//
// A Device owns the logical device, its graphics and present queues and
// the swapchain extension driver. Instance, surface and debug messenger
// creation are left to the caller, since they depend on the window system.
package vulkan

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_portability_subset"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"

	"github.com/vkngwrapper/framepacer"
	"github.com/vkngwrapper/framepacer/driver"
)

// DeviceExtensions are required of every physical device.
var DeviceExtensions = []string{
	khr_swapchain.ExtensionName,
}

type Device struct {
	instance core1_0.CoreInstanceDriver
	device   core1_0.CoreDeviceDriver
	physical core1_0.PhysicalDevice
	swapExt  khr_swapchain.ExtensionDriver
	surface  *Surface
	logger   *slog.Logger

	graphicsFamily int
	presentFamily  int
	graphics       *Queue
	present        *Queue

	memoryTypes   []driver.MemoryType
	maxSamples    driver.SampleCount
	maxAnisotropy float32
}

var _ driver.Device = (*Device)(nil)

type queueFamilies struct {
	graphics, present int
}

// NewDevice picks the first physical device that can render to and present
// on surface, creates a logical device with anisotropic sampling enabled
// and binds surface to it.
func NewDevice(instance core1_0.CoreInstanceDriver, surface *Surface, logger *slog.Logger) (*Device, error) {
	physicalDevices, _, err := instance.EnumeratePhysicalDevices()
	if err != nil {
		return nil, errors.Wrap(err, "enumerate physical devices")
	}

	d := &Device{
		instance: instance,
		surface:  surface,
		logger:   framepacer.LoggerOr(logger).With("component", "vulkan"),
	}

	var families queueFamilies
	for _, physical := range physicalDevices {
		if f, ok := d.suitable(physical); ok {
			d.physical = physical
			families = f
			break
		}
	}
	if !d.physical.Initialized() {
		return nil, errors.New("no physical device can render to the surface")
	}
	surface.physical = d.physical
	d.graphicsFamily = families.graphics
	d.presentFamily = families.present

	if err := d.createLogicalDevice(); err != nil {
		return nil, err
	}
	d.swapExt = khr_swapchain.CreateExtensionDriverFromCoreDriver(d.device)
	d.graphics = &Queue{dev: d, queue: d.device.GetQueue(d.graphicsFamily, 0)}
	d.present = &Queue{dev: d, queue: d.device.GetQueue(d.presentFamily, 0)}

	properties, err := instance.GetPhysicalDeviceProperties(d.physical)
	if err != nil {
		d.Destroy()
		return nil, errors.Wrap(err, "query physical device properties")
	}
	d.maxSamples = maxSampleCount(properties.Limits.FramebufferColorSampleCounts & properties.Limits.FramebufferDepthSampleCounts)
	d.maxAnisotropy = properties.Limits.MaxSamplerAnisotropy

	for _, t := range instance.GetPhysicalDeviceMemoryProperties(d.physical).MemoryTypes {
		d.memoryTypes = append(d.memoryTypes, driver.MemoryType{
			Properties: fromMemoryProperties(t.PropertyFlags),
			HeapIndex:  t.HeapIndex,
		})
	}

	d.logger.Info("device ready",
		"device", properties.DeviceName,
		"graphicsFamily", d.graphicsFamily,
		"presentFamily", d.presentFamily,
		"maxSamples", d.maxSamples,
		"memoryTypes", len(d.memoryTypes))
	return d, nil
}

func (d *Device) suitable(physical core1_0.PhysicalDevice) (queueFamilies, bool) {
	families, ok := d.findQueueFamilies(physical)
	if !ok {
		return families, false
	}

	extensions, _, err := d.instance.EnumerateDeviceExtensionProperties(physical)
	if err != nil {
		return families, false
	}
	for _, name := range DeviceExtensions {
		if _, has := extensions[name]; !has {
			return families, false
		}
	}

	formats, _, err := d.surface.ext.GetPhysicalDeviceSurfaceFormats(d.surface.surface, physical)
	if err != nil || len(formats) == 0 {
		return families, false
	}
	modes, _, err := d.surface.ext.GetPhysicalDeviceSurfacePresentModes(d.surface.surface, physical)
	if err != nil || len(modes) == 0 {
		return families, false
	}

	return families, d.instance.GetPhysicalDeviceFeatures(physical).SamplerAnisotropy
}

func (d *Device) findQueueFamilies(physical core1_0.PhysicalDevice) (queueFamilies, bool) {
	families := queueFamilies{graphics: -1, present: -1}
	for i, family := range d.instance.GetPhysicalDeviceQueueFamilyProperties(physical) {
		if family.QueueFlags&core1_0.QueueGraphics != 0 && families.graphics < 0 {
			families.graphics = i
		}
		if d.surface.supports(physical, i) && families.present < 0 {
			families.present = i
		}
		if families.graphics >= 0 && families.present >= 0 {
			return families, true
		}
	}
	return families, false
}

func (d *Device) createLogicalDevice() error {
	unique := []int{d.graphicsFamily}
	if d.presentFamily != d.graphicsFamily {
		unique = append(unique, d.presentFamily)
	}
	var queues []core1_0.DeviceQueueCreateInfo
	for _, family := range unique {
		queues = append(queues, core1_0.DeviceQueueCreateInfo{
			QueueFamilyIndex: family,
			QueuePriorities:  []float32{1},
		})
	}

	extensionNames := append([]string(nil), DeviceExtensions...)
	extensions, _, err := d.instance.EnumerateDeviceExtensionProperties(d.physical)
	if err != nil {
		return errors.Wrap(err, "enumerate device extensions")
	}
	// Required by portability implementations such as MoltenVK.
	if _, ok := extensions[khr_portability_subset.ExtensionName]; ok {
		extensionNames = append(extensionNames, khr_portability_subset.ExtensionName)
	}

	d.device, _, err = d.instance.CreateDevice(d.physical, nil, core1_0.DeviceCreateInfo{
		QueueCreateInfos: queues,
		EnabledFeatures: &core1_0.PhysicalDeviceFeatures{
			SamplerAnisotropy: true,
		},
		EnabledExtensionNames: extensionNames,
	})
	return errors.Wrap(err, "create logical device")
}

func (d *Device) MemoryTypes() []driver.MemoryType { return d.memoryTypes }

func (d *Device) MaxSampleCount() driver.SampleCount { return d.maxSamples }

func (d *Device) FormatFeatures(format driver.Format, tiling driver.Tiling) driver.FormatFeature {
	props := d.instance.GetPhysicalDeviceFormatProperties(d.physical, toFormat(format))
	if tiling == driver.TilingLinear {
		return fromFormatFeatures(props.LinearTilingFeatures)
	}
	return fromFormatFeatures(props.OptimalTilingFeatures)
}

func (d *Device) CreateBuffer(info driver.BufferInfo) (driver.Buffer, error) {
	buffer, _, err := d.device.CreateBuffer(nil, core1_0.BufferCreateInfo{
		Size:        info.Size,
		Usage:       toBufferUsage(info.Usage),
		SharingMode: core1_0.SharingModeExclusive,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create buffer of %d bytes", info.Size)
	}
	return &Buffer{dev: d, buffer: buffer}, nil
}

func (d *Device) CreateImage(info driver.ImageInfo) (driver.Image, error) {
	samples := info.Samples
	if samples == 0 {
		samples = driver.Samples1
	}
	image, _, err := d.device.CreateImage(nil, core1_0.ImageCreateInfo{
		ImageType: core1_0.ImageType2D,
		Extent: core1_0.Extent3D{
			Width:  info.Extent.Width,
			Height: info.Extent.Height,
			Depth:  1,
		},
		MipLevels:     info.MipLevels,
		ArrayLayers:   1,
		Format:        toFormat(info.Format),
		Tiling:        toTiling(info.Tiling),
		InitialLayout: core1_0.ImageLayoutUndefined,
		Usage:         toImageUsage(info.Usage),
		SharingMode:   core1_0.SharingModeExclusive,
		Samples:       toSamples(samples),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create %s image of %s", info.Format, info.Extent)
	}
	return &Image{dev: d, image: image}, nil
}

func (d *Device) AllocateMemory(size int, memoryType int) (driver.Memory, error) {
	memory, _, err := d.device.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  size,
		MemoryTypeIndex: memoryType,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "allocate %d bytes of memory type %d", size, memoryType)
	}
	return &Memory{dev: d, memory: memory}, nil
}

func (d *Device) CreateImageView(info driver.ImageViewInfo) (driver.ImageView, error) {
	image, ok := info.Image.(*Image)
	if !ok {
		return nil, errors.Newf("image view of foreign image %T", info.Image)
	}
	levels := info.MipLevels
	if levels == 0 {
		levels = 1
	}
	view, _, err := d.device.CreateImageView(nil, core1_0.ImageViewCreateInfo{
		Image:    image.image,
		ViewType: core1_0.ImageViewType2D,
		Format:   toFormat(info.Format),
		SubresourceRange: core1_0.ImageSubresourceRange{
			AspectMask:     toAspect(info.Aspect),
			BaseMipLevel:   0,
			LevelCount:     levels,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create %s image view", info.Format)
	}
	return &ImageView{dev: d, view: view}, nil
}

func (d *Device) CreateSampler(info driver.SamplerInfo) (driver.Sampler, error) {
	anisotropy := info.Anisotropy
	if anisotropy > d.maxAnisotropy {
		anisotropy = d.maxAnisotropy
	}
	sampler, _, err := d.device.CreateSampler(nil, core1_0.SamplerCreateInfo{
		MagFilter:    core1_0.FilterLinear,
		MinFilter:    core1_0.FilterLinear,
		AddressModeU: core1_0.SamplerAddressModeRepeat,
		AddressModeV: core1_0.SamplerAddressModeRepeat,
		AddressModeW: core1_0.SamplerAddressModeRepeat,

		AnisotropyEnable: anisotropy > 0,
		MaxAnisotropy:    anisotropy,

		BorderColor: core1_0.BorderColorIntOpaqueBlack,

		MipmapMode: core1_0.SamplerMipmapModeLinear,
		MinLod:     0,
		MaxLod:     float32(info.MipLevels),
	})
	if err != nil {
		return nil, errors.Wrap(err, "create sampler")
	}
	return &Sampler{dev: d, sampler: sampler}, nil
}

func (d *Device) CreateSemaphore() (driver.Semaphore, error) {
	semaphore, _, err := d.device.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
	if err != nil {
		return nil, errors.Wrap(err, "create semaphore")
	}
	return &Semaphore{dev: d, semaphore: semaphore}, nil
}

func (d *Device) CreateFence(signaled bool) (driver.Fence, error) {
	var info core1_0.FenceCreateInfo
	if signaled {
		info.Flags = core1_0.FenceCreateSignaled
	}
	fence, _, err := d.device.CreateFence(nil, info)
	if err != nil {
		return nil, errors.Wrap(err, "create fence")
	}
	return &Fence{dev: d, fence: fence}, nil
}

func (d *Device) CreateCommandPool() (driver.CommandPool, error) {
	pool, _, err := d.device.CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{
		QueueFamilyIndex: d.graphicsFamily,
		Flags:            core1_0.CommandPoolCreateResetBuffer,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create command pool")
	}
	return &CommandPool{dev: d, pool: pool}, nil
}

func (d *Device) GraphicsQueue() driver.Queue { return d.graphics }

func (d *Device) PresentQueue() driver.Queue { return d.present }

func (d *Device) WaitIdle() error {
	_, err := d.device.DeviceWaitIdle()
	return errors.Wrap(err, "wait for device idle")
}

// Destroy destroys the logical device. Every object created from it must
// already be destroyed.
func (d *Device) Destroy() {
	if d.device != nil {
		d.device.DestroyDevice(nil)
		d.device = nil
	}
}
