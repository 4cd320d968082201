package vulkan

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"

	"github.com/vkngwrapper/framepacer/driver"
)

type Swapchain struct {
	dev       *Device
	swapchain khr_swapchain.Swapchain
}

var _ driver.Swapchain = (*Swapchain)(nil)

// CreateSwapchain creates a swapchain of color attachment images. The
// images are owned exclusively by one queue family, unless the graphics
// and present queues come from different families, in which case they are
// shared concurrently between the two.
func (d *Device) CreateSwapchain(info driver.SwapchainInfo) (driver.Swapchain, error) {
	surface, ok := info.Surface.(*Surface)
	if !ok {
		return nil, errors.Newf("swapchain for foreign surface %T", info.Surface)
	}
	caps, _, err := surface.ext.GetPhysicalDeviceSurfaceCapabilities(surface.surface, d.physical)
	if err != nil {
		return nil, errors.Wrap(err, "query surface capabilities")
	}

	sharingMode := core1_0.SharingModeExclusive
	var queueFamilyIndices []int
	if d.graphicsFamily != d.presentFamily {
		sharingMode = core1_0.SharingModeConcurrent
		queueFamilyIndices = append(queueFamilyIndices, d.graphicsFamily, d.presentFamily)
	}

	presentMode, ok := presentModes[info.PresentMode]
	if !ok {
		presentMode = khr_surface.PresentModeFIFO
	}

	swapchain, _, err := d.swapExt.CreateSwapchain(nil, khr_swapchain.SwapchainCreateInfo{
		Surface: surface.surface,

		MinImageCount:    info.MinImageCount,
		ImageFormat:      toFormat(info.Format.Format),
		ImageColorSpace:  toColorSpace(info.Format.ColorSpace),
		ImageExtent:      toExtent(info.Extent),
		ImageArrayLayers: 1,
		ImageUsage:       core1_0.ImageUsageColorAttachment,

		ImageSharingMode:   sharingMode,
		QueueFamilyIndices: queueFamilyIndices,

		PreTransform:   caps.CurrentTransform,
		CompositeAlpha: khr_surface.CompositeAlphaOpaque,
		PresentMode:    presentMode,
		Clipped:        true,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create swapchain of %s", info.Extent)
	}
	return &Swapchain{dev: d, swapchain: swapchain}, nil
}

// Images returns the presentable images. They belong to the swapchain and
// are released with it.
func (s *Swapchain) Images() ([]driver.Image, error) {
	images, _, err := s.dev.swapExt.GetSwapchainImages(s.swapchain)
	if err != nil {
		return nil, errors.Wrap(err, "get swapchain images")
	}
	out := make([]driver.Image, 0, len(images))
	for _, img := range images {
		out = append(out, &Image{dev: s.dev, image: img, swapchain: true})
	}
	return out, nil
}

func (s *Swapchain) AcquireNextImage(timeout time.Duration, signal driver.Semaphore, fence driver.Fence) (int, error) {
	var semaphore *core1_0.Semaphore
	if signal != nil {
		semaphore = &signal.(*Semaphore).semaphore
	}
	var vkFence *core1_0.Fence
	if fence != nil {
		vkFence = &fence.(*Fence).fence
	}
	index, res, err := s.dev.swapExt.AcquireNextImage(s.swapchain, timeout, semaphore, vkFence)
	return index, check(res, err, "acquire swapchain image")
}

func (s *Swapchain) Present(queue driver.Queue, imageIndex int, wait []driver.Semaphore) error {
	res, err := s.dev.swapExt.QueuePresent(queue.(*Queue).queue, khr_swapchain.PresentInfo{
		WaitSemaphores: semaphores(wait),
		Swapchains:     []khr_swapchain.Swapchain{s.swapchain},
		ImageIndices:   []int{imageIndex},
	})
	return check(res, err, "present")
}

func (s *Swapchain) Destroy() { s.dev.swapExt.DestroySwapchain(s.swapchain, nil) }
