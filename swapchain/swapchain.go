// Package swapchain owns the rotating set of presentable images of a
// window surface.
//
// A Swapchain is never resized in place: Resize waits for the device to go
// idle, destroys the swapchain and its views, and builds new ones from the
// surface's current capabilities. A window with zero area leaves the
// Swapchain suspended, with no images, until a later Resize observes a
// positive extent.
//
// Swapchain is not safe for concurrent use. The frame orchestrator
// serializes ticks and resizes under one mutex.
package swapchain

import (
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/framepacer"
	"github.com/vkngwrapper/framepacer/driver"
)

// PreferredImageCount is the image count requested when the surface allows
// it.
const PreferredImageCount = 3

// Dependent is rebuilt every time the swapchain is recreated or suspended.
type Dependent interface {
	Rebuild(sc *Swapchain) error
}

type Options struct {
	// ImageCount is the requested image count, clamped to the surface
	// limits. Zero means PreferredImageCount.
	ImageCount int
	Logger     *slog.Logger
}

type Swapchain struct {
	dev     driver.Device
	surface driver.Surface
	opts    Options
	logger  *slog.Logger

	format     driver.SurfaceFormat
	window     driver.Extent
	extent     driver.Extent
	swapchain  driver.Swapchain
	images     []driver.Image
	views      []driver.ImageView
	dependents []Dependent
	generation int
}

// New creates a swapchain for surface. window is the drawable size of the
// window, used when the surface leaves the extent to the swapchain; an
// empty window creates a suspended swapchain.
func New(dev driver.Device, surface driver.Surface, window driver.Extent, opts Options) (*Swapchain, error) {
	if opts.ImageCount == 0 {
		opts.ImageCount = PreferredImageCount
	}
	s := &Swapchain{
		dev:     dev,
		surface: surface,
		opts:    opts,
		logger:  framepacer.LoggerOr(opts.Logger).With("component", "swapchain"),
	}

	formats, err := surface.Formats()
	if err != nil {
		return nil, errors.Wrap(err, "query surface formats")
	}
	if len(formats) == 0 {
		return nil, errors.New("surface reports no formats")
	}
	s.format = ChooseSurfaceFormat(formats)

	if err := s.create(window); err != nil {
		return nil, err
	}
	return s, nil
}

// ChooseSurfaceFormat prefers B8G8R8A8 sRGB with the sRGB nonlinear color
// space and otherwise takes the first reported format.
func ChooseSurfaceFormat(formats []driver.SurfaceFormat) driver.SurfaceFormat {
	for _, format := range formats {
		if format.Format == driver.FormatB8G8R8A8SRGB && format.ColorSpace == driver.ColorSpaceSRGBNonlinear {
			return format
		}
	}
	return formats[0]
}

// ChooseImageCount clamps preferred to the surface limits.
func ChooseImageCount(caps driver.SurfaceCapabilities, preferred int) int {
	count := preferred
	if count < caps.MinImageCount {
		count = caps.MinImageCount
	}
	if caps.MaxImageCount > 0 && count > caps.MaxImageCount {
		count = caps.MaxImageCount
	}
	return count
}

// ChooseExtent returns the surface's current extent, or the window size
// clamped to the surface limits when the surface leaves it undefined.
func ChooseExtent(caps driver.SurfaceCapabilities, window driver.Extent) driver.Extent {
	if caps.CurrentExtent != driver.UndefinedExtent {
		return caps.CurrentExtent
	}
	return driver.Extent{
		Width:  clamp(window.Width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
		Height: clamp(window.Height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		v = lo
	}
	if v > hi {
		v = hi
	}
	return v
}

func (s *Swapchain) create(window driver.Extent) error {
	s.window = window
	if window.Empty() {
		s.extent = driver.Extent{}
		s.logger.Info("swapchain suspended", "window", window)
		return nil
	}

	caps, err := s.surface.Capabilities()
	if err != nil {
		return errors.Wrap(err, "query surface capabilities")
	}

	extent := ChooseExtent(caps, window)
	if extent.Empty() {
		s.extent = driver.Extent{}
		s.logger.Info("swapchain suspended", "surface", extent)
		return nil
	}

	imageCount := ChooseImageCount(caps, s.opts.ImageCount)
	swapchain, err := s.dev.CreateSwapchain(driver.SwapchainInfo{
		Surface:       s.surface,
		MinImageCount: imageCount,
		Format:        s.format,
		Extent:        extent,
		PresentMode:   driver.PresentModeFIFO,
	})
	if err != nil {
		return errors.Wrapf(err, "create swapchain of %s with %d images", extent, imageCount)
	}

	images, err := swapchain.Images()
	if err != nil {
		swapchain.Destroy()
		return errors.Wrap(err, "get swapchain images")
	}

	views := make([]driver.ImageView, 0, len(images))
	for i, image := range images {
		view, err := s.dev.CreateImageView(driver.ImageViewInfo{
			Image:     image,
			Format:    s.format.Format,
			Aspect:    driver.AspectColor,
			MipLevels: 1,
		})
		if err != nil {
			for _, v := range views {
				v.Destroy()
			}
			swapchain.Destroy()
			return errors.Wrapf(err, "create view of swapchain image %d", i)
		}
		views = append(views, view)
	}

	s.swapchain, s.images, s.views, s.extent = swapchain, images, views, extent
	s.generation++
	s.logger.Info("swapchain created", "extent", extent, "images", len(images), "format", s.format.Format)
	return nil
}

func (s *Swapchain) release() {
	for _, view := range s.views {
		view.Destroy()
	}
	if s.swapchain != nil {
		s.swapchain.Destroy()
	}
	s.swapchain, s.images, s.views = nil, nil, nil
	s.extent = driver.Extent{}
}

// Attach registers d to be rebuilt after every Resize.
func (s *Swapchain) Attach(d Dependent) {
	s.dependents = append(s.dependents, d)
}

// Resize waits for the device to go idle, destroys the swapchain and
// recreates it for window, then rebuilds every attached dependent.
func (s *Swapchain) Resize(window driver.Extent) error {
	if err := s.dev.WaitIdle(); err != nil {
		return errors.Wrap(err, "wait for device idle before resize")
	}

	s.release()
	if err := s.create(window); err != nil {
		// Dependents still hold framebuffers of the released views.
		return errors.CombineErrors(err, s.rebuildDependents())
	}
	return s.rebuildDependents()
}

func (s *Swapchain) rebuildDependents() error {
	for _, d := range s.dependents {
		if err := d.Rebuild(s); err != nil {
			return errors.Wrap(err, "rebuild swapchain dependent")
		}
	}
	return nil
}

// Presentable reports whether a swapchain created now for window would
// have images. It only queries the surface, so a suspended swapchain can
// poll it every tick.
func (s *Swapchain) Presentable(window driver.Extent) (bool, error) {
	if window.Empty() {
		return false, nil
	}
	caps, err := s.surface.Capabilities()
	if err != nil {
		return false, errors.Wrap(err, "query surface capabilities")
	}
	return !ChooseExtent(caps, window).Empty(), nil
}

// Acquire returns the index of the next presentable image, signaling
// signal (and fence, if not nil) when it may be rendered to. Any error
// means the tick should be skipped; errors satisfying
// driver.IsSwapchainStale additionally ask for a Resize.
func (s *Swapchain) Acquire(timeout time.Duration, signal driver.Semaphore, fence driver.Fence) (int, error) {
	if s.swapchain == nil {
		return -1, errors.Wrap(driver.ErrNotReady, "acquire on suspended swapchain")
	}
	index, err := s.swapchain.AcquireNextImage(timeout, signal, fence)
	if err != nil {
		return -1, errors.Wrap(err, "acquire swapchain image")
	}
	return index, nil
}

// Present queues image index for display once every wait semaphore is
// signaled.
func (s *Swapchain) Present(index int, wait ...driver.Semaphore) error {
	if s.swapchain == nil {
		return errors.Wrap(driver.ErrNotReady, "present on suspended swapchain")
	}
	if err := s.swapchain.Present(s.dev.PresentQueue(), index, wait); err != nil {
		return errors.Wrapf(err, "present swapchain image %d", index)
	}
	return nil
}

// Suspended reports whether the swapchain has no images because the
// window or the surface has zero area.
func (s *Swapchain) Suspended() bool { return s.swapchain == nil }

func (s *Swapchain) Extent() driver.Extent { return s.extent }

// Window is the drawable size passed to the last New or Resize.
func (s *Swapchain) Window() driver.Extent { return s.window }

func (s *Swapchain) Format() driver.Format { return s.format.Format }

func (s *Swapchain) ImageCount() int { return len(s.images) }

func (s *Swapchain) ImageViews() []driver.ImageView { return s.views }

// Generation counts how many swapchain objects have been created.
func (s *Swapchain) Generation() int { return s.generation }

// Destroy releases the swapchain. The caller must ensure the device is
// idle.
func (s *Swapchain) Destroy() {
	s.release()
	s.dependents = nil
}
