package fakedriver

import (
	"time"

	"github.com/vkngwrapper/framepacer/driver"
)

// Surface is a window surface whose capabilities tests control.
type Surface struct {
	dev     *Device
	caps    driver.SurfaceCapabilities
	formats []driver.SurfaceFormat
	modes   []driver.PresentMode
}

var _ driver.Surface = (*Surface)(nil)

// NewSurface returns a surface reporting caps, a B8G8R8A8 sRGB format and
// FIFO presentation.
func (d *Device) NewSurface(caps driver.SurfaceCapabilities) *Surface {
	return &Surface{
		dev:     d,
		caps:    caps,
		formats: []driver.SurfaceFormat{{Format: driver.FormatB8G8R8A8SRGB, ColorSpace: driver.ColorSpaceSRGBNonlinear}},
		modes:   []driver.PresentMode{driver.PresentModeFIFO, driver.PresentModeMailbox},
	}
}

// SetExtent changes the current extent, as a window resize would.
func (s *Surface) SetExtent(width, height int) {
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()
	s.caps.CurrentExtent = driver.Extent{Width: width, Height: height}
}

func (s *Surface) SetFormats(formats ...driver.SurfaceFormat) {
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()
	s.formats = formats
}

func (s *Surface) Capabilities() (driver.SurfaceCapabilities, error) {
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()
	s.dev.record("Surface.Capabilities", 0)
	if err := s.dev.takeFailure("Surface.Capabilities"); err != nil {
		return driver.SurfaceCapabilities{}, err
	}
	return s.caps, nil
}

func (s *Surface) Formats() ([]driver.SurfaceFormat, error) {
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()
	return append([]driver.SurfaceFormat(nil), s.formats...), nil
}

func (s *Surface) PresentModes() ([]driver.PresentMode, error) {
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()
	return append([]driver.PresentMode(nil), s.modes...), nil
}

// Swapchain hands out its images round-robin. Acquisition reports
// ErrOutOfDate once the surface extent no longer matches.
type Swapchain struct {
	object
	surface *Surface
	info    driver.SwapchainInfo
	images  []*Image
	next    int
}

func (s *Swapchain) Info() driver.SwapchainInfo { return s.info }

func (s *Swapchain) Images() ([]driver.Image, error) {
	out := make([]driver.Image, len(s.images))
	for i, img := range s.images {
		out[i] = img
	}
	return out, nil
}

func (s *Swapchain) stale() bool {
	current := s.surface.caps.CurrentExtent
	return current != driver.UndefinedExtent && current != s.info.Extent
}

func (s *Swapchain) AcquireNextImage(timeout time.Duration, signal driver.Semaphore, fence driver.Fence) (int, error) {
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()
	s.dev.record("AcquireNextImage", s.id)
	if s.destroyed {
		return -1, s.dev.violation("acquire on destroyed swapchain#%d", s.id)
	}
	var result error
	if len(s.dev.acquireResults) > 0 {
		result = s.dev.acquireResults[0]
		s.dev.acquireResults = s.dev.acquireResults[1:]
	} else if s.stale() {
		result = driver.ErrOutOfDate
	}
	if result != nil && result != driver.ErrSuboptimal {
		return -1, result
	}
	if sem, ok := signal.(*Semaphore); ok {
		if sem.signaled {
			return -1, s.dev.violation("acquire signals already signaled semaphore#%d", sem.id)
		}
		sem.signaled = true
	}
	index := s.next % len(s.images)
	s.next++
	return index, result
}

func (s *Swapchain) Present(queue driver.Queue, imageIndex int, wait []driver.Semaphore) error {
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()
	s.dev.record("Present", s.id)
	if imageIndex < 0 || imageIndex >= len(s.images) {
		return s.dev.violation("present of image %d out of %d", imageIndex, len(s.images))
	}
	for _, w := range wait {
		sem := w.(*Semaphore)
		if !sem.signaled {
			return s.dev.violation("present waits on unsignaled semaphore#%d", sem.id)
		}
		sem.signaled = false
	}
	if len(s.dev.presentResults) > 0 {
		result := s.dev.presentResults[0]
		s.dev.presentResults = s.dev.presentResults[1:]
		return result
	}
	if s.stale() {
		return driver.ErrOutOfDate
	}
	return nil
}
