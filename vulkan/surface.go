package vulkan

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"

	"github.com/vkngwrapper/framepacer/driver"
)

// Surface is a window surface. Its queries answer for the physical device
// chosen by NewDevice.
type Surface struct {
	ext      khr_surface.ExtensionDriver
	surface  khr_surface.Surface
	physical core1_0.PhysicalDevice
}

var _ driver.Surface = (*Surface)(nil)

// NewSurface wraps a surface created by the window system integration,
// such as vkng_sdl2.CreateSurface, with the extension driver it was
// created through.
func NewSurface(ext khr_surface.ExtensionDriver, surface khr_surface.Surface) *Surface {
	return &Surface{ext: ext, surface: surface}
}

func (s *Surface) Handle() khr_surface.Surface { return s.surface }

func (s *Surface) Capabilities() (driver.SurfaceCapabilities, error) {
	caps, _, err := s.ext.GetPhysicalDeviceSurfaceCapabilities(s.surface, s.physical)
	if err != nil {
		return driver.SurfaceCapabilities{}, errors.Wrap(err, "query surface capabilities")
	}
	out := driver.SurfaceCapabilities{
		MinImageCount:  caps.MinImageCount,
		MaxImageCount:  caps.MaxImageCount,
		CurrentExtent:  fromExtent(caps.CurrentExtent),
		MinImageExtent: fromExtent(caps.MinImageExtent),
		MaxImageExtent: fromExtent(caps.MaxImageExtent),
	}
	if caps.CurrentExtent.Width == -1 {
		out.CurrentExtent = driver.UndefinedExtent
	}
	return out, nil
}

func (s *Surface) Formats() ([]driver.SurfaceFormat, error) {
	formats, _, err := s.ext.GetPhysicalDeviceSurfaceFormats(s.surface, s.physical)
	if err != nil {
		return nil, errors.Wrap(err, "query surface formats")
	}
	out := make([]driver.SurfaceFormat, 0, len(formats))
	for _, f := range formats {
		out = append(out, driver.SurfaceFormat{Format: fromFormat(f.Format), ColorSpace: fromColorSpace(f.ColorSpace)})
	}
	return out, nil
}

// PresentModes lists the supported modes the driver package names.
func (s *Surface) PresentModes() ([]driver.PresentMode, error) {
	modes, _, err := s.ext.GetPhysicalDeviceSurfacePresentModes(s.surface, s.physical)
	if err != nil {
		return nil, errors.Wrap(err, "query surface present modes")
	}
	var out []driver.PresentMode
	for _, m := range modes {
		for mode, vk := range presentModes {
			if m == vk {
				out = append(out, mode)
			}
		}
	}
	return out, nil
}

// supports reports whether queue family of physical can present to s.
func (s *Surface) supports(physical core1_0.PhysicalDevice, family int) bool {
	ok, _, err := s.ext.GetPhysicalDeviceSurfaceSupport(s.surface, physical, family)
	return err == nil && ok
}

func (s *Surface) Destroy() {
	s.ext.DestroySurface(s.surface, nil)
}
