package resource

import (
	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/framepacer/driver"
)

// ImageConfig describes an image bundle. MipLevels and Samples default to
// one.
type ImageConfig struct {
	Format    driver.Format
	Extent    driver.Extent
	MipLevels int
	Samples   driver.SampleCount
	Tiling    driver.Tiling
	Usage     driver.ImageUsage
	Locality  driver.MemoryProperty
	Aspect    driver.Aspect
}

// Image bundles an image, its memory and one view. The three are created,
// resized and destroyed together; a partially built Image is never
// returned.
type Image struct {
	_ noCopy

	dev    driver.Device
	config ImageConfig
	image  driver.Image
	memory driver.Memory
	view   driver.ImageView
}

func NewImage(dev driver.Device, config ImageConfig) (*Image, error) {
	if config.MipLevels == 0 {
		config.MipLevels = 1
	}
	if config.Samples == 0 {
		config.Samples = driver.Samples1
	}
	img := &Image{dev: dev, config: config}
	if err := img.create(); err != nil {
		return nil, err
	}
	return img, nil
}

func (i *Image) create() error {
	image, err := i.dev.CreateImage(driver.ImageInfo{
		Extent:    i.config.Extent,
		MipLevels: i.config.MipLevels,
		Format:    i.config.Format,
		Tiling:    i.config.Tiling,
		Usage:     i.config.Usage,
		Samples:   i.config.Samples,
	})
	if err != nil {
		return errors.Wrapf(err, "create %s image of %s", i.config.Format, i.config.Extent)
	}

	memory, err := allocate(i.dev, image.Requirements(), i.config.Locality, image.Bind)
	if err != nil {
		image.Destroy()
		return errors.Wrapf(err, "back %s image of %s", i.config.Format, i.config.Extent)
	}

	view, err := i.dev.CreateImageView(driver.ImageViewInfo{
		Image:     image,
		Format:    i.config.Format,
		Aspect:    i.config.Aspect,
		MipLevels: i.config.MipLevels,
	})
	if err != nil {
		image.Destroy()
		memory.Free()
		return errors.Wrapf(err, "create view of %s image", i.config.Format)
	}

	i.image, i.memory, i.view = image, memory, view
	return nil
}

func (i *Image) release() {
	if i.view != nil {
		i.view.Destroy()
	}
	if i.image != nil {
		i.image.Destroy()
	}
	if i.memory != nil {
		i.memory.Free()
	}
	i.view, i.image, i.memory = nil, nil, nil
}

// Resize destroys the image, memory and view and recreates them at
// extent. If recreation fails the bundle is left empty and must be
// resized again or destroyed.
func (i *Image) Resize(extent driver.Extent) error {
	i.release()
	i.config.Extent = extent
	return i.create()
}

func (i *Image) Handle() driver.Image { return i.image }

func (i *Image) View() driver.ImageView { return i.view }

func (i *Image) Extent() driver.Extent { return i.config.Extent }

func (i *Image) Format() driver.Format { return i.config.Format }

func (i *Image) MipLevels() int { return i.config.MipLevels }

// Destroy releases the bundle. It is safe to call twice.
func (i *Image) Destroy() {
	i.release()
}
