package resource

import (
	"image"
	"math"

	"github.com/cockroachdb/errors"
	"golang.org/x/image/draw"

	"github.com/vkngwrapper/framepacer/command"
	"github.com/vkngwrapper/framepacer/driver"
)

// TextureFormat is the format textures are uploaded in.
const TextureFormat = driver.FormatR8G8B8A8SRGB

// Texture is a sampled, mipmapped RGBA8 image with its sampler.
type Texture struct {
	image   *Image
	sampler driver.Sampler
}

// MipLevels returns the length of the full mip chain for a width x height
// image.
func MipLevels(width, height int) int {
	return int(math.Floor(math.Log2(math.Max(float64(width), float64(height))))) + 1
}

// NewTexture uploads src through a staging buffer, generates its mip chain
// with linear blits and leaves every level in shader-read layout. All
// transfer work runs as blocking one-shot sessions.
func NewTexture(dev driver.Device, pool *command.Pool, src image.Image) (*Texture, error) {
	bounds := src.Bounds()
	extent := driver.Extent{Width: bounds.Dx(), Height: bounds.Dy()}
	if extent.Empty() {
		return nil, errors.Newf("texture of %s", extent)
	}

	if dev.FormatFeatures(TextureFormat, driver.TilingOptimal)&driver.FeatureSampledImageFilterLinear == 0 {
		return nil, errors.Newf("texture format %s does not support linear blitting", TextureFormat)
	}

	rgba, ok := src.(*image.RGBA)
	if !ok || rgba.Stride != 4*extent.Width {
		rgba = image.NewRGBA(image.Rect(0, 0, extent.Width, extent.Height))
		draw.Draw(rgba, rgba.Bounds(), src, bounds.Min, draw.Src)
	}

	staging, err := NewStagingBuffer[byte](dev, len(rgba.Pix))
	if err != nil {
		return nil, err
	}
	defer staging.Destroy()

	if err := staging.Write(rgba.Pix...); err != nil {
		return nil, err
	}

	mipLevels := MipLevels(extent.Width, extent.Height)
	img, err := NewImage(dev, ImageConfig{
		Format:    TextureFormat,
		Extent:    extent,
		MipLevels: mipLevels,
		Tiling:    driver.TilingOptimal,
		Usage:     driver.ImageUsageTransferSrc | driver.ImageUsageTransferDst | driver.ImageUsageSampled,
		Locality:  DeviceLocal,
		Aspect:    driver.AspectColor,
	})
	if err != nil {
		return nil, err
	}

	err = pool.Run(func(cmd driver.CommandBuffer) error {
		err := cmd.PipelineBarrier(driver.ImageBarrier{
			Image:      img.Handle(),
			Aspect:     driver.AspectColor,
			OldLayout:  driver.LayoutUndefined,
			NewLayout:  driver.LayoutTransferDst,
			LevelCount: mipLevels,
		})
		if err != nil {
			return err
		}
		return cmd.CopyBufferToImage(staging.Handle(), img.Handle(), extent)
	})
	if err != nil {
		img.Destroy()
		return nil, errors.Wrap(err, "upload texture")
	}

	if err := pool.Run(func(cmd driver.CommandBuffer) error {
		return generateMipmaps(cmd, img.Handle(), extent, mipLevels)
	}); err != nil {
		img.Destroy()
		return nil, errors.Wrap(err, "generate mipmaps")
	}

	sampler, err := dev.CreateSampler(driver.SamplerInfo{MipLevels: mipLevels, Anisotropy: 16})
	if err != nil {
		img.Destroy()
		return nil, errors.Wrap(err, "create texture sampler")
	}

	return &Texture{image: img, sampler: sampler}, nil
}

// generateMipmaps blits each level into the next and moves every level
// to shader-read layout once it has been read.
func generateMipmaps(cmd driver.CommandBuffer, img driver.Image, extent driver.Extent, mipLevels int) error {
	barrier := driver.ImageBarrier{Image: img, Aspect: driver.AspectColor, LevelCount: 1}

	mip := extent
	for i := 1; i < mipLevels; i++ {
		barrier.BaseMipLevel = i - 1
		barrier.OldLayout = driver.LayoutTransferDst
		barrier.NewLayout = driver.LayoutTransferSrc
		if err := cmd.PipelineBarrier(barrier); err != nil {
			return err
		}

		next := mip
		if next.Width > 1 {
			next.Width /= 2
		}
		if next.Height > 1 {
			next.Height /= 2
		}
		err := cmd.BlitImage(img, driver.BlitRegion{SrcMip: i - 1, SrcExtent: mip, DstMip: i, DstExtent: next})
		if err != nil {
			return err
		}

		barrier.OldLayout = driver.LayoutTransferSrc
		barrier.NewLayout = driver.LayoutShaderReadOnly
		if err := cmd.PipelineBarrier(barrier); err != nil {
			return err
		}
		mip = next
	}

	barrier.BaseMipLevel = mipLevels - 1
	barrier.OldLayout = driver.LayoutTransferDst
	barrier.NewLayout = driver.LayoutShaderReadOnly
	return cmd.PipelineBarrier(barrier)
}

func (t *Texture) View() driver.ImageView { return t.image.View() }

func (t *Texture) Sampler() driver.Sampler { return t.sampler }

func (t *Texture) Extent() driver.Extent { return t.image.Extent() }

func (t *Texture) MipLevels() int { return t.image.MipLevels() }

func (t *Texture) Destroy() {
	if t.sampler != nil {
		t.sampler.Destroy()
		t.sampler = nil
	}
	t.image.Destroy()
}
