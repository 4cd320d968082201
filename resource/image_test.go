package resource

import (
	"image"
	"image/color"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/vkngwrapper/framepacer/driver"
	"github.com/vkngwrapper/framepacer/internal/fakedriver"
)

func depthConfig(extent driver.Extent) ImageConfig {
	return ImageConfig{
		Format:   driver.FormatD32Float,
		Extent:   extent,
		Usage:    driver.ImageUsageDepthStencilAttachment,
		Locality: DeviceLocal,
		Aspect:   driver.AspectDepth,
	}
}

func TestImageDefaults(t *testing.T) {
	dev := fakedriver.New()
	img, err := NewImage(dev, depthConfig(driver.Extent{Width: 64, Height: 32}))
	require.NoError(t, err)
	defer img.Destroy()

	info := img.Handle().(*fakedriver.Image).Info()
	require.Equal(t, 1, info.MipLevels)
	require.Equal(t, driver.Samples1, info.Samples)
	require.Equal(t, 1, img.MipLevels())
	require.Equal(t, driver.FormatD32Float, img.Format())
	require.NotNil(t, img.View())
}

func TestImageResize(t *testing.T) {
	dev := fakedriver.New()
	img, err := NewImage(dev, depthConfig(driver.Extent{Width: 800, Height: 600}))
	require.NoError(t, err)

	for _, extent := range []driver.Extent{{Width: 1024, Height: 768}, {Width: 1, Height: 1}, {Width: 1024, Height: 768}} {
		require.NoError(t, img.Resize(extent))
		require.Equal(t, extent, img.Extent())
		require.Equal(t, extent, img.Handle().(*fakedriver.Image).Info().Extent)
		require.Equal(t, 1, dev.Live("Image"))
		require.Equal(t, 1, dev.Live("Memory"))
		require.Equal(t, 1, dev.Live("ImageView"))
	}

	img.Destroy()
	img.Destroy()
	require.Zero(t, dev.Live("Image"))
	require.Zero(t, dev.Live("Memory"))
	require.Zero(t, dev.Live("ImageView"))
	require.Empty(t, dev.Misuse())
}

func TestImagePartialFailure(t *testing.T) {
	dev := fakedriver.New()

	dev.FailNext("CreateImageView", errors.New("out of handles"))
	_, err := NewImage(dev, depthConfig(driver.Extent{Width: 8, Height: 8}))
	require.Error(t, err)

	dev.FailNext("AllocateMemory", errors.New("out of device memory"))
	_, err = NewImage(dev, depthConfig(driver.Extent{Width: 8, Height: 8}))
	require.Error(t, err)

	require.Zero(t, dev.Live("Image"))
	require.Zero(t, dev.Live("Memory"))
	require.Zero(t, dev.Live("ImageView"))
}

func TestImageResizeFailureLeavesEmptyBundle(t *testing.T) {
	dev := fakedriver.New()
	img, err := NewImage(dev, depthConfig(driver.Extent{Width: 8, Height: 8}))
	require.NoError(t, err)

	dev.FailNext("CreateImage", errors.New("out of device memory"))
	require.Error(t, img.Resize(driver.Extent{Width: 16, Height: 16}))
	require.Nil(t, img.Handle())
	require.Zero(t, dev.Live("Image"))

	require.NoError(t, img.Resize(driver.Extent{Width: 16, Height: 16}))
	img.Destroy()
	require.Empty(t, dev.LiveObjects())
}

func TestMipLevels(t *testing.T) {
	for _, tc := range []struct {
		width, height, levels int
	}{
		{1, 1, 1},
		{2, 1, 2},
		{4, 2, 3},
		{512, 512, 10},
		{800, 600, 10},
		{1024, 3, 11},
	} {
		require.Equal(t, tc.levels, MipLevels(tc.width, tc.height), "%dx%d", tc.width, tc.height)
	}
}

func checkerboard(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if (x+y)%2 == 0 {
				img.Set(x, y, color.NRGBA{R: 255, A: 255})
			} else {
				img.Set(x, y, color.NRGBA{B: 255, A: 255})
			}
		}
	}
	return img
}

func TestTextureUpload(t *testing.T) {
	dev := fakedriver.New()
	pool := newPool(t, dev)

	tex, err := NewTexture(dev, pool, checkerboard(4, 2))
	require.NoError(t, err)

	require.Equal(t, driver.Extent{Width: 4, Height: 2}, tex.Extent())
	require.Equal(t, 3, tex.MipLevels())
	require.NotNil(t, tex.View())
	require.NotNil(t, tex.Sampler())

	handle := tex.image.Handle().(*fakedriver.Image)
	layouts := handle.Layouts()
	require.Equal(t, driver.LayoutTransferDst, layouts[0])
	require.Equal(t, driver.LayoutShaderReadOnly, layouts[len(layouts)-1])

	readable := 0
	for _, layout := range layouts {
		if layout == driver.LayoutShaderReadOnly {
			readable++
		}
	}
	require.Equal(t, tex.MipLevels(), readable, "every mip level ends up shader readable")

	pixels := handle.Memory().Bytes()
	require.Equal(t, []byte{255, 0, 0, 255, 0, 0, 255, 255}, pixels[:8])

	// Upload and mip generation each ran as a one-shot session.
	require.Equal(t, 2, dev.Count("Submit"))
	require.Zero(t, dev.Live("CommandBuffer"))
	require.Zero(t, dev.Live("Buffer"))

	tex.Destroy()
	require.Equal(t, map[string]int{"CommandPool": 1}, dev.LiveObjects())
}

func TestTextureRequiresLinearBlit(t *testing.T) {
	dev := fakedriver.New()
	pool := newPool(t, dev)
	dev.SetFormatFeatures(TextureFormat, driver.FeatureSampledImage)

	_, err := NewTexture(dev, pool, checkerboard(2, 2))
	require.Error(t, err)
	require.Zero(t, dev.Live("Image"))
}

func TestTextureRejectsEmptyImage(t *testing.T) {
	dev := fakedriver.New()
	pool := newPool(t, dev)

	_, err := NewTexture(dev, pool, image.NewRGBA(image.Rect(0, 0, 0, 0)))
	require.Error(t, err)
}
