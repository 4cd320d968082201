package vulkan

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"

	"github.com/vkngwrapper/framepacer/driver"
)

var formats = map[driver.Format]core1_0.Format{
	driver.FormatB8G8R8A8SRGB:   core1_0.FormatB8G8R8A8SRGB,
	driver.FormatB8G8R8A8UNorm:  core1_0.FormatB8G8R8A8UnsignedNormalized,
	driver.FormatR8G8B8A8SRGB:   core1_0.FormatR8G8B8A8SRGB,
	driver.FormatR8G8B8A8UNorm:  core1_0.FormatR8G8B8A8UnsignedNormalized,
	driver.FormatD32Float:       core1_0.FormatD32SignedFloat,
	driver.FormatD32FloatS8UInt: core1_0.FormatD32SignedFloatS8UnsignedInt,
	driver.FormatD24UNormS8UInt: core1_0.FormatD24UnsignedNormalizedS8UnsignedInt,
	driver.FormatR32G32Float:    core1_0.FormatR32G32SignedFloat,
	driver.FormatR32G32B32Float: core1_0.FormatR32G32B32SignedFloat,
}

func toFormat(f driver.Format) core1_0.Format {
	return formats[f]
}

// fromFormat returns FormatUndefined for formats the driver package does
// not name.
func fromFormat(f core1_0.Format) driver.Format {
	for k, v := range formats {
		if v == f {
			return k
		}
	}
	return driver.FormatUndefined
}

func fromColorSpace(c khr_surface.ColorSpace) driver.ColorSpace {
	if c == khr_surface.ColorSpaceSRGBNonlinear {
		return driver.ColorSpaceSRGBNonlinear
	}
	return driver.ColorSpaceOther
}

func toColorSpace(c driver.ColorSpace) khr_surface.ColorSpace {
	return khr_surface.ColorSpaceSRGBNonlinear
}

var presentModes = map[driver.PresentMode]khr_surface.PresentMode{
	driver.PresentModeFIFO:    khr_surface.PresentModeFIFO,
	driver.PresentModeMailbox: khr_surface.PresentModeMailbox,
}

var memoryProperties = []struct {
	from driver.MemoryProperty
	to   core1_0.MemoryPropertyFlags
}{
	{driver.MemoryDeviceLocal, core1_0.MemoryPropertyDeviceLocal},
	{driver.MemoryHostVisible, core1_0.MemoryPropertyHostVisible},
	{driver.MemoryHostCoherent, core1_0.MemoryPropertyHostCoherent},
	{driver.MemoryHostCached, core1_0.MemoryPropertyHostCached},
	{driver.MemoryLazilyAllocated, core1_0.MemoryPropertyLazilyAllocated},
}

func fromMemoryProperties(flags core1_0.MemoryPropertyFlags) driver.MemoryProperty {
	var out driver.MemoryProperty
	for _, p := range memoryProperties {
		if flags&p.to != 0 {
			out |= p.from
		}
	}
	return out
}

var formatFeatures = []struct {
	from driver.FormatFeature
	to   core1_0.FormatFeatureFlags
}{
	{driver.FeatureSampledImage, core1_0.FormatFeatureSampledImage},
	{driver.FeatureSampledImageFilterLinear, core1_0.FormatFeatureSampledImageFilterLinear},
	{driver.FeatureColorAttachment, core1_0.FormatFeatureColorAttachment},
	{driver.FeatureDepthStencilAttachment, core1_0.FormatFeatureDepthStencilAttachment},
	{driver.FeatureBlitSrc, core1_0.FormatFeatureBlitSource},
	{driver.FeatureBlitDst, core1_0.FormatFeatureBlitDestination},
}

func fromFormatFeatures(flags core1_0.FormatFeatureFlags) driver.FormatFeature {
	var out driver.FormatFeature
	for _, f := range formatFeatures {
		if flags&f.to != 0 {
			out |= f.from
		}
	}
	return out
}

func toBufferUsage(u driver.BufferUsage) core1_0.BufferUsageFlags {
	var out core1_0.BufferUsageFlags
	if u&driver.BufferUsageTransferSrc != 0 {
		out |= core1_0.BufferUsageTransferSrc
	}
	if u&driver.BufferUsageTransferDst != 0 {
		out |= core1_0.BufferUsageTransferDst
	}
	if u&driver.BufferUsageUniform != 0 {
		out |= core1_0.BufferUsageUniformBuffer
	}
	if u&driver.BufferUsageIndex != 0 {
		out |= core1_0.BufferUsageIndexBuffer
	}
	if u&driver.BufferUsageVertex != 0 {
		out |= core1_0.BufferUsageVertexBuffer
	}
	return out
}

func toImageUsage(u driver.ImageUsage) core1_0.ImageUsageFlags {
	var out core1_0.ImageUsageFlags
	if u&driver.ImageUsageTransferSrc != 0 {
		out |= core1_0.ImageUsageTransferSrc
	}
	if u&driver.ImageUsageTransferDst != 0 {
		out |= core1_0.ImageUsageTransferDst
	}
	if u&driver.ImageUsageSampled != 0 {
		out |= core1_0.ImageUsageSampled
	}
	if u&driver.ImageUsageColorAttachment != 0 {
		out |= core1_0.ImageUsageColorAttachment
	}
	if u&driver.ImageUsageDepthStencilAttachment != 0 {
		out |= core1_0.ImageUsageDepthStencilAttachment
	}
	if u&driver.ImageUsageTransientAttachment != 0 {
		out |= core1_0.ImageUsageTransientAttachment
	}
	return out
}

func toTiling(t driver.Tiling) core1_0.ImageTiling {
	if t == driver.TilingLinear {
		return core1_0.ImageTilingLinear
	}
	return core1_0.ImageTilingOptimal
}

var sampleCounts = map[driver.SampleCount]core1_0.SampleCountFlags{
	driver.Samples1:  core1_0.Samples1,
	driver.Samples2:  core1_0.Samples2,
	driver.Samples4:  core1_0.Samples4,
	driver.Samples8:  core1_0.Samples8,
	driver.Samples16: core1_0.Samples16,
	driver.Samples32: core1_0.Samples32,
	driver.Samples64: core1_0.Samples64,
}

func toSamples(s driver.SampleCount) core1_0.SampleCountFlags {
	if flags, ok := sampleCounts[s]; ok {
		return flags
	}
	return core1_0.Samples1
}

// maxSampleCount returns the highest count set in counts.
func maxSampleCount(counts core1_0.SampleCountFlags) driver.SampleCount {
	for s := driver.Samples64; s > driver.Samples1; s /= 2 {
		if counts&sampleCounts[s] != 0 {
			return s
		}
	}
	return driver.Samples1
}

func toAspect(a driver.Aspect) core1_0.ImageAspectFlags {
	var out core1_0.ImageAspectFlags
	if a&driver.AspectColor != 0 {
		out |= core1_0.ImageAspectColor
	}
	if a&driver.AspectDepth != 0 {
		out |= core1_0.ImageAspectDepth
	}
	if a&driver.AspectStencil != 0 {
		out |= core1_0.ImageAspectStencil
	}
	return out
}

var layouts = map[driver.ImageLayout]core1_0.ImageLayout{
	driver.LayoutUndefined:              core1_0.ImageLayoutUndefined,
	driver.LayoutTransferSrc:            core1_0.ImageLayoutTransferSrcOptimal,
	driver.LayoutTransferDst:            core1_0.ImageLayoutTransferDstOptimal,
	driver.LayoutShaderReadOnly:         core1_0.ImageLayoutShaderReadOnlyOptimal,
	driver.LayoutColorAttachment:        core1_0.ImageLayoutColorAttachmentOptimal,
	driver.LayoutDepthStencilAttachment: core1_0.ImageLayoutDepthStencilAttachmentOptimal,
	driver.LayoutPresentSrc:             khr_swapchain.ImageLayoutPresentSrc,
}

func toLayout(l driver.ImageLayout) core1_0.ImageLayout {
	return layouts[l]
}

// transition holds the stages and accesses a layout change synchronizes.
type transition struct {
	srcStage, dstStage   core1_0.PipelineStageFlags
	srcAccess, dstAccess core1_0.AccessFlags
}

type layoutPair struct {
	from, to driver.ImageLayout
}

var transitions = map[layoutPair]transition{
	{driver.LayoutUndefined, driver.LayoutTransferDst}: {
		srcStage: core1_0.PipelineStageTopOfPipe, dstStage: core1_0.PipelineStageTransfer,
		dstAccess: core1_0.AccessTransferWrite,
	},
	{driver.LayoutTransferDst, driver.LayoutTransferSrc}: {
		srcStage: core1_0.PipelineStageTransfer, dstStage: core1_0.PipelineStageTransfer,
		srcAccess: core1_0.AccessTransferWrite, dstAccess: core1_0.AccessTransferRead,
	},
	{driver.LayoutTransferSrc, driver.LayoutShaderReadOnly}: {
		srcStage: core1_0.PipelineStageTransfer, dstStage: core1_0.PipelineStageFragmentShader,
		srcAccess: core1_0.AccessTransferRead, dstAccess: core1_0.AccessShaderRead,
	},
	{driver.LayoutTransferDst, driver.LayoutShaderReadOnly}: {
		srcStage: core1_0.PipelineStageTransfer, dstStage: core1_0.PipelineStageFragmentShader,
		srcAccess: core1_0.AccessTransferWrite, dstAccess: core1_0.AccessShaderRead,
	},
}

func toDescriptorType(t driver.DescriptorType) core1_0.DescriptorType {
	if t == driver.DescriptorCombinedImageSampler {
		return core1_0.DescriptorTypeCombinedImageSampler
	}
	return core1_0.DescriptorTypeUniformBuffer
}

func toStages(s driver.ShaderStage) core1_0.ShaderStageFlags {
	var out core1_0.ShaderStageFlags
	if s&driver.StageVertex != 0 {
		out |= core1_0.StageVertex
	}
	if s&driver.StageFragment != 0 {
		out |= core1_0.StageFragment
	}
	return out
}

func toExtent(e driver.Extent) core1_0.Extent2D {
	return core1_0.Extent2D{Width: e.Width, Height: e.Height}
}

func fromExtent(e core1_0.Extent2D) driver.Extent {
	return driver.Extent{Width: e.Width, Height: e.Height}
}

// check converts the result of a Vulkan call into the driver's sentinel
// errors, keeping the original error as the cause.
func check(res common.VkResult, err error, op string) error {
	switch res {
	case khr_swapchain.VKErrorOutOfDate:
		return errors.Mark(errors.Wrap(errOrResult(err, res), op), driver.ErrOutOfDate)
	case khr_swapchain.VKSuboptimal:
		return errors.Mark(errors.Newf("%s: %s", op, res), driver.ErrSuboptimal)
	case core1_0.VKTimeout:
		return errors.Mark(errors.Newf("%s: %s", op, res), driver.ErrTimeout)
	case core1_0.VKNotReady:
		return errors.Mark(errors.Newf("%s: %s", op, res), driver.ErrNotReady)
	case core1_0.VKErrorDeviceLost:
		return errors.Mark(errors.Wrap(errOrResult(err, res), op), driver.ErrDeviceLost)
	}
	if err != nil {
		return errors.Wrap(err, op)
	}
	return nil
}

func errOrResult(err error, res common.VkResult) error {
	if err != nil {
		return err
	}
	return errors.Newf("%s", res)
}
