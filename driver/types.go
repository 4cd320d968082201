package driver

import (
	"fmt"
	"time"
)

// NoTimeout blocks until the operation completes.
const NoTimeout = time.Duration(1<<63 - 1)

// Extent is a two-dimensional size in pixels.
type Extent struct {
	Width  int
	Height int
}

// UndefinedExtent is reported by surfaces whose size is decided by the
// swapchain rather than by the window system.
var UndefinedExtent = Extent{Width: -1, Height: -1}

// Empty reports whether the extent has zero area.
func (e Extent) Empty() bool {
	return e.Width <= 0 || e.Height <= 0
}

func (e Extent) String() string {
	return fmt.Sprintf("%dx%d", e.Width, e.Height)
}

type Format int

const (
	FormatUndefined Format = iota
	FormatB8G8R8A8SRGB
	FormatB8G8R8A8UNorm
	FormatR8G8B8A8SRGB
	FormatR8G8B8A8UNorm
	FormatD32Float
	FormatD32FloatS8UInt
	FormatD24UNormS8UInt
	FormatR32G32Float
	FormatR32G32B32Float
)

var formatNames = map[Format]string{
	FormatUndefined:      "Undefined",
	FormatB8G8R8A8SRGB:   "B8G8R8A8_SRGB",
	FormatB8G8R8A8UNorm:  "B8G8R8A8_UNORM",
	FormatR8G8B8A8SRGB:   "R8G8B8A8_SRGB",
	FormatR8G8B8A8UNorm:  "R8G8B8A8_UNORM",
	FormatD32Float:       "D32_SFLOAT",
	FormatD32FloatS8UInt: "D32_SFLOAT_S8_UINT",
	FormatD24UNormS8UInt: "D24_UNORM_S8_UINT",
	FormatR32G32Float:    "R32G32_SFLOAT",
	FormatR32G32B32Float: "R32G32B32_SFLOAT",
}

func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// IsDepth reports whether f is a depth or depth/stencil format.
func (f Format) IsDepth() bool {
	return f == FormatD32Float || f == FormatD32FloatS8UInt || f == FormatD24UNormS8UInt
}

// HasStencil reports whether f carries a stencil component.
func (f Format) HasStencil() bool {
	return f == FormatD32FloatS8UInt || f == FormatD24UNormS8UInt
}

type ColorSpace int

const (
	ColorSpaceSRGBNonlinear ColorSpace = iota
	ColorSpaceOther
)

type SurfaceFormat struct {
	Format     Format
	ColorSpace ColorSpace
}

type PresentMode int

const (
	PresentModeFIFO PresentMode = iota
	PresentModeMailbox
	PresentModeImmediate
	PresentModeFIFORelaxed
)

// SurfaceCapabilities mirrors what a window surface reports for the current
// device. MaxImageCount of zero means there is no upper limit.
type SurfaceCapabilities struct {
	MinImageCount  int
	MaxImageCount  int
	CurrentExtent  Extent
	MinImageExtent Extent
	MaxImageExtent Extent
}

type MemoryProperty uint32

const (
	MemoryDeviceLocal MemoryProperty = 1 << iota
	MemoryHostVisible
	MemoryHostCoherent
	MemoryHostCached
	MemoryLazilyAllocated
)

// Has reports whether every flag in want is set in p.
func (p MemoryProperty) Has(want MemoryProperty) bool {
	return p&want == want
}

func (p MemoryProperty) String() string {
	names := []string{"DeviceLocal", "HostVisible", "HostCoherent", "HostCached", "LazilyAllocated"}
	var out string
	for i, name := range names {
		if p&(1<<i) != 0 {
			if out != "" {
				out += "|"
			}
			out += name
		}
	}
	if out == "" {
		return "None"
	}
	return out
}

type MemoryType struct {
	Properties MemoryProperty
	HeapIndex  int
}

type MemoryRequirements struct {
	Size      int
	Alignment int
	// TypeBits has bit i set when memory type i may back the object.
	TypeBits uint32
}

type BufferUsage uint32

const (
	BufferUsageTransferSrc BufferUsage = 1 << iota
	BufferUsageTransferDst
	BufferUsageUniform
	BufferUsageIndex
	BufferUsageVertex
)

type ImageUsage uint32

const (
	ImageUsageTransferSrc ImageUsage = 1 << iota
	ImageUsageTransferDst
	ImageUsageSampled
	ImageUsageColorAttachment
	ImageUsageDepthStencilAttachment
	ImageUsageTransientAttachment
)

type Tiling int

const (
	TilingOptimal Tiling = iota
	TilingLinear
)

// SampleCount is the number of samples per pixel: 1, 2, 4, 8, 16, 32 or 64.
type SampleCount int

const (
	Samples1  SampleCount = 1
	Samples2  SampleCount = 2
	Samples4  SampleCount = 4
	Samples8  SampleCount = 8
	Samples16 SampleCount = 16
	Samples32 SampleCount = 32
	Samples64 SampleCount = 64
)

type Aspect uint32

const (
	AspectColor Aspect = 1 << iota
	AspectDepth
	AspectStencil
)

type ImageLayout int

const (
	LayoutUndefined ImageLayout = iota
	LayoutTransferSrc
	LayoutTransferDst
	LayoutShaderReadOnly
	LayoutColorAttachment
	LayoutDepthStencilAttachment
	LayoutPresentSrc
)

var layoutNames = [...]string{"Undefined", "TransferSrc", "TransferDst", "ShaderReadOnly", "ColorAttachment", "DepthStencilAttachment", "PresentSrc"}

func (l ImageLayout) String() string {
	if int(l) >= 0 && int(l) < len(layoutNames) {
		return layoutNames[l]
	}
	return fmt.Sprintf("ImageLayout(%d)", int(l))
}

type FormatFeature uint32

const (
	FeatureSampledImage FormatFeature = 1 << iota
	FeatureSampledImageFilterLinear
	FeatureColorAttachment
	FeatureDepthStencilAttachment
	FeatureBlitSrc
	FeatureBlitDst
)

type BufferInfo struct {
	Size  int
	Usage BufferUsage
}

type ImageInfo struct {
	Extent    Extent
	MipLevels int
	Format    Format
	Tiling    Tiling
	Usage     ImageUsage
	Samples   SampleCount
}

type ImageViewInfo struct {
	Image     Image
	Format    Format
	Aspect    Aspect
	MipLevels int
}

type SamplerInfo struct {
	MipLevels int
	// Anisotropy of zero disables anisotropic filtering.
	Anisotropy float32
}

type SwapchainInfo struct {
	Surface       Surface
	MinImageCount int
	Format        SurfaceFormat
	Extent        Extent
	PresentMode   PresentMode
}

// RenderPassInfo describes a single-subpass pass with one color and one
// depth attachment. When Samples is greater than one the color attachment
// is multisampled and resolved into a third, single-sampled attachment
// that ends in the presentable layout.
type RenderPassInfo struct {
	ColorFormat Format
	DepthFormat Format
	Samples     SampleCount
}

type FramebufferInfo struct {
	RenderPass  RenderPass
	Attachments []ImageView
	Extent      Extent
}

type RenderPassBegin struct {
	RenderPass  RenderPass
	Framebuffer Framebuffer
	Extent      Extent
	ClearColor  [4]float32
	ClearDepth  float32
	Stencil     uint32
}

type SubmitInfo struct {
	WaitSemaphores   []Semaphore
	CommandBuffers   []CommandBuffer
	SignalSemaphores []Semaphore
}

type ImageBarrier struct {
	Image        Image
	Aspect       Aspect
	OldLayout    ImageLayout
	NewLayout    ImageLayout
	BaseMipLevel int
	LevelCount   int
}

// BlitRegion copies mip level SrcMip of an image into DstMip of the same
// image with linear filtering.
type BlitRegion struct {
	SrcMip    int
	SrcExtent Extent
	DstMip    int
	DstExtent Extent
}

type DescriptorType int

const (
	DescriptorUniformBuffer DescriptorType = iota
	DescriptorCombinedImageSampler
)

type ShaderStage uint32

const (
	StageVertex ShaderStage = 1 << iota
	StageFragment
)

type DescriptorBinding struct {
	Binding int
	Type    DescriptorType
	Stages  ShaderStage
}

type VertexAttribute struct {
	Location int
	Format   Format
	Offset   int
}

type VertexLayout struct {
	Stride     int
	Attributes []VertexAttribute
}

// PipelineInfo describes a triangle-list graphics pipeline with depth
// testing and a fixed viewport covering Extent.
type PipelineInfo struct {
	RenderPass     RenderPass
	Layout         DescriptorLayout
	VertexShader   []byte
	FragmentShader []byte
	Vertex         VertexLayout
	Extent         Extent
	Samples        SampleCount
}
