// Package driver defines the backend-neutral GPU object model the frame
// presentation core is written against.
//
// Every object is created by a Device and must be destroyed by its owner;
// the driver performs no reference counting and no sub-allocation. The
// vulkan package provides the production implementation.
package driver

import "time"

// Device creates GPU objects and exposes the queues they are submitted to.
type Device interface {
	MemoryTypes() []MemoryType
	// MaxSampleCount is the highest sample count usable for both color and
	// depth framebuffer attachments.
	MaxSampleCount() SampleCount
	FormatFeatures(format Format, tiling Tiling) FormatFeature

	CreateBuffer(info BufferInfo) (Buffer, error)
	CreateImage(info ImageInfo) (Image, error)
	AllocateMemory(size int, memoryType int) (Memory, error)
	CreateImageView(info ImageViewInfo) (ImageView, error)
	CreateSampler(info SamplerInfo) (Sampler, error)

	CreateSemaphore() (Semaphore, error)
	CreateFence(signaled bool) (Fence, error)
	// CreateCommandPool creates a pool on the graphics queue family whose
	// command buffers may be individually reset.
	CreateCommandPool() (CommandPool, error)

	CreateRenderPass(info RenderPassInfo) (RenderPass, error)
	CreateFramebuffer(info FramebufferInfo) (Framebuffer, error)
	CreateDescriptorLayout(bindings []DescriptorBinding) (DescriptorLayout, error)
	CreateDescriptorPool(layout DescriptorLayout, sets int) (DescriptorPool, error)
	CreatePipeline(info PipelineInfo) (Pipeline, error)
	CreateSwapchain(info SwapchainInfo) (Swapchain, error)

	GraphicsQueue() Queue
	PresentQueue() Queue
	// WaitIdle blocks until every queue of the device is idle.
	WaitIdle() error
}

// Surface is a window surface bound to the device's physical device.
type Surface interface {
	Capabilities() (SurfaceCapabilities, error)
	Formats() ([]SurfaceFormat, error)
	PresentModes() ([]PresentMode, error)
}

type Buffer interface {
	Requirements() MemoryRequirements
	Bind(memory Memory) error
	Destroy()
}

type Image interface {
	Requirements() MemoryRequirements
	Bind(memory Memory) error
	Destroy()
}

// Memory is one device allocation. Only host-visible memory can be mapped.
type Memory interface {
	Map(offset, size int) ([]byte, error)
	Unmap()
	Free()
}

type ImageView interface{ Destroy() }

type Sampler interface{ Destroy() }

type Semaphore interface{ Destroy() }

// Fence is signaled by the GPU when a submission retires.
type Fence interface {
	// Wait returns ErrTimeout if the fence is not signaled within timeout.
	Wait(timeout time.Duration) error
	Reset() error
	Destroy()
}

type CommandPool interface {
	Allocate() (CommandBuffer, error)
	Destroy()
}

// CommandBuffer records GPU commands. Commands are only valid between
// Begin and End.
type CommandBuffer interface {
	Begin(oneTimeSubmit bool) error
	End() error
	Reset() error
	Free()

	BeginRenderPass(begin RenderPassBegin) error
	EndRenderPass()
	BindPipeline(pipeline Pipeline)
	BindVertexBuffer(buffer Buffer)
	BindIndexBuffer(buffer Buffer)
	BindDescriptorSet(pipeline Pipeline, set DescriptorSet)
	DrawIndexed(indexCount int)

	CopyBuffer(src, dst Buffer, size int) error
	CopyBufferToImage(src Buffer, dst Image, extent Extent) error
	PipelineBarrier(barrier ImageBarrier) error
	BlitImage(image Image, region BlitRegion) error
}

type Queue interface {
	// Submit queues the command buffers. fence may be nil.
	Submit(info SubmitInfo, fence Fence) error
	WaitIdle() error
}

type RenderPass interface{ Destroy() }

type Framebuffer interface{ Destroy() }

type DescriptorLayout interface{ Destroy() }

type DescriptorPool interface {
	Allocate(count int) ([]DescriptorSet, error)
	Destroy()
}

type DescriptorSet interface {
	WriteBuffer(binding int, buffer Buffer, size int) error
	WriteImage(binding int, view ImageView, sampler Sampler) error
}

type Pipeline interface{ Destroy() }

// Swapchain is the raw presentation engine object.
type Swapchain interface {
	Images() ([]Image, error)
	// AcquireNextImage returns ErrOutOfDate, ErrSuboptimal, ErrNotReady or
	// ErrTimeout for the non-success results of the presentation engine.
	// With ErrSuboptimal the returned index is valid.
	AcquireNextImage(timeout time.Duration, signal Semaphore, fence Fence) (int, error)
	// Present returns ErrOutOfDate or ErrSuboptimal when the swapchain no
	// longer matches the surface.
	Present(queue Queue, imageIndex int, wait []Semaphore) error
	Destroy()
}
