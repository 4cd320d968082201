package vulkan

import (
	"time"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/framepacer/driver"
)

type Buffer struct {
	dev    *Device
	buffer core1_0.Buffer
}

func (b *Buffer) Requirements() driver.MemoryRequirements {
	return fromRequirements(b.dev.device.GetBufferMemoryRequirements(b.buffer))
}

func (b *Buffer) Bind(memory driver.Memory) error {
	_, err := b.dev.device.BindBufferMemory(b.buffer, memory.(*Memory).memory, 0)
	return errors.Wrap(err, "bind buffer memory")
}

func (b *Buffer) Destroy() { b.dev.device.DestroyBuffer(b.buffer, nil) }

// Image is either an image the device created or one owned by a swapchain,
// which Destroy leaves alone.
type Image struct {
	dev       *Device
	image     core1_0.Image
	swapchain bool
}

func (i *Image) Requirements() driver.MemoryRequirements {
	return fromRequirements(i.dev.device.GetImageMemoryRequirements(i.image))
}

func (i *Image) Bind(memory driver.Memory) error {
	_, err := i.dev.device.BindImageMemory(i.image, memory.(*Memory).memory, 0)
	return errors.Wrap(err, "bind image memory")
}

func (i *Image) Destroy() {
	if !i.swapchain {
		i.dev.device.DestroyImage(i.image, nil)
	}
}

func fromRequirements(req *core1_0.MemoryRequirements) driver.MemoryRequirements {
	return driver.MemoryRequirements{
		Size:      req.Size,
		Alignment: req.Alignment,
		TypeBits:  req.MemoryTypeBits,
	}
}

type Memory struct {
	dev    *Device
	memory core1_0.DeviceMemory
}

func (m *Memory) Map(offset, size int) ([]byte, error) {
	ptr, _, err := m.dev.device.MapMemory(m.memory, offset, size, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "map %d bytes at %d", size, offset)
	}
	return unsafe.Slice((*byte)(ptr), size), nil
}

func (m *Memory) Unmap() { m.dev.device.UnmapMemory(m.memory) }

func (m *Memory) Free() { m.dev.device.FreeMemory(m.memory, nil) }

type ImageView struct {
	dev  *Device
	view core1_0.ImageView
}

func (v *ImageView) Destroy() { v.dev.device.DestroyImageView(v.view, nil) }

type Sampler struct {
	dev     *Device
	sampler core1_0.Sampler
}

func (s *Sampler) Destroy() { s.dev.device.DestroySampler(s.sampler, nil) }

type Semaphore struct {
	dev       *Device
	semaphore core1_0.Semaphore
}

func (s *Semaphore) Destroy() { s.dev.device.DestroySemaphore(s.semaphore, nil) }

func semaphores(in []driver.Semaphore) []core1_0.Semaphore {
	out := make([]core1_0.Semaphore, 0, len(in))
	for _, s := range in {
		out = append(out, s.(*Semaphore).semaphore)
	}
	return out
}

type Fence struct {
	dev   *Device
	fence core1_0.Fence
}

func (f *Fence) Wait(timeout time.Duration) error {
	res, err := f.dev.device.WaitForFences(true, timeout, f.fence)
	return check(res, err, "wait for fence")
}

func (f *Fence) Reset() error {
	_, err := f.dev.device.ResetFences(f.fence)
	return errors.Wrap(err, "reset fence")
}

func (f *Fence) Destroy() { f.dev.device.DestroyFence(f.fence, nil) }

type CommandPool struct {
	dev  *Device
	pool core1_0.CommandPool
}

func (p *CommandPool) Allocate() (driver.CommandBuffer, error) {
	buffers, _, err := p.dev.device.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        p.pool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	})
	if err != nil {
		return nil, errors.Wrap(err, "allocate command buffer")
	}
	return &CommandBuffer{dev: p.dev, buffer: buffers[0]}, nil
}

func (p *CommandPool) Destroy() { p.dev.device.DestroyCommandPool(p.pool, nil) }

type CommandBuffer struct {
	dev    *Device
	buffer core1_0.CommandBuffer
}

func (c *CommandBuffer) Begin(oneTimeSubmit bool) error {
	var info core1_0.CommandBufferBeginInfo
	if oneTimeSubmit {
		info.Flags = core1_0.CommandBufferUsageOneTimeSubmit
	}
	_, err := c.dev.device.BeginCommandBuffer(c.buffer, info)
	return errors.Wrap(err, "begin command buffer")
}

func (c *CommandBuffer) End() error {
	_, err := c.dev.device.EndCommandBuffer(c.buffer)
	return errors.Wrap(err, "end command buffer")
}

func (c *CommandBuffer) Reset() error {
	_, err := c.dev.device.ResetCommandBuffer(c.buffer, 0)
	return errors.Wrap(err, "reset command buffer")
}

func (c *CommandBuffer) Free() { c.dev.device.FreeCommandBuffers(c.buffer) }

func (c *CommandBuffer) BeginRenderPass(begin driver.RenderPassBegin) error {
	cc := begin.ClearColor
	err := c.dev.device.CmdBeginRenderPass(c.buffer, core1_0.SubpassContentsInline,
		core1_0.RenderPassBeginInfo{
			RenderPass:  begin.RenderPass.(*RenderPass).pass,
			Framebuffer: begin.Framebuffer.(*Framebuffer).framebuffer,
			RenderArea: core1_0.Rect2D{
				Offset: core1_0.Offset2D{X: 0, Y: 0},
				Extent: toExtent(begin.Extent),
			},
			ClearValues: []core1_0.ClearValue{
				core1_0.ClearValueFloat{cc[0], cc[1], cc[2], cc[3]},
				core1_0.ClearValueDepthStencil{Depth: begin.ClearDepth, Stencil: begin.Stencil},
			},
		})
	return errors.Wrap(err, "begin render pass")
}

func (c *CommandBuffer) EndRenderPass() { c.dev.device.CmdEndRenderPass(c.buffer) }

func (c *CommandBuffer) BindPipeline(pipeline driver.Pipeline) {
	c.dev.device.CmdBindPipeline(c.buffer, core1_0.PipelineBindPointGraphics, pipeline.(*Pipeline).pipeline)
}

func (c *CommandBuffer) BindVertexBuffer(buffer driver.Buffer) {
	c.dev.device.CmdBindVertexBuffers(c.buffer, 0, []core1_0.Buffer{buffer.(*Buffer).buffer}, []int{0})
}

func (c *CommandBuffer) BindIndexBuffer(buffer driver.Buffer) {
	c.dev.device.CmdBindIndexBuffer(c.buffer, buffer.(*Buffer).buffer, 0, core1_0.IndexTypeUInt32)
}

func (c *CommandBuffer) BindDescriptorSet(pipeline driver.Pipeline, set driver.DescriptorSet) {
	c.dev.device.CmdBindDescriptorSets(c.buffer, core1_0.PipelineBindPointGraphics, pipeline.(*Pipeline).layout, 0,
		[]core1_0.DescriptorSet{set.(*DescriptorSet).set}, nil)
}

func (c *CommandBuffer) DrawIndexed(indexCount int) {
	c.dev.device.CmdDrawIndexed(c.buffer, indexCount, 1, 0, 0, 0)
}

func (c *CommandBuffer) CopyBuffer(src, dst driver.Buffer, size int) error {
	err := c.dev.device.CmdCopyBuffer(c.buffer, src.(*Buffer).buffer, dst.(*Buffer).buffer,
		core1_0.BufferCopy{
			SrcOffset: 0,
			DstOffset: 0,
			Size:      size,
		},
	)
	return errors.Wrap(err, "copy buffer")
}

func (c *CommandBuffer) CopyBufferToImage(src driver.Buffer, dst driver.Image, extent driver.Extent) error {
	err := c.dev.device.CmdCopyBufferToImage(c.buffer, src.(*Buffer).buffer, dst.(*Image).image, core1_0.ImageLayoutTransferDstOptimal,
		core1_0.BufferImageCopy{
			ImageSubresource: core1_0.ImageSubresourceLayers{
				AspectMask:     core1_0.ImageAspectColor,
				MipLevel:       0,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
			ImageOffset: core1_0.Offset3D{X: 0, Y: 0, Z: 0},
			ImageExtent: core1_0.Extent3D{Width: extent.Width, Height: extent.Height, Depth: 1},
		},
	)
	return errors.Wrap(err, "copy buffer to image")
}

// PipelineBarrier supports the layout transitions of a texture upload and
// its mip chain generation.
func (c *CommandBuffer) PipelineBarrier(barrier driver.ImageBarrier) error {
	t, ok := transitions[layoutPair{barrier.OldLayout, barrier.NewLayout}]
	if !ok {
		return errors.Newf("unexpected layout transition: %s -> %s", barrier.OldLayout, barrier.NewLayout)
	}
	levels := barrier.LevelCount
	if levels == 0 {
		levels = 1
	}
	err := c.dev.device.CmdPipelineBarrier(c.buffer, t.srcStage, t.dstStage, 0, nil, nil, []core1_0.ImageMemoryBarrier{
		{
			OldLayout:           toLayout(barrier.OldLayout),
			NewLayout:           toLayout(barrier.NewLayout),
			SrcQueueFamilyIndex: -1,
			DstQueueFamilyIndex: -1,
			Image:               barrier.Image.(*Image).image,
			SubresourceRange: core1_0.ImageSubresourceRange{
				AspectMask:     toAspect(barrier.Aspect),
				BaseMipLevel:   barrier.BaseMipLevel,
				LevelCount:     levels,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
			SrcAccessMask: t.srcAccess,
			DstAccessMask: t.dstAccess,
		},
	})
	return errors.Wrapf(err, "transition %s -> %s", barrier.OldLayout, barrier.NewLayout)
}

func (c *CommandBuffer) BlitImage(image driver.Image, region driver.BlitRegion) error {
	img := image.(*Image).image
	err := c.dev.device.CmdBlitImage(c.buffer, img, core1_0.ImageLayoutTransferSrcOptimal, img, core1_0.ImageLayoutTransferDstOptimal, []core1_0.ImageBlit{
		{
			SrcSubresource: core1_0.ImageSubresourceLayers{
				AspectMask:     core1_0.ImageAspectColor,
				MipLevel:       region.SrcMip,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
			SrcOffsets: [2]core1_0.Offset3D{
				{X: 0, Y: 0, Z: 0},
				{X: region.SrcExtent.Width, Y: region.SrcExtent.Height, Z: 1},
			},
			DstSubresource: core1_0.ImageSubresourceLayers{
				AspectMask:     core1_0.ImageAspectColor,
				MipLevel:       region.DstMip,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
			DstOffsets: [2]core1_0.Offset3D{
				{X: 0, Y: 0, Z: 0},
				{X: region.DstExtent.Width, Y: region.DstExtent.Height, Z: 1},
			},
		},
	}, core1_0.FilterLinear)
	return errors.Wrapf(err, "blit mip %d to %d", region.SrcMip, region.DstMip)
}

type Queue struct {
	dev   *Device
	queue core1_0.Queue
}

func (q *Queue) Submit(info driver.SubmitInfo, fence driver.Fence) error {
	var buffers []core1_0.CommandBuffer
	for _, b := range info.CommandBuffers {
		buffers = append(buffers, b.(*CommandBuffer).buffer)
	}
	var stages []core1_0.PipelineStageFlags
	for range info.WaitSemaphores {
		stages = append(stages, core1_0.PipelineStageColorAttachmentOutput)
	}

	var vkFence *core1_0.Fence
	if fence != nil {
		vkFence = &fence.(*Fence).fence
	}
	res, err := q.dev.device.QueueSubmit(q.queue, vkFence,
		core1_0.SubmitInfo{
			WaitSemaphores:   semaphores(info.WaitSemaphores),
			WaitDstStageMask: stages,
			CommandBuffers:   buffers,
			SignalSemaphores: semaphores(info.SignalSemaphores),
		},
	)
	return check(res, err, "submit")
}

func (q *Queue) WaitIdle() error {
	_, err := q.dev.device.QueueWaitIdle(q.queue)
	return errors.Wrap(err, "wait for queue idle")
}
