package fakedriver

import (
	"time"

	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/framepacer/driver"
)

type object struct {
	dev       *Device
	kind      string
	id        int
	destroyed bool
}

func (o *object) ID() int { return o.id }

func (o *object) Destroy() {
	o.dev.mu.Lock()
	defer o.dev.mu.Unlock()
	o.dev.destroyed(o.kind, o.id, &o.destroyed)
}

type Memory struct {
	dev        *Device
	id         int
	data       []byte
	memoryType int
	properties driver.MemoryProperty
	mapped     bool
	freed      bool
}

// Bytes returns a copy of the allocation contents.
func (m *Memory) Bytes() []byte {
	m.dev.mu.Lock()
	defer m.dev.mu.Unlock()
	return append([]byte(nil), m.data...)
}

func (m *Memory) Type() int { return m.memoryType }

func (m *Memory) Map(offset, size int) ([]byte, error) {
	m.dev.mu.Lock()
	defer m.dev.mu.Unlock()
	if !m.properties.Has(driver.MemoryHostVisible) {
		return nil, m.dev.violation("map of memory#%d without host visibility", m.id)
	}
	if m.mapped {
		return nil, m.dev.violation("memory#%d mapped twice", m.id)
	}
	if offset < 0 || size < 0 || offset+size > len(m.data) {
		return nil, m.dev.violation("map range %d+%d exceeds memory#%d of %d bytes", offset, size, m.id, len(m.data))
	}
	m.mapped = true
	return m.data[offset : offset+size : offset+size], nil
}

func (m *Memory) Unmap() {
	m.dev.mu.Lock()
	defer m.dev.mu.Unlock()
	m.mapped = false
}

func (m *Memory) Free() {
	m.dev.mu.Lock()
	defer m.dev.mu.Unlock()
	m.dev.destroyed("Memory", m.id, &m.freed)
}

type Buffer struct {
	dev       *Device
	id        int
	size      int
	usage     driver.BufferUsage
	memory    *Memory
	destroyed bool
}

func (b *Buffer) Size() int { return b.size }

func (b *Buffer) Usage() driver.BufferUsage { return b.usage }

// Memory returns the allocation the buffer is bound to.
func (b *Buffer) Memory() *Memory { return b.memory }

func (b *Buffer) Requirements() driver.MemoryRequirements {
	b.dev.mu.Lock()
	defer b.dev.mu.Unlock()
	return driver.MemoryRequirements{Size: b.size, Alignment: 4, TypeBits: b.dev.typeBits}
}

func (b *Buffer) Bind(memory driver.Memory) error {
	b.dev.mu.Lock()
	defer b.dev.mu.Unlock()
	m, ok := memory.(*Memory)
	if !ok {
		return errors.New("foreign memory")
	}
	if b.memory != nil {
		return b.dev.violation("buffer#%d bound twice", b.id)
	}
	if len(m.data) < b.size {
		return b.dev.violation("memory#%d too small for buffer#%d", m.id, b.id)
	}
	b.memory = m
	return nil
}

func (b *Buffer) Destroy() {
	b.dev.mu.Lock()
	defer b.dev.mu.Unlock()
	b.dev.destroyed("Buffer", b.id, &b.destroyed)
}

type Image struct {
	dev       *Device
	id        int
	info      driver.ImageInfo
	memory    *Memory
	swapchain bool
	destroyed bool
	layouts   []driver.ImageLayout
}

func (i *Image) ID() int { return i.id }

func (i *Image) Info() driver.ImageInfo { return i.info }

func (i *Image) Memory() *Memory { return i.memory }

// Layouts returns the layout transitions recorded against the image.
func (i *Image) Layouts() []driver.ImageLayout {
	i.dev.mu.Lock()
	defer i.dev.mu.Unlock()
	return append([]driver.ImageLayout(nil), i.layouts...)
}

func (i *Image) Requirements() driver.MemoryRequirements {
	i.dev.mu.Lock()
	defer i.dev.mu.Unlock()
	size := i.info.Extent.Width * i.info.Extent.Height * 4 * int(i.info.Samples)
	return driver.MemoryRequirements{Size: size, Alignment: 256, TypeBits: i.dev.typeBits}
}

func (i *Image) Bind(memory driver.Memory) error {
	i.dev.mu.Lock()
	defer i.dev.mu.Unlock()
	m, ok := memory.(*Memory)
	if !ok {
		return errors.New("foreign memory")
	}
	if i.memory != nil {
		return i.dev.violation("image#%d bound twice", i.id)
	}
	i.memory = m
	return nil
}

func (i *Image) Destroy() {
	i.dev.mu.Lock()
	defer i.dev.mu.Unlock()
	if i.swapchain {
		i.dev.violation("swapchain image#%d destroyed by its user", i.id)
		return
	}
	i.dev.destroyed("Image", i.id, &i.destroyed)
}

type ImageView struct {
	object
	Info driver.ImageViewInfo
}

type Semaphore struct {
	object
	signaled bool
}

// Fence is pending from submission until it is waited on, the queue or
// device is waited idle, or Retire is called.
type Fence struct {
	object
	signaled bool
	pending  bool
	hang     bool
}

// Signaled reports whether the GPU has retired the fence's submission.
func (f *Fence) Signaled() bool {
	f.dev.mu.Lock()
	defer f.dev.mu.Unlock()
	return f.signaled
}

// Pending reports whether a submission that arms the fence has not yet
// retired.
func (f *Fence) Pending() bool {
	f.dev.mu.Lock()
	defer f.dev.mu.Unlock()
	return f.pending
}

// Hang makes every later wait on the fence time out.
func (f *Fence) Hang() {
	f.dev.mu.Lock()
	defer f.dev.mu.Unlock()
	f.hang = true
}

// Retire completes the fence's pending submission.
func (f *Fence) Retire() {
	f.dev.mu.Lock()
	defer f.dev.mu.Unlock()
	if f.pending {
		f.pending = false
		f.signaled = true
	}
}

func (f *Fence) Wait(timeout time.Duration) error {
	f.dev.mu.Lock()
	defer f.dev.mu.Unlock()
	f.dev.record("Fence.Wait", f.id)
	if f.hang {
		return driver.ErrTimeout
	}
	if f.pending {
		f.pending = false
		f.signaled = true
	}
	if !f.signaled {
		return driver.ErrTimeout
	}
	return nil
}

func (f *Fence) Reset() error {
	f.dev.mu.Lock()
	defer f.dev.mu.Unlock()
	f.dev.record("Fence.Reset", f.id)
	if f.pending {
		return f.dev.violation("fence#%d reset while pending", f.id)
	}
	f.signaled = false
	return nil
}

type CommandPool struct {
	object
}

func (p *CommandPool) Allocate() (driver.CommandBuffer, error) {
	p.dev.mu.Lock()
	defer p.dev.mu.Unlock()
	if err := p.dev.takeFailure("AllocateCommandBuffer"); err != nil {
		return nil, err
	}
	return &CommandBuffer{dev: p.dev, id: p.dev.created("CommandBuffer")}, nil
}

// CommandBuffer records command names and defers copies until submission.
type CommandBuffer struct {
	dev       *Device
	id        int
	recording bool
	ended     bool
	oneTime   bool
	commands  []string
	ops       []func()
	freed     bool
}

func (c *CommandBuffer) ID() int { return c.id }

// Commands returns the names of the commands recorded since the last
// Begin.
func (c *CommandBuffer) Commands() []string {
	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()
	return append([]string(nil), c.commands...)
}

func (c *CommandBuffer) Begin(oneTimeSubmit bool) error {
	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()
	if c.recording {
		return c.dev.violation("command buffer#%d begun while recording", c.id)
	}
	c.recording, c.ended, c.oneTime = true, false, oneTimeSubmit
	c.commands, c.ops = nil, nil
	return nil
}

func (c *CommandBuffer) End() error {
	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()
	if !c.recording {
		return c.dev.violation("command buffer#%d ended while not recording", c.id)
	}
	c.recording, c.ended = false, true
	return nil
}

func (c *CommandBuffer) Reset() error {
	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()
	c.dev.record("CommandBuffer.Reset", c.id)
	c.recording, c.ended = false, false
	c.commands, c.ops = nil, nil
	return nil
}

// Ended reports whether End was called since the last Begin or Reset.
func (c *CommandBuffer) Ended() bool {
	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()
	return c.ended
}

func (c *CommandBuffer) Free() {
	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()
	c.dev.destroyed("CommandBuffer", c.id, &c.freed)
}

func (c *CommandBuffer) add(name string, op func()) error {
	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()
	if !c.recording {
		return c.dev.violation("%s recorded into command buffer#%d outside Begin/End", name, c.id)
	}
	c.commands = append(c.commands, name)
	if op != nil {
		c.ops = append(c.ops, op)
	}
	return nil
}

func (c *CommandBuffer) BeginRenderPass(begin driver.RenderPassBegin) error {
	return c.add("BeginRenderPass", nil)
}

func (c *CommandBuffer) EndRenderPass() { _ = c.add("EndRenderPass", nil) }

func (c *CommandBuffer) BindPipeline(driver.Pipeline) { _ = c.add("BindPipeline", nil) }

func (c *CommandBuffer) BindVertexBuffer(driver.Buffer) { _ = c.add("BindVertexBuffer", nil) }

func (c *CommandBuffer) BindIndexBuffer(driver.Buffer) { _ = c.add("BindIndexBuffer", nil) }

func (c *CommandBuffer) BindDescriptorSet(driver.Pipeline, driver.DescriptorSet) {
	_ = c.add("BindDescriptorSet", nil)
}

func (c *CommandBuffer) DrawIndexed(indexCount int) { _ = c.add("DrawIndexed", nil) }

func (c *CommandBuffer) CopyBuffer(src, dst driver.Buffer, size int) error {
	s, sok := src.(*Buffer)
	d, dok := dst.(*Buffer)
	if !sok || !dok {
		return errors.New("foreign buffer")
	}
	if s.memory == nil || d.memory == nil {
		return errors.New("copy between unbound buffers")
	}
	if size > s.size || size > d.size {
		return errors.Newf("copy of %d bytes exceeds buffer sizes %d/%d", size, s.size, d.size)
	}
	return c.add("CopyBuffer", func() {
		copy(d.memory.data[:size], s.memory.data[:size])
	})
}

func (c *CommandBuffer) CopyBufferToImage(src driver.Buffer, dst driver.Image, extent driver.Extent) error {
	s, sok := src.(*Buffer)
	i, iok := dst.(*Image)
	if !sok || !iok {
		return errors.New("foreign object")
	}
	return c.add("CopyBufferToImage", func() {
		if i.memory != nil && s.memory != nil {
			copy(i.memory.data, s.memory.data)
		}
	})
}

func (c *CommandBuffer) PipelineBarrier(barrier driver.ImageBarrier) error {
	i, ok := barrier.Image.(*Image)
	if !ok {
		return errors.New("foreign image")
	}
	return c.add("PipelineBarrier", func() {
		i.layouts = append(i.layouts, barrier.NewLayout)
	})
}

func (c *CommandBuffer) BlitImage(image driver.Image, region driver.BlitRegion) error {
	return c.add("BlitImage", nil)
}

type Queue struct {
	dev       *Device
	id        int
	name      string
	submitted []*CommandBuffer
}

// Submitted returns the command buffers submitted to the queue, in order.
func (q *Queue) Submitted() []*CommandBuffer {
	q.dev.mu.Lock()
	defer q.dev.mu.Unlock()
	return append([]*CommandBuffer(nil), q.submitted...)
}

func (q *Queue) Submit(info driver.SubmitInfo, fence driver.Fence) error {
	q.dev.mu.Lock()
	defer q.dev.mu.Unlock()
	call := Call{Op: "Submit", Object: q.id}
	if f, ok := fence.(*Fence); ok {
		call.Fence = f.id
	}
	q.dev.calls = append(q.dev.calls, call)
	if err := q.dev.takeFailure("Submit"); err != nil {
		return err
	}
	for _, s := range info.WaitSemaphores {
		sem := s.(*Semaphore)
		if !sem.signaled {
			return q.dev.violation("submit waits on unsignaled semaphore#%d", sem.id)
		}
		sem.signaled = false
	}
	for _, b := range info.CommandBuffers {
		cb := b.(*CommandBuffer)
		if !cb.ended {
			return q.dev.violation("command buffer#%d submitted before End", cb.id)
		}
		for _, op := range cb.ops {
			op()
		}
		q.submitted = append(q.submitted, cb)
	}
	for _, s := range info.SignalSemaphores {
		s.(*Semaphore).signaled = true
	}
	if fence != nil {
		f := fence.(*Fence)
		if f.pending || f.signaled {
			return q.dev.violation("submit arms fence#%d that was not reset", f.id)
		}
		f.pending = true
	}
	return nil
}

func (q *Queue) WaitIdle() error {
	q.dev.mu.Lock()
	defer q.dev.mu.Unlock()
	q.dev.record("Queue.WaitIdle", q.id)
	q.dev.retireAll()
	return nil
}

type RenderPass struct {
	object
	Info driver.RenderPassInfo
}

type Framebuffer struct {
	object
	Info driver.FramebufferInfo
}

type Pipeline struct {
	object
	Info driver.PipelineInfo
}

type DescriptorPool struct {
	object
	capacity  int
	allocated int
}

func (p *DescriptorPool) Allocate(count int) ([]driver.DescriptorSet, error) {
	p.dev.mu.Lock()
	defer p.dev.mu.Unlock()
	if p.allocated+count > p.capacity {
		return nil, p.dev.violation("descriptor pool#%d exhausted", p.id)
	}
	p.allocated += count
	sets := make([]driver.DescriptorSet, count)
	for i := range sets {
		sets[i] = &DescriptorSet{dev: p.dev, id: p.dev.newID(), Buffers: map[int]driver.Buffer{}}
	}
	return sets, nil
}

type DescriptorSet struct {
	dev     *Device
	id      int
	Buffers map[int]driver.Buffer
	Images  int
}

func (s *DescriptorSet) WriteBuffer(binding int, buffer driver.Buffer, size int) error {
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()
	s.Buffers[binding] = buffer
	return nil
}

func (s *DescriptorSet) WriteImage(binding int, view driver.ImageView, sampler driver.Sampler) error {
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()
	s.Images++
	return nil
}
