// Package fakedriver is an in-memory implementation of package driver.
//
// It keeps a log of the calls that matter for frame pacing, tracks live
// objects by kind so tests can detect leaks, executes buffer copies on
// submission so uploads can be read back, and models fences as pending
// until they are waited on or the device goes idle.
package fakedriver

import (
	"fmt"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/framepacer/driver"
)

// Call is one entry of the device call log. Object is the id of the
// object the call was made on, or zero.
type Call struct {
	Op     string
	Object int
	// Fence is the fence a Submit arms, or zero.
	Fence int
}

func (c Call) String() string {
	s := c.Op
	if c.Object != 0 {
		s = fmt.Sprintf("%s#%d", s, c.Object)
	}
	if c.Fence != 0 {
		s = fmt.Sprintf("%s fence#%d", s, c.Fence)
	}
	return s
}

type Device struct {
	mu sync.Mutex

	memoryTypes []driver.MemoryType
	typeBits    uint32
	maxSamples  driver.SampleCount
	features    map[driver.Format]driver.FormatFeature

	nextID  int
	live    map[string]int
	calls   []Call
	misuse  []string
	fences  []*Fence
	failure map[string]error

	acquireResults []error
	presentResults []error

	graphics *Queue
	present  *Queue
}

var _ driver.Device = (*Device)(nil)

// New returns a device exposing one device-local and two host-visible
// memory types, 8x MSAA, and every feature on every format.
func New() *Device {
	d := &Device{
		memoryTypes: []driver.MemoryType{
			{Properties: driver.MemoryDeviceLocal, HeapIndex: 0},
			{Properties: driver.MemoryHostVisible | driver.MemoryHostCoherent, HeapIndex: 1},
			{Properties: driver.MemoryHostVisible | driver.MemoryHostCoherent | driver.MemoryHostCached, HeapIndex: 1},
		},
		typeBits:   0b111,
		maxSamples: driver.Samples8,
		features:   map[driver.Format]driver.FormatFeature{},
		live:       map[string]int{},
		failure:    map[string]error{},
	}
	d.graphics = &Queue{dev: d, id: d.newID(), name: "graphics"}
	d.present = &Queue{dev: d, id: d.newID(), name: "present"}
	return d
}

// SetMemoryTypes replaces the exposed memory types. typeBits becomes the
// requirement mask reported by every buffer and image.
func (d *Device) SetMemoryTypes(types []driver.MemoryType, typeBits uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.memoryTypes = types
	d.typeBits = typeBits
}

func (d *Device) SetMaxSampleCount(samples driver.SampleCount) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.maxSamples = samples
}

// SetFormatFeatures restricts the features of format. Formats never set
// support everything.
func (d *Device) SetFormatFeatures(format driver.Format, features driver.FormatFeature) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.features[format] = features
}

// FailNext makes the next call to op (for example "CreateSwapchain")
// return err.
func (d *Device) FailNext(op string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failure[op] = err
}

// QueueAcquireResults makes the next swapchain acquisitions return errs in
// order. A nil entry is a plain success.
func (d *Device) QueueAcquireResults(errs ...error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.acquireResults = append(d.acquireResults, errs...)
}

// QueuePresentResults makes the next presentations return errs in order.
func (d *Device) QueuePresentResults(errs ...error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.presentResults = append(d.presentResults, errs...)
}

// Calls returns a copy of the call log.
func (d *Device) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Call(nil), d.calls...)
}

// Count returns how many times op appears in the call log.
func (d *Device) Count(op string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// ResetCalls clears the call log.
func (d *Device) ResetCalls() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = nil
}

// Live returns the number of live objects of kind, e.g. "Framebuffer".
func (d *Device) Live(kind string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.live[kind]
}

// LiveObjects returns a copy of the live object counts.
func (d *Device) LiveObjects() map[string]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]int, len(d.live))
	for k, v := range d.live {
		if v != 0 {
			out[k] = v
		}
	}
	return out
}

// Misuse returns the API usage violations observed so far, such as
// resetting a pending fence or destroying an object twice.
func (d *Device) Misuse() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.misuse...)
}

// Fences returns every fence created, in creation order.
func (d *Device) Fences() []*Fence {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Fence(nil), d.fences...)
}

func (d *Device) newID() int {
	d.nextID++
	return d.nextID
}

func (d *Device) record(op string, object int) {
	d.calls = append(d.calls, Call{Op: op, Object: object})
}

func (d *Device) created(kind string) int {
	d.live[kind]++
	return d.newID()
}

func (d *Device) destroyed(kind string, id int, done *bool) {
	if *done {
		d.misuse = append(d.misuse, fmt.Sprintf("%s#%d destroyed twice", kind, id))
		return
	}
	*done = true
	d.live[kind]--
}

func (d *Device) violation(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	d.misuse = append(d.misuse, msg)
	return errors.New(msg)
}

func (d *Device) takeFailure(op string) error {
	err, ok := d.failure[op]
	if !ok {
		return nil
	}
	delete(d.failure, op)
	return err
}

// retireAll signals every pending fence, as if the GPU went idle.
func (d *Device) retireAll() {
	for _, f := range d.fences {
		if f.pending {
			f.pending = false
			f.signaled = true
		}
	}
}

func (d *Device) MemoryTypes() []driver.MemoryType {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]driver.MemoryType(nil), d.memoryTypes...)
}

func (d *Device) MaxSampleCount() driver.SampleCount {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxSamples
}

func (d *Device) FormatFeatures(format driver.Format, tiling driver.Tiling) driver.FormatFeature {
	d.mu.Lock()
	defer d.mu.Unlock()
	if f, ok := d.features[format]; ok {
		return f
	}
	return ^driver.FormatFeature(0)
}

func (d *Device) GraphicsQueue() driver.Queue { return d.graphics }

func (d *Device) PresentQueue() driver.Queue { return d.present }

func (d *Device) WaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("WaitIdle", 0)
	d.retireAll()
	return nil
}

func (d *Device) CreateBuffer(info driver.BufferInfo) (driver.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.takeFailure("CreateBuffer"); err != nil {
		return nil, err
	}
	if info.Size <= 0 {
		return nil, d.violation("buffer size %d", info.Size)
	}
	return &Buffer{dev: d, id: d.created("Buffer"), size: info.Size, usage: info.Usage}, nil
}

func (d *Device) CreateImage(info driver.ImageInfo) (driver.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.takeFailure("CreateImage"); err != nil {
		return nil, err
	}
	if info.Extent.Empty() {
		return nil, d.violation("image extent %s", info.Extent)
	}
	return &Image{dev: d, id: d.created("Image"), info: info}, nil
}

func (d *Device) AllocateMemory(size int, memoryType int) (driver.Memory, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("AllocateMemory", 0)
	if err := d.takeFailure("AllocateMemory"); err != nil {
		return nil, err
	}
	if memoryType < 0 || memoryType >= len(d.memoryTypes) {
		return nil, d.violation("memory type %d out of range", memoryType)
	}
	return &Memory{
		dev:        d,
		id:         d.created("Memory"),
		data:       make([]byte, size),
		memoryType: memoryType,
		properties: d.memoryTypes[memoryType].Properties,
	}, nil
}

func (d *Device) CreateImageView(info driver.ImageViewInfo) (driver.ImageView, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.takeFailure("CreateImageView"); err != nil {
		return nil, err
	}
	return &ImageView{object: d.newObject("ImageView"), Info: info}, nil
}

func (d *Device) CreateSampler(info driver.SamplerInfo) (driver.Sampler, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return &object{dev: d, kind: "Sampler", id: d.created("Sampler")}, nil
}

func (d *Device) CreateSemaphore() (driver.Semaphore, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.takeFailure("CreateSemaphore"); err != nil {
		return nil, err
	}
	return &Semaphore{object: d.newObject("Semaphore")}, nil
}

func (d *Device) CreateFence(signaled bool) (driver.Fence, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.takeFailure("CreateFence"); err != nil {
		return nil, err
	}
	f := &Fence{object: d.newObject("Fence"), signaled: signaled}
	d.fences = append(d.fences, f)
	return f, nil
}

func (d *Device) CreateCommandPool() (driver.CommandPool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.takeFailure("CreateCommandPool"); err != nil {
		return nil, err
	}
	return &CommandPool{object: d.newObject("CommandPool")}, nil
}

func (d *Device) CreateRenderPass(info driver.RenderPassInfo) (driver.RenderPass, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("CreateRenderPass", 0)
	if err := d.takeFailure("CreateRenderPass"); err != nil {
		return nil, err
	}
	return &RenderPass{object: d.newObject("RenderPass"), Info: info}, nil
}

func (d *Device) CreateFramebuffer(info driver.FramebufferInfo) (driver.Framebuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.takeFailure("CreateFramebuffer"); err != nil {
		return nil, err
	}
	return &Framebuffer{object: d.newObject("Framebuffer"), Info: info}, nil
}

func (d *Device) CreateDescriptorLayout(bindings []driver.DescriptorBinding) (driver.DescriptorLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return &object{dev: d, kind: "DescriptorLayout", id: d.created("DescriptorLayout")}, nil
}

func (d *Device) CreateDescriptorPool(layout driver.DescriptorLayout, sets int) (driver.DescriptorPool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return &DescriptorPool{object: d.newObject("DescriptorPool"), capacity: sets}, nil
}

func (d *Device) CreatePipeline(info driver.PipelineInfo) (driver.Pipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("CreatePipeline", 0)
	if err := d.takeFailure("CreatePipeline"); err != nil {
		return nil, err
	}
	if len(info.VertexShader) == 0 || len(info.FragmentShader) == 0 {
		return nil, errors.New("empty shader module")
	}
	return &Pipeline{object: d.newObject("Pipeline"), Info: info}, nil
}

func (d *Device) CreateSwapchain(info driver.SwapchainInfo) (driver.Swapchain, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("CreateSwapchain", 0)
	if err := d.takeFailure("CreateSwapchain"); err != nil {
		return nil, err
	}
	if info.Extent.Empty() {
		return nil, d.violation("swapchain extent %s", info.Extent)
	}
	surface, ok := info.Surface.(*Surface)
	if !ok {
		return nil, errors.New("surface does not belong to the fake driver")
	}
	sc := &Swapchain{object: d.newObject("Swapchain"), surface: surface, info: info}
	for i := 0; i < info.MinImageCount; i++ {
		sc.images = append(sc.images, &Image{dev: d, id: d.newID(), info: driver.ImageInfo{
			Extent:    info.Extent,
			MipLevels: 1,
			Format:    info.Format.Format,
			Usage:     driver.ImageUsageColorAttachment,
			Samples:   driver.Samples1,
		}, swapchain: true})
	}
	return sc, nil
}

func (d *Device) newObject(kind string) object {
	return object{dev: d, kind: kind, id: d.created(kind)}
}
