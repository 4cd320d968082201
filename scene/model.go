// Package scene draws a textured, indexed mesh that sways around the Z
// axis. A Model is the Drawer handed to the frame orchestrator: it owns
// one uniform buffer and descriptor set per frame slot and a pipeline that
// is rebuilt whenever the swapchain is.
package scene

import (
	"image"
	"image/color"
	"log/slog"
	"math"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/loov/hrtime"

	"github.com/vkngwrapper/framepacer"
	"github.com/vkngwrapper/framepacer/command"
	"github.com/vkngwrapper/framepacer/driver"
	"github.com/vkngwrapper/framepacer/frame"
	"github.com/vkngwrapper/framepacer/resource"
	"github.com/vkngwrapper/framepacer/swapchain"
	"github.com/vkngwrapper/framepacer/target"
)

const (
	bindingUniforms = 0
	bindingTexture  = 1
)

// Shaders are precompiled SPIR-V blobs, passed through verbatim.
type Shaders struct {
	Vertex   []byte
	Fragment []byte
}

type Config struct {
	Mesh Mesh
	// Texture is sampled by the fragment shader. Nil uploads a single white
	// texel.
	Texture image.Image
	Shaders Shaders
	// Slots is the number of frame slots that will call Prepare.
	Slots  int
	Logger *slog.Logger
}

type Model struct {
	dev     driver.Device
	targets *target.Set
	cfg     Config
	logger  *slog.Logger

	vertices *resource.Buffer[Vertex]
	indices  *resource.Buffer[uint32]
	texture  *resource.Texture
	uniforms []*resource.Buffer[Uniforms]

	layout   driver.DescriptorLayout
	descPool driver.DescriptorPool
	sets     []driver.DescriptorSet
	pipeline driver.Pipeline

	clock    func() time.Duration
	start    time.Duration
	paused   bool
	pausedAt time.Duration
}

var (
	_ frame.Drawer        = (*Model)(nil)
	_ frame.EventHandler  = (*Model)(nil)
	_ swapchain.Dependent = (*Model)(nil)
)

// NewModel uploads the mesh and texture with one-shot sessions from pool,
// creates per-slot uniforms and descriptor sets, and builds the pipeline
// for targets' render pass. The model is attached to sc and rebuilds its
// pipeline on every resize; attach it after targets.
func NewModel(dev driver.Device, pool *command.Pool, targets *target.Set, sc *swapchain.Swapchain, cfg Config) (*Model, error) {
	if cfg.Slots < 1 {
		return nil, errors.Newf("model for %d frame slots", cfg.Slots)
	}
	if len(cfg.Mesh.Indices) == 0 {
		return nil, errors.New("model with empty mesh")
	}
	if cfg.Texture == nil {
		white := image.NewRGBA(image.Rect(0, 0, 1, 1))
		white.Set(0, 0, color.White)
		cfg.Texture = white
	}

	m := &Model{
		dev:     dev,
		targets: targets,
		cfg:     cfg,
		logger:  framepacer.LoggerOr(cfg.Logger).With("component", "scene"),
		clock:   hrtime.Now,
	}
	m.start = m.clock()

	if err := m.create(pool); err != nil {
		m.Destroy()
		return nil, err
	}
	if err := m.Rebuild(sc); err != nil {
		m.Destroy()
		return nil, err
	}
	sc.Attach(m)

	m.logger.Debug("model ready", "vertices", len(cfg.Mesh.Vertices), "indices", len(cfg.Mesh.Indices), "texture", m.texture.Extent(), "mips", m.texture.MipLevels())
	return m, nil
}

func (m *Model) create(pool *command.Pool) error {
	var err error
	m.vertices, err = resource.NewVertexBuffer(m.dev, pool, m.cfg.Mesh.Vertices)
	if err != nil {
		return errors.Wrap(err, "upload vertices")
	}
	m.indices, err = resource.NewIndexBuffer(m.dev, pool, m.cfg.Mesh.Indices)
	if err != nil {
		return errors.Wrap(err, "upload indices")
	}
	m.texture, err = resource.NewTexture(m.dev, pool, m.cfg.Texture)
	if err != nil {
		return errors.Wrap(err, "upload texture")
	}

	for i := 0; i < m.cfg.Slots; i++ {
		ubo, err := resource.NewUniformBuffer[Uniforms](m.dev)
		if err != nil {
			return errors.Wrapf(err, "create uniform buffer %d", i)
		}
		m.uniforms = append(m.uniforms, ubo)
	}

	m.layout, err = m.dev.CreateDescriptorLayout([]driver.DescriptorBinding{
		{Binding: bindingUniforms, Type: driver.DescriptorUniformBuffer, Stages: driver.StageVertex},
		{Binding: bindingTexture, Type: driver.DescriptorCombinedImageSampler, Stages: driver.StageFragment},
	})
	if err != nil {
		return errors.Wrap(err, "create descriptor set layout")
	}

	m.descPool, err = m.dev.CreateDescriptorPool(m.layout, m.cfg.Slots)
	if err != nil {
		return errors.Wrap(err, "create descriptor pool")
	}
	m.sets, err = m.descPool.Allocate(m.cfg.Slots)
	if err != nil {
		return errors.Wrap(err, "allocate descriptor sets")
	}
	for i, set := range m.sets {
		if err := set.WriteBuffer(bindingUniforms, m.uniforms[i].Handle(), m.uniforms[i].Size()); err != nil {
			return errors.Wrapf(err, "write uniform descriptor %d", i)
		}
		if err := set.WriteImage(bindingTexture, m.texture.View(), m.texture.Sampler()); err != nil {
			return errors.Wrapf(err, "write texture descriptor %d", i)
		}
	}
	return nil
}

// Rebuild recreates the pipeline, whose viewport is fixed to the swapchain
// extent. A suspended swapchain leaves the model without a pipeline.
func (m *Model) Rebuild(sc *swapchain.Swapchain) error {
	if m.pipeline != nil {
		m.pipeline.Destroy()
		m.pipeline = nil
	}
	if sc.Suspended() {
		return nil
	}

	pipeline, err := m.dev.CreatePipeline(driver.PipelineInfo{
		RenderPass:     m.targets.RenderPass(),
		Layout:         m.layout,
		VertexShader:   m.cfg.Shaders.Vertex,
		FragmentShader: m.cfg.Shaders.Fragment,
		Vertex:         VertexLayout,
		Extent:         sc.Extent(),
		Samples:        m.targets.Samples(),
	})
	if err != nil {
		return errors.Wrapf(err, "create graphics pipeline for %s", sc.Extent())
	}
	m.pipeline = pipeline
	return nil
}

func (m *Model) elapsed() time.Duration {
	if m.paused {
		return m.pausedAt - m.start
	}
	return m.clock() - m.start
}

// Transforms returns the uniform block for a frame of extent drawn after
// elapsed time. The model sways up to 45 degrees either way around Z.
func Transforms(elapsed time.Duration, extent driver.Extent) Uniforms {
	sway := float32(math.Sin(math.Mod(elapsed.Seconds(), 2*math.Pi)))
	aspect := float32(extent.Width) / float32(extent.Height)

	u := Uniforms{
		Model: mgl32.HomogRotate3DZ(sway * mgl32.DegToRad(45)),
		View:  mgl32.LookAtV(mgl32.Vec3{2, 2, 2}, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 0, 1}),
		Proj:  mgl32.Perspective(mgl32.DegToRad(45), aspect, 0.1, 10),
	}
	// Clip space Y points down.
	u.Proj[5] *= -1
	return u
}

// Prepare writes the transforms of the current frame into slot's uniform
// buffer.
func (m *Model) Prepare(slot int, extent driver.Extent) error {
	if slot < 0 || slot >= len(m.uniforms) {
		return errors.Newf("frame slot %d out of %d", slot, len(m.uniforms))
	}
	return m.uniforms[slot].Write(Transforms(m.elapsed(), extent))
}

func (m *Model) Record(cmd driver.CommandBuffer, slot int) error {
	if m.pipeline == nil {
		return errors.New("record without a pipeline")
	}
	cmd.BindPipeline(m.pipeline)
	cmd.BindVertexBuffer(m.vertices.Handle())
	cmd.BindIndexBuffer(m.indices.Handle())
	cmd.BindDescriptorSet(m.pipeline, m.sets[slot])
	cmd.DrawIndexed(m.indices.Len())
	return nil
}

// HandleEvent pauses or resumes the sway on every pointer press.
func (m *Model) HandleEvent(e frame.Event) {
	pointer, ok := e.(frame.PointerEvent)
	if !ok || !pointer.Pressed {
		return
	}
	now := m.clock()
	if m.paused {
		m.start += now - m.pausedAt
	} else {
		m.pausedAt = now
	}
	m.paused = !m.paused
	m.logger.Debug("sway toggled", "paused", m.paused)
}

// Paused reports whether the sway is stopped.
func (m *Model) Paused() bool { return m.paused }

// Uniforms returns the uniform buffer of slot.
func (m *Model) Uniforms(slot int) *resource.Buffer[Uniforms] { return m.uniforms[slot] }

// Destroy releases everything the model owns. The device must be idle.
func (m *Model) Destroy() {
	if m.pipeline != nil {
		m.pipeline.Destroy()
		m.pipeline = nil
	}
	if m.descPool != nil {
		m.descPool.Destroy()
		m.descPool = nil
	}
	if m.layout != nil {
		m.layout.Destroy()
		m.layout = nil
	}
	for _, ubo := range m.uniforms {
		ubo.Destroy()
	}
	m.uniforms = nil
	if m.texture != nil {
		m.texture.Destroy()
		m.texture = nil
	}
	if m.indices != nil {
		m.indices.Destroy()
		m.indices = nil
	}
	if m.vertices != nil {
		m.vertices.Destroy()
		m.vertices = nil
	}
}
