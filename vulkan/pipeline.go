package vulkan

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"

	"github.com/vkngwrapper/framepacer/driver"
)

type RenderPass struct {
	dev  *Device
	pass core1_0.RenderPass
}

func (r *RenderPass) Destroy() { r.dev.device.DestroyRenderPass(r.pass, nil) }

func (d *Device) CreateRenderPass(info driver.RenderPassInfo) (driver.RenderPass, error) {
	multisampled := info.Samples > driver.Samples1
	samples := toSamples(info.Samples)

	color := core1_0.AttachmentDescription{
		Format:         toFormat(info.ColorFormat),
		Samples:        samples,
		LoadOp:         core1_0.AttachmentLoadOpClear,
		StoreOp:        core1_0.AttachmentStoreOpStore,
		StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
		StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
		InitialLayout:  core1_0.ImageLayoutUndefined,
		FinalLayout:    khr_swapchain.ImageLayoutPresentSrc,
	}
	if multisampled {
		color.FinalLayout = core1_0.ImageLayoutColorAttachmentOptimal
	}
	depth := core1_0.AttachmentDescription{
		Format:         toFormat(info.DepthFormat),
		Samples:        samples,
		LoadOp:         core1_0.AttachmentLoadOpClear,
		StoreOp:        core1_0.AttachmentStoreOpDontCare,
		StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
		StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
		InitialLayout:  core1_0.ImageLayoutUndefined,
		FinalLayout:    core1_0.ImageLayoutDepthStencilAttachmentOptimal,
	}

	subpass := core1_0.SubpassDescription{
		PipelineBindPoint: core1_0.PipelineBindPointGraphics,
		ColorAttachments: []core1_0.AttachmentReference{
			{
				Attachment: 0,
				Layout:     core1_0.ImageLayoutColorAttachmentOptimal,
			},
		},
		DepthStencilAttachment: &core1_0.AttachmentReference{
			Attachment: 1,
			Layout:     core1_0.ImageLayoutDepthStencilAttachmentOptimal,
		},
	}
	attachments := []core1_0.AttachmentDescription{color, depth}

	// The multisampled color attachment resolves into the swapchain image.
	if multisampled {
		attachments = append(attachments, core1_0.AttachmentDescription{
			Format:         toFormat(info.ColorFormat),
			Samples:        core1_0.Samples1,
			LoadOp:         core1_0.AttachmentLoadOpDontCare,
			StoreOp:        core1_0.AttachmentStoreOpStore,
			StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
			StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
			InitialLayout:  core1_0.ImageLayoutUndefined,
			FinalLayout:    khr_swapchain.ImageLayoutPresentSrc,
		})
		subpass.ResolveAttachments = []core1_0.AttachmentReference{
			{
				Attachment: 2,
				Layout:     core1_0.ImageLayoutColorAttachmentOptimal,
			},
		}
	}

	pass, _, err := d.device.CreateRenderPass(nil, core1_0.RenderPassCreateInfo{
		Attachments: attachments,
		Subpasses:   []core1_0.SubpassDescription{subpass},
		SubpassDependencies: []core1_0.SubpassDependency{
			{
				SrcSubpass: core1_0.SubpassExternal,
				DstSubpass: 0,

				SrcStageMask:  core1_0.PipelineStageColorAttachmentOutput | core1_0.PipelineStageEarlyFragmentTests,
				SrcAccessMask: 0,

				DstStageMask:  core1_0.PipelineStageColorAttachmentOutput | core1_0.PipelineStageEarlyFragmentTests,
				DstAccessMask: core1_0.AccessColorAttachmentWrite | core1_0.AccessDepthStencilAttachmentWrite,
			},
		},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create render pass with %d samples", info.Samples)
	}
	return &RenderPass{dev: d, pass: pass}, nil
}

type Framebuffer struct {
	dev         *Device
	framebuffer core1_0.Framebuffer
}

func (f *Framebuffer) Destroy() { f.dev.device.DestroyFramebuffer(f.framebuffer, nil) }

func (d *Device) CreateFramebuffer(info driver.FramebufferInfo) (driver.Framebuffer, error) {
	var views []core1_0.ImageView
	for _, v := range info.Attachments {
		views = append(views, v.(*ImageView).view)
	}
	framebuffer, _, err := d.device.CreateFramebuffer(nil, core1_0.FramebufferCreateInfo{
		RenderPass:  info.RenderPass.(*RenderPass).pass,
		Layers:      1,
		Attachments: views,
		Width:       info.Extent.Width,
		Height:      info.Extent.Height,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create framebuffer of %s", info.Extent)
	}
	return &Framebuffer{dev: d, framebuffer: framebuffer}, nil
}

type DescriptorLayout struct {
	dev      *Device
	layout   core1_0.DescriptorSetLayout
	bindings []driver.DescriptorBinding
}

func (l *DescriptorLayout) Destroy() { l.dev.device.DestroyDescriptorSetLayout(l.layout, nil) }

func (d *Device) CreateDescriptorLayout(bindings []driver.DescriptorBinding) (driver.DescriptorLayout, error) {
	var vkBindings []core1_0.DescriptorSetLayoutBinding
	for _, b := range bindings {
		vkBindings = append(vkBindings, core1_0.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  toDescriptorType(b.Type),
			DescriptorCount: 1,

			StageFlags: toStages(b.Stages),
		})
	}
	layout, _, err := d.device.CreateDescriptorSetLayout(nil, core1_0.DescriptorSetLayoutCreateInfo{
		Bindings: vkBindings,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create descriptor set layout")
	}
	return &DescriptorLayout{dev: d, layout: layout, bindings: bindings}, nil
}

// DescriptorPool holds sets of a single layout.
type DescriptorPool struct {
	dev    *Device
	pool   core1_0.DescriptorPool
	layout *DescriptorLayout
}

// CreateDescriptorPool sizes the pool for sets copies of layout.
func (d *Device) CreateDescriptorPool(layout driver.DescriptorLayout, sets int) (driver.DescriptorPool, error) {
	l := layout.(*DescriptorLayout)
	counts := map[core1_0.DescriptorType]int{}
	for _, b := range l.bindings {
		counts[toDescriptorType(b.Type)] += sets
	}
	var sizes []core1_0.DescriptorPoolSize
	for t, n := range counts {
		sizes = append(sizes, core1_0.DescriptorPoolSize{Type: t, DescriptorCount: n})
	}

	pool, _, err := d.device.CreateDescriptorPool(nil, core1_0.DescriptorPoolCreateInfo{
		MaxSets:   sets,
		PoolSizes: sizes,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create descriptor pool for %d sets", sets)
	}
	return &DescriptorPool{dev: d, pool: pool, layout: l}, nil
}

func (p *DescriptorPool) Allocate(count int) ([]driver.DescriptorSet, error) {
	layouts := make([]core1_0.DescriptorSetLayout, count)
	for i := range layouts {
		layouts[i] = p.layout.layout
	}
	sets, _, err := p.dev.device.AllocateDescriptorSets(core1_0.DescriptorSetAllocateInfo{
		DescriptorPool: p.pool,
		SetLayouts:     layouts,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "allocate %d descriptor sets", count)
	}
	out := make([]driver.DescriptorSet, 0, len(sets))
	for _, s := range sets {
		out = append(out, &DescriptorSet{dev: p.dev, set: s})
	}
	return out, nil
}

// Destroy frees the pool together with every set allocated from it.
func (p *DescriptorPool) Destroy() { p.dev.device.DestroyDescriptorPool(p.pool, nil) }

type DescriptorSet struct {
	dev *Device
	set core1_0.DescriptorSet
}

func (s *DescriptorSet) WriteBuffer(binding int, buffer driver.Buffer, size int) error {
	err := s.dev.device.UpdateDescriptorSets([]core1_0.WriteDescriptorSet{
		{
			DstSet:          s.set,
			DstBinding:      binding,
			DstArrayElement: 0,

			DescriptorType: core1_0.DescriptorTypeUniformBuffer,

			BufferInfo: []core1_0.DescriptorBufferInfo{
				{
					Buffer: buffer.(*Buffer).buffer,
					Offset: 0,
					Range:  size,
				},
			},
		},
	}, nil)
	return errors.Wrapf(err, "write buffer descriptor at binding %d", binding)
}

func (s *DescriptorSet) WriteImage(binding int, view driver.ImageView, sampler driver.Sampler) error {
	err := s.dev.device.UpdateDescriptorSets([]core1_0.WriteDescriptorSet{
		{
			DstSet:          s.set,
			DstBinding:      binding,
			DstArrayElement: 0,

			DescriptorType: core1_0.DescriptorTypeCombinedImageSampler,

			ImageInfo: []core1_0.DescriptorImageInfo{
				{
					ImageView:   view.(*ImageView).view,
					Sampler:     sampler.(*Sampler).sampler,
					ImageLayout: core1_0.ImageLayoutShaderReadOnlyOptimal,
				},
			},
		},
	}, nil)
	return errors.Wrapf(err, "write image descriptor at binding %d", binding)
}

// Pipeline owns its pipeline layout.
type Pipeline struct {
	dev      *Device
	pipeline core1_0.Pipeline
	layout   core1_0.PipelineLayout
}

func (p *Pipeline) Destroy() {
	p.dev.device.DestroyPipeline(p.pipeline, nil)
	p.dev.device.DestroyPipelineLayout(p.layout, nil)
}

func bytesToBytecode(b []byte) []uint32 {
	byteCode := make([]uint32, len(b)/4)
	for i := 0; i < len(byteCode); i++ {
		byteIndex := i * 4
		byteCode[i] = 0
		byteCode[i] |= uint32(b[byteIndex])
		byteCode[i] |= uint32(b[byteIndex+1]) << 8
		byteCode[i] |= uint32(b[byteIndex+2]) << 16
		byteCode[i] |= uint32(b[byteIndex+3]) << 24
	}

	return byteCode
}

func (d *Device) shaderModule(code []byte, stage string) (core1_0.ShaderModule, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return core1_0.ShaderModule{}, errors.Newf("%s shader of %d bytes is not SPIR-V", stage, len(code))
	}
	module, _, err := d.device.CreateShaderModule(nil, core1_0.ShaderModuleCreateInfo{
		Code: bytesToBytecode(code),
	})
	return module, errors.Wrapf(err, "create %s shader module", stage)
}

func (d *Device) CreatePipeline(info driver.PipelineInfo) (driver.Pipeline, error) {
	vertShader, err := d.shaderModule(info.VertexShader, "vertex")
	if err != nil {
		return nil, err
	}
	defer d.device.DestroyShaderModule(vertShader, nil)

	fragShader, err := d.shaderModule(info.FragmentShader, "fragment")
	if err != nil {
		return nil, err
	}
	defer d.device.DestroyShaderModule(fragShader, nil)

	var attributes []core1_0.VertexInputAttributeDescription
	for _, a := range info.Vertex.Attributes {
		attributes = append(attributes, core1_0.VertexInputAttributeDescription{
			Binding:  0,
			Location: a.Location,
			Format:   toFormat(a.Format),
			Offset:   a.Offset,
		})
	}

	vertexInput := &core1_0.PipelineVertexInputStateCreateInfo{
		VertexBindingDescriptions: []core1_0.VertexInputBindingDescription{
			{
				Binding:   0,
				Stride:    info.Vertex.Stride,
				InputRate: core1_0.VertexInputRateVertex,
			},
		},
		VertexAttributeDescriptions: attributes,
	}

	inputAssembly := &core1_0.PipelineInputAssemblyStateCreateInfo{
		Topology:               core1_0.PrimitiveTopologyTriangleList,
		PrimitiveRestartEnable: false,
	}

	extent := toExtent(info.Extent)
	viewport := &core1_0.PipelineViewportStateCreateInfo{
		Viewports: []core1_0.Viewport{
			{
				X:        0,
				Y:        0,
				Width:    float32(extent.Width),
				Height:   float32(extent.Height),
				MinDepth: 0,
				MaxDepth: 1,
			},
		},
		Scissors: []core1_0.Rect2D{
			{
				Offset: core1_0.Offset2D{X: 0, Y: 0},
				Extent: extent,
			},
		},
	}

	rasterization := &core1_0.PipelineRasterizationStateCreateInfo{
		PolygonMode: core1_0.PolygonModeFill,
		CullMode:    core1_0.CullModeBack,
		FrontFace:   core1_0.FrontFaceCounterClockwise,

		LineWidth: 1.0,
	}

	samples := info.Samples
	if samples == 0 {
		samples = driver.Samples1
	}
	multisample := &core1_0.PipelineMultisampleStateCreateInfo{
		SampleShadingEnable:  false,
		RasterizationSamples: toSamples(samples),
		MinSampleShading:     1.0,
	}

	depthStencil := &core1_0.PipelineDepthStencilStateCreateInfo{
		DepthTestEnable:  true,
		DepthWriteEnable: true,
		DepthCompareOp:   core1_0.CompareOpLess,
	}

	colorBlend := &core1_0.PipelineColorBlendStateCreateInfo{
		LogicOpEnabled: false,
		LogicOp:        core1_0.LogicOpCopy,

		BlendConstants: [4]float32{0, 0, 0, 0},
		Attachments: []core1_0.PipelineColorBlendAttachmentState{
			{
				BlendEnabled:   false,
				ColorWriteMask: core1_0.ColorComponentRed | core1_0.ColorComponentGreen | core1_0.ColorComponentBlue | core1_0.ColorComponentAlpha,
			},
		},
	}

	layout, _, err := d.device.CreatePipelineLayout(nil, core1_0.PipelineLayoutCreateInfo{
		SetLayouts: []core1_0.DescriptorSetLayout{
			info.Layout.(*DescriptorLayout).layout,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "create pipeline layout")
	}

	pipelines, _, err := d.device.CreateGraphicsPipelines(nil, nil,
		core1_0.GraphicsPipelineCreateInfo{
			Stages: []core1_0.PipelineShaderStageCreateInfo{
				{
					Stage:  core1_0.StageVertex,
					Module: vertShader,
					Name:   "main",
				},
				{
					Stage:  core1_0.StageFragment,
					Module: fragShader,
					Name:   "main",
				},
			},
			VertexInputState:   vertexInput,
			InputAssemblyState: inputAssembly,
			ViewportState:      viewport,
			RasterizationState: rasterization,
			MultisampleState:   multisample,
			DepthStencilState:  depthStencil,
			ColorBlendState:    colorBlend,
			Layout:             layout,
			RenderPass:         info.RenderPass.(*RenderPass).pass,
			Subpass:            0,
			BasePipelineIndex:  -1,
		},
	)
	if err != nil {
		d.device.DestroyPipelineLayout(layout, nil)
		return nil, errors.Wrap(err, "create graphics pipeline")
	}
	return &Pipeline{dev: d, pipeline: pipelines[0], layout: layout}, nil
}
