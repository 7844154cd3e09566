package gpu

import (
	"bytes"
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/mandelbrot/internal/view"
)

// QuadVertices covers clip space with two triangles, xyz per vertex.
var QuadVertices = []float32{
	-1, -1, 0,
	1, -1, 0,
	1, 1, 0,
	-1, 1, 0,
}

var QuadIndices = []uint32{0, 1, 2, 2, 3, 0}

const (
	vertexStride = 3 * 4

	descriptorPoolSets = 10
)

type GraphicsShaders struct {
	Vertex   []uint32
	Fragment []uint32
}

func encode(data any) ([]byte, error) {
	buf := &bytes.Buffer{}
	err := binary.Write(buf, common.ByteOrder, data)
	return buf.Bytes(), errors.Wrap(err, "encode buffer data")
}

// GraphicsPipeline draws the full-screen quad. It owns one uniform buffer
// and descriptor set per frame slot, the palette descriptor set, the quad
// geometry, and the command buffers recorded for each (image, slot) pair.
type GraphicsPipeline struct {
	device  *Device
	palette *Image2D
	shaders GraphicsShaders

	uniformLayout  core1_0.DescriptorSetLayout
	paletteLayout  core1_0.DescriptorSetLayout
	pipelineLayout core1_0.PipelineLayout
	pipeline       core1_0.Pipeline
	format         core1_0.Format

	vertexBuffer   *Buffer
	indexBuffer    *Buffer
	uniformBuffers []*Buffer

	descriptorPool core1_0.DescriptorPool
	uniformSets    []core1_0.DescriptorSet
	paletteSet     core1_0.DescriptorSet

	commandBuffers [][]core1_0.CommandBuffer

	teardown teardown
}

func NewGraphicsPipeline(device *Device, swapchain *Swapchain, palette *Image2D, shaders GraphicsShaders) (_ *GraphicsPipeline, err error) {
	p := &GraphicsPipeline{
		device:  device,
		palette: palette,
		shaders: shaders,
	}
	defer func() {
		if err != nil {
			p.Destroy()
		}
	}()

	err = p.createDescriptorSetLayouts()
	if err != nil {
		return nil, err
	}

	err = p.createPipelineLayout()
	if err != nil {
		return nil, err
	}

	p.teardown.push("graphics pipeline", func() {
		if p.pipeline.Initialized() {
			p.device.Driver().DestroyPipeline(p.pipeline, nil)
			p.pipeline = core1_0.Pipeline{}
		}
	})
	err = p.createPipeline(swapchain)
	if err != nil {
		return nil, err
	}

	err = p.createGeometry()
	if err != nil {
		return nil, err
	}

	err = p.createUniformBuffers()
	if err != nil {
		return nil, err
	}

	err = p.createDescriptorSets()
	if err != nil {
		return nil, err
	}

	p.teardown.push("graphics command buffers", p.freeCommandBuffers)
	err = p.Record(swapchain)
	if err != nil {
		return nil, err
	}

	return p, nil
}

func (p *GraphicsPipeline) createDescriptorSetLayouts() error {
	driver := p.device.Driver()

	var err error
	p.uniformLayout, _, err = driver.CreateDescriptorSetLayout(nil, core1_0.DescriptorSetLayoutCreateInfo{
		Bindings: []core1_0.DescriptorSetLayoutBinding{
			{
				Binding:         0,
				DescriptorType:  core1_0.DescriptorTypeUniformBuffer,
				DescriptorCount: 1,

				StageFlags: core1_0.StageVertex,
			},
		},
	})
	if err != nil {
		return errors.Wrap(err, "create uniform descriptor set layout")
	}
	uniformLayout := p.uniformLayout
	p.teardown.push("uniform set layout", func() { driver.DestroyDescriptorSetLayout(uniformLayout, nil) })

	p.paletteLayout, _, err = driver.CreateDescriptorSetLayout(nil, core1_0.DescriptorSetLayoutCreateInfo{
		Bindings: []core1_0.DescriptorSetLayoutBinding{
			{
				Binding:         0,
				DescriptorType:  core1_0.DescriptorTypeCombinedImageSampler,
				DescriptorCount: 1,

				StageFlags: core1_0.StageFragment,
			},
		},
	})
	if err != nil {
		return errors.Wrap(err, "create palette descriptor set layout")
	}
	paletteLayout := p.paletteLayout
	p.teardown.push("palette set layout", func() { driver.DestroyDescriptorSetLayout(paletteLayout, nil) })

	return nil
}

func (p *GraphicsPipeline) createPipelineLayout() error {
	driver := p.device.Driver()

	var err error
	p.pipelineLayout, _, err = driver.CreatePipelineLayout(nil, core1_0.PipelineLayoutCreateInfo{
		SetLayouts: []core1_0.DescriptorSetLayout{
			p.uniformLayout,
			p.paletteLayout,
		},
	})
	if err != nil {
		return errors.Wrap(err, "create graphics pipeline layout")
	}
	pipelineLayout := p.pipelineLayout
	p.teardown.push("graphics pipeline layout", func() { driver.DestroyPipelineLayout(pipelineLayout, nil) })

	return nil
}

// createPipeline builds the pipeline object against the swapchain's render
// pass. Viewport and scissor are dynamic, so only a format change forces a
// rebuild.
func (p *GraphicsPipeline) createPipeline(swapchain *Swapchain) error {
	driver := p.device.Driver()

	vertShader, err := createShaderModule(driver, p.shaders.Vertex)
	if err != nil {
		return errors.Wrap(err, "vertex shader")
	}
	defer driver.DestroyShaderModule(vertShader, nil)

	fragShader, err := createShaderModule(driver, p.shaders.Fragment)
	if err != nil {
		return errors.Wrap(err, "fragment shader")
	}
	defer driver.DestroyShaderModule(fragShader, nil)

	vertexInput := &core1_0.PipelineVertexInputStateCreateInfo{
		VertexBindingDescriptions: []core1_0.VertexInputBindingDescription{
			{
				Binding:   0,
				Stride:    vertexStride,
				InputRate: core1_0.VertexInputRateVertex,
			},
		},
		VertexAttributeDescriptions: []core1_0.VertexInputAttributeDescription{
			{
				Binding:  0,
				Location: 0,
				Format:   core1_0.FormatR32G32B32SignedFloat,
				Offset:   0,
			},
		},
	}

	inputAssembly := &core1_0.PipelineInputAssemblyStateCreateInfo{
		Topology:               core1_0.PrimitiveTopologyTriangleList,
		PrimitiveRestartEnable: false,
	}

	extent := swapchain.Extent()
	viewport := &core1_0.PipelineViewportStateCreateInfo{
		Viewports: []core1_0.Viewport{
			{
				Width:    float32(extent.Width),
				Height:   float32(extent.Height),
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
		DepthClampEnable:        false,
		RasterizerDiscardEnable: false,

		PolygonMode: core1_0.PolygonModeFill,
		FrontFace:   core1_0.FrontFaceClockwise,

		DepthBiasEnable: false,

		LineWidth: 1.0,
	}

	multisample := &core1_0.PipelineMultisampleStateCreateInfo{
		SampleShadingEnable:  false,
		RasterizationSamples: core1_0.Samples1,
		MinSampleShading:     1.0,
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

	dynamicState := &core1_0.PipelineDynamicStateCreateInfo{
		DynamicStates: []core1_0.DynamicState{core1_0.DynamicStateViewport, core1_0.DynamicStateScissor},
	}

	pipelines, _, err := driver.CreateGraphicsPipelines(nil, nil,
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
			ColorBlendState:    colorBlend,
			DynamicState:       dynamicState,
			Layout:             p.pipelineLayout,
			RenderPass:         swapchain.RenderPass(),
			Subpass:            0,
			BasePipelineIndex:  -1,
		},
	)
	if err != nil {
		return errors.Wrap(err, "create graphics pipeline")
	}

	p.pipeline = pipelines[0]
	p.format = swapchain.Format()
	return nil
}

func (p *GraphicsPipeline) createGeometry() error {
	vertexData, err := encode(QuadVertices)
	if err != nil {
		return err
	}
	p.vertexBuffer, err = NewBufferWithData(p.device, vertexData, core1_0.BufferUsageVertexBuffer)
	if err != nil {
		return errors.Wrap(err, "create vertex buffer")
	}
	p.teardown.push("vertex buffer", p.vertexBuffer.Destroy)

	indexData, err := encode(QuadIndices)
	if err != nil {
		return err
	}
	p.indexBuffer, err = NewBufferWithData(p.device, indexData, core1_0.BufferUsageIndexBuffer)
	if err != nil {
		return errors.Wrap(err, "create index buffer")
	}
	p.teardown.push("index buffer", p.indexBuffer.Destroy)

	return nil
}

// createUniformBuffers makes one host-coherent uniform buffer per frame
// slot, for the largest slot count any present mode can need.
func (p *GraphicsPipeline) createUniformBuffers() error {
	for i := 0; i < MaxFramesInFlightLimit; i++ {
		buffer, err := NewBuffer(p.device, view.UniformSize, core1_0.BufferUsageUniformBuffer, core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
		if err != nil {
			return errors.Wrapf(err, "create uniform buffer %d", i)
		}

		p.uniformBuffers = append(p.uniformBuffers, buffer)
		p.teardown.push("uniform buffer", buffer.Destroy)
	}

	initial, err := view.Initial().Uniform(1).MarshalBinary()
	if err != nil {
		return err
	}
	for _, buffer := range p.uniformBuffers {
		err = buffer.Write(initial)
		if err != nil {
			return err
		}
	}

	return nil
}

func (p *GraphicsPipeline) createDescriptorSets() error {
	driver := p.device.Driver()

	var err error
	p.descriptorPool, _, err = driver.CreateDescriptorPool(nil, core1_0.DescriptorPoolCreateInfo{
		Flags:   core1_0.DescriptorPoolCreateFreeDescriptorSet,
		MaxSets: descriptorPoolSets,
		PoolSizes: []core1_0.DescriptorPoolSize{
			{
				Type:            core1_0.DescriptorTypeUniformBuffer,
				DescriptorCount: descriptorPoolSets,
			},
			{
				Type:            core1_0.DescriptorTypeCombinedImageSampler,
				DescriptorCount: descriptorPoolSets,
			},
		},
	})
	if err != nil {
		return errors.Wrap(err, "create graphics descriptor pool")
	}
	pool := p.descriptorPool
	p.teardown.push("graphics descriptor pool", func() { driver.DestroyDescriptorPool(pool, nil) })

	var allocLayouts []core1_0.DescriptorSetLayout
	for i := 0; i < len(p.uniformBuffers); i++ {
		allocLayouts = append(allocLayouts, p.uniformLayout)
	}
	allocLayouts = append(allocLayouts, p.paletteLayout)

	sets, _, err := driver.AllocateDescriptorSets(core1_0.DescriptorSetAllocateInfo{
		DescriptorPool: p.descriptorPool,
		SetLayouts:     allocLayouts,
	})
	if err != nil {
		return errors.Wrap(err, "allocate graphics descriptor sets")
	}
	p.uniformSets = sets[:len(p.uniformBuffers)]
	p.paletteSet = sets[len(p.uniformBuffers)]

	var writes []core1_0.WriteDescriptorSet
	for slot, buffer := range p.uniformBuffers {
		writes = append(writes, core1_0.WriteDescriptorSet{
			DstSet:          p.uniformSets[slot],
			DstBinding:      0,
			DstArrayElement: 0,

			DescriptorType: core1_0.DescriptorTypeUniformBuffer,

			BufferInfo: []core1_0.DescriptorBufferInfo{
				{
					Buffer: buffer.Handle,
					Offset: 0,
					Range:  view.UniformSize,
				},
			},
		})
	}
	writes = append(writes, core1_0.WriteDescriptorSet{
		DstSet:          p.paletteSet,
		DstBinding:      0,
		DstArrayElement: 0,

		DescriptorType: core1_0.DescriptorTypeCombinedImageSampler,

		ImageInfo: []core1_0.DescriptorImageInfo{
			{
				ImageView:   p.palette.View(),
				Sampler:     p.palette.Sampler(),
				ImageLayout: core1_0.ImageLayoutShaderReadOnlyOptimal,
			},
		},
	})

	err = driver.UpdateDescriptorSets(writes, nil)
	return errors.Wrap(err, "update graphics descriptor sets")
}

func (p *GraphicsPipeline) freeCommandBuffers() {
	for _, perSlot := range p.commandBuffers {
		if len(perSlot) > 0 {
			p.device.Driver().FreeCommandBuffers(perSlot...)
		}
	}
	p.commandBuffers = nil
}

// Record frees the previous command buffers and records one per swapchain
// image and frame slot. Call it after every swapchain recreate.
func (p *GraphicsPipeline) Record(swapchain *Swapchain) error {
	driver := p.device.Driver()

	p.freeCommandBuffers()

	if swapchain.Format() != p.format {
		Logger().Info("swapchain format changed, rebuilding graphics pipeline", "format", swapchain.Format().String())
		driver.DestroyPipeline(p.pipeline, nil)
		p.pipeline = core1_0.Pipeline{}

		err := p.createPipeline(swapchain)
		if err != nil {
			return err
		}
	}

	slots := swapchain.MaxFramesInFlight()
	for image := 0; image < swapchain.ImageCount(); image++ {
		buffers, _, err := driver.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
			CommandPool:        p.device.CommandPool(RoleGraphics),
			Level:              core1_0.CommandBufferLevelPrimary,
			CommandBufferCount: slots,
		})
		if err != nil {
			return errors.Wrap(err, "allocate graphics command buffers")
		}
		p.commandBuffers = append(p.commandBuffers, buffers)

		for slot, buffer := range buffers {
			err = p.record(buffer, swapchain, image, slot)
			if err != nil {
				return errors.Wrapf(err, "record command buffer for image %d slot %d", image, slot)
			}
		}
	}

	return nil
}

func (p *GraphicsPipeline) record(buffer core1_0.CommandBuffer, swapchain *Swapchain, image, slot int) error {
	driver := p.device.Driver()
	extent := swapchain.Extent()

	_, err := driver.BeginCommandBuffer(buffer, core1_0.CommandBufferBeginInfo{})
	if err != nil {
		return err
	}

	err = driver.CmdBeginRenderPass(buffer, core1_0.SubpassContentsInline,
		core1_0.RenderPassBeginInfo{
			RenderPass:  swapchain.RenderPass(),
			Framebuffer: swapchain.Framebuffer(image),
			RenderArea: core1_0.Rect2D{
				Offset: core1_0.Offset2D{X: 0, Y: 0},
				Extent: extent,
			},
			ClearValues: []core1_0.ClearValue{
				core1_0.ClearValueFloat{0, 0, 0, 1},
			},
		})
	if err != nil {
		return err
	}

	driver.CmdBindPipeline(buffer, core1_0.PipelineBindPointGraphics, p.pipeline)
	driver.CmdSetViewport(buffer, core1_0.Viewport{
		X:        0,
		Y:        0,
		Width:    float32(extent.Width),
		Height:   float32(extent.Height),
		MinDepth: 0,
		MaxDepth: 1,
	})
	driver.CmdSetScissor(buffer, core1_0.Rect2D{
		Offset: core1_0.Offset2D{X: 0, Y: 0},
		Extent: extent,
	})
	driver.CmdBindVertexBuffers(buffer, 0, []core1_0.Buffer{p.vertexBuffer.Handle}, []int{0})
	driver.CmdBindIndexBuffer(buffer, p.indexBuffer.Handle, 0, core1_0.IndexTypeUInt32)
	driver.CmdBindDescriptorSets(buffer, core1_0.PipelineBindPointGraphics, p.pipelineLayout, 0, []core1_0.DescriptorSet{
		p.uniformSets[slot],
		p.paletteSet,
	}, nil)
	driver.CmdDrawIndexed(buffer, len(QuadIndices), 1, 0, 0, 0)
	driver.CmdEndRenderPass(buffer)

	_, err = driver.EndCommandBuffer(buffer)
	return err
}

// CommandBuffer returns the buffer recorded for the image and frame slot.
func (p *GraphicsPipeline) CommandBuffer(image, slot int) core1_0.CommandBuffer {
	return p.commandBuffers[image][slot]
}

// UpdateUniform writes the view block into the slot's uniform buffer. The
// slot's fence must have signaled.
func (p *GraphicsPipeline) UpdateUniform(slot int, u view.Uniform) error {
	data, err := u.MarshalBinary()
	if err != nil {
		return err
	}
	return p.uniformBuffers[slot].Write(data)
}

func (p *GraphicsPipeline) Destroy() {
	if p == nil {
		return
	}
	p.teardown.run()
}
