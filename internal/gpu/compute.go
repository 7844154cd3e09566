package gpu

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
)

const (
	ComputeWidth  = 6400
	ComputeHeight = 4800

	// WorkgroupSize matches local_size_x and local_size_y in the compute shader.
	WorkgroupSize = 32

	// pixelSize is one vec4 of float32 per pixel.
	pixelSize = 4 * 4
)

// DispatchSize returns the workgroup counts covering a w by h grid.
func DispatchSize(width, height int) (x, y int) {
	x = (width + WorkgroupSize - 1) / WorkgroupSize
	y = (height + WorkgroupSize - 1) / WorkgroupSize
	return x, y
}

// ComputePipeline renders the set into a host-visible storage buffer of
// RGBA float pixels with a single dispatch.
type ComputePipeline struct {
	device *Device
	width  int
	height int

	storage *Buffer

	setLayout      core1_0.DescriptorSetLayout
	descriptorPool core1_0.DescriptorPool
	descriptorSet  core1_0.DescriptorSet
	pipelineLayout core1_0.PipelineLayout
	pipeline       core1_0.Pipeline
	commandBuffer  core1_0.CommandBuffer

	teardown teardown
}

func NewComputePipeline(device *Device, code []uint32) (_ *ComputePipeline, err error) {
	p := &ComputePipeline{
		device: device,
		width:  ComputeWidth,
		height: ComputeHeight,
	}
	defer func() {
		if err != nil {
			p.Destroy()
		}
	}()

	p.storage, err = NewBuffer(device, p.width*p.height*pixelSize, core1_0.BufferUsageStorageBuffer, core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
	if err != nil {
		return nil, errors.Wrap(err, "create storage buffer")
	}
	p.teardown.push("storage buffer", p.storage.Destroy)

	err = p.createDescriptorSet()
	if err != nil {
		return nil, err
	}

	err = p.createPipeline(code)
	if err != nil {
		return nil, err
	}

	err = p.record()
	if err != nil {
		return nil, err
	}

	return p, nil
}

func (p *ComputePipeline) createDescriptorSet() error {
	driver := p.device.Driver()

	var err error
	p.setLayout, _, err = driver.CreateDescriptorSetLayout(nil, core1_0.DescriptorSetLayoutCreateInfo{
		Bindings: []core1_0.DescriptorSetLayoutBinding{
			{
				Binding:         0,
				DescriptorType:  core1_0.DescriptorTypeStorageBuffer,
				DescriptorCount: 1,

				StageFlags: core1_0.StageCompute,
			},
		},
	})
	if err != nil {
		return errors.Wrap(err, "create compute descriptor set layout")
	}
	setLayout := p.setLayout
	p.teardown.push("compute set layout", func() { driver.DestroyDescriptorSetLayout(setLayout, nil) })

	p.descriptorPool, _, err = driver.CreateDescriptorPool(nil, core1_0.DescriptorPoolCreateInfo{
		MaxSets: 1,
		PoolSizes: []core1_0.DescriptorPoolSize{
			{
				Type:            core1_0.DescriptorTypeStorageBuffer,
				DescriptorCount: 1,
			},
		},
	})
	if err != nil {
		return errors.Wrap(err, "create compute descriptor pool")
	}
	pool := p.descriptorPool
	p.teardown.push("compute descriptor pool", func() { driver.DestroyDescriptorPool(pool, nil) })

	sets, _, err := driver.AllocateDescriptorSets(core1_0.DescriptorSetAllocateInfo{
		DescriptorPool: p.descriptorPool,
		SetLayouts:     []core1_0.DescriptorSetLayout{p.setLayout},
	})
	if err != nil {
		return errors.Wrap(err, "allocate compute descriptor set")
	}
	p.descriptorSet = sets[0]

	err = driver.UpdateDescriptorSets([]core1_0.WriteDescriptorSet{
		{
			DstSet:          p.descriptorSet,
			DstBinding:      0,
			DstArrayElement: 0,

			DescriptorType: core1_0.DescriptorTypeStorageBuffer,

			BufferInfo: []core1_0.DescriptorBufferInfo{
				{
					Buffer: p.storage.Handle,
					Offset: 0,
					Range:  p.storage.Size(),
				},
			},
		},
	}, nil)
	return errors.Wrap(err, "update compute descriptor set")
}

func (p *ComputePipeline) createPipeline(code []uint32) error {
	driver := p.device.Driver()

	shader, err := createShaderModule(driver, code)
	if err != nil {
		return errors.Wrap(err, "compute shader")
	}
	defer driver.DestroyShaderModule(shader, nil)

	p.pipelineLayout, _, err = driver.CreatePipelineLayout(nil, core1_0.PipelineLayoutCreateInfo{
		SetLayouts: []core1_0.DescriptorSetLayout{p.setLayout},
	})
	if err != nil {
		return errors.Wrap(err, "create compute pipeline layout")
	}
	pipelineLayout := p.pipelineLayout
	p.teardown.push("compute pipeline layout", func() { driver.DestroyPipelineLayout(pipelineLayout, nil) })

	pipelines, _, err := driver.CreateComputePipelines(nil, nil, core1_0.ComputePipelineCreateInfo{
		Stage: core1_0.PipelineShaderStageCreateInfo{
			Stage:  core1_0.StageCompute,
			Module: shader,
			Name:   "main",
		},
		Layout:            p.pipelineLayout,
		BasePipelineIndex: -1,
	})
	if err != nil {
		return errors.Wrap(err, "create compute pipeline")
	}
	p.pipeline = pipelines[0]
	pipeline := p.pipeline
	p.teardown.push("compute pipeline", func() { driver.DestroyPipeline(pipeline, nil) })

	return nil
}

func (p *ComputePipeline) record() error {
	driver := p.device.Driver()

	buffers, _, err := driver.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        p.device.CommandPool(RoleCompute),
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	})
	if err != nil {
		return errors.Wrap(err, "allocate compute command buffer")
	}
	p.commandBuffer = buffers[0]
	commandBuffer := p.commandBuffer
	p.teardown.push("compute command buffer", func() { driver.FreeCommandBuffers(commandBuffer) })

	_, err = driver.BeginCommandBuffer(p.commandBuffer, core1_0.CommandBufferBeginInfo{})
	if err != nil {
		return err
	}

	driver.CmdBindPipeline(p.commandBuffer, core1_0.PipelineBindPointCompute, p.pipeline)
	driver.CmdBindDescriptorSets(p.commandBuffer, core1_0.PipelineBindPointCompute, p.pipelineLayout, 0, []core1_0.DescriptorSet{p.descriptorSet}, nil)

	x, y := DispatchSize(p.width, p.height)
	driver.CmdDispatch(p.commandBuffer, x, y, 1)

	_, err = driver.EndCommandBuffer(p.commandBuffer)
	return err
}

// Dispatch submits the recorded command buffer and blocks until the
// compute queue drains.
func (p *ComputePipeline) Dispatch() error {
	driver := p.device.Driver()
	queue := p.device.Queue(RoleCompute)

	Logger().Info("dispatching compute render", "width", p.width, "height", p.height)

	_, err := driver.QueueSubmit(queue, nil, core1_0.SubmitInfo{
		CommandBuffers: []core1_0.CommandBuffer{p.commandBuffer},
	})
	if err != nil {
		return errors.Wrap(err, "submit compute dispatch")
	}

	_, err = driver.QueueWaitIdle(queue)
	return errors.Wrap(err, "wait for compute queue")
}

// ReadPixels maps the storage buffer and hands fn its contents as
// interleaved RGBA floats. The slice is only valid inside fn.
func (p *ComputePipeline) ReadPixels(fn func(pixels []float32) error) error {
	return p.storage.Mapped(func(mapped []byte) error {
		return fn(Float32s(mapped))
	})
}

func (p *ComputePipeline) Extent() (width, height int) {
	return p.width, p.height
}

func (p *ComputePipeline) Destroy() {
	if p == nil {
		return
	}
	p.teardown.run()
}
