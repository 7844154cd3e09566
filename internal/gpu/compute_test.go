package gpu

import (
	"testing"

	. "github.com/onsi/gomega"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/core/v3/mocks"
	"go.uber.org/mock/gomock"
)

func TestDispatchSize(t *testing.T) {
	g := NewWithT(t)

	x, y := DispatchSize(ComputeWidth, ComputeHeight)
	g.Expect(x).To(Equal(200))
	g.Expect(y).To(Equal(150))

	x, y = DispatchSize(33, 1)
	g.Expect(x).To(Equal(2))
	g.Expect(y).To(Equal(1))

	x, y = DispatchSize(0, 0)
	g.Expect(x).To(Equal(0))
	g.Expect(y).To(Equal(0))
}

func TestDispatchSizeCoversGrid(t *testing.T) {
	g := NewWithT(t)

	for _, size := range []int{1, 31, 32, 63, 64, 1000, 4800} {
		x, _ := DispatchSize(size, size)
		g.Expect(x * WorkgroupSize).To(BeNumerically(">=", size))
		g.Expect((x - 1) * WorkgroupSize).To(BeNumerically("<", size))
	}
}

func newRecordedComputePipeline(t *testing.T, f *deviceFixture, pixels []byte) (*ComputePipeline, core1_0.CommandBuffer) {
	p := &ComputePipeline{
		device:         f.device,
		width:          ComputeWidth,
		height:         ComputeHeight,
		storage:        f.hostBuffer(pixels),
		pipeline:       mocks.NewDummyPipeline(f.handle),
		pipelineLayout: mocks.NewDummyPipelineLayout(f.handle),
		descriptorSet:  mocks.NewDummyDescriptorSet(mocks.NewDummyDescriptorPool(f.handle), f.handle),
	}

	commandBuffer := mocks.NewDummyCommandBuffer(f.device.CommandPool(RoleCompute), f.handle)
	gomock.InOrder(
		f.driver.EXPECT().AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
			CommandPool:        f.device.CommandPool(RoleCompute),
			Level:              core1_0.CommandBufferLevelPrimary,
			CommandBufferCount: 1,
		}).Return([]core1_0.CommandBuffer{commandBuffer}, core1_0.VKSuccess, nil),
		f.driver.EXPECT().BeginCommandBuffer(commandBuffer, gomock.Any()).Return(core1_0.VKSuccess, nil),
		f.driver.EXPECT().CmdBindPipeline(commandBuffer, core1_0.PipelineBindPointCompute, p.pipeline),
		f.driver.EXPECT().CmdBindDescriptorSets(commandBuffer, core1_0.PipelineBindPointCompute, p.pipelineLayout, 0,
			[]core1_0.DescriptorSet{p.descriptorSet}, gomock.Nil()),
		f.driver.EXPECT().CmdDispatch(commandBuffer, 200, 150, 1),
		f.driver.EXPECT().EndCommandBuffer(commandBuffer).Return(core1_0.VKSuccess, nil),
	)

	if err := p.record(); err != nil {
		t.Fatal(err)
	}
	return p, commandBuffer
}

func TestComputeRecordDispatchesWholeImage(t *testing.T) {
	g := NewWithT(t)
	f := newDeviceFixture(t)

	p, commandBuffer := newRecordedComputePipeline(t, f, make([]byte, 32))
	g.Expect(p.commandBuffer).To(Equal(commandBuffer))

	width, height := p.Extent()
	g.Expect(width).To(Equal(6400))
	g.Expect(height).To(Equal(4800))

	f.driver.EXPECT().FreeCommandBuffers(commandBuffer)
	p.Destroy()
}

func TestComputeDispatchAndReadPixels(t *testing.T) {
	g := NewWithT(t)
	f := newDeviceFixture(t)

	pixels := make([]byte, 32)
	p, commandBuffer := newRecordedComputePipeline(t, f, pixels)

	queue := f.device.Queue(RoleCompute)
	gomock.InOrder(
		f.driver.EXPECT().QueueSubmit(queue, gomock.Nil(), core1_0.SubmitInfo{
			CommandBuffers: []core1_0.CommandBuffer{commandBuffer},
		}).Return(core1_0.VKSuccess, nil),
		f.driver.EXPECT().QueueWaitIdle(queue).Return(core1_0.VKSuccess, nil),
	)
	g.Expect(p.Dispatch()).To(Succeed())

	// one RGBA pixel at 0.5 followed by one at 1.0
	copy(pixels, encodeFloats(g, 0.5, 0.5, 0.5, 1, 1, 1, 1, 1))

	var read []float32
	g.Expect(p.ReadPixels(func(values []float32) error {
		read = append(read, values...)
		return nil
	})).To(Succeed())
	g.Expect(read).To(Equal([]float32{0.5, 0.5, 0.5, 1, 1, 1, 1, 1}))
}

func encodeFloats(g *WithT, values ...float32) []byte {
	data, err := encode(values)
	g.Expect(err).NotTo(HaveOccurred())
	return data
}
