package gpu

import (
	"testing"

	"github.com/cockroachdb/errors"
	. "github.com/onsi/gomega"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/core/v3/mocks"
	"go.uber.org/mock/gomock"
)

func TestBufferWriteReadMapped(t *testing.T) {
	g := NewWithT(t)
	f := newDeviceFixture(t)

	hostMemory := core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent
	handle, memory := f.expectBuffer(16, core1_0.BufferUsageStorageBuffer, hostVisibleType)
	backing := make([]byte, 16)
	f.expectMapping(memory, backing)

	buffer, err := NewBuffer(f.device, 16, core1_0.BufferUsageStorageBuffer, hostMemory)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(buffer.Size()).To(Equal(16))

	g.Expect(buffer.Write([]byte{1, 2, 3, 4, 5, 6, 7, 8})).To(Succeed())
	g.Expect(backing[:8]).To(Equal([]byte{1, 2, 3, 4, 5, 6, 7, 8}))
	g.Expect(buffer.Bytes()).To(Equal([]byte{1, 2, 3, 4, 5, 6, 7, 8}))

	// the device writes behind the mapping
	backing[15] = 9
	read, err := buffer.Read()
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(read).To(HaveLen(16))
	g.Expect(read[15]).To(Equal(byte(9)))

	var seen int
	g.Expect(buffer.Mapped(func(mapped []byte) error {
		seen = len(mapped)
		mapped[0] = 42
		return nil
	})).To(Succeed())
	g.Expect(seen).To(Equal(16))
	g.Expect(backing[0]).To(Equal(byte(42)))

	failure := errors.New("callback failed")
	g.Expect(buffer.Mapped(func([]byte) error { return failure })).To(MatchError(failure))

	g.Expect(buffer.Write(make([]byte, 17))).To(MatchError(ContainSubstring("overflows")))
	g.Expect(buffer.Bytes()).To(HaveLen(16))

	f.driver.EXPECT().DestroyBuffer(handle, gomock.Nil())
	f.driver.EXPECT().FreeMemory(memory, gomock.Nil())
	buffer.Destroy()
	buffer.Destroy()

	g.Expect(errors.Is(buffer.Write([]byte{1}), ErrDestroyed)).To(BeTrue())
	g.Expect(errors.Is(buffer.Mapped(func([]byte) error { return nil }), ErrDestroyed)).To(BeTrue())
}

func TestBufferWriteStagesDeviceLocalMemory(t *testing.T) {
	g := NewWithT(t)
	f := newDeviceFixture(t)

	data := []byte{10, 20, 30, 40}
	usage := core1_0.BufferUsageVertexBuffer | core1_0.BufferUsageTransferDst
	handle, memory := f.expectBuffer(8, usage, deviceLocalType)

	buffer, err := NewBuffer(f.device, 8, usage, core1_0.MemoryPropertyDeviceLocal)
	g.Expect(err).NotTo(HaveOccurred())

	stagingHandle, stagingMemory := f.expectBuffer(len(data), core1_0.BufferUsageTransferSrc, hostVisibleType)
	staged := make([]byte, len(data))
	f.expectMapping(stagingMemory, staged)

	commandBuffer := mocks.NewDummyCommandBuffer(f.device.CommandPool(RoleGraphics), f.handle)
	fence := mocks.NewDummyFence(f.handle)
	gomock.InOrder(
		f.driver.EXPECT().AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
			CommandPool:        f.device.CommandPool(RoleGraphics),
			Level:              core1_0.CommandBufferLevelPrimary,
			CommandBufferCount: 1,
		}).Return([]core1_0.CommandBuffer{commandBuffer}, core1_0.VKSuccess, nil),
		f.driver.EXPECT().BeginCommandBuffer(commandBuffer, gomock.Any()).Return(core1_0.VKSuccess, nil),
		f.driver.EXPECT().CmdCopyBuffer(commandBuffer, stagingHandle, handle, core1_0.BufferCopy{Size: len(data)}).Return(nil),
		f.driver.EXPECT().EndCommandBuffer(commandBuffer).Return(core1_0.VKSuccess, nil),
		f.driver.EXPECT().CreateFence(gomock.Nil(), core1_0.FenceCreateInfo{}).Return(fence, core1_0.VKSuccess, nil),
		f.driver.EXPECT().QueueSubmit(f.device.Queue(RoleGraphics), &fence, core1_0.SubmitInfo{
			CommandBuffers: []core1_0.CommandBuffer{commandBuffer},
		}).Return(core1_0.VKSuccess, nil),
		f.driver.EXPECT().WaitForFences(true, FenceTimeout, fence).Return(core1_0.VKTimeout, nil),
		f.driver.EXPECT().WaitForFences(true, FenceTimeout, fence).Return(core1_0.VKSuccess, nil),
		f.driver.EXPECT().DestroyFence(fence, gomock.Nil()),
		f.driver.EXPECT().FreeCommandBuffers(commandBuffer),
		f.driver.EXPECT().DestroyBuffer(stagingHandle, gomock.Nil()),
		f.driver.EXPECT().FreeMemory(stagingMemory, gomock.Nil()),
	)

	g.Expect(buffer.Write(data)).To(Succeed())
	g.Expect(staged).To(Equal(data))
	g.Expect(buffer.Bytes()).To(Equal(data))

	g.Expect(errors.Is(buffer.Mapped(func([]byte) error { return nil }), ErrNotHostVisible)).To(BeTrue())

	f.driver.EXPECT().DestroyBuffer(handle, gomock.Nil())
	f.driver.EXPECT().FreeMemory(memory, gomock.Nil())
	buffer.Destroy()
}

func TestBufferWriteRejectsUnreachableMemory(t *testing.T) {
	g := NewWithT(t)
	f := newDeviceFixture(t)

	f.expectBuffer(8, core1_0.BufferUsageVertexBuffer, deviceLocalType)
	buffer, err := NewBuffer(f.device, 8, core1_0.BufferUsageVertexBuffer, core1_0.MemoryPropertyDeviceLocal)
	g.Expect(err).NotTo(HaveOccurred())

	err = buffer.Write([]byte{1, 2, 3})
	g.Expect(errors.Is(err, ErrNotHostVisible)).To(BeTrue())
	g.Expect(buffer.Bytes()).To(BeEmpty())
}

func TestNewBufferReleasesOnBindFailure(t *testing.T) {
	g := NewWithT(t)
	f := newDeviceFixture(t)

	handle := mocks.NewDummyBuffer(f.handle)
	memory := mocks.NewDummyDeviceMemory(f.handle, 8)
	f.driver.EXPECT().CreateBuffer(gomock.Nil(), gomock.Any()).Return(handle, core1_0.VKSuccess, nil)
	f.driver.EXPECT().GetBufferMemoryRequirements(handle).Return(&core1_0.MemoryRequirements{Size: 8, MemoryTypeBits: 0b01})
	f.driver.EXPECT().AllocateMemory(gomock.Nil(), gomock.Any()).Return(memory, core1_0.VKSuccess, nil)
	f.driver.EXPECT().BindBufferMemory(handle, memory, 0).Return(core1_0.VKErrorOutOfDeviceMemory, errors.New("bind failed"))
	f.driver.EXPECT().DestroyBuffer(handle, gomock.Nil())
	f.driver.EXPECT().FreeMemory(memory, gomock.Nil())

	_, err := NewBuffer(f.device, 8, core1_0.BufferUsageVertexBuffer, core1_0.MemoryPropertyDeviceLocal)
	g.Expect(err).To(MatchError(ContainSubstring("bind buffer memory")))
}
