package gpu

import (
	"testing"
	"time"
	"unsafe"

	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/core/v3/loader"
	"github.com/vkngwrapper/core/v3/mocks"
	"github.com/vkngwrapper/core/v3/mocks/mocks1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	mock_surface "github.com/vkngwrapper/extensions/v3/khr_surface/mocks"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
	"go.uber.org/mock/gomock"
)

const (
	deviceLocalType = 0
	hostVisibleType = 1
)

// deviceFixture is a Device whose driver is a gomock double. Graphics and
// present share family 0, compute has family 1.
type deviceFixture struct {
	driver   *mocks1_0.MockCoreDeviceDriver
	handle   core1_0.Device
	instance core1_0.Instance
	device   *Device
	surface  *fakeSurfaceExtension
}

func newDeviceFixture(t *testing.T) *deviceFixture {
	ctrl := gomock.NewController(t)
	driver := mocks1_0.NewMockCoreDeviceDriver(ctrl)
	handle := mocks.NewDummyDevice(common.Vulkan1_2, []string{khr_swapchain.ExtensionName})
	instance := mocks.NewDummyInstance(common.Vulkan1_2, []string{khr_surface.ExtensionName})

	graphics, compute := 0, 1
	graphicsQueue := mocks.NewDummyQueue(handle)
	surface := &fakeSurfaceExtension{
		capabilities: khr_surface.SurfaceCapabilities{
			MinImageCount:  2,
			MinImageExtent: core1_0.Extent2D{Width: 1, Height: 1},
			MaxImageExtent: core1_0.Extent2D{Width: 4096, Height: 4096},
		},
		formats: []khr_surface.SurfaceFormat{
			{Format: PreferredSurfaceFormat, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear},
		},
		presentModes: []khr_surface.PresentMode{khr_surface.PresentModeFIFO},
	}

	return &deviceFixture{
		driver:   driver,
		handle:   handle,
		instance: instance,
		surface:  surface,
		device: &Device{
			deviceDriver:   driver,
			physicalDevice: mocks.NewDummyPhysicalDevice(instance, common.Vulkan1_2),
			memoryProperties: &core1_0.PhysicalDeviceMemoryProperties{
				MemoryTypes: []core1_0.MemoryType{
					deviceLocalType: {PropertyFlags: core1_0.MemoryPropertyDeviceLocal},
					hostVisibleType: {PropertyFlags: core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent},
				},
			},
			surfaceExtension: surface,
			surface:          mock_surface.NewDummySurface(instance),
			families:         QueueFamilies{Graphics: &graphics, Compute: &compute, Present: &graphics},
			queues: map[QueueRole]core1_0.Queue{
				RoleGraphics: graphicsQueue,
				RoleCompute:  mocks.NewDummyQueue(handle),
				RolePresent:  graphicsQueue,
			},
			pools: map[QueueRole]core1_0.CommandPool{
				RoleGraphics: mocks.NewDummyCommandPool(handle),
				RoleCompute:  mocks.NewDummyCommandPool(handle),
			},
		},
	}
}

// expectBuffer sets up the create, allocate and bind calls of NewBuffer and
// returns the handles the driver hands out.
func (f *deviceFixture) expectBuffer(size int, usage core1_0.BufferUsageFlags, memoryType int) (core1_0.Buffer, core1_0.DeviceMemory) {
	buffer := mocks.NewDummyBuffer(f.handle)
	memory := mocks.NewDummyDeviceMemory(f.handle, size)

	f.driver.EXPECT().CreateBuffer(gomock.Nil(), core1_0.BufferCreateInfo{
		Size:        size,
		Usage:       usage,
		SharingMode: core1_0.SharingModeExclusive,
	}).Return(buffer, core1_0.VKSuccess, nil)
	f.driver.EXPECT().GetBufferMemoryRequirements(buffer).Return(&core1_0.MemoryRequirements{
		Size:           size,
		MemoryTypeBits: 0b11,
	})
	f.driver.EXPECT().AllocateMemory(gomock.Nil(), core1_0.MemoryAllocateInfo{
		AllocationSize:  size,
		MemoryTypeIndex: memoryType,
	}).Return(memory, core1_0.VKSuccess, nil)
	f.driver.EXPECT().BindBufferMemory(buffer, memory, 0).Return(core1_0.VKSuccess, nil)

	return buffer, memory
}

// expectMapping backs every map of memory with backing.
func (f *deviceFixture) expectMapping(memory core1_0.DeviceMemory, backing []byte) {
	f.driver.EXPECT().MapMemory(memory, 0, len(backing), gomock.Any()).Return(unsafePointer(backing), core1_0.VKSuccess, nil).AnyTimes()
	f.driver.EXPECT().UnmapMemory(memory).AnyTimes()
}

func unsafePointer(backing []byte) unsafe.Pointer {
	return unsafe.Pointer(&backing[0])
}

// hostBuffer builds an already-bound host-visible buffer over backing.
func (f *deviceFixture) hostBuffer(backing []byte) *Buffer {
	buffer := &Buffer{
		device:     f.device,
		Handle:     mocks.NewDummyBuffer(f.handle),
		Memory:     mocks.NewDummyDeviceMemory(f.handle, len(backing)),
		size:       len(backing),
		usage:      core1_0.BufferUsageUniformBuffer,
		properties: core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent,
	}
	f.expectMapping(buffer.Memory, backing)
	return buffer
}

type fakeSurfaceExtension struct {
	khr_surface.ExtensionDriver

	capabilities khr_surface.SurfaceCapabilities
	formats      []khr_surface.SurfaceFormat
	presentModes []khr_surface.PresentMode
	presentable  map[int]bool

	destroyed []khr_surface.Surface
	released  *[]string
}

func (s *fakeSurfaceExtension) GetPhysicalDeviceSurfaceSupport(surface khr_surface.Surface, physicalDevice core1_0.PhysicalDevice, queueFamilyIndex int) (bool, common.VkResult, error) {
	return s.presentable[queueFamilyIndex], core1_0.VKSuccess, nil
}

func (s *fakeSurfaceExtension) GetPhysicalDeviceSurfaceCapabilities(surface khr_surface.Surface, device core1_0.PhysicalDevice) (*khr_surface.SurfaceCapabilities, common.VkResult, error) {
	capabilities := s.capabilities
	return &capabilities, core1_0.VKSuccess, nil
}

func (s *fakeSurfaceExtension) GetPhysicalDeviceSurfaceFormats(surface khr_surface.Surface, device core1_0.PhysicalDevice) ([]khr_surface.SurfaceFormat, common.VkResult, error) {
	return s.formats, core1_0.VKSuccess, nil
}

func (s *fakeSurfaceExtension) GetPhysicalDeviceSurfacePresentModes(surface khr_surface.Surface, device core1_0.PhysicalDevice) ([]khr_surface.PresentMode, common.VkResult, error) {
	return s.presentModes, core1_0.VKSuccess, nil
}

func (s *fakeSurfaceExtension) DestroySurface(surface khr_surface.Surface, callbacks *loader.AllocationCallbacks) {
	s.destroyed = append(s.destroyed, surface)
	if s.released != nil {
		*s.released = append(*s.released, "surface")
	}
}

type acquireResult struct {
	image int
	res   common.VkResult
	err   error
}

type fakeSwapchainExtension struct {
	khr_swapchain.ExtensionDriver

	device     core1_0.Device
	imageCount int

	created   []khr_swapchain.SwapchainCreateInfo
	destroyed []khr_swapchain.Swapchain
	released  *[]string

	acquires       []acquireResult
	acquireSignals []*core1_0.Semaphore
	presents       []khr_swapchain.PresentInfo
	presentResults []common.VkResult
}

func (e *fakeSwapchainExtension) CreateSwapchain(allocation *loader.AllocationCallbacks, options khr_swapchain.SwapchainCreateInfo) (khr_swapchain.Swapchain, common.VkResult, error) {
	e.created = append(e.created, options)
	return khr_swapchain.NewDummySwapchain(e.device), core1_0.VKSuccess, nil
}

func (e *fakeSwapchainExtension) GetSwapchainImages(swapchain khr_swapchain.Swapchain) ([]core1_0.Image, common.VkResult, error) {
	images := make([]core1_0.Image, e.imageCount)
	for i := range images {
		images[i] = mocks.NewDummyImage(e.device)
	}
	return images, core1_0.VKSuccess, nil
}

func (e *fakeSwapchainExtension) DestroySwapchain(swapchain khr_swapchain.Swapchain, callbacks *loader.AllocationCallbacks) {
	e.destroyed = append(e.destroyed, swapchain)
	if e.released != nil {
		*e.released = append(*e.released, "swapchain")
	}
}

func (e *fakeSwapchainExtension) AcquireNextImage(swapchain khr_swapchain.Swapchain, timeout time.Duration, semaphore *core1_0.Semaphore, fence *core1_0.Fence) (int, common.VkResult, error) {
	e.acquireSignals = append(e.acquireSignals, semaphore)
	next := e.acquires[0]
	e.acquires = e.acquires[1:]
	return next.image, next.res, next.err
}

func (e *fakeSwapchainExtension) QueuePresent(queue core1_0.Queue, o khr_swapchain.PresentInfo) (common.VkResult, error) {
	e.presents = append(e.presents, o)
	if len(e.presentResults) == 0 {
		return core1_0.VKSuccess, nil
	}
	res := e.presentResults[0]
	e.presentResults = e.presentResults[1:]
	return res, nil
}
