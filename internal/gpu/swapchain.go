package gpu

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
)

type SwapchainState int

const (
	SwapchainUninitialized SwapchainState = iota
	SwapchainCreated
	SwapchainRecreating
	SwapchainDestroyed
)

func (s SwapchainState) String() string {
	switch s {
	case SwapchainUninitialized:
		return "uninitialized"
	case SwapchainCreated:
		return "created"
	case SwapchainRecreating:
		return "recreating"
	case SwapchainDestroyed:
		return "destroyed"
	}
	return "unknown"
}

var newSwapchainExtension = khr_swapchain.CreateExtensionDriverFromCoreDriver

type supportDetails struct {
	capabilities *khr_surface.SurfaceCapabilities
	formats      []khr_surface.SurfaceFormat
	presentModes []khr_surface.PresentMode
}

// Swapchain owns the presentable images of the device's surface together
// with their views and framebuffers, a render pass that targets them, and
// the per-frame-slot synchronization primitives.
type Swapchain struct {
	device    *Device
	extension khr_swapchain.ExtensionDriver

	handle      khr_swapchain.Swapchain
	format      khr_surface.SurfaceFormat
	presentMode khr_surface.PresentMode
	extent      core1_0.Extent2D

	images       []core1_0.Image
	views        []core1_0.ImageView
	framebuffers []core1_0.Framebuffer
	renderPass   core1_0.RenderPass

	presentComplete []core1_0.Semaphore
	renderComplete  []core1_0.Semaphore
	inFlight        []core1_0.Fence

	frames *frameTracker
	state  SwapchainState
}

func NewSwapchain(device *Device, width, height int) (*Swapchain, error) {
	if !device.Surface().Initialized() {
		return nil, errors.New("device was created without a surface")
	}

	extension := newSwapchainExtension(device.Driver())
	if extension == nil {
		return nil, errors.Wrapf(ErrMissingExtension, "device lacks %s", khr_swapchain.ExtensionName)
	}

	s := &Swapchain{
		device:    device,
		extension: extension,
		frames:    &frameTracker{maxFrames: 1},
	}

	err := s.create(width, height)
	if err != nil {
		s.Cleanup()
		s.state = SwapchainDestroyed
		return nil, err
	}

	return s, nil
}

func (s *Swapchain) querySupport() (supportDetails, error) {
	var details supportDetails
	var err error

	surfaceExtension := s.device.SurfaceExtension()
	surface := s.device.Surface()
	physicalDevice := s.device.PhysicalDevice()

	details.capabilities, _, err = surfaceExtension.GetPhysicalDeviceSurfaceCapabilities(surface, physicalDevice)
	if err != nil {
		return details, errors.Wrap(err, "query surface capabilities")
	}

	details.formats, _, err = surfaceExtension.GetPhysicalDeviceSurfaceFormats(surface, physicalDevice)
	if err != nil {
		return details, errors.Wrap(err, "query surface formats")
	}
	if len(details.formats) == 0 {
		return details, errors.New("surface reports no formats")
	}

	details.presentModes, _, err = surfaceExtension.GetPhysicalDeviceSurfacePresentModes(surface, physicalDevice)
	return details, errors.Wrap(err, "query surface present modes")
}

func (s *Swapchain) create(width, height int) error {
	if width <= 0 || height <= 0 {
		return errors.Wrapf(ErrDegenerateExtent, "%dx%d", width, height)
	}

	support, err := s.querySupport()
	if err != nil {
		return err
	}

	s.format = ChooseSurfaceFormat(support.formats)
	s.presentMode = ChoosePresentMode(support.presentModes)
	s.extent = ClampExtent(core1_0.Extent2D{Width: width, Height: height}, support.capabilities)

	err = s.createSwapchain(support.capabilities)
	if err != nil {
		return err
	}

	err = s.createImageViews()
	if err != nil {
		return err
	}

	err = s.createRenderPass()
	if err != nil {
		return err
	}

	err = s.createFramebuffers()
	if err != nil {
		return err
	}

	err = s.createSyncObjects()
	if err != nil {
		return err
	}

	s.frames.reset(len(s.images), MaxFramesInFlight(s.presentMode))

	images, views, framebuffers, tracked := s.Counts()
	if views != images || framebuffers != images || tracked != images {
		return errors.Newf("swapchain arrays out of step: %d images, %d views, %d framebuffers, %d tracked", images, views, framebuffers, tracked)
	}
	s.state = SwapchainCreated

	Logger().Info("swapchain created",
		"width", s.extent.Width,
		"height", s.extent.Height,
		"images", images,
		"format", s.format.Format.String(),
		"presentMode", s.presentMode.String(),
		"framesInFlight", s.frames.maxFrames)
	return nil
}

func (s *Swapchain) createSwapchain(capabilities *khr_surface.SurfaceCapabilities) error {
	sharingMode := core1_0.SharingModeExclusive
	var queueFamilyIndices []int

	families := s.device.Families()
	if *families.Graphics != *families.Present {
		sharingMode = core1_0.SharingModeConcurrent
		queueFamilyIndices = append(queueFamilyIndices, *families.Graphics, *families.Present)
	}

	swapchain, _, err := s.extension.CreateSwapchain(nil, khr_swapchain.SwapchainCreateInfo{
		Surface: s.device.Surface(),

		MinImageCount:    ImageCount(capabilities),
		ImageFormat:      s.format.Format,
		ImageColorSpace:  s.format.ColorSpace,
		ImageExtent:      s.extent,
		ImageArrayLayers: 1,
		ImageUsage:       core1_0.ImageUsageColorAttachment,

		ImageSharingMode:   sharingMode,
		QueueFamilyIndices: queueFamilyIndices,

		PreTransform:   capabilities.CurrentTransform,
		CompositeAlpha: khr_surface.CompositeAlphaOpaque,
		PresentMode:    s.presentMode,
		Clipped:        true,
	})
	if err != nil {
		return errors.Wrap(err, "create swapchain")
	}
	s.handle = swapchain

	s.images, _, err = s.extension.GetSwapchainImages(s.handle)
	return errors.Wrap(err, "get swapchain images")
}

func (s *Swapchain) createImageViews() error {
	for _, image := range s.images {
		view, err := createImageView(s.device.Driver(), image, s.format.Format)
		if err != nil {
			return errors.Wrap(err, "create swapchain image view")
		}

		s.views = append(s.views, view)
	}

	return nil
}

func (s *Swapchain) createRenderPass() error {
	renderPass, _, err := s.device.Driver().CreateRenderPass(nil, core1_0.RenderPassCreateInfo{
		Attachments: []core1_0.AttachmentDescription{
			{
				Format:         s.format.Format,
				Samples:        core1_0.Samples1,
				LoadOp:         core1_0.AttachmentLoadOpClear,
				StoreOp:        core1_0.AttachmentStoreOpStore,
				StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
				StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
				InitialLayout:  core1_0.ImageLayoutUndefined,
				FinalLayout:    khr_swapchain.ImageLayoutPresentSrc,
			},
		},
		Subpasses: []core1_0.SubpassDescription{
			{
				PipelineBindPoint: core1_0.PipelineBindPointGraphics,
				ColorAttachments: []core1_0.AttachmentReference{
					{
						Attachment: 0,
						Layout:     core1_0.ImageLayoutColorAttachmentOptimal,
					},
				},
			},
		},
		SubpassDependencies: []core1_0.SubpassDependency{
			{
				SrcSubpass: core1_0.SubpassExternal,
				DstSubpass: 0,

				SrcStageMask:  core1_0.PipelineStageColorAttachmentOutput,
				SrcAccessMask: 0,

				DstStageMask:  core1_0.PipelineStageColorAttachmentOutput,
				DstAccessMask: core1_0.AccessColorAttachmentWrite,
			},
		},
	})
	if err != nil {
		return errors.Wrap(err, "create render pass")
	}

	s.renderPass = renderPass
	return nil
}

func (s *Swapchain) createFramebuffers() error {
	for _, imageView := range s.views {
		framebuffer, _, err := s.device.Driver().CreateFramebuffer(nil, core1_0.FramebufferCreateInfo{
			RenderPass:  s.renderPass,
			Layers:      1,
			Attachments: []core1_0.ImageView{imageView},
			Width:       s.extent.Width,
			Height:      s.extent.Height,
		})
		if err != nil {
			return errors.Wrap(err, "create framebuffer")
		}

		s.framebuffers = append(s.framebuffers, framebuffer)
	}

	return nil
}

func (s *Swapchain) createSyncObjects() error {
	driver := s.device.Driver()

	for i := 0; i < MaxFramesInFlight(s.presentMode); i++ {
		semaphore, _, err := driver.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
		if err != nil {
			return errors.Wrap(err, "create present-complete semaphore")
		}
		s.presentComplete = append(s.presentComplete, semaphore)

		semaphore, _, err = driver.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
		if err != nil {
			return errors.Wrap(err, "create render-complete semaphore")
		}
		s.renderComplete = append(s.renderComplete, semaphore)

		fence, _, err := driver.CreateFence(nil, core1_0.FenceCreateInfo{
			Flags: core1_0.FenceCreateSignaled,
		})
		if err != nil {
			return errors.Wrap(err, "create in-flight fence")
		}
		s.inFlight = append(s.inFlight, fence)
	}

	return nil
}

// Recreate rebuilds every swapchain-dependent object at the new size once
// the device is idle. Command buffers recorded against the old
// framebuffers must be re-recorded by the caller.
func (s *Swapchain) Recreate(width, height int) error {
	if s.state == SwapchainDestroyed {
		return ErrDestroyed
	}
	if width <= 0 || height <= 0 {
		return errors.Wrapf(ErrDegenerateExtent, "%dx%d", width, height)
	}

	s.state = SwapchainRecreating
	err := s.device.WaitIdle()
	if err != nil {
		return err
	}

	s.Cleanup()

	err = s.create(width, height)
	if err != nil {
		s.Cleanup()
		s.state = SwapchainDestroyed
		return errors.Wrap(err, "recreate swapchain")
	}

	return nil
}

// Cleanup destroys the render pass, framebuffers, image views, fences,
// semaphores and finally the swapchain itself. Swapchain images belong to
// the swapchain and are not destroyed individually.
func (s *Swapchain) Cleanup() {
	driver := s.device.Driver()

	if s.renderPass.Initialized() {
		driver.DestroyRenderPass(s.renderPass, nil)
		s.renderPass = core1_0.RenderPass{}
	}

	for _, framebuffer := range s.framebuffers {
		driver.DestroyFramebuffer(framebuffer, nil)
	}
	s.framebuffers = nil

	for _, imageView := range s.views {
		driver.DestroyImageView(imageView, nil)
	}
	s.views = nil

	for _, fence := range s.inFlight {
		driver.DestroyFence(fence, nil)
	}
	s.inFlight = nil

	for _, semaphore := range s.renderComplete {
		driver.DestroySemaphore(semaphore, nil)
	}
	s.renderComplete = nil

	for _, semaphore := range s.presentComplete {
		driver.DestroySemaphore(semaphore, nil)
	}
	s.presentComplete = nil

	if s.handle.Initialized() {
		s.extension.DestroySwapchain(s.handle, nil)
		s.handle = khr_swapchain.Swapchain{}
	}
	s.images = nil
}

func (s *Swapchain) Destroy() {
	if s.state == SwapchainDestroyed {
		return
	}
	s.Cleanup()
	s.state = SwapchainDestroyed
}

// waitForSlot blocks until the slot's previous submission has retired.
func (s *Swapchain) waitForSlot(slot int) error {
	_, err := s.device.Driver().WaitForFences(true, common.NoTimeout, s.inFlight[slot])
	return errors.Wrapf(err, "wait for frame slot %d", slot)
}

func (s *Swapchain) acquire(slot int) (int, acquireOutcome, error) {
	imageIndex, res, err := s.extension.AcquireNextImage(s.handle, common.NoTimeout, &s.presentComplete[slot], nil)
	outcome, err := classifyAcquire(res, err)
	return imageIndex, outcome, err
}

func (s *Swapchain) present(imageIndex, slot int) (bool, error) {
	res, err := s.extension.QueuePresent(s.device.Queue(RolePresent), khr_swapchain.PresentInfo{
		WaitSemaphores: []core1_0.Semaphore{s.renderComplete[slot]},
		Swapchains:     []khr_swapchain.Swapchain{s.handle},
		ImageIndices:   []int{imageIndex},
	})
	return classifyPresent(res, err)
}

func (s *Swapchain) State() SwapchainState                { return s.state }
func (s *Swapchain) Extent() core1_0.Extent2D             { return s.extent }
func (s *Swapchain) Format() core1_0.Format               { return s.format.Format }
func (s *Swapchain) PresentMode() khr_surface.PresentMode { return s.presentMode }
func (s *Swapchain) RenderPass() core1_0.RenderPass       { return s.renderPass }
func (s *Swapchain) ImageCount() int                      { return len(s.images) }
func (s *Swapchain) MaxFramesInFlight() int               { return s.frames.maxFrames }
func (s *Swapchain) Framebuffer(image int) core1_0.Framebuffer {
	return s.framebuffers[image]
}

// Counts reports the sizes of the per-image arrays, which are kept in
// lockstep with the swapchain image count.
func (s *Swapchain) Counts() (images, views, framebuffers, tracked int) {
	return len(s.images), len(s.views), len(s.framebuffers), s.frames.imageCount()
}

func createImageView(driver core1_0.DeviceDriver, image core1_0.Image, format core1_0.Format) (core1_0.ImageView, error) {
	imageView, _, err := driver.CreateImageView(nil, core1_0.ImageViewCreateInfo{
		Image:    image,
		ViewType: core1_0.ImageViewType2D,
		Format:   format,
		SubresourceRange: core1_0.ImageSubresourceRange{
			AspectMask:     core1_0.ImageAspectColor,
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	})
	return imageView, err
}
