package gpu

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v3/khr_portability_enumeration"
	"github.com/vkngwrapper/extensions/v3/khr_portability_subset"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
)

const (
	ApplicationName = "Mandelbrot Renderer"
	EngineName      = "No Engine"

	// FenceTimeout bounds each wait in the one-time submit loop.
	FenceTimeout = 100 * time.Millisecond
)

var validationLayers = []string{"VK_LAYER_KHRONOS_validation"}

// newSurfaceExtension builds the surface extension driver over an
// instance. Tests swap it for a fake.
var newSurfaceExtension = khr_surface.CreateExtensionDriverFromCoreDriver

// liveDevice is set while a Device exists; only one may exist at a time.
var liveDevice atomic.Bool

var ErrDeviceExists = errors.New("a device is already live in this process")

// SurfaceSource is a window that can host a Vulkan surface.
type SurfaceSource interface {
	RequiredInstanceExtensions() []string
	CreateSurface(instance core1_0.Instance, surfaceDriver khr_surface.ExtensionDriver) (khr_surface.Surface, error)
}

type DeviceConfig struct {
	GlobalDriver core1_0.GlobalDriver

	// Surface is nil for headless compute use. With a surface the device
	// also needs graphics and present queues and the swapchain extension.
	Surface SurfaceSource

	Validation bool
}

// Device is the single Vulkan context of the process: instance, optional
// surface, physical and logical device, one queue per role and one
// command pool per submitting role.
type Device struct {
	globalDriver   core1_0.GlobalDriver
	instanceDriver core1_0.CoreInstanceDriver
	deviceDriver   core1_0.CoreDeviceDriver

	debugDriver      ext_debug_utils.ExtensionDriver
	debugMessenger   ext_debug_utils.DebugUtilsMessenger
	surfaceExtension khr_surface.ExtensionDriver
	surface          khr_surface.Surface

	physicalDevice   core1_0.PhysicalDevice
	properties       *core1_0.PhysicalDeviceProperties
	features         *core1_0.PhysicalDeviceFeatures
	memoryProperties *core1_0.PhysicalDeviceMemoryProperties

	families QueueFamilies
	queues   map[QueueRole]core1_0.Queue
	pools    map[QueueRole]core1_0.CommandPool

	teardown teardown
}

// NewDevice creates the instance, picks a physical device, resolves queue
// families and creates the logical device with its queues and pools. On
// failure everything created so far is released.
func NewDevice(cfg DeviceConfig) (device *Device, err error) {
	if cfg.GlobalDriver == nil {
		return nil, errors.New("a global driver is required")
	}
	if !liveDevice.CompareAndSwap(false, true) {
		return nil, ErrDeviceExists
	}

	d := &Device{
		globalDriver: cfg.GlobalDriver,
		queues:       map[QueueRole]core1_0.Queue{},
		pools:        map[QueueRole]core1_0.CommandPool{},
	}
	defer func() {
		if err != nil {
			d.teardown.run()
			liveDevice.Store(false)
		}
	}()

	err = d.createInstance(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Validation {
		err = d.setupDebugMessenger()
		if err != nil {
			return nil, err
		}
	}

	if cfg.Surface != nil {
		err = d.createSurface(cfg.Surface)
		if err != nil {
			return nil, err
		}
	}

	err = d.selectPhysicalDevice()
	if err != nil {
		return nil, err
	}

	err = d.resolveQueueFamilies()
	if err != nil {
		return nil, err
	}

	err = d.createLogicalDevice()
	if err != nil {
		return nil, err
	}

	err = d.createCommandPools()
	if err != nil {
		return nil, err
	}

	return d, nil
}

func (d *Device) createInstance(cfg DeviceConfig) error {
	instanceOptions := core1_0.InstanceCreateInfo{
		ApplicationName:    ApplicationName,
		ApplicationVersion: common.CreateVersion(1, 0, 0),
		EngineName:         EngineName,
		EngineVersion:      common.CreateVersion(1, 0, 0),
		APIVersion:         common.Vulkan1_2,
	}

	extensions, _, err := d.globalDriver.AvailableExtensions()
	if err != nil {
		return errors.Wrap(err, "enumerate instance extensions")
	}

	if cfg.Surface != nil {
		for _, ext := range cfg.Surface.RequiredInstanceExtensions() {
			_, hasExt := extensions[ext]
			if !hasExt {
				return errors.Wrapf(ErrMissingExtension, "window requires %s", ext)
			}
			instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext)
		}
	}

	_, enumerationSupported := extensions[khr_portability_enumeration.ExtensionName]
	if enumerationSupported {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, khr_portability_enumeration.ExtensionName)
		instanceOptions.Flags |= khr_portability_enumeration.InstanceCreateEnumeratePortability
	}

	if cfg.Validation {
		_, hasDebugUtils := extensions[ext_debug_utils.ExtensionName]
		if !hasDebugUtils {
			return errors.Wrapf(ErrMissingExtension, "validation requires %s", ext_debug_utils.ExtensionName)
		}
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext_debug_utils.ExtensionName)

		layers, _, err := d.globalDriver.AvailableLayers()
		if err != nil {
			return errors.Wrap(err, "enumerate instance layers")
		}

		for _, layer := range validationLayers {
			_, hasValidation := layers[layer]
			if !hasValidation {
				return errors.Newf("validation layer %s not available, install the Vulkan SDK", layer)
			}
			instanceOptions.EnabledLayerNames = append(instanceOptions.EnabledLayerNames, layer)
		}

		// Covers instance creation and destruction, which the messenger
		// created afterwards cannot see.
		instanceOptions.Next = debugMessengerOptions()
	}

	d.instanceDriver, _, err = d.globalDriver.CreateInstance(nil, instanceOptions)
	if err != nil {
		return errors.Wrap(err, "create instance")
	}
	d.teardown.push("instance", func() { d.instanceDriver.DestroyInstance(nil) })

	Logger().Debug("instance created", "extensions", instanceOptions.EnabledExtensionNames, "layers", instanceOptions.EnabledLayerNames)
	return nil
}

func debugMessengerOptions() ext_debug_utils.DebugUtilsMessengerCreateInfo {
	return ext_debug_utils.DebugUtilsMessengerCreateInfo{
		MessageSeverity: ext_debug_utils.SeverityError | ext_debug_utils.SeverityWarning,
		MessageType:     ext_debug_utils.TypeGeneral | ext_debug_utils.TypeValidation | ext_debug_utils.TypePerformance,
		UserCallback:    logDebug,
	}
}

func logDebug(msgType ext_debug_utils.DebugUtilsMessageTypeFlags, severity ext_debug_utils.DebugUtilsMessageSeverityFlags, data *ext_debug_utils.DebugUtilsMessengerCallbackData) bool {
	if severity&ext_debug_utils.SeverityError != 0 {
		Logger().Error(data.Message, "type", msgType.String())
	} else {
		Logger().Warn(data.Message, "type", msgType.String())
	}
	return false
}

func (d *Device) setupDebugMessenger() error {
	var err error
	d.debugDriver = ext_debug_utils.CreateExtensionDriverFromCoreDriver(d.instanceDriver)
	d.debugMessenger, _, err = d.debugDriver.CreateDebugUtilsMessenger(nil, debugMessengerOptions())
	if err != nil {
		return errors.Wrap(err, "create debug messenger")
	}
	d.teardown.push("debug messenger", func() { d.debugDriver.DestroyDebugUtilsMessenger(d.debugMessenger, nil) })

	return nil
}

func (d *Device) createSurface(source SurfaceSource) error {
	d.surfaceExtension = newSurfaceExtension(d.instanceDriver)
	if d.surfaceExtension == nil {
		return errors.Wrapf(ErrMissingExtension, "instance lacks %s", khr_surface.ExtensionName)
	}
	surface, err := source.CreateSurface(d.instanceDriver.Instance(), d.surfaceExtension)
	if err != nil {
		return errors.Wrap(err, "create surface")
	}

	d.surface = surface
	d.teardown.push("surface", func() { d.surfaceExtension.DestroySurface(d.surface, nil) })
	return nil
}

var vendorNames = map[uint32]string{
	0x10DE: "NVIDIA",
	0x1002: "AMD",
	0x13B5: "ARM",
	0x8086: "INTEL",
}

func VendorName(vendorID uint32) string {
	name, ok := vendorNames[vendorID]
	if !ok {
		return fmt.Sprintf("unknown vendor %#04x", vendorID)
	}
	return name
}

// preferDiscrete returns the index of the first discrete GPU, or 0.
func preferDiscrete(types []core1_0.PhysicalDeviceType) int {
	for index, deviceType := range types {
		if deviceType == core1_0.PhysicalDeviceTypeDiscreteGPU {
			return index
		}
	}
	return 0
}

func (d *Device) selectPhysicalDevice() error {
	physicalDevices, _, err := d.instanceDriver.EnumeratePhysicalDevices()
	if err != nil {
		return errors.Wrap(err, "enumerate physical devices")
	}
	if len(physicalDevices) == 0 {
		return ErrNoPhysicalDevice
	}

	properties := make([]*core1_0.PhysicalDeviceProperties, 0, len(physicalDevices))
	types := make([]core1_0.PhysicalDeviceType, 0, len(physicalDevices))
	for _, physicalDevice := range physicalDevices {
		props, err := d.instanceDriver.GetPhysicalDeviceProperties(physicalDevice)
		if err != nil {
			return errors.Wrap(err, "query physical device properties")
		}
		properties = append(properties, props)
		types = append(types, props.DriverType)
	}

	chosen := preferDiscrete(types)
	d.physicalDevice = physicalDevices[chosen]
	d.properties = properties[chosen]
	d.features = d.instanceDriver.GetPhysicalDeviceFeatures(d.physicalDevice)
	d.memoryProperties = d.instanceDriver.GetPhysicalDeviceMemoryProperties(d.physicalDevice)

	Logger().Info("physical device selected",
		"name", d.properties.DriverName,
		"vendor", VendorName(d.properties.VendorID),
		"type", d.properties.DriverType.String(),
		"candidates", len(physicalDevices))
	return nil
}

func (d *Device) resolveQueueFamilies() error {
	queueFamilies := d.instanceDriver.GetPhysicalDeviceQueueFamilyProperties(d.physicalDevice)
	flags := make([]core1_0.QueueFlags, 0, len(queueFamilies))
	for _, queueFamily := range queueFamilies {
		flags = append(flags, queueFamily.QueueFlags)
	}

	request := QueueRequest{Compute: true}
	if d.surface.Initialized() {
		request.Graphics = true
		request.PresentSupport = func(family int) (bool, error) {
			supported, _, err := d.surfaceExtension.GetPhysicalDeviceSurfaceSupport(d.surface, d.physicalDevice, family)
			return supported, err
		}
	}

	families, err := ResolveQueueFamilies(flags, request)
	if err != nil {
		return err
	}
	d.families = families

	Logger().Debug("queue families resolved",
		"graphics", familyAttr(families.Graphics),
		"compute", familyAttr(families.Compute),
		"transfer", familyAttr(families.Transfer),
		"present", familyAttr(families.Present))
	return nil
}

func familyAttr(family *int) any {
	if family == nil {
		return "none"
	}
	return *family
}

func (d *Device) createLogicalDevice() error {
	var queueFamilyOptions []core1_0.DeviceQueueCreateInfo
	queuePriority := float32(1.0)
	for _, queueFamily := range uniqueFamilies(d.families.Graphics, d.families.Compute, d.families.Present) {
		queueFamilyOptions = append(queueFamilyOptions, core1_0.DeviceQueueCreateInfo{
			QueueFamilyIndex: queueFamily,
			QueuePriorities:  []float32{queuePriority},
		})
	}

	var extensionNames []string
	extensions, _, err := d.instanceDriver.EnumerateDeviceExtensionProperties(d.physicalDevice)
	if err != nil {
		return errors.Wrap(err, "enumerate device extensions")
	}

	if d.surface.Initialized() {
		_, supported := extensions[khr_swapchain.ExtensionName]
		if !supported {
			return errors.Wrapf(ErrMissingExtension, "device lacks %s", khr_swapchain.ExtensionName)
		}
		extensionNames = append(extensionNames, khr_swapchain.ExtensionName)
	}

	_, supported := extensions[khr_portability_subset.ExtensionName]
	if supported {
		extensionNames = append(extensionNames, khr_portability_subset.ExtensionName)
	}

	d.deviceDriver, _, err = d.instanceDriver.CreateDevice(d.physicalDevice, nil, core1_0.DeviceCreateInfo{
		QueueCreateInfos: queueFamilyOptions,
		EnabledFeatures: &core1_0.PhysicalDeviceFeatures{
			ShaderFloat64: d.features.ShaderFloat64,
		},
		EnabledExtensionNames: extensionNames,
	})
	if err != nil {
		return errors.Wrap(err, "create logical device")
	}
	d.teardown.push("logical device", func() { d.deviceDriver.DestroyDevice(nil) })

	for _, role := range []QueueRole{RoleGraphics, RoleCompute, RolePresent} {
		family := d.families.Family(role)
		if family != nil {
			d.queues[role] = d.deviceDriver.GetQueue(*family, 0)
		}
	}

	return nil
}

func (d *Device) createCommandPools() error {
	for _, role := range []QueueRole{RoleGraphics, RoleCompute} {
		family := d.families.Family(role)
		if family == nil {
			continue
		}

		pool, _, err := d.deviceDriver.CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{
			Flags:            core1_0.CommandPoolCreateResetBuffer,
			QueueFamilyIndex: *family,
		})
		if err != nil {
			return errors.Wrapf(err, "create %s command pool", role)
		}

		d.pools[role] = pool
		d.teardown.push(role.String()+" command pool", func() { d.deviceDriver.DestroyCommandPool(pool, nil) })
	}

	return nil
}

func (d *Device) Driver() core1_0.CoreDeviceDriver                         { return d.deviceDriver }
func (d *Device) InstanceDriver() core1_0.CoreInstanceDriver               { return d.instanceDriver }
func (d *Device) PhysicalDevice() core1_0.PhysicalDevice                   { return d.physicalDevice }
func (d *Device) Properties() *core1_0.PhysicalDeviceProperties            { return d.properties }
func (d *Device) Features() *core1_0.PhysicalDeviceFeatures                { return d.features }
func (d *Device) MemoryProperties() *core1_0.PhysicalDeviceMemoryProperties { return d.memoryProperties }
func (d *Device) Families() QueueFamilies                                  { return d.families }
func (d *Device) Surface() khr_surface.Surface                             { return d.surface }
func (d *Device) SurfaceExtension() khr_surface.ExtensionDriver            { return d.surfaceExtension }

// Queue returns the queue for role. It panics for a role the device was
// not created with.
func (d *Device) Queue(role QueueRole) core1_0.Queue {
	queue, ok := d.queues[role]
	if !ok {
		panic(fmt.Sprintf("device has no %s queue", role))
	}
	return queue
}

func (d *Device) CommandPool(role QueueRole) core1_0.CommandPool {
	pool, ok := d.pools[role]
	if !ok {
		panic(fmt.Sprintf("device has no %s command pool", role))
	}
	return pool
}

// SubmitOnce records a throwaway command buffer with record, submits it on
// the role's queue and blocks until a fence reports completion.
func (d *Device) SubmitOnce(role QueueRole, record func(commandBuffer core1_0.CommandBuffer) error) error {
	buffers, _, err := d.deviceDriver.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        d.CommandPool(role),
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	})
	if err != nil {
		return errors.Wrap(err, "allocate one-time command buffer")
	}
	commandBuffer := buffers[0]
	defer d.deviceDriver.FreeCommandBuffers(commandBuffer)

	_, err = d.deviceDriver.BeginCommandBuffer(commandBuffer, core1_0.CommandBufferBeginInfo{
		Flags: core1_0.CommandBufferUsageOneTimeSubmit,
	})
	if err != nil {
		return errors.Wrap(err, "begin one-time command buffer")
	}

	err = record(commandBuffer)
	if err != nil {
		return err
	}

	_, err = d.deviceDriver.EndCommandBuffer(commandBuffer)
	if err != nil {
		return errors.Wrap(err, "end one-time command buffer")
	}

	fence, _, err := d.deviceDriver.CreateFence(nil, core1_0.FenceCreateInfo{})
	if err != nil {
		return errors.Wrap(err, "create one-time fence")
	}
	defer d.deviceDriver.DestroyFence(fence, nil)

	_, err = d.deviceDriver.QueueSubmit(d.Queue(role), &fence, core1_0.SubmitInfo{
		CommandBuffers: []core1_0.CommandBuffer{commandBuffer},
	})
	if err != nil {
		return errors.Wrap(err, "submit one-time command buffer")
	}

	for {
		res, err := d.deviceDriver.WaitForFences(true, FenceTimeout, fence)
		if err != nil {
			return errors.Wrap(err, "wait for one-time fence")
		}
		if res != core1_0.VKTimeout {
			return nil
		}
	}
}

func (d *Device) WaitIdle() error {
	_, err := d.deviceDriver.DeviceWaitIdle()
	return errors.Wrap(err, "wait for device idle")
}

// Destroy releases the pools, device, surface, messenger and instance in
// that order. Dependent objects must already be gone.
func (d *Device) Destroy() {
	if d.teardown.len() == 0 {
		return
	}
	d.teardown.run()
	liveDevice.Store(false)
}
