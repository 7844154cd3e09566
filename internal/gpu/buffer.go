package gpu

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// Buffer owns a Vulkan buffer, the device memory bound to it, and a CPU
// copy of the last bytes written through it.
type Buffer struct {
	device *Device

	Handle core1_0.Buffer
	Memory core1_0.DeviceMemory

	size       int
	usage      core1_0.BufferUsageFlags
	properties core1_0.MemoryPropertyFlags
	data       []byte
}

func NewBuffer(device *Device, size int, usage core1_0.BufferUsageFlags, properties core1_0.MemoryPropertyFlags) (*Buffer, error) {
	driver := device.Driver()

	handle, _, err := driver.CreateBuffer(nil, core1_0.BufferCreateInfo{
		Size:        size,
		Usage:       usage,
		SharingMode: core1_0.SharingModeExclusive,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create buffer")
	}

	requirements := driver.GetBufferMemoryRequirements(handle)
	memoryTypeIndex, err := findMemoryType(device.MemoryProperties(), requirements.MemoryTypeBits, properties)
	if err != nil {
		driver.DestroyBuffer(handle, nil)
		return nil, err
	}

	memory, _, err := driver.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: memoryTypeIndex,
	})
	if err != nil {
		driver.DestroyBuffer(handle, nil)
		return nil, errors.Wrapf(err, "allocate %d bytes of buffer memory", requirements.Size)
	}

	_, err = driver.BindBufferMemory(handle, memory, 0)
	if err != nil {
		driver.DestroyBuffer(handle, nil)
		driver.FreeMemory(memory, nil)
		return nil, errors.Wrap(err, "bind buffer memory")
	}

	return &Buffer{
		device:     device,
		Handle:     handle,
		Memory:     memory,
		size:       size,
		usage:      usage,
		properties: properties,
	}, nil
}

// NewBufferWithData creates a device-local buffer and fills it through a
// staging upload.
func NewBufferWithData(device *Device, data []byte, usage core1_0.BufferUsageFlags) (*Buffer, error) {
	buffer, err := NewBuffer(device, len(data), usage|core1_0.BufferUsageTransferDst, core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		return nil, err
	}

	err = buffer.Write(data)
	if err != nil {
		buffer.Destroy()
		return nil, err
	}

	return buffer, nil
}

func (b *Buffer) Size() int {
	return b.size
}

// Bytes returns the CPU copy of the buffer contents.
func (b *Buffer) Bytes() []byte {
	return b.data
}

func (b *Buffer) hostVisible() bool {
	return b.properties&core1_0.MemoryPropertyHostVisible != 0
}

// Mapped maps the whole buffer for the duration of fn. The slice must not
// be retained after fn returns.
func (b *Buffer) Mapped(fn func(mapped []byte) error) error {
	if !b.Handle.Initialized() {
		return ErrDestroyed
	}
	if !b.hostVisible() {
		return ErrNotHostVisible
	}

	driver := b.device.Driver()
	ptr, _, err := driver.MapMemory(b.Memory, 0, b.size, 0)
	if err != nil {
		return errors.Wrap(err, "map buffer memory")
	}
	defer driver.UnmapMemory(b.Memory)

	return fn(mappedBytes(ptr, b.size))
}

// Write copies data into the buffer. Host-visible memory is written
// through a mapping; device-local memory needs transfer-dst usage and is
// filled from a host-visible staging buffer with a one-time copy on the
// graphics queue. The CPU copy only changes once the write has landed.
func (b *Buffer) Write(data []byte) error {
	if !b.Handle.Initialized() {
		return ErrDestroyed
	}
	if len(data) > b.size {
		return errors.Newf("write of %d bytes overflows %d byte buffer", len(data), b.size)
	}

	var err error
	if b.hostVisible() {
		err = b.Mapped(func(mapped []byte) error {
			copy(mapped, data)
			return nil
		})
	} else {
		err = b.upload(data)
	}
	if err != nil {
		return err
	}

	b.data = append(b.data[:0], data...)
	return nil
}

func (b *Buffer) upload(data []byte) error {
	if b.usage&core1_0.BufferUsageTransferDst == 0 {
		return errors.Wrap(ErrNotHostVisible, "buffer cannot be a transfer destination")
	}
	if len(data) == 0 {
		return nil
	}

	staging, err := NewBuffer(b.device, len(data), core1_0.BufferUsageTransferSrc, core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
	if err != nil {
		return errors.Wrap(err, "create staging buffer")
	}
	defer staging.Destroy()

	err = staging.Write(data)
	if err != nil {
		return err
	}

	err = b.device.SubmitOnce(RoleGraphics, func(commandBuffer core1_0.CommandBuffer) error {
		return b.device.Driver().CmdCopyBuffer(commandBuffer, staging.Handle, b.Handle, core1_0.BufferCopy{
			SrcOffset: 0,
			DstOffset: 0,
			Size:      len(data),
		})
	})
	return errors.Wrap(err, "copy staging buffer")
}

// Read copies the buffer contents into the CPU copy and returns it.
func (b *Buffer) Read() ([]byte, error) {
	err := b.Mapped(func(mapped []byte) error {
		b.data = append(b.data[:0], mapped...)
		return nil
	})
	return b.data, err
}

func (b *Buffer) Destroy() {
	if b == nil || !b.Handle.Initialized() {
		return
	}

	driver := b.device.Driver()
	driver.DestroyBuffer(b.Handle, nil)
	driver.FreeMemory(b.Memory, nil)

	b.Handle = core1_0.Buffer{}
	b.Memory = core1_0.DeviceMemory{}
	b.data = nil
}
