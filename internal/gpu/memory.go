package gpu

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// findMemoryType returns the first memory type allowed by typeFilter that
// has every flag in properties.
func findMemoryType(memProperties *core1_0.PhysicalDeviceMemoryProperties, typeFilter uint32, properties core1_0.MemoryPropertyFlags) (int, error) {
	for i, memoryType := range memProperties.MemoryTypes {
		typeBit := uint32(1 << i)

		if (typeFilter&typeBit) != 0 && (memoryType.PropertyFlags&properties) == properties {
			return i, nil
		}
	}

	return 0, errors.Wrapf(ErrNoMemoryType, "filter %#x, properties %s", typeFilter, properties)
}

// mappedBytes views a mapped region as a byte slice.
func mappedBytes(ptr unsafe.Pointer, size int) []byte {
	return unsafe.Slice((*byte)(ptr), size)
}

// Float32s reinterprets a mapped byte region as float32 values. The
// region must be 4-byte aligned, which Vulkan mappings always are.
func Float32s(mapped []byte) []float32 {
	if len(mapped) < 4 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&mapped[0])), len(mapped)/4)
}
