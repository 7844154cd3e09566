package gpu

import "github.com/cockroachdb/errors"

var (
	ErrNoPhysicalDevice  = errors.New("no Vulkan physical device available")
	ErrNoQueueFamily     = errors.New("no suitable queue family")
	ErrNoMemoryType      = errors.New("no suitable memory type")
	ErrMissingExtension  = errors.New("required extension not available")
	ErrDegenerateExtent  = errors.New("swapchain extent has zero area")
	ErrDestroyed         = errors.New("object already destroyed")
	ErrNotHostVisible    = errors.New("buffer memory is not host visible")
	ErrInvalidShaderCode = errors.New("shader bytecode is not a whole number of words")
)
