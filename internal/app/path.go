package app

import (
	"context"

	"github.com/vkngwrapper/mandelbrot/internal/gpu"
	"github.com/vkngwrapper/mandelbrot/internal/view"
)

// Path renders the set one way, either to the window or to a file.
type Path interface {
	Run(ctx context.Context) error
	Destroy()
}

// FrameRenderer is the part of gpu.FrameExecutor the interactive loop
// drives.
type FrameRenderer interface {
	DrawFrame(u view.Uniform) (gpu.FrameStatus, error)
	Recreate(width, height int) error
	WaitIdle() error
}

// Dispatcher is the part of gpu.ComputePipeline the batch path drives.
type Dispatcher interface {
	Dispatch() error
	ReadPixels(fn func(pixels []float32) error) error
	Extent() (width, height int)
	Destroy()
}

var (
	_ FrameRenderer = (*gpu.FrameExecutor)(nil)
	_ Dispatcher    = (*gpu.ComputePipeline)(nil)
)
