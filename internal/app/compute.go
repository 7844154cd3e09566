package app

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/loov/hrtime"

	"github.com/vkngwrapper/mandelbrot/internal/gpu"
	"github.com/vkngwrapper/mandelbrot/internal/readback"
)

// ComputePath renders the set once on the compute queue and writes it to a
// PNG file.
type ComputePath struct {
	pipeline Dispatcher
	output   string
}

func NewComputePath(device *gpu.Device, code []uint32, output string) (*ComputePath, error) {
	pipeline, err := gpu.NewComputePipeline(device, code)
	if err != nil {
		return nil, err
	}

	return &ComputePath{
		pipeline: pipeline,
		output:   output,
	}, nil
}

func (p *ComputePath) Run(ctx context.Context) error {
	start := hrtime.Now()
	err := p.pipeline.Dispatch()
	if err != nil {
		return err
	}
	gpu.Logger().Info("compute render finished", "elapsed", hrtime.Since(start))

	width, height := p.pipeline.Extent()
	err = p.pipeline.ReadPixels(func(pixels []float32) error {
		return readback.WritePNG(ctx, p.output, pixels, width, height)
	})
	if err != nil {
		return errors.Wrap(err, "read back compute image")
	}

	gpu.Logger().Info("wrote image", "path", p.output, "width", width, "height", height)
	return nil
}

func (p *ComputePath) Destroy() {
	p.pipeline.Destroy()
}
