// Package readback turns the compute shader's float RGBA output into an
// 8-bit PNG.
package readback

import (
	"context"
	"image"
	"image/png"
	"io"
	"math"
	"os"
	"runtime"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/sync/errgroup"
)

const Channels = 4

// ChannelToByte maps a normalized channel to 8 bits by truncation, so 0.5
// becomes 127. Values outside [0,1] saturate and NaN maps to 0.
func ChannelToByte(x float32) uint8 {
	if math.IsNaN(float64(x)) {
		return 0
	}
	return uint8(mgl32.Clamp(x, 0, 1) * 255)
}

// Convert builds a row-major RGBA8 image from width*height*4 floats. Rows
// are converted in parallel bands.
func Convert(ctx context.Context, pixels []float32, width, height int) (*image.NRGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Newf("invalid image size %dx%d", width, height)
	}
	if len(pixels) != width*height*Channels {
		return nil, errors.Newf("expected %d floats for %dx%d, got %d", width*height*Channels, width, height, len(pixels))
	}

	img := image.NewNRGBA(image.Rect(0, 0, width, height))

	bands := runtime.NumCPU()
	if bands > height {
		bands = height
	}
	rowsPerBand := (height + bands - 1) / bands

	group, ctx := errgroup.WithContext(ctx)
	for start := 0; start < height; start += rowsPerBand {
		first := start
		last := start + rowsPerBand
		if last > height {
			last = height
		}

		group.Go(func() error {
			for y := first; y < last; y++ {
				if err := ctx.Err(); err != nil {
					return err
				}

				src := pixels[y*width*Channels : (y+1)*width*Channels]
				dst := img.Pix[y*img.Stride : y*img.Stride+width*Channels]
				for i, v := range src {
					dst[i] = ChannelToByte(v)
				}
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, errors.Wrap(err, "convert pixels")
	}
	return img, nil
}

func Encode(w io.Writer, img image.Image) error {
	encoder := png.Encoder{CompressionLevel: png.BestSpeed}
	return errors.Wrap(encoder.Encode(w, img), "encode png")
}

// WritePNG converts pixels and writes them to path.
func WritePNG(ctx context.Context, path string, pixels []float32, width, height int) error {
	img, err := Convert(ctx, pixels, width, height)
	if err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}

	err = Encode(file, img)
	if err != nil {
		_ = file.Close()
		return err
	}

	return errors.Wrapf(file.Close(), "close %s", path)
}
