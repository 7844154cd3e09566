package gpu

import (
	"image"
	_ "image/png"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

const PaletteFormat = core1_0.FormatR8G8B8A8UnsignedNormalized

// DecodeRGBA decodes a BMP or PNG into tightly packed 8-bit RGBA.
func DecodeRGBA(r io.Reader) (*image.NRGBA, error) {
	decoded, _, err := image.Decode(r)
	if err != nil {
		return nil, errors.Wrap(err, "decode image")
	}

	bounds := decoded.Bounds()
	rgba := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), decoded, bounds.Min, draw.Src)
	return rgba, nil
}

// Image2D is a sampled, device-local RGBA8 texture.
type Image2D struct {
	device *Device

	Width  int
	Height int
	Pixels []byte

	image   core1_0.Image
	memory  core1_0.DeviceMemory
	view    core1_0.ImageView
	sampler core1_0.Sampler

	teardown teardown
}

func LoadImage2D(device *Device, path string) (*Image2D, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open image")
	}
	defer file.Close()

	rgba, err := DecodeRGBA(file)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}

	return NewImage2D(device, rgba)
}

// NewImage2D uploads pixels through a staging buffer into an optimal-tiled
// image and leaves it in the shader-read-only layout.
func NewImage2D(device *Device, pixels *image.NRGBA) (_ *Image2D, err error) {
	bounds := pixels.Bounds()
	img := &Image2D{
		device: device,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Pixels: pixels.Pix,
	}
	defer func() {
		if err != nil {
			img.Destroy()
		}
	}()

	staging, err := NewBuffer(device, len(img.Pixels), core1_0.BufferUsageTransferSrc, core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
	if err != nil {
		return nil, errors.Wrap(err, "create image staging buffer")
	}
	defer staging.Destroy()

	err = staging.Write(img.Pixels)
	if err != nil {
		return nil, err
	}

	err = img.createImage()
	if err != nil {
		return nil, err
	}

	err = device.SubmitOnce(RoleGraphics, func(commandBuffer core1_0.CommandBuffer) error {
		return img.recordUpload(commandBuffer, staging)
	})
	if err != nil {
		return nil, errors.Wrap(err, "upload image")
	}

	err = img.createViewAndSampler()
	if err != nil {
		return nil, err
	}

	Logger().Debug("image uploaded", "width", img.Width, "height", img.Height)
	return img, nil
}

func (img *Image2D) createImage() error {
	driver := img.device.Driver()

	handle, _, err := driver.CreateImage(nil, core1_0.ImageCreateInfo{
		ImageType: core1_0.ImageType2D,
		Extent: core1_0.Extent3D{
			Width:  img.Width,
			Height: img.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        PaletteFormat,
		Tiling:        core1_0.ImageTilingOptimal,
		InitialLayout: core1_0.ImageLayoutUndefined,
		Usage:         core1_0.ImageUsageTransferSrc | core1_0.ImageUsageTransferDst | core1_0.ImageUsageSampled,
		SharingMode:   core1_0.SharingModeExclusive,
		Samples:       core1_0.Samples1,
	})
	if err != nil {
		return errors.Wrap(err, "create image")
	}
	img.image = handle
	img.teardown.push("image", func() { driver.DestroyImage(handle, nil) })

	memReqs := driver.GetImageMemoryRequirements(handle)
	memoryIndex, err := findMemoryType(img.device.MemoryProperties(), memReqs.MemoryTypeBits, core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		return err
	}

	memory, _, err := driver.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  memReqs.Size,
		MemoryTypeIndex: memoryIndex,
	})
	if err != nil {
		return errors.Wrap(err, "allocate image memory")
	}
	img.memory = memory
	img.teardown.push("image memory", func() { driver.FreeMemory(memory, nil) })

	_, err = driver.BindImageMemory(handle, memory, 0)
	return errors.Wrap(err, "bind image memory")
}

func (img *Image2D) barrier(commandBuffer core1_0.CommandBuffer, oldLayout, newLayout core1_0.ImageLayout, srcAccess, dstAccess core1_0.AccessFlags, srcStage, dstStage core1_0.PipelineStageFlags) error {
	return img.device.Driver().CmdPipelineBarrier(commandBuffer, srcStage, dstStage, 0, nil, nil, []core1_0.ImageMemoryBarrier{
		{
			OldLayout:           oldLayout,
			NewLayout:           newLayout,
			SrcQueueFamilyIndex: -1,
			DstQueueFamilyIndex: -1,
			Image:               img.image,
			SubresourceRange: core1_0.ImageSubresourceRange{
				AspectMask:     core1_0.ImageAspectColor,
				BaseMipLevel:   0,
				LevelCount:     1,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
			SrcAccessMask: srcAccess,
			DstAccessMask: dstAccess,
		},
	})
}

// recordUpload walks the image undefined -> transfer-dst -> transfer-src ->
// shader-read-only around the buffer copy.
func (img *Image2D) recordUpload(commandBuffer core1_0.CommandBuffer, staging *Buffer) error {
	err := img.barrier(commandBuffer,
		core1_0.ImageLayoutUndefined, core1_0.ImageLayoutTransferDstOptimal,
		core1_0.AccessHostWrite, core1_0.AccessTransferWrite,
		core1_0.PipelineStageHost, core1_0.PipelineStageTransfer)
	if err != nil {
		return err
	}

	err = img.device.Driver().CmdCopyBufferToImage(commandBuffer, staging.Handle, img.image, core1_0.ImageLayoutTransferDstOptimal,
		core1_0.BufferImageCopy{
			BufferOffset:      0,
			BufferRowLength:   0,
			BufferImageHeight: 0,

			ImageSubresource: core1_0.ImageSubresourceLayers{
				AspectMask:     core1_0.ImageAspectColor,
				MipLevel:       0,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
			ImageOffset: core1_0.Offset3D{X: 0, Y: 0, Z: 0},
			ImageExtent: core1_0.Extent3D{Width: img.Width, Height: img.Height, Depth: 1},
		},
	)
	if err != nil {
		return err
	}

	err = img.barrier(commandBuffer,
		core1_0.ImageLayoutTransferDstOptimal, core1_0.ImageLayoutTransferSrcOptimal,
		core1_0.AccessTransferWrite, core1_0.AccessTransferRead,
		core1_0.PipelineStageTransfer, core1_0.PipelineStageTransfer)
	if err != nil {
		return err
	}

	return img.barrier(commandBuffer,
		core1_0.ImageLayoutTransferSrcOptimal, core1_0.ImageLayoutShaderReadOnlyOptimal,
		core1_0.AccessTransferRead, core1_0.AccessShaderRead,
		core1_0.PipelineStageTransfer, core1_0.PipelineStageFragmentShader)
}

func (img *Image2D) createViewAndSampler() error {
	driver := img.device.Driver()

	view, err := createImageView(driver, img.image, PaletteFormat)
	if err != nil {
		return errors.Wrap(err, "create image view")
	}
	img.view = view
	img.teardown.push("image view", func() { driver.DestroyImageView(view, nil) })

	sampler, _, err := driver.CreateSampler(nil, core1_0.SamplerCreateInfo{
		MagFilter:    core1_0.FilterLinear,
		MinFilter:    core1_0.FilterLinear,
		AddressModeU: core1_0.SamplerAddressModeMirroredRepeat,
		AddressModeV: core1_0.SamplerAddressModeMirroredRepeat,
		AddressModeW: core1_0.SamplerAddressModeMirroredRepeat,

		MaxAnisotropy: 1,

		BorderColor: core1_0.BorderColorFloatOpaqueWhite,

		MipmapMode: core1_0.SamplerMipmapModeLinear,
		MinLod:     0,
		MaxLod:     100,
	})
	if err != nil {
		return errors.Wrap(err, "create sampler")
	}
	img.sampler = sampler
	img.teardown.push("sampler", func() { driver.DestroySampler(sampler, nil) })

	return nil
}

func (img *Image2D) View() core1_0.ImageView  { return img.view }
func (img *Image2D) Sampler() core1_0.Sampler { return img.sampler }

// Destroy releases the sampler, view, memory and image.
func (img *Image2D) Destroy() {
	if img == nil {
		return
	}
	img.teardown.run()
	img.image = core1_0.Image{}
	img.memory = core1_0.DeviceMemory{}
	img.view = core1_0.ImageView{}
	img.sampler = core1_0.Sampler{}
}
