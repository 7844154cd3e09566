package gpu

import (
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
)

const (
	// MaxFramesInFlightLimit is the largest value MaxFramesInFlight returns.
	MaxFramesInFlightLimit = 3

	PreferredSurfaceFormat = core1_0.FormatB8G8R8A8UnsignedNormalized
)

// ChooseSurfaceFormat prefers 8-bit BGRA in the sRGB nonlinear color
// space, otherwise the first format the surface reports.
func ChooseSurfaceFormat(availableFormats []khr_surface.SurfaceFormat) khr_surface.SurfaceFormat {
	for _, format := range availableFormats {
		if format.Format == PreferredSurfaceFormat && format.ColorSpace == khr_surface.ColorSpaceSRGBNonlinear {
			return format
		}
	}

	return availableFormats[0]
}

// ChoosePresentMode prefers mailbox and falls back to FIFO, which every
// surface supports.
func ChoosePresentMode(availablePresentModes []khr_surface.PresentMode) khr_surface.PresentMode {
	for _, presentMode := range availablePresentModes {
		if presentMode == khr_surface.PresentModeMailbox {
			return presentMode
		}
	}

	return khr_surface.PresentModeFIFO
}

// MaxFramesInFlight is 3 under mailbox and 2 otherwise.
func MaxFramesInFlight(presentMode khr_surface.PresentMode) int {
	if presentMode == khr_surface.PresentModeMailbox {
		return MaxFramesInFlightLimit
	}
	return 2
}

func clamp(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// ClampExtent fits the desired extent componentwise into the surface's
// supported range.
func ClampExtent(desired core1_0.Extent2D, capabilities *khr_surface.SurfaceCapabilities) core1_0.Extent2D {
	return core1_0.Extent2D{
		Width:  clamp(desired.Width, capabilities.MinImageExtent.Width, capabilities.MaxImageExtent.Width),
		Height: clamp(desired.Height, capabilities.MinImageExtent.Height, capabilities.MaxImageExtent.Height),
	}
}

// ImageCount asks for one image more than the minimum, capped at the
// maximum when the surface has one.
func ImageCount(capabilities *khr_surface.SurfaceCapabilities) int {
	imageCount := capabilities.MinImageCount + 1
	if capabilities.MaxImageCount > 0 && capabilities.MaxImageCount < imageCount {
		imageCount = capabilities.MaxImageCount
	}
	return imageCount
}
