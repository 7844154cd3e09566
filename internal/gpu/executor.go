package gpu

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/mandelbrot/internal/view"
)

type FrameStatus int

const (
	// FramePresented means the frame reached the screen and the swapchain
	// is still current.
	FramePresented FrameStatus = iota
	// FrameSkipped means no image could be acquired. Nothing was drawn.
	FrameSkipped
	// FrameStale means the frame was presented but the swapchain no longer
	// matches the surface.
	FrameStale
)

var frameStatusToString = map[FrameStatus]string{
	FramePresented: "presented",
	FrameSkipped:   "skipped",
	FrameStale:     "stale",
}

func (s FrameStatus) String() string {
	return frameStatusToString[s]
}

// NeedsRecreate reports whether the swapchain must be rebuilt before the
// next frame.
func (s FrameStatus) NeedsRecreate() bool {
	return s != FramePresented
}

// FrameExecutor drives one frame at a time through a swapchain and the
// graphics pipeline recorded against it.
type FrameExecutor struct {
	device    *Device
	swapchain *Swapchain
	pipeline  *GraphicsPipeline
}

func NewFrameExecutor(device *Device, swapchain *Swapchain, pipeline *GraphicsPipeline) *FrameExecutor {
	return &FrameExecutor{
		device:    device,
		swapchain: swapchain,
		pipeline:  pipeline,
	}
}

// DrawFrame waits for the current slot, acquires an image, writes the
// slot's uniform buffer, submits the pre-recorded command buffer and
// presents.
func (e *FrameExecutor) DrawFrame(u view.Uniform) (FrameStatus, error) {
	sc := e.swapchain
	if sc.State() != SwapchainCreated {
		return FrameSkipped, errors.Wrapf(ErrDestroyed, "swapchain is %s", sc.State())
	}

	driver := e.device.Driver()
	slot := sc.frames.slot()

	err := sc.waitForSlot(slot)
	if err != nil {
		return FrameSkipped, err
	}

	imageIndex, outcome, err := sc.acquire(slot)
	if err != nil {
		return FrameSkipped, err
	}
	if outcome == acquireOutOfDate {
		return FrameSkipped, nil
	}

	previous, pending := sc.frames.claim(imageIndex)
	if pending && previous != slot {
		_, err = driver.WaitForFences(true, common.NoTimeout, sc.inFlight[previous])
		if err != nil {
			return FrameSkipped, errors.Wrapf(err, "wait for image %d", imageIndex)
		}
	}

	err = e.pipeline.UpdateUniform(slot, u)
	if err != nil {
		return FrameSkipped, err
	}

	_, err = driver.ResetFences(sc.inFlight[slot])
	if err != nil {
		return FrameSkipped, errors.Wrap(err, "reset frame fence")
	}

	_, err = driver.QueueSubmit(e.device.Queue(RoleGraphics), &sc.inFlight[slot], core1_0.SubmitInfo{
		WaitSemaphores:   []core1_0.Semaphore{sc.presentComplete[slot]},
		WaitDstStageMask: []core1_0.PipelineStageFlags{core1_0.PipelineStageColorAttachmentOutput},
		CommandBuffers:   []core1_0.CommandBuffer{e.pipeline.CommandBuffer(imageIndex, slot)},
		SignalSemaphores: []core1_0.Semaphore{sc.renderComplete[slot]},
	})
	if err != nil {
		return FrameSkipped, errors.Wrap(err, "submit frame")
	}

	recreate, err := sc.present(imageIndex, slot)
	sc.frames.advance()
	if err != nil {
		return FrameStale, err
	}

	if recreate || outcome == acquireSuboptimal {
		return FrameStale, nil
	}
	return FramePresented, nil
}

// Recreate rebuilds the swapchain at the new size and re-records the
// pipeline's command buffers against it.
func (e *FrameExecutor) Recreate(width, height int) error {
	Logger().Info("recreating swapchain", "width", width, "height", height)

	err := e.swapchain.Recreate(width, height)
	if err != nil {
		return err
	}
	return e.pipeline.Record(e.swapchain)
}

func (e *FrameExecutor) WaitIdle() error {
	return e.device.WaitIdle()
}
