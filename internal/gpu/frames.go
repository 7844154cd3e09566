package gpu

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
)

// frameTracker rotates through the in-flight frame slots and remembers,
// per swapchain image, which slot's fence last guarded it.
type frameTracker struct {
	maxFrames  int
	current    int
	imageSlots []int
}

const noSlot = -1

func newFrameTracker(imageCount, maxFrames int) *frameTracker {
	t := &frameTracker{}
	t.reset(imageCount, maxFrames)
	return t
}

// reset resizes the image table, forgetting every claim. The current slot
// survives so long as it is still in range.
func (t *frameTracker) reset(imageCount, maxFrames int) {
	t.maxFrames = maxFrames
	t.current %= maxFrames

	t.imageSlots = make([]int, imageCount)
	for i := range t.imageSlots {
		t.imageSlots[i] = noSlot
	}
}

func (t *frameTracker) slot() int {
	return t.current
}

func (t *frameTracker) advance() {
	t.current = (t.current + 1) % t.maxFrames
}

func (t *frameTracker) imageCount() int {
	return len(t.imageSlots)
}

// claim marks image as guarded by the current slot. If another submission
// still owns the image, its slot is returned with pending set.
func (t *frameTracker) claim(image int) (previous int, pending bool) {
	previous = t.imageSlots[image]
	t.imageSlots[image] = t.current
	return previous, previous != noSlot
}

type acquireOutcome int

const (
	acquireReady acquireOutcome = iota
	// acquireSuboptimal hands out a usable image; the swapchain should be
	// rebuilt once it has been presented.
	acquireSuboptimal
	// acquireOutOfDate means no image was acquired and the frame must be
	// dropped.
	acquireOutOfDate
)

func classifyAcquire(res common.VkResult, err error) (acquireOutcome, error) {
	if res == khr_swapchain.VKErrorOutOfDate {
		return acquireOutOfDate, nil
	}
	if err != nil {
		return acquireOutOfDate, errors.Wrap(err, "acquire swapchain image")
	}
	if res == khr_swapchain.VKSuboptimal {
		return acquireSuboptimal, nil
	}
	return acquireReady, nil
}

// classifyPresent reports whether the swapchain must be rebuilt after a
// present.
func classifyPresent(res common.VkResult, err error) (bool, error) {
	if res == khr_swapchain.VKErrorOutOfDate || res == khr_swapchain.VKSuboptimal {
		return true, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "present swapchain image")
	}
	return false, nil
}
