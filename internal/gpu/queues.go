package gpu

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// QueueRole names the queues the device hands out.
type QueueRole int

const (
	RoleGraphics QueueRole = iota
	RoleCompute
	RolePresent
)

func (r QueueRole) String() string {
	switch r {
	case RoleGraphics:
		return "graphics"
	case RoleCompute:
		return "compute"
	case RolePresent:
		return "present"
	}
	return "unknown"
}

// QueueFamilies holds the resolved family index per role. A nil entry
// means no family was found.
type QueueFamilies struct {
	Graphics *int
	Compute  *int
	Transfer *int
	Present  *int
}

func (f QueueFamilies) Family(role QueueRole) *int {
	switch role {
	case RoleGraphics:
		return f.Graphics
	case RoleCompute:
		return f.Compute
	case RolePresent:
		return f.Present
	}
	return nil
}

// QueueRequest says which roles must resolve for the device to be usable.
type QueueRequest struct {
	Graphics bool
	Compute  bool
	Transfer bool
	// PresentSupport is queried per family when presenting. Nil for
	// headless use.
	PresentSupport func(family int) (bool, error)
}

func firstFamily(families []core1_0.QueueFlags, match func(core1_0.QueueFlags) bool) *int {
	for index, flags := range families {
		if match(flags) {
			found := index
			return &found
		}
	}
	return nil
}

// ResolveQueueFamilies picks a family per role from the flags of each
// queue family, in family order. Compute prefers a family without graphics
// and transfer prefers one with neither graphics nor compute; both fall
// back to the first family with the bit. Graphics is the first graphics
// family. Present prefers the graphics family and otherwise takes the
// first family that can present.
func ResolveQueueFamilies(families []core1_0.QueueFlags, request QueueRequest) (QueueFamilies, error) {
	var resolved QueueFamilies

	has := func(flags, bit core1_0.QueueFlags) bool { return flags&bit != 0 }

	resolved.Graphics = firstFamily(families, func(flags core1_0.QueueFlags) bool {
		return has(flags, core1_0.QueueGraphics)
	})

	resolved.Compute = firstFamily(families, func(flags core1_0.QueueFlags) bool {
		return has(flags, core1_0.QueueCompute) && !has(flags, core1_0.QueueGraphics)
	})
	if resolved.Compute == nil {
		resolved.Compute = firstFamily(families, func(flags core1_0.QueueFlags) bool {
			return has(flags, core1_0.QueueCompute)
		})
	}

	resolved.Transfer = firstFamily(families, func(flags core1_0.QueueFlags) bool {
		return has(flags, core1_0.QueueTransfer) && !has(flags, core1_0.QueueGraphics) && !has(flags, core1_0.QueueCompute)
	})
	if resolved.Transfer == nil {
		resolved.Transfer = firstFamily(families, func(flags core1_0.QueueFlags) bool {
			return has(flags, core1_0.QueueTransfer)
		})
	}

	if request.PresentSupport != nil {
		candidates := make([]int, 0, len(families))
		if resolved.Graphics != nil {
			candidates = append(candidates, *resolved.Graphics)
		}
		for index := range families {
			candidates = append(candidates, index)
		}

		for _, index := range candidates {
			supported, err := request.PresentSupport(index)
			if err != nil {
				return resolved, errors.Wrapf(err, "query present support for family %d", index)
			}
			if supported {
				found := index
				resolved.Present = &found
				break
			}
		}
		if resolved.Present == nil {
			return resolved, errors.Wrap(ErrNoQueueFamily, "no family can present to the surface")
		}
	}

	if request.Graphics && resolved.Graphics == nil {
		return resolved, errors.Wrap(ErrNoQueueFamily, "no graphics family")
	}
	if request.Compute && resolved.Compute == nil {
		return resolved, errors.Wrap(ErrNoQueueFamily, "no compute family")
	}
	if request.Transfer && resolved.Transfer == nil {
		return resolved, errors.Wrap(ErrNoQueueFamily, "no transfer family")
	}

	return resolved, nil
}

// uniqueFamilies drops nil and repeated indices, keeping first-seen order.
func uniqueFamilies(families ...*int) []int {
	var unique []int
	seen := map[int]bool{}
	for _, family := range families {
		if family == nil || seen[*family] {
			continue
		}
		seen[*family] = true
		unique = append(unique, *family)
	}
	return unique
}
