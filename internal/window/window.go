package window

// Key is the small fixed set of keys the renderer reacts to.
type Key int

const (
	KeyUnknown Key = iota
	KeyW
	KeyA
	KeyS
	KeyD
	KeyZ
	KeyX
	KeyUp
	KeyDown
	KeyShift
	KeyEscape
)

var keyNames = map[Key]string{
	KeyW:      "W",
	KeyA:      "A",
	KeyS:      "S",
	KeyD:      "D",
	KeyZ:      "Z",
	KeyX:      "X",
	KeyUp:     "Up",
	KeyDown:   "Down",
	KeyShift:  "Shift",
	KeyEscape: "Escape",
}

func (k Key) String() string {
	name, ok := keyNames[k]
	if !ok {
		return "Unknown"
	}
	return name
}

type MouseButton int

const (
	MouseButtonLeft MouseButton = iota + 1
	MouseButtonMiddle
	MouseButtonRight
)

// KeyState answers whether a key is currently held down.
type KeyState interface {
	KeyPressed(key Key) bool
}

// Window is what the application needs from the platform window: the
// drawable size, key state, and synchronous event delivery.
type Window interface {
	KeyState

	// Size returns the drawable size in pixels. It is 0x0 while the
	// window is minimized.
	Size() (width, height int)

	// SetEventHandler registers the callback PollEvents delivers to.
	SetEventHandler(handler func(Event))

	// PollEvents drains pending events without blocking.
	PollEvents()

	Destroy()
}
