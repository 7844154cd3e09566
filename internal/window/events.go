package window

// Event is one of CloseEvent, ResizeEvent, KeyPressedEvent or
// MouseButtonPressedEvent. The set is closed: only this package can add
// variants.
type Event interface {
	event()
}

type CloseEvent struct{}

type ResizeEvent struct {
	Width  int
	Height int
}

type KeyPressedEvent struct {
	Key Key
}

type MouseButtonPressedEvent struct {
	Button MouseButton
}

func (CloseEvent) event()              {}
func (ResizeEvent) event()             {}
func (KeyPressedEvent) event()         {}
func (MouseButtonPressedEvent) event() {}

// Degenerate reports whether the new size has no drawable area.
func (e ResizeEvent) Degenerate() bool {
	return e.Width <= 0 || e.Height <= 0
}

// Handlers routes each event variant to its own callback. Nil callbacks
// drop the event.
type Handlers struct {
	OnClose       func()
	OnResize      func(width, height int)
	OnKey         func(key Key)
	OnMouseButton func(button MouseButton)
}

func (h Handlers) Dispatch(e Event) {
	switch e := e.(type) {
	case CloseEvent:
		if h.OnClose != nil {
			h.OnClose()
		}
	case ResizeEvent:
		if h.OnResize != nil {
			h.OnResize(e.Width, e.Height)
		}
	case KeyPressedEvent:
		if h.OnKey != nil {
			h.OnKey(e.Key)
		}
	case MouseButtonPressedEvent:
		if h.OnMouseButton != nil {
			h.OnMouseButton(e.Button)
		}
	}
}
