package window

import (
	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core/v3"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	vkng_sdl2 "github.com/vkngwrapper/integrations/sdl2/v3"
)

var scancodes = map[Key]sdl.Scancode{
	KeyW:      sdl.SCANCODE_W,
	KeyA:      sdl.SCANCODE_A,
	KeyS:      sdl.SCANCODE_S,
	KeyD:      sdl.SCANCODE_D,
	KeyZ:      sdl.SCANCODE_Z,
	KeyX:      sdl.SCANCODE_X,
	KeyUp:     sdl.SCANCODE_UP,
	KeyDown:   sdl.SCANCODE_DOWN,
	KeyEscape: sdl.SCANCODE_ESCAPE,
}

// SDLWindow is a Vulkan-capable SDL2 window.
type SDLWindow struct {
	window  *sdl.Window
	handler func(Event)
}

func NewSDLWindow(title string, width, height int) (*SDLWindow, error) {
	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		return nil, errors.Wrap(err, "sdl init")
	}

	window, err := sdl.CreateWindow(title, sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED, int32(width), int32(height), sdl.WINDOW_SHOWN|sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		sdl.Quit()
		return nil, errors.Wrap(err, "create window")
	}

	return &SDLWindow{window: window}, nil
}

// GlobalDriver loads Vulkan through the loader SDL opened for this window.
func (w *SDLWindow) GlobalDriver() (core1_0.GlobalDriver, error) {
	return core.CreateDriverFromProcAddr(sdl.VulkanGetVkGetInstanceProcAddr())
}

func (w *SDLWindow) RequiredInstanceExtensions() []string {
	return w.window.VulkanGetInstanceExtensions()
}

func (w *SDLWindow) CreateSurface(instance core1_0.Instance, surfaceDriver khr_surface.ExtensionDriver) (khr_surface.Surface, error) {
	return vkng_sdl2.CreateSurface(instance, surfaceDriver, w.window)
}

func (w *SDLWindow) Size() (int, int) {
	if w.window.GetFlags()&sdl.WINDOW_MINIMIZED != 0 {
		return 0, 0
	}
	width, height := w.window.VulkanGetDrawableSize()
	return int(width), int(height)
}

func (w *SDLWindow) KeyPressed(key Key) bool {
	state := sdl.GetKeyboardState()
	if key == KeyShift {
		return state[sdl.SCANCODE_LSHIFT] != 0 || state[sdl.SCANCODE_RSHIFT] != 0
	}

	code, ok := scancodes[key]
	if !ok {
		return false
	}
	return state[code] != 0
}

func (w *SDLWindow) SetEventHandler(handler func(Event)) {
	w.handler = handler
}

func (w *SDLWindow) PollEvents() {
	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		translated, ok := w.translate(event)
		if ok && w.handler != nil {
			w.handler(translated)
		}
	}
}

func (w *SDLWindow) translate(event sdl.Event) (Event, bool) {
	switch e := event.(type) {
	case *sdl.QuitEvent:
		return CloseEvent{}, true
	case *sdl.WindowEvent:
		switch e.Event {
		case sdl.WINDOWEVENT_CLOSE:
			return CloseEvent{}, true
		case sdl.WINDOWEVENT_MINIMIZED:
			return ResizeEvent{}, true
		case sdl.WINDOWEVENT_RESTORED, sdl.WINDOWEVENT_RESIZED, sdl.WINDOWEVENT_SIZE_CHANGED:
			width, height := w.Size()
			return ResizeEvent{Width: width, Height: height}, true
		}
	case *sdl.KeyboardEvent:
		if e.Type != sdl.KEYDOWN || e.Repeat != 0 {
			return nil, false
		}
		for key, code := range scancodes {
			if code == e.Keysym.Scancode {
				return KeyPressedEvent{Key: key}, true
			}
		}
	case *sdl.MouseButtonEvent:
		if e.Type != sdl.MOUSEBUTTONDOWN {
			return nil, false
		}
		switch e.Button {
		case sdl.BUTTON_LEFT:
			return MouseButtonPressedEvent{Button: MouseButtonLeft}, true
		case sdl.BUTTON_MIDDLE:
			return MouseButtonPressedEvent{Button: MouseButtonMiddle}, true
		case sdl.BUTTON_RIGHT:
			return MouseButtonPressedEvent{Button: MouseButtonRight}, true
		}
	}
	return nil, false
}

func (w *SDLWindow) Destroy() {
	if w.window != nil {
		w.window.Destroy()
		w.window = nil
	}
	sdl.Quit()
}
