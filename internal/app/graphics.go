package app

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/loov/hrtime"

	"github.com/vkngwrapper/mandelbrot/internal/config"
	"github.com/vkngwrapper/mandelbrot/internal/gpu"
	"github.com/vkngwrapper/mandelbrot/internal/view"
	"github.com/vkngwrapper/mandelbrot/internal/window"
)

// GraphicsPath draws the set into the window every frame until the window
// closes.
type GraphicsPath struct {
	win    window.Window
	frames FrameRenderer
	now    func() time.Duration

	state    view.State
	lastTime time.Duration

	running bool
	resized bool
	stale   bool

	// release tears down the GPU objects behind frames, newest first.
	release []func()
}

func newGraphicsPath(win window.Window, frames FrameRenderer, now func() time.Duration) *GraphicsPath {
	p := &GraphicsPath{
		win:    win,
		frames: frames,
		now:    now,
		state:  view.Initial(),
	}

	win.SetEventHandler(window.Handlers{
		OnClose: func() {
			p.running = false
		},
		OnResize: func(width, height int) {
			p.resized = true
		},
		OnKey: func(key window.Key) {
			if key == window.KeyEscape {
				p.running = false
			}
		},
		OnMouseButton: func(button window.MouseButton) {
			gpu.Logger().Debug("mouse button pressed", "button", int(button))
		},
	}.Dispatch)

	return p
}

// NewGraphicsPath loads the palette and shaders and builds the swapchain,
// graphics pipeline and frame executor for win.
func NewGraphicsPath(cfg config.Config, device *gpu.Device, win window.Window) (_ *GraphicsPath, err error) {
	var release []func()
	defer func() {
		if err != nil {
			for i := len(release) - 1; i >= 0; i-- {
				release[i]()
			}
		}
	}()

	vertexCode, err := gpu.LoadShaderCode(cfg.VertexShaderPath())
	if err != nil {
		return nil, err
	}
	fragmentCode, err := gpu.LoadShaderCode(cfg.FragmentShaderPath())
	if err != nil {
		return nil, err
	}

	palette, err := gpu.LoadImage2D(device, cfg.PalettePath)
	if err != nil {
		return nil, errors.Wrap(err, "load palette")
	}
	release = append(release, palette.Destroy)

	width, height := win.Size()
	swapchain, err := gpu.NewSwapchain(device, width, height)
	if err != nil {
		return nil, err
	}
	release = append(release, swapchain.Destroy)

	pipeline, err := gpu.NewGraphicsPipeline(device, swapchain, palette, gpu.GraphicsShaders{
		Vertex:   vertexCode,
		Fragment: fragmentCode,
	})
	if err != nil {
		return nil, err
	}
	release = append(release, pipeline.Destroy)

	p := newGraphicsPath(win, gpu.NewFrameExecutor(device, swapchain, pipeline), hrtime.Now)
	p.release = release
	return p, nil
}

func (p *GraphicsPath) Run(ctx context.Context) error {
	p.running = true
	p.lastTime = p.now()

	for p.running && ctx.Err() == nil {
		p.win.PollEvents()
		if !p.running {
			break
		}

		width, height := p.win.Size()
		if p.resized || p.stale || width <= 0 || height <= 0 {
			err := p.recreate()
			if err != nil {
				return err
			}
			if !p.running {
				break
			}
			width, height = p.win.Size()
		}

		now := p.now()
		dt := (now - p.lastTime).Seconds()
		p.lastTime = now

		aspectRatio := view.AspectRatio(width, height)
		p.state.Update(p.win, dt, aspectRatio)

		status, err := p.frames.DrawFrame(p.state.Uniform(aspectRatio))
		if err != nil {
			return errors.Wrap(err, "draw frame")
		}
		p.stale = status.NeedsRecreate()
	}

	return p.frames.WaitIdle()
}

// recreate waits out a minimized or zero-sized window, then rebuilds the
// swapchain once at the final size. A close during the wait returns with
// running cleared and nothing rebuilt.
func (p *GraphicsPath) recreate() error {
	width, height := p.win.Size()
	for width <= 0 || height <= 0 {
		p.win.PollEvents()
		if !p.running {
			return nil
		}
		width, height = p.win.Size()
	}

	err := p.frames.Recreate(width, height)
	if err != nil {
		return err
	}

	p.resized = false
	p.stale = false
	// Time spent minimized is not animation time.
	p.lastTime = p.now()
	return nil
}

func (p *GraphicsPath) Destroy() {
	for i := len(p.release) - 1; i >= 0; i-- {
		p.release[i]()
	}
	p.release = nil
}
