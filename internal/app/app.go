package app

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/mandelbrot/internal/config"
	"github.com/vkngwrapper/mandelbrot/internal/gpu"
	"github.com/vkngwrapper/mandelbrot/internal/window"
)

// SurfaceWindow is a platform window that can also host a Vulkan surface.
type SurfaceWindow interface {
	window.Window
	gpu.SurfaceSource
}

// App owns the device and the render path built on top of it. The path is
// always destroyed before the device.
type App struct {
	cfg    config.Config
	device *gpu.Device
	path   Path
}

// New builds the device and the path for cfg.Mode. win is only used in
// interactive mode and may be nil in compute mode.
func New(cfg config.Config, driver core1_0.GlobalDriver, win SurfaceWindow) (_ *App, err error) {
	a := &App{cfg: cfg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	deviceConfig := gpu.DeviceConfig{
		GlobalDriver: driver,
		Validation:   cfg.Validation,
	}
	if cfg.Mode == config.ModeInteractive {
		if win == nil {
			return nil, errors.New("interactive mode needs a window")
		}
		deviceConfig.Surface = win
	}

	a.device, err = gpu.NewDevice(deviceConfig)
	if err != nil {
		return nil, errors.Wrap(err, "create device")
	}

	switch cfg.Mode {
	case config.ModeInteractive:
		a.path, err = NewGraphicsPath(cfg, a.device, win)
	case config.ModeCompute:
		var code []uint32
		code, err = gpu.LoadShaderCode(cfg.ComputeShaderPath())
		if err != nil {
			return nil, err
		}
		a.path, err = NewComputePath(a.device, code, cfg.OutputPath)
	default:
		err = errors.Wrapf(config.ErrUnknownMode, "%d", int(cfg.Mode))
	}
	if err != nil {
		return nil, errors.Wrapf(err, "build %s path", cfg.Mode)
	}

	return a, nil
}

func (a *App) Run(ctx context.Context) error {
	gpu.Logger().Info("running", "mode", a.cfg.Mode.String())
	return a.path.Run(ctx)
}

// Close releases the path and then the device. It is safe to call on a
// partially built App.
func (a *App) Close() {
	if a.path != nil {
		if err := a.device.WaitIdle(); err != nil {
			gpu.Logger().Warn("device did not go idle before teardown", "error", err)
		}
		a.path.Destroy()
		a.path = nil
	}
	if a.device != nil {
		a.device.Destroy()
		a.device = nil
	}
}
