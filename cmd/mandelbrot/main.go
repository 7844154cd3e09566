package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/vkngwrapper/core/v3"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/mandelbrot/internal/app"
	"github.com/vkngwrapper/mandelbrot/internal/config"
	"github.com/vkngwrapper/mandelbrot/internal/gpu"
	"github.com/vkngwrapper/mandelbrot/internal/window"
)

func main() {
	runtime.LockOSThread()

	cfg := config.Default()
	cfg.RegisterFlags(flag.CommandLine)
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		flag.Usage()
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})).
		With("session", uuid.NewString())
	slog.SetDefault(logger)
	gpu.SetLogger(logger)

	err := run(cfg)
	logger.Info("Shutting down. . .")
	if err != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var driver core1_0.GlobalDriver
	var win app.SurfaceWindow

	if cfg.Mode == config.ModeInteractive {
		sdlWindow, err := window.NewSDLWindow(cfg.WindowTitle, cfg.WindowWidth, cfg.WindowHeight)
		if err != nil {
			slog.Error("Failed to initialize application")
			return err
		}
		defer sdlWindow.Destroy()

		driver, err = sdlWindow.GlobalDriver()
		if err != nil {
			slog.Error("Failed to initialize application")
			return errors.Wrap(err, "load vulkan through sdl")
		}
		win = sdlWindow
	} else {
		var err error
		driver, err = core.CreateSystemDriver()
		if err != nil {
			slog.Error("Failed to initialize application")
			return errors.Wrap(err, "load system vulkan")
		}
	}

	application, err := app.New(cfg, driver, win)
	if err != nil {
		slog.Error("Failed to initialize application")
		return err
	}
	defer application.Close()

	return application.Run(ctx)
}
