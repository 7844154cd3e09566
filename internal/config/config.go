package config

import (
	"flag"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
)

// Mode selects which execution path the application runs.
type Mode int

const (
	ModeInteractive Mode = iota
	ModeCompute
)

var ErrUnknownMode = errors.New("unknown mode")

func (m Mode) String() string {
	switch m {
	case ModeInteractive:
		return "interactive"
	case ModeCompute:
		return "compute"
	}
	return "unknown"
}

// Set implements flag.Value.
func (m *Mode) Set(s string) error {
	mode, err := ParseMode(s)
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "interactive", "graphics":
		return ModeInteractive, nil
	case "compute", "batch":
		return ModeCompute, nil
	}
	return 0, errors.Wrapf(ErrUnknownMode, "%q", s)
}

const (
	VertexShaderFile   = "vertexShader.spv"
	FragmentShaderFile = "fragmentShader.spv"
	ComputeShaderFile  = "computeShader.spv"
)

// Config is everything the entry point hands to the application.
type Config struct {
	Mode Mode

	WindowTitle  string
	WindowWidth  int
	WindowHeight int

	ShaderDir   string
	PalettePath string
	OutputPath  string

	Validation bool
	LogLevel   slog.Level
}

func Default() Config {
	return Config{
		Mode:         ModeInteractive,
		WindowTitle:  "Mandelbrot Renderer",
		WindowWidth:  1280,
		WindowHeight: 720,
		ShaderDir:    filepath.Join("assets", "shaders"),
		PalettePath:  filepath.Join("assets", "images", "violetPalette.bmp"),
		OutputPath:   "mandelbrot.png",
		LogLevel:     slog.LevelInfo,
	}
}

// RegisterFlags binds every field to fs, using the current values as defaults.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.Var(&c.Mode, "mode", "execution mode: interactive or compute")
	fs.IntVar(&c.WindowWidth, "width", c.WindowWidth, "initial window width")
	fs.IntVar(&c.WindowHeight, "height", c.WindowHeight, "initial window height")
	fs.StringVar(&c.ShaderDir, "shaders", c.ShaderDir, "directory holding the compiled SPIR-V shaders")
	fs.StringVar(&c.PalettePath, "palette", c.PalettePath, "palette bitmap sampled by the fragment shader")
	fs.StringVar(&c.OutputPath, "out", c.OutputPath, "PNG written in compute mode")
	fs.BoolVar(&c.Validation, "validation", c.Validation, "enable the Khronos validation layer")
	fs.TextVar(&c.LogLevel, "log-level", c.LogLevel, "log level: debug, info, warn or error")
}

func (c Config) Validate() error {
	if c.Mode != ModeInteractive && c.Mode != ModeCompute {
		return errors.Wrapf(ErrUnknownMode, "%d", int(c.Mode))
	}
	if c.Mode == ModeInteractive {
		if c.WindowWidth <= 0 || c.WindowHeight <= 0 {
			return errors.Newf("window size must be positive, got %dx%d", c.WindowWidth, c.WindowHeight)
		}
		if c.PalettePath == "" {
			return errors.New("palette path is required in interactive mode")
		}
	}
	if c.Mode == ModeCompute && c.OutputPath == "" {
		return errors.New("output path is required in compute mode")
	}
	if c.ShaderDir == "" {
		return errors.New("shader directory is required")
	}
	return nil
}

func (c Config) VertexShaderPath() string   { return filepath.Join(c.ShaderDir, VertexShaderFile) }
func (c Config) FragmentShaderPath() string { return filepath.Join(c.ShaderDir, FragmentShaderFile) }
func (c Config) ComputeShaderPath() string  { return filepath.Join(c.ShaderDir, ComputeShaderFile) }
