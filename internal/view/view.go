package view

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/vkngwrapper/mandelbrot/internal/window"
)

const (
	MoveSpeed     = 0.25
	SprintFactor  = 2.0
	ZoomSpeed     = 1.0
	IterationStep = 1
	MinIterations = 1
)

// State is the camera over the complex plane.
type State struct {
	Center     mgl32.Vec2
	Zoom       float32
	Iterations int32
}

func Initial() State {
	return State{
		Center:     mgl32.Vec2{0, -0.5},
		Zoom:       1,
		Iterations: 800,
	}
}

// ClampZoom folds a negative zoom onto its absolute value and caps it at
// the aspect ratio, so the quad never shows more than one full set.
func ClampZoom(zoom, aspectRatio float32) float32 {
	zoom = mgl32.Abs(zoom)
	if zoom > aspectRatio {
		return aspectRatio
	}
	return zoom
}

func AspectRatio(width, height int) float32 {
	if height <= 0 {
		return 1
	}
	return float32(width) / float32(height)
}

// Update integrates one frame of input. dt is in seconds. Zoom scales
// multiplicatively, panning is scaled by zoom, and iterations step once
// per frame regardless of dt.
func (s *State) Update(keys window.KeyState, dt float64, aspectRatio float32) {
	delta := float32(dt)

	move := float32(MoveSpeed)
	if keys.KeyPressed(window.KeyShift) {
		move *= SprintFactor
	}

	if keys.KeyPressed(window.KeyZ) {
		s.Zoom += s.Zoom * ZoomSpeed * delta
	}
	if keys.KeyPressed(window.KeyX) {
		s.Zoom -= s.Zoom * ZoomSpeed * delta
	}

	step := move * s.Zoom * delta
	var pan mgl32.Vec2
	if keys.KeyPressed(window.KeyW) {
		pan[0] -= step
	}
	if keys.KeyPressed(window.KeyS) {
		pan[0] += step
	}
	if keys.KeyPressed(window.KeyA) {
		pan[1] -= step
	}
	if keys.KeyPressed(window.KeyD) {
		pan[1] += step
	}
	s.Center = s.Center.Add(pan)

	if keys.KeyPressed(window.KeyUp) && s.Iterations < math.MaxInt32 {
		s.Iterations += IterationStep
	}
	if keys.KeyPressed(window.KeyDown) && s.Iterations > MinIterations {
		s.Iterations -= IterationStep
	}

	s.Zoom = ClampZoom(s.Zoom, aspectRatio)
}

func (s State) Uniform(aspectRatio float32) Uniform {
	return Uniform{
		AspectRatio: aspectRatio,
		CenterX:     s.Center.X(),
		CenterY:     s.Center.Y(),
		Zoom:        s.Zoom,
		Iterations:  s.Iterations,
	}
}
