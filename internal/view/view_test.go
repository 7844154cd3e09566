package view

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	. "github.com/onsi/gomega"

	"github.com/vkngwrapper/mandelbrot/internal/window"
)

type heldKeys map[window.Key]bool

func (k heldKeys) KeyPressed(key window.Key) bool { return k[key] }

func TestUniformLayout(t *testing.T) {
	g := NewWithT(t)

	g.Expect(binary.Size(Uniform{})).To(Equal(UniformSize))

	u := Uniform{AspectRatio: 1.5, CenterX: 0, CenterY: -0.5, Zoom: 1.0, Iterations: 800}
	data, err := u.MarshalBinary()
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(data).To(HaveLen(32))

	g.Expect(math.Float32frombits(binary.LittleEndian.Uint32(data[0:]))).To(Equal(float32(1.5)))
	g.Expect(math.Float32frombits(binary.LittleEndian.Uint32(data[4:]))).To(Equal(float32(0)))
	g.Expect(math.Float32frombits(binary.LittleEndian.Uint32(data[8:]))).To(Equal(float32(-0.5)))
	g.Expect(math.Float32frombits(binary.LittleEndian.Uint32(data[12:]))).To(Equal(float32(1)))
	g.Expect(int32(binary.LittleEndian.Uint32(data[16:]))).To(Equal(int32(800)))
	g.Expect(data[20:]).To(Equal(make([]byte, 12)))
}

func TestUniformRoundTripThroughMappedBytes(t *testing.T) {
	g := NewWithT(t)

	// stands in for the host-coherent mapping of a uniform buffer
	mapped := make([]byte, UniformSize)

	in := Uniform{AspectRatio: 1.5, CenterX: 0, CenterY: -0.5, Zoom: 1.0, Iterations: 800}
	data, err := in.MarshalBinary()
	g.Expect(err).NotTo(HaveOccurred())
	copy(mapped, data)

	readBack := make([]byte, UniformSize)
	copy(readBack, mapped)
	g.Expect(readBack).To(Equal(data))

	var out Uniform
	g.Expect(out.UnmarshalBinary(readBack)).To(Succeed())
	g.Expect(out).To(Equal(in))

	g.Expect(out.UnmarshalBinary(readBack[:31])).NotTo(Succeed())
}

func TestClampZoom(t *testing.T) {
	g := NewWithT(t)

	aspects := []float32{0.5, 1, 16.0 / 9.0, 3}
	zooms := []float32{-10, -1.5, -0.25, 0, 0.25, 1, 1.7, 2.5, 100}

	for _, a := range aspects {
		for _, z := range zooms {
			got := ClampZoom(z, a)
			want := mgl32.Abs(z)
			if want > a {
				want = a
			}
			g.Expect(got).To(Equal(want), "z=%v a=%v", z, a)
			g.Expect(got).To(BeNumerically(">=", 0))
			g.Expect(got).To(BeNumerically("<=", a))
		}
	}
}

func TestUpdateZoom(t *testing.T) {
	g := NewWithT(t)

	s := Initial()
	s.Zoom = 0.5
	s.Update(heldKeys{window.KeyZ: true}, 0.1, 2)
	g.Expect(s.Zoom).To(BeNumerically("~", 0.55, 1e-6))

	s.Zoom = 1
	s.Update(heldKeys{window.KeyX: true}, 0.5, 2)
	g.Expect(s.Zoom).To(BeNumerically("~", 0.5, 1e-6))

	s.Update(heldKeys{window.KeyZ: true}, 0.5, 2)
	g.Expect(s.Zoom).To(BeNumerically("~", 0.75, 1e-6))

	// growing past the aspect ratio is capped
	s.Update(heldKeys{window.KeyZ: true}, 10, 2)
	g.Expect(s.Zoom).To(Equal(float32(2)))
}

func TestUpdatePanScalesWithZoomAndSprint(t *testing.T) {
	g := NewWithT(t)

	s := Initial()
	s.Zoom = 0.5
	s.Update(heldKeys{window.KeyS: true, window.KeyD: true}, 1, 2)
	g.Expect(s.Center.X()).To(BeNumerically("~", 0.125, 1e-6))
	g.Expect(s.Center.Y()).To(BeNumerically("~", -0.375, 1e-6))

	s = Initial()
	s.Update(heldKeys{window.KeyW: true, window.KeyShift: true}, 1, 2)
	g.Expect(s.Center.X()).To(BeNumerically("~", -0.5, 1e-6))
	g.Expect(s.Center.Y()).To(BeNumerically("~", -0.5, 1e-6))
}

func TestUpdateIterationsStepPerFrame(t *testing.T) {
	g := NewWithT(t)

	s := Initial()
	s.Update(heldKeys{window.KeyUp: true}, 0.001, 1)
	s.Update(heldKeys{window.KeyUp: true}, 10, 1)
	g.Expect(s.Iterations).To(Equal(int32(802)))

	s.Iterations = MinIterations
	s.Update(heldKeys{window.KeyDown: true}, 1, 1)
	g.Expect(s.Iterations).To(Equal(int32(MinIterations)))
}

func TestStateUniform(t *testing.T) {
	g := NewWithT(t)

	u := Initial().Uniform(AspectRatio(1280, 720))
	g.Expect(u.AspectRatio).To(BeNumerically("~", 16.0/9.0, 1e-6))
	g.Expect(u.CenterX).To(Equal(float32(0)))
	g.Expect(u.CenterY).To(Equal(float32(-0.5)))
	g.Expect(u.Zoom).To(Equal(float32(1)))
	g.Expect(u.Iterations).To(Equal(int32(800)))

	g.Expect(AspectRatio(10, 0)).To(Equal(float32(1)))
}
