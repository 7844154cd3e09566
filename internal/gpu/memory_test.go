package gpu

import (
	"encoding/binary"
	"math"
	"testing"

	. "github.com/onsi/gomega"
	"github.com/vkngwrapper/core/v3/core1_0"
)

func TestFindMemoryType(t *testing.T) {
	g := NewWithT(t)

	props := &core1_0.PhysicalDeviceMemoryProperties{
		MemoryTypes: []core1_0.MemoryType{
			{PropertyFlags: core1_0.MemoryPropertyDeviceLocal},
			{PropertyFlags: core1_0.MemoryPropertyHostVisible},
			{PropertyFlags: core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent},
			{PropertyFlags: core1_0.MemoryPropertyDeviceLocal | core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent},
		},
	}

	index, err := findMemoryType(props, 0b1111, core1_0.MemoryPropertyDeviceLocal)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(index).To(Equal(0))

	index, err = findMemoryType(props, 0b1111, core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(index).To(Equal(2))

	// type 2 filtered out by the requirement mask
	index, err = findMemoryType(props, 0b1010, core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(index).To(Equal(3))

	_, err = findMemoryType(props, 0b0011, core1_0.MemoryPropertyHostCoherent)
	g.Expect(err).To(MatchError(ErrNoMemoryType))
}

func TestFloat32s(t *testing.T) {
	g := NewWithT(t)

	raw := make([]byte, 12)
	binary.LittleEndian.PutUint32(raw[0:], math.Float32bits(0.5))
	binary.LittleEndian.PutUint32(raw[4:], math.Float32bits(1))
	binary.LittleEndian.PutUint32(raw[8:], math.Float32bits(-2))

	g.Expect(Float32s(raw)).To(Equal([]float32{0.5, 1, -2}))
	g.Expect(Float32s(nil)).To(BeNil())
}
