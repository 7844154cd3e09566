package view

import (
	"bytes"
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

// Uniform is the view block the shaders read. Its layout is fixed at 32
// bytes: the trailing padding rounds it up to a vec4 boundary.
type Uniform struct {
	AspectRatio float32
	CenterX     float32
	CenterY     float32
	Zoom        float32
	Iterations  int32
	_           [3]float32
}

// UniformSize is the encoded size of Uniform in bytes.
const UniformSize = 32

func (u Uniform) MarshalBinary() ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, UniformSize))
	err := binary.Write(buf, binary.LittleEndian, u)
	if err != nil {
		return nil, errors.Wrap(err, "encode uniform")
	}
	return buf.Bytes(), nil
}

func (u *Uniform) UnmarshalBinary(data []byte) error {
	if len(data) != UniformSize {
		return errors.Newf("uniform block must be %d bytes, got %d", UniformSize, len(data))
	}
	return binary.Read(bytes.NewReader(data), binary.LittleEndian, u)
}
