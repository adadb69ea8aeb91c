// Package face holds the face descriptor type and the similarity policy used
// to match a live capture against enrolled users.
package face

import (
	"errors"
	"fmt"
)

// DescriptorSize is the length of every face descriptor.
const DescriptorSize = 128

// ErrDescriptorLength is returned when a vector is not DescriptorSize long.
var ErrDescriptorLength = errors.New("face descriptor must have 128 values")

// Descriptor is the embedding of one detected face.
type Descriptor [DescriptorSize]float32

// FromSlice copies v into a Descriptor.
func FromSlice(v []float32) (Descriptor, error) {
	var d Descriptor
	if len(v) != DescriptorSize {
		return d, fmt.Errorf("%w: got %d", ErrDescriptorLength, len(v))
	}
	copy(d[:], v)
	return d, nil
}

// FromFloat64s converts a JSON-decoded vector into a Descriptor.
func FromFloat64s(v []float64) (Descriptor, error) {
	var d Descriptor
	if len(v) != DescriptorSize {
		return d, fmt.Errorf("%w: got %d", ErrDescriptorLength, len(v))
	}
	for i, x := range v {
		d[i] = float32(x)
	}
	return d, nil
}

// Slice returns a copy of the descriptor values.
func (d Descriptor) Slice() []float32 {
	out := make([]float32, DescriptorSize)
	copy(out, d[:])
	return out
}
