// Package tensor provides the tensor handle model and the streaming
// statistics engine used by the structural diff.
package tensor

import (
	"diffai/internal/errors"
)

// Handle represents one named numeric array. The byte buffer is owned by
// the decoder that produced it; the handle borrows it read-only for the
// duration of one comparison.
type Handle struct {
	Name  string
	DType DType
	Shape []int64

	data []byte
}

// NewHandle validates the shape and returns a handle. A negative
// dimension is a structural error; dtype support and buffer alignment
// are checked lazily when statistics are computed, so a handle may
// carry a dtype tag the statistics engine cannot read.
func NewHandle(name string, dtype DType, shape []int64, data []byte) (*Handle, error) {
	for _, dim := range shape {
		if dim < 0 {
			return nil, errors.Newf(errors.InvalidTree,
				"tensor %q has negative dimension %d", name, dim)
		}
	}
	h := &Handle{Name: name, DType: dtype, Shape: shape, data: data}
	return h, nil
}

// ElementCount returns the product of the shape dimensions (0 for an
// empty tensor, 1 for a scalar with empty shape).
func (h *Handle) ElementCount() int64 {
	count := int64(1)
	for _, dim := range h.Shape {
		count *= dim
	}
	return count
}

// Data returns the borrowed byte buffer.
func (h *Handle) Data() []byte {
	return h.data
}

// ShapeEquals reports whether two shapes are identical, dimension by
// dimension.
func ShapeEquals(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
