// Package model adapts feature matrices to the classifier's input contract
// and runs inference.
package model

import (
	"errors"
	"fmt"

	"github.com/himanishpuri/VoxGuard/pkg/voxguard/features"
)

var (
	// ErrShapeMismatch is returned when a tensor does not match the shape a
	// classifier declares.
	ErrShapeMismatch = errors.New("tensor shape mismatch")

	// ErrNoOutput is returned when a classifier produces no values.
	ErrNoOutput = errors.New("classifier returned no output")
)

// Tensor is a dense float32 tensor in row-major order.
type Tensor struct {
	Shape []int64
	Data  []float32
}

// Elements is the product of the shape dimensions.
func (t Tensor) Elements() int64 {
	if len(t.Shape) == 0 {
		return 0
	}
	n := int64(1)
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// NewInputTensor wraps a [C,F] matrix as [1,C,F,1]: a unit batch dimension
// outermost and a unit channel dimension innermost. The data is shared; both
// layouts are identical in row-major order.
func NewInputTensor(m *features.Matrix) (Tensor, error) {
	if m == nil || m.Rows <= 0 || m.Cols <= 0 {
		return Tensor{}, fmt.Errorf("%w: empty feature matrix", ErrShapeMismatch)
	}
	if len(m.Data) != m.Rows*m.Cols {
		return Tensor{}, fmt.Errorf("%w: %d values for [%d,%d]", ErrShapeMismatch, len(m.Data), m.Rows, m.Cols)
	}
	return Tensor{
		Shape: []int64{1, int64(m.Rows), int64(m.Cols), 1},
		Data:  m.Data,
	}, nil
}

// CheckShape verifies t against a declared shape. Negative declared
// dimensions are dynamic and match any size.
func CheckShape(t Tensor, declared []int64) error {
	if len(declared) == 0 {
		return nil
	}
	if len(t.Shape) != len(declared) {
		return fmt.Errorf("%w: got %v, model expects %v", ErrShapeMismatch, t.Shape, declared)
	}
	for i, d := range declared {
		if d >= 0 && t.Shape[i] != d {
			return fmt.Errorf("%w: got %v, model expects %v", ErrShapeMismatch, t.Shape, declared)
		}
	}
	if int64(len(t.Data)) != t.Elements() {
		return fmt.Errorf("%w: %d values for shape %v", ErrShapeMismatch, len(t.Data), t.Shape)
	}
	return nil
}
