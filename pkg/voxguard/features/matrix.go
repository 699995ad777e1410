package features

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidMatrix is returned when a matrix does not have the shape or
// contents the classifier expects.
var ErrInvalidMatrix = errors.New("invalid feature matrix")

// Matrix is a row-major [Rows, Cols] block of MFCC coefficients: one row per
// coefficient, one column per frame.
type Matrix struct {
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
	Data []float32 `json:"data"`

	// Computed is the number of frames produced before fitting to Cols.
	Computed int `json:"computed,omitempty"`
}

func NewMatrix(rows, cols int) *Matrix {
	return &Matrix{Rows: rows, Cols: cols, Data: make([]float32, rows*cols), Computed: cols}
}

func (m *Matrix) At(r, c int) float32 { return m.Data[r*m.Cols+c] }

func (m *Matrix) Set(r, c int, v float32) { m.Data[r*m.Cols+c] = v }

// Column returns a copy of frame c.
func (m *Matrix) Column(c int) []float32 {
	col := make([]float32, m.Rows)
	for r := range col {
		col[r] = m.At(r, c)
	}
	return col
}

// Validate checks that m is exactly rows x cols with finite values.
func (m *Matrix) Validate(rows, cols int) error {
	if m == nil {
		return fmt.Errorf("%w: nil", ErrInvalidMatrix)
	}
	if m.Rows != rows || m.Cols != cols {
		return fmt.Errorf("%w: shape [%d,%d], want [%d,%d]", ErrInvalidMatrix, m.Rows, m.Cols, rows, cols)
	}
	if len(m.Data) != rows*cols {
		return fmt.Errorf("%w: %d values for shape [%d,%d]", ErrInvalidMatrix, len(m.Data), rows, cols)
	}
	for i, v := range m.Data {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: non-finite value at index %d", ErrInvalidMatrix, i)
		}
	}
	return nil
}

// FitFrames returns a copy of m with exactly frames columns. Missing frames
// are zero columns appended on the right; extra frames past the limit are
// dropped. Computed is carried over from m.
func FitFrames(m *Matrix, frames int) *Matrix {
	out := &Matrix{
		Rows:     m.Rows,
		Cols:     frames,
		Data:     make([]float32, m.Rows*frames),
		Computed: m.Computed,
	}
	keep := min(m.Cols, frames)
	for r := 0; r < m.Rows; r++ {
		copy(out.Data[r*frames:r*frames+keep], m.Data[r*m.Cols:r*m.Cols+keep])
	}
	return out
}
