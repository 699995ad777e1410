package features

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Hann returns a periodic Hann window of length n, the variant used for
// spectral analysis (the symmetric one would be computed over n-1).
func Hann(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return w
}

// dctBasis returns the first k rows of the orthonormal DCT-II matrix of
// size n, so basis * x yields the leading k coefficients of x.
func dctBasis(k, n int) *mat.Dense {
	d := mat.NewDense(k, n, nil)
	s0 := math.Sqrt(1 / float64(n))
	s := math.Sqrt(2 / float64(n))
	for r := 0; r < k; r++ {
		scale := s
		if r == 0 {
			scale = s0
		}
		for c := 0; c < n; c++ {
			d.Set(r, c, scale*math.Cos(math.Pi*float64(r)*(2*float64(c)+1)/(2*float64(n))))
		}
	}
	return d
}
