package features

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Slaney mel scale: linear below 1 kHz, logarithmic above.
const (
	melFSp       = 200.0 / 3
	melMinLogHz  = 1000.0
	melMinLogMel = melMinLogHz / melFSp
)

var melLogStep = math.Log(6.4) / 27.0

func hzToMel(hz float64) float64 {
	if hz >= melMinLogHz {
		return melMinLogMel + math.Log(hz/melMinLogHz)/melLogStep
	}
	return hz / melFSp
}

func melToHz(mel float64) float64 {
	if mel >= melMinLogMel {
		return melMinLogHz * math.Exp(melLogStep*(mel-melMinLogMel))
	}
	return mel * melFSp
}

// melFilterBank builds a numMels x (fftSize/2+1) matrix of triangular
// filters with area normalisation, so each filter has roughly constant
// energy per Hz.
func melFilterBank(sampleRate, fftSize, numMels int, fmin, fmax float64) *mat.Dense {
	bins := fftSize/2 + 1

	fftFreqs := make([]float64, bins)
	for k := range fftFreqs {
		fftFreqs[k] = float64(k) * float64(sampleRate) / float64(fftSize)
	}

	lo, hi := hzToMel(fmin), hzToMel(fmax)
	edges := make([]float64, numMels+2)
	for i := range edges {
		edges[i] = melToHz(lo + (hi-lo)*float64(i)/float64(numMels+1))
	}

	fb := mat.NewDense(numMels, bins, nil)
	for m := 0; m < numMels; m++ {
		left, center, right := edges[m], edges[m+1], edges[m+2]
		norm := 2.0 / (right - left)
		for k, f := range fftFreqs {
			lower := (f - left) / (center - left)
			upper := (right - f) / (right - center)
			w := math.Max(0, math.Min(lower, upper))
			if w > 0 {
				fb.Set(m, k, w*norm)
			}
		}
	}
	return fb
}

// powerToDB converts a power matrix to decibels in place, relative to 1.0.
func powerToDB(m *mat.Dense, amin, topDB float64) {
	rows, cols := m.Dims()
	peak := math.Inf(-1)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			v := 10 * math.Log10(math.Max(amin, m.At(r, c)))
			m.Set(r, c, v)
			if v > peak {
				peak = v
			}
		}
	}
	if topDB <= 0 {
		return
	}
	floor := peak - topDB
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if m.At(r, c) < floor {
				m.Set(r, c, floor)
			}
		}
	}
}
