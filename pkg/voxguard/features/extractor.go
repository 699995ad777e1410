// Package features turns waveforms into the fixed-size MFCC matrices the
// classifier consumes.
package features

import (
	"fmt"

	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/mat"

	"github.com/himanishpuri/VoxGuard/pkg/voxguard/audio"
)

const amin = 1e-10

// Extractor computes MFCC matrices. Window and bases are built once, so a
// single Extractor can serve concurrent callers.
type Extractor struct {
	cfg    Config
	window []float64
	melFB  *mat.Dense // NumMels x (FFTSize/2+1)
	dct    *mat.Dense // NumCoeffs x NumMels
}

func NewExtractor(cfg Config) (*Extractor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Extractor{
		cfg:    cfg,
		window: Hann(cfg.FFTSize),
		melFB:  melFilterBank(cfg.SampleRate, cfg.FFTSize, cfg.NumMels, cfg.FMin, cfg.nyquist()),
		dct:    dctBasis(cfg.NumCoeffs, cfg.NumMels),
	}, nil
}

// MustExtractor panics if cfg is invalid. Meant for package-level defaults.
func MustExtractor(cfg Config) *Extractor {
	e, err := NewExtractor(cfg)
	if err != nil {
		panic(err)
	}
	return e
}

func (e *Extractor) Config() Config { return e.cfg }

// Extract clips w to the analysis window, resamples it to the analysis rate
// and returns a NumCoeffs x NumFrames matrix.
func (e *Extractor) Extract(w audio.Waveform) (*Matrix, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}

	clipped := w.Truncate(e.cfg.MaxDuration)
	resampled, err := audio.Resample(clipped, e.cfg.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("resampling %d Hz -> %d Hz: %w", w.SampleRate, e.cfg.SampleRate, err)
	}
	resampled = resampled.Truncate(e.cfg.MaxDuration)

	m, err := e.Compute(resampled.Samples)
	if err != nil {
		return nil, err
	}
	return FitFrames(m, e.cfg.NumFrames), nil
}

// Compute returns the unfitted MFCC matrix of samples, which must already be
// at the analysis rate. It has 1 + len(samples)/HopLength columns.
func (e *Extractor) Compute(samples []float64) (*Matrix, error) {
	if len(samples) == 0 {
		return nil, audio.ErrEmptyAudio
	}

	power := e.powerSpectrogram(samples)

	var melSpec mat.Dense
	melSpec.Mul(e.melFB, power)
	powerToDB(&melSpec, amin, e.cfg.TopDB)

	var coeffs mat.Dense
	coeffs.Mul(e.dct, &melSpec)

	rows, cols := coeffs.Dims()
	m := NewMatrix(rows, cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			m.Set(r, c, float32(coeffs.At(r, c)))
		}
	}
	return m, nil
}

// NumFramesFor reports how many frames Compute yields for n samples.
func (e *Extractor) NumFramesFor(n int) int {
	return 1 + n/e.cfg.HopLength
}

// powerSpectrogram runs a centred STFT (FFTSize/2 zeros on each side) and
// returns |X|^2 laid out bins x frames.
func (e *Extractor) powerSpectrogram(samples []float64) *mat.Dense {
	nfft := e.cfg.FFTSize
	hop := e.cfg.HopLength
	bins := nfft/2 + 1
	frames := e.NumFramesFor(len(samples))

	padded := make([]float64, len(samples)+nfft)
	copy(padded[nfft/2:], samples)

	power := mat.NewDense(bins, frames, nil)
	frame := make([]float64, nfft)
	for t := 0; t < frames; t++ {
		start := t * hop
		for i := 0; i < nfft; i++ {
			frame[i] = padded[start+i] * e.window[i]
		}
		spec := fft.FFTReal(frame)
		for k := 0; k < bins; k++ {
			re, im := real(spec[k]), imag(spec[k])
			power.Set(k, t, re*re+im*im)
		}
	}
	return power
}
