package audio

import (
	"fmt"
	"math"
	"sync"

	resampling "github.com/tphakala/go-audio-resampling"
)

// padSeconds of silence is fed on both sides of the signal. The leading pad
// absorbs the filter's group delay, the trailing pad plus Flush pushes the
// last input samples out of the delay line.
const padSeconds = 0.05

// delays caches the measured pipeline delay, in output samples, per
// [source, target] rate pair.
var delays sync.Map

// Resample converts w to the target rate. A waveform already at the target
// rate is returned unchanged. The output always holds
// ceil(len(w.Samples) * target / w.SampleRate) samples, and output sample i
// lines up with input time i/target.
func Resample(w Waveform, target int) (Waveform, error) {
	if err := w.Validate(); err != nil {
		return Waveform{}, err
	}
	if target <= 0 {
		return Waveform{}, fmt.Errorf("resample: invalid target rate %d", target)
	}
	if w.SampleRate == target {
		return w, nil
	}

	delay, err := pipelineDelay(w.SampleRate, target)
	if err != nil {
		return Waveform{}, err
	}
	out, err := runPadded(w.SampleRate, target, w.Samples)
	if err != nil {
		return Waveform{}, err
	}

	want := int(math.Ceil(float64(len(w.Samples)) * float64(target) / float64(w.SampleRate)))
	out = out[min(delay, len(out)):]
	return Waveform{Samples: fitLength(out, want), SampleRate: target}, nil
}

// runPadded resamples pad + samples + pad through a fresh resampler and
// flushes it.
func runPadded(src, target int, samples []float64) ([]float64, error) {
	rs, err := resampling.New(&resampling.Config{
		InputRate:  float64(src),
		OutputRate: float64(target),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create resampler: %w", err)
	}

	pad := int(padSeconds * float64(src))
	in := make([]float64, pad+len(samples)+pad)
	copy(in[pad:], samples)

	out, err := rs.Process(in)
	if err != nil {
		return nil, fmt.Errorf("resample error: %w", err)
	}
	tail, err := rs.Flush()
	if err != nil {
		return nil, fmt.Errorf("resample flush: %w", err)
	}
	return append(out, tail...), nil
}

// pipelineDelay places an impulse one second into the signal, where it
// should land on output sample target, and reports how far past that the
// peak actually comes out. The result covers the leading pad and the filter
// delay together.
func pipelineDelay(src, target int) (int, error) {
	key := [2]int{src, target}
	if d, ok := delays.Load(key); ok {
		return d.(int), nil
	}

	impulse := make([]float64, src+src/10)
	impulse[src] = 1
	out, err := runPadded(src, target, impulse)
	if err != nil {
		return 0, err
	}

	peak := 0
	for i, v := range out {
		if math.Abs(v) > math.Abs(out[peak]) {
			peak = i
		}
	}
	d := max(peak-target, 0)
	delays.Store(key, d)
	return d, nil
}

// fitLength truncates or zero-pads s to exactly n samples.
func fitLength(s []float64, n int) []float64 {
	if len(s) >= n {
		return s[:n]
	}
	padded := make([]float64, n)
	copy(padded, s)
	return padded
}
