package audio

import (
	"errors"
	"math"
	"time"
)

var (
	// ErrUnsupportedFormat is returned when a filename carries an extension
	// outside the accepted container list. No decoding is attempted.
	ErrUnsupportedFormat = errors.New("unsupported audio format")

	// ErrDecode is returned when the bytes cannot be decoded as audio.
	ErrDecode = errors.New("audio decode failed")

	// ErrEmptyAudio is returned when decoding yields zero samples.
	ErrEmptyAudio = errors.New("audio contains no samples")
)

// Waveform holds mono samples normalized to [-1, 1] and their sample rate.
type Waveform struct {
	Samples    []float64
	SampleRate int
}

// Duration returns the playback length of the waveform.
func (w Waveform) Duration() time.Duration {
	if w.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(w.Samples)) / float64(w.SampleRate) * float64(time.Second))
}

// Truncate returns a waveform holding at most the first d of audio.
// The underlying sample slice is shared.
func (w Waveform) Truncate(d time.Duration) Waveform {
	max := SamplesFor(d, w.SampleRate)
	if len(w.Samples) <= max {
		return w
	}
	return Waveform{Samples: w.Samples[:max], SampleRate: w.SampleRate}
}

// SamplesFor returns the number of samples that cover d at rate, rounded up.
func SamplesFor(d time.Duration, rate int) int {
	return int(math.Ceil(d.Seconds() * float64(rate)))
}

// Validate checks the extractor preconditions.
func (w Waveform) Validate() error {
	if len(w.Samples) == 0 {
		return ErrEmptyAudio
	}
	if w.SampleRate <= 0 {
		return ErrDecode
	}
	return nil
}

// MixDown averages interleaved frames of numChannels into mono. A trailing
// partial frame is dropped.
func MixDown(interleaved []float64, numChannels int) []float64 {
	if numChannels <= 1 {
		return interleaved
	}
	frames := len(interleaved) / numChannels
	out := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for ch := 0; ch < numChannels; ch++ {
			sum += interleaved[i*numChannels+ch]
		}
		out[i] = sum / float64(numChannels)
	}
	return out
}
