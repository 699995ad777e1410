// Package testaudio builds in-memory audio fixtures for tests.
package testaudio

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"
)

const flacBlockSize = 4096

// Sine returns n samples of a sine wave at freq Hz with the given amplitude.
func Sine(n, rate int, freq, amp float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/float64(rate))
	}
	return out
}

// Seconds returns the sample count covering secs at rate.
func Seconds(secs float64, rate int) int {
	return int(math.Round(secs * float64(rate)))
}

// WAV encodes mono float samples as 16-bit PCM and returns the file bytes.
// When channels > 1 the mono signal is duplicated across channels.
func WAV(t testing.TB, samples []float64, rate, channels int) []byte {
	t.Helper()
	if channels < 1 {
		channels = 1
	}

	path := filepath.Join(t.TempDir(), "fixture.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create fixture: %v", err)
	}

	data := make([]int, 0, len(samples)*channels)
	for _, s := range samples {
		v := int(math.Round(clamp(s) * 32767))
		for ch := 0; ch < channels; ch++ {
			data = append(data, v)
		}
	}

	enc := wav.NewEncoder(f, rate, 16, channels, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		f.Close()
		t.Fatalf("encode fixture: %v", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		t.Fatalf("finalize fixture: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close fixture: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return raw
}

// SineWAV is WAV(Sine(...)) for the common case.
func SineWAV(t testing.TB, secs float64, rate int, freq float64) []byte {
	t.Helper()
	return WAV(t, Sine(Seconds(secs, rate), rate, freq, 0.5), rate, 1)
}

// FLAC encodes one float slice per channel as verbatim FLAC frames of the
// given bit depth and returns the file bytes. All channels must have the same
// length.
func FLAC(t testing.TB, channels [][]float64, rate, bits int) []byte {
	t.Helper()
	if len(channels) == 0 || len(channels) > 2 {
		t.Fatalf("FLAC fixture supports 1 or 2 channels, got %d", len(channels))
	}
	n := len(channels[0])
	for _, ch := range channels[1:] {
		if len(ch) != n {
			t.Fatalf("channel lengths differ: %d and %d", n, len(ch))
		}
	}

	path := filepath.Join(t.TempDir(), "fixture.flac")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create fixture: %v", err)
	}

	info := &meta.StreamInfo{
		BlockSizeMin:  16,
		BlockSizeMax:  flacBlockSize,
		SampleRate:    uint32(rate),
		NChannels:     uint8(len(channels)),
		BitsPerSample: uint8(bits),
		NSamples:      uint64(n),
	}
	// Close on the encoder rewrites the stream info and closes f.
	enc, err := flac.NewEncoder(f, info)
	if err != nil {
		f.Close()
		t.Fatalf("encode header: %v", err)
	}

	layout := frame.ChannelsMono
	if len(channels) == 2 {
		layout = frame.ChannelsLR
	}
	peak := float64(int64(1)<<(bits-1) - 1)
	for start := 0; start < n; start += flacBlockSize {
		end := min(start+flacBlockSize, n)
		fr := &frame.Frame{
			Header: frame.Header{
				HasFixedBlockSize: true,
				BlockSize:         uint16(end - start),
				SampleRate:        uint32(rate),
				Channels:          layout,
				BitsPerSample:     uint8(bits),
			},
		}
		for _, ch := range channels {
			block := make([]int32, end-start)
			for i := range block {
				block[i] = int32(math.Round(clamp(ch[start+i]) * peak))
			}
			fr.Subframes = append(fr.Subframes, &frame.Subframe{
				SubHeader: frame.SubHeader{Pred: frame.PredVerbatim},
				Samples:   block,
				NSamples:  len(block),
			})
		}
		if err := enc.WriteFrame(fr); err != nil {
			enc.Close()
			t.Fatalf("encode frame at %d: %v", start, err)
		}
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("finalize fixture: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return raw
}

// SineFLAC is a mono 16-bit FLAC of a sine at half amplitude.
func SineFLAC(t testing.TB, secs float64, rate int, freq float64) []byte {
	t.Helper()
	return FLAC(t, [][]float64{Sine(Seconds(secs, rate), rate, freq, 0.5)}, rate, 16)
}

func clamp(v float64) float64 {
	switch {
	case v > 1:
		return 1
	case v < -1:
		return -1
	}
	return v
}
