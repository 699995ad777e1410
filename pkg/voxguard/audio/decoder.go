package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/go-audio/wav"
	"github.com/mewkiz/flac"
)

// Decode turns an in-memory audio file into a mono waveform at its native
// sample rate. The codec is picked from the filename extension.
func Decode(filename string, data []byte) (w Waveform, err error) {
	if len(data) == 0 {
		return Waveform{}, fmt.Errorf("%w: %s is zero bytes", ErrEmptyAudio, filename)
	}

	defer func() {
		if r := recover(); r != nil {
			w = Waveform{}
			err = fmt.Errorf("%w: %s: codec panic: %v", ErrDecode, filename, r)
		}
	}()

	switch ext := NormalizeExt(filepath.Ext(filename)); ext {
	case FormatFLAC:
		w, err = decodeFLAC(data)
	case FormatWAV:
		w, err = decodeWAV(data)
	default:
		return Waveform{}, fmt.Errorf("%w: no codec for %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		if errors.Is(err, ErrEmptyAudio) || errors.Is(err, ErrDecode) {
			return Waveform{}, fmt.Errorf("%s: %w", filename, err)
		}
		return Waveform{}, fmt.Errorf("%w: %s: %v", ErrDecode, filename, err)
	}
	if len(w.Samples) == 0 {
		return Waveform{}, fmt.Errorf("%w: %s", ErrEmptyAudio, filename)
	}
	return w, nil
}

// decodeFLAC reads every frame of a FLAC stream. Inter-channel decorrelation
// is already undone by the parser, so subframes hold plain channel samples.
func decodeFLAC(data []byte) (Waveform, error) {
	stream, err := flac.New(bytes.NewReader(data))
	if err != nil {
		return Waveform{}, fmt.Errorf("%w: parsing stream info: %v", ErrDecode, err)
	}
	defer stream.Close()

	info := stream.Info
	if info.SampleRate == 0 {
		return Waveform{}, fmt.Errorf("%w: stream declares sample rate 0", ErrDecode)
	}
	if info.BitsPerSample == 0 || info.BitsPerSample > 32 {
		return Waveform{}, fmt.Errorf("%w: unsupported bit depth %d", ErrDecode, info.BitsPerSample)
	}
	scale := 1.0 / float64(int64(1)<<(info.BitsPerSample-1))

	samples := make([]float64, 0, info.NSamples)
	for {
		frame, err := stream.ParseNext()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return Waveform{}, fmt.Errorf("%w: parsing frame: %v", ErrDecode, err)
		}
		channels := len(frame.Subframes)
		if channels == 0 {
			continue
		}
		n := frame.Subframes[0].NSamples
		for i := 0; i < n; i++ {
			var sum float64
			for ch := 0; ch < channels; ch++ {
				sum += float64(frame.Subframes[ch].Samples[i])
			}
			samples = append(samples, sum/float64(channels)*scale)
		}
	}

	return Waveform{Samples: samples, SampleRate: int(info.SampleRate)}, nil
}

const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
)

func decodeWAV(data []byte) (Waveform, error) {
	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return Waveform{}, fmt.Errorf("%w: not a RIFF/WAVE file", ErrDecode)
	}
	if d.WavAudioFormat != wavFormatPCM && d.WavAudioFormat != wavFormatExtensible {
		return Waveform{}, fmt.Errorf("%w: only integer PCM is supported (format %d)", ErrDecode, d.WavAudioFormat)
	}
	if d.SampleRate == 0 || d.BitDepth == 0 || d.NumChans == 0 {
		return Waveform{}, fmt.Errorf("%w: incomplete fmt chunk", ErrDecode)
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return Waveform{}, fmt.Errorf("%w: reading PCM: %v", ErrDecode, err)
	}
	if buf == nil || len(buf.Data) == 0 {
		return Waveform{}, ErrEmptyAudio
	}

	scale := 1.0 / float64(int64(1)<<(d.BitDepth-1))
	interleaved := make([]float64, len(buf.Data))
	for i, s := range buf.Data {
		interleaved[i] = float64(s) * scale
	}

	return Waveform{
		Samples:    MixDown(interleaved, int(d.NumChans)),
		SampleRate: int(d.SampleRate),
	}, nil
}
