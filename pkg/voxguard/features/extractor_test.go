package features

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/himanishpuri/VoxGuard/internal/testaudio"
	"github.com/himanishpuri/VoxGuard/pkg/voxguard/audio"
)

func newTestExtractor(t *testing.T) *Extractor {
	t.Helper()
	e, err := NewExtractor(DefaultConfig())
	if err != nil {
		t.Fatalf("NewExtractor: %v", err)
	}
	return e
}

func sineWave(secs float64, rate int) audio.Waveform {
	n := testaudio.Seconds(secs, rate)
	return audio.Waveform{Samples: testaudio.Sine(n, rate, 440, 0.5), SampleRate: rate}
}

func zeroColumnsFrom(m *Matrix, from int) bool {
	for r := 0; r < m.Rows; r++ {
		for c := from; c < m.Cols; c++ {
			if m.At(r, c) != 0 {
				return false
			}
		}
	}
	return true
}

func TestExtractShape(t *testing.T) {
	e := newTestExtractor(t)

	tests := []struct {
		name         string
		secs         float64
		rate         int
		wantComputed int
	}{
		{"short 44.1k clip", 1.2, 44100, 38},
		{"exactly three seconds", 3.0, 16000, 94},
		{"long clip is clipped", 5.0, 16000, 94},
		{"long 48k clip", 4.0, 48000, 94},
		{"tiny clip", 0.01, 16000, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := e.Extract(sineWave(tt.secs, tt.rate))
			if err != nil {
				t.Fatalf("Extract failed: %v", err)
			}
			if m.Rows != 40 || m.Cols != 100 || len(m.Data) != 4000 {
				t.Fatalf("shape = [%d,%d] len %d, want [40,100] len 4000", m.Rows, m.Cols, len(m.Data))
			}
			if m.Computed != tt.wantComputed {
				t.Errorf("Computed = %d, want %d", m.Computed, tt.wantComputed)
			}
			if !zeroColumnsFrom(m, tt.wantComputed) {
				t.Errorf("columns from %d on should be zero padding", tt.wantComputed)
			}
			if err := m.Validate(40, 100); err != nil {
				t.Errorf("Validate: %v", err)
			}
		})
	}
}

func TestExtractLongInputMatchesPrefix(t *testing.T) {
	e := newTestExtractor(t)
	long := sineWave(5, 22050)
	prefix := audio.Waveform{Samples: long.Samples[:3*22050], SampleRate: 22050}

	a, err := e.Extract(long)
	if err != nil {
		t.Fatalf("Extract long: %v", err)
	}
	b, err := e.Extract(prefix)
	if err != nil {
		t.Fatalf("Extract prefix: %v", err)
	}
	for i := range a.Data {
		if a.Data[i] != b.Data[i] {
			t.Fatalf("value %d differs: %f vs %f", i, a.Data[i], b.Data[i])
		}
	}
}

func TestExtractDeterministic(t *testing.T) {
	e := newTestExtractor(t)
	w := sineWave(1.5, 44100)

	a, err := e.Extract(w)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	b, err := e.Extract(w)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	for i := range a.Data {
		if a.Data[i] != b.Data[i] {
			t.Fatalf("non-deterministic at %d", i)
		}
	}
}

func TestExtractEmpty(t *testing.T) {
	e := newTestExtractor(t)

	_, err := e.Extract(audio.Waveform{SampleRate: 16000})
	if !errors.Is(err, audio.ErrEmptyAudio) {
		t.Fatalf("expected ErrEmptyAudio, got %v", err)
	}

	_, err = e.Extract(audio.Waveform{Samples: []float64{0.1}, SampleRate: 0})
	if !errors.Is(err, audio.ErrDecode) {
		t.Fatalf("expected ErrDecode for zero rate, got %v", err)
	}
}

func TestComputeFrameCount(t *testing.T) {
	e := newTestExtractor(t)
	for _, n := range []int{1, 511, 512, 19200, 48000} {
		m, err := e.Compute(make([]float64, n))
		if err != nil {
			t.Fatalf("Compute(%d): %v", n, err)
		}
		if want := 1 + n/512; m.Cols != want {
			t.Errorf("Compute(%d) cols = %d, want %d", n, m.Cols, want)
		}
	}
}

func TestFitFrames(t *testing.T) {
	src := NewMatrix(2, 120)
	for r := 0; r < 2; r++ {
		for c := 0; c < 120; c++ {
			src.Set(r, c, float32(r*1000+c+1))
		}
	}
	src.Computed = 120

	cut := FitFrames(src, 100)
	if cut.Cols != 100 || cut.Computed != 120 {
		t.Fatalf("truncate: cols=%d computed=%d", cut.Cols, cut.Computed)
	}
	if cut.At(1, 99) != src.At(1, 99) {
		t.Errorf("truncate kept wrong columns")
	}

	small := NewMatrix(2, 3)
	small.Set(0, 2, 7)
	padded := FitFrames(small, 5)
	if padded.At(0, 2) != 7 || padded.At(0, 3) != 0 || padded.At(1, 4) != 0 {
		t.Errorf("pad produced %v", padded.Data)
	}

	same := FitFrames(small, 3)
	if same.Cols != 3 || same.At(0, 2) != 7 {
		t.Errorf("exact fit changed matrix: %v", same.Data)
	}
}

func TestMatrixValidate(t *testing.T) {
	m := NewMatrix(40, 100)
	if err := m.Validate(40, 100); err != nil {
		t.Fatalf("valid matrix rejected: %v", err)
	}
	if err := m.Validate(40, 99); !errors.Is(err, ErrInvalidMatrix) {
		t.Errorf("wrong shape accepted: %v", err)
	}
	m.Data[17] = float32(math.NaN())
	if err := m.Validate(40, 100); !errors.Is(err, ErrInvalidMatrix) {
		t.Errorf("NaN accepted: %v", err)
	}
	short := &Matrix{Rows: 40, Cols: 100, Data: make([]float32, 10)}
	if err := short.Validate(40, 100); !errors.Is(err, ErrInvalidMatrix) {
		t.Errorf("short data accepted: %v", err)
	}
}

func TestHannPeriodic(t *testing.T) {
	w := Hann(2048)
	if w[0] != 0 {
		t.Errorf("w[0] = %f", w[0])
	}
	if math.Abs(w[1024]-1) > 1e-12 {
		t.Errorf("w[N/2] = %f, want 1", w[1024])
	}
	if math.Abs(w[1]-w[2047]) > 1e-12 {
		t.Errorf("window not periodic-symmetric: %f vs %f", w[1], w[2047])
	}
}

func TestDCTRowsOrthonormal(t *testing.T) {
	d := dctBasis(40, 128)
	var g mat.Dense
	g.Mul(d, d.T())
	for i := 0; i < 40; i++ {
		for j := 0; j < 40; j++ {
			want := 0.0
			if i == j {
				want = 1
			}
			if math.Abs(g.At(i, j)-want) > 1e-9 {
				t.Fatalf("D*D^T[%d,%d] = %g, want %g", i, j, g.At(i, j), want)
			}
		}
	}
}

func TestMelFilterBank(t *testing.T) {
	fb := melFilterBank(16000, 2048, 128, 0, 8000)
	rows, cols := fb.Dims()
	if rows != 128 || cols != 1025 {
		t.Fatalf("dims = %dx%d", rows, cols)
	}
	for m := 0; m < rows; m++ {
		var sum float64
		for k := 0; k < cols; k++ {
			v := fb.At(m, k)
			if v < 0 {
				t.Fatalf("negative weight at [%d,%d]", m, k)
			}
			sum += v
		}
		if sum == 0 {
			t.Errorf("filter %d is empty", m)
		}
	}
}

func TestMelScaleRoundTrip(t *testing.T) {
	for _, hz := range []float64{0, 200, 999, 1000, 4000, 8000} {
		if got := melToHz(hzToMel(hz)); math.Abs(got-hz) > 1e-6 {
			t.Errorf("round trip %g -> %g", hz, got)
		}
	}
	if got := hzToMel(1000); math.Abs(got-15) > 1e-12 {
		t.Errorf("hzToMel(1000) = %g, want 15", got)
	}
}

func TestPowerSpectrumPeak(t *testing.T) {
	e := newTestExtractor(t)
	samples := testaudio.Sine(16000, 16000, 1000, 0.8)
	power := e.powerSpectrogram(samples)

	// 1 kHz sits on bin 1000 / (16000/2048) = 128.
	mid := 10
	best, bestK := 0.0, -1
	bins, _ := power.Dims()
	for k := 0; k < bins; k++ {
		if v := power.At(k, mid); v > best {
			best, bestK = v, k
		}
	}
	if bestK != 128 {
		t.Errorf("peak bin = %d, want 128", bestK)
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	bad := DefaultConfig()
	bad.FFTSize = 1000
	if err := bad.Validate(); err == nil {
		t.Error("non power-of-two fft size accepted")
	}
	bad = DefaultConfig()
	bad.NumMels = 20
	if err := bad.Validate(); err == nil {
		t.Error("fewer mels than coefficients accepted")
	}
}
