package features

import (
	"fmt"
	"time"
)

// Config holds the MFCC parameters. The defaults reproduce the pipeline the
// bundled classifier was trained on; changing any of them invalidates it.
type Config struct {
	SampleRate  int           // analysis rate in Hz
	MaxDuration time.Duration // only this much audio is analysed
	NumCoeffs   int           // cepstral coefficients kept per frame
	NumFrames   int           // frames in the fitted matrix
	HopLength   int
	FFTSize     int
	NumMels     int
	FMin        float64
	FMax        float64 // 0 means SampleRate/2
	TopDB       float64 // dynamic range floor below the peak; <= 0 disables it
}

func DefaultConfig() Config {
	return Config{
		SampleRate:  16000,
		MaxDuration: 3 * time.Second,
		NumCoeffs:   40,
		NumFrames:   100,
		HopLength:   512,
		FFTSize:     2048,
		NumMels:     128,
		FMin:        0,
		FMax:        0,
		TopDB:       80,
	}
}

func (c Config) nyquist() float64 {
	if c.FMax > 0 {
		return c.FMax
	}
	return float64(c.SampleRate) / 2
}

// Validate rejects configurations the extractor cannot run with.
func (c Config) Validate() error {
	switch {
	case c.SampleRate <= 0:
		return fmt.Errorf("features: sample rate must be positive, got %d", c.SampleRate)
	case c.MaxDuration <= 0:
		return fmt.Errorf("features: max duration must be positive, got %s", c.MaxDuration)
	case c.NumCoeffs <= 0 || c.NumFrames <= 0:
		return fmt.Errorf("features: output shape %dx%d is empty", c.NumCoeffs, c.NumFrames)
	case c.HopLength <= 0:
		return fmt.Errorf("features: hop length must be positive, got %d", c.HopLength)
	case c.FFTSize < 2 || c.FFTSize&(c.FFTSize-1) != 0:
		return fmt.Errorf("features: fft size must be a power of two, got %d", c.FFTSize)
	case c.NumMels < c.NumCoeffs:
		return fmt.Errorf("features: %d mel bands cannot yield %d coefficients", c.NumMels, c.NumCoeffs)
	case c.FMin < 0 || c.nyquist() <= c.FMin || c.nyquist() > float64(c.SampleRate)/2:
		return fmt.Errorf("features: bad mel range [%g, %g]", c.FMin, c.nyquist())
	}
	return nil
}
