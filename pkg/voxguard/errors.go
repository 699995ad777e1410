package voxguard

import (
	"errors"
	"fmt"

	"github.com/himanishpuri/VoxGuard/pkg/voxguard/audio"
	"github.com/himanishpuri/VoxGuard/pkg/voxguard/features"
)

var (
	ErrUnsupportedFormat = audio.ErrUnsupportedFormat
	ErrDecode            = audio.ErrDecode
	ErrEmptyAudio        = audio.ErrEmptyAudio
	ErrInvalidFeatures   = features.ErrInvalidMatrix

	// ErrModelUnavailable is returned by every classify call while no model
	// is loaded.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrInference wraps any failure between feature extraction and a valid
	// probability.
	ErrInference = errors.New("inference failed")

	ErrInvalidThreshold = errors.New("threshold must lie in [0, 1]")
)

func inferenceError(cause error) error {
	return fmt.Errorf("%w: %w", ErrInference, cause)
}

// Error kinds, as reported to API clients.
const (
	KindUnsupportedFormat = "unsupported_format"
	KindDecode            = "decode_error"
	KindEmptyAudio        = "empty_audio"
	KindInvalidFeatures   = "invalid_features"
	KindModelUnavailable  = "model_unavailable"
	KindInference         = "inference_error"
	KindInternal          = "internal"
)

// Kind names the failure category of err. Server-side kinds are checked
// first so a wrapped cause never downgrades them.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrModelUnavailable):
		return KindModelUnavailable
	case errors.Is(err, ErrInference):
		return KindInference
	case errors.Is(err, ErrUnsupportedFormat):
		return KindUnsupportedFormat
	case errors.Is(err, ErrEmptyAudio):
		return KindEmptyAudio
	case errors.Is(err, ErrDecode):
		return KindDecode
	case errors.Is(err, ErrInvalidFeatures):
		return KindInvalidFeatures
	default:
		return KindInternal
	}
}

// IsClientError reports whether err was caused by the caller's input.
func IsClientError(err error) bool {
	switch Kind(err) {
	case KindUnsupportedFormat, KindEmptyAudio, KindDecode, KindInvalidFeatures:
		return true
	}
	return false
}
