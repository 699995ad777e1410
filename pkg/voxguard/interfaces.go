package voxguard

import (
	"context"

	"github.com/himanishpuri/VoxGuard/pkg/voxguard/features"
)

type Service interface {
	// Classify decodes an uploaded clip and labels it.
	Classify(ctx context.Context, data []byte, filename string) (*Prediction, error)
	// ClassifyFeatures labels a feature matrix computed elsewhere.
	ClassifyFeatures(ctx context.Context, m *features.Matrix, filename string) (*Prediction, error)
	// Extract runs the decode and feature stages only.
	Extract(ctx context.Context, data []byte, filename string) (*features.Matrix, error)
	LoadModel(ctx context.Context) error
	ModelStatus() ModelStatus
	Threshold() float64
	Stats(ctx context.Context) (Stats, error)
	Recent(ctx context.Context, limit int) ([]Record, error)
	Close() error
}

// Ledger persists predictions.
type Ledger interface {
	Record(ctx context.Context, rec *Record) error
	Recent(ctx context.Context, limit int) ([]Record, error)
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Debugf(format string, args ...any)
}
