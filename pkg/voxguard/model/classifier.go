package model

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNoClassifier is returned when a loader reports success without a model.
var ErrNoClassifier = errors.New("loader returned no classifier")

// Classifier maps an input tensor to output probabilities. Implementations
// must be safe for concurrent Infer calls once constructed.
type Classifier interface {
	Infer(ctx context.Context, in Tensor) ([]float32, error)
	// InputShape is the declared input shape; negative entries are dynamic.
	InputShape() []int64
	Close() error
}

// LoaderFunc builds a classifier.
type LoaderFunc func(ctx context.Context) (Classifier, error)

// LoadResult captures the outcome of a load attempt. Exactly one of
// Classifier and Err is set.
type LoadResult struct {
	Classifier Classifier
	Err        error
	Path       string
	LoadedAt   time.Time
}

func (r *LoadResult) OK() bool { return r != nil && r.Err == nil && r.Classifier != nil }

// Load runs loader and records the outcome instead of failing. A panicking
// loader is reported as an error.
func Load(ctx context.Context, path string, loader LoaderFunc) (res *LoadResult) {
	res = &LoadResult{Path: path, LoadedAt: time.Now()}
	defer func() {
		if r := recover(); r != nil {
			res.Classifier = nil
			res.Err = fmt.Errorf("model loader panicked: %v", r)
		}
	}()

	c, err := loader(ctx)
	switch {
	case err != nil:
		res.Err = err
	case c == nil:
		res.Err = ErrNoClassifier
	default:
		res.Classifier = c
	}
	return res
}
