// Package voxguard classifies speech clips as real human voice or
// synthetic (deepfake) voice.
package voxguard

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/himanishpuri/VoxGuard/pkg/logger"
	"github.com/himanishpuri/VoxGuard/pkg/voxguard/audio"
	"github.com/himanishpuri/VoxGuard/pkg/voxguard/features"
	"github.com/himanishpuri/VoxGuard/pkg/voxguard/model"
)

// softmaxTolerance bounds |p0+p1-1| for two-unit outputs before a warning.
const softmaxTolerance = 1e-3

// voxService is the default implementation of the Service interface.
type voxService struct {
	config    *Config
	log       Logger
	extractor *features.Extractor
	ledger    Ledger
	loader    model.LoaderFunc

	loadMu sync.Mutex
	state  atomic.Pointer[model.LoadResult]
}

// NewService builds a service and attempts the initial model load. A failed
// load does not fail construction: the service starts and reports
// ErrModelUnavailable until LoadModel succeeds.
func NewService(opts ...Option) (Service, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}
	if cfg.Threshold < 0 || cfg.Threshold > 1 || math.IsNaN(cfg.Threshold) {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidThreshold, cfg.Threshold)
	}
	if len(cfg.AllowedFormats) == 0 {
		cfg.AllowedFormats = audio.DefaultFormats
	}
	for _, ext := range cfg.AllowedFormats {
		if !audio.Supported(ext) {
			return nil, fmt.Errorf("%w: no decoder for %q", ErrUnsupportedFormat, ext)
		}
	}

	extractor, err := features.NewExtractor(cfg.Features)
	if err != nil {
		return nil, fmt.Errorf("failed to create extractor: %w", err)
	}

	ledger := cfg.Ledger
	if ledger == nil {
		if cfg.DBPath != "" {
			ledger, err = NewSQLiteLedger(cfg.DBPath)
			if err != nil {
				return nil, fmt.Errorf("failed to create ledger: %w", err)
			}
		} else {
			ledger = nopLedger{}
		}
	}

	loader := cfg.Loader
	if loader == nil {
		fc := cfg.Features
		loader = model.ONNXLoader(model.ONNXConfig{
			ModelPath:   cfg.ModelPath,
			LibraryPath: cfg.RuntimeLibrary,
			ExpectShape: []int64{-1, int64(fc.NumCoeffs), int64(fc.NumFrames), 1},
		})
	}

	s := &voxService{
		config:    cfg,
		log:       cfg.Logger,
		extractor: extractor,
		ledger:    ledger,
		loader:    loader,
	}
	if err := s.LoadModel(context.Background()); err != nil {
		s.log.Errorf("Model not loaded, classification disabled: %v", err)
	}
	return s, nil
}

// LoadModel loads the classifier unless one is already loaded. It is safe
// to call repeatedly; a failed previous attempt is retried.
func (s *voxService) LoadModel(ctx context.Context) error {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	if cur := s.state.Load(); cur.OK() {
		return nil
	}

	start := time.Now()
	res := model.Load(ctx, s.config.ModelPath, s.loader)
	s.state.Store(res)
	if !res.OK() {
		return fmt.Errorf("%w: %v", ErrModelUnavailable, res.Err)
	}
	s.log.Infof("Loaded model %s in %s (input %v)", s.config.ModelPath, time.Since(start).Round(time.Millisecond), res.Classifier.InputShape())
	return nil
}

func (s *voxService) ModelStatus() ModelStatus {
	st := ModelStatus{Path: s.config.ModelPath}
	res := s.state.Load()
	if res == nil {
		st.Error = "model not loaded"
		return st
	}
	st.LoadedAt = res.LoadedAt
	if !res.OK() {
		if res.Err != nil {
			st.Error = res.Err.Error()
		}
		return st
	}
	st.Loaded = true
	st.InputShape = res.Classifier.InputShape()
	return st
}

func (s *voxService) Threshold() float64 { return s.config.Threshold }

func (s *voxService) classifier() (model.Classifier, error) {
	res := s.state.Load()
	if res == nil {
		return nil, ErrModelUnavailable
	}
	if !res.OK() {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, res.Err)
	}
	return res.Classifier, nil
}

// Classify runs the full pipeline on an uploaded clip.
func (s *voxService) Classify(ctx context.Context, data []byte, filename string) (*Prediction, error) {
	// 1. Format gate
	if err := audio.CheckFormat(filename, s.config.AllowedFormats); err != nil {
		return nil, err
	}

	// 2. Model state
	clf, err := s.classifier()
	if err != nil {
		return nil, err
	}

	s.log.Infof("Classifying %s (%s)", filename, humanize.Bytes(uint64(len(data))))

	// 3. Decode
	w, err := audio.Decode(filename, data)
	if err != nil {
		return nil, err
	}

	// 4. Features
	m, err := s.extract(w)
	if err != nil {
		return nil, err
	}

	// 5-7. Tensor, inference, threshold
	pred, err := s.predict(ctx, clf, m, filename)
	if err != nil {
		return nil, err
	}
	pred.Duration = w.Duration()

	// 8. Ledger
	s.record(ctx, pred, SourceUpload)
	return pred, nil
}

// ClassifyFeatures labels a matrix produced by a remote extractor.
func (s *voxService) ClassifyFeatures(ctx context.Context, m *features.Matrix, filename string) (*Prediction, error) {
	clf, err := s.classifier()
	if err != nil {
		return nil, err
	}
	fc := s.config.Features
	if err := m.Validate(fc.NumCoeffs, fc.NumFrames); err != nil {
		return nil, err
	}

	pred, err := s.predict(ctx, clf, m, filename)
	if err != nil {
		return nil, err
	}
	if m.Computed > 0 {
		pred.Frames = m.Computed
	}
	s.record(ctx, pred, SourceFeatures)
	return pred, nil
}

// Extract decodes a clip and returns its feature matrix.
func (s *voxService) Extract(ctx context.Context, data []byte, filename string) (*features.Matrix, error) {
	if err := audio.CheckFormat(filename, s.config.AllowedFormats); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w, err := audio.Decode(filename, data)
	if err != nil {
		return nil, err
	}
	return s.extract(w)
}

func (s *voxService) extract(w audio.Waveform) (m *features.Matrix, err error) {
	defer func() {
		if r := recover(); r != nil {
			m = nil
			err = inferenceError(fmt.Errorf("feature extraction panicked: %v", r))
		}
	}()

	start := time.Now()
	m, err = s.extractor.Extract(w)
	if err != nil {
		if errors.Is(err, ErrEmptyAudio) || errors.Is(err, ErrDecode) {
			return nil, err
		}
		return nil, inferenceError(err)
	}
	s.log.Debugf("Extracted %d frames (%d Hz, %s) in %s", m.Computed, w.SampleRate, w.Duration().Round(time.Millisecond), time.Since(start).Round(time.Microsecond))
	return m, nil
}

func (s *voxService) predict(ctx context.Context, clf model.Classifier, m *features.Matrix, filename string) (*Prediction, error) {
	tensor, err := model.NewInputTensor(m)
	if err != nil {
		return nil, inferenceError(err)
	}
	if err := model.CheckShape(tensor, clf.InputShape()); err != nil {
		return nil, inferenceError(err)
	}
	if err := ctx.Err(); err != nil {
		return nil, inferenceError(err)
	}

	out, err := s.infer(ctx, clf, tensor)
	if err != nil {
		return nil, inferenceError(err)
	}
	if len(out) == 0 {
		return nil, inferenceError(model.ErrNoOutput)
	}

	p := float64(out[0])
	if math.IsNaN(p) || p < 0 || p > 1 {
		return nil, inferenceError(fmt.Errorf("probability %v outside [0, 1]", p))
	}
	if len(out) >= 2 {
		if sum := p + float64(out[1]); math.Abs(sum-1) > softmaxTolerance {
			s.log.Warnf("Two-unit output for %s does not sum to 1 (%.4f + %.4f); reading unit 0", filename, out[0], out[1])
		}
	}

	label := Decide(p, s.config.Threshold)
	s.log.Infof("%s: %s (p=%.4f, threshold=%.2f)", filename, label.Display(), p, s.config.Threshold)

	return &Prediction{
		Label:       label,
		Display:     label.Display(),
		Probability: p,
		Threshold:   s.config.Threshold,
		Filename:    filename,
		Frames:      m.Computed,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

func (s *voxService) infer(ctx context.Context, clf model.Classifier, t model.Tensor) (out []float32, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("classifier panicked: %v", r)
		}
	}()
	return clf.Infer(ctx, t)
}

// record writes pred to the ledger. Failures are logged, never returned.
func (s *voxService) record(ctx context.Context, pred *Prediction, source string) {
	rec := &Record{
		Filename:    pred.Filename,
		Source:      source,
		Label:       pred.Label,
		Probability: pred.Probability,
		Threshold:   pred.Threshold,
		Frames:      pred.Frames,
		DurationMs:  pred.Duration.Milliseconds(),
		CreatedAt:   pred.CreatedAt,
	}
	if err := s.ledger.Record(ctx, rec); err != nil {
		s.log.Warnf("Failed to record prediction for %s: %v", pred.Filename, err)
		return
	}
	pred.ID = rec.ID
}

func (s *voxService) Stats(ctx context.Context) (Stats, error) {
	return s.ledger.Stats(ctx)
}

func (s *voxService) Recent(ctx context.Context, limit int) ([]Record, error) {
	return s.ledger.Recent(ctx, limit)
}

func (s *voxService) Close() error {
	var errs []error
	if res := s.state.Load(); res.OK() {
		if err := res.Classifier.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing classifier: %w", err))
		}
	}
	if err := s.ledger.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing ledger: %w", err))
	}
	return errors.Join(errs...)
}
