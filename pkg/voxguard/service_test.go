package voxguard

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sync"
	"testing"

	"github.com/himanishpuri/VoxGuard/internal/testaudio"
	"github.com/himanishpuri/VoxGuard/pkg/logger"
	"github.com/himanishpuri/VoxGuard/pkg/voxguard/features"
	"github.com/himanishpuri/VoxGuard/pkg/voxguard/model"
)

// fakeClassifier returns fixed outputs and remembers the last tensor.
type fakeClassifier struct {
	mu     sync.Mutex
	out    []float32
	err    error
	panics bool
	shape  []int64
	last   model.Tensor
	calls  int
	closed bool
}

func (f *fakeClassifier) Infer(_ context.Context, in model.Tensor) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = in
	if f.panics {
		panic("runtime exploded")
	}
	if f.err != nil {
		return nil, f.err
	}
	return append([]float32(nil), f.out...), nil
}

func (f *fakeClassifier) InputShape() []int64 {
	if f.shape != nil {
		return f.shape
	}
	return []int64{-1, 40, 100, 1}
}

func (f *fakeClassifier) Close() error {
	f.closed = true
	return nil
}

func staticLoader(c model.Classifier) model.LoaderFunc {
	return func(context.Context) (model.Classifier, error) { return c, nil }
}

func newTestService(t *testing.T, clf model.Classifier, opts ...Option) Service {
	t.Helper()
	base := []Option{
		WithLogger(logger.Discard()),
		WithLoader(staticLoader(clf)),
		WithAllowedFormats(".flac", ".wav"),
	}
	svc, err := NewService(append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	return svc
}

func TestClassifyEndToEnd(t *testing.T) {
	clf := &fakeClassifier{out: []float32{0.82}}
	svc := newTestService(t, clf)

	clip := testaudio.SineWAV(t, 1.2, 44100, 220)
	pred, err := svc.Classify(context.Background(), clip, "speaker.wav")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}

	if pred.Label != LabelReal || pred.Display != "Real Human Voice" {
		t.Errorf("label = %s / %q", pred.Label, pred.Display)
	}
	if pred.Probability < 0.8199 || pred.Probability > 0.8201 {
		t.Errorf("probability = %f", pred.Probability)
	}
	if pred.Frames != 38 {
		t.Errorf("frames = %d, want 38", pred.Frames)
	}

	want := []int64{1, 40, 100, 1}
	for i, d := range want {
		if clf.last.Shape[i] != d {
			t.Fatalf("tensor shape = %v, want %v", clf.last.Shape, want)
		}
	}
	if len(clf.last.Data) != 4000 {
		t.Fatalf("tensor has %d values", len(clf.last.Data))
	}
	// Frames 38..99 are zero padding.
	for r := 0; r < 40; r++ {
		for c := 38; c < 100; c++ {
			if v := clf.last.Data[r*100+c]; v != 0 {
				t.Fatalf("padding at [%d,%d] = %f", r, c, v)
			}
		}
	}
}

func TestThresholdBoundary(t *testing.T) {
	tests := []struct {
		p    float32
		want Label
	}{
		{0.5, LabelReal},
		{0.4999, LabelDeepFake},
		{1, LabelReal},
		{0, LabelDeepFake},
	}
	for _, tt := range tests {
		svc := newTestService(t, &fakeClassifier{out: []float32{tt.p}})
		m := features.NewMatrix(40, 100)
		pred, err := svc.ClassifyFeatures(context.Background(), m, "m.json")
		if err != nil {
			t.Fatalf("p=%v: %v", tt.p, err)
		}
		if pred.Label != tt.want {
			t.Errorf("p=%v: label = %s, want %s", tt.p, pred.Label, tt.want)
		}
	}
}

func TestDecide(t *testing.T) {
	if Decide(0.7, 0.7) != LabelReal {
		t.Error("p == threshold must be Real")
	}
	if Decide(0.69, 0.7) != LabelDeepFake {
		t.Error("p < threshold must be DeepFake")
	}
	if LabelDeepFake.Display() != "DeepFake AI Voice" {
		t.Errorf("display = %q", LabelDeepFake.Display())
	}
}

func TestUnsupportedFormatSkipsDecoding(t *testing.T) {
	clf := &fakeClassifier{out: []float32{0.9}}
	svc := newTestService(t, clf)

	_, err := svc.Classify(context.Background(), []byte("ID3 not really mp3"), "clip.mp3")
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
	if !IsClientError(err) || Kind(err) != KindUnsupportedFormat {
		t.Errorf("kind = %s", Kind(err))
	}
	if clf.calls != 0 {
		t.Error("classifier should not run")
	}
}

func TestDefaultFormatsRejectWAV(t *testing.T) {
	svc, err := NewService(
		WithLogger(logger.Discard()),
		WithLoader(staticLoader(&fakeClassifier{out: []float32{0.9}})),
	)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	defer svc.Close()

	_, err = svc.Classify(context.Background(), testaudio.SineWAV(t, 0.2, 16000, 440), "clip.wav")
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestDefaultFormatsAcceptFLAC(t *testing.T) {
	clf := &fakeClassifier{out: []float32{0.73}}
	svc, err := NewService(
		WithLogger(logger.Discard()),
		WithLoader(staticLoader(clf)),
	)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	defer svc.Close()

	n := testaudio.Seconds(1.2, 44100)
	left := testaudio.Sine(n, 44100, 220, 0.5)
	right := testaudio.Sine(n, 44100, 330, 0.4)
	clip := testaudio.FLAC(t, [][]float64{left, right}, 44100, 16)

	pred, err := svc.Classify(context.Background(), clip, "speaker.flac")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if pred.Display != "Real Human Voice" || pred.Frames != 38 {
		t.Errorf("got %q with %d frames", pred.Display, pred.Frames)
	}
	if clf.calls != 1 {
		t.Errorf("classifier ran %d times", clf.calls)
	}
}

func TestEmptyAndUndecodableAudio(t *testing.T) {
	svc := newTestService(t, &fakeClassifier{out: []float32{0.9}})
	ctx := context.Background()

	_, err := svc.Classify(ctx, nil, "empty.flac")
	if !errors.Is(err, ErrEmptyAudio) {
		t.Errorf("empty: got %v", err)
	}

	_, err = svc.Classify(ctx, []byte("garbage bytes"), "broken.flac")
	if !errors.Is(err, ErrDecode) {
		t.Errorf("garbage: got %v", err)
	}
	if !IsClientError(err) {
		t.Error("decode failures are client errors")
	}
}

func TestModelUnavailableThenReload(t *testing.T) {
	clf := &fakeClassifier{out: []float32{0.3}}
	fail := true
	loader := func(context.Context) (model.Classifier, error) {
		if fail {
			return nil, errors.New("model file missing")
		}
		return clf, nil
	}

	svc, err := NewService(
		WithLogger(logger.Discard()),
		WithLoader(loader),
		WithAllowedFormats(".wav"),
	)
	if err != nil {
		t.Fatalf("service must start without a model: %v", err)
	}
	defer svc.Close()

	if svc.ModelStatus().Loaded {
		t.Fatal("status should report not loaded")
	}

	clip := testaudio.SineWAV(t, 0.5, 16000, 300)
	for i := 0; i < 2; i++ {
		_, err := svc.Classify(context.Background(), clip, "clip.wav")
		if !errors.Is(err, ErrModelUnavailable) {
			t.Fatalf("call %d: expected ErrModelUnavailable, got %v", i, err)
		}
		if IsClientError(err) {
			t.Error("model unavailability is a server error")
		}
	}

	fail = false
	if err := svc.LoadModel(context.Background()); err != nil {
		t.Fatalf("LoadModel retry: %v", err)
	}
	st := svc.ModelStatus()
	if !st.Loaded || st.Error != "" {
		t.Errorf("status after reload = %+v", st)
	}

	pred, err := svc.Classify(context.Background(), clip, "clip.wav")
	if err != nil {
		t.Fatalf("Classify after reload: %v", err)
	}
	if pred.Label != LabelDeepFake {
		t.Errorf("label = %s", pred.Label)
	}
}

func TestClassifyDeterministic(t *testing.T) {
	clf := &fakeClassifier{out: []float32{0.6}}
	svc := newTestService(t, clf)
	clip := testaudio.SineWAV(t, 2, 22050, 500)

	if _, err := svc.Classify(context.Background(), clip, "a.wav"); err != nil {
		t.Fatal(err)
	}
	first := append([]float32(nil), clf.last.Data...)
	if _, err := svc.Classify(context.Background(), clip, "a.wav"); err != nil {
		t.Fatal(err)
	}
	for i := range first {
		if first[i] != clf.last.Data[i] {
			t.Fatalf("input differs at %d", i)
		}
	}
}

func TestInferenceFailures(t *testing.T) {
	tests := []struct {
		name string
		clf  *fakeClassifier
	}{
		{"panic", &fakeClassifier{panics: true}},
		{"error", &fakeClassifier{err: errors.New("session closed")}},
		{"empty output", &fakeClassifier{out: []float32{}}},
		{"above one", &fakeClassifier{out: []float32{1.5}}},
		{"negative", &fakeClassifier{out: []float32{-0.1}}},
		{"wrong input shape", &fakeClassifier{out: []float32{0.5}, shape: []int64{1, 40, 80, 1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t, tt.clf)
			_, err := svc.ClassifyFeatures(context.Background(), features.NewMatrix(40, 100), "m")
			if !errors.Is(err, ErrInference) {
				t.Fatalf("expected ErrInference, got %v", err)
			}
			if IsClientError(err) {
				t.Error("inference failures are server errors")
			}
		})
	}
}

func TestInferenceErrorKeepsCause(t *testing.T) {
	cause := errors.New("session closed")
	svc := newTestService(t, &fakeClassifier{err: cause})
	_, err := svc.ClassifyFeatures(context.Background(), features.NewMatrix(40, 100), "m")
	if !errors.Is(err, cause) {
		t.Errorf("cause lost: %v", err)
	}
}

func TestTwoUnitOutputReadsFirst(t *testing.T) {
	svc := newTestService(t, &fakeClassifier{out: []float32{0.7, 0.3}})
	pred, err := svc.ClassifyFeatures(context.Background(), features.NewMatrix(40, 100), "m")
	if err != nil {
		t.Fatal(err)
	}
	if pred.Probability < 0.69 || pred.Probability > 0.71 {
		t.Errorf("probability = %f, want unit 0", pred.Probability)
	}
}

func TestClassifyFeaturesRejectsBadShape(t *testing.T) {
	svc := newTestService(t, &fakeClassifier{out: []float32{0.5}})
	_, err := svc.ClassifyFeatures(context.Background(), features.NewMatrix(40, 90), "m")
	if !errors.Is(err, ErrInvalidFeatures) {
		t.Fatalf("expected ErrInvalidFeatures, got %v", err)
	}
	if Kind(err) != KindInvalidFeatures {
		t.Errorf("kind = %s", Kind(err))
	}
}

func TestInvalidThreshold(t *testing.T) {
	for _, th := range []float64{-0.1, 1.01} {
		_, err := NewService(
			WithLogger(logger.Discard()),
			WithLoader(staticLoader(&fakeClassifier{})),
			WithThreshold(th),
		)
		if !errors.Is(err, ErrInvalidThreshold) {
			t.Errorf("threshold %v: got %v", th, err)
		}
	}
}

func TestLedgerRecordsPredictions(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ledger.sqlite3")
	svc := newTestService(t, &fakeClassifier{out: []float32{0.9}}, WithDBPath(dbPath))
	ctx := context.Background()

	clip := testaudio.SineWAV(t, 0.5, 16000, 300)
	pred, err := svc.Classify(ctx, clip, "one.wav")
	if err != nil {
		t.Fatal(err)
	}
	if pred.ID == "" {
		t.Error("ledger ID not propagated")
	}
	if _, err := svc.ClassifyFeatures(ctx, features.NewMatrix(40, 100), "two"); err != nil {
		t.Fatal(err)
	}

	st, err := svc.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Total != 2 || st.Real != 2 {
		t.Errorf("stats = %+v", st)
	}

	recent, err := svc.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("recent = %d rows", len(recent))
	}
}

type failingLedger struct{ nopLedger }

func (failingLedger) Record(context.Context, *Record) error { return errors.New("disk full") }

func TestLedgerFailureDoesNotFailClassification(t *testing.T) {
	svc := newTestService(t, &fakeClassifier{out: []float32{0.2}}, WithLedger(failingLedger{}))
	pred, err := svc.ClassifyFeatures(context.Background(), features.NewMatrix(40, 100), "m")
	if err != nil {
		t.Fatalf("ledger failure leaked: %v", err)
	}
	if pred.Label != LabelDeepFake {
		t.Errorf("label = %s", pred.Label)
	}
}

func TestCloseReleasesClassifier(t *testing.T) {
	clf := &fakeClassifier{out: []float32{0.5}}
	svc, err := NewService(WithLogger(logger.Discard()), WithLoader(staticLoader(clf)))
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !clf.closed {
		t.Error("classifier not closed")
	}
}

// meanClassifier scores a tensor by its mean so different clips get
// different, repeatable probabilities.
type meanClassifier struct{}

func (meanClassifier) Infer(_ context.Context, in model.Tensor) ([]float32, error) {
	var sum float64
	for _, v := range in.Data {
		sum += float64(v)
	}
	mean := sum / float64(len(in.Data))
	return []float32{float32(0.5 + 0.5*math.Tanh(mean/500))}, nil
}
func (meanClassifier) InputShape() []int64 { return []int64{-1, 40, 100, 1} }
func (meanClassifier) Close() error        { return nil }

func TestClassifyConcurrent(t *testing.T) {
	svc := newTestService(t, meanClassifier{})

	type clip struct {
		name string
		data []byte
	}
	clips := []clip{
		{"a.wav", testaudio.SineWAV(t, 1.2, 44100, 220)},
		{"b.wav", testaudio.SineWAV(t, 0.8, 48000, 440)},
		{"c.wav", testaudio.SineWAV(t, 2, 8000, 300)},
		{"d.flac", testaudio.SineFLAC(t, 3.5, 22050, 180)},
	}

	want := make([]*Prediction, len(clips))
	for i, c := range clips {
		pred, err := svc.Classify(context.Background(), c.data, c.name)
		if err != nil {
			t.Fatalf("%s: %v", c.name, err)
		}
		want[i] = pred
	}

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			i := w % len(clips)
			pred, err := svc.Classify(context.Background(), clips[i].data, clips[i].name)
			if err != nil {
				errs <- fmt.Errorf("%s: %w", clips[i].name, err)
				return
			}
			if pred.Probability != want[i].Probability || pred.Frames != want[i].Frames || pred.Label != want[i].Label {
				errs <- fmt.Errorf("%s: got p=%f frames=%d, want p=%f frames=%d",
					clips[i].name, pred.Probability, pred.Frames, want[i].Probability, want[i].Frames)
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
