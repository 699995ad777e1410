package voxguard

import "time"

// Label is the binary verdict.
type Label string

const (
	LabelReal     Label = "Real"
	LabelDeepFake Label = "DeepFake"
)

// Display returns the user-facing wording.
func (l Label) Display() string {
	if l == LabelReal {
		return "Real Human Voice"
	}
	return "DeepFake AI Voice"
}

// Decide applies the threshold policy: p >= threshold is Real.
func Decide(p, threshold float64) Label {
	if p >= threshold {
		return LabelReal
	}
	return LabelDeepFake
}

// Prediction is the outcome of one classification.
type Prediction struct {
	ID          string        `json:"id,omitempty"`
	Label       Label         `json:"label"`
	Display     string        `json:"prediction"`
	Probability float64       `json:"probability"` // P(real human voice)
	Threshold   float64       `json:"threshold"`
	Filename    string        `json:"filename,omitempty"`
	Frames      int           `json:"frames"`
	Duration    time.Duration `json:"duration_ns,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

type ModelStatus struct {
	Loaded     bool      `json:"loaded"`
	Path       string    `json:"path"`
	Error      string    `json:"error,omitempty"`
	InputShape []int64   `json:"input_shape,omitempty"`
	LoadedAt   time.Time `json:"loaded_at,omitempty"`
}

// Record is a ledger row.
type Record struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	Source      string    `json:"source"`
	Label       Label     `json:"label"`
	Probability float64   `json:"probability"`
	Threshold   float64   `json:"threshold"`
	Frames      int       `json:"frames"`
	DurationMs  int64     `json:"duration_ms"`
	CreatedAt   time.Time `json:"created_at"`
}

// Record sources.
const (
	SourceUpload   = "upload"
	SourceFeatures = "features"
)

type Stats struct {
	Total          int64      `json:"total"`
	Real           int64      `json:"real"`
	DeepFake       int64      `json:"deepfake"`
	AvgProbability float64    `json:"avg_probability"`
	Last           *time.Time `json:"last,omitempty"`
}
