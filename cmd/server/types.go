package main

import (
	"fmt"
	"time"

	"github.com/himanishpuri/VoxGuard/pkg/voxguard"
	"github.com/himanishpuri/VoxGuard/pkg/voxguard/history"
)

// PredictResponse is returned by POST /predict/ and /api/predict.
// Prediction carries the display label, the only field older clients read.
type PredictResponse struct {
	Prediction  string  `json:"prediction"`
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
	Threshold   float64 `json:"threshold"`
	Frames      int     `json:"frames"`
	DurationMs  int64   `json:"duration_ms,omitempty"`
	ID          string  `json:"id,omitempty"`
	SessionID   string  `json:"session_id,omitempty"`
	EntryID     string  `json:"entry_id,omitempty"`
}

func newPredictResponse(p *voxguard.Prediction) PredictResponse {
	return PredictResponse{
		Prediction:  p.Display,
		Label:       string(p.Label),
		Probability: p.Probability,
		Threshold:   p.Threshold,
		Frames:      p.Frames,
		DurationMs:  p.Duration.Milliseconds(),
		ID:          p.ID,
	}
}

// FeaturesRequest is the body of POST /api/predict/features, as produced by
// the WASM extractor.
type FeaturesRequest struct {
	Rows     int       `json:"rows"`
	Cols     int       `json:"cols"`
	Data     []float32 `json:"data"`
	Computed int       `json:"computed,omitempty"`
	Filename string    `json:"filename,omitempty"`
}

// Validate checks the request envelope; shape and contents are checked by
// the service.
func (r *FeaturesRequest) Validate() error {
	if len(r.Data) == 0 {
		return fmt.Errorf("data cannot be empty")
	}
	if r.Rows <= 0 || r.Cols <= 0 {
		return fmt.Errorf("rows and cols must be positive")
	}
	return nil
}

// HistoryEntryDTO is one session history item.
type HistoryEntryDTO struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	Prediction  string    `json:"prediction"`
	Probability float64   `json:"probability"`
	AudioBytes  int       `json:"audio_bytes"`
	HasWaveform bool      `json:"has_waveform"`
	CreatedAt   time.Time `json:"created_at"`
}

func newHistoryEntryDTO(e history.Entry) HistoryEntryDTO {
	return HistoryEntryDTO{
		ID:          e.ID,
		Filename:    e.Filename,
		Prediction:  e.Prediction,
		Probability: e.Probability,
		AudioBytes:  len(e.Audio),
		HasWaveform: len(e.Waveform) > 0,
		CreatedAt:   e.CreatedAt,
	}
}

type HistoryResponse struct {
	SessionID string            `json:"session_id"`
	Entries   []HistoryEntryDTO `json:"entries"`
	Count     int               `json:"count"`
}

type SessionResponse struct {
	SessionID string `json:"session_id"`
}

type DeleteResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

type PredictionsResponse struct {
	Predictions []voxguard.Record `json:"predictions"`
	Count       int               `json:"count"`
}

// MetricsResponse provides server health and ledger metrics
type MetricsResponse struct {
	Status         string               `json:"status"`
	Model          voxguard.ModelStatus `json:"model"`
	Stats          voxguard.Stats       `json:"stats"`
	Threshold      float64              `json:"threshold"`
	AllowedFormats []string             `json:"allowed_formats"`
	MaxUpload      string               `json:"max_upload"`
	DatabasePath   string               `json:"database_path,omitempty"`
	Sessions       int                  `json:"sessions"`
	Uptime         string               `json:"uptime"`
}

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Class   string `json:"class,omitempty"`
}
