package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"

	"github.com/himanishpuri/VoxGuard/pkg/logger"
	"github.com/himanishpuri/VoxGuard/pkg/utils"
	"github.com/himanishpuri/VoxGuard/pkg/voxguard"
	"github.com/himanishpuri/VoxGuard/pkg/voxguard/features"
	"github.com/himanishpuri/VoxGuard/pkg/voxguard/history"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// Server encapsulates the HTTP server and its dependencies
type Server struct {
	service  voxguard.Service
	sessions *history.Manager
	config   *ServerConfig
	log      voxguard.Logger
	httpLog  voxguard.Logger // request lines, tagged [http]
	started  time.Time
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	DBPath         string
	AllowedOrigins []string
	AllowedFormats []string
	MaxUploadBytes int64
	RequestTimeout time.Duration
	SweepInterval  time.Duration
}

// NewServer creates a new server instance
func NewServer(service voxguard.Service, sessions *history.Manager, config *ServerConfig, log voxguard.Logger) *Server {
	if log == nil {
		log = logger.GetLogger()
	}
	httpLog := log
	if l, ok := log.(*logger.Logger); ok {
		httpLog = l.With("[http]")
	}
	return &Server{
		service:  service,
		sessions: sessions,
		config:   config,
		log:      log,
		httpLog:  httpLog,
		started:  time.Now(),
	}
}

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Errorf("Failed to encode JSON response: %v", err)
	}
}

// respondError writes an error response
func (s *Server) respondError(w http.ResponseWriter, statusCode int, message string) {
	class := "client"
	if statusCode >= 500 {
		class = "server"
	}
	s.respondJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
		Class:   class,
	})
}

// statusFor maps a service error to its HTTP status.
func statusFor(err error) int {
	switch voxguard.Kind(err) {
	case voxguard.KindUnsupportedFormat:
		return http.StatusUnsupportedMediaType
	case voxguard.KindDecode, voxguard.KindEmptyAudio, voxguard.KindInvalidFeatures:
		return http.StatusUnprocessableEntity
	case voxguard.KindModelUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondServiceError reports a failed classification.
func (s *Server) respondServiceError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	class := "client"
	if !voxguard.IsClientError(err) {
		class = "server"
		s.log.Errorf("Classification failed: %v", err)
	} else {
		s.log.Warnf("Rejected input: %v", err)
	}
	s.respondJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: err.Error(),
		Code:    status,
		Kind:    voxguard.Kind(err),
		Class:   class,
	})
}

// handleRoot handles GET /
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{
		"service": "VoxGuard API",
		"version": version,
		"endpoints": map[string]string{
			"health":          "GET /health",
			"metrics":         "GET /api/health/metrics",
			"predict":         "POST /api/predict",
			"predictLegacy":   "POST /predict/",
			"predictFeatures": "POST /api/predict/features",
			"predictions":     "GET /api/predictions",
			"createSession":   "POST /api/sessions",
			"history":         "GET /api/sessions/{sid}/history",
			"deleteEntry":     "DELETE /api/sessions/{sid}/history/{id}",
			"endSession":      "DELETE /api/sessions/{sid}",
		},
	})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.service.ModelStatus()
	status := "healthy"
	if !st.Loaded {
		status = "degraded"
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"status": status,
		"time":   time.Now().Format(time.RFC3339),
		"model":  st,
	})
}

// handleMetrics handles GET /api/health/metrics
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.Stats(r.Context())
	if err != nil {
		s.log.Errorf("Failed to read ledger stats: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve metrics")
		return
	}

	st := s.service.ModelStatus()
	status := "healthy"
	if !st.Loaded {
		status = "degraded"
	}
	s.respondJSON(w, http.StatusOK, MetricsResponse{
		Status:         status,
		Model:          st,
		Stats:          stats,
		Threshold:      s.service.Threshold(),
		AllowedFormats: s.config.AllowedFormats,
		MaxUpload:      humanize.IBytes(uint64(s.config.MaxUploadBytes)),
		DatabasePath:   s.config.DBPath,
		Sessions:       s.sessions.Len(),
		Uptime:         time.Since(s.started).Round(time.Second).String(),
	})
}

// handlePredict handles POST /api/predict and POST /predict/ (multipart upload)
func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	// Parse multipart form (bounded by MaxUploadBytes)
	if s.config.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			s.respondError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("Upload exceeds %s", humanize.IBytes(uint64(tooBig.Limit))))
			return
		}
		s.log.Errorf("Failed to parse form: %v", err)
		s.respondError(w, http.StatusBadRequest, "Failed to parse form data")
		return
	}
	defer r.MultipartForm.RemoveAll()

	// Get uploaded file
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer file.Close()

	// Resolve session from form field or header
	var store *history.Store
	sessionID := r.FormValue("session_id")
	if sessionID == "" {
		sessionID = r.Header.Get("X-Session-ID")
	}
	if sessionID != "" {
		st, ok := s.sessions.GetOrCreate(sessionID)
		if !ok {
			s.respondError(w, http.StatusBadRequest, fmt.Sprintf("Invalid session ID %q", sessionID))
			return
		}
		store = st
	}

	data, err := utils.ReadLimited(file, s.config.MaxUploadBytes)
	if err != nil {
		s.respondError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}

	s.log.Infof("Upload %s (%s)", header.Filename, humanize.Bytes(uint64(len(data))))

	// Classify
	pred, err := s.service.Classify(ctx, data, header.Filename)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	// Record in session history
	resp := newPredictResponse(pred)
	if store != nil {
		entry := store.Append(history.Entry{
			Filename:    header.Filename,
			Prediction:  pred.Display,
			Probability: pred.Probability,
			Audio:       data,
			Waveform:    s.optionalPart(r, "waveform"),
		})
		resp.SessionID = sessionID
		resp.EntryID = entry.ID
	}

	s.respondJSON(w, http.StatusOK, resp)
}

// optionalPart reads a small optional multipart file, returning nil when
// it is absent or unreadable.
func (s *Server) optionalPart(r *http.Request, field string) []byte {
	f, _, err := r.FormFile(field)
	if err != nil {
		if !errors.Is(err, http.ErrMissingFile) {
			s.log.Warnf("Ignoring %s part: %v", field, err)
		}
		return nil
	}
	defer f.Close()
	data, err := utils.ReadLimited(f, s.config.MaxUploadBytes)
	if err != nil {
		s.log.Warnf("Ignoring %s part: %v", field, err)
		return nil
	}
	return data
}

// handlePredictFeatures handles POST /api/predict/features
func (s *Server) handlePredictFeatures(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	// Decode request
	var req FeaturesRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, s.bodyLimit()))
	if err := dec.Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %v", err))
		return
	}
	// Validate request
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Classify matrix
	m := &features.Matrix{Rows: req.Rows, Cols: req.Cols, Data: req.Data, Computed: req.Computed}
	name := req.Filename
	if name == "" {
		name = "features"
	}
	pred, err := s.service.ClassifyFeatures(ctx, m, name)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, newPredictResponse(pred))
}

// handlePredictions handles GET /api/predictions?limit=N
func (s *Server) handlePredictions(w http.ResponseWriter, r *http.Request) {
	// Parse limit
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			s.respondError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	recs, err := s.service.Recent(r.Context(), limit)
	if err != nil {
		s.log.Errorf("Failed to list predictions: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve predictions")
		return
	}
	if recs == nil {
		recs = []voxguard.Record{}
	}
	s.respondJSON(w, http.StatusOK, PredictionsResponse{Predictions: recs, Count: len(recs)})
}

// handleCreateSession handles POST /api/sessions
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	id := s.sessions.Create()
	s.log.Debugf("Session %s created", id)
	s.respondJSON(w, http.StatusCreated, SessionResponse{SessionID: id})
}

// handleHistory handles GET /api/sessions/{sid}/history
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "sid")
	store, ok := s.sessions.Get(sid)
	if !ok {
		s.respondError(w, http.StatusNotFound, fmt.Sprintf("Session %s not found", sid))
		return
	}

	// Convert to DTOs
	entries := store.List()
	dtos := make([]HistoryEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = newHistoryEntryDTO(e)
	}
	s.respondJSON(w, http.StatusOK, HistoryResponse{SessionID: sid, Entries: dtos, Count: len(dtos)})
}

// handleDeleteEntry handles DELETE /api/sessions/{sid}/history/{id}
func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "sid")
	id := chi.URLParam(r, "id")

	store, ok := s.sessions.Get(sid)
	if !ok {
		s.respondError(w, http.StatusNotFound, fmt.Sprintf("Session %s not found", sid))
		return
	}
	if !store.Delete(id) {
		s.respondError(w, http.StatusNotFound, fmt.Sprintf("Entry %s not found", id))
		return
	}
	s.respondJSON(w, http.StatusOK, DeleteResponse{Message: "Entry deleted", ID: id})
}

// handleEndSession handles DELETE /api/sessions/{sid}
func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "sid")
	if !s.sessions.Drop(sid) {
		s.respondError(w, http.StatusNotFound, fmt.Sprintf("Session %s not found", sid))
		return
	}
	s.respondJSON(w, http.StatusOK, DeleteResponse{Message: "Session ended", ID: sid})
}

func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	if s.config.RequestTimeout > 0 {
		return context.WithTimeout(r.Context(), s.config.RequestTimeout)
	}
	return context.WithCancel(r.Context())
}

// bodyLimit caps JSON bodies. A [40,100] matrix is well under 1 MiB.
func (s *Server) bodyLimit() int64 {
	if s.config.MaxUploadBytes > 0 {
		return s.config.MaxUploadBytes
	}
	return 8 << 20
}
