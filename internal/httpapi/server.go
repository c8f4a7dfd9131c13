// Package httpapi exposes the FieldOps HTTP surface: the voice intake
// endpoint, the dashboard read projections, health probes, and the
// Prometheus metrics endpoint.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fieldops-ai/fieldops/internal/dashboard"
	"github.com/fieldops-ai/fieldops/internal/fieldops"
	"github.com/fieldops-ai/fieldops/internal/health"
	"github.com/fieldops-ai/fieldops/internal/intake"
	"github.com/fieldops-ai/fieldops/internal/observe"
	"github.com/fieldops-ai/fieldops/pkg/provider/stt"
)

// maxUploadBytes caps one voice recording upload. A minute of 16-bit
// 48 kHz stereo WAV is under 12 MiB, so this leaves generous headroom.
const maxUploadBytes = 25 << 20

// VoiceHandler runs one recording through the intake pipeline.
type VoiceHandler interface {
	HandleVoiceIntake(ctx context.Context, audio []byte, mimeType string) (*intake.Result, error)
}

// Dashboard serves the read projections.
type Dashboard interface {
	Summary(ctx context.Context) (*dashboard.Summary, error)
	Jobs(ctx context.Context) ([]dashboard.JobView, error)
	Inventory(ctx context.Context) ([]dashboard.InventoryView, error)
	FollowUps(ctx context.Context) ([]fieldops.FollowUp, error)
	Alerts(ctx context.Context) ([]fieldops.Alert, error)
}

// Config carries the Server dependencies.
type Config struct {
	Voice     VoiceHandler
	Dashboard Dashboard

	// Health is optional; nil registers a probe handler with no
	// readiness probes.
	Health *health.Handler

	// Metrics is optional; nil falls back to [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Server is the HTTP handler for the FieldOps API.
type Server struct {
	voice   VoiceHandler
	dash    Dashboard
	handler http.Handler
}

// New validates cfg, builds the route table, and wraps it in the
// observability middleware.
func New(cfg Config) (*Server, error) {
	if cfg.Voice == nil {
		return nil, errors.New("httpapi: voice handler must not be nil")
	}
	if cfg.Dashboard == nil {
		return nil, errors.New("httpapi: dashboard must not be nil")
	}
	h := cfg.Health
	if h == nil {
		h = health.New()
	}
	m := cfg.Metrics
	if m == nil {
		m = observe.DefaultMetrics()
	}

	s := &Server{voice: cfg.Voice, dash: cfg.Dashboard}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.root)
	mux.HandleFunc("POST /api/voice", s.postVoice)
	mux.HandleFunc("GET /api/dashboard/summary", s.getSummary)
	mux.HandleFunc("GET /api/dashboard/jobs", s.getJobs)
	mux.HandleFunc("GET /api/dashboard/inventory", s.getInventory)
	mux.HandleFunc("GET /api/dashboard/followups", s.getFollowUps)
	mux.HandleFunc("GET /api/dashboard/alerts", s.getAlerts)
	mux.Handle("GET /metrics", promhttp.Handler())
	h.Register(mux)

	s.handler = observe.Middleware(m)(mux)
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// root answers a small service banner so load balancers and humans get a
// 200 with identifying content instead of a 404.
func (s *Server) root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "fieldops",
		"status":  "ok",
	})
}

// voiceResponse is the structured outcome of one voice submission. It is
// returned even on partial success so the client always learns what was
// applied, flagged, and rejected.
type voiceResponse struct {
	IntakeID    string               `json:"intake_id"`
	Transcript  string               `json:"transcript"`
	Confidence  float64              `json:"confidence"`
	Disposition fieldops.Disposition `json:"disposition"`
	Applied     int                  `json:"applied"`
	Flagged     int                  `json:"flagged"`
	Rejected    int                  `json:"rejected"`
	Reasons     []string             `json:"reasons,omitempty"`
	TouchedIDs  []string             `json:"touched_ids,omitempty"`
}

func (s *Server) postVoice(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart upload: "+err.Error())
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, `multipart field "file" is required`)
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read upload: "+err.Error())
		return
	}
	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	res, err := s.voice.HandleVoiceIntake(r.Context(), audio, mimeType)
	if err != nil {
		switch {
		case errors.Is(err, stt.ErrUnsupportedFormat):
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported audio format %q", mimeType))
		case errors.Is(err, stt.ErrUnavailable):
			writeError(w, http.StatusBadGateway, "transcription service unavailable")
		default:
			observe.Logger(r.Context()).Error("voice intake failed", "error", err)
			writeError(w, http.StatusInternalServerError, "voice intake failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, voiceResponse{
		IntakeID:    res.Intake.ID,
		Transcript:  res.Transcript,
		Confidence:  res.Intake.Confidence,
		Disposition: res.Intake.Disposition,
		Applied:     res.Applied,
		Flagged:     res.Flagged,
		Rejected:    res.Rejected,
		Reasons:     res.Reasons,
		TouchedIDs:  res.Intake.TouchedIDs,
	})
}

func (s *Server) getSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.dash.Summary(r.Context())
	if err != nil {
		s.projectionError(w, r, "summary", err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) getJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.dash.Jobs(r.Context())
	if err != nil {
		s.projectionError(w, r, "jobs", err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(jobs))
}

func (s *Server) getInventory(w http.ResponseWriter, r *http.Request) {
	items, err := s.dash.Inventory(r.Context())
	if err != nil {
		s.projectionError(w, r, "inventory", err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(items))
}

func (s *Server) getFollowUps(w http.ResponseWriter, r *http.Request) {
	fus, err := s.dash.FollowUps(r.Context())
	if err != nil {
		s.projectionError(w, r, "followups", err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(fus))
}

func (s *Server) getAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.dash.Alerts(r.Context())
	if err != nil {
		s.projectionError(w, r, "alerts", err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(alerts))
}

func (s *Server) projectionError(w http.ResponseWriter, r *http.Request, name string, err error) {
	observe.Logger(r.Context()).Error("dashboard projection failed", "projection", name, "error", err)
	writeError(w, http.StatusInternalServerError, name+" unavailable")
}

// orEmpty keeps list endpoints returning [] instead of null.
func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encode response"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Serve runs srv until ctx is cancelled, then shuts it down gracefully.
func Serve(ctx context.Context, addr string, s *Server, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("httpapi: serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("httpapi: shutdown: %w", err)
	}
	return nil
}
