// Package intake orchestrates one voice submission through the pipeline:
// transcription, candidate extraction, reconciliation, and the immutable
// audit record.
//
// The two external model calls run under explicit per-stage timeouts. On
// timeout the intake is marked rejected rather than left pending; there is
// no automatic retry, since retrying a slow external model compounds
// latency. The caller may resubmit.
package intake

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fieldops-ai/fieldops/internal/extract"
	"github.com/fieldops-ai/fieldops/internal/fieldops"
	"github.com/fieldops-ai/fieldops/internal/observe"
	"github.com/fieldops-ai/fieldops/internal/reconcile"
	"github.com/fieldops-ai/fieldops/internal/store"
	"github.com/fieldops-ai/fieldops/pkg/provider/stt"
)

// Rejection reasons recorded when a pipeline stage times out.
const (
	ReasonTranscriptionTimeout = "transcription_timeout"
	ReasonExtractionTimeout    = "extraction_timeout"
)

// Extractor converts a transcript into candidate records.
type Extractor interface {
	Extract(ctx context.Context, transcript string) (extract.Result, error)
}

// Reconciler merges a candidate batch into persisted state.
type Reconciler interface {
	Reconcile(ctx context.Context, candidates []extract.CandidateRecord) (reconcile.Result, error)
}

// Result summarises one handled voice intake for the caller.
type Result struct {
	// Intake is the audit record as persisted.
	Intake fieldops.VoiceIntake

	// Transcript is the recognised speech content.
	Transcript string

	// Applied, Flagged, and Rejected count the candidate outcomes.
	Applied  int
	Flagged  int
	Rejected int

	// Reasons lists rejection reasons, including stage timeouts.
	Reasons []string
}

// Service runs the voice intake pipeline. Safe for concurrent use;
// concurrent intakes for different entities proceed independently.
type Service struct {
	stt                  stt.Provider
	extractor            Extractor
	reconciler           Reconciler
	store                store.Store
	transcriptionTimeout time.Duration
	extractionTimeout    time.Duration
	metrics              *observe.Metrics
}

// Config carries the Service dependencies and per-stage timeouts.
type Config struct {
	STT        stt.Provider
	Extractor  Extractor
	Reconciler Reconciler
	Store      store.Store

	// TranscriptionTimeout and ExtractionTimeout bound the two external
	// model calls. Both must be positive.
	TranscriptionTimeout time.Duration
	ExtractionTimeout    time.Duration

	// Metrics is optional; nil falls back to [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// NewService validates cfg and creates a Service.
func NewService(cfg Config) (*Service, error) {
	if cfg.STT == nil {
		return nil, errors.New("intake: STT provider must not be nil")
	}
	if cfg.Extractor == nil {
		return nil, errors.New("intake: extractor must not be nil")
	}
	if cfg.Reconciler == nil {
		return nil, errors.New("intake: reconciler must not be nil")
	}
	if cfg.Store == nil {
		return nil, errors.New("intake: store must not be nil")
	}
	if cfg.TranscriptionTimeout <= 0 || cfg.ExtractionTimeout <= 0 {
		return nil, fmt.Errorf("intake: stage timeouts must be positive, got %v/%v",
			cfg.TranscriptionTimeout, cfg.ExtractionTimeout)
	}
	m := cfg.Metrics
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Service{
		stt:                  cfg.STT,
		extractor:            cfg.Extractor,
		reconciler:           cfg.Reconciler,
		store:                cfg.Store,
		transcriptionTimeout: cfg.TranscriptionTimeout,
		extractionTimeout:    cfg.ExtractionTimeout,
		metrics:              m,
	}, nil
}

// HandleVoiceIntake runs one recording through the full pipeline and writes
// the audit record.
//
// Stage timeouts reject the intake with a reason instead of returning an
// error; hard provider failures (unreachable service, unsupported format)
// are returned to the caller. Candidates already applied by the reconciler
// are never rolled back, even when the caller has gone away.
func (s *Service) HandleVoiceIntake(ctx context.Context, audio []byte, mimeType string) (*Result, error) {
	log := observe.Logger(ctx)
	start := time.Now()
	s.metrics.ActiveIntakes.Add(ctx, 1)
	defer func() {
		s.metrics.ActiveIntakes.Add(ctx, -1)
		s.metrics.IntakeDuration.Record(ctx, time.Since(start).Seconds())
	}()

	transcription, err := s.transcribe(ctx, audio, mimeType)
	if err != nil {
		if errors.Is(err, stt.ErrTimeout) {
			log.Warn("transcription timed out, intake rejected", "error", err)
			return s.rejectIntake(ctx, "", 0, ReasonTranscriptionTimeout)
		}
		return nil, err
	}

	if transcription.Empty() {
		// Silence is not an error, but nothing can be applied from it.
		log.Info("intake contained no speech")
		return s.rejectIntake(ctx, "", 0, "")
	}

	extraction, err := s.extractCandidates(ctx, transcription.Transcript)
	if err != nil {
		if errors.Is(err, extract.ErrExtractionTimeout) {
			log.Warn("extraction timed out, intake rejected", "error", err)
			return s.rejectIntake(ctx, transcription.Transcript, 0, ReasonExtractionTimeout)
		}
		return nil, err
	}

	reconcileStart := time.Now()
	reconcileCtx, span := observe.StageSpan(ctx, "reconcile")
	recRes, err := s.reconciler.Reconcile(reconcileCtx, extraction.Candidates)
	span.End()
	if err != nil {
		return nil, fmt.Errorf("intake: reconcile: %w", err)
	}
	s.metrics.ReconcileDuration.Record(ctx, time.Since(reconcileStart).Seconds())
	s.recordOutcomes(ctx, recRes)

	result := &Result{
		Transcript: transcription.Transcript,
		Applied:    len(recRes.Applied),
		Flagged:    len(recRes.Flagged),
		Rejected:   len(recRes.Rejected),
	}
	for _, o := range recRes.Rejected {
		result.Reasons = append(result.Reasons, o.Err.Error())
	}

	intake := fieldops.VoiceIntake{
		Transcript:  transcription.Transcript,
		Confidence:  batchConfidence(extraction.Candidates),
		TouchedIDs:  recRes.TouchedIDs(),
		Disposition: recRes.Disposition(),
	}
	if err := s.store.CreateIntake(ctx, &intake); err != nil {
		return nil, fmt.Errorf("intake: write audit record: %w", err)
	}
	result.Intake = intake
	s.metrics.RecordIntake(ctx, string(intake.Disposition))

	log.Info("voice intake processed",
		"intake_id", intake.ID,
		"disposition", intake.Disposition,
		"applied", result.Applied,
		"flagged", result.Flagged,
		"rejected", result.Rejected,
	)
	return result, nil
}

// transcribe runs the STT stage under its timeout.
func (s *Service) transcribe(ctx context.Context, audio []byte, mimeType string) (stt.Result, error) {
	stageCtx, cancel := context.WithTimeout(ctx, s.transcriptionTimeout)
	defer cancel()
	stageCtx, span := observe.StageSpan(stageCtx, "transcription")
	defer span.End()

	stageStart := time.Now()
	res, err := s.stt.Transcribe(stageCtx, audio, mimeType)
	s.metrics.TranscriptionDuration.Record(ctx, time.Since(stageStart).Seconds())
	if err != nil {
		s.metrics.RecordProviderError(ctx, "stt", errorKind(err))
		return stt.Result{}, fmt.Errorf("intake: transcribe: %w", err)
	}
	return res, nil
}

// extractCandidates runs the LLM stage under its timeout.
func (s *Service) extractCandidates(ctx context.Context, transcript string) (extract.Result, error) {
	stageCtx, cancel := context.WithTimeout(ctx, s.extractionTimeout)
	defer cancel()
	stageCtx, span := observe.StageSpan(stageCtx, "extraction")
	defer span.End()

	stageStart := time.Now()
	res, err := s.extractor.Extract(stageCtx, transcript)
	s.metrics.ExtractionDuration.Record(ctx, time.Since(stageStart).Seconds())
	if err != nil {
		s.metrics.RecordProviderError(ctx, "llm", errorKind(err))
		return extract.Result{}, fmt.Errorf("intake: extract: %w", err)
	}
	return res, nil
}

// rejectIntake records an intake that never reached reconciliation.
func (s *Service) rejectIntake(ctx context.Context, transcript string, confidence float64, reason string) (*Result, error) {
	intake := fieldops.VoiceIntake{
		Transcript:  transcript,
		Confidence:  confidence,
		Disposition: fieldops.DispositionRejected,
	}
	if err := s.store.CreateIntake(ctx, &intake); err != nil {
		return nil, fmt.Errorf("intake: write audit record: %w", err)
	}
	s.metrics.RecordIntake(ctx, string(intake.Disposition))

	res := &Result{Intake: intake, Transcript: transcript}
	if reason != "" {
		res.Reasons = []string{reason}
	}
	return res, nil
}

// recordOutcomes emits per-candidate outcome counters.
func (s *Service) recordOutcomes(ctx context.Context, res reconcile.Result) {
	for _, o := range res.Applied {
		s.metrics.RecordCandidateOutcome(ctx, string(o.Candidate.Kind), "applied")
	}
	for _, o := range res.Flagged {
		s.metrics.RecordCandidateOutcome(ctx, string(o.Candidate.Kind), "flagged")
	}
	for _, o := range res.Rejected {
		s.metrics.RecordCandidateOutcome(ctx, string(o.Candidate.Kind), "rejected")
	}
}

// batchConfidence is the mean candidate confidence, 0 for an empty batch.
func batchConfidence(candidates []extract.CandidateRecord) float64 {
	if len(candidates) == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range candidates {
		sum += c.Confidence
	}
	return sum / float64(len(candidates))
}

// errorKind classifies a provider error for the error counter.
func errorKind(err error) string {
	switch {
	case errors.Is(err, stt.ErrTimeout), errors.Is(err, extract.ErrExtractionTimeout):
		return "timeout"
	case errors.Is(err, stt.ErrUnsupportedFormat):
		return "unsupported_format"
	case errors.Is(err, stt.ErrUnavailable):
		return "unavailable"
	default:
		return "other"
	}
}
