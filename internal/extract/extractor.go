// Package extract converts free-form voice transcripts into typed candidate
// records via an LLM backend.
//
// The model's output is a closed tagged-variant set (job_update,
// inventory_adjustment, followup_create) with per-field confidence, never an
// open-ended dictionary. Extraction is best-effort and non-authoritative:
// candidates below the confidence threshold are flagged downstream rather
// than silently dropped, and the extractor never writes to persisted state.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fieldops-ai/fieldops/pkg/provider/llm"
)

// ErrExtractionTimeout is returned when the context deadline expires before
// the model responds.
var ErrExtractionTimeout = errors.New("extraction timed out")

const (
	defaultTemperature = 0.0
	defaultMaxTokens   = 1024
)

// systemPrompt instructs the model to emit candidate records as strict JSON.
const systemPrompt = `You are an AI assistant for FieldOps AI, a field service management system.
Your job is to extract structured records from voice transcripts of field service workers.

A transcript may yield zero, one, or many candidate records. Each record is one of three kinds:

1. "job_update" — work performed on a job. Payload "job_update":
   - customer_hint: customer or job name mentioned (string)
   - create: boolean; true when the transcript reports work done for a customer (a new job log),
     false only when it clearly refers back to a job already being tracked
   - job_type: type of work (plumbing, electrical, HVAC, painting, carpentry, general maintenance, etc.)
   - description: what was done
   - status: "open", "in_progress", "completed", or "cancelled" if a state change is implied
   - labor_hours: hours worked (number)
   Omit any field that is not mentioned. Always attempt to infer job_type from context.

2. "inventory_adjustment" — materials used or restocked. Payload "inventory_adjustment":
   - item_hint: material name (string)
   - delta: signed integer quantity; usage is NEGATIVE ("used two filters" means -2), restock positive
   - unit: unit of measurement, default "piece"

3. "followup_create" — a reminder or scheduled return visit. Payload "followup_create":
   - job_hint: customer or job name if mentioned
   - description: why the follow-up is needed
   - due_date: the date expression exactly as spoken ("2026-09-15", "6 months", "next week", "Friday")

Each record carries:
   - kind: one of the three kind strings
   - confidence: your confidence in this record, 0.0 to 1.0
   - field_confidence: optional object of per-field scores

Respond ONLY with valid JSON of the form:
{"candidates": [...], "unmatched_text": "..."}

unmatched_text holds any transcript portion not mapped to a record; use the
whole transcript when no records were found. Do not include markdown
formatting or extra text.`

// Option is a functional option for Extractor.
type Option func(*Extractor)

// WithTemperature overrides the sampling temperature. Defaults to 0 for
// deterministic extraction.
func WithTemperature(t float64) Option {
	return func(e *Extractor) {
		e.temperature = t
	}
}

// WithMaxTokens caps the completion length. Defaults to 1024.
func WithMaxTokens(n int) Option {
	return func(e *Extractor) {
		e.maxTokens = n
	}
}

// WithClock replaces the time source used to resolve relative due dates.
// For tests.
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) {
		e.now = now
	}
}

// Extractor turns transcripts into candidate records. Safe for concurrent
// use.
type Extractor struct {
	provider    llm.Provider
	temperature float64
	maxTokens   int
	now         func() time.Time
}

// New creates an Extractor backed by the given LLM provider.
func New(provider llm.Provider, opts ...Option) (*Extractor, error) {
	if provider == nil {
		return nil, errors.New("extract: provider must not be nil")
	}
	e := &Extractor{
		provider:    provider,
		temperature: defaultTemperature,
		maxTokens:   defaultMaxTokens,
		now:         time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Extract runs one extraction pass over transcript. An empty transcript
// yields an empty Result without calling the model.
//
// Returns [ErrExtractionTimeout] when ctx expires before the model responds.
func (e *Extractor) Extract(ctx context.Context, transcript string) (Result, error) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return Result{}, nil
	}

	resp, err := e.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages: []llm.Message{{
			Role:    "user",
			Content: fmt.Sprintf("Extract field records from this transcript and return ONLY JSON:\n\n%q", transcript),
		}},
		Temperature: e.temperature,
		MaxTokens:   e.maxTokens,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Result{}, fmt.Errorf("extract: %w: %v", ErrExtractionTimeout, err)
		}
		return Result{}, fmt.Errorf("extract: completion: %w", err)
	}

	var decoded struct {
		Candidates    []CandidateRecord `json:"candidates"`
		UnmatchedText string            `json:"unmatched_text"`
	}
	content := stripFences(resp.Content)
	if err := json.Unmarshal([]byte(content), &decoded); err != nil {
		return Result{}, fmt.Errorf("extract: parse model output: %w", err)
	}

	res := Result{UnmatchedText: strings.TrimSpace(decoded.UnmatchedText)}
	now := e.now()
	for _, c := range decoded.Candidates {
		if err := c.Validate(); err != nil {
			slog.Warn("dropping malformed candidate record", "error", err)
			continue
		}
		if c.Kind == KindFollowUpCreate {
			c.FollowUpCreate.DueBy = ParseDueDate(c.FollowUpCreate.DueDate, now)
		}
		res.Candidates = append(res.Candidates, c)
	}

	if len(res.Candidates) == 0 && res.UnmatchedText == "" {
		res.UnmatchedText = transcript
	}
	return res, nil
}

// stripFences removes markdown code fences some models wrap around JSON
// output despite instructions.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if after, ok := strings.CutPrefix(s, "```json"); ok {
		s = after
	} else if after, ok := strings.CutPrefix(s, "```"); ok {
		s = after
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
