// Package openai provides an STT provider backed by any OpenAI-compatible
// audio transcription API. Pointing BaseURL at https://api.groq.com/openai/v1
// gives hosted whisper-large-v3 through the same code path.
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/fieldops-ai/fieldops/pkg/provider/stt"
)

// DefaultModel is the default transcription model.
const DefaultModel = oai.AudioModelWhisper1

// defaultConfidence is attached to non-empty transcripts; the transcription
// endpoint does not report a score in its default response format.
const defaultConfidence = 0.9

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// extensionByMime maps accepted upload MIME types to the file extension the
// API infers the container format from.
var extensionByMime = map[string]string{
	"audio/wav":   "audio.wav",
	"audio/x-wav": "audio.wav",
	"audio/wave":  "audio.wav",
	"audio/webm":  "audio.webm",
	"video/webm":  "audio.webm",
	"audio/ogg":   "audio.ogg",
	"audio/mpeg":  "audio.mp3",
	"audio/mp4":   "audio.m4a",
	"audio/x-m4a": "audio.m4a",
}

// Option is a functional option for Provider.
type Option func(*config)

type config struct {
	baseURL  string
	language string
}

// WithBaseURL overrides the default OpenAI API base URL. Use this to target
// Groq or any other OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithLanguage sets the ISO-639-1 language hint (e.g., "en").
func WithLanguage(lang string) Option {
	return func(c *config) {
		c.language = lang
	}
}

// Provider implements stt.Provider using an OpenAI-compatible transcription
// endpoint. Safe for concurrent use.
type Provider struct {
	client   oai.Client
	model    string
	language string
}

// New constructs a Provider. If model is empty, DefaultModel (whisper-1)
// is used.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai stt: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}

	return &Provider{
		client:   oai.NewClient(reqOpts...),
		model:    model,
		language: cfg.language,
	}, nil
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, audio []byte, mimeType string) (stt.Result, error) {
	filename, ok := extensionByMime[normalizeMime(mimeType)]
	if !ok {
		return stt.Result{}, fmt.Errorf("openai stt: mime type %q: %w", mimeType, stt.ErrUnsupportedFormat)
	}
	if len(audio) == 0 {
		return stt.Result{}, nil
	}

	params := oai.AudioTranscriptionNewParams{
		Model: p.model,
		File:  oai.File(bytes.NewReader(audio), filename, mimeType),
	}
	if p.language != "" {
		params.Language = param.NewOpt(p.language)
	}

	start := time.Now()
	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return stt.Result{}, mapError(err)
	}

	text := strings.TrimSpace(resp.Text)
	res := stt.Result{
		Transcript: text,
		Duration:   time.Since(start),
	}
	if text != "" {
		res.Confidence = defaultConfidence
	}
	return res, nil
}

// mapError translates SDK errors into the stt sentinel taxonomy.
func mapError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("openai stt: %w: %v", stt.ErrTimeout, err)
	}
	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 400, 415, 422:
			return fmt.Errorf("openai stt: %w: %v", stt.ErrUnsupportedFormat, err)
		}
	}
	return fmt.Errorf("openai stt: %w: %v", stt.ErrUnavailable, err)
}

// normalizeMime strips parameters ("audio/webm;codecs=opus" → "audio/webm")
// and lower-cases the type.
func normalizeMime(mimeType string) string {
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}
