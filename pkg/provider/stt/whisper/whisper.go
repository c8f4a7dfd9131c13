// Package whisper provides a local whisper.cpp-backed STT provider.
//
// It connects to a running whisper-server binary (which exposes a REST API
// at POST /inference) and submits the uploaded recording as a single batch
// inference request. whisper.cpp accepts WAV input directly; other container
// formats supported by the server build (webm/ogg/mp3) are forwarded as-is
// and decoded server-side.
//
// Whisper models are known to hallucinate filler phrases ("thank you",
// "thanks for watching") on silent or near-silent recordings. The provider
// filters these: a transcript consisting solely of a known hallucination is
// reported as an empty result rather than as speech.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8178",
//	    whisper.WithLanguage("en"),
//	)
//	res, err := p.Transcribe(ctx, wavBytes, "audio/wav")
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/fieldops-ai/fieldops/pkg/provider/stt"
)

const (
	defaultLanguage   = "en"
	defaultConfidence = 0.9
)

// supportedMimeTypes lists the container formats whisper-server can decode.
var supportedMimeTypes = map[string]string{
	"audio/wav":   ".wav",
	"audio/x-wav": ".wav",
	"audio/wave":  ".wav",
	"audio/webm":  ".webm",
	"video/webm":  ".webm",
	"audio/ogg":   ".ogg",
	"audio/mpeg":  ".mp3",
	"audio/mp4":   ".m4a",
	"audio/x-m4a": ".m4a",
}

// hallucinations are transcripts whisper emits for silent or near-silent
// audio. Matched case-insensitively after trimming punctuation.
var hallucinations = map[string]struct{}{
	"thank you":              {},
	"thanks for watching":    {},
	"thank you for watching": {},
	"thanks for listening":   {},
	"bye":                    {},
	"goodbye":                {},
	"see you":                {},
	"you":                    {},
	"thanks":                 {},
	"the end":                {},
}

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base.en", "large-v3"). When empty the server uses whichever model
// it was started with — this is the default.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the language code sent to the whisper.cpp server
// (e.g., "en", "de"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithReportedConfidence sets the confidence attached to non-empty
// transcripts. whisper-server does not report a confidence score, so the
// value is a fixed operator-tunable estimate. Defaults to 0.9.
func WithReportedConfidence(c float64) Option {
	return func(p *Provider) {
		p.confidence = c
	}
}

// WithHTTPClient replaces the default HTTP client. The client's own Timeout
// should be zero — deadlines come from the caller's context.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements stt.Provider backed by a local whisper.cpp HTTP
// server. Safe for concurrent use.
type Provider struct {
	serverURL  string
	model      string
	language   string
	confidence float64
	httpClient *http.Client
}

// New creates a new Provider that connects to the whisper.cpp HTTP server at
// serverURL (e.g., "http://localhost:8178"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  serverURL,
		language:   defaultLanguage,
		confidence: defaultConfidence,
		httpClient: &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe implements stt.Provider. The recording is forwarded to the
// whisper.cpp /inference endpoint as multipart/form-data.
func (p *Provider) Transcribe(ctx context.Context, audio []byte, mimeType string) (stt.Result, error) {
	ext, ok := supportedMimeTypes[normalizeMime(mimeType)]
	if !ok {
		return stt.Result{}, fmt.Errorf("whisper: mime type %q: %w", mimeType, stt.ErrUnsupportedFormat)
	}
	if len(audio) == 0 {
		return stt.Result{}, nil
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio"+ext)
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(audio); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: write audio data: %w", err)
	}
	if p.language != "" {
		if err := mw.WriteField("language", p.language); err != nil {
			return stt.Result{}, fmt.Errorf("whisper: write language field: %w", err)
		}
	}
	if p.model != "" {
		if err := mw.WriteField("model", p.model); err != nil {
			return stt.Result{}, fmt.Errorf("whisper: write model field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	endpoint := p.serverURL + "/inference"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return stt.Result{}, fmt.Errorf("whisper: %w: %v", stt.ErrTimeout, err)
		}
		return stt.Result{}, fmt.Errorf("whisper: %w: %v", stt.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decoding
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnsupportedMediaType:
		return stt.Result{}, fmt.Errorf("whisper: server rejected input (HTTP %d): %w", resp.StatusCode, stt.ErrUnsupportedFormat)
	default:
		return stt.Result{}, fmt.Errorf("whisper: server returned HTTP %d: %w", resp.StatusCode, stt.ErrUnavailable)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: read response body: %w", err)
	}

	var decoded struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: parse JSON response: %w", err)
	}

	text := strings.TrimSpace(decoded.Text)
	if isHallucination(text) {
		text = ""
	}

	res := stt.Result{
		Transcript: text,
		Duration:   wavDuration(audio, ext),
	}
	if text != "" {
		res.Confidence = p.confidence
	}
	return res, nil
}

// wavDuration computes the recording length from a RIFF/WAV header. Returns
// 0 for non-WAV input or malformed headers; the server decodes those formats
// itself and does not report a duration back.
func wavDuration(audio []byte, ext string) time.Duration {
	if ext != ".wav" || len(audio) < 44 ||
		string(audio[0:4]) != "RIFF" || string(audio[8:12]) != "WAVE" {
		return 0
	}
	byteRate := uint32(audio[28]) | uint32(audio[29])<<8 | uint32(audio[30])<<16 | uint32(audio[31])<<24
	if byteRate == 0 {
		return 0
	}
	dataSize := len(audio) - 44
	return time.Duration(float64(dataSize) / float64(byteRate) * float64(time.Second))
}

// normalizeMime strips parameters ("audio/webm;codecs=opus" → "audio/webm")
// and lower-cases the type.
func normalizeMime(mimeType string) string {
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}

// isHallucination reports whether text is a known whisper silence artefact.
func isHallucination(text string) bool {
	key := strings.ToLower(strings.Trim(text, ". !?"))
	_, ok := hallucinations[key]
	return ok
}
