// Package mock provides a test double for the stt.Provider interface.
//
// Use Provider in unit tests to feed controlled transcription results
// without a live STT backend and to verify what audio the caller submitted.
//
// Example:
//
//	p := &mock.Provider{
//	    Result: stt.Result{Transcript: "used 3 oil filters", Confidence: 0.95},
//	}
//	res, err := p.Transcribe(ctx, audio, "audio/wav")
package mock

import (
	"context"
	"sync"

	"github.com/fieldops-ai/fieldops/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Audio is the recording passed to Transcribe.
	Audio []byte
	// MimeType is the MIME type passed to Transcribe.
	MimeType string
}

// Provider is a mock implementation of stt.Provider.
// Zero values cause Transcribe to return an empty Result and nil error.
type Provider struct {
	mu sync.Mutex

	// Result is returned from Transcribe when Err is nil.
	Result stt.Result

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// TranscribeCalls records every call to Transcribe.
	TranscribeCalls []TranscribeCall
}

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Transcribe records the call and returns Result, Err.
func (p *Provider) Transcribe(ctx context.Context, audio []byte, mimeType string) (stt.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Ctx: ctx, Audio: audio, MimeType: mimeType})
	if p.Err != nil {
		return stt.Result{}, p.Err
	}
	return p.Result, nil
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = nil
}
