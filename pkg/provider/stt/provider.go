// Package stt defines the Provider interface for speech-to-text backends.
//
// An STT provider wraps a transcription service (a local whisper.cpp server
// or an OpenAI-compatible API such as Groq) and exposes a uniform batch
// interface: one audio recording in, one transcript with confidence metadata
// out.
//
// Providers never retry internally and never enforce their own deadlines —
// the caller owns the retry policy and supplies a timeout via the context.
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable is returned when the backing transcription service cannot
// be reached.
var ErrUnavailable = errors.New("transcription service unavailable")

// ErrUnsupportedFormat is returned when the audio MIME type or codec cannot
// be decoded by the backing service.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// ErrTimeout is returned when the context deadline expires before the
// service responds.
var ErrTimeout = errors.New("transcription timed out")

// Result is a completed transcription.
//
// An empty Transcript with Confidence 0 is a valid non-error result: the
// recording contained no voiced segments. Callers must distinguish this from
// the error cases above.
type Result struct {
	// Transcript is the recognised speech content, whitespace-trimmed.
	Transcript string

	// Confidence is the overall confidence score in [0, 1]. Zero when the
	// recording contained no speech or the backend does not report one.
	Confidence float64

	// Duration is the length of the decoded audio.
	Duration time.Duration
}

// Empty reports whether the result carries no recognised speech.
func (r Result) Empty() bool { return r.Transcript == "" }

// Provider is the abstraction over any batch STT backend.
type Provider interface {
	// Transcribe converts one complete audio recording into a transcript.
	// mimeType describes the container/codec of audio (e.g., "audio/wav",
	// "audio/webm").
	//
	// Returns [ErrUnsupportedFormat] if mimeType cannot be decoded,
	// [ErrUnavailable] if the backing service is unreachable, and
	// [ErrTimeout] if ctx expires first. A silent recording yields an empty
	// Result and a nil error.
	Transcribe(ctx context.Context, audio []byte, mimeType string) (Result, error)
}
