package openai

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fieldops-ai/fieldops/pkg/provider/stt"
)

func TestNew_RequiresAPIKey(t *testing.T) {
	if _, err := New("", "whisper-1"); err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestNew_DefaultModel(t *testing.T) {
	p, err := New("sk-test", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.model != DefaultModel {
		t.Errorf("model = %q, want %q", p.model, DefaultModel)
	}
}

func TestTranscribe_UnsupportedMime(t *testing.T) {
	p, err := New("sk-test", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = p.Transcribe(context.Background(), []byte("data"), "text/plain")
	if !errors.Is(err, stt.ErrUnsupportedFormat) {
		t.Errorf("got %v, want ErrUnsupportedFormat", err)
	}
}

func TestTranscribe_EmptyAudio(t *testing.T) {
	p, err := New("sk-test", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := p.Transcribe(context.Background(), nil, "audio/wav")
	if err != nil {
		t.Fatalf("Transcribe: empty audio must not error: %v", err)
	}
	if res.Transcript != "" || res.Confidence != 0 {
		t.Errorf("result = %+v, want empty zero-confidence result", res)
	}
}

func TestTranscribe_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/audio/transcriptions") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if got := r.FormValue("model"); got != "whisper-large-v3" {
			t.Errorf("model = %q, want whisper-large-v3", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text": "  used 3 oil filters on the henderson job  "}`))
	}))
	defer srv.Close()

	p, err := New("sk-test", "whisper-large-v3", WithBaseURL(srv.URL), WithLanguage("en"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := p.Transcribe(context.Background(), []byte("fake-audio"), "audio/webm;codecs=opus")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Transcript != "used 3 oil filters on the henderson job" {
		t.Errorf("transcript = %q, want trimmed text", res.Transcript)
	}
	if res.Confidence != defaultConfidence {
		t.Errorf("confidence = %v, want %v", res.Confidence, defaultConfidence)
	}
}

func TestTranscribe_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error": {"message": "overloaded"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, err := New("sk-test", "", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = p.Transcribe(context.Background(), []byte("fake-audio"), "audio/wav")
	if !errors.Is(err, stt.ErrUnavailable) {
		t.Errorf("got %v, want ErrUnavailable", err)
	}
}

func TestNormalizeMime(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"audio/webm;codecs=opus", "audio/webm"},
		{"AUDIO/WAV", "audio/wav"},
		{" audio/ogg ", "audio/ogg"},
	}
	for _, tc := range tests {
		if got := normalizeMime(tc.in); got != tc.want {
			t.Errorf("normalizeMime(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
