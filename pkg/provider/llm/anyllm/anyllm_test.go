package anyllm

import (
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/fieldops-ai/fieldops/pkg/provider/llm"
)

// ── New ───────────────────────────────────────────────────────────────────────

// TestNew_EmptyProviderName checks that a missing provider name is rejected.
func TestNew_EmptyProviderName(t *testing.T) {
	if _, err := New("", "gpt-4o-mini"); err == nil {
		t.Error("expected error for empty provider name")
	}
}

// TestNew_EmptyModel checks that a missing model is rejected.
func TestNew_EmptyModel(t *testing.T) {
	if _, err := New("openai", ""); err == nil {
		t.Error("expected error for empty model")
	}
}

// TestNew_UnsupportedProvider checks that unknown backends are rejected.
func TestNew_UnsupportedProvider(t *testing.T) {
	if _, err := New("carrierpigeon", "v1"); err == nil {
		t.Error("expected error for unsupported provider")
	}
}

// TestNew_Ollama checks that a local backend constructs without credentials.
func TestNew_Ollama(t *testing.T) {
	p, err := New("ollama", "llama3.1", anyllmlib.WithBaseURL("http://localhost:11434"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.model != "llama3.1" {
		t.Errorf("model = %q, want llama3.1", p.model)
	}
}

// ── buildParams ───────────────────────────────────────────────────────────────

// TestBuildParams_SystemPromptFirst checks that the system prompt becomes the
// leading system-role message.
func TestBuildParams_SystemPromptFirst(t *testing.T) {
	p := &Provider{model: "test-model"}
	params := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "Respond with JSON only.",
		Messages: []llm.Message{
			{Role: "user", Content: "used 3 oil filters"},
		},
	})

	if params.Model != "test-model" {
		t.Errorf("model = %q, want test-model", params.Model)
	}
	if len(params.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(params.Messages))
	}
	if params.Messages[0].Role != anyllmlib.RoleSystem {
		t.Errorf("first role = %q, want system", params.Messages[0].Role)
	}
	if params.Messages[0].ContentString() != "Respond with JSON only." {
		t.Errorf("system content = %q", params.Messages[0].ContentString())
	}
	if params.Messages[1].Role != "user" || params.Messages[1].ContentString() != "used 3 oil filters" {
		t.Errorf("user message = %+v", params.Messages[1])
	}
}

// TestBuildParams_TemperatureAndMaxTokens checks pointer conversion of the
// optional sampling parameters.
func TestBuildParams_TemperatureAndMaxTokens(t *testing.T) {
	p := &Provider{model: "m"}
	params := p.buildParams(llm.CompletionRequest{Temperature: 0.7, MaxTokens: 256})

	if params.Temperature == nil || *params.Temperature != 0.7 {
		t.Errorf("Temperature = %v, want pointer to 0.7", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 256 {
		t.Errorf("MaxTokens = %v, want pointer to 256", params.MaxTokens)
	}
}

// TestBuildParams_ZeroValuesOmitted checks that unset sampling parameters stay
// nil so backend defaults apply.
func TestBuildParams_ZeroValuesOmitted(t *testing.T) {
	p := &Provider{model: "m"}
	params := p.buildParams(llm.CompletionRequest{})

	if params.Temperature != nil {
		t.Errorf("Temperature = %v, want nil", params.Temperature)
	}
	if params.MaxTokens != nil {
		t.Errorf("MaxTokens = %v, want nil", params.MaxTokens)
	}
	if len(params.Messages) != 0 {
		t.Errorf("messages = %v, want none", params.Messages)
	}
}
