package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/fieldops-ai/fieldops/internal/config"
)

const validYAML = `
server:
  listen_addr: ":9090"
  log_level: debug
providers:
  stt:
    name: whisper
    base_url: http://localhost:8178
  llm:
    name: ollama
    base_url: http://localhost:11434
    model: llama3.3:70b
pipeline:
  transcription_timeout: 45s
  extraction_timeout: 25s
  confidence_threshold: 0.7
domain:
  labor_rate_per_hour: 85.50
  low_stock_threshold: 8
  job_staleness_window: 48h
  alert_retention: 12h
storage:
  postgres_dsn: postgres://fieldops@localhost:5432/fieldops
`

func TestLoadFromReader(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q, want %q", cfg.Server.ListenAddr, ":9090")
	}
	if cfg.Providers.STT.Name != "whisper" {
		t.Errorf("STT provider = %q, want %q", cfg.Providers.STT.Name, "whisper")
	}
	if cfg.Providers.LLM.Model != "llama3.3:70b" {
		t.Errorf("LLM model = %q, want %q", cfg.Providers.LLM.Model, "llama3.3:70b")
	}
	if got := cfg.Pipeline.TranscriptionTimeout.Std(); got != 45*time.Second {
		t.Errorf("TranscriptionTimeout = %v, want 45s", got)
	}
	if got := cfg.Domain.JobStalenessWindow.Std(); got != 48*time.Hour {
		t.Errorf("JobStalenessWindow = %v, want 48h", got)
	}
	if cfg.Domain.LaborRatePerHour != 85.50 {
		t.Errorf("LaborRatePerHour = %.2f, want 85.50", cfg.Domain.LaborRatePerHour)
	}
}

func TestLoadFromReaderDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("LoadFromReader: unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != config.DefaultListenAddr {
		t.Errorf("ListenAddr = %q, want default %q", cfg.Server.ListenAddr, config.DefaultListenAddr)
	}
	if got := cfg.Pipeline.TranscriptionTimeout.Std(); got != config.DefaultTranscriptionTimeout {
		t.Errorf("TranscriptionTimeout = %v, want default %v", got, config.DefaultTranscriptionTimeout)
	}
	if cfg.Pipeline.ConfidenceThreshold != config.DefaultConfidenceThreshold {
		t.Errorf("ConfidenceThreshold = %v, want default %v", cfg.Pipeline.ConfidenceThreshold, config.DefaultConfidenceThreshold)
	}
	if cfg.Domain.LowStockThreshold != config.DefaultLowStockThreshold {
		t.Errorf("LowStockThreshold = %d, want default %d", cfg.Domain.LowStockThreshold, config.DefaultLowStockThreshold)
	}
	if got := cfg.Domain.AlertRetention.Std(); got != config.DefaultAlertRetention {
		t.Errorf("AlertRetention = %v, want default %v", got, config.DefaultAlertRetention)
	}
}

func TestLoadFromReaderErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "bad log level",
			yaml: "server:\n  log_level: loud\n",
			want: "log_level",
		},
		{
			name: "unknown stt provider",
			yaml: "providers:\n  stt:\n    name: dictaphone\n",
			want: "providers.stt.name",
		},
		{
			name: "unknown llm provider",
			yaml: "providers:\n  llm:\n    name: eliza\n",
			want: "providers.llm.name",
		},
		{
			name: "confidence threshold out of range",
			yaml: "pipeline:\n  confidence_threshold: 1.5\n",
			want: "confidence_threshold",
		},
		{
			name: "bad duration",
			yaml: "pipeline:\n  transcription_timeout: soon\n",
			want: "duration",
		},
		{
			name: "unknown field",
			yaml: "srever:\n  listen_addr: ':1'\n",
			want: "srever",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tc.yaml))
			if err == nil {
				t.Fatal("LoadFromReader: expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("LoadFromReader: error %q does not mention %q", err, tc.want)
			}
		})
	}
}
