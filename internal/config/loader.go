package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to reject unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt": {"whisper", "openai", "mock"},
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if err := validateProviderName("stt", cfg.Providers.STT.Name); err != nil {
		errs = append(errs, err)
	}
	if err := validateProviderName("llm", cfg.Providers.LLM.Name); err != nil {
		errs = append(errs, err)
	}

	if cfg.Providers.STT.Name == "" {
		slog.Warn("no STT provider configured; voice intakes will be rejected")
	}
	if cfg.Providers.LLM.Name == "" {
		slog.Warn("no LLM provider configured; transcripts cannot be turned into records")
	}

	if t := cfg.Pipeline.ConfidenceThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("pipeline.confidence_threshold %.2f is out of range [0, 1]", t))
	}
	if cfg.Pipeline.TranscriptionTimeout < 0 {
		errs = append(errs, errors.New("pipeline.transcription_timeout must not be negative"))
	}
	if cfg.Pipeline.ExtractionTimeout < 0 {
		errs = append(errs, errors.New("pipeline.extraction_timeout must not be negative"))
	}

	if cfg.Domain.LaborRatePerHour < 0 {
		errs = append(errs, errors.New("domain.labor_rate_per_hour must not be negative"))
	}
	if cfg.Domain.LowStockThreshold < 0 {
		errs = append(errs, errors.New("domain.low_stock_threshold must not be negative"))
	}
	if cfg.Domain.AlertRetention < 0 {
		errs = append(errs, errors.New("domain.alert_retention must not be negative"))
	}

	if cfg.Storage.PostgresDSN == "" {
		slog.Warn("storage.postgres_dsn is empty; running on the in-memory store, data will not survive restarts")
	}

	return errors.Join(errs...)
}

// validateProviderName returns an error when name is set but not a known
// provider of the given kind. An empty name is allowed (provider disabled).
func validateProviderName(kind, name string) error {
	if name == "" {
		return nil
	}
	if !slices.Contains(ValidProviderNames[kind], name) {
		return fmt.Errorf("providers.%s.name %q is not recognised; valid values: %v", kind, name, ValidProviderNames[kind])
	}
	return nil
}
