// Command fieldops runs the FieldOps voice-to-records backend: it turns
// field technicians' voice notes into jobs, inventory adjustments, and
// follow-up reminders, and serves the dashboard API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/fieldops-ai/fieldops/internal/alert"
	"github.com/fieldops-ai/fieldops/internal/config"
	"github.com/fieldops-ai/fieldops/internal/dashboard"
	"github.com/fieldops-ai/fieldops/internal/extract"
	"github.com/fieldops-ai/fieldops/internal/health"
	"github.com/fieldops-ai/fieldops/internal/httpapi"
	"github.com/fieldops-ai/fieldops/internal/intake"
	"github.com/fieldops-ai/fieldops/internal/observe"
	"github.com/fieldops-ai/fieldops/internal/reconcile"
	"github.com/fieldops-ai/fieldops/internal/seed"
	"github.com/fieldops-ai/fieldops/internal/store"
	"github.com/fieldops-ai/fieldops/pkg/provider/llm"
	"github.com/fieldops-ai/fieldops/pkg/provider/llm/anyllm"
	"github.com/fieldops-ai/fieldops/pkg/provider/stt"
	sttmock "github.com/fieldops-ai/fieldops/pkg/provider/stt/mock"
	sttopenai "github.com/fieldops-ai/fieldops/pkg/provider/stt/openai"
	"github.com/fieldops-ai/fieldops/pkg/provider/stt/whisper"
)

// version is stamped at build time via -ldflags.
var version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "fieldops: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "fieldops: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("fieldops starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "fieldops",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	st, pool, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to open storage", "err", err)
		return 1
	}
	if pool != nil {
		defer pool.Close()
	}

	if cfg.Storage.SeedFile != "" {
		n, err := seed.Apply(ctx, st, cfg.Storage.SeedFile)
		if err != nil {
			slog.Error("inventory seed failed", "file", cfg.Storage.SeedFile, "err", err)
			return 1
		}
		if n > 0 {
			slog.Info("inventory seeded", "file", cfg.Storage.SeedFile, "items", n)
		}
	}

	sttProvider, err := buildSTT(cfg.Providers.STT)
	if err != nil {
		slog.Error("failed to create stt provider", "name", cfg.Providers.STT.Name, "err", err)
		return 1
	}
	llmProvider, err := buildLLM(cfg.Providers.LLM)
	if err != nil {
		slog.Error("failed to create llm provider", "name", cfg.Providers.LLM.Name, "err", err)
		return 1
	}

	extractor, err := extract.New(llmProvider)
	if err != nil {
		slog.Error("failed to create extractor", "err", err)
		return 1
	}
	reconciler, err := reconcile.New(st, cfg.Pipeline.ConfidenceThreshold)
	if err != nil {
		slog.Error("failed to create reconciler", "err", err)
		return 1
	}
	alertEngine, err := alert.New(st,
		cfg.Domain.LowStockThreshold,
		cfg.Domain.JobStalenessWindow.Std(),
		cfg.Domain.AlertRetention.Std(),
	)
	if err != nil {
		slog.Error("failed to create alert engine", "err", err)
		return 1
	}

	intakeSvc, err := intake.NewService(intake.Config{
		STT:                  sttProvider,
		Extractor:            extractor,
		Reconciler:           reconciler,
		Store:                st,
		TranscriptionTimeout: cfg.Pipeline.TranscriptionTimeout.Std(),
		ExtractionTimeout:    cfg.Pipeline.ExtractionTimeout.Std(),
	})
	if err != nil {
		slog.Error("failed to create intake service", "err", err)
		return 1
	}

	dash, err := dashboard.New(dashboard.Config{
		Store:             st,
		Alerts:            alertEngine,
		LaborRatePerHour:  cfg.Domain.LaborRatePerHour,
		LowStockThreshold: cfg.Domain.LowStockThreshold,
		FollowUpLookahead: cfg.Domain.FollowUpLookahead.Std(),
	})
	if err != nil {
		slog.Error("failed to create dashboard", "err", err)
		return 1
	}

	server, err := httpapi.New(httpapi.Config{
		Voice:     intakeSvc,
		Dashboard: dash,
		Health:    health.New(healthProbes(st, pool)...),
	})
	if err != nil {
		slog.Error("failed to create http server", "err", err)
		return 1
	}

	slog.Info("server ready — press Ctrl+C to shut down", "addr", cfg.Server.ListenAddr)

	if err := httpapi.Serve(ctx, cfg.Server.ListenAddr, server, shutdownTimeout); err != nil {
		slog.Error("serve error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// openStore opens the configured storage backend. The pool is non-nil only
// for Postgres and must be closed by the caller.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, *pgxpool.Pool, error) {
	if cfg.Storage.PostgresDSN == "" {
		slog.Info("using in-memory store")
		return store.NewMemStore(), nil, nil
	}

	pool, err := pgxpool.New(ctx, cfg.Storage.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}

	pg := store.NewPostgresStore(pool)
	if err := pg.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	slog.Info("using postgres store")
	return pg, pool, nil
}

// healthProbes assembles the readiness probes for the configured backends.
func healthProbes(st store.Store, pool *pgxpool.Pool) []health.Probe {
	probes := []health.Probe{
		{Name: "storage", Check: func(ctx context.Context) error {
			_, err := st.ListItems(ctx)
			return err
		}},
	}
	if pool != nil {
		probes = append(probes, health.Probe{Name: "postgres", Check: pool.Ping})
	}
	return probes
}

// buildSTT constructs the configured transcription provider.
func buildSTT(entry config.ProviderEntry) (stt.Provider, error) {
	switch entry.Name {
	case "whisper":
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	case "openai":
		var opts []sttopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, sttopenai.WithBaseURL(entry.BaseURL))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, sttopenai.WithLanguage(lang))
		}
		return sttopenai.New(entry.APIKey, entry.Model, opts...)
	case "mock":
		// Demo mode: every upload "transcribes" to a fixed phrase.
		return &sttmock.Provider{Result: stt.Result{
			Transcript: optString(entry.Options, "transcript"),
			Confidence: 1,
		}}, nil
	case "":
		return nil, errors.New("no stt provider configured")
	default:
		return nil, fmt.Errorf("unknown stt provider %q", entry.Name)
	}
}

// buildLLM constructs the configured extraction model provider. All names
// accepted by config validation are any-llm backends.
func buildLLM(entry config.ProviderEntry) (llm.Provider, error) {
	if entry.Name == "" {
		return nil, errors.New("no llm provider configured")
	}
	var opts []anyllmlib.Option
	if entry.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
	}
	if entry.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
	}
	return anyllm.New(entry.Name, entry.Model, opts...)
}

// optString reads a string value from a provider options map.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	s, _ := opts[key].(string)
	return s
}

// newLogger builds the process logger at the configured level.
func newLogger(level config.LogLevel) *slog.Logger {
	var l slog.Level
	switch level {
	case config.LogDebug:
		l = slog.LevelDebug
	case config.LogWarn:
		l = slog.LevelWarn
	case config.LogError:
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
