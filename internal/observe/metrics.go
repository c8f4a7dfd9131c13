// Package observe provides application-wide observability primitives for
// FieldOps: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still
// be scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all FieldOps metrics.
const meterName = "github.com/fieldops-ai/fieldops"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// TranscriptionDuration tracks speech-to-text transcription latency.
	TranscriptionDuration metric.Float64Histogram

	// ExtractionDuration tracks LLM candidate extraction latency.
	ExtractionDuration metric.Float64Histogram

	// ReconcileDuration tracks candidate batch reconciliation latency.
	ReconcileDuration metric.Float64Histogram

	// IntakeDuration tracks end-to-end voice intake latency.
	IntakeDuration metric.Float64Histogram

	// AlertScanDuration tracks alert engine scan latency.
	AlertScanDuration metric.Float64Histogram

	// --- Counters ---

	// Intakes counts voice intakes. Use with attribute:
	//   attribute.String("disposition", ...)
	Intakes metric.Int64Counter

	// CandidateOutcomes counts per-candidate reconciliation outcomes. Use
	// with attributes:
	//   attribute.String("kind", ...), attribute.String("outcome", ...)
	CandidateOutcomes metric.Int64Counter

	// ProviderErrors counts STT/LLM provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveIntakes tracks the number of voice intakes currently in flight.
	ActiveIntakes metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// a pipeline whose slowest stages are external model calls.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TranscriptionDuration, err = m.Float64Histogram("fieldops.transcription.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ExtractionDuration, err = m.Float64Histogram("fieldops.extraction.duration",
		metric.WithDescription("Latency of LLM candidate extraction."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ReconcileDuration, err = m.Float64Histogram("fieldops.reconcile.duration",
		metric.WithDescription("Latency of candidate batch reconciliation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.IntakeDuration, err = m.Float64Histogram("fieldops.intake.duration",
		metric.WithDescription("End-to-end voice intake latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AlertScanDuration, err = m.Float64Histogram("fieldops.alert_scan.duration",
		metric.WithDescription("Latency of alert engine scans."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Intakes, err = m.Int64Counter("fieldops.intakes",
		metric.WithDescription("Total voice intakes by disposition."),
	); err != nil {
		return nil, err
	}
	if met.CandidateOutcomes, err = m.Int64Counter("fieldops.candidate.outcomes",
		metric.WithDescription("Total candidate records by kind and reconciliation outcome."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("fieldops.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveIntakes, err = m.Int64UpDownCounter("fieldops.active_intakes",
		metric.WithDescription("Number of voice intakes currently in flight."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("fieldops.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordIntake records one completed voice intake with its disposition.
func (m *Metrics) RecordIntake(ctx context.Context, disposition string) {
	m.Intakes.Add(ctx, 1,
		metric.WithAttributes(attribute.String("disposition", disposition)),
	)
}

// RecordCandidateOutcome records one candidate record's reconciliation fate.
func (m *Metrics) RecordCandidateOutcome(ctx context.Context, kind, outcome string) {
	m.CandidateOutcomes.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
