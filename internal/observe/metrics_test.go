package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	histograms := []struct {
		name string
		h    metric.Float64Histogram
	}{
		{"fieldops.transcription.duration", m.TranscriptionDuration},
		{"fieldops.extraction.duration", m.ExtractionDuration},
		{"fieldops.reconcile.duration", m.ReconcileDuration},
		{"fieldops.intake.duration", m.IntakeDuration},
		{"fieldops.alert_scan.duration", m.AlertScanDuration},
	}

	for _, tc := range histograms {
		tc.h.Record(ctx, 0.123)
		tc.h.Record(ctx, 1.456)
	}

	rm := collect(t, reader)

	for _, tc := range histograms {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			hist, ok := met.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("metric %q is not a histogram", tc.name)
			}
			if len(hist.DataPoints) == 0 {
				t.Fatalf("metric %q has no data points", tc.name)
			}
			if got := hist.DataPoints[0].Count; got != 2 {
				t.Errorf("metric %q count = %d, want 2", tc.name, got)
			}
		})
	}
}

func TestRecordIntake(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordIntake(ctx, "applied")
	m.RecordIntake(ctx, "applied")
	m.RecordIntake(ctx, "rejected")

	rm := collect(t, reader)
	met := findMetric(rm, "fieldops.intakes")
	if met == nil {
		t.Fatal("metric fieldops.intakes not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("metric fieldops.intakes is not a sum")
	}
	if len(sum.DataPoints) != 2 {
		t.Fatalf("got %d data points, want 2 (one per disposition)", len(sum.DataPoints))
	}

	for _, dp := range sum.DataPoints {
		disposition, _ := dp.Attributes.Value(attribute.Key("disposition"))
		switch disposition.AsString() {
		case "applied":
			if dp.Value != 2 {
				t.Errorf("applied count = %d, want 2", dp.Value)
			}
		case "rejected":
			if dp.Value != 1 {
				t.Errorf("rejected count = %d, want 1", dp.Value)
			}
		default:
			t.Errorf("unexpected disposition %q", disposition.AsString())
		}
	}
}

func TestRecordCandidateOutcome(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordCandidateOutcome(ctx, "inventory_adjustment", "applied")
	m.RecordCandidateOutcome(ctx, "job_update", "rejected")

	rm := collect(t, reader)
	met := findMetric(rm, "fieldops.candidate.outcomes")
	if met == nil {
		t.Fatal("metric fieldops.candidate.outcomes not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("metric fieldops.candidate.outcomes is not a sum")
	}
	if len(sum.DataPoints) != 2 {
		t.Fatalf("got %d data points, want 2", len(sum.DataPoints))
	}
}
