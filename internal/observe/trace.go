package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope for all FieldOps spans.
const tracerName = "github.com/fieldops-ai/fieldops"

// Tracer returns the FieldOps [trace.Tracer] from the globally registered
// provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan opens a span named name. The caller must End it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// StageSpan opens a child span for one voice intake pipeline stage
// (transcription, extraction, reconcile). The stage name doubles as a span
// attribute so stage latencies can be sliced in trace backends.
func StageSpan(ctx context.Context, stage string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "intake."+stage,
		trace.WithAttributes(attribute.String("intake.stage", stage)))
}

// CorrelationID returns the identifier tying one request's log lines, spans,
// and X-Correlation-ID response header together. It is the trace ID of the
// active span; empty when there is none.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns slog.Default() annotated with trace_id and span_id when ctx
// carries an active span, so every pipeline log line lands next to the trace
// of the intake that produced it.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return l
}
