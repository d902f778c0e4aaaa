// Package telemetry defines the Logger/Metrics/Tracer seams the Runtime
// calls into for every job and routine invocation. Concrete bindings
// (clue.go, noop.go) satisfy these interfaces; the scheduler itself never
// imports a specific observability backend.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Logger captures structured logging used throughout the runtime. Implementations
// typically delegate to Clue but the interface is intentionally small so tests can
// provide lightweight stubs.
type Logger interface {
	Debug(ctx context.Context, msg string, keyvals ...any)
	Info(ctx context.Context, msg string, keyvals ...any)
	Warn(ctx context.Context, msg string, keyvals ...any)
	Error(ctx context.Context, msg string, keyvals ...any)
}

// Metrics exposes counter and histogram helpers for runtime instrumentation.
type Metrics interface {
	IncCounter(name string, value float64, tags ...string)
	RecordTimer(name string, duration time.Duration, tags ...string)
	RecordGauge(name string, value float64, tags ...string)
}

// Tracer abstracts span creation so runtime code can remain agnostic of the
// underlying OpenTelemetry provider. Uses OTEL option types for type safety.
type Tracer interface {
	Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span)
	Span(ctx context.Context) Span
}

// Span represents an in-flight tracing span. Uses OTEL option types for type safety.
//
// Example usage:
//
//	ctx, span := tracer.Start(ctx, "operation", trace.WithSpanKind(trace.SpanKindClient))
//	defer span.End()
//	span.SetStatus(codes.Ok, "completed successfully")
type Span interface {
	End(opts ...trace.SpanEndOption)
	AddEvent(name string, attrs ...any)
	SetStatus(code codes.Code, description string)
	RecordError(err error, opts ...trace.EventOption)
}

// InvocationTelemetry captures observability metadata for a single routine
// logic invocation. The Extra map holds policy- or handler-specific data
// (e.g. the batch size that triggered a fire, the retry attempt number).
type InvocationTelemetry struct {
	// DurationMs is the wall-clock time the logic call took.
	DurationMs int64
	// RoutineID identifies the routine that ran.
	RoutineID string
	// JobID identifies the job the invocation belonged to.
	JobID string
	// Extra holds invocation-specific metadata not captured above.
	Extra map[string]any
}
