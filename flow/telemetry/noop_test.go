package telemetry

import (
	"context"
	"testing"
	"time"
)

func TestNoopBindingsDiscardEverythingWithoutPanicking(t *testing.T) {
	ctx := context.Background()

	logger := NewNoopLogger()
	logger.Debug(ctx, "msg", "k", "v")
	logger.Info(ctx, "msg")
	logger.Warn(ctx, "msg")
	logger.Error(ctx, "msg")

	metrics := NewNoopMetrics()
	metrics.IncCounter("c", 1, "tag")
	metrics.RecordTimer("t", time.Millisecond)
	metrics.RecordGauge("g", 1)

	tracer := NewNoopTracer()
	spanCtx, span := tracer.Start(ctx, "op")
	if spanCtx == nil {
		t.Fatal("Start must return a non-nil context")
	}
	span.AddEvent("ev")
	span.SetStatus(0, "")
	span.RecordError(nil)
	span.End()

	if s := tracer.Span(ctx); s == nil {
		t.Fatal("Span must return a non-nil Span")
	}
}
