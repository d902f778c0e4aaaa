package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestKVSliceToClueSkipsNonStringKeysAndPadsMissingValue(t *testing.T) {
	fielders := kvSliceToClue([]any{"a", 1, 2, "skipped", "b"})
	require.Len(t, fielders, 2, "non-string key dropped, trailing key with no value still produces a fielder")
}

func TestTagsToAttrsPairsUpConsecutiveStrings(t *testing.T) {
	attrs := tagsToAttrs([]string{"routine_id", "r1", "flow_id"})
	require.Len(t, attrs, 2)
	assert.Equal(t, attribute.String("routine_id", "r1"), attrs[0])
	assert.Equal(t, attribute.String("flow_id", ""), attrs[1], "trailing key with no value gets an empty string")
}

func TestKVSliceToAttrsTypeSwitchesOnValue(t *testing.T) {
	attrs := kvSliceToAttrs([]any{"s", "str", "i", 3, "i64", int64(4), "f", 1.5, "b", true})
	require.Len(t, attrs, 5)
	assert.Equal(t, attribute.String("s", "str"), attrs[0])
	assert.Equal(t, attribute.Int("i", 3), attrs[1])
	assert.Equal(t, attribute.Int64("i64", 4), attrs[2])
	assert.Equal(t, attribute.Float64("f", 1.5), attrs[3])
	assert.Equal(t, attribute.Bool("b", true), attrs[4])
}

func TestClueTracerStartAndSpanDoNotPanic(t *testing.T) {
	tracer := NewClueTracer()
	ctx, span := tracer.Start(context.Background(), "op")
	require.NotNil(t, ctx)
	require.NotNil(t, span)
	span.AddEvent("ev", "k", "v")
	span.SetStatus(0, "")
	span.RecordError(nil)
	span.End()

	require.NotNil(t, tracer.Span(ctx))
}

func TestClueMetricsRecordDoesNotPanicWithoutConfiguredProvider(t *testing.T) {
	metrics := NewClueMetrics()
	metrics.IncCounter("flowengine_jobs_total", 1, "flow_id", "f1")
	metrics.RecordTimer("flowengine_routine_duration", 0)
	metrics.RecordGauge("flowengine_slot_depth", 3)
}
