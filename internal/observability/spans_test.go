package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	sr := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr)))
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		SetRunID("")
	})
	return sr
}

func attrMap(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	m := make(map[attribute.Key]attribute.Value)
	for _, kv := range span.Attributes() {
		m[kv.Key] = kv.Value
	}
	return m
}

func TestFetchSpanCarriesRunAndGroup(t *testing.T) {
	sr := recordSpans(t)
	SetRunID("run-42")

	_, span := StartFetchSpan(context.Background(), "/ecs/svc-a", 1700000000000)
	EndSpanSuccess(span)

	ended := sr.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "scheduler.fetch", ended[0].Name())
	assert.Equal(t, codes.Ok, ended[0].Status().Code)

	attrs := attrMap(ended[0])
	assert.Equal(t, "run-42", attrs[AttrRunID].AsString())
	assert.Equal(t, "/ecs/svc-a", attrs[AttrLogGroup].AsString())
	assert.Equal(t, int64(1700000000000), attrs[AttrWindowStart].AsInt64())
	assert.Equal(t, serviceName, attrs["service.name"].AsString())
}

func TestStartSpanWithoutRunID(t *testing.T) {
	sr := recordSpans(t)

	_, span := StartSpan(context.Background(), "catalog.Build", attribute.String("catalog.filter", "svc"))
	EndSpanSuccess(span)

	attrs := attrMap(sr.Ended()[0])
	_, hasRun := attrs[AttrRunID]
	assert.False(t, hasRun)
	assert.Equal(t, "svc", attrs["catalog.filter"].AsString())
}

func TestEndSpanWithError(t *testing.T) {
	sr := recordSpans(t)

	_, failed := StartSpan(context.Background(), "failed")
	EndSpanWithError(failed, errors.New("boom"), "fetch failed")

	_, cancelled := StartSpan(context.Background(), "cancelled")
	EndSpanWithError(cancelled, context.Canceled, "cycle interrupted")

	ended := sr.Ended()
	require.Len(t, ended, 2)

	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, "fetch failed: boom", ended[0].Status().Description)
	require.Len(t, ended[0].Events(), 1, "error recorded as exception event")

	assert.Equal(t, codes.Unset, ended[1].Status().Code)
	require.Len(t, ended[1].Events(), 1)
	assert.Equal(t, "cancelled", ended[1].Events()[0].Name)
}
