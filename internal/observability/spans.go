package observability

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName  = "cwtail"
	serviceName = "cwtail"
)

// Attribute keys shared by tailer spans
const (
	AttrRunID       = attribute.Key("cwtail.run_id")
	AttrLogGroup    = attribute.Key("cwtail.log_group")
	AttrWindowStart = attribute.Key("cwtail.window_start_ms")
)

var runID atomic.Value

// SetRunID tags every span started afterwards with the run identifier
func SetRunID(id string) {
	runID.Store(id)
}

// StartSpan creates a span tagged with the service name and the current run id
func StartSpan(ctx context.Context, operationName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	base := []attribute.KeyValue{semconv.ServiceNameKey.String(serviceName)}
	if id, _ := runID.Load().(string); id != "" {
		base = append(base, AttrRunID.String(id))
	}

	return otel.Tracer(tracerName).Start(ctx, operationName,
		trace.WithAttributes(append(base, attrs...)...),
	)
}

// StartFetchSpan starts the span of one group poll over the window beginning at windowStart
func StartFetchSpan(ctx context.Context, group string, windowStart int64) (context.Context, trace.Span) {
	return StartSpan(ctx, "scheduler.fetch",
		AttrLogGroup.String(group),
		AttrWindowStart.Int64(windowStart),
	)
}

// EndSpanWithError marks span as failed and ends it.
// Cancellation of the run is recorded as an event, not as a failure.
func EndSpanWithError(span trace.Span, err error, msg string) {
	switch {
	case err == nil:
		span.SetStatus(codes.Ok, msg)
	case errors.Is(err, context.Canceled):
		span.AddEvent("cancelled", trace.WithAttributes(attribute.String("reason", msg)))
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, fmt.Sprintf("%s: %v", msg, err))
	}
	span.End()
}

// EndSpanSuccess marks span as successful and ends it
func EndSpanSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "success")
	span.End()
}
