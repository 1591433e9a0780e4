package otel

import (
	"context"
	"errors"
	"time"

	"github.com/terraskye/eventkernel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// WithQueryTelemetry wraps a QueryService with OpenTelemetry tracing and metrics.
//
// The wrapper performs the following steps for each query:
//  1. Starts a span named after the query type.
//  2. Increments the in-flight query metric for the duration of the call.
//  3. Invokes the underlying service and records its duration.
//  4. Sets the span status and counts the query as handled or failed.
//
// ErrNotFound is an answer, not a failure: the span is marked Ok and the
// query counted as handled.
//
// Example Usage:
//
//	svc := WithQueryTelemetry(projection)
//	view, err := svc.Find(ctx, GreetingByID{ID: "ABC123"})
func WithQueryTelemetry[Q, R any](next eventkernel.QueryService[Q, R], options ...Option) eventkernel.QueryService[Q, R] {
	return &telemetryQueryService[Q, R]{
		next:       next,
		queryType:  eventkernel.TypeOf[Q]().String(),
		resultType: eventkernel.TypeOf[R]().String(),
		cfg:        newConfig("query", options),
	}
}

type telemetryQueryService[Q, R any] struct {
	next       eventkernel.QueryService[Q, R]
	queryType  string
	resultType string
	cfg        *config
}

func (h *telemetryQueryService[Q, R]) Find(ctx context.Context, query Q) (R, error) {
	ctx, span := tracer.Start(ctx, h.cfg.spanName(ctx, "find "+h.queryType),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(h.cfg.attributes(ctx,
			AttrQueryType.String(h.queryType),
			AttrResultType.String(h.resultType),
		)...),
	)
	defer span.End()

	attrs := metric.WithAttributes(AttrQueryType.String(h.queryType))

	QueriesInFlight.Add(ctx, 1, attrs)
	defer QueriesInFlight.Add(ctx, -1, attrs)

	startTime := time.Now()
	result, err := h.next.Find(ctx, query)

	QueriesDuration.Record(ctx, float64(time.Since(startTime).Milliseconds()), attrs)

	if err != nil && !errors.Is(err, eventkernel.ErrNotFound) {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		QueriesFailed.Add(ctx, 1, attrs)
		return result, err
	}

	span.SetStatus(codes.Ok, "")
	QueriesHandled.Add(ctx, 1, attrs)

	return result, err
}
