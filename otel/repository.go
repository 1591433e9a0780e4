package otel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/terraskye/eventkernel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// WithRepositoryTelemetry wraps a Repository with a span and duration metric
// per Find and Save. Revision conflicts on Save are counted separately.
func WithRepositoryTelemetry[ID comparable, A any](next eventkernel.Repository[ID, A], options ...Option) eventkernel.Repository[ID, A] {
	return &telemetryRepository[ID, A]{
		next:          next,
		aggregateType: eventkernel.TypeOf[A]().String(),
		cfg:           newConfig("Repository", options),
	}
}

type telemetryRepository[ID comparable, A any] struct {
	next          eventkernel.Repository[ID, A]
	aggregateType string
	cfg           *config
}

func (r *telemetryRepository[ID, A]) Find(ctx context.Context, id ID) (A, error) {
	ctx, span := r.start(ctx, "Find", id)
	defer span.End()

	start := time.Now()
	aggregate, err := r.next.Find(ctx, id)
	r.record(ctx, "find", start)

	if err != nil {
		if errors.Is(err, eventkernel.ErrNotFound) {
			span.SetStatus(codes.Ok, "not found")
			return aggregate, err
		}
		r.fail(ctx, span, "find", err)
		return aggregate, err
	}

	AggregatesLoaded.Add(ctx, 1, metric.WithAttributes(AttrAggregateType.String(r.aggregateType)))
	span.SetStatus(codes.Ok, "")
	return aggregate, nil
}

func (r *telemetryRepository[ID, A]) Save(ctx context.Context, aggregate A) error {
	var id any
	if identified, ok := any(aggregate).(interface{ ID() ID }); ok {
		id = identified.ID()
	}
	ctx, span := r.start(ctx, "Save", id)
	defer span.End()

	start := time.Now()
	err := r.next.Save(ctx, aggregate)
	r.record(ctx, "save", start)

	if err != nil {
		var conflict *eventkernel.StreamRevisionConflictError
		if errors.As(err, &conflict) {
			ConcurrencyConflicts.Add(ctx, 1, metric.WithAttributes(
				AttrAggregateType.String(r.aggregateType),
				AttrConflictType.String("revision"),
			))
		}
		r.fail(ctx, span, "save", err)
		return err
	}

	AggregatesSaved.Add(ctx, 1, metric.WithAttributes(AttrAggregateType.String(r.aggregateType)))
	span.SetStatus(codes.Ok, "")
	return nil
}

func (r *telemetryRepository[ID, A]) start(ctx context.Context, name string, id any) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{AttrAggregateType.String(r.aggregateType)}
	if id != nil {
		attrs = append(attrs, AttrAggregateID.String(fmt.Sprint(id)))
	}
	return tracer.Start(ctx, r.cfg.spanName(ctx, name),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(r.cfg.attributes(ctx, attrs...)...),
	)
}

func (r *telemetryRepository[ID, A]) record(ctx context.Context, operation string, start time.Time) {
	RepositoryDuration.Record(ctx, float64(time.Since(start).Milliseconds()), metric.WithAttributes(
		AttrOperation.String(operation),
		AttrAggregateType.String(r.aggregateType),
	))
}

func (r *telemetryRepository[ID, A]) fail(ctx context.Context, span trace.Span, operation string, err error) {
	RepositoryErrors.Add(ctx, 1, metric.WithAttributes(
		AttrOperation.String(operation),
		AttrAggregateType.String(r.aggregateType),
	))
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
