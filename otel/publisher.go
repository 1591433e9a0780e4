package otel

import (
	"context"
	"fmt"
	"time"

	"github.com/terraskye/eventkernel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// WithPublisherTelemetry wraps a Publisher with a span per committed record.
func WithPublisherTelemetry[E eventkernel.Event](next eventkernel.Publisher[E], options ...Option) eventkernel.Publisher[E] {
	cfg := newConfig("events", options)

	return eventkernel.PublisherFunc[E](func(ctx context.Context, record eventkernel.Record[E]) error {
		attr := []attribute.KeyValue{
			AttrEventType.String(record.EventType),
			AttrEventID.String(record.EventID.String()),
			AttrEventStreamPos.String(fmt.Sprintf("%d", record.Version)),
			AttrStreamID.String(record.StreamID),
		}

		ctx, span := tracer.Start(ctx, cfg.spanName(ctx, "publish "+record.EventType),
			trace.WithSpanKind(trace.SpanKindInternal),
			trace.WithAttributes(cfg.attributes(ctx, attr...)...),
		)
		defer span.End()

		typeAttr := metric.WithAttributes(AttrEventType.String(record.EventType))

		startTime := time.Now()
		err := next.Publish(ctx, record)
		PublishDuration.Record(ctx, float64(time.Since(startTime).Milliseconds()), typeAttr)

		if err != nil {
			PublishErrors.Add(ctx, 1, typeAttr)
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
			return err
		}
		EventsPublished.Add(ctx, 1, typeAttr)
		span.SetStatus(codes.Ok, "")
		return nil
	})
}
