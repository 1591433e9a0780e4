package otel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/terraskye/eventkernel"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

var _ eventkernel.EventStore[eventkernel.Event] = (*TelemetryStore[eventkernel.Event])(nil)

// TelemetryStore traces and measures an EventStore. Appended records carry
// the trace context in their metadata so that readers can link back to the
// writing span.
type TelemetryStore[E eventkernel.Event] struct {
	next eventkernel.EventStore[E]
	cfg  *config
}

// WithEventStoreTelemetry wraps next with tracing and metrics.
func WithEventStoreTelemetry[E eventkernel.Event](next eventkernel.EventStore[E], options ...Option) *TelemetryStore[E] {
	return &TelemetryStore[E]{
		next: next,
		cfg:  newConfig("EventStore", options),
	}
}

// Append with metrics + span
func (t *TelemetryStore[E]) Append(ctx context.Context, stream string, records []eventkernel.Record[E], expected eventkernel.StreamState) (eventkernel.AppendResult, error) {
	ctx, span := tracer.Start(ctx, t.cfg.spanName(ctx, "Append"),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(t.cfg.attributes(ctx,
			AttrOperation.String("append"),
			AttrStreamID.String(stream),
			AttrExpectedState.String(fmt.Sprint(expected)),
			AttrEventCount.Int(len(records)),
		)...),
	)
	defer span.End()

	{
		carrier := propagation.MapCarrier{}
		otel.GetTextMapPropagator().Inject(ctx, carrier)

		traced := make([]eventkernel.Record[E], len(records))
		for i, rec := range records {
			md := make(map[string]any, len(rec.Metadata)+len(carrier)+1)
			maps.Copy(md, rec.Metadata)
			if span.SpanContext().HasTraceID() {
				md["correlationId"] = span.SpanContext().TraceID().String()
			}
			for key, value := range carrier {
				md[key] = value
			}
			rec.Metadata = md
			traced[i] = rec
		}
		records = traced
	}

	start := time.Now()
	result, err := t.next.Append(ctx, stream, records, expected)
	duration := time.Since(start)

	EventStoreDuration.Record(ctx, float64(duration.Milliseconds()),
		metric.WithAttributes(
			AttrOperation.String("append"),
		),
	)
	EventStoreAppends.Add(ctx, 1)

	if err != nil {
		var conflict *eventkernel.StreamRevisionConflictError
		if errors.As(err, &conflict) {
			ConcurrencyConflicts.Add(ctx, 1, metric.WithAttributes(AttrConflictType.String("revision")))
		}
		EventStoreErrors.Add(ctx, 1, metric.WithAttributes(AttrOperation.String("append")))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}

	EventsAppended.Add(ctx, int64(len(records)))
	StreamVersionGauge.Record(ctx, int64(result.NextExpectedVersion), metric.WithAttributes(AttrStreamID.String(stream)))
	span.SetAttributes(AttrStreamVersion.Int64(int64(result.NextExpectedVersion)))
	span.SetStatus(codes.Ok, "")
	return result, nil
}

// Load with inline tracing middleware. The span opens on the first Next and
// covers the whole iteration; its context is handed to every Next of the
// wrapped iterator. Drain the iterator to end the span with the event count.
// An iterator dropped early ends its span once it is garbage collected.
func (t *TelemetryStore[E]) Load(ctx context.Context, stream string) (*eventkernel.Iterator[eventkernel.Record[E]], error) {
	EventStoreLoads.Add(ctx, 1)

	iter, err := t.next.Load(ctx, stream)
	if err != nil {
		if !errors.Is(err, eventkernel.ErrStreamNotFound) {
			EventStoreErrors.Add(ctx, 1, metric.WithAttributes(AttrOperation.String("load")))
		}
		return iter, err
	}

	load := &loadSpan{}
	var spanCtx context.Context

	traced := eventkernel.NewIteratorFunc(func(ctx context.Context) (eventkernel.Record[E], error) {
		var zero eventkernel.Record[E]
		if spanCtx == nil {
			load.startedAt = time.Now()
			var span trace.Span
			spanCtx, span = tracer.Start(ctx, t.cfg.spanName(ctx, "Load"),
				trace.WithSpanKind(trace.SpanKindClient),
				trace.WithAttributes(t.cfg.attributes(ctx,
					AttrOperation.String("load"),
					AttrStreamID.String(stream),
				)...),
			)
			load.set(span)
		}

		if !iter.Next(spanCtx) {
			if err := iter.Err(); err != nil {
				EventStoreErrors.Add(spanCtx, 1, metric.WithAttributes(AttrOperation.String("load")))
				load.end(err)
				return zero, err
			}
			EventStoreDuration.Record(spanCtx, float64(time.Since(load.startedAt).Milliseconds()),
				metric.WithAttributes(AttrOperation.String("load")),
			)
			load.end(nil)
			return zero, io.EOF
		}

		load.count.Add(1)
		EventsLoaded.Add(spanCtx, 1)
		return iter.Value(), nil
	})

	runtime.AddCleanup(traced, func(load *loadSpan) { load.end(nil) }, load)
	return traced, nil
}

// loadSpan ends a load span exactly once, whether the iteration finishes
// or the iterator is abandoned.
type loadSpan struct {
	mu        sync.Mutex
	span      trace.Span
	ended     bool
	startedAt time.Time
	count     atomic.Int64
}

func (l *loadSpan) set(span trace.Span) {
	l.mu.Lock()
	l.span = span
	l.mu.Unlock()
}

func (l *loadSpan) end(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.span == nil || l.ended {
		return
	}
	l.ended = true

	l.span.SetAttributes(AttrEventCount.Int64(l.count.Load()))
	if err != nil {
		l.span.RecordError(err)
		l.span.SetStatus(codes.Error, err.Error())
	} else {
		l.span.SetStatus(codes.Ok, "")
	}
	l.span.End()
}

// Close just forwards
func (t *TelemetryStore[E]) Close() error {
	return t.next.Close()
}
