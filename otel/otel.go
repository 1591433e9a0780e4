package otel

import (
	"github.com/terraskye/eventkernel"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "github.com/terraskye/eventkernel"
)

// Semantic attribute keys following OpenTelemetry conventions
const (
	// Aggregate attributes
	AttrAggregateID   = attribute.Key("eventkernel.aggregate.id")
	AttrAggregateType = attribute.Key("eventkernel.aggregate.type")

	// Stream attributes
	AttrStreamID       = attribute.Key("eventkernel.stream.id")
	AttrStreamVersion  = attribute.Key("eventkernel.stream.version")
	AttrExpectedState  = attribute.Key("eventkernel.stream.expected_state")
	AttrEventStreamPos = attribute.Key("eventkernel.event.stream_position")

	// Event attributes
	AttrEventType  = attribute.Key("eventkernel.event.type")
	AttrEventID    = attribute.Key("eventkernel.event.id")
	AttrEventCount = attribute.Key("eventkernel.events.count")

	// Query attributes
	AttrQueryType  = attribute.Key("eventkernel.query.type")
	AttrResultType = attribute.Key("eventkernel.query.result_type")

	// Operation attributes
	AttrOperation    = attribute.Key("eventkernel.operation")
	AttrConflictType = attribute.Key("eventkernel.conflict.type")
)

var (
	meter  = otel.Meter(instrumentationName, metric.WithInstrumentationVersion(eventkernel.InstrumentationVersion))
	tracer = otel.Tracer(instrumentationName, trace.WithInstrumentationVersion(eventkernel.InstrumentationVersion))

	// Event metrics
	EventsAppended, _ = meter.Int64Counter(
		"eventkernel.events.appended",
		metric.WithDescription("Number of events appended to streams"),
		metric.WithUnit("{event}"),
	)

	EventsLoaded, _ = meter.Int64Counter(
		"eventkernel.events.loaded",
		metric.WithDescription("Number of events loaded from streams"),
		metric.WithUnit("{event}"),
	)

	EventsPublished, _ = meter.Int64Counter(
		"eventkernel.events.published",
		metric.WithDescription("Number of committed events handed to publishers"),
		metric.WithUnit("{event}"),
	)

	PublishErrors, _ = meter.Int64Counter(
		"eventkernel.events.publish_errors",
		metric.WithDescription("Number of failed publications"),
		metric.WithUnit("{error}"),
	)

	PublishDuration, _ = meter.Float64Histogram(
		"eventkernel.events.publish_duration",
		metric.WithDescription("Publisher duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000),
	)

	// Repository metrics
	AggregatesLoaded, _ = meter.Int64Counter(
		"eventkernel.aggregates.loaded",
		metric.WithDescription("Number of aggregates rebuilt from their streams"),
		metric.WithUnit("{aggregate}"),
	)

	AggregatesSaved, _ = meter.Int64Counter(
		"eventkernel.aggregates.saved",
		metric.WithDescription("Number of aggregate saves"),
		metric.WithUnit("{aggregate}"),
	)

	RepositoryErrors, _ = meter.Int64Counter(
		"eventkernel.repository.errors",
		metric.WithDescription("Number of failed repository operations"),
		metric.WithUnit("{error}"),
	)

	RepositoryDuration, _ = meter.Float64Histogram(
		"eventkernel.repository.duration",
		metric.WithDescription("Repository operation duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000),
	)

	// Query metrics
	QueriesHandled, _ = meter.Int64Counter(
		"eventkernel.queries.handled",
		metric.WithDescription("Total number of queries handled"),
		metric.WithUnit("{query}"),
	)

	QueriesDuration, _ = meter.Float64Histogram(
		"eventkernel.queries.duration",
		metric.WithDescription("Query handling duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000),
	)

	QueriesInFlight, _ = meter.Int64UpDownCounter(
		"eventkernel.queries.in_flight",
		metric.WithDescription("Number of queries currently being processed"),
		metric.WithUnit("{query}"),
	)

	QueriesFailed, _ = meter.Int64Counter(
		"eventkernel.queries.failed",
		metric.WithDescription("Number of failed queries"),
		metric.WithUnit("{query}"),
	)

	// EventStore metrics
	EventStoreAppends, _ = meter.Int64Counter(
		"eventkernel.eventstore.appends",
		metric.WithDescription("Number of append operations"),
		metric.WithUnit("{operation}"),
	)

	EventStoreLoads, _ = meter.Int64Counter(
		"eventkernel.eventstore.loads",
		metric.WithDescription("Number of load operations"),
		metric.WithUnit("{operation}"),
	)

	EventStoreDuration, _ = meter.Float64Histogram(
		"eventkernel.eventstore.duration",
		metric.WithDescription("Event store operation duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000),
	)

	EventStoreErrors, _ = meter.Int64Counter(
		"eventkernel.eventstore.errors",
		metric.WithDescription("Number of event store errors"),
		metric.WithUnit("{error}"),
	)

	// System metrics
	ConcurrencyConflicts, _ = meter.Int64Counter(
		"eventkernel.concurrency.conflicts",
		metric.WithDescription("Number of concurrency conflicts"),
		metric.WithUnit("{conflict}"),
	)

	StreamVersionGauge, _ = meter.Int64Gauge(
		"eventkernel.stream.version",
		metric.WithDescription("Current version of streams"),
		metric.WithUnit("{version}"),
	)
)
