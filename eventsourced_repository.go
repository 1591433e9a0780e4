package eventkernel

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
)

// StreamNamer produces the stream name for an aggregate identity.
type StreamNamer func(ctx context.Context, id any) string

// DefaultStreamNamer formats the identity with fmt.Sprint.
var DefaultStreamNamer StreamNamer = func(ctx context.Context, id any) string {
	return fmt.Sprint(id)
}

// EventSourcedRepository is a Repository that stores aggregates as streams of
// events in an EventStore and rebuilds them by replaying those streams.
type EventSourcedRepository[ID comparable, E Event, A Aggregate[ID, E]] struct {
	store        EventStore[E]
	newAggregate func(id ID) A
	opts         repositoryOptions[E]
}

var _ Repository[string, Aggregate[string, Event]] = (*EventSourcedRepository[string, Event, Aggregate[string, Event]])(nil)

// NewEventSourcedRepository returns a repository backed by store.
// newAggregate must return a fresh aggregate at version 0 for the given identity.
func NewEventSourcedRepository[ID comparable, E Event, A Aggregate[ID, E]](
	store EventStore[E],
	newAggregate func(id ID) A,
	opts ...RepositoryOption[E],
) *EventSourcedRepository[ID, E, A] {
	cfg := repositoryOptions[E]{
		StreamNamer: DefaultStreamNamer,
		Clock:       SystemClock,
	}
	for _, o := range opts {
		o(&cfg)
	}
	return &EventSourcedRepository[ID, E, A]{
		store:        store,
		newAggregate: newAggregate,
		opts:         cfg,
	}
}

// Find loads the stream of id and rehydrates a fresh aggregate from it.
// A missing or empty stream yields ErrNotFound.
func (r *EventSourcedRepository[ID, E, A]) Find(ctx context.Context, id ID) (A, error) {
	var zero A
	stream := r.opts.StreamNamer(ctx, id)

	iter, err := r.store.Load(ctx, stream)
	if err != nil {
		if errors.Is(err, ErrStreamNotFound) {
			return zero, fmt.Errorf("find aggregate %v (stream %q): %w", id, stream, ErrNotFound)
		}
		return zero, fmt.Errorf("find aggregate %v (stream %q): load failed: %w", id, stream, err)
	}

	records, err := iter.All(ctx)
	if err != nil {
		return zero, fmt.Errorf("find aggregate %v (stream %q): iter failed: %w", id, stream, err)
	}
	if len(records) == 0 {
		return zero, fmt.Errorf("find aggregate %v (stream %q): %w", id, stream, ErrNotFound)
	}

	history := make([]E, len(records))
	for i, rec := range records {
		if rec.Version != uint64(i+1) {
			return zero, fmt.Errorf("find aggregate %v (stream %q): record %d has version %d: %w",
				id, stream, i, rec.Version, ErrInvalidRevision)
		}
		history[i] = rec.Event
	}

	aggregate := r.newAggregate(id)
	if err := aggregate.Rehydrate(history); err != nil {
		return zero, fmt.Errorf("find aggregate %v (stream %q): %w", id, stream, err)
	}
	return aggregate, nil
}

// Save appends the pending events of aggregate to its stream, expecting the
// stream to hold exactly the events the aggregate was rebuilt from. The
// pending buffer is cleared only when the append succeeds.
//
// Committed records are then handed to the configured publishers. A publish
// failure is returned, but the events stay committed.
func (r *EventSourcedRepository[ID, E, A]) Save(ctx context.Context, aggregate A) error {
	stream := r.opts.StreamNamer(ctx, aggregate.ID())

	var committed []Record[E]
	_, err := aggregate.CommitEvents(func(events []E) error {
		if len(events) == 0 {
			return nil
		}

		base := aggregate.Version() - uint64(len(events))
		records := r.records(ctx, stream, base, events)

		if _, err := r.store.Append(ctx, stream, records, ExpectedRevision(base)); err != nil {
			return err
		}
		committed = records
		return nil
	})
	if err != nil {
		return fmt.Errorf("save aggregate %v (stream %q): %w", aggregate.ID(), stream, err)
	}

	return r.publish(ctx, committed)
}

func (r *EventSourcedRepository[ID, E, A]) records(ctx context.Context, stream string, base uint64, events []E) []Record[E] {
	metadata := make(map[string]any)
	for _, fn := range r.opts.MetadataFuncs {
		maps.Copy(metadata, fn(ctx))
	}

	now := r.opts.Clock()
	records := make([]Record[E], len(events))
	for i, event := range events {
		records[i] = Record[E]{
			EventID:    uuid.New(),
			StreamID:   stream,
			EventType:  EventTypeOf(event),
			Version:    base + uint64(i) + 1,
			Event:      event,
			RecordedAt: now,
			Metadata:   maps.Clone(metadata),
		}
	}
	return records
}

func (r *EventSourcedRepository[ID, E, A]) publish(ctx context.Context, records []Record[E]) error {
	var result *multierror.Error
	for _, rec := range records {
		recCtx := WithRecord(ctx, rec)
		for _, p := range r.opts.Publishers {
			if err := p.Publish(recCtx, rec); err != nil {
				result = multierror.Append(result, fmt.Errorf("publish %s (stream %q, version %d): %w",
					rec.EventType, rec.StreamID, rec.Version, err))
			}
		}
	}
	return result.ErrorOrNil()
}

// RepositoryOption configures an EventSourcedRepository.
type RepositoryOption[E Event] func(*repositoryOptions[E])

type repositoryOptions[E Event] struct {
	// StreamNamer produces the stream name of an aggregate identity.
	StreamNamer StreamNamer

	// MetadataFuncs enrich every committed record. Later functions overwrite earlier keys.
	MetadataFuncs []func(ctx context.Context) map[string]any

	// Publishers receive every committed record after a successful append.
	Publishers []Publisher[E]

	// Clock stamps Record.RecordedAt.
	Clock Clock
}

// WithStreamNamer overrides DefaultStreamNamer, for example to prefix
// streams with the aggregate kind.
func WithStreamNamer[E Event](namer StreamNamer) RepositoryOption[E] {
	return func(o *repositoryOptions[E]) { o.StreamNamer = namer }
}

// WithMetadataExtractor adds a metadata function; extractors are applied in
// order of registration.
func WithMetadataExtractor[E Event](fn func(ctx context.Context) map[string]any) RepositoryOption[E] {
	return func(o *repositoryOptions[E]) {
		o.MetadataFuncs = append(o.MetadataFuncs, fn)
	}
}

// WithPublisher adds a Publisher. Use Dispatch to feed a HandlerRegistry.
func WithPublisher[E Event](p Publisher[E]) RepositoryOption[E] {
	return func(o *repositoryOptions[E]) {
		o.Publishers = append(o.Publishers, p)
	}
}

// WithRecordClock sets the clock used for Record.RecordedAt.
func WithRecordClock[E Event](clock Clock) RepositoryOption[E] {
	return func(o *repositoryOptions[E]) { o.Clock = clock }
}

// UpdateOption configures Update.
type UpdateOption func(*updateOptions)

type updateOptions struct {
	// RetryStrategy decides whether to re-run after a revision conflict. Defaults to no retries.
	RetryStrategy backoff.BackOff
}

// WithRetryStrategy sets the backoff used by Update on revision conflicts.
//
// Usage:
//
//	err := Update(ctx, repo, id, fn, WithRetryStrategy(backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 3)))
func WithRetryStrategy(strategy backoff.BackOff) UpdateOption {
	return func(o *updateOptions) { o.RetryStrategy = strategy }
}

// Update loads the aggregate id, applies fn and saves it.
//
// When Save fails with a *StreamRevisionConflictError the whole cycle is run
// again on freshly loaded state, as long as the retry strategy allows it.
// Any other error, including one returned by fn, stops immediately.
func Update[ID comparable, A any](
	ctx context.Context,
	repo Repository[ID, A],
	id ID,
	fn func(aggregate A) error,
	opts ...UpdateOption,
) error {
	cfg := &updateOptions{
		RetryStrategy: &backoff.StopBackOff{},
	}
	for _, o := range opts {
		o(cfg)
	}

	return backoff.Retry(func() error {
		aggregate, err := repo.Find(ctx, id)
		if err != nil {
			return backoff.Permanent(err)
		}
		if err := fn(aggregate); err != nil {
			return backoff.Permanent(err)
		}
		if err := repo.Save(ctx, aggregate); err != nil {
			var conflict *StreamRevisionConflictError
			if errors.As(err, &conflict) {
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}, backoff.WithContext(cfg.RetryStrategy, ctx))
}
