package eventkernel

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository loads and saves event-sourced aggregates.
//
// Save is expected to extract the pending events of the aggregate with
// FlushEvents, WithEvents or CommitEvents and to keep the persisted history of
// an identity append-only and ordered.
type Repository[ID comparable, A any] interface {
	// Find returns the aggregate with the given identity, or ErrNotFound.
	Find(ctx context.Context, id ID) (A, error)

	// Save persists the pending events of aggregate.
	Save(ctx context.Context, aggregate A) error
}

// QueryService answers queries from read models that are built independently
// of any aggregate state, usually by a HandlerRegistry based projector.
type QueryService[Q, R any] interface {
	// Find returns the result for query, or ErrNotFound.
	Find(ctx context.Context, query Q) (R, error)
}

// CrudRepository is the persistence contract for aggregates that do not need
// history replay.
type CrudRepository[ID comparable, A any] interface {
	FindByID(ctx context.Context, id ID) (A, error)
	Save(ctx context.Context, entity A) error
	Delete(ctx context.Context, id ID) error
	FindAll(ctx context.Context) ([]A, error)
}

// Record is a committed event together with its storage coordinates.
type Record[E Event] struct {
	EventID    uuid.UUID
	StreamID   string
	EventType  string
	Version    uint64
	Event      E
	RecordedAt time.Time
	Metadata   map[string]any
}

// EventStore defines the contract for an append-only event store.
//
// Implementations must guarantee:
//   - Records of a stream are stored and returned in version order.
//   - The StreamState passed to Append is enforced atomically with the write.
type EventStore[E Event] interface {
	// Append adds records to the end of stream.
	//
	// Errors:
	//   - *StreamRevisionConflictError if the stream is not at the expected revision.
	//   - ErrStreamExists / ErrStreamNotFound for NoStream / StreamExists expectations.
	//   - Any store-specific persistence error.
	Append(ctx context.Context, stream string, records []Record[E], expected StreamState) (AppendResult, error)

	// Load returns the records of stream from version 1 onward, or ErrStreamNotFound.
	Load(ctx context.Context, stream string) (*Iterator[Record[E]], error)

	// Close releases any resources held by the store. Close is idempotent.
	Close() error
}

// AppendResult describes the outcome of an append operation.
type AppendResult struct {
	Successful          bool
	NextExpectedVersion uint64
}

// Publisher receives committed records, in order, after a successful save.
// The context carries the record coordinates, see WithRecord.
type Publisher[E Event] interface {
	Publish(ctx context.Context, record Record[E]) error
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc[E Event] func(ctx context.Context, record Record[E]) error

func (f PublisherFunc[E]) Publish(ctx context.Context, record Record[E]) error {
	return f(ctx, record)
}

// Dispatch returns a Publisher that feeds committed events into registry.
// Panicking handlers are reported as an error instead of aborting the save.
func Dispatch[E Event](registry *HandlerRegistry[E]) Publisher[E] {
	return PublisherFunc[E](func(ctx context.Context, record Record[E]) error {
		return registry.HandleSafely(record.Event)
	})
}
