package eventkernel

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by collaborators when the requested aggregate or read model is absent.
	ErrNotFound = errors.New("not found")

	// ErrValidation marks a mutator rejection. The aggregate is left untouched.
	ErrValidation = errors.New("validation failed")

	// ErrCorruptEvent marks an event the current aggregate implementation cannot interpret.
	ErrCorruptEvent = errors.New("corrupt event")

	ErrUnknownEventType  = errors.New("unknown event type")
	ErrHandlerNotFound   = errors.New("handler not found")
	ErrStreamExists      = errors.New("stream already exists")
	ErrStreamNotFound    = errors.New("stream not found")
	ErrInvalidRevision   = errors.New("invalid revision")
	ErrInvalidEventBatch = errors.New("invalid event batch")
	ErrInvalidStreamName = errors.New("invalid stream name")
)

// ValidationError is returned by decision procedures that reject a mutation.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

// Invalid builds a ValidationError for field.
func Invalid(field string, value any, reason string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// CorruptEventError is returned when an event cannot be applied to an aggregate.
// It is fatal for the aggregate instance; the core never attempts to repair it.
type CorruptEventError struct {
	// Index is the position of the event in the replayed history, or -1 on the live path.
	Index int
	Event Event
	Err   error
}

func (e *CorruptEventError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("apply event %T: %v", e.Event, e.Err)
	}
	return fmt.Sprintf("rehydrate event %d (%T): %v", e.Index, e.Event, e.Err)
}

func (e *CorruptEventError) Is(target error) bool {
	return target == ErrCorruptEvent
}

func (e *CorruptEventError) Unwrap() error {
	return e.Err
}

// StreamRevisionConflictError is returned by an EventStore when the expected
// revision does not match the actual state of the stream.
type StreamRevisionConflictError struct {
	Stream           string
	ExpectedRevision StreamState
	ActualRevision   Revision
}

func (s *StreamRevisionConflictError) Error() string {
	return fmt.Sprintf("concurrency conflict on stream %q: (expected version %v, actual %d)",
		s.Stream, s.ExpectedRevision, uint64(s.ActualRevision))
}

// Is reports a failed NoStream expectation as ErrStreamExists.
func (s *StreamRevisionConflictError) Is(target error) bool {
	if target != ErrStreamExists {
		return false
	}
	_, ok := s.ExpectedRevision.(NoStream)
	return ok
}

type EventStoreError struct {
	Err error
}

func (e *EventStoreError) Error() string {
	return fmt.Sprintf("eventstore error: %v", e.Err)
}

func (e *EventStoreError) Unwrap() error {
	return e.Err
}

func WrapEventStoreError(err error) error {
	if err == nil {
		return nil
	}
	return &EventStoreError{Err: err}
}
