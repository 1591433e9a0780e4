package fixtures

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/terraskye/eventkernel"
)

// StoreSpy is a configurable EventStore double for testing.
// It tracks calls and allows injecting custom behavior or failures.
type StoreSpy[E eventkernel.Event] struct {
	mu sync.Mutex

	// Function overrides for custom behavior
	AppendFn func(ctx context.Context, stream string, records []eventkernel.Record[E], expected eventkernel.StreamState) (eventkernel.AppendResult, error)
	LoadFn   func(ctx context.Context, stream string) (*eventkernel.Iterator[eventkernel.Record[E]], error)
	CloseFn  func() error

	// Call tracking
	AppendCalls int
	LoadCalls   int
	CloseCalls  int

	// Captured arguments from last call
	LastAppendStream   string
	LastAppendRecords  []eventkernel.Record[E]
	LastAppendExpected eventkernel.StreamState
	LastLoadStream     string

	// Pre-configured data
	streams map[string][]eventkernel.Record[E]

	// Error injection
	loadErr   error
	appendErr error
}

var _ eventkernel.EventStore[GreetingEvent] = (*StoreSpy[GreetingEvent])(nil)

// NewStoreSpy creates a new StoreSpy with default behavior.
func NewStoreSpy[E eventkernel.Event]() *StoreSpy[E] {
	return &StoreSpy[E]{
		streams: make(map[string][]eventkernel.Record[E]),
	}
}

// WithEvents pre-populates stream with events at versions 1..n.
func (s *StoreSpy[E]) WithEvents(stream string, events ...E) *StoreSpy[E] {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := make([]eventkernel.Record[E], len(events))
	for i, e := range events {
		records[i] = eventkernel.Record[E]{
			StreamID:  stream,
			EventType: eventkernel.EventTypeOf(e),
			Version:   uint64(i + 1),
			Event:     e,
		}
	}
	s.streams[stream] = records
	return s
}

// FailOnLoad configures the store to return an error on load operations.
func (s *StoreSpy[E]) FailOnLoad(err error) *StoreSpy[E] {
	s.loadErr = err
	return s
}

// FailOnAppend configures the store to return an error on append operations.
func (s *StoreSpy[E]) FailOnAppend(err error) *StoreSpy[E] {
	s.appendErr = err
	return s
}

// Append implements EventStore.Append. Without an override it only checks
// NoStream and Revision expectations.
func (s *StoreSpy[E]) Append(ctx context.Context, stream string, records []eventkernel.Record[E], expected eventkernel.StreamState) (eventkernel.AppendResult, error) {
	s.mu.Lock()
	s.AppendCalls++
	s.LastAppendStream = stream
	s.LastAppendRecords = records
	s.LastAppendExpected = expected
	fn := s.AppendFn
	appendErr := s.appendErr
	s.mu.Unlock()

	if fn != nil {
		return fn(ctx, stream, records, expected)
	}
	if appendErr != nil {
		return eventkernel.AppendResult{}, appendErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	current := uint64(len(s.streams[stream]))
	var want uint64
	checked := false
	switch rev := expected.(type) {
	case eventkernel.Revision:
		want, checked = uint64(rev), true
	case eventkernel.NoStream:
		checked = true
	}
	if checked && want != current {
		return eventkernel.AppendResult{}, &eventkernel.StreamRevisionConflictError{
			Stream:           stream,
			ExpectedRevision: expected,
			ActualRevision:   eventkernel.Revision(current),
		}
	}
	for _, rec := range records {
		rec.Metadata = maps.Clone(rec.Metadata)
		s.streams[stream] = append(s.streams[stream], rec)
	}
	return eventkernel.AppendResult{
		Successful:          true,
		NextExpectedVersion: current + uint64(len(records)),
	}, nil
}

// Load implements EventStore.Load.
func (s *StoreSpy[E]) Load(ctx context.Context, stream string) (*eventkernel.Iterator[eventkernel.Record[E]], error) {
	s.mu.Lock()
	s.LoadCalls++
	s.LastLoadStream = stream
	fn := s.LoadFn
	loadErr := s.loadErr
	records, ok := s.streams[stream]
	records = append([]eventkernel.Record[E](nil), records...)
	for i := range records {
		records[i].Metadata = maps.Clone(records[i].Metadata)
	}
	s.mu.Unlock()

	if fn != nil {
		return fn(ctx, stream)
	}
	if loadErr != nil {
		return nil, loadErr
	}
	if !ok {
		return nil, fmt.Errorf("load stream %q: %w", stream, eventkernel.ErrStreamNotFound)
	}
	return eventkernel.NewSliceIterator(records), nil
}

// Close implements EventStore.Close.
func (s *StoreSpy[E]) Close() error {
	s.mu.Lock()
	s.CloseCalls++
	fn := s.CloseFn
	s.mu.Unlock()

	if fn != nil {
		return fn()
	}
	return nil
}

// Reset clears call tracking but keeps the stored streams.
func (s *StoreSpy[E]) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AppendCalls = 0
	s.LoadCalls = 0
	s.CloseCalls = 0
	s.LastAppendStream = ""
	s.LastAppendRecords = nil
	s.LastAppendExpected = nil
	s.LastLoadStream = ""
}
