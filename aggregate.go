package eventkernel

import "slices"

// Aggregate is the interface that all event-sourced aggregates implement.
// Concrete aggregates get it by embedding AggregateRoot.
type Aggregate[ID comparable, E Event] interface {

	// ID returns the stable identity of the aggregate.
	ID() ID

	// Version returns the number of events ever applied to this instance.
	Version() uint64

	// PendingCount returns the number of applied events not yet extracted.
	PendingCount() int

	// FlushEvents returns the pending events and clears the buffer.
	FlushEvents() []E

	// WithEvents returns the pending events and clears the buffer only if pred holds.
	WithEvents(pred func(events []E) bool) []E

	// CommitEvents hands the pending events to commit and clears the buffer only if commit succeeds.
	CommitEvents(commit func(events []E) error) ([]E, error)

	// Rehydrate replays history without recording pending events.
	Rehydrate(history []E) error
}

// AggregateRoot tracks the identity, version and pending events of an aggregate.
//
// It is embedded by value in a concrete aggregate, which passes its own
// event handling function at construction:
//
//	type Order struct {
//	    eventkernel.AggregateRoot[string, OrderEvent]
//	    status string
//	}
//
//	func NewOrder(id string) *Order {
//	    o := &Order{}
//	    o.AggregateRoot = eventkernel.NewAggregateRoot(id, o.handleEvent)
//	    return o
//	}
//
// Every state change goes through ApplyEvent or ApplyDecision. The handler
// must only map an event onto field mutations: it must not decide whether an
// event applies, must not create events and must be safe to call during replay.
//
// AggregateRoot is not safe for concurrent use.
type AggregateRoot[ID comparable, E Event] struct {
	id      ID
	version uint64
	pending []E
	handle  func(E) error
}

// NewAggregateRoot creates a fresh root at version 0 with no pending events.
func NewAggregateRoot[ID comparable, E Event](id ID, handle func(event E) error) AggregateRoot[ID, E] {
	if handle == nil {
		panic("eventkernel: nil event handler")
	}
	return AggregateRoot[ID, E]{
		id:     id,
		handle: handle,
	}
}

// ID implements the Aggregate interface.
func (a *AggregateRoot[ID, E]) ID() ID {
	return a.id
}

// Version implements the Aggregate interface.
func (a *AggregateRoot[ID, E]) Version() uint64 {
	return a.version
}

// PendingCount implements the Aggregate interface.
func (a *AggregateRoot[ID, E]) PendingCount() int {
	return len(a.pending)
}

// ApplyEvent applies an already decided event: the handler updates state,
// the version is incremented and the event is appended to the pending buffer.
//
// If the handler rejects the event a *CorruptEventError is returned and
// neither the version nor the pending buffer change.
func (a *AggregateRoot[ID, E]) ApplyEvent(event E) error {
	if err := a.handle(event); err != nil {
		return &CorruptEventError{Index: -1, Event: event, Err: err}
	}
	a.version++
	a.pending = append(a.pending, event)
	return nil
}

// ApplyDecision runs decide and applies the event it returns.
//
// decide reports ok=false when no state change is warranted, in which case
// nothing happens. A non-nil error from decide is returned unchanged, before
// any effect on the aggregate.
//
//	func (o *Order) Ship() error {
//	    return o.ApplyDecision(func() (OrderEvent, bool, error) {
//	        if o.status == "shipped" {
//	            return nil, false, nil
//	        }
//	        return OrderShipped{EventBase: eventkernel.NewEventBase(nil)}, true, nil
//	    })
//	}
func (a *AggregateRoot[ID, E]) ApplyDecision(decide func() (E, bool, error)) error {
	event, ok, err := decide()
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return a.ApplyEvent(event)
}

// FlushEvents returns the pending events in insertion order and clears the
// buffer. Ownership of the returned slice passes to the caller.
func (a *AggregateRoot[ID, E]) FlushEvents() []E {
	events := a.pending
	a.pending = nil
	return events
}

// WithEvents evaluates pred against a copy of the pending events and clears
// the buffer only if pred returns true. The copy is returned either way.
// If pred panics the buffer is left untouched.
func (a *AggregateRoot[ID, E]) WithEvents(pred func(events []E) bool) []E {
	events := slices.Clone(a.pending)
	if pred(events) {
		a.pending = nil
	}
	return events
}

// CommitEvents is the fallible form of WithEvents: the buffer is cleared only
// when commit returns nil. A commit error is returned as is and the pending
// events stay in place for a later attempt.
func (a *AggregateRoot[ID, E]) CommitEvents(commit func(events []E) error) ([]E, error) {
	events := slices.Clone(a.pending)
	if err := commit(events); err != nil {
		return events, err
	}
	a.pending = nil
	return events, nil
}

// Rehydrate replays history in order, incrementing the version for every
// event without touching the pending buffer.
//
// The first event the handler rejects stops the replay with a
// *CorruptEventError. The instance is then partially rebuilt and should be
// discarded or quarantined by the caller.
func (a *AggregateRoot[ID, E]) Rehydrate(history []E) error {
	for i, event := range history {
		if err := a.handle(event); err != nil {
			return &CorruptEventError{Index: i, Event: event, Err: err}
		}
		a.version++
	}
	return nil
}
