package eventkernel

import (
	"reflect"
	"sync"
	"time"
)

// Event is a domain event describing a change that has happened to an aggregate.
//
// Concrete events are immutable value types. Aggregates usually group their
// variants behind a sealed interface that embeds Event:
//
//	type OrderEvent interface {
//	    eventkernel.Event
//	    isOrderEvent()
//	}
type Event interface {
	// Timestamp returns the instant the event was created.
	Timestamp() time.Time
}

// EventBase carries the creation timestamp of an event and is meant to be
// embedded by value in concrete events.
type EventBase struct {
	OccurredAt time.Time `json:"occurred_at"`
}

// NewEventBase stamps a new EventBase with the time reported by clock.
// A nil clock falls back to SystemClock.
func NewEventBase(clock Clock) EventBase {
	if clock == nil {
		clock = SystemClock
	}
	return EventBase{OccurredAt: clock()}
}

// Timestamp implements the Event interface.
func (b EventBase) Timestamp() time.Time {
	return b.OccurredAt
}

// Clock is the time source used when events are created.
type Clock func() time.Time

// SystemClock reports the current wall clock time in UTC.
func SystemClock() time.Time {
	return time.Now().UTC()
}

// FixedClock returns a Clock that always reports t.
func FixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

// StepClock returns a Clock that starts at start and advances by step on every call.
// It is safe for concurrent use.
func StepClock(start time.Time, step time.Duration) Clock {
	var mu sync.Mutex
	next := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := next
		next = next.Add(step)
		return t
	}
}

var (
	typeNamesMu sync.RWMutex
	typeNames   = map[reflect.Type]string{}
)

// TypeOf returns the runtime type identity of T. For interface types it
// returns the interface type itself, not nil.
func TypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// TypeName returns the name of the dynamic type of v, without package path
// and pointer markers. It returns an empty string for nil.
func TypeName(v any) string {
	t := reflect.TypeOf(v)
	if t == nil {
		return ""
	}
	return typeName(t)
}

func typeName(t reflect.Type) string {
	typeNamesMu.RLock()
	name, ok := typeNames[t]
	typeNamesMu.RUnlock()
	if ok {
		return name
	}

	base := t
	for base.Kind() == reflect.Pointer {
		base = base.Elem()
	}
	name = base.Name()
	if name == "" {
		name = base.String()
	}

	typeNamesMu.Lock()
	typeNames[t] = name
	typeNamesMu.Unlock()
	return name
}

// EventTypeOf returns the name an event is stored under: the result of its
// EventType method when it has one, its type name otherwise.
func EventTypeOf(event any) string {
	if named, ok := event.(interface{ EventType() string }); ok {
		return named.EventType()
	}
	return TypeName(event)
}
