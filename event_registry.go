package eventkernel

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
)

// EventRegistry maps event type names to decoders so that persisted events
// can be turned back into values of the aggregate's event type E.
type EventRegistry[E Event] struct {
	mu       sync.RWMutex
	decoders map[string]func(data []byte) (E, error)
	names    map[reflect.Type]string
}

// NewEventRegistry creates an empty registry.
func NewEventRegistry[E Event]() *EventRegistry[E] {
	return &EventRegistry[E]{
		decoders: make(map[string]func(data []byte) (E, error)),
		names:    make(map[reflect.Type]string),
	}
}

// RegisterEvent registers T under its type name, or under the name returned
// by its EventType method when it has one.
//
// Panics:
//   - If a value of T cannot be held by E.
//   - If the name is already registered.
func RegisterEvent[T any, E Event](r *EventRegistry[E]) {
	var zero T
	RegisterEventName[T](r, EventTypeOf(zero))
}

// RegisterEventName registers T under a custom name.
func RegisterEventName[T any, E Event](r *EventRegistry[E], name string) {
	t := TypeOf[T]()
	if !t.AssignableTo(TypeOf[E]()) {
		panic(fmt.Sprintf("eventkernel: %s is not a %s", t, TypeOf[E]()))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.decoders[name]; exists {
		panic(fmt.Sprintf("event already registered: %s", name))
	}

	r.decoders[name] = func(data []byte) (E, error) {
		v := new(T)
		if err := json.Unmarshal(data, v); err != nil {
			var zero E
			return zero, fmt.Errorf("decode event %q: %w", name, err)
		}
		return any(*v).(E), nil
	}
	r.names[t] = name
}

// NameOf returns the registered name of the dynamic type of event.
func (r *EventRegistry[E]) NameOf(event E) (string, error) {
	t := reflect.TypeOf(any(event))

	r.mu.RLock()
	name, ok := r.names[t]
	r.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownEventType, TypeName(event))
	}
	return name, nil
}

// Decode creates an event from its registered name and JSON payload.
func (r *EventRegistry[E]) Decode(name string, data []byte) (E, error) {
	r.mu.RLock()
	decode, ok := r.decoders[name]
	r.mu.RUnlock()

	if !ok {
		var zero E
		return zero, fmt.Errorf("%w: %s", ErrUnknownEventType, name)
	}
	return decode(data)
}

// Len returns the number of registered event names.
func (r *EventRegistry[E]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.decoders)
}
