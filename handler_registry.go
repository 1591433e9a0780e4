package eventkernel

import (
	"fmt"
	"reflect"
	"slices"

	"github.com/hashicorp/go-multierror"
)

// Handler reacts to a single event.
type Handler[E any] func(event E)

// HandlerRegistry routes events to the handlers registered for their exact
// runtime type. It is embedded by consumers that are not aggregates, such as
// read-model projectors:
//
//	type OrderProjector struct {
//	    eventkernel.HandlerRegistry[OrderEvent]
//	    shipped int
//	}
//
//	func NewOrderProjector() *OrderProjector {
//	    p := &OrderProjector{}
//	    eventkernel.Register(&p.HandlerRegistry, p.onShipped)
//	    return p
//	}
//
// Dispatch is keyed on the dynamic type of the event: a handler registered for
// OrderShipped never sees *OrderShipped, and a handler registered for an
// interface type never sees anything, since no value has an interface as its
// dynamic type.
//
// The zero value is ready to use. A HandlerRegistry is not synchronized:
// configure it once, after which concurrent Handle calls are safe.
type HandlerRegistry[T any] struct {
	handlers map[reflect.Type][]Handler[T]
}

// NewHandlerRegistry creates an empty registry.
func NewHandlerRegistry[T any]() *HandlerRegistry[T] {
	return &HandlerRegistry[T]{
		handlers: make(map[reflect.Type][]Handler[T]),
	}
}

// Register appends handler to the list for eventType. Handlers for the same
// type are invoked in registration order.
func (r *HandlerRegistry[T]) Register(eventType reflect.Type, handler Handler[T]) {
	if eventType == nil {
		panic("eventkernel: cannot register handler for nil type")
	}
	if handler == nil {
		panic(fmt.Sprintf("eventkernel: nil handler for %s", eventType))
	}
	if r.handlers == nil {
		r.handlers = make(map[reflect.Type][]Handler[T])
	}
	r.handlers[eventType] = append(r.handlers[eventType], handler)
}

// Register adds a typed handler to r, keyed by E. It is the type-inferred form
// of HandlerRegistry.Register:
//
//	eventkernel.Register(registry, func(e OrderShipped) { ... })
//
// It panics if a value of type E cannot be held by T.
func Register[E, T any](r *HandlerRegistry[T], handler Handler[E]) {
	eventType := TypeOf[E]()
	if !eventType.AssignableTo(TypeOf[T]()) {
		panic(fmt.Sprintf("eventkernel: %s cannot be dispatched by a registry of %s", eventType, TypeOf[T]()))
	}
	if handler == nil {
		panic(fmt.Sprintf("eventkernel: nil handler for %s", eventType))
	}
	r.Register(eventType, func(event T) {
		handler(any(event).(E))
	})
}

// Handle invokes, in registration order, every handler registered for the
// dynamic type of event. Events without handlers are ignored.
func (r *HandlerRegistry[T]) Handle(event T) {
	for _, h := range r.lookup(event) {
		h(event)
	}
}

// HandleSafely behaves like Handle but recovers a panicking handler, keeps
// dispatching to the remaining ones and returns the collected failures.
func (r *HandlerRegistry[T]) HandleSafely(event T) error {
	var result *multierror.Error
	for i, h := range r.lookup(event) {
		if err := invokeRecovered(h, event); err != nil {
			result = multierror.Append(result, fmt.Errorf("handler %d for %s: %w", i, TypeName(event), err))
		}
	}
	return result.ErrorOrNil()
}

// Handles reports whether at least one handler is registered for eventType.
func (r *HandlerRegistry[T]) Handles(eventType reflect.Type) bool {
	return len(r.handlers[eventType]) > 0
}

// EventTypes returns a sorted list of the event type names with registered
// handlers. Pointer types keep their "*" so T and *T stay distinguishable.
func (r *HandlerRegistry[T]) EventTypes() []string {
	out := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		prefix := ""
		for k := t; k.Kind() == reflect.Pointer; k = k.Elem() {
			prefix += "*"
		}
		out = append(out, prefix+typeName(t))
	}
	slices.Sort(out)
	return out
}

func (r *HandlerRegistry[T]) lookup(event T) []Handler[T] {
	t := reflect.TypeOf(any(event))
	if t == nil {
		return nil
	}
	return r.handlers[t]
}

func invokeRecovered[T any](h Handler[T], event T) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			if e, ok := rec.(error); ok {
				err = e
				return
			}
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	h(event)
	return nil
}
