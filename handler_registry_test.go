package eventkernel_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/terraskye/eventkernel"
)

type accountOpened struct {
	eventkernel.EventBase
	Owner string
}

type accountClosed struct {
	eventkernel.EventBase
}

type accountFrozen struct {
	eventkernel.EventBase
}

func TestHandlerRegistry_DispatchesInRegistrationOrder(t *testing.T) {
	var calls []string
	r := &eventkernel.HandlerRegistry[eventkernel.Event]{}

	eventkernel.Register(r, func(e accountOpened) { calls = append(calls, "first:"+e.Owner) })
	eventkernel.Register(r, func(e accountOpened) { calls = append(calls, "second:"+e.Owner) })
	eventkernel.Register(r, func(accountClosed) { calls = append(calls, "closed") })

	r.Handle(accountOpened{Owner: "ada"})
	require.Equal(t, []string{"first:ada", "second:ada"}, calls)

	r.Handle(accountClosed{})
	require.Equal(t, []string{"first:ada", "second:ada", "closed"}, calls)
}

func TestHandlerRegistry_UnknownTypeIsNoOp(t *testing.T) {
	var calls int
	r := eventkernel.NewHandlerRegistry[eventkernel.Event]()
	eventkernel.Register(r, func(accountOpened) { calls++ })

	require.NotPanics(t, func() { r.Handle(accountFrozen{}) })
	require.NotPanics(t, func() { r.Handle(nil) })
	require.Zero(t, calls)
}

func TestHandlerRegistry_ExactTypeMatch(t *testing.T) {
	var value, pointer int
	r := eventkernel.NewHandlerRegistry[eventkernel.Event]()
	eventkernel.Register(r, func(accountOpened) { value++ })
	eventkernel.Register(r, func(*accountOpened) { pointer++ })

	r.Handle(accountOpened{})
	r.Handle(&accountOpened{})
	r.Handle(&accountOpened{})

	require.Equal(t, 1, value)
	require.Equal(t, 2, pointer)
}

func TestHandlerRegistry_InterfaceRegistrationNeverFires(t *testing.T) {
	var calls int
	r := eventkernel.NewHandlerRegistry[eventkernel.Event]()
	eventkernel.Register(r, func(eventkernel.Event) { calls++ })

	r.Handle(accountOpened{})
	require.Zero(t, calls)
	require.True(t, r.Handles(eventkernel.TypeOf[eventkernel.Event]()))
}

func TestHandlerRegistry_ExplicitRegister(t *testing.T) {
	var got eventkernel.Event
	r := eventkernel.NewHandlerRegistry[eventkernel.Event]()
	r.Register(reflect.TypeOf(accountClosed{}), func(e eventkernel.Event) { got = e })

	r.Handle(accountClosed{})
	require.IsType(t, accountClosed{}, got)
}

func TestHandlerRegistry_RegisterPanics(t *testing.T) {
	r := eventkernel.NewHandlerRegistry[eventkernel.Event]()

	require.Panics(t, func() { eventkernel.Register(r, func(string) {}) }, "string is not an Event")
	require.Panics(t, func() { eventkernel.Register[accountOpened](r, nil) })
	require.Panics(t, func() { r.Register(nil, func(eventkernel.Event) {}) })
}

func TestHandlerRegistry_Introspection(t *testing.T) {
	r := eventkernel.NewHandlerRegistry[eventkernel.Event]()
	eventkernel.Register(r, func(accountOpened) {})
	eventkernel.Register(r, func(accountClosed) {})

	require.True(t, r.Handles(reflect.TypeOf(accountOpened{})))
	require.False(t, r.Handles(reflect.TypeOf(accountFrozen{})))
	require.Equal(t, []string{"accountClosed", "accountOpened"}, r.EventTypes())

	eventkernel.Register(r, func(*accountOpened) {})
	require.Equal(t, []string{"*accountOpened", "accountClosed", "accountOpened"}, r.EventTypes())
}

func TestHandlerRegistry_HandleSafely(t *testing.T) {
	var calls []string
	r := eventkernel.NewHandlerRegistry[eventkernel.Event]()
	eventkernel.Register(r, func(accountOpened) { calls = append(calls, "first") })
	eventkernel.Register(r, func(accountOpened) { panic(errors.New("projection broken")) })
	eventkernel.Register(r, func(accountOpened) { panic("plain panic") })
	eventkernel.Register(r, func(accountOpened) { calls = append(calls, "last") })

	err := r.HandleSafely(accountOpened{})
	require.Error(t, err)
	require.ErrorContains(t, err, "projection broken")
	require.ErrorContains(t, err, "plain panic")
	require.Equal(t, []string{"first", "last"}, calls)

	require.NoError(t, r.HandleSafely(accountClosed{}))
}
