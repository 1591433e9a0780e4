package fixtures

import (
	"fmt"

	"github.com/terraskye/eventkernel"
)

// GreetingEvent enumerates the events of the Greeting aggregate.
type GreetingEvent interface {
	eventkernel.Event
	isGreetingEvent()
}

// MessageUpdated records a new greeting message.
type MessageUpdated struct {
	eventkernel.EventBase
	GreetingID string `json:"greeting_id"`
	Message    string `json:"message"`
}

// NumberUpdated records a new non-negative number.
type NumberUpdated struct {
	eventkernel.EventBase
	GreetingID string `json:"greeting_id"`
	Number     int    `json:"number"`
}

// CorruptEvent is a GreetingEvent variant that Greeting refuses to apply. It
// stands in for history the current aggregate code cannot interpret.
type CorruptEvent struct {
	eventkernel.EventBase
	Reason string `json:"reason"`
}

func (MessageUpdated) isGreetingEvent() {}
func (NumberUpdated) isGreetingEvent()  {}
func (CorruptEvent) isGreetingEvent()   {}

// NewGreetingEventRegistry registers every decodable Greeting event.
func NewGreetingEventRegistry() *eventkernel.EventRegistry[GreetingEvent] {
	r := eventkernel.NewEventRegistry[GreetingEvent]()
	eventkernel.RegisterEvent[MessageUpdated](r)
	eventkernel.RegisterEvent[NumberUpdated](r)
	return r
}

// Greeting is a small aggregate holding a message and a non-negative number.
type Greeting struct {
	eventkernel.AggregateRoot[string, GreetingEvent]

	clock   eventkernel.Clock
	message string
	number  int
}

var _ eventkernel.Aggregate[string, GreetingEvent] = (*Greeting)(nil)

// NewGreeting creates a fresh Greeting. A nil clock uses eventkernel.SystemClock.
func NewGreeting(id string, clock eventkernel.Clock) *Greeting {
	g := &Greeting{clock: clock}
	g.AggregateRoot = eventkernel.NewAggregateRoot(id, g.handleEvent)
	return g
}

// RehydrateGreeting rebuilds a Greeting from its history.
func RehydrateGreeting(id string, history []GreetingEvent) (*Greeting, error) {
	g := NewGreeting(id, nil)
	if err := g.Rehydrate(history); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Greeting) Message() string { return g.message }
func (g *Greeting) Number() int     { return g.number }

// SetMessage changes the message; setting the current message is a no-op.
func (g *Greeting) SetMessage(msg string) error {
	return g.ApplyDecision(func() (GreetingEvent, bool, error) {
		if msg == g.message {
			return nil, false, nil
		}
		return MessageUpdated{
			EventBase:  eventkernel.NewEventBase(g.clock),
			GreetingID: g.ID(),
			Message:    msg,
		}, true, nil
	})
}

// SetPositiveNumber changes the number. Negative numbers are rejected with a
// validation error; setting the current number is a no-op.
func (g *Greeting) SetPositiveNumber(n int) error {
	return g.ApplyDecision(func() (GreetingEvent, bool, error) {
		if n < 0 {
			return nil, false, eventkernel.Invalid("number", n, "must not be negative")
		}
		if n == g.number {
			return nil, false, nil
		}
		return NumberUpdated{
			EventBase:  eventkernel.NewEventBase(g.clock),
			GreetingID: g.ID(),
			Number:     n,
		}, true, nil
	})
}

func (g *Greeting) handleEvent(event GreetingEvent) error {
	switch e := event.(type) {
	case MessageUpdated:
		g.message = e.Message
	case NumberUpdated:
		g.number = e.Number
	default:
		return fmt.Errorf("%w: %T", eventkernel.ErrUnknownEventType, event)
	}
	return nil
}
