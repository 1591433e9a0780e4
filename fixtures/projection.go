package fixtures

import (
	"context"
	"fmt"
	"sync"

	"github.com/terraskye/eventkernel"
)

// GreetingView is the read model kept by GreetingProjection.
type GreetingView struct {
	ID      string
	Message string
	Number  int
	Changes int
}

// GreetingByID queries a single GreetingView.
type GreetingByID struct {
	ID string
}

// GreetingProjection folds published Greeting events into GreetingViews and
// answers GreetingByID queries.
type GreetingProjection struct {
	Handlers eventkernel.HandlerRegistry[GreetingEvent]

	mu    sync.RWMutex
	views map[string]GreetingView
}

var _ eventkernel.QueryService[GreetingByID, GreetingView] = (*GreetingProjection)(nil)

func NewGreetingProjection() *GreetingProjection {
	p := &GreetingProjection{views: make(map[string]GreetingView)}
	eventkernel.Register(&p.Handlers, p.onMessageUpdated)
	eventkernel.Register(&p.Handlers, p.onNumberUpdated)
	return p
}

// Publisher feeds the projection from a repository.
func (p *GreetingProjection) Publisher() eventkernel.Publisher[GreetingEvent] {
	return eventkernel.Dispatch(&p.Handlers)
}

func (p *GreetingProjection) Find(_ context.Context, q GreetingByID) (GreetingView, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	view, ok := p.views[q.ID]
	if !ok {
		return GreetingView{}, fmt.Errorf("greeting %q: %w", q.ID, eventkernel.ErrNotFound)
	}
	return view, nil
}

func (p *GreetingProjection) onMessageUpdated(e MessageUpdated) {
	p.update(e.GreetingID, func(v *GreetingView) { v.Message = e.Message })
}

func (p *GreetingProjection) onNumberUpdated(e NumberUpdated) {
	p.update(e.GreetingID, func(v *GreetingView) { v.Number = e.Number })
}

func (p *GreetingProjection) update(id string, fn func(v *GreetingView)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	view := p.views[id]
	view.ID = id
	fn(&view)
	view.Changes++
	p.views[id] = view
}
