package eventkernel

import (
	"fmt"
	"sync"
)

// QueryBus acts as a central registry for query services. It stores
// services keyed by their query and result types, allowing multiple
// query types to be registered in a single bus.
//
// Services are executed through a typed QueryGateway.
//
// Example Usage:
//
//	bus := NewQueryBus()
//	RegisterQueryService(bus, NewQueryServiceFunc(func(ctx context.Context, q MyQuery) (*MyResult, error) {
//	    return &MyResult{Value: 42}, nil
//	}))
type QueryBus struct {
	mu       sync.RWMutex
	services map[string]any
}

// NewQueryBus creates a new QueryBus instance.
func NewQueryBus() *QueryBus {
	return &QueryBus{
		services: make(map[string]any),
	}
}

func queryKey[Q, R any]() string {
	return fmt.Sprintf("%s|%s", TypeOf[Q](), TypeOf[R]())
}

// RegisterQueryService registers svc for the query type Q and result type R.
//
// Registering a second service for the same pair panics.
func RegisterQueryService[Q, R any](bus *QueryBus, svc QueryService[Q, R]) {
	key := queryKey[Q, R]()

	bus.mu.Lock()
	defer bus.mu.Unlock()

	if _, exists := bus.services[key]; exists {
		panic(fmt.Sprintf("duplicate query service for %s", key))
	}
	bus.services[key] = svc
}

func (b *QueryBus) lookup(key string) (any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	svc, ok := b.services[key]
	return svc, ok
}

// Len returns the number of registered services.
func (b *QueryBus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.services)
}
