package eventkernel

import (
	"context"
	"fmt"
)

// QueryGateway provides a typed QueryService for a query registered on a
// QueryBus. Lookup of the service happens at query time, so a gateway can be
// created before the service is registered.
//
// Example Usage:
//
//	gateway := NewQueryGateway[MyQuery, *MyResult](bus)
//	result, err := gateway.Find(ctx, MyQuery{ID: "42"})
type QueryGateway[Q, R any] struct {
	bus *QueryBus
}

var _ QueryService[struct{}, struct{}] = QueryGateway[struct{}, struct{}]{}

// NewQueryGateway creates a typed gateway backed by bus.
func NewQueryGateway[Q, R any](bus *QueryBus) QueryGateway[Q, R] {
	return QueryGateway[Q, R]{bus: bus}
}

// Find executes the registered service for query. It returns
// ErrHandlerNotFound if nothing is registered for Q and R.
func (g QueryGateway[Q, R]) Find(ctx context.Context, query Q) (R, error) {
	var zero R
	key := queryKey[Q, R]()

	s, ok := g.bus.lookup(key)
	if !ok {
		return zero, fmt.Errorf("no service registered for query %s: %w", key, ErrHandlerNotFound)
	}

	svc, ok := s.(QueryService[Q, R])
	if !ok {
		return zero, fmt.Errorf("service type mismatch for query %s", key)
	}

	return svc.Find(ctx, query)
}
