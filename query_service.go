package eventkernel

import "context"

// queryServiceFunc is a helper type to allow ordinary functions to
// implement QueryService[Q, R].
type queryServiceFunc[Q, R any] func(ctx context.Context, query Q) (R, error)

// Find calls the underlying function.
func (f queryServiceFunc[Q, R]) Find(ctx context.Context, query Q) (R, error) {
	return f(ctx, query)
}

// NewQueryServiceFunc creates a QueryService from a function.
//
// Example Usage:
//
//	svc := NewQueryServiceFunc(func(ctx context.Context, q GreetingByID) (*GreetingView, error) {
//	    return views.Get(q.ID)
//	})
func NewQueryServiceFunc[Q, R any](fn func(ctx context.Context, query Q) (R, error)) QueryService[Q, R] {
	return queryServiceFunc[Q, R](fn)
}
