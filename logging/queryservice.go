package logging

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"github.com/terraskye/eventkernel"
)

type queryServiceLogger[Q, R any] struct {
	logger *logrus.Entry
	next   eventkernel.QueryService[Q, R]
}

func (q *queryServiceLogger[Q, R]) Find(ctx context.Context, qry Q) (R, error) {
	qryType := eventkernel.TypeOf[Q]().String()
	q.logger.Infof("Query: %s", qryType)

	result, err := q.next.Find(ctx, qry)
	if err != nil && !errors.Is(err, eventkernel.ErrNotFound) {
		q.logger.Errorf("Query failed: %s: %v", qryType, err)
	}

	return result, err
}

// WithQueryLogging wraps a QueryService with logging functionality.
// It logs the query type before execution, and logs errors other than
// ErrNotFound if the query fails.
func WithQueryLogging[Q, R any](logger *logrus.Entry, next eventkernel.QueryService[Q, R]) eventkernel.QueryService[Q, R] {
	return &queryServiceLogger[Q, R]{
		logger: logger,
		next:   next,
	}
}
