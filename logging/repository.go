package logging

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"github.com/terraskye/eventkernel"
)

type repositoryLogger[ID comparable, A any] struct {
	logger        *logrus.Entry
	next          eventkernel.Repository[ID, A]
	aggregateType string
}

func (r *repositoryLogger[ID, A]) Find(ctx context.Context, id ID) (A, error) {
	aggregate, err := r.next.Find(ctx, id)
	switch {
	case errors.Is(err, eventkernel.ErrNotFound):
		r.logger.Debugf("Find: %s %v not found", r.aggregateType, id)
	case err != nil:
		r.logger.Errorf("Find failed: %s %v: %v", r.aggregateType, id, err)
	}
	return aggregate, err
}

func (r *repositoryLogger[ID, A]) Save(ctx context.Context, aggregate A) error {
	var id any = "?"
	pending := -1
	if agg, ok := any(aggregate).(interface {
		ID() ID
		PendingCount() int
	}); ok {
		id = agg.ID()
		pending = agg.PendingCount()
	}

	r.logger.Infof("Save: %s (aggregateID: %v, pending: %d)", r.aggregateType, id, pending)

	err := r.next.Save(ctx, aggregate)
	if err != nil {
		var conflict *eventkernel.StreamRevisionConflictError
		if errors.As(err, &conflict) {
			r.logger.Warnf("Save conflict: %s (aggregateID: %v): %v", r.aggregateType, id, err)
		} else {
			r.logger.Errorf("Save failed: %s (aggregateID: %v): %v", r.aggregateType, id, err)
		}
	}
	return err
}

// WithRepositoryLogging wraps a Repository with logging functionality.
// It logs every save with the number of pending events, and logs
// failures of both Find and Save.
func WithRepositoryLogging[ID comparable, A any](logger *logrus.Entry, next eventkernel.Repository[ID, A]) eventkernel.Repository[ID, A] {
	return &repositoryLogger[ID, A]{
		logger:        logger,
		next:          next,
		aggregateType: eventkernel.TypeOf[A]().String(),
	}
}
