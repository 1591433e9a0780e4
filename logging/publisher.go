package logging

import (
	"context"
	"log/slog"

	"github.com/terraskye/eventkernel"
)

// WithPublisherLogging logs every committed record handed to next, using the
// record coordinates carried by the context.
func WithPublisherLogging[E eventkernel.Event](logger *slog.Logger, next eventkernel.Publisher[E]) eventkernel.Publisher[E] {
	return eventkernel.PublisherFunc[E](func(ctx context.Context, record eventkernel.Record[E]) error {
		l := logger.With(
			"stream-id", eventkernel.StreamIDFromContext(ctx),
			"event-id", eventkernel.EventIDFromContext(ctx),
			"event-type", eventkernel.EventTypeFromContext(ctx),
			"version", eventkernel.VersionFromContext(ctx),
		)

		l.DebugContext(ctx, "event publishing started")

		err := next.Publish(ctx, record)

		if err != nil {
			l.ErrorContext(ctx, "error publishing event", "error", err)
		} else {
			l.DebugContext(ctx, "event published successfully")
		}

		return err
	})
}
