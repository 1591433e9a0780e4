package logging_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"github.com/terraskye/eventkernel"
	"github.com/terraskye/eventkernel/eventstore/memory"
	"github.com/terraskye/eventkernel/fixtures"
	"github.com/terraskye/eventkernel/logging"
)

func newLogger() (*logrus.Entry, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return logrus.NewEntry(logger), hook
}

func TestRepositoryLogging(t *testing.T) {
	ctx := context.Background()
	entry, hook := newLogger()

	repo := logging.WithRepositoryLogging[string, *fixtures.Greeting](entry,
		eventkernel.NewEventSourcedRepository(memory.NewMemoryStore[fixtures.GreetingEvent](), func(id string) *fixtures.Greeting {
			return fixtures.NewGreeting(id, nil)
		}),
	)

	g := fixtures.NewGreeting("ABC123", nil)
	require.NoError(t, g.SetMessage("Hello"))
	require.NoError(t, repo.Save(ctx, g))

	require.Equal(t, logrus.InfoLevel, hook.LastEntry().Level)
	require.Contains(t, hook.LastEntry().Message, "aggregateID: ABC123, pending: 1")

	_, err := repo.Find(ctx, "missing")
	require.ErrorIs(t, err, eventkernel.ErrNotFound)
	require.Equal(t, logrus.DebugLevel, hook.LastEntry().Level)

	stale := fixtures.NewGreeting("ABC123", nil)
	require.NoError(t, stale.SetMessage("late"))
	require.Error(t, repo.Save(ctx, stale))
	require.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	require.Contains(t, hook.LastEntry().Message, "Save conflict")
}

func TestRepositoryLogging_Error(t *testing.T) {
	entry, hook := newLogger()
	errDisk := errors.New("disk on fire")

	repo := logging.WithRepositoryLogging[string, *fixtures.Greeting](entry,
		eventkernel.NewEventSourcedRepository(fixtures.NewStoreSpy[fixtures.GreetingEvent]().FailOnLoad(errDisk), func(id string) *fixtures.Greeting {
			return fixtures.NewGreeting(id, nil)
		}),
	)

	_, err := repo.Find(context.Background(), "ABC123")
	require.ErrorIs(t, err, errDisk)
	require.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	require.Contains(t, hook.LastEntry().Message, "disk on fire")
}

func TestQueryLogging(t *testing.T) {
	entry, hook := newLogger()
	errIndex := errors.New("index offline")

	svc := logging.WithQueryLogging(entry, eventkernel.NewQueryServiceFunc(func(_ context.Context, q fixtures.GreetingByID) (fixtures.GreetingView, error) {
		switch q.ID {
		case "broken":
			return fixtures.GreetingView{}, errIndex
		case "missing":
			return fixtures.GreetingView{}, eventkernel.ErrNotFound
		}
		return fixtures.GreetingView{ID: q.ID}, nil
	}))

	_, err := svc.Find(context.Background(), fixtures.GreetingByID{ID: "a"})
	require.NoError(t, err)
	require.Len(t, hook.AllEntries(), 1)
	require.Equal(t, "Query: fixtures.GreetingByID", hook.LastEntry().Message)

	hook.Reset()
	_, err = svc.Find(context.Background(), fixtures.GreetingByID{ID: "missing"})
	require.ErrorIs(t, err, eventkernel.ErrNotFound)
	require.Len(t, hook.AllEntries(), 1)

	hook.Reset()
	_, err = svc.Find(context.Background(), fixtures.GreetingByID{ID: "broken"})
	require.ErrorIs(t, err, errIndex)
	require.Len(t, hook.AllEntries(), 2)
	require.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
}

func TestPublisherLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	errBroken := errors.New("broken read model")

	projection := fixtures.NewGreetingProjection()
	failing := eventkernel.PublisherFunc[fixtures.GreetingEvent](func(context.Context, eventkernel.Record[fixtures.GreetingEvent]) error {
		return errBroken
	})

	repo := eventkernel.NewEventSourcedRepository(memory.NewMemoryStore[fixtures.GreetingEvent](), func(id string) *fixtures.Greeting {
		return fixtures.NewGreeting(id, nil)
	},
		eventkernel.WithPublisher(logging.WithPublisherLogging(logger, projection.Publisher())),
		eventkernel.WithPublisher(logging.WithPublisherLogging[fixtures.GreetingEvent](logger, failing)),
	)

	g := fixtures.NewGreeting("ABC123", nil)
	require.NoError(t, g.SetMessage("Hello"))
	require.ErrorIs(t, repo.Save(context.Background(), g), errBroken)

	out := buf.String()
	require.Contains(t, out, "stream-id=ABC123")
	require.Contains(t, out, "event-type=MessageUpdated")
	require.Contains(t, out, "version=1")
	require.Contains(t, out, "event published successfully")
	require.Contains(t, out, `msg="error publishing event"`)

	view, err := projection.Find(context.Background(), fixtures.GreetingByID{ID: "ABC123"})
	require.NoError(t, err)
	require.Equal(t, "Hello", view.Message)
}
