package eventkernel_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/require"
	"github.com/terraskye/eventkernel"
	"github.com/terraskye/eventkernel/eventstore/memory"
	"github.com/terraskye/eventkernel/fixtures"
)

type greetingRepository = eventkernel.EventSourcedRepository[string, fixtures.GreetingEvent, *fixtures.Greeting]

func newGreetingRepository(store eventkernel.EventStore[fixtures.GreetingEvent], opts ...eventkernel.RepositoryOption[fixtures.GreetingEvent]) *greetingRepository {
	return eventkernel.NewEventSourcedRepository(store, func(id string) *fixtures.Greeting {
		return fixtures.NewGreeting(id, eventkernel.FixedClock(epoch))
	}, opts...)
}

func TestEventSourcedRepository_SaveAndFind(t *testing.T) {
	ctx := t.Context()
	store := memory.NewMemoryStore[fixtures.GreetingEvent]()
	repo := newGreetingRepository(store)

	g := newGreeting(t)
	require.NoError(t, repo.Save(ctx, g))
	require.Zero(t, g.PendingCount())

	found, err := repo.Find(ctx, "ABC123")
	require.NoError(t, err)
	require.Equal(t, uint64(3), found.Version())
	require.Equal(t, "Hello2", found.Message())
	require.Equal(t, 42, found.Number())
	require.Zero(t, found.PendingCount())

	require.NoError(t, found.SetPositiveNumber(7))
	require.NoError(t, repo.Save(ctx, found))

	again, err := repo.Find(ctx, "ABC123")
	require.NoError(t, err)
	require.Equal(t, uint64(4), again.Version())
	require.Equal(t, 7, again.Number())
}

func TestEventSourcedRepository_FindMissing(t *testing.T) {
	repo := newGreetingRepository(memory.NewMemoryStore[fixtures.GreetingEvent]())

	_, err := repo.Find(t.Context(), "nope")
	require.ErrorIs(t, err, eventkernel.ErrNotFound)
}

func TestEventSourcedRepository_FindLoadError(t *testing.T) {
	errDisk := errors.New("disk on fire")
	repo := newGreetingRepository(fixtures.NewStoreSpy[fixtures.GreetingEvent]().FailOnLoad(errDisk))

	_, err := repo.Find(t.Context(), "ABC123")
	require.ErrorIs(t, err, errDisk)
	require.NotErrorIs(t, err, eventkernel.ErrNotFound)
}

func TestEventSourcedRepository_FindCorruptHistory(t *testing.T) {
	spy := fixtures.NewStoreSpy[fixtures.GreetingEvent]().WithEvents("ABC123",
		fixtures.MessageUpdated{GreetingID: "ABC123", Message: "Hello"},
		fixtures.CorruptEvent{Reason: "unknown"},
	)
	repo := newGreetingRepository(spy)

	_, err := repo.Find(t.Context(), "ABC123")
	require.ErrorIs(t, err, eventkernel.ErrCorruptEvent)
}

func TestEventSourcedRepository_FindRejectsGaps(t *testing.T) {
	spy := fixtures.NewStoreSpy[fixtures.GreetingEvent]()
	spy.LoadFn = func(ctx context.Context, stream string) (*eventkernel.Iterator[eventkernel.Record[fixtures.GreetingEvent]], error) {
		return eventkernel.NewSliceIterator([]eventkernel.Record[fixtures.GreetingEvent]{
			{Version: 1, Event: fixtures.MessageUpdated{Message: "a"}},
			{Version: 3, Event: fixtures.MessageUpdated{Message: "b"}},
		}), nil
	}
	repo := newGreetingRepository(spy)

	_, err := repo.Find(t.Context(), "ABC123")
	require.ErrorIs(t, err, eventkernel.ErrInvalidRevision)
}

func TestEventSourcedRepository_SaveRecords(t *testing.T) {
	recordedAt := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	spy := fixtures.NewStoreSpy[fixtures.GreetingEvent]()
	repo := newGreetingRepository(spy,
		eventkernel.WithStreamNamer[fixtures.GreetingEvent](func(_ context.Context, id any) string {
			return "greeting-" + id.(string)
		}),
		eventkernel.WithRecordClock[fixtures.GreetingEvent](eventkernel.FixedClock(recordedAt)),
		eventkernel.WithMetadataExtractor[fixtures.GreetingEvent](func(context.Context) map[string]any {
			return map[string]any{"tenant": "acme", "user": "someone"}
		}),
		eventkernel.WithMetadataExtractor[fixtures.GreetingEvent](func(context.Context) map[string]any {
			return map[string]any{"user": "ada"}
		}),
	)

	require.NoError(t, repo.Save(t.Context(), newGreeting(t)))

	require.Equal(t, 1, spy.AppendCalls)
	require.Equal(t, "greeting-ABC123", spy.LastAppendStream)
	require.Equal(t, eventkernel.NoStream{}, spy.LastAppendExpected)
	require.Len(t, spy.LastAppendRecords, 3)

	for i, rec := range spy.LastAppendRecords {
		require.Equal(t, uint64(i+1), rec.Version)
		require.Equal(t, "greeting-ABC123", rec.StreamID)
		require.Equal(t, recordedAt, rec.RecordedAt)
		require.NotEqual(t, [16]byte{}, [16]byte(rec.EventID))
		require.Equal(t, map[string]any{"tenant": "acme", "user": "ada"}, rec.Metadata)
	}
	require.Equal(t, "MessageUpdated", spy.LastAppendRecords[0].EventType)
	require.Equal(t, "NumberUpdated", spy.LastAppendRecords[1].EventType)
}

func TestEventSourcedRepository_StoredMetadataIsIsolated(t *testing.T) {
	ctx := t.Context()
	store := memory.NewMemoryStore[fixtures.GreetingEvent]()
	repo := newGreetingRepository(store,
		eventkernel.WithMetadataExtractor[fixtures.GreetingEvent](func(context.Context) map[string]any {
			return map[string]any{"k": "v"}
		}),
	)

	g := fixtures.NewGreeting("ABC123", nil)
	require.NoError(t, g.SetMessage("Hello"))
	require.NoError(t, g.SetPositiveNumber(42))
	require.NoError(t, repo.Save(ctx, g))

	load := func() []eventkernel.Record[fixtures.GreetingEvent] {
		iter, err := store.Load(ctx, "ABC123")
		require.NoError(t, err)
		recs, err := iter.All(ctx)
		require.NoError(t, err)
		require.Len(t, recs, 2)
		return recs
	}

	recs := load()
	recs[0].Metadata["k"] = "mutated"
	require.Equal(t, "v", recs[1].Metadata["k"], "records of one batch do not share metadata")

	for _, rec := range load() {
		require.Equal(t, map[string]any{"k": "v"}, rec.Metadata)
	}
}

func TestEventSourcedRepository_SaveWithoutPendingEvents(t *testing.T) {
	spy := fixtures.NewStoreSpy[fixtures.GreetingEvent]()
	repo := newGreetingRepository(spy)

	g := fixtures.NewGreeting("ABC123", nil)
	require.NoError(t, repo.Save(t.Context(), g))
	require.Zero(t, spy.AppendCalls)
}

func TestEventSourcedRepository_SaveFailureKeepsPending(t *testing.T) {
	errDown := errors.New("store down")
	spy := fixtures.NewStoreSpy[fixtures.GreetingEvent]().FailOnAppend(errDown)
	repo := newGreetingRepository(spy)

	g := newGreeting(t)
	err := repo.Save(t.Context(), g)
	require.ErrorIs(t, err, errDown)
	require.Equal(t, 3, g.PendingCount())
}

func TestEventSourcedRepository_Conflict(t *testing.T) {
	ctx := t.Context()
	store := memory.NewMemoryStore[fixtures.GreetingEvent]()
	repo := newGreetingRepository(store)
	require.NoError(t, repo.Save(ctx, newGreeting(t)))

	first, err := repo.Find(ctx, "ABC123")
	require.NoError(t, err)
	second, err := repo.Find(ctx, "ABC123")
	require.NoError(t, err)

	require.NoError(t, first.SetPositiveNumber(1))
	require.NoError(t, repo.Save(ctx, first))

	require.NoError(t, second.SetPositiveNumber(2))
	err = repo.Save(ctx, second)

	var conflict *eventkernel.StreamRevisionConflictError
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, eventkernel.Revision(3), conflict.ExpectedRevision)
	require.Equal(t, eventkernel.Revision(4), conflict.ActualRevision)
	require.Equal(t, 1, second.PendingCount())
}

func TestEventSourcedRepository_ConcurrentCreate(t *testing.T) {
	ctx := t.Context()
	repo := newGreetingRepository(memory.NewMemoryStore[fixtures.GreetingEvent]())

	require.NoError(t, repo.Save(ctx, newGreeting(t)))

	err := repo.Save(ctx, newGreeting(t))
	require.ErrorIs(t, err, eventkernel.ErrStreamExists)
}

func TestEventSourcedRepository_Publishers(t *testing.T) {
	ctx := t.Context()
	projection := fixtures.NewGreetingProjection()

	var published []string
	recorder := eventkernel.PublisherFunc[fixtures.GreetingEvent](func(ctx context.Context, rec eventkernel.Record[fixtures.GreetingEvent]) error {
		require.Equal(t, rec.StreamID, eventkernel.StreamIDFromContext(ctx))
		require.Equal(t, rec.Version, eventkernel.VersionFromContext(ctx))
		published = append(published, rec.EventType)
		return nil
	})

	repo := newGreetingRepository(memory.NewMemoryStore[fixtures.GreetingEvent](),
		eventkernel.WithPublisher(projection.Publisher()),
		eventkernel.WithPublisher[fixtures.GreetingEvent](recorder),
	)

	require.NoError(t, repo.Save(ctx, newGreeting(t)))
	require.Equal(t, []string{"MessageUpdated", "NumberUpdated", "MessageUpdated"}, published)

	view, err := projection.Find(ctx, fixtures.GreetingByID{ID: "ABC123"})
	require.NoError(t, err)
	require.Equal(t, fixtures.GreetingView{ID: "ABC123", Message: "Hello2", Number: 42, Changes: 3}, view)
}

func TestEventSourcedRepository_PublishErrorKeepsCommit(t *testing.T) {
	ctx := t.Context()
	store := memory.NewMemoryStore[fixtures.GreetingEvent]()
	errBroken := errors.New("broken read model")

	repo := newGreetingRepository(store,
		eventkernel.WithPublisher[fixtures.GreetingEvent](eventkernel.PublisherFunc[fixtures.GreetingEvent](
			func(context.Context, eventkernel.Record[fixtures.GreetingEvent]) error { return errBroken },
		)),
	)

	g := newGreeting(t)
	err := repo.Save(ctx, g)
	require.ErrorIs(t, err, errBroken)
	require.Zero(t, g.PendingCount())

	found, err := repo.Find(ctx, "ABC123")
	require.NoError(t, err)
	require.Equal(t, uint64(3), found.Version())
}

func TestUpdate(t *testing.T) {
	ctx := t.Context()
	repo := newGreetingRepository(memory.NewMemoryStore[fixtures.GreetingEvent]())
	require.NoError(t, repo.Save(ctx, newGreeting(t)))

	err := eventkernel.Update[string, *fixtures.Greeting](ctx, repo, "ABC123", func(g *fixtures.Greeting) error {
		return g.SetMessage("Updated")
	})
	require.NoError(t, err)

	found, err := repo.Find(ctx, "ABC123")
	require.NoError(t, err)
	require.Equal(t, "Updated", found.Message())
}

func TestUpdate_StopsOnDecisionError(t *testing.T) {
	ctx := t.Context()
	repo := newGreetingRepository(memory.NewMemoryStore[fixtures.GreetingEvent]())
	require.NoError(t, repo.Save(ctx, newGreeting(t)))

	calls := 0
	err := eventkernel.Update[string, *fixtures.Greeting](ctx, repo, "ABC123", func(g *fixtures.Greeting) error {
		calls++
		return g.SetPositiveNumber(-21)
	}, eventkernel.WithRetryStrategy(backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 3)))

	require.ErrorIs(t, err, eventkernel.ErrValidation)
	require.Equal(t, 1, calls)
}

func TestUpdate_RetriesConflicts(t *testing.T) {
	ctx := t.Context()
	store := memory.NewMemoryStore[fixtures.GreetingEvent]()
	repo := newGreetingRepository(store)
	require.NoError(t, repo.Save(ctx, newGreeting(t)))

	// A competing writer commits between the first Find and Save.
	calls := 0
	err := eventkernel.Update[string, *fixtures.Greeting](ctx, repo, "ABC123", func(g *fixtures.Greeting) error {
		calls++
		if calls == 1 {
			other, err := repo.Find(ctx, "ABC123")
			require.NoError(t, err)
			require.NoError(t, other.SetMessage("Competitor"))
			require.NoError(t, repo.Save(ctx, other))
		}
		return g.SetPositiveNumber(g.Number() + 1)
	}, eventkernel.WithRetryStrategy(backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 3)))
	require.NoError(t, err)
	require.Equal(t, 2, calls)

	found, err := repo.Find(ctx, "ABC123")
	require.NoError(t, err)
	require.Equal(t, "Competitor", found.Message())
	require.Equal(t, 43, found.Number())
	require.Equal(t, uint64(5), found.Version())
}

func TestUpdate_NoRetryByDefault(t *testing.T) {
	ctx := t.Context()
	repo := newGreetingRepository(memory.NewMemoryStore[fixtures.GreetingEvent]())
	require.NoError(t, repo.Save(ctx, newGreeting(t)))

	err := eventkernel.Update[string, *fixtures.Greeting](ctx, repo, "ABC123", func(g *fixtures.Greeting) error {
		other, err := repo.Find(ctx, "ABC123")
		require.NoError(t, err)
		require.NoError(t, other.SetPositiveNumber(other.Number()+10))
		require.NoError(t, repo.Save(ctx, other))
		return g.SetMessage("late")
	})

	var conflict *eventkernel.StreamRevisionConflictError
	require.ErrorAs(t, err, &conflict)
}
