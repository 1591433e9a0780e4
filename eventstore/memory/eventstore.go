package memory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"sync"

	"github.com/terraskye/eventkernel"
)

// ErrClosed is returned by a MemoryStore after Close.
var ErrClosed = errors.New("memory store closed")

// MemoryStore is an in-process EventStore. Streams live in a map guarded by
// a RWMutex; appends and their revision checks are atomic.
type MemoryStore[E eventkernel.Event] struct {
	mu      sync.RWMutex
	streams map[string][]eventkernel.Record[E]
	closed  bool
}

var _ eventkernel.EventStore[eventkernel.Event] = (*MemoryStore[eventkernel.Event])(nil)

func NewMemoryStore[E eventkernel.Event]() *MemoryStore[E] {
	return &MemoryStore[E]{
		streams: make(map[string][]eventkernel.Record[E]),
	}
}

func (m *MemoryStore[E]) Append(ctx context.Context, stream string, records []eventkernel.Record[E], expected eventkernel.StreamState) (eventkernel.AppendResult, error) {
	if err := ctx.Err(); err != nil {
		return eventkernel.AppendResult{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return eventkernel.AppendResult{}, ErrClosed
	}

	currentVersion := uint64(len(m.streams[stream]))

	// Handle revision enforcement
	switch rev := expected.(type) {
	case eventkernel.Any, nil:
		// No concurrency check
	case eventkernel.NoStream:
		if currentVersion != 0 {
			return eventkernel.AppendResult{}, &eventkernel.StreamRevisionConflictError{
				Stream:           stream,
				ExpectedRevision: rev,
				ActualRevision:   eventkernel.Revision(currentVersion),
			}
		}
	case eventkernel.StreamExists:
		if currentVersion == 0 {
			return eventkernel.AppendResult{}, fmt.Errorf("stream %q: should exist: %w", stream, eventkernel.ErrStreamNotFound)
		}
	case eventkernel.Revision:
		if currentVersion != uint64(rev) {
			return eventkernel.AppendResult{}, &eventkernel.StreamRevisionConflictError{
				Stream:           stream,
				ExpectedRevision: rev,
				ActualRevision:   eventkernel.Revision(currentVersion),
			}
		}
	default:
		return eventkernel.AppendResult{}, fmt.Errorf("unsupported revision type %T for stream %q: %w", expected, stream, eventkernel.ErrInvalidRevision)
	}

	if len(records) == 0 {
		return eventkernel.AppendResult{Successful: true, NextExpectedVersion: currentVersion}, nil
	}

	batch := make([]eventkernel.Record[E], len(records))
	for i, rec := range records {
		if rec.StreamID != "" && rec.StreamID != stream {
			return eventkernel.AppendResult{}, fmt.Errorf(
				"save events to stream %q: %w: event %d has different stream ID %q",
				stream, eventkernel.ErrInvalidEventBatch, i, rec.StreamID,
			)
		}
		want := currentVersion + uint64(i) + 1
		if rec.Version != 0 && rec.Version != want {
			return eventkernel.AppendResult{}, fmt.Errorf(
				"save events to stream %q: %w: event %d has version %d, want %d",
				stream, eventkernel.ErrInvalidEventBatch, i, rec.Version, want,
			)
		}
		rec.StreamID = stream
		rec.Version = want
		rec.Metadata = maps.Clone(rec.Metadata)
		batch[i] = rec
	}

	m.streams[stream] = append(m.streams[stream], batch...)

	return eventkernel.AppendResult{
		Successful:          true,
		NextExpectedVersion: currentVersion + uint64(len(batch)),
	}, nil
}

func (m *MemoryStore[E]) Load(ctx context.Context, stream string) (*eventkernel.Iterator[eventkernel.Record[E]], error) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return nil, ErrClosed
	}
	records, exists := m.streams[stream]
	records = slices.Clone(records)
	m.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("load stream %q: %w", stream, eventkernel.ErrStreamNotFound)
	}

	index := 0
	iter := eventkernel.NewIteratorFunc(func(ctx context.Context) (eventkernel.Record[E], error) {
		if ctx.Err() != nil {
			return eventkernel.Record[E]{}, ctx.Err()
		}
		if index >= len(records) {
			return eventkernel.Record[E]{}, io.EOF
		}
		rec := records[index]
		rec.Metadata = maps.Clone(rec.Metadata)
		index++
		return rec, nil
	})
	return iter, nil
}

// Streams returns the names of all streams, sorted.
func (m *MemoryStore[E]) Streams() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.streams))
	for name := range m.streams {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

func (m *MemoryStore[E]) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.streams = make(map[string][]eventkernel.Record[E])
	return nil
}
