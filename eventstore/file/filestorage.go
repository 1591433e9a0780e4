package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/terraskye/eventkernel"
)

// FileStore is an EventStore that keeps one directory per stream and one JSON
// file per event, named after the event version and type:
//
//	<dir>/<stream>/0000000001-MessageUpdated.json
//
// Events are encoded with encoding/json and decoded through an EventRegistry,
// so every event type of E must be registered before it can be read back.
type FileStore[E eventkernel.Event] struct {
	baseDir  string
	registry *eventkernel.EventRegistry[E]
	mu       sync.Mutex
}

var _ eventkernel.EventStore[eventkernel.Event] = (*FileStore[eventkernel.Event])(nil)

func NewFileStore[E eventkernel.Event](dir string, registry *eventkernel.EventRegistry[E]) (*FileStore[E], error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store directory %q: %w", dir, err)
	}
	return &FileStore[E]{
		baseDir:  dir,
		registry: registry,
	}, nil
}

func (f *FileStore[E]) streamDir(stream string) (string, error) {
	name, err := safeName(stream)
	if err != nil {
		return "", err
	}
	return filepath.Join(f.baseDir, name), nil
}

func (f *FileStore[E]) Append(ctx context.Context, stream string, records []eventkernel.Record[E], expected eventkernel.StreamState) (eventkernel.AppendResult, error) {
	sdir, err := f.streamDir(stream)
	if err != nil {
		return eventkernel.AppendResult{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	files, err := eventFiles(sdir)
	if err != nil {
		return eventkernel.AppendResult{}, eventkernel.WrapEventStoreError(err)
	}
	currentVersion := uint64(len(files))

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

	// Encode the whole batch before touching the disk.
	batch := make([]pendingFile, len(records))
	for i, rec := range records {
		version := currentVersion + uint64(i) + 1
		if rec.Version != 0 && rec.Version != version {
			return eventkernel.AppendResult{}, fmt.Errorf(
				"save events to stream %q: %w: event %d has version %d, want %d",
				stream, eventkernel.ErrInvalidEventBatch, i, rec.Version, version,
			)
		}

		name, err := f.registry.NameOf(rec.Event)
		if err != nil {
			return eventkernel.AppendResult{}, fmt.Errorf("save events to stream %q: %w", stream, err)
		}
		eventData, err := json.Marshal(rec.Event)
		if err != nil {
			return eventkernel.AppendResult{}, fmt.Errorf("encode event %q: %w", name, err)
		}

		z := storedEvent{
			EventID:    rec.EventID,
			StreamID:   stream,
			Metadata:   rec.Metadata,
			EventType:  name,
			Data:       eventData,
			Version:    version,
			RecordedAt: rec.RecordedAt,
		}
		data, err := json.Marshal(z)
		if err != nil {
			return eventkernel.AppendResult{}, fmt.Errorf("encode record %d of stream %q: %w", version, stream, err)
		}
		batch[i] = pendingFile{
			path: filepath.Join(sdir, fmt.Sprintf("%010d-%s.json", version, name)),
			data: data,
		}
	}

	if err := os.MkdirAll(sdir, 0o755); err != nil {
		return eventkernel.AppendResult{}, eventkernel.WrapEventStoreError(err)
	}

	for i, p := range batch {
		if err := ctx.Err(); err != nil {
			f.rollback(batch[:i])
			return eventkernel.AppendResult{}, err
		}
		if err := os.WriteFile(p.path, p.data, 0o644); err != nil {
			f.rollback(batch[:i])
			return eventkernel.AppendResult{}, eventkernel.WrapEventStoreError(err)
		}
	}

	return eventkernel.AppendResult{
		Successful:          true,
		NextExpectedVersion: currentVersion + uint64(len(batch)),
	}, nil
}

type pendingFile struct {
	path string
	data []byte
}

func (f *FileStore[E]) rollback(written []pendingFile) {
	for _, p := range written {
		_ = os.Remove(p.path)
	}
}

func (f *FileStore[E]) Load(ctx context.Context, stream string) (*eventkernel.Iterator[eventkernel.Record[E]], error) {
	sdir, err := f.streamDir(stream)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	files, err := eventFiles(sdir)
	f.mu.Unlock()

	if err != nil {
		return nil, eventkernel.WrapEventStoreError(err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("load stream %q: %w", stream, eventkernel.ErrStreamNotFound)
	}

	idx := 0
	nextFunc := func(ctx context.Context) (eventkernel.Record[E], error) {
		var zero eventkernel.Record[E]
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		if idx >= len(files) {
			return zero, io.EOF
		}
		path := files[idx]
		idx++

		data, err := os.ReadFile(path)
		if err != nil {
			return zero, eventkernel.WrapEventStoreError(err)
		}

		var storedEv storedEvent
		if err := json.Unmarshal(data, &storedEv); err != nil {
			return zero, eventkernel.WrapEventStoreError(fmt.Errorf("cannot unmarshal record %q: %w", path, err))
		}

		ev, err := f.registry.Decode(storedEv.EventType, storedEv.Data)
		if err != nil {
			return zero, eventkernel.WrapEventStoreError(fmt.Errorf("cannot create event %q: %w", storedEv.EventType, err))
		}

		return eventkernel.Record[E]{
			EventID:    storedEv.EventID,
			StreamID:   storedEv.StreamID,
			EventType:  storedEv.EventType,
			Version:    storedEv.Version,
			Event:      ev,
			RecordedAt: storedEv.RecordedAt,
			Metadata:   storedEv.Metadata,
		}, nil
	}

	return eventkernel.NewIteratorFunc(nextFunc), nil
}

func (f *FileStore[E]) Close() error {
	return nil
}

// eventFiles returns the event files of a stream directory ordered by version.
// A missing directory is an empty stream.
func eventFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	type versioned struct {
		version uint64
		path    string
	}
	var out []versioned
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		prefix, _, ok := strings.Cut(e.Name(), "-")
		if !ok {
			continue
		}
		ver, err := strconv.ParseUint(prefix, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, versioned{version: ver, path: filepath.Join(dir, e.Name())})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })

	paths := make([]string, len(out))
	for i, v := range out {
		paths[i] = v.path
	}
	return paths, nil
}

// safeName maps a stream name to a single path element. Distinct names
// always map to distinct elements.
func safeName(stream string) (string, error) {
	switch stream {
	case "":
		return "", fmt.Errorf("empty stream name: %w", eventkernel.ErrInvalidStreamName)
	case ".", "..":
		return strings.ReplaceAll(stream, ".", "%2E"), nil
	}
	return url.PathEscape(stream), nil
}

type storedEvent struct {
	EventID    uuid.UUID       `json:"event_id"`
	StreamID   string          `json:"stream_id"`
	Metadata   map[string]any  `json:"metadata"`
	EventType  string          `json:"event_type"`
	Data       json.RawMessage `json:"data"`
	Version    uint64          `json:"version"`
	RecordedAt time.Time       `json:"recorded_at"`
}
