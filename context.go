package eventkernel

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type ctxKey string

const (
	streamIDKey   ctxKey = "streamID"
	eventIDKey    ctxKey = "eventID"
	versionKey    ctxKey = "version"
	eventTypeKey  ctxKey = "eventType"
	recordedAtKey ctxKey = "recordedAt"
	metadataKey   ctxKey = "metadata"
)

// WithRecord adds the storage coordinates of a committed event to the context.
// Publishers receive such a context so that middleware can log and trace the
// record without knowing the concrete event type.
func WithRecord[E Event](ctx context.Context, rec Record[E]) context.Context {
	ctx = context.WithValue(ctx, streamIDKey, rec.StreamID)
	ctx = context.WithValue(ctx, eventIDKey, rec.EventID)
	ctx = context.WithValue(ctx, versionKey, rec.Version)
	ctx = context.WithValue(ctx, eventTypeKey, rec.EventType)
	ctx = context.WithValue(ctx, recordedAtKey, rec.RecordedAt)
	ctx = context.WithValue(ctx, metadataKey, rec.Metadata)
	return ctx
}

// StreamIDFromContext returns the StreamID or "" if not present
func StreamIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(streamIDKey).(string); ok {
		return v
	}
	return ""
}

// EventIDFromContext returns the EventID or uuid.Nil if not present
func EventIDFromContext(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(eventIDKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

// VersionFromContext returns the Version or 0 if not present
func VersionFromContext(ctx context.Context) uint64 {
	if v, ok := ctx.Value(versionKey).(uint64); ok {
		return v
	}
	return 0
}

// EventTypeFromContext returns the registered event type name or "" if not present
func EventTypeFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(eventTypeKey).(string); ok {
		return v
	}
	return ""
}

// RecordedAtFromContext returns RecordedAt or zero time if not present
func RecordedAtFromContext(ctx context.Context) time.Time {
	if t, ok := ctx.Value(recordedAtKey).(time.Time); ok {
		return t
	}
	return time.Time{}
}

// MetadataFromContext returns Metadata or nil if not present
func MetadataFromContext(ctx context.Context) map[string]any {
	if md, ok := ctx.Value(metadataKey).(map[string]any); ok {
		return md
	}
	return nil
}
