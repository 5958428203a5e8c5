package persist

import (
	"context"
	"time"
)

// StorageDriver is the external collaborator at the interface named in
// SPEC_FULL.md §4.2: an opaque per-actor blob plus a single alarm
// timestamp per actor. The core ships two implementations — MemoryDriver
// and SQLDriver — behind this one interface.
type StorageDriver interface {
	// ReadBlob returns the actor's current blob, or (nil, false, nil) if
	// nothing has been written yet.
	ReadBlob(ctx context.Context, actorID string) (blob []byte, ok bool, err error)

	// WriteBlob overwrites the actor's blob atomically with respect to
	// other writes for the same actor.
	WriteBlob(ctx context.Context, actorID string, blob []byte) error

	// SetAlarm arms the actor's alarm for at; ClearAlarm disarms it.
	SetAlarm(ctx context.Context, actorID string, at time.Time) error

	// ClearAlarm disarms the actor's alarm.
	ClearAlarm(ctx context.Context, actorID string) error

	// DueAlarms returns actor ids whose alarm timestamp is at or before
	// now. Callers are expected to clear or rearm each returned alarm.
	DueAlarms(ctx context.Context, now time.Time) ([]string, error)
}
