package persist

import (
	"context"
	"time"
)

// Store wraps a StorageDriver with the envelope codec, giving callers a
// typed PersistedActor in and out instead of raw bytes (SPEC_FULL.md §4.2).
type Store struct {
	driver StorageDriver
	queues *queueSet
}

func NewStore(driver StorageDriver) *Store {
	return &Store{driver: driver, queues: newQueueSet()}
}

// Load reads an actor's current persisted state. ok is false only before
// the actor's first write.
func (s *Store) Load(ctx context.Context, actorID string) (PersistedActor, bool, error) {
	blob, ok, err := s.driver.ReadBlob(ctx, actorID)
	if err != nil || !ok {
		return PersistedActor{}, ok, err
	}
	a, err := UnmarshalBlob(blob)
	if err != nil {
		return PersistedActor{}, false, err
	}
	return a, true, nil
}

// Save enqueues a write of a, coalescing with any write already in flight
// for this actor so two writes are never concurrent for the same actor
// (invariant 3, SPEC_FULL.md §3). It blocks until this write (or a later
// one that superseded it) has completed.
func (s *Store) Save(ctx context.Context, actorID string, a PersistedActor) error {
	blob, err := MarshalBlob(a)
	if err != nil {
		return err
	}
	return s.queues.forActor(actorID).enqueue(ctx, func(ctx context.Context) error {
		return s.driver.WriteBlob(ctx, actorID, blob)
	})
}

// SetAlarm arms the actor's alarm for at, coalesced the same way as Save.
func (s *Store) SetAlarm(ctx context.Context, actorID string, at time.Time) error {
	return s.queues.forActor(actorID).enqueue(ctx, func(ctx context.Context) error {
		return s.driver.SetAlarm(ctx, actorID, at)
	})
}

func (s *Store) ClearAlarm(ctx context.Context, actorID string) error {
	return s.queues.forActor(actorID).enqueue(ctx, func(ctx context.Context) error {
		return s.driver.ClearAlarm(ctx, actorID)
	})
}

func (s *Store) DueAlarms(ctx context.Context, now time.Time) ([]string, error) {
	return s.driver.DueAlarms(ctx, now)
}
