package persist

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrDirectoryConflict is returned by DirectoryDriver.Insert when the
// actorID or (name, keyHash) pair is already taken.
var ErrDirectoryConflict = errors.New("persist: directory entry already exists")

type directoryKey struct {
	name    string
	keyHash string
}

type directoryEntry struct {
	actorID string
	name    string
	keyJSON string
	keyHash string
}

// MemoryDriver is a StorageDriver (and DirectoryDriver) backed by an
// in-process map, for tests and single-process development use.
type MemoryDriver struct {
	mu     sync.Mutex
	blobs  map[string][]byte
	alarms map[string]time.Time

	directoryByKey map[directoryKey]directoryEntry
	directoryByID  map[string]directoryEntry
}

func NewMemoryDriver() *MemoryDriver {
	return &MemoryDriver{
		blobs:          make(map[string][]byte),
		alarms:         make(map[string]time.Time),
		directoryByKey: make(map[directoryKey]directoryEntry),
		directoryByID:  make(map[string]directoryEntry),
	}
}

func (d *MemoryDriver) ReadBlob(_ context.Context, actorID string) ([]byte, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	blob, ok := d.blobs[actorID]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(blob))
	copy(out, blob)
	return out, true, nil
}

func (d *MemoryDriver) WriteBlob(_ context.Context, actorID string, blob []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := make([]byte, len(blob))
	copy(cp, blob)
	d.blobs[actorID] = cp
	return nil
}

func (d *MemoryDriver) SetAlarm(_ context.Context, actorID string, at time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.alarms[actorID] = at
	return nil
}

func (d *MemoryDriver) ClearAlarm(_ context.Context, actorID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.alarms, actorID)
	return nil
}

func (d *MemoryDriver) DueAlarms(_ context.Context, now time.Time) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var due []string
	for actorID, at := range d.alarms {
		if !at.After(now) {
			due = append(due, actorID)
		}
	}
	return due, nil
}
