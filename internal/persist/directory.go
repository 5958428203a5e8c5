package persist

import "context"

// DirectoryEntry is one row of the actor directory, as returned by the
// listing methods of DirectoryDriver.
type DirectoryEntry struct {
	ActorID string
	Name    string
	KeyJSON string
}

// DirectoryDriver is the reference ManagerDriver's storage dependency
// (SPEC_FULL.md §3.1): a thin (name, keyHash) -> actorId table sharing the
// same backing store as the blob/alarm StorageDriver. Both shipped
// StorageDrivers (MemoryDriver, SQLDriver) also implement this interface.
type DirectoryDriver interface {
	// LookupByKey resolves (name, keyHash) to an actorId.
	LookupByKey(ctx context.Context, name, keyHash string) (actorID string, ok bool, err error)

	// LookupByID resolves actorID to the name it was created under, so a
	// getForId query can cross-check the caller's expected name.
	LookupByID(ctx context.Context, actorID string) (name string, ok bool, err error)

	// Insert records a freshly allocated actorId under (name, keyJSON,
	// keyHash). Insert must fail if actorID or (name, keyHash) already
	// exists.
	Insert(ctx context.Context, actorID, name, keyJSON, keyHash string) error

	// ListByName returns up to limit directory entries created under name,
	// for the GET /actors?name= listing filter.
	ListByName(ctx context.Context, name string, limit int) ([]DirectoryEntry, error)

	// ListByIDs returns the directory entries matching any of ids, for the
	// GET /actors?actor_ids= listing filter.
	ListByIDs(ctx context.Context, ids []string) ([]DirectoryEntry, error)
}

func (d *MemoryDriver) LookupByKey(_ context.Context, name, keyHash string) (string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	row, ok := d.directoryByKey[directoryKey{name, keyHash}]
	if !ok {
		return "", false, nil
	}
	return row.actorID, true, nil
}

func (d *MemoryDriver) LookupByID(_ context.Context, actorID string) (string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	row, ok := d.directoryByID[actorID]
	if !ok {
		return "", false, nil
	}
	return row.name, true, nil
}

func (d *MemoryDriver) Insert(_ context.Context, actorID, name, keyJSON, keyHash string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := directoryKey{name, keyHash}
	if _, exists := d.directoryByKey[key]; exists {
		return ErrDirectoryConflict
	}
	if _, exists := d.directoryByID[actorID]; exists {
		return ErrDirectoryConflict
	}
	entry := directoryEntry{actorID: actorID, name: name, keyJSON: keyJSON, keyHash: keyHash}
	d.directoryByKey[key] = entry
	d.directoryByID[actorID] = entry
	return nil
}

func (d *MemoryDriver) ListByName(_ context.Context, name string, limit int) ([]DirectoryEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []DirectoryEntry
	for _, row := range d.directoryByID {
		if row.name != name {
			continue
		}
		out = append(out, DirectoryEntry{ActorID: row.actorID, Name: row.name, KeyJSON: row.keyJSON})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (d *MemoryDriver) ListByIDs(_ context.Context, ids []string) ([]DirectoryEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]DirectoryEntry, 0, len(ids))
	for _, id := range ids {
		if row, ok := d.directoryByID[id]; ok {
			out = append(out, DirectoryEntry{ActorID: row.actorID, Name: row.name, KeyJSON: row.keyJSON})
		}
	}
	return out, nil
}
