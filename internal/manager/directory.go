// Package manager implements the ManagerGateway (SPEC_FULL.md §4.9): query
// resolution against the actor directory, in-memory runner bookkeeping for
// multi-runner proxying, and the inline/proxy routing decision itself.
package manager

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/rivet-dev/actor-core/internal/persist"
	"github.com/rivet-dev/actor-core/internal/rkerrors"
)

// keySeparator joins key[] components before hashing. SPEC_FULL.md §3.1
// requires a byte that cannot appear in a single key component; components
// containing it are rejected up front so two distinct keys can never collide
// on their joined form.
const keySeparator = "\x1f"

// Directory is the reference ManagerDriver (SPEC_FULL.md §3.1): a thin
// (name, key[]) -> actorId table layered over persist.DirectoryDriver's
// (name, keyHash) storage.
type Directory struct {
	driver persist.DirectoryDriver
}

func NewDirectory(driver persist.DirectoryDriver) *Directory {
	return &Directory{driver: driver}
}

// HashKey deterministically serializes key[] per SPEC_FULL.md §3.1: join
// with a separator byte no component may contain, then SHA-256.
func HashKey(key []string) (string, error) {
	for _, part := range key {
		if strings.Contains(part, keySeparator) {
			return "", rkerrors.New(rkerrors.GroupActor, rkerrors.CodeParamsInvalid,
				"key component contains the reserved separator byte")
		}
	}
	sum := sha256.Sum256([]byte(strings.Join(key, keySeparator)))
	return hex.EncodeToString(sum[:]), nil
}

// GetForID resolves a (name, actorId) query, failing ActorNotFound if the
// actor is missing or was created under a different name.
func (d *Directory) GetForID(ctx context.Context, name, actorID string) (string, error) {
	gotName, ok, err := d.driver.LookupByID(ctx, actorID)
	if err != nil {
		return "", fmt.Errorf("manager: lookup actor by id: %w", err)
	}
	if !ok || gotName != name {
		return "", rkerrors.ActorNotFound(name)
	}
	return actorID, nil
}

// GetForKey resolves a (name, key[]) query, failing ActorNotFound if absent.
func (d *Directory) GetForKey(ctx context.Context, name string, key []string) (string, error) {
	keyHash, err := HashKey(key)
	if err != nil {
		return "", err
	}
	actorID, ok, err := d.driver.LookupByKey(ctx, name, keyHash)
	if err != nil {
		return "", fmt.Errorf("manager: lookup actor by key: %w", err)
	}
	if !ok {
		return "", rkerrors.ActorNotFound(name)
	}
	return actorID, nil
}

// GetOrCreateForKey resolves (name, key[]), creating a fresh actorId if
// none exists yet. created reports which branch was taken.
func (d *Directory) GetOrCreateForKey(ctx context.Context, name string, key []string) (actorID string, created bool, err error) {
	keyHash, err := HashKey(key)
	if err != nil {
		return "", false, err
	}
	if existing, ok, lookupErr := d.driver.LookupByKey(ctx, name, keyHash); lookupErr != nil {
		return "", false, fmt.Errorf("manager: lookup actor by key: %w", lookupErr)
	} else if ok {
		return existing, false, nil
	}

	actorID, err = d.create(ctx, name, key, keyHash)
	if err != nil {
		// Lost a create race against a concurrent getOrCreateForKey for the
		// same key: the entry now exists, so resolve it instead of failing.
		if existing, ok, lookupErr := d.driver.LookupByKey(ctx, name, keyHash); lookupErr == nil && ok {
			return existing, false, nil
		}
		return "", false, err
	}
	return actorID, true, nil
}

// Create always allocates a fresh actorId, failing ActorAlreadyExists if
// the (name, key[]) pair is already taken. key is filled with a random
// UUID component when the caller omits it.
func (d *Directory) Create(ctx context.Context, name string, key []string) (string, error) {
	if len(key) == 0 {
		key = []string{uuid.NewString()}
	}
	keyHash, err := HashKey(key)
	if err != nil {
		return "", err
	}
	actorID, err := d.create(ctx, name, key, keyHash)
	if err != nil {
		if err == persist.ErrDirectoryConflict {
			return "", rkerrors.ActorAlreadyExists(name)
		}
		return "", err
	}
	return actorID, nil
}

// ActorSummary is one directory entry as surfaced by GET /actors: an
// actorId, the name it was created under, and its decoded key[].
type ActorSummary struct {
	ActorID string
	Name    string
	Key     []string
}

// maxListIDs bounds the actor_ids filter of GET /actors (SPEC_FULL.md §6).
const maxListIDs = 32

// List resolves the GET /actors?name=&actor_ids=&key= filters, which are
// mutually exclusive: exactly one of (actorIDs non-empty), (name and key
// non-empty), or (name alone) may be given.
func (d *Directory) List(ctx context.Context, name string, key []string, actorIDs []string) ([]ActorSummary, error) {
	switch {
	case len(actorIDs) > 0 && (name != "" || len(key) > 0):
		return nil, rkerrors.New(rkerrors.GroupActor, rkerrors.CodeParamsInvalid,
			"actor_ids is mutually exclusive with name/key")

	case len(actorIDs) > 0:
		if len(actorIDs) > maxListIDs {
			return nil, rkerrors.New(rkerrors.GroupActor, rkerrors.CodeParamsInvalid,
				fmt.Sprintf("actor_ids exceeds the maximum of %d", maxListIDs))
		}
		rows, err := d.driver.ListByIDs(ctx, actorIDs)
		if err != nil {
			return nil, fmt.Errorf("manager: list actors by id: %w", err)
		}
		return toSummaries(rows)

	case name != "" && len(key) > 0:
		actorID, err := d.GetForKey(ctx, name, key)
		if err != nil {
			if rk, ok := rkerrors.As(err); ok && rk.Code == rkerrors.CodeActorNotFound {
				return nil, nil
			}
			return nil, err
		}
		return []ActorSummary{{ActorID: actorID, Name: name, Key: key}}, nil

	case name != "":
		rows, err := d.driver.ListByName(ctx, name, 0)
		if err != nil {
			return nil, fmt.Errorf("manager: list actors by name: %w", err)
		}
		return toSummaries(rows)

	default:
		return nil, rkerrors.New(rkerrors.GroupActor, rkerrors.CodeParamsInvalid,
			"GET /actors requires one of: actor_ids, name+key, or name")
	}
}

func toSummaries(rows []persist.DirectoryEntry) ([]ActorSummary, error) {
	out := make([]ActorSummary, 0, len(rows))
	for _, row := range rows {
		var key []string
		if err := json.Unmarshal([]byte(row.KeyJSON), &key); err != nil {
			return nil, fmt.Errorf("manager: decode stored key for actor %q: %w", row.ActorID, err)
		}
		out = append(out, ActorSummary{ActorID: row.ActorID, Name: row.Name, Key: key})
	}
	return out, nil
}

func (d *Directory) create(ctx context.Context, name string, key []string, keyHash string) (string, error) {
	actorID := uuid.NewString()
	keyJSON, err := json.Marshal(key)
	if err != nil {
		return "", fmt.Errorf("manager: encode key: %w", err)
	}
	if err := d.driver.Insert(ctx, actorID, name, string(keyJSON), keyHash); err != nil {
		if err == persist.ErrDirectoryConflict {
			return "", persist.ErrDirectoryConflict
		}
		return "", fmt.Errorf("manager: insert directory entry: %w", err)
	}
	return actorID, nil
}
