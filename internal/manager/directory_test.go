package manager

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rivet-dev/actor-core/internal/persist"
	"github.com/rivet-dev/actor-core/internal/rkerrors"
)

func TestCreateThenGetForID(t *testing.T) {
	ctx := context.Background()
	dir := NewDirectory(persist.NewMemoryDriver())

	actorID, err := dir.Create(ctx, "counter", []string{"room-1"})
	require.NoError(t, err)
	require.NotEmpty(t, actorID)

	got, err := dir.GetForID(ctx, "counter", actorID)
	require.NoError(t, err)
	require.Equal(t, actorID, got)
}

func TestGetForIDWrongNameFails(t *testing.T) {
	ctx := context.Background()
	dir := NewDirectory(persist.NewMemoryDriver())

	actorID, err := dir.Create(ctx, "counter", []string{"room-1"})
	require.NoError(t, err)

	_, err = dir.GetForID(ctx, "other", actorID)
	require.Error(t, err)
	rk, ok := rkerrors.As(err)
	require.True(t, ok)
	require.Equal(t, rkerrors.CodeActorNotFound, rk.Code)
}

func TestCreateDuplicateKeyFails(t *testing.T) {
	ctx := context.Background()
	dir := NewDirectory(persist.NewMemoryDriver())

	_, err := dir.Create(ctx, "counter", []string{"room-1"})
	require.NoError(t, err)

	_, err = dir.Create(ctx, "counter", []string{"room-1"})
	require.Error(t, err)
	rk, ok := rkerrors.As(err)
	require.True(t, ok)
	require.Equal(t, rkerrors.CodeActorAlreadyExists, rk.Code)
}

func TestGetOrCreateForKeyIsIdempotent(t *testing.T) {
	ctx := context.Background()
	dir := NewDirectory(persist.NewMemoryDriver())

	id1, created1, err := dir.GetOrCreateForKey(ctx, "counter", []string{"room-1"})
	require.NoError(t, err)
	require.True(t, created1)

	id2, created2, err := dir.GetOrCreateForKey(ctx, "counter", []string{"room-1"})
	require.NoError(t, err)
	require.False(t, created2)
	require.Equal(t, id1, id2)
}

func TestGetForKeyMissingFails(t *testing.T) {
	ctx := context.Background()
	dir := NewDirectory(persist.NewMemoryDriver())

	_, err := dir.GetForKey(ctx, "counter", []string{"nope"})
	require.Error(t, err)
	rk, ok := rkerrors.As(err)
	require.True(t, ok)
	require.Equal(t, rkerrors.CodeActorNotFound, rk.Code)
}

func TestHashKeyRejectsReservedSeparator(t *testing.T) {
	_, err := HashKey([]string{"a\x1fb"})
	require.Error(t, err)
}

func TestHashKeyDeterministic(t *testing.T) {
	h1, err := HashKey([]string{"a", "b"})
	require.NoError(t, err)
	h2, err := HashKey([]string{"a", "b"})
	require.NoError(t, err)
	require.Equal(t, h1, h2)

	h3, err := HashKey([]string{"a", "c"})
	require.NoError(t, err)
	require.NotEqual(t, h1, h3)
}

func TestListByNameReturnsCreatedActors(t *testing.T) {
	ctx := context.Background()
	dir := NewDirectory(persist.NewMemoryDriver())

	id1, err := dir.Create(ctx, "counter", []string{"room-1"})
	require.NoError(t, err)
	id2, err := dir.Create(ctx, "counter", []string{"room-2"})
	require.NoError(t, err)

	summaries, err := dir.List(ctx, "counter", nil, nil)
	require.NoError(t, err)
	ids := []string{summaries[0].ActorID, summaries[1].ActorID}
	require.ElementsMatch(t, []string{id1, id2}, ids)
}

func TestListByIDsRespectsMax(t *testing.T) {
	ctx := context.Background()
	dir := NewDirectory(persist.NewMemoryDriver())

	ids := make([]string, maxListIDs+1)
	for i := range ids {
		ids[i] = "x"
	}
	_, err := dir.List(ctx, "", nil, ids)
	require.Error(t, err)
	rk, ok := rkerrors.As(err)
	require.True(t, ok)
	require.Equal(t, rkerrors.CodeParamsInvalid, rk.Code)
}

func TestListWithNoFilterFails(t *testing.T) {
	ctx := context.Background()
	dir := NewDirectory(persist.NewMemoryDriver())

	_, err := dir.List(ctx, "", nil, nil)
	require.Error(t, err)
}

func TestListRejectsActorIDsCombinedWithNameOrKey(t *testing.T) {
	ctx := context.Background()
	dir := NewDirectory(persist.NewMemoryDriver())

	actorID, err := dir.Create(ctx, "counter", []string{"room-1"})
	require.NoError(t, err)

	_, err = dir.List(ctx, "counter", nil, []string{actorID})
	require.Error(t, err)
	rk, ok := rkerrors.As(err)
	require.True(t, ok)
	require.Equal(t, rkerrors.CodeParamsInvalid, rk.Code)

	_, err = dir.List(ctx, "", []string{"room-1"}, []string{actorID})
	require.Error(t, err)
	rk, ok = rkerrors.As(err)
	require.True(t, ok)
	require.Equal(t, rkerrors.CodeParamsInvalid, rk.Code)
}
