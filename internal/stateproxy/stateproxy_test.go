package stateproxy

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type counterState struct {
	Count int
}

func TestMutateSetsDirtyAndFiresOnChange(t *testing.T) {
	fired := 0
	p := New(counterState{Count: 0}, func() { fired++ })

	require.False(t, p.Dirty())

	err := p.Mutate(func(s *counterState) { s.Count++ })
	require.NoError(t, err)
	require.True(t, p.Dirty())
	require.Equal(t, 1, p.Get().Count)
	require.Equal(t, 1, fired)

	p.ClearDirty()
	require.False(t, p.Dirty())
}

func TestOnChangeReentrancyGuard(t *testing.T) {
	var p *Proxy[counterState]
	nested := 0
	p = New(counterState{}, func() {
		// A mutation from inside onChange must not itself re-trigger
		// onChange, or this would recurse forever.
		_ = p.Mutate(func(s *counterState) { s.Count++; nested++ })
	})

	err := p.Mutate(func(s *counterState) { s.Count = 1 })
	require.NoError(t, err)
	require.Equal(t, 1, nested)
}

func TestMutateRejectsNonSerializableState(t *testing.T) {
	type badState struct {
		Fn func()
	}
	p := New(badState{}, nil)
	err := p.Mutate(func(s *badState) { s.Fn = func() {} })
	require.Error(t, err)
}
