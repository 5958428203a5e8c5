// Package stateproxy wraps an actor's durable state value, detecting any
// mutation and validating that the result stays CBOR-serializable before
// committing it. Go has no runtime property interception, so mutation goes
// through an explicit Mutate closure rather than transparent property
// writes (see DESIGN.md Open Questions).
package stateproxy

import (
	"fmt"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/rivet-dev/actor-core/internal/rkerrors"
)

// OnChangeFunc is invoked after a successful mutation. A Mutate called
// from inside it still applies its change, but the reentrancy guard keeps
// that nested Mutate from invoking onChange again.
type OnChangeFunc func()

// Proxy holds one actor's live state value plus its dirty flag.
type Proxy[T any] struct {
	mu    sync.Mutex
	value T
	dirty bool

	onChange   OnChangeFunc
	inOnChange bool
}

// New wraps an initial state value. onChange may be nil.
func New[T any](initial T, onChange OnChangeFunc) *Proxy[T] {
	return &Proxy[T]{value: initial, onChange: onChange}
}

// Get returns a copy of the current value for reading. Callers must not
// mutate the returned value in place — use Mutate.
func (p *Proxy[T]) Get() T {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value
}

// Dirty reports whether the value has changed since the last ClearDirty.
func (p *Proxy[T]) Dirty() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dirty
}

// ClearDirty resets the dirty flag, typically called right after a
// successful persist write.
func (p *Proxy[T]) ClearDirty() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dirty = false
}

// Mutate runs fn against a pointer to the live value. If the resulting
// value fails CBOR-serializability validation, the mutation is rejected,
// the in-memory value is left at its pre-mutation snapshot, and
// InvalidStateType is returned. On success the dirty flag is set and
// onChange is invoked unless we are already inside an onChange call
// (reentrancy guard).
func (p *Proxy[T]) Mutate(fn func(*T)) error {
	p.mu.Lock()

	working := p.value
	fn(&working)

	if _, err := cbor.Marshal(working); err != nil {
		p.mu.Unlock()
		return rkerrors.InvalidStateType("state").WithMetadata(map[string]any{"cause": err.Error()})
	}

	p.value = working
	p.dirty = true

	shouldFire := p.onChange != nil && !p.inOnChange
	if shouldFire {
		p.inOnChange = true
	}
	p.mu.Unlock()

	if shouldFire {
		defer func() {
			p.mu.Lock()
			p.inOnChange = false
			p.mu.Unlock()
		}()
		p.onChange()
	}

	return nil
}

// Replace validates and assigns a wholly new value, marks the proxy dirty
// and keeps the onChange hook; onChange is not invoked.
func (p *Proxy[T]) Replace(v T) error {
	if _, err := cbor.Marshal(v); err != nil {
		return rkerrors.InvalidStateType("state").WithMetadata(map[string]any{"cause": err.Error()})
	}
	p.mu.Lock()
	p.value = v
	p.dirty = true
	p.mu.Unlock()
	return nil
}

// ValidateSerializable is a standalone guard usable before Mutate/Replace
// when a caller wants to fail fast without touching the proxy's state.
func ValidateSerializable(v any) error {
	if _, err := cbor.Marshal(v); err != nil {
		return fmt.Errorf("stateproxy: value is not cbor-serializable: %w", err)
	}
	return nil
}
