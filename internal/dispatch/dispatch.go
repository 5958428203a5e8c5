// Package dispatch implements the ActionDispatcher (SPEC_FULL.md §4.7):
// name -> handler resolution, a per-action timeout race, and the
// onBeforeActionResponse transform hook. Action args and output are always
// canonical CBOR bytes at this layer regardless of the connection's
// negotiated wire encoding — the ActorInstance transcodes them from and
// back into that encoding around each Dispatch call.
//
// Grounded on the teacher's agentmanager.WaitForAgent: here the polling
// loop is replaced by a context.WithTimeout race against a buffered result
// channel, since a handler invocation returns a value rather than a
// boolean condition to observe.
package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/rivet-dev/actor-core/internal/rkerrors"
)

// Handler is one registered action. args and the returned output are
// CBOR-encoded bytes; the caller (ActorInstance) is responsible for
// decoding/encoding them against whatever Go types the actor's definition
// uses.
type Handler func(ctx context.Context, args []byte) ([]byte, error)

// Transform is the onBeforeActionResponse hook: given the action's name and
// its CBOR-encoded output, it may rewrite the output before it is sent to
// the caller.
type Transform func(ctx context.Context, name string, output []byte) ([]byte, error)

// Dispatcher resolves action names to Handlers and enforces the per-action
// timeout and transform hook around every invocation.
type Dispatcher struct {
	actions   map[string]Handler
	timeout   time.Duration
	transform Transform
}

// New builds a Dispatcher over actions. timeout is the default actionTimeout
// (SPEC_FULL.md §5, 60s); transform may be nil.
func New(actions map[string]Handler, timeout time.Duration, transform Transform) *Dispatcher {
	if actions == nil {
		actions = make(map[string]Handler)
	}
	return &Dispatcher{actions: actions, timeout: timeout, transform: transform}
}

// Has reports whether name is a registered action.
func (d *Dispatcher) Has(name string) bool {
	_, ok := d.actions[name]
	return ok
}

type dispatchResult struct {
	output []byte
	err    error
}

// Dispatch resolves name, races its handler against the dispatcher's
// timeout, and runs a successful result through the transform hook before
// returning. Handler panics are not recovered: the handler runs on its own
// goroutine, so a panic there is caught neither here nor by the
// ActorInstance's event loop.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args []byte) ([]byte, error) {
	handler, ok := d.actions[name]
	if !ok {
		return nil, rkerrors.ActionNotFound(name)
	}

	timeout := d.timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan dispatchResult, 1)
	go func() {
		output, err := handler(callCtx, args)
		done <- dispatchResult{output: output, err: err}
	}()

	select {
	case <-callCtx.Done():
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, rkerrors.ActionTimedOut(name)
		}
		return nil, callCtx.Err()
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		output := r.output
		if d.transform != nil {
			transformed, err := d.transform(callCtx, name, output)
			if err != nil {
				return nil, err
			}
			output = transformed
		}
		return output, nil
	}
}
