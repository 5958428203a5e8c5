// Package builtin registers the demonstration actor kinds cmd/runner ships
// with so the binary is runnable and smoke-testable without any caller
// registering its own actor.Definition first. Grounded on actor_test.go's
// echoDef and state-mutation tests.
package builtin

import (
	"context"

	"github.com/fxamacker/cbor/v2"

	"github.com/rivet-dev/actor-core/internal/actor"
	"github.com/rivet-dev/actor-core/internal/dispatch"
	"github.com/rivet-dev/actor-core/internal/rkerrors"
)

type counterState struct {
	Count int64 `cbor:"count"`
}

// CounterDefinition is a small stateful actor: increment/decrement/getCount
// mutate a single int64 counter persisted across sleep/restart, and
// setCount additionally broadcasts a "newCount" event to subscribers.
func CounterDefinition() *actor.Definition {
	return &actor.Definition{
		Name: "counter",
		Hooks: actor.Hooks{
			CreateState: func(_ context.Context, _ []byte) ([]byte, error) {
				return cbor.Marshal(counterState{})
			},
		},
		Actions: map[string]dispatch.Handler{
			"increment": func(ctx context.Context, args []byte) ([]byte, error) {
				return applyDelta(ctx, args, 1)
			},
			"decrement": func(ctx context.Context, args []byte) ([]byte, error) {
				return applyDelta(ctx, args, -1)
			},
			"getCount": func(ctx context.Context, _ []byte) ([]byte, error) {
				inst, ok := actor.InstanceFromContext(ctx)
				if !ok {
					return nil, rkerrors.Internal("counter: no actor instance in context")
				}
				var s counterState
				if err := cbor.Unmarshal(inst.State(), &s); err != nil {
					return nil, rkerrors.Internal("counter: corrupt state")
				}
				return cbor.Marshal(s.Count)
			},
			"setCount": func(ctx context.Context, args []byte) ([]byte, error) {
				inst, ok := actor.InstanceFromContext(ctx)
				if !ok {
					return nil, rkerrors.Internal("counter: no actor instance in context")
				}

				value, err := firstArg(args)
				if err != nil {
					return nil, rkerrors.New(rkerrors.GroupAction, rkerrors.CodeParamsInvalid, "setCount requires one numeric argument")
				}

				if err := inst.MutateState(func(cur []byte) []byte {
					var s counterState
					_ = cbor.Unmarshal(cur, &s)
					s.Count = value
					out, _ := cbor.Marshal(s)
					return out
				}); err != nil {
					return nil, err
				}

				eventArgs, err := cbor.Marshal([]int64{value})
				if err != nil {
					return nil, rkerrors.Internal("counter: failed to encode newCount event args")
				}
				inst.Broadcast(ctx, "newCount", eventArgs)

				return cbor.Marshal(value)
			},
		},
	}
}

// firstArg decodes action args as the canonical positional-array form (e.g.
// `[5]`) and returns its first element, defaulting to 1 when args is empty.
// Decoding into []float64 rather than []int64 accepts both a CBOR integer
// (args arrived over a CBOR connection) and a CBOR float (args arrived over
// JSON, where every number decodes through toCanonical's generic `any` as a
// float64 before being re-marshaled to CBOR).
func firstArg(args []byte) (int64, error) {
	if len(args) == 0 {
		return 1, nil
	}
	var values []float64
	if err := cbor.Unmarshal(args, &values); err != nil || len(values) == 0 {
		return 0, rkerrors.New(rkerrors.GroupAction, rkerrors.CodeParamsInvalid, "expected a positional numeric argument array")
	}
	return int64(values[0]), nil
}

// applyDelta decodes args as the canonical positional argument array
// (amount defaults to 1 if args is empty), multiplies by sign, and mutates
// the instance's persisted count.
func applyDelta(ctx context.Context, args []byte, sign int64) ([]byte, error) {
	inst, ok := actor.InstanceFromContext(ctx)
	if !ok {
		return nil, rkerrors.Internal("counter: no actor instance in context")
	}

	amount, err := firstArg(args)
	if err != nil {
		return nil, err
	}

	var newCount int64
	mutateErr := inst.MutateState(func(cur []byte) []byte {
		var s counterState
		_ = cbor.Unmarshal(cur, &s)
		s.Count += sign * amount
		newCount = s.Count
		out, _ := cbor.Marshal(s)
		return out
	})
	if mutateErr != nil {
		return nil, mutateErr
	}

	return cbor.Marshal(newCount)
}
