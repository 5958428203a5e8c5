package actor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rivet-dev/actor-core/internal/persist"
	"github.com/rivet-dev/actor-core/internal/stateproxy"
)

// Start runs the create-or-resume sequence (SPEC_FULL.md §3 Lifecycle) and
// flips the actor ready. input is only consulted on first creation.
func (a *Instance) Start(ctx context.Context, input []byte) error {
	loaded, ok, err := a.store.Load(ctx, a.id)
	if err != nil {
		return fmt.Errorf("actor: load %s: %w", a.id, err)
	}

	if !ok {
		if err := a.create(ctx, input); err != nil {
			return err
		}
	} else {
		a.resume(loaded)
		if a.def.Hooks.OnStart != nil {
			startCtx, cancel := context.WithTimeout(ctx, a.timeouts.CreateVars)
			err := a.def.Hooks.OnStart(startCtx, a)
			cancel()
			if err != nil {
				return fmt.Errorf("actor: onStart hook: %w", err)
			}
		}
	}

	a.registry.LivenessSweep(ctx)
	a.livenessTicker = time.NewTicker(a.timeouts.ConnectionLivenessInterval)
	go a.livenessSweepLoop()

	if len(a.events) > 0 {
		a.armAlarm(ctx, a.events[0].TimestampMS)
	}

	a.ready = true
	a.resetSleepTimer()
	return nil
}

// create runs the first-load path: createState/onCreate, then a blob write
// with hasInitiated=true.
func (a *Instance) create(ctx context.Context, input []byte) error {
	a.input = input

	var stateBytes []byte
	if a.def.Hooks.CreateState != nil {
		createCtx, cancel := context.WithTimeout(ctx, a.timeouts.CreateVars)
		out, err := a.def.Hooks.CreateState(createCtx, input)
		cancel()
		if err != nil {
			return fmt.Errorf("actor: createState hook: %w", err)
		}
		stateBytes = out
	}
	if stateBytes == nil {
		stateBytes = []byte{0xa0} // empty CBOR map, a reasonable zero state
	}
	a.state = stateproxy.New(stateBytes, a.onStateChange)

	if a.def.Hooks.OnCreate != nil {
		createCtx, cancel := context.WithTimeout(ctx, a.timeouts.CreateVars)
		err := a.def.Hooks.OnCreate(createCtx, a)
		cancel()
		if err != nil {
			return fmt.Errorf("actor: onCreate hook: %w", err)
		}
	}

	a.hasInit = true
	return a.persistNow(ctx)
}

// resume restores a previously-persisted actor's state, connections (all
// starting RECONNECTING — no socket is bound yet), and scheduled events.
func (a *Instance) resume(loaded persist.PersistedActor) {
	a.hasInit = loaded.HasInitiated
	a.input = loaded.Input
	a.state = stateproxy.New([]byte(loaded.State), a.onStateChange)
	a.events = loaded.ScheduledEvents
	a.registry.Restore(loaded.Connections)
}

func (a *Instance) onStateChange() {
	if a.def.Hooks.OnStateChange != nil && a.ready {
		a.def.Hooks.OnStateChange(a)
	}
}

// persistNow flushes the full actor blob. Safe to call from inside or
// outside the event loop — ConnectionRegistry invokes it directly as its
// Persist hook, and the event loop invokes it after a dirty mutation.
func (a *Instance) persistNow(ctx context.Context) error {
	blob := persist.PersistedActor{
		HasInitiated:    a.hasInit,
		Input:           a.input,
		State:           a.state.Get(),
		Connections:     a.registry.Export(),
		ScheduledEvents: a.events,
	}
	if err := a.store.Save(ctx, a.id, blob); err != nil {
		return fmt.Errorf("actor: persist %s: %w", a.id, err)
	}
	a.state.ClearDirty()
	return nil
}

// flushIfDirty persists the actor's state if it has changed since the last
// write. The persist.Store's single-writer queue already coalesces bursts
// of writes for one actor, so this simplifies the "throttled persist
// writer" of SPEC_FULL.md §4.7 to an immediate call gated on the dirty
// flag rather than a separate debounce timer.
func (a *Instance) flushIfDirty(ctx context.Context) {
	if !a.state.Dirty() {
		return
	}
	if err := a.persistNow(ctx); err != nil {
		a.log.Warn("failed to persist after mutation", zap.Error(err))
	}
}

func (a *Instance) livenessSweepLoop() {
	for {
		select {
		case <-a.livenessTicker.C:
			a.exec(func() { a.registry.LivenessSweep(a.ctx) })
		case <-a.ctx.Done():
			return
		}
	}
}

// canSleep reports whether the actor is currently sleep-eligible: no
// connected connections, no in-flight raw fetches, no open raw websockets,
// and sleeping is not disabled for this definition.
func (a *Instance) canSleep() bool {
	return !a.def.NoSleep &&
		a.registry.ConnectedCount() == 0 &&
		a.rawFetches == 0 &&
		a.rawSockets == 0
}

// resetSleepTimer re-arms the idle-sleep timer if the actor is currently
// sleep-eligible, or disarms it otherwise. Must be called from inside the
// event loop (it reads rawFetches/rawSockets/registry state without a
// lock, relying on single-writer access).
func (a *Instance) resetSleepTimer() {
	if a.sleepTimer != nil {
		a.sleepTimer.Stop()
		a.sleepTimer = nil
	}
	if !a.canSleep() || a.stopping {
		return
	}
	a.sleepTimer = time.AfterFunc(a.timeouts.Sleep, func() {
		if err := a.Sleep(context.Background()); err != nil {
			a.log.Warn("sleep sequence failed", zap.Error(err))
		}
	})
}

func (a *Instance) armAlarm(ctx context.Context, timestampMS int64) {
	at := time.UnixMilli(timestampMS)
	if err := a.sched.Arm(a.id, at); err != nil {
		a.log.Warn("failed to arm in-process alarm", zap.Error(err))
	}
	if err := a.store.SetAlarm(ctx, a.id, at); err != nil {
		a.log.Warn("failed to persist alarm timestamp", zap.Error(err))
	}
}

func (a *Instance) disarmAlarm(ctx context.Context) {
	a.sched.Disarm(a.id)
	if err := a.store.ClearAlarm(ctx, a.id); err != nil {
		a.log.Warn("failed to clear persisted alarm", zap.Error(err))
	}
}
