package actor

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/rivet-dev/actor-core/internal/persist"
	"github.com/rivet-dev/actor-core/internal/scheduler"
)

// DefinitionLookup resolves the Definition to use for an actor from its
// actor id, so Runtime can load an actor it has never seen resident without
// the caller having to carry Definitions around by hand.
type DefinitionLookup func(actorID string) (*Definition, bool)

// Runtime owns every resident Instance in one process and the single
// Scheduler shared across all of them, enforcing SPEC_FULL.md §3 invariant
// 1: at most one ActorInstance per actorId is ever resident at a time.
type Runtime struct {
	mu        sync.Mutex
	instances map[string]*Instance

	store     *persist.Store
	sched     *scheduler.Scheduler
	timeouts  Timeouts
	lookup    DefinitionLookup
	log       *zap.Logger
}

// NewRuntime builds a Runtime. Call Start before routing any traffic.
func NewRuntime(store *persist.Store, timeouts Timeouts, lookup DefinitionLookup, log *zap.Logger) (*Runtime, error) {
	rt := &Runtime{
		instances: make(map[string]*Instance),
		store:     store,
		timeouts:  timeouts,
		lookup:    lookup,
		log:       log.Named("runtime"),
	}
	sched, err := scheduler.New(log, rt.fireAlarm)
	if err != nil {
		return nil, fmt.Errorf("actor: failed to build scheduler: %w", err)
	}
	rt.sched = sched
	return rt, nil
}

// Start boots the shared Scheduler. Call once before routing any traffic.
func (rt *Runtime) Start(ctx context.Context) error {
	rt.sched.Start()
	return nil
}

// Shutdown stops every resident instance and the shared Scheduler.
func (rt *Runtime) Shutdown(ctx context.Context) {
	rt.mu.Lock()
	instances := make([]*Instance, 0, len(rt.instances))
	for _, inst := range rt.instances {
		instances = append(instances, inst)
	}
	rt.mu.Unlock()

	for _, inst := range instances {
		if err := inst.Stop(ctx); err != nil {
			rt.log.Warn("actor failed to stop cleanly during shutdown", zap.String("actor_id", inst.ID()), zap.Error(err))
		}
	}
	if err := rt.sched.Stop(); err != nil {
		rt.log.Warn("scheduler shutdown failed", zap.Error(err))
	}
}

// fireAlarm is the Scheduler's FireFunc: it loads (or reuses) the named
// actor's resident Instance and hands it its own due-event splice.
func (rt *Runtime) fireAlarm(actorID string) {
	inst, err := rt.GetOrLoad(context.Background(), actorID, nil)
	if err != nil {
		rt.log.Warn("failed to load actor for alarm", zap.String("actor_id", actorID), zap.Error(err))
		return
	}
	inst.OnAlarm(context.Background())
}

// GetOrLoad returns the resident Instance for id, constructing and starting
// one if none is resident, with its Definition resolved through the
// Runtime's DefinitionLookup. input is only consulted on first creation of
// a brand-new actor (it is ignored if the actor is already resident or
// already has a persisted blob).
func (rt *Runtime) GetOrLoad(ctx context.Context, id string, input []byte) (*Instance, error) {
	rt.mu.Lock()
	if inst, ok := rt.instances[id]; ok {
		rt.mu.Unlock()
		return inst, nil
	}
	rt.mu.Unlock()

	def, ok := rt.lookup(id)
	if !ok {
		return nil, fmt.Errorf("actor: no definition registered for %q", id)
	}

	return rt.getOrCreate(ctx, id, def, input)
}

// GetOrCreate resolves id against def explicitly — used by callers (the
// manager gateway) that already know which Definition an actor id maps to,
// rather than relying on DefinitionLookup.
func (rt *Runtime) GetOrCreate(ctx context.Context, id string, def *Definition, input []byte) (*Instance, error) {
	return rt.getOrCreate(ctx, id, def, input)
}

func (rt *Runtime) getOrCreate(ctx context.Context, id string, def *Definition, input []byte) (*Instance, error) {
	rt.mu.Lock()
	if inst, ok := rt.instances[id]; ok {
		rt.mu.Unlock()
		return inst, nil
	}

	inst := New(id, def, rt.timeouts, rt.store, rt.sched, rt.log)
	inst.SetOnEvicted(func() { rt.Evict(id) })
	rt.instances[id] = inst
	rt.mu.Unlock()

	if err := inst.Start(ctx, input); err != nil {
		rt.mu.Lock()
		delete(rt.instances, id)
		rt.mu.Unlock()
		return nil, fmt.Errorf("actor: start %q: %w", id, err)
	}

	return inst, nil
}

// Peek returns the resident Instance for id without loading it, for callers
// that only want to act on an actor if it is already in memory.
func (rt *Runtime) Peek(id string) (*Instance, bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	inst, ok := rt.instances[id]
	return inst, ok
}

// Evict removes id from the resident table without stopping it — used after
// Sleep/Stop have already run their own teardown sequence on the Instance.
func (rt *Runtime) Evict(id string) {
	rt.mu.Lock()
	delete(rt.instances, id)
	rt.mu.Unlock()
}

// SleepActor runs the full idle-sleep sequence for a resident actor and
// evicts it from the table, so the next request against id loads fresh.
func (rt *Runtime) SleepActor(ctx context.Context, id string) error {
	inst, ok := rt.Peek(id)
	if !ok {
		return nil
	}
	err := inst.Sleep(ctx)
	rt.Evict(id)
	return err
}

// StopActor runs the full shutdown sequence for a resident actor and evicts
// it from the table.
func (rt *Runtime) StopActor(ctx context.Context, id string) error {
	inst, ok := rt.Peek(id)
	if !ok {
		return nil
	}
	err := inst.Stop(ctx)
	rt.Evict(id)
	return err
}
