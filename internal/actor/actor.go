// Package actor implements the ActorInstance (SPEC_FULL.md §4.8): the
// composer that owns one actor's state, connections, scheduled events, and
// action dispatch behind a single-goroutine event loop. Grounded on the
// teacher's Hub.Run channel-serialized mutation pattern
// (internal/websocket/hub.go), generalized from "one hub serializes many
// clients' topic membership" to "one actor serializes all of its own
// message processing and state mutation" (SPEC_FULL.md §5).
package actor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rivet-dev/actor-core/internal/dispatch"
	"github.com/rivet-dev/actor-core/internal/persist"
	"github.com/rivet-dev/actor-core/internal/registry"
	"github.com/rivet-dev/actor-core/internal/scheduler"
	"github.com/rivet-dev/actor-core/internal/stateproxy"
	"github.com/rivet-dev/actor-core/internal/transport"
)

// Hooks are the user-definable callbacks an actor Definition may supply.
// All are optional; without CreateState a new actor's state starts as an
// empty CBOR map.
type Hooks struct {
	CreateState            func(ctx context.Context, input []byte) ([]byte, error)
	OnCreate                func(ctx context.Context, a *Instance) error
	OnStart                 func(ctx context.Context, a *Instance) error
	OnStop                  func(ctx context.Context, a *Instance) error
	OnStateChange           func(a *Instance)
	OnBeforeConnect         func(ctx context.Context, params []byte) error
	CreateConnState         func(ctx context.Context, params []byte) ([]byte, error)
	OnConnect               func(ctx context.Context, conn *registry.Connection) error
	OnDisconnect            func(ctx context.Context, conn *registry.Connection)
	OnBeforeActionResponse  dispatch.Transform
	OnFetch                 func(ctx context.Context, conn *registry.Connection, path string, body []byte) ([]byte, error)
	OnWebSocket             func(ctx context.Context, conn *registry.Connection, sock transport.Socket, inbound <-chan []byte) error
}

// Definition is a named actor kind: its registered actions and lifecycle
// hooks. Many Instances of the same Definition exist over the actor
// runtime's lifetime (one per actor id), but at most one is resident in
// memory at once (§3 invariant 1) — enforced by Runtime, not by Definition
// or Instance themselves.
type Definition struct {
	Name                string
	Actions             map[string]dispatch.Handler
	Hooks               Hooks
	NoSleep             bool
	ExposeInternalError bool
}

// Timeouts holds the per-hook configurable durations of SPEC_FULL.md §5.
type Timeouts struct {
	CreateVars                 time.Duration
	CreateConnState             time.Duration
	OnConnect                  time.Duration
	OnStop                     time.Duration
	Action                     time.Duration
	WaitUntil                  time.Duration
	ConnectionLiveness         time.Duration
	ConnectionLivenessInterval time.Duration
	Sleep                      time.Duration
	StateSaveInterval          time.Duration
}

// DefaultTimeouts returns the defaults named in SPEC_FULL.md §5.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		CreateVars:                 5 * time.Second,
		CreateConnState:            5 * time.Second,
		OnConnect:                  5 * time.Second,
		OnStop:                     5 * time.Second,
		Action:                     60 * time.Second,
		WaitUntil:                  15 * time.Second,
		ConnectionLiveness:         2500 * time.Millisecond,
		ConnectionLivenessInterval: 5 * time.Second,
		Sleep:                      30 * time.Second,
		StateSaveInterval:          10 * time.Second,
	}
}

// Instance is one resident actor: its state, its connections, its
// scheduled-event queue, and the single goroutine that serializes every
// mutation to them.
type Instance struct {
	id       string
	def      *Definition
	timeouts Timeouts
	store    *persist.Store
	sched    *scheduler.Scheduler
	log      *zap.Logger

	registry   *registry.ConnectionRegistry
	dispatcher *dispatch.Dispatcher

	state   *stateproxy.Proxy[[]byte]
	input   []byte
	hasInit bool
	events  []persist.ScheduledEvent

	ctx    context.Context
	cancel context.CancelFunc
	work   chan func()

	ready      bool
	stopping   bool
	rawFetches int
	rawSockets int

	sleepTimer     *time.Timer
	livenessTicker *time.Ticker

	wg sync.WaitGroup // background WaitUntil tasks

	stopped chan struct{}

	// onEvicted, if set, is invoked once the actor has finished its
	// shutdown sequence (whether that was timer-triggered Sleep or an
	// explicit Stop), so an owning Runtime can drop it from its resident
	// table without every caller having to remember to do so by hand.
	onEvicted func()
}

// SetOnEvicted registers a callback run after this instance completes its
// shutdown sequence. Intended for Runtime to wire up once, right after New.
func (a *Instance) SetOnEvicted(fn func()) { a.onEvicted = fn }

// New constructs a resident Instance and starts its event loop. Callers
// must call Start before routing any client-facing work to it.
func New(id string, def *Definition, timeouts Timeouts, store *persist.Store, sched *scheduler.Scheduler, log *zap.Logger) *Instance {
	ctx, cancel := context.WithCancel(context.Background())
	a := &Instance{
		id:       id,
		def:      def,
		timeouts: timeouts,
		store:    store,
		sched:    sched,
		log:      log.Named("actor").With(zap.String("actor_id", id), zap.String("actor_name", def.Name)),
		ctx:      ctx,
		cancel:   cancel,
		work:     make(chan func(), 64),
		stopped:  make(chan struct{}),
	}
	a.dispatcher = dispatch.New(def.Actions, timeouts.Action, def.Hooks.OnBeforeActionResponse)
	a.registry = registry.New(registry.Hooks{
		OnBeforeConnect: def.Hooks.OnBeforeConnect,
		CreateConnState: def.Hooks.CreateConnState,
		OnConnect:       def.Hooks.OnConnect,
		OnDisconnect:    def.Hooks.OnDisconnect,
		Persist:         a.persistNow,
	}, log, timeouts.ConnectionLiveness)
	go a.loop()
	return a
}

// ID returns the actor's id.
func (a *Instance) ID() string { return a.id }

// Definition returns the actor's kind definition.
func (a *Instance) Definition() *Definition { return a.def }

// Registry exposes the connection registry for transport adapters that
// need to bind/unbind sockets outside the event loop.
func (a *Instance) Registry() *registry.ConnectionRegistry { return a.registry }

type instanceCtxKey struct{}

// withInstance carries the dispatching Instance on the context action
// handlers receive. A Definition's Actions map is shared by every Instance
// built from it (actor.New wires it straight into dispatch.New), so a
// handler that needs the calling actor's own state reaches it via
// InstanceFromContext rather than a closure over one specific Instance.
func withInstance(ctx context.Context, a *Instance) context.Context {
	return context.WithValue(ctx, instanceCtxKey{}, a)
}

// InstanceFromContext returns the Instance dispatching the action running
// in ctx, for handlers that need to read or mutate their own actor's state.
func InstanceFromContext(ctx context.Context) (*Instance, bool) {
	a, ok := ctx.Value(instanceCtxKey{}).(*Instance)
	return a, ok
}

// State returns the actor's current state bytes (CBOR-encoded). Callers
// must treat the result as read-only; use MutateState to change it.
func (a *Instance) State() []byte { return a.state.Get() }

// MutateState runs fn against the live state and validates the result
// stays CBOR-serializable, per SPEC_FULL.md §4.5.
func (a *Instance) MutateState(fn func(cur []byte) []byte) error {
	return a.state.Mutate(func(s *[]byte) { *s = fn(*s) })
}

// WaitUntil runs fn in the background, tracked so Stop/Sleep drain it
// (with a bound of waitUntilTimeout) before the actor unloads.
func (a *Instance) WaitUntil(fn func(ctx context.Context)) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn(a.ctx)
	}()
}

// loop is the single goroutine that owns every mutation to this actor's
// state, connections, and scheduled-event queue. All public methods that
// touch those submit a closure here and block for it to run.
func (a *Instance) loop() {
	defer close(a.stopped)
	for {
		select {
		case fn := <-a.work:
			fn()
		case <-a.ctx.Done():
			for {
				select {
				case fn := <-a.work:
					fn()
				default:
					return
				}
			}
		}
	}
}

// exec submits fn to the event loop and blocks until it has run, or the
// actor's ambient context is already cancelled.
func (a *Instance) exec(fn func()) {
	done := make(chan struct{})
	select {
	case a.work <- func() { fn(); close(done) }:
	case <-a.ctx.Done():
		return
	}
	<-done
}
