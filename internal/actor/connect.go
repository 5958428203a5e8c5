package actor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rivet-dev/actor-core/internal/protocol"
	"github.com/rivet-dev/actor-core/internal/registry"
	"github.com/rivet-dev/actor-core/internal/rkerrors"
	"github.com/rivet-dev/actor-core/internal/transport"
)

// CreateConn binds a new or reconnecting socket to the actor, per
// SPEC_FULL.md §4.3/§4.4. enc is the encoding this socket negotiated, kept
// on the resulting Connection so a later BroadcastEvent can serialize for
// it without the caller threading a codec through again. On success
// CreateConn returns the Init frame the caller must send down sock before
// relaying any further messages.
func (a *Instance) CreateConn(ctx context.Context, sock transport.Socket, enc protocol.Encoding, params []byte, reconnectConnID, reconnectToken string) (*registry.Connection, protocol.ToClient, error) {
	var conn *registry.Connection
	var initMsg protocol.ToClient
	var outErr error

	a.exec(func() {
		if a.stopping {
			outErr = rkerrors.Internal("actor is stopping")
			return
		}
		c, err := a.registry.Create(ctx, sock, enc, params, reconnectConnID, reconnectToken)
		if err != nil {
			outErr = err
			return
		}
		conn = c
		initMsg = protocol.NewInit(a.id, c.ConnID, c.Token)
		a.resetSleepTimer()
		a.flushIfDirty(ctx)
	})

	return conn, initMsg, outErr
}

// ConnDisconnected records a socket close, per SPEC_FULL.md §4.3.
func (a *Instance) ConnDisconnected(ctx context.Context, conn *registry.Connection, wasClean bool, socketID string) {
	a.exec(func() {
		a.registry.ConnDisconnected(ctx, conn, wasClean, socketID)
		a.resetSleepTimer()
	})
}

// HandleFetch serves a raw HTTP passthrough request against onFetch, if the
// actor's definition defines one (SPEC_FULL.md §4.4 raw HTTP). The hook
// itself runs outside the event loop (it may block on arbitrary I/O); only
// the raw-fetch counter that gates sleep eligibility is mutated on it.
func (a *Instance) HandleFetch(ctx context.Context, conn *registry.Connection, path string, body []byte) ([]byte, error) {
	if a.def.Hooks.OnFetch == nil {
		return nil, rkerrors.FetchNotDefined()
	}

	a.exec(func() {
		a.rawFetches++
		a.resetSleepTimer()
	})
	defer a.exec(func() {
		a.rawFetches--
		a.resetSleepTimer()
	})

	return a.def.Hooks.OnFetch(ctx, conn, path, body)
}

// HandleWebSocket serves a raw websocket passthrough against onWebSocket,
// if defined, for the lifetime of sock (SPEC_FULL.md §4.4 raw WebSocket).
// inbound delivers the client's raw frames, since sock itself is push-only.
func (a *Instance) HandleWebSocket(ctx context.Context, conn *registry.Connection, sock transport.Socket, inbound <-chan []byte) error {
	if a.def.Hooks.OnWebSocket == nil {
		return rkerrors.WebSocketNotDefined()
	}

	a.exec(func() {
		a.rawSockets++
		a.resetSleepTimer()
	})
	defer a.exec(func() {
		a.rawSockets--
		a.resetSleepTimer()
	})

	return a.def.Hooks.OnWebSocket(ctx, conn, sock, inbound)
}

// Sleep runs the idle-sleep sequence: same shutdown steps as Stop, but the
// actor may be recreated on its next inbound request (SPEC_FULL.md §4.8).
func (a *Instance) Sleep(ctx context.Context) error {
	return a.shutdown(ctx, "actor going to sleep")
}

// Stop runs the full shutdown sequence and tears the instance down for
// good (SPEC_FULL.md §4.8). The Runtime is responsible for evicting the
// Instance from its resident table once Stop returns.
func (a *Instance) Stop(ctx context.Context) error {
	return a.shutdown(ctx, "actor stopping")
}

// shutdown implements SPEC_FULL.md §4.8's stop sequence: mark stopping,
// run onStop bounded by onStopTimeout, disconnect every connection bounded
// by a fixed grace period, drain background WaitUntil tasks bounded by
// waitUntilTimeout, persist one final time, then cancel the event loop.
func (a *Instance) shutdown(ctx context.Context, reason string) error {
	var onStopErr error
	var alreadyStopping bool

	a.exec(func() {
		alreadyStopping = a.stopping
		a.stopping = true
		if a.sleepTimer != nil {
			a.sleepTimer.Stop()
			a.sleepTimer = nil
		}
	})
	if alreadyStopping {
		<-a.stopped
		return nil
	}

	if a.def.Hooks.OnStop != nil {
		stopCtx, cancel := context.WithTimeout(ctx, a.timeouts.OnStop)
		onStopErr = a.def.Hooks.OnStop(stopCtx, a)
		cancel()
		if onStopErr != nil {
			a.log.Warn("onStop hook failed", zap.Error(onStopErr))
		}
	}

	a.disconnectAll(ctx, reason)

	if waitDone := a.waitForBackgroundTasks(a.timeouts.WaitUntil); !waitDone {
		a.log.Warn("waitUntil tasks did not drain before timeout", zap.Duration("timeout", a.timeouts.WaitUntil))
	}

	a.exec(func() {
		if a.livenessTicker != nil {
			a.livenessTicker.Stop()
		}
		a.disarmAlarm(ctx)
		if err := a.persistNow(ctx); err != nil {
			a.log.Warn("failed to persist on shutdown", zap.Error(err))
		}
	})

	a.cancel()
	<-a.stopped

	if a.onEvicted != nil {
		a.onEvicted()
	}

	return onStopErr
}

const disconnectGrace = 1500 * time.Millisecond

func (a *Instance) disconnectAll(ctx context.Context, reason string) {
	var conns []*registry.Connection
	a.exec(func() {
		conns = a.registry.All()
	})
	if len(conns) == 0 {
		return
	}

	disconnectCtx, cancel := context.WithTimeout(ctx, disconnectGrace)
	defer cancel()

	// Each socket's Disconnect call may block on network I/O, so those run
	// concurrently; the registry mutation + persist they trigger is still
	// funneled through exec so it stays serialized with the rest of the
	// actor's single-writer state.
	var wg sync.WaitGroup
	for _, c := range conns {
		c := c
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.exec(func() { a.registry.Disconnect(disconnectCtx, c, reason) })
		}()
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-disconnectCtx.Done():
		a.log.Warn("disconnect grace period elapsed with connections still closing")
	}
}

// waitForBackgroundTasks blocks until the actor's WaitUntil goroutines have
// finished or timeout elapses, returning whether they drained in time.
func (a *Instance) waitForBackgroundTasks(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
