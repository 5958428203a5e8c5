package registry

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rivet-dev/actor-core/internal/persist"
	"github.com/rivet-dev/actor-core/internal/protocol"
	"github.com/rivet-dev/actor-core/internal/rkerrors"
	"github.com/rivet-dev/actor-core/internal/transport"
)

// Hooks are the actor-level callbacks ConnectionRegistry invokes around a
// connection's lifecycle. All are optional; without CreateConnState a new
// connection's state is nil.
type Hooks struct {
	OnBeforeConnect func(ctx context.Context, params []byte) error
	CreateConnState func(ctx context.Context, params []byte) ([]byte, error)
	OnConnect       func(ctx context.Context, conn *Connection) error
	OnDisconnect    func(ctx context.Context, conn *Connection)
	// Persist is invoked after any mutation to the connection set so the
	// owning actor can flush its full PersistedActor blob immediately
	// (SPEC_FULL.md §4.3: "append a PersistedConn, flush persistence
	// immediately").
	Persist func(ctx context.Context) error
}

// ConnectionRegistry owns the live connection set for one actor.
type ConnectionRegistry struct {
	mu    sync.Mutex
	conns map[string]*Connection
	hooks Hooks
	log   *zap.Logger

	livenessTimeout time.Duration
}

func New(hooks Hooks, log *zap.Logger, livenessTimeout time.Duration) *ConnectionRegistry {
	return &ConnectionRegistry{
		conns:           make(map[string]*Connection),
		hooks:           hooks,
		log:             log.Named("registry"),
		livenessTimeout: livenessTimeout,
	}
}

// Restore rehydrates the registry's connection set from a loaded
// PersistedActor, with every connection starting in the RECONNECTING
// state (no socket bound yet) — mirroring a fresh actor start after a
// sleep cycle.
func (r *ConnectionRegistry) Restore(conns []persist.PersistedConn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, pc := range conns {
		subs := make(map[string]struct{}, len(pc.Subscriptions))
		for _, s := range pc.Subscriptions {
			subs[s] = struct{}{}
		}
		r.conns[pc.ConnID] = &Connection{
			ConnID:        pc.ConnID,
			Token:         pc.Token,
			Params:        []byte(pc.Params),
			State:         []byte(pc.State),
			Subscriptions: subs,
			LastSeen:      time.UnixMilli(pc.LastSeenMS),
		}
	}
}

// Export snapshots the registry's connections into the persisted shape.
func (r *ConnectionRegistry) Export() []persist.PersistedConn {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]persist.PersistedConn, 0, len(r.conns))
	for _, c := range r.conns {
		subs := make([]string, 0, len(c.Subscriptions))
		for s := range c.Subscriptions {
			subs = append(subs, s)
		}
		out = append(out, persist.PersistedConn{
			ConnID:        c.ConnID,
			Token:         c.Token,
			Params:        c.Params,
			State:         c.State,
			Subscriptions: subs,
			LastSeenMS:    c.LastSeen.UnixMilli(),
		})
	}
	return out
}

// Get returns the connection with id, if any.
func (r *ConnectionRegistry) Get(connID string) (*Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[connID]
	return c, ok
}

// All returns a snapshot slice of every live connection.
func (r *ConnectionRegistry) All() []*Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

// ConnectedCount returns the number of connections currently in the CONNECTED
// state (a bound socket). Used for the actor's sleep-eligibility check.
func (r *ConnectionRegistry) ConnectedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.conns {
		if c.Status() == StatusConnected {
			n++
		}
	}
	return n
}

// Create handles both a fresh handshake and a reconnect, per SPEC_FULL.md
// §4.3. When reconnectConnID is empty a new connection is allocated. When
// it names an existing connection and reconnectToken matches, that
// connection is rebound to sock; a wrong token fails with IncorrectToken
// and an unknown id with ConnectionNotFound.
func (r *ConnectionRegistry) Create(ctx context.Context, sock transport.Socket, enc protocol.Encoding, params []byte, reconnectConnID, reconnectToken string) (*Connection, error) {
	if reconnectConnID != "" {
		r.mu.Lock()
		existing, ok := r.conns[reconnectConnID]
		r.mu.Unlock()
		if ok && existing.Token == reconnectToken {
			return r.rebind(ctx, existing, sock, enc)
		}
		if ok {
			return nil, rkerrors.IncorrectToken()
		}
		return nil, rkerrors.ConnectionNotFound()
	}

	return r.createFresh(ctx, sock, enc, params)
}

func (r *ConnectionRegistry) rebind(ctx context.Context, conn *Connection, sock transport.Socket, enc protocol.Encoding) (*Connection, error) {
	r.mu.Lock()
	old := conn.socket
	conn.bind(sock)
	conn.Encoding = enc
	r.mu.Unlock()

	if old != nil {
		// Detach (not remove) any prior socket — the new one now owns
		// this connection.
		_ = old.Disconnect(ctx, "superseded by reconnect")
	}

	r.log.Debug("connection rebound", zap.String("conn_id", conn.ConnID))
	return conn, nil
}

func (r *ConnectionRegistry) createFresh(ctx context.Context, sock transport.Socket, enc protocol.Encoding, params []byte) (*Connection, error) {
	if r.hooks.OnBeforeConnect != nil {
		if err := r.hooks.OnBeforeConnect(ctx, params); err != nil {
			return nil, err
		}
	}

	var state []byte
	if r.hooks.CreateConnState != nil {
		s, err := r.hooks.CreateConnState(ctx, params)
		if err != nil {
			return nil, err
		}
		state = s
	}

	connID := uuid.NewString()
	token, err := randomToken()
	if err != nil {
		return nil, fmt.Errorf("registry: generate token: %w", err)
	}

	conn := &Connection{
		ConnID:        connID,
		Token:         token,
		Params:        params,
		State:         state,
		Subscriptions: make(map[string]struct{}),
		LastSeen:      time.Now(),
		Encoding:      enc,
	}
	conn.bind(sock)

	r.mu.Lock()
	r.conns[connID] = conn
	r.mu.Unlock()

	if err := r.flush(ctx); err != nil {
		return nil, err
	}

	if r.hooks.OnConnect != nil {
		if err := r.hooks.OnConnect(ctx, conn); err != nil {
			r.removeLocked(ctx, conn)
			_ = conn.socket.Disconnect(ctx, "onConnect failed")
			return nil, err
		}
	}

	return conn, nil
}

// ConnDisconnected handles a socket closing, per SPEC_FULL.md §4.3. A
// stale socketID (superseded by a later reconnect) is ignored.
func (r *ConnectionRegistry) ConnDisconnected(ctx context.Context, conn *Connection, wasClean bool, socketID string) {
	r.mu.Lock()
	if conn.socket == nil || conn.socket.SocketID() != socketID {
		r.mu.Unlock()
		return
	}
	if wasClean {
		r.mu.Unlock()
		r.removeLocked(ctx, conn)
		return
	}
	conn.unbind()
	conn.touch()
	r.mu.Unlock()
}

// Disconnect forcibly removes a connection regardless of clean/unclean
// close, used e.g. when onConnect fails or the actor is stopping.
func (r *ConnectionRegistry) Disconnect(ctx context.Context, conn *Connection, reason string) {
	if sock := conn.Socket(); sock != nil {
		_ = sock.Disconnect(ctx, reason)
	}
	r.removeLocked(ctx, conn)
}

func (r *ConnectionRegistry) removeLocked(ctx context.Context, conn *Connection) {
	r.mu.Lock()
	_, existed := r.conns[conn.ConnID]
	delete(r.conns, conn.ConnID)
	r.mu.Unlock()

	if !existed {
		return
	}
	if err := r.flush(ctx); err != nil {
		r.log.Warn("failed to persist after connection removal", zap.Error(err))
	}
	if r.hooks.OnDisconnect != nil {
		r.hooks.OnDisconnect(ctx, conn)
	}
}

// LivenessSweep removes every RECONNECTING connection whose LastSeen is
// older than the configured liveness timeout. Intended to run on an
// interval and once immediately on actor start (to reap connections stuck
// reconnecting across a sleep cycle).
func (r *ConnectionRegistry) LivenessSweep(ctx context.Context) {
	now := time.Now()
	var stale []*Connection

	r.mu.Lock()
	for _, c := range r.conns {
		if c.Status() == StatusReconnecting && now.Sub(c.LastSeen) > r.livenessTimeout {
			stale = append(stale, c)
		}
	}
	r.mu.Unlock()

	for _, c := range stale {
		r.log.Debug("reaping stale reconnecting connection", zap.String("conn_id", c.ConnID))
		r.removeLocked(ctx, c)
	}
}

func (r *ConnectionRegistry) flush(ctx context.Context) error {
	if r.hooks.Persist == nil {
		return nil
	}
	return r.hooks.Persist(ctx)
}

// SetSubscription adds or removes an event-name subscription for conn and
// flushes the change immediately (SPEC_FULL.md §4.8 processMessage).
func (r *ConnectionRegistry) SetSubscription(ctx context.Context, conn *Connection, eventName string, subscribe bool) error {
	r.mu.Lock()
	if subscribe {
		conn.Subscriptions[eventName] = struct{}{}
	} else {
		delete(conn.Subscriptions, eventName)
	}
	r.mu.Unlock()
	return r.flush(ctx)
}

// Subscribers returns every connection currently subscribed to eventName,
// for broadcast fan-out.
func (r *ConnectionRegistry) Subscribers(eventName string) []*Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Connection
	for _, c := range r.conns {
		if _, ok := c.Subscriptions[eventName]; ok {
			out = append(out, c)
		}
	}
	return out
}

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
