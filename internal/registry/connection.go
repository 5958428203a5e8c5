// Package registry implements the ConnectionRegistry (SPEC_FULL.md §4.3):
// one actor's map of live connections, reconnection-by-token matching, and
// the liveness sweep that reaps connections abandoned mid-reconnect.
// Grounded on the teacher's internal/agentmanager.Manager (RWMutex-guarded
// map, register/deregister, poll-based wait) — see DESIGN.md.
package registry

import (
	"time"

	"github.com/rivet-dev/actor-core/internal/protocol"
	"github.com/rivet-dev/actor-core/internal/transport"
)

// Status is a Connection's derived lifecycle state.
type Status int

const (
	StatusConnected Status = iota
	StatusReconnecting
	StatusRemoved
)

func (s Status) String() string {
	switch s {
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Connection pairs one durable PersistedConn-shaped record with at most
// one live Socket. Status derives from socket presence.
type Connection struct {
	ConnID        string
	Token         string
	Params        []byte
	State         []byte
	Subscriptions map[string]struct{}
	LastSeen      time.Time
	// Encoding is the wire encoding this connection's socket negotiated at
	// connect time, used to resolve the Codec an event broadcast to this
	// connection must be serialized with.
	Encoding protocol.Encoding

	socket transport.Socket
}

// Status derives CONNECTED/RECONNECTING from whether a socket is bound.
// A connection that has been removed from the registry is not reachable
// through this type any more — callers learn that from the registry, not
// from the Connection itself, so there is no StatusRemoved value to read
// off a live Connection.
func (c *Connection) Status() Status {
	if c.socket != nil {
		return StatusConnected
	}
	return StatusReconnecting
}

// Socket returns the currently bound socket, or nil if reconnecting.
func (c *Connection) Socket() transport.Socket { return c.socket }

func (c *Connection) bind(s transport.Socket) {
	c.socket = s
	c.LastSeen = time.Now()
}

func (c *Connection) unbind() {
	c.socket = nil
}

func (c *Connection) touch() {
	c.LastSeen = time.Now()
}
