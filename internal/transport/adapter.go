// Package transport implements the three connection drivers — WebSocket,
// SSE, and HTTP — that share one contract against a Connection: send,
// disconnect, and readyState (SPEC_FULL.md §4.4). Grounded on the
// teacher's internal/websocket package (client.go, hub.go) generalized
// from a pub/sub topic client to a single actor connection's socket
// driver — see DESIGN.md.
package transport

import "context"

// ReadyState mirrors the WHATWG WebSocket readyState values so all three
// adapters can report status uniformly.
type ReadyState int

const (
	StateConnecting ReadyState = iota
	StateOpen
	StateClosing
	StateClosed
	StateUnknown
)

// Socket is the driver-specific half of a live connection: something that
// can push encoded bytes to a peer, be told to disconnect, and report its
// current state. A Connection (registry.Connection) holds at most one
// bound Socket at a time.
type Socket interface {
	// Send writes one already-encoded message frame to the peer.
	Send(ctx context.Context, frame []byte, binary bool) error

	// Disconnect closes the socket with an optional human-readable
	// reason. It returns once the close has been initiated; it does not
	// wait for the peer to acknowledge the close.
	Disconnect(ctx context.Context, reason string) error

	// ReadyState reports the socket's current lifecycle state.
	ReadyState() ReadyState

	// SocketID distinguishes this physical socket from any other bound
	// to the same Connection over time, so a stale close event (from a
	// socket that has already been superseded by a reconnect) can be
	// told apart from the current one.
	SocketID() string
}
