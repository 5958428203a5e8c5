package transport

import (
	"context"

	"github.com/google/uuid"
)

// HTTPSocket represents an ephemeral connection with no server-push
// channel: POST /connections/message uses it when the target connection
// has no bound socket, and Send discards any frame written to it.
// Disconnect is a no-op since there is no persistent peer to notify, and
// ReadyState always reports OPEN (SPEC_FULL.md §4.4).
type HTTPSocket struct {
	id string
}

func NewHTTPSocket() *HTTPSocket {
	return &HTTPSocket{id: uuid.NewString()}
}

func (s *HTTPSocket) SocketID() string { return s.id }

func (s *HTTPSocket) ReadyState() ReadyState { return StateOpen }

func (s *HTTPSocket) Send(context.Context, []byte, bool) error { return nil }

func (s *HTTPSocket) Disconnect(context.Context, string) error { return nil }
