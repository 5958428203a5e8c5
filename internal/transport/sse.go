package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const ssePingPeriod = 1000 * time.Millisecond

// SSESocket adapts one server-sent-events response stream to the Socket
// interface. SSE is server-to-client only — client-to-server traffic
// arrives out of band over POST /connections/message — so Send is the
// only data-moving half; Disconnect merely unblocks Wait. Grounded on the
// teacher's websocket.Client write pump, replacing the websocket frame
// write with an http.Flusher-backed `data:` write and the ping interval
// with the SSE-specific 1-second period (SPEC_FULL.md §4.4).
type SSESocket struct {
	id  string
	w   http.ResponseWriter
	fl  http.Flusher
	log *zap.Logger

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// NewSSESocket wraps w (which must implement http.Flusher) for one SSE
// stream. The caller is expected to call Wait to block the handler
// goroutine until the stream ends (peer disconnect, request context
// cancellation, or an explicit Disconnect).
func NewSSESocket(w http.ResponseWriter, log *zap.Logger) (*SSESocket, error) {
	fl, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("transport: response writer does not support flushing, cannot stream SSE")
	}
	return &SSESocket{
		id:   uuid.NewString(),
		w:    w,
		fl:   fl,
		log:  log.Named("transport.sse"),
		done: make(chan struct{}),
	}, nil
}

func (s *SSESocket) SocketID() string { return s.id }

func (s *SSESocket) ReadyState() ReadyState {
	select {
	case <-s.done:
		return StateClosed
	default:
		return StateOpen
	}
}

// Send writes one SSE `data:` frame. encoding's binary-ness is the
// caller's concern (codec.FrameSSE base64-frames binary payloads before
// this is called); Send itself just writes whatever bytes it is given.
func (s *SSESocket) Send(ctx context.Context, frame []byte, _ bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return context.Canceled
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", frame); err != nil {
		return fmt.Errorf("transport: sse write: %w", err)
	}
	s.fl.Flush()
	return nil
}

// Disconnect marks the stream closed so Wait returns and ReadyState
// reports CLOSED; it does not itself write anything (the connection
// closes when the handler goroutine returns).
func (s *SSESocket) Disconnect(_ context.Context, reason string) error {
	s.markClosed()
	if reason != "" {
		s.log.Debug("sse stream closing", zap.String("reason", reason))
	}
	return nil
}

// Wait blocks until the socket is closed, either because ctx (the
// request context) was cancelled — the client aborted the connection, a
// non-clean close — or Disconnect was called explicitly. wasClean
// reports which happened.
func (s *SSESocket) Wait(ctx context.Context) (wasClean bool) {
	select {
	case <-s.done:
		return true
	case <-ctx.Done():
		s.markClosed()
		return false
	}
}

func (s *SSESocket) markClosed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
}

// PingLoop emits a keepalive comment every second so intermediaries do
// not time out the stream, until ctx is done or the socket closes.
// Intended to run in its own goroutine alongside Wait.
func (s *SSESocket) PingLoop(ctx context.Context) {
	ticker := time.NewTicker(ssePingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			if s.closed {
				s.mu.Unlock()
				return
			}
			_, err := fmt.Fprint(s.w, ": ping\n\n")
			if err == nil {
				s.fl.Flush()
			}
			s.mu.Unlock()
			if err != nil {
				return
			}
		case <-ctx.Done():
			return
		case <-s.done:
			return
		}
	}
}
