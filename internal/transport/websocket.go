package transport

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = (wsPongWait * 9) / 10
	wsMaxMessageSize = 1 << 20 // 1MiB, generous enough for action args/output
	wsSendBufferSize = 32
)

// Upgrader performs the HTTP -> WebSocket handshake. CheckOrigin always
// returns true, same as the teacher's client.go — origin policy belongs
// to the reverse proxy in front of this process, not the socket driver.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
	Subprotocols:    []string{}, // negotiated manually, see handshake.go
}

// WebSocketSocket adapts one gorilla/websocket connection to the Socket
// interface. Grounded on the teacher's websocket.Client read/write pump
// pair, generalized from a server-push-only pub/sub client (which
// discarded inbound frames) to a duplex actor connection that delivers
// inbound ToServer frames to onMessage.
type WebSocketSocket struct {
	id     string
	conn   *websocket.Conn
	send   chan wsFrame
	log    *zap.Logger
	closed chan struct{}

	onMessage func(data []byte)
	onClose   func(wasClean bool)
}

type wsFrame struct {
	data   []byte
	binary bool
}

// NewWebSocketSocket wraps an already-upgraded connection and starts its
// read/write pumps. onMessage is invoked (on the read-pump goroutine) for
// every inbound client frame; onClose is invoked exactly once, when the
// read pump exits.
func NewWebSocketSocket(conn *websocket.Conn, log *zap.Logger, onMessage func(data []byte), onClose func(wasClean bool)) *WebSocketSocket {
	s := &WebSocketSocket{
		id:        uuid.NewString(),
		conn:      conn,
		send:      make(chan wsFrame, wsSendBufferSize),
		log:       log.Named("transport.websocket"),
		closed:    make(chan struct{}),
		onMessage: onMessage,
		onClose:   onClose,
	}
	go s.writePump()
	go s.readPump()
	return s
}

func (s *WebSocketSocket) SocketID() string { return s.id }

func (s *WebSocketSocket) ReadyState() ReadyState {
	select {
	case <-s.closed:
		return StateClosed
	default:
		return StateOpen
	}
}

func (s *WebSocketSocket) Send(ctx context.Context, frame []byte, binary bool) error {
	select {
	case s.send <- wsFrame{data: frame, binary: binary}:
		return nil
	case <-s.closed:
		return context.Canceled
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *WebSocketSocket) Disconnect(ctx context.Context, reason string) error {
	return s.DisconnectWithCode(ctx, websocket.CloseNormalClosure, reason)
}

// DisconnectWithCode closes the connection with an explicit close code.
// Used to send 1011 on a setup failure (SPEC_FULL.md §7: "close codes:
// 1000 clean; 1011 internal during setup, code carried in reason") while
// plain Disconnect keeps the ordinary 1000 clean-close behavior.
func (s *WebSocketSocket) DisconnectWithCode(ctx context.Context, code int, reason string) error {
	deadline := time.Now().Add(wsWriteWait)
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), deadline)
	return s.conn.Close()
}

func (s *WebSocketSocket) readPump() {
	wasClean := false
	defer func() {
		s.markClosed()
		if s.onClose != nil {
			s.onClose(wasClean)
		}
	}()

	s.conn.SetReadLimit(wsMaxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				wasClean = true
			}
			return
		}
		if s.onMessage != nil {
			s.onMessage(data)
		}
	}
}

// writePump is the sole writer to conn — gorilla/websocket connections
// are not safe for concurrent writes.
func (s *WebSocketSocket) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case frame, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				return
			}
			msgType := websocket.TextMessage
			if frame.binary {
				msgType = websocket.BinaryMessage
			}
			if err := s.conn.WriteMessage(msgType, frame.data); err != nil {
				s.log.Debug("write error", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.closed:
			return
		}
	}
}

// NewRawWebSocketSocket wraps an already-upgraded connection for raw
// WebSocket passthrough (the onWebSocket hook, SPEC_FULL.md §4.4): unlike a
// regular actor connection, the hook has no onMessage callback of its own
// to wire up, so inbound frames are handed back as a channel instead. The
// channel is closed once the read pump exits.
func NewRawWebSocketSocket(conn *websocket.Conn, log *zap.Logger) (*WebSocketSocket, <-chan []byte) {
	inbox := make(chan []byte, wsSendBufferSize)
	s := NewWebSocketSocket(conn, log, func(data []byte) {
		select {
		case inbox <- data:
		default:
		}
	}, func(bool) { close(inbox) })
	return s, inbox
}

func (s *WebSocketSocket) markClosed() {
	select {
	case <-s.closed:
	default:
		close(s.closed)
	}
}
