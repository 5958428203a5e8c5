package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/rivet-dev/actor-core/internal/actor"
	"github.com/rivet-dev/actor-core/internal/codec"
	"github.com/rivet-dev/actor-core/internal/manager"
	"github.com/rivet-dev/actor-core/internal/protocol"
	"github.com/rivet-dev/actor-core/internal/registry"
	"github.com/rivet-dev/actor-core/internal/rkerrors"
	"github.com/rivet-dev/actor-core/internal/transport"
)

// ActorHandler serves the Actor HTTP surface (SPEC_FULL.md §6): the
// connect/action/raw endpoints relative to one actor, resolved per-request
// from the handshake metadata carried in Sec-WebSocket-Protocol or the
// x-rivet-* headers rather than from the URL path — the Manager and Actor
// surfaces share top-level paths like "/" and "/health", so the router
// dispatches between them by presence of an actor selector, not by a
// distinct URL namespace (see DESIGN.md for this Open Question's
// resolution).
type ActorHandler struct {
	Gateway *manager.Gateway
	Log     *zap.Logger
}

func NewActorHandler(gw *manager.Gateway, log *zap.Logger) *ActorHandler {
	return &ActorHandler{Gateway: gw, Log: log.Named("httpapi.actor")}
}

// Banner serves GET / on the Actor surface.
func (h *ActorHandler) Banner(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(bannerText))
}

// Health serves GET /health on the Actor surface: unlike the Manager
// surface's JSON body, this is just the bare word the spec names.
func (h *ActorHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

// actorQueryWire is the JSON shape carried in the x-rivet-actor-query
// header: a tagged union keyed by which ManagerGateway query variant the
// caller wants, mirroring manager.QueryKind. Exactly one key may be set.
type actorQueryWire struct {
	GetForID *struct {
		Name    string `json:"name"`
		ActorID string `json:"actorId"`
	} `json:"getForId,omitempty"`
	GetForKey *struct {
		Name string   `json:"name"`
		Key  []string `json:"key"`
	} `json:"getForKey,omitempty"`
	GetOrCreateForKey *struct {
		Name   string          `json:"name"`
		Key    []string        `json:"key"`
		Input  json.RawMessage `json:"input,omitempty"`
		Region string          `json:"region,omitempty"`
	} `json:"getOrCreateForKey,omitempty"`
	Create *struct {
		Name   string          `json:"name"`
		Key    []string        `json:"key,omitempty"`
		Input  json.RawMessage `json:"input,omitempty"`
		Region string          `json:"region,omitempty"`
	} `json:"create,omitempty"`
}

func (w actorQueryWire) toQuery() (manager.Query, error) {
	switch {
	case w.GetForID != nil:
		return manager.Query{Kind: manager.QueryGetForID, Name: w.GetForID.Name, ActorID: w.GetForID.ActorID}, nil
	case w.GetForKey != nil:
		return manager.Query{Kind: manager.QueryGetForKey, Name: w.GetForKey.Name, Key: w.GetForKey.Key}, nil
	case w.GetOrCreateForKey != nil:
		input, err := jsonToCanonicalCBOR(w.GetOrCreateForKey.Input)
		if err != nil {
			return manager.Query{}, rkerrors.New(rkerrors.GroupEncoding, rkerrors.CodeEncodingInvalid, "malformed input")
		}
		return manager.Query{Kind: manager.QueryGetOrCreateForKey, Name: w.GetOrCreateForKey.Name, Key: w.GetOrCreateForKey.Key, Input: input, Region: w.GetOrCreateForKey.Region}, nil
	case w.Create != nil:
		input, err := jsonToCanonicalCBOR(w.Create.Input)
		if err != nil {
			return manager.Query{}, rkerrors.New(rkerrors.GroupEncoding, rkerrors.CodeEncodingInvalid, "malformed input")
		}
		return manager.Query{Kind: manager.QueryCreate, Name: w.Create.Name, Key: w.Create.Key, Input: input, Region: w.Create.Region}, nil
	default:
		return manager.Query{}, rkerrors.New(rkerrors.GroupConnection, rkerrors.CodeParamsInvalid,
			"actor query must set exactly one of getForId/getForKey/getOrCreateForKey/create")
	}
}

// resolveActor turns a Handshake into a concrete actorId, consulting the
// ManagerGateway either via the literal (target, actorId) pair or the
// richer JSON query carried in x-rivet-actor-query.
func (h *ActorHandler) resolveActor(ctx context.Context, hs transport.Handshake) (manager.Resolved, error) {
	var q manager.Query

	switch {
	case hs.ActorQuery != "":
		var wire actorQueryWire
		if err := json.Unmarshal([]byte(hs.ActorQuery), &wire); err != nil {
			return manager.Resolved{}, rkerrors.New(rkerrors.GroupConnection, rkerrors.CodeParamsInvalid, "malformed x-rivet-actor-query header")
		}
		var err error
		q, err = wire.toQuery()
		if err != nil {
			return manager.Resolved{}, err
		}
	case hs.ActorID != "":
		q = manager.Query{Kind: manager.QueryGetForID, Name: hs.Target, ActorID: hs.ActorID}
	default:
		return manager.Resolved{}, rkerrors.New(rkerrors.GroupConnection, rkerrors.CodeParamsInvalid,
			"no actor selector given: set x-rivet-actor or x-rivet-actor-query")
	}

	return h.Gateway.Resolve(ctx, q)
}

// toErrorFrame builds the Error ToClient frame for a processing failure
// that happens outside handleAction's own error path (handshake/setup
// failures, subscription-request failures), mirroring actor.errorResponse.
func toErrorFrame(err error, exposeInternal bool, actionID *uint64) protocol.ToClient {
	rk, ok := rkerrors.As(err)
	if !ok {
		rk = rkerrors.Internal(err.Error())
	}
	group, code, message, metadata := rk.Wire(exposeInternal)
	return protocol.NewError(string(group), string(code), message, metadata, actionID)
}

// httpStatusForCode maps a wire error code back to an HTTP status, for
// replies that already carry a finalized (possibly redacted) error code
// rather than an *rkerrors.RKError.
func httpStatusForCode(code rkerrors.Code) int {
	return (&rkerrors.RKError{Code: code, Public: true}).HTTPStatus()
}

// sendToClient encodes msg for enc and writes it to sock, base64-framing
// it first if sock is an SSE stream and enc is a binary encoding.
func sendToClient(ctx context.Context, sock transport.Socket, enc codec.Codec, msg protocol.ToClient) error {
	data, err := enc.EncodeToClient(msg)
	if err != nil {
		return err
	}
	binary := codec.IsBinary(enc)
	if _, ok := sock.(*transport.SSESocket); ok {
		return sock.Send(ctx, []byte(codec.FrameSSE(data, binary)), binary)
	}
	return sock.Send(ctx, data, binary)
}

// connState is shared between a socket's onMessage callback and the
// goroutine that establishes the actor connection, since a client frame
// can in principle race the CreateConn call that produces *registry.Connection.
type connState struct {
	mu   sync.Mutex
	conn *registry.Connection
}

func (s *connState) get() *registry.Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

func (s *connState) set(c *registry.Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = c
}

// ConnectWebSocket serves GET /connect/websocket.
func (h *ActorHandler) ConnectWebSocket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hs, err := transport.ParseWebSocketProtocol(r.Header.Get("Sec-WebSocket-Protocol"))
	if err != nil {
		writeManagerErr(w, rkerrors.New(rkerrors.GroupConnection, rkerrors.CodeParamsInvalid, err.Error()))
		return
	}
	enc, err := codec.ForEncoding(hs.Encoding)
	if err != nil {
		writeManagerErr(w, rkerrors.New(rkerrors.GroupEncoding, rkerrors.CodeEncodingInvalid, err.Error()))
		return
	}

	resolved, resolveErr := h.resolveActor(ctx, hs)

	if resolveErr == nil {
		if proxyAddr, isProxy := h.Gateway.Route(resolved.ActorID); isProxy {
			h.proxyWebSocketUpgrade(w, r, proxyAddr, "/connect/websocket")
			return
		}
	}

	responseHeader := http.Header{}
	responseHeader.Set("Sec-WebSocket-Protocol", "rivet")
	conn, err := transport.Upgrader.Upgrade(w, r, responseHeader)
	if err != nil {
		h.Log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	if resolveErr != nil {
		h.failWebSocketSetup(ctx, conn, enc, resolveErr)
		return
	}

	inst, err := h.Gateway.LocalInstance(ctx, resolved.ActorID, nil)
	if err != nil {
		h.failWebSocketSetup(ctx, conn, enc, err)
		return
	}

	h.serveWebSocketConn(ctx, conn, enc, inst, hs)
}

func (h *ActorHandler) serveWebSocketConn(ctx context.Context, conn *websocket.Conn, enc codec.Codec, inst *actor.Instance, hs transport.Handshake) {
	state := &connState{}
	var sock *transport.WebSocketSocket
	sock = transport.NewWebSocketSocket(conn, h.Log, func(data []byte) {
		c := state.get()
		if c == nil {
			return
		}
		h.deliverWireMessage(ctx, inst, c, enc, data, sock)
	}, func(wasClean bool) {
		if c := state.get(); c != nil {
			inst.ConnDisconnected(context.Background(), c, wasClean, sock.SocketID())
		}
	})

	c, initMsg, err := inst.CreateConn(ctx, sock, enc.Encoding(), hs.ConnParams, hs.ConnID, hs.ConnToken)
	if err != nil {
		frame := toErrorFrame(err, inst.Definition().ExposeInternalError, nil)
		_ = sendToClient(ctx, sock, enc, frame)
		_ = sock.DisconnectWithCode(ctx, websocket.CloseInternalServerErr, err.Error())
		return
	}
	state.set(c)
	if err := sendToClient(ctx, sock, enc, initMsg); err != nil {
		h.Log.Debug("failed to send init frame", zap.Error(err))
	}
}

func (h *ActorHandler) failWebSocketSetup(ctx context.Context, conn *websocket.Conn, enc codec.Codec, setupErr error) {
	sock := transport.NewWebSocketSocket(conn, h.Log, nil, nil)
	frame := toErrorFrame(setupErr, false, nil)
	_ = sendToClient(ctx, sock, enc, frame)
	_ = sock.DisconnectWithCode(ctx, websocket.CloseInternalServerErr, setupErr.Error())
}

// deliverWireMessage decodes one inbound frame, dispatches it, and sends
// back any reply. Used by both the WebSocket onMessage callback and the
// injected POST /connections/message path.
func (h *ActorHandler) deliverWireMessage(ctx context.Context, inst *actor.Instance, conn *registry.Connection, enc codec.Codec, data []byte, sock transport.Socket) {
	msg, err := enc.DecodeToServer(data)
	if err != nil {
		frame := toErrorFrame(rkerrors.MessageMalformed(err.Error()), inst.Definition().ExposeInternalError, nil)
		_ = sendToClient(ctx, sock, enc, frame)
		return
	}

	reply, err := inst.ProcessMessage(ctx, msg, conn, enc)
	if err != nil {
		frame := toErrorFrame(err, inst.Definition().ExposeInternalError, nil)
		_ = sendToClient(ctx, sock, enc, frame)
		return
	}
	if reply != nil {
		if err := sendToClient(ctx, sock, enc, *reply); err != nil {
			h.Log.Debug("failed to deliver reply frame", zap.Error(err))
		}
	}
}

// ConnectSSE serves GET /connect/sse.
func (h *ActorHandler) ConnectSSE(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hs := transport.ParseHeaders(r.Header)
	enc, err := codec.ForEncoding(hs.Encoding)
	if err != nil {
		writeErr(w, nil, false, rkerrors.New(rkerrors.GroupEncoding, rkerrors.CodeEncodingInvalid, err.Error()))
		return
	}

	resolved, resolveErr := h.resolveActor(ctx, hs)
	if resolveErr == nil {
		if proxyAddr, isProxy := h.Gateway.Route(resolved.ActorID); isProxy {
			proxy, perr := manager.NewReverseProxy(proxyAddr, h.Log)
			if perr != nil {
				writeErr(w, enc, false, perr)
				return
			}
			proxy.ServeHTTP(w, r)
			return
		}
	}

	sock, err := transport.NewSSESocket(w, h.Log)
	if err != nil {
		writeErr(w, enc, false, err)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if resolveErr != nil {
		frame := toErrorFrame(resolveErr, false, nil)
		_ = sendToClient(ctx, sock, enc, frame)
		return
	}

	inst, err := h.Gateway.LocalInstance(ctx, resolved.ActorID, nil)
	if err != nil {
		frame := toErrorFrame(err, false, nil)
		_ = sendToClient(ctx, sock, enc, frame)
		return
	}

	c, initMsg, err := inst.CreateConn(ctx, sock, enc.Encoding(), hs.ConnParams, hs.ConnID, hs.ConnToken)
	if err != nil {
		frame := toErrorFrame(err, inst.Definition().ExposeInternalError, nil)
		_ = sendToClient(ctx, sock, enc, frame)
		return
	}
	if err := sendToClient(ctx, sock, enc, initMsg); err != nil {
		h.Log.Debug("failed to send init frame", zap.Error(err))
	}

	go sock.PingLoop(ctx)
	wasClean := sock.Wait(ctx)
	inst.ConnDisconnected(context.Background(), c, wasClean, sock.SocketID())
}

// Action serves POST /action/:name, a one-shot call with no registered
// connection (SPEC_FULL.md §4.8 ignores the conn parameter for an
// ActionRequest, so nil is passed for it here).
func (h *ActorHandler) Action(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hs := transport.ParseHeaders(r.Header)
	enc, err := codec.ForEncoding(hs.Encoding)
	if err != nil {
		writeErr(w, nil, false, rkerrors.New(rkerrors.GroupEncoding, rkerrors.CodeEncodingInvalid, err.Error()))
		return
	}

	resolved, err := h.resolveActor(ctx, hs)
	if err != nil {
		writeErr(w, enc, false, err)
		return
	}

	if proxyAddr, isProxy := h.Gateway.Route(resolved.ActorID); isProxy {
		proxy, perr := manager.NewReverseProxy(proxyAddr, h.Log)
		if perr != nil {
			writeErr(w, enc, false, perr)
			return
		}
		proxy.ServeHTTP(w, r)
		return
	}

	inst, err := h.Gateway.LocalInstance(ctx, resolved.ActorID, nil)
	if err != nil {
		writeErr(w, enc, false, err)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeErr(w, enc, inst.Definition().ExposeInternalError, rkerrors.New(rkerrors.GroupConnection, rkerrors.CodeParamsInvalid, "failed to read request body"))
		return
	}
	var req protocol.HTTPActionRequest
	if err := enc.DecodeValue(body, &req); err != nil {
		writeErr(w, enc, inst.Definition().ExposeInternalError, rkerrors.MessageMalformed("malformed http action request"))
		return
	}

	// HTTPActionRequest.Args and HTTPActionResponse.Output hold CBOR bytes
	// whatever encoding the body itself uses, so the action is transcoded
	// as CBOR rather than with enc.
	cborEnc, err := codec.ForEncoding(protocol.EncodingCBOR)
	if err != nil {
		writeErr(w, enc, false, err)
		return
	}
	actionName := chi.URLParam(r, "name")
	msg := protocol.ToServer{Tag: protocol.ToServerAction, ActionName: actionName, Args: req.Args}
	reply, err := inst.ProcessMessage(ctx, msg, nil, cborEnc)
	if err != nil {
		writeErr(w, enc, inst.Definition().ExposeInternalError, err)
		return
	}

	switch reply.Tag {
	case protocol.ToClientActionResponse:
		resp := protocol.HTTPActionResponse{Output: reply.Output}
		encoded, err := enc.EncodeValue(resp)
		if err != nil {
			writeErr(w, enc, false, err)
			return
		}
		w.Header().Set("Content-Type", contentTypeFor(enc.Encoding()))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(encoded)
	case protocol.ToClientError:
		body := protocol.HTTPResponseError{
			Group:    reply.ErrorGroup,
			Code:     reply.ErrorCode,
			Message:  reply.ErrorMessage,
			Metadata: reply.ErrorMetadata,
		}
		encoded, err := enc.EncodeValue(body)
		status := httpStatusForCode(rkerrors.Code(reply.ErrorCode))
		if err != nil {
			writeJSON(w, status, body)
			return
		}
		w.Header().Set("Content-Type", contentTypeFor(enc.Encoding()))
		w.WriteHeader(status)
		_, _ = w.Write(encoded)
	default:
		writeErr(w, enc, false, rkerrors.Internal("unexpected action reply"))
	}
}

// ConnectionsMessage serves POST /connections/message: inject a ToServer
// frame into an existing connection, identified by (x-rivet-conn,
// x-rivet-conn-token). Any reply is delivered over the connection's bound
// socket (if any); the POST itself just acknowledges.
func (h *ActorHandler) ConnectionsMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hs := transport.ParseHeaders(r.Header)
	enc, err := codec.ForEncoding(hs.Encoding)
	if err != nil {
		writeErr(w, nil, false, rkerrors.New(rkerrors.GroupEncoding, rkerrors.CodeEncodingInvalid, err.Error()))
		return
	}

	resolved, err := h.resolveActor(ctx, hs)
	if err != nil {
		writeErr(w, enc, false, err)
		return
	}

	if proxyAddr, isProxy := h.Gateway.Route(resolved.ActorID); isProxy {
		proxy, perr := manager.NewReverseProxy(proxyAddr, h.Log)
		if perr != nil {
			writeErr(w, enc, false, perr)
			return
		}
		proxy.ServeHTTP(w, r)
		return
	}

	inst, err := h.Gateway.LocalInstance(ctx, resolved.ActorID, nil)
	if err != nil {
		writeErr(w, enc, false, err)
		return
	}

	if hs.ConnID == "" {
		writeErr(w, enc, false, rkerrors.ConnectionNotFound())
		return
	}
	conn, ok := inst.Registry().Get(hs.ConnID)
	if !ok {
		writeErr(w, enc, false, rkerrors.ConnectionNotFound())
		return
	}
	if conn.Token != hs.ConnToken {
		writeErr(w, enc, false, rkerrors.IncorrectToken())
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeErr(w, enc, inst.Definition().ExposeInternalError, rkerrors.New(rkerrors.GroupConnection, rkerrors.CodeParamsInvalid, "failed to read request body"))
		return
	}

	sock := conn.Socket()
	if sock == nil {
		sock = transport.NewHTTPSocket()
	}
	h.deliverWireMessage(ctx, inst, conn, enc, body, sock)
	w.WriteHeader(http.StatusNoContent)
}

// RawHTTP serves ALL /raw/http/*, rewriting the path to strip the
// /raw/http prefix before handing it to the actor's onFetch hook.
func (h *ActorHandler) RawHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hs := transport.ParseHeaders(r.Header)
	enc, err := codec.ForEncoding(hs.Encoding)
	if err != nil {
		writeErr(w, nil, false, rkerrors.New(rkerrors.GroupEncoding, rkerrors.CodeEncodingInvalid, err.Error()))
		return
	}

	resolved, err := h.resolveActor(ctx, hs)
	if err != nil {
		writeErr(w, enc, false, err)
		return
	}

	rewritten := strings.TrimPrefix(r.URL.Path, "/raw/http")
	if rewritten == "" {
		rewritten = "/"
	}

	if proxyAddr, isProxy := h.Gateway.Route(resolved.ActorID); isProxy {
		proxy, perr := manager.NewReverseProxy(proxyAddr, h.Log)
		if perr != nil {
			writeErr(w, enc, false, perr)
			return
		}
		r.URL.Path = rewritten
		proxy.ServeHTTP(w, r)
		return
	}

	inst, err := h.Gateway.LocalInstance(ctx, resolved.ActorID, nil)
	if err != nil {
		writeErr(w, enc, false, err)
		return
	}

	var conn *registry.Connection
	if hs.ConnID != "" {
		if c, ok := inst.Registry().Get(hs.ConnID); ok && c.Token == hs.ConnToken {
			conn = c
		}
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeErr(w, enc, inst.Definition().ExposeInternalError, rkerrors.New(rkerrors.GroupConnection, rkerrors.CodeParamsInvalid, "failed to read request body"))
		return
	}

	out, err := inst.HandleFetch(ctx, conn, rewritten, body)
	if err != nil {
		writeErr(w, enc, inst.Definition().ExposeInternalError, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

// RawWebSocket serves GET /raw/websocket/*, a WebSocket upgrade handed
// off to the actor's onWebSocket hook for the lifetime of the connection.
func (h *ActorHandler) RawWebSocket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hs, err := transport.ParseWebSocketProtocol(r.Header.Get("Sec-WebSocket-Protocol"))
	if err != nil {
		writeManagerErr(w, rkerrors.New(rkerrors.GroupConnection, rkerrors.CodeParamsInvalid, err.Error()))
		return
	}

	resolved, resolveErr := h.resolveActor(ctx, hs)

	rewritten := strings.TrimPrefix(r.URL.Path, "/raw/websocket")
	if rewritten == "" {
		rewritten = "/"
	}

	if resolveErr == nil {
		if proxyAddr, isProxy := h.Gateway.Route(resolved.ActorID); isProxy {
			h.proxyWebSocketUpgrade(w, r, proxyAddr, rewritten)
			return
		}
	}

	responseHeader := http.Header{}
	responseHeader.Set("Sec-WebSocket-Protocol", "rivet")
	conn, err := transport.Upgrader.Upgrade(w, r, responseHeader)
	if err != nil {
		h.Log.Debug("raw websocket upgrade failed", zap.Error(err))
		return
	}

	if resolveErr != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, resolveErr.Error()), time.Now().Add(2*time.Second))
		_ = conn.Close()
		return
	}

	inst, err := h.Gateway.LocalInstance(ctx, resolved.ActorID, nil)
	if err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, err.Error()), time.Now().Add(2*time.Second))
		_ = conn.Close()
		return
	}

	var actorConn *registry.Connection
	if hs.ConnID != "" {
		if c, ok := inst.Registry().Get(hs.ConnID); ok && c.Token == hs.ConnToken {
			actorConn = c
		}
	}

	sock, inbox := transport.NewRawWebSocketSocket(conn, h.Log)
	if err := inst.HandleWebSocket(ctx, actorConn, sock, inbox); err != nil {
		h.Log.Debug("onWebSocket hook failed", zap.Error(err))
	}
}

// proxyWebSocketUpgrade upgrades the client locally, then dials the
// remote runner and shuttles frames between the two (SPEC_FULL.md §4.9).
func (h *ActorHandler) proxyWebSocketUpgrade(w http.ResponseWriter, r *http.Request, proxyAddr, path string) {
	responseHeader := http.Header{}
	responseHeader.Set("Sec-WebSocket-Protocol", "rivet")
	client, err := transport.Upgrader.Upgrade(w, r, responseHeader)
	if err != nil {
		h.Log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer client.Close()

	target := wsTargetURL(proxyAddr, path, r.URL.RawQuery)
	if err := manager.ProxyWebSocket(client, target, http.Header{"Sec-WebSocket-Protocol": r.Header["Sec-WebSocket-Protocol"]}); err != nil {
		h.Log.Debug("websocket proxy failed", zap.String("target", target), zap.Error(err))
	}
}

func wsTargetURL(advertiseAddr, path, rawQuery string) string {
	target := advertiseAddr
	target = strings.Replace(target, "https://", "wss://", 1)
	target = strings.Replace(target, "http://", "ws://", 1)
	target = strings.TrimSuffix(target, "/") + path
	if rawQuery != "" {
		target += "?" + rawQuery
	}
	return target
}
