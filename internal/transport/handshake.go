package transport

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/rivet-dev/actor-core/internal/protocol"
)

// Handshake carries the metadata negotiated at connection setup —
// encoding, connection params, and optional reconnect credentials — kept
// out of the URL path/query on every transport so a token is never
// logged by an intermediary (SPEC_FULL.md §4.4).
type Handshake struct {
	Target     string
	ActorID    string
	Encoding   protocol.Encoding
	ConnParams []byte
	ConnID     string
	ConnToken  string
	ActorQuery string
}

// wsProtocolPrefixes are the tagged comma-separated values carried in
// Sec-WebSocket-Protocol, since tokens must never appear in the URL.
const (
	wsProtoRivet      = "rivet"
	wsProtoTarget     = "rivet_target."
	wsProtoActor      = "rivet_actor."
	wsProtoEncoding   = "rivet_encoding."
	wsProtoConnParams = "rivet_conn_params."
	wsProtoConn       = "rivet_conn."
	wsProtoConnToken  = "rivet_conn_token."
)

// ParseWebSocketProtocol decodes the Sec-WebSocket-Protocol header's
// comma-separated tagged values into a Handshake. The caller is
// responsible for echoing back the "rivet" subprotocol the client can
// match on, per the gorilla/websocket handshake contract.
func ParseWebSocketProtocol(header string) (Handshake, error) {
	var h Handshake
	h.Encoding = protocol.EncodingJSON

	for _, raw := range strings.Split(header, ",") {
		tok := strings.TrimSpace(raw)
		switch {
		case tok == wsProtoRivet:
			// Marker token, nothing to extract.
		case strings.HasPrefix(tok, wsProtoTarget):
			h.Target = strings.TrimPrefix(tok, wsProtoTarget)
		case strings.HasPrefix(tok, wsProtoActor):
			h.ActorID = strings.TrimPrefix(tok, wsProtoActor)
		case strings.HasPrefix(tok, wsProtoEncoding):
			h.Encoding = protocol.Encoding(strings.TrimPrefix(tok, wsProtoEncoding))
		case strings.HasPrefix(tok, wsProtoConnParams):
			decoded, err := url.QueryUnescape(strings.TrimPrefix(tok, wsProtoConnParams))
			if err != nil {
				return Handshake{}, fmt.Errorf("transport: malformed conn_params protocol token: %w", err)
			}
			h.ConnParams = []byte(decoded)
		case strings.HasPrefix(tok, wsProtoConn):
			h.ConnID = strings.TrimPrefix(tok, wsProtoConn)
		case strings.HasPrefix(tok, wsProtoConnToken):
			h.ConnToken = strings.TrimPrefix(tok, wsProtoConnToken)
		}
	}
	return h, nil
}

// EncodeWebSocketProtocol is the client-side inverse of
// ParseWebSocketProtocol. The WebSocket proxy leg does not use it: it
// forwards the incoming Sec-WebSocket-Protocol header verbatim.
func EncodeWebSocketProtocol(h Handshake) string {
	parts := []string{wsProtoRivet}
	if h.Target != "" {
		parts = append(parts, wsProtoTarget+h.Target)
	}
	if h.ActorID != "" {
		parts = append(parts, wsProtoActor+h.ActorID)
	}
	if h.Encoding != "" {
		parts = append(parts, wsProtoEncoding+string(h.Encoding))
	}
	if len(h.ConnParams) > 0 {
		parts = append(parts, wsProtoConnParams+url.QueryEscape(string(h.ConnParams)))
	}
	if h.ConnID != "" {
		parts = append(parts, wsProtoConn+h.ConnID)
	}
	if h.ConnToken != "" {
		parts = append(parts, wsProtoConnToken+h.ConnToken)
	}
	return strings.Join(parts, ",")
}

// Header names used by the HTTP and SSE transports, which carry the same
// handshake metadata via headers instead of a subprotocol list.
const (
	HeaderTarget     = "x-rivet-target"
	HeaderActor      = "x-rivet-actor"
	HeaderActorQuery = "x-rivet-actor-query"
	HeaderEncoding   = "x-rivet-encoding"
	HeaderConn       = "x-rivet-conn"
	HeaderConnParams = "x-rivet-conn-params"
	HeaderConnToken  = "x-rivet-conn-token"
	HeaderToken      = "x-rivet-token"
)

// ParseHeaders decodes the HTTP/SSE header-carried handshake metadata.
func ParseHeaders(h http.Header) Handshake {
	enc := protocol.Encoding(h.Get(HeaderEncoding))
	if enc == "" {
		enc = protocol.EncodingJSON
	}
	return Handshake{
		Target:     h.Get(HeaderTarget),
		ActorID:    h.Get(HeaderActor),
		Encoding:   enc,
		ConnParams: []byte(h.Get(HeaderConnParams)),
		ConnID:     h.Get(HeaderConn),
		ConnToken:  h.Get(HeaderConnToken),
		ActorQuery: h.Get(HeaderActorQuery),
	}
}
