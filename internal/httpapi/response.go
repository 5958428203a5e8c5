// Package httpapi implements the Manager and Actor HTTP surfaces
// (SPEC_FULL.md §6): chi routers wired against a manager.Gateway, the
// request/response envelope, and the WebSocket/SSE connect handlers that
// hand a transport.Socket off to an actor.Instance.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/rivet-dev/actor-core/internal/codec"
	"github.com/rivet-dev/actor-core/internal/protocol"
	"github.com/rivet-dev/actor-core/internal/rkerrors"
)

// writeJSON writes a JSON-encoded response with the given status. Used for
// the plain-JSON Manager surface (SPEC_FULL.md §6 "Manager HTTP surface
// (all JSON)").
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeErr renders err as an HTTPResponseError encoded in enc — the
// request's negotiated encoding, per SPEC_FULL.md §7 ("error bodies are
// encoded in the request's negotiated encoding with the HttpResponseError
// schema") — falling back to plain JSON when enc is nil, which the Actor
// handlers pass when the request names an encoding no Codec exists for.
func writeErr(w http.ResponseWriter, enc codec.Codec, exposeInternal bool, err error) {
	rk, ok := rkerrors.As(err)
	if !ok {
		rk = rkerrors.Internal(err.Error())
	}
	group, code, message, metadata := rk.Wire(exposeInternal)
	body := protocol.HTTPResponseError{
		Group:    string(group),
		Code:     string(code),
		Message:  message,
		Metadata: metadata,
	}

	if enc == nil {
		writeJSON(w, rk.HTTPStatus(), body)
		return
	}

	encoded, encErr := enc.EncodeValue(body)
	if encErr != nil {
		writeJSON(w, rk.HTTPStatus(), body)
		return
	}
	w.Header().Set("Content-Type", contentTypeFor(enc.Encoding()))
	w.WriteHeader(rk.HTTPStatus())
	_, _ = w.Write(encoded)
}

// writeManagerErr renders err as plain JSON, for the Manager surface which
// has no per-request negotiated wire encoding. Manager-surface errors are
// never eligible for exposeInternalError — that flag is a per-actor
// Definition setting, and no single actor owns a Manager-level request.
func writeManagerErr(w http.ResponseWriter, err error) {
	rk, ok := rkerrors.As(err)
	if !ok {
		rk = rkerrors.Internal(err.Error())
	}
	group, code, message, metadata := rk.Wire(false)
	writeJSON(w, rk.HTTPStatus(), protocol.HTTPResponseError{
		Group:    string(group),
		Code:     string(code),
		Message:  message,
		Metadata: metadata,
	})
}

func contentTypeFor(enc protocol.Encoding) string {
	switch enc {
	case protocol.EncodingJSON:
		return "application/json"
	case protocol.EncodingCBOR:
		return "application/cbor"
	case protocol.EncodingBARE:
		return "application/octet-stream"
	default:
		return "application/octet-stream"
	}
}
