// Package rkerrors implements the error taxonomy shared by every surface the
// actor runtime exposes: one group/code/message triple, optional metadata,
// and a public flag that decides whether the message crosses the wire
// verbatim or gets redacted.
package rkerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a specific error condition. Codes are stable wire values.
type Code string

const (
	CodeActorNotFound          Code = "actor/not_found"
	CodeActorAlreadyExists     Code = "actor/already_exists"
	CodeActorStateNotEnabled   Code = "actor/state_not_enabled"
	CodeActorInternalError     Code = "actor/internal_error"
	CodeConnectionNotFound     Code = "connection/not_found"
	CodeConnectionBadToken     Code = "connection/incorrect_token"
	CodeConnectionParamsTooLong Code = "connection/params_too_long"
	CodeParamsInvalid          Code = "params/invalid"
	CodeActionNotFound         Code = "action/not_found"
	CodeActionTimedOut         Code = "action/timed_out"
	CodeActionInvalidRequest   Code = "action/invalid_request"
	CodeEncodingInvalid        Code = "encoding/invalid"
	CodeMessageTooLong         Code = "message/too_long"
	CodeMessageMalformed       Code = "message/malformed"
	CodeStateInvalidType       Code = "state/invalid_type"
	CodeHandlerFetchNotDefined Code = "handler/fetch_not_defined"
	CodeHandlerWSNotDefined    Code = "handler/websocket_not_defined"
	CodeHandlerInvalidResponse Code = "handler/invalid_fetch_response"
	CodeAuthUnauthorized       Code = "auth/unauthorized"
	CodeAuthForbidden          Code = "auth/forbidden"
)

// Group buckets codes by the subsystem that raised them.
type Group string

const (
	GroupActor      Group = "actor"
	GroupConnection Group = "connection"
	GroupAction     Group = "action"
	GroupEncoding   Group = "encoding"
	GroupState      Group = "state"
	GroupHandler    Group = "handler"
	GroupAuth       Group = "auth"
)

// RKError is the taxonomy's single error type. Public errors marshal their
// Message and Metadata to the wire unchanged; non-public errors are
// redacted to a generic internal-error body unless the caller has opted
// into exposing internal errors.
type RKError struct {
	Group    Group
	Code     Code
	Message  string
	Metadata map[string]any
	Public   bool
}

func (e *RKError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return string(e.Code)
}

// HTTPStatus maps a code to the status this runtime uses on its HTTP
// surfaces. Codes not listed fall back to 500 for non-public errors and
// 400 for public ones.
func (e *RKError) HTTPStatus() int {
	switch e.Code {
	case CodeActorNotFound, CodeConnectionNotFound, CodeActionNotFound:
		return http.StatusNotFound
	case CodeActorAlreadyExists:
		return http.StatusConflict
	case CodeAuthUnauthorized:
		return http.StatusUnauthorized
	case CodeAuthForbidden:
		return http.StatusForbidden
	case CodeHandlerFetchNotDefined, CodeHandlerWSNotDefined:
		return http.StatusNotImplemented
	case CodeActionTimedOut:
		return http.StatusGatewayTimeout
	}
	if e.Public {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// New builds a public error: its Message is safe to return to callers.
func New(group Group, code Code, message string) *RKError {
	return &RKError{Group: group, Code: code, Message: message, Public: true}
}

// Internal builds a non-public error. Its Message is redacted on the wire
// unless the caller explicitly opts into exposing internal errors.
func Internal(message string) *RKError {
	return &RKError{Group: GroupActor, Code: CodeActorInternalError, Message: message, Public: false}
}

// WithMetadata attaches structured metadata and returns the same error.
func (e *RKError) WithMetadata(md map[string]any) *RKError {
	e.Metadata = md
	return e
}

// Wire renders the error for the wire, redacting non-public messages unless
// exposeInternal is set.
func (e *RKError) Wire(exposeInternal bool) (group Group, code Code, message string, metadata map[string]any) {
	if e.Public || exposeInternal {
		return e.Group, e.Code, e.Message, e.Metadata
	}
	return GroupActor, CodeActorInternalError, "internal error", nil
}

// As reports whether err is (or wraps) an *RKError, mirroring errors.As.
func As(err error) (*RKError, bool) {
	var rk *RKError
	if errors.As(err, &rk) {
		return rk, true
	}
	return nil, false
}

func ActorNotFound(name string) *RKError {
	return New(GroupActor, CodeActorNotFound, fmt.Sprintf("actor %q not found", name))
}

func ActorAlreadyExists(name string) *RKError {
	return New(GroupActor, CodeActorAlreadyExists, fmt.Sprintf("actor %q already exists", name))
}

func ConnectionNotFound() *RKError {
	return New(GroupConnection, CodeConnectionNotFound, "connection not found")
}

func IncorrectToken() *RKError {
	return New(GroupConnection, CodeConnectionBadToken, "incorrect connection token")
}

func ActionNotFound(name string) *RKError {
	return New(GroupAction, CodeActionNotFound, fmt.Sprintf("action %q not found", name))
}

func ActionTimedOut(name string) *RKError {
	return New(GroupAction, CodeActionTimedOut, fmt.Sprintf("action %q timed out", name))
}

func MessageMalformed(reason string) *RKError {
	return New(GroupEncoding, CodeMessageMalformed, reason)
}

func InvalidStateType(path string) *RKError {
	return New(GroupState, CodeStateInvalidType, fmt.Sprintf("state at %q is not CBOR-serializable", path)).
		WithMetadata(map[string]any{"path": path})
}

func FetchNotDefined() *RKError {
	return New(GroupHandler, CodeHandlerFetchNotDefined, "onFetch is not defined for this actor")
}

func WebSocketNotDefined() *RKError {
	return New(GroupHandler, CodeHandlerWSNotDefined, "onWebSocket is not defined for this actor")
}

func Unauthorized() *RKError {
	return New(GroupAuth, CodeAuthUnauthorized, "unauthorized")
}
