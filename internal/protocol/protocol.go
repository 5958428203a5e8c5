// Package protocol defines the tagged-union envelope exchanged between a
// client and an actor connection, independent of transport or encoding.
package protocol

// Encoding names the wire encoding negotiated for a connection.
type Encoding string

const (
	EncodingJSON Encoding = "json"
	EncodingCBOR Encoding = "cbor"
	EncodingBARE Encoding = "bare"
)

// ToServerTag discriminates the ToServer union.
type ToServerTag string

const (
	ToServerAction       ToServerTag = "action_request"
	ToServerSubscription ToServerTag = "subscription_request"
)

// ToClientTag discriminates the ToClient union.
type ToClientTag string

const (
	ToClientInit           ToClientTag = "init"
	ToClientActionResponse ToClientTag = "action_response"
	ToClientEvent          ToClientTag = "event"
	ToClientError          ToClientTag = "error"
)

// ToServer is a message sent from a client to an actor connection.
type ToServer struct {
	Tag ToServerTag `json:"tag" cbor:"tag"`

	// ActionRequest fields.
	ActionID   uint64 `json:"id,omitempty" cbor:"id,omitempty"`
	ActionName string `json:"name,omitempty" cbor:"name,omitempty"`
	Args       []byte `json:"args,omitempty" cbor:"args,omitempty"`

	// SubscriptionRequest fields.
	EventName string `json:"event_name,omitempty" cbor:"event_name,omitempty"`
	Subscribe bool   `json:"subscribe,omitempty" cbor:"subscribe,omitempty"`
}

// ToClient is a message sent from an actor connection to a client.
type ToClient struct {
	Tag ToClientTag `json:"tag" cbor:"tag"`

	// Init fields.
	ActorID         string `json:"actor_id,omitempty" cbor:"actor_id,omitempty"`
	ConnectionID    string `json:"connection_id,omitempty" cbor:"connection_id,omitempty"`
	ConnectionToken string `json:"connection_token,omitempty" cbor:"connection_token,omitempty"`

	// ActionResponse fields.
	ActionID uint64 `json:"id,omitempty" cbor:"id,omitempty"`
	Output   []byte `json:"output,omitempty" cbor:"output,omitempty"`

	// Event fields.
	EventName string `json:"event_name,omitempty" cbor:"event_name,omitempty"`
	EventArgs []byte `json:"event_args,omitempty" cbor:"event_args,omitempty"`

	// Error fields.
	ErrorGroup    string         `json:"error_group,omitempty" cbor:"error_group,omitempty"`
	ErrorCode     string         `json:"error_code,omitempty" cbor:"error_code,omitempty"`
	ErrorMessage  string         `json:"error_message,omitempty" cbor:"error_message,omitempty"`
	ErrorMetadata map[string]any `json:"error_metadata,omitempty" cbor:"error_metadata,omitempty"`
	ActionErrorID *uint64        `json:"action_id,omitempty" cbor:"action_id,omitempty"`
}

// HTTPActionRequest frames a one-shot HTTP action call.
type HTTPActionRequest struct {
	Args []byte `json:"args" cbor:"args"`
}

// HTTPActionResponse frames a one-shot HTTP action reply.
type HTTPActionResponse struct {
	Output []byte `json:"output" cbor:"output"`
}

// HTTPResponseError is the error body shape returned by the HTTP surfaces.
type HTTPResponseError struct {
	Group    string         `json:"group"`
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func NewInit(actorID, connID, connToken string) ToClient {
	return ToClient{Tag: ToClientInit, ActorID: actorID, ConnectionID: connID, ConnectionToken: connToken}
}

func NewActionResponse(id uint64, output []byte) ToClient {
	return ToClient{Tag: ToClientActionResponse, ActionID: id, Output: output}
}

func NewEvent(name string, args []byte) ToClient {
	return ToClient{Tag: ToClientEvent, EventName: name, EventArgs: args}
}

func NewError(group, code, message string, metadata map[string]any, actionID *uint64) ToClient {
	return ToClient{
		Tag:           ToClientError,
		ErrorGroup:    group,
		ErrorCode:     code,
		ErrorMessage:  message,
		ErrorMetadata: metadata,
		ActionErrorID: actionID,
	}
}
