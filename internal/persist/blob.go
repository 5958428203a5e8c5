package persist

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// PersistedConn is the durable half of a connection — it survives a
// non-clean socket close so a reconnect can rebind to it (SPEC_FULL.md §3,
// Connection (runtime)).
type PersistedConn struct {
	ConnID        string         `cbor:"conn_id"`
	Token         string         `cbor:"token"`
	Params        cbor.RawMessage `cbor:"params"`
	State         cbor.RawMessage `cbor:"state"`
	Subscriptions []string       `cbor:"subscriptions"`
	LastSeenMS    int64          `cbor:"last_seen_ms"`
}

// ScheduledEvent is one entry in an actor's alarm queue.
type ScheduledEvent struct {
	EventID      string `cbor:"event_id"`
	TimestampMS  int64  `cbor:"timestamp_ms"`
	ActionName   string `cbor:"action_name"`
	Args         cbor.RawMessage `cbor:"args"`
}

// PersistedActor is the single blob written per actor (SPEC_FULL.md §3).
// State is kept as raw CBOR so the generic PersistedStore does not need to
// be parameterized by the caller's state type — ActorInstance decodes it
// into its own typed state after load.
type PersistedActor struct {
	HasInitiated    bool             `cbor:"has_initiated"`
	Input           cbor.RawMessage  `cbor:"input,omitempty"`
	State           cbor.RawMessage  `cbor:"state"`
	Connections     []PersistedConn  `cbor:"connections"`
	ScheduledEvents []ScheduledEvent `cbor:"scheduled_events"`
}

// MarshalBlob encodes a PersistedActor into the versioned envelope format
// written to the StorageDriver.
func MarshalBlob(a PersistedActor) ([]byte, error) {
	payload, err := cbor.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("persist: marshal blob: %w", err)
	}
	return wrapEnvelope(payload), nil
}

// UnmarshalBlob decodes a versioned blob back into a PersistedActor,
// failing closed on an envelope version newer than this build understands.
func UnmarshalBlob(blob []byte) (PersistedActor, error) {
	payload, _, err := unwrapEnvelope(blob)
	if err != nil {
		return PersistedActor{}, err
	}
	var a PersistedActor
	if err := cbor.Unmarshal(payload, &a); err != nil {
		return PersistedActor{}, fmt.Errorf("persist: unmarshal blob: %w", err)
	}
	return a, nil
}
