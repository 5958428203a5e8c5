package codec

import (
	"encoding/json"
	"fmt"

	"github.com/rivet-dev/actor-core/internal/protocol"
)

// JSONCodec implements Codec over encoding/json with the $-tag escape
// scheme for bigint and binary values (see escape.go).
type JSONCodec struct{}

func (JSONCodec) Encoding() protocol.Encoding { return protocol.EncodingJSON }

func (c JSONCodec) EncodeToClient(msg protocol.ToClient) ([]byte, error) {
	return json.Marshal(msg)
}

func (c JSONCodec) DecodeToServer(data []byte) (protocol.ToServer, error) {
	var msg protocol.ToServer
	if err := json.Unmarshal(data, &msg); err != nil {
		return protocol.ToServer{}, fmt.Errorf("codec: malformed json message: %w", err)
	}
	return msg, nil
}

// EncodeValue normalizes v by reflection into the generic any-tree shape
// (preserving *big.Int and []byte without a precision-losing float64
// intermediate), applies the $-tag escape scheme, then marshals the
// escaped JSON-shaped tree (whose only non-JSON-native members left after
// escaping are the tagged arrays themselves, which json.Marshal renders
// natively).
func (c JSONCodec) EncodeValue(v any) ([]byte, error) {
	generic, err := toGenericValue(v)
	if err != nil {
		return nil, fmt.Errorf("codec: encode value: %w", err)
	}
	escaped := escapeTree(generic)
	out, err := json.Marshal(escaped)
	if err != nil {
		return nil, fmt.Errorf("codec: encode value: %w", err)
	}
	return out, nil
}

func (c JSONCodec) DecodeValue(data []byte, out any) error {
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return fmt.Errorf("codec: decode value: %w", err)
	}
	unescaped, err := unescapeTree(generic)
	if err != nil {
		return err
	}
	return fromGenericValue(unescaped, out)
}
