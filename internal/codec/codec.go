// Package codec implements the three wire encodings a connection may
// negotiate at handshake time (json, cbor, bare) behind one interface, plus
// the SSE base64 bridge and a per-message cache that serializes each
// encoding at most once.
package codec

import (
	"fmt"

	"github.com/rivet-dev/actor-core/internal/protocol"
)

// Codec serializes and deserializes the ToServer/ToClient envelopes for one
// negotiated encoding.
type Codec interface {
	Encoding() protocol.Encoding
	EncodeToClient(msg protocol.ToClient) ([]byte, error)
	DecodeToServer(data []byte) (protocol.ToServer, error)

	// EncodeValue/DecodeValue (de)serialize arbitrary user payloads
	// (action args, action output, event args, persisted state) using the
	// same encoding rules as the envelope.
	EncodeValue(v any) ([]byte, error)
	DecodeValue(data []byte, out any) error
}

// ForEncoding returns the Codec implementing enc, or an error if enc is
// not recognized.
func ForEncoding(enc protocol.Encoding) (Codec, error) {
	switch enc {
	case protocol.EncodingJSON:
		return JSONCodec{}, nil
	case protocol.EncodingCBOR:
		return CBORCodec{}, nil
	case protocol.EncodingBARE:
		return BARECodec{}, nil
	default:
		return nil, fmt.Errorf("codec: unknown encoding %q", enc)
	}
}
