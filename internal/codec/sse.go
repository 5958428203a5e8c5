package codec

import (
	"encoding/base64"

	"github.com/rivet-dev/actor-core/internal/protocol"
)

// FrameSSE prepares a raw encoded message for transmission inside an SSE
// `data:` field. Binary encodings (cbor, bare) are base64-framed; JSON is
// already text-safe and passes through unchanged, matching what the
// receiving client decodes before deserialization.
func FrameSSE(encoded []byte, binary bool) string {
	if !binary {
		return string(encoded)
	}
	return base64.StdEncoding.EncodeToString(encoded)
}

// UnframeSSE reverses FrameSSE.
func UnframeSSE(data string, binary bool) ([]byte, error) {
	if !binary {
		return []byte(data), nil
	}
	return base64.StdEncoding.DecodeString(data)
}

// IsBinary reports whether enc produces binary (non-text-safe) output.
func IsBinary(enc Codec) bool {
	return enc.Encoding() != protocol.EncodingJSON
}
