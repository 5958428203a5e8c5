package codec

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/rivet-dev/actor-core/internal/protocol"
)

// CBORCodec implements Codec over fxamacker/cbor/v2. CBOR carries byte
// strings and bignums (tags 2/3) natively, so no $-escaping is needed here.
type CBORCodec struct{}

var cborEncMode = func() cbor.EncMode {
	opts := cbor.CanonicalEncOptions()
	mode, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("codec: invalid cbor encoding options: %v", err))
	}
	return mode
}()

func (CBORCodec) Encoding() protocol.Encoding { return protocol.EncodingCBOR }

func (c CBORCodec) EncodeToClient(msg protocol.ToClient) ([]byte, error) {
	return cborEncMode.Marshal(msg)
}

func (c CBORCodec) DecodeToServer(data []byte) (protocol.ToServer, error) {
	var msg protocol.ToServer
	if err := cbor.Unmarshal(data, &msg); err != nil {
		return protocol.ToServer{}, fmt.Errorf("codec: malformed cbor message: %w", err)
	}
	return msg, nil
}

func (c CBORCodec) EncodeValue(v any) ([]byte, error) {
	out, err := cborEncMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codec: encode value: %w", err)
	}
	return out, nil
}

func (c CBORCodec) DecodeValue(data []byte, out any) error {
	if err := cbor.Unmarshal(data, out); err != nil {
		return fmt.Errorf("codec: decode value: %w", err)
	}
	return nil
}
