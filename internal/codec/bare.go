package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"math/big"

	"github.com/rivet-dev/actor-core/internal/protocol"
)

// BARECodec is a from-scratch implementation of the BARE wire format's
// primitive encoding rules (uint/int as LEB128 varints, fixed-width
// floats, length-prefixed data and strings, a uint discriminant ahead of
// tagged-union payloads) applied to the same generic any-tree every other
// codec normalizes through. No BARE library exists anywhere in the
// example corpus this was grounded on — see DESIGN.md.
type BARECodec struct{}

func (BARECodec) Encoding() protocol.Encoding { return protocol.EncodingBARE }

type bareTag byte

const (
	bareTagNil bareTag = iota
	bareTagBool
	bareTagUint
	bareTagInt
	bareTagFloat
	bareTagString
	bareTagBytes
	bareTagArray
	bareTagMap
	bareTagBigInt
)

func (c BARECodec) EncodeToClient(msg protocol.ToClient) ([]byte, error) {
	generic, err := toGenericTree(msg)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := writeValue(&buf, generic); err != nil {
		return nil, fmt.Errorf("codec: bare encode: %w", err)
	}
	return buf.Bytes(), nil
}

func (c BARECodec) DecodeToServer(data []byte) (protocol.ToServer, error) {
	r := bytes.NewReader(data)
	v, err := readValue(r)
	if err != nil {
		return protocol.ToServer{}, fmt.Errorf("codec: malformed bare message: %w", err)
	}
	var msg protocol.ToServer
	if err := fromGenericTree(v, &msg); err != nil {
		return protocol.ToServer{}, err
	}
	return msg, nil
}

func (c BARECodec) EncodeValue(v any) ([]byte, error) {
	generic, err := toGenericTree(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := writeValue(&buf, generic); err != nil {
		return nil, fmt.Errorf("codec: bare encode value: %w", err)
	}
	return buf.Bytes(), nil
}

func (c BARECodec) DecodeValue(data []byte, out any) error {
	r := bytes.NewReader(data)
	v, err := readValue(r)
	if err != nil {
		return fmt.Errorf("codec: malformed bare value: %w", err)
	}
	return fromGenericTree(v, out)
}

// toGenericTree/fromGenericTree normalize an arbitrary typed Go value
// to/from the generic any-tree shape by reflection (see reflect.go),
// preserving *big.Int and []byte exactly the way JSONCodec does.
func toGenericTree(v any) (any, error) {
	return toGenericValue(v)
}

func fromGenericTree(v any, out any) error {
	return fromGenericValue(v, out)
}

func writeUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func writeValue(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case nil:
		buf.WriteByte(byte(bareTagNil))
	case bool:
		buf.WriteByte(byte(bareTagBool))
		if t {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	case float64:
		// encoding/json decodes all JSON numbers as float64; distinguish
		// integral values so round-numbers still come back as integers.
		if t == math.Trunc(t) && !math.IsInf(t, 0) && t >= math.MinInt64 && t <= math.MaxInt64 {
			buf.WriteByte(byte(bareTagInt))
			writeUvarint(buf, zigzag(int64(t)))
			return nil
		}
		buf.WriteByte(byte(bareTagFloat))
		var tmp [8]byte
		binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(t))
		buf.Write(tmp[:])
	case *big.Int:
		buf.WriteByte(byte(bareTagBigInt))
		s := t.String()
		writeUvarint(buf, uint64(len(s)))
		buf.WriteString(s)
	case string:
		buf.WriteByte(byte(bareTagString))
		writeUvarint(buf, uint64(len(t)))
		buf.WriteString(t)
	case []byte:
		buf.WriteByte(byte(bareTagBytes))
		writeUvarint(buf, uint64(len(t)))
		buf.Write(t)
	case []any:
		buf.WriteByte(byte(bareTagArray))
		writeUvarint(buf, uint64(len(t)))
		for _, elem := range t {
			if err := writeValue(buf, elem); err != nil {
				return err
			}
		}
	case map[string]any:
		buf.WriteByte(byte(bareTagMap))
		writeUvarint(buf, uint64(len(t)))
		for k, val := range t {
			writeUvarint(buf, uint64(len(k)))
			buf.WriteString(k)
			if err := writeValue(buf, val); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("codec: bare: unsupported value type %T", v)
	}
	return nil
}

func readValue(r *bytes.Reader) (any, error) {
	tagByte, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	switch bareTag(tagByte) {
	case bareTagNil:
		return nil, nil
	case bareTagBool:
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		return b != 0, nil
	case bareTagUint:
		u, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, err
		}
		return float64(u), nil
	case bareTagInt:
		u, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, err
		}
		return float64(unzigzag(u)), nil
	case bareTagFloat:
		var tmp [8]byte
		if _, err := r.Read(tmp[:]); err != nil {
			return nil, err
		}
		return math.Float64frombits(binary.LittleEndian.Uint64(tmp[:])), nil
	case bareTagBigInt:
		n, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, err
		}
		s := make([]byte, n)
		if _, err := r.Read(s); err != nil {
			return nil, err
		}
		bi, ok := new(big.Int).SetString(string(s), 10)
		if !ok {
			return nil, fmt.Errorf("codec: bare: malformed bigint")
		}
		return bi, nil
	case bareTagString:
		n, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, err
		}
		s := make([]byte, n)
		if _, err := r.Read(s); err != nil {
			return nil, err
		}
		return string(s), nil
	case bareTagBytes:
		n, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, err
		}
		b := make([]byte, n)
		if _, err := r.Read(b); err != nil {
			return nil, err
		}
		return b, nil
	case bareTagArray:
		n, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, err
		}
		out := make([]any, n)
		for i := range out {
			v, err := readValue(r)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case bareTagMap:
		n, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, err
		}
		out := make(map[string]any, n)
		for i := uint64(0); i < n; i++ {
			klen, err := binary.ReadUvarint(r)
			if err != nil {
				return nil, err
			}
			kb := make([]byte, klen)
			if _, err := r.Read(kb); err != nil {
				return nil, err
			}
			v, err := readValue(r)
			if err != nil {
				return nil, err
			}
			out[string(kb)] = v
		}
		return out, nil
	default:
		return nil, fmt.Errorf("codec: bare: unknown tag %d", tagByte)
	}
}

func zigzag(v int64) uint64 {
	return uint64((v << 1) ^ (v >> 63))
}

func unzigzag(u uint64) int64 {
	return int64(u>>1) ^ -int64(u&1)
}
