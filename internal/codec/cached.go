package codec

import (
	"sync"

	"github.com/rivet-dev/actor-core/internal/protocol"
)

// CachedSerializer wraps one ToClient message and memoizes its
// per-encoding serialized form, so broadcasting it to N subscribers across
// a mix of encodings serializes the message at most once per encoding.
type CachedSerializer struct {
	msg protocol.ToClient

	mu    sync.Mutex
	cache map[protocol.Encoding][]byte
}

func NewCachedSerializer(msg protocol.ToClient) *CachedSerializer {
	return &CachedSerializer{msg: msg, cache: make(map[protocol.Encoding][]byte, 3)}
}

// Encode returns the serialized bytes for enc, computing and caching them
// on first use.
func (c *CachedSerializer) Encode(enc protocol.Encoding) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cached, ok := c.cache[enc]; ok {
		return cached, nil
	}
	codec, err := ForEncoding(enc)
	if err != nil {
		return nil, err
	}
	out, err := codec.EncodeToClient(c.msg)
	if err != nil {
		return nil, err
	}
	c.cache[enc] = out
	return out, nil
}
