package codec

import (
	"encoding/base64"
	"fmt"
	"math/big"
)

// The JSON encoding extends plain JSON with a tagged-array escape so
// bigint and binary values survive a round trip through a text transport.
// A tagged value is rendered as ["$<tag>", payload]. Any ordinary array
// that happens to start with a "$"-prefixed string is itself wrapped one
// level deeper on the way out and unwrapped on the way in, so a legitimate
// value is never mistaken for an escape.

const (
	tagBigInt = "$bigint"
	tagBytes  = "$bytes"
	tagEscape = "$escape"
)

// escapeTree walks a decoded-JSON-shaped value (map[string]any, []any,
// string, float64/json.Number, bool, nil, *big.Int, []byte) and returns an
// equivalent tree where big.Int and []byte are replaced by their tagged
// array form, ready for encoding/json to marshal.
func escapeTree(v any) any {
	switch t := v.(type) {
	case *big.Int:
		return []any{tagBigInt, t.String()}
	case big.Int:
		return []any{tagBigInt, t.String()}
	case []byte:
		return []any{tagBytes, base64.StdEncoding.EncodeToString(t)}
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = escapeTree(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = escapeTree(val)
		}
		if looksLikeEscape(out) {
			return []any{tagEscape, out}
		}
		return out
	default:
		return v
	}
}

// unescapeTree is escapeTree's inverse, applied after encoding/json has
// decoded a tree into the generic any shape ([]any, map[string]any,
// string, float64, bool, nil).
func unescapeTree(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			u, err := unescapeTree(val)
			if err != nil {
				return nil, err
			}
			out[k] = u
		}
		return out, nil
	case []any:
		if len(t) == 2 {
			if tag, ok := t[0].(string); ok {
				switch tag {
				case tagBigInt:
					s, ok := t[1].(string)
					if !ok {
						return nil, fmt.Errorf("codec: malformed $bigint escape")
					}
					n, ok := new(big.Int).SetString(s, 10)
					if !ok {
						return nil, fmt.Errorf("codec: malformed $bigint payload %q", s)
					}
					return n, nil
				case tagBytes:
					s, ok := t[1].(string)
					if !ok {
						return nil, fmt.Errorf("codec: malformed $bytes escape")
					}
					b, err := base64.StdEncoding.DecodeString(s)
					if err != nil {
						return nil, fmt.Errorf("codec: malformed $bytes payload: %w", err)
					}
					return b, nil
				case tagEscape:
					inner, ok := t[1].([]any)
					if !ok {
						return nil, fmt.Errorf("codec: malformed $escape payload")
					}
					out := make([]any, len(inner))
					for i, val := range inner {
						u, err := unescapeTree(val)
						if err != nil {
							return nil, err
						}
						out[i] = u
					}
					return out, nil
				default:
					return nil, fmt.Errorf("codec: unknown escape tag %q", tag)
				}
			}
		}
		out := make([]any, len(t))
		for i, val := range t {
			u, err := unescapeTree(val)
			if err != nil {
				return nil, err
			}
			out[i] = u
		}
		return out, nil
	default:
		return v, nil
	}
}

// looksLikeEscape reports whether arr begins with a "$"-prefixed string,
// i.e. whether it must be wrapped in a $escape tag so unescapeTree never
// misreads it as a tagged value.
func looksLikeEscape(arr []any) bool {
	if len(arr) == 0 {
		return false
	}
	s, ok := arr[0].(string)
	return ok && len(s) > 0 && s[0] == '$'
}
