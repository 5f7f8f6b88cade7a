package verify

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// EncodingError reports a payload that cannot be canonicalized. This is a
// programming error upstream, never a failed verification.
type EncodingError struct {
	Err error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("payload is not canonicalizable: %v", e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// canonicalJSON encodes v with deterministic, recursively sorted key
// ordering so that map key order never affects the digest.
func canonicalJSON(v any) ([]byte, error) {
	generic, err := normalize(v)
	if err != nil {
		return nil, &EncodingError{Err: err}
	}

	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(generic); err != nil {
		return nil, &EncodingError{Err: err}
	}
	return bytes.TrimSpace(buf.Bytes()), nil
}

// normalize round-trips v through encoding/json into generic values.
// Marshaling map[string]any emits keys in sorted order, which makes the
// final encoding canonical at every nesting level.
func normalize(v any) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			nv, err := normalize(item)
			if err != nil {
				return nil, err
			}
			out[k] = nv
		}
		return out, nil
	case []any:
		out := make([]any, 0, len(val))
		for _, item := range val {
			nv, err := normalize(item)
			if err != nil {
				return nil, err
			}
			out = append(out, nv)
		}
		return out, nil
	case string, float64, bool, int, int64, nil:
		return val, nil
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}
		var decoded any
		if err := json.Unmarshal(b, &decoded); err != nil {
			return nil, err
		}
		return normalize(decoded)
	}
}
