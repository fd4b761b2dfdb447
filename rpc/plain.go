package rpc

import (
	"encoding/hex"
	"encoding/json"
	"strings"
	"unicode/utf8"
)

// Plain converts a decoded value into plain Go data suitable for JSON
// encoding or printing: string/unicode payloads become strings (invalid
// UTF-8 replaced), blobs become hex strings, arrays become []any and dicts
// become map[string]any. Scalar values pass through unchanged.
func Plain(v ArgValue) any {
	switch v := v.(type) {
	case StringBytes:
		return lossyString([]byte(v))
	case UnicodeBytes:
		return lossyString([]byte(v))
	case []byte:
		return hex.EncodeToString(v)
	case *ArrayValue:
		out := make([]any, len(v.Elems))
		for i, e := range v.Elems {
			out[i] = Plain(e)
		}
		return out
	case Dict:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = Plain(e)
		}
		return out
	case NullableDict:
		if v == nil {
			return nil
		}
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = Plain(e)
		}
		return out
	default:
		return v
	}
}

func lossyString(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return strings.ToValidUTF8(string(b), "�")
}

// CloneValue deep-copies a decoded value. Scalars are returned as-is;
// containers and byte slices get fresh backing storage so later in-place
// patches on one copy cannot reach the other.
func CloneValue(v ArgValue) ArgValue {
	switch v := v.(type) {
	case StringBytes:
		return StringBytes(append([]byte(nil), v...))
	case UnicodeBytes:
		return UnicodeBytes(append([]byte(nil), v...))
	case []byte:
		return append([]byte(nil), v...)
	case *ArrayValue:
		elems := make([]ArgValue, len(v.Elems))
		for i, e := range v.Elems {
			elems[i] = CloneValue(e)
		}
		return &ArrayValue{Elems: elems}
	case Dict:
		out := make(Dict, len(v))
		for k, e := range v {
			out[k] = CloneValue(e)
		}
		return out
	case NullableDict:
		if v == nil {
			return NullableDict(nil)
		}
		out := make(NullableDict, len(v))
		for k, e := range v {
			out[k] = CloneValue(e)
		}
		return out
	default:
		return v
	}
}

func (s StringBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(lossyString([]byte(s)))
}

func (s UnicodeBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(lossyString([]byte(s)))
}

func (a *ArrayValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(Plain(a))
}

func (d NullableDict) MarshalJSON() ([]byte, error) {
	return json.Marshal(Plain(d))
}
