// Package jsonx backs internal/redis's payload builder: it decides
// whether a Redis stream field already looks like JSON before
// wrapping it, and marshals the resulting value map into the bytes
// that get handed to the ring buffer.
package jsonx

import (
	stdjson "encoding/json"
)

// Marshal encodes v into JSON using the standard library.
func Marshal(v any) ([]byte, error) {
	return stdjson.Marshal(v)
}

// Unmarshal decodes JSON data into v using the standard library.
func Unmarshal(data []byte, v any) error {
	return stdjson.Unmarshal(data, v)
}

// IsLikelyJSONBytes checks if data appears to be a JSON value (cheap heuristic).
func IsLikelyJSONBytes(b []byte) bool {
	i := 0
	for i < len(b) {
		switch b[i] {
		case ' ', '\n', '\r', '\t':
			i++
		default:
			goto CHECK
		}
	}
CHECK:
	if i >= len(b) {
		return false
	}
	switch b[i] {
	case '{', '[', '"', 't', 'f', 'n':
		return true
	default:
		return b[i] >= '0' && b[i] <= '9'
	}
}

// IsLikelyJSONString checks if string appears to be a JSON value (cheap heuristic).
func IsLikelyJSONString(s string) bool {
	i := 0
	n := len(s)
	for i < n {
		switch s[i] {
		case ' ', '\n', '\r', '\t':
			i++
		default:
			goto CHECK
		}
	}
CHECK:
	if i >= n {
		return false
	}
	switch s[i] {
	case '{', '[', '"', 't', 'f', 'n':
		return true
	default:
		return s[i] >= '0' && s[i] <= '9'
	}
}
