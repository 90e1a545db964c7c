// Package codec decodes inbound station datagrams and encodes outbound
// commands. Decoders never panic on hostile input; every failure wraps
// ErrDecode so callers can drop the datagram and keep reading.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/goccy/go-json"
)

// ErrDecode is wrapped by every decoder error.
var ErrDecode = errors.New("decode error")

func decodeErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDecode, fmt.Sprintf(format, args...))
}

// decodeObject parses data as a JSON object. syntaxOK reports whether data
// was well-formed JSON at all, so callers can choose a fallback.
func decodeObject(data []byte) (obj map[string]any, syntaxOK bool, err error) {
	if !utf8.Valid(data) {
		return nil, false, decodeErr("payload is not valid UTF-8")
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, false, decodeErr("empty payload")
	}
	if !json.Valid(data) {
		return nil, false, decodeErr("payload is not JSON")
	}
	if data[0] != '{' {
		return nil, true, decodeErr("payload is not a JSON object")
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, true, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return obj, true, nil
}

// stringField returns the first key holding a non-empty string.
func stringField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
