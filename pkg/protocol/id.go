package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ID is a request correlation identifier: a JSON string or integer. It keeps
// the canonical JSON text of the value, so string "7" and integer 7 are
// distinct, and it can be used as a map key.
type ID struct {
	raw string
}

// StringID returns a string-valued ID.
func StringID(s string) ID {
	b, _ := marshalNoEscape(s)
	return ID{raw: string(b)}
}

// IntID returns an integer-valued ID.
func IntID(n int64) ID {
	return ID{raw: strconv.FormatInt(n, 10)}
}

// IsZero reports whether the ID is absent.
func (id ID) IsZero() bool { return id.raw == "" }

// IsString reports whether the ID was a JSON string.
func (id ID) IsString() bool { return len(id.raw) > 0 && id.raw[0] == '"' }

// String returns the ID for logs and map keys in other layers: the string
// value itself, or the decimal integer.
func (id ID) String() string {
	if id.IsString() {
		var s string
		if err := json.Unmarshal([]byte(id.raw), &s); err == nil {
			return s
		}
	}
	return id.raw
}

// MarshalJSON implements json.Marshaler
func (id ID) MarshalJSON() ([]byte, error) {
	if id.raw == "" {
		return []byte("null"), nil
	}
	return []byte(id.raw), nil
}

// UnmarshalJSON accepts a JSON string or an integer number.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty id")
	}

	switch c := data[0]; {
	case c == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("invalid string id: %w", err)
		}
		*id = StringID(s)
		return nil
	case c == '-' || (c >= '0' && c <= '9'):
		n, err := strconv.ParseInt(string(data), 10, 64)
		if err != nil {
			return fmt.Errorf("id must be an integer: %s", data)
		}
		*id = IntID(n)
		return nil
	default:
		return fmt.Errorf("id must be a string or integer, got %s", data)
	}
}
