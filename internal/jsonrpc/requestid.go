package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// RequestID is a JSON-RPC correlation id: a string or an integer.
// A nil *RequestID marks a notification.
type RequestID struct {
	value any
}

// NewRequestID creates an id from a string or integer. Any other value yields
// an empty id.
func NewRequestID(value any) *RequestID {
	switch v := value.(type) {
	case string, int64:
		return &RequestID{value: v}
	case int:
		return &RequestID{value: int64(v)}
	case int32:
		return &RequestID{value: int64(v)}
	case uint32:
		return &RequestID{value: int64(v)}
	case uint64:
		if v > math.MaxInt64 {
			return &RequestID{value: strconv.FormatUint(v, 10)}
		}
		return &RequestID{value: int64(v)}
	default:
		return &RequestID{}
	}
}

// String returns the textual form of the id, or "" when nil.
func (id *RequestID) String() string {
	if id.IsNil() {
		return ""
	}
	switch v := id.value.(type) {
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return fmt.Sprint(v)
	}
}

// Equal reports whether two ids have the same wire representation.
func (id *RequestID) Equal(other *RequestID) bool {
	a, _ := id.MarshalJSON()
	b, _ := other.MarshalJSON()
	return bytes.Equal(a, b)
}

// Value returns the underlying string or int64.
func (id *RequestID) Value() any {
	if id == nil {
		return nil
	}
	return id.value
}

// IsNil reports whether the id is absent.
func (id *RequestID) IsNil() bool {
	return id == nil || id.value == nil
}

// MarshalJSON implements json.Marshaler.
func (id *RequestID) MarshalJSON() ([]byte, error) {
	if id.IsNil() {
		return []byte("null"), nil
	}
	return json.Marshal(id.value)
}

// UnmarshalJSON implements json.Unmarshaler. Integers decode to int64; string
// ids are kept verbatim. Fractional numbers are rejected.
func (id *RequestID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		id.value = nil
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		id.value = s
		return nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("jsonrpc id must be a string or integer, got: %s", string(data))
	}
	id.value = n
	return nil
}
