package jsonrpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// MaxFrameSize bounds a single encoded message on any transport.
const MaxFrameSize = 4 << 20

var (
	// ErrMalformedMessage is returned when a frame is not a structurally valid
	// JSON-RPC 2.0 message.
	ErrMalformedMessage = errors.New("malformed jsonrpc message")
	// ErrProtocolVersionMismatch is returned when the jsonrpc member is not "2.0".
	ErrProtocolVersionMismatch = errors.New("jsonrpc protocol version mismatch")
)

// Encode serializes a request, notification or response into a single frame.
// The frame never contains a raw newline, so it is safe for line-delimited
// streams.
func Encode(msg any) ([]byte, error) {
	switch m := msg.(type) {
	case *Request:
		if m.Method == "" {
			return nil, fmt.Errorf("%w: request without method", ErrMalformedMessage)
		}
	case *Response:
		if (len(m.Result) > 0) == (m.Error != nil) {
			return nil, fmt.Errorf("%w: response must carry exactly one of result or error", ErrMalformedMessage)
		}
	case *AnyMessage:
	default:
		return nil, fmt.Errorf("%w: cannot encode %T", ErrMalformedMessage, msg)
	}

	b, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	if len(b) > MaxFrameSize {
		return nil, fmt.Errorf("%w: frame of %d bytes exceeds limit", ErrMalformedMessage, len(b))
	}
	return b, nil
}

// Decode parses one frame. Errors wrap ErrMalformedMessage or
// ErrProtocolVersionMismatch; neither is fatal to the stream the frame came from.
func Decode(frame []byte) (*AnyMessage, error) {
	frame = bytes.TrimSpace(frame)
	if len(frame) == 0 {
		return nil, fmt.Errorf("%w: empty frame", ErrMalformedMessage)
	}
	var msg AnyMessage
	if err := json.Unmarshal(frame, &msg); err != nil {
		if errors.Is(err, ErrMalformedMessage) || errors.Is(err, ErrProtocolVersionMismatch) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return &msg, nil
}

// Equal reports whether two messages carry the same method, id, params,
// result and error.
func (m *AnyMessage) Equal(o *AnyMessage) bool {
	if m == nil || o == nil {
		return m == o
	}
	if m.JSONRPCVersion != o.JSONRPCVersion || m.Method != o.Method || !m.ID.Equal(o.ID) {
		return false
	}
	if !rawEqual(m.Params, o.Params) || !rawEqual(m.Result, o.Result) {
		return false
	}
	if (m.Error == nil) != (o.Error == nil) {
		return false
	}
	if m.Error != nil {
		if m.Error.Code != o.Error.Code || m.Error.Message != o.Error.Message {
			return false
		}
		ad, _ := json.Marshal(m.Error.Data)
		bd, _ := json.Marshal(o.Error.Data)
		return rawEqual(ad, bd)
	}
	return true
}
