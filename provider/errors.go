package provider

import (
	"errors"
	"fmt"

	"github.com/syarbeats/mcp-playground/internal/jsonrpc"
)

var (
	// ErrRegistrationClosed is returned when registering after Start.
	ErrRegistrationClosed = errors.New("provider: registration closed")
	// ErrDuplicate is returned when a tool name or resource URI is registered twice.
	ErrDuplicate = errors.New("provider: duplicate registration")
	// ErrNotReady is returned by Serve when the runtime was never started or
	// has already stopped.
	ErrNotReady = errors.New("provider: runtime not ready")
)

// Error is a failure that is reported to the caller in the response's error
// slot.
type Error struct {
	Code    jsonrpc.ErrorCode
	Message string
	Data    any
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError builds an *Error.
func NewError(code jsonrpc.ErrorCode, message string, data any) *Error {
	return &Error{Code: code, Message: message, Data: data}
}

// InvalidArguments reports input that is syntactically a valid call but fails
// validation.
func InvalidArguments(format string, args ...any) *Error {
	return &Error{Code: jsonrpc.ErrorCodeInvalidArguments, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports that the addressed entity does not exist.
func NotFound(format string, args ...any) *Error {
	return &Error{Code: jsonrpc.ErrorCodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// toError converts a handler error into the value placed in the response.
func toError(err error) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	return &Error{Code: jsonrpc.ErrorCodeInternalError, Message: "internal error"}
}
