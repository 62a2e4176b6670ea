package client

import (
	"errors"
	"fmt"

	"github.com/syarbeats/mcp-playground/internal/jsonrpc"
)

var (
	// ErrTimeout is returned when a call's deadline passes before its
	// response arrives. The request is not retried.
	ErrTimeout = errors.New("client: call timed out")
	// ErrConnectionLost is delivered to every call pending when the channel
	// to the provider is lost.
	ErrConnectionLost = errors.New("client: connection lost")
	// ErrUnreachable is returned when every reconnect attempt failed.
	ErrUnreachable = errors.New("client: provider unreachable")
	// ErrClosed is returned by calls made after Close.
	ErrClosed = errors.New("client: session closed")
)

// RPCError is an error reported by the provider in a response's error slot.
type RPCError struct {
	Code    jsonrpc.ErrorCode
	Message string
	Data    any
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("provider error %d (%s): %s", int(e.Code), e.Code, e.Message)
}

func rpcError(e *jsonrpc.Error) *RPCError {
	return &RPCError{Code: e.Code, Message: e.Message, Data: e.Data}
}

func hasCode(err error, codes ...jsonrpc.ErrorCode) bool {
	var re *RPCError
	if !errors.As(err, &re) {
		return false
	}
	for _, c := range codes {
		if re.Code == c {
			return true
		}
	}
	return false
}

// IsUnknownTool reports whether the provider did not recognise the tool.
func IsUnknownTool(err error) bool { return hasCode(err, jsonrpc.ErrorCodeUnknownTool) }

// IsUnknownResource reports whether no resource or template matched the URI.
func IsUnknownResource(err error) bool { return hasCode(err, jsonrpc.ErrorCodeUnknownResource) }

// IsInvalidArguments reports whether the provider rejected the arguments.
func IsInvalidArguments(err error) bool {
	return hasCode(err, jsonrpc.ErrorCodeInvalidArguments, jsonrpc.ErrorCodeInvalidParams)
}

// IsNotFound reports whether the addressed task or entity does not exist.
func IsNotFound(err error) bool { return hasCode(err, jsonrpc.ErrorCodeNotFound) }
