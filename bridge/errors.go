package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/syarbeats/mcp-playground/client"
	"github.com/syarbeats/mcp-playground/internal/jsonrpc"
)

// Kind classifies a bridge failure for the inbound surface.
type Kind string

const (
	KindNotConnected Kind = "not_connected"
	KindNotFound     Kind = "not_found"
	KindInvalidInput Kind = "invalid_input"
	KindInternal     Kind = "internal"
	KindTimeout      Kind = "timeout"
)

// Error is the only error type returned by Service operations.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func invalidInput(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidInput, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindInternal
}

// classify maps session and provider failures onto bridge kinds.
func classify(err error) *Error {
	if err == nil {
		return nil
	}
	var be *Error
	if errors.As(err, &be) {
		return be
	}

	switch {
	case errors.Is(err, client.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindTimeout, Message: "provider did not answer in time", Err: err}
	case errors.Is(err, client.ErrConnectionLost),
		errors.Is(err, client.ErrUnreachable),
		errors.Is(err, client.ErrClosed):
		return &Error{Kind: KindNotConnected, Message: "provider is not connected", Err: err}
	}

	var re *client.RPCError
	if errors.As(err, &re) {
		switch re.Code {
		case jsonrpc.ErrorCodeNotFound:
			return &Error{Kind: KindNotFound, Message: re.Message, Err: err}
		case jsonrpc.ErrorCodeInvalidArguments:
			return &Error{Kind: KindInvalidInput, Message: re.Message, Err: err}
		}
		return &Error{Kind: KindInternal, Message: re.Message, Err: err}
	}
	return &Error{Kind: KindInternal, Message: "internal error", Err: err}
}
