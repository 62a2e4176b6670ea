package jsonrpc

import "fmt"

// ErrorCode is a JSON-RPC 2.0 error code.
type ErrorCode int

const (
	// ErrorCodeParseError indicates invalid JSON was received by the server.
	ErrorCodeParseError ErrorCode = -32700
	// ErrorCodeInvalidRequest indicates the JSON sent is not a valid Request object.
	ErrorCodeInvalidRequest ErrorCode = -32600
	// ErrorCodeMethodNotFound indicates the method does not exist / is not available.
	ErrorCodeMethodNotFound ErrorCode = -32601
	// ErrorCodeInvalidParams indicates invalid method parameters.
	ErrorCodeInvalidParams ErrorCode = -32602
	// ErrorCodeInternalError indicates an internal JSON-RPC error.
	ErrorCodeInternalError ErrorCode = -32603
)

// Application error codes in the implementation-defined server error range.
const (
	// ErrorCodeUnknownTool indicates tools/call named a tool that is not registered.
	ErrorCodeUnknownTool ErrorCode = -32001
	// ErrorCodeUnknownResource indicates resources/read named a URI that matches
	// neither a static resource nor a template.
	ErrorCodeUnknownResource ErrorCode = -32002
	// ErrorCodeShuttingDown indicates the provider stopped accepting requests.
	ErrorCodeShuttingDown ErrorCode = -32003
	// ErrorCodeNotFound indicates the addressed entity does not exist.
	ErrorCodeNotFound ErrorCode = -32004
	// ErrorCodeNotInitialized indicates a request arrived before the provider was ready.
	ErrorCodeNotInitialized ErrorCode = -32005
)

// ErrorCodeInvalidArguments is reported when tool arguments fail schema validation.
const ErrorCodeInvalidArguments = ErrorCodeInvalidParams

func (c ErrorCode) String() string {
	switch c {
	case ErrorCodeParseError:
		return "ParseError"
	case ErrorCodeInvalidRequest:
		return "InvalidRequest"
	case ErrorCodeMethodNotFound:
		return "MethodNotFound"
	case ErrorCodeInvalidParams:
		return "InvalidParams"
	case ErrorCodeInternalError:
		return "InternalError"
	case ErrorCodeUnknownTool:
		return "UnknownTool"
	case ErrorCodeUnknownResource:
		return "UnknownResource"
	case ErrorCodeShuttingDown:
		return "ShuttingDown"
	case ErrorCodeNotFound:
		return "NotFound"
	case ErrorCodeNotInitialized:
		return "NotInitialized"
	}
	return fmt.Sprintf("ErrorCode(%d)", int(c))
}
