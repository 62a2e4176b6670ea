// Package provider implements the tool and resource side of the bridge: a
// Runtime holds the registered tools, static resources and resource
// templates, validates tool arguments against their reflected schemas, and
// serves JSON-RPC requests over a transport.Stream.
//
// # Lifecycle
//
// A Runtime moves through Uninitialized, Ready, ShuttingDown and Stopped.
// Registration is only possible while Uninitialized; Start freezes the
// registry and makes the runtime Ready. Serve moves it to ShuttingDown when
// the peer sends notifications/shutdown, closes its side of the stream, or
// the serve context is cancelled. In-flight calls then get DrainTimeout to
// finish; responses of calls still running after that are discarded and the
// runtime is Stopped.
//
// # Tools
//
// NewTool derives a tool's input schema from a Go struct:
//
//	type getArgs struct {
//		ID string `json:"task_id" jsonschema:"description=Task identifier"`
//	}
//
//	tool := provider.NewTool("get_task", func(ctx context.Context, a getArgs) (*mcp.CallToolResult, error) {
//		...
//	}, provider.WithToolDescription("Fetch one task"))
//
// Fields without omitempty are required; enum, default and description come
// from jsonschema struct tags. Arguments are checked against the schema before
// the handler runs, so a handler never sees a missing required field, an
// unknown field or an out-of-range enum value.
//
// # Errors
//
// Handlers report caller-visible failures with *Error (see NotFound and
// InvalidArguments). Any other error, and any panic, becomes InternalError.
package provider
