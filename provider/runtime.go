package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/syarbeats/mcp-playground/internal/jsonrpc"
	"github.com/syarbeats/mcp-playground/internal/logctx"
	"github.com/syarbeats/mcp-playground/mcp"
)

// DefaultDrainTimeout bounds how long a shutting-down runtime waits for
// in-flight calls.
const DefaultDrainTimeout = 5 * time.Second

// State is the lifecycle state of a Runtime.
type State int32

const (
	StateUninitialized State = iota
	StateReady
	StateShuttingDown
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithLogger sets the runtime logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runtime) {
		if l != nil {
			r.log = l
		}
	}
}

// WithDrainTimeout overrides DefaultDrainTimeout.
func WithDrainTimeout(d time.Duration) Option {
	return func(r *Runtime) {
		if d > 0 {
			r.drainTimeout = d
		}
	}
}

// WithInstructions sets the instructions returned from initialize.
func WithInstructions(s string) Option {
	return func(r *Runtime) { r.instructions = s }
}

// Runtime hosts tools and resources and answers protocol requests.
type Runtime struct {
	info         mcp.ImplementationInfo
	instructions string
	log          *slog.Logger
	drainTimeout time.Duration

	state atomic.Int32

	// The registry is written only while Uninitialized and read-only after
	// Start, so reads take no lock.
	regMu     sync.Mutex
	tools     []Tool
	toolIndex map[string]int
	resources []Resource
	resIndex  map[string]int
	templates []Template
}

// New returns an Uninitialized runtime.
func New(info mcp.ImplementationInfo, opts ...Option) *Runtime {
	r := &Runtime{
		info:         info,
		log:          slog.Default(),
		drainTimeout: DefaultDrainTimeout,
		toolIndex:    make(map[string]int),
		resIndex:     make(map[string]int),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// State returns the current lifecycle state.
func (r *Runtime) State() State { return State(r.state.Load()) }

func (r *Runtime) transition(from, to State) bool {
	if !r.state.CompareAndSwap(int32(from), int32(to)) {
		return false
	}
	r.log.Debug("provider.state", slog.String("from", from.String()), slog.String("to", to.String()))
	return true
}

// RegisterTool adds a tool. Names are unique.
func (r *Runtime) RegisterTool(t Tool) error {
	r.regMu.Lock()
	defer r.regMu.Unlock()
	if r.State() != StateUninitialized {
		return ErrRegistrationClosed
	}
	if t.Descriptor.Name == "" || t.Handler == nil {
		return fmt.Errorf("provider: tool needs a name and a handler")
	}
	if _, ok := r.toolIndex[t.Descriptor.Name]; ok {
		return fmt.Errorf("%w: tool %q", ErrDuplicate, t.Descriptor.Name)
	}
	r.toolIndex[t.Descriptor.Name] = len(r.tools)
	r.tools = append(r.tools, t)
	return nil
}

// RegisterResource adds a static resource. URIs are unique.
func (r *Runtime) RegisterResource(res Resource) error {
	r.regMu.Lock()
	defer r.regMu.Unlock()
	if r.State() != StateUninitialized {
		return ErrRegistrationClosed
	}
	if res.Descriptor.URI == "" || res.Read == nil {
		return fmt.Errorf("provider: resource needs a uri and a handler")
	}
	if _, ok := r.resIndex[res.Descriptor.URI]; ok {
		return fmt.Errorf("%w: resource %q", ErrDuplicate, res.Descriptor.URI)
	}
	r.resIndex[res.Descriptor.URI] = len(r.resources)
	r.resources = append(r.resources, res)
	return nil
}

// RegisterTemplate adds a resource template built with NewTemplate.
func (r *Runtime) RegisterTemplate(t Template) error {
	r.regMu.Lock()
	defer r.regMu.Unlock()
	if r.State() != StateUninitialized {
		return ErrRegistrationClosed
	}
	if t.tmpl == nil || t.Read == nil {
		return fmt.Errorf("provider: template %q was not built with NewTemplate", t.Descriptor.URITemplate)
	}
	for _, existing := range r.templates {
		if existing.Descriptor.URITemplate == t.Descriptor.URITemplate {
			return fmt.Errorf("%w: template %q", ErrDuplicate, t.Descriptor.URITemplate)
		}
	}
	r.templates = append(r.templates, t)
	return nil
}

// Start freezes the registry and makes the runtime Ready.
func (r *Runtime) Start() error {
	r.regMu.Lock()
	defer r.regMu.Unlock()
	if !r.transition(StateUninitialized, StateReady) {
		return fmt.Errorf("provider: start from state %s", r.State())
	}
	r.log.Info("provider.ready",
		slog.Int("tools", len(r.tools)),
		slog.Int("resources", len(r.resources)),
		slog.Int("templates", len(r.templates)),
	)
	return nil
}

// Handle answers a single request. It returns nil for notifications. Handle
// is safe for concurrent use and never panics.
func (r *Runtime) Handle(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	if req.IsNotification() {
		r.handleNotification(ctx, req)
		return nil
	}

	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{Method: req.Method, ID: req.ID.String(), Type: "request"})

	switch r.State() {
	case StateUninitialized:
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeNotInitialized, "provider not initialized", nil)
	case StateShuttingDown, StateStopped:
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeShuttingDown, "provider is shutting down", nil)
	}

	start := time.Now()
	result, err := r.dispatch(ctx, req)
	if err != nil {
		pe := toError(err)
		if pe.Code == jsonrpc.ErrorCodeInternalError {
			r.log.ErrorContext(ctx, "provider.handle_request.fail", slog.String("err", err.Error()))
		} else {
			r.log.InfoContext(ctx, "provider.handle_request.error",
				slog.String("code", pe.Code.String()),
				slog.String("err", pe.Message),
				slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		}
		return jsonrpc.NewErrorResponse(req.ID, pe.Code, pe.Message, pe.Data)
	}

	resp, err := jsonrpc.NewResultResponse(req.ID, result)
	if err != nil {
		r.log.ErrorContext(ctx, "provider.handle_request.encode_fail", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil)
	}
	r.log.DebugContext(ctx, "provider.handle_request.ok", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
	return resp
}

func (r *Runtime) dispatch(ctx context.Context, req *jsonrpc.Request) (result any, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.log.ErrorContext(ctx, "provider.handle_request.panic",
				slog.Any("panic", p),
				slog.String("stack", string(debug.Stack())))
			result, err = nil, fmt.Errorf("panic: %v", p)
		}
	}()

	switch mcp.Method(req.Method) {
	case mcp.InitializeMethod:
		return r.initializeResult(), nil
	case mcp.PingMethod:
		return &mcp.EmptyResult{}, nil
	case mcp.ToolsListMethod:
		return r.listTools(), nil
	case mcp.ToolsCallMethod:
		return r.callTool(ctx, req.Params)
	case mcp.ResourcesListMethod:
		return r.listResources(), nil
	case mcp.ResourcesTemplatesListMethod:
		return r.listTemplates(), nil
	case mcp.ResourcesReadMethod:
		return r.readResource(ctx, req.Params)
	}
	return nil, NewError(jsonrpc.ErrorCodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method), nil)
}

func (r *Runtime) handleNotification(ctx context.Context, req *jsonrpc.Request) {
	switch mcp.Method(req.Method) {
	case mcp.InitializedNotificationMethod:
	case mcp.CancelledNotificationMethod:
		// Provider-side work always runs to completion.
		r.log.DebugContext(ctx, "provider.cancelled.ignored")
	case mcp.ShutdownNotificationMethod:
		r.BeginShutdown()
	default:
		r.log.DebugContext(ctx, "provider.notification.unhandled", slog.String("method", req.Method))
	}
}

// BeginShutdown moves a Ready runtime to ShuttingDown. New requests are
// refused from then on. It reports whether this call made the transition.
func (r *Runtime) BeginShutdown() bool {
	if r.transition(StateReady, StateShuttingDown) {
		return true
	}
	return r.transition(StateUninitialized, StateShuttingDown)
}

func (r *Runtime) initializeResult() *mcp.InitializeResult {
	return &mcp.InitializeResult{
		ProtocolVersion: mcp.LatestProtocolVersion,
		Capabilities: mcp.ServerCapabilities{
			Tools:     &mcp.ToolsCapability{},
			Resources: &mcp.ResourcesCapability{},
		},
		ServerInfo:   r.info,
		Instructions: r.instructions,
	}
}

func (r *Runtime) listTools() *mcp.ListToolsResult {
	out := make([]mcp.Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t.Descriptor)
	}
	return &mcp.ListToolsResult{Tools: out}
}

func (r *Runtime) listResources() *mcp.ListResourcesResult {
	out := make([]mcp.Resource, 0, len(r.resources))
	for _, res := range r.resources {
		out = append(out, res.Descriptor)
	}
	return &mcp.ListResourcesResult{Resources: out}
}

func (r *Runtime) listTemplates() *mcp.ListResourceTemplatesResult {
	out := make([]mcp.ResourceTemplate, 0, len(r.templates))
	for _, t := range r.templates {
		out = append(out, t.Descriptor)
	}
	return &mcp.ListResourceTemplatesResult{ResourceTemplates: out}
}

func (r *Runtime) callTool(ctx context.Context, params json.RawMessage) (*mcp.CallToolResult, error) {
	var p mcp.CallToolRequest
	if err := json.Unmarshal(params, &p); err != nil || p.Name == "" {
		return nil, NewError(jsonrpc.ErrorCodeInvalidParams, "invalid params: tools/call requires a tool name", nil)
	}
	idx, ok := r.toolIndex[p.Name]
	if !ok {
		return nil, NewError(jsonrpc.ErrorCodeUnknownTool, fmt.Sprintf("unknown tool: %s", p.Name), map[string]string{"tool": p.Name})
	}
	tool := r.tools[idx]
	ctx = logctx.WithToolCallData(ctx, &logctx.ToolCallData{ToolName: p.Name})

	args := map[string]any{}
	if len(p.Arguments) > 0 && string(p.Arguments) != "null" {
		if err := json.Unmarshal(p.Arguments, &args); err != nil {
			return nil, InvalidArguments("invalid arguments: expected an object")
		}
	}
	if perr := validateArguments(tool.Descriptor.InputSchema, args); perr != nil {
		return nil, perr
	}

	res, err := tool.Handler(ctx, args)
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = &mcp.CallToolResult{Content: []mcp.ContentBlock{}}
	}
	return res, nil
}

func (r *Runtime) readResource(ctx context.Context, params json.RawMessage) (*mcp.ReadResourceResult, error) {
	var p mcp.ReadResourceRequest
	if err := json.Unmarshal(params, &p); err != nil || p.URI == "" {
		return nil, NewError(jsonrpc.ErrorCodeInvalidParams, "invalid params: resources/read requires a uri", nil)
	}
	if idx, ok := r.resIndex[p.URI]; ok {
		return r.resources[idx].Read(ctx, p.URI)
	}
	for _, t := range r.templates {
		if value, ok := t.match(p.URI); ok {
			return t.Read(ctx, p.URI, value)
		}
	}
	return nil, NewError(jsonrpc.ErrorCodeUnknownResource, fmt.Sprintf("unknown resource: %s", p.URI), map[string]string{"uri": p.URI})
}
