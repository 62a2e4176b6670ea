package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/syarbeats/mcp-playground/client"
	"github.com/syarbeats/mcp-playground/internal/jsonrpc"
	"github.com/syarbeats/mcp-playground/mcp"
	"github.com/syarbeats/mcp-playground/provider"
	"github.com/syarbeats/mcp-playground/taskprovider"
	"github.com/syarbeats/mcp-playground/taskstore/memory"
)

// MockSeedTasks is the number of sample tasks the mock starts with.
const MockSeedTasks = 3

// MockCaller runs the task provider in-process over a deterministic memory
// store, so responses have exactly the live shapes.
type MockCaller struct {
	rt     *provider.Runtime
	nextID atomic.Int64
	last   atomic.Int64
}

var _ Caller = (*MockCaller)(nil)

// NewMockCaller builds a mock whose task ids are mock-0001, mock-0002, ...
func NewMockCaller(log *slog.Logger) (*MockCaller, error) {
	if log == nil {
		log = slog.Default()
	}
	store := memory.NewSeeded(MockSeedTasks, memory.WithSequentialIDs("mock"))
	rt, err := taskprovider.New(store, provider.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("build mock provider: %w", err)
	}
	return &MockCaller{rt: rt}, nil
}

func (m *MockCaller) Mode() string    { return "mock" }
func (m *MockCaller) Connected() bool { return true }

// LastActivity is the time of the last mock call.
func (m *MockCaller) LastActivity() time.Time {
	if ns := m.last.Load(); ns != 0 {
		return time.Unix(0, ns)
	}
	return time.Time{}
}

func mockCall[T any](ctx context.Context, m *MockCaller, method mcp.Method, params any) (*T, error) {
	m.last.Store(time.Now().UnixNano())
	req, err := jsonrpc.NewRequest(jsonrpc.NewRequestID(m.nextID.Add(1)), string(method), params)
	if err != nil {
		return nil, err
	}
	resp := m.rt.Handle(ctx, req)
	if resp == nil {
		return nil, fmt.Errorf("mock: no response to %s", method)
	}
	if resp.Error != nil {
		return nil, &client.RPCError{Code: resp.Error.Code, Message: resp.Error.Message, Data: resp.Error.Data}
	}
	var out T
	if err := json.Unmarshal(resp.Result, &out); err != nil {
		return nil, fmt.Errorf("decode %s result: %w", method, err)
	}
	return &out, nil
}

func (m *MockCaller) CallTool(ctx context.Context, name string, args map[string]any, timeout time.Duration) (*mcp.CallToolResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if args == nil {
		args = map[string]any{}
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("marshal arguments: %w", err)
	}
	return mockCall[mcp.CallToolResult](ctx, m, mcp.ToolsCallMethod, mcp.CallToolRequest{Name: name, Arguments: raw})
}

func (m *MockCaller) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	return mockCall[mcp.ReadResourceResult](ctx, m, mcp.ResourcesReadMethod, mcp.ReadResourceRequest{URI: uri})
}

func (m *MockCaller) ListCapabilities(ctx context.Context) (*client.Capabilities, error) {
	init, err := mockCall[mcp.InitializeResult](ctx, m, mcp.InitializeMethod, mcp.InitializeRequest{ProtocolVersion: mcp.LatestProtocolVersion})
	if err != nil {
		return nil, err
	}
	tools, err := mockCall[mcp.ListToolsResult](ctx, m, mcp.ToolsListMethod, nil)
	if err != nil {
		return nil, err
	}
	resources, err := mockCall[mcp.ListResourcesResult](ctx, m, mcp.ResourcesListMethod, nil)
	if err != nil {
		return nil, err
	}
	templates, err := mockCall[mcp.ListResourceTemplatesResult](ctx, m, mcp.ResourcesTemplatesListMethod, nil)
	if err != nil {
		return nil, err
	}
	return &client.Capabilities{
		ServerInfo:        init.ServerInfo,
		Tools:             tools.Tools,
		Resources:         resources.Resources,
		ResourceTemplates: templates.ResourceTemplates,
	}, nil
}
