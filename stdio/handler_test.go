package stdio

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/syarbeats/mcp-playground/internal/jsonrpc"
	"github.com/syarbeats/mcp-playground/mcp"
	"github.com/syarbeats/mcp-playground/provider"
)

// testHarness encapsulates pipes and collected output for stdio handler tests.
type testHarness struct {
	t      *testing.T
	stdinW *io.PipeWriter
	done   chan error

	outMu sync.Mutex
	lines []string
	more  chan struct{}
}

type greetArgs struct {
	Name string `json:"name"`
}

func newRuntime(t *testing.T) *provider.Runtime {
	t.Helper()
	rt := provider.New(mcp.ImplementationInfo{Name: "stdio-test", Version: "0.0.1"},
		provider.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	err := rt.RegisterTool(provider.NewTool("greet", func(ctx context.Context, a greetArgs) (*mcp.CallToolResult, error) {
		return provider.TextResult("hello " + a.Name), nil
	}))
	if err != nil {
		t.Fatalf("RegisterTool: %v", err)
	}
	return rt
}

func newHarness(t *testing.T, rt *provider.Runtime) *testHarness {
	t.Helper()

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	h := NewHandler(rt, WithIO(inR, outW), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	th := &testHarness{t: t, stdinW: inW, done: make(chan error, 1), more: make(chan struct{}, 16)}

	go func() {
		th.done <- h.Serve(context.Background())
	}()

	go func() {
		sc := bufio.NewScanner(outR)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			th.outMu.Lock()
			th.lines = append(th.lines, line)
			th.outMu.Unlock()
			select {
			case th.more <- struct{}{}:
			default:
			}
		}
	}()

	t.Cleanup(func() {
		_ = inW.Close()
		_ = outR.Close()
	})
	return th
}

func (th *testHarness) send(v any) {
	th.t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		th.t.Fatalf("marshal: %v", err)
	}
	if _, err := th.stdinW.Write(append(b, '\n')); err != nil {
		th.t.Fatalf("write: %v", err)
	}
}

func (th *testHarness) waitForID(id string) *jsonrpc.Response {
	th.t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		th.outMu.Lock()
		for _, line := range th.lines {
			msg, err := jsonrpc.Decode([]byte(line))
			if err == nil && msg.ID.String() == id {
				th.outMu.Unlock()
				return msg.AsResponse()
			}
		}
		th.outMu.Unlock()
		select {
		case <-th.more:
		case <-deadline:
			th.t.Fatalf("timed out waiting for response %s", id)
		}
	}
}

func TestStdioInitializeAndCall(t *testing.T) {
	th := newHarness(t, newRuntime(t))

	th.send(map[string]any{"jsonrpc": "2.0", "id": 1, "method": "initialize", "params": mcp.InitializeRequest{
		ProtocolVersion: mcp.LatestProtocolVersion,
		ClientInfo:      mcp.ImplementationInfo{Name: "client", Version: "0.0.1"},
	}})
	resp := th.waitForID("1")
	var init mcp.InitializeResult
	if err := json.Unmarshal(resp.Result, &init); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if init.ServerInfo.Name != "stdio-test" {
		t.Fatalf("server info = %+v", init.ServerInfo)
	}

	th.send(map[string]any{"jsonrpc": "2.0", "method": "notifications/initialized"})
	th.send(map[string]any{"jsonrpc": "2.0", "id": "call-1", "method": "tools/call", "params": map[string]any{
		"name": "greet", "arguments": map[string]any{"name": "stdio"},
	}})
	resp = th.waitForID("call-1")
	var res mcp.CallToolResult
	if err := json.Unmarshal(resp.Result, &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.FirstText() != "hello stdio" {
		t.Fatalf("result = %+v", res)
	}
}

func TestStdioStopsOnEOF(t *testing.T) {
	rt := newRuntime(t)
	th := newHarness(t, rt)

	th.send(map[string]any{"jsonrpc": "2.0", "id": 1, "method": "ping"})
	th.waitForID("1")
	_ = th.stdinW.Close()

	select {
	case err := <-th.done:
		if err != nil {
			t.Fatalf("Serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after stdin EOF")
	}
	if rt.State() != provider.StateStopped {
		t.Fatalf("state = %s", rt.State())
	}
}

func TestStdioServeOnce(t *testing.T) {
	h := NewHandler(newRuntime(t), WithIO(strings.NewReader(""), io.Discard))
	if err := h.Serve(context.Background()); err != nil {
		t.Fatalf("first Serve: %v", err)
	}
	if err := h.Serve(context.Background()); err != ErrAlreadyServed {
		t.Fatalf("second Serve = %v", err)
	}
}
