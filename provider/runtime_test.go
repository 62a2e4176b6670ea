package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/syarbeats/mcp-playground/internal/jsonrpc"
	"github.com/syarbeats/mcp-playground/mcp"
)

type echoArgs struct {
	Text string `json:"text" jsonschema:"description=Text to echo"`
	Mode string `json:"mode,omitempty" jsonschema:"enum=upper,enum=lower,default=lower"`
	Times int   `json:"times,omitempty"`
}

type lookupArgs struct {
	ID string `json:"id"`
}

type fixture struct {
	rt    *Runtime
	calls atomic.Int32
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{rt: New(mcp.ImplementationInfo{Name: "test-provider", Version: "0.0.1"}, WithLogger(discardLogger()))}

	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	must(f.rt.RegisterTool(NewTool("echo", func(ctx context.Context, a echoArgs) (*mcp.CallToolResult, error) {
		f.calls.Add(1)
		out := a.Text
		if a.Mode == "upper" {
			out = strings.ToUpper(out)
		}
		return TextResult(strings.Repeat(out, max(a.Times, 1))), nil
	}, WithToolDescription("Echo text back"))))
	must(f.rt.RegisterTool(NewTool("lookup", func(ctx context.Context, a lookupArgs) (*mcp.CallToolResult, error) {
		f.calls.Add(1)
		if a.ID != "known" {
			return nil, NotFound("thing %s not found", a.ID)
		}
		return JSONResult(map[string]string{"id": a.ID})
	})))
	must(f.rt.RegisterTool(NewTool("explode", func(ctx context.Context, _ struct{}) (*mcp.CallToolResult, error) {
		panic("kaboom")
	})))
	must(f.rt.RegisterTool(NewTool("fail", func(ctx context.Context, _ struct{}) (*mcp.CallToolResult, error) {
		return nil, errors.New("database on fire")
	})))
	must(f.rt.RegisterResource(Resource{
		Descriptor: mcp.Resource{URI: "things://all", Name: "All things", MimeType: MimeTypeJSON},
		Read: func(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
			return JSONContents(uri, []string{"a", "b"})
		},
	}))
	must(f.rt.RegisterTemplate(MustTemplate(
		mcp.ResourceTemplate{URITemplate: "thing://{id}", Name: "Thing"},
		func(ctx context.Context, uri, id string) (*mcp.ReadResourceResult, error) {
			if id == "missing" {
				return nil, NotFound("thing %s not found", id)
			}
			return JSONContents(uri, map[string]string{"id": id})
		},
	)))
	must(f.rt.RegisterTemplate(MustTemplate(
		mcp.ResourceTemplate{URITemplate: "things://kind/{kind}", Name: "Things by kind"},
		func(ctx context.Context, uri, kind string) (*mcp.ReadResourceResult, error) {
			return JSONContents(uri, map[string]string{"kind": kind})
		},
	)))
	must(f.rt.Start())
	return f
}

func call(t *testing.T, rt *Runtime, method string, params any) *jsonrpc.Response {
	t.Helper()
	req, err := jsonrpc.NewRequest(jsonrpc.NewRequestID(1), method, params)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp := rt.Handle(context.Background(), req)
	if resp == nil {
		t.Fatalf("%s: nil response", method)
	}
	return resp
}

func callTool(t *testing.T, rt *Runtime, name string, args any) *jsonrpc.Response {
	t.Helper()
	return call(t, rt, string(mcp.ToolsCallMethod), map[string]any{"name": name, "arguments": args})
}

func wantCode(t *testing.T, resp *jsonrpc.Response, code jsonrpc.ErrorCode) {
	t.Helper()
	if resp.Error == nil {
		t.Fatalf("expected error %s, got result %s", code, resp.Result)
	}
	if resp.Error.Code != code {
		t.Fatalf("error code = %s (%s), want %s", resp.Error.Code, resp.Error.Message, code)
	}
}

func toolText(t *testing.T, resp *jsonrpc.Response) string {
	t.Helper()
	if resp.Error != nil {
		t.Fatalf("unexpected error: %s", resp.Error.Message)
	}
	var res mcp.CallToolResult
	if err := json.Unmarshal(resp.Result, &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	return res.FirstText()
}

func TestCallToolValidArguments(t *testing.T) {
	f := newFixture(t)
	if got := toolText(t, callTool(t, f.rt, "echo", map[string]any{"text": "hi", "mode": "upper", "times": 2})); got != "HIHI" {
		t.Fatalf("echo = %q", got)
	}
	// mode falls back to its default.
	if got := toolText(t, callTool(t, f.rt, "echo", map[string]any{"text": "Hi"})); got != "Hi" {
		t.Fatalf("echo with default mode = %q", got)
	}
}

func TestCallToolInvalidArgumentsNeverRunHandler(t *testing.T) {
	cases := []struct {
		name string
		args any
	}{
		{"missing required", map[string]any{}},
		{"null required", map[string]any{"text": nil}},
		{"wrong kind", map[string]any{"text": 42}},
		{"bad enum", map[string]any{"text": "x", "mode": "sideways"}},
		{"unknown field", map[string]any{"text": "x", "colour": "red"}},
		{"fractional integer", map[string]any{"text": "x", "times": 1.5}},
		{"not an object", []string{"x"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			wantCode(t, callTool(t, f.rt, "echo", tc.args), jsonrpc.ErrorCodeInvalidArguments)
			if n := f.calls.Load(); n != 0 {
				t.Fatalf("handler ran %d times", n)
			}
		})
	}
}

func TestCallToolUnknownToolIsDistinct(t *testing.T) {
	f := newFixture(t)
	resp := callTool(t, f.rt, "nonexistent_tool", map[string]any{})
	wantCode(t, resp, jsonrpc.ErrorCodeUnknownTool)
	if jsonrpc.ErrorCodeUnknownTool == jsonrpc.ErrorCodeInvalidArguments {
		t.Fatal("UnknownTool and InvalidArguments share a code")
	}
}

func TestCallToolDomainAndInternalErrors(t *testing.T) {
	f := newFixture(t)
	wantCode(t, callTool(t, f.rt, "lookup", map[string]any{"id": "nope"}), jsonrpc.ErrorCodeNotFound)
	wantCode(t, callTool(t, f.rt, "explode", nil), jsonrpc.ErrorCodeInternalError)

	resp := callTool(t, f.rt, "fail", map[string]any{})
	wantCode(t, resp, jsonrpc.ErrorCodeInternalError)
	if strings.Contains(resp.Error.Message, "fire") {
		t.Fatalf("internal error leaked detail: %q", resp.Error.Message)
	}
}

func TestToolsListCarriesSchema(t *testing.T) {
	f := newFixture(t)
	resp := call(t, f.rt, string(mcp.ToolsListMethod), nil)
	var res mcp.ListToolsResult
	if err := json.Unmarshal(resp.Result, &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(res.Tools) != 4 || res.Tools[0].Name != "echo" {
		t.Fatalf("tools = %+v", res.Tools)
	}
	schema := res.Tools[0].InputSchema
	if len(schema.Required) != 1 || schema.Required[0] != "text" {
		t.Fatalf("required = %v", schema.Required)
	}
	mode := schema.Properties["mode"]
	if len(mode.Enum) != 2 || mode.Default != "lower" {
		t.Fatalf("mode property = %+v", mode)
	}
	if schema.Properties["times"].Type != "integer" {
		t.Fatalf("times property = %+v", schema.Properties["times"])
	}
}

func TestReadResource(t *testing.T) {
	f := newFixture(t)

	read := func(uri string) *jsonrpc.Response {
		return call(t, f.rt, string(mcp.ResourcesReadMethod), map[string]string{"uri": uri})
	}

	resp := read("things://all")
	if resp.Error != nil {
		t.Fatalf("static read: %s", resp.Error.Message)
	}

	resp = read("thing://abc-123")
	if resp.Error != nil {
		t.Fatalf("template read: %s", resp.Error.Message)
	}
	var res mcp.ReadResourceResult
	if err := json.Unmarshal(resp.Result, &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(res.Contents) != 1 || !strings.Contains(res.Contents[0].Text, `"abc-123"`) || res.Contents[0].URI != "thing://abc-123" {
		t.Fatalf("contents = %+v", res.Contents)
	}

	wantCode(t, read("thing://missing"), jsonrpc.ErrorCodeNotFound)

	for _, uri := range []string{
		"thing://{badly-formed}",
		"thing://",
		"thing://a/b",
		"things://kind/",
		"things://nope",
		"other://abc",
	} {
		wantCode(t, read(uri), jsonrpc.ErrorCodeUnknownResource)
	}
}

func TestListResourcesAndTemplates(t *testing.T) {
	f := newFixture(t)
	var rl mcp.ListResourcesResult
	if err := json.Unmarshal(call(t, f.rt, string(mcp.ResourcesListMethod), nil).Result, &rl); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rl.Resources) != 1 || rl.Resources[0].URI != "things://all" {
		t.Fatalf("resources = %+v", rl.Resources)
	}
	var tl mcp.ListResourceTemplatesResult
	if err := json.Unmarshal(call(t, f.rt, string(mcp.ResourcesTemplatesListMethod), nil).Result, &tl); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(tl.ResourceTemplates) != 2 {
		t.Fatalf("templates = %+v", tl.ResourceTemplates)
	}
}

func TestLifecycleGates(t *testing.T) {
	rt := New(mcp.ImplementationInfo{Name: "gates"}, WithLogger(discardLogger()))
	wantCode(t, call(t, rt, string(mcp.PingMethod), nil), jsonrpc.ErrorCodeNotInitialized)

	if err := rt.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if rt.State() != StateReady {
		t.Fatalf("state = %s", rt.State())
	}
	if err := rt.RegisterTool(NewTool("late", func(context.Context, struct{}) (*mcp.CallToolResult, error) { return nil, nil })); !errors.Is(err, ErrRegistrationClosed) {
		t.Fatalf("late registration = %v", err)
	}
	if err := rt.Start(); err == nil {
		t.Fatal("second Start succeeded")
	}

	if resp := call(t, rt, string(mcp.PingMethod), nil); resp.Error != nil {
		t.Fatalf("ping: %s", resp.Error.Message)
	}

	note, _ := jsonrpc.NewNotification(string(mcp.ShutdownNotificationMethod), nil)
	if resp := rt.Handle(context.Background(), note); resp != nil {
		t.Fatalf("notification produced response %+v", resp)
	}
	if rt.State() != StateShuttingDown {
		t.Fatalf("state after shutdown = %s", rt.State())
	}
	wantCode(t, call(t, rt, string(mcp.PingMethod), nil), jsonrpc.ErrorCodeShuttingDown)
}

func TestRegistrationRejectsDuplicatesAndBadTemplates(t *testing.T) {
	rt := New(mcp.ImplementationInfo{Name: "dupes"})
	tool := NewTool("x", func(context.Context, struct{}) (*mcp.CallToolResult, error) { return nil, nil })
	if err := rt.RegisterTool(tool); err != nil {
		t.Fatalf("first: %v", err)
	}
	if err := rt.RegisterTool(tool); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("duplicate = %v", err)
	}
	noop := func(context.Context, string, string) (*mcp.ReadResourceResult, error) { return nil, nil }
	if _, err := NewTemplate(mcp.ResourceTemplate{URITemplate: "a://{x}/{y}"}, noop); err == nil {
		t.Fatal("two-variable template accepted")
	}
	if _, err := NewTemplate(mcp.ResourceTemplate{URITemplate: "a://static"}, noop); err == nil {
		t.Fatal("zero-variable template accepted")
	}
}

func TestUnknownMethod(t *testing.T) {
	f := newFixture(t)
	wantCode(t, call(t, f.rt, "prompts/list", nil), jsonrpc.ErrorCodeMethodNotFound)
}
