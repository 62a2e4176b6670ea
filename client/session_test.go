package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/syarbeats/mcp-playground/internal/jsonrpc"
	"github.com/syarbeats/mcp-playground/mcp"
	"github.com/syarbeats/mcp-playground/provider"
	"github.com/syarbeats/mcp-playground/taskprovider"
	"github.com/syarbeats/mcp-playground/taskstore/memory"
	"github.com/syarbeats/mcp-playground/transport"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// dialer hands out in-memory streams whose far end is served by serve.
type dialer struct {
	opens atomic.Int32
	fail  atomic.Bool
	serve func(n int, s transport.Stream)
	wrap  func(n int, s transport.Stream) transport.Stream
	// hold, if set, runs before open n dials.
	hold func(n int)
}

func (d *dialer) dial(ctx context.Context) (transport.Stream, error) {
	n := int(d.opens.Add(1))
	if d.hold != nil {
		d.hold(n)
	}
	if d.fail.Load() {
		return nil, errors.New("connection refused")
	}
	near, far := transport.Pipe()
	go d.serve(n, far)
	if d.wrap != nil {
		return d.wrap(n, near), nil
	}
	return near, nil
}

func newSession(t *testing.T, d *dialer, opts ...Option) *Session {
	t.Helper()
	ch := transport.NewChannel(d.dial, transport.WithLogger(discardLogger()))
	opts = append([]Option{WithLogger(discardLogger()), WithReconnect(3, Backoff{Base: time.Millisecond, Max: time.Millisecond})}, opts...)
	s := New(ch, opts...)
	t.Cleanup(func() { s.Close() })
	return s
}

// taskPeer serves a fresh task provider runtime on every stream.
func taskPeer(t *testing.T) func(int, transport.Stream) {
	store := memory.NewSeeded(3, memory.WithSequentialIDs("task"))
	return func(_ int, s transport.Stream) {
		rt, err := taskprovider.New(store, provider.WithLogger(discardLogger()))
		if err != nil {
			t.Errorf("taskprovider.New: %v", err)
			return
		}
		_ = rt.Serve(context.Background(), s)
		s.Close()
	}
}

// scriptedPeer answers initialize and hands every other request to handle.
// A nil response from handle means no reply.
func scriptedPeer(handle func(n int, req *jsonrpc.Request, s transport.Stream) *jsonrpc.Response) func(int, transport.Stream) {
	return func(n int, s transport.Stream) {
		defer s.Close()
		for {
			frame, err := s.ReadFrame()
			if err != nil {
				return
			}
			msg, err := jsonrpc.Decode(frame)
			if err != nil {
				continue
			}
			req := msg.AsRequest()
			if req == nil || req.IsNotification() {
				continue
			}
			var resp *jsonrpc.Response
			if req.Method == string(mcp.InitializeMethod) {
				resp, _ = jsonrpc.NewResultResponse(req.ID, mcp.InitializeResult{
					ProtocolVersion: mcp.LatestProtocolVersion,
					ServerInfo:      mcp.ImplementationInfo{Name: "scripted", Version: "0"},
				})
			} else {
				resp = handle(n, req, s)
			}
			if resp == nil {
				continue
			}
			out, _ := jsonrpc.Encode(resp)
			if err := s.WriteFrame(out); err != nil {
				return
			}
		}
	}
}

func okResult(req *jsonrpc.Request) *jsonrpc.Response {
	resp, _ := jsonrpc.NewResultResponse(req.ID, mcp.CallToolResult{Content: []mcp.ContentBlock{mcp.TextContent("ok")}})
	return resp
}

func TestSessionAgainstTaskProvider(t *testing.T) {
	d := &dialer{serve: taskPeer(t)}
	s := newSession(t, d)
	ctx := context.Background()

	if err := s.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if !s.Connected() || s.LastActivity().IsZero() {
		t.Fatal("session should be connected with recorded activity")
	}
	if info := s.ServerInfo(); info == nil || info.ServerInfo.Name != taskprovider.Name {
		t.Fatalf("server info = %+v", info)
	}

	res, err := s.CallTool(ctx, taskprovider.ToolCreateTask, map[string]any{
		"title":       "Learn MCP",
		"description": "Study the protocol",
		"priority":    "high",
		"status":      "pending",
	}, time.Second)
	if err != nil {
		t.Fatalf("create_task: %v", err)
	}
	var created struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}
	if err := json.Unmarshal([]byte(res.FirstText()), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.ID == "" || created.Title != "Learn MCP" {
		t.Fatalf("created = %+v", created)
	}

	caps, err := s.ListCapabilities(ctx)
	if err != nil {
		t.Fatalf("ListCapabilities: %v", err)
	}
	if len(caps.Tools) != 6 || len(caps.Resources) != 5 || len(caps.ResourceTemplates) != 3 {
		t.Fatalf("caps = %d tools, %d resources, %d templates", len(caps.Tools), len(caps.Resources), len(caps.ResourceTemplates))
	}
	if s.CachedCapabilities() != caps {
		t.Fatal("capabilities were not cached")
	}

	read, err := s.ReadResource(ctx, "task://"+created.ID)
	if err != nil {
		t.Fatalf("ReadResource: %v", err)
	}
	if len(read.Contents) != 1 || read.Contents[0].URI != "task://"+created.ID {
		t.Fatalf("contents = %+v", read.Contents)
	}
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestProviderErrorsAreTyped(t *testing.T) {
	d := &dialer{serve: taskPeer(t)}
	s := newSession(t, d)
	ctx := context.Background()

	_, err := s.CallTool(ctx, "nonexistent_tool", nil, time.Second)
	if !IsUnknownTool(err) || IsInvalidArguments(err) {
		t.Fatalf("unknown tool error = %v", err)
	}
	_, err = s.CallTool(ctx, taskprovider.ToolCreateTask, map[string]any{"title": "x"}, time.Second)
	if !IsInvalidArguments(err) || IsUnknownTool(err) {
		t.Fatalf("invalid arguments error = %v", err)
	}
	_, err = s.CallTool(ctx, taskprovider.ToolGetTask, map[string]any{"task_id": "nope"}, time.Second)
	if !IsNotFound(err) {
		t.Fatalf("not found error = %v", err)
	}
	_, err = s.ReadResource(ctx, "task://{badly-formed}")
	if !IsUnknownResource(err) {
		t.Fatalf("unknown resource error = %v", err)
	}
	var re *RPCError
	if !errors.As(err, &re) || re.Code != jsonrpc.ErrorCodeUnknownResource {
		t.Fatalf("expected *RPCError, got %T", err)
	}
}

func TestTimeoutRemovesPendingAndDropsLateResponse(t *testing.T) {
	held := make(chan *jsonrpc.Request, 1)
	var stream transport.Stream
	var mu sync.Mutex
	d := &dialer{serve: scriptedPeer(func(_ int, req *jsonrpc.Request, s transport.Stream) *jsonrpc.Response {
		if req.Method == string(mcp.ToolsCallMethod) {
			mu.Lock()
			stream = s
			mu.Unlock()
			held <- req
			return nil
		}
		return okResult(req)
	})}
	s := newSession(t, d)
	ctx := context.Background()

	_, err := s.CallTool(ctx, "slow", nil, 50*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if n := s.pending.len(); n != 0 {
		t.Fatalf("pending entries after timeout = %d", n)
	}

	// The late response matches nothing and is dropped.
	req := <-held
	mu.Lock()
	late, _ := jsonrpc.Encode(okResult(req))
	if err := stream.WriteFrame(late); err != nil {
		t.Fatalf("write late response: %v", err)
	}
	mu.Unlock()

	if err := s.Ping(ctx); err != nil {
		t.Fatalf("session unusable after timeout: %v", err)
	}
	if !s.Connected() {
		t.Fatal("timeout should not disconnect the session")
	}
}

func TestConnectionLostDeliveredToEveryPendingCall(t *testing.T) {
	const n = 5
	var seen atomic.Int32
	var latched sync.Once
	closeNow := make(chan struct{})
	d := &dialer{serve: scriptedPeer(func(conn int, req *jsonrpc.Request, s transport.Stream) *jsonrpc.Response {
		if conn == 1 && req.Method == string(mcp.ToolsCallMethod) {
			if seen.Add(1) == n {
				latched.Do(func() { close(closeNow) })
			}
			go func() {
				<-closeNow
				s.Close()
			}()
			return nil
		}
		return okResult(req)
	})}
	s := newSession(t, d)
	ctx := context.Background()
	if err := s.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	errs := make(chan error, n)
	for range n {
		go func() {
			_, err := s.CallTool(ctx, "work", nil, 5*time.Second)
			errs <- err
		}()
	}
	for range n {
		if err := <-errs; !errors.Is(err, ErrConnectionLost) {
			t.Fatalf("expected ErrConnectionLost, got %v", err)
		}
	}
	if p := s.pending.len(); p != 0 {
		t.Fatalf("pending after loss = %d", p)
	}
	if got := d.opens.Load(); got != 1 {
		t.Fatalf("written requests must not trigger a resend; opens = %d", got)
	}

	// The next call reconnects on a fresh stream.
	if _, err := s.CallTool(ctx, "work", nil, time.Second); err != nil {
		t.Fatalf("call after reconnect: %v", err)
	}
	if got := d.opens.Load(); got != 2 {
		t.Fatalf("opens after reconnect = %d, want 2", got)
	}
}

func TestUnreachableAfterExactlyMaxAttempts(t *testing.T) {
	d := &dialer{serve: func(int, transport.Stream) {}}
	d.fail.Store(true)
	s := newSession(t, d, WithReconnect(3, Backoff{Base: time.Second, Max: 10 * time.Second, Factor: 2}))

	var delays []time.Duration
	s.sleep = func(ctx context.Context, dur time.Duration) error {
		delays = append(delays, dur)
		return nil
	}

	_, err := s.CallTool(context.Background(), "anything", nil, time.Second)
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", err)
	}
	if got := d.opens.Load(); got != 3 {
		t.Fatalf("open attempts = %d, want 3", got)
	}
	if len(delays) != 2 || delays[0] != time.Second || delays[1] != 2*time.Second {
		t.Fatalf("backoff delays = %v", delays)
	}

	// A new call gets a fresh budget.
	_, err = s.ReadResource(context.Background(), "tasks://all")
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", err)
	}
	if got := d.opens.Load(); got != 6 {
		t.Fatalf("open attempts after second call = %d, want 6", got)
	}
}

// failAfter fails writes once ok writes have succeeded.
type failAfter struct {
	transport.Stream
	ok     int
	writes atomic.Int32
}

func (f *failAfter) WriteFrame(frame []byte) error {
	if int(f.writes.Add(1)) > f.ok {
		return io.ErrClosedPipe
	}
	return f.Stream.WriteFrame(frame)
}

func TestUnsentRequestIsRetriedThroughReconnect(t *testing.T) {
	var calls atomic.Int32
	d := &dialer{
		serve: scriptedPeer(func(_ int, req *jsonrpc.Request, s transport.Stream) *jsonrpc.Response {
			if req.Method == string(mcp.ToolsCallMethod) {
				calls.Add(1)
			}
			return okResult(req)
		}),
		wrap: func(n int, s transport.Stream) transport.Stream {
			if n == 1 {
				// initialize and notifications/initialized succeed.
				return &failAfter{Stream: s, ok: 2}
			}
			return s
		},
	}
	s := newSession(t, d)
	ctx := context.Background()
	if err := s.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	res, err := s.CallTool(ctx, "work", nil, time.Second)
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if res.FirstText() != "ok" {
		t.Fatalf("result = %+v", res)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("provider saw %d tools/call requests, want 1", got)
	}
	if got := d.opens.Load(); got != 2 {
		t.Fatalf("opens = %d, want 2", got)
	}
}

func waitDisconnected(t *testing.T, s *Session) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for s.Connected() {
		if time.Now().After(deadline) {
			t.Fatal("session still connected")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestRequestOnReplacedGenerationIsNotSent(t *testing.T) {
	var mu sync.Mutex
	streams := map[int]transport.Stream{}
	var stale atomic.Int32
	held := make(chan struct{}, 1)
	d := &dialer{serve: scriptedPeer(func(conn int, req *jsonrpc.Request, s transport.Stream) *jsonrpc.Response {
		mu.Lock()
		streams[conn] = s
		mu.Unlock()
		switch req.Method {
		case "stale":
			stale.Add(1)
			return okResult(req)
		case "hold":
			held <- struct{}{}
			return nil
		}
		return okResult(req)
	})}
	s := newSession(t, d)
	ctx := context.Background()
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	s.mu.Lock()
	oldGen := s.gen
	s.mu.Unlock()

	mu.Lock()
	streams[1].Close()
	mu.Unlock()
	waitDisconnected(t, s)
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping after reconnect: %v", err)
	}

	// A request still tagged with the old generation must not reach the new
	// stream, where nothing would fail it on loss.
	_, err := s.roundTrip(ctx, oldGen, "stale", nil)
	if !errors.Is(err, errNotSent) {
		t.Fatalf("roundTrip on old generation = %v, want errNotSent", err)
	}
	if got := stale.Load(); got != 0 {
		t.Fatalf("provider saw %d stale requests", got)
	}
	if p := s.pending.len(); p != 0 {
		t.Fatalf("pending = %d", p)
	}

	// A call in flight on the new stream is failed when that stream drops.
	errs := make(chan error, 1)
	go func() {
		_, err := s.call(ctx, "hold", nil, 5*time.Second)
		errs <- err
	}()
	<-held
	mu.Lock()
	streams[2].Close()
	mu.Unlock()
	if err := <-errs; !errors.Is(err, ErrConnectionLost) {
		t.Fatalf("call on dropped stream = %v, want ErrConnectionLost", err)
	}
}

func TestCallerTimeoutWhileAnotherReconnects(t *testing.T) {
	dialing := make(chan struct{})
	release := make(chan struct{})
	d := &dialer{
		serve: scriptedPeer(func(_ int, req *jsonrpc.Request, _ transport.Stream) *jsonrpc.Response {
			return okResult(req)
		}),
		hold: func(n int) {
			if n == 2 {
				close(dialing)
				<-release
			}
		},
	}
	s := newSession(t, d)
	ctx := context.Background()
	if err := s.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	s.lost(1, errors.New("dropped"))

	slow := make(chan error, 1)
	go func() {
		_, err := s.CallTool(ctx, "work", nil, 5*time.Second)
		slow <- err
	}()
	<-dialing

	start := time.Now()
	_, err := s.CallTool(ctx, "work", nil, 100*time.Millisecond)
	elapsed := time.Since(start)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("queued call = %v, want ErrTimeout", err)
	}
	if elapsed > time.Second {
		t.Fatalf("queued call returned after %v", elapsed)
	}
	if err := s.Connect(withTimeout(t, 50*time.Millisecond)); !errors.Is(err, ErrTimeout) {
		t.Fatalf("queued Connect = %v, want ErrTimeout", err)
	}

	close(release)
	if err := <-slow; err != nil {
		t.Fatalf("reconnecting call: %v", err)
	}
}

func withTimeout(t *testing.T, d time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	t.Cleanup(cancel)
	return ctx
}

func TestShutdownNotificationDisconnects(t *testing.T) {
	d := &dialer{serve: scriptedPeer(func(_ int, req *jsonrpc.Request, s transport.Stream) *jsonrpc.Response {
		if req.Method == string(mcp.ToolsCallMethod) {
			note, _ := jsonrpc.NewNotification(string(mcp.ShutdownNotificationMethod), mcp.ShutdownNotification{Reason: "bye"})
			frame, _ := jsonrpc.Encode(note)
			_ = s.WriteFrame(frame)
		}
		return okResult(req)
	})}
	s := newSession(t, d)
	ctx := context.Background()

	if _, err := s.CallTool(ctx, "work", nil, time.Second); err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for s.Connected() {
		if time.Now().After(deadline) {
			t.Fatal("session still connected after shutdown notification")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestProviderRequestsAreRejected(t *testing.T) {
	replies := make(chan *jsonrpc.Response, 1)
	d := &dialer{serve: func(_ int, s transport.Stream) {
		defer s.Close()
		for {
			frame, err := s.ReadFrame()
			if err != nil {
				return
			}
			msg, err := jsonrpc.Decode(frame)
			if err != nil {
				continue
			}
			if resp := msg.AsResponse(); resp != nil {
				replies <- resp
				continue
			}
			req := msg.AsRequest()
			if req.Method != string(mcp.InitializeMethod) {
				continue
			}
			init, _ := jsonrpc.NewResultResponse(req.ID, mcp.InitializeResult{ProtocolVersion: mcp.LatestProtocolVersion})
			out, _ := jsonrpc.Encode(init)
			_ = s.WriteFrame(out)

			ask, _ := jsonrpc.NewRequest(jsonrpc.NewRequestID("srv-1"), "sampling/createMessage", nil)
			out, _ = jsonrpc.Encode(ask)
			_ = s.WriteFrame(out)
		}
	}}
	s := newSession(t, d)
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	select {
	case resp := <-replies:
		if resp.Error == nil || resp.Error.Code != jsonrpc.ErrorCodeMethodNotFound || resp.ID.String() != "srv-1" {
			t.Fatalf("reply = %+v", resp)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no reply to provider request")
	}
}

func TestCloseFailsCalls(t *testing.T) {
	d := &dialer{serve: taskPeer(t)}
	s := newSession(t, d)
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := s.CallTool(context.Background(), "list_tasks", nil, time.Second); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := s.Connect(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("Connect after Close = %v", err)
	}
}

func TestBackoffDelay(t *testing.T) {
	b := DefaultBackoff
	want := []time.Duration{0, time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second, 10 * time.Second}
	for attempt, w := range want {
		if got := b.Delay(attempt); got != w {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, w)
		}
	}
}
