// Package client implements the caller side of the bridge: a session that
// correlates JSON-RPC requests with responses over a transport.Channel and
// reconnects with bounded exponential backoff.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/syarbeats/mcp-playground/internal/jsonrpc"
	"github.com/syarbeats/mcp-playground/mcp"
	"github.com/syarbeats/mcp-playground/transport"
)

const (
	// DefaultMaxReconnectAttempts bounds reconnects triggered by a single call.
	DefaultMaxReconnectAttempts = 3
	// DefaultCallTimeout applies when a call is made with a zero timeout.
	DefaultCallTimeout = 30 * time.Second
)

// errNotSent marks a request that never left the session because the channel
// was already gone. Such requests are safe to retry.
var errNotSent = errors.New("client: request not sent")

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClientInfo sets the implementation info sent in initialize.
func WithClientInfo(info mcp.ImplementationInfo) Option {
	return func(s *Session) { s.info = info }
}

// WithCallTimeout sets the timeout used when a call passes zero.
func WithCallTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.callTimeout = d
		}
	}
}

// WithReconnect sets the attempt budget and backoff used after loss.
func WithReconnect(maxAttempts int, b Backoff) Option {
	return func(s *Session) {
		if maxAttempts > 0 {
			s.maxAttempts = maxAttempts
		}
		s.backoff = b
	}
}

// Capabilities is what the provider offers.
type Capabilities struct {
	ServerInfo        mcp.ImplementationInfo `json:"server_info"`
	Tools             []mcp.Tool             `json:"tools"`
	Resources         []mcp.Resource         `json:"resources"`
	ResourceTemplates []mcp.ResourceTemplate `json:"resource_templates"`
}

// Session is a single logical connection to a provider.
type Session struct {
	ch          transport.Channel
	log         *slog.Logger
	info        mcp.ImplementationInfo
	callTimeout time.Duration
	maxAttempts int
	backoff     Backoff
	sleep       func(ctx context.Context, d time.Duration) error

	nextID  atomic.Int64
	pending *pendingCalls

	// connSem is a one-slot semaphore serialising Open and the handshake.
	connSem chan struct{}

	mu  sync.Mutex
	gen uint64

	// streamUp is true from Open of generation gen until its loss, including
	// the handshake. connected is set only once the handshake is done.
	streamUp   bool
	connected  bool
	closed     bool
	serverInfo *mcp.InitializeResult
	caps       *Capabilities

	lastActivity atomic.Int64
}

// New creates a disconnected session over ch.
func New(ch transport.Channel, opts ...Option) *Session {
	s := &Session{
		ch:          ch,
		log:         slog.Default(),
		info:        mcp.ImplementationInfo{Name: "mcp-playground-bridge", Version: "1.0.0"},
		callTimeout: DefaultCallTimeout,
		maxAttempts: DefaultMaxReconnectAttempts,
		backoff:     DefaultBackoff,
		sleep:       sleepCtx,
		pending:     newPendingCalls(),
		connSem:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Mode reports that calls go to a live provider.
func (s *Session) Mode() string { return "live" }

// Connected reports whether the session currently holds an initialized
// channel.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// LastActivity is the time of the last frame sent or received, or the zero
// time if there has been none.
func (s *Session) LastActivity() time.Time {
	ns := s.lastActivity.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

func (s *Session) touch() { s.lastActivity.Store(time.Now().UnixNano()) }

// ServerInfo returns the result of the last successful initialize.
func (s *Session) ServerInfo() *mcp.InitializeResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serverInfo
}

// Connect opens the channel and performs the initialize handshake once,
// without retrying.
func (s *Session) Connect(ctx context.Context) error {
	if err := s.acquireConn(ctx); err != nil {
		return err
	}
	defer s.releaseConn()

	if s.isClosed() {
		return ErrClosed
	}
	if s.Connected() {
		return nil
	}
	_, err := s.connectOnce(ctx)
	return err
}

// acquireConn waits for the connect slot or for ctx to end.
func (s *Session) acquireConn(ctx context.Context) error {
	select {
	case s.connSem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return s.ctxError(ctx.Err())
	}
}

func (s *Session) releaseConn() { <-s.connSem }

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// connectOnce opens a fresh stream, starts its receive loop and runs the
// handshake. Callers hold the connect slot.
func (s *Session) connectOnce(ctx context.Context) (uint64, error) {
	if err := s.ch.Open(ctx); err != nil {
		return 0, err
	}

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.streamUp = true
	s.mu.Unlock()

	// Frames binds to the stream that is current now, before any later Open.
	go s.receive(gen, s.ch.Frames())

	hctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	resp, err := s.roundTrip(hctx, gen, string(mcp.InitializeMethod), mcp.InitializeRequest{
		ProtocolVersion: mcp.LatestProtocolVersion,
		ClientInfo:      s.info,
	})
	if err != nil {
		s.lost(gen, err)
		return 0, fmt.Errorf("initialize: %w", err)
	}
	if resp.Error != nil {
		err := rpcError(resp.Error)
		s.lost(gen, err)
		return 0, fmt.Errorf("initialize: %w", err)
	}
	var res mcp.InitializeResult
	if err := json.Unmarshal(resp.Result, &res); err != nil {
		s.lost(gen, err)
		return 0, fmt.Errorf("initialize: decode result: %w", err)
	}

	note, err := jsonrpc.NewNotification(string(mcp.InitializedNotificationMethod), nil)
	if err != nil {
		return 0, err
	}
	if err := s.send(hctx, note); err != nil {
		s.lost(gen, err)
		return 0, fmt.Errorf("initialized: %w", err)
	}

	s.mu.Lock()
	if s.gen == gen && !s.closed {
		s.connected = true
		s.serverInfo = &res
	}
	s.mu.Unlock()

	s.log.Info("client.connect.ok",
		slog.String("server", res.ServerInfo.Name),
		slog.String("protocol_version", res.ProtocolVersion),
	)
	return gen, nil
}

// ensureConnected returns the live generation, reconnecting within the
// attempt budget if needed.
func (s *Session) ensureConnected(ctx context.Context) (uint64, error) {
	if err := s.acquireConn(ctx); err != nil {
		return 0, err
	}
	defer s.releaseConn()

	s.mu.Lock()
	closed, connected, gen := s.closed, s.connected, s.gen
	s.mu.Unlock()
	if closed {
		return 0, ErrClosed
	}
	if connected {
		return gen, nil
	}

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if attempt > 1 {
			if err := s.sleep(ctx, s.backoff.Delay(attempt-1)); err != nil {
				return 0, s.ctxError(err)
			}
		}
		gen, err := s.connectOnce(ctx)
		if err == nil {
			return gen, nil
		}
		if ctx.Err() != nil {
			return 0, s.ctxError(ctx.Err())
		}
		lastErr = err
		s.log.Warn("client.reconnect.fail",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", s.maxAttempts),
			slog.String("err", err.Error()),
		)
	}
	return 0, fmt.Errorf("%w after %d attempts: %v", ErrUnreachable, s.maxAttempts, lastErr)
}

func (s *Session) ctxError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

// lost marks generation gen as gone and fails its pending calls.
func (s *Session) lost(gen uint64, cause error) {
	s.mu.Lock()
	wasConnected := false
	if s.gen == gen {
		wasConnected = s.connected
		s.connected = false
		s.streamUp = false
	}
	s.mu.Unlock()

	n := s.pending.fail(gen, ErrConnectionLost)
	if wasConnected || n > 0 {
		attrs := []any{slog.Int("pending_failed", n)}
		if cause != nil {
			attrs = append(attrs, slog.String("err", cause.Error()))
		}
		s.log.Warn("client.connection.lost", attrs...)
	}
}

func (s *Session) receive(gen uint64, frames iter.Seq2[[]byte, error]) {
	var cause error
	for frame, err := range frames {
		if err != nil {
			cause = err
			break
		}
		s.touch()

		msg, err := jsonrpc.Decode(frame)
		if err != nil {
			s.log.Warn("client.receive.malformed", slog.String("err", err.Error()))
			continue
		}
		switch msg.Type() {
		case "response":
			resp := msg.AsResponse()
			if !s.pending.deliver(resp) {
				s.log.Debug("client.receive.unmatched", slog.String("id", resp.ID.String()))
			}
		case "notification":
			s.onNotification(gen, msg.AsRequest())
		case "request":
			s.rejectRequest(msg.AsRequest())
		}
	}
	s.lost(gen, cause)
}

func (s *Session) onNotification(gen uint64, n *jsonrpc.Request) {
	switch mcp.Method(n.Method) {
	case mcp.ShutdownNotificationMethod:
		s.mu.Lock()
		if s.gen == gen {
			s.connected = false
		}
		s.mu.Unlock()
		s.log.Info("client.provider.shutdown")
	default:
		s.log.Debug("client.notification", slog.String("method", n.Method))
	}
}

// rejectRequest answers provider-initiated requests, none of which are
// supported.
func (s *Session) rejectRequest(req *jsonrpc.Request) {
	resp := jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, "method not found: "+req.Method, nil)
	if err := s.send(context.Background(), resp); err != nil {
		s.log.Debug("client.reject.fail", slog.String("err", err.Error()))
	}
}

func (s *Session) send(ctx context.Context, msg any) error {
	frame, err := jsonrpc.Encode(msg)
	if err != nil {
		return err
	}
	if err := s.ch.Send(ctx, frame); err != nil {
		return err
	}
	s.touch()
	return nil
}

// roundTrip registers a waiter, sends one request on generation gen and
// waits for its response. If gen is no longer the live stream the request
// is not sent and errNotSent is returned.
func (s *Session) roundTrip(ctx context.Context, gen uint64, method string, params any) (*jsonrpc.Response, error) {
	id := jsonrpc.NewRequestID(s.nextID.Add(1))
	req, err := jsonrpc.NewRequest(id, method, params)
	if err != nil {
		return nil, err
	}
	key := id.String()

	// The waiter is registered under mu so that lost(gen) either sees it or
	// this generation check fails.
	s.mu.Lock()
	if s.closed || s.gen != gen || !s.streamUp {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: generation %d is gone", errNotSent, gen)
	}
	pc := s.pending.add(key, gen)
	s.mu.Unlock()

	if err := s.send(ctx, req); err != nil {
		s.pending.remove(key)
		if errors.Is(err, transport.ErrChannelClosed) {
			return nil, fmt.Errorf("%w: %v", errNotSent, err)
		}
		return nil, s.ctxError(err)
	}

	select {
	case resp := <-pc.respCh:
		return resp, nil
	case err := <-pc.errCh:
		return nil, err
	case <-ctx.Done():
		s.pending.remove(key)
		return nil, s.ctxError(ctx.Err())
	}
}

// call sends method with params and returns the response. A request that
// could not be written is retried once through reconnect; a written request
// is never retried.
func (s *Session) call(ctx context.Context, method string, params any, timeout time.Duration) (*jsonrpc.Response, error) {
	if timeout <= 0 {
		timeout = s.callTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	for retried := false; ; retried = true {
		gen, err := s.ensureConnected(ctx)
		if err != nil {
			return nil, err
		}

		resp, err := s.roundTrip(ctx, gen, method, params)
		if errors.Is(err, errNotSent) {
			s.lost(gen, err)
			if !retried {
				s.log.Debug("client.call.resend", slog.String("method", method))
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrConnectionLost, err)
		}
		if err != nil {
			s.log.Warn("client.call.fail",
				slog.String("method", method),
				slog.String("err", err.Error()),
				slog.Int64("dur_ms", time.Since(start).Milliseconds()),
			)
			return nil, err
		}
		if resp.Error != nil {
			return nil, rpcError(resp.Error)
		}
		s.log.Debug("client.call.ok",
			slog.String("method", method),
			slog.Int64("dur_ms", time.Since(start).Milliseconds()),
		)
		return resp, nil
	}
}

func callInto[T any](ctx context.Context, s *Session, method mcp.Method, params any, timeout time.Duration) (*T, error) {
	resp, err := s.call(ctx, string(method), params, timeout)
	if err != nil {
		return nil, err
	}
	var out T
	if err := json.Unmarshal(resp.Result, &out); err != nil {
		return nil, fmt.Errorf("decode %s result: %w", method, err)
	}
	return &out, nil
}

// CallTool invokes a provider tool. A zero timeout uses the session default.
func (s *Session) CallTool(ctx context.Context, name string, args map[string]any, timeout time.Duration) (*mcp.CallToolResult, error) {
	if args == nil {
		args = map[string]any{}
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("marshal arguments: %w", err)
	}
	return callInto[mcp.CallToolResult](ctx, s, mcp.ToolsCallMethod, mcp.CallToolRequest{Name: name, Arguments: raw}, timeout)
}

// ReadResource reads a resource by URI.
func (s *Session) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	return callInto[mcp.ReadResourceResult](ctx, s, mcp.ResourcesReadMethod, mcp.ReadResourceRequest{URI: uri}, 0)
}

// Ping checks that the provider answers.
func (s *Session) Ping(ctx context.Context) error {
	_, err := s.call(ctx, string(mcp.PingMethod), nil, 0)
	return err
}

// ListCapabilities discovers tools, resources and templates and caches them.
func (s *Session) ListCapabilities(ctx context.Context) (*Capabilities, error) {
	tools, err := callInto[mcp.ListToolsResult](ctx, s, mcp.ToolsListMethod, nil, 0)
	if err != nil {
		return nil, err
	}
	resources, err := callInto[mcp.ListResourcesResult](ctx, s, mcp.ResourcesListMethod, nil, 0)
	if err != nil {
		return nil, err
	}
	templates, err := callInto[mcp.ListResourceTemplatesResult](ctx, s, mcp.ResourcesTemplatesListMethod, nil, 0)
	if err != nil {
		return nil, err
	}

	caps := &Capabilities{
		Tools:             tools.Tools,
		Resources:         resources.Resources,
		ResourceTemplates: templates.ResourceTemplates,
	}
	if info := s.ServerInfo(); info != nil {
		caps.ServerInfo = info.ServerInfo
	}

	s.mu.Lock()
	s.caps = caps
	s.mu.Unlock()
	return caps, nil
}

// CachedCapabilities returns the result of the last successful
// ListCapabilities, or nil.
func (s *Session) CachedCapabilities() *Capabilities {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.caps
}

// Close shuts the channel and fails every pending call with ErrClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.connected = false
	s.streamUp = false
	s.mu.Unlock()

	s.pending.fail(0, ErrClosed)
	return s.ch.Close()
}
