package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/syarbeats/mcp-playground/internal/jsonrpc"
	"github.com/syarbeats/mcp-playground/transport"
)

// Serve answers requests read from s until the peer sends
// notifications/shutdown, closes its side, or ctx is cancelled. It then
// drains in-flight calls for up to the drain timeout and returns with the
// runtime Stopped. Each request runs on its own goroutine; responses go
// through a single serialized writer. The caller owns s and closes it after
// Serve returns.
func (r *Runtime) Serve(ctx context.Context, s transport.Stream) error {
	if st := r.State(); st != StateReady {
		return fmt.Errorf("%w: %s", ErrNotReady, st)
	}

	c := &conn{rt: r, s: s, log: r.log, stop: make(chan struct{})}
	defer close(c.stop)

	frames := make(chan []byte)
	readErr := make(chan error, 1)
	go c.readLoop(frames, readErr)

	// Handlers outlive the serve context; only the drain deadline ends them.
	work := context.WithoutCancel(ctx)
	var inflight sync.WaitGroup

	reason := "shutdown"
loop:
	for {
		select {
		case <-ctx.Done():
			reason = "context"
			break loop
		case err := <-readErr:
			readErr = nil
			reason = "eof"
			if !errors.Is(err, io.EOF) {
				reason = "read_error"
				r.log.Warn("provider.serve.read_fail", slog.String("err", err.Error()))
			}
			break loop
		case f := <-frames:
			c.handleFrame(work, f, &inflight)
			if r.State() != StateReady {
				break loop
			}
		}
	}

	r.BeginShutdown()
	r.log.Info("provider.shutting_down", slog.String("reason", reason))

	drained := make(chan struct{})
	go func() {
		inflight.Wait()
		close(drained)
	}()
	timer := time.NewTimer(r.drainTimeout)
	defer timer.Stop()

drain:
	for {
		select {
		case <-drained:
			break drain
		case <-timer.C:
			r.log.Warn("provider.drain.timeout", slog.Duration("timeout", r.drainTimeout))
			break drain
		case f := <-frames:
			// Requests arriving now are refused with ShuttingDown.
			c.handleFrame(work, f, &inflight)
		case <-readErr:
			readErr = nil
			frames = nil
		}
	}

	c.abandon()
	r.transition(StateShuttingDown, StateStopped)
	r.log.Info("provider.stopped")
	return nil
}

type conn struct {
	rt   *Runtime
	s    transport.Stream
	log  *slog.Logger
	stop chan struct{}

	wmu     sync.Mutex
	stopped bool
}

func (c *conn) readLoop(frames chan<- []byte, readErr chan<- error) {
	for {
		f, err := c.s.ReadFrame()
		if errors.Is(err, transport.ErrFrameTooLarge) {
			c.log.Warn("provider.frame.too_large")
			continue
		}
		if err != nil {
			readErr <- err
			return
		}
		select {
		case frames <- f:
		case <-c.stop:
			return
		}
	}
}

func (c *conn) handleFrame(ctx context.Context, frame []byte, inflight *sync.WaitGroup) {
	msg, err := jsonrpc.Decode(frame)
	if err != nil {
		c.log.Warn("provider.frame.invalid", slog.String("err", err.Error()))
		c.replyDecodeError(frame, err)
		return
	}

	switch msg.Type() {
	case "notification":
		c.rt.Handle(ctx, msg.AsRequest())
	case "request":
		req := msg.AsRequest()
		if c.rt.State() != StateReady {
			c.write(c.rt.Handle(ctx, req))
			return
		}
		inflight.Add(1)
		go func() {
			defer inflight.Done()
			c.write(c.rt.Handle(ctx, req))
		}()
	default:
		c.log.Debug("provider.frame.unexpected_response", slog.String("id", msg.ID.String()))
	}
}

// replyDecodeError answers an undecodable frame. Requests whose id can still
// be read get InvalidRequest; frames that are not JSON at all get ParseError
// with a null id.
func (c *conn) replyDecodeError(frame []byte, cause error) {
	var probe struct {
		ID     *jsonrpc.RequestID `json:"id"`
		Method string             `json:"method"`
	}
	if err := json.Unmarshal(frame, &probe); err != nil {
		if !json.Valid(frame) {
			c.write(jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeParseError, "parse error", nil))
		}
		return
	}
	if probe.Method == "" || probe.ID.IsNil() {
		return
	}
	msg := "invalid request"
	if errors.Is(cause, jsonrpc.ErrProtocolVersionMismatch) {
		msg = "unsupported jsonrpc version"
	}
	c.write(jsonrpc.NewErrorResponse(probe.ID, jsonrpc.ErrorCodeInvalidRequest, msg, nil))
}

func (c *conn) write(resp *jsonrpc.Response) {
	if resp == nil {
		return
	}
	frame, err := jsonrpc.Encode(resp)
	if err != nil {
		c.log.Error("provider.response.encode_fail", slog.String("err", err.Error()))
		frame, _ = jsonrpc.Encode(jsonrpc.NewErrorResponse(resp.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil))
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.stopped {
		c.log.Debug("provider.response.abandoned", slog.String("id", resp.ID.String()))
		return
	}
	if err := c.s.WriteFrame(frame); err != nil {
		c.log.Warn("provider.response.write_fail", slog.String("err", err.Error()))
	}
}

func (c *conn) abandon() {
	c.wmu.Lock()
	c.stopped = true
	c.wmu.Unlock()
}
