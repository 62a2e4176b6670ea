// Package websocket carries JSON-RPC frames over websocket messages using
// gobwas/ws. Each text or binary message is exactly one frame.
package websocket

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/syarbeats/mcp-playground/internal/jsonrpc"
	"github.com/syarbeats/mcp-playground/transport"
)

// Dial returns a Dialer that connects to a ws:// or wss:// URL.
func Dial(url string) transport.Dialer {
	return func(ctx context.Context) (transport.Stream, error) {
		conn, br, _, err := ws.Dial(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("websocket: dial %s: %w", url, err)
		}
		return newStream(conn, br, ws.StateClientSide), nil
	}
}

// Handler upgrades each HTTP request to a websocket and passes the resulting
// stream to serve. serve owns the stream and runs on the request goroutine.
func Handler(serve func(ctx context.Context, s transport.Stream), log *slog.Logger) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, br, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			// UpgradeHTTP has already written the error response.
			log.WarnContext(r.Context(), "websocket.upgrade.fail", slog.String("err", err.Error()))
			return
		}
		s := newStream(conn, br, ws.StateServerSide)
		defer s.Close()
		serve(context.WithoutCancel(r.Context()), s)
	})
}

type stream struct {
	conn  net.Conn
	r     io.Reader
	state ws.State

	wmu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

func newStream(conn net.Conn, br *bufio.Reader, state ws.State) *stream {
	s := &stream{conn: conn, r: conn, state: state}
	if br != nil {
		// br holds bytes the peer sent right after the handshake and reads
		// through to conn once drained.
		s.r = br
	}
	return s
}

// ReadFrame returns the next text or binary message. Control frames are
// answered inline. A message over jsonrpc.MaxFrameSize is discarded without
// being buffered and reported as transport.ErrFrameTooLarge.
func (s *stream) ReadFrame() ([]byte, error) {
	control := wsutil.ControlFrameHandler(lockedWriter{s}, s.state)
	rd := &wsutil.Reader{
		Source:         s.r,
		State:          s.state,
		CheckUTF8:      true,
		OnIntermediate: control,
	}
	for {
		hdr, err := rd.NextFrame()
		if err != nil {
			return nil, readError(err)
		}
		if hdr.OpCode.IsControl() {
			if err := control(hdr, rd); err != nil {
				return nil, readError(err)
			}
			continue
		}
		if hdr.OpCode != ws.OpText && hdr.OpCode != ws.OpBinary {
			if err := rd.Discard(); err != nil {
				return nil, readError(err)
			}
			continue
		}
		msg, err := io.ReadAll(io.LimitReader(rd, jsonrpc.MaxFrameSize+1))
		if err != nil {
			return nil, readError(err)
		}
		if len(msg) > jsonrpc.MaxFrameSize {
			if err := rd.Discard(); err != nil {
				return nil, readError(err)
			}
			return nil, transport.ErrFrameTooLarge
		}
		return msg, nil
	}
}

// readError maps the ways a websocket ends onto io.EOF.
func readError(err error) error {
	var closed wsutil.ClosedError
	if errors.As(err, &closed) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return io.EOF
	}
	return err
}

func (s *stream) WriteFrame(frame []byte) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return wsutil.WriteMessage(s.conn, s.state, ws.OpText, frame)
}

func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		s.wmu.Lock()
		body := ws.NewCloseFrameBody(ws.StatusNormalClosure, "")
		_ = wsutil.WriteMessage(s.conn, s.state, ws.OpClose, body)
		s.wmu.Unlock()
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

// lockedWriter serializes control-frame replies written by wsutil readers
// with data frames written by WriteFrame.
type lockedWriter struct{ s *stream }

func (w lockedWriter) Write(p []byte) (int, error) {
	w.s.wmu.Lock()
	defer w.s.wmu.Unlock()
	return w.s.conn.Write(p)
}
