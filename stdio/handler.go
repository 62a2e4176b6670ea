package stdio

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/syarbeats/mcp-playground/provider"
	"github.com/syarbeats/mcp-playground/transport"
)

// ErrAlreadyServed is returned when Serve is called more than once.
var ErrAlreadyServed = errors.New("stdio: handler already served")

// Handler is a single-connection stdio server for a provider.Runtime. By
// default it reads os.Stdin and writes os.Stdout.
type Handler struct {
	rt *provider.Runtime
	r  io.Reader
	w  io.Writer
	l  *slog.Logger

	served atomic.Bool
}

// NewHandler constructs a stdio Handler with defaults and applies options.
func NewHandler(rt *provider.Runtime, opts ...Option) *Handler {
	h := &Handler{rt: rt, r: os.Stdin, w: os.Stdout, l: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Serve starts the runtime if needed and answers requests until EOF on the
// reader, a shutdown notification, or ctx cancellation. It may be called at
// most once.
func (h *Handler) Serve(ctx context.Context) error {
	if !h.served.CompareAndSwap(false, true) {
		return ErrAlreadyServed
	}
	if h.rt.State() == provider.StateUninitialized {
		if err := h.rt.Start(); err != nil {
			return err
		}
	}

	var closer io.Closer
	if c, ok := h.w.(io.Closer); ok && h.w != os.Stdout {
		closer = c
	}
	s := transport.NewLineStream(h.r, h.w, closer)
	defer s.Close()

	h.l.Debug("stdio.serve.start")
	err := h.rt.Serve(ctx, s)
	h.l.Debug("stdio.serve.end", slog.String("state", h.rt.State().String()))
	return err
}
