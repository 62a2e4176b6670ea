package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/syarbeats/mcp-playground/provider"
	"github.com/syarbeats/mcp-playground/stdio"
	"github.com/syarbeats/mcp-playground/taskprovider"
	"github.com/syarbeats/mcp-playground/taskstore"
	"github.com/syarbeats/mcp-playground/transport"
	"github.com/syarbeats/mcp-playground/transport/websocket"
)

// ProviderCmd serves the task provider.
type ProviderCmd struct {
	Listen string `help:"Serve websocket connections on this address instead of stdio." placeholder:"ADDR"`
	Path   string `help:"HTTP path of the websocket endpoint." default:"/mcp"`
}

func (c *ProviderCmd) Run(ctx context.Context, a *app) error {
	store, err := openStore(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("open task store: %w", err)
	}
	defer store.Close()

	opts := []provider.Option{provider.WithLogger(a.log), provider.WithDrainTimeout(a.cfg.GracePeriod)}
	if c.Listen == "" {
		rt, err := taskprovider.New(store, opts...)
		if err != nil {
			return err
		}
		return stdio.NewHandler(rt, stdio.WithLogger(a.log)).Serve(ctx)
	}
	return c.serveWebsocket(ctx, a, store, opts)
}

// serveWebsocket gives every connection its own runtime over the shared
// store, since a runtime serves exactly one stream.
func (c *ProviderCmd) serveWebsocket(ctx context.Context, a *app, store taskstore.Store, opts []provider.Option) error {
	serve := func(ctx context.Context, s transport.Stream) {
		rt, err := taskprovider.New(store, opts...)
		if err != nil {
			a.log.ErrorContext(ctx, "provider.build.fail", slog.String("err", err.Error()))
			return
		}
		if err := rt.Serve(ctx, s); err != nil {
			a.log.WarnContext(ctx, "provider.serve.fail", slog.String("err", err.Error()))
		}
	}

	mux := http.NewServeMux()
	mux.Handle(c.Path, websocket.Handler(serve, a.log))
	srv := &http.Server{Addr: c.Listen, Handler: mux}
	a.log.Info("provider.listen", slog.String("addr", c.Listen), slog.String("path", c.Path))
	return listenAndServe(ctx, srv, a)
}

// listenAndServe runs srv until ctx is done, then shuts it down within the
// configured grace period.
func listenAndServe(ctx context.Context, srv *http.Server, a *app) error {
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.GracePeriod)
	defer cancel()
	a.log.Info("http.shutdown", slog.String("addr", srv.Addr))
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
