package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/fatih/color"

	"github.com/syarbeats/mcp-playground/bridge"
	"github.com/syarbeats/mcp-playground/httpapi"
)

// HostCmd serves the REST API over a bridge to the provider.
type HostCmd struct {
	Addr string `help:"Listen address; overrides HOST_ADDR." placeholder:"ADDR"`
}

func (c *HostCmd) Run(ctx context.Context, a *app) error {
	caller, release, err := connectCaller(ctx, a)
	if err != nil {
		return err
	}
	defer release()

	svc := bridge.New(caller, bridge.WithLogger(a.log), bridge.WithCallTimeout(a.cfg.CallTimeout))
	if _, err := svc.GetCapabilities(ctx); err != nil {
		a.log.Warn("host.capabilities.fail", slog.String("err", err.Error()))
	}

	addr := a.cfg.HostAddr
	if c.Addr != "" {
		addr = c.Addr
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           httpapi.New(svc, httpapi.WithLogger(a.log)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if !a.json {
		st := svc.GetStatus(ctx)
		green := color.New(color.FgGreen)
		mode := color.New(color.FgCyan)
		if st.Mode == "mock" {
			mode = color.New(color.FgYellow)
		}
		green.Fprint(a.out, "▶ ")
		a.printf("HTTP:  %s\n", addr)
		green.Fprint(a.out, "▶ ")
		a.printf("Mode:  ")
		mode.Fprintln(a.out, st.Mode)
	}
	a.log.Info("host.listen", slog.String("addr", addr), slog.String("mode", caller.Mode()))
	return listenAndServe(ctx, srv, a)
}
