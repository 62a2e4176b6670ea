// Command mcp-playground runs the task provider, the HTTP host that bridges
// to it, and one-shot client commands against either.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/syarbeats/mcp-playground/config"
	"github.com/syarbeats/mcp-playground/internal/logctx"
)

var version = "dev"

// Globals are flags shared by every subcommand.
type Globals struct {
	Config string `help:"YAML config file; environment variables override it." type:"path" env:"MCP_CONFIG"`
	JSON   bool   `help:"Print raw JSON instead of formatted output."`
}

// CLI is the kong command tree.
type CLI struct {
	Globals

	Provider ProviderCmd `cmd:"" help:"Run the task provider on stdio or a websocket listener."`
	Host     HostCmd     `cmd:"" help:"Run the HTTP host bridged to a provider."`
	Call     CallCmd     `cmd:"" help:"Call one provider tool and print the result."`
	Read     ReadCmd     `cmd:"" help:"Read one provider resource."`
	Status   StatusCmd   `cmd:"" help:"Connect to the provider and list its capabilities."`
	Version  VersionCmd  `cmd:"" help:"Show version information."`
}

// app carries what every subcommand needs after flags are parsed.
type app struct {
	cfg  *config.Config
	log  *slog.Logger
	json bool
	out  io.Writer
}

func newApp(g Globals) (*app, error) {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return nil, err
	}
	lvl, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	// stdout may be the protocol stream, so logs always go to stderr.
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return &app{
		cfg:  cfg,
		log:  slog.New(logctx.New(h)),
		json: g.JSON,
		out:  os.Stdout,
	}, nil
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("mcp-playground"),
		kong.Description("Task manager provider and HTTP bridge speaking MCP-style JSON-RPC."),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cli.Globals)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	kctx.BindTo(ctx, (*context.Context)(nil))
	if err := kctx.Run(a); err != nil {
		a.log.Error("command.fail", slog.String("command", kctx.Command()), slog.String("err", err.Error()))
		os.Exit(1)
	}
}

// VersionCmd prints the build version.
type VersionCmd struct{}

func (c *VersionCmd) Run(a *app) error {
	fmt.Fprintf(a.out, "mcp-playground %s\n", version)
	return nil
}
