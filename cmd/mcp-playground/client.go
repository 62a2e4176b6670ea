package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fatih/color"

	"github.com/syarbeats/mcp-playground/client"
)

// CallCmd calls one tool.
type CallCmd struct {
	Tool string `arg:"" help:"Tool name, e.g. create_task."`
	Args string `help:"Tool arguments as a JSON object." default:"{}"`
}

func (c *CallCmd) Run(ctx context.Context, a *app) error {
	var args map[string]any
	if err := json.Unmarshal([]byte(c.Args), &args); err != nil {
		return fmt.Errorf("--args must be a JSON object: %w", err)
	}
	caller, release, err := connectCaller(ctx, a)
	if err != nil {
		return err
	}
	defer release()

	res, err := caller.CallTool(ctx, c.Tool, args, a.cfg.CallTimeout)
	if err != nil {
		return describe(err)
	}
	if a.json {
		return a.writeJSON(res)
	}
	if res.IsError {
		color.New(color.FgRed).Fprintf(a.out, "✗ %s failed\n", c.Tool)
	} else {
		color.New(color.FgGreen).Fprintf(a.out, "✓ %s\n", c.Tool)
	}
	for _, block := range res.Content {
		a.printText(block.Text)
	}
	return nil
}

// ReadCmd reads one resource.
type ReadCmd struct {
	URI string `arg:"" help:"Resource URI, e.g. tasks://all or task://{id}."`
}

func (c *ReadCmd) Run(ctx context.Context, a *app) error {
	caller, release, err := connectCaller(ctx, a)
	if err != nil {
		return err
	}
	defer release()

	res, err := caller.ReadResource(ctx, c.URI)
	if err != nil {
		return describe(err)
	}
	if a.json {
		return a.writeJSON(res)
	}
	for _, rc := range res.Contents {
		color.New(color.FgCyan).Fprintf(a.out, "%s", rc.URI)
		color.New(color.FgHiBlack).Fprintf(a.out, " (%s)\n", rc.MimeType)
		a.printText(rc.Text)
	}
	return nil
}

// StatusCmd connects and lists the provider's capabilities.
type StatusCmd struct{}

func (c *StatusCmd) Run(ctx context.Context, a *app) error {
	caller, release, err := connectCaller(ctx, a)
	if err != nil {
		return err
	}
	defer release()

	caps, err := caller.ListCapabilities(ctx)
	if err != nil {
		return describe(err)
	}
	if a.json {
		return a.writeJSON(map[string]any{
			"mode":         caller.Mode(),
			"connected":    caller.Connected(),
			"capabilities": caps,
		})
	}

	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	green := color.New(color.FgGreen)

	cyan.Fprintf(a.out, "%s %s", caps.ServerInfo.Name, caps.ServerInfo.Version)
	gray.Fprintf(a.out, " [%s]\n", caller.Mode())
	a.section("Tools", len(caps.Tools))
	for _, t := range caps.Tools {
		green.Fprintf(a.out, "  %-18s", t.Name)
		gray.Fprintln(a.out, t.Description)
	}
	a.section("Resources", len(caps.Resources))
	for _, r := range caps.Resources {
		green.Fprintf(a.out, "  %-24s", r.URI)
		gray.Fprintln(a.out, r.Name)
	}
	a.section("Templates", len(caps.ResourceTemplates))
	for _, t := range caps.ResourceTemplates {
		green.Fprintf(a.out, "  %-24s", t.URITemplate)
		gray.Fprintln(a.out, t.Name)
	}
	return nil
}

// describe turns typed client errors into short operator-facing messages.
func describe(err error) error {
	switch {
	case client.IsUnknownTool(err):
		return fmt.Errorf("no such tool: %w", err)
	case client.IsUnknownResource(err):
		return fmt.Errorf("no such resource: %w", err)
	case client.IsInvalidArguments(err):
		return fmt.Errorf("invalid arguments: %w", err)
	case client.IsNotFound(err):
		return fmt.Errorf("not found: %w", err)
	}
	return err
}
