package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/syarbeats/mcp-playground/mcp"
)

// ToolHandler runs a tool with arguments that have already passed schema
// validation.
type ToolHandler func(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error)

// Tool pairs a descriptor with its handler.
type Tool struct {
	Descriptor mcp.Tool
	Handler    ToolHandler
}

// ToolOption configures NewTool.
type ToolOption func(*toolConfig)

type toolConfig struct {
	description string
}

// WithToolDescription sets the description shown in tools/list.
func WithToolDescription(desc string) ToolOption {
	return func(c *toolConfig) { c.description = desc }
}

// NewTool builds a Tool whose schema is reflected from A. Validated
// arguments are decoded into A by json tag before fn runs.
func NewTool[A any](name string, fn func(ctx context.Context, args A) (*mcp.CallToolResult, error), opts ...ToolOption) Tool {
	cfg := toolConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	desc := mcp.Tool{
		Name:        name,
		Description: cfg.description,
		InputSchema: reflectInputSchema[A](),
	}

	handler := func(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
		var a A
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:      &a,
			TagName:     "json",
			ErrorUnused: true,
		})
		if err != nil {
			return nil, fmt.Errorf("build decoder for %s: %w", name, err)
		}
		if err := dec.Decode(args); err != nil {
			return nil, InvalidArguments("invalid arguments: %v", err)
		}
		return fn(ctx, a)
	}

	return Tool{Descriptor: desc, Handler: handler}
}

// TextResult wraps s in a single text content block.
func TextResult(s string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.ContentBlock{mcp.TextContent(s)}}
}

// JSONResult renders v as indented JSON inside a single text content block.
func JSONResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return TextResult(string(b)), nil
}
