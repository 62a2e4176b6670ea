// Package mcp holds the protocol vocabulary spoken between the bridge and a
// provider: method names, the initialize handshake, tool and resource
// descriptors and the payloads of tools/call and resources/read.
//
// The types mirror the Model Context Protocol wire representation so that a
// provider built here can be driven by any MCP client, and a Session can talk
// to any MCP server that offers tools and resources. The package carries no
// transport or framing logic; see the transport and internal/jsonrpc packages
// for that.
//
// # Method Names
//
// JSON-RPC method and notification names are enumerated as Method constants
// (e.g. ToolsCallMethod). Using the constants avoids typographical mistakes.
//
// # Tool Input Schemas
//
// ToolInputSchema is a deliberately small subset of JSON Schema: an object
// with typed, optionally enumerated properties and a required list. Providers
// validate call arguments against it before any tool code runs.
package mcp
