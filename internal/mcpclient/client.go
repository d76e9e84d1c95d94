// Package mcpclient is the MCP client abstraction (C4): a uniform
// tool/prompt/resource interface over stdio, streamable-HTTP, and
// in-process platform transports, built on github.com/mark3labs/mcp-go.
package mcpclient

import (
	"context"
	"encoding/json"
)

// Meta is the opaque per-call metadata every transport must thread through
// to the wire protocol's `_meta` field so downstream servers can associate
// calls with a session (§4.4, §6: `_meta.GOOSE-SESSION-ID`).
type Meta struct {
	SessionID string
}

// Tool is a schema-typed function exposed by a client.
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]any
	Annotations ToolAnnotations
	Meta        json.RawMessage
}

// ToolAnnotations are behavior hints consulted by the permission inspector.
type ToolAnnotations struct {
	ReadOnlyHint    bool
	DestructiveHint bool
	IdempotentHint  bool
	OpenWorldHint   bool
}

// CallResult is the outcome of a tool invocation.
type CallResult struct {
	ForLLM  string
	IsError bool
	Async   bool
}

// Notification is an out-of-band MCP notification (progress, logging)
// surfaced while a tool call is in flight.
type Notification struct {
	Method  string
	Payload json.RawMessage
}

// Resource is an MCP resource descriptor.
type Resource struct {
	URI         string
	Name        string
	Description string
	MimeType    string
}

// Prompt is an MCP prompt template descriptor.
type Prompt struct {
	Name        string
	Description string
	Arguments   []PromptArgument
}

type PromptArgument struct {
	Name        string
	Description string
	Required    bool
}

// InitializeResult is the handshake response, when the client has one.
type InitializeResult struct {
	ServerName    string
	ServerVersion string
	Instructions  string
}

// Client is the uniform interface every MCP transport variant implements
// (§4.4). CallTool takes a cancellable context and is not retried on
// cancellation; connection-level retry is out of scope at this layer. No
// implementation in this package sends the MCP `cancelled` notification
// itself (see wireClient.sendCancelled).
type Client interface {
	ListTools(ctx context.Context, cursor string) (tools []Tool, nextCursor string, err error)
	CallTool(ctx context.Context, name string, args map[string]any, meta Meta) (CallResult, error)

	ListResources(ctx context.Context) ([]Resource, error)
	ReadResource(ctx context.Context, uri string) ([]byte, string, error)

	ListPrompts(ctx context.Context) ([]Prompt, error)
	GetPrompt(ctx context.Context, name string, args map[string]string) (string, error)

	// Subscribe returns a channel of out-of-band notifications for the
	// lifetime of ctx; the channel closes when ctx is done or the
	// transport closes.
	Subscribe(ctx context.Context) (<-chan Notification, error)

	GetInfo() *InitializeResult

	Close() error
}
