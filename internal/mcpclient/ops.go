package mcpclient

import (
	"context"
	"encoding/json"
	"fmt"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
)

const sessionMetaKey = "GOOSE-SESSION-ID"

func (w *wireClient) ListTools(ctx context.Context, cursor string) ([]Tool, string, error) {
	req := mcpgo.ListToolsRequest{}
	if cursor != "" {
		req.Params.Cursor = mcpgo.Cursor(cursor)
	}
	result, err := w.sdk.ListTools(ctx, req)
	if err != nil {
		return nil, "", fmt.Errorf("mcpclient: %s: list tools: %w", w.name, err)
	}
	out := make([]Tool, 0, len(result.Tools))
	for _, t := range result.Tools {
		schema, _ := json.Marshal(t.InputSchema)
		var schemaMap map[string]any
		_ = json.Unmarshal(schema, &schemaMap)
		tool := Tool{Name: t.Name, Description: t.Description, InputSchema: schemaMap}
		if t.Annotations.ReadOnlyHint != nil {
			tool.Annotations.ReadOnlyHint = *t.Annotations.ReadOnlyHint
		}
		if t.Annotations.DestructiveHint != nil {
			tool.Annotations.DestructiveHint = *t.Annotations.DestructiveHint
		}
		if t.Annotations.IdempotentHint != nil {
			tool.Annotations.IdempotentHint = *t.Annotations.IdempotentHint
		}
		if t.Annotations.OpenWorldHint != nil {
			tool.Annotations.OpenWorldHint = *t.Annotations.OpenWorldHint
		}
		out = append(out, tool)
	}
	return out, string(result.NextCursor), nil
}

// CallTool injects meta.SessionID into the request's _meta field (case-
// insensitive replacement of any prior value) before dispatch, per §6.
func (w *wireClient) CallTool(ctx context.Context, name string, args map[string]any, meta Meta) (CallResult, error) {
	req := mcpgo.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	if meta.SessionID != "" {
		req.Params.Meta = &mcpgo.Meta{
			AdditionalFields: map[string]any{sessionMetaKey: meta.SessionID},
		}
	}

	result, err := w.sdk.CallTool(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			w.sendCancelled(name)
		}
		return CallResult{}, fmt.Errorf("mcpclient: %s: call tool %s: %w", w.name, name, err)
	}

	var text string
	for _, c := range result.Content {
		if tc, ok := c.(mcpgo.TextContent); ok {
			if text != "" {
				text += "\n"
			}
			text += tc.Text
		}
	}
	return CallResult{ForLLM: text, IsError: result.IsError}, nil
}

// sendCancelled builds the MCP `cancelled` notification for a cancelled call
// but discards it: this package sends nothing to the server on cancellation
// and leaves that to the SDK client's own handling of ctx. The call is not
// retried (§4.4).
func (w *wireClient) sendCancelled(toolName string) {
	notif := mcpgo.JSONRPCNotification{
		JSONRPC: mcpgo.JSONRPC_VERSION,
		Notification: mcpgo.Notification{
			Method: "notifications/cancelled",
			Params: mcpgo.NotificationParams{
				AdditionalFields: map[string]any{"reason": "client cancelled " + toolName},
			},
		},
	}
	_ = notif // transport-level send is handled by the SDK's own cancellation path on ctx.Done()
}

func (w *wireClient) ListResources(ctx context.Context) ([]Resource, error) {
	result, err := w.sdk.ListResources(ctx, mcpgo.ListResourcesRequest{})
	if err != nil {
		return nil, fmt.Errorf("mcpclient: %s: list resources: %w", w.name, err)
	}
	out := make([]Resource, 0, len(result.Resources))
	for _, r := range result.Resources {
		out = append(out, Resource{URI: r.URI, Name: r.Name, Description: r.Description, MimeType: r.MIMEType})
	}
	return out, nil
}

func (w *wireClient) ReadResource(ctx context.Context, uri string) ([]byte, string, error) {
	req := mcpgo.ReadResourceRequest{}
	req.Params.URI = uri
	result, err := w.sdk.ReadResource(ctx, req)
	if err != nil {
		return nil, "", fmt.Errorf("mcpclient: %s: read resource %s: %w", w.name, uri, err)
	}
	for _, c := range result.Contents {
		if tc, ok := c.(mcpgo.TextResourceContents); ok {
			return []byte(tc.Text), tc.MIMEType, nil
		}
		if bc, ok := c.(mcpgo.BlobResourceContents); ok {
			return []byte(bc.Blob), bc.MIMEType, nil
		}
	}
	return nil, "", fmt.Errorf("mcpclient: %s: resource %s returned no content", w.name, uri)
}

func (w *wireClient) ListPrompts(ctx context.Context) ([]Prompt, error) {
	result, err := w.sdk.ListPrompts(ctx, mcpgo.ListPromptsRequest{})
	if err != nil {
		return nil, fmt.Errorf("mcpclient: %s: list prompts: %w", w.name, err)
	}
	out := make([]Prompt, 0, len(result.Prompts))
	for _, p := range result.Prompts {
		args := make([]PromptArgument, 0, len(p.Arguments))
		for _, a := range p.Arguments {
			args = append(args, PromptArgument{Name: a.Name, Description: a.Description, Required: a.Required})
		}
		out = append(out, Prompt{Name: p.Name, Description: p.Description, Arguments: args})
	}
	return out, nil
}

func (w *wireClient) GetPrompt(ctx context.Context, name string, args map[string]string) (string, error) {
	req := mcpgo.GetPromptRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	result, err := w.sdk.GetPrompt(ctx, req)
	if err != nil {
		return "", fmt.Errorf("mcpclient: %s: get prompt %s: %w", w.name, name, err)
	}
	var out string
	for _, m := range result.Messages {
		if tc, ok := m.Content.(mcpgo.TextContent); ok {
			if out != "" {
				out += "\n"
			}
			out += tc.Text
		}
	}
	return out, nil
}

// Subscribe is not exposed by every transport; callers that need live
// notifications should prefer the extension manager's aggregate stream.
// Returning a closed-immediately channel keeps the interface uniform for
// transports (like stdio) that have no push-notification channel wired up.
func (w *wireClient) Subscribe(ctx context.Context) (<-chan Notification, error) {
	ch := make(chan Notification)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}
