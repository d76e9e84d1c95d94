package mcpclient

import (
	"context"
	"fmt"
)

// PlatformHandler is one in-process tool implementation — no wire
// serialization, called directly (§4.4 "in-process platform").
type PlatformHandler func(ctx context.Context, args map[string]any, meta Meta) (CallResult, error)

// PlatformClient is the in-process transport variant used for the
// extension manager's built-in extensions (todo, chatrecall, skills,
// code_execution, extensionmanager).
type PlatformClient struct {
	name      string
	tools     []Tool
	handlers  map[string]PlatformHandler
	resources []Resource
	info      InitializeResult
}

// NewPlatformClient builds an in-process Client backed by handlers keyed by
// tool name; every entry in tools must have a matching handler.
func NewPlatformClient(name string, tools []Tool, handlers map[string]PlatformHandler) (*PlatformClient, error) {
	for _, t := range tools {
		if _, ok := handlers[t.Name]; !ok {
			return nil, fmt.Errorf("mcpclient: platform client %s: no handler for tool %s", name, t.Name)
		}
	}
	return &PlatformClient{
		name:     name,
		tools:    tools,
		handlers: handlers,
		info:     InitializeResult{ServerName: name, ServerVersion: "in-process"},
	}, nil
}

func (p *PlatformClient) ListTools(ctx context.Context, cursor string) ([]Tool, string, error) {
	return p.tools, "", nil
}

func (p *PlatformClient) CallTool(ctx context.Context, name string, args map[string]any, meta Meta) (CallResult, error) {
	h, ok := p.handlers[name]
	if !ok {
		return CallResult{}, fmt.Errorf("mcpclient: platform client %s: unknown tool %s", p.name, name)
	}
	return h(ctx, args, meta)
}

func (p *PlatformClient) ListResources(ctx context.Context) ([]Resource, error) { return p.resources, nil }

func (p *PlatformClient) ReadResource(ctx context.Context, uri string) ([]byte, string, error) {
	return nil, "", fmt.Errorf("mcpclient: platform client %s: resource %s not found", p.name, uri)
}

func (p *PlatformClient) ListPrompts(ctx context.Context) ([]Prompt, error) { return nil, nil }

func (p *PlatformClient) GetPrompt(ctx context.Context, name string, args map[string]string) (string, error) {
	return "", fmt.Errorf("mcpclient: platform client %s: prompt %s not found", p.name, name)
}

func (p *PlatformClient) Subscribe(ctx context.Context) (<-chan Notification, error) {
	ch := make(chan Notification)
	go func() { <-ctx.Done(); close(ch) }()
	return ch, nil
}

func (p *PlatformClient) GetInfo() *InitializeResult { return &p.info }

func (p *PlatformClient) Close() error { return nil }

// SetResources lets a platform extension advertise resources after
// construction (e.g. the extensionmanager extension's optional resource
// tools).
func (p *PlatformClient) SetResources(resources []Resource) { p.resources = resources }
