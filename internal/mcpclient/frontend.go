package mcpclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrFrontendPending is returned by FrontendClient.CallTool: the call has
// been converted into a pending FrontendToolRequest awaiting a UI-provided
// response, rather than completed synchronously (§4.4 "frontend-hosted").
var ErrFrontendPending = errors.New("mcpclient: call routed to frontend, awaiting response")

// FrontendClient is the frontend-hosted transport variant: its tool catalog
// is registered with the agent, but CallTool never executes anything itself
// — it records a pending request and returns ErrFrontendPending so the
// caller (the agent reply loop) can surface a FrontendToolRequest to the UI
// and later resolve it via Resolve.
type FrontendClient struct {
	mu      sync.Mutex
	tools   []Tool
	pending map[string]chan CallResult
}

// NewFrontendClient registers tools whose implementation lives in the UI.
func NewFrontendClient(tools []Tool) *FrontendClient {
	return &FrontendClient{tools: tools, pending: map[string]chan CallResult{}}
}

func (f *FrontendClient) ListTools(ctx context.Context, cursor string) ([]Tool, string, error) {
	return f.tools, "", nil
}

// CallTool executes nothing and registers nothing: it returns
// ErrFrontendPending at once. The caller registers the pending request under
// its own request id with Await and completes it with Resolve.
func (f *FrontendClient) CallTool(ctx context.Context, name string, args map[string]any, meta Meta) (CallResult, error) {
	return CallResult{}, ErrFrontendPending
}

// Await registers requestID as pending and blocks until Resolve(requestID,
// …) is called or ctx is cancelled.
func (f *FrontendClient) Await(ctx context.Context, requestID string) (CallResult, error) {
	ch := make(chan CallResult, 1)
	f.mu.Lock()
	f.pending[requestID] = ch
	f.mu.Unlock()

	select {
	case res := <-ch:
		return res, nil
	case <-ctx.Done():
		f.mu.Lock()
		delete(f.pending, requestID)
		f.mu.Unlock()
		return CallResult{IsError: true, ForLLM: "cancelled"}, ctx.Err()
	}
}

// Resolve delivers a UI-provided response to the waiter registered under
// requestID, if any.
func (f *FrontendClient) Resolve(requestID string, result CallResult) error {
	f.mu.Lock()
	ch, ok := f.pending[requestID]
	delete(f.pending, requestID)
	f.mu.Unlock()
	if !ok {
		return fmt.Errorf("mcpclient: frontend client: no pending request %s", requestID)
	}
	ch <- result
	return nil
}

func (f *FrontendClient) ListResources(ctx context.Context) ([]Resource, error) { return nil, nil }

func (f *FrontendClient) ReadResource(ctx context.Context, uri string) ([]byte, string, error) {
	return nil, "", fmt.Errorf("mcpclient: frontend client: resources not supported")
}

func (f *FrontendClient) ListPrompts(ctx context.Context) ([]Prompt, error) { return nil, nil }

func (f *FrontendClient) GetPrompt(ctx context.Context, name string, args map[string]string) (string, error) {
	return "", fmt.Errorf("mcpclient: frontend client: prompts not supported")
}

func (f *FrontendClient) Subscribe(ctx context.Context) (<-chan Notification, error) {
	ch := make(chan Notification)
	go func() { <-ctx.Done(); close(ch) }()
	return ch, nil
}

func (f *FrontendClient) GetInfo() *InitializeResult { return nil }

func (f *FrontendClient) Close() error { return nil }
