package mcpclient

import (
	"context"
	"testing"
)

func TestPlatformClientDispatch(t *testing.T) {
	pc, err := NewPlatformClient("todo", []Tool{{Name: "todo_write"}}, map[string]PlatformHandler{
		"todo_write": func(ctx context.Context, args map[string]any, meta Meta) (CallResult, error) {
			return CallResult{ForLLM: "ok"}, nil
		},
	})
	if err != nil {
		t.Fatalf("NewPlatformClient: %v", err)
	}
	res, err := pc.CallTool(context.Background(), "todo_write", nil, Meta{SessionID: "s1"})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if res.ForLLM != "ok" {
		t.Fatalf("expected ok, got %q", res.ForLLM)
	}
}

func TestNewPlatformClientMissingHandler(t *testing.T) {
	_, err := NewPlatformClient("todo", []Tool{{Name: "todo_write"}}, map[string]PlatformHandler{})
	if err == nil {
		t.Fatal("expected error for missing handler")
	}
}
