package extensions

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/corelane/agentrun/internal/mcpclient"
)

const defaultTodoMaxChars = 20000

// TodoMaxChars reads GOOSE_TODO_MAX_CHARS (§6 environment contract),
// defaulting to 20000 characters.
func TodoMaxChars() int {
	if v := os.Getenv("GOOSE_TODO_MAX_CHARS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return defaultTodoMaxChars
}

// TodoExtension is the agent-visible scratchpad platform extension: a single
// overwrite-only `todo_write` tool, per-session state, and a MOIM
// contributor that surfaces the current TODO text.
type TodoExtension struct {
	mu      sync.RWMutex
	state   map[string]string // session id -> todo text
	maxChars int
}

// todoWriteArgs is todo_write's input, reflected into a JSON schema rather
// than hand-written (§4.3 extended).
type todoWriteArgs struct {
	Content string `json:"content" jsonschema:"required,description=Full TODO list text, replacing any prior content."`
}

// NewTodoExtension builds the todo platform client.
func NewTodoExtension() (*mcpclient.PlatformClient, *TodoExtension) {
	ext := &TodoExtension{state: map[string]string{}, maxChars: TodoMaxChars()}

	tools := []mcpclient.Tool{
		{
			Name:        "todo_write",
			Description: "Overwrite the session's TODO list with the given text. This replaces the entire list; it is not an append.",
			InputSchema: toolSchema(todoWriteArgs{}),
			Annotations: mcpclient.ToolAnnotations{IdempotentHint: true},
		},
	}

	handlers := map[string]mcpclient.PlatformHandler{
		"todo_write": ext.handleWrite,
	}

	client, err := mcpclient.NewPlatformClient("todo", tools, handlers)
	if err != nil {
		panic(err) // programmer error: tools/handlers must stay in sync
	}
	return client, ext
}

func (e *TodoExtension) handleWrite(ctx context.Context, args map[string]any, meta mcpclient.Meta) (mcpclient.CallResult, error) {
	content, _ := args["content"].(string)
	if len(content) > e.maxChars {
		content = content[:e.maxChars]
	}
	e.mu.Lock()
	e.state[meta.SessionID] = content
	e.mu.Unlock()
	return mcpclient.CallResult{ForLLM: "todo list updated"}, nil
}

// GetMoim implements MoimContributor: the current TODO text for sessionID,
// wrapped so it reads naturally inside the <info-msg> block.
func (e *TodoExtension) GetMoim(sessionID string) string {
	e.mu.RLock()
	todo := e.state[sessionID]
	e.mu.RUnlock()
	if strings.TrimSpace(todo) == "" {
		return ""
	}
	return fmt.Sprintf("current TODO list:\n%s", todo)
}

// Current returns the raw TODO text for sessionID, used by tests and by
// session export.
func (e *TodoExtension) Current(sessionID string) string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state[sessionID]
}
