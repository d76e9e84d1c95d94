package extensions

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/corelane/agentrun/internal/mcpclient"
	"github.com/corelane/agentrun/internal/session"
)

// ChatRecallExtension searches and loads summaries from past sessions via
// the session store (§4.5).
type ChatRecallExtension struct {
	store session.Store
}

// searchChatHistoryArgs is search_chat_history's input.
type searchChatHistoryArgs struct {
	Query string `json:"query" jsonschema:"required"`
	Limit int    `json:"limit,omitempty"`
}

// loadSessionSummaryArgs is load_session_summary's input.
type loadSessionSummaryArgs struct {
	SessionID string `json:"session_id" jsonschema:"required"`
}

// NewChatRecallExtension builds the chatrecall platform client backed by
// store.
func NewChatRecallExtension(store session.Store) (*mcpclient.PlatformClient, *ChatRecallExtension) {
	ext := &ChatRecallExtension{store: store}

	tools := []mcpclient.Tool{
		{
			Name:        "search_chat_history",
			Description: "Search prior session conversations for a query and return matching snippets.",
			InputSchema: toolSchema(searchChatHistoryArgs{}),
			Annotations: mcpclient.ToolAnnotations{ReadOnlyHint: true, OpenWorldHint: true},
		},
		{
			Name:        "load_session_summary",
			Description: "Load a brief summary of a prior session by id: name, message count, and the first/last few messages.",
			InputSchema: toolSchema(loadSessionSummaryArgs{}),
			Annotations: mcpclient.ToolAnnotations{ReadOnlyHint: true},
		},
	}

	handlers := map[string]mcpclient.PlatformHandler{
		"search_chat_history":  ext.handleSearch,
		"load_session_summary": ext.handleLoadSummary,
	}

	client, err := mcpclient.NewPlatformClient("chatrecall", tools, handlers)
	if err != nil {
		panic(err)
	}
	return client, ext
}

func (e *ChatRecallExtension) handleSearch(ctx context.Context, args map[string]any, meta mcpclient.Meta) (mcpclient.CallResult, error) {
	query, _ := args["query"].(string)
	limit := 10
	if l, ok := args["limit"].(float64); ok && l > 0 {
		limit = int(l)
	}
	results, err := e.store.SearchChatHistory(ctx, query, session.SearchOptions{Limit: limit, Exclude: []string{meta.SessionID}})
	if err != nil {
		return mcpclient.CallResult{ForLLM: err.Error(), IsError: true}, nil
	}
	var b strings.Builder
	for _, r := range results {
		fmt.Fprintf(&b, "[%s @ %s] %s\n", r.SessionID, r.CreatedAt.Format("2006-01-02"), r.Snippet)
	}
	if b.Len() == 0 {
		return mcpclient.CallResult{ForLLM: "no matches"}, nil
	}
	return mcpclient.CallResult{ForLLM: b.String()}, nil
}

func (e *ChatRecallExtension) handleLoadSummary(ctx context.Context, args map[string]any, meta mcpclient.Meta) (mcpclient.CallResult, error) {
	id, _ := args["session_id"].(string)
	s, err := e.store.GetSession(ctx, id, true)
	if err != nil {
		return mcpclient.CallResult{ForLLM: err.Error(), IsError: true}, nil
	}
	type summary struct {
		Name         string `json:"name"`
		MessageCount int    `json:"message_count"`
		FirstText    string `json:"first_text,omitempty"`
		LastText     string `json:"last_text,omitempty"`
	}
	sum := summary{Name: s.Name, MessageCount: s.MessageCount}
	for _, m := range s.Conversation {
		if t := m.Text(); t != "" {
			sum.FirstText = t
			break
		}
	}
	for i := len(s.Conversation) - 1; i >= 0; i-- {
		if t := s.Conversation[i].Text(); t != "" {
			sum.LastText = t
			break
		}
	}
	out, _ := json.Marshal(sum)
	return mcpclient.CallResult{ForLLM: string(out)}, nil
}
