package inspect

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/corelane/agentrun/internal/conversation"
	"github.com/corelane/agentrun/internal/llm"
)

// toolByToolPermissionName is the dedicated classification tool the smart-
// approve classifier forces the fast model to call (§4.6.2). The model
// replies by "invoking" this tool rather than by free text, so the response
// is a structured list of read-only tool names.
const toolByToolPermissionName = "platform__tool_by_tool_permission"

var toolByToolPermissionSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"read_only_tools": map[string]any{
			"type":        "array",
			"items":       map[string]any{"type": "string"},
			"description": "Names of the candidate tools that are safe, side-effect-free reads.",
		},
	},
	"required": []string{"read_only_tools"},
}

// ProviderSmartApproveClassifier implements SmartApproveClassifier against a
// llm.Provider's CompleteFast, per §4.6.2.
type ProviderSmartApproveClassifier struct {
	provider llm.Provider
}

// NewProviderSmartApproveClassifier builds a classifier backed by provider.
func NewProviderSmartApproveClassifier(provider llm.Provider) *ProviderSmartApproveClassifier {
	return &ProviderSmartApproveClassifier{provider: provider}
}

// ClassifyReadOnly asks the fast model which of toolNames are read-only.
func (c *ProviderSmartApproveClassifier) ClassifyReadOnly(toolNames []string) (map[string]bool, error) {
	if len(toolNames) == 0 {
		return nil, nil
	}
	system := "Classify which of the following candidate tool names are read-only " +
		"(no side effects, safe to call without explicit user approval). " +
		"Candidates: " + strings.Join(toolNames, ", ") +
		". Respond only by calling " + toolByToolPermissionName + "."

	req := llm.CompleteRequest{
		System: system,
		Tools: []llm.ToolDefinition{{
			Name:        toolByToolPermissionName,
			Description: "Report which candidate tools are read-only.",
			InputSchema: toolByToolPermissionSchema,
		}},
	}

	msg, _, err := c.provider.CompleteFast(context.Background(), req)
	if err != nil {
		return nil, fmt.Errorf("inspect: smart-approve classification: %w", err)
	}

	result := map[string]bool{}
	for _, part := range msg.Content {
		tr, ok := part.(conversation.ToolRequest)
		if !ok || tr.ToolCall.Call == nil || tr.ToolCall.Call.Name != toolByToolPermissionName {
			continue
		}
		raw, ok := tr.ToolCall.Call.Arguments["read_only_tools"]
		if !ok {
			continue
		}
		for _, name := range toStringSlice(raw) {
			result[name] = true
		}
	}
	return result, nil
}

func toStringSlice(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, e := range vv {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		var out []string
		if err := json.Unmarshal([]byte(vv), &out); err == nil {
			return out
		}
	}
	return nil
}
