package conversation

import "testing"

func TestMergeConsecutiveMessages(t *testing.T) {
	c := Conversation{
		NewMessage(RoleUser, Text{Text: "hello"}),
		NewMessage(RoleUser, Text{Text: "world"}),
		NewMessage(RoleAssistant, Text{Text: "hi"}),
	}
	merged, issues := MergeConsecutiveMessages(c)
	if len(merged) != 2 {
		t.Fatalf("expected 2 messages after merge, got %d", len(merged))
	}
	if !IsMergeOnly(issues) {
		t.Fatalf("expected only merge issues, got %+v", issues)
	}
	if len(merged[0].Content) != 2 {
		t.Fatalf("expected merged content to have 2 parts, got %d", len(merged[0].Content))
	}
}

func TestFixConversationDropsOrphanResponse(t *testing.T) {
	c := Conversation{
		NewMessage(RoleUser, Text{Text: "go"}),
		NewMessage(RoleAssistant, ToolResponse{ID: "missing", ToolResult: ToolResultOutcome{Result: &ToolResult{ForLLM: "x"}}}),
	}
	fixed, issues := FixConversation(c)
	found := false
	for _, iss := range issues {
		if iss.Kind == IssueDroppedOrphanResponse {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a dropped orphan response issue, got %+v", issues)
	}
	if len(fixed[1].Content) != 0 {
		t.Fatalf("expected orphan response to be dropped from content")
	}
}

func TestFixConversationDetectsUnansweredRequest(t *testing.T) {
	c := Conversation{
		NewMessage(RoleUser, Text{Text: "go"}),
		NewMessage(RoleAssistant, ToolRequest{ID: "1", ToolCall: ToolCallResult{Call: &ToolCall{Name: "fs__read"}}}),
		NewMessage(RoleAssistant, Text{Text: "done"}),
	}
	_, issues := FixConversation(c)
	found := false
	for _, iss := range issues {
		if iss.Kind == IssueUnansweredRequest {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an unanswered request issue, got %+v", issues)
	}
}

func TestIsSilentReply(t *testing.T) {
	cases := map[string]bool{
		"NO_REPLY":         true,
		"NO_REPLY.":        true,
		"NO_REPLYing":      false,
		"":                 false,
		"hello":            false,
	}
	for in, want := range cases {
		if got := IsSilentReply(in); got != want {
			t.Errorf("IsSilentReply(%q) = %v, want %v", in, got, want)
		}
	}
}
