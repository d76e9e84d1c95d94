package conversation

import "fmt"

// Issue is a note produced by FixConversation. The two merge issues
// (IssueMergedConsecutive) are the only ones a repair caller may observe
// silently; any other issue means the caller should abort the repair.
type Issue struct {
	Kind    IssueKind
	Detail  string
}

type IssueKind string

const (
	// IssueMergedConsecutive records that two consecutive same-role
	// messages were merged. Silently allowed.
	IssueMergedConsecutive IssueKind = "merged_consecutive"
	// IssueDroppedOrphanResponse records a ToolResponse with no matching
	// ToolRequest id.
	IssueDroppedOrphanResponse IssueKind = "dropped_orphan_response"
	// IssueUnansweredRequest records a ToolRequest with no ToolResponse
	// before the next assistant message.
	IssueUnansweredRequest IssueKind = "unanswered_request"
)

// IsMergeOnly reports whether every issue in issues is a merge note — the
// only kind a caller may ignore.
func IsMergeOnly(issues []Issue) bool {
	for _, i := range issues {
		if i.Kind != IssueMergedConsecutive {
			return false
		}
	}
	return true
}

// FixConversation repairs a raw message sequence (§4.1):
//   - merges consecutive same-role messages by concatenating content parts
//     in order (recorded as IssueMergedConsecutive, always allowed);
//   - drops stray ToolResponse entries with no matching ToolRequest id
//     (IssueDroppedOrphanResponse);
//   - checks that every non-frontend ToolRequest is answered before the next
//     assistant message with disjoint content (IssueUnansweredRequest,
//     reported but not auto-repaired — the caller decides how to handle it).
func FixConversation(c Conversation) (Conversation, []Issue) {
	merged, issues := mergeConsecutive(c)
	repaired, moreIssues := repairToolPairing(merged)
	issues = append(issues, moreIssues...)
	return repaired, issues
}

// MergeConsecutiveMessages is the pure merge step of FixConversation,
// exposed on its own for callers that need only the merge.
func MergeConsecutiveMessages(c Conversation) (Conversation, []Issue) {
	return mergeConsecutive(c)
}

func mergeConsecutive(c Conversation) (Conversation, []Issue) {
	if len(c) == 0 {
		return c, nil
	}
	out := make(Conversation, 0, len(c))
	var issues []Issue
	out = append(out, c[0])
	for _, m := range c[1:] {
		last := &out[len(out)-1]
		if last.Role == m.Role && sameVisibility(last.Metadata, m.Metadata) {
			last.Content = append(last.Content, m.Content...)
			issues = append(issues, Issue{Kind: IssueMergedConsecutive,
				Detail: fmt.Sprintf("merged %s into %s", m.ID, last.ID)})
			continue
		}
		out = append(out, m)
	}
	return out, issues
}

func sameVisibility(a, b Metadata) bool {
	return boolOr(a.AgentVisible, true) == boolOr(b.AgentVisible, true) &&
		boolOr(a.UserVisible, true) == boolOr(b.UserVisible, true)
}

// repairToolPairing drops orphan ToolResponses (no matching ToolRequest
// anywhere earlier) and reports — without mutating — any ToolRequest left
// unanswered before the next assistant message with disjoint content,
// mirroring loop_history.go's sanitizeHistory.
func repairToolPairing(c Conversation) (Conversation, []Issue) {
	var issues []Issue
	seenRequests := map[string]bool{}
	answered := map[string]bool{}

	// First pass: collect every request id that exists anywhere.
	for _, m := range c {
		for _, id := range m.ToolRequestIDs() {
			seenRequests[id] = true
		}
	}

	out := make(Conversation, 0, len(c))
	pendingFromPrevAssistant := map[string]bool{}

	for _, m := range c {
		if m.Role == RoleAssistant {
			for id := range pendingFromPrevAssistant {
				if !answered[id] {
					issues = append(issues, Issue{Kind: IssueUnansweredRequest,
						Detail: fmt.Sprintf("tool request %s unanswered before next assistant message", id)})
				}
			}
			pendingFromPrevAssistant = map[string]bool{}
			for _, id := range m.ToolRequestIDs() {
				pendingFromPrevAssistant[id] = true
			}
		}

		keptParts := make([]ContentPart, 0, len(m.Content))
		for _, p := range m.Content {
			if tr, ok := p.(ToolResponse); ok {
				if !seenRequests[tr.ID] {
					issues = append(issues, Issue{Kind: IssueDroppedOrphanResponse,
						Detail: fmt.Sprintf("tool response %s has no matching request", tr.ID)})
					continue
				}
				answered[tr.ID] = true
				delete(pendingFromPrevAssistant, tr.ID)
			}
			keptParts = append(keptParts, p)
		}
		m.Content = keptParts
		out = append(out, m)
	}

	for id := range pendingFromPrevAssistant {
		if !answered[id] {
			issues = append(issues, Issue{Kind: IssueUnansweredRequest,
				Detail: fmt.Sprintf("tool request %s unanswered at end of conversation", id)})
		}
	}

	return out, issues
}
