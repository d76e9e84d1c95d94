// Package contextmgr is the context manager (C7): threshold detection of
// context-limit pressure and compaction (summarization) of agent-visible
// conversation history (§4.7).
package contextmgr

import (
	"context"
	"fmt"

	"github.com/corelane/agentrun/internal/conversation"
	"github.com/corelane/agentrun/internal/llm"
	"github.com/corelane/agentrun/internal/session"
)

// DefaultThreshold is the default compaction ratio (§4.7).
const DefaultThreshold = 0.8

// windowStages are the progressively larger middle-of-window trims applied
// when a compaction call itself overflows the context (§4.7 step 3): 0%,
// 10%, 20%, 50%, 100% of tool-response messages removed from the middle.
var windowStages = []float64{0.0, 0.10, 0.20, 0.50, 1.0}

// Estimator estimates the token cost of agent-visible history when the
// session has no authoritative total from the provider yet.
type Estimator interface {
	EstimateTokens(messages conversation.Conversation) int
}

// CheckIfCompactionNeeded computes tokens/context_limit > threshold (§4.7).
// threshold<=0 or >=1 disables auto-compaction. Tokens come from
// sess.Tokens.CurrentTotal when non-zero, else from estimator.
func CheckIfCompactionNeeded(provider llm.Provider, conv conversation.Conversation, threshold float64, sess *session.Session, estimator Estimator) bool {
	if threshold <= 0 || threshold >= 1 {
		return false
	}
	limit := provider.GetModelConfig().ContextLimit
	if limit <= 0 {
		return false
	}

	var tokens int
	if sess != nil && sess.Tokens.CurrentTotal > 0 {
		tokens = int(sess.Tokens.CurrentTotal)
	} else {
		tokens = estimator.EstimateTokens(conv.AgentVisible())
	}

	return float64(tokens)/float64(limit) > threshold
}

// continuationInstructionTexts are the three fixed continuation-instruction
// assistant texts appended after a compaction summary (§4.7 step 4): manual,
// tool-loop, and conversation-continuation. All three are always appended as
// a single message (one Text part per text) so the model sees each framing.
var continuationInstructionTexts = []string{
	"This conversation was summarized to stay within the context window. Continue exactly as before without mentioning the summary or that compaction occurred.",
	"If you had any tool calls in flight, treat them as complete; do not re-issue the same tool call unless the summary shows it failed.",
	"Proceed with the user's most recent request using the summarized context above as ground truth.",
}

// Compact runs CompactMessages(manual=false). Convenience wrapper used from
// the reply loop's context-pressure step (§4.8 step 8).
func Compact(ctx context.Context, provider llm.Provider, conv conversation.Conversation) (conversation.Conversation, llm.Usage, error) {
	return CompactMessages(ctx, provider, conv, false)
}

// CompactMessages implements §4.7's compaction algorithm.
func CompactMessages(ctx context.Context, provider llm.Provider, conv conversation.Conversation, manual bool) (conversation.Conversation, llm.Usage, error) {
	window := conv.AgentVisible()

	var preserved *conversation.Message
	if !manual {
		if idx := mostRecentTextOnlyUserIndex(window); idx >= 0 && idx == len(window)-1 {
			m := window[idx]
			preserved = &m
		}
	}

	var (
		summaryMsg conversation.Message
		usage      llm.Usage
		lastErr    error
	)

	for _, trimFraction := range windowStages {
		trimmed := trimMiddleToolResponses(window, trimFraction)
		system := summarizationSystemPrompt(manual)
		req := llm.CompleteRequest{System: system, History: trimmed}

		msg, u, err := provider.Complete(ctx, req)
		if err == nil {
			summaryMsg, usage, lastErr = msg, u, nil
			break
		}
		lastErr = err
		if !llm.IsContextLengthExceeded(err) {
			return nil, llm.Usage{}, fmt.Errorf("contextmgr: compaction call failed: %w", err)
		}
		// else retry with the next, more aggressively trimmed stage.
	}
	if lastErr != nil {
		return nil, llm.Usage{}, fmt.Errorf("contextmgr: compaction failed even at maximum trim: %w", lastErr)
	}

	out := make(conversation.Conversation, 0, len(conv)+3)
	for _, m := range conv {
		m.Metadata.AgentVisible = boolPtr(false)
		m.Metadata.UserVisible = boolPtr(true)
		out = append(out, m)
	}

	summary := conversation.NewMessage(conversation.RoleAssistant, conversation.Text{Text: summaryMsg.Text()}).
		WithMetadata(conversation.AgentOnly())
	out = append(out, summary)

	var instrParts []conversation.ContentPart
	for _, t := range continuationInstructionTexts {
		instrParts = append(instrParts, conversation.Text{Text: t})
	}
	out = append(out, conversation.NewMessage(conversation.RoleAssistant, instrParts...).WithMetadata(conversation.AgentOnly()))

	if preserved != nil {
		fresh := conversation.NewMessage(conversation.RoleUser, preserved.Content...)
		out = append(out, fresh)
	}

	return out, usage, nil
}

func boolPtr(b bool) *bool { return &b }

func mostRecentTextOnlyUserIndex(c conversation.Conversation) int {
	for i := len(c) - 1; i >= 0; i-- {
		if c[i].Role != conversation.RoleUser {
			continue
		}
		if isTextOnly(c[i]) {
			return i
		}
		return -1
	}
	return -1
}

func isTextOnly(m conversation.Message) bool {
	for _, p := range m.Content {
		if _, ok := p.(conversation.Text); !ok {
			return false
		}
	}
	return len(m.Content) > 0
}

// trimMiddleToolResponses removes fraction of the tool-response messages
// found in the middle third of window, per §4.7 step 3's shrinking-window
// retry.
func trimMiddleToolResponses(window conversation.Conversation, fraction float64) conversation.Conversation {
	if fraction <= 0 {
		return window
	}
	var toolIdx []int
	for i, m := range window {
		if len(m.ToolResponseIDs()) > 0 {
			toolIdx = append(toolIdx, i)
		}
	}
	if len(toolIdx) == 0 {
		return window
	}

	lo := len(toolIdx) / 3
	hi := len(toolIdx) - len(toolIdx)/3
	middle := toolIdx[lo:hi]
	n := int(float64(len(middle)) * fraction)
	drop := map[int]bool{}
	for _, i := range middle[:n] {
		drop[i] = true
	}

	out := make(conversation.Conversation, 0, len(window)-len(drop))
	for i, m := range window {
		if drop[i] {
			continue
		}
		out = append(out, m)
	}
	return out
}

func summarizationSystemPrompt(manual bool) string {
	kind := "automatic"
	if manual {
		kind = "user-requested"
	}
	return fmt.Sprintf(
		"You are compacting a long agent conversation (%s compaction). "+
			"Produce a dense summary of everything that happened: the user's goals, "+
			"decisions made, files/resources touched, tool results that matter, and any "+
			"open threads. Do not address the user directly; this summary becomes hidden "+
			"context for a continuing conversation, not a reply.", kind)
}
