// Package session implements the durable per-session state contract (§4.2):
// conversation, token counters, extension state, and recipe values, behind a
// Store interface with atomic, builder-based updates.
package session

import (
	"encoding/json"
	"time"

	"github.com/corelane/agentrun/internal/conversation"
)

// Type is the kind of session, affecting prompt assembly and listing.
type Type string

const (
	TypeUser     Type = "user"
	TypeHidden   Type = "hidden"
	TypeSubagent Type = "subagent"
	TypeTerminal Type = "terminal"
)

// Tokens holds the six token counters named in §3.2: current (this turn) and
// accumulated (lifetime), each split input/output/total.
type Tokens struct {
	CurrentInput   int64
	CurrentOutput  int64
	CurrentTotal   int64
	AccumulatedInput  int64
	AccumulatedOutput int64
	AccumulatedTotal  int64
}

// Usage is the token cost of a single provider call, as reported by C3.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
}

// Accumulate applies usage to t per the accumulate-style contract: current_x
// is replaced by the turn's counts, accumulated_x increases by the same
// amount — unless isCompactionUsage is true, in which case the new current
// input equals the summary's output token count and the per-turn counters
// reset (§4.2, §4.7 step 5).
func (t *Tokens) Accumulate(u Usage, isCompactionUsage bool) {
	if isCompactionUsage {
		t.CurrentInput = u.OutputTokens
		t.CurrentOutput = 0
		t.CurrentTotal = u.OutputTokens
		return
	}
	t.CurrentInput = u.InputTokens
	t.CurrentOutput = u.OutputTokens
	t.CurrentTotal = u.TotalTokens
	t.AccumulatedInput += u.InputTokens
	t.AccumulatedOutput += u.OutputTokens
	t.AccumulatedTotal += u.TotalTokens
}

// Session is a persisted record keyed by ID (§3.2).
type Session struct {
	ID         string
	Name       string
	WorkingDir string
	Type       Type
	CreatedAt  time.Time
	UpdatedAt  time.Time

	MessageCount int
	Conversation conversation.Conversation
	Tokens       Tokens

	// ExtensionData is an opaque bag keyed by extension name, used by C5
	// platform extensions (e.g. the todo extension's scratchpad state).
	ExtensionData map[string]json.RawMessage

	Recipe           json.RawMessage
	UserRecipeValues map[string]string
	ScheduleID       string

	// CompactionCount tracks how many times this session has been
	// compacted; MemoryFlushCompactionCount mirrors the teacher's
	// calibration idea for an optional memory-flush hook, -1 meaning never.
	CompactionCount            int
	MemoryFlushCompactionCount int

	// ContextWindow and LastPromptTokens cache the resolved model context
	// window and the most recent provider-reported prompt token count, used
	// to calibrate the context manager's token estimator between turns.
	ContextWindow    int
	LastPromptTokens int
}

// Summary is the lightweight listing form returned by ListSessions.
type Summary struct {
	ID           string
	Name         string
	Type         Type
	MessageCount int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (s *Session) toSummary() Summary {
	return Summary{
		ID:           s.ID,
		Name:         s.Name,
		Type:         s.Type,
		MessageCount: s.MessageCount,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

// clone returns a deep-enough copy of s so that callers holding a Session
// returned from the store never observe subsequent in-place mutation.
func (s *Session) clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Conversation = append(conversation.Conversation(nil), s.Conversation...)
	if s.ExtensionData != nil {
		cp.ExtensionData = make(map[string]json.RawMessage, len(s.ExtensionData))
		for k, v := range s.ExtensionData {
			cp.ExtensionData[k] = append(json.RawMessage(nil), v...)
		}
	}
	if s.UserRecipeValues != nil {
		cp.UserRecipeValues = make(map[string]string, len(s.UserRecipeValues))
		for k, v := range s.UserRecipeValues {
			cp.UserRecipeValues[k] = v
		}
	}
	return &cp
}
