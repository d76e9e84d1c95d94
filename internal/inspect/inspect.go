// Package inspect is the tool-call inspection pipeline (C6): pluggable
// pre-dispatch checks for permission, repetition, and prompt-injection
// security, run over every assistant tool request before dispatch (§4.6).
package inspect

import "github.com/corelane/agentrun/internal/conversation"

// Action is an inspector's verdict on one tool request.
type Action string

const (
	Allow          Action = "allow"
	Deny           Action = "deny"
	RequireApproval Action = "require_approval"
)

// InspectionResult is one inspector's verdict on one tool request (§4.6).
type InspectionResult struct {
	ToolRequestID string
	Action        Action
	Reason        string
	Confidence    float64
	InspectorName string
	FindingID     string // e.g. "REP-001"; empty if not applicable
}

// InspectionMode carries the context an inspector needs beyond the raw
// requests: the active GooseMode and the full message history (security
// inspector scans recent user messages too).
type InspectionMode struct {
	Mode     GooseMode
	Messages conversation.Conversation
}

// Inspector is one pluggable pre-dispatch check (§4.6).
type Inspector interface {
	Name() string
	IsEnabled() bool
	Inspect(requests []conversation.ToolRequest, mode InspectionMode) []InspectionResult
}

// Manager runs inspectors in registration order and collects their results
// (§4.6). Per-inspector failures are logged by the caller and that
// inspector's verdict is simply absent from the combined results — the
// permission inspector's fail-safe default (RequireApproval when no verdict
// is available) takes over from there (§7).
type Manager struct {
	inspectors []Inspector
}

// NewManager builds a Manager running inspectors in the given order.
func NewManager(inspectors ...Inspector) *Manager {
	return &Manager{inspectors: inspectors}
}

// RunAll runs every enabled inspector over requests and returns the
// concatenation of their per-request results, in registration order.
func (m *Manager) RunAll(requests []conversation.ToolRequest, mode InspectionMode) []InspectionResult {
	var all []InspectionResult
	for _, insp := range m.inspectors {
		if !insp.IsEnabled() {
			continue
		}
		all = append(all, insp.Inspect(requests, mode)...)
	}
	return all
}
