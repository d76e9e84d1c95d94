// Package agentloop is the agent reply loop (C8): it orchestrates the
// session store, the provider, the extension manager, the inspector
// pipeline, and the context manager across one streamed user turn (§4.8).
package agentloop

import (
	"github.com/corelane/agentrun/internal/conversation"
	"github.com/corelane/agentrun/internal/inspect"
	"github.com/corelane/agentrun/internal/mcpclient"
)

// EventKind discriminates Event's payload (§4.8, §6 server events).
type EventKind string

const (
	EventMessage          EventKind = "message"
	EventHistoryReplaced  EventKind = "history_replaced"
	EventNotification     EventKind = "mcp_notification"
	EventModelChange      EventKind = "model_change"
	EventToolConfirmation EventKind = "tool_confirmation"
	EventFinish           EventKind = "finish"
	EventCancelled        EventKind = "cancelled"
	EventError            EventKind = "error"
)

// Event is one item yielded from Reply's stream.
type Event struct {
	Kind EventKind

	Message      *conversation.Message     // EventMessage
	Conversation conversation.Conversation // EventHistoryReplaced

	Notification   *mcpclient.Notification // EventNotification
	NotifRequestID string

	Model string // EventModelChange
	Mode  string // EventModelChange

	ConfirmationID string              // EventToolConfirmation
	ToolName       string              // EventToolConfirmation
	Arguments      map[string]any      // EventToolConfirmation
	Warning        string              // EventToolConfirmation (optional), EventFinish at the turn cap

	Err error // EventError
}

// SessionConfig bundles the per-turn knobs the caller supplies to Reply.
type SessionConfig struct {
	SessionID          string
	Mode               inspect.GooseMode
	MaxTurns           int     // 0 = unlimited
	AutoCompactThresh  float64 // 0 disables threshold override, DefaultThreshold used
	WorkingDir         string
	SubagentEnabled    bool
	ToolShim           bool
	CodeExecutionOnly  bool // restrict catalog to code_execution__* + subagent tool, §4.5
}
