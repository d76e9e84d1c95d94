package conversation

import "encoding/json"

// ContentPart is the closed sum type of message content variants (§3.1).
// Implementations are value types; the interface is sealed by the unexported
// contentPart method so no package outside conversation can add a variant.
type ContentPart interface {
	contentPart()
}

// Text is plain assistant/user text.
type Text struct {
	Text string
}

func (Text) contentPart() {}

// Image is inline image data, base64-encoded by the caller.
type Image struct {
	Data     string
	MimeType string
}

func (Image) contentPart() {}

// ToolCall is the {name, arguments} pair a model asked to invoke.
type ToolCall struct {
	Name      string
	Arguments map[string]any
}

// ToolCallResult is a Result<ToolCall, error> — exactly one of Call/Err is set.
type ToolCallResult struct {
	Call *ToolCall
	Err  error
}

// ToolRequest is an assistant-emitted request to invoke a tool hosted by an
// extension (as opposed to FrontendToolRequest, which the UI fulfills).
type ToolRequest struct {
	ID       string
	ToolCall ToolCallResult
	Metadata map[string]any
	ToolMeta json.RawMessage // copied verbatim from the tool's declared `meta`
}

func (ToolRequest) contentPart() {}

// ToolResult is the payload of a successful tool dispatch.
type ToolResult struct {
	ForLLM   string
	IsError  bool
	Async    bool
}

// ToolResultOutcome is a Result<ToolResult, error> — exactly one of Result/Err is set.
type ToolResultOutcome struct {
	Result *ToolResult
	Err    error
}

// ToolResponse answers a ToolRequest with the same ID.
type ToolResponse struct {
	ID         string
	ToolResult ToolResultOutcome
}

func (ToolResponse) contentPart() {}

// ToolConfirmationRequest asks the frontend whether a gated tool call may
// proceed.
type ToolConfirmationRequest struct {
	ID        string
	ToolName  string
	Arguments map[string]any
}

func (ToolConfirmationRequest) contentPart() {}

// ToolConfirmation is the frontend's decision about a ToolConfirmationRequest.
type ToolConfirmation struct {
	ID         string
	Permission ConfirmationPermission
}

// ConfirmationPermission is the user's answer to a confirmation prompt.
type ConfirmationPermission string

const (
	AllowOnce   ConfirmationPermission = "allow_once"
	AllowAlways ConfirmationPermission = "allow_always"
	DenyOnce    ConfirmationPermission = "deny_once"
	DenyAlways  ConfirmationPermission = "deny_always"
)

// Elicitation is an MCP-server-initiated request for additional user input.
type Elicitation struct {
	ID      string
	Message string
	Schema  map[string]any
}

// ElicitationResponse answers an Elicitation.
type ElicitationResponse struct {
	ID     string
	Action string // "accept" | "decline" | "cancel"
	Data   map[string]any
}

// ActionRequired wraps one of ToolConfirmation, Elicitation, or
// ElicitationResponse — a tagged union surfaced to the frontend.
type ActionRequired struct {
	ToolConfirmation     *ToolConfirmation
	Elicitation          *Elicitation
	ElicitationResponse  *ElicitationResponse
}

func (ActionRequired) contentPart() {}

// FrontendToolRequest is a tool request fulfilled out-of-band by the UI,
// never by the extension manager.
type FrontendToolRequest struct {
	ID       string
	ToolCall ToolCallResult
}

func (FrontendToolRequest) contentPart() {}

// Thinking is a provider-emitted reasoning block the UI may choose to render.
type Thinking struct {
	Thinking string
}

func (Thinking) contentPart() {}

// RedactedThinking is a reasoning block the provider has redacted; only the
// opaque signature is retained for pass-back on the next turn.
type RedactedThinking struct {
	Signature string
}

func (RedactedThinking) contentPart() {}

// SystemNotificationKind classifies a SystemNotification.
type SystemNotificationKind string

const (
	NotifyCompaction      SystemNotificationKind = "compaction"
	NotifyToolLoopDetected SystemNotificationKind = "tool_loop_detected"
	NotifyTruncated        SystemNotificationKind = "truncated"
	NotifyGeneric          SystemNotificationKind = "generic"
)

// SystemNotification is an agent-visible sentinel for recoverable runtime
// events (truncation, detected tool loops, compaction) that are not part of
// the model/tool dialogue proper.
type SystemNotification struct {
	Kind SystemNotificationKind
	Msg  string
}

func (SystemNotification) contentPart() {}
