// Package conversation implements the append-only message sequence shared
// between the provider, the tool-dispatch layer, and the session store: the
// Message/ContentPart data model, visibility flags, and the conversation
// repair contract used by the agent loop and by compaction.
package conversation

import (
	"time"

	"github.com/google/uuid"
)

// Role is the author of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Metadata carries the two independent visibility flags plus an optional
// role override. A Message with an empty Metadata is agent- and
// user-visible by default (see Message.IsAgentVisible/IsUserVisible).
type Metadata struct {
	AgentVisible *bool
	UserVisible  *bool
	RoleOverride Role
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// AgentOnly returns Metadata visible to the agent only (used for compaction
// summaries).
func AgentOnly() Metadata {
	t, f := true, false
	return Metadata{AgentVisible: &t, UserVisible: &f}
}

// UserOnly returns Metadata visible to the user only (used for originals
// that have been folded into a compaction summary).
func UserOnly() Metadata {
	t, f := true, false
	return Metadata{AgentVisible: &f, UserVisible: &t}
}

// Message is one turn's worth of ordered content parts.
type Message struct {
	ID        string
	Role      Role
	Content   []ContentPart
	CreatedAt time.Time
	Metadata  Metadata
}

// NewMessage builds a Message with a fresh id, both visibility flags unset
// (defaulting to visible), and the given content.
func NewMessage(role Role, parts ...ContentPart) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   parts,
		CreatedAt: time.Now(),
	}
}

// WithMetadata returns a copy of m with its Metadata replaced.
func (m Message) WithMetadata(md Metadata) Message {
	m.Metadata = md
	return m
}

// IsAgentVisible reports whether m should be included when building the
// provider prompt.
func (m Message) IsAgentVisible() bool { return boolOr(m.Metadata.AgentVisible, true) }

// IsUserVisible reports whether m should be returned to the frontend.
func (m Message) IsUserVisible() bool { return boolOr(m.Metadata.UserVisible, true) }

// EffectiveRole returns m.Role unless overridden by Metadata.RoleOverride.
func (m Message) EffectiveRole() Role {
	if m.Metadata.RoleOverride != "" {
		return m.Metadata.RoleOverride
	}
	return m.Role
}

// ToolRequestIDs returns the ids of every non-frontend ToolRequest part in m.
func (m Message) ToolRequestIDs() []string {
	var ids []string
	for _, p := range m.Content {
		if tr, ok := p.(ToolRequest); ok {
			ids = append(ids, tr.ID)
		}
	}
	return ids
}

// FrontendToolRequestIDs returns the ids of every FrontendToolRequest part in m.
func (m Message) FrontendToolRequestIDs() []string {
	var ids []string
	for _, p := range m.Content {
		if ft, ok := p.(FrontendToolRequest); ok {
			ids = append(ids, ft.ID)
		}
	}
	return ids
}

// ToolResponseIDs returns the ids of every ToolResponse part in m.
func (m Message) ToolResponseIDs() []string {
	var ids []string
	for _, p := range m.Content {
		if tr, ok := p.(ToolResponse); ok {
			ids = append(ids, tr.ID)
		}
	}
	return ids
}

// HasToolRequests reports whether m carries any non-frontend tool requests.
func (m Message) HasToolRequests() bool { return len(m.ToolRequestIDs()) > 0 }

// Text concatenates every Text content part, in order, separated by "\n".
func (m Message) Text() string {
	var out string
	for _, p := range m.Content {
		if t, ok := p.(Text); ok {
			if out != "" {
				out += "\n"
			}
			out += t.Text
		}
	}
	return out
}

// Conversation is an ordered sequence of Messages.
type Conversation []Message

// AgentVisible returns the subset of c visible to the provider.
func (c Conversation) AgentVisible() Conversation {
	out := make(Conversation, 0, len(c))
	for _, m := range c {
		if m.IsAgentVisible() {
			out = append(out, m)
		}
	}
	return out
}

// UserVisible returns the subset of c visible to the frontend.
func (c Conversation) UserVisible() Conversation {
	out := make(Conversation, 0, len(c))
	for _, m := range c {
		if m.IsUserVisible() {
			out = append(out, m)
		}
	}
	return out
}
