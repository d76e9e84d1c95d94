package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/corelane/agentrun/internal/conversation"
)

// ErrNotFound is returned when a session id has no record.
var ErrNotFound = errors.New("session: not found")

// SearchOptions bounds a SearchChatHistory query.
type SearchOptions struct {
	Limit   int
	After   *time.Time
	Before  *time.Time
	Exclude []string // session ids to exclude
}

// SearchResult is one hit from SearchChatHistory.
type SearchResult struct {
	SessionID string
	MessageID string
	Snippet   string
	CreatedAt time.Time
}

// Store is the session store contract (§4.2). Implementations must make
// writes atomic against concurrent readers: a reader is never exposed to a
// half-written record.
type Store interface {
	CreateSession(ctx context.Context, workingDir, name string, typ Type) (*Session, error)
	GetSession(ctx context.Context, id string, withConversation bool) (*Session, error)

	// Update returns a builder that atomically applies a subset of field
	// updates when Apply is called.
	Update(ctx context.Context, id string) (*UpdateBuilder, error)

	ReplaceConversation(ctx context.Context, id string, conv conversation.Conversation) error
	AddMessage(ctx context.Context, id string, msg *conversation.Message) error
	// TruncateConversation drops messages created at or after at.
	TruncateConversation(ctx context.Context, id string, at time.Time) error

	CopySession(ctx context.Context, id, suffix string) (*Session, error)
	DeleteSession(ctx context.Context, id string) error
	ListSessions(ctx context.Context) ([]Summary, error)

	ImportSession(ctx context.Context, data []byte) (*Session, error)
	ExportSession(ctx context.Context, id string) ([]byte, error)

	SearchChatHistory(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error)
}

// UpdateBuilder accumulates a subset of field updates to apply atomically.
// It is not safe for concurrent use; obtain one per call to Update.
type UpdateBuilder struct {
	id    string
	apply func(ctx context.Context, id string, fn func(*Session)) error

	mutations []func(*Session)
}

func newUpdateBuilder(id string, apply func(ctx context.Context, id string, fn func(*Session)) error) *UpdateBuilder {
	return &UpdateBuilder{id: id, apply: apply}
}

// NewUpdateBuilder lets an out-of-package Store implementation (e.g. a SQL
// backend under internal/store) build an UpdateBuilder around its own
// mutation-application function, without exposing the mutation slice
// itself.
func NewUpdateBuilder(id string, apply func(ctx context.Context, id string, fn func(*Session)) error) (*UpdateBuilder, error) {
	return newUpdateBuilder(id, apply), nil
}

func (b *UpdateBuilder) SetName(name string) *UpdateBuilder {
	b.mutations = append(b.mutations, func(s *Session) { s.Name = name })
	return b
}

func (b *UpdateBuilder) SetWorkingDir(dir string) *UpdateBuilder {
	b.mutations = append(b.mutations, func(s *Session) { s.WorkingDir = dir })
	return b
}

func (b *UpdateBuilder) SetScheduleID(id string) *UpdateBuilder {
	b.mutations = append(b.mutations, func(s *Session) { s.ScheduleID = id })
	return b
}

func (b *UpdateBuilder) SetUserRecipeValues(values map[string]string) *UpdateBuilder {
	b.mutations = append(b.mutations, func(s *Session) { s.UserRecipeValues = values })
	return b
}

func (b *UpdateBuilder) SetRecipe(recipe []byte) *UpdateBuilder {
	b.mutations = append(b.mutations, func(s *Session) { s.Recipe = recipe })
	return b
}

func (b *UpdateBuilder) SetExtensionData(key string, data json.RawMessage) *UpdateBuilder {
	b.mutations = append(b.mutations, func(s *Session) {
		if s.ExtensionData == nil {
			s.ExtensionData = map[string]json.RawMessage{}
		}
		s.ExtensionData[key] = data
	})
	return b
}

// AccumulateTokens applies a turn's usage to the session's token counters.
func (b *UpdateBuilder) AccumulateTokens(u Usage, isCompactionUsage bool) *UpdateBuilder {
	b.mutations = append(b.mutations, func(s *Session) { s.Tokens.Accumulate(u, isCompactionUsage) })
	return b
}

func (b *UpdateBuilder) IncrementCompactionCount() *UpdateBuilder {
	b.mutations = append(b.mutations, func(s *Session) { s.CompactionCount++ })
	return b
}

func (b *UpdateBuilder) SetContextWindow(n int) *UpdateBuilder {
	b.mutations = append(b.mutations, func(s *Session) { s.ContextWindow = n })
	return b
}

func (b *UpdateBuilder) SetLastPromptTokens(n int) *UpdateBuilder {
	b.mutations = append(b.mutations, func(s *Session) { s.LastPromptTokens = n })
	return b
}

// Apply commits every accumulated mutation atomically.
func (b *UpdateBuilder) Apply(ctx context.Context) error {
	return b.apply(ctx, b.id, func(s *Session) {
		for _, m := range b.mutations {
			m(s)
		}
	})
}
