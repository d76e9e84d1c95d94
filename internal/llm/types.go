// Package llm is the provider abstraction (C3): a uniform complete/stream
// interface over heterogeneous LLM backends, model-config resolution, and
// typed provider errors.
package llm

import (
	"context"
	"time"

	"github.com/corelane/agentrun/internal/conversation"
)

// Usage carries token counts and the resolved model name for one call.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
	Model        string
}

// ToolAnnotations are hints about a tool's behavior, consulted by the
// permission inspector (§4.6.1) and surfaced in the system prompt.
type ToolAnnotations struct {
	ReadOnlyHint    bool
	DestructiveHint bool
	IdempotentHint  bool
	OpenWorldHint   bool
}

// ToolDefinition is a tool schema offered to the provider.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema map[string]any
	Annotations ToolAnnotations
}

// Metadata is a provider's static catalog entry.
type Metadata struct {
	Name              string
	KnownModels       []string
	RequiredConfigKeys []string
}

// ModelConfig resolves the context window and generation parameters used
// for a given model (§4.3).
type ModelConfig struct {
	ModelName    string
	ContextLimit int
	Temperature  *float64
	MaxTokens    *int
	ToolShim     bool
	FastModel    string
}

// WithFast attaches a secondary "fast" model name used by CompleteFast.
func (c ModelConfig) WithFast(name string) ModelConfig {
	c.FastModel = name
	return c
}

// CompleteRequest bundles one non-streaming or streaming call's inputs.
type CompleteRequest struct {
	System  string
	History conversation.Conversation
	Tools   []ToolDefinition
	Model   string // overrides ModelConfig.ModelName when non-empty
}

// StreamItem is one element of a MessageStream: a lazy sequence of
// (optional Message, optional Usage) pairs, mirroring §4.3's
// `(Option<Message>, Option<Usage>)` contract. The final element of a turn
// carries the definitive Usage.
type StreamItem struct {
	Message *conversation.Message
	Usage   *Usage
}

// MessageStream is a channel of StreamItem; the producer closes Items and
// may send a terminal error on Err before closing. Consumers should drain
// Items until closed, then check Err.
type MessageStream struct {
	Items <-chan StreamItem
	errCh <-chan error
}

// Err blocks until the stream's terminal error (or nil) is available. Call
// after Items is fully drained.
func (s MessageStream) Err() error {
	if s.errCh == nil {
		return nil
	}
	return <-s.errCh
}

// Provider is the uniform interface every LLM backend implements (§4.3).
type Provider interface {
	Metadata() Metadata
	GetModelConfig() ModelConfig

	Complete(ctx context.Context, req CompleteRequest) (conversation.Message, Usage, error)
	CompleteWithModel(ctx context.Context, cfg ModelConfig, req CompleteRequest) (conversation.Message, Usage, error)
	// CompleteFast is an alias that may substitute a smaller "fast" model.
	CompleteFast(ctx context.Context, req CompleteRequest) (conversation.Message, Usage, error)

	Stream(ctx context.Context, req CompleteRequest) MessageStream

	SupportsStreaming() bool
	SupportsCacheControl() bool
	SupportsEmbeddings() bool
	CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)

	// FetchSupportedModels returns the provider's live model list, if the
	// backend exposes a models endpoint.
	FetchSupportedModels(ctx context.Context) ([]string, bool)
}

// RetryDelay is carried by RateLimitExceeded when the backend supplies one.
type RetryDelay = time.Duration
