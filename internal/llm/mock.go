package llm

import (
	"context"

	"github.com/corelane/agentrun/internal/conversation"
)

// MockProvider is a scripted Provider used in tests (and as the provider
// mock referenced by the spec's S1/S2/S4/S5/S6 scenarios): each call to
// Complete/Stream pops the next turn off Turns.
type MockProvider struct {
	Name_  string
	Turns  []MockTurn
	calls  int
	Config ModelConfig
}

// MockTurn is one scripted provider response.
type MockTurn struct {
	Message Message
	Usage   Usage
	Err     error
}

// Message is a convenience builder alias so test code can construct a
// conversation.Message without importing conversation directly in callers
// that only need the llm package.
type Message = conversation.Message

func (m *MockProvider) Metadata() Metadata {
	return Metadata{Name: m.Name_}
}

func (m *MockProvider) GetModelConfig() ModelConfig {
	if m.Config.ContextLimit == 0 {
		return ResolveModelConfig("mock", 0)
	}
	return m.Config
}

func (m *MockProvider) next() (Message, Usage, error) {
	if m.calls >= len(m.Turns) {
		return conversation.NewMessage(conversation.RoleAssistant, conversation.Text{Text: ""}), Usage{}, nil
	}
	t := m.Turns[m.calls]
	m.calls++
	return t.Message, t.Usage, t.Err
}

func (m *MockProvider) Complete(ctx context.Context, req CompleteRequest) (conversation.Message, Usage, error) {
	return m.next()
}

func (m *MockProvider) CompleteWithModel(ctx context.Context, cfg ModelConfig, req CompleteRequest) (conversation.Message, Usage, error) {
	return m.next()
}

func (m *MockProvider) CompleteFast(ctx context.Context, req CompleteRequest) (conversation.Message, Usage, error) {
	return m.next()
}

func (m *MockProvider) Stream(ctx context.Context, req CompleteRequest) MessageStream {
	items := make(chan StreamItem, 2)
	errCh := make(chan error, 1)
	go func() {
		defer close(items)
		msg, usage, err := m.next()
		if err != nil {
			items <- StreamItem{}
			errCh <- err
			close(errCh)
			return
		}
		items <- StreamItem{Message: &msg}
		items <- StreamItem{Usage: &usage}
		errCh <- nil
		close(errCh)
	}()
	return MessageStream{Items: items, errCh: errCh}
}

func (m *MockProvider) SupportsStreaming() bool    { return true }
func (m *MockProvider) SupportsCacheControl() bool { return false }
func (m *MockProvider) SupportsEmbeddings() bool    { return false }

func (m *MockProvider) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, &ExecutionError{Detail: "mock provider does not support embeddings"}
}

func (m *MockProvider) FetchSupportedModels(ctx context.Context) ([]string, bool) {
	return nil, false
}
