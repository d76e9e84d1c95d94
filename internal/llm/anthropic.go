package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/corelane/agentrun/internal/conversation"
)

const (
	defaultClaudeModel = "claude-sonnet-4-5-20250929"
	anthropicAPIBase    = "https://api.anthropic.com/v1"
	anthropicAPIVersion = "2023-06-01"
)

// AnthropicProvider implements Provider against the Anthropic Messages API.
type AnthropicProvider struct {
	apiKey       string
	baseURL      string
	defaultModel string
	fastModel    string
	client       *http.Client
	retryConfig  RetryConfig
}

type AnthropicOption func(*AnthropicProvider)

func WithAnthropicModel(model string) AnthropicOption {
	return func(p *AnthropicProvider) { p.defaultModel = model }
}

func WithAnthropicFastModel(model string) AnthropicOption {
	return func(p *AnthropicProvider) { p.fastModel = model }
}

func WithAnthropicBaseURL(baseURL string) AnthropicOption {
	return func(p *AnthropicProvider) {
		if baseURL != "" {
			p.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

func NewAnthropicProvider(apiKey string, opts ...AnthropicOption) *AnthropicProvider {
	p := &AnthropicProvider{
		apiKey:       apiKey,
		baseURL:      anthropicAPIBase,
		defaultModel: defaultClaudeModel,
		client:       &http.Client{Timeout: 120 * time.Second},
		retryConfig:  DefaultRetryConfig,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *AnthropicProvider) Metadata() Metadata {
	return Metadata{
		Name:               "anthropic",
		KnownModels:        []string{defaultClaudeModel, "claude-3-7-sonnet-20250219", "claude-3-5-haiku-20241022"},
		RequiredConfigKeys: []string{"ANTHROPIC_API_KEY"},
	}
}

func (p *AnthropicProvider) GetModelConfig() ModelConfig {
	cfg := ResolveModelConfig(p.defaultModel, 0)
	if p.fastModel != "" {
		cfg = cfg.WithFast(p.fastModel)
	}
	return cfg
}

func (p *AnthropicProvider) SupportsStreaming() bool    { return true }
func (p *AnthropicProvider) SupportsCacheControl() bool { return true }
func (p *AnthropicProvider) SupportsEmbeddings() bool   { return false }

func (p *AnthropicProvider) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, &ExecutionError{Detail: "anthropic: embeddings not supported"}
}

func (p *AnthropicProvider) FetchSupportedModels(ctx context.Context) ([]string, bool) {
	return p.Metadata().KnownModels, true
}

func (p *AnthropicProvider) Complete(ctx context.Context, req CompleteRequest) (conversation.Message, Usage, error) {
	return p.CompleteWithModel(ctx, p.GetModelConfig(), req)
}

func (p *AnthropicProvider) CompleteFast(ctx context.Context, req CompleteRequest) (conversation.Message, Usage, error) {
	cfg := p.GetModelConfig()
	if cfg.FastModel != "" {
		req.Model = cfg.FastModel
	}
	return p.CompleteWithModel(ctx, cfg, req)
}

func (p *AnthropicProvider) CompleteWithModel(ctx context.Context, cfg ModelConfig, req CompleteRequest) (conversation.Message, Usage, error) {
	model := req.Model
	if model == "" {
		model = cfg.ModelName
	}
	body := buildAnthropicRequestBody(model, req, false)

	resp, err := RetryDo(ctx, p.retryConfig, func() (*anthropicResponse, error) {
		rc, err := p.doRequest(ctx, body)
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		var out anthropicResponse
		if err := json.NewDecoder(rc).Decode(&out); err != nil {
			return nil, &RequestFailedError{Detail: "decode response: " + err.Error()}
		}
		return &out, nil
	})
	if err != nil {
		var zero conversation.Message
		return zero, Usage{}, err
	}
	return anthropicToMessage(resp), anthropicUsage(resp, model), nil
}

func (p *AnthropicProvider) Stream(ctx context.Context, req CompleteRequest) MessageStream {
	items := make(chan StreamItem)
	errCh := make(chan error, 1)

	go func() {
		defer close(items)
		model := req.Model
		if model == "" {
			model = p.GetModelConfig().ModelName
		}
		body := buildAnthropicRequestBody(model, req, true)

		rc, err := RetryDo(ctx, p.retryConfig, func() (io.ReadCloser, error) {
			return p.doRequest(ctx, body)
		})
		if err != nil {
			errCh <- err
			close(errCh)
			return
		}
		defer rc.Close()

		msg, usage, err := parseAnthropicSSE(rc, model, items)
		if err != nil {
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

func (p *AnthropicProvider) doRequest(ctx context.Context, body []byte) (io.ReadCloser, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, &RequestFailedError{Detail: err.Error()}
	}
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &RequestFailedError{Detail: err.Error()}
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		resp.Body.Close()
		return nil, &RateLimitExceededError{}
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		resp.Body.Close()
		return nil, &AuthenticationError{Detail: resp.Status}
	}
	if resp.StatusCode >= 500 {
		resp.Body.Close()
		return nil, &ServerError{StatusCode: resp.StatusCode}
	}
	if resp.StatusCode == http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if strings.Contains(string(data), "context_length") || strings.Contains(string(data), "too long") {
			return nil, &ContextLengthExceededError{Model: ""}
		}
		return nil, &RequestFailedError{Detail: string(data)}
	}
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &RequestFailedError{Detail: fmt.Sprintf("status %d: %s", resp.StatusCode, string(data))}
	}
	return resp.Body, nil
}

// --- wire types ---

type anthropicContentBlock struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

type anthropicResponse struct {
	Content    []anthropicContentBlock `json:"content"`
	StopReason string                  `json:"stop_reason"`
	Usage      struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
	} `json:"usage"`
}

func buildAnthropicRequestBody(model string, req CompleteRequest, stream bool) []byte {
	type wireMsg struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	var msgs []wireMsg
	for _, m := range req.History.AgentVisible() {
		msgs = append(msgs, wireMsg{Role: string(m.EffectiveRole()), Content: m.Text()})
	}
	payload := map[string]any{
		"model":      model,
		"system":     req.System,
		"messages":   msgs,
		"max_tokens": 4096,
		"stream":     stream,
	}
	if len(req.Tools) > 0 {
		var tools []map[string]any
		for _, t := range req.Tools {
			tools = append(tools, map[string]any{
				"name":         t.Name,
				"description":  t.Description,
				"input_schema": t.InputSchema,
			})
		}
		payload["tools"] = tools
	}
	b, _ := json.Marshal(payload)
	return b
}

func anthropicToMessage(resp *anthropicResponse) conversation.Message {
	var parts []conversation.ContentPart
	for _, b := range resp.Content {
		switch b.Type {
		case "text":
			parts = append(parts, conversation.Text{Text: b.Text})
		case "tool_use":
			var args map[string]any
			_ = json.Unmarshal(b.Input, &args)
			parts = append(parts, conversation.ToolRequest{
				ID:       b.ID,
				ToolCall: conversation.ToolCallResult{Call: &conversation.ToolCall{Name: b.Name, Arguments: args}},
			})
		}
	}
	return conversation.NewMessage(conversation.RoleAssistant, parts...)
}

func anthropicUsage(resp *anthropicResponse, model string) Usage {
	return Usage{
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		TotalTokens:  resp.Usage.InputTokens + resp.Usage.OutputTokens,
		Model:        model,
	}
}

// parseAnthropicSSE streams an Anthropic Messages SSE body, forwarding text
// deltas as StreamItem.Message text chunks, and returns the assembled final
// message and usage once the stream ends.
func parseAnthropicSSE(body io.Reader, model string, items chan<- StreamItem) (conversation.Message, Usage, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var textBuf strings.Builder
	toolCalls := map[int]*conversation.ToolRequest{}
	toolJSON := map[int]string{}
	var usage Usage
	var currentEvent string

	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: ") {
			currentEvent = strings.TrimPrefix(line, "event: ")
			continue
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		switch currentEvent {
		case "message_start":
			var ev struct {
				Message struct {
					Usage struct {
						InputTokens int64 `json:"input_tokens"`
					} `json:"usage"`
				} `json:"message"`
			}
			if json.Unmarshal([]byte(data), &ev) == nil {
				usage.InputTokens = ev.Message.Usage.InputTokens
			}
		case "content_block_start":
			var ev struct {
				Index        int `json:"index"`
				ContentBlock struct {
					Type string `json:"type"`
					ID   string `json:"id"`
					Name string `json:"name"`
				} `json:"content_block"`
			}
			if json.Unmarshal([]byte(data), &ev) == nil && ev.ContentBlock.Type == "tool_use" {
				toolCalls[ev.Index] = &conversation.ToolRequest{ID: ev.ContentBlock.ID,
					ToolCall: conversation.ToolCallResult{Call: &conversation.ToolCall{Name: ev.ContentBlock.Name}}}
			}
		case "content_block_delta":
			var ev struct {
				Index int `json:"index"`
				Delta struct {
					Type        string `json:"type"`
					Text        string `json:"text"`
					PartialJSON string `json:"partial_json"`
				} `json:"delta"`
			}
			if json.Unmarshal([]byte(data), &ev) == nil {
				switch ev.Delta.Type {
				case "text_delta":
					textBuf.WriteString(ev.Delta.Text)
					items <- StreamItem{Message: &conversation.Message{
						Content: []conversation.ContentPart{conversation.Text{Text: ev.Delta.Text}},
					}}
				case "input_json_delta":
					toolJSON[ev.Index] += ev.Delta.PartialJSON
				}
			}
		case "message_delta":
			var ev struct {
				Usage struct {
					OutputTokens int64 `json:"output_tokens"`
				} `json:"usage"`
			}
			if json.Unmarshal([]byte(data), &ev) == nil {
				usage.OutputTokens = ev.Usage.OutputTokens
			}
		case "error":
			var ev struct {
				Error struct {
					Type    string `json:"type"`
					Message string `json:"message"`
				} `json:"error"`
			}
			if json.Unmarshal([]byte(data), &ev) == nil {
				if ev.Error.Type == "overloaded_error" {
					return conversation.Message{}, Usage{}, &ServerError{Detail: ev.Error.Message}
				}
				return conversation.Message{}, Usage{}, &RequestFailedError{Detail: ev.Error.Message}
			}
		}
	}

	var parts []conversation.ContentPart
	if textBuf.Len() > 0 {
		parts = append(parts, conversation.Text{Text: textBuf.String()})
	}
	for i := 0; i < len(toolCalls); i++ {
		tc, ok := toolCalls[i]
		if !ok {
			continue
		}
		var args map[string]any
		_ = json.Unmarshal([]byte(toolJSON[i]), &args)
		tc.ToolCall.Call.Arguments = args
		parts = append(parts, *tc)
	}

	usage.TotalTokens = usage.InputTokens + usage.OutputTokens
	usage.Model = model
	return conversation.NewMessage(conversation.RoleAssistant, parts...), usage, nil
}
