package contextmgr

import (
	"encoding/json"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/corelane/agentrun/internal/conversation"
)

// imageTokenEstimate is a flat per-image token cost; providers do not agree
// on vision tokenization, so this is a deliberately rough constant.
const imageTokenEstimate = 85

// TiktokenEstimator estimates token counts with a real BPE tokenizer
// (replacing a chars/4 heuristic), with an optional calibration factor
// layered on top of the raw count — the teacher's own idea of correcting
// the estimate against the last provider-reported prompt token count
// (internal/sessions/manager.go's SetLastPromptTokens), since provider usage
// is still the ground truth when available.
type TiktokenEstimator struct {
	mu  sync.Mutex
	enc *tiktoken.Tiktoken

	calibration float64 // multiplicative correction factor, starts at 1.0
}

// NewTiktokenEstimator builds an estimator using the named encoding (e.g.
// "cl100k_base", a safe default across most chat models).
func NewTiktokenEstimator(encodingName string) (*TiktokenEstimator, error) {
	if encodingName == "" {
		encodingName = "cl100k_base"
	}
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, err
	}
	return &TiktokenEstimator{enc: enc, calibration: 1.0}, nil
}

// Calibrate updates the correction factor from a known (estimated, actual)
// prompt-token pair, clamped to a sane range so a single outlier turn can't
// wildly distort future estimates.
func (e *TiktokenEstimator) Calibrate(estimated, actual int) {
	if estimated <= 0 || actual <= 0 {
		return
	}
	factor := float64(actual) / float64(estimated)
	if factor < 0.5 {
		factor = 0.5
	}
	if factor > 2.0 {
		factor = 2.0
	}
	e.mu.Lock()
	e.calibration = factor
	e.mu.Unlock()
}

// EstimateTokens implements Estimator.
func (e *TiktokenEstimator) EstimateTokens(messages conversation.Conversation) int {
	e.mu.Lock()
	calibration := e.calibration
	e.mu.Unlock()

	total := 0
	for _, m := range messages {
		for _, part := range m.Content {
			total += e.estimatePart(part)
		}
		total += 4 // per-message role/formatting overhead
	}
	return int(float64(total) * calibration)
}

func (e *TiktokenEstimator) estimatePart(part conversation.ContentPart) int {
	switch p := part.(type) {
	case conversation.Text:
		return len(e.enc.Encode(p.Text, nil, nil))
	case conversation.Thinking:
		return len(e.enc.Encode(p.Thinking, nil, nil))
	case conversation.Image:
		return imageTokenEstimate
	case conversation.ToolRequest:
		if p.ToolCall.Call == nil {
			return 10
		}
		args, _ := json.Marshal(p.ToolCall.Call.Arguments)
		return len(e.enc.Encode(p.ToolCall.Call.Name, nil, nil)) + len(e.enc.Encode(string(args), nil, nil)) + 10
	case conversation.ToolResponse:
		if p.ToolResult.Result != nil {
			return len(e.enc.Encode(p.ToolResult.Result.ForLLM, nil, nil)) + 6
		}
		return 6
	case conversation.SystemNotification:
		return len(e.enc.Encode(p.Msg, nil, nil))
	default:
		return 0
	}
}
