package inspect

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/corelane/agentrun/internal/conversation"
)

// RepetitionInspector denies a tool call once the identical
// (tool_name, arguments) pair repeats strictly more than MaxRepetitions
// times consecutively (§4.6.3). Non-matching pairs reset the counter.
type RepetitionInspector struct {
	mu             sync.Mutex
	maxRepetitions int // <=0 disables the inspector
	lastSignature  string
	count          int
}

// NewRepetitionInspector builds the inspector with the given consecutive
// limit. maxRepetitions <= 0 disables it (IsEnabled returns false).
func NewRepetitionInspector(maxRepetitions int) *RepetitionInspector {
	return &RepetitionInspector{maxRepetitions: maxRepetitions}
}

func (r *RepetitionInspector) Name() string    { return "repetition" }
func (r *RepetitionInspector) IsEnabled() bool { return r.maxRepetitions > 0 }

func signature(name string, args map[string]any) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ordered := make(map[string]any, len(args))
	for _, k := range keys {
		ordered[k] = args[k]
	}
	encoded, _ := json.Marshal(ordered)
	return name + "|" + string(encoded)
}

// Inspect implements §4.6.3: each request is checked against (and updates)
// the single running last-observed pair, in request order — mirroring a
// conversation where one tool call repeats across successive turns.
func (r *RepetitionInspector) Inspect(requests []conversation.ToolRequest, _ InspectionMode) []InspectionResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []InspectionResult
	for _, req := range requests {
		res := InspectionResult{ToolRequestID: req.ID, InspectorName: r.Name(), Action: Allow}
		if req.ToolCall.Call == nil {
			out = append(out, res)
			continue
		}
		sig := signature(req.ToolCall.Call.Name, req.ToolCall.Call.Arguments)
		if sig == r.lastSignature {
			r.count++
		} else {
			r.lastSignature = sig
			r.count = 1
		}

		if r.count > r.maxRepetitions {
			res.Action = Deny
			res.FindingID = "REP-001"
			res.Reason = fmt.Sprintf("tool %q called with identical arguments %d times consecutively", req.ToolCall.Call.Name, r.count)
		}
		out = append(out, res)
	}
	return out
}
