package agentloop

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/corelane/agentrun/internal/contextmgr"
	"github.com/corelane/agentrun/internal/conversation"
	"github.com/corelane/agentrun/internal/extensions"
	"github.com/corelane/agentrun/internal/inspect"
	"github.com/corelane/agentrun/internal/llm"
	"github.com/corelane/agentrun/internal/session"
)

// DefaultProviderRateLimit bounds provider calls across every session served
// by one Loop — a shared ceiling beneath whatever per-provider limit the
// upstream API itself enforces, so a burst of concurrent turns degrades to
// queuing instead of tripping the provider's own RateLimitExceeded errors.
const DefaultProviderRateLimit = 5 // requests/sec

// Loop is the agent reply loop (C8). One Loop instance serves every session;
// per-turn state (confirmation gates) is keyed by session id.
type Loop struct {
	Store       session.Store
	Extensions  *extensions.Manager
	Inspectors  *inspect.Manager
	Permissions *inspect.PermissionManager
	Provider    llm.Provider
	Estimator   contextmgr.Estimator

	// PermissionMode, when non-nil, is notified of the active GooseMode at
	// the start of every turn so smart-approve/approve gating reflects the
	// caller's current setting (the inspector otherwise only sees the mode
	// passed via InspectionMode for the security/repetition inspectors).
	PermissionMode *inspect.PermissionInspector

	// limiter throttles calls into Provider.Stream across every session this
	// Loop serves. A nil limiter (zero value from a struct literal rather
	// than NewLoop) disables throttling.
	limiter *rate.Limiter

	mu    sync.RWMutex
	gates map[string]*confirmGate
}

// NewLoop wires the reply loop's collaborators. Every argument is required
// except permissionMode, which may be nil if mode changes are never pushed
// mid-session. Provider calls are throttled to DefaultProviderRateLimit;
// use SetRateLimit to change it.
func NewLoop(store session.Store, extMgr *extensions.Manager, inspectors *inspect.Manager, permissions *inspect.PermissionManager, provider llm.Provider, estimator contextmgr.Estimator, permissionMode *inspect.PermissionInspector) *Loop {
	return &Loop{
		Store: store, Extensions: extMgr, Inspectors: inspectors, Permissions: permissions,
		Provider: provider, Estimator: estimator, PermissionMode: permissionMode,
		limiter: rate.NewLimiter(rate.Limit(DefaultProviderRateLimit), DefaultProviderRateLimit),
		gates:   map[string]*confirmGate{},
	}
}

// SetRateLimit replaces the provider-call throttle; a nil limiter disables
// throttling entirely.
func (l *Loop) SetRateLimit(limiter *rate.Limiter) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limiter = limiter
}

// Reply streams one user turn (§4.8). The returned channel is closed when
// the turn finishes, is cancelled, or hits an unrecoverable error; the
// caller must drain it.
func (l *Loop) Reply(ctx context.Context, cfg SessionConfig, userText string, cancel <-chan struct{}) (<-chan Event, error) {
	sess, err := l.Store.GetSession(ctx, cfg.SessionID, true)
	if err != nil {
		return nil, fmt.Errorf("agentloop: load session: %w", err)
	}

	userMsg := conversation.NewMessage(conversation.RoleUser, conversation.Text{Text: userText})
	if err := l.Store.AddMessage(ctx, cfg.SessionID, &userMsg); err != nil {
		return nil, fmt.Errorf("agentloop: record user message: %w", err)
	}
	sess.Conversation = append(sess.Conversation, userMsg)

	gate := newConfirmGate()
	l.mu.Lock()
	l.gates[cfg.SessionID] = gate
	l.mu.Unlock()

	events := make(chan Event, 16)
	go func() {
		defer close(events)
		defer func() {
			l.mu.Lock()
			delete(l.gates, cfg.SessionID)
			l.mu.Unlock()
		}()
		l.run(ctx, cfg, sess, gate, events, cancel)
	}()

	return events, nil
}

func (l *Loop) run(ctx context.Context, cfg SessionConfig, sess *session.Session, gate *confirmGate, events chan<- Event, cancel <-chan struct{}) {
	done := mergeDone(ctx, cancel)

	if l.PermissionMode != nil {
		l.PermissionMode.SetMode(cfg.Mode)
	}

	tools := filterCatalog(l.Extensions.ListTools(), cfg)
	toolIndex := make(map[string]extensions.NamedTool, len(tools))
	for _, t := range tools {
		toolIndex[t.FullName] = t
	}
	system := buildSystemPrompt(cfg, l.Extensions, tools)
	toolDefs := toolDefinitions(tools)

	threshold := cfg.AutoCompactThresh
	if threshold <= 0 {
		threshold = contextmgr.DefaultThreshold
	}

	compactedOnOverflow := false
	for turn := 0; cfg.MaxTurns == 0 || turn < cfg.MaxTurns; turn++ {
		select {
		case <-done:
			events <- Event{Kind: EventCancelled}
			return
		default:
		}

		conv, issues := conversation.FixConversation(sess.Conversation)
		sess.Conversation = conv
		if !conversation.IsMergeOnly(issues) {
			events <- Event{Kind: EventHistoryReplaced, Conversation: conv}
		}

		history := conv.AgentVisible()
		if moim := l.Extensions.CollectMoim(cfg.SessionID, cfg.WorkingDir); moim != "" {
			moimMsg := conversation.NewMessage(conversation.RoleUser,
				conversation.SystemNotification{Kind: conversation.NotifyGeneric, Msg: moim}).
				WithMetadata(conversation.AgentOnly())
			history = append(append(conversation.Conversation{}, history...), moimMsg)
		}

		l.mu.RLock()
		limiter := l.limiter
		l.mu.RUnlock()
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				events <- Event{Kind: EventError, Err: fmt.Errorf("agentloop: rate limit wait: %w", err)}
				return
			}
		}

		stream := l.Provider.Stream(ctx, llm.CompleteRequest{System: system, History: history, Tools: toolDefs})

		var assistantMsg *conversation.Message
		var usage llm.Usage
		for item := range stream.Items {
			if item.Message != nil {
				assistantMsg = item.Message
				events <- Event{Kind: EventMessage, Message: item.Message}
			}
			if item.Usage != nil {
				usage = *item.Usage
			}
		}
		if err := stream.Err(); err != nil {
			if llm.IsContextLengthExceeded(err) && !compactedOnOverflow {
				compactedOnOverflow = true
				l.compact(ctx, cfg.SessionID, sess, events)
				continue
			}
			events <- Event{Kind: EventError, Err: err}
			return
		}
		compactedOnOverflow = false
		if assistantMsg == nil {
			events <- Event{Kind: EventFinish}
			return
		}

		sess.Conversation = append(sess.Conversation, *assistantMsg)
		if err := l.Store.AddMessage(ctx, cfg.SessionID, assistantMsg); err != nil {
			events <- Event{Kind: EventError, Err: err}
			return
		}
		l.recordUsage(ctx, cfg.SessionID, sess, usage, false)

		requests := toolRequests(*assistantMsg)
		if len(requests) == 0 {
			events <- Event{Kind: EventFinish}
			return
		}

		if !l.handleToolRequests(ctx, cfg, sess, gate, requests, toolIndex, done, cancel, events) {
			return
		}

		if contextmgr.CheckIfCompactionNeeded(l.Provider, sess.Conversation, threshold, sess, l.Estimator) {
			l.compact(ctx, cfg.SessionID, sess, events)
		}
	}

	events <- Event{Kind: EventFinish, Warning: "reached the maximum number of actions for this turn"}
}

// handleToolRequests implements §4.8 steps 4-7: inspect, gate, dispatch, and
// append the resulting ToolResponse message. Returns false if the turn must
// stop (cancellation or a store error already reported on events).
func (l *Loop) handleToolRequests(ctx context.Context, cfg SessionConfig, sess *session.Session, gate *confirmGate, requests []conversation.ToolRequest, toolIndex map[string]extensions.NamedTool, done <-chan struct{}, cancel <-chan struct{}, events chan<- Event) bool {
	requestIDs := make([]string, len(requests))
	for i, r := range requests {
		requestIDs[i] = r.ID
	}

	results := l.Inspectors.RunAll(requests, inspect.InspectionMode{Mode: cfg.Mode, Messages: sess.Conversation})
	check := inspect.ProcessInspectionResults(requestIDs, results)

	responses := make(map[string]conversation.ToolResponse, len(requests))
	for _, id := range check.Denied {
		responses[id] = deniedResponse(id, inspect.ReasonFor(id, results))
	}

	var approved []conversation.ToolRequest
	for _, id := range check.Approved {
		approved = append(approved, findRequest(requests, id))
	}

	for _, id := range check.NeedsApproval {
		req := findRequest(requests, id)
		select {
		case <-done:
			responses[id] = cancelledResponse(id)
			continue
		default:
		}

		events <- Event{
			Kind:           EventToolConfirmation,
			ConfirmationID: req.ID,
			ToolName:       callName(req),
			Arguments:      callArgs(req),
			Warning:        inspect.ReasonFor(id, results),
		}

		decision, ok := gate.await(req.ID, done)
		if !ok {
			responses[id] = cancelledResponse(id)
			continue
		}
		switch decision.Permission {
		case conversation.AllowOnce, conversation.AllowAlways:
			approved = append(approved, req)
		default:
			responses[id] = deniedResponse(id, "denied by user")
		}
	}

	if len(approved) > 0 {
		dispatched := dispatchApproved(ctx, l.Extensions, cfg.SessionID, approved, toolIndex, cancel)
		for i, r := range approved {
			responses[r.ID] = dispatched[i]
		}
	}

	parts := make([]conversation.ContentPart, 0, len(requests))
	for _, req := range requests {
		if resp, ok := responses[req.ID]; ok {
			parts = append(parts, resp)
		} else {
			parts = append(parts, cancelledResponse(req.ID))
		}
	}
	responseMsg := conversation.NewMessage(conversation.RoleUser, parts...)
	sess.Conversation = append(sess.Conversation, responseMsg)
	if err := l.Store.AddMessage(ctx, cfg.SessionID, &responseMsg); err != nil {
		events <- Event{Kind: EventError, Err: err}
		return false
	}
	return true
}

func (l *Loop) compact(ctx context.Context, sessionID string, sess *session.Session, events chan<- Event) {
	compacted, usage, err := contextmgr.Compact(ctx, l.Provider, sess.Conversation)
	if err != nil {
		return
	}
	sess.Conversation = compacted
	if err := l.Store.ReplaceConversation(ctx, sessionID, compacted); err != nil {
		return
	}
	events <- Event{Kind: EventHistoryReplaced, Conversation: compacted}
	l.recordUsage(ctx, sessionID, sess, usage, true)
	if upd, err := l.Store.Update(ctx, sessionID); err == nil {
		upd.IncrementCompactionCount()
		_ = upd.Apply(ctx)
	}
}

func (l *Loop) recordUsage(ctx context.Context, sessionID string, sess *session.Session, usage llm.Usage, isCompaction bool) {
	if tiktok, ok := l.Estimator.(*contextmgr.TiktokenEstimator); ok && usage.InputTokens > 0 {
		estimated := tiktok.EstimateTokens(sess.Conversation.AgentVisible())
		tiktok.Calibrate(estimated, int(usage.InputTokens))
	}
	sessUsage := session.Usage{InputTokens: usage.InputTokens, OutputTokens: usage.OutputTokens, TotalTokens: usage.TotalTokens}
	sess.Tokens.Accumulate(sessUsage, isCompaction)
	upd, err := l.Store.Update(ctx, sessionID)
	if err != nil {
		return
	}
	upd.AccumulateTokens(sessUsage, isCompaction).SetLastPromptTokens(int(usage.InputTokens))
	_ = upd.Apply(ctx)
}

func mergeDone(ctx context.Context, cancel <-chan struct{}) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		select {
		case <-ctx.Done():
		case <-cancel:
		}
	}()
	return done
}

func toolRequests(m conversation.Message) []conversation.ToolRequest {
	var out []conversation.ToolRequest
	for _, p := range m.Content {
		if tr, ok := p.(conversation.ToolRequest); ok {
			out = append(out, tr)
		}
	}
	return out
}

func findRequest(requests []conversation.ToolRequest, id string) conversation.ToolRequest {
	for _, r := range requests {
		if r.ID == id {
			return r
		}
	}
	return conversation.ToolRequest{ID: id}
}

func callName(r conversation.ToolRequest) string {
	if r.ToolCall.Call == nil {
		return ""
	}
	return r.ToolCall.Call.Name
}

func callArgs(r conversation.ToolRequest) map[string]any {
	if r.ToolCall.Call == nil {
		return nil
	}
	return r.ToolCall.Call.Arguments
}

func toolDefinitions(tools []extensions.NamedTool) []llm.ToolDefinition {
	out := make([]llm.ToolDefinition, len(tools))
	for i, t := range tools {
		out[i] = llm.ToolDefinition{
			Name:        t.FullName,
			Description: t.Tool.Description,
			InputSchema: t.Tool.InputSchema,
			Annotations: llm.ToolAnnotations{
				ReadOnlyHint:    t.Tool.Annotations.ReadOnlyHint,
				DestructiveHint: t.Tool.Annotations.DestructiveHint,
				IdempotentHint:  t.Tool.Annotations.IdempotentHint,
				OpenWorldHint:   t.Tool.Annotations.OpenWorldHint,
			},
		}
	}
	return out
}
