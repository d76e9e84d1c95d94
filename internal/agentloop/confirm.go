package agentloop

import (
	"fmt"
	"sync"

	"github.com/corelane/agentrun/internal/conversation"
	"github.com/corelane/agentrun/internal/inspect"
)

// confirmGate brokers suspend/resume for tool requests an inspector flagged
// RequireApproval (§4.8 step 6). One gate is created per turn and discarded
// once every confirmation it issued has resolved.
type confirmGate struct {
	mu      sync.Mutex
	pending map[string]chan conversation.ToolConfirmation
}

func newConfirmGate() *confirmGate {
	return &confirmGate{pending: map[string]chan conversation.ToolConfirmation{}}
}

// await registers a wait slot for confirmationID and blocks until Resolve is
// called for it, ctx is cancelled, or cancel fires.
func (g *confirmGate) await(confirmationID string, done <-chan struct{}) (conversation.ToolConfirmation, bool) {
	ch := make(chan conversation.ToolConfirmation, 1)
	g.mu.Lock()
	g.pending[confirmationID] = ch
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		delete(g.pending, confirmationID)
		g.mu.Unlock()
	}()

	select {
	case c := <-ch:
		return c, true
	case <-done:
		return conversation.ToolConfirmation{}, false
	}
}

// Resolve delivers the frontend's decision to a pending await, if one is
// still outstanding. Returns an error if confirmationID is unknown (already
// resolved, never issued, or the turn moved on).
func (g *confirmGate) Resolve(confirmationID string, decision conversation.ToolConfirmation) error {
	g.mu.Lock()
	ch, ok := g.pending[confirmationID]
	g.mu.Unlock()
	if !ok {
		return fmt.Errorf("agentloop: no pending confirmation %q", confirmationID)
	}
	ch <- decision
	return nil
}

// HandleConfirmation resolves a suspended confirmation for sessionID, per
// §4.8 step 6 and §6's frontend confirmation-response contract. When the
// decision is AllowAlways/DenyAlways, the caller's PermissionManager is
// updated so the same tool skips confirmation on future turns.
func (l *Loop) HandleConfirmation(sessionID, confirmationID, toolName string, decision conversation.ToolConfirmation) error {
	l.mu.RLock()
	gate := l.gates[sessionID]
	l.mu.RUnlock()
	if gate == nil {
		return fmt.Errorf("agentloop: no active turn awaiting confirmation for session %q", sessionID)
	}

	switch decision.Permission {
	case conversation.AllowAlways:
		if err := l.Permissions.SetUserDecision(toolName, inspect.PolicyAlwaysAllow); err != nil {
			return err
		}
	case conversation.DenyAlways:
		if err := l.Permissions.SetUserDecision(toolName, inspect.PolicyNeverAllow); err != nil {
			return err
		}
	}

	return gate.Resolve(confirmationID, decision)
}
