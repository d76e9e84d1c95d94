package extensions

import "context"

// PlatformExtensionContext is the back-reference threaded into every
// platform client so in-process extensions (notably extensionmanager) can
// call back into the owning Manager through a narrow set of its operations.
// It holds an ordinary pointer to the Manager; the reference is not weak, so
// a live context keeps its Manager reachable.
type PlatformExtensionContext struct {
	mgr *Manager
}

func newPlatformExtensionContext(mgr *Manager) *PlatformExtensionContext {
	return &PlatformExtensionContext{mgr: mgr}
}

// ListTools exposes the manager's tool catalog to a platform extension
// (e.g. extensionmanager's search_available_extensions).
func (c *PlatformExtensionContext) ListTools() []NamedTool { return c.mgr.ListTools() }

// Keys exposes every registered extension key.
func (c *PlatformExtensionContext) Keys() []string { return c.mgr.Keys() }

// IsEnabled reports whether key is currently enabled.
func (c *PlatformExtensionContext) IsEnabled(key string) bool { return c.mgr.IsEnabled(key) }

// SetEnabled enables/disables a sibling extension.
func (c *PlatformExtensionContext) SetEnabled(key string, enabled bool) error {
	return c.mgr.SetEnabled(key, enabled)
}

// noopCtx returns a background context for internal calls that do not carry
// a caller-supplied context (tool listing during AddExtension, resource
// listing for GetExtensionsInfo).
func noopCtx() context.Context { return context.Background() }

// contextWithCancelChan adapts a cancel channel (the cooperative
// cancellation primitive used throughout the agent loop, §5) into a
// context.Context so mcpclient.Client methods, which are context-based, can
// observe it.
func contextWithCancelChan(cancel <-chan struct{}) (context.Context, func()) {
	ctx, stop := context.WithCancel(context.Background())
	if cancel == nil {
		return ctx, stop
	}
	go func() {
		select {
		case <-cancel:
			stop()
		case <-ctx.Done():
		}
	}()
	return ctx, stop
}
