// Package extensions is the extension manager (C5): a registry of named MCP
// clients, tool-name namespacing, and fan-out of list/dispatch operations
// across them.
package extensions

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/corelane/agentrun/internal/mcpclient"
)

// ConfigKind is the tagged-union discriminant for ExtensionConfig (§3.3,
// §9 — enum tagging preferred over subtyping because serialization is part
// of the contract).
type ConfigKind string

const (
	ConfigStdio          ConfigKind = "stdio"
	ConfigStreamableHTTP ConfigKind = "streamable_http"
	ConfigPlatform       ConfigKind = "platform"
	ConfigFrontend       ConfigKind = "frontend"
	ConfigInlineScript   ConfigKind = "inline_script"
)

// ExtensionConfig is the variant config for one extension (§3.3).
type ExtensionConfig struct {
	Kind ConfigKind

	// stdio
	Command string
	Args    []string
	Env     map[string]string

	// streamable_http
	URL     string
	Headers map[string]string

	// inline_script (in-process, script-defined tool set)
	Script string

	AvailableTools []string // empty = all
	TimeoutSeconds int
}

// Entry is the extension manager's per-extension state (§4.5).
type Entry struct {
	Key     string
	Config  ExtensionConfig
	Enabled bool
	Client  mcpclient.Client
	tools   []mcpclient.Tool
}

// AddExtensionError subtypes the ways add_extension can fail (§4.5).
type AddExtensionError struct {
	Kind   string // "SetupError" | "ConfigError" | "Client" | "ProcessExit" | "NameCollision"
	Detail string
}

func (e *AddExtensionError) Error() string { return fmt.Sprintf("extensions: %s: %s", e.Kind, e.Detail) }

// Manager is the ordered registry of extensions. Safe for concurrent use.
type Manager struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]*Entry

	// selfCtx is the back-reference handed to platform extensions so they
	// can reach back into the manager (see PlatformExtensionContext).
	selfCtx *PlatformExtensionContext
}

// New creates an empty Manager.
func New() *Manager {
	m := &Manager{entries: map[string]*Entry{}}
	m.selfCtx = newPlatformExtensionContext(m)
	return m
}

// Context returns the back-reference handed to platform extensions so they
// can call back into the manager (e.g. extensionmanager's enable/disable).
// It holds an ordinary pointer to the manager, not a weak one.
func (m *Manager) Context() *PlatformExtensionContext { return m.selfCtx }

func extensionKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), ""))
}

func namespacedName(key, toolName string) string { return key + "__" + toolName }

// AddExtension validates the name, fetches the already opened client's tool
// list, checks for post-namespacing collisions, and stores the entry (§4.5).
// On any failure the client is closed and nothing is registered.
func (m *Manager) AddExtension(name string, client mcpclient.Client, cfg ExtensionConfig) error {
	key := extensionKey(name)
	if key == "" {
		client.Close()
		return &AddExtensionError{Kind: "ConfigError", Detail: "extension name must not be empty"}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[key]; exists {
		client.Close()
		return &AddExtensionError{Kind: "NameCollision", Detail: fmt.Sprintf("extension key %q already registered", key)}
	}

	tools, _, err := client.ListTools(noopCtx(), "")
	if err != nil {
		client.Close()
		return &AddExtensionError{Kind: "Client", Detail: err.Error()}
	}
	tools = filterAllowList(tools, cfg.AvailableTools)

	// REDESIGN FLAG: the teacher's MCP manager skips colliding tool names
	// with a logged warning; this manager tightens that to a hard
	// add-extension failure, per spec invariant 2 ("adding two extensions
	// whose tool sets collide after namespacing fails add-extension").
	for _, t := range tools {
		full := namespacedName(key, t.Name)
		if existing, collides := m.findToolOwner(full); collides {
			client.Close()
			return &AddExtensionError{Kind: "NameCollision",
				Detail: fmt.Sprintf("tool %q already provided by extension %q", full, existing)}
		}
	}

	m.entries[key] = &Entry{Key: key, Config: cfg, Enabled: true, Client: client, tools: tools}
	m.order = append(m.order, key)
	return nil
}

func (m *Manager) findToolOwner(fullName string) (string, bool) {
	for _, e := range m.entries {
		for _, t := range e.tools {
			if namespacedName(e.Key, t.Name) == fullName {
				return e.Key, true
			}
		}
	}
	return "", false
}

func filterAllowList(tools []mcpclient.Tool, allow []string) []mcpclient.Tool {
	if len(allow) == 0 {
		return tools
	}
	set := map[string]bool{}
	for _, a := range allow {
		set[a] = true
	}
	out := tools[:0:0]
	for _, t := range tools {
		if set[t.Name] {
			out = append(out, t)
		}
	}
	return out
}

// RemoveExtension drops the client, cancelling pending calls by closing it,
// and evicts cached tool info.
func (m *Manager) RemoveExtension(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return fmt.Errorf("extensions: no such extension %q", key)
	}
	delete(m.entries, key)
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return e.Client.Close()
}

// NamedTool is a tool with its fully namespaced name attached.
type NamedTool struct {
	FullName string
	Key      string
	Tool     mcpclient.Tool
}

// ListTools returns the union of all enabled extensions' tools with names
// rewritten to <key>__<tool>, sorted by full name for prompt-cache
// stability.
func (m *Manager) ListTools() []NamedTool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []NamedTool
	for _, key := range m.order {
		e := m.entries[key]
		if !e.Enabled {
			continue
		}
		for _, t := range e.tools {
			out = append(out, NamedTool{FullName: namespacedName(key, t.Name), Key: key, Tool: t})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return out
}

// DispatchResult is the outcome of DispatchToolCall, including any async
// notification stream surfaced by the tool.
type DispatchResult struct {
	Result        mcpclient.CallResult
	Notifications <-chan mcpclient.Notification
}

// DispatchToolCall splits name at the first "__", routes to the owning
// client, and wraps the result (§4.5).
func (m *Manager) DispatchToolCall(ctxSessionID, fullName string, args map[string]any, cancel <-chan struct{}) (DispatchResult, error) {
	key, toolName, ok := splitNamespaced(fullName)
	if !ok {
		return DispatchResult{}, fmt.Errorf("extensions: malformed tool name %q", fullName)
	}

	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok || !e.Enabled {
		return DispatchResult{}, fmt.Errorf("extensions: no enabled extension %q", key)
	}

	ctx, stop := contextWithCancelChan(cancel)
	defer stop()

	notifCh, _ := e.Client.Subscribe(ctx)

	result, err := e.Client.CallTool(ctx, toolName, args, mcpclient.Meta{SessionID: ctxSessionID})
	if err != nil {
		return DispatchResult{Notifications: notifCh}, err
	}
	return DispatchResult{Result: result, Notifications: notifCh}, nil
}

func splitNamespaced(fullName string) (key, tool string, ok bool) {
	idx := strings.Index(fullName, "__")
	if idx < 0 {
		return "", "", false
	}
	return fullName[:idx], fullName[idx+2:], true
}

// ExtensionInfo is returned by GetExtensionsInfo for system-prompt assembly.
type ExtensionInfo struct {
	Key          string
	Instructions string
	HasResources bool
}

// GetExtensionsInfo returns per-extension instructions text and a
// "has resources" bit, used when assembling the system prompt.
func (m *Manager) GetExtensionsInfo() []ExtensionInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ExtensionInfo
	for _, key := range m.order {
		e := m.entries[key]
		if !e.Enabled {
			continue
		}
		info := e.Client.GetInfo()
		instructions := ""
		if info != nil {
			instructions = info.Instructions
		}
		resources, _ := e.Client.ListResources(noopCtx())
		out = append(out, ExtensionInfo{Key: key, Instructions: instructions, HasResources: len(resources) > 0})
	}
	return out
}

// SetEnabled toggles an extension without removing it, used by the
// extensionmanager platform extension's manage_extensions operation.
func (m *Manager) SetEnabled(key string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return fmt.Errorf("extensions: no such extension %q", key)
	}
	e.Enabled = enabled
	return nil
}

// Keys returns every registered extension key, enabled or not, in
// registration order.
func (m *Manager) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...)
}

func (m *Manager) IsEnabled(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	return ok && e.Enabled
}
