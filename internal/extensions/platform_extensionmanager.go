package extensions

import (
	"context"
	"fmt"
	"strings"

	"github.com/corelane/agentrun/internal/mcpclient"
)

// ExtensionManagerExtension lets the model discover and toggle sibling
// extensions (`search_available_extensions`, `manage_extensions`) through the
// weak PlatformExtensionContext back-reference (§4.5, §9).
type ExtensionManagerExtension struct {
	ctx *PlatformExtensionContext
	// available lists extension keys that could be enabled but are not
	// currently registered (e.g. discoverable-but-disabled catalog entries).
	// Kept separate from ctx.Keys(), which only returns registered ones.
	available map[string]string // key -> short description
}

// searchAvailableExtensionsArgs is search_available_extensions' input.
type searchAvailableExtensionsArgs struct {
	Query string `json:"query,omitempty"`
}

// manageExtensionsArgs is manage_extensions' input.
type manageExtensionsArgs struct {
	ExtensionName string `json:"extension_name" jsonschema:"required"`
	Action        string `json:"action" jsonschema:"required,enum=enable,enum=disable"`
}

// NewExtensionManagerExtension builds the extensionmanager platform client.
// catalog is the set of known-but-not-necessarily-enabled extensions
// available for search_available_extensions to surface.
func NewExtensionManagerExtension(ctx *PlatformExtensionContext, catalog map[string]string) (*mcpclient.PlatformClient, *ExtensionManagerExtension) {
	ext := &ExtensionManagerExtension{ctx: ctx, available: catalog}

	tools := []mcpclient.Tool{
		{
			Name:        "search_available_extensions",
			Description: "Search the catalog of extensions that could be enabled, returning name, description, and current enabled state.",
			InputSchema: toolSchema(searchAvailableExtensionsArgs{}),
			Annotations: mcpclient.ToolAnnotations{ReadOnlyHint: true},
		},
		{
			Name:        "manage_extensions",
			Description: "Enable or disable a registered extension by key.",
			InputSchema: toolSchema(manageExtensionsArgs{}),
		},
	}

	handlers := map[string]mcpclient.PlatformHandler{
		"search_available_extensions": ext.handleSearch,
		"manage_extensions":           ext.handleManage,
	}

	client, err := mcpclient.NewPlatformClient("extensionmanager", tools, handlers)
	if err != nil {
		panic(err)
	}
	return client, ext
}

func (e *ExtensionManagerExtension) handleSearch(ctx context.Context, args map[string]any, meta mcpclient.Meta) (mcpclient.CallResult, error) {
	query, _ := args["query"].(string)
	query = strings.ToLower(strings.TrimSpace(query))

	var b strings.Builder
	for _, key := range e.ctx.Keys() {
		if query != "" && !strings.Contains(strings.ToLower(key), query) {
			continue
		}
		desc := e.available[key]
		fmt.Fprintf(&b, "%s: enabled=%v %s\n", key, e.ctx.IsEnabled(key), desc)
	}
	for key, desc := range e.available {
		if e.alreadyListed(key) {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(key), query) {
			continue
		}
		fmt.Fprintf(&b, "%s: enabled=false (not installed) %s\n", key, desc)
	}
	if b.Len() == 0 {
		return mcpclient.CallResult{ForLLM: "no matching extensions"}, nil
	}
	return mcpclient.CallResult{ForLLM: b.String()}, nil
}

func (e *ExtensionManagerExtension) alreadyListed(key string) bool {
	for _, k := range e.ctx.Keys() {
		if k == key {
			return true
		}
	}
	return false
}

func (e *ExtensionManagerExtension) handleManage(ctx context.Context, args map[string]any, meta mcpclient.Meta) (mcpclient.CallResult, error) {
	name, _ := args["extension_name"].(string)
	action, _ := args["action"].(string)
	key := strings.ToLower(strings.Join(strings.Fields(name), ""))

	var enabled bool
	switch action {
	case "enable":
		enabled = true
	case "disable":
		enabled = false
	default:
		return mcpclient.CallResult{ForLLM: fmt.Sprintf("unknown action %q", action), IsError: true}, nil
	}

	if err := e.ctx.SetEnabled(key, enabled); err != nil {
		return mcpclient.CallResult{ForLLM: err.Error(), IsError: true}, nil
	}
	return mcpclient.CallResult{ForLLM: fmt.Sprintf("extension %q %s", key, action+"d")}, nil
}
