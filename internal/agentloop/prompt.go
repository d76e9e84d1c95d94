package agentloop

import (
	"fmt"
	"strings"

	"github.com/corelane/agentrun/internal/extensions"
)

// buildSystemPrompt assembles the base system prompt: a fixed preamble, the
// working-directory hint, per-extension instructions (§4.5's
// GetExtensionsInfo), and a tool/extension count summary. Individual
// extensions' resource availability is surfaced as a one-line hint rather
// than inlining resource contents.
func buildSystemPrompt(cfg SessionConfig, extMgr *extensions.Manager, tools []extensions.NamedTool) string {
	var b strings.Builder

	b.WriteString("You are an autonomous coding and task agent. You can call tools from the extensions listed below to accomplish the user's request. Only call a tool when it helps; otherwise respond directly.\n")

	if cfg.WorkingDir != "" {
		fmt.Fprintf(&b, "\nWorking directory: %s\n", cfg.WorkingDir)
	}

	infos := extMgr.GetExtensionsInfo()
	if len(infos) > 0 {
		b.WriteString("\nExtensions:\n")
		for _, info := range infos {
			fmt.Fprintf(&b, "- %s", info.Key)
			if info.Instructions != "" {
				fmt.Fprintf(&b, ": %s", info.Instructions)
			}
			if info.HasResources {
				b.WriteString(" (exposes resources)")
			}
			b.WriteString("\n")
		}
	}

	fmt.Fprintf(&b, "\n%d tool(s) available across %d extension(s).\n", len(tools), len(infos))

	if cfg.SubagentEnabled {
		b.WriteString("\nYou may delegate independent subtasks to a subagent tool when one is available.\n")
	}
	if cfg.CodeExecutionOnly {
		b.WriteString("\nOnly code-execution and subagent tools are available this turn; prefer writing and running code over asking for other tools.\n")
	}

	return b.String()
}

// filterCatalog restricts tools to the code_execution__* family (plus any
// subagent tool) when cfg.CodeExecutionOnly is set (§4.5).
func filterCatalog(tools []extensions.NamedTool, cfg SessionConfig) []extensions.NamedTool {
	if !cfg.CodeExecutionOnly {
		return tools
	}
	out := tools[:0:0]
	for _, t := range tools {
		if t.Key == "code_execution" || strings.Contains(t.FullName, "subagent") {
			out = append(out, t)
		}
	}
	return out
}
