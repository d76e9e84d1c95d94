package extensions

import (
	"fmt"
	"strings"
)

// MoimContributor is implemented by platform clients that have something to
// say in the per-turn "memorandum of info message" (working directory + TODO
// state, §4.5 collect_moim / glossary "Moim"). Non-platform clients do not
// implement it and are skipped.
type MoimContributor interface {
	GetMoim(sessionID string) string
}

// CollectMoim concatenates each platform client's GetMoim output into an
// <info-msg> block containing the working directory and TODO state. Returns
// "" only when no enabled extension contributes anything and workingDir is
// empty, so the caller can skip injection entirely.
func (m *Manager) CollectMoim(sessionID, workingDir string) string {
	m.mu.RLock()
	keys := append([]string(nil), m.order...)
	entries := make(map[string]*Entry, len(m.entries))
	for k, e := range m.entries {
		entries[k] = e
	}
	m.mu.RUnlock()

	var parts []string
	for _, key := range keys {
		e := entries[key]
		if !e.Enabled {
			continue
		}
		contributor, ok := e.Client.(MoimContributor)
		if !ok {
			continue
		}
		if s := strings.TrimSpace(contributor.GetMoim(sessionID)); s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 && workingDir == "" {
		return ""
	}

	var b strings.Builder
	b.WriteString("<info-msg>\n")
	if workingDir != "" {
		fmt.Fprintf(&b, "working directory: %s\n", workingDir)
	}
	for _, p := range parts {
		b.WriteString(p)
		b.WriteString("\n")
	}
	b.WriteString("</info-msg>")
	return b.String()
}
