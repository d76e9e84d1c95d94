package mcpclient

import (
	"fmt"
	"log/slog"
	"strings"
)

// disallowedEnvKeys is the fixed ~31-entry disallow list from §4.4.1: keys
// that could let a spawned extension process hijack dynamic-linker or
// interpreter behavior on the host.
var disallowedEnvKeys = []string{
	"PATH",
	"LD_PRELOAD", "LD_LIBRARY_PATH", "LD_AUDIT", "LD_ASSUME_KERNEL", "LD_BIND_NOW", "LD_DEBUG",
	"DYLD_INSERT_LIBRARIES", "DYLD_LIBRARY_PATH", "DYLD_FRAMEWORK_PATH", "DYLD_FALLBACK_LIBRARY_PATH",
	"PYTHONPATH", "PYTHONHOME", "PYTHONSTARTUP",
	"NODE_OPTIONS", "NODE_PATH",
	"CLASSPATH", "JAVA_TOOL_OPTIONS", "_JAVA_OPTIONS",
	"RUBYOPT", "RUBYLIB",
	"PERL5LIB", "PERL5OPT",
	"GEM_PATH", "GEM_HOME",
	"APPINIT_DLLS",
	"SHELL", "BASH_ENV", "ENV", "PROMPT_COMMAND",
	"GOOSE_SESSION_SECRET",
	"IFS",
}

var disallowedEnvKeySet = func() map[string]bool {
	m := make(map[string]bool, len(disallowedEnvKeys))
	for _, k := range disallowedEnvKeys {
		m[strings.ToUpper(k)] = true
	}
	return m
}()

// Envs holds a sanitized map-from-name-to-value for a spawned extension
// process's environment (§4.4.1).
type Envs struct {
	values map[string]string
}

// NewEnvs builds an Envs from m, silently dropping and logging every key in
// the disallow list (case-insensitive).
func NewEnvs(m map[string]string) Envs {
	e := Envs{values: make(map[string]string, len(m))}
	for k, v := range m {
		if disallowedEnvKeySet[strings.ToUpper(k)] {
			slog.Warn("mcpclient.env.dropped_disallowed_key", "key", k)
			continue
		}
		e.values[k] = v
	}
	return e
}

// Validate re-checks the internal map and fails loudly if a forbidden key
// was inserted after construction. Set already refuses such keys, so only a
// direct write to the map inside this package can trip it.
func (e Envs) Validate() error {
	for k := range e.values {
		if disallowedEnvKeySet[strings.ToUpper(k)] {
			return fmt.Errorf("mcpclient: disallowed environment key present: %s", k)
		}
	}
	return nil
}

// Set inserts or replaces a key, re-running the disallow check.
func (e *Envs) Set(key, value string) error {
	if disallowedEnvKeySet[strings.ToUpper(key)] {
		return fmt.Errorf("mcpclient: refusing to set disallowed environment key: %s", key)
	}
	if e.values == nil {
		e.values = map[string]string{}
	}
	e.values[key] = value
	return nil
}

// ToSlice renders the sanitized environment as "KEY=VALUE" pairs, as
// required by the stdio transport's process-spawn API.
func (e Envs) ToSlice() []string {
	out := make([]string, 0, len(e.values))
	for k, v := range e.values {
		out = append(out, k+"="+v)
	}
	return out
}
