package llm

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
)

const defaultContextLimit = 128000
const minContextLimit = 4096

// predefinedModels is the built-in context-window table consulted before
// falling back to env/pattern resolution. Populated via
// GOOSE_PREDEFINED_MODELS (a JSON list of "name:limit" strings, the format
// config.Load accepts) merged over a small built-in default set; entries
// without a positive ":limit" suffix are ignored.
var predefinedModels = map[string]int{
	"claude-3-5-sonnet":   200000,
	"claude-3-7-sonnet":   200000,
	"claude-sonnet-4":     200000,
	"claude-opus-4":       200000,
	"gpt-4o":              128000,
	"gpt-4.1":             1000000,
	"gemini-1.5-pro":      2000000,
	"gemini-2.0-flash":    1000000,
	"o1":                  200000,
	"o3":                  200000,
}

// namePatterns maps a model-name substring to a context limit, consulted
// after the env var and before the default.
var namePatterns = []struct {
	substr string
	limit  int
}{
	{"claude", 200000},
	{"gpt-4", 128000},
	{"gpt-3.5", 16385},
	{"gemini", 1000000},
	{"llama-3", 128000},
	{"mixtral", 32000},
}

func init() {
	if raw := os.Getenv("GOOSE_PREDEFINED_MODELS"); raw != "" {
		var entries []string
		if err := json.Unmarshal([]byte(raw), &entries); err == nil {
			for _, entry := range entries {
				name, limitStr, found := strings.Cut(entry, ":")
				if limit, err := strconv.Atoi(limitStr); found && err == nil && limit > 0 {
					predefinedModels[name] = limit
				}
			}
		}
	}
}

// ResolveModelConfig implements the resolution order from §4.3: explicit
// constructor arg > predefined-model table > GOOSE_CONTEXT_LIMIT env >
// per-model-name pattern table > 128000 default. explicitLimit <= 0 means
// "not supplied".
func ResolveModelConfig(modelName string, explicitLimit int) ModelConfig {
	cfg := ModelConfig{ModelName: modelName}

	switch {
	case explicitLimit > 0:
		cfg.ContextLimit = explicitLimit
	case predefinedContextLimit(modelName) > 0:
		cfg.ContextLimit = predefinedContextLimit(modelName)
	case envContextLimit() > 0:
		cfg.ContextLimit = envContextLimit()
	case patternContextLimit(modelName) > 0:
		cfg.ContextLimit = patternContextLimit(modelName)
	default:
		cfg.ContextLimit = defaultContextLimit
	}

	if cfg.ContextLimit < minContextLimit {
		cfg.ContextLimit = minContextLimit
	}

	cfg.Temperature = envFloat("GOOSE_TEMPERATURE")
	cfg.MaxTokens = envInt("GOOSE_MAX_TOKENS")
	cfg.ToolShim = os.Getenv("GOOSE_TOOLSHIM") == "true" || os.Getenv("GOOSE_TOOLSHIM") == "1"

	return cfg
}

func predefinedContextLimit(modelName string) int {
	if v, ok := predefinedModels[modelName]; ok {
		return v
	}
	return 0
}

func envContextLimit() int {
	raw := os.Getenv("GOOSE_CONTEXT_LIMIT")
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0
	}
	return n
}

func patternContextLimit(modelName string) int {
	lower := strings.ToLower(modelName)
	for _, p := range namePatterns {
		if strings.Contains(lower, p.substr) {
			return p.limit
		}
	}
	return 0
}

func envFloat(key string) *float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &f
}

func envInt(key string) *int {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return nil
	}
	return &n
}

// IsResponsesAPIModel reports whether modelName belongs to a family that
// uses a non-standard "responses" style API (detected by name prefix), so a
// provider can dispatch to a sibling payload-builder while keeping its
// outward Provider interface unchanged (§4.3).
func IsResponsesAPIModel(modelName string) bool {
	lower := strings.ToLower(modelName)
	return strings.HasPrefix(lower, "o1") || strings.HasPrefix(lower, "o3") || strings.HasPrefix(lower, "o4")
}
