// Package config is the ambient configuration layer: provider credentials,
// session-store backend selection, and the compaction/inspector thresholds
// in §6's environment-variable contract. Nothing here is persisted to disk
// except via explicit opt-in (.env loading); secrets never round-trip
// through a config file the way agent/tool settings do.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// DefaultContextLimit is used when no other source resolves a model's
// context window (§4.3's resolution order, final fallback).
const DefaultContextLimit = 128000

// ProvidersConfig carries provider API credentials, read from env only —
// never from a config file, matching the teacher's "secrets only from env"
// discipline for DatabaseConfig.PostgresDSN/TailscaleConfig.AuthKey.
type ProvidersConfig struct {
	AnthropicAPIKey  string
	AnthropicBaseURL string
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	OpenRouterAPIKey string
	GroqAPIKey       string
	GeminiAPIKey     string
}

// StoreConfig selects and configures the session-store backend (§4.2).
type StoreConfig struct {
	Backend         string // "sqlite" (default) or "postgres"
	SQLitePath      string
	PostgresDSN     string
	PermissionsPath string // YAML permission-policy file (§6 persisted state)
	HintsPath       string // AGENTS.md / .goosehints search root
}

// ModelConfig carries the env-driven pieces of §4.3's ModelConfig
// resolution: `GOOSE_CONTEXT_LIMIT` env > per-model-name pattern table >
// 128000 default, plus the toolshim and predefined-model-table knobs.
type ModelConfig struct {
	ContextLimit        int
	Temperature         *float64
	MaxTokens           *int
	ToolShim            bool
	ToolShimOllamaModel string
	PredefinedModels    []string // from GOOSE_PREDEFINED_MODELS (JSON list)
}

// SecurityConfig carries the optional ML prompt-injection classifier's
// connection settings (§4.6.4, §9).
type SecurityConfig struct {
	PromptThreshold    float64
	ClassifierModel    string
	ClassifierEndpoint string
	ClassifierToken    string
}

// CompactionConfig carries the context-manager's env-tunable knobs.
type CompactionConfig struct {
	AutoCompactThreshold float64 // GOOSE_AUTO_COMPACT_THRESHOLD, default contextmgr.DefaultThreshold
	TodoMaxChars         int     // GOOSE_TODO_MAX_CHARS
}

// Config is the resolved, env-derived configuration root.
type Config struct {
	Providers  ProvidersConfig
	Store      StoreConfig
	Model      ModelConfig
	Security   SecurityConfig
	Compaction CompactionConfig
}

// Default returns a Config with sensible defaults, before any env overlay.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Backend:         "sqlite",
			SQLitePath:      "~/.agentrun/sessions.db",
			PermissionsPath: "~/.agentrun/permissions.yaml",
			HintsPath:       ".",
		},
		Model: ModelConfig{
			ContextLimit: DefaultContextLimit,
		},
		Security: SecurityConfig{
			PromptThreshold: 0.8,
		},
		Compaction: CompactionConfig{
			AutoCompactThreshold: 0.8,
			TodoMaxChars:         20000,
		},
	}
}

// Load reads an optional .env file (missing is not an error, mirroring
// godotenv's typical dev-environment usage), then overlays every env var in
// §6's contract onto a Default config. envFile == "" loads ".env" from the
// working directory if present.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: load %s: %w", envFile, err)
		}
	} else {
		_ = godotenv.Load()
	}

	cfg := Default()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envStr(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func (c *Config) applyEnv() error {
	envStr("ANTHROPIC_API_KEY", &c.Providers.AnthropicAPIKey)
	envStr("ANTHROPIC_BASE_URL", &c.Providers.AnthropicBaseURL)
	envStr("OPENAI_API_KEY", &c.Providers.OpenAIAPIKey)
	envStr("OPENAI_BASE_URL", &c.Providers.OpenAIBaseURL)
	envStr("OPENROUTER_API_KEY", &c.Providers.OpenRouterAPIKey)
	envStr("GROQ_API_KEY", &c.Providers.GroqAPIKey)
	envStr("GEMINI_API_KEY", &c.Providers.GeminiAPIKey)

	envStr("AGENTRUN_STORE_BACKEND", &c.Store.Backend)
	envStr("AGENTRUN_SQLITE_PATH", &c.Store.SQLitePath)
	envStr("AGENTRUN_POSTGRES_DSN", &c.Store.PostgresDSN)
	envStr("AGENTRUN_PERMISSIONS_PATH", &c.Store.PermissionsPath)
	envStr("AGENTRUN_HINTS_PATH", &c.Store.HintsPath)

	if v := os.Getenv("GOOSE_CONTEXT_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 4096 {
			return fmt.Errorf("config: GOOSE_CONTEXT_LIMIT must be an integer >= 4096, got %q", v)
		}
		c.Model.ContextLimit = n
	}
	if v := os.Getenv("GOOSE_TEMPERATURE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 2 {
			return fmt.Errorf("config: GOOSE_TEMPERATURE must be a float in [0,2], got %q", v)
		}
		c.Model.Temperature = &f
	}
	if v := os.Getenv("GOOSE_MAX_TOKENS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("config: GOOSE_MAX_TOKENS must be a positive integer, got %q", v)
		}
		c.Model.MaxTokens = &n
	}
	if v := os.Getenv("GOOSE_TOOLSHIM"); v != "" {
		c.Model.ToolShim = v == "true" || v == "1"
	}
	envStr("GOOSE_TOOLSHIM_OLLAMA_MODEL", &c.Model.ToolShimOllamaModel)
	if v := os.Getenv("GOOSE_PREDEFINED_MODELS"); v != "" {
		var models []string
		if err := json.Unmarshal([]byte(v), &models); err != nil {
			return fmt.Errorf("config: GOOSE_PREDEFINED_MODELS must be a JSON string list: %w", err)
		}
		c.Model.PredefinedModels = models
	}

	if v := os.Getenv("GOOSE_AUTO_COMPACT_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 || f >= 1 {
			return fmt.Errorf("config: GOOSE_AUTO_COMPACT_THRESHOLD must be a float in (0,1), got %q", v)
		}
		c.Compaction.AutoCompactThreshold = f
	}
	if v := os.Getenv("GOOSE_TODO_MAX_CHARS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("config: GOOSE_TODO_MAX_CHARS must be a positive integer, got %q", v)
		}
		c.Compaction.TodoMaxChars = n
	}

	if v := os.Getenv("SECURITY_PROMPT_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 1 {
			return fmt.Errorf("config: SECURITY_PROMPT_THRESHOLD must be a float in [0,1], got %q", v)
		}
		c.Security.PromptThreshold = f
	}
	envStr("SECURITY_PROMPT_CLASSIFIER_MODEL", &c.Security.ClassifierModel)
	envStr("SECURITY_PROMPT_CLASSIFIER_ENDPOINT", &c.Security.ClassifierEndpoint)
	envStr("SECURITY_PROMPT_CLASSIFIER_TOKEN", &c.Security.ClassifierToken)

	return nil
}

// ResolveContextLimit implements §4.3's ModelConfig context-limit
// resolution order: explicit arg > predefined-model table > env > per-name
// pattern table > default. explicit is 0 when the caller has no override.
func (c *Config) ResolveContextLimit(modelName string, explicit int) int {
	if explicit > 0 {
		return explicit
	}
	if limit, ok := predefinedModelLimit(c.Model.PredefinedModels, modelName); ok {
		return limit
	}
	if envLimit := os.Getenv("GOOSE_CONTEXT_LIMIT"); envLimit != "" {
		return c.Model.ContextLimit
	}
	if limit, ok := patternModelLimit(modelName); ok {
		return limit
	}
	return DefaultContextLimit
}

// predefinedModelLimit looks up modelName in a "name:limit" encoded entry of
// the predefined-models list (e.g. "claude-opus-4:200000"). Entries without
// a ":limit" suffix carry no context-limit information.
func predefinedModelLimit(models []string, modelName string) (int, bool) {
	for _, entry := range models {
		name, limitStr, found := strings.Cut(entry, ":")
		if !found || name != modelName {
			continue
		}
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
			return limit, true
		}
	}
	return 0, false
}

// modelPattern is one substring-match entry in the built-in context-window
// table for well-known model name families.
type modelPattern struct {
	contains string
	limit    int
}

var modelPatterns = []modelPattern{
	{"claude-opus-4", 200000},
	{"claude-sonnet-4", 200000},
	{"claude-3-5", 200000},
	{"gpt-4o", 128000},
	{"gpt-4-turbo", 128000},
	{"o1", 200000},
	{"gemini-1.5-pro", 2000000},
	{"gemini-2", 1000000},
	{"llama-3.1", 128000},
}

func patternModelLimit(modelName string) (int, bool) {
	for _, p := range modelPatterns {
		if strings.Contains(modelName, p.contains) {
			return p.limit, true
		}
	}
	return 0, false
}
