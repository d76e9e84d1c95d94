package llm

import (
	"context"
	"os"
	"testing"
)

func TestResolveModelConfigPrecedence(t *testing.T) {
	os.Unsetenv("GOOSE_CONTEXT_LIMIT")

	cfg := ResolveModelConfig("claude-3-5-sonnet", 0)
	if cfg.ContextLimit != 200000 {
		t.Fatalf("expected predefined table to win, got %d", cfg.ContextLimit)
	}

	cfg = ResolveModelConfig("claude-3-5-sonnet", 50000)
	if cfg.ContextLimit != 50000 {
		t.Fatalf("expected explicit arg to win, got %d", cfg.ContextLimit)
	}

	cfg = ResolveModelConfig("some-unknown-model", 0)
	if cfg.ContextLimit != defaultContextLimit {
		t.Fatalf("expected default context limit, got %d", cfg.ContextLimit)
	}

	cfg = ResolveModelConfig("my-custom-claude-variant", 0)
	if cfg.ContextLimit != 200000 {
		t.Fatalf("expected name-pattern match for claude, got %d", cfg.ContextLimit)
	}
}

func TestRetryDoStopsOnNonRetryable(t *testing.T) {
	calls := 0
	_, err := RetryDo(context.Background(), RetryConfig{MaxAttempts: 3, InitialDelay: 1}, func() (int, error) {
		calls++
		return 0, &AuthenticationError{Detail: "bad key"}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected no retries for non-retryable error, got %d calls", calls)
	}
}

func TestRetryDoRetriesRateLimit(t *testing.T) {
	calls := 0
	_, err := RetryDo(context.Background(), RetryConfig{MaxAttempts: 3, InitialDelay: 1}, func() (int, error) {
		calls++
		if calls < 3 {
			return 0, &RateLimitExceededError{}
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}
