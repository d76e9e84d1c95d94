package agentmgr

import (
	"fmt"
	"testing"

	"github.com/corelane/agentrun/internal/extensions"
	"github.com/corelane/agentrun/internal/mcpclient"
)

func TestGetOrCreateCachesAndFactoryRunsOnce(t *testing.T) {
	calls := 0
	mgr, err := NewManager(4, func(sessionID string) (*Agent, error) {
		calls++
		return &Agent{SessionID: sessionID}, nil
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	a1, err := mgr.GetOrCreate("s1")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	a2, err := mgr.GetOrCreate("s1")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if a1 != a2 {
		t.Fatalf("expected the same cached Agent on the second call")
	}
	if calls != 1 {
		t.Fatalf("expected factory called exactly once, got %d", calls)
	}
}

func TestEvictionClosesExtensions(t *testing.T) {
	mgr, err := NewManager(1, func(sessionID string) (*Agent, error) {
		ext := extensions.New()
		pc, err := mcpclient.NewPlatformClient("todo", nil, nil)
		if err != nil {
			return nil, err
		}
		if err := ext.AddExtension("todo", pc, extensions.ExtensionConfig{Kind: extensions.ConfigPlatform}); err != nil {
			return nil, err
		}
		return &Agent{SessionID: sessionID, Extensions: ext}, nil
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	first, err := mgr.GetOrCreate("s1")
	if err != nil {
		t.Fatalf("GetOrCreate s1: %v", err)
	}
	// Capacity is 1: creating a second session evicts the first.
	if _, err := mgr.GetOrCreate("s2"); err != nil {
		t.Fatalf("GetOrCreate s2: %v", err)
	}
	if mgr.Len() != 1 {
		t.Fatalf("expected cache length 1 after eviction, got %d", mgr.Len())
	}
	if keys := first.Extensions.Keys(); len(keys) != 0 {
		t.Fatalf("expected evicted agent's extensions to be removed, got %v", keys)
	}
}

func TestGetOrCreatePropagatesFactoryError(t *testing.T) {
	mgr, err := NewManager(4, func(sessionID string) (*Agent, error) {
		return nil, fmt.Errorf("boom")
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if _, err := mgr.GetOrCreate("s1"); err == nil {
		t.Fatalf("expected factory error to propagate")
	}
	if mgr.Len() != 0 {
		t.Fatalf("expected nothing cached after a factory error, got len %d", mgr.Len())
	}
}

func TestEvictRemovesSession(t *testing.T) {
	mgr, err := NewManager(4, func(sessionID string) (*Agent, error) {
		return &Agent{SessionID: sessionID}, nil
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if _, err := mgr.GetOrCreate("s1"); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	mgr.Evict("s1")
	if mgr.Len() != 0 {
		t.Fatalf("expected cache empty after Evict, got len %d", mgr.Len())
	}
}
