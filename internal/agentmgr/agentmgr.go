// Package agentmgr is the agent manager (C9): a process-wide, bounded LRU
// cache of live agents keyed by session id, with double-checked creation
// under contention so concurrent callers for the same session converge on a
// single Agent (§4.9).
package agentmgr

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/corelane/agentrun/internal/agentloop"
	"github.com/corelane/agentrun/internal/extensions"
)

// DefaultCapacity is the LRU cache's default size (§4.9).
const DefaultCapacity = 100

// Agent bundles one session's reply loop with the extension manager backing
// it, so eviction can free the underlying MCP client handles.
type Agent struct {
	SessionID  string
	Loop       *agentloop.Loop
	Extensions *extensions.Manager
}

// Factory constructs a fresh Agent for a session id on a cache miss. It runs
// outside any manager lock, so it may block on extension setup.
type Factory func(sessionID string) (*Agent, error)

// Manager is the bounded agent cache.
type Manager struct {
	mu      sync.RWMutex
	cache   *lru.Cache
	factory Factory
}

// NewManager builds a Manager with the given capacity (0 = DefaultCapacity)
// and agent factory. Eviction closes the evicted Agent's extensions so their
// MCP client handles are freed transitively (§4.9).
func NewManager(capacity int, factory Factory) (*Manager, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	m := &Manager{factory: factory}
	cache, err := lru.NewWithEvict(capacity, func(_ interface{}, value interface{}) {
		if agent, ok := value.(*Agent); ok {
			agent.close()
		}
	})
	if err != nil {
		return nil, fmt.Errorf("agentmgr: build LRU cache: %w", err)
	}
	m.cache = cache
	return m, nil
}

func (a *Agent) close() {
	if a.Extensions == nil {
		return
	}
	for _, key := range a.Extensions.Keys() {
		_ = a.Extensions.RemoveExtension(key)
	}
}

// GetOrCreate returns the cached Agent for sessionID, or constructs one via
// Factory on a miss. Implements §4.9's double-checked pattern: an initial
// read-lock lookup, construction outside any lock, then a write-lock
// re-check before inserting so two concurrent misses for the same session
// converge on whichever one wins the re-check race (the loser's freshly
// built Agent is discarded, not inserted).
func (m *Manager) GetOrCreate(sessionID string) (*Agent, error) {
	m.mu.RLock()
	if v, ok := m.cache.Get(sessionID); ok {
		m.mu.RUnlock()
		return v.(*Agent), nil
	}
	m.mu.RUnlock()

	agent, err := m.factory(sessionID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.cache.Get(sessionID); ok {
		agent.close()
		return v.(*Agent), nil
	}
	m.cache.Add(sessionID, agent)
	return agent, nil
}

// Evict removes sessionID's agent, if present, freeing its extension
// handles (used when a session is deleted).
func (m *Manager) Evict(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.Remove(sessionID)
}

// Len reports the number of cached agents.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cache.Len()
}
