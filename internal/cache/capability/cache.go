package capability

import (
	"sync"
	"time"
)

// entry stores a benchmark-derived capability set with its expiry.
type entry struct {
	hashTypes map[int]struct{}
	expiresAt time.Time
}

// Cache provides a thread-safe short-TTL cache of agent capability sets.
// It is owned by the capability service; there is no package-global state.
type Cache struct {
	ttl     time.Duration
	entries map[int]entry
	mu      sync.RWMutex
}

// New creates a capability cache with the given TTL.
func New(ttl time.Duration) *Cache {
	return &Cache{
		ttl:     ttl,
		entries: make(map[int]entry),
	}
}

// Get returns the cached capability set for an agent, or false if absent or
// expired.
func (c *Cache) Get(agentID int) (map[int]struct{}, bool) {
	c.mu.RLock()
	e, ok := c.entries[agentID]
	c.mu.RUnlock()

	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.hashTypes, true
}

// Set stores the capability set for an agent.
func (c *Cache) Set(agentID int, hashTypes map[int]struct{}) {
	c.mu.Lock()
	c.entries[agentID] = entry{
		hashTypes: hashTypes,
		expiresAt: time.Now().Add(c.ttl),
	}
	c.mu.Unlock()
}

// Invalidate drops the cached set for an agent. Called when a new benchmark
// is recorded.
func (c *Cache) Invalidate(agentID int) {
	c.mu.Lock()
	delete(c.entries, agentID)
	c.mu.Unlock()
}

// Purge removes all expired entries.
func (c *Cache) Purge() {
	now := time.Now()
	c.mu.Lock()
	for agentID, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, agentID)
		}
	}
	c.mu.Unlock()
}
