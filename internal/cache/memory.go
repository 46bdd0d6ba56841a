package cache

import (
	"context"
	"sync"
	"time"
)

// Memory is a process-local Cache with TTL expiry. It is the documented
// degradation mode when no shared cache is configured: tokens and handshake
// state survive only within one process. Expired entries are dropped lazily
// on read and swept opportunistically on write.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

// NewMemory creates an in-process cache.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (c *Memory) Available() bool { return true }

func (c *Memory) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if !e.expiresAt.IsZero() && c.now().After(e.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, nil
	}
	// Copy so callers cannot mutate the stored value.
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

func (c *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) bool {
	stored := make([]byte, len(value))
	copy(stored, value)

	e := memoryEntry{value: stored}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}

	c.mu.Lock()
	c.sweepLocked()
	c.entries[key] = e
	c.mu.Unlock()
	return true
}

func (c *Memory) Delete(_ context.Context, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; !ok {
		return false
	}
	delete(c.entries, key)
	return true
}

// sweepLocked removes expired entries. Caller holds the write lock.
func (c *Memory) sweepLocked() {
	now := c.now()
	for k, e := range c.entries {
		if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
}

// Unconfigured is the Cache used when no backend is configured at all. Every
// read misses and every write reports not-stored, so callers can surface
// "tokens are not being persisted" explicitly.
type Unconfigured struct{}

func (Unconfigured) Available() bool { return false }

func (Unconfigured) Get(context.Context, string) ([]byte, error) { return nil, nil }

func (Unconfigured) Set(context.Context, string, []byte, time.Duration) bool { return false }

func (Unconfigured) Delete(context.Context, string) bool { return false }
