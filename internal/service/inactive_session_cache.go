package service

import (
	"context"
	"sync"
	"time"
)

// InactiveSessionCache remembers sessions already found revoked or expired.
// Ended sessions never become active again, so a hit is always safe to trust
// and lets access-token validation skip the session lookup.
type InactiveSessionCache interface {
	IsInactive(ctx context.Context, sessionID uint) (bool, error)
	MarkInactive(ctx context.Context, sessionID uint, ttl time.Duration) error
}

type NoopInactiveSessionCache struct{}

func NewNoopInactiveSessionCache() *NoopInactiveSessionCache { return &NoopInactiveSessionCache{} }

func (NoopInactiveSessionCache) IsInactive(context.Context, uint) (bool, error) { return false, nil }

func (NoopInactiveSessionCache) MarkInactive(context.Context, uint, time.Duration) error { return nil }

const (
	inMemoryInactiveSweepEvery = time.Minute
	// inMemoryInactiveMaxEntries caps the map between sweeps; at the cap the
	// entry closest to expiry is dropped, which only costs a session lookup.
	inMemoryInactiveMaxEntries = 10000
)

type InMemoryInactiveSessionCache struct {
	mu         sync.RWMutex
	entries    map[uint]time.Time
	maxEntries int
	nextSweep  time.Time
	now        func() time.Time
}

func NewInMemoryInactiveSessionCache() *InMemoryInactiveSessionCache {
	return &InMemoryInactiveSessionCache{
		entries:    make(map[uint]time.Time),
		maxEntries: inMemoryInactiveMaxEntries,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (c *InMemoryInactiveSessionCache) IsInactive(_ context.Context, sessionID uint) (bool, error) {
	now := c.now()
	c.mu.RLock()
	expiresAt, ok := c.entries[sessionID]
	c.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if now.After(expiresAt) {
		c.mu.Lock()
		delete(c.entries, sessionID)
		c.mu.Unlock()
		return false, nil
	}
	return true, nil
}

func (c *InMemoryInactiveSessionCache) MarkInactive(_ context.Context, sessionID uint, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if !now.Before(c.nextSweep) {
		c.sweepLocked(now)
	}
	if _, exists := c.entries[sessionID]; !exists && len(c.entries) >= c.maxEntries {
		c.sweepLocked(now)
		if len(c.entries) >= c.maxEntries {
			c.evictSoonestLocked()
		}
	}
	c.entries[sessionID] = now.Add(ttl)
	return nil
}

// Len reports the number of tracked entries, expired or not.
func (c *InMemoryInactiveSessionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *InMemoryInactiveSessionCache) sweepLocked(now time.Time) {
	for id, expiresAt := range c.entries {
		if now.After(expiresAt) {
			delete(c.entries, id)
		}
	}
	c.nextSweep = now.Add(inMemoryInactiveSweepEvery)
}

func (c *InMemoryInactiveSessionCache) evictSoonestLocked() {
	var (
		victim  uint
		soonest time.Time
		found   bool
	)
	for id, expiresAt := range c.entries {
		if !found || expiresAt.Before(soonest) {
			victim, soonest, found = id, expiresAt, true
		}
	}
	if found {
		delete(c.entries, victim)
	}
}
