package service

import (
	"context"
	"sync"
	"time"
)

// DeadTokenCache remembers tokens that can no longer be redeemed,
// keyed by token with the rejection reason as value. Entries expire on
// their own; nothing correctness-critical ever reads this cache.
type DeadTokenCache interface {
	Get(ctx context.Context, token string) (RejectReason, bool, error)
	Set(ctx context.Context, token string, reason RejectReason, ttl time.Duration) error
}

type NoopDeadTokenCache struct{}

func NewNoopDeadTokenCache() *NoopDeadTokenCache { return &NoopDeadTokenCache{} }

func (NoopDeadTokenCache) Get(context.Context, string) (RejectReason, bool, error) {
	return "", false, nil
}

func (NoopDeadTokenCache) Set(context.Context, string, RejectReason, time.Duration) error {
	return nil
}

type deadTokenEntry struct {
	reason    RejectReason
	expiresAt time.Time
}

type InMemoryDeadTokenCache struct {
	mu    sync.RWMutex
	store map[string]deadTokenEntry
}

func NewInMemoryDeadTokenCache() *InMemoryDeadTokenCache {
	return &InMemoryDeadTokenCache{store: make(map[string]deadTokenEntry)}
}

func (c *InMemoryDeadTokenCache) Get(_ context.Context, token string) (RejectReason, bool, error) {
	now := time.Now().UTC()
	c.mu.RLock()
	entry, ok := c.store[token]
	c.mu.RUnlock()
	if !ok {
		return "", false, nil
	}
	if now.After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.store, token)
		c.mu.Unlock()
		return "", false, nil
	}
	return entry.reason, true, nil
}

func (c *InMemoryDeadTokenCache) Set(_ context.Context, token string, reason RejectReason, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[token] = deadTokenEntry{reason: reason, expiresAt: time.Now().UTC().Add(ttl)}
	return nil
}
