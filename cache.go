package identity

import (
	"context"
	"strings"
	"sync"
)

// LoginCacheKey builds the by-login cache key for an account lookup
func LoginCacheKey(login string) string {
	return "accounts:login:" + strings.ToLower(login)
}

// EmailCacheKey builds the by-email cache key for an account lookup
func EmailCacheKey(email string) string {
	return "accounts:email:" + strings.ToLower(email)
}

type memoryCache struct {
	mu      sync.RWMutex
	entries map[string]*Account
}

// NewMemoryCache returns the default in-process AccountCache
func NewMemoryCache() AccountCache {
	return &memoryCache{
		entries: make(map[string]*Account),
	}
}

func (c *memoryCache) Get(ctx context.Context, key string) (*Account, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	account, ok := c.entries[key]
	return account, ok
}

func (c *memoryCache) Set(ctx context.Context, key string, account *Account) {
	if account == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = account
}

func (c *memoryCache) Evict(ctx context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// noopCache satisfies AccountCache when caching is disabled
type noopCache struct{}

func (noopCache) Get(context.Context, string) (*Account, bool) { return nil, false }
func (noopCache) Set(context.Context, string, *Account)        {}
func (noopCache) Evict(context.Context, string)                {}

func normalizeCache(cache AccountCache) AccountCache {
	if cache == nil {
		return noopCache{}
	}
	return cache
}
