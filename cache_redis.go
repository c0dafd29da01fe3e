package identity

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisCache struct {
	client redis.UniversalClient
	ttl    time.Duration
	logger Logger
}

// NewRedisCache returns an AccountCache backed by Redis so several
// service instances share one eviction domain. Entries do not expire by
// default, eviction stays explicit per the cache contract; use
// WithTTL when an operational safety net is wanted.
func NewRedisCache(client redis.UniversalClient) *redisCache {
	return &redisCache{
		client: client,
		logger: defLogger{},
	}
}

// WithTTL sets an expiry on cached entries
func (c *redisCache) WithTTL(ttl time.Duration) *redisCache {
	c.ttl = ttl
	return c
}

// WithLogger overrides the logger used for cache transport errors
func (c *redisCache) WithLogger(logger Logger) *redisCache {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// Get treats any transport or decode error as a miss, the caller will
// fall through to the repository
func (c *redisCache) Get(ctx context.Context, key string) (*Account, bool) {
	payload, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Debug("redis cache get %s: %v", key, err)
		}
		return nil, false
	}

	account := &Account{}
	if err := json.Unmarshal(payload, account); err != nil {
		c.logger.Debug("redis cache decode %s: %v", key, err)
		return nil, false
	}

	return account, true
}

func (c *redisCache) Set(ctx context.Context, key string, account *Account) {
	if account == nil {
		return
	}

	payload, err := json.Marshal(account)
	if err != nil {
		c.logger.Debug("redis cache encode %s: %v", key, err)
		return
	}

	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.logger.Debug("redis cache set %s: %v", key, err)
	}
}

func (c *redisCache) Evict(ctx context.Context, key string) {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.logger.Warn("redis cache evict %s: %v", key, err)
	}
}
