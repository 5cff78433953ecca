package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/masltov-creations/opencommotion/pkg/ports"
	"github.com/masltov-creations/opencommotion/pkg/scene"
)

const (
	defaultCacheTurnsPerSession = 64
	defaultCacheTTL             = 15 * time.Minute
)

// ResultCache implements ports.ResultCache on Redis. Each session carries a
// ZSET of its cached turn ids scored by insertion time; the cache trims the
// index and deletes evicted entries in the same pipeline as the write.
type ResultCache struct {
	client     *backend.Client
	prefix     string
	perSession int
	ttl        time.Duration
	now        func() time.Time
}

// CacheOption configures the ResultCache.
type CacheOption func(*ResultCache)

// WithCachePrefix overrides the key prefix.
func WithCachePrefix(prefix string) CacheOption {
	return func(c *ResultCache) { c.prefix = prefix }
}

// WithCacheSize bounds how many turns are retained per session.
func WithCacheSize(n int) CacheOption {
	return func(c *ResultCache) { c.perSession = n }
}

// WithCacheTTL bounds how long an entry stays retrievable.
func WithCacheTTL(d time.Duration) CacheOption {
	return func(c *ResultCache) { c.ttl = d }
}

// NewResultCache creates a cache on a dedicated client.
func NewResultCache(address, password string, db int, opts ...CacheOption) *ResultCache {
	client := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewResultCacheFromClient(client, opts...)
}

// NewResultCacheFromClient creates a cache from an existing client.
func NewResultCacheFromClient(client *backend.Client, opts ...CacheOption) *ResultCache {
	c := &ResultCache{
		client:     client,
		prefix:     "opencommotion:turn:",
		perSession: defaultCacheTurnsPerSession,
		ttl:        defaultCacheTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ ports.ResultCache = (*ResultCache)(nil)

func (c *ResultCache) key(sessionID, turnID string) string {
	return c.prefix + sessionID + ":" + turnID
}

func (c *ResultCache) indexKey(sessionID string) string {
	return c.prefix + "index:" + sessionID
}

// Put records the result and trims the session's index to the size bound.
func (c *ResultCache) Put(ctx context.Context, result scene.TurnResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal turn result: %w", err)
	}

	pipe := c.client.Pipeline()
	pipe.Set(ctx, c.key(result.SessionID, result.TurnID), data, c.ttl)
	pipe.ZAdd(ctx, c.indexKey(result.SessionID), backend.Z{
		Score:  float64(c.now().UnixNano()),
		Member: result.TurnID,
	})
	pipe.Expire(ctx, c.indexKey(result.SessionID), c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cache turn result: %w", err)
	}

	if c.perSession <= 0 {
		return nil
	}

	// Evict turns past the retention bound, oldest first.
	evicted, err := c.client.ZRange(ctx, c.indexKey(result.SessionID), 0, int64(-c.perSession-1)).Result()
	if err != nil {
		return fmt.Errorf("failed to read cache index: %w", err)
	}
	if len(evicted) == 0 {
		return nil
	}
	pipe = c.client.Pipeline()
	for _, turnID := range evicted {
		pipe.Del(ctx, c.key(result.SessionID, turnID))
	}
	pipe.ZRemRangeByRank(ctx, c.indexKey(result.SessionID), 0, int64(len(evicted)-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to trim cache index: %w", err)
	}
	return nil
}

// Get returns the cached result for (sessionID, turnID).
func (c *ResultCache) Get(ctx context.Context, sessionID, turnID string) (scene.TurnResult, bool, error) {
	val, err := c.client.Get(ctx, c.key(sessionID, turnID)).Bytes()
	if err != nil {
		if err == backend.Nil {
			return scene.TurnResult{}, false, nil
		}
		return scene.TurnResult{}, false, fmt.Errorf("failed to get cached turn: %w", err)
	}
	var result scene.TurnResult
	if err := json.Unmarshal(val, &result); err != nil {
		return scene.TurnResult{}, false, fmt.Errorf("failed to unmarshal cached turn: %w", err)
	}
	return result, true, nil
}

// Close closes the redis client.
func (c *ResultCache) Close() error {
	return c.client.Close()
}
