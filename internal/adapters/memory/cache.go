package memory

import (
	"context"
	"sync"
	"time"

	"github.com/masltov-creations/opencommotion/pkg/ports"
	"github.com/masltov-creations/opencommotion/pkg/scene"
)

const (
	defaultCacheTurnsPerSession = 64
	defaultCacheTTL             = 15 * time.Minute
)

type cacheEntry struct {
	result  scene.TurnResult
	savedAt time.Time
}

type sessionCache struct {
	entries map[string]cacheEntry
	order   []string // turn ids, oldest first
}

// ResultCache keeps the most recent committed turn results per session so a
// retried submission can be answered without re-applying its patch batch.
type ResultCache struct {
	mu       sync.Mutex
	sessions map[string]*sessionCache

	perSession int
	ttl        time.Duration
	now        func() time.Time
}

// CacheOption configures the ResultCache.
type CacheOption func(*ResultCache)

// WithCacheSize bounds how many turns are retained per session.
func WithCacheSize(n int) CacheOption {
	return func(c *ResultCache) { c.perSession = n }
}

// WithCacheTTL bounds how long an entry stays retrievable.
func WithCacheTTL(d time.Duration) CacheOption {
	return func(c *ResultCache) { c.ttl = d }
}

// NewResultCache creates a cache with the default bounds.
func NewResultCache(opts ...CacheOption) *ResultCache {
	c := &ResultCache{
		sessions:   make(map[string]*sessionCache),
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

// Put records the result, evicting the session's oldest entry past the size
// bound.
func (c *ResultCache) Put(ctx context.Context, result scene.TurnResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	sess, ok := c.sessions[result.SessionID]
	if !ok {
		sess = &sessionCache{entries: make(map[string]cacheEntry)}
		c.sessions[result.SessionID] = sess
	}
	if _, exists := sess.entries[result.TurnID]; !exists {
		sess.order = append(sess.order, result.TurnID)
	}
	sess.entries[result.TurnID] = cacheEntry{result: result, savedAt: c.now()}

	for c.perSession > 0 && len(sess.order) > c.perSession {
		oldest := sess.order[0]
		sess.order = sess.order[1:]
		delete(sess.entries, oldest)
	}
	return nil
}

// Get returns the cached result for (sessionID, turnID), treating expired
// entries as misses.
func (c *ResultCache) Get(ctx context.Context, sessionID, turnID string) (scene.TurnResult, bool, error) {
	if err := ctx.Err(); err != nil {
		return scene.TurnResult{}, false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	sess, ok := c.sessions[sessionID]
	if !ok {
		return scene.TurnResult{}, false, nil
	}
	entry, ok := sess.entries[turnID]
	if !ok {
		return scene.TurnResult{}, false, nil
	}
	if c.ttl > 0 && c.now().Sub(entry.savedAt) > c.ttl {
		delete(sess.entries, turnID)
		sess.dropFromOrder(turnID)
		if len(sess.entries) == 0 {
			delete(c.sessions, sessionID)
		}
		return scene.TurnResult{}, false, nil
	}
	return entry.result, true, nil
}

// dropFromOrder removes the turn id from the ring so expired entries do not
// count against the size bound.
func (s *sessionCache) dropFromOrder(turnID string) {
	for i, id := range s.order {
		if id == turnID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}
