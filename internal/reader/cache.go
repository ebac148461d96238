package reader

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rewindhq/rewind/internal/envelope"
	logpkg "github.com/rewindhq/rewind/pkg/log"
)

const cacheKeyPrefix = "rewind:stream:"

// Cache is a short-TTL Redis cache of fully reconstructed session streams.
// Only complete, unfiltered streams are cached; the ingest buffer invalidates
// a session on every flush. Cache failures degrade to a direct read.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger logpkg.Logger
}

// NewCache creates a Cache over an existing Redis client.
func NewCache(client *redis.Client, ttl time.Duration, logger logpkg.Logger) *Cache {
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	if logger == nil {
		logger = logpkg.NewLogger().With(logpkg.Component("cache"))
	}
	return &Cache{client: client, ttl: ttl, logger: logger}
}

// Get returns the cached stream for a session, if present.
func (c *Cache) Get(ctx context.Context, sessionID string) (*SessionStream, bool) {
	if c == nil {
		return nil, false
	}
	data, err := c.client.Get(ctx, cacheKeyPrefix+sessionID).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache get failed", logpkg.Str("session_id", sessionID), logpkg.Err(err))
		}
		return nil, false
	}
	envs, skipped := envelope.DecodeAll(data)
	if skipped > 0 {
		// A corrupt cache entry is dropped, not served.
		c.Invalidate(ctx, sessionID)
		return nil, false
	}
	return &SessionStream{SessionID: sessionID, Envelopes: envs}, true
}

// Set stores a complete stream under the session's cache key.
func (c *Cache) Set(ctx context.Context, sessionID string, stream *SessionStream) {
	if c == nil || stream == nil || stream.Incomplete {
		return
	}
	data, err := stream.Encode()
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cacheKeyPrefix+sessionID, data, c.ttl).Err(); err != nil {
		c.logger.Warn("cache set failed", logpkg.Str("session_id", sessionID), logpkg.Err(err))
	}
}

// Invalidate drops the cached stream for a session. Called after every flush.
func (c *Cache) Invalidate(ctx context.Context, sessionID string) {
	if c == nil {
		return
	}
	if err := c.client.Del(ctx, cacheKeyPrefix+sessionID).Err(); err != nil {
		c.logger.Warn("cache invalidate failed", logpkg.Str("session_id", sessionID), logpkg.Err(err))
	}
}
