package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/followsync/internal/model"
	"github.com/d60-Lab/followsync/pkg/logger"
)

// CountCache caches per-user follower/following counts. Entries are dropped on
// every follow/unfollow touching the user, so a hit is never older than the last write.
type CountCache struct {
	client *redis.Client
	ttl    time.Duration

	hits   atomic.Int64
	misses atomic.Int64
}

// NewCountCache builds a cache on top of the given Redis client.
func NewCountCache(client *redis.Client, ttl time.Duration) *CountCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CountCache{client: client, ttl: ttl}
}

func countKey(userID string) string { return fmt.Sprintf("relcount:%s", userID) }

// Get returns cached counts and the ids that were not found. Redis errors are
// treated as a full miss.
func (c *CountCache) Get(ctx context.Context, userIDs []string) (map[string]model.RelationCounts, []string) {
	found := make(map[string]model.RelationCounts, len(userIDs))
	if len(userIDs) == 0 {
		return found, nil
	}

	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = countKey(id)
	}

	vals, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		logger.Warn("count cache mget failed", zap.Error(err))
		c.misses.Add(int64(len(userIDs)))
		return found, append([]string(nil), userIDs...)
	}

	missing := make([]string, 0)
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			missing = append(missing, userIDs[i])
			continue
		}
		var rc model.RelationCounts
		if uErr := json.Unmarshal([]byte(str), &rc); uErr != nil {
			missing = append(missing, userIDs[i])
			continue
		}
		found[userIDs[i]] = rc
	}
	c.hits.Add(int64(len(found)))
	c.misses.Add(int64(len(missing)))
	return found, missing
}

// Set stores counts with the configured TTL.
func (c *CountCache) Set(ctx context.Context, counts ...model.RelationCounts) {
	if len(counts) == 0 {
		return
	}
	pipe := c.client.Pipeline()
	for _, rc := range counts {
		payload, err := json.Marshal(rc)
		if err != nil {
			continue
		}
		pipe.Set(ctx, countKey(rc.UserID), payload, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Warn("count cache set failed", zap.Error(err))
	}
}

// Invalidate drops cached counts for the given users.
func (c *CountCache) Invalidate(ctx context.Context, userIDs ...string) error {
	if len(userIDs) == 0 {
		return nil
	}
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = countKey(id)
	}
	return c.client.Del(ctx, keys...).Err()
}

// Counters reports cache hit/miss totals.
func (c *CountCache) Counters() CacheCounters {
	return CacheCounters{Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// CacheCounters summarises cache usage.
type CacheCounters struct {
	Hits   int64
	Misses int64
}
