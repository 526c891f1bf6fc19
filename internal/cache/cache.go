// Package cache is a Redis-backed read-through cache for user snapshots.
// Redis failures degrade to cache misses; the database stays the source of
// truth.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"bazario.org/user-service/internal/auth"
	"bazario.org/user-service/internal/obs"
)

const defaultTTL = 5 * time.Minute

// Snapshots implements auth.SnapshotCache on Redis.
type Snapshots struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ auth.SnapshotCache = (*Snapshots)(nil)

// Option configures the cache.
type Option func(*Snapshots)

// WithTTL overrides the snapshot expiry.
func WithTTL(ttl time.Duration) Option {
	return func(c *Snapshots) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func New(rdb *redis.Client, opts ...Option) *Snapshots {
	c := &Snapshots{rdb: rdb, ttl: defaultTTL}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func key(id string) string { return "users:snapshot:" + id }

func (c *Snapshots) Get(ctx context.Context, id string) (*auth.Snapshot, bool) {
	raw, err := c.rdb.Get(ctx, key(id)).Bytes()
	if err != nil {
		return nil, false
	}
	var snap auth.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		// A corrupt blob is dropped so the next read repopulates it.
		c.rdb.Del(ctx, key(id))
		return nil, false
	}
	return &snap, true
}

func (c *Snapshots) Set(ctx context.Context, snap *auth.Snapshot) {
	raw, err := json.Marshal(snap)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key(snap.ID), raw, c.ttl).Err(); err != nil {
		obs.LogEvent(map[string]any{
			"level": "warn",
			"msg":   "snapshot cache set failed",
			"error": err.Error(),
		})
	}
}

func (c *Snapshots) Invalidate(ctx context.Context, id string) {
	if err := c.rdb.Del(ctx, key(id)).Err(); err != nil {
		obs.LogEvent(map[string]any{
			"level": "warn",
			"msg":   "snapshot cache invalidate failed",
			"error": err.Error(),
		})
	}
}
