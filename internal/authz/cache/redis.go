package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/frahmantamala/coursehub/internal/authz"
	"github.com/redis/go-redis/v9"
)

// RedisCache shares resolutions between instances. Keys are versioned by a global epoch and a
// per-user generation; invalidating bumps a counter instead of deleting entries, and old entries
// expire through their TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisCache(client *redis.Client, ttl time.Duration, prefix string) *RedisCache {
	if prefix == "" {
		prefix = "coursehub"
	}
	return &RedisCache{client: client, ttl: ttl, prefix: prefix}
}

func (c *RedisCache) epochKey() string {
	return c.prefix + ":authz:epoch"
}

func (c *RedisCache) generationKey(userID int64) string {
	return c.prefix + ":authz:gen:" + strconv.FormatInt(userID, 10)
}

func (c *RedisCache) entryKey(userID int64, stamp string) string {
	return strings.Join([]string{c.prefix, "authz", "perm", strconv.FormatInt(userID, 10), stamp}, ":")
}

func (c *RedisCache) Stamp(ctx context.Context, userID int64) (string, error) {
	vals, err := c.client.MGet(ctx, c.epochKey(), c.generationKey(userID)).Result()
	if err != nil {
		return "", err
	}
	return counter(vals[0]) + "." + counter(vals[1]), nil
}

func (c *RedisCache) Get(ctx context.Context, userID int64, stamp string) (*authz.CacheEntry, bool, error) {
	payload, err := c.client.Get(ctx, c.entryKey(userID, stamp)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var entry authz.CacheEntry
	if err := json.Unmarshal(payload, &entry); err != nil {
		return nil, false, fmt.Errorf("decode cached permissions: %w", err)
	}
	return &entry, true, nil
}

func (c *RedisCache) Set(ctx context.Context, userID int64, stamp string, entry authz.CacheEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.entryKey(userID, stamp), raw, c.ttl).Err()
}

// Invalidate must not be given a TTL on the generation key: a reset to zero could revive an
// entry written under an earlier stamp.
func (c *RedisCache) Invalidate(ctx context.Context, userID int64) error {
	return c.client.Incr(ctx, c.generationKey(userID)).Err()
}

func (c *RedisCache) InvalidateAll(ctx context.Context) error {
	return c.client.Incr(ctx, c.epochKey()).Err()
}

// Ping is used by the health check.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func counter(v interface{}) string {
	s, ok := v.(string)
	if !ok || s == "" {
		return "0"
	}
	return s
}

var _ authz.PermissionCache = (*RedisCache)(nil)
