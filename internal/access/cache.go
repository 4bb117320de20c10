package access

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// NoGeneration is returned by Get when the cache cannot vouch for a later Set.
const NoGeneration int64 = -1

// PermissionCache fronts the traversal. Implementations must be safe for
// concurrent use; a failing backend behaves as a miss.
//
// Get reports the cache generation alongside the lookup, hit or miss. Set
// stores perms only if that generation is still current, so a set computed
// before an Invalidate is dropped.
type PermissionCache interface {
	Get(ctx context.Context, userID int64) (perms []EffectivePermission, gen int64, ok bool)
	Set(ctx context.Context, userID, gen int64, perms []EffectivePermission)
	Invalidate(ctx context.Context)
}

type NoopCache struct{}

func (NoopCache) Get(context.Context, int64) ([]EffectivePermission, int64, bool) {
	return nil, NoGeneration, false
}
func (NoopCache) Set(context.Context, int64, int64, []EffectivePermission) {}
func (NoopCache) Invalidate(context.Context) {}

// MemoryCache keeps permission sets in a process-local LRU with a TTL.
type MemoryCache struct {
	mu  sync.Mutex
	gen int64
	lru *expirable.LRU[int64, []EffectivePermission]
}

func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	if size <= 0 {
		size = 1024
	}
	return &MemoryCache{lru: expirable.NewLRU[int64, []EffectivePermission](size, nil, ttl)}
}

func (c *MemoryCache) Get(_ context.Context, userID int64) ([]EffectivePermission, int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	perms, ok := c.lru.Get(userID)
	if !ok {
		return nil, c.gen, false
	}
	return copyPermissions(perms), c.gen, true
}

func (c *MemoryCache) Set(_ context.Context, userID, gen int64, perms []EffectivePermission) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.lru.Add(userID, copyPermissions(perms))
}

func (c *MemoryCache) Invalidate(context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.lru.Purge()
}

func (c *MemoryCache) Len() int {
	return c.lru.Len()
}

func copyPermissions(perms []EffectivePermission) []EffectivePermission {
	out := make([]EffectivePermission, len(perms))
	copy(out, perms)
	return out
}

// RedisCache shares permission sets between instances. Keys embed a
// generation number; Invalidate bumps it so stale entries are never read
// again and simply expire. Set writes under the generation Get saw, so a set
// computed across an Invalidate lands on a key nobody reads.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration, logger *slog.Logger) *RedisCache {
	if prefix == "" {
		prefix = "iam"
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl, logger: logger}
}

// NewRedisClient parses url and pings the server.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (c *RedisCache) generationKey() string {
	return c.prefix + ":perm:gen"
}

func (c *RedisCache) generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, c.generationKey()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (c *RedisCache) userKey(gen, userID int64) string {
	return fmt.Sprintf("%s:perm:%d:user:%d", c.prefix, gen, userID)
}

func (c *RedisCache) Get(ctx context.Context, userID int64) ([]EffectivePermission, int64, bool) {
	gen, err := c.generation(ctx)
	if err != nil {
		c.logger.Warn("permission cache: read generation failed", "error", err)
		return nil, NoGeneration, false
	}
	raw, err := c.client.Get(ctx, c.userKey(gen, userID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("permission cache: get failed", "error", err, "user_id", userID)
		}
		return nil, gen, false
	}
	var perms []EffectivePermission
	if err := json.Unmarshal(raw, &perms); err != nil {
		c.logger.Warn("permission cache: corrupt entry", "error", err, "user_id", userID)
		return nil, gen, false
	}
	return perms, gen, true
}

func (c *RedisCache) Set(ctx context.Context, userID, gen int64, perms []EffectivePermission) {
	if gen == NoGeneration {
		return
	}
	raw, err := json.Marshal(perms)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.userKey(gen, userID), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("permission cache: set failed", "error", err, "user_id", userID)
	}
}

func (c *RedisCache) Invalidate(ctx context.Context) {
	if err := c.client.Incr(ctx, c.generationKey()).Err(); err != nil {
		c.logger.Error("permission cache: invalidate failed", "error", err)
	}
}
