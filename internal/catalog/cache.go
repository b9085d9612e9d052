package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/angelmondragon/shopfeed-backend/pkg/logger"
	"github.com/angelmondragon/shopfeed-backend/pkg/redis"
)

// CacheStore is the subset of the redis client used for catalog read caching.
type CacheStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Incr(ctx context.Context, key string) (int64, error)
	CacheKey(parts ...string) string
}

// readCache is a versioned cache-aside layer. Every catalog write bumps the
// version, which orphans all previously cached entries at once.
type readCache struct {
	store CacheStore
	logg  *logger.Logger
}

func (c *readCache) enabled() bool {
	return c != nil && c.store != nil
}

func (c *readCache) versionKey() string {
	return c.store.CacheKey("catalog", "version")
}

func (c *readCache) version(ctx context.Context) (string, error) {
	v, err := c.store.Get(ctx, c.versionKey())
	if errors.Is(err, redis.ErrNil) {
		return "0", nil
	}
	return v, err
}

// Bump invalidates every cached catalog read.
func (c *readCache) Bump(ctx context.Context) {
	if !c.enabled() {
		return
	}
	if _, err := c.store.Incr(ctx, c.versionKey()); err != nil {
		c.warn(ctx, "catalog.cache.bump_failed", err)
	}
}

func (c *readCache) warn(ctx context.Context, msg string, err error) {
	if c.logg == nil {
		return
	}
	c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), msg)
}

// loadCached returns the cached value for the key parts or computes, stores
// and returns it. Cache failures never fail the read.
func loadCached[T any](ctx context.Context, c *readCache, ttl time.Duration, load func() (T, error), parts ...string) (T, error) {
	if !c.enabled() {
		return load()
	}

	version, err := c.version(ctx)
	if err != nil {
		c.warn(ctx, "catalog.cache.version_failed", err)
		return load()
	}
	key := c.store.CacheKey(append([]string{parts[0], "v" + version}, parts[1:]...)...)

	if raw, err := c.store.Get(ctx, key); err == nil {
		var cached T
		if jsonErr := json.Unmarshal([]byte(raw), &cached); jsonErr == nil {
			return cached, nil
		}
	} else if !errors.Is(err, redis.ErrNil) {
		c.warn(ctx, "catalog.cache.read_failed", err)
	}

	value, err := load()
	if err != nil {
		return value, err
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return value, nil
	}
	if err := c.store.Set(ctx, key, encoded, ttl); err != nil {
		c.warn(ctx, "catalog.cache.write_failed", err)
	}
	return value, nil
}

func optionalID(id *int64) string {
	if id == nil {
		return "all"
	}
	return strconv.FormatInt(*id, 10)
}
