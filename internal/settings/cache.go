package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Cache is a read-through Store decorator. Each company has a version key;
// writes bump it so the writer's next read misses the cache.
type Cache struct {
	next   Store
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

// NewCache wraps next. A nil client disables caching.
func NewCache(next Store, client *redis.Client, ttl time.Duration, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{next: next, client: client, ttl: ttl, logger: logger}
}

func versionKey(companyID int64) string {
	return "threeway:settings:" + strconv.FormatInt(companyID, 10) + ":version"
}

// Version returns the current cache version for the company, initialising when missing.
func (c *Cache) Version(ctx context.Context, companyID int64) (int64, error) {
	if c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, versionKey(companyID)).Int64()
	if errors.Is(err, redis.Nil) {
		// SETNX keeps a concurrent Bump from being overwritten.
		if err := c.client.SetNX(ctx, versionKey(companyID), 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, versionKey(companyID)).Int64()
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

func (c *Cache) buildKey(ctx context.Context, companyID int64, keys []string) (string, error) {
	ver, err := c.Version(ctx, companyID)
	if err != nil {
		return "", err
	}
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	selector := "*"
	if len(sorted) > 0 {
		selector = strings.Join(sorted, ",")
	}
	return fmt.Sprintf("threeway:settings:%d:%d:%s", companyID, ver, selector), nil
}

// Get serves settings from Redis, falling back to the backing store. Redis
// failures degrade to a direct read.
func (c *Cache) Get(ctx context.Context, companyID int64, keys ...string) (map[string]string, error) {
	if c.client == nil {
		return c.next.Get(ctx, companyID, keys...)
	}
	key, err := c.buildKey(ctx, companyID, keys)
	if err != nil {
		c.logger.Warn("settings cache version", slog.Int64("company_id", companyID), slog.Any("error", err))
		return c.next.Get(ctx, companyID, keys...)
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var out map[string]string
		if jsonErr := json.Unmarshal(payload, &out); jsonErr == nil {
			return out, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("settings cache read", slog.String("key", key), slog.Any("error", err))
		return c.next.Get(ctx, companyID, keys...)
	}

	resultCh := c.group.DoChan(key, func() (interface{}, error) {
		values, err := c.next.Get(ctx, companyID, keys...)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(values)
		if err != nil {
			return nil, err
		}
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			c.logger.Warn("settings cache write", slog.String("key", key), slog.Any("error", err))
		}
		return values, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultCh:
		if res.Err != nil {
			return nil, res.Err
		}
		return copyValues(res.Val.(map[string]string)), nil
	}
}

// Put writes through and invalidates the company's cached entries.
func (c *Cache) Put(ctx context.Context, companyID int64, values map[string]string) error {
	if err := c.next.Put(ctx, companyID, values); err != nil {
		return err
	}
	return c.Bump(ctx, companyID)
}

// Bump invalidates cached settings for a company by incrementing its version.
func (c *Cache) Bump(ctx context.Context, companyID int64) error {
	if c.client == nil {
		return nil
	}
	if err := c.client.Incr(ctx, versionKey(companyID)).Err(); err != nil {
		return fmt.Errorf("settings: bump cache version: %w", err)
	}
	return nil
}

func copyValues(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
