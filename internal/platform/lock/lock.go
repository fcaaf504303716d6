// Package lock provides short-lived distributed mutexes backed by Redis.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/threeway/internal/shared"
)

// ErrBusy is returned when the key stays held past the wait budget.
var ErrBusy = fmt.Errorf("lock: resource busy: %w", shared.ErrConflict)

// Locker serialises critical sections across API and worker processes.
// A nil Locker runs the callback without locking; row locks in Postgres
// still guard correctness in that case.
type Locker struct {
	client *redislock.Client
	ttl    time.Duration
	wait   time.Duration
	logger *slog.Logger
}

// Config tunes lock lifetimes.
type Config struct {
	TTL    time.Duration
	Wait   time.Duration
	Logger *slog.Logger
}

// New constructs a Locker on top of the Redis client.
func New(rdb redis.UniversalClient, cfg Config) *Locker {
	if rdb == nil {
		return nil
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	if cfg.Wait <= 0 {
		cfg.Wait = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Locker{client: redislock.New(rdb), ttl: cfg.TTL, wait: cfg.Wait, logger: cfg.Logger}
}

// WithLock obtains key, runs fn and releases the lock.
func (l *Locker) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	if l == nil || l.client == nil {
		return fn(ctx)
	}
	obtainCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	held, err := l.client.Obtain(obtainCtx, key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(50*time.Millisecond), int(l.wait/(50*time.Millisecond))),
	})
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) || errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s", ErrBusy, key)
		}
		return fmt.Errorf("lock: obtain %s: %w", key, err)
	}
	defer func() {
		if err := held.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			l.logger.Warn("lock release", slog.String("key", key), slog.Any("error", err))
		}
	}()

	return fn(ctx)
}
