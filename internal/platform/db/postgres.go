package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/threeway/internal/shared"
)

// New creates a new PostgreSQL connection pool.
func New(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("platform/db: parse config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("platform/db: new pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("platform/db: ping: %w", err)
	}

	return pool, nil
}

// Pools pairs the primary with an optional read replica.
type Pools struct {
	Primary *pgxpool.Pool
	Replica *pgxpool.Pool
}

// Reader returns the pool list queries should use. The primary is returned when
// no replica is configured or the caller asked to read its own writes.
func (p Pools) Reader(ctx context.Context) Querier {
	if p.Replica == nil || shared.PrimaryReadRequested(ctx) {
		return p.Primary
	}
	return p.Replica
}

// Close releases both pools.
func (p Pools) Close() {
	if p.Replica != nil && p.Replica != p.Primary {
		p.Replica.Close()
	}
	if p.Primary != nil {
		p.Primary.Close()
	}
}
