package settings

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/threeway/internal/platform/db"
)

// Repository persists settings in the company_settings table.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the Postgres settings store.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get loads settings for a company.
func (r *Repository) Get(ctx context.Context, companyID int64, keys ...string) (map[string]string, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if len(keys) == 0 {
		rows, err = r.pool.Query(ctx, `SELECT key, value FROM company_settings WHERE company_id = $1`, companyID)
	} else {
		rows, err = r.pool.Query(ctx, `SELECT key, value FROM company_settings WHERE company_id = $1 AND key = ANY($2)`, companyID, keys)
	}
	if err != nil {
		return nil, fmt.Errorf("settings: load company %d: %w", companyID, err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		out[key] = value
	}
	return out, rows.Err()
}

// Put upserts every value in one transaction.
func (r *Repository) Put(ctx context.Context, companyID int64, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	now := time.Now().UTC()
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for key, value := range values {
			if _, err := tx.Exec(ctx, `INSERT INTO company_settings (company_id, key, value, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (company_id, key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`, companyID, key, value, now); err != nil {
				return fmt.Errorf("settings: put %s for company %d: %w", key, companyID, err)
			}
		}
		return nil
	})
}
