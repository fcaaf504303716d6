// Package settings stores company-scoped key/value configuration and serves
// it through a versioned Redis cache.
package settings

import "context"

// Store is the narrow read/write port consumed by the match engine.
// Get returns only the keys that are set; with no keys it returns every
// setting of the company.
type Store interface {
	Get(ctx context.Context, companyID int64, keys ...string) (map[string]string, error)
	Put(ctx context.Context, companyID int64, values map[string]string) error
}
