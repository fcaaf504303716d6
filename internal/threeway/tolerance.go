package threeway

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/threeway/internal/procurement"
	"github.com/odyssey-erp/threeway/internal/settings"
	"github.com/odyssey-erp/threeway/internal/shared"
)

// Tolerance is the allowed variance; a pair matches when either bound holds.
type Tolerance struct {
	Pct decimal.Decimal `json:"pct"`
	Abs decimal.Decimal `json:"abs"`
}

// Validate rejects negative bounds.
func (t Tolerance) Validate() error {
	if t.Pct.IsNegative() || t.Abs.IsNegative() {
		return fmt.Errorf("threeway: tolerance must not be negative: %w", shared.ErrValidation)
	}
	return nil
}

// ToleranceKeys returns the settings keys holding pct and abs for a purchase type.
func ToleranceKeys(purchaseType procurement.PurchaseType) (pctKey, absKey string) {
	return "three_way_tolerance_pct_" + string(purchaseType), "three_way_tolerance_abs_" + string(purchaseType)
}

// Policy resolves the effective tolerance of a company.
type Policy struct {
	store    settings.Store
	defaults Tolerance
	logger   *slog.Logger
}

// NewPolicy builds a policy falling back to defaults for unset keys.
func NewPolicy(store settings.Store, defaults Tolerance, logger *slog.Logger) *Policy {
	if logger == nil {
		logger = slog.Default()
	}
	return &Policy{store: store, defaults: defaults, logger: logger}
}

// Defaults returns the deployment-wide fallback.
func (p *Policy) Defaults() Tolerance {
	return p.defaults
}

// Effective returns the tolerance for a company and purchase type. Missing
// or unparsable values fall back to the defaults independently.
func (p *Policy) Effective(ctx context.Context, companyID int64, purchaseType procurement.PurchaseType) (Tolerance, error) {
	if !purchaseType.Valid() {
		p.logger.Warn("unknown purchase type, using default tolerance",
			slog.Int64("company_id", companyID), slog.String("purchase_type", string(purchaseType)))
		return p.defaults, nil
	}
	pctKey, absKey := ToleranceKeys(purchaseType)
	values, err := p.store.Get(ctx, companyID, pctKey, absKey)
	if err != nil {
		return Tolerance{}, fmt.Errorf("threeway: load tolerance for company %d: %w", companyID, err)
	}
	return Tolerance{
		Pct: p.parse(companyID, pctKey, values, p.defaults.Pct),
		Abs: p.parse(companyID, absKey, values, p.defaults.Abs),
	}, nil
}

func (p *Policy) parse(companyID int64, key string, values map[string]string, fallback decimal.Decimal) decimal.Decimal {
	raw, ok := values[key]
	if !ok || raw == "" {
		return fallback
	}
	v, err := decimal.NewFromString(raw)
	if err != nil || v.IsNegative() {
		p.logger.Warn("ignoring malformed tolerance setting",
			slog.Int64("company_id", companyID), slog.String("key", key), slog.String("value", raw))
		return fallback
	}
	return v
}

// Set stores the tolerance of a company for one purchase type.
func (p *Policy) Set(ctx context.Context, companyID int64, purchaseType procurement.PurchaseType, tol Tolerance) error {
	if !purchaseType.Valid() {
		return fmt.Errorf("threeway: unknown purchase type %q: %w", purchaseType, shared.ErrValidation)
	}
	if err := tol.Validate(); err != nil {
		return err
	}
	pctKey, absKey := ToleranceKeys(purchaseType)
	return p.store.Put(ctx, companyID, map[string]string{
		pctKey: tol.Pct.String(),
		absKey: tol.Abs.String(),
	})
}
