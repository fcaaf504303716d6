// Package billing reads vendor bills owned by the payables subsystem.
package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/threeway/internal/platform/db"
	"github.com/odyssey-erp/threeway/internal/shared"
)

// VendorBill is the read-only view of a supplier invoice.
type VendorBill struct {
	ID        int64           `json:"id"`
	CompanyID int64           `json:"company_id"`
	VendorID  int64           `json:"vendor_id"`
	Number    string          `json:"number"`
	Total     decimal.Decimal `json:"total"`
	Currency  string          `json:"currency"`
	BillDate  time.Time       `json:"bill_date"`
}

// Load fetches a bill by id through q, which may be a pool or a transaction.
func Load(ctx context.Context, q db.Querier, id int64) (VendorBill, error) {
	var bill VendorBill
	err := q.QueryRow(ctx, `SELECT id, company_id, vendor_id, number, total, currency, bill_date
FROM vendor_bills WHERE id = $1`, id).Scan(
		&bill.ID, &bill.CompanyID, &bill.VendorID, &bill.Number, &bill.Total, &bill.Currency, &bill.BillDate,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return VendorBill{}, fmt.Errorf("billing: bill %d: %w", id, shared.ErrNotFound)
	}
	if err != nil {
		return VendorBill{}, fmt.Errorf("billing: load bill %d: %w", id, err)
	}
	return bill, nil
}
