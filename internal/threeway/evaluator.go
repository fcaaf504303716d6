package threeway

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/threeway/internal/billing"
	"github.com/odyssey-erp/threeway/internal/procurement"
)

var hundred = decimal.NewFromInt(100)

// MatchResult is the variance of a PO/bill pair and its classification.
type MatchResult struct {
	Matched   bool            `json:"matched"`
	POTotal   decimal.Decimal `json:"po_total"`
	BillTotal decimal.Decimal `json:"bill_total"`
	Diff      decimal.Decimal `json:"diff"`
	PctDiff   decimal.Decimal `json:"pct_diff"`
	Tolerance Tolerance       `json:"tolerance"`
}

// Evaluate compares totals. A zero PO against a zero bill is a 0% variance;
// any other bill against a zero PO is 100%. Either tolerance bound passing is
// enough to match.
func Evaluate(poTotal, billTotal decimal.Decimal, tol Tolerance) MatchResult {
	diff := billTotal.Sub(poTotal)
	var pct decimal.Decimal
	switch {
	case poTotal.IsZero() && billTotal.IsZero():
		pct = decimal.Zero
	case poTotal.IsZero():
		pct = hundred
	default:
		pct = diff.Div(poTotal).Mul(hundred)
	}
	matched := diff.Abs().LessThanOrEqual(tol.Abs) || pct.Abs().LessThanOrEqual(tol.Pct)
	return MatchResult{
		Matched:   matched,
		POTotal:   poTotal,
		BillTotal: billTotal,
		Diff:      diff,
		PctDiff:   pct.Round(4),
		Tolerance: tol,
	}
}

// EvaluateMatch evaluates a purchase order against a vendor bill.
func EvaluateMatch(po procurement.PurchaseOrder, bill billing.VendorBill, tol Tolerance) MatchResult {
	return Evaluate(po.Total(), bill.Total.Round(2), tol)
}
