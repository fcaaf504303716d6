package procurement

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/threeway/internal/shared"
)

// PurchaseType selects which tolerance pair applies to an order.
type PurchaseType string

const (
	PurchaseTypeLocal  PurchaseType = "local"
	PurchaseTypeImport PurchaseType = "import"
)

// Valid reports whether the purchase type is known.
func (t PurchaseType) Valid() bool {
	return t == PurchaseTypeLocal || t == PurchaseTypeImport
}

// Purchase order lifecycle statuses.
type POStatus string

const (
	POStatusDraft     POStatus = "draft"
	POStatusSent      POStatus = "sent"
	POStatusApproved  POStatus = "approved"
	POStatusReceived  POStatus = "received"
	POStatusClosed    POStatus = "closed"
	POStatusCancelled POStatus = "cancelled"
)

var poStatusOrder = map[POStatus]int{
	POStatusDraft:    0,
	POStatusSent:     1,
	POStatusApproved: 2,
	POStatusReceived: 3,
	POStatusClosed:   4,
}

// Valid reports whether the status is known.
func (s POStatus) Valid() bool {
	if s == POStatusCancelled {
		return true
	}
	_, ok := poStatusOrder[s]
	return ok
}

// CanTransitionTo reports whether the order may move from s to next. Statuses
// only advance; cancelled is terminal and reachable from any open status.
func (s POStatus) CanTransitionTo(next POStatus) bool {
	if s == POStatusCancelled || s == POStatusClosed || s == next {
		return false
	}
	if next == POStatusCancelled {
		return s.Valid()
	}
	from, ok := poStatusOrder[s]
	if !ok {
		return false
	}
	to, ok := poStatusOrder[next]
	return ok && to > from
}

// CanReceive reports whether goods may be booked against the order.
func (s POStatus) CanReceive() bool {
	return s == POStatusSent || s == POStatusApproved || s == POStatusReceived
}

// CanMatch reports whether the order may be paired with a vendor bill.
func (s POStatus) CanMatch() bool {
	return s.Valid() && s != POStatusDraft && s != POStatusCancelled
}

// PurchaseOrder is the ordered side of the three-way match.
type PurchaseOrder struct {
	ID           int64        `json:"id"`
	Number       string       `json:"number"`
	CompanyID    int64        `json:"company_id"`
	VendorID     int64        `json:"vendor_id"`
	VendorName   string       `json:"vendor_name"`
	Currency     string       `json:"currency"`
	PurchaseType PurchaseType `json:"purchase_type"`
	Status       POStatus     `json:"status"`
	UpdatedAt    time.Time    `json:"updated_at"`
	Lines        []POLine     `json:"lines"`
}

// Total sums line totals, rounded to cents.
func (po PurchaseOrder) Total() decimal.Decimal {
	total := decimal.Zero
	for _, line := range po.Lines {
		total = total.Add(line.Total())
	}
	return total.Round(2)
}

// FullyReceived reports whether every line has reached its ordered quantity.
func (po PurchaseOrder) FullyReceived() bool {
	for _, line := range po.Lines {
		if !line.FullyReceived() {
			return false
		}
	}
	return true
}

// POLine represents an ordered line with its cumulative receipts.
type POLine struct {
	ID          int64           `json:"id"`
	POID        int64           `json:"po_id"`
	Description string          `json:"description"`
	OrderedQty  decimal.Decimal `json:"ordered_qty"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TaxRate     decimal.Decimal `json:"tax_rate"`
	ReceivedQty decimal.Decimal `json:"received_qty"`
}

// Total is quantity × unit price × (1 + tax rate).
func (l POLine) Total() decimal.Decimal {
	return l.OrderedQty.Mul(l.UnitPrice).Mul(decimal.NewFromInt(1).Add(l.TaxRate))
}

// Outstanding is the quantity still expected.
func (l POLine) Outstanding() decimal.Decimal {
	return l.OrderedQty.Sub(l.ReceivedQty)
}

// FullyReceived reports whether nothing is outstanding.
func (l POLine) FullyReceived() bool {
	return l.ReceivedQty.GreaterThanOrEqual(l.OrderedQty)
}

// Receipt records one goods-receiving submission. Receipts are never edited.
type Receipt struct {
	ID         int64         `json:"id"`
	Number     string        `json:"number"`
	POID       int64         `json:"po_id"`
	ReceivedAt time.Time     `json:"received_at"`
	Partial    bool          `json:"partial_receipt"`
	Notes      string        `json:"notes"`
	ActorID    int64         `json:"actor_id"`
	Items      []ReceiptItem `json:"items"`
}

// ReceiptItem books quantities against one PO line.
type ReceiptItem struct {
	ID               int64           `json:"id"`
	ReceiptID        int64           `json:"receipt_id"`
	POLineID         int64           `json:"po_line_id"`
	QuantityReceived decimal.Decimal `json:"quantity_received"`
	QuantityAccepted decimal.Decimal `json:"quantity_accepted"`
	QuantityRejected decimal.Decimal `json:"quantity_rejected"`
	RejectionReason  string          `json:"rejection_reason,omitempty"`
}

var (
	// ErrInvalidState occurs when action violates status workflow.
	ErrInvalidState = fmt.Errorf("procurement: %w", shared.ErrInvalidTransition)
	// ErrNotFound indicates record missing.
	ErrNotFound = fmt.Errorf("procurement: %w", shared.ErrNotFound)
	// ErrValidation indicates invalid input.
	ErrValidation = fmt.Errorf("procurement: invalid input: %w", shared.ErrValidation)
)
