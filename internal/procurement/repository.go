package procurement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/threeway/internal/audit"
	"github.com/odyssey-erp/threeway/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
	return db.TranslateError(err)
}

// GetPurchaseOrder returns an order and its lines without locking.
func (r *Repository) GetPurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, error) {
	return LoadPurchaseOrder(ctx, r.pool, id, false)
}

// ListReceipts returns receipts with items for an order.
func (r *Repository) ListReceipts(ctx context.Context, poID int64) ([]Receipt, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, number, po_id, received_at, partial, notes, actor_id
FROM receipts WHERE po_id = $1 ORDER BY received_at, id`, poID)
	if err != nil {
		return nil, err
	}
	var receipts []Receipt
	index := make(map[int64]int)
	for rows.Next() {
		var rc Receipt
		if err := rows.Scan(&rc.ID, &rc.Number, &rc.POID, &rc.ReceivedAt, &rc.Partial, &rc.Notes, &rc.ActorID); err != nil {
			rows.Close()
			return nil, err
		}
		index[rc.ID] = len(receipts)
		receipts = append(receipts, rc)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(receipts) == 0 {
		return []Receipt{}, nil
	}

	itemRows, err := r.pool.Query(ctx, `SELECT ri.id, ri.receipt_id, ri.po_line_id, ri.quantity_received, ri.quantity_accepted, ri.quantity_rejected, ri.rejection_reason
FROM receipt_items ri JOIN receipts r ON r.id = ri.receipt_id
WHERE r.po_id = $1 ORDER BY ri.id`, poID)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()
	for itemRows.Next() {
		var item ReceiptItem
		if err := itemRows.Scan(&item.ID, &item.ReceiptID, &item.POLineID, &item.QuantityReceived, &item.QuantityAccepted, &item.QuantityRejected, &item.RejectionReason); err != nil {
			return nil, err
		}
		if i, ok := index[item.ReceiptID]; ok {
			receipts[i].Items = append(receipts[i].Items, item)
		}
	}
	return receipts, itemRows.Err()
}

// LoadPurchaseOrder reads an order header and lines through q. With forUpdate
// the header and line rows stay locked until q's transaction ends.
func LoadPurchaseOrder(ctx context.Context, q db.Querier, id int64, forUpdate bool) (PurchaseOrder, error) {
	headerSQL := `SELECT po.id, po.number, po.company_id, po.vendor_id, v.name, po.currency, po.purchase_type, po.status, po.updated_at
FROM purchase_orders po JOIN vendors v ON v.id = po.vendor_id
WHERE po.id = $1`
	linesSQL := `SELECT id, po_id, description, ordered_qty, unit_price, tax_rate, received_qty
FROM purchase_order_lines WHERE po_id = $1 ORDER BY id`
	if forUpdate {
		headerSQL += " FOR UPDATE OF po"
		linesSQL += " FOR UPDATE"
	}

	var (
		po           PurchaseOrder
		purchaseType string
		status       string
	)
	err := q.QueryRow(ctx, headerSQL, id).Scan(
		&po.ID, &po.Number, &po.CompanyID, &po.VendorID, &po.VendorName, &po.Currency, &purchaseType, &status, &po.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return PurchaseOrder{}, fmt.Errorf("%w: purchase order %d", ErrNotFound, id)
	}
	if err != nil {
		return PurchaseOrder{}, fmt.Errorf("procurement: load purchase order %d: %w", id, err)
	}
	po.PurchaseType = PurchaseType(purchaseType)
	po.Status = POStatus(status)

	rows, err := q.Query(ctx, linesSQL, id)
	if err != nil {
		return PurchaseOrder{}, fmt.Errorf("procurement: load lines of %d: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		var line POLine
		if err := rows.Scan(&line.ID, &line.POID, &line.Description, &line.OrderedQty, &line.UnitPrice, &line.TaxRate, &line.ReceivedQty); err != nil {
			return PurchaseOrder{}, err
		}
		po.Lines = append(po.Lines, line)
	}
	return po, rows.Err()
}

func (t *txRepo) LockPurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, error) {
	return LoadPurchaseOrder(ctx, t.tx, id, true)
}

func (t *txRepo) SetLineReceived(ctx context.Context, lineID int64, received decimal.Decimal) error {
	tag, err := t.tx.Exec(ctx, `UPDATE purchase_order_lines SET received_qty = $2 WHERE id = $1`, lineID, received)
	if err != nil {
		return fmt.Errorf("procurement: update line %d: %w", lineID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: line %d", ErrNotFound, lineID)
	}
	return nil
}

func (t *txRepo) UpdatePOStatus(ctx context.Context, id int64, status POStatus, at time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE purchase_orders SET status = $2, updated_at = $3 WHERE id = $1`, id, string(status), at)
	if err != nil {
		return fmt.Errorf("procurement: update status of %d: %w", id, err)
	}
	return nil
}

func (t *txRepo) CreateReceipt(ctx context.Context, receipt Receipt) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO receipts (number, po_id, received_at, partial, notes, actor_id)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		receipt.Number, receipt.POID, receipt.ReceivedAt, receipt.Partial, receipt.Notes, receipt.ActorID,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("procurement: insert receipt: %w", err)
	}
	return id, nil
}

func (t *txRepo) InsertReceiptItem(ctx context.Context, item ReceiptItem) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO receipt_items (receipt_id, po_line_id, quantity_received, quantity_accepted, quantity_rejected, rejection_reason)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		item.ReceiptID, item.POLineID, item.QuantityReceived, item.QuantityAccepted, item.QuantityRejected, item.RejectionReason,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("procurement: insert receipt item: %w", err)
	}
	return id, nil
}

func (t *txRepo) AppendAudit(ctx context.Context, entry audit.Entry) error {
	return audit.Insert(ctx, t.tx, entry)
}
