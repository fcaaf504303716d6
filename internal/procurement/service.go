package procurement

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/threeway/internal/audit"
	"github.com/odyssey-erp/threeway/internal/shared"
)

const idempotencyModuleReceive = "procurement.receive"

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, error)
	ListReceipts(ctx context.Context, poID int64) ([]Receipt, error)
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	LockPurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, error)
	SetLineReceived(ctx context.Context, lineID int64, received decimal.Decimal) error
	UpdatePOStatus(ctx context.Context, id int64, status POStatus, at time.Time) error
	CreateReceipt(ctx context.Context, receipt Receipt) (int64, error)
	InsertReceiptItem(ctx context.Context, item ReceiptItem) (int64, error)
	AppendAudit(ctx context.Context, entry audit.Entry) error
}

// Locker serialises work on a single purchase order across processes.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(context.Context) error) error
}

// IdempotencyPort records processed request keys.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Service orchestrates the receiving ledger.
type Service struct {
	repo        RepositoryPort
	locker      Locker
	idempotency IdempotencyPort
	logger      *slog.Logger
	now         func() time.Time
}

// NewService constructs procurement service. locker and idem may be nil.
func NewService(repo RepositoryPort, locker Locker, idem IdempotencyPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, locker: locker, idempotency: idem, logger: logger, now: time.Now}
}

// ReceiveInput describes one goods-receiving submission.
type ReceiveInput struct {
	POID           int64
	Lines          []ReceiveLineInput
	Notes          string
	ActorID        int64
	IdempotencyKey string
}

// ReceiveLineInput is the quantity arriving for one PO line.
type ReceiveLineInput struct {
	LineID           int64
	QuantityReceived decimal.Decimal
	QuantityRejected decimal.Decimal
	RejectionReason  string
}

type receiveLine struct {
	lineID   int64
	received decimal.Decimal
	rejected decimal.Decimal
	reasons  []string
}

// ReceiveGoods books received quantities against PO lines. Lines with a
// non-positive quantity are skipped. Either every line is applied or none.
// When nothing remains the returned receipt has no id and nothing is written.
func (s *Service) ReceiveGoods(ctx context.Context, input ReceiveInput) (Receipt, error) {
	if input.POID <= 0 {
		return Receipt{}, fmt.Errorf("%w: purchase order id required", ErrValidation)
	}
	lines, err := collectReceiveLines(input.Lines)
	if err != nil {
		return Receipt{}, err
	}
	if len(lines) == 0 {
		s.logger.Debug("receive skipped, no positive quantities", slog.Int64("po_id", input.POID))
		return Receipt{POID: input.POID, Notes: input.Notes, ActorID: input.ActorID, Items: []ReceiptItem{}}, nil
	}

	key := strings.TrimSpace(input.IdempotencyKey)
	if key != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, idempotencyModuleReceive); err != nil {
			return Receipt{}, err
		}
	}

	var receipt Receipt
	err = s.withPOLock(ctx, input.POID, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			var txErr error
			receipt, txErr = s.receiveTx(ctx, tx, input, lines)
			return txErr
		})
	})
	if err != nil {
		if key != "" && s.idempotency != nil {
			if delErr := s.idempotency.Delete(ctx, key); delErr != nil {
				s.logger.Warn("release idempotency key", slog.String("key", key), slog.Any("error", delErr))
			}
		}
		return Receipt{}, err
	}
	s.logger.Info("goods received",
		slog.Int64("po_id", receipt.POID),
		slog.String("receipt", receipt.Number),
		slog.Bool("partial", receipt.Partial),
		slog.Int("items", len(receipt.Items)),
	)
	return receipt, nil
}

func (s *Service) receiveTx(ctx context.Context, tx TxRepository, input ReceiveInput, lines []receiveLine) (Receipt, error) {
	po, err := tx.LockPurchaseOrder(ctx, input.POID)
	if err != nil {
		return Receipt{}, err
	}
	if !po.Status.CanReceive() {
		return Receipt{}, fmt.Errorf("%w: cannot receive against %s purchase order %d", ErrInvalidState, po.Status, po.ID)
	}

	index := make(map[int64]int, len(po.Lines))
	for i, line := range po.Lines {
		index[line.ID] = i
	}
	for _, req := range lines {
		i, ok := index[req.lineID]
		if !ok {
			return Receipt{}, fmt.Errorf("%w: line %d on purchase order %d", ErrNotFound, req.lineID, po.ID)
		}
		line := po.Lines[i]
		if line.ReceivedQty.Add(req.received).GreaterThan(line.OrderedQty) {
			return Receipt{}, fmt.Errorf("procurement: line %d receives %s with %s of %s already received: %w",
				line.ID, req.received, line.ReceivedQty, line.OrderedQty, shared.ErrOverReceipt)
		}
	}

	now := s.now().UTC()
	for _, req := range lines {
		i := index[req.lineID]
		po.Lines[i].ReceivedQty = po.Lines[i].ReceivedQty.Add(req.received)
		if err := tx.SetLineReceived(ctx, req.lineID, po.Lines[i].ReceivedQty); err != nil {
			return Receipt{}, err
		}
	}

	receipt := Receipt{
		Number:     generateNumber("GRN", now),
		POID:       po.ID,
		ReceivedAt: now,
		Partial:    !po.FullyReceived(),
		Notes:      strings.TrimSpace(input.Notes),
		ActorID:    input.ActorID,
	}
	receiptID, err := tx.CreateReceipt(ctx, receipt)
	if err != nil {
		return Receipt{}, err
	}
	receipt.ID = receiptID
	for _, req := range lines {
		item := ReceiptItem{
			ReceiptID:        receiptID,
			POLineID:         req.lineID,
			QuantityReceived: req.received,
			QuantityAccepted: req.received.Sub(req.rejected),
			QuantityRejected: req.rejected,
			RejectionReason:  strings.Join(req.reasons, "; "),
		}
		itemID, err := tx.InsertReceiptItem(ctx, item)
		if err != nil {
			return Receipt{}, err
		}
		item.ID = itemID
		receipt.Items = append(receipt.Items, item)
	}

	if !receipt.Partial && po.Status != POStatusReceived {
		if err := tx.UpdatePOStatus(ctx, po.ID, POStatusReceived, now); err != nil {
			return Receipt{}, err
		}
	}

	payload := map[string]any{
		"receipt_id":     receipt.ID,
		"receipt_number": receipt.Number,
		"partial":        receipt.Partial,
		"items":          receiptItemSnapshot(receipt.Items),
	}
	if err := tx.AppendAudit(ctx, audit.NewEntry(po.ID, audit.ActionReceive, input.ActorID, payload, now)); err != nil {
		return Receipt{}, err
	}
	return receipt, nil
}

// collectReceiveLines drops non-positive lines, validates rejections and
// merges repeated line ids.
func collectReceiveLines(inputs []ReceiveLineInput) ([]receiveLine, error) {
	var out []receiveLine
	pos := make(map[int64]int)
	for _, in := range inputs {
		if !in.QuantityReceived.IsPositive() {
			continue
		}
		if in.LineID <= 0 {
			return nil, fmt.Errorf("%w: line id required", ErrValidation)
		}
		if in.QuantityRejected.IsNegative() || in.QuantityRejected.GreaterThan(in.QuantityReceived) {
			return nil, fmt.Errorf("%w: line %d rejects %s of %s received", ErrValidation, in.LineID, in.QuantityRejected, in.QuantityReceived)
		}
		reason := strings.TrimSpace(in.RejectionReason)
		i, seen := pos[in.LineID]
		if !seen {
			pos[in.LineID] = len(out)
			out = append(out, receiveLine{lineID: in.LineID, received: decimal.Zero, rejected: decimal.Zero})
			i = len(out) - 1
		}
		out[i].received = out[i].received.Add(in.QuantityReceived)
		out[i].rejected = out[i].rejected.Add(in.QuantityRejected)
		if reason != "" {
			out[i].reasons = append(out[i].reasons, reason)
		}
	}
	return out, nil
}

// GetPurchaseOrder returns an order with its lines.
func (s *Service) GetPurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, error) {
	return s.repo.GetPurchaseOrder(ctx, id)
}

// ListReceipts returns receipts of an order, oldest first.
func (s *Service) ListReceipts(ctx context.Context, poID int64) ([]Receipt, error) {
	if _, err := s.repo.GetPurchaseOrder(ctx, poID); err != nil {
		return nil, err
	}
	return s.repo.ListReceipts(ctx, poID)
}

// TransitionStatus moves an order along its lifecycle, rejecting backwards moves.
func (s *Service) TransitionStatus(ctx context.Context, poID int64, next POStatus, actorID int64) (PurchaseOrder, error) {
	if !next.Valid() {
		return PurchaseOrder{}, fmt.Errorf("%w: unknown status %q", ErrValidation, next)
	}
	var updated PurchaseOrder
	err := s.withPOLock(ctx, poID, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			po, err := tx.LockPurchaseOrder(ctx, poID)
			if err != nil {
				return err
			}
			if !po.Status.CanTransitionTo(next) {
				return fmt.Errorf("%w: %s -> %s", ErrInvalidState, po.Status, next)
			}
			if next == POStatusReceived && !po.FullyReceived() {
				return fmt.Errorf("%w: purchase order %d has outstanding lines", ErrInvalidState, po.ID)
			}
			now := s.now().UTC()
			if err := tx.UpdatePOStatus(ctx, po.ID, next, now); err != nil {
				return err
			}
			po.Status = next
			po.UpdatedAt = now
			updated = po
			return nil
		})
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.logger.Info("purchase order status changed",
		slog.Int64("po_id", poID),
		slog.String("status", string(next)),
		slog.Int64("actor_id", actorID),
	)
	return updated, nil
}

func (s *Service) withPOLock(ctx context.Context, poID int64, fn func(context.Context) error) error {
	if s.locker == nil {
		return fn(ctx)
	}
	return s.locker.WithLock(ctx, shared.POLockKey(poID), fn)
}

func receiptItemSnapshot(items []ReceiptItem) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		out = append(out, map[string]any{
			"po_line_id": item.POLineID,
			"received":   item.QuantityReceived.String(),
			"accepted":   item.QuantityAccepted.String(),
			"rejected":   item.QuantityRejected.String(),
		})
	}
	return out
}

func generateNumber(prefix string, at time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("%s-%s-%s", prefix, at.Format("20060102"), suffix)
}
