package e2e

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/threeway/internal/audit"
	"github.com/odyssey-erp/threeway/internal/billing"
	"github.com/odyssey-erp/threeway/internal/procurement"
	"github.com/odyssey-erp/threeway/internal/shared"
	"github.com/odyssey-erp/threeway/internal/threeway"
)

// ledger is one in-memory database shared by every repository port.
type ledger struct {
	mu         sync.Mutex
	pos        map[int64]procurement.PurchaseOrder
	bills      map[int64]billing.VendorBill
	receipts   map[int64][]procurement.Receipt
	exceptions map[int64]threeway.MatchException
	audits     []audit.Entry
	nextID     int64

	settingsMu sync.Mutex
	settings   map[int64]map[string]string
}

func newLedger() *ledger {
	return &ledger{
		pos:        make(map[int64]procurement.PurchaseOrder),
		bills:      make(map[int64]billing.VendorBill),
		receipts:   make(map[int64][]procurement.Receipt),
		exceptions: make(map[int64]threeway.MatchException),
		settings:   make(map[int64]map[string]string),
		nextID:     1000,
	}
}

type ledgerSnapshot struct {
	pos        map[int64]procurement.PurchaseOrder
	receipts   map[int64][]procurement.Receipt
	exceptions map[int64]threeway.MatchException
	audits     []audit.Entry
}

func (l *ledger) snapshot() ledgerSnapshot {
	s := ledgerSnapshot{
		pos:        make(map[int64]procurement.PurchaseOrder, len(l.pos)),
		receipts:   make(map[int64][]procurement.Receipt, len(l.receipts)),
		exceptions: make(map[int64]threeway.MatchException, len(l.exceptions)),
		audits:     append([]audit.Entry(nil), l.audits...),
	}
	for id, po := range l.pos {
		po.Lines = append([]procurement.POLine(nil), po.Lines...)
		s.pos[id] = po
	}
	for id, list := range l.receipts {
		s.receipts[id] = append([]procurement.Receipt(nil), list...)
	}
	for id, e := range l.exceptions {
		s.exceptions[id] = e
	}
	return s
}

func (l *ledger) restore(s ledgerSnapshot) {
	l.pos, l.receipts, l.exceptions, l.audits = s.pos, s.receipts, s.exceptions, s.audits
}

func (l *ledger) withTx(ctx context.Context, fn func(*ledgerTx) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	snap := l.snapshot()
	if err := fn(&ledgerTx{l: l}); err != nil {
		l.restore(snap)
		return err
	}
	return nil
}

// ledgerTx satisfies both the procurement and the threeway transaction ports.
type ledgerTx struct {
	l *ledger
}

func (tx *ledgerTx) LockPurchaseOrder(_ context.Context, id int64) (procurement.PurchaseOrder, error) {
	po, ok := tx.l.pos[id]
	if !ok {
		return procurement.PurchaseOrder{}, shared.ErrNotFound
	}
	po.Lines = append([]procurement.POLine(nil), po.Lines...)
	return po, nil
}

func (tx *ledgerTx) SetLineReceived(_ context.Context, lineID int64, received decimal.Decimal) error {
	for id, po := range tx.l.pos {
		for i := range po.Lines {
			if po.Lines[i].ID == lineID {
				po.Lines[i].ReceivedQty = received
				tx.l.pos[id] = po
				return nil
			}
		}
	}
	return shared.ErrNotFound
}

func (tx *ledgerTx) UpdatePOStatus(_ context.Context, id int64, status procurement.POStatus, at time.Time) error {
	po, ok := tx.l.pos[id]
	if !ok {
		return shared.ErrNotFound
	}
	po.Status = status
	po.UpdatedAt = at
	tx.l.pos[id] = po
	return nil
}

func (tx *ledgerTx) CreateReceipt(_ context.Context, receipt procurement.Receipt) (int64, error) {
	tx.l.nextID++
	receipt.ID = tx.l.nextID
	tx.l.receipts[receipt.POID] = append(tx.l.receipts[receipt.POID], receipt)
	return receipt.ID, nil
}

func (tx *ledgerTx) InsertReceiptItem(_ context.Context, item procurement.ReceiptItem) (int64, error) {
	tx.l.nextID++
	item.ID = tx.l.nextID
	for poID, list := range tx.l.receipts {
		for i := range list {
			if list[i].ID == item.ReceiptID {
				list[i].Items = append(list[i].Items, item)
				tx.l.receipts[poID] = list
				return item.ID, nil
			}
		}
	}
	return 0, shared.ErrNotFound
}

func (tx *ledgerTx) GetBill(_ context.Context, id int64) (billing.VendorBill, error) {
	bill, ok := tx.l.bills[id]
	if !ok {
		return billing.VendorBill{}, shared.ErrNotFound
	}
	return bill, nil
}

func (tx *ledgerTx) LockActiveException(_ context.Context, poID, billID int64) (threeway.MatchException, bool, error) {
	for _, e := range tx.l.exceptions {
		if e.POID == poID && e.BillID == billID && e.Status != threeway.StatusResolved && e.Status != threeway.StatusRejected {
			return e, true, nil
		}
	}
	return threeway.MatchException{}, false, nil
}

func (tx *ledgerTx) LockException(_ context.Context, id int64) (threeway.MatchException, error) {
	e, ok := tx.l.exceptions[id]
	if !ok {
		return threeway.MatchException{}, shared.ErrNotFound
	}
	return e, nil
}

func (tx *ledgerTx) InsertException(_ context.Context, e threeway.MatchException) (int64, error) {
	tx.l.nextID++
	e.ID = tx.l.nextID
	tx.l.exceptions[e.ID] = e
	return e.ID, nil
}

func (tx *ledgerTx) UpdateException(_ context.Context, e threeway.MatchException) error {
	if _, ok := tx.l.exceptions[e.ID]; !ok {
		return shared.ErrNotFound
	}
	tx.l.exceptions[e.ID] = e
	return nil
}

func (tx *ledgerTx) AppendAudit(_ context.Context, entry audit.Entry) error {
	tx.l.audits = append(tx.l.audits, entry)
	return nil
}

type procurementStore struct{ *ledger }

func (s procurementStore) WithTx(ctx context.Context, fn func(context.Context, procurement.TxRepository) error) error {
	return s.withTx(ctx, func(tx *ledgerTx) error { return fn(ctx, tx) })
}

func (s procurementStore) GetPurchaseOrder(ctx context.Context, id int64) (procurement.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&ledgerTx{l: s.ledger}).LockPurchaseOrder(ctx, id)
}

func (s procurementStore) ListReceipts(_ context.Context, poID int64) ([]procurement.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]procurement.Receipt(nil), s.receipts[poID]...), nil
}

type exceptionStore struct{ *ledger }

func (s exceptionStore) WithTx(ctx context.Context, fn func(context.Context, threeway.TxRepository) error) error {
	return s.withTx(ctx, func(tx *ledgerTx) error { return fn(ctx, tx) })
}

func (s exceptionStore) GetException(ctx context.Context, id int64) (threeway.MatchException, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&ledgerTx{l: s.ledger}).LockException(ctx, id)
}

func (s exceptionStore) ListExceptions(_ context.Context, f threeway.ExceptionFilter, limit, offset int) ([]threeway.MatchException, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rows []threeway.MatchException
	for _, e := range s.exceptions {
		if f.CompanyID > 0 && e.CompanyID != f.CompanyID {
			continue
		}
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		rows = append(rows, e)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID > rows[j].ID })
	total := len(rows)
	if offset >= total {
		return []threeway.MatchException{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return rows[offset:end], total, nil
}

func (s exceptionStore) CountStale(_ context.Context, before time.Time) ([]threeway.StaleCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byCompany := map[int64]*threeway.StaleCount{}
	for _, e := range s.exceptions {
		if e.Status.Terminal() || !e.UpdatedAt.Before(before) {
			continue
		}
		c, ok := byCompany[e.CompanyID]
		if !ok {
			c = &threeway.StaleCount{CompanyID: e.CompanyID, Oldest: e.UpdatedAt}
			byCompany[e.CompanyID] = c
		}
		c.Count++
		if e.UpdatedAt.Before(c.Oldest) {
			c.Oldest = e.UpdatedAt
		}
	}
	out := make([]threeway.StaleCount, 0, len(byCompany))
	for _, c := range byCompany {
		out = append(out, *c)
	}
	return out, nil
}

type auditStore struct{ *ledger }

func (s auditStore) Append(_ context.Context, e audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audits = append(s.audits, e)
	return nil
}

func (s auditStore) ListByPO(_ context.Context, poID int64) ([]audit.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []audit.Entry
	for _, e := range s.audits {
		if e.POID == poID {
			out = append(out, e)
		}
	}
	return out, nil
}

type settingsStore struct{ *ledger }

func (s settingsStore) Get(_ context.Context, companyID int64, keys ...string) (map[string]string, error) {
	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if v, ok := s.settings[companyID][k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (s settingsStore) Put(_ context.Context, companyID int64, values map[string]string) error {
	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()
	if s.settings[companyID] == nil {
		s.settings[companyID] = make(map[string]string)
	}
	for k, v := range values {
		s.settings[companyID][k] = v
	}
	return nil
}
