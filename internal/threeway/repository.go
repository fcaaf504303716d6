package threeway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/threeway/internal/audit"
	"github.com/odyssey-erp/threeway/internal/billing"
	"github.com/odyssey-erp/threeway/internal/platform/db"
	"github.com/odyssey-erp/threeway/internal/procurement"
	"github.com/odyssey-erp/threeway/internal/shared"
)

const exceptionColumns = `me.id, me.company_id, me.po_id, po.number, me.bill_id, vb.number, po.vendor_id, v.name,
me.po_total, me.bill_total, me.diff, me.pct_diff, me.status, me.reason_code, me.decided_by, me.resolved_by,
me.resolved_at, me.created_at, me.updated_at`

const exceptionFrom = `FROM match_exceptions me
JOIN purchase_orders po ON po.id = me.po_id
JOIN vendors v ON v.id = po.vendor_id
JOIN vendor_bills vb ON vb.id = me.bill_id`

// Repository provides PostgreSQL backed persistence for match exceptions.
type Repository struct {
	pools db.Pools
}

// NewRepository constructs a repository. replica may be nil.
func NewRepository(primary, replica *pgxpool.Pool) *Repository {
	return &Repository{pools: db.Pools{Primary: primary, Replica: replica}}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := db.WithTx(ctx, r.pools.Primary, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
	return db.TranslateError(err)
}

// GetException reads one exception from the primary.
func (r *Repository) GetException(ctx context.Context, id int64) (MatchException, error) {
	return loadException(ctx, r.pools.Primary, id, false)
}

// ListExceptions returns a filtered page and the total number of matches.
func (r *Repository) ListExceptions(ctx context.Context, filter ExceptionFilter, limit, offset int) ([]MatchException, int, error) {
	where, args := buildFilter(filter)
	q := r.pools.Reader(ctx)

	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) `+exceptionFrom+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("threeway: count exceptions: %w", err)
	}

	args = append(args, limit, offset)
	sql := fmt.Sprintf(`SELECT %s %s%s ORDER BY me.updated_at DESC, me.id DESC LIMIT $%d OFFSET $%d`,
		exceptionColumns, exceptionFrom, where, len(args)-1, len(args))
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("threeway: list exceptions: %w", err)
	}
	defer rows.Close()
	out := make([]MatchException, 0, limit)
	for rows.Next() {
		e, err := scanException(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

// CountStale groups unresolved exceptions last touched before the cutoff.
func (r *Repository) CountStale(ctx context.Context, before time.Time) ([]StaleCount, error) {
	rows, err := r.pools.Reader(ctx).Query(ctx, `SELECT company_id, COUNT(*), MIN(updated_at)
FROM match_exceptions
WHERE status IN ('open', 'pending_approval') AND updated_at < $1
GROUP BY company_id ORDER BY company_id`, before)
	if err != nil {
		return nil, fmt.Errorf("threeway: count stale exceptions: %w", err)
	}
	defer rows.Close()
	var out []StaleCount
	for rows.Next() {
		var c StaleCount
		if err := rows.Scan(&c.CompanyID, &c.Count, &c.Oldest); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func buildFilter(f ExceptionFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if f.CompanyID > 0 {
		add("me.company_id = $%d", f.CompanyID)
	}
	if vendor := strings.TrimSpace(f.VendorNameContains); vendor != "" {
		add(`v.name ILIKE $%d ESCAPE '\'`, "%"+escapeLike(vendor)+"%")
	}
	if f.UpdatedFrom != nil {
		add("me.updated_at >= $%d", *f.UpdatedFrom)
	}
	if f.UpdatedTo != nil {
		add("me.updated_at <= $%d", *f.UpdatedTo)
	}
	if f.Status != "" {
		add("me.status = $%d", string(f.Status))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func loadException(ctx context.Context, q db.Querier, id int64, forUpdate bool) (MatchException, error) {
	sql := `SELECT ` + exceptionColumns + ` ` + exceptionFrom + ` WHERE me.id = $1`
	if forUpdate {
		sql += " FOR UPDATE OF me"
	}
	e, err := scanException(q.QueryRow(ctx, sql, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return MatchException{}, fmt.Errorf("threeway: exception %d: %w", id, shared.ErrNotFound)
	}
	return e, err
}

func scanException(row pgx.Row) (MatchException, error) {
	var (
		e          MatchException
		status     string
		reason     *string
		decidedBy  *int64
		resolvedBy *int64
	)
	err := row.Scan(
		&e.ID, &e.CompanyID, &e.POID, &e.PONumber, &e.BillID, &e.BillNumber, &e.VendorID, &e.VendorName,
		&e.POTotal, &e.BillTotal, &e.Diff, &e.PctDiff, &status, &reason, &decidedBy, &resolvedBy,
		&e.ResolvedAt, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return MatchException{}, err
	}
	e.Status = ExceptionStatus(status)
	if reason != nil {
		e.ReasonCode = *reason
	}
	if decidedBy != nil {
		e.DecidedBy = *decidedBy
	}
	if resolvedBy != nil {
		e.ResolvedBy = *resolvedBy
	}
	return e, nil
}

func (t *txRepo) LockPurchaseOrder(ctx context.Context, id int64) (procurement.PurchaseOrder, error) {
	return procurement.LoadPurchaseOrder(ctx, t.tx, id, true)
}

func (t *txRepo) GetBill(ctx context.Context, id int64) (billing.VendorBill, error) {
	return billing.Load(ctx, t.tx, id)
}

func (t *txRepo) LockActiveException(ctx context.Context, poID, billID int64) (MatchException, bool, error) {
	e, err := scanException(t.tx.QueryRow(ctx, `SELECT `+exceptionColumns+` `+exceptionFrom+`
WHERE me.po_id = $1 AND me.bill_id = $2 AND me.status NOT IN ('resolved', 'rejected')
FOR UPDATE OF me`, poID, billID))
	if errors.Is(err, pgx.ErrNoRows) {
		return MatchException{}, false, nil
	}
	if err != nil {
		return MatchException{}, false, fmt.Errorf("threeway: lock active exception of po %d bill %d: %w", poID, billID, err)
	}
	return e, true, nil
}

func (t *txRepo) LockException(ctx context.Context, id int64) (MatchException, error) {
	return loadException(ctx, t.tx, id, true)
}

func (t *txRepo) InsertException(ctx context.Context, e MatchException) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO match_exceptions
(company_id, po_id, bill_id, po_total, bill_total, diff, pct_diff, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
		e.CompanyID, e.POID, e.BillID, e.POTotal, e.BillTotal, e.Diff, e.PctDiff, string(e.Status), e.CreatedAt, e.UpdatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("threeway: insert exception: %w", db.TranslateError(err))
	}
	return id, nil
}

func (t *txRepo) UpdateException(ctx context.Context, e MatchException) error {
	tag, err := t.tx.Exec(ctx, `UPDATE match_exceptions SET
po_total = $2, bill_total = $3, diff = $4, pct_diff = $5, status = $6,
reason_code = NULLIF($7::text, ''), decided_by = NULLIF($8::bigint, 0), resolved_by = NULLIF($9::bigint, 0), resolved_at = $10, updated_at = $11
WHERE id = $1`,
		e.ID, e.POTotal, e.BillTotal, e.Diff, e.PctDiff, string(e.Status),
		e.ReasonCode, e.DecidedBy, e.ResolvedBy, e.ResolvedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("threeway: update exception %d: %w", e.ID, db.TranslateError(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("threeway: exception %d: %w", e.ID, shared.ErrNotFound)
	}
	return nil
}

func (t *txRepo) AppendAudit(ctx context.Context, entry audit.Entry) error {
	return audit.Insert(ctx, t.tx, entry)
}
