package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/threeway/internal/platform/db"
)

// Insert menulis entry menggunakan querier yang diberikan. Pemanggil yang
// mengubah state harus memakai transaksi yang sama agar keduanya atomik.
func Insert(ctx context.Context, q db.Querier, e Entry) error {
	if !e.Action.Valid() {
		return fmt.Errorf("audit: unknown action %q", e.Action)
	}
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("audit: encode payload: %w", err)
	}
	_, err = q.Exec(ctx, `INSERT INTO audit_entries (id, po_id, action, actor_id, payload, at)
VALUES ($1, $2, $3, $4, $5, $6)`, e.ID, e.POID, string(e.Action), e.ActorID, payload, e.At)
	if err != nil {
		return fmt.Errorf("audit: insert %s for po %d: %w", e.Action, e.POID, err)
	}
	return nil
}

// Repository membaca dan menulis log audit.
type Repository struct {
	pools db.Pools
}

// NewRepository membuat repository audit.
func NewRepository(primary, replica *pgxpool.Pool) *Repository {
	return &Repository{pools: db.Pools{Primary: primary, Replica: replica}}
}

// Append menulis entry di luar transaksi domain.
func (r *Repository) Append(ctx context.Context, e Entry) error {
	return Insert(ctx, r.pools.Primary, e)
}

// ListByPO mengembalikan entry untuk satu PO, urut waktu naik.
func (r *Repository) ListByPO(ctx context.Context, poID int64) ([]Entry, error) {
	rows, err := r.pools.Reader(ctx).Query(ctx, `SELECT id, po_id, action, actor_id, payload, at
FROM audit_entries WHERE po_id = $1 ORDER BY at ASC, seq ASC`, poID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			action  string
			payload []byte
		)
		if err := rows.Scan(&e.ID, &e.POID, &action, &e.ActorID, &payload, &e.At); err != nil {
			return nil, err
		}
		e.Action = Action(action)
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &e.Payload); err != nil {
				return nil, fmt.Errorf("audit: decode payload %s: %w", e.ID, err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
