package audit

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/odyssey-erp/threeway/internal/shared"
)

// Store adalah port penyimpanan log audit.
type Store interface {
	Append(ctx context.Context, e Entry) error
	ListByPO(ctx context.Context, poID int64) ([]Entry, error)
}

// Service mengoordinasikan pencatatan dan pembacaan log audit.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService membuat service audit baru.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// Record menambahkan entry baru. Tidak ada operasi ubah atau hapus.
func (s *Service) Record(ctx context.Context, poID int64, action Action, actorID int64, payload map[string]any) (Entry, error) {
	if s.store == nil {
		return Entry{}, fmt.Errorf("audit: store not configured")
	}
	if poID <= 0 {
		return Entry{}, fmt.Errorf("audit: po id required: %w", shared.ErrValidation)
	}
	if !action.Valid() {
		return Entry{}, fmt.Errorf("audit: unknown action %q: %w", action, shared.ErrValidation)
	}
	entry := NewEntry(poID, action, actorID, payload, s.now())
	if err := s.store.Append(ctx, entry); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// List mengembalikan log audit sebuah PO secara kronologis.
func (s *Service) List(ctx context.Context, poID int64) ([]Entry, error) {
	if s.store == nil {
		return nil, fmt.Errorf("audit: store not configured")
	}
	entries, err := s.store.ListByPO(ctx, poID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].At.Before(entries[j].At)
	})
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}
