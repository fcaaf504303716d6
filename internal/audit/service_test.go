package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/threeway/internal/shared"
)

type memoryStore struct {
	entries []Entry
}

func (m *memoryStore) Append(_ context.Context, e Entry) error {
	m.entries = append(m.entries, e)
	return nil
}

func (m *memoryStore) ListByPO(_ context.Context, poID int64) ([]Entry, error) {
	var out []Entry
	for _, e := range m.entries {
		if e.POID == poID {
			out = append(out, e)
		}
	}
	return out, nil
}

func TestServiceRecordAndListChronological(t *testing.T) {
	store := &memoryStore{}
	svc := NewService(store)
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	svc.now = func() time.Time {
		tick++
		return base.Add(time.Duration(-tick) * time.Minute)
	}

	ctx := context.Background()
	_, err := svc.Record(ctx, 10, ActionReceive, 1, nil)
	require.NoError(t, err)
	_, err = svc.Record(ctx, 10, ActionMatch, 1, map[string]any{"matched": false})
	require.NoError(t, err)
	_, err = svc.Record(ctx, 11, ActionMatch, 1, nil)
	require.NoError(t, err)

	entries, err := svc.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, ActionMatch, entries[0].Action)
	require.Equal(t, ActionReceive, entries[1].Action)
	require.NotNil(t, entries[1].Payload)
}

func TestServiceRecordRejectsUnknownAction(t *testing.T) {
	svc := NewService(&memoryStore{})
	_, err := svc.Record(context.Background(), 1, Action("delete"), 1, nil)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestServiceListEmptyIsNotNil(t *testing.T) {
	svc := NewService(&memoryStore{})
	entries, err := svc.List(context.Background(), 99)
	require.NoError(t, err)
	require.NotNil(t, entries)
	require.Empty(t, entries)
}
