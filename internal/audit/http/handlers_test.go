package audithttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/threeway/internal/audit"
)

type stubLister struct {
	entries []audit.Entry
	lastPO  int64
}

func (s *stubLister) List(_ context.Context, poID int64) ([]audit.Entry, error) {
	s.lastPO = poID
	return s.entries, nil
}

func newRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Route("/three-way-match", h.MountRoutes)
	return r
}

func TestListReturnsEntries(t *testing.T) {
	at := time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC)
	stub := &stubLister{entries: []audit.Entry{
		audit.NewEntry(42, audit.ActionReceive, 7, nil, at),
		audit.NewEntry(42, audit.ActionMatch, 7, map[string]any{"matched": true}, at.Add(time.Minute)),
	}}
	router := newRouter(NewHandler(nil, stub))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/three-way-match/42/audit", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, int64(42), stub.lastPO)
	var body []audit.Entry
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	require.Len(t, body, 2)
	require.Equal(t, audit.ActionReceive, body[0].Action)
	require.Equal(t, audit.ActionMatch, body[1].Action)
}

func TestListRejectsBadID(t *testing.T) {
	router := newRouter(NewHandler(nil, &stubLister{}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/three-way-match/abc/audit", nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
