package procurement

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/threeway/internal/platform/httpx"
)

func newTestRouter(repo *memoryProcRepo) http.Handler {
	handler := NewHandler(nil, newTestService(repo))
	r := chi.NewRouter()
	r.Use(httpx.ActorFromHeaders)
	r.Route("/purchase-orders", handler.MountRoutes)
	return r
}

func postJSON(target, body string, actor bool) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if actor {
		req.Header.Set(httpx.HeaderActorID, "9")
		req.Header.Set(httpx.HeaderActorRoles, "warehouse")
	}
	return req
}

func TestHandleReceiveCreatesReceipt(t *testing.T) {
	repo := newMemoryProcRepo()
	repo.seedPO(samplePO())
	router := newTestRouter(repo)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, postJSON("/purchase-orders/1/receive", `{"lines":[{"line_id":11,"quantity_received":"10"},{"line_id":12,"quantity_received":100}],"notes":"dock 3"}`, true))

	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var receipt Receipt
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&receipt))
	require.False(t, receipt.Partial)
	require.Equal(t, int64(9), receipt.ActorID)
	require.Equal(t, "dock 3", receipt.Notes)
}

func TestHandleReceiveMapsOverReceipt(t *testing.T) {
	repo := newMemoryProcRepo()
	repo.seedPO(samplePO())
	router := newTestRouter(repo)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, postJSON("/purchase-orders/1/receive", `{"lines":[{"line_id":11,"quantity_received":"11"}]}`, true))

	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	var problem httpx.ProblemDetail
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&problem))
	require.Equal(t, "OverReceipt", problem.Code)
}

func TestHandleReceiveRequiresActor(t *testing.T) {
	repo := newMemoryProcRepo()
	repo.seedPO(samplePO())
	router := newTestRouter(repo)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, postJSON("/purchase-orders/1/receive", `{"lines":[{"line_id":11,"quantity_received":"1"}]}`, false))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestHandleReceiveValidatesBody(t *testing.T) {
	repo := newMemoryProcRepo()
	repo.seedPO(samplePO())
	router := newTestRouter(repo)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, postJSON("/purchase-orders/1/receive", `{"lines":[]}`, true))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleReceiveAllZeroLinesIsNoop(t *testing.T) {
	repo := newMemoryProcRepo()
	repo.seedPO(samplePO())
	router := newTestRouter(repo)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, postJSON("/purchase-orders/1/receive", `{"lines":[{"line_id":11,"quantity_received":"0"}]}`, true))

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var receipt Receipt
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&receipt))
	require.Zero(t, receipt.ID)
	require.Empty(t, repo.receipts[1])
}

func TestHandleGetPurchaseOrder(t *testing.T) {
	repo := newMemoryProcRepo()
	repo.seedPO(samplePO())
	router := newTestRouter(repo)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/purchase-orders/1", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/purchase-orders/404", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
}
