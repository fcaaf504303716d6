package e2e

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/threeway/internal/app"
	"github.com/odyssey-erp/threeway/internal/audit"
	audithttp "github.com/odyssey-erp/threeway/internal/audit/http"
	"github.com/odyssey-erp/threeway/internal/billing"
	"github.com/odyssey-erp/threeway/internal/platform/lock"
	"github.com/odyssey-erp/threeway/internal/procurement"
	"github.com/odyssey-erp/threeway/internal/settings"
	"github.com/odyssey-erp/threeway/internal/threeway"
	threewayhttp "github.com/odyssey-erp/threeway/internal/threeway/http"
)

const (
	companyID = int64(1)
	poID      = int64(10)
	lineID    = int64(11)
	billID    = int64(20)
)

type flow struct {
	t      *testing.T
	ledger *ledger
	router http.Handler
}

func newFlow(t *testing.T) *flow {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	l := newLedger()
	l.pos[poID] = procurement.PurchaseOrder{
		ID:           poID,
		Number:       "PO-10",
		CompanyID:    companyID,
		VendorID:     5,
		VendorName:   "Acme Supplies",
		Currency:     "USD",
		PurchaseType: procurement.PurchaseTypeLocal,
		Status:       procurement.POStatusApproved,
		Lines: []procurement.POLine{{
			ID:          lineID,
			POID:        poID,
			Description: "Steel coil",
			OrderedQty:  decimal.NewFromInt(100),
			UnitPrice:   decimal.NewFromInt(100),
			TaxRate:     decimal.Zero,
			ReceivedQty: decimal.Zero,
		}},
	}
	l.bills[billID] = billing.VendorBill{
		ID:        billID,
		CompanyID: companyID,
		VendorID:  5,
		Number:    "BILL-20",
		Total:     decimal.NewFromInt(10300),
		Currency:  "USD",
		BillDate:  time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC),
	}

	locker := lock.New(rdb, lock.Config{TTL: 5 * time.Second, Logger: logger})
	store := settings.NewCache(settingsStore{l}, rdb, time.Minute, logger)
	defaults := threeway.Tolerance{Pct: decimal.RequireFromString("2.0"), Abs: decimal.RequireFromString("5.0")}

	procurementService := procurement.NewService(procurementStore{l}, locker, nil, logger)
	threewayService := threeway.NewService(
		exceptionStore{l},
		threeway.NewPolicy(store, defaults, logger),
		store,
		locker,
		logger,
		threeway.ServiceConfig{SettingsRoles: []string{"admin"}, Metrics: threeway.NewMetrics(prometheus.NewRegistry())},
	)
	auditService := audit.NewService(auditStore{l})

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             &app.Config{AppEnv: "test", RateLimitPerMinute: 10000},
		ProcurementHandler: procurement.NewHandler(logger, procurementService),
		ThreeWayHandler:    threewayhttp.NewHandler(logger, threewayService, nil),
		AuditHandler:       audithttp.NewHandler(logger, auditService),
	})
	return &flow{t: t, ledger: l, router: router}
}

func (f *flow) do(method, path string, body any, actorID int64, roles string) *httptest.ResponseRecorder {
	f.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(f.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if actorID > 0 {
		req.Header.Set("X-Actor-ID", strconv.FormatInt(actorID, 10))
		req.Header.Set("X-Actor-Roles", roles)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestThreeWayMatchApprovalFlow(t *testing.T) {
	f := newFlow(t)

	rec := f.do(http.MethodPost, "/three-way-match/1/approvals", map[string]any{
		"reasons": []string{"Freight Adjustment", "Price Change"},
		"tiers":   []map[string]any{{"amount_threshold": "200", "required_roles": []string{"admin"}}},
	}, 1, "admin")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(http.MethodPost, "/purchase-orders/10/receive", map[string]any{
		"lines": []map[string]any{{"line_id": lineID, "quantity_received": "100"}},
		"notes": "full delivery",
	}, 7, "warehouse")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(http.MethodGet, "/purchase-orders/10", nil, 0, "")
	require.Equal(t, http.StatusOK, rec.Code)
	po := decode[procurement.PurchaseOrder](t, rec)
	require.Equal(t, procurement.POStatusReceived, po.Status)

	rec = f.do(http.MethodPost, "/purchase-orders/10/match/20", nil, 8, "ap_clerk")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	outcome := decode[threeway.MatchOutcome](t, rec)
	require.False(t, outcome.Result.Matched)
	require.True(t, outcome.Result.Diff.Equal(decimal.NewFromInt(300)))
	require.True(t, outcome.Result.PctDiff.Equal(decimal.NewFromInt(3)))
	require.NotNil(t, outcome.Exception)
	require.Equal(t, threeway.StatusOpen, outcome.Exception.Status)
	exceptionPath := strconv.FormatInt(outcome.Exception.ID, 10)

	rec = f.do(http.MethodPost, "/purchase-orders/"+exceptionPath+"/resolve-exception", nil, 8, "ap_clerk")
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	rec = f.do(http.MethodPost, "/three-way-match/"+exceptionPath+"/approve", map[string]string{"reason": "freight adjustment"}, 8, "ap_clerk")
	require.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())

	rec = f.do(http.MethodPost, "/three-way-match/"+exceptionPath+"/approve", map[string]string{"reason": "freight adjustment"}, 3, "Admin")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	approved := decode[threeway.MatchException](t, rec)
	require.Equal(t, threeway.StatusApproved, approved.Status)
	require.Equal(t, "Freight Adjustment", approved.ReasonCode)
	require.Equal(t, int64(3), approved.DecidedBy)

	rec = f.do(http.MethodPost, "/purchase-orders/"+exceptionPath+"/resolve-exception", nil, 8, "ap_clerk")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resolved := decode[threeway.MatchException](t, rec)
	require.Equal(t, threeway.StatusResolved, resolved.Status)
	require.Equal(t, int64(8), resolved.ResolvedBy)
	require.NotNil(t, resolved.ResolvedAt)

	rec = f.do(http.MethodPost, "/purchase-orders/"+exceptionPath+"/resolve-exception", nil, 8, "ap_clerk")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/three-way-match/10/audit", nil, 0, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	entries := decode[[]audit.Entry](t, rec)
	actions := make([]audit.Action, 0, len(entries))
	for _, e := range entries {
		actions = append(actions, e.Action)
	}
	require.Equal(t, []audit.Action{audit.ActionReceive, audit.ActionMatch, audit.ActionApprove, audit.ActionResolve}, actions)
}

func TestThreeWayMatchWhatIfToleranceIsViewOnly(t *testing.T) {
	f := newFlow(t)
	f.ledger.pos[poID] = func() procurement.PurchaseOrder {
		po := f.ledger.pos[poID]
		po.Status = procurement.POStatusReceived
		po.Lines[0].ReceivedQty = po.Lines[0].OrderedQty
		return po
	}()

	rec := f.do(http.MethodPost, "/purchase-orders/10/match/20", nil, 8, "ap_clerk")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(http.MethodGet, "/purchase-orders/match-exceptions?company_id=1&tolerance_pct=5", nil, 0, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var page struct {
		Items []threeway.ExceptionView `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Items, 1)
	require.NotNil(t, page.Items[0].WhatIf)
	require.True(t, page.Items[0].WhatIf.Matched)
	require.Equal(t, threeway.StatusOpen, page.Items[0].Status)

	for _, e := range f.ledger.exceptions {
		require.Equal(t, threeway.StatusOpen, e.Status)
	}
}

func TestThreeWayMatchMutationsNeedActor(t *testing.T) {
	f := newFlow(t)
	rec := f.do(http.MethodPost, "/purchase-orders/10/match/20", nil, 0, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
