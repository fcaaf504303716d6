package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/threeway/internal/jobs"
	"github.com/odyssey-erp/threeway/internal/shared"
	"github.com/odyssey-erp/threeway/internal/threeway"
)

type stubResolver struct {
	ids   []int64
	actor shared.Actor
	out   map[int64]threeway.BulkOutcome
}

func (s *stubResolver) BulkResolve(_ context.Context, ids []int64, actor shared.Actor) map[int64]threeway.BulkOutcome {
	s.ids = ids
	s.actor = actor
	return s.out
}

type stubScanner struct {
	olderThan time.Duration
	counts    []threeway.StaleCount
	err       error
}

func (s *stubScanner) ScanStale(_ context.Context, olderThan time.Duration) ([]threeway.StaleCount, error) {
	s.olderThan = olderThan
	return s.counts, s.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewBulkResolveTaskRequiresIDs(t *testing.T) {
	_, err := NewBulkResolveTask(BulkResolvePayload{ActorID: 1})
	require.Error(t, err)

	task, err := NewBulkResolveTask(BulkResolvePayload{IDs: []int64{1, 2}, ActorID: 7, ActorRoles: []string{"admin"}})
	require.NoError(t, err)
	require.Equal(t, TaskBulkResolve, task.Type())

	var payload BulkResolvePayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, []int64{1, 2}, payload.IDs)
	require.Equal(t, int64(7), payload.ActorID)
}

func TestBulkResolveJobPassesActor(t *testing.T) {
	resolver := &stubResolver{out: map[int64]threeway.BulkOutcome{
		1: {Status: threeway.StatusResolved},
		2: {Code: "InsufficientRole", Error: "insufficient role"},
	}}
	job := NewBulkResolveJob(resolver, quietLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task, err := NewBulkResolveTask(BulkResolvePayload{IDs: []int64{1, 2}, ActorID: 7, ActorRoles: []string{"admin"}})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	require.Equal(t, []int64{1, 2}, resolver.ids)
	require.Equal(t, int64(7), resolver.actor.ID)
	require.Equal(t, []string{"admin"}, resolver.actor.Roles)
}

func TestBulkResolveJobSkipsMalformedPayload(t *testing.T) {
	job := NewBulkResolveJob(&stubResolver{}, quietLogger(), nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskBulkResolve, []byte(`{"ids":[]}`)))
	require.ErrorIs(t, err, asynq.SkipRetry)

	err = job.Handle(context.Background(), asynq.NewTask(TaskBulkResolve, []byte(`not json`)))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestStaleScanJobUsesPayloadThreshold(t *testing.T) {
	scanner := &stubScanner{counts: []threeway.StaleCount{{CompanyID: 1, Count: 3, Oldest: time.Now().Add(-96 * time.Hour)}}}
	job := NewStaleScanJob(scanner, 72*time.Hour, quietLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskStaleExceptionScan, nil)))
	require.Equal(t, 72*time.Hour, scanner.olderThan)

	task, err := NewStaleScanTask(24 * time.Hour)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 24*time.Hour, scanner.olderThan)
}

func TestStaleScanJobReturnsServiceError(t *testing.T) {
	boom := errors.New("boom")
	job := NewStaleScanJob(&stubScanner{err: boom}, time.Hour, quietLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))
	require.ErrorIs(t, job.Handle(context.Background(), asynq.NewTask(TaskStaleExceptionScan, nil)), boom)
}

func TestHealthWithoutInspector(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(nil, quietLogger()).MountRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"queue":"default","pending":0}`, rec.Body.String())
}
