package app

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/threeway/internal/observability"
	"github.com/odyssey-erp/threeway/jobs"
)

func TestRouterHealthAndMetrics(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetrics()
	router := NewRouter(RouterParams{
		Logger:     logger,
		Config:     &Config{AppEnv: "production", RateLimitPerMinute: 1000},
		JobHandler: jobs.NewHandler(nil, logger),
		Metrics:    metrics,
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "https://threeway.local/healthz", nil)
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "https://threeway.local/jobs/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "https://threeway.local/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `threeway_http_requests_total{code="200",route="/healthz"} 1`)
}

func TestRouterUnknownRoute(t *testing.T) {
	router := NewRouter(RouterParams{Config: &Config{RateLimitPerMinute: 1000}})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
