package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/threeway/internal/jobs"
	"github.com/odyssey-erp/threeway/internal/threeway"
)

// StaleScanner reports unresolved exceptions per company.
type StaleScanner interface {
	ScanStale(ctx context.Context, olderThan time.Duration) ([]threeway.StaleCount, error)
}

// StaleScanJob flags exceptions that have sat unresolved too long.
type StaleScanJob struct {
	Service   StaleScanner
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	OlderThan time.Duration
}

// NewStaleScanJob initialises the stale scan handler.
func NewStaleScanJob(service StaleScanner, olderThan time.Duration, logger *slog.Logger, metrics *jobmetrics.Metrics) *StaleScanJob {
	return &StaleScanJob{Service: service, OlderThan: olderThan, Logger: logger, Metrics: metrics}
}

// Handle executes the scan.
func (j *StaleScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("stale scan: handler not configured")
	}
	var payload StaleScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	olderThan := j.OlderThan
	if payload.OlderThanHours > 0 {
		olderThan = time.Duration(payload.OlderThanHours) * time.Hour
	}
	if olderThan <= 0 {
		olderThan = 72 * time.Hour
	}

	tracker := j.metrics().Track(TaskStaleExceptionScan)
	logger := j.logger().With(slog.Duration("older_than", olderThan))
	start := time.Now()

	counts, err := j.Service.ScanStale(ctx, olderThan)
	if err != nil {
		logger.Error("scan failed", slog.Any("error", err))
		return tracker.End(err)
	}
	total := 0
	for _, c := range counts {
		total += c.Count
		logger.Warn("stale match exceptions",
			slog.Int64("company_id", c.CompanyID),
			slog.Int("count", c.Count),
			slog.Time("oldest", c.Oldest),
		)
	}
	j.metrics().AddItems(TaskStaleExceptionScan, "stale", total)
	logger.Info("completed stale scan",
		slog.Int("companies", len(counts)),
		slog.Int("stale", total),
		slog.Duration("duration", time.Since(start)),
	)
	return tracker.End(nil)
}

func (j *StaleScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskStaleExceptionScan))
	}
	return slog.Default().With(slog.String("job", TaskStaleExceptionScan))
}

func (j *StaleScanJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
