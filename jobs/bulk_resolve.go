package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/threeway/internal/jobs"
	"github.com/odyssey-erp/threeway/internal/shared"
	"github.com/odyssey-erp/threeway/internal/threeway"
)

// BulkResolver resolves exceptions one by one.
type BulkResolver interface {
	BulkResolve(ctx context.Context, ids []int64, actor shared.Actor) map[int64]threeway.BulkOutcome
}

// BulkResolveJob runs queued bulk resolves.
type BulkResolveJob struct {
	Service BulkResolver
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewBulkResolveJob initialises the bulk resolve handler.
func NewBulkResolveJob(service BulkResolver, logger *slog.Logger, metrics *jobmetrics.Metrics) *BulkResolveJob {
	return &BulkResolveJob{Service: service, Logger: logger, Metrics: metrics}
}

// Handle executes the bulk resolve. Per-item failures are logged, not retried.
func (j *BulkResolveJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("bulk resolve: handler not configured")
	}
	var payload BulkResolvePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || len(payload.IDs) == 0 || payload.ActorID <= 0 {
		return asynq.SkipRetry
	}
	tracker := j.metrics().Track(TaskBulkResolve)
	logger := j.logger().With(slog.Int64("actor_id", payload.ActorID), slog.Int("requested", len(payload.IDs)))

	actor := shared.Actor{ID: payload.ActorID, Roles: payload.ActorRoles}
	results := j.Service.BulkResolve(ctx, payload.IDs, actor)

	resolved, failed := 0, 0
	for id, outcome := range results {
		if outcome.OK() {
			resolved++
			continue
		}
		failed++
		logger.Warn("exception not resolved", slog.Int64("exception_id", id), slog.String("code", outcome.Code), slog.String("error", outcome.Error))
	}
	j.metrics().AddItems(TaskBulkResolve, "resolved", resolved)
	j.metrics().AddItems(TaskBulkResolve, "failed", failed)
	logger.Info("completed bulk resolve", slog.Int("resolved", resolved), slog.Int("failed", failed))
	return tracker.End(nil)
}

func (j *BulkResolveJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskBulkResolve))
	}
	return slog.Default().With(slog.String("job", TaskBulkResolve))
}

func (j *BulkResolveJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
