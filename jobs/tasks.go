package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskBulkResolve resolves a batch of match exceptions off the request path.
	TaskBulkResolve = "threeway:bulk_resolve"
	// TaskStaleExceptionScan counts unresolved exceptions past the stale threshold.
	TaskStaleExceptionScan = "threeway:stale_exception_scan"
)

// BulkResolvePayload carries the ids and the actor that requested the resolve.
type BulkResolvePayload struct {
	IDs        []int64  `json:"ids"`
	ActorID    int64    `json:"actor_id"`
	ActorRoles []string `json:"actor_roles"`
}

// StaleScanPayload tunes the stale scan. Zero values use the worker default.
type StaleScanPayload struct {
	OlderThanHours int `json:"older_than_hours"`
}

// NewBulkResolveTask builds a bulk resolve task.
func NewBulkResolveTask(payload BulkResolvePayload) (*asynq.Task, error) {
	if len(payload.IDs) == 0 {
		return nil, fmt.Errorf("jobs: bulk resolve needs at least one id")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBulkResolve, body, asynq.Queue(QueueDefault), asynq.MaxRetry(1), asynq.Timeout(5*time.Minute)), nil
}

// NewStaleScanTask builds a stale exception scan task.
func NewStaleScanTask(olderThan time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(StaleScanPayload{OlderThanHours: int(olderThan / time.Hour)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStaleExceptionScan, body, asynq.Queue(QueueDefault)), nil
}
