package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-rbac/internal/jobs"
	"github.com/odyssey-erp/odyssey-rbac/internal/rbac"
)

// CacheFlusher drops cached permission sets. *rbac.PermissionCache implements it.
type CacheFlusher interface {
	Flush(ctx context.Context) (int, error)
	Sweep(ctx context.Context, ch rbac.Change) (int, error)
}

// RBACFlushJob drops cached permission sets on demand.
type RBACFlushJob struct {
	Cache   CacheFlusher
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewRBACFlushJob wires dependencies for the flush handler.
func NewRBACFlushJob(cache CacheFlusher, logger *slog.Logger, metrics *jobmetrics.Metrics) *RBACFlushJob {
	return &RBACFlushJob{Cache: cache, Logger: logger, Metrics: metrics}
}

// Handle processes TaskRBACFlush tasks.
func (j *RBACFlushJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Cache == nil {
		return errors.New("rbac flush: handler not configured")
	}
	var payload RBACFlushPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	tracker := j.Metrics.Track(TaskRBACFlush)
	defer func() {
		err = tracker.End(err)
	}()

	var touched int
	if payload.Permission == "" {
		touched, err = j.Cache.Flush(ctx)
	} else {
		touched, err = j.Cache.Sweep(ctx, rbac.Change{Old: payload.Permission, Drop: true})
	}
	logger := j.logger().With(slog.String("permission", payload.Permission))
	if err != nil {
		logger.Error("rbac flush", slog.Any("error", err))
		return err
	}
	j.Metrics.AddItems(TaskRBACFlush, int64(touched))
	logger.Info("rbac cache flushed", slog.Int("keys", touched))
	return nil
}

func (j *RBACFlushJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
