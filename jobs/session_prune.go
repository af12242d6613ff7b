package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-rbac/internal/jobs"
)

// SessionPruner deletes session audit rows that expired before cutoff.
// *auth.Service implements it.
type SessionPruner interface {
	PruneSessions(ctx context.Context, cutoff time.Time) (int64, error)
}

// SessionPruneJob removes expired session audit rows.
type SessionPruneJob struct {
	Sessions  SessionPruner
	Retention time.Duration
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	clock     func() time.Time
}

// NewSessionPruneJob wires dependencies for the prune handler. retention is
// used when a task carries none.
func NewSessionPruneJob(sessions SessionPruner, retention time.Duration, logger *slog.Logger, metrics *jobmetrics.Metrics) *SessionPruneJob {
	return &SessionPruneJob{
		Sessions:  sessions,
		Retention: retention,
		Logger:    logger,
		Metrics:   metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes TaskSessionPrune tasks.
func (j *SessionPruneJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Sessions == nil {
		return errors.New("session prune: handler not configured")
	}
	var payload SessionPrunePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	retention := payload.Retention()
	if retention <= 0 {
		retention = j.Retention
	}

	tracker := j.Metrics.Track(TaskSessionPrune)
	defer func() {
		err = tracker.End(err)
	}()

	cutoff := j.now().Add(-retention)
	logger := j.logger().With(slog.Time("cutoff", cutoff))
	deleted, err := j.Sessions.PruneSessions(ctx, cutoff)
	if err != nil {
		logger.Error("prune sessions", slog.Any("error", err))
		return err
	}
	j.Metrics.AddItems(TaskSessionPrune, deleted)
	logger.Info("pruned sessions", slog.Int64("deleted", deleted))
	return nil
}

func (j *SessionPruneJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

func (j *SessionPruneJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
