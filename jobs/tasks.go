package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskRBACFlush drops cached permission sets.
	TaskRBACFlush = "rbac:flush"
	// TaskSessionPrune deletes expired session audit rows.
	TaskSessionPrune = "session:prune"
)

// RBACFlushPayload selects the flush scope. An empty Permission drops every
// cached set; otherwise only sets holding Permission are dropped.
type RBACFlushPayload struct {
	Permission string `json:"permission,omitempty"`
}

// NewRBACFlushTask builds a cache flush task.
func NewRBACFlushTask(permission string) (*asynq.Task, error) {
	body, err := json.Marshal(RBACFlushPayload{Permission: permission})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRBACFlush, body, asynq.Queue(QueueDefault)), nil
}

// SessionPrunePayload carries how long expired sessions are kept.
type SessionPrunePayload struct {
	RetentionSeconds int64 `json:"retentionSeconds"`
}

// Retention returns the payload's retention window.
func (p SessionPrunePayload) Retention() time.Duration {
	return time.Duration(p.RetentionSeconds) * time.Second
}

// NewSessionPruneTask builds a session prune task.
func NewSessionPruneTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(SessionPrunePayload{RetentionSeconds: int64(retention / time.Second)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSessionPrune, body, asynq.Queue(QueueDefault)), nil
}
