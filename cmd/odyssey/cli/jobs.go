package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-rbac/jobs"
)

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    enqueuer
	inspector *asynq.Inspector
}

// NewJobsCLI initialises the CLI helpers using the provided Redis options.
func NewJobsCLI(opts asynq.RedisClientOpt) (*JobsCLI, error) {
	client := asynq.NewClient(opts)
	inspector := asynq.NewInspector(opts)
	return &JobsCLI{client: client, inspector: inspector}, nil
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		if closeErr := c.inspector.Close(); closeErr != nil {
			err = closeErr
		}
	}
	if c.client != nil {
		if closeErr := c.client.Close(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}

// Trigger enqueues a supported job by name. For rbac:flush arg is an optional
// permission identifier; for session:prune it is an optional retention
// duration such as "72h".
func (c *JobsCLI) Trigger(ctx context.Context, name, arg string) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	var task *asynq.Task
	var err error
	switch name {
	case jobs.TaskRBACFlush:
		task, err = jobs.NewRBACFlushTask(arg)
	case jobs.TaskSessionPrune:
		var retention time.Duration
		if arg != "" {
			retention, err = time.ParseDuration(arg)
			if err != nil {
				return nil, fmt.Errorf("jobs cli: retention %q: %w", arg, err)
			}
		}
		task, err = jobs.NewSessionPruneTask(retention)
	default:
		return nil, fmt.Errorf("jobs cli: unsupported job %s", name)
	}
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.MaxRetry(3))
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
}

// InspectQueue reports the queue metrics for the default queue.
func (c *JobsCLI) InspectQueue(ctx context.Context) (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = int(info.Pending)
		stats.Active = int(info.Active)
		stats.Scheduled = int(info.Scheduled)
		stats.Retry = int(info.Retry)
	}
	return stats, nil
}

// ListScheduled returns scheduled task infos for observability.
func (c *JobsCLI) ListScheduled(ctx context.Context, size int) ([]*asynq.TaskInfo, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	if size <= 0 {
		size = 10
	}
	return c.inspector.ListScheduledTasks(jobs.QueueDefault, asynq.PageSize(size), asynq.Page(1))
}

const usage = `usage:
  odyssey jobs trigger rbac:flush [permission]
  odyssey jobs trigger session:prune [retention]
  odyssey jobs stats
  odyssey jobs scheduled [size]`

// Run dispatches "odyssey jobs ..." subcommands.
func Run(ctx context.Context, opts asynq.RedisClientOpt, args []string, out io.Writer) error {
	c, err := NewJobsCLI(opts)
	if err != nil {
		return err
	}
	defer c.Close()
	return c.run(ctx, args, out)
}

func (c *JobsCLI) run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New(usage)
	}
	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			return errors.New(usage)
		}
		var arg string
		if len(args) > 2 {
			arg = args[2]
		}
		info, err := c.Trigger(ctx, args[1], arg)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
		return err
	case "stats":
		stats, err := c.InspectQueue(ctx)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
		return err
	case "scheduled":
		size := 10
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("jobs cli: size %q: %w", args[1], err)
			}
			size = n
		}
		infos, err := c.ListScheduled(ctx, size)
		if err != nil {
			return err
		}
		for _, info := range infos {
			if _, err := fmt.Fprintf(out, "%s %s next=%s\n", info.ID, info.Type, info.NextProcessAt.Format(time.RFC3339)); err != nil {
				return err
			}
		}
		return nil
	default:
		return errors.New(usage)
	}
}
