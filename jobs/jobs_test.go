package jobs

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/odyssey-rbac/internal/jobs"
	"github.com/odyssey-erp/odyssey-rbac/internal/rbac"
)

type flusherSpy struct {
	flushed int
	swept   []rbac.Change
	err     error
}

func (f *flusherSpy) Flush(ctx context.Context) (int, error) {
	f.flushed++
	return 4, f.err
}

func (f *flusherSpy) Sweep(ctx context.Context, ch rbac.Change) (int, error) {
	f.swept = append(f.swept, ch)
	return 1, f.err
}

type prunerSpy struct {
	cutoff time.Time
	err    error
}

func (p *prunerSpy) PruneSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	p.cutoff = cutoff
	return 3, p.err
}

func TestRBACFlushJobFlushesOrSweeps(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	spy := &flusherSpy{}
	job := NewRBACFlushJob(spy, nil, metrics)

	task, err := NewRBACFlushTask("")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, 1, spy.flushed)

	task, err = NewRBACFlushTask("system:user:add")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, []rbac.Change{{Old: "system:user:add", Drop: true}}, spy.swept)

	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(jobsTotal(TaskRBACFlush, "success", 2)), "odyssey_jobs_total"))
}

func TestRBACFlushJobReportsFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	job := NewRBACFlushJob(&flusherSpy{err: errors.New("redis down")}, nil, jobmetrics.NewMetrics(reg))

	task, err := NewRBACFlushTask("")
	require.NoError(t, err)
	assert.Error(t, job.Handle(context.Background(), task))
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(jobsTotal(TaskRBACFlush, "failure", 1)), "odyssey_jobs_total"))

	bad := asynq.NewTask(TaskRBACFlush, []byte("{"))
	assert.ErrorIs(t, job.Handle(context.Background(), bad), asynq.SkipRetry)
}

func TestSessionPruneJobUsesRetention(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	spy := &prunerSpy{}
	job := NewSessionPruneJob(spy, 24*time.Hour, nil, nil)
	job.clock = func() time.Time { return now }

	task, err := NewSessionPruneTask(time.Hour)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, now.Add(-time.Hour), spy.cutoff)

	task, err = NewSessionPruneTask(0)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, now.Add(-24*time.Hour), spy.cutoff)

	failing := NewSessionPruneJob(&prunerSpy{err: errors.New("db down")}, time.Hour, nil, nil)
	assert.Error(t, failing.Handle(context.Background(), task))
}

func TestHealthWithoutInspector(t *testing.T) {
	rr := httptest.NewRecorder()
	NewHandler(nil, nil).health(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"queue":"default","pending":0}`, rr.Body.String())
}

func jobsTotal(job, status string, value int) string {
	return `
# HELP odyssey_jobs_total Total job executions partitioned by job name and status.
# TYPE odyssey_jobs_total counter
odyssey_jobs_total{job="` + job + `",status="` + status + `"} ` + strconv.Itoa(value) + `
`
}
