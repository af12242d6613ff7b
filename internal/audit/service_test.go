package audit

import (
	"context"
	"encoding/csv"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-rbac/internal/rbac"
	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

type stubTimelineRepo struct {
	rows       []TimelineRow
	err        error
	lastFilter TimelineFilters
	lastLimit  int
	lastOffset int
}

func (s *stubTimelineRepo) TimelineWindow(ctx context.Context, filters TimelineFilters, limit, offset int) ([]TimelineRow, error) {
	s.lastFilter, s.lastLimit, s.lastOffset = filters, limit, offset
	if s.err != nil {
		return nil, s.err
	}
	end := offset + limit
	if end > len(s.rows) {
		end = len(s.rows)
	}
	if offset > end {
		return nil, nil
	}
	return s.rows[offset:end], nil
}

func (s *stubTimelineRepo) TimelineAll(ctx context.Context, filters TimelineFilters, limit int) ([]TimelineRow, error) {
	s.lastFilter, s.lastLimit = filters, limit
	return s.rows, s.err
}

func mockRow(at, actor, action, entity, id string) TimelineRow {
	ts, _ := time.Parse(time.RFC3339, at)
	return TimelineRow{At: ts, ActorID: "u-" + actor, ActorName: actor, Action: action, Entity: entity, EntityID: id}
}

func sampleRows() []TimelineRow {
	return []TimelineRow{
		mockRow("2026-03-10T10:00:00Z", "sAdmin", "role.update", "role", "2"),
		mockRow("2026-03-09T09:00:00Z", "sAdmin", "user.delete", "user", "9f1c"),
		mockRow("2026-03-08T08:00:00Z", "alice", "permission.update", "permission", "7"),
	}
}

func TestServiceTimelinePaging(t *testing.T) {
	repo := &stubTimelineRepo{rows: sampleRows()}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, result.Rows, 2)
	assert.Equal(t, PagingInfo{Page: 1, PageSize: 2, HasNext: true, NextPage: 2}, result.Paging)
	assert.Equal(t, 3, repo.lastLimit)
	assert.Equal(t, 0, repo.lastOffset)

	result, err = svc.Timeline(context.Background(), TimelineFilters{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, result.Rows, 1)
	assert.Equal(t, PagingInfo{Page: 2, PageSize: 2, PrevPage: 1}, result.Paging)
	assert.Equal(t, 2, repo.lastOffset)
}

func TestServiceTimelineClampsPageSize(t *testing.T) {
	repo := &stubTimelineRepo{}
	result, err := NewService(repo).Timeline(context.Background(), TimelineFilters{PageSize: 500})
	require.NoError(t, err)
	assert.Equal(t, maxPageSize, result.Paging.PageSize)
	assert.Equal(t, maxPageSize+1, repo.lastLimit)
	assert.NotNil(t, result.Rows)
}

func TestServiceExportCapsRows(t *testing.T) {
	repo := &stubTimelineRepo{rows: sampleRows()}
	rows, err := NewService(repo).Export(context.Background(), TimelineFilters{Action: "role.update"})
	require.NoError(t, err)
	assert.Len(t, rows, 3)
	assert.Equal(t, maxExportRows, repo.lastLimit)
	assert.Equal(t, "role.update", repo.lastFilter.Action)

	repo.err = errors.New("db down")
	_, err = NewService(repo).Export(context.Background(), TimelineFilters{})
	assert.Error(t, err)
}

func TestWriteCSV(t *testing.T) {
	row := mockRow("2026-03-10T10:00:00Z", "sAdmin", "role.update", "role", "2")
	row.Meta = map[string]any{"name": "ops"}
	out, err := WriteCSV([]TimelineRow{row})
	require.NoError(t, err)

	records, err := csv.NewReader(strings.NewReader(string(out))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, csvHeader, records[0])
	assert.Equal(t, []string{"2026-03-10T10:00:00Z", "u-sAdmin", "sAdmin", "role.update", "role", "2", `{"name":"ops"}`}, records[1])
}

type resolverStub map[string][]string

func (r resolverStub) FindUserPermissions(ctx context.Context, userID string) ([]string, error) {
	return r[userID], nil
}

func (resolverStub) SuperPermission() string { return "*:*:*" }

func newTestRouter(repo Repository) http.Handler {
	h := NewHandler(nil, NewService(repo), rbac.Middleware{Service: resolverStub{
		"auditor": {shared.PermAuditQuery},
		"viewer":  {shared.PermUserQuery},
	}})
	h.now = func() time.Time { return time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC) }
	r := chi.NewRouter()
	r.Route("/audit-logs", h.MountRoutes)
	return r
}

func get(h http.Handler, userID, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req = req.WithContext(shared.ContextWithPrincipal(req.Context(), &shared.Principal{UserID: userID}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHandlerTimelineDefaultsRange(t *testing.T) {
	repo := &stubTimelineRepo{rows: sampleRows()}
	router := newTestRouter(repo)

	rr := get(router, "auditor", "/audit-logs?entity=role")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), repo.lastFilter.To)
	assert.Equal(t, time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC), repo.lastFilter.From)
	assert.Equal(t, "role", repo.lastFilter.Entity)
	assert.Contains(t, rr.Body.String(), `"hasNext":false`)
}

func TestHandlerRejectsBadFilters(t *testing.T) {
	router := newTestRouter(&stubTimelineRepo{})

	for _, target := range []string{
		"/audit-logs?from=yesterday",
		"/audit-logs?from=2026-03-10&to=2026-03-01",
		"/audit-logs?from=2025-01-01&to=2026-03-01",
		"/audit-logs?page=0",
	} {
		rr := get(router, "auditor", target)
		assert.Equal(t, http.StatusBadRequest, rr.Code, target)
	}
}

func TestHandlerRequiresAuditMarker(t *testing.T) {
	router := newTestRouter(&stubTimelineRepo{rows: sampleRows()})

	rr := get(router, "viewer", "/audit-logs")
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = get(router, "auditor", "/audit-logs/export.csv")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rr.Body.String(), "at,actor_id,actor_name"))
}
