package audit

import (
	"context"
	"fmt"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
	maxExportRows   = 10000
)

// Service coordinates audit timeline reads.
type Service struct {
	repo Repository
}

// NewService builds a timeline service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline returns one page of the audit timeline. One extra row is fetched
// to learn whether a next page exists.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	rows, err := s.repo.TimelineWindow(ctx, filters, pageSize+1, (page-1)*pageSize)
	if err != nil {
		return Result{}, fmt.Errorf("audit: timeline: %w", err)
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	if rows == nil {
		rows = []TimelineRow{}
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// Export returns every matching row, capped at maxExportRows.
func (s *Service) Export(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("audit: repository not configured")
	}
	rows, err := s.repo.TimelineAll(ctx, filters, maxExportRows)
	if err != nil {
		return nil, fmt.Errorf("audit: export: %w", err)
	}
	return rows, nil
}
