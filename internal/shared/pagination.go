package shared

import (
	"math"
	"time"
)

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"pageSize"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// NewPagination computes pagination metadata.
func NewPagination(page, perPage, total int) Pagination {
	page, perPage = NormalizePage(page, perPage)
	totalPages := int(math.Ceil(float64(total) / float64(perPage)))
	return Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}

// NormalizePage clamps page and size to sane defaults.
func NormalizePage(page, perPage int) (int, int) {
	if perPage <= 0 {
		perPage = 20
	}
	if perPage > 100 {
		perPage = 100
	}
	if page <= 0 {
		page = 1
	}
	return page, perPage
}

// Offset returns the row offset for the page.
func Offset(page, perPage int) int {
	page, perPage = NormalizePage(page, perPage)
	return (page - 1) * perPage
}

// Page is a generic listing response.
type Page[T any] struct {
	List       []T        `json:"list"`
	Pagination Pagination `json:"pagination"`
}

// ListQuery holds the common listing filters. Nil pointers mean "not filtered".
type ListQuery struct {
	Keyword   string
	Disabled  *bool
	BeginTime *time.Time
	EndTime   *time.Time
	Desc      bool
	Page      int
	PageSize  int
}

// Limit returns the normalized page size.
func (q ListQuery) Limit() int {
	_, size := NormalizePage(q.Page, q.PageSize)
	return size
}

// Offset returns the normalized row offset.
func (q ListQuery) Offset() int {
	return Offset(q.Page, q.PageSize)
}

// Paginate wraps items with pagination metadata for q.
func Paginate[T any](q ListQuery, items []T, total int) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{List: items, Pagination: NewPagination(q.Page, q.PageSize, total)}
}
