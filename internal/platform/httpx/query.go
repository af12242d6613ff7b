package httpx

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

const maxKeyword = 50

// ParseListQuery reads page, pageSize, keyword, disabled, beginTime, endTime
// and sort from the query string.
func ParseListQuery(r *http.Request) (shared.ListQuery, error) {
	q := r.URL.Query()
	out := shared.ListQuery{Desc: true}
	var err error
	if out.Page, err = intParam(q.Get("page"), "page"); err != nil {
		return out, err
	}
	if out.PageSize, err = intParam(q.Get("pageSize"), "pageSize"); err != nil {
		return out, err
	}
	out.Keyword = strings.TrimSpace(q.Get("keyword"))
	if len([]rune(out.Keyword)) > maxKeyword {
		return out, shared.Validation("keyword must not exceed 50 characters")
	}
	if out.Disabled, err = BoolParam(q.Get("disabled"), "disabled"); err != nil {
		return out, err
	}
	if out.BeginTime, err = timeParam(q.Get("beginTime"), "beginTime"); err != nil {
		return out, err
	}
	if out.EndTime, err = timeParam(q.Get("endTime"), "endTime"); err != nil {
		return out, err
	}
	switch strings.ToLower(q.Get("sort")) {
	case "", "desc":
	case "asc":
		out.Desc = false
	default:
		return out, shared.Validation("sort must be asc or desc")
	}
	return out, nil
}

// BoolParam parses an optional boolean query value.
func BoolParam(raw, name string) (*bool, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, shared.Validation(name + " must be a boolean")
	}
	return &v, nil
}

func intParam(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, shared.Validation(name + " must be a positive integer")
	}
	return v, nil
}

// timeParam accepts RFC 3339, a plain date, or unix seconds.
func timeParam(raw, name string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		t := time.Unix(secs, 0).UTC()
		return &t, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, shared.Validation(name + " must be a valid time")
}
