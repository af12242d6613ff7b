package audit

import "time"

// TimelineFilters narrows the audit timeline. From and To bound occurred_at
// inclusively by calendar day.
type TimelineFilters struct {
	From     time.Time
	To       time.Time
	Actor    string
	Entity   string
	Action   string
	Page     int
	PageSize int
}

// TimelineRow is one recorded mutation.
type TimelineRow struct {
	At        time.Time      `json:"at"`
	ActorID   string         `json:"actorId"`
	ActorName string         `json:"actorName"`
	Action    string         `json:"action"`
	Entity    string         `json:"entity"`
	EntityID  string         `json:"entityId"`
	Meta      map[string]any `json:"meta"`
}

// PagingInfo is cursor-free paging metadata for the timeline.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"pageSize"`
	HasNext  bool `json:"hasNext"`
	PrevPage int  `json:"prevPage,omitempty"`
	NextPage int  `json:"nextPage,omitempty"`
}

// Result wraps a timeline page.
type Result struct {
	Rows   []TimelineRow `json:"list"`
	Paging PagingInfo    `json:"paging"`
}
