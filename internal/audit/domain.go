package audit

import "time"

// Event is one append-only security or lifecycle record.
type Event struct {
	ID       int64          `json:"id"`
	UserID   int64          `json:"user_id"`
	Action   string         `json:"action"`
	Resource string         `json:"resource"`
	Details  map[string]any `json:"details,omitempty"`
	At       time.Time      `json:"at"`
}

// Filters narrows a trail listing.
type Filters struct {
	From     time.Time
	To       time.Time
	UserID   int64
	Action   string
	Page     int
	PageSize int
}

// PagingInfo carries simple page metadata for the trail listing.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
}

// Result bundles trail rows with paging metadata.
type Result struct {
	Events []Event    `json:"events"`
	Paging PagingInfo `json:"paging"`
}
