package models

import (
	"fmt"
	"time"
)

// FilterType names the view the entry list is scoped to.
type FilterType string

const (
	FilterAll      FilterType = "all"
	FilterFeed     FilterType = "feed"
	FilterGroup    FilterType = "group"
	FilterCategory FilterType = "category"
	FilterStarred  FilterType = "starred"
	FilterSearch   FilterType = "search"
)

// Filter is the full scope of an entry listing. It is a comparable value so
// stores can detect no-op filter changes with ==.
type Filter struct {
	Type       FilterType `json:"type"`
	FeedID     int64      `json:"feed_id,omitempty"`
	GroupID    int64      `json:"group_id,omitempty"`
	Category   string     `json:"category,omitempty"`
	Query      string     `json:"query,omitempty"`
	UnreadOnly bool       `json:"unread_only"`
}

// Validate checks that the filter carries the argument its type requires.
func (f Filter) Validate() error {
	switch f.Type {
	case FilterAll, FilterStarred:
		return nil
	case FilterFeed:
		if f.FeedID == 0 {
			return fmt.Errorf("feed filter requires a feed id")
		}
	case FilterGroup:
		if f.GroupID == 0 {
			return fmt.Errorf("group filter requires a group id")
		}
	case FilterCategory:
		if f.Category == "" {
			return fmt.Errorf("category filter requires a category name")
		}
	case FilterSearch:
		if f.Query == "" {
			return fmt.Errorf("search filter requires a query")
		}
	default:
		return fmt.Errorf("unknown filter type %q", f.Type)
	}
	return nil
}

// Cursor is the keyset watermark for the next fetch: the timestamp and id of
// the last entry of the previous batch. The starred view orders by the
// starred timestamp instead of the publish timestamp, so both are carried
// and the gateway picks the one the view needs. A nil Cursor means fetch
// from the top.
type Cursor struct {
	PublishedAt time.Time
	StarredAt   *time.Time
	ID          int64
}

// CursorFromEntry builds the watermark pointing just past e.
func CursorFromEntry(e Entry) Cursor {
	return Cursor{
		PublishedAt: e.PublishedAt,
		StarredAt:   e.StarredAt,
		ID:          e.ID,
	}
}

// PageDirection is the navigation intent in paginated mode.
type PageDirection string

const (
	PageNext     PageDirection = "next"
	PagePrevious PageDirection = "previous"
)
