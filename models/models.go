package models

import "time"

// Entry is a single feed item as returned by the backend. Read and starred
// state is per-user and lives in the nullable timestamps: a nil ReadAt means
// unread, a nil StarredAt means unstarred.
type Entry struct {
	ID          int64      `json:"id"`
	FeedID      int64      `json:"feed_id"`
	Title       string     `json:"title"`
	Link        string     `json:"link"`
	Summary     *string    `json:"summary,omitempty"`
	Content     *string    `json:"content,omitempty"`
	PublishedAt time.Time  `json:"published_at"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
	StarredAt   *time.Time `json:"starred_at,omitempty"`
}

func (e Entry) IsRead() bool {
	return e.ReadAt != nil
}

func (e Entry) IsStarred() bool {
	return e.StarredAt != nil
}

// Feed is a subscription with its denormalized unread counter. GroupIDs and
// Category are membership metadata resolved server-side so the aggregate
// stores can fan out count changes without asking each other.
type Feed struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	FeedURL     string  `json:"feed_url"`
	SiteURL     string  `json:"site_url,omitempty"`
	GroupIDs    []int64 `json:"group_ids,omitempty"`
	Category    string  `json:"category,omitempty"`
	UnreadCount int     `json:"unread_count"`
}

// Group is a user-defined collection of feeds.
type Group struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	FeedIDs     []int64 `json:"feed_ids,omitempty"`
	UnreadCount int     `json:"unread_count"`
}

// Category is a fixed top-level bucket (e.g. "news", "youtube", "reddit").
type Category struct {
	Name        string  `json:"name"`
	FeedIDs     []int64 `json:"feed_ids,omitempty"`
	UnreadCount int     `json:"unread_count"`
}

// Subscription is the payload sent when the user subscribes to a new feed.
// The backend fetcher takes over from there.
type Subscription struct {
	Title    string `json:"title"`
	FeedURL  string `json:"feed_url"`
	SiteURL  string `json:"site_url,omitempty"`
	GroupID  *int64 `json:"group_id,omitempty"`
	Category string `json:"category,omitempty"`
}

// PaginationMode selects how the entry list grows: an ever-growing scroll or
// discrete pages with back navigation.
type PaginationMode string

const (
	PaginationInfinite PaginationMode = "infinite"
	PaginationPaged    PaginationMode = "paginated"
)

// Density is the list rendering density persisted for the UI.
type Density string

const (
	DensityCompact  Density = "compact"
	DensityComfort  Density = "comfortable"
	DensityExpanded Density = "expanded"
)

// Settings is the per-user client configuration, read at startup from the
// local database and written back on every change.
type Settings struct {
	PaginationMode PaginationMode `json:"pagination_mode"`
	PageSize       int            `json:"page_size"`
	UnreadOnly     bool           `json:"unread_only"`
	Density        Density        `json:"density"`
}

// DefaultSettings returns the configuration used before the user has saved
// anything.
func DefaultSettings() Settings {
	return Settings{
		PaginationMode: PaginationInfinite,
		PageSize:       50,
		UnreadOnly:     false,
		Density:        DensityComfort,
	}
}

// Validate normalizes unknown values back to their defaults rather than
// failing: settings come from a local file a user may have edited.
func (s Settings) Validate() Settings {
	if s.PaginationMode != PaginationInfinite && s.PaginationMode != PaginationPaged {
		s.PaginationMode = PaginationInfinite
	}
	if s.PageSize < 1 || s.PageSize > 200 {
		s.PageSize = DefaultSettings().PageSize
	}
	switch s.Density {
	case DensityCompact, DensityComfort, DensityExpanded:
	default:
		s.Density = DensityComfort
	}
	return s
}

// ReadStateEvent fired when a single entry transitions between read and
// unread. Delta is the signed unread-count change for the owning feed.
type ReadStateEvent struct {
	FeedID int64 `json:"feed_id"`
	Delta  int   `json:"delta"`
}

// BulkReadEvent fired after a bulk mark-as-read succeeded remotely. Scope
// tells subscribers which counters they can zero with local knowledge.
type BulkReadEvent struct {
	Scope    FilterType `json:"scope"`
	FeedID   int64      `json:"feed_id,omitempty"`
	GroupID  int64      `json:"group_id,omitempty"`
	Category string     `json:"category,omitempty"`
}

// NewEntriesEvent fired when the realtime stream delivers entries the client
// has not seen yet.
type NewEntriesEvent struct {
	Entries []Entry `json:"entries"`
}

// Row-change types delivered by the backend change stream.
const (
	ChangeInsert = "INSERT"
	ChangeUpdate = "UPDATE"
	ChangeDelete = "DELETE"
)

// ChangeEvent is one row-change frame from the backend change stream. Only
// the entries table is subscribed, so Record is always an entry row.
type ChangeEvent struct {
	Table  string `json:"table"`
	Type   string `json:"type"`
	Record Entry  `json:"record"`
}
