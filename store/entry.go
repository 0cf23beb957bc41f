package store

import (
	"context"
	"sync"
	"time"

	"github.com/TerryMooreII/rss-reader/gateway"
	"github.com/TerryMooreII/rss-reader/models"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultPageSize      = 50
	DefaultMarkReadDelay = time.Second
	DefaultSearchDelay   = 300 * time.Millisecond
)

// EntryGateway is the slice of the remote gateway the entry store consumes.
type EntryGateway interface {
	Entries(ctx context.Context, filter models.Filter, page gateway.Page) ([]models.Entry, error)
	UpsertEntryState(ctx context.Context, entry models.Entry) error
	MarkAllRead(ctx context.Context) error
	MarkFeedRead(ctx context.Context, feedID int64) error
	MarkGroupRead(ctx context.Context, groupID int64) error
	MarkCategoryRead(ctx context.Context, category string) error
}

// EntryStore owns the entry list of the active view: which filter is shown,
// what has been fetched, pagination state, the selection, and the optimistic
// read/star mutations. Operations never return errors; remote failures land
// in a shared error field the caller can poll, local precondition failures
// are silent no-ops, and background refresh failures are swallowed.
type EntryStore struct {
	mu sync.Mutex

	gateway EntryGateway
	bus     *Bus

	pageSize int
	mode     models.PaginationMode

	filter  models.Filter
	entries []models.Entry
	hasMore bool
	loading bool
	errMsg  string

	// generation stamps every first-page fetch; responses carrying a stale
	// generation are dropped so a slow fetch can never overwrite the state
	// of a newer filter.
	generation uint64

	// cursorless offset used by the search filter.
	offset int

	// paged mode: 1-based page counter and the cursor that opened each
	// visited page. pageCursors[0] is always nil (the first page).
	page        int
	pageCursors []*models.Cursor

	selectedID int64
	readerOpen bool

	pendingQuery string

	armAutoRead func()
	armSearch   func()

	now func() time.Time
}

// EntryStoreConfig wires the store's collaborators. Zero durations and sizes
// fall back to the package defaults.
type EntryStoreConfig struct {
	Gateway        EntryGateway
	Bus            *Bus
	PageSize       int
	PaginationMode models.PaginationMode
	MarkReadDelay  time.Duration
	SearchDelay    time.Duration
}

func NewEntryStore(config EntryStoreConfig) *EntryStore {
	if config.PageSize <= 0 {
		config.PageSize = DefaultPageSize
	}
	if config.PaginationMode == "" {
		config.PaginationMode = models.PaginationInfinite
	}
	if config.MarkReadDelay <= 0 {
		config.MarkReadDelay = DefaultMarkReadDelay
	}
	if config.SearchDelay <= 0 {
		config.SearchDelay = DefaultSearchDelay
	}
	if config.Bus == nil {
		config.Bus = NewBus()
	}

	s := &EntryStore{
		gateway:     config.Gateway,
		bus:         config.Bus,
		pageSize:    config.PageSize,
		mode:        config.PaginationMode,
		filter:      models.Filter{Type: models.FilterAll},
		page:        1,
		pageCursors: []*models.Cursor{nil},
		now:         time.Now,
	}

	s.armAutoRead, _ = lo.NewDebounce(config.MarkReadDelay, s.fireAutoRead)
	s.armSearch, _ = lo.NewDebounce(config.SearchDelay, s.fireSearch)

	return s
}

// ApplySettings picks up a changed page size or pagination mode. The loaded
// list is left alone; the next SetFilter fetches under the new shape.
func (s *EntryStore) ApplySettings(settings models.Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if settings.PageSize > 0 {
		s.pageSize = settings.PageSize
	}
	if settings.PaginationMode != "" {
		s.mode = settings.PaginationMode
	}
}

// Entries returns a copy of the loaded list.
func (s *EntryStore) Entries() []models.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make([]models.Entry, len(s.entries))
	copy(entries, s.entries)
	return entries
}

// EntryListState is a consistent snapshot of the visible list, taken under
// one lock so the fields cannot contradict each other.
type EntryListState struct {
	Filter     models.Filter  `json:"filter"`
	Entries    []models.Entry `json:"entries"`
	HasMore    bool           `json:"has_more"`
	Loading    bool           `json:"loading"`
	Page       int            `json:"page"`
	SelectedID int64          `json:"selected_id,omitempty"`
	ReaderOpen bool           `json:"reader_open"`
	Error      string         `json:"error,omitempty"`
}

func (s *EntryStore) Snapshot() EntryListState {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make([]models.Entry, len(s.entries))
	copy(entries, s.entries)
	return EntryListState{
		Filter:     s.filter,
		Entries:    entries,
		HasMore:    s.hasMore,
		Loading:    s.loading,
		Page:       s.page,
		SelectedID: s.selectedID,
		ReaderOpen: s.readerOpen,
		Error:      s.errMsg,
	}
}

func (s *EntryStore) Filter() models.Filter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter
}

func (s *EntryStore) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasMore
}

func (s *EntryStore) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Error returns the message of the most recent remote failure, or "".
func (s *EntryStore) Error() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg
}

// Page returns the 1-based page number (always 1 in infinite mode).
func (s *EntryStore) Page() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

// Selected returns the selected entry when one is loaded.
func (s *EntryStore) Selected() (models.Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexOf(s.selectedID)
	if idx < 0 {
		return models.Entry{}, false
	}
	return s.entries[idx], true
}

func (s *EntryStore) ReaderOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readerOpen
}

// indexOf returns the position of id in the loaded list, -1 when absent.
// Callers hold s.mu.
func (s *EntryStore) indexOf(id int64) int {
	if id == 0 {
		return -1
	}
	for i := range s.entries {
		if s.entries[i].ID == id {
			return i
		}
	}
	return -1
}

// setError records a remote failure in the shared error field.
func (s *EntryStore) setError(err error) {
	log.Warn("Entry store remote call failed: ", err)
	s.mu.Lock()
	s.errMsg = err.Error()
	s.mu.Unlock()
}
