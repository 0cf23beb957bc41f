package store

import (
	"context"

	"github.com/TerryMooreII/rss-reader/gateway"
	"github.com/TerryMooreII/rss-reader/models"
	log "github.com/sirupsen/logrus"
)

// SetFilter replaces the active filter and fetches its first page. The list,
// selection, cursors and page state are cleared up front, so callers see an
// empty loading list immediately. Setting the same filter again re-fetches.
func (s *EntryStore) SetFilter(ctx context.Context, filter models.Filter) {
	if err := filter.Validate(); err != nil {
		s.setError(err)
		return
	}

	s.mu.Lock()
	s.filter = filter
	s.entries = nil
	s.hasMore = false
	s.errMsg = ""
	s.offset = 0
	s.page = 1
	s.pageCursors = []*models.Cursor{nil}
	s.selectedID = 0
	s.generation++
	generation := s.generation
	s.loading = true
	limit := s.pageSize
	s.mu.Unlock()

	batch, err := s.gateway.Entries(ctx, filter, gateway.Page{Limit: limit})

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != generation {
		// A newer SetFilter won the race; this response is for a view the
		// user already left.
		log.WithFields(log.Fields{
			"filter": filter.Type,
		}).Debug("Discarding stale first-page response")
		return
	}
	s.loading = false
	if err != nil {
		s.errMsg = err.Error()
		return
	}
	s.entries = batch
	s.hasMore = len(batch) == limit
	if filter.Type == models.FilterSearch {
		s.offset = len(batch)
	}
}

// FetchMore appends the next batch in infinite mode. Dropped while a fetch
// is in flight, when the previous batch said there is nothing more, or when
// nothing is loaded yet.
func (s *EntryStore) FetchMore(ctx context.Context) {
	s.mu.Lock()
	if s.loading || !s.hasMore || len(s.entries) == 0 {
		s.mu.Unlock()
		return
	}
	generation := s.generation
	filter := s.filter
	limit := s.pageSize
	page := gateway.Page{Limit: limit}
	if filter.Type == models.FilterSearch {
		page.Offset = s.offset
	} else {
		cursor := models.CursorFromEntry(s.entries[len(s.entries)-1])
		page.Cursor = &cursor
	}
	s.loading = true
	s.mu.Unlock()

	batch, err := s.gateway.Entries(ctx, filter, page)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != generation {
		return
	}
	s.loading = false
	if err != nil {
		s.errMsg = err.Error()
		return
	}
	s.entries = append(s.entries, batch...)
	// A batch as large as requested means there is probably more; the cost
	// of guessing wrong is one empty fetch at the true end of the list.
	s.hasMore = len(batch) == limit
	if filter.Type == models.FilterSearch {
		s.offset += len(batch)
	}
}

// FetchPage moves one page forward or back in paginated mode. Forward pushes
// the watermark of the current page onto the cursor stack; back pops it. The
// search filter has no cursors, so its pages are addressed by offset instead.
// Refused while loading, past the last page, or before the first.
func (s *EntryStore) FetchPage(ctx context.Context, direction models.PageDirection) {
	s.mu.Lock()
	if s.loading {
		s.mu.Unlock()
		return
	}

	search := s.filter.Type == models.FilterSearch
	prevPage := s.page
	prevCursors := s.pageCursors
	prevOffset := s.offset

	switch direction {
	case models.PageNext:
		if !s.hasMore || len(s.entries) == 0 {
			s.mu.Unlock()
			return
		}
		if !search {
			cursor := models.CursorFromEntry(s.entries[len(s.entries)-1])
			s.pageCursors = append(s.pageCursors, &cursor)
		}
		s.page++
	case models.PagePrevious:
		if s.page <= 1 {
			s.mu.Unlock()
			return
		}
		if !search {
			s.pageCursors = s.pageCursors[:len(s.pageCursors)-1]
		}
		s.page--
	default:
		s.mu.Unlock()
		return
	}

	generation := s.generation
	filter := s.filter
	limit := s.pageSize
	page := gateway.Page{Limit: limit}
	if search {
		s.offset = (s.page - 1) * limit
		page.Offset = s.offset
	} else {
		page.Cursor = s.pageCursors[len(s.pageCursors)-1]
	}
	s.loading = true
	s.mu.Unlock()

	batch, err := s.gateway.Entries(ctx, filter, page)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != generation {
		return
	}
	s.loading = false
	if err != nil {
		// Roll the navigation back so the view still shows the page it had.
		s.page = prevPage
		s.pageCursors = prevCursors
		s.offset = prevOffset
		s.errMsg = err.Error()
		return
	}
	s.entries = batch
	s.hasMore = len(batch) == limit
	s.selectedID = 0
}
