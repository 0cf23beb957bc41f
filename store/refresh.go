package store

import (
	"context"

	"github.com/TerryMooreII/rss-reader/gateway"
	"github.com/TerryMooreII/rss-reader/models"
	log "github.com/sirupsen/logrus"
)

// SilentRefresh reconciles the loaded list with the backend without any
// visible loading state. Skipped while the user is reading a selected entry
// so the article under their eyes cannot change. Every failure is swallowed;
// this runs from tickers and realtime pushes, not user intent.
//
// Paged mode re-fetches the current page in place. Infinite mode fetches the
// head page and merges it, except under the search filter where a head merge
// would shift the offsets of everything already loaded, so nothing happens.
func (s *EntryStore) SilentRefresh(ctx context.Context) {
	s.mu.Lock()
	if s.loading || (s.readerOpen && s.selectedID != 0) {
		s.mu.Unlock()
		return
	}

	generation := s.generation
	filter := s.filter
	limit := s.pageSize
	paged := s.mode == models.PaginationPaged
	empty := len(s.entries) == 0
	cursor := s.pageCursors[len(s.pageCursors)-1]
	pageNum := s.page
	s.mu.Unlock()

	if !paged && filter.Type == models.FilterSearch {
		return
	}

	page := gateway.Page{Limit: limit}
	if paged {
		if filter.Type == models.FilterSearch {
			page.Offset = (pageNum - 1) * limit
		} else {
			page.Cursor = cursor
		}
	}

	batch, err := s.gateway.Entries(ctx, filter, page)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		log.Debug("Silent refresh failed: ", err)
		return
	}
	if s.generation != generation {
		return
	}

	if paged {
		// Re-fetch of the current page replaces it wholesale.
		s.entries = batch
		if s.indexOf(s.selectedID) < 0 {
			s.selectedID = 0
		}
		return
	}

	if empty {
		// Nothing was loaded, so the head fetch is a plain first page.
		s.entries = batch
		s.hasMore = len(batch) == limit
		return
	}

	s.mergeHead(batch)
}

// mergeHead folds a fresh head page into the loaded list: read/starred flags
// of entries already present are refreshed in place, genuinely new entries
// are prepended. Order, selection and hasMore are untouched. Callers hold
// s.mu.
func (s *EntryStore) mergeHead(batch []models.Entry) {
	index := make(map[int64]int, len(s.entries))
	for i := range s.entries {
		index[s.entries[i].ID] = i
	}

	var fresh []models.Entry
	for _, incoming := range batch {
		if i, ok := index[incoming.ID]; ok {
			s.entries[i].ReadAt = incoming.ReadAt
			s.entries[i].StarredAt = incoming.StarredAt
			continue
		}
		fresh = append(fresh, incoming)
	}

	if len(fresh) > 0 {
		s.entries = append(fresh, s.entries...)
	}
}
