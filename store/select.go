package store

import (
	"context"
	"strings"

	"github.com/TerryMooreII/rss-reader/models"
)

// Select moves the selection to id when it is loaded and arms the delayed
// auto-mark-read. Every selection change rearms the single pending timer, so
// skimming quickly through a list marks nothing.
func (s *EntryStore) Select(id int64) {
	s.mu.Lock()
	if s.indexOf(id) < 0 {
		s.mu.Unlock()
		return
	}
	s.selectedID = id
	s.mu.Unlock()

	s.armAutoRead()
}

// SelectNext selects the entry after the current one, or the first when
// nothing is selected. Stops at the end of the loaded list.
func (s *EntryStore) SelectNext() {
	s.mu.Lock()
	if len(s.entries) == 0 {
		s.mu.Unlock()
		return
	}
	idx := s.indexOf(s.selectedID)
	if idx < len(s.entries)-1 {
		idx++
	}
	s.selectedID = s.entries[idx].ID
	s.mu.Unlock()

	s.armAutoRead()
}

// SelectPrevious selects the entry before the current one. Stops at the top.
func (s *EntryStore) SelectPrevious() {
	s.mu.Lock()
	if len(s.entries) == 0 {
		s.mu.Unlock()
		return
	}
	idx := s.indexOf(s.selectedID)
	switch {
	case idx < 0:
		idx = 0
	case idx > 0:
		idx--
	}
	s.selectedID = s.entries[idx].ID
	s.mu.Unlock()

	s.armAutoRead()
}

// OpenReader marks the reader pane open; while it shows a selected entry,
// silent refreshes hold off.
func (s *EntryStore) OpenReader() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readerOpen = true
}

func (s *EntryStore) CloseReader() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readerOpen = false
}

// fireAutoRead runs when the selection has rested for the configured delay.
func (s *EntryStore) fireAutoRead() {
	s.mu.Lock()
	id := s.selectedID
	s.mu.Unlock()
	if id == 0 {
		return
	}
	s.MarkRead(context.Background(), id)
}

// SetSearchQuery debounces search-as-you-type into a single filter change.
// Blank queries are dropped.
func (s *EntryStore) SetSearchQuery(query string) {
	s.mu.Lock()
	s.pendingQuery = query
	s.mu.Unlock()

	s.armSearch()
}

func (s *EntryStore) fireSearch() {
	s.mu.Lock()
	query := strings.TrimSpace(s.pendingQuery)
	s.mu.Unlock()
	if query == "" {
		return
	}
	s.SetFilter(context.Background(), models.Filter{Type: models.FilterSearch, Query: query})
}
