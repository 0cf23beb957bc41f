package store

import (
	"context"

	"github.com/TerryMooreII/rss-reader/models"
	log "github.com/sirupsen/logrus"
)

// MarkRead flips one entry to read: local state first, then the event batch,
// then a best-effort remote upsert. Already-read entries and ids that are
// not loaded are silent no-ops.
func (s *EntryStore) MarkRead(ctx context.Context, id int64) {
	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 || s.entries[idx].IsRead() {
		s.mu.Unlock()
		return
	}
	now := s.now()
	s.entries[idx].ReadAt = &now
	entry := s.entries[idx]
	s.mu.Unlock()

	s.bus.Publish(models.ReadStateEvent{FeedID: entry.FeedID, Delta: -1})
	s.persist(ctx, entry)
}

// MarkUnread is the inverse of MarkRead.
func (s *EntryStore) MarkUnread(ctx context.Context, id int64) {
	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 || !s.entries[idx].IsRead() {
		s.mu.Unlock()
		return
	}
	s.entries[idx].ReadAt = nil
	entry := s.entries[idx]
	s.mu.Unlock()

	s.bus.Publish(models.ReadStateEvent{FeedID: entry.FeedID, Delta: 1})
	s.persist(ctx, entry)
}

func (s *EntryStore) ToggleRead(ctx context.Context, id int64) {
	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return
	}
	read := s.entries[idx].IsRead()
	s.mu.Unlock()

	if read {
		s.MarkUnread(ctx, id)
	} else {
		s.MarkRead(ctx, id)
	}
}

// ToggleStar flips the starred timestamp. Starring does not move unread
// counts, so no event is published.
func (s *EntryStore) ToggleStar(ctx context.Context, id int64) {
	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return
	}
	if s.entries[idx].IsStarred() {
		s.entries[idx].StarredAt = nil
	} else {
		now := s.now()
		s.entries[idx].StarredAt = &now
	}
	entry := s.entries[idx]
	s.mu.Unlock()

	s.persist(ctx, entry)
}

// persist pushes one entry's read/starred state to the backend. Failures are
// recorded, never returned; the local state stays optimistic and the next
// refresh reconciles.
func (s *EntryStore) persist(ctx context.Context, entry models.Entry) {
	if err := s.gateway.UpsertEntryState(ctx, entry); err != nil {
		log.WithFields(log.Fields{
			"entry": entry.ID,
		}).Warn("Failed to persist entry state: ", err)
		s.mu.Lock()
		s.errMsg = err.Error()
		s.mu.Unlock()
	}
}

// MarkAllRead marks everything read remotely, then stamps the loaded list.
// Bulk operations go remote-first: when the backend refuses there is nothing
// to roll back locally.
func (s *EntryStore) MarkAllRead(ctx context.Context) {
	if err := s.gateway.MarkAllRead(ctx); err != nil {
		s.setError(err)
		return
	}

	s.stampLoaded(func(e models.Entry) bool { return true })
	s.bus.Publish(models.BulkReadEvent{Scope: models.FilterAll})
}

func (s *EntryStore) MarkFeedRead(ctx context.Context, feedID int64) {
	if err := s.gateway.MarkFeedRead(ctx, feedID); err != nil {
		s.setError(err)
		return
	}

	s.stampLoaded(func(e models.Entry) bool { return e.FeedID == feedID })
	s.bus.Publish(models.BulkReadEvent{Scope: models.FilterFeed, FeedID: feedID})
}

// MarkGroupRead stamps loaded entries only when the active filter is that
// very group: group membership of an arbitrary entry is not known locally.
// Entries visible under other filters are corrected on their next fetch.
func (s *EntryStore) MarkGroupRead(ctx context.Context, groupID int64) {
	if err := s.gateway.MarkGroupRead(ctx, groupID); err != nil {
		s.setError(err)
		return
	}

	s.mu.Lock()
	match := s.filter.Type == models.FilterGroup && s.filter.GroupID == groupID
	s.mu.Unlock()
	if match {
		s.stampLoaded(func(e models.Entry) bool { return true })
	}
	s.bus.Publish(models.BulkReadEvent{Scope: models.FilterGroup, GroupID: groupID})
}

func (s *EntryStore) MarkCategoryRead(ctx context.Context, category string) {
	if err := s.gateway.MarkCategoryRead(ctx, category); err != nil {
		s.setError(err)
		return
	}

	s.mu.Lock()
	match := s.filter.Type == models.FilterCategory && s.filter.Category == category
	s.mu.Unlock()
	if match {
		s.stampLoaded(func(e models.Entry) bool { return true })
	}
	s.bus.Publish(models.BulkReadEvent{Scope: models.FilterCategory, Category: category})
}

// stampLoaded sets the read timestamp on every loaded unread entry matching
// the predicate.
func (s *EntryStore) stampLoaded(match func(models.Entry) bool) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		if !s.entries[i].IsRead() && match(s.entries[i]) {
			s.entries[i].ReadAt = &now
		}
	}
}
