package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/TerryMooreII/rss-reader/models"
	"github.com/samber/lo"
)

// FeedGateway is the slice of the remote gateway the feed store consumes.
type FeedGateway interface {
	Feeds(ctx context.Context) ([]models.Feed, error)
}

// FeedStore holds the subscription list with denormalized unread counts. It
// reloads wholesale and keeps counts current between reloads by applying the
// read-state deltas published on the bus.
type FeedStore struct {
	mu      sync.RWMutex
	gateway FeedGateway
	feeds   []models.Feed
	index   map[int64]int
}

func NewFeedStore(gw FeedGateway, bus *Bus) *FeedStore {
	s := &FeedStore{
		gateway: gw,
		index:   map[int64]int{},
	}
	if bus != nil {
		bus.Subscribe(s.handleEvent)
	}
	return s
}

// Load replaces the whole list. There is no partial reload; the backend view
// is cheap and the list is small.
func (s *FeedStore) Load(ctx context.Context) error {
	feeds, err := s.gateway.Feeds(ctx)
	if err != nil {
		return fmt.Errorf("failed to load feeds: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.feeds = feeds
	s.index = make(map[int64]int, len(feeds))
	for i := range feeds {
		s.index[feeds[i].ID] = i
	}
	return nil
}

func (s *FeedStore) Feeds() []models.Feed {
	s.mu.RLock()
	defer s.mu.RUnlock()
	feeds := make([]models.Feed, len(s.feeds))
	copy(feeds, s.feeds)
	return feeds
}

func (s *FeedStore) Feed(id int64) (models.Feed, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return models.Feed{}, false
	}
	return s.feeds[i], true
}

// TotalUnread sums the unread counters across all feeds.
func (s *FeedStore) TotalUnread() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for i := range s.feeds {
		total += s.feeds[i].UnreadCount
	}
	return total
}

// ApplyDelta moves one feed's unread count, clamped at zero. Unknown feed
// ids are ignored; the next reload brings them in.
func (s *FeedStore) ApplyDelta(feedID int64, delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[feedID]
	if !ok {
		return
	}
	s.feeds[i].UnreadCount += delta
	if s.feeds[i].UnreadCount < 0 {
		s.feeds[i].UnreadCount = 0
	}
}

func (s *FeedStore) handleEvent(event any) {
	switch e := event.(type) {
	case models.ReadStateEvent:
		s.ApplyDelta(e.FeedID, e.Delta)
	case models.BulkReadEvent:
		s.applyBulk(e)
	case models.NewEntriesEvent:
		for i := range e.Entries {
			if e.Entries[i].IsRead() {
				continue
			}
			s.ApplyDelta(e.Entries[i].FeedID, 1)
		}
	}
}

// applyBulk zeroes the counters the event's scope covers. Feed rows carry
// their own group and category membership, so every scope is resolvable
// here.
func (s *FeedStore) applyBulk(e models.BulkReadEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.feeds {
		switch e.Scope {
		case models.FilterAll:
			s.feeds[i].UnreadCount = 0
		case models.FilterFeed:
			if s.feeds[i].ID == e.FeedID {
				s.feeds[i].UnreadCount = 0
			}
		case models.FilterGroup:
			if lo.Contains(s.feeds[i].GroupIDs, e.GroupID) {
				s.feeds[i].UnreadCount = 0
			}
		case models.FilterCategory:
			if s.feeds[i].Category == e.Category {
				s.feeds[i].UnreadCount = 0
			}
		}
	}
}
