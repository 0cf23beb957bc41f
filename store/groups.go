package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/TerryMooreII/rss-reader/models"
	"github.com/samber/lo"
)

// GroupGateway is the slice of the remote gateway the group store consumes.
type GroupGateway interface {
	Groups(ctx context.Context) ([]models.Group, error)
}

// GroupStore mirrors FeedStore for user-defined groups. A group's counter
// moves whenever a read-state delta names one of its member feeds.
type GroupStore struct {
	mu      sync.RWMutex
	gateway GroupGateway
	groups  []models.Group
	index   map[int64]int
}

func NewGroupStore(gw GroupGateway, bus *Bus) *GroupStore {
	s := &GroupStore{
		gateway: gw,
		index:   map[int64]int{},
	}
	if bus != nil {
		bus.Subscribe(s.handleEvent)
	}
	return s
}

func (s *GroupStore) Load(ctx context.Context) error {
	groups, err := s.gateway.Groups(ctx)
	if err != nil {
		return fmt.Errorf("failed to load groups: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups = groups
	s.index = make(map[int64]int, len(groups))
	for i := range groups {
		s.index[groups[i].ID] = i
	}
	return nil
}

func (s *GroupStore) Groups() []models.Group {
	s.mu.RLock()
	defer s.mu.RUnlock()
	groups := make([]models.Group, len(s.groups))
	copy(groups, s.groups)
	return groups
}

func (s *GroupStore) Group(id int64) (models.Group, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return models.Group{}, false
	}
	return s.groups[i], true
}

func (s *GroupStore) handleEvent(event any) {
	switch e := event.(type) {
	case models.ReadStateEvent:
		s.applyFeedDelta(e.FeedID, e.Delta)
	case models.BulkReadEvent:
		s.applyBulk(e)
	case models.NewEntriesEvent:
		for i := range e.Entries {
			if e.Entries[i].IsRead() {
				continue
			}
			s.applyFeedDelta(e.Entries[i].FeedID, 1)
		}
	}
}

// applyFeedDelta moves every group containing the feed, clamped at zero.
func (s *GroupStore) applyFeedDelta(feedID int64, delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.groups {
		if !lo.Contains(s.groups[i].FeedIDs, feedID) {
			continue
		}
		s.groups[i].UnreadCount += delta
		if s.groups[i].UnreadCount < 0 {
			s.groups[i].UnreadCount = 0
		}
	}
}

// applyBulk zeroes what group membership can resolve: everything, or one
// named group. Feed- and category-scoped bulk reads overlap groups in ways
// this store cannot compute (it has no per-feed unread split), so those wait
// for the next reload.
func (s *GroupStore) applyBulk(e models.BulkReadEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch e.Scope {
	case models.FilterAll:
		for i := range s.groups {
			s.groups[i].UnreadCount = 0
		}
	case models.FilterGroup:
		if i, ok := s.index[e.GroupID]; ok {
			s.groups[i].UnreadCount = 0
		}
	}
}
