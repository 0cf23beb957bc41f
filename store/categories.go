package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/TerryMooreII/rss-reader/models"
	"github.com/samber/lo"
)

// CategoryGateway is the slice of the remote gateway the category store
// consumes.
type CategoryGateway interface {
	Categories(ctx context.Context) ([]models.Category, error)
}

// CategoryStore mirrors FeedStore for the fixed top-level categories.
type CategoryStore struct {
	mu         sync.RWMutex
	gateway    CategoryGateway
	categories []models.Category
	index      map[string]int
}

func NewCategoryStore(gw CategoryGateway, bus *Bus) *CategoryStore {
	s := &CategoryStore{
		gateway: gw,
		index:   map[string]int{},
	}
	if bus != nil {
		bus.Subscribe(s.handleEvent)
	}
	return s
}

func (s *CategoryStore) Load(ctx context.Context) error {
	categories, err := s.gateway.Categories(ctx)
	if err != nil {
		return fmt.Errorf("failed to load categories: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories = categories
	s.index = make(map[string]int, len(categories))
	for i := range categories {
		s.index[categories[i].Name] = i
	}
	return nil
}

func (s *CategoryStore) Categories() []models.Category {
	s.mu.RLock()
	defer s.mu.RUnlock()
	categories := make([]models.Category, len(s.categories))
	copy(categories, s.categories)
	return categories
}

func (s *CategoryStore) Category(name string) (models.Category, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[name]
	if !ok {
		return models.Category{}, false
	}
	return s.categories[i], true
}

func (s *CategoryStore) handleEvent(event any) {
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

func (s *CategoryStore) applyFeedDelta(feedID int64, delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.categories {
		if !lo.Contains(s.categories[i].FeedIDs, feedID) {
			continue
		}
		s.categories[i].UnreadCount += delta
		if s.categories[i].UnreadCount < 0 {
			s.categories[i].UnreadCount = 0
		}
	}
}

// applyBulk zeroes all categories or one named category; feed- and
// group-scoped bulk reads are left to the next reload for the same reason as
// in GroupStore.
func (s *CategoryStore) applyBulk(e models.BulkReadEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch e.Scope {
	case models.FilterAll:
		for i := range s.categories {
			s.categories[i].UnreadCount = 0
		}
	case models.FilterCategory:
		if i, ok := s.index[e.Category]; ok {
			s.categories[i].UnreadCount = 0
		}
	}
}
