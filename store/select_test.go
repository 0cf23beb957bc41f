package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/TerryMooreII/rss-reader/gateway"
	"github.com/TerryMooreII/rss-reader/models"
	"github.com/TerryMooreII/rss-reader/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSelectionStore(t *testing.T, entries []models.Entry, markDelay, searchDelay time.Duration) (*store.EntryStore, *fakeGateway) {
	t.Helper()
	gw := &fakeGateway{respond: func(f models.Filter, p gateway.Page) ([]models.Entry, error) {
		return window(entries, p), nil
	}}
	s := store.NewEntryStore(store.EntryStoreConfig{
		Gateway:       gw,
		Bus:           store.NewBus(),
		PageSize:      len(entries) + 1,
		MarkReadDelay: markDelay,
		SearchDelay:   searchDelay,
	})
	s.SetFilter(context.Background(), models.Filter{Type: models.FilterAll})
	return s, gw
}

func TestSelectionWalksLoadedListOnly(t *testing.T) {
	all := []models.Entry{entry(3, 1), entry(2, 1), entry(1, 1)}
	s, gw := newSelectionStore(t, all, time.Hour, time.Hour)
	fetches := len(gw.calls())

	// Nothing selected: next lands on the first entry.
	s.SelectNext()
	selected, ok := s.Selected()
	require.True(t, ok)
	assert.Equal(t, int64(3), selected.ID)

	s.SelectNext()
	s.SelectNext()
	selected, _ = s.Selected()
	assert.Equal(t, int64(1), selected.ID)

	// At the end of the loaded list the selection stays put; moving the
	// selection never fetches.
	s.SelectNext()
	selected, _ = s.Selected()
	assert.Equal(t, int64(1), selected.ID)
	assert.Len(t, gw.calls(), fetches)

	s.SelectPrevious()
	selected, _ = s.Selected()
	assert.Equal(t, int64(2), selected.ID)

	s.SelectPrevious()
	s.SelectPrevious()
	selected, _ = s.Selected()
	assert.Equal(t, int64(3), selected.ID, "selection stops at the top")
}

func TestSelectIgnoresUnknownID(t *testing.T) {
	all := []models.Entry{entry(1, 1)}
	s, _ := newSelectionStore(t, all, time.Hour, time.Hour)

	s.Select(42)
	_, ok := s.Selected()
	assert.False(t, ok)
}

func TestSelectionAutoMarksReadAfterDelay(t *testing.T) {
	all := []models.Entry{entry(2, 1), entry(1, 1)}
	s, gw := newSelectionStore(t, all, 25*time.Millisecond, time.Hour)

	s.Select(2)

	assert.Eventually(t, func() bool {
		return len(gw.upserted()) == 1
	}, time.Second, 5*time.Millisecond, "resting selection marks the entry read")

	entries := s.Entries()
	assert.True(t, entries[0].IsRead())
	assert.False(t, entries[1].IsRead())
}

func TestSelectionChangeRearmsAutoMarkRead(t *testing.T) {
	all := []models.Entry{entry(2, 1), entry(1, 1)}
	s, gw := newSelectionStore(t, all, 150*time.Millisecond, time.Hour)

	s.Select(2)
	time.Sleep(30 * time.Millisecond)
	s.Select(1)

	assert.Eventually(t, func() bool {
		return len(gw.upserted()) == 1
	}, time.Second, 5*time.Millisecond)

	entries := s.Entries()
	assert.False(t, entries[0].IsRead(), "the skimmed-over entry stays unread")
	assert.True(t, entries[1].IsRead())
	assert.Len(t, gw.upserted(), 1, "only the resting selection reaches the backend")
}

func TestSearchQueryDebouncesToOneFetch(t *testing.T) {
	all := []models.Entry{entry(1, 1)}
	s, gw := newSelectionStore(t, all, time.Hour, 30*time.Millisecond)
	before := len(gw.calls())

	s.SetSearchQuery("g")
	s.SetSearchQuery("go")
	s.SetSearchQuery("golang")

	assert.Eventually(t, func() bool {
		return len(gw.calls()) == before+1
	}, time.Second, 5*time.Millisecond)

	last := gw.lastCall()
	assert.Equal(t, models.FilterSearch, last.filter.Type)
	assert.Equal(t, "golang", last.filter.Query, "only the final keystroke state is searched")

	// No trailing extra fetch sneaks in after the debounce fired.
	time.Sleep(60 * time.Millisecond)
	assert.Len(t, gw.calls(), before+1)
}

func TestBlankSearchQueryIsDropped(t *testing.T) {
	all := []models.Entry{entry(1, 1)}
	s, gw := newSelectionStore(t, all, time.Hour, 20*time.Millisecond)
	before := len(gw.calls())

	s.SetSearchQuery("   ")
	time.Sleep(80 * time.Millisecond)

	assert.Len(t, gw.calls(), before)
}
