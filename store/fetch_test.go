package store_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/TerryMooreII/rss-reader/gateway"
	"github.com/TerryMooreII/rss-reader/models"
	"github.com/TerryMooreII/rss-reader/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(gw *fakeGateway, pageSize int) *store.EntryStore {
	return store.NewEntryStore(store.EntryStoreConfig{
		Gateway:  gw,
		Bus:      store.NewBus(),
		PageSize: pageSize,
	})
}

func TestSetFilterLoadsFirstPage(t *testing.T) {
	all := []models.Entry{entry(4, 1), entry(3, 1), entry(2, 1), entry(1, 1)}
	gw := &fakeGateway{respond: func(f models.Filter, p gateway.Page) ([]models.Entry, error) {
		return window(all, p), nil
	}}
	s := newTestStore(gw, 2)

	s.SetFilter(context.Background(), models.Filter{Type: models.FilterFeed, FeedID: 1})

	assert.Equal(t, []int64{4, 3}, ids(s.Entries()))
	assert.True(t, s.HasMore())
	assert.Equal(t, 1, s.Page())
	assert.Empty(t, s.Error())

	first := gw.lastCall()
	assert.Nil(t, first.page.Cursor)
	assert.Equal(t, 2, first.page.Limit)
}

func TestSetFilterAlwaysClearsAndRefetches(t *testing.T) {
	all := []models.Entry{entry(4, 1), entry(3, 1), entry(2, 1), entry(1, 1)}
	gw := &fakeGateway{respond: func(f models.Filter, p gateway.Page) ([]models.Entry, error) {
		return window(all, p), nil
	}}
	s := newTestStore(gw, 2)
	filter := models.Filter{Type: models.FilterFeed, FeedID: 1}

	s.SetFilter(context.Background(), filter)
	s.FetchMore(context.Background())
	s.Select(3)
	require.Equal(t, []int64{4, 3, 2, 1}, ids(s.Entries()))

	// Same filter again: full reset, not a no-op.
	s.SetFilter(context.Background(), filter)

	assert.Equal(t, []int64{4, 3}, ids(s.Entries()))
	_, selected := s.Selected()
	assert.False(t, selected)
	assert.Nil(t, gw.lastCall().page.Cursor, "first page fetch must start from the top")
}

func TestSetFilterRecordsGatewayError(t *testing.T) {
	gw := &fakeGateway{respond: func(f models.Filter, p gateway.Page) ([]models.Entry, error) {
		return nil, fmt.Errorf("backend down")
	}}
	s := newTestStore(gw, 2)

	s.SetFilter(context.Background(), models.Filter{Type: models.FilterAll})

	assert.Empty(t, s.Entries())
	assert.Contains(t, s.Error(), "backend down")
	assert.False(t, s.Loading())
}

func TestSetFilterRejectsInvalidFilter(t *testing.T) {
	gw := &fakeGateway{}
	s := newTestStore(gw, 2)

	s.SetFilter(context.Background(), models.Filter{Type: models.FilterFeed})

	assert.Empty(t, gw.calls(), "invalid filters never reach the gateway")
	assert.NotEmpty(t, s.Error())
}

func TestFetchMoreWalksTheWholeList(t *testing.T) {
	all := []models.Entry{entry(4, 1), entry(3, 1), entry(2, 1), entry(1, 1)}
	gw := &fakeGateway{respond: func(f models.Filter, p gateway.Page) ([]models.Entry, error) {
		return window(all, p), nil
	}}
	s := newTestStore(gw, 2)

	s.SetFilter(context.Background(), models.Filter{Type: models.FilterFeed, FeedID: 1})
	require.Equal(t, []int64{4, 3}, ids(s.Entries()))
	require.True(t, s.HasMore())

	s.FetchMore(context.Background())
	assert.Equal(t, []int64{4, 3, 2, 1}, ids(s.Entries()))
	// A full batch keeps the flag up even at the true end; the next fetch
	// comes back empty and settles it.
	assert.True(t, s.HasMore())

	s.FetchMore(context.Background())
	assert.Equal(t, []int64{4, 3, 2, 1}, ids(s.Entries()))
	assert.False(t, s.HasMore())

	entries := s.Entries()
	seen := map[int64]bool{}
	for i := range entries {
		assert.False(t, seen[entries[i].ID], "duplicate id %d", entries[i].ID)
		seen[entries[i].ID] = true
		if i > 0 {
			assert.False(t, entries[i].PublishedAt.After(entries[i-1].PublishedAt),
				"publish timestamps must not increase down the list")
		}
	}
}

func TestFetchMoreDerivesCursorFromLastEntry(t *testing.T) {
	all := []models.Entry{entry(4, 1), entry(3, 1), entry(2, 1), entry(1, 1)}
	gw := &fakeGateway{respond: func(f models.Filter, p gateway.Page) ([]models.Entry, error) {
		return window(all, p), nil
	}}
	s := newTestStore(gw, 2)

	s.SetFilter(context.Background(), models.Filter{Type: models.FilterFeed, FeedID: 1})
	s.FetchMore(context.Background())

	cursor := gw.lastCall().page.Cursor
	require.NotNil(t, cursor)
	assert.Equal(t, int64(3), cursor.ID)
	assert.Equal(t, all[1].PublishedAt, cursor.PublishedAt)
}

func TestFetchMoreStarredCursorCarriesStarredAt(t *testing.T) {
	starred := baseTime.Add(-time.Hour)
	all := []models.Entry{entry(4, 1), entry(3, 1), entry(2, 1), entry(1, 1)}
	for i := range all {
		all[i].StarredAt = &starred
	}
	gw := &fakeGateway{respond: func(f models.Filter, p gateway.Page) ([]models.Entry, error) {
		return window(all, p), nil
	}}
	s := newTestStore(gw, 2)

	s.SetFilter(context.Background(), models.Filter{Type: models.FilterStarred})
	s.FetchMore(context.Background())

	cursor := gw.lastCall().page.Cursor
	require.NotNil(t, cursor)
	assert.Equal(t, int64(3), cursor.ID)
	require.NotNil(t, cursor.StarredAt, "starred view watermark must carry the starred timestamp")
	assert.Equal(t, starred, *cursor.StarredAt)
}

func TestFetchMoreSearchAdvancesOffset(t *testing.T) {
	all := []models.Entry{entry(4, 1), entry(3, 1), entry(2, 1), entry(1, 1)}
	gw := &fakeGateway{respond: func(f models.Filter, p gateway.Page) ([]models.Entry, error) {
		start := p.Offset
		if start >= len(all) {
			return nil, nil
		}
		end := start + p.Limit
		if end > len(all) {
			end = len(all)
		}
		return all[start:end], nil
	}}
	s := newTestStore(gw, 2)

	s.SetFilter(context.Background(), models.Filter{Type: models.FilterSearch, Query: "go"})
	require.Equal(t, []int64{4, 3}, ids(s.Entries()))

	s.FetchMore(context.Background())
	assert.Equal(t, []int64{4, 3, 2, 1}, ids(s.Entries()))

	calls := gw.calls()
	require.Len(t, calls, 2)
	assert.Equal(t, 0, calls[0].page.Offset)
	assert.Equal(t, 2, calls[1].page.Offset)
	assert.Nil(t, calls[1].page.Cursor, "search pages by offset, not cursor")
}

func TestFetchMorePreconditions(t *testing.T) {
	t.Run("empty list", func(t *testing.T) {
		gw := &fakeGateway{}
		s := newTestStore(gw, 2)
		s.FetchMore(context.Background())
		assert.Empty(t, gw.calls())
	})

	t.Run("no more pages", func(t *testing.T) {
		all := []models.Entry{entry(1, 1)}
		gw := &fakeGateway{respond: func(f models.Filter, p gateway.Page) ([]models.Entry, error) {
			return window(all, p), nil
		}}
		s := newTestStore(gw, 2)
		s.SetFilter(context.Background(), models.Filter{Type: models.FilterAll})
		require.False(t, s.HasMore())

		s.FetchMore(context.Background())
		assert.Len(t, gw.calls(), 1, "exhausted list must not fetch")
	})

	t.Run("already loading", func(t *testing.T) {
		release := make(chan struct{})
		inFlight := make(chan struct{})
		all := []models.Entry{entry(4, 1), entry(3, 1), entry(2, 1), entry(1, 1)}
		first := true
		gw := &fakeGateway{}
		gw.respond = func(f models.Filter, p gateway.Page) ([]models.Entry, error) {
			if p.Cursor != nil {
				if first {
					first = false
					close(inFlight)
					<-release
				}
			}
			return window(all, p), nil
		}
		s := newTestStore(gw, 2)
		s.SetFilter(context.Background(), models.Filter{Type: models.FilterFeed, FeedID: 1})

		done := make(chan struct{})
		go func() {
			defer close(done)
			s.FetchMore(context.Background())
		}()
		<-inFlight

		// Second call while the first is still in flight: dropped, not queued.
		s.FetchMore(context.Background())
		close(release)
		<-done

		assert.Len(t, gw.calls(), 2, "one first page plus one FetchMore")
		assert.Equal(t, []int64{4, 3, 2, 1}, ids(s.Entries()))
	})
}

func TestStaleFirstPageResponseIsDiscarded(t *testing.T) {
	release := make(chan struct{})
	inFlight := make(chan struct{})
	gw := &fakeGateway{}
	gw.respond = func(f models.Filter, p gateway.Page) ([]models.Entry, error) {
		if f.FeedID == 1 {
			close(inFlight)
			<-release
			return []models.Entry{entry(10, 1)}, nil
		}
		return []models.Entry{entry(20, 2)}, nil
	}
	s := newTestStore(gw, 2)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.SetFilter(context.Background(), models.Filter{Type: models.FilterFeed, FeedID: 1})
	}()
	<-inFlight

	// The user switches views while the first fetch hangs.
	s.SetFilter(context.Background(), models.Filter{Type: models.FilterFeed, FeedID: 2})
	require.Equal(t, []int64{20}, ids(s.Entries()))

	close(release)
	<-done

	assert.Equal(t, []int64{20}, ids(s.Entries()), "stale response must not replace the newer view")
	assert.Equal(t, models.Filter{Type: models.FilterFeed, FeedID: 2}, s.Filter())
}

func TestFetchPageForwardAndBack(t *testing.T) {
	all := []models.Entry{entry(6, 1), entry(5, 1), entry(4, 1), entry(3, 1), entry(2, 1), entry(1, 1)}
	gw := &fakeGateway{respond: func(f models.Filter, p gateway.Page) ([]models.Entry, error) {
		return window(all, p), nil
	}}
	s := store.NewEntryStore(store.EntryStoreConfig{
		Gateway:        gw,
		Bus:            store.NewBus(),
		PageSize:       2,
		PaginationMode: models.PaginationPaged,
	})

	s.SetFilter(context.Background(), models.Filter{Type: models.FilterAll})
	require.Equal(t, []int64{6, 5}, ids(s.Entries()))
	require.Equal(t, 1, s.Page())

	s.FetchPage(context.Background(), models.PageNext)
	assert.Equal(t, []int64{4, 3}, ids(s.Entries()))
	assert.Equal(t, 2, s.Page())
	next := gw.lastCall().page.Cursor
	require.NotNil(t, next)
	assert.Equal(t, int64(5), next.ID)

	s.FetchPage(context.Background(), models.PagePrevious)
	assert.Equal(t, []int64{6, 5}, ids(s.Entries()))
	assert.Equal(t, 1, s.Page())
	assert.Nil(t, gw.lastCall().page.Cursor, "page 1 is fetched with the initial nil cursor")

	// At page 1 prev is refused without touching the gateway.
	callsBefore := len(gw.calls())
	s.FetchPage(context.Background(), models.PagePrevious)
	assert.Len(t, gw.calls(), callsBefore)
	assert.Equal(t, 1, s.Page())
}

func TestFetchPageSearchNavigatesByOffset(t *testing.T) {
	all := []models.Entry{entry(6, 1), entry(5, 1), entry(4, 1), entry(3, 1), entry(2, 1), entry(1, 1)}
	gw := &fakeGateway{respond: func(f models.Filter, p gateway.Page) ([]models.Entry, error) {
		start := p.Offset
		if start >= len(all) {
			return nil, nil
		}
		end := start + p.Limit
		if end > len(all) {
			end = len(all)
		}
		return all[start:end], nil
	}}
	s := store.NewEntryStore(store.EntryStoreConfig{
		Gateway:        gw,
		Bus:            store.NewBus(),
		PageSize:       2,
		PaginationMode: models.PaginationPaged,
	})

	s.SetFilter(context.Background(), models.Filter{Type: models.FilterSearch, Query: "go"})
	require.Equal(t, []int64{6, 5}, ids(s.Entries()))

	s.FetchPage(context.Background(), models.PageNext)
	assert.Equal(t, []int64{4, 3}, ids(s.Entries()))
	assert.Equal(t, 2, s.Page())
	last := gw.lastCall()
	assert.Nil(t, last.page.Cursor, "search pages carry no cursor")
	assert.Equal(t, 2, last.page.Offset)

	s.FetchPage(context.Background(), models.PagePrevious)
	assert.Equal(t, []int64{6, 5}, ids(s.Entries()))
	assert.Equal(t, 1, s.Page())
	assert.Equal(t, 0, gw.lastCall().page.Offset)
}

func TestFetchPageNextRefusedWithoutMore(t *testing.T) {
	all := []models.Entry{entry(2, 1), entry(1, 1)}
	gw := &fakeGateway{respond: func(f models.Filter, p gateway.Page) ([]models.Entry, error) {
		return window(all, p), nil
	}}
	s := store.NewEntryStore(store.EntryStoreConfig{
		Gateway:        gw,
		Bus:            store.NewBus(),
		PageSize:       5,
		PaginationMode: models.PaginationPaged,
	})

	s.SetFilter(context.Background(), models.Filter{Type: models.FilterAll})
	require.False(t, s.HasMore())

	callsBefore := len(gw.calls())
	s.FetchPage(context.Background(), models.PageNext)
	assert.Len(t, gw.calls(), callsBefore)
	assert.Equal(t, 1, s.Page())
}

func TestFetchPageErrorRollsBackNavigation(t *testing.T) {
	all := []models.Entry{entry(4, 1), entry(3, 1), entry(2, 1), entry(1, 1)}
	failNext := false
	gw := &fakeGateway{}
	gw.respond = func(f models.Filter, p gateway.Page) ([]models.Entry, error) {
		if failNext {
			return nil, fmt.Errorf("backend down")
		}
		return window(all, p), nil
	}
	s := store.NewEntryStore(store.EntryStoreConfig{
		Gateway:        gw,
		Bus:            store.NewBus(),
		PageSize:       2,
		PaginationMode: models.PaginationPaged,
	})

	s.SetFilter(context.Background(), models.Filter{Type: models.FilterAll})
	failNext = true
	s.FetchPage(context.Background(), models.PageNext)

	assert.Equal(t, 1, s.Page(), "failed page navigation must not advance")
	assert.Equal(t, []int64{4, 3}, ids(s.Entries()))
	assert.Contains(t, s.Error(), "backend down")

	// Back on its feet the same navigation works.
	failNext = false
	s.FetchPage(context.Background(), models.PageNext)
	assert.Equal(t, 2, s.Page())
	assert.Equal(t, []int64{2, 1}, ids(s.Entries()))
}
