package store_test

import (
	"context"
	"sync"
	"time"

	"github.com/TerryMooreII/rss-reader/gateway"
	"github.com/TerryMooreII/rss-reader/models"
)

// fakeGateway scripts the backend for store tests. Every call is recorded;
// Entries answers through the respond function, everything else through the
// error fields.
type fakeGateway struct {
	mu      sync.Mutex
	respond func(filter models.Filter, page gateway.Page) ([]models.Entry, error)

	entryCalls []entriesCall
	upserts    []models.Entry
	upsertErr  error
	bulkCalls  []string
	bulkErr    error
}

type entriesCall struct {
	filter models.Filter
	page   gateway.Page
}

func (f *fakeGateway) Entries(ctx context.Context, filter models.Filter, page gateway.Page) ([]models.Entry, error) {
	f.mu.Lock()
	f.entryCalls = append(f.entryCalls, entriesCall{filter: filter, page: page})
	respond := f.respond
	f.mu.Unlock()

	if respond == nil {
		return nil, nil
	}
	return respond(filter, page)
}

func (f *fakeGateway) UpsertEntryState(ctx context.Context, entry models.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, entry)
	return f.upsertErr
}

func (f *fakeGateway) MarkAllRead(ctx context.Context) error {
	return f.recordBulk("all")
}

func (f *fakeGateway) MarkFeedRead(ctx context.Context, feedID int64) error {
	return f.recordBulk("feed")
}

func (f *fakeGateway) MarkGroupRead(ctx context.Context, groupID int64) error {
	return f.recordBulk("group")
}

func (f *fakeGateway) MarkCategoryRead(ctx context.Context, category string) error {
	return f.recordBulk("category")
}

func (f *fakeGateway) recordBulk(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bulkCalls = append(f.bulkCalls, name)
	return f.bulkErr
}

func (f *fakeGateway) calls() []entriesCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	calls := make([]entriesCall, len(f.entryCalls))
	copy(calls, f.entryCalls)
	return calls
}

func (f *fakeGateway) lastCall() entriesCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entryCalls[len(f.entryCalls)-1]
}

func (f *fakeGateway) upserted() []models.Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	upserts := make([]models.Entry, len(f.upserts))
	copy(upserts, f.upserts)
	return upserts
}

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// entry builds a test entry; higher ids are newer.
func entry(id int64, feedID int64) models.Entry {
	return models.Entry{
		ID:          id,
		FeedID:      feedID,
		Title:       "entry",
		PublishedAt: baseTime.Add(time.Duration(id) * time.Minute),
	}
}

// window slices a newest-first list the way a keyset backend would: entries
// strictly older than the cursor, at most limit of them.
func window(all []models.Entry, page gateway.Page) []models.Entry {
	start := 0
	if page.Cursor != nil {
		for i := range all {
			if all[i].ID == page.Cursor.ID {
				start = i + 1
				break
			}
		}
	}
	end := start + page.Limit
	if end > len(all) {
		end = len(all)
	}
	if start >= len(all) {
		return nil
	}
	return all[start:end]
}

func ids(entries []models.Entry) []int64 {
	out := make([]int64, len(entries))
	for i := range entries {
		out[i] = entries[i].ID
	}
	return out
}
