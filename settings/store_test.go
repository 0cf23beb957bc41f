package settings_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/TerryMooreII/rss-reader/models"
	"github.com/TerryMooreII/rss-reader/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSettingsGateway struct {
	mu    sync.Mutex
	saved []models.Settings
	err   error
}

func (f *fakeSettingsGateway) SaveSettings(ctx context.Context, s models.Settings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, s)
	return f.err
}

func (f *fakeSettingsGateway) calls() []models.Settings {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Settings(nil), f.saved...)
}

func openStore(t *testing.T, gw settings.SettingsGateway, delay time.Duration) *settings.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.db")
	require.NoError(t, settings.Migrate(path))

	store, err := settings.Open(settings.Config{Path: path, Gateway: gw, PushDelay: delay})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestLoadFreshDatabaseReportsNothingStored(t *testing.T) {
	store := openStore(t, nil, time.Hour)

	_, found, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, found, "an unused database has no settings yet")
}

func TestSaveLoadRoundtrip(t *testing.T) {
	store := openStore(t, nil, time.Hour)
	ctx := context.Background()

	want := models.Settings{
		PaginationMode: models.PaginationPaged,
		PageSize:       25,
		UnreadOnly:     true,
		Density:        models.DensityCompact,
	}
	require.NoError(t, store.Save(ctx, want))

	got, found, err := store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, want, got)

	// Saving again overwrites in place rather than accumulating rows.
	want.PageSize = 100
	require.NoError(t, store.Save(ctx, want))
	got, _, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100, got.PageSize)
}

func TestSaveNormalizesInvalidValues(t *testing.T) {
	store := openStore(t, nil, time.Hour)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, models.Settings{
		PaginationMode: "carousel",
		PageSize:       -4,
		Density:        "brutalist",
	}))

	got, found, err := store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, models.PaginationInfinite, got.PaginationMode)
	assert.Equal(t, 50, got.PageSize)
	assert.Equal(t, models.DensityComfort, got.Density)
}

func TestRemoteSyncDebounces(t *testing.T) {
	gw := &fakeSettingsGateway{}
	store := openStore(t, gw, 25*time.Millisecond)
	ctx := context.Background()

	settings := models.DefaultSettings()
	for _, size := range []int{10, 20, 30} {
		settings.PageSize = size
		require.NoError(t, store.Save(ctx, settings))
	}

	assert.Eventually(t, func() bool {
		return len(gw.calls()) == 1
	}, time.Second, 5*time.Millisecond, "rapid saves collapse into one sync")

	assert.Equal(t, 30, gw.calls()[0].PageSize, "the sync carries the final state")
}

func TestRollbackDropsSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.db")
	require.NoError(t, settings.Migrate(path))
	require.NoError(t, settings.Rollback(path))

	store, err := settings.Open(settings.Config{Path: path})
	require.NoError(t, err)
	defer store.Close()

	_, _, err = store.Load(context.Background())
	assert.Error(t, err, "the settings table is gone after rollback")
}
