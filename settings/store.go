package settings

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/TerryMooreII/rss-reader/models"
	sqlbuilder "github.com/huandu/go-sqlbuilder"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

// Keys under which the reading settings are stored.
const (
	keyPaginationMode = "pagination_mode"
	keyPageSize       = "page_size"
	keyUnreadOnly     = "unread_only"
	keyDensity        = "density"
)

// DefaultPushDelay batches rapid settings changes into one remote sync.
const DefaultPushDelay = time.Second

// SettingsGateway is the slice of the remote gateway used to mirror settings
// to the backend.
type SettingsGateway interface {
	SaveSettings(ctx context.Context, settings models.Settings) error
}

// Store persists reading settings in a local SQLite key-value table. Saves
// land locally first; the remote copy is synced on a debounce so a user
// dragging a slider does not hammer the backend.
type Store struct {
	mu      sync.Mutex
	db      *sql.DB
	gateway SettingsGateway
	current models.Settings

	push       func()
	cancelPush func()
}

type Config struct {
	Path      string
	Gateway   SettingsGateway
	PushDelay time.Duration
}

// Open connects to the settings database at config.Path. The schema must
// already be migrated; see Migrate.
func Open(config Config) (*Store, error) {
	db, err := connection(config.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open settings database: %w", err)
	}
	if config.PushDelay <= 0 {
		config.PushDelay = DefaultPushDelay
	}

	s := &Store{
		db:      db,
		gateway: config.Gateway,
	}
	s.push, s.cancelPush = lo.NewDebounce(config.PushDelay, s.pushRemote)
	return s, nil
}

func (s *Store) Close() error {
	s.cancelPush()
	return s.db.Close()
}

// Load reads the persisted settings. The boolean reports whether anything was
// stored yet; a fresh database returns false so the caller can seed from its
// configured defaults instead.
func (s *Store) Load(ctx context.Context) (models.Settings, bool, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select("key", "value").From("settings")
	query, args := sb.BuildWithFlavor(sqlbuilder.SQLite)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return models.Settings{}, false, fmt.Errorf("failed to load settings: %w", err)
	}
	defer rows.Close()

	values := map[string]string{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return models.Settings{}, false, fmt.Errorf("scan error: %w", err)
		}
		values[key] = value
	}
	if err := rows.Err(); err != nil {
		return models.Settings{}, false, fmt.Errorf("failed to load settings: %w", err)
	}
	if len(values) == 0 {
		return models.Settings{}, false, nil
	}

	settings := models.DefaultSettings()
	if v, ok := values[keyPaginationMode]; ok {
		settings.PaginationMode = models.PaginationMode(v)
	}
	if v, ok := values[keyPageSize]; ok {
		if size, err := strconv.Atoi(v); err == nil {
			settings.PageSize = size
		}
	}
	if v, ok := values[keyUnreadOnly]; ok {
		if unread, err := strconv.ParseBool(v); err == nil {
			settings.UnreadOnly = unread
		}
	}
	if v, ok := values[keyDensity]; ok {
		settings.Density = models.Density(v)
	}

	// The file may have been edited by hand; normalize instead of failing.
	settings = settings.Validate()

	s.mu.Lock()
	s.current = settings
	s.mu.Unlock()
	return settings, true, nil
}

// Save validates and writes the settings locally, then arms the debounced
// remote sync. The local write is the source of truth; a failed remote sync
// only logs.
func (s *Store) Save(ctx context.Context, settings models.Settings) error {
	settings = settings.Validate()

	ib := sqlbuilder.NewInsertBuilder()
	ib.ReplaceInto("settings").Cols("key", "value", "updated_at")
	now := time.Now().Unix()
	ib.Values(keyPaginationMode, string(settings.PaginationMode), now)
	ib.Values(keyPageSize, strconv.Itoa(settings.PageSize), now)
	ib.Values(keyUnreadOnly, strconv.FormatBool(settings.UnreadOnly), now)
	ib.Values(keyDensity, string(settings.Density), now)
	query, args := ib.BuildWithFlavor(sqlbuilder.SQLite)

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}

	s.mu.Lock()
	s.current = settings
	s.mu.Unlock()

	if s.gateway != nil {
		s.push()
	}
	return nil
}

func (s *Store) pushRemote() {
	s.mu.Lock()
	settings := s.current
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.gateway.SaveSettings(ctx, settings); err != nil {
		log.WithError(err).Warn("Failed to sync settings to backend")
	}
}
