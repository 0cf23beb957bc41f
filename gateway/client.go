package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/TerryMooreII/rss-reader/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

// Add Prometheus metrics
var (
	gatewayRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rssreader_gateway_requests_total",
		Help: "The total number of backend requests by call and HTTP status",
	}, []string{"call", "status"})

	gatewayDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rssreader_gateway_request_duration_seconds",
		Help:    "Duration of backend requests",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // Start at 10ms, double each bucket, 10 buckets
	})
)

const DefaultTimeout = 15 * time.Second

// Credentials carries the API key of the backend project, the user's access
// token and the user identifier sent with every procedure call.
type Credentials struct {
	APIKey string
	Token  string
	UserID string
}

// Client is a stateless translation layer between reader operations and the
// backend's REST surface: stored procedures under /rest/v1/rpc and row
// upserts on the user state tables. It never retries; callers decide what a
// failure means for them.
type Client struct {
	baseURL string
	creds   Credentials
	http    *http.Client
}

func NewClient(baseURL string, creds Credentials, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		creds:   creds,
		http:    httpClient,
	}
}

// Page addresses one batch of entries. Keyset views pass the watermark of
// the last entry already held; the search view is offset-based and passes
// Offset instead.
type Page struct {
	Limit  int
	Cursor *models.Cursor
	Offset int
}

// Entries fetches one batch for the given filter. Each filter type maps to
// exactly one backend procedure; the rows come back normalized for display
// (entities decoded in titles, tags stripped from summaries).
func (c *Client) Entries(ctx context.Context, filter models.Filter, page Page) ([]models.Entry, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	params := map[string]any{
		"user_id":     c.creds.UserID,
		"limit_count": page.Limit,
	}

	var proc string
	switch filter.Type {
	case models.FilterAll:
		proc = "get_entries"
	case models.FilterFeed:
		proc = "get_entries_by_feed_id"
		params["feed_id"] = filter.FeedID
	case models.FilterGroup:
		proc = "get_entries_by_group_id"
		params["group_id"] = filter.GroupID
	case models.FilterCategory:
		proc = "get_entries_by_category"
		params["category"] = filter.Category
	case models.FilterStarred:
		proc = "get_starred_entries"
	case models.FilterSearch:
		// Search is offset-paged and matches read and unread alike.
		proc = "search_entries"
		params["query"] = filter.Query
		params["offset_count"] = page.Offset
	}

	if filter.Type != models.FilterSearch {
		params["unread_only"] = filter.UnreadOnly

		if page.Cursor != nil {
			params["cursor_published_at"] = page.Cursor.PublishedAt.UTC().Format(time.RFC3339Nano)
			params["cursor_id"] = page.Cursor.ID
			if filter.Type == models.FilterStarred && page.Cursor.StarredAt != nil {
				params["cursor_starred_at"] = page.Cursor.StarredAt.UTC().Format(time.RFC3339Nano)
			}
		}
	}

	var entries []models.Entry
	if err := c.rpc(ctx, proc, params, &entries); err != nil {
		return nil, err
	}

	for i := range entries {
		entries[i].Title = DecodeTitle(entries[i].Title)
		if entries[i].Summary != nil {
			plain := StripTags(*entries[i].Summary)
			entries[i].Summary = &plain
		}
	}

	return entries, nil
}

type userEntryRow struct {
	UserID    string     `json:"user_id"`
	EntryID   int64      `json:"entry_id"`
	ReadAt    *time.Time `json:"read_at"`
	StarredAt *time.Time `json:"starred_at"`
}

// UpsertEntryState writes the per-user read/starred timestamps of a single
// entry, keyed (user, entry).
func (c *Client) UpsertEntryState(ctx context.Context, entry models.Entry) error {
	rows := []userEntryRow{{
		UserID:    c.creds.UserID,
		EntryID:   entry.ID,
		ReadAt:    entry.ReadAt,
		StarredAt: entry.StarredAt,
	}}
	return c.write(ctx, "user_entries", rows, "resolution=merge-duplicates,return=minimal")
}

// MarkAllRead marks every entry of the user read in one backend call.
func (c *Client) MarkAllRead(ctx context.Context) error {
	return c.rpc(ctx, "mark_all_entries_read", map[string]any{"user_id": c.creds.UserID}, nil)
}

func (c *Client) MarkFeedRead(ctx context.Context, feedID int64) error {
	return c.rpc(ctx, "mark_feed_entries_read", map[string]any{
		"user_id": c.creds.UserID,
		"feed_id": feedID,
	}, nil)
}

func (c *Client) MarkGroupRead(ctx context.Context, groupID int64) error {
	return c.rpc(ctx, "mark_group_entries_read", map[string]any{
		"user_id":  c.creds.UserID,
		"group_id": groupID,
	}, nil)
}

func (c *Client) MarkCategoryRead(ctx context.Context, category string) error {
	return c.rpc(ctx, "mark_category_entries_read", map[string]any{
		"user_id":  c.creds.UserID,
		"category": category,
	}, nil)
}

// Feeds returns all subscriptions with their denormalized unread counts and
// group/category membership. Row-level security scopes the view to the
// authenticated user.
func (c *Client) Feeds(ctx context.Context) ([]models.Feed, error) {
	var feeds []models.Feed
	if err := c.read(ctx, "feeds_with_counts", &feeds); err != nil {
		return nil, err
	}
	return feeds, nil
}

func (c *Client) Groups(ctx context.Context) ([]models.Group, error) {
	var groups []models.Group
	if err := c.read(ctx, "groups_with_counts", &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

func (c *Client) Categories(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	if err := c.read(ctx, "categories_with_counts", &categories); err != nil {
		return nil, err
	}
	return categories, nil
}

type userSettingsRow struct {
	UserID string `json:"user_id"`
	models.Settings
}

// SaveSettings upserts the user's client configuration so other sessions of
// the same account pick it up.
func (c *Client) SaveSettings(ctx context.Context, settings models.Settings) error {
	rows := []userSettingsRow{{UserID: c.creds.UserID, Settings: settings}}
	return c.write(ctx, "user_settings", rows, "resolution=merge-duplicates,return=minimal")
}

// CreateSubscription inserts a new subscription row. The backend fetcher
// picks it up on its next poll; nothing is fetched client-side.
func (c *Client) CreateSubscription(ctx context.Context, sub models.Subscription) error {
	return c.write(ctx, "subscriptions", []models.Subscription{sub}, "return=minimal")
}

// rpc POSTs params to a stored procedure and decodes the response into out
// when out is non-nil.
func (c *Client) rpc(ctx context.Context, proc string, params any, out any) error {
	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to encode %s params: %w", proc, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/rest/v1/rpc/%s", c.baseURL, proc), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", proc, err)
	}
	c.setHeaders(req)

	return c.do(req, proc, out)
}

// read GETs all rows of a user-scoped view.
func (c *Client) read(ctx context.Context, view string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/rest/v1/%s?select=*", c.baseURL, view), nil)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", view, err)
	}
	c.setHeaders(req)

	return c.do(req, view, out)
}

// write POSTs rows to a table endpoint. The Prefer header selects insert or
// merge-on-conflict semantics.
func (c *Client) write(ctx context.Context, table string, rows any, prefer string) error {
	body, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("failed to encode %s rows: %w", table, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/rest/v1/%s", c.baseURL, table), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", table, err)
	}
	c.setHeaders(req)
	req.Header.Set("Prefer", prefer)

	return c.do(req, table, nil)
}

func (c *Client) do(req *http.Request, call string, out any) error {
	start := time.Now()
	resp, err := c.http.Do(req)
	gatewayDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		gatewayRequests.WithLabelValues(call, "error").Inc()
		return fmt.Errorf("%s request failed: %w", call, err)
	}
	defer resp.Body.Close()

	gatewayRequests.WithLabelValues(call, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		log.WithFields(log.Fields{
			"call":   call,
			"status": resp.StatusCode,
		}).Error("Backend call failed")
		return fmt.Errorf("%s failed with status %d: %s", call, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", call, err)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("apikey", c.creds.APIKey)
	req.Header.Set("Authorization", "Bearer "+c.creds.Token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
}
