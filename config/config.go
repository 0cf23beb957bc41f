package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/TerryMooreII/rss-reader/models"
)

// Backend points at the hosted reader API. APIKey is the project key sent as
// the apikey header; Token and UserID identify the user when row security is
// enabled.
type Backend struct {
	URL    string `toml:"url"`
	APIKey string `toml:"api_key"`
	Token  string `toml:"token,omitempty"`
	UserID string `toml:"user_id,omitempty"`
}

// Server configures the local HTTP server the web UI talks to.
type Server struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	AllowOrigins string `toml:"allow_origins,omitempty"`
}

// Realtime configures the change-stream listener. Hosts may be left empty, in
// which case the backend host is used. RefreshInterval drives the polling
// fallback used when the stream is disabled.
type Realtime struct {
	Enabled         bool     `toml:"enabled"`
	Hosts           []string `toml:"hosts,omitempty"`
	RefreshInterval Duration `toml:"refresh_interval,omitempty"`
}

// Defaults seeds reading settings before the user has saved any. Values here
// lose to whatever is already persisted in the settings database.
type Defaults struct {
	PaginationMode string `toml:"pagination_mode,omitempty"`
	PageSize       int    `toml:"page_size,omitempty"`
	UnreadOnly     bool   `toml:"unread_only,omitempty"`
	Density        string `toml:"density,omitempty"`
}

// Config is the top-level file configuration.
type Config struct {
	Backend  Backend  `toml:"backend"`
	Server   Server   `toml:"server"`
	Realtime Realtime `toml:"realtime"`
	Defaults Defaults `toml:"defaults"`
}

// Duration accepts Go duration strings ("30s", "2m") in TOML values.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 3000
	}
	if c.Realtime.RefreshInterval.Duration == 0 {
		c.Realtime.RefreshInterval.Duration = time.Minute
	}
}

func (c *Config) Validate() error {
	if c.Backend.URL == "" {
		return fmt.Errorf("backend.url is required")
	}
	u, err := url.Parse(c.Backend.URL)
	if err != nil {
		return fmt.Errorf("backend.url is invalid: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("backend.url must be http or https, got %q", u.Scheme)
	}
	if c.Backend.APIKey == "" {
		return fmt.Errorf("backend.api_key is required")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}
	if c.Realtime.RefreshInterval.Duration < time.Second {
		return fmt.Errorf("realtime.refresh_interval must be at least 1s")
	}
	return nil
}

// Address is the host:port the local server listens on.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// RealtimeHosts returns the websocket endpoints the change-stream listener
// should try, in order, e.g. ["wss://reader.example.com"]. When none are
// configured the backend's own host is used.
func (c *Config) RealtimeHosts() []string {
	if len(c.Realtime.Hosts) > 0 {
		return c.Realtime.Hosts
	}
	u, err := url.Parse(c.Backend.URL)
	if err != nil || u.Host == "" {
		return nil
	}
	scheme := "wss"
	if u.Scheme == "http" {
		scheme = "ws"
	}
	return []string{scheme + "://" + u.Host}
}

// Settings maps the [defaults] section onto reading settings. Anything
// missing or out of range falls back to the built-in defaults.
func (c *Config) Settings() models.Settings {
	s := models.DefaultSettings()
	if c.Defaults.PaginationMode != "" {
		s.PaginationMode = models.PaginationMode(c.Defaults.PaginationMode)
	}
	if c.Defaults.PageSize != 0 {
		s.PageSize = c.Defaults.PageSize
	}
	s.UnreadOnly = c.Defaults.UnreadOnly
	if c.Defaults.Density != "" {
		s.Density = models.Density(c.Defaults.Density)
	}
	return s.Validate()
}
