package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"eventdesk/internal/log"
)

// FeedConfig describes a single ICS feed imported into the event list.
type FeedConfig struct {
	// ID is an internal identifier used in logs, metrics and cache files.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
}

// AuthConfig holds the settings shared with the external identity provider.
type AuthConfig struct {
	// JWTSecret is the HS256 key session tokens are signed with.
	JWTSecret string `yaml:"jwt_secret" json:"-"`
	// Issuer, if set, must match the token's iss claim.
	Issuer string `yaml:"issuer" json:"issuer"`
}

// NATSConfig enables registration notices over NATS. An empty URL logs
// notices instead.
type NATSConfig struct {
	URL           string `yaml:"url" json:"url"`
	SubjectPrefix string `yaml:"subject_prefix" json:"subject_prefix"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone used for dates typed without one.
	Timezone string `yaml:"timezone" json:"timezone"`

	// Database is the SQLite file path.
	Database string `yaml:"database" json:"database"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// Admins are the emails allowed to use the admin API. Reloaded live.
	Admins []string `yaml:"admins" json:"admins"`

	Auth AuthConfig `yaml:"auth" json:"auth"`
	NATS NATSConfig `yaml:"nats" json:"nats"`

	// RefreshCron is a cron-style schedule string (e.g. "*/15 * * * *")
	// for re-importing feeds.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// Feeds is the list of ICS feeds to import.
	Feeds []FeedConfig `yaml:"feeds" json:"feeds"`

	// CacheDir keeps fetched ICS bodies and their validators.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// PublicBaseURL is where participants reach the site; check-in QR codes
	// point below it.
	PublicBaseURL string `yaml:"public_base_url" json:"public_base_url"`
}

const (
	defaultListen   = "127.0.0.1:8080"
	defaultTimezone = "UTC"
	defaultDatabase = "eventdesk.db"
	defaultRefresh  = "*/15 * * * *"
	defaultCacheDir = "cache"
	defaultBaseURL  = "http://localhost:8080"
	defaultPrefix   = "eventdesk"
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:        defaultListen,
		Timezone:      defaultTimezone,
		Database:      defaultDatabase,
		LogLevel:      "info",
		Admins:        []string{},
		NATS:          NATSConfig{SubjectPrefix: defaultPrefix},
		RefreshCron:   defaultRefresh,
		Feeds:         []FeedConfig{},
		CacheDir:      defaultCacheDir,
		PublicBaseURL: defaultBaseURL,
	}
}

// Normalize fills in missing/zero values with defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.Database == "" {
		c.Database = defaultDatabase
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Admins == nil {
		c.Admins = []string{}
	}
	for i, a := range c.Admins {
		c.Admins[i] = strings.ToLower(strings.TrimSpace(a))
	}
	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = defaultPrefix
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefresh
	}
	if c.Feeds == nil {
		c.Feeds = []FeedConfig{}
	}
	for i := range c.Feeds {
		if c.Feeds[i].ID == "" {
			c.Feeds[i].ID = fmt.Sprintf("feed-%d", i+1)
		}
		if c.Feeds[i].Name == "" {
			c.Feeds[i].Name = c.Feeds[i].ID
		}
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir
	}
	if c.PublicBaseURL == "" {
		c.PublicBaseURL = defaultBaseURL
	}
	c.PublicBaseURL = strings.TrimRight(c.PublicBaseURL, "/")
}

// Validate reports every value Normalize cannot repair.
func (c *Config) Validate() error {
	var errs []error
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone %q: %w", c.Timezone, err))
	}
	if _, ok := log.ParseLevel(c.LogLevel); !ok {
		errs = append(errs, fmt.Errorf("log_level %q: want debug, info, warn or error", c.LogLevel))
	}
	if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
		errs = append(errs, fmt.Errorf("refresh %q: %w", c.RefreshCron, err))
	}
	seen := map[string]bool{}
	for _, f := range c.Feeds {
		if f.URL == "" {
			errs = append(errs, fmt.Errorf("feed %s: url is empty", f.ID))
		}
		if seen[f.ID] {
			errs = append(errs, fmt.Errorf("feed %s: duplicate id", f.ID))
		}
		seen[f.ID] = true
	}
	return errors.Join(errs...)
}

// Location resolves Timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms (creating the parent directory) and returned.
//   - Otherwise the YAML is read, normalized and validated.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	cfg, err := read(path)
	if errors.Is(err, fs.ErrNotExist) {
		// First run: create default config file.
		cfg = DefaultConfig()
		if err := Save(path, cfg); err != nil {
			// Even if save fails, return cfg with error so caller can decide.
			return cfg, err
		}
		log.Info("wrote default config", "path", path)
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func read(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory (0700) if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".eventdesk-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func (c *Config) Save(path string) error {
	return Save(path, c)
}
