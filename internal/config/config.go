// Package config loads and validates menu service configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
	_ "time/tzdata" // zone database for minimal container images

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"github.com/JakeFAU/cafeteria-menu/internal/logging"
	"github.com/JakeFAU/cafeteria-menu/internal/menu"
	"github.com/JakeFAU/cafeteria-menu/internal/telemetry"
)

// Storage backends for page snapshots.
const (
	StorageNone   = "none"
	StorageMemory = "memory"
	StorageLocal  = "local"
	StorageGCS    = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig     `mapstructure:"server"`
	Auth    AuthConfig       `mapstructure:"auth"`
	Logging logging.Config   `mapstructure:"logging"`
	Fetcher FetcherConfig    `mapstructure:"fetcher"`
	Parser  ParserConfig     `mapstructure:"parser"`
	Ingest  IngestConfig     `mapstructure:"ingest"`
	DB      DBConfig         `mapstructure:"db"`
	Storage StorageConfig    `mapstructure:"storage"`
	PubSub  PubSubConfig     `mapstructure:"pubsub"`
	Tracing telemetry.Config `mapstructure:"tracing"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                   int `mapstructure:"port"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// FetcherConfig configures the menu page fetcher.
type FetcherConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	LegacyTLS      bool   `mapstructure:"legacy_tls"`
	UserAgent      string `mapstructure:"user_agent"`
	// RequestsPerSecond paces portal requests; 0 disables pacing.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// ParserConfig configures HTML extraction.
type ParserConfig struct {
	// BaseURL resolves relative image links.
	BaseURL string `mapstructure:"base_url"`
}

// IngestConfig governs the ingestion window and trigger.
type IngestConfig struct {
	LookaheadDays int               `mapstructure:"lookahead_days"`
	TimeZone      string            `mapstructure:"time_zone"`
	Restaurants   []menu.Restaurant `mapstructure:"restaurants"`
	Schedule      string            `mapstructure:"schedule"`
	RunOnStart    bool              `mapstructure:"run_on_start"`
}

// DBConfig controls access to Postgres.
type DBConfig struct {
	DSN                    string `mapstructure:"dsn"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeSeconds int    `mapstructure:"max_conn_lifetime_seconds"`
	Migrate                bool   `mapstructure:"migrate"`
}

// StorageConfig selects where raw pages are archived.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig holds the destination for run reports.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// DefaultRestaurants are the cafeterias ingested when none are configured.
var DefaultRestaurants = []menu.Restaurant{
	{Code: "re11", Name: "교직원식당"},
	{Code: "re12", Name: "학생식당"},
	{Code: "re13", Name: "창의인재원식당"},
	{Code: "re15", Name: "창업보육센터"},
}

// Load builds a Config from an optional file and MENU_* environment variables.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MENU")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if len(cfg.Ingest.Restaurants) == 0 {
		cfg.Ingest.Restaurants = append([]menu.Restaurant(nil), DefaultRestaurants...)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout_seconds", 30)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("fetcher.base_url", "https://www.hanyang.ac.kr")
	v.SetDefault("fetcher.timeout_seconds", 30)
	v.SetDefault("fetcher.legacy_tls", true)
	v.SetDefault("fetcher.user_agent", "")
	v.SetDefault("fetcher.requests_per_second", 2.0)
	v.SetDefault("fetcher.burst", 1)
	v.SetDefault("parser.base_url", "https://www.hanyang.ac.kr")
	v.SetDefault("ingest.lookahead_days", 14)
	v.SetDefault("ingest.time_zone", "Asia/Seoul")
	v.SetDefault("ingest.schedule", "0 2 * * *")
	v.SetDefault("ingest.run_on_start", false)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime_seconds", 1800)
	v.SetDefault("db.migrate", false)
	v.SetDefault("storage.backend", StorageNone)
	v.SetDefault("storage.prefix", "snapshots")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("tracing.service_name", "menud")
	v.SetDefault("tracing.sample_ratio", 1.0)
}

var restaurantCode = regexp.MustCompile(`^re\d+$`)

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Fetcher.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetcher.timeout_seconds must be > 0")
	}
	if c.Fetcher.RequestsPerSecond < 0 {
		return fmt.Errorf("fetcher.requests_per_second must be >= 0")
	}
	if err := absoluteURL("fetcher.base_url", c.Fetcher.BaseURL); err != nil {
		return err
	}
	if err := absoluteURL("parser.base_url", c.Parser.BaseURL); err != nil {
		return err
	}
	if c.Ingest.LookaheadDays < 0 || c.Ingest.LookaheadDays > 60 {
		return fmt.Errorf("ingest.lookahead_days must be between 0 and 60")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Ingest.Schedule != "" {
		if _, err := cron.ParseStandard(c.Ingest.Schedule); err != nil {
			return fmt.Errorf("ingest.schedule: %w", err)
		}
	}
	if len(c.Ingest.Restaurants) == 0 {
		return fmt.Errorf("ingest.restaurants must not be empty")
	}
	seen := make(map[string]struct{}, len(c.Ingest.Restaurants))
	for _, r := range c.Ingest.Restaurants {
		if !restaurantCode.MatchString(r.Code) {
			return fmt.Errorf("ingest.restaurants: invalid code %q", r.Code)
		}
		if _, dup := seen[r.Code]; dup {
			return fmt.Errorf("ingest.restaurants: duplicate code %q", r.Code)
		}
		seen[r.Code] = struct{}{}
	}
	if c.DB.Migrate && c.DB.DSN == "" {
		return fmt.Errorf("db.dsn must be set when db.migrate is enabled")
	}
	if c.DB.MinConns > c.DB.MaxConns && c.DB.MaxConns > 0 {
		return fmt.Errorf("db.min_conns must not exceed db.max_conns")
	}
	switch c.Storage.Backend {
	case StorageNone, StorageMemory, "":
	case StorageLocal:
		if c.Storage.BaseDir == "" {
			return fmt.Errorf("storage.base_dir must be set for the local backend")
		}
	case StorageGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not one of none, memory, local, gcs", c.Storage.Backend)
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be between 0 and 1")
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	return nil
}

// Location resolves ingest.time_zone.
func (c Config) Location() (*time.Location, error) {
	name := c.Ingest.TimeZone
	if name == "" {
		name = "Asia/Seoul"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("ingest.time_zone: %w", err)
	}
	return loc, nil
}

// FetchTimeout converts fetcher.timeout_seconds to a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetcher.TimeoutSeconds) * time.Second
}

// ShutdownTimeout converts server.shutdown_timeout_seconds to a duration.
func (c Config) ShutdownTimeout() time.Duration {
	if c.Server.ShutdownTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}

// MaxConnLifetime converts db.max_conn_lifetime_seconds to a duration.
func (c Config) MaxConnLifetime() time.Duration {
	return time.Duration(c.DB.MaxConnLifetimeSeconds) * time.Second
}

func absoluteURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s must be an absolute URL, got %q", key, raw)
	}
	return nil
}
