// Package config loads and validates service configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"
	_ "time/tzdata" // Asia/Seoul must resolve on minimal images.

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	National  ListingConfig   `mapstructure:"national"`
	Admin     ListingConfig   `mapstructure:"admin"`
	API       APIConfig       `mapstructure:"api"`
	Store     StoreConfig     `mapstructure:"store"`
	Retention RetentionConfig `mapstructure:"retention"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                   int `mapstructure:"port"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
	// RequestTimeoutSeconds bounds a request, including a cache-miss collection.
	RequestTimeoutSeconds  int `mapstructure:"request_timeout_seconds"`
}

// AuthConfig guards the refresh endpoint.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// HTTPConfig configures the outbound page client.
type HTTPConfig struct {
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	UserAgent      string `mapstructure:"user_agent"`
	AcceptLanguage string `mapstructure:"accept_language"`
	// Renderer fetches the HTML portals: "colly" or "chromedp". The API always uses colly.
	Renderer string `mapstructure:"renderer"`
	SettleMs int    `mapstructure:"settle_ms"`
}

// CrawlerConfig governs pacing and the detail worker pool.
type CrawlerConfig struct {
	Workers           int    `mapstructure:"workers"`
	ListingIntervalMs int    `mapstructure:"listing_interval_ms"`
	DetailIntervalMs  int    `mapstructure:"detail_interval_ms"`
	Timezone          string `mapstructure:"timezone"`
}

// ListingConfig describes one paginated HTML listing.
type ListingConfig struct {
	ListingURL string `mapstructure:"listing_url"`
	PageSize   int    `mapstructure:"page_size"`
	MaxPages   int    `mapstructure:"max_pages"`
}

// APIConfig describes the legislature open-data API.
type APIConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BaseURL  string `mapstructure:"base_url"`
	Key      string `mapstructure:"key"`
	PageSize int    `mapstructure:"page_size"`
	MaxPages int    `mapstructure:"max_pages"`
}

// StoreConfig selects and tunes the persistence backend.
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	DSN       string `mapstructure:"dsn"`
	Table     string `mapstructure:"table"`
	MaxConns  int    `mapstructure:"max_conns"`
	ReadLimit int    `mapstructure:"read_limit"`
	Migrate   bool   `mapstructure:"migrate"`
}

// RetentionConfig sets the soft-deactivation age threshold.
type RetentionConfig struct {
	Days int `mapstructure:"days"`
}

// ScheduleConfig controls the in-process cron used by serve.
type ScheduleConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	RefreshCron string `mapstructure:"refresh_cron"`
	SweepCron   string `mapstructure:"sweep_cron"`
}

// ArchiveConfig selects where raw detail pages are snapshotted, if anywhere.
type ArchiveConfig struct {
	Driver    string `mapstructure:"driver"`
	Dir       string `mapstructure:"dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// NotifyConfig selects how finished crawl jobs are announced.
type NotifyConfig struct {
	Driver         string `mapstructure:"driver"`
	URL            string `mapstructure:"url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	ProjectID      string `mapstructure:"project_id"`
	Topic          string `mapstructure:"topic"`
}

// TelemetryConfig controls OpenTelemetry tracing.
type TelemetryConfig struct {
	Tracing     bool    `mapstructure:"tracing"`
	ProjectID   string  `mapstructure:"project_id"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// LoadEnvFile exports the variables of a dotenv file without overriding the
// ones already set. An empty path means ".env"; a missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LEGIS")
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

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.shutdown_timeout_seconds", 10)
	v.SetDefault("server.request_timeout_seconds", 300)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.user_agent", "Mozilla/5.0 (compatible; legisnotice/1.0)")
	v.SetDefault("http.accept_language", "ko-KR,ko;q=0.9,en;q=0.5")
	v.SetDefault("http.renderer", "colly")
	v.SetDefault("http.settle_ms", 500)
	v.SetDefault("crawler.workers", 4)
	v.SetDefault("crawler.listing_interval_ms", 1000)
	v.SetDefault("crawler.detail_interval_ms", 500)
	v.SetDefault("crawler.timezone", "Asia/Seoul")
	v.SetDefault("national.listing_url", "https://pal.assembly.go.kr/napal/lgsltpa/lgsltpaOngoing/list.do")
	v.SetDefault("national.page_size", 20)
	v.SetDefault("national.max_pages", 10)
	v.SetDefault("admin.listing_url", "https://opinion.lawmaking.go.kr/gcom/ogLmPp")
	v.SetDefault("admin.page_size", 20)
	v.SetDefault("admin.max_pages", 5)
	v.SetDefault("api.enabled", true)
	v.SetDefault("api.base_url", "https://open.assembly.go.kr/portal/openapi/nknalejkafmvgzmpt")
	v.SetDefault("api.key", "")
	v.SetDefault("api.page_size", 100)
	v.SetDefault("api.max_pages", 100)
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.table", "legislation_notices")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.read_limit", 100)
	v.SetDefault("store.migrate", true)
	v.SetDefault("retention.days", 30)
	v.SetDefault("schedule.enabled", false)
	v.SetDefault("schedule.refresh_cron", "0 1 * * *")
	v.SetDefault("schedule.sweep_cron", "30 3 * * *")
	v.SetDefault("archive.driver", "none")
	v.SetDefault("archive.dir", "")
	v.SetDefault("archive.gcs_bucket", "")
	v.SetDefault("archive.prefix", "pages")
	v.SetDefault("notify.driver", "none")
	v.SetDefault("notify.url", "")
	v.SetDefault("notify.timeout_seconds", 30)
	v.SetDefault("notify.project_id", "")
	v.SetDefault("notify.topic", "")
	v.SetDefault("telemetry.tracing", false)
	v.SetDefault("telemetry.project_id", "")
	v.SetDefault("telemetry.sample_ratio", 1.0)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	switch c.HTTP.Renderer {
	case "", "colly", "chromedp":
	default:
		return fmt.Errorf("http.renderer must be colly or chromedp, got %q", c.HTTP.Renderer)
	}
	if c.Crawler.Workers <= 0 || c.Crawler.Workers > 8 {
		return fmt.Errorf("crawler.workers must be between 1 and 8")
	}
	if c.Crawler.ListingIntervalMs < 0 || c.Crawler.DetailIntervalMs < 0 {
		return fmt.Errorf("crawler intervals must be >= 0")
	}
	if _, err := time.LoadLocation(c.Crawler.Timezone); err != nil {
		return fmt.Errorf("crawler.timezone %q is not a valid location: %w", c.Crawler.Timezone, err)
	}
	if err := c.National.validate("national"); err != nil {
		return err
	}
	if err := c.Admin.validate("admin"); err != nil {
		return err
	}
	if c.API.Enabled {
		if c.API.BaseURL == "" {
			return fmt.Errorf("api.base_url must be set when the api is enabled")
		}
		if c.API.PageSize <= 0 || c.API.MaxPages <= 0 {
			return fmt.Errorf("api.page_size and api.max_pages must be > 0")
		}
	}
	switch c.Store.Driver {
	case "memory":
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn must be set for the postgres driver")
		}
	default:
		return fmt.Errorf("store.driver must be postgres or memory, got %q", c.Store.Driver)
	}
	if c.Store.ReadLimit <= 0 {
		return fmt.Errorf("store.read_limit must be > 0")
	}
	if c.Retention.Days <= 0 {
		return fmt.Errorf("retention.days must be > 0")
	}
	switch c.Archive.Driver {
	case "", "none":
	case "local":
		if c.Archive.Dir == "" {
			return fmt.Errorf("archive.dir must be set for the local archive")
		}
	case "gcs":
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket must be set for the gcs archive")
		}
	default:
		return fmt.Errorf("archive.driver must be none, local or gcs, got %q", c.Archive.Driver)
	}
	switch c.Notify.Driver {
	case "", "none":
	case "http":
		if c.Notify.URL == "" {
			return fmt.Errorf("notify.url must be set for the http notifier")
		}
	case "pubsub":
		if c.Notify.ProjectID == "" || c.Notify.Topic == "" {
			return fmt.Errorf("notify.project_id and notify.topic must be set for the pubsub notifier")
		}
	default:
		return fmt.Errorf("notify.driver must be none, http or pubsub, got %q", c.Notify.Driver)
	}
	if c.Telemetry.Tracing && (c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1) {
		return fmt.Errorf("telemetry.sample_ratio must be within [0, 1]")
	}
	return nil
}

func (l ListingConfig) validate(section string) error {
	if l.ListingURL == "" {
		return fmt.Errorf("%s.listing_url must be set", section)
	}
	if l.PageSize <= 0 {
		return fmt.Errorf("%s.page_size must be > 0", section)
	}
	if l.MaxPages <= 0 {
		return fmt.Errorf("%s.max_pages must be > 0", section)
	}
	return nil
}

// RequestTimeout returns the per-request deadline of the HTTP adapter.
func (c Config) RequestTimeout() time.Duration {
	if c.Server.RequestTimeoutSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// ShutdownTimeout returns how long the server drains on shutdown.
func (c Config) ShutdownTimeout() time.Duration {
	if c.Server.ShutdownTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}

// FetchTimeout returns the per-page fetch timeout.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// ListingInterval returns the pacing between listing pages.
func (c Config) ListingInterval() time.Duration {
	return time.Duration(c.Crawler.ListingIntervalMs) * time.Millisecond
}

// DetailInterval returns the pacing between detail pages.
func (c Config) DetailInterval() time.Duration {
	return time.Duration(c.Crawler.DetailIntervalMs) * time.Millisecond
}

// Location returns the timezone the target date is computed in.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Crawler.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// RetentionWindow returns the age after which rows are deactivated.
func (c Config) RetentionWindow() time.Duration {
	return time.Duration(c.Retention.Days) * 24 * time.Hour
}

// NotifyTimeout returns the HTTP notifier deadline.
func (c Config) NotifyTimeout() time.Duration {
	return time.Duration(c.Notify.TimeoutSeconds) * time.Second
}

// SettleDelay returns how long the headless renderer waits for scripts.
func (c Config) SettleDelay() time.Duration {
	return time.Duration(c.HTTP.SettleMs) * time.Millisecond
}
