// Package config loads and validates archiver configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JakeFAU/tululu-archiver/internal/crawler"
	"github.com/JakeFAU/tululu-archiver/internal/storage"
	"github.com/JakeFAU/tululu-archiver/internal/storage/postgres"
)

// EnvPrefix namespaces environment overrides, e.g. TULULU_CRAWL_END_PAGE.
const EnvPrefix = "TULULU"

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Crawl   CrawlConfig   `mapstructure:"crawl"`
	Site    SiteConfig    `mapstructure:"site"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Storage StorageConfig `mapstructure:"storage"`
	Sinks   SinksConfig   `mapstructure:"sinks"`
	Server  ServerConfig  `mapstructure:"server"`
	Status  StatusConfig  `mapstructure:"status"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// CrawlConfig holds the per-run options.
type CrawlConfig struct {
	StartPage  int    `mapstructure:"start_page"`
	EndPage    int    `mapstructure:"end_page"`
	DestFolder string `mapstructure:"dest_folder"`
	SkipImages bool   `mapstructure:"skip_imgs"`
	SkipText   bool   `mapstructure:"skip_txt"`
	// JSONPath is the folder for books_info.json; empty means DestFolder.
	JSONPath string `mapstructure:"json_path"`
}

// SiteConfig describes the target site.
type SiteConfig struct {
	CatalogURL       string `mapstructure:"catalog_url"`
	TextURL          string `mapstructure:"text_url"`
	PlaceholderCover string `mapstructure:"placeholder_cover"`
}

// HTTPConfig configures the fetcher and its retry behavior.
type HTTPConfig struct {
	UserAgent     string        `mapstructure:"user_agent"`
	Timeout       time.Duration `mapstructure:"timeout"`
	Cooldown      time.Duration `mapstructure:"cooldown"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
	MaxBodyBytes  int           `mapstructure:"max_body_bytes"`
	RespectRobots bool          `mapstructure:"respect_robots"`
}

// StorageConfig selects where assets and metadata are written.
type StorageConfig struct {
	Backend string    `mapstructure:"backend"`
	GCS     GCSConfig `mapstructure:"gcs"`
}

// GCSConfig locates the bucket for the gcs backend.
type GCSConfig struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

// SinksConfig enables optional record sinks next to the JSON file.
type SinksConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
}

// PostgresConfig enables the Postgres sink when DSN is set.
type PostgresConfig struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

// PubSubConfig enables the Pub/Sub sink when both fields are set.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// KafkaConfig enables the Kafka sink when both fields are set.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// StatusConfig mirrors the run snapshot into Redis when Redis.Addr is set.
type StatusConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig locates the Redis server and shapes the status keys.
type RedisConfig struct {
	Addr   string        `mapstructure:"addr"`
	Prefix string        `mapstructure:"prefix"`
	TTL    time.Duration `mapstructure:"ttl"`
}

// ServerConfig controls the optional status server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// New returns a Viper instance with the archiver's env binding and defaults.
// Callers may bind flags into it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// Load reads the optional config file at path into v and returns the
// validated Config.
func Load(v *viper.Viper, path string) (Config, error) {
	if v == nil {
		v = New()
	}
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

// LoadDotEnv exports the KEY=VALUE pairs of path into the process
// environment so TULULU_* overrides can live in a file. Variables already
// set win. A missing file is not an error unless required is true.
func LoadDotEnv(path string, required bool) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if !required && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// SetDefaults registers every default value on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("crawl.start_page", 1)
	v.SetDefault("crawl.end_page", 702)
	v.SetDefault("crawl.dest_folder", ".")
	v.SetDefault("crawl.skip_imgs", false)
	v.SetDefault("crawl.skip_txt", false)
	v.SetDefault("crawl.json_path", "")
	v.SetDefault("site.catalog_url", crawler.DefaultCatalogURL)
	v.SetDefault("site.text_url", crawler.DefaultTextURL)
	v.SetDefault("site.placeholder_cover", crawler.DefaultPlaceholderCover)
	v.SetDefault("http.user_agent", "tululu-archiver/1.0")
	v.SetDefault("http.timeout", 30*time.Second)
	v.SetDefault("http.cooldown", crawler.DefaultCooldown)
	v.SetDefault("http.max_attempts", 0)
	v.SetDefault("http.max_body_bytes", 64<<20)
	v.SetDefault("http.respect_robots", false)
	v.SetDefault("storage.backend", storage.BackendLocal)
	v.SetDefault("storage.gcs.bucket", "")
	v.SetDefault("storage.gcs.prefix", "")
	v.SetDefault("sinks.postgres.dsn", "")
	v.SetDefault("sinks.postgres.table", postgres.DefaultTable)
	v.SetDefault("sinks.pubsub.project_id", "")
	v.SetDefault("sinks.pubsub.topic", "")
	v.SetDefault("sinks.kafka.brokers", []string{})
	v.SetDefault("sinks.kafka.topic", "")
	v.SetDefault("status.redis.addr", "")
	v.SetDefault("status.redis.prefix", "tululu:run:")
	v.SetDefault("status.redis.ttl", 24*time.Hour)
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 9090)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	var errs []error
	if c.Crawl.StartPage < 1 {
		errs = append(errs, errors.New("crawl.start_page must be >= 1"))
	}
	if c.Crawl.EndPage <= c.Crawl.StartPage {
		errs = append(errs, fmt.Errorf("crawl.end_page (%d) must be greater than crawl.start_page (%d)",
			c.Crawl.EndPage, c.Crawl.StartPage))
	}
	if strings.TrimSpace(c.Crawl.DestFolder) == "" {
		errs = append(errs, errors.New("crawl.dest_folder must not be empty"))
	}
	if err := c.SiteConfig().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("site: %w", err))
	}
	if c.HTTP.Timeout <= 0 {
		errs = append(errs, errors.New("http.timeout must be > 0"))
	}
	if c.HTTP.Cooldown < 0 {
		errs = append(errs, errors.New("http.cooldown must be >= 0"))
	}
	if c.HTTP.MaxAttempts < 0 {
		errs = append(errs, errors.New("http.max_attempts must be >= 0"))
	}
	if c.HTTP.MaxBodyBytes < 0 {
		errs = append(errs, errors.New("http.max_body_bytes must be >= 0"))
	}
	switch c.Storage.Backend {
	case storage.BackendLocal, storage.BackendMemory:
	case storage.BackendGCS:
		if c.Storage.GCS.Bucket == "" {
			errs = append(errs, errors.New("storage.gcs.bucket must be set when storage.backend is gcs"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q is not one of local, gcs, memory", c.Storage.Backend))
	}
	if c.Sinks.Postgres.Table != "" && !postgres.ValidTableName(c.Sinks.Postgres.Table) {
		errs = append(errs, fmt.Errorf("sinks.postgres.table %q is not a valid identifier", c.Sinks.Postgres.Table))
	}
	if (c.Sinks.PubSub.ProjectID == "") != (c.Sinks.PubSub.Topic == "") {
		errs = append(errs, errors.New("sinks.pubsub.project_id and sinks.pubsub.topic must be set together"))
	}
	if (len(c.Sinks.Kafka.Brokers) == 0) != (c.Sinks.Kafka.Topic == "") {
		errs = append(errs, errors.New("sinks.kafka.brokers and sinks.kafka.topic must be set together"))
	}
	if c.Status.Redis.TTL < 0 {
		errs = append(errs, errors.New("status.redis.ttl must be >= 0"))
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		errs = append(errs, errors.New("server.port must be > 0 when the server is enabled"))
	}
	return errors.Join(errs...)
}

// SiteConfig converts the site section into the crawler's form.
func (c Config) SiteConfig() crawler.SiteConfig {
	return crawler.SiteConfig{
		CatalogURL:       c.Site.CatalogURL,
		TextURL:          c.Site.TextURL,
		PlaceholderCover: c.Site.PlaceholderCover,
	}
}

// RunOptions converts the crawl section into the crawler's form.
func (c Config) RunOptions() crawler.RunOptions {
	return crawler.RunOptions{
		StartPage:  c.Crawl.StartPage,
		EndPage:    c.Crawl.EndPage,
		SkipText:   c.Crawl.SkipText,
		SkipImages: c.Crawl.SkipImages,
	}
}

// JSONDir returns the folder that receives books_info.json.
func (c Config) JSONDir() string {
	if strings.TrimSpace(c.Crawl.JSONPath) != "" {
		return c.Crawl.JSONPath
	}
	return c.Crawl.DestFolder
}
