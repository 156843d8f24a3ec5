// Package config loads and validates archiver configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/hn-archiver/internal/archive"
)

// EnvPrefix namespaces environment overrides, e.g. HNARCHIVER_DB_URL.
const EnvPrefix = "HNARCHIVER"

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	DB       DBConfig       `mapstructure:"db"`
	Download DownloadConfig `mapstructure:"download"`
	HN       HNConfig       `mapstructure:"hn"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Server   ServerConfig   `mapstructure:"server"`
	Progress ProgressConfig `mapstructure:"progress"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// DBConfig selects the item store by URL scheme (sqlite, postgres, memory).
type DBConfig struct {
	URL string `mapstructure:"url"`
}

// DownloadConfig governs one archiving run.
type DownloadConfig struct {
	Concurrency int    `mapstructure:"concurrency"`
	MaxItems    int    `mapstructure:"max_items"`
	MinItemID   int64  `mapstructure:"min_item_id"`
	Descending  bool   `mapstructure:"descending"`
	Existing    string `mapstructure:"existing"`
	CommitEvery int    `mapstructure:"commit_every"`
	LogErrors   bool   `mapstructure:"log_errors"`
	DryRun      bool   `mapstructure:"dry_run"`
}

// HNConfig configures the remote API client.
type HNConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	UserAgent         string        `mapstructure:"user_agent"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxRetries        int           `mapstructure:"max_retries"`
	BackoffInitial    time.Duration `mapstructure:"backoff_initial"`
	BackoffMax        time.Duration `mapstructure:"backoff_max"`
	MaxInFlight       int           `mapstructure:"max_in_flight"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
}

// ArchiveConfig enables raw payload archiving.
type ArchiveConfig struct {
	Provider  string `mapstructure:"provider"`
	Dir       string `mapstructure:"dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for run summary notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ServerConfig controls the optional status server. An empty Addr disables it.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// ProgressConfig tunes the progress hub.
type ProgressConfig struct {
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Archive providers.
const (
	ArchiveNone   = "none"
	ArchiveLocal  = "local"
	ArchiveMemory = "memory"
	ArchiveGCS    = "gcs"
)

// Load builds a Config from defaults, an optional file, the environment, and
// anything already bound on v (such as CLI flags). A nil v gets a fresh
// instance. With an empty path, hn-archiver.{yaml,json,toml} is looked up in
// the working directory, /etc/hn-archiver, and $HOME/.hn-archiver; finding none
// is not an error.
func Load(v *viper.Viper, path string) (Config, error) {
	if v == nil {
		v = viper.New()
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("hn-archiver")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/hn-archiver/")
		v.AddConfigPath("$HOME/.hn-archiver")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
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
	v.SetDefault("db.url", "sqlite://hackernews.db")
	v.SetDefault("download.concurrency", 16)
	v.SetDefault("download.max_items", 0)
	v.SetDefault("download.min_item_id", 1)
	v.SetDefault("download.descending", true)
	v.SetDefault("download.existing", string(archive.PolicySkip))
	v.SetDefault("download.commit_every", 1024)
	v.SetDefault("download.log_errors", false)
	v.SetDefault("download.dry_run", false)
	v.SetDefault("hn.base_url", "https://hacker-news.firebaseio.com/v0/")
	v.SetDefault("hn.user_agent", "hn-archiver/1.0")
	v.SetDefault("hn.timeout", 15*time.Second)
	v.SetDefault("hn.max_retries", 3)
	v.SetDefault("hn.backoff_initial", 500*time.Millisecond)
	v.SetDefault("hn.backoff_max", 10*time.Second)
	v.SetDefault("hn.max_in_flight", 0)
	v.SetDefault("hn.requests_per_second", 0)
	v.SetDefault("archive.provider", ArchiveNone)
	v.SetDefault("archive.dir", "items")
	v.SetDefault("archive.prefix", "items")
	v.SetDefault("server.addr", "")
	v.SetDefault("progress.flush_interval", 500*time.Millisecond)
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	var errs []error
	if c.DB.URL == "" && !c.Download.DryRun {
		errs = append(errs, errors.New("db.url is required"))
	}
	if c.Download.Concurrency <= 0 {
		errs = append(errs, errors.New("download.concurrency must be > 0"))
	}
	if c.Download.MaxItems < 0 {
		errs = append(errs, errors.New("download.max_items must be >= 0"))
	}
	if c.Download.MinItemID < 0 {
		errs = append(errs, errors.New("download.min_item_id must be >= 0"))
	}
	if c.Download.CommitEvery <= 0 {
		errs = append(errs, errors.New("download.commit_every must be > 0"))
	}
	if _, err := archive.ParseExistingPolicy(c.Download.Existing); err != nil {
		errs = append(errs, fmt.Errorf("download.existing: %w", err))
	}
	if c.HN.Timeout <= 0 {
		errs = append(errs, errors.New("hn.timeout must be > 0"))
	}
	if c.HN.MaxRetries < 0 {
		errs = append(errs, errors.New("hn.max_retries must be >= 0"))
	}
	if c.HN.MaxInFlight < 0 || c.HN.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("hn.max_in_flight and hn.requests_per_second must be >= 0"))
	}
	switch c.Archive.Provider {
	case "", ArchiveNone, ArchiveMemory:
	case ArchiveLocal:
		if c.Archive.Dir == "" {
			errs = append(errs, errors.New("archive.dir is required for the local provider"))
		}
	case ArchiveGCS:
		if c.Archive.GCSBucket == "" {
			errs = append(errs, errors.New("archive.gcs_bucket is required for the gcs provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("archive.provider %q is not supported", c.Archive.Provider))
	}
	if c.PubSub.Topic != "" && c.PubSub.ProjectID == "" {
		errs = append(errs, errors.New("pubsub.project_id must be set when pubsub.topic is set"))
	}
	return errors.Join(errs...)
}

// Policy returns the parsed existing-record policy. Validate guarantees it
// parses.
func (c Config) Policy() archive.ExistingPolicy {
	p, err := archive.ParseExistingPolicy(c.Download.Existing)
	if err != nil {
		return archive.PolicySkip
	}
	return p
}

// Direction returns the id admission order.
func (c Config) Direction() archive.Direction {
	if c.Download.Descending {
		return archive.Descending
	}
	return archive.Ascending
}
