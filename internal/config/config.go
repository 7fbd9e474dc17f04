// Package config loads and validates addrcrawl configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Crawl    CrawlConfig    `mapstructure:"crawl"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	DNS      DNSConfig      `mapstructure:"dns"`
	Server   ServerConfig   `mapstructure:"server"`
	Progress ProgressConfig `mapstructure:"progress"`
	Storage  StorageConfig  `mapstructure:"storage"`
	DB       DBConfig       `mapstructure:"db"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// CrawlConfig governs the engine.
type CrawlConfig struct {
	Workers               int   `mapstructure:"workers"`
	QueueCapacity         int   `mapstructure:"queue_capacity"`
	MaxItems              int   `mapstructure:"max_items"`
	ByteCeiling           int64 `mapstructure:"byte_ceiling"`
	ReportIntervalSeconds int   `mapstructure:"report_interval_seconds"`
	// MaxRPS caps probes plus downloads per second across all workers; 0 is
	// unlimited.
	MaxRPS   float64 `mapstructure:"max_rps"`
	RPSBurst int     `mapstructure:"rps_burst"`
}

// HTTPConfig configures the probe and download client.
type HTTPConfig struct {
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// DNSConfig configures host resolution.
type DNSConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// ServerConfig controls the observability HTTP server. An empty Listen
// address disables it.
type ServerConfig struct {
	Listen                string `mapstructure:"listen"`
	APIKey                string `mapstructure:"api_key"`
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds"`
}

// ProgressConfig controls the progress hub and its sinks.
type ProgressConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	BufferSize     int  `mapstructure:"buffer_size"`
	BatchMaxEvents int  `mapstructure:"batch_max_events"`
	BatchMaxWaitMs int  `mapstructure:"batch_max_wait_ms"`
	SinkTimeoutMs  int  `mapstructure:"sink_timeout_ms"`
	LogEvents      bool `mapstructure:"log_events"`
}

// Storage backends for downloaded bodies.
const (
	StorageNone   = "none"
	StorageMemory = "memory"
	StorageLocal  = "local"
	StorageGCS    = "gcs"
)

// StorageConfig selects where downloaded bodies are archived.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls access to Postgres. An empty DSN keeps run history in
// memory.
type DBConfig struct {
	DSN                    string `mapstructure:"dsn"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeMinutes int    `mapstructure:"max_conn_lifetime_minutes"`
	Migrate                bool   `mapstructure:"migrate"`
}

// PubSubConfig holds metadata for run completion notifications. An empty
// ProjectID disables Pub/Sub.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// flagKeys maps command-line flag names onto configuration keys.
var flagKeys = map[string]string{
	"workers":        "crawl.workers",
	"queue-capacity": "crawl.queue_capacity",
	"max-items":      "crawl.max_items",
	"byte-ceiling":   "crawl.byte_ceiling",
	"max-rps":        "crawl.max_rps",
	"listen":         "server.listen",
	"storage":        "storage.backend",
	"dev":            "logging.development",
	"log-level":      "logging.level",
}

// Load builds a Config from defaults, an optional file, CRAWLER_* environment
// variables and, when flags is non-nil, explicitly set command-line flags.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
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
	v.SetDefault("crawl.workers", 8)
	v.SetDefault("crawl.queue_capacity", 0)
	v.SetDefault("crawl.max_items", 0)
	v.SetDefault("crawl.byte_ceiling", 5000)
	v.SetDefault("crawl.report_interval_seconds", 2)
	v.SetDefault("crawl.max_rps", 0)
	v.SetDefault("crawl.rps_burst", 1)
	v.SetDefault("http.user_agent", "addrcrawl/0.1")
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("dns.timeout_seconds", 5)
	v.SetDefault("server.listen", "")
	v.SetDefault("server.api_key", "")
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("progress.enabled", true)
	v.SetDefault("progress.buffer_size", 4096)
	v.SetDefault("progress.batch_max_events", 1000)
	v.SetDefault("progress.batch_max_wait_ms", 500)
	v.SetDefault("progress.sink_timeout_ms", 10000)
	v.SetDefault("progress.log_events", false)
	v.SetDefault("storage.backend", StorageNone)
	v.SetDefault("storage.local_dir", "bodies")
	v.SetDefault("storage.prefix", "bodies")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime_minutes", 30)
	v.SetDefault("db.migrate", true)
	v.SetDefault("pubsub.topic_name", "crawl-results")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Crawl.Workers <= 0 {
		return fmt.Errorf("crawl.workers must be > 0")
	}
	if c.Crawl.QueueCapacity < 0 {
		return fmt.Errorf("crawl.queue_capacity must be >= 0")
	}
	if c.Crawl.MaxItems < 0 {
		return fmt.Errorf("crawl.max_items must be >= 0")
	}
	if c.Crawl.ByteCeiling <= 0 {
		return fmt.Errorf("crawl.byte_ceiling must be > 0")
	}
	if c.Crawl.ReportIntervalSeconds < 0 {
		return fmt.Errorf("crawl.report_interval_seconds must be >= 0")
	}
	if c.Crawl.MaxRPS < 0 {
		return fmt.Errorf("crawl.max_rps must be >= 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.DNS.TimeoutSeconds <= 0 {
		return fmt.Errorf("dns.timeout_seconds must be > 0")
	}
	switch c.Storage.Backend {
	case StorageNone, StorageMemory:
	case StorageLocal:
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir must be set for the local backend")
		}
	case StorageGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not one of none, memory, local, gcs", c.Storage.Backend)
	}
	if c.PubSub.ProjectID != "" && c.PubSub.TopicName == "" {
		return fmt.Errorf("pubsub.topic_name must be set when pubsub.project_id is set")
	}
	if c.DB.DSN != "" && c.DB.MaxConns <= 0 {
		return fmt.Errorf("db.max_conns must be > 0")
	}
	return nil
}

// ReportInterval is the stats line cadence; zero disables it.
func (c CrawlConfig) ReportInterval() time.Duration {
	return time.Duration(c.ReportIntervalSeconds) * time.Second
}

// Timeout converts the HTTP timeout to a duration.
func (c HTTPConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Timeout converts the DNS timeout to a duration.
func (c DNSConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RequestTimeout converts the server request timeout to a duration.
func (c ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// MaxConnLifetime converts the pool lifetime to a duration.
func (c DBConfig) MaxConnLifetime() time.Duration {
	return time.Duration(c.MaxConnLifetimeMinutes) * time.Minute
}
