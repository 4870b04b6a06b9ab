// Package config provides configuration loading for the ingest service.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/telhawk-systems/accesslog/common/database"
)

// DLQ backends.
const (
	DLQBackendFile      = "file"
	DLQBackendJetStream = "jetstream"
)

// Config holds all configuration for the ingest service
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Writeback WritebackConfig `mapstructure:"writeback"`
	Ingestion IngestionConfig `mapstructure:"ingestion"`
	IPStats   IPStatsConfig   `mapstructure:"ip_stats"`
	DLQ       DLQConfig       `mapstructure:"dlq"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type ServerConfig struct {
	Port               int           `mapstructure:"port"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	IdleTimeout        time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
	CORSAllowedOrigins []string      `mapstructure:"cors_allowed_origins"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig holds PostgreSQL connection settings. When disabled the
// service keeps access logs in memory.
type PostgresConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	Database      string `mapstructure:"database"`
	SSLMode       string `mapstructure:"sslmode"`
	MaxConns      int32  `mapstructure:"max_conns"`
	MinConns      int32  `mapstructure:"min_conns"`
	RunMigrations bool   `mapstructure:"run_migrations"`
}

// ConnString returns the postgres:// URL for these settings.
func (p PostgresConfig) ConnString() string {
	return database.PostgresURL(p.Host, p.Port, p.Database, p.User, p.Password, p.SSLMode)
}

// RedisConfig holds the shared Redis used for the secondary buffer and rate
// limiting.
type RedisConfig struct {
	URL      string `mapstructure:"url"`
	Enabled  bool   `mapstructure:"enabled"`
	Prefix   string `mapstructure:"prefix"`
	MaxDrain int    `mapstructure:"max_drain"`
}

// WritebackConfig tunes the write-back pipeline. A zero flush timeout means
// twice the batch interval.
type WritebackConfig struct {
	MaxSize         int           `mapstructure:"max_size"`
	MinBatchSize    int           `mapstructure:"min_batch_size"`
	BatchInterval   time.Duration `mapstructure:"batch_interval"`
	ForceThreshold  float64       `mapstructure:"force_threshold"`
	FlushTimeout    time.Duration `mapstructure:"flush_timeout"`
	SpillBacklog    int           `mapstructure:"spill_backlog"`
	OverflowBacklog int           `mapstructure:"overflow_backlog"`
}

type IngestionConfig struct {
	CaptureAllRequests bool          `mapstructure:"capture_all_requests"`
	MaxPathLength      int           `mapstructure:"max_path_length"`
	DefaultListLimit   int           `mapstructure:"default_list_limit"`
	MaxListLimit       int           `mapstructure:"max_list_limit"`
	RateLimitEnabled   bool          `mapstructure:"rate_limit_enabled"`
	RateLimitRequests  int           `mapstructure:"rate_limit_requests"`
	RateLimitWindow    time.Duration `mapstructure:"rate_limit_window"`
}

// IPStatsConfig controls per-client usage counters kept in Redis.
type IPStatsConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

// DLQConfig selects where abandoned batches are kept.
type DLQConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Backend  string `mapstructure:"backend"`
	BasePath string `mapstructure:"base_path"`
}

type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	Name          string        `mapstructure:"name"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.port", 4000)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.cors_allowed_origins", []string{})

	v.SetDefault("database.postgres.enabled", true)
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "accesslog")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.database", "accesslog")
	v.SetDefault("database.postgres.sslmode", "disable")
	v.SetDefault("database.postgres.max_conns", 10)
	v.SetDefault("database.postgres.min_conns", 2)
	v.SetDefault("database.postgres.run_migrations", true)

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.prefix", "accesslog")
	v.SetDefault("redis.max_drain", 0)

	v.SetDefault("writeback.max_size", 1000)
	v.SetDefault("writeback.min_batch_size", 50)
	v.SetDefault("writeback.batch_interval", "5s")
	v.SetDefault("writeback.force_threshold", 0.8)
	v.SetDefault("writeback.flush_timeout", "0s")
	v.SetDefault("writeback.spill_backlog", 4)
	v.SetDefault("writeback.overflow_backlog", 1024)

	v.SetDefault("ingestion.capture_all_requests", false)
	v.SetDefault("ingestion.max_path_length", 2048)
	v.SetDefault("ingestion.default_list_limit", 100)
	v.SetDefault("ingestion.max_list_limit", 1000)
	v.SetDefault("ingestion.rate_limit_enabled", true)
	v.SetDefault("ingestion.rate_limit_requests", 600)
	v.SetDefault("ingestion.rate_limit_window", "1m")

	v.SetDefault("ip_stats.enabled", true)
	v.SetDefault("ip_stats.flush_interval", "30s")

	v.SetDefault("dlq.enabled", true)
	v.SetDefault("dlq.backend", DLQBackendFile)
	v.SetDefault("dlq.base_path", "/var/lib/accesslog/dlq")

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.name", "accesslog-ingest")
	v.SetDefault("nats.max_reconnects", -1)
	v.SetDefault("nats.reconnect_wait", "2s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/accesslog/ingest")
	}

	// Environment variables override (INGEST_WRITEBACK_MAX_SIZE, etc.)
	v.SetEnvPrefix("INGEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configPath != "" {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found; use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that cannot be corrected at startup.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.DLQ.Enabled {
		switch c.DLQ.Backend {
		case DLQBackendFile, DLQBackendJetStream:
		default:
			return fmt.Errorf("dlq.backend must be %q or %q, got %q", DLQBackendFile, DLQBackendJetStream, c.DLQ.Backend)
		}
	}
	if c.IPStats.Enabled && c.IPStats.FlushInterval <= 0 {
		return fmt.Errorf("ip_stats.flush_interval must be positive")
	}
	if c.Ingestion.MaxPathLength <= 0 {
		return fmt.Errorf("ingestion.max_path_length must be positive")
	}
	if c.Ingestion.DefaultListLimit <= 0 || c.Ingestion.MaxListLimit < c.Ingestion.DefaultListLimit {
		return fmt.Errorf("ingestion list limits invalid: default %d, max %d",
			c.Ingestion.DefaultListLimit, c.Ingestion.MaxListLimit)
	}
	return nil
}
