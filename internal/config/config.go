// Package config defines all configuration structures for the USPTO
// ingestion pipeline and its read server. No I/O or parsing logic lives here,
// only plain data types and validation.
package config

import (
	"fmt"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sub-configuration structs
// ─────────────────────────────────────────────────────────────────────────────

// ServerConfig holds HTTP read-server tunables.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // "debug" | "release" | "test"
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// CORSOrigins lists browser origins allowed to call the read API.
	CORSOrigins []string `mapstructure:"cors_origins"`
	// RateLimit is requests per second per client; 0 disables limiting.
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	User             string        `mapstructure:"user"`
	Password         string        `mapstructure:"password"`
	DBName           string        `mapstructure:"db_name"`
	SSLMode          string        `mapstructure:"ssl_mode"`
	MaxConns         int           `mapstructure:"max_conns"`
	MaxIdleConns     int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime  time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime  time.Duration `mapstructure:"conn_max_idle_time"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout"`
	AutoMigrate      bool          `mapstructure:"auto_migrate"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// KafkaConfig holds broker settings for index and job events.
type KafkaConfig struct {
	Enabled    bool     `mapstructure:"enabled"`
	Brokers    []string `mapstructure:"brokers"`
	GroupID    string   `mapstructure:"group_id"`
	IndexTopic string   `mapstructure:"index_topic"`
	JobsTopic  string   `mapstructure:"jobs_topic"`
}

// MinIOConfig holds object-storage settings used by the "minio" artifact backend.
type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
}

// ArtifactsConfig selects the artifact store backend.
type ArtifactsConfig struct {
	Backend string `mapstructure:"backend"` // "file" | "minio"
	Dir     string `mapstructure:"dir"`
	Prefix  string `mapstructure:"prefix"`
}

// PipelineConfig holds bulk source and enrichment settings.
type PipelineConfig struct {
	DataDir              string        `mapstructure:"data_dir"`
	BulkBaseURL          string        `mapstructure:"bulk_base_url"`
	FeeArchivePath       string        `mapstructure:"fee_archive_path"`
	AssignmentCSVPath    string        `mapstructure:"assignment_csv_path"`
	AssignmentPathPrefix string        `mapstructure:"assignment_path_prefix"`
	HistoricalParts      int           `mapstructure:"historical_parts"`
	DailyStart           string        `mapstructure:"daily_start"` // YYYY-MM-DD
	SearchAPIURL         string        `mapstructure:"search_api_url"`
	SearchPageSize       int           `mapstructure:"search_page_size"`
	SearchRatePerSecond  float64       `mapstructure:"search_rate_per_second"`
	SearchBurst          int           `mapstructure:"search_burst"`
	SubWindowDays        int           `mapstructure:"sub_window_days"`
	EnrichConcurrency    int           `mapstructure:"enrich_concurrency"`
	HTTPTimeout          time.Duration `mapstructure:"http_timeout"`
	LockTTL              time.Duration `mapstructure:"lock_ttl"`
	RetentionYears       int           `mapstructure:"retention_years"`
}

// CacheConfig holds read-side cache settings.
type CacheConfig struct {
	PageTTL      time.Duration `mapstructure:"page_ttl"`
	RowCacheSize int           `mapstructure:"row_cache_size"`
	RowCacheTTL  time.Duration `mapstructure:"row_cache_ttl"`
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
	Path      string `mapstructure:"path"`
}

// LogConfig holds structured logging settings.
type LogConfig struct {
	Level       string   `mapstructure:"level"`
	Format      string   `mapstructure:"format"` // "json" | "console"
	OutputPaths []string `mapstructure:"output_paths"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Root configuration
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration object shared by ptoctl, apiserver and worker.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	MinIO     MinIOConfig     `mapstructure:"minio"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Log       LogConfig       `mapstructure:"log"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

// Validate performs semantic validation of the fully-populated Config.
// It returns the first error encountered.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d is out of range [1, 65535]", c.Server.Port)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("config: server.mode %q is invalid; expected debug|release|test", c.Server.Mode)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("config: database.host is required")
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("config: database.port %d is out of range [1, 65535]", c.Database.Port)
	}
	if c.Database.User == "" {
		return fmt.Errorf("config: database.user is required")
	}
	if c.Database.DBName == "" {
		return fmt.Errorf("config: database.db_name is required")
	}

	if c.Redis.Addr == "" {
		return fmt.Errorf("config: redis.addr is required")
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("config: redis.db must be >= 0, got %d", c.Redis.DB)
	}

	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("config: kafka.brokers must contain at least one broker when kafka is enabled")
		}
		if c.Kafka.GroupID == "" {
			return fmt.Errorf("config: kafka.group_id is required when kafka is enabled")
		}
	}

	switch c.Artifacts.Backend {
	case "file":
		if c.Artifacts.Dir == "" {
			return fmt.Errorf("config: artifacts.dir is required for the file backend")
		}
	case "minio":
		if c.MinIO.Endpoint == "" || c.MinIO.Bucket == "" {
			return fmt.Errorf("config: minio.endpoint and minio.bucket are required for the minio backend")
		}
	default:
		return fmt.Errorf("config: artifacts.backend %q is invalid; expected file|minio", c.Artifacts.Backend)
	}

	if c.Pipeline.DataDir == "" {
		return fmt.Errorf("config: pipeline.data_dir is required")
	}
	if c.Pipeline.SearchPageSize < 1 {
		return fmt.Errorf("config: pipeline.search_page_size must be >= 1, got %d", c.Pipeline.SearchPageSize)
	}
	if c.Pipeline.SubWindowDays < 1 {
		return fmt.Errorf("config: pipeline.sub_window_days must be >= 1, got %d", c.Pipeline.SubWindowDays)
	}
	if c.Pipeline.EnrichConcurrency < 1 {
		return fmt.Errorf("config: pipeline.enrich_concurrency must be >= 1, got %d", c.Pipeline.EnrichConcurrency)
	}
	if _, err := time.Parse("2006-01-02", c.Pipeline.DailyStart); err != nil {
		return fmt.Errorf("config: pipeline.daily_start %q is not a YYYY-MM-DD date", c.Pipeline.DailyStart)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|console", c.Log.Format)
	}

	return nil
}
