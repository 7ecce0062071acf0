package config

import (
	"time"

	"github.com/spf13/viper"
)

// ─────────────────────────────────────────────────────────────────────────────
// Default value constants
// ─────────────────────────────────────────────────────────────────────────────

const (
	DefaultServerPort            = 8080
	DefaultServerMode            = "release"
	DefaultServerReadTimeout     = 15 * time.Second
	DefaultServerWriteTimeout    = 30 * time.Second
	DefaultServerShutdownTimeout = 30 * time.Second
	DefaultServerRateBurst       = 40

	DefaultDBHost             = "localhost"
	DefaultDBPort             = 5432
	DefaultDBUser             = "uspto"
	DefaultDBName             = "fees"
	DefaultDBSSLMode          = "disable"
	DefaultDBMaxConns         = 10
	DefaultDBMaxIdleConns     = 5
	DefaultDBStatementTimeout = 5 * time.Minute

	DefaultRedisAddr     = "localhost:6379"
	DefaultRedisPoolSize = 10

	DefaultKafkaBroker     = "localhost:9092"
	DefaultKafkaGroupID    = "uspto-apiserver"
	DefaultKafkaIndexTopic = "uspto.index.rebuilt"
	DefaultKafkaJobsTopic  = "uspto.pipeline.jobs"

	DefaultMinIOEndpoint = "localhost:9000"
	DefaultMinIOBucket   = "uspto-artifacts"

	DefaultArtifactsBackend = "file"
	DefaultArtifactsDir     = "./var/artifacts"

	DefaultDataDir              = "./var/data"
	DefaultBulkBaseURL          = "https://bulkdata.uspto.gov/data/patent/"
	DefaultFeeArchivePath       = "maintenancefee/MaintFeeEvents.zip"
	DefaultAssignmentCSVPath    = "assignment/economics/2019/csv.zip"
	DefaultAssignmentPathPrefix = "assignment/"
	DefaultHistoricalParts      = 17
	DefaultDailyStart           = "2020-01-01"
	DefaultSearchAPIURL         = "https://www.patentsview.org/api"
	DefaultSearchPageSize       = 10000
	DefaultSearchRatePerSecond  = 0.75
	DefaultSearchBurst          = 1
	DefaultSubWindowDays        = 7
	DefaultEnrichConcurrency    = 1
	DefaultHTTPTimeout          = 10 * time.Minute
	DefaultLockTTL              = 30 * time.Second
	DefaultRetentionYears       = 12

	DefaultPageTTL      = 10 * time.Minute
	DefaultRowCacheSize = 50000
	DefaultRowCacheTTL  = 30 * time.Minute

	DefaultMetricsNamespace = "uspto"
	DefaultMetricsPath      = "/metrics"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// ApplyDefaults fills every zero-value field in cfg with its default.
// Explicitly configured values always win.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Server ────────────────────────────────────────────────────────────────
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = DefaultServerMode
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultServerReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultServerWriteTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultServerShutdownTimeout
	}
	if cfg.Server.RateLimit > 0 && cfg.Server.RateBurst == 0 {
		cfg.Server.RateBurst = DefaultServerRateBurst
	}

	// ── Database ──────────────────────────────────────────────────────────────
	if cfg.Database.Host == "" {
		cfg.Database.Host = DefaultDBHost
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = DefaultDBPort
	}
	if cfg.Database.User == "" {
		cfg.Database.User = DefaultDBUser
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = DefaultDBName
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = DefaultDBSSLMode
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = DefaultDBMaxConns
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = DefaultDBMaxIdleConns
	}
	if cfg.Database.StatementTimeout == 0 {
		cfg.Database.StatementTimeout = DefaultDBStatementTimeout
	}

	// ── Redis ─────────────────────────────────────────────────────────────────
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = DefaultRedisPoolSize
	}

	// ── Kafka ─────────────────────────────────────────────────────────────────
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = DefaultKafkaGroupID
	}
	if cfg.Kafka.IndexTopic == "" {
		cfg.Kafka.IndexTopic = DefaultKafkaIndexTopic
	}
	if cfg.Kafka.JobsTopic == "" {
		cfg.Kafka.JobsTopic = DefaultKafkaJobsTopic
	}

	// ── MinIO / artifacts ─────────────────────────────────────────────────────
	if cfg.MinIO.Endpoint == "" {
		cfg.MinIO.Endpoint = DefaultMinIOEndpoint
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = DefaultMinIOBucket
	}
	if cfg.Artifacts.Backend == "" {
		cfg.Artifacts.Backend = DefaultArtifactsBackend
	}
	if cfg.Artifacts.Dir == "" {
		cfg.Artifacts.Dir = DefaultArtifactsDir
	}

	// ── Pipeline ──────────────────────────────────────────────────────────────
	p := &cfg.Pipeline
	if p.DataDir == "" {
		p.DataDir = DefaultDataDir
	}
	if p.BulkBaseURL == "" {
		p.BulkBaseURL = DefaultBulkBaseURL
	}
	if p.FeeArchivePath == "" {
		p.FeeArchivePath = DefaultFeeArchivePath
	}
	if p.AssignmentCSVPath == "" {
		p.AssignmentCSVPath = DefaultAssignmentCSVPath
	}
	if p.AssignmentPathPrefix == "" {
		p.AssignmentPathPrefix = DefaultAssignmentPathPrefix
	}
	if p.HistoricalParts == 0 {
		p.HistoricalParts = DefaultHistoricalParts
	}
	if p.DailyStart == "" {
		p.DailyStart = DefaultDailyStart
	}
	if p.SearchAPIURL == "" {
		p.SearchAPIURL = DefaultSearchAPIURL
	}
	if p.SearchPageSize == 0 {
		p.SearchPageSize = DefaultSearchPageSize
	}
	if p.SearchRatePerSecond == 0 {
		p.SearchRatePerSecond = DefaultSearchRatePerSecond
	}
	if p.SearchBurst == 0 {
		p.SearchBurst = DefaultSearchBurst
	}
	if p.SubWindowDays == 0 {
		p.SubWindowDays = DefaultSubWindowDays
	}
	if p.EnrichConcurrency == 0 {
		p.EnrichConcurrency = DefaultEnrichConcurrency
	}
	if p.HTTPTimeout == 0 {
		p.HTTPTimeout = DefaultHTTPTimeout
	}
	if p.LockTTL == 0 {
		p.LockTTL = DefaultLockTTL
	}
	if p.RetentionYears == 0 {
		p.RetentionYears = DefaultRetentionYears
	}

	// ── Cache ─────────────────────────────────────────────────────────────────
	if cfg.Cache.PageTTL == 0 {
		cfg.Cache.PageTTL = DefaultPageTTL
	}
	if cfg.Cache.RowCacheSize == 0 {
		cfg.Cache.RowCacheSize = DefaultRowCacheSize
	}
	if cfg.Cache.RowCacheTTL == 0 {
		cfg.Cache.RowCacheTTL = DefaultRowCacheTTL
	}

	// ── Metrics / Log ─────────────────────────────────────────────────────────
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
}

// registerKeys seeds viper with every known key so AutomaticEnv can resolve
// USPTO_* variables even when the key is absent from the config file.
func registerKeys(v *viper.Viper) {
	var cfg Config
	ApplyDefaults(&cfg)

	v.SetDefault("server.port", cfg.Server.Port)
	v.SetDefault("server.mode", cfg.Server.Mode)
	v.SetDefault("server.read_timeout", cfg.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", cfg.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", cfg.Server.ShutdownTimeout)
	v.SetDefault("server.rate_limit", cfg.Server.RateLimit)
	v.SetDefault("server.rate_burst", cfg.Server.RateBurst)
	v.SetDefault("server.cors_origins", []string{})

	v.SetDefault("database.host", cfg.Database.Host)
	v.SetDefault("database.port", cfg.Database.Port)
	v.SetDefault("database.user", cfg.Database.User)
	v.SetDefault("database.password", "")
	v.SetDefault("database.db_name", cfg.Database.DBName)
	v.SetDefault("database.ssl_mode", cfg.Database.SSLMode)
	v.SetDefault("database.max_conns", cfg.Database.MaxConns)
	v.SetDefault("database.max_idle_conns", cfg.Database.MaxIdleConns)
	v.SetDefault("database.statement_timeout", cfg.Database.StatementTimeout)
	v.SetDefault("database.auto_migrate", false)

	v.SetDefault("redis.addr", cfg.Redis.Addr)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", cfg.Redis.PoolSize)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", cfg.Kafka.Brokers)
	v.SetDefault("kafka.group_id", cfg.Kafka.GroupID)
	v.SetDefault("kafka.index_topic", cfg.Kafka.IndexTopic)
	v.SetDefault("kafka.jobs_topic", cfg.Kafka.JobsTopic)

	v.SetDefault("minio.endpoint", cfg.MinIO.Endpoint)
	v.SetDefault("minio.access_key", "")
	v.SetDefault("minio.secret_key", "")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket", cfg.MinIO.Bucket)
	v.SetDefault("minio.region", "")

	v.SetDefault("artifacts.backend", cfg.Artifacts.Backend)
	v.SetDefault("artifacts.dir", cfg.Artifacts.Dir)
	v.SetDefault("artifacts.prefix", "")

	v.SetDefault("pipeline.data_dir", cfg.Pipeline.DataDir)
	v.SetDefault("pipeline.bulk_base_url", cfg.Pipeline.BulkBaseURL)
	v.SetDefault("pipeline.search_api_url", cfg.Pipeline.SearchAPIURL)
	v.SetDefault("pipeline.search_page_size", cfg.Pipeline.SearchPageSize)
	v.SetDefault("pipeline.sub_window_days", cfg.Pipeline.SubWindowDays)
	v.SetDefault("pipeline.enrich_concurrency", cfg.Pipeline.EnrichConcurrency)
	v.SetDefault("pipeline.daily_start", cfg.Pipeline.DailyStart)
	v.SetDefault("pipeline.retention_years", cfg.Pipeline.RetentionYears)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", cfg.Metrics.Namespace)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
}
