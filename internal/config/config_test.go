package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeffrey-bowles/uspto/internal/config"
)

func validConfig() *config.Config {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	return cfg
}

func TestConfig_Validate_Defaults(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestConfig_Validate_Failures(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"server port", func(c *config.Config) { c.Server.Port = 70000 }, "server.port"},
		{"server mode", func(c *config.Config) { c.Server.Mode = "prod" }, "server.mode"},
		{"db host", func(c *config.Config) { c.Database.Host = "" }, "database.host"},
		{"db user", func(c *config.Config) { c.Database.User = "" }, "database.user"},
		{"db name", func(c *config.Config) { c.Database.DBName = "" }, "database.db_name"},
		{"redis addr", func(c *config.Config) { c.Redis.Addr = "" }, "redis.addr"},
		{"kafka brokers", func(c *config.Config) { c.Kafka.Enabled = true; c.Kafka.Brokers = nil }, "kafka.brokers"},
		{"artifact backend", func(c *config.Config) { c.Artifacts.Backend = "s3" }, "artifacts.backend"},
		{"minio bucket", func(c *config.Config) { c.Artifacts.Backend = "minio"; c.MinIO.Bucket = "" }, "minio.bucket"},
		{"page size", func(c *config.Config) { c.Pipeline.SearchPageSize = -1 }, "search_page_size"},
		{"sub window", func(c *config.Config) { c.Pipeline.SubWindowDays = -7 }, "sub_window_days"},
		{"daily start", func(c *config.Config) { c.Pipeline.DailyStart = "2020/01/01" }, "daily_start"},
		{"log level", func(c *config.Config) { c.Log.Level = "trace" }, "log.level"},
		{"log format", func(c *config.Config) { c.Log.Format = "text" }, "log.format"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestConfig_Validate_KafkaDisabledIgnoresBrokers(t *testing.T) {
	cfg := validConfig()
	cfg.Kafka.Enabled = false
	cfg.Kafka.Brokers = nil
	assert.NoError(t, cfg.Validate())
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &config.Config{}
	cfg.Pipeline.SearchPageSize = 500
	cfg.Pipeline.SubWindowDays = 14
	cfg.Database.Host = "db.internal"
	config.ApplyDefaults(cfg)

	assert.Equal(t, 500, cfg.Pipeline.SearchPageSize)
	assert.Equal(t, 14, cfg.Pipeline.SubWindowDays)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, config.DefaultFeeArchivePath, cfg.Pipeline.FeeArchivePath)
	assert.Equal(t, config.DefaultRetentionYears, cfg.Pipeline.RetentionYears)
}

func TestApplyDefaults_NilIsSafe(t *testing.T) {
	assert.NotPanics(t, func() { config.ApplyDefaults(nil) })
}
