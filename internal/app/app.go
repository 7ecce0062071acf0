// Package app wires infrastructure and application services from a Config.
// ptoctl, apiserver and worker all build their dependencies through it.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jeffrey-bowles/uspto/internal/application/assignment"
	"github.com/jeffrey-bowles/uspto/internal/application/enrichment"
	"github.com/jeffrey-bowles/uspto/internal/application/fees"
	"github.com/jeffrey-bowles/uspto/internal/application/indexing"
	"github.com/jeffrey-bowles/uspto/internal/application/pipeline"
	"github.com/jeffrey-bowles/uspto/internal/application/query"
	"github.com/jeffrey-bowles/uspto/internal/config"
	"github.com/jeffrey-bowles/uspto/internal/domain/patent"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/bulkdata"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/database/postgres"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/database/postgres/repositories"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/database/redis"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/messaging/kafka"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/monitoring/logging"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/monitoring/prometheus"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/patentsview"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/storage/artifact"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/storage/minio"
)

// PipelineLockName names the Redis mutex held by every pipeline job.
const PipelineLockName = "pipeline"

// NewLogger builds the process logger from the log section.
func NewLogger(cfg config.LogConfig) (logging.Logger, error) {
	return logging.NewLogger(logging.LogConfig{
		Level:       cfg.Level,
		Format:      cfg.Format,
		OutputPaths: cfg.OutputPaths,
	})
}

// App holds the shared infrastructure of one process.
type App struct {
	Config    *config.Config
	Logger    logging.Logger
	Collector prometheus.MetricsCollector

	DB       *postgres.Connection
	Redis    *redis.Client
	Producer *kafka.Producer // nil when kafka is disabled
	Store    *artifact.Store

	Patents patent.Repository
	Events  patent.FeeEventRepository

	pipelineMetrics *prometheus.PipelineMetrics
	httpMetrics     *prometheus.HTTPMetrics
	closers         []func() error
}

// New connects to Postgres, Redis, the artifact backend and, when enabled,
// Kafka. service labels the metrics of this process. On error everything
// opened so far is closed.
func New(ctx context.Context, cfg *config.Config, logger logging.Logger, service string) (*App, error) {
	a := &App{Config: cfg, Logger: logger}
	if err := a.open(ctx, service); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) open(ctx context.Context, service string) error {
	cfg, logger := a.Config, a.Logger
	var err error

	a.Collector = prometheus.NewNoopCollector()
	if cfg.Metrics.Enabled {
		a.Collector, err = prometheus.NewMetricsCollector(prometheus.CollectorConfigFrom(cfg.Metrics, service), logger)
		if err != nil {
			return err
		}
	}

	a.DB, err = postgres.NewConnection(cfg.Database, logger)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, a.DB.Close)
	if cfg.Database.AutoMigrate {
		if err = postgres.NewMigrator(a.DB, logger).Up(); err != nil {
			return err
		}
	}
	a.Patents = repositories.NewPostgresPatentRepo(a.DB, logger)
	a.Events = repositories.NewPostgresFeeEventRepo(a.DB, logger)

	a.Redis, err = redis.NewClient(cfg.Redis, logger)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, a.Redis.Close)

	backend, closeBackend, err := newArtifactBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if closeBackend != nil {
		a.closers = append(a.closers, closeBackend)
	}
	a.Store = artifact.NewStore(backend, logger.Named("artifact"),
		artifact.WithWriteObserver(a.PipelineMetrics().ObserveArtifactWrite))

	if cfg.Kafka.Enabled {
		a.Producer, err = kafka.NewProducer(kafka.ProducerConfigFrom(cfg.Kafka), logger)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, a.Producer.Close)
	}
	return nil
}

func newArtifactBackend(ctx context.Context, cfg *config.Config, logger logging.Logger) (artifact.Backend, func() error, error) {
	switch cfg.Artifacts.Backend {
	case "minio":
		client, err := minio.NewMinIOClient(cfg.MinIO, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := client.EnsureBucket(ctx); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		repo := minio.NewMinIORepository(client, logger)
		return artifact.NewObjectStore(repo, cfg.Artifacts.Prefix, logger), client.Close, nil
	case "file", "":
		fs, err := artifact.NewFileStore(cfg.Artifacts.Dir)
		return fs, nil, err
	default:
		return nil, nil, fmt.Errorf("unknown artifact backend %q", cfg.Artifacts.Backend)
	}
}

// PipelineMetrics registers the pipeline series once.
func (a *App) PipelineMetrics() *prometheus.PipelineMetrics {
	if a.pipelineMetrics == nil {
		a.pipelineMetrics = prometheus.NewPipelineMetrics(a.Collector)
	}
	return a.pipelineMetrics
}

// ExposedCollector is the collector to mount on the metrics path, or nil
// when metrics are disabled.
func (a *App) ExposedCollector() prometheus.MetricsCollector {
	if !a.Config.Metrics.Enabled {
		return nil
	}
	return a.Collector
}

// HTTPMetrics registers the read API series once.
func (a *App) HTTPMetrics() *prometheus.HTTPMetrics {
	if a.httpMetrics == nil {
		a.httpMetrics = prometheus.NewHTTPMetrics(a.Collector)
	}
	return a.httpMetrics
}

// Runner assembles every pipeline stage.
func (a *App) Runner() (*pipeline.Runner, error) {
	cfg := a.Config.Pipeline
	dailyStart, err := time.Parse("2006-01-02", cfg.DailyStart)
	if err != nil {
		return nil, fmt.Errorf("pipeline.daily_start: %w", err)
	}
	metrics := a.PipelineMetrics()
	fetcher := bulkdata.NewFetcher(cfg, a.Logger)
	clock := time.Now

	xml := assignment.NewXMLReconciler(fetcher, cfg.AssignmentPathPrefix, a.Patents, a.DB, metrics, a.Logger)
	d := pipeline.Deps{
		Fees: fees.NewReconciler(fees.Deps{
			Source:      fetcher,
			ArchivePath: cfg.FeeArchivePath,
			Patents:     a.Patents,
			Events:      a.Events,
			Tx:          a.DB,
			Store:       a.Store,
			Metrics:     metrics,
			Logger:      a.Logger,
		}),
		CSV:      assignment.NewCSVReconciler(fetcher, cfg.AssignmentCSVPath, a.Patents, a.Store, metrics, a.Logger),
		Archives: xml,
		Sync:     assignment.NewArchiveLoop(xml, fetcher, a.Store, cfg.HistoricalParts, dailyStart, clock, a.Logger),
		Enricher: enrichment.NewEnricher(patentsview.NewClient(cfg, a.Logger), a.Patents,
			cfg.SubWindowDays, cfg.EnrichConcurrency, metrics, a.Logger),
		Indexer:        indexing.NewBuilder(a.Patents, a.Events, a.Store, clock, metrics, a.Logger),
		Patents:        a.Patents,
		Store:          a.Store,
		Lock:           redis.NewMutex(a.Redis, PipelineLockName, a.Logger, redis.WithLockTTL(cfg.LockTTL), redis.WithWatchdog(true)),
		IndexTopic:     a.Config.Kafka.IndexTopic,
		RetentionYears: cfg.RetentionYears,
		Clock:          clock,
		Metrics:        metrics,
		Logger:         a.Logger,
	}
	if a.Producer != nil {
		d.Publisher = a.Producer
	}
	return pipeline.NewRunner(d), nil
}

// QueryService builds the read service with the Redis page cache.
func (a *App) QueryService() *query.Service {
	opts := query.OptionsFrom(a.Config.Cache)
	pages := redis.NewRedisCache(a.Redis, a.Logger, redis.WithPrefix("uspto:query:"), redis.WithDefaultTTL(opts.PageTTL))
	return query.NewService(a.Store, a.Patents, a.Events, pages, opts, a.HTTPMetrics(), a.Logger)
}

// Consumer opens a consumer group on topic. It fails when kafka is disabled.
func (a *App) Consumer(groupID, topic string, latest bool) (*kafka.Consumer, error) {
	if !a.Config.Kafka.Enabled {
		return nil, fmt.Errorf("kafka is disabled")
	}
	c, err := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers: a.Config.Kafka.Brokers,
		GroupID: groupID,
		Topics:  []string{topic},
		Latest:  latest,
	}, a.Logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, c.Close)
	return c, nil
}

// Close releases everything New and Consumer opened, last first.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
