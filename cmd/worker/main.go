// Command worker consumes pipeline job requests and runs them under the
// pipeline lock.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jeffrey-bowles/uspto/internal/app"
	"github.com/jeffrey-bowles/uspto/internal/config"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/monitoring/logging"
	httpserver "github.com/jeffrey-bowles/uspto/internal/interfaces/http"
	"github.com/jeffrey-bowles/uspto/internal/interfaces/http/handlers"
)

const defaultHealthPort = 8081

// Build-time variables injected via ldflags.
var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to configuration file (default: USPTO_* environment only)")
	healthPort := flag.Int("health-port", defaultHealthPort, "port of the health and metrics server")
	flag.Parse()

	cfg, err := config.LoadOrEnv(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := app.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetDefault(logger)

	if err := run(cfg, *healthPort, logger); err != nil {
		logger.Error("worker exited", logging.Err(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, healthPort int, logger logging.Logger) error {
	if !cfg.Kafka.Enabled {
		return fmt.Errorf("kafka is disabled; the worker has nothing to consume")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger, "worker")
	if err != nil {
		return fmt.Errorf("initialize infrastructure: %w", err)
	}
	defer a.Close()

	runner, err := a.Runner()
	if err != nil {
		return err
	}

	consumer, err := a.Consumer(cfg.Kafka.GroupID, cfg.Kafka.JobsTopic, false)
	if err != nil {
		return err
	}
	consumer.Subscribe(cfg.Kafka.JobsTopic, runner.HandleJob)

	healthCfg := cfg.Server
	healthCfg.Port = healthPort
	healthCfg.CORSOrigins = nil
	healthCfg.RateLimit = 0
	router := httpserver.NewRouter(httpserver.RouterConfig{
		HealthHandler: handlers.NewHealthHandler(version,
			handlers.NamedCheck("postgres", a.DB.HealthCheck),
			handlers.NamedCheck("redis", a.Redis.HealthCheck),
		),
		Server:           healthCfg,
		Logger:           logger,
		MetricsCollector: a.ExposedCollector(),
		MetricsPath:      cfg.Metrics.Path,
	})
	health := httpserver.NewServer(healthCfg, router, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- health.Start() }()

	if err := consumer.Start(ctx); err != nil {
		return err
	}
	logger.Info("worker started",
		logging.String("version", version),
		logging.String("topic", cfg.Kafka.JobsTopic),
		logging.String("group", cfg.Kafka.GroupID),
		logging.Int("health_port", healthPort))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("received shutdown signal, waiting for the running job")
	if err := consumer.Close(); err != nil {
		logger.Warn("consumer close failed", logging.Err(err))
	}
	processed, failed := consumer.Processed()
	logger.Info("worker stopped", logging.Int64("processed", processed), logging.Int64("failed", failed))
	return health.Stop(context.Background())
}
