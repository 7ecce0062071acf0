// Command apiserver serves the reporting set read API from the latest index.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jeffrey-bowles/uspto/internal/app"
	"github.com/jeffrey-bowles/uspto/internal/application/query"
	"github.com/jeffrey-bowles/uspto/internal/config"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/monitoring/logging"
	httpserver "github.com/jeffrey-bowles/uspto/internal/interfaces/http"
	"github.com/jeffrey-bowles/uspto/internal/interfaces/http/handlers"
	"github.com/jeffrey-bowles/uspto/pkg/errors"
)

// Build-time variables injected via ldflags.
var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to configuration file (default: USPTO_* environment only)")
	port := flag.Int("port", 0, "HTTP port (overrides server.port)")
	flag.Parse()

	cfg, err := config.LoadOrEnv(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}

	logger, err := app.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetDefault(logger)

	if err := run(*configPath, cfg, logger); err != nil {
		logger.Error("apiserver exited", logging.Err(err))
		os.Exit(1)
	}
}

func run(configPath string, cfg *config.Config, logger logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger, "apiserver")
	if err != nil {
		return fmt.Errorf("initialize infrastructure: %w", err)
	}
	defer a.Close()

	svc := a.QueryService()
	if err := svc.Reload(ctx); err != nil {
		logger.Warn("initial index load incomplete, serving 503 until the next rebuild", logging.Err(err))
	}

	if cfg.Kafka.Enabled {
		if err := subscribeIndexEvents(ctx, a, svc); err != nil {
			return err
		}
	}

	if setter, ok := logger.(logging.LevelSetter); ok && configPath != "" {
		err := config.Watch(configPath, func(next *config.Config) {
			setter.SetLevel(next.Log.Level)
			logger.Info("log level reloaded", logging.String("level", next.Log.Level))
		}, func(err error) {
			logger.Warn("ignoring invalid config change", logging.Err(err))
		})
		if err != nil {
			logger.Warn("config watch disabled", logging.Err(err))
		}
	}

	router := httpserver.NewRouter(httpserver.RouterConfig{
		PatentHandler: handlers.NewPatentHandler(svc, logger),
		HealthHandler: handlers.NewHealthHandler(version,
			handlers.NamedCheck("postgres", a.DB.HealthCheck),
			handlers.NamedCheck("redis", a.Redis.HealthCheck),
			handlers.NamedCheck("index", stateCheck(svc)),
		),
		Server:           cfg.Server,
		Logger:           logger,
		MetricsCollector: a.ExposedCollector(),
		MetricsPath:      cfg.Metrics.Path,
		HTTPMetrics:      a.HTTPMetrics(),
	})
	server := httpserver.NewServer(cfg.Server, router, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()
	logger.Info("apiserver started", logging.String("version", version), logging.String("addr", server.Addr()))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("received shutdown signal")
	return server.Stop(context.Background())
}

// subscribeIndexEvents reloads the state on every index.rebuilt event. Each
// instance joins its own group so every replica sees every event.
func subscribeIndexEvents(ctx context.Context, a *app.App, svc *query.Service) error {
	host, _ := os.Hostname()
	group := fmt.Sprintf("%s-apiserver-%s", a.Config.Kafka.GroupID, host)
	consumer, err := a.Consumer(group, a.Config.Kafka.IndexTopic, true)
	if err != nil {
		return fmt.Errorf("index event consumer: %w", err)
	}
	consumer.Subscribe(a.Config.Kafka.IndexTopic, svc.HandleIndexRebuilt)
	return consumer.Start(ctx)
}

func stateCheck(svc *query.Service) func(context.Context) error {
	return func(context.Context) error {
		if !svc.Ready() {
			return errors.New(errors.ErrCodeServiceUnavailable, "index not loaded")
		}
		return nil
	}
}

