// Command ptoctl runs pipeline jobs in process and queues them for the worker.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jeffrey-bowles/uspto/internal/app"
	"github.com/jeffrey-bowles/uspto/internal/application/pipeline"
	"github.com/jeffrey-bowles/uspto/internal/config"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/messaging/kafka"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/monitoring/logging"
	"github.com/jeffrey-bowles/uspto/internal/interfaces/cli"
	"github.com/jeffrey-bowles/uspto/pkg/errors"
)

// Build-time variables injected via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

var errKafkaDisabled = errors.New(errors.ErrCodeServiceUnavailable, "kafka is disabled; set kafka.enabled to submit jobs")

func init() {
	cli.Version = version
	cli.GitCommit = commit
	cli.BuildDate = buildDate
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.Execute(ctx, cli.Deps{
		OpenRunner:    openRunner,
		OpenPublisher: openPublisher,
	}); err != nil {
		stop()
		os.Exit(1)
	}
}

func openRunner(ctx context.Context, cfg *config.Config, logger logging.Logger) (cli.JobRunner, func() error, error) {
	a, err := app.New(ctx, cfg, logger, "ptoctl")
	if err != nil {
		return nil, nil, err
	}
	runner, err := a.Runner()
	if err != nil {
		_ = a.Close()
		return nil, nil, err
	}
	return runner, a.Close, nil
}

// openPublisher connects only the Kafka producer; submitting a job needs
// neither Postgres nor Redis.
func openPublisher(ctx context.Context, cfg *config.Config, logger logging.Logger) (pipeline.Publisher, func() error, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil, errKafkaDisabled
	}
	p, err := kafka.NewProducer(kafka.ProducerConfigFrom(cfg.Kafka), logger)
	if err != nil {
		return nil, nil, err
	}
	return p, p.Close, nil
}
