// Package pipeline sequences the ETL stages into the jobs the scheduler,
// the CLI and the Kafka worker run. Every job holds the shared pipeline lock
// for its whole duration.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jeffrey-bowles/uspto/internal/application/assignment"
	"github.com/jeffrey-bowles/uspto/internal/application/enrichment"
	"github.com/jeffrey-bowles/uspto/internal/application/fees"
	"github.com/jeffrey-bowles/uspto/internal/application/indexing"
	"github.com/jeffrey-bowles/uspto/internal/domain/patent"
	"github.com/jeffrey-bowles/uspto/internal/domain/reporting"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/database/redis"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/messaging/kafka"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/monitoring/logging"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/monitoring/prometheus"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/storage/artifact"
)

// Job names, shared with the Kafka job kinds.
const (
	JobCycle     = kafka.JobCycle
	JobDaily     = kafka.JobDaily
	JobSync      = kafka.JobSync
	JobIndex     = kafka.JobIndex
	JobFees      = "fees"
	JobEnrich    = "enrich"
	JobBootstrap = "bootstrap-csv"
)

// SchemaPruned names the retention backup payload.
const (
	SchemaPruned        = "pruned_patents"
	SchemaPrunedVersion = 1
)

// PrunedBackup is written before patents are removed by the retention prune.
type PrunedBackup struct {
	Cutoff  time.Time        `json:"cutoff"`
	Patents []*patent.Patent `json:"patents"`
}

// ---------------------------------------------------------------------------
// Stage contracts
// ---------------------------------------------------------------------------

type FeeUpdater interface {
	Run(ctx context.Context) (*fees.Result, error)
}

type CSVBootstrapper interface {
	Run(ctx context.Context) (*assignment.CSVResult, error)
}

type ArchiveProcessor interface {
	ProcessArchive(ctx context.Context, name string) (*assignment.XMLResult, error)
}

type ArchiveSyncer interface {
	Run(ctx context.Context) (*assignment.LoopResult, error)
}

type AssigneeEnricher interface {
	Run(ctx context.Context, sets []reporting.Set) (*enrichment.Result, error)
}

type IndexBuilder interface {
	Build(ctx context.Context, sets []reporting.Set) (*indexing.Result, error)
}

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	PublishEvent(ctx context.Context, topic, eventType string, payload interface{}) error
}

// Report collects what one job did. Only the stages the job ran are set.
type Report struct {
	RunID      string                  `json:"run_id"`
	Job        string                  `json:"job"`
	StartedAt  time.Time               `json:"started_at"`
	FinishedAt time.Time               `json:"finished_at"`
	Fees       *fees.Result            `json:"fees,omitempty"`
	CSV        *assignment.CSVResult   `json:"csv,omitempty"`
	Archive    *assignment.XMLResult   `json:"archive,omitempty"`
	Sync       *assignment.LoopResult  `json:"sync,omitempty"`
	Enrichment *enrichment.Result      `json:"enrichment,omitempty"`
	Index      *indexing.Result        `json:"index,omitempty"`
	Pruned     int64                   `json:"pruned"`
	Published  bool                    `json:"published"`
}

// Deps groups the collaborators of a Runner. Lock and Publisher may be nil.
type Deps struct {
	Fees           FeeUpdater
	CSV            CSVBootstrapper
	Archives       ArchiveProcessor
	Sync           ArchiveSyncer
	Enricher       AssigneeEnricher
	Indexer        IndexBuilder
	Patents        patent.Repository
	Store          *artifact.Store
	Lock           redis.Locker
	Publisher      Publisher
	IndexTopic     string
	RetentionYears int
	Clock          reporting.Clock
	Metrics        *prometheus.PipelineMetrics
	Logger         logging.Logger
}

// Runner runs pipeline jobs.
type Runner struct {
	d      Deps
	logger logging.Logger
}

// NewRunner builds a Runner.
func NewRunner(d Deps) *Runner {
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.RetentionYears <= 0 {
		d.RetentionYears = 12
	}
	if d.IndexTopic == "" {
		d.IndexTopic = kafka.DefaultIndexTopic
	}
	return &Runner{d: d, logger: d.Logger.Named("pipeline")}
}

func (r *Runner) today() time.Time {
	return reporting.Day(r.d.Clock())
}

// run holds the lock around fn and records the job outcome.
func (r *Runner) run(ctx context.Context, job string, fn func(ctx context.Context, rep *Report) error) (*Report, error) {
	rep := &Report{RunID: uuid.New().String(), Job: job, StartedAt: time.Now()}
	log := r.logger.With(logging.String("job", job), logging.String("run_id", rep.RunID))

	if r.d.Lock != nil {
		ok, err := r.d.Lock.TryLock(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			log.Warn("pipeline lock held, not starting")
			return nil, redis.ErrLockNotAcquired.WithDetail("job=" + job)
		}
		defer func() {
			// The run context may already be cancelled.
			if err := r.d.Lock.Unlock(context.Background()); err != nil {
				log.Warn("failed to release pipeline lock", logging.Err(err))
			}
		}()
	}

	log.Info("job started")
	err := fn(ctx, rep)
	rep.FinishedAt = time.Now()
	r.d.Metrics.ObserveStage(job, rep.FinishedAt.Sub(rep.StartedAt), err)
	if err != nil {
		log.Error("job failed", logging.Err(err), logging.Duration("elapsed", rep.FinishedAt.Sub(rep.StartedAt)))
		return rep, err
	}
	r.d.Metrics.MarkSuccess(job, rep.FinishedAt)
	log.Info("job finished", logging.Duration("elapsed", rep.FinishedAt.Sub(rep.StartedAt)))
	return rep, nil
}

func (r *Runner) stamp(ctx context.Context, key string) error {
	return r.d.Store.Put(ctx, key, artifact.SchemaTimestamp, indexing.SchemaVersion, artifact.Timestamp{At: r.d.Clock()})
}

// ---------------------------------------------------------------------------
// Jobs
// ---------------------------------------------------------------------------

// Cycle applies the fee feed, fills missing assignees from PatentsView,
// rebuilds the indexes and announces them.
func (r *Runner) Cycle(ctx context.Context) (*Report, error) {
	return r.run(ctx, JobCycle, func(ctx context.Context, rep *Report) error {
		if err := r.updateFees(ctx, rep); err != nil {
			return err
		}
		sets := reporting.Sets(r.today())
		if err := r.enrich(ctx, rep, sets); err != nil {
			return err
		}
		return r.rebuild(ctx, rep, sets)
	})
}

// UpdateFees applies the fee feed only.
func (r *Runner) UpdateFees(ctx context.Context) (*Report, error) {
	return r.run(ctx, JobFees, r.updateFees)
}

// Enrich fills missing assignees for every set without rebuilding.
func (r *Runner) Enrich(ctx context.Context) (*Report, error) {
	return r.run(ctx, JobEnrich, func(ctx context.Context, rep *Report) error {
		return r.enrich(ctx, rep, reporting.Sets(r.today()))
	})
}

// BuildIndex rebuilds and announces the indexes.
func (r *Runner) BuildIndex(ctx context.Context) (*Report, error) {
	return r.run(ctx, JobIndex, func(ctx context.Context, rep *Report) error {
		return r.rebuild(ctx, rep, reporting.Sets(r.today()))
	})
}

// BootstrapCSV seeds assignments from the economics CSV dataset.
func (r *Runner) BootstrapCSV(ctx context.Context) (*Report, error) {
	return r.run(ctx, JobBootstrap, func(ctx context.Context, rep *Report) error {
		res, err := r.d.CSV.Run(ctx)
		if err != nil {
			return err
		}
		rep.CSV = res
		return r.rebuild(ctx, rep, reporting.Sets(r.today()))
	})
}

// Sync applies every assignment archive not yet applied.
func (r *Runner) Sync(ctx context.Context) (*Report, error) {
	return r.run(ctx, JobSync, func(ctx context.Context, rep *Report) error {
		res, err := r.d.Sync.Run(ctx)
		if err != nil {
			return err
		}
		rep.Sync = res
		return r.rebuild(ctx, rep, reporting.Sets(r.today()))
	})
}

// Daily backs up and prunes patents past retention, applies yesterday's
// assignment archive and rebuilds. A failure to fetch the archive aborts
// the job.
func (r *Runner) Daily(ctx context.Context) (*Report, error) {
	return r.run(ctx, JobDaily, func(ctx context.Context, rep *Report) error {
		today := r.today()
		pruned, err := r.prune(ctx, today)
		if err != nil {
			return err
		}
		rep.Pruned = pruned

		res, err := r.d.Archives.ProcessArchive(ctx, assignment.DailyArchiveName(today.AddDate(0, 0, -1)))
		if err != nil {
			return err
		}
		rep.Archive = res

		if err := r.stamp(ctx, artifact.KeyLastAssignmentUpdate); err != nil {
			return err
		}
		return r.rebuild(ctx, rep, reporting.Sets(today))
	})
}

// Run dispatches a job by name.
func (r *Runner) Run(ctx context.Context, job string) (*Report, error) {
	switch job {
	case JobCycle:
		return r.Cycle(ctx)
	case JobDaily:
		return r.Daily(ctx)
	case JobSync:
		return r.Sync(ctx)
	case JobIndex:
		return r.BuildIndex(ctx)
	case JobFees:
		return r.UpdateFees(ctx)
	case JobEnrich:
		return r.Enrich(ctx)
	case JobBootstrap:
		return r.BootstrapCSV(ctx)
	}
	return nil, errUnknownJob(job)
}

// ---------------------------------------------------------------------------
// Stages
// ---------------------------------------------------------------------------

func (r *Runner) updateFees(ctx context.Context, rep *Report) error {
	res, err := r.d.Fees.Run(ctx)
	if err != nil {
		return err
	}
	rep.Fees = res
	return r.stamp(ctx, artifact.KeyLastFeeUpdate)
}

func (r *Runner) enrich(ctx context.Context, rep *Report, sets []reporting.Set) error {
	res, err := r.d.Enricher.Run(ctx, sets)
	if err != nil {
		return err
	}
	rep.Enrichment = res
	return nil
}

func (r *Runner) rebuild(ctx context.Context, rep *Report, sets []reporting.Set) error {
	res, err := r.d.Indexer.Build(ctx, sets)
	if err != nil {
		return err
	}
	rep.Index = res
	rep.Published = r.publish(ctx, rep.RunID, res)
	return nil
}

// publish announces a build. The artifacts are already in place, so a
// failed publish only delays readers until their next reload.
func (r *Runner) publish(ctx context.Context, runID string, res *indexing.Result) bool {
	if r.d.Publisher == nil {
		return false
	}
	sizes := make(map[string]int, len(res.Sizes))
	for name, n := range res.Sizes {
		sizes[string(name)] = n
	}
	payload := kafka.IndexRebuiltPayload{RunID: runID, BuiltAt: res.BuiltAt, Sets: sizes}
	if err := r.d.Publisher.PublishEvent(ctx, r.d.IndexTopic, kafka.EventIndexRebuilt, payload); err != nil {
		r.logger.Warn("failed to publish index rebuild", logging.String("run_id", runID), logging.Err(err))
		return false
	}
	return true
}

// prune writes the backup of patents issued before the retention cutoff
// and only then deletes them.
func (r *Runner) prune(ctx context.Context, today time.Time) (int64, error) {
	cutoff := reporting.YearsAgo(today, r.d.RetentionYears, 0)
	old, err := r.d.Patents.ListIssuedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if len(old) == 0 {
		return 0, nil
	}
	backup := PrunedBackup{Cutoff: cutoff, Patents: old}
	if err := r.d.Store.Put(ctx, artifact.PrunedKey(today), SchemaPruned, SchemaPrunedVersion, backup); err != nil {
		return 0, err
	}
	n, err := r.d.Patents.DeleteIssuedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	r.d.Metrics.PatentsPruned.WithLabelValues().Add(float64(n))
	r.logger.Info("pruned patents past retention",
		logging.Time("cutoff", cutoff), logging.Int64("deleted", n))
	return n, nil
}
