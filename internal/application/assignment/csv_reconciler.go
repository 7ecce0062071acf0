package assignment

import (
	"context"
	"os"
	"time"

	"github.com/jeffrey-bowles/uspto/internal/domain/patent"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/bulkdata"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/monitoring/logging"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/monitoring/prometheus"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/storage/artifact"
	"github.com/jeffrey-bowles/uspto/pkg/errors"
)

// Artifact schemas written by this package.
const (
	SchemaMapped   = "assignment_mapped"
	SchemaTargets  = "assignment_targets"
	SchemaFinished = "assignment_finished"
	SchemaVersion  = 1
)

// Source fetches a bulk archive.
type Source interface {
	Fetch(ctx context.Context, kind, rel string) (*bulkdata.Archive, error)
}

// CSVResult summarises a CSV bootstrap.
type CSVResult struct {
	Records int
	Applied int
	Missing int
}

// CSVReconciler seeds assignment fields from the economics CSV dataset.
// Every record that names a known patent overwrites that patent's
// assignment fields unconditionally.
type CSVReconciler struct {
	source  Source
	path    string
	patents patent.Repository
	store   *artifact.Store
	metrics *prometheus.PipelineMetrics
	logger  logging.Logger
}

// NewCSVReconciler builds a CSVReconciler that downloads path.
func NewCSVReconciler(source Source, path string, patents patent.Repository, store *artifact.Store,
	metrics *prometheus.PipelineMetrics, logger logging.Logger) *CSVReconciler {
	return &CSVReconciler{
		source:  source,
		path:    path,
		patents: patents,
		store:   store,
		metrics: metrics,
		logger:  logger.Named("assignment.csv"),
	}
}

// Run downloads the dataset, joins the three CSVs, persists the mapping and
// applies it.
func (r *CSVReconciler) Run(ctx context.Context) (*CSVResult, error) {
	start := time.Now()
	res, err := r.run(ctx)
	r.metrics.ObserveStage("assignments_csv", time.Since(start), err)
	if err != nil {
		r.logger.Error("csv assignment bootstrap failed", logging.Err(err))
		return nil, err
	}
	r.logger.Info("csv assignment bootstrap finished",
		logging.Int("records", res.Records),
		logging.Int("applied", res.Applied),
		logging.Int("missing", res.Missing),
		logging.Duration("elapsed", time.Since(start)))
	return res, nil
}

func (r *CSVReconciler) run(ctx context.Context) (*CSVResult, error) {
	archive, err := r.source.Fetch(ctx, bulkdata.KindAssignments, r.path)
	if err != nil {
		return nil, err
	}
	mapping := NewMapping()
	for _, s := range CSVSchemas {
		entry, ok := archive.Find(s.File)
		if !ok {
			return nil, errors.New(errors.ErrCodeSourceMissing, "assignment csv missing from archive").WithDetail(s.File)
		}
		if err := loadFile(mapping, s, entry.Path); err != nil {
			return nil, err
		}
	}

	records := mapping.Records()
	if err := r.store.Put(ctx, artifact.KeyAssignmentMapped, SchemaMapped, SchemaVersion, records); err != nil {
		return nil, err
	}
	return r.Apply(ctx, records)
}

func loadFile(m *Mapping, s Schema, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSourceMissing, "open assignment csv").WithDetail(path)
	}
	defer f.Close()
	_, err = m.Load(s, f)
	return err
}

// Apply writes each record carrying a patent number onto its patent. A
// record whose patent is not stored is logged and skipped.
func (r *CSVReconciler) Apply(ctx context.Context, records []*Record) (*CSVResult, error) {
	res := &CSVResult{Records: len(records)}
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		number := patent.NormalizePatentNumber(rec.PatentNumber)
		if number == "" {
			continue
		}
		p, err := r.patents.FindOne(ctx, patent.Lookup{PatentNumber: number})
		if err != nil {
			if patent.IsMiss(err) {
				res.Missing++
				r.metrics.JoinFailures.WithLabelValues(prometheus.SourceCSV).Inc()
				r.logger.Debug("assignment record names unknown patent",
					logging.String("record", rec.ID), logging.String("patent_number", number))
				continue
			}
			return nil, err
		}
		if err := r.patents.UpdateAssignment(ctx, p.ID, rec.Assignment()); err != nil {
			return nil, err
		}
		res.Applied++
	}
	r.metrics.RecordsProcessed.WithLabelValues(prometheus.SourceCSV).Add(float64(res.Records))
	r.metrics.PatentsUpdated.WithLabelValues(prometheus.SourceCSV).Add(float64(res.Applied))
	return res, nil
}

// LoadMapped reads the mapping persisted by the last bootstrap.
func LoadMapped(ctx context.Context, store *artifact.Store) ([]*Record, error) {
	var records []*Record
	if err := store.Get(ctx, artifact.KeyAssignmentMapped, SchemaMapped, SchemaVersion, &records); err != nil {
		return nil, err
	}
	return records, nil
}
