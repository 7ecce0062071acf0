// internal/application/fees/reconciler.go
//
// Maintenance-fee reconciler.
//
// Functional positioning:
//   Keeps the patents and fee_events tables in step with the USPTO
//   maintenance-fee feed. The feed is a full dump republished weekly; the
//   previous dump is kept as an artifact so that later runs only apply the
//   lines that appeared since.
//
// Core implementation:
//   - Run: fetch archive -> largest entry is the feed, smallest the code table
//     -> Apply
//   - Apply: load snapshot -> bootstrap or incremental inside one database
//     transaction -> after commit, write the code table, then the snapshot
//
// Business logic:
//   - Feed lines are a set; repeated raw lines count once
//   - Bootstrap: lines grouped by patent, first line creates the patent, every
//     distinct (patent, date, code) creates a fee event
//   - Incremental: new = current - previous; unknown patents are created,
//     known ones only get their entity status refreshed; events are
//     get-or-create
//   - A malformed line fails the whole run and leaves the snapshot untouched

package fees

import (
	"bufio"
	"context"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/jeffrey-bowles/uspto/internal/domain/patent"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/bulkdata"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/monitoring/logging"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/monitoring/prometheus"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/storage/artifact"
	"github.com/jeffrey-bowles/uspto/pkg/errors"
)

// Artifact schemas written by the reconciler.
const (
	SchemaSnapshot = "fee_snapshot"
	SchemaCodes    = "fee_codes"
	SchemaVersion  = 1
)

const maxLineBytes = 1 << 20

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

// Snapshot is the set of raw feed lines applied by the last successful run.
type Snapshot struct {
	Lines []string `json:"lines"`
}

// Result summarises one run.
type Result struct {
	Bootstrap      bool
	Lines          int
	NewLines       int
	Discarded      int
	PatentsCreated int
	PatentsUpdated int
	EventsCreated  int
}

// Source fetches a bulk archive.
type Source interface {
	Fetch(ctx context.Context, kind, rel string) (*bulkdata.Archive, error)
}

// Reconciler applies the maintenance-fee feed to the patent store.
type Reconciler struct {
	source      Source
	archivePath string
	patents     patent.Repository
	events      patent.FeeEventRepository
	tx          patent.Transactor
	store       *artifact.Store
	metrics     *prometheus.PipelineMetrics
	logger      logging.Logger
}

// Deps groups the collaborators of a Reconciler.
type Deps struct {
	Source      Source
	ArchivePath string
	Patents     patent.Repository
	Events      patent.FeeEventRepository
	Tx          patent.Transactor
	Store       *artifact.Store
	Metrics     *prometheus.PipelineMetrics
	Logger      logging.Logger
}

// NewReconciler builds a Reconciler.
func NewReconciler(d Deps) *Reconciler {
	return &Reconciler{
		source:      d.Source,
		archivePath: d.ArchivePath,
		patents:     d.Patents,
		events:      d.Events,
		tx:          d.Tx,
		store:       d.Store,
		metrics:     d.Metrics,
		logger:      d.Logger.Named("fees"),
	}
}

// ---------------------------------------------------------------------------
// Run
// ---------------------------------------------------------------------------

// Run downloads the fee archive and applies it.
func (r *Reconciler) Run(ctx context.Context) (*Result, error) {
	archive, err := r.source.Fetch(ctx, bulkdata.KindFees, r.archivePath)
	if err != nil {
		return nil, err
	}
	feed, err := archive.Largest()
	if err != nil {
		return nil, err
	}
	desc, err := archive.Smallest()
	if err != nil {
		return nil, err
	}

	lines, err := readLines(feed.Path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(desc.Path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSourceMissing, "open fee code table").WithDetail(desc.Path)
	}
	defer f.Close()
	codes, err := ParseCodes(f)
	if err != nil {
		return nil, err
	}
	return r.Apply(ctx, lines, codes)
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSourceMissing, "open fee feed").WithDetail(path)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	for sc.Scan() {
		if text := strings.TrimSpace(sc.Text()); text != "" {
			lines = append(lines, text)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeParseFeeLine, "read fee feed").WithDetail(path)
	}
	return lines, nil
}

// Apply reconciles the given feed lines and code table. Rows are committed
// only when every line parses; the snapshot is replaced only after the rows
// and the code table are stored.
func (r *Reconciler) Apply(ctx context.Context, current []string, codes CodeTable) (*Result, error) {
	start := time.Now()
	res, err := r.apply(ctx, current, codes)
	r.metrics.ObserveStage("fees", time.Since(start), err)
	if err != nil {
		r.logger.Error("fee reconciliation failed", logging.Err(err))
		return nil, err
	}
	r.metrics.RecordsProcessed.WithLabelValues(prometheus.SourceFees).Add(float64(res.NewLines))
	r.metrics.PatentsCreated.WithLabelValues(prometheus.SourceFees).Add(float64(res.PatentsCreated))
	r.metrics.PatentsUpdated.WithLabelValues(prometheus.SourceFees).Add(float64(res.PatentsUpdated))
	r.metrics.FeeEventsCreated.WithLabelValues().Add(float64(res.EventsCreated))
	r.logger.Info("fee reconciliation finished",
		logging.Bool("bootstrap", res.Bootstrap),
		logging.Int("lines", res.Lines),
		logging.Int("new_lines", res.NewLines),
		logging.Int("patents_created", res.PatentsCreated),
		logging.Int("patents_updated", res.PatentsUpdated),
		logging.Int("events_created", res.EventsCreated),
		logging.Duration("elapsed", time.Since(start)))
	return res, nil
}

func (r *Reconciler) apply(ctx context.Context, current []string, codes CodeTable) (*Result, error) {
	var prev Snapshot
	bootstrap := false
	if err := r.store.Get(ctx, artifact.KeyFeeSnapshot, SchemaSnapshot, SchemaVersion, &prev); err != nil {
		if !errors.IsCode(err, errors.ErrCodeArtifactNotFound) {
			return nil, err
		}
		bootstrap = true
	}

	current = unique(current)
	pending := current
	if !bootstrap {
		pending = difference(current, prev.Lines)
	}
	res := &Result{Bootstrap: bootstrap, Lines: len(current), NewLines: len(pending)}

	parsed := make([]Line, 0, len(pending))
	for _, raw := range pending {
		line, keep, err := ParseLine(raw)
		if err != nil {
			return nil, err
		}
		if !keep {
			res.Discarded++
			continue
		}
		parsed = append(parsed, line)
	}

	err := r.tx.WithinTx(ctx, func(ctx context.Context) error {
		if bootstrap {
			return r.bootstrap(ctx, parsed, res)
		}
		return r.incremental(ctx, parsed, res)
	})
	if err != nil {
		return nil, err
	}

	// The snapshot goes last: while it still holds the previous lines, a
	// failed run is retried in full against the committed rows.
	if err := r.store.Put(ctx, artifact.KeyFeeCodes, SchemaCodes, SchemaVersion, codes); err != nil {
		return nil, err
	}
	snap := Snapshot{Lines: append([]string(nil), current...)}
	sort.Strings(snap.Lines)
	if err := r.store.Put(ctx, artifact.KeyFeeSnapshot, SchemaSnapshot, SchemaVersion, snap); err != nil {
		return nil, err
	}
	return res, nil
}

type eventKey struct {
	patentID int64
	date     time.Time
	code     string
}

// bootstrap creates patents from the first line seen for each number. A
// patent already stored by an earlier run that failed before writing the
// snapshot is reused, and its events go through GetOrCreate.
func (r *Reconciler) bootstrap(ctx context.Context, lines []Line, res *Result) error {
	type known struct {
		id       int64
		existing bool
	}
	patents := make(map[string]known)
	created := make(map[eventKey]struct{})
	for _, line := range lines {
		k, ok := patents[line.PatentNumber]
		if !ok {
			p, err := r.patents.FindOne(ctx, patent.Lookup{PatentNumber: line.PatentNumber})
			switch {
			case err == nil:
				k = known{id: p.ID, existing: true}
			case errors.IsNotFound(err):
				p = line.Patent()
				if err := r.patents.Create(ctx, p); err != nil {
					return err
				}
				k = known{id: p.ID}
				res.PatentsCreated++
			default:
				return err
			}
			patents[line.PatentNumber] = k
		}

		ev := line.Event(k.id)
		if k.existing {
			ok, err := r.events.GetOrCreate(ctx, ev)
			if err != nil {
				return err
			}
			if ok {
				res.EventsCreated++
			}
			continue
		}
		key := eventKey{patentID: k.id, date: ev.MaintenanceDate, code: ev.MaintenanceCode}
		if _, dup := created[key]; dup {
			continue
		}
		if err := r.events.Create(ctx, ev); err != nil {
			return err
		}
		created[key] = struct{}{}
		res.EventsCreated++
	}
	return nil
}

func (r *Reconciler) incremental(ctx context.Context, lines []Line, res *Result) error {
	for _, line := range lines {
		p, err := r.patents.FindOne(ctx, patent.Lookup{PatentNumber: line.PatentNumber})
		switch {
		case err == nil:
			if p.EntityStatus != line.EntityStatus {
				if err := r.patents.UpdateEntityStatus(ctx, p.ID, line.EntityStatus); err != nil {
					return err
				}
				res.PatentsUpdated++
			}
		case errors.IsNotFound(err):
			p = line.Patent()
			if err := r.patents.Create(ctx, p); err != nil {
				return err
			}
			res.PatentsCreated++
		default:
			return err
		}

		created, err := r.events.GetOrCreate(ctx, line.Event(p.ID))
		if err != nil {
			return err
		}
		if created {
			res.EventsCreated++
		}
	}
	return nil
}

// unique drops repeated lines, keeping the first occurrence.
func unique(lines []string) []string {
	seen := make(map[string]struct{}, len(lines))
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}

// difference returns the lines of current absent from previous, in the
// order they appear in current.
func difference(current, previous []string) []string {
	seen := make(map[string]struct{}, len(previous))
	for _, l := range previous {
		seen[l] = struct{}{}
	}
	var out []string
	for _, l := range current {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}

// LoadCodes reads the fee code table written by the last run. A missing
// table yields an empty one.
func LoadCodes(ctx context.Context, store *artifact.Store) (CodeTable, error) {
	codes := make(CodeTable)
	if err := store.Get(ctx, artifact.KeyFeeCodes, SchemaCodes, SchemaVersion, &codes); err != nil {
		if errors.IsCode(err, errors.ErrCodeArtifactNotFound) {
			return CodeTable{}, nil
		}
		return nil, err
	}
	return codes, nil
}
