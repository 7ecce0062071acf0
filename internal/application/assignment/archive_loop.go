package assignment

import (
	"context"
	"fmt"
	"time"

	"github.com/jeffrey-bowles/uspto/internal/domain/reporting"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/bulkdata"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/monitoring/logging"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/storage/artifact"
	"github.com/jeffrey-bowles/uspto/pkg/errors"
)

const historicalRange = "19800101-20191231"

// DailyArchiveName is the archive published for day.
func DailyArchiveName(day time.Time) string {
	return "ad" + day.Format("20060102") + ".zip"
}

// TargetNames lists every archive to apply: the historical parts, then one
// daily archive per day from dailyStart up to but excluding today.
func TargetNames(historicalParts int, dailyStart, today time.Time) []string {
	names := make([]string, 0, historicalParts)
	for i := 1; i <= historicalParts; i++ {
		names = append(names, fmt.Sprintf("ad%s-%02d.zip", historicalRange, i))
	}
	today = reporting.Day(today)
	for d := reporting.Day(dailyStart); d.Before(today); d = d.AddDate(0, 0, 1) {
		names = append(names, DailyArchiveName(d))
	}
	return names
}

// ArchiveProcessor applies one named archive.
type ArchiveProcessor interface {
	ProcessArchive(ctx context.Context, name string) (*XMLResult, error)
}

// LocalZipLister lists archives already downloaded.
type LocalZipLister interface {
	LocalZips(kind string) ([]string, error)
}

// Finished is the checkpoint of applied archives.
type Finished struct {
	Names []string `json:"names"`
}

// Targets is the persisted list of archives a loop run aimed for.
type Targets struct {
	Names []string `json:"names"`
}

// LoopResult summarises an archive loop run.
type LoopResult struct {
	Targets   int
	Skipped   int
	Processed []string
	Failed    []string
}

// ArchiveLoop applies every historical and daily archive not yet applied,
// checkpointing after each one so an interrupted run resumes where it
// stopped.
type ArchiveLoop struct {
	processor  ArchiveProcessor
	local      LocalZipLister
	store      *artifact.Store
	logger     logging.Logger
	clock      reporting.Clock
	parts      int
	dailyStart time.Time
}

// NewArchiveLoop builds an ArchiveLoop.
func NewArchiveLoop(processor ArchiveProcessor, local LocalZipLister, store *artifact.Store,
	parts int, dailyStart time.Time, clock reporting.Clock, logger logging.Logger) *ArchiveLoop {
	return &ArchiveLoop{
		processor:  processor,
		local:      local,
		store:      store,
		logger:     logger.Named("assignment.loop"),
		clock:      clock,
		parts:      parts,
		dailyStart: dailyStart,
	}
}

// Run applies every unfinished target. Archives that cannot be downloaded,
// extracted or decoded stay unfinished and the loop moves on. Any other
// failure stops the run.
func (l *ArchiveLoop) Run(ctx context.Context) (*LoopResult, error) {
	now := l.clock()
	targets := TargetNames(l.parts, l.dailyStart, now)
	if err := l.store.Put(ctx, artifact.KeyAssignmentTargets, SchemaTargets, SchemaVersion, Targets{Names: targets}); err != nil {
		return nil, err
	}

	finished, err := l.loadFinished(ctx)
	if err != nil {
		return nil, err
	}
	done := make(map[string]bool, len(finished.Names))
	for _, n := range finished.Names {
		done[n] = true
	}

	res := &LoopResult{Targets: len(targets)}
	for _, name := range targets {
		if done[name] {
			res.Skipped++
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if _, err := l.processor.ProcessArchive(ctx, name); err != nil {
			if isSourceError(err) {
				l.logger.Warn("assignment archive skipped", logging.String("archive", name), logging.Err(err))
				res.Failed = append(res.Failed, name)
				continue
			}
			return res, err
		}
		finished.Names = append(finished.Names, name)
		done[name] = true
		if err := l.store.Put(ctx, artifact.KeyAssignmentFinished, SchemaFinished, SchemaVersion, finished); err != nil {
			return res, err
		}
		res.Processed = append(res.Processed, name)
	}

	if err := l.store.Put(ctx, artifact.KeyLastAssignmentUpdate, artifact.SchemaTimestamp, SchemaVersion,
		artifact.Timestamp{At: now}); err != nil {
		return res, err
	}
	l.logger.Info("assignment archive loop finished",
		logging.Int("targets", res.Targets),
		logging.Int("skipped", res.Skipped),
		logging.Int("processed", len(res.Processed)),
		logging.Int("failed", len(res.Failed)))
	return res, nil
}

// loadFinished reads the checkpoint. When none exists it is seeded from the
// zips already on disk and written at once, so zips downloaded later by this
// run are never mistaken for applied ones after a crash.
func (l *ArchiveLoop) loadFinished(ctx context.Context) (Finished, error) {
	var f Finished
	err := l.store.Get(ctx, artifact.KeyAssignmentFinished, SchemaFinished, SchemaVersion, &f)
	if err == nil {
		return f, nil
	}
	if !errors.IsCode(err, errors.ErrCodeArtifactNotFound) {
		return f, err
	}
	names, err := l.local.LocalZips(bulkdata.KindAssignments)
	if err != nil {
		return f, err
	}
	l.logger.Info("no assignment checkpoint, seeding from local zips", logging.Int("zips", len(names)))
	f = Finished{Names: names}
	if err := l.store.Put(ctx, artifact.KeyAssignmentFinished, SchemaFinished, SchemaVersion, f); err != nil {
		return f, err
	}
	return f, nil
}

func isSourceError(err error) bool {
	return errors.IsCode(err, errors.ErrCodeSourceDownload) ||
		errors.IsCode(err, errors.ErrCodeSourceExtract) ||
		errors.IsCode(err, errors.ErrCodeSourceMissing) ||
		errors.IsCode(err, errors.ErrCodeParseXML)
}
