// Package enrichment fills missing assignee data from the PatentsView API.
package enrichment

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jeffrey-bowles/uspto/internal/domain/patent"
	"github.com/jeffrey-bowles/uspto/internal/domain/reporting"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/monitoring/logging"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/monitoring/prometheus"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/patentsview"
	"github.com/jeffrey-bowles/uspto/pkg/errors"
)

// GeneratedMarker heads every address written by enrichment.
const GeneratedMarker = "*API GENERATED"

const defaultSubWindowDays = 7

// Window is an inclusive issue-date range queried in one request series.
type Window struct {
	From time.Time
	To   time.Time
}

// SubWindows splits [from, to] into [b, b+days] steps starting at from while
// b < to. Consecutive windows share their boundary day.
func SubWindows(from, to time.Time, days int) []Window {
	if days <= 0 {
		days = defaultSubWindowDays
	}
	var out []Window
	for b := from; b.Before(to); b = b.AddDate(0, 0, days) {
		out = append(out, Window{From: b, To: b.AddDate(0, 0, days)})
	}
	return out
}

// Result summarises an enrichment run.
type Result struct {
	SubWindows int
	Failed     int
	Results    int
	Updated    int
}

// Enricher walks each reporting set in sub-windows and writes assignees onto
// patents that have none.
type Enricher struct {
	searcher    patentsview.Searcher
	patents     patent.Repository
	metrics     *prometheus.PipelineMetrics
	logger      logging.Logger
	days        int
	concurrency int
}

// NewEnricher builds an Enricher. concurrency bounds the sub-windows in
// flight per set.
func NewEnricher(searcher patentsview.Searcher, patents patent.Repository, days, concurrency int,
	metrics *prometheus.PipelineMetrics, logger logging.Logger) *Enricher {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Enricher{
		searcher:    searcher,
		patents:     patents,
		metrics:     metrics,
		logger:      logger.Named("enrichment"),
		days:        days,
		concurrency: concurrency,
	}
}

// Run enriches every set. A sub-window whose search fails is logged and
// skipped; storage failures stop the run.
func (e *Enricher) Run(ctx context.Context, sets []reporting.Set) (*Result, error) {
	start := time.Now()
	total := &Result{}
	var err error
	for _, s := range sets {
		if err = e.enrichSet(ctx, s, total); err != nil {
			break
		}
	}
	e.metrics.ObserveStage("enrichment", time.Since(start), err)
	if err != nil {
		return nil, err
	}
	e.logger.Info("enrichment finished",
		logging.Int("sub_windows", total.SubWindows),
		logging.Int("failed", total.Failed),
		logging.Int("results", total.Results),
		logging.Int("updated", total.Updated),
		logging.Duration("elapsed", time.Since(start)))
	return total, nil
}

func (e *Enricher) enrichSet(ctx context.Context, s reporting.Set, total *Result) error {
	stored, err := e.patents.ListIssuedBetween(ctx, s.From, s.To)
	if err != nil {
		return err
	}
	var mu sync.Mutex
	empty := make(map[string]*patent.Patent)
	for _, p := range stored {
		if !p.HasAssignee() {
			empty[p.PatentNumber] = p
		}
	}
	if len(empty) == 0 {
		e.logger.Debug("set has no patents without assignee", logging.String("set", string(s.Name)))
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for _, w := range SubWindows(s.From, s.To, e.days) {
		w := w
		g.Go(func() error {
			results, err := e.searcher.PatentsIssuedBetween(gctx, w.From, w.To)

			mu.Lock()
			defer mu.Unlock()
			total.SubWindows++
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				total.Failed++
				e.metrics.EnrichmentRequests.WithLabelValues("error").Inc()
				e.logger.Warn("enrichment sub-window failed",
					logging.String("set", string(s.Name)),
					logging.Date("from", w.From),
					logging.Date("to", w.To),
					logging.String("code", string(errors.GetCode(err))),
					logging.Err(err))
				return nil
			}
			e.metrics.EnrichmentRequests.WithLabelValues("ok").Inc()
			total.Results += len(results)
			return e.apply(gctx, results, empty, total)
		})
	}
	return g.Wait()
}

// apply writes usable results onto the matching empty patents. Callers hold
// the lock guarding empty and total.
func (e *Enricher) apply(ctx context.Context, results []patentsview.Patent, empty map[string]*patent.Patent, total *Result) error {
	for _, r := range results {
		if !Usable(r) {
			continue
		}
		p, ok := empty[patent.NormalizePatentNumber(r.Number)]
		if !ok {
			continue
		}
		name, address := Assignee(r.Assignees[0])
		if name == "" {
			continue
		}
		if err := e.patents.UpdateAssignee(ctx, p.ID, name, address); err != nil {
			return err
		}
		delete(empty, p.PatentNumber)
		total.Updated++
		e.metrics.EnrichmentUpdates.WithLabelValues().Inc()
		e.metrics.PatentsUpdated.WithLabelValues(prometheus.SourceEnrichment).Inc()
	}
	return nil
}

// Usable reports whether the first assignee carries a last name or an
// organization.
func Usable(p patentsview.Patent) bool {
	if len(p.Assignees) == 0 {
		return false
	}
	a := p.Assignees[0]
	return a.LastName != nil || a.Organization != nil
}

// Assignee derives the stored name and address from a PatentsView assignee.
// The name is "first last" when both parts are present and the organization
// otherwise. The address is the generated marker, each known city, state and
// country followed by a space, then the location id on its own line.
func Assignee(a patentsview.Assignee) (name, address string) {
	if a.FirstName != nil && a.LastName != nil {
		name = *a.FirstName + " " + *a.LastName
	} else if a.Organization != nil {
		name = *a.Organization
	}

	var b strings.Builder
	b.WriteString(GeneratedMarker)
	b.WriteString("\n")
	for _, part := range []*string{a.City, a.State, a.Country} {
		if part != nil {
			b.WriteString(*part)
			b.WriteString(" ")
		}
	}
	b.WriteString("\n")
	if a.LocationID != nil {
		b.WriteString(*a.LocationID)
	}
	return name, b.String()
}
