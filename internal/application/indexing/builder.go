// Package indexing precomputes, per reporting set, every sort order the read
// API offers plus the ids of patents whose milestone fee is already paid.
package indexing

import (
	"context"
	"time"

	"github.com/jeffrey-bowles/uspto/internal/domain/patent"
	"github.com/jeffrey-bowles/uspto/internal/domain/reporting"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/monitoring/logging"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/monitoring/prometheus"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/storage/artifact"
)

// Artifact schemas written by the builder.
const (
	SchemaSetIndex = "set_index"
	SchemaPaid     = "paid_ids"
	SchemaVersion  = 1
)

// SetIndex is the stored index of one reporting set.
type SetIndex struct {
	Set   reporting.SetName `json:"set"`
	From  time.Time         `json:"from"`
	To    time.Time         `json:"to"`
	Count int               `json:"count"`
	// Orders maps a sort key ("field" or "-field") to ids in that order.
	Orders map[string][]int64 `json:"orders"`
	// Numbers maps id to patent number for filtering.
	Numbers map[int64]string `json:"numbers"`
}

// PaidIndex holds, per set, the ids of patents with a qualifying payment.
type PaidIndex struct {
	Sets map[reporting.SetName][]int64 `json:"sets"`
}

// BuildSet computes the index of s from its patents.
func BuildSet(s reporting.Set, patents []*patent.Patent) SetIndex {
	idx := SetIndex{
		Set:     s.Name,
		From:    s.From,
		To:      s.To,
		Count:   len(patents),
		Orders:  make(map[string][]int64, 2*len(SortFields)),
		Numbers: make(map[int64]string, len(patents)),
	}
	for _, f := range SortFields {
		asc, desc := Orders(f, patents)
		idx.Orders[f] = asc
		idx.Orders[Descending(f)] = desc
	}
	for _, p := range patents {
		idx.Numbers[p.ID] = p.PatentNumber
	}
	return idx
}

// Result summarises an index build.
type Result struct {
	BuiltAt time.Time
	Sizes   map[reporting.SetName]int
	Paid    map[reporting.SetName]int
}

// Builder reads patents and fee events and writes the index artifacts.
type Builder struct {
	patents patent.Repository
	events  patent.FeeEventRepository
	store   *artifact.Store
	metrics *prometheus.PipelineMetrics
	logger  logging.Logger
	clock   reporting.Clock
}

// NewBuilder builds a Builder.
func NewBuilder(patents patent.Repository, events patent.FeeEventRepository, store *artifact.Store,
	clock reporting.Clock, metrics *prometheus.PipelineMetrics, logger logging.Logger) *Builder {
	return &Builder{
		patents: patents,
		events:  events,
		store:   store,
		metrics: metrics,
		logger:  logger.Named("indexing"),
		clock:   clock,
	}
}

// Build computes every set index and the paid index, and only then writes
// them. A failure while computing leaves the previous artifacts in place.
func (b *Builder) Build(ctx context.Context, sets []reporting.Set) (*Result, error) {
	start := time.Now()
	res, err := b.build(ctx, sets)
	b.metrics.ObserveStage("index", time.Since(start), err)
	if err != nil {
		b.logger.Error("index build failed", logging.Err(err))
		return nil, err
	}
	b.logger.Info("index build finished", logging.Int("sets", len(sets)), logging.Duration("elapsed", time.Since(start)))
	return res, nil
}

func (b *Builder) build(ctx context.Context, sets []reporting.Set) (*Result, error) {
	indexes := make([]SetIndex, 0, len(sets))
	paid := PaidIndex{Sets: make(map[reporting.SetName][]int64, len(sets))}
	res := &Result{
		Sizes: make(map[reporting.SetName]int, len(sets)),
		Paid:  make(map[reporting.SetName]int, len(sets)),
	}

	for _, s := range sets {
		patents, err := b.patents.ListIssuedBetween(ctx, s.From, s.To)
		if err != nil {
			return nil, err
		}
		indexes = append(indexes, BuildSet(s, patents))

		ids, err := b.events.PaidPatentIDs(ctx, s.From, s.To, s.Name.PaymentCodes())
		if err != nil {
			return nil, err
		}
		if ids == nil {
			ids = []int64{}
		}
		paid.Sets[s.Name] = ids
		res.Sizes[s.Name] = len(patents)
		res.Paid[s.Name] = len(ids)
	}

	for _, idx := range indexes {
		if err := b.store.Put(ctx, artifact.IndexKey(string(idx.Set)), SchemaSetIndex, SchemaVersion, idx); err != nil {
			return nil, err
		}
		b.metrics.IndexSize.WithLabelValues(string(idx.Set)).Set(float64(idx.Count))
	}
	if err := b.store.Put(ctx, artifact.KeyPaidIDs, SchemaPaid, SchemaVersion, paid); err != nil {
		return nil, err
	}

	res.BuiltAt = b.clock()
	if err := b.store.Put(ctx, artifact.KeyLastIndexBuild, artifact.SchemaTimestamp, SchemaVersion,
		artifact.Timestamp{At: res.BuiltAt}); err != nil {
		return nil, err
	}
	return res, nil
}

// LoadSet reads the stored index of set.
func LoadSet(ctx context.Context, store *artifact.Store, set reporting.SetName) (*SetIndex, error) {
	var idx SetIndex
	if err := store.Get(ctx, artifact.IndexKey(string(set)), SchemaSetIndex, SchemaVersion, &idx); err != nil {
		return nil, err
	}
	return &idx, nil
}

// LoadPaid reads the stored paid index.
func LoadPaid(ctx context.Context, store *artifact.Store) (*PaidIndex, error) {
	var p PaidIndex
	if err := store.Get(ctx, artifact.KeyPaidIDs, SchemaPaid, SchemaVersion, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
