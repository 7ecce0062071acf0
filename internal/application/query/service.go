package query

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/jeffrey-bowles/uspto/internal/application/indexing"
	"github.com/jeffrey-bowles/uspto/internal/config"
	"github.com/jeffrey-bowles/uspto/internal/domain/patent"
	"github.com/jeffrey-bowles/uspto/internal/domain/reporting"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/database/redis"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/monitoring/logging"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/monitoring/prometheus"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/storage/artifact"
	"github.com/jeffrey-bowles/uspto/pkg/errors"
)

const dateLayout = "2006-01-02"

// PageRequest selects one page of a reporting set.
type PageRequest struct {
	Set        reporting.SetName `json:"set"`
	StartRow   int               `json:"start_row"`
	Count      int               `json:"count"`
	SortBy     string            `json:"sort_by"`
	Descending bool              `json:"descending"`
	Unpaid     bool              `json:"unpaid"`
	Filter     string            `json:"filter"`
}

// SortKey is the index order the request reads.
func (r PageRequest) SortKey() string {
	if r.Descending {
		return indexing.Descending(r.SortBy)
	}
	return r.SortBy
}

// Validate checks the request against the served sets and sort fields.
func (r PageRequest) Validate() error {
	if _, err := reporting.ParseSet(string(r.Set)); err != nil {
		return err
	}
	if r.StartRow < 0 || r.Count < 0 {
		return errors.New(errors.ErrCodeValidation, "start_row and count must not be negative")
	}
	if !indexing.IsSortKey(r.SortBy) || strings.HasPrefix(r.SortBy, "-") {
		return errors.New(errors.ErrCodeValidation, "unknown sort field").WithDetail(r.SortBy)
	}
	return nil
}

// PatentRow is the serialized form of a patent. Blank optional columns
// encode as null.
type PatentRow struct {
	ID                   int64   `json:"id"`
	PatentNumber         string  `json:"patent_number"`
	ApplicationNumber    string  `json:"application_number"`
	EntityStatus         string  `json:"entity_status"`
	ApplicationDate      string  `json:"application_date"`
	IssueDate            string  `json:"issue_date"`
	ReelNum              *string `json:"reel_num"`
	FrameNum             *string `json:"frame_num"`
	CorrespondentName    *string `json:"correspondent_name"`
	CorrespondentAddress *string `json:"correspondent_address"`
	AssigneeName         *string `json:"pat_assignee_name"`
	AssigneeAddress      *string `json:"pat_assignee_address"`
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// RowFromPatent serializes p.
func RowFromPatent(p *patent.Patent) PatentRow {
	return PatentRow{
		ID:                   p.ID,
		PatentNumber:         p.PatentNumber,
		ApplicationNumber:    p.ApplicationNumber,
		EntityStatus:         p.EntityStatus,
		ApplicationDate:      p.ApplicationDate.Format(dateLayout),
		IssueDate:            p.IssueDate.Format(dateLayout),
		ReelNum:              nullable(p.ReelNum),
		FrameNum:             nullable(p.FrameNum),
		CorrespondentName:    nullable(p.CorrespondentName),
		CorrespondentAddress: nullable(p.CorrespondentAddress),
		AssigneeName:         nullable(p.AssigneeName),
		AssigneeAddress:      nullable(p.AssigneeAddress),
	}
}

// Page is one page of patents plus the total the client paginates over.
type Page struct {
	Patents []PatentRow `json:"patents"`
	Count   int         `json:"count"`
}

// EventRow is [maintenance date, code, description].
type EventRow [3]string

// Options tunes the caches in front of the repository.
type Options struct {
	RowCacheSize int
	RowCacheTTL  time.Duration
	PageTTL      time.Duration
}

// OptionsFrom maps the cache section of the configuration.
func OptionsFrom(cfg config.CacheConfig) Options {
	return Options{
		RowCacheSize: cfg.RowCacheSize,
		RowCacheTTL:  cfg.RowCacheTTL,
		PageTTL:      cfg.PageTTL,
	}
}

// Service answers page and fee event queries against the current State.
type Service struct {
	state   atomic.Pointer[State]
	store   *artifact.Store
	patents patent.Repository
	events  patent.FeeEventRepository
	rows    *expirable.LRU[int64, PatentRow]
	pages   redis.Cache
	pageTTL time.Duration
	metrics *prometheus.HTTPMetrics
	logger  logging.Logger
}

// NewService builds a Service. pages may be nil to disable the shared page
// cache. No state is served until Reload or Swap is called.
func NewService(store *artifact.Store, patents patent.Repository, events patent.FeeEventRepository,
	pages redis.Cache, opts Options, metrics *prometheus.HTTPMetrics, logger logging.Logger) *Service {
	if opts.RowCacheSize <= 0 {
		opts.RowCacheSize = 10000
	}
	return &Service{
		store:   store,
		patents: patents,
		events:  events,
		rows:    expirable.NewLRU[int64, PatentRow](opts.RowCacheSize, nil, opts.RowCacheTTL),
		pages:   pages,
		pageTTL: opts.PageTTL,
		metrics: metrics,
		logger:  logger.Named("query"),
	}
}

// Reload reads the artifacts and swaps the served state. The new state is
// swapped in even when some sets failed to load; those are served empty.
func (s *Service) Reload(ctx context.Context) error {
	st, err := LoadState(ctx, s.store, s.logger)
	s.Swap(st)
	s.metrics.RecordReload(err)
	if err != nil {
		s.logger.Warn("state reloaded with missing artifacts",
			logging.String("version", st.Version), logging.Int("failed_sets", len(st.Failed())), logging.Err(err))
		return err
	}
	s.logger.Info("state reloaded", logging.String("version", st.Version))
	return nil
}

// Swap installs st and drops cached rows, which may predate the build.
func (s *Service) Swap(st *State) {
	s.state.Store(st)
	s.rows.Purge()
}

// State returns the served state, or nil before the first load.
func (s *Service) State() *State {
	return s.state.Load()
}

// Ready reports whether a state has been loaded.
func (s *Service) Ready() bool {
	return s.state.Load() != nil
}

func (s *Service) current() (*State, error) {
	st := s.state.Load()
	if st == nil {
		return nil, errors.New(errors.ErrCodeServiceUnavailable, "index state not loaded")
	}
	return st, nil
}

// Patents returns the requested page. With a filter the count is the number
// of filtered matches; without one it is the set size less paid patents when
// unpaid is set.
func (s *Service) Patents(ctx context.Context, req PageRequest) (*Page, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	st, err := s.current()
	if err != nil {
		return nil, err
	}
	if s.pages == nil {
		return s.page(ctx, st, req)
	}

	var (
		page   Page
		loaded bool
	)
	err = s.pages.GetOrSet(ctx, pageKey(st.Version, req), &page, s.pageTTL, func(ctx context.Context) (interface{}, error) {
		loaded = true
		return s.page(ctx, st, req)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordCache("page", !loaded)
	return &page, nil
}

func (s *Service) page(ctx context.Context, st *State, req PageRequest) (*Page, error) {
	ids, count := Select(st, req)
	rows, err := s.loadRows(ctx, ids)
	if err != nil {
		return nil, err
	}
	return &Page{Patents: rows, Count: count}, nil
}

// Select returns the ids of the requested page, in order, and the total
// count reported with it.
func Select(st *State, req PageRequest) ([]int64, int) {
	idx := st.Set(req.Set)
	var paid map[int64]struct{}
	if req.Unpaid {
		paid = st.Paid(req.Set)
	}
	order := idx.Orders[req.SortKey()]

	keep := make([]int64, 0, len(order))
	for _, id := range order {
		if _, skip := paid[id]; skip {
			continue
		}
		if req.Filter != "" && !strings.Contains(idx.Numbers[id], req.Filter) {
			continue
		}
		keep = append(keep, id)
	}

	count := idx.Count
	switch {
	case req.Filter != "":
		count = len(keep)
	case req.Unpaid:
		count = idx.Count - len(paid)
		if count < 0 {
			count = 0
		}
	}
	return window(keep, req.StartRow, req.Count), count
}

func window(ids []int64, start, n int) []int64 {
	if start >= len(ids) {
		return nil
	}
	if n > len(ids)-start {
		n = len(ids) - start
	}
	return ids[start : start+n]
}

// loadRows returns rows for ids in order. Ids no longer in the store are
// dropped.
func (s *Service) loadRows(ctx context.Context, ids []int64) ([]PatentRow, error) {
	found := make(map[int64]PatentRow, len(ids))
	var missing []int64
	for _, id := range ids {
		if row, ok := s.rows.Get(id); ok {
			found[id] = row
			continue
		}
		missing = append(missing, id)
	}
	s.metrics.RecordCache("row", len(missing) == 0)

	if len(missing) > 0 {
		patents, err := s.patents.FindByIDs(ctx, missing)
		if err != nil {
			return nil, err
		}
		for _, p := range patents {
			row := RowFromPatent(p)
			s.rows.Add(p.ID, row)
			found[p.ID] = row
		}
	}

	rows := make([]PatentRow, 0, len(ids))
	for _, id := range ids {
		if row, ok := found[id]; ok {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// FeeEvents lists the events of one patent with their code descriptions.
// Unknown codes get an empty description.
func (s *Service) FeeEvents(ctx context.Context, patentID int64) ([]EventRow, error) {
	st, err := s.current()
	if err != nil {
		return nil, err
	}
	events, err := s.events.ListByPatent(ctx, patentID)
	if err != nil {
		return nil, err
	}
	out := make([]EventRow, 0, len(events))
	for _, e := range events {
		out = append(out, EventRow{
			e.MaintenanceDate.Format(dateLayout),
			e.MaintenanceCode,
			st.Codes.Describe(e.MaintenanceCode),
		})
	}
	return out, nil
}

func pageKey(version string, req PageRequest) string {
	b, _ := json.Marshal(req)
	hash := sha256.Sum256(b)
	return "page:" + version + ":" + hex.EncodeToString(hash[:])
}
