// Package query serves the read API from the precomputed set indexes. The
// served State is immutable and replaced as a whole on reload.
package query

import (
	"context"
	"strconv"
	"time"

	"github.com/jeffrey-bowles/uspto/internal/application/fees"
	"github.com/jeffrey-bowles/uspto/internal/application/indexing"
	"github.com/jeffrey-bowles/uspto/internal/domain/reporting"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/monitoring/logging"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/storage/artifact"
	"github.com/jeffrey-bowles/uspto/pkg/errors"
)

// State is one loaded generation of the index artifacts.
type State struct {
	// Version identifies the index build the state was loaded from. Page
	// cache keys include it so a reload never serves stale pages.
	Version  string
	LoadedAt time.Time
	Codes    fees.CodeTable

	sets map[reporting.SetName]*indexing.SetIndex
	paid map[reporting.SetName]map[int64]struct{}
	// failed lists sets served empty because their index could not be read.
	failed []reporting.SetName
}

func emptyIndex(name reporting.SetName) *indexing.SetIndex {
	return &indexing.SetIndex{
		Set:     name,
		Orders:  map[string][]int64{},
		Numbers: map[int64]string{},
	}
}

// NewState assembles a State from already loaded indexes. Missing sets are
// served empty.
func NewState(version string, sets map[reporting.SetName]*indexing.SetIndex, paid *indexing.PaidIndex, codes fees.CodeTable) *State {
	st := &State{
		Version:  version,
		LoadedAt: time.Now(),
		Codes:    codes,
		sets:     make(map[reporting.SetName]*indexing.SetIndex, len(reporting.OrderedSets)),
		paid:     make(map[reporting.SetName]map[int64]struct{}, len(reporting.OrderedSets)),
	}
	if st.Codes == nil {
		st.Codes = fees.CodeTable{}
	}
	for _, name := range reporting.OrderedSets {
		if idx, ok := sets[name]; ok && idx != nil {
			st.sets[name] = idx
		} else {
			st.sets[name] = emptyIndex(name)
		}
		ids := make(map[int64]struct{})
		if paid != nil {
			for _, id := range paid.Sets[name] {
				ids[id] = struct{}{}
			}
		}
		st.paid[name] = ids
	}
	return st
}

// Set returns the index of name. It is never nil.
func (s *State) Set(name reporting.SetName) *indexing.SetIndex {
	if idx, ok := s.sets[name]; ok {
		return idx
	}
	return emptyIndex(name)
}

// Paid returns the ids of patents in name whose milestone fee is paid.
func (s *State) Paid(name reporting.SetName) map[int64]struct{} {
	return s.paid[name]
}

// Failed lists the sets that could not be loaded.
func (s *State) Failed() []reporting.SetName {
	return s.failed
}

// LoadState reads every set index, the paid index and the fee code table.
// A set whose index cannot be read is served empty and reported in the
// returned error; the State is usable either way.
func LoadState(ctx context.Context, store *artifact.Store, logger logging.Logger) (*State, error) {
	var firstErr error
	note := func(err error) {
		if firstErr == nil {
			firstErr = err
		}
	}

	sets := make(map[reporting.SetName]*indexing.SetIndex, len(reporting.OrderedSets))
	var failed []reporting.SetName
	for _, name := range reporting.OrderedSets {
		idx, err := indexing.LoadSet(ctx, store, name)
		if err != nil {
			logger.Warn("set index unavailable, serving empty set",
				logging.String("set", string(name)), logging.Err(err))
			failed = append(failed, name)
			note(err)
			continue
		}
		sets[name] = idx
	}

	paid, err := indexing.LoadPaid(ctx, store)
	if err != nil {
		logger.Warn("paid index unavailable", logging.Err(err))
		note(err)
		paid = nil
	}

	codes, err := fees.LoadCodes(ctx, store)
	if err != nil {
		logger.Warn("fee code table unavailable", logging.Err(err))
		note(err)
		codes = nil
	}

	st := NewState(version(ctx, store), sets, paid, codes)
	st.failed = failed
	return st, firstErr
}

func version(ctx context.Context, store *artifact.Store) string {
	var ts artifact.Timestamp
	if err := store.Get(ctx, artifact.KeyLastIndexBuild, artifact.SchemaTimestamp, indexing.SchemaVersion, &ts); err != nil {
		if !errors.IsCode(err, errors.ErrCodeArtifactNotFound) {
			return "unversioned-" + strconv.FormatInt(time.Now().UnixNano(), 10)
		}
		return "empty"
	}
	return strconv.FormatInt(ts.At.UnixNano(), 10)
}
