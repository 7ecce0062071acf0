package assignment

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeffrey-bowles/uspto/internal/domain/patent"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/bulkdata"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/monitoring/logging"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/monitoring/prometheus"
	"github.com/jeffrey-bowles/uspto/pkg/errors"
)

// XMLResult summarises one archive.
type XMLResult struct {
	Archive     string
	Assignments int
	Groups      int
	Unresolved  int
	Updated     int
}

// XMLReconciler applies assignment XML archives. It only fills patents that
// have no correspondent yet, so reapplying an archive changes nothing.
type XMLReconciler struct {
	source  Source
	prefix  string
	patents patent.Repository
	tx      patent.Transactor
	metrics *prometheus.PipelineMetrics
	logger  logging.Logger
}

// NewXMLReconciler builds an XMLReconciler fetching archives under prefix.
func NewXMLReconciler(source Source, prefix string, patents patent.Repository, tx patent.Transactor,
	metrics *prometheus.PipelineMetrics, logger logging.Logger) *XMLReconciler {
	return &XMLReconciler{
		source:  source,
		prefix:  prefix,
		patents: patents,
		tx:      tx,
		metrics: metrics,
		logger:  logger.Named("assignment.xml"),
	}
}

// ProcessArchive fetches the named archive and applies every assignment in
// it within one transaction.
func (r *XMLReconciler) ProcessArchive(ctx context.Context, name string) (*XMLResult, error) {
	start := time.Now()
	res, err := r.process(ctx, name)
	r.metrics.ObserveArchive(time.Since(start), err)
	if err != nil {
		return nil, err
	}
	r.logger.Info("assignment archive applied",
		logging.String("archive", name),
		logging.Int("assignments", res.Assignments),
		logging.Int("updated", res.Updated),
		logging.Int("unresolved", res.Unresolved),
		logging.Duration("elapsed", time.Since(start)))
	return res, nil
}

func (r *XMLReconciler) process(ctx context.Context, name string) (*XMLResult, error) {
	archive, err := r.source.Fetch(ctx, bulkdata.KindAssignments, r.prefix+name)
	if err != nil {
		return nil, err
	}
	entry, err := xmlEntry(archive)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(entry.Path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSourceMissing, "open assignment xml").WithDetail(entry.Path)
	}
	defer f.Close()

	assignments, err := DecodeAssignments(f)
	if err != nil {
		return nil, err
	}
	res, err := r.Apply(ctx, assignments)
	if err != nil {
		return nil, err
	}
	res.Archive = name
	return res, nil
}

// xmlEntry picks <archive stem>.xml, falling back to the largest .xml entry.
func xmlEntry(a *bulkdata.Archive) (bulkdata.Entry, error) {
	if e, ok := a.Find(strings.TrimSuffix(a.Name, filepath.Ext(a.Name)) + ".xml"); ok {
		return e, nil
	}
	for i := len(a.Entries) - 1; i >= 0; i-- {
		if strings.EqualFold(filepath.Ext(a.Entries[i].Name), ".xml") {
			return a.Entries[i], nil
		}
	}
	return bulkdata.Entry{}, errors.New(errors.ErrCodeSourceMissing, "archive holds no xml").WithDetail(a.Name)
}

// Apply resolves each doc-number group of each assignment and fills the
// matching patent when it has no correspondent and the assignment names one.
func (r *XMLReconciler) Apply(ctx context.Context, assignments []XMLAssignment) (*XMLResult, error) {
	res := &XMLResult{Assignments: len(assignments)}
	err := r.tx.WithinTx(ctx, func(ctx context.Context) error {
		for _, a := range assignments {
			for _, group := range a.Groups {
				res.Groups++
				p, found, err := r.Resolve(ctx, group)
				if err != nil {
					return err
				}
				if !found {
					res.Unresolved++
					continue
				}
				if a.Assignment.CorrespondentName == "" || p.HasCorrespondent() {
					continue
				}
				if err := r.patents.UpdateAssignment(ctx, p.ID, a.Assignment); err != nil {
					return err
				}
				res.Updated++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.metrics.RecordsProcessed.WithLabelValues(prometheus.SourceXML).Add(float64(res.Assignments))
	r.metrics.PatentsUpdated.WithLabelValues(prometheus.SourceXML).Add(float64(res.Updated))
	r.metrics.JoinFailures.WithLabelValues(prometheus.SourceXML).Add(float64(res.Unresolved))
	return res, nil
}

// Resolve finds the patent a doc-number group refers to.
//
// A single number is tried as an application number, then as a patent
// number. A pair is tried as (application, patent) in both orders. Any other
// group size resolves to nothing.
func (r *XMLReconciler) Resolve(ctx context.Context, group []string) (*patent.Patent, bool, error) {
	var attempts []patent.Lookup
	switch len(group) {
	case 1:
		attempts = []patent.Lookup{
			{ApplicationNumber: group[0]},
			{PatentNumber: patent.NormalizePatentNumber(group[0])},
		}
	case 2:
		attempts = []patent.Lookup{
			{ApplicationNumber: group[0], PatentNumber: patent.NormalizePatentNumber(group[1])},
			{ApplicationNumber: group[1], PatentNumber: patent.NormalizePatentNumber(group[0])},
		}
	}
	for _, l := range attempts {
		if l.ApplicationNumber == "" && l.PatentNumber == "" {
			continue
		}
		p, err := r.patents.FindOne(ctx, l)
		if err == nil {
			return p, true, nil
		}
		if !patent.IsMiss(err) {
			return nil, false, err
		}
	}
	if len(group) > 0 {
		r.logger.Debug("assignment group unresolved", logging.Strings("doc_numbers", group),
			logging.String("code", string(errors.ErrCodeJoinUnresolved)))
	}
	return nil, false, nil
}
