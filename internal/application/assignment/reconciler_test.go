package assignment

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/jeffrey-bowles/uspto/internal/domain/patent"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/bulkdata"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/monitoring/logging"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/storage/artifact"
	"github.com/jeffrey-bowles/uspto/internal/testutil"
	"github.com/jeffrey-bowles/uspto/pkg/errors"
)

// fakeSource serves archives from a map keyed by relative path.
type fakeSource struct {
	archives map[string]*bulkdata.Archive
	errs     map[string]error
	calls    []string
}

func newFakeSource() *fakeSource {
	return &fakeSource{archives: map[string]*bulkdata.Archive{}, errs: map[string]error{}}
}

func (f *fakeSource) Fetch(ctx context.Context, kind, rel string) (*bulkdata.Archive, error) {
	f.calls = append(f.calls, rel)
	if err, ok := f.errs[rel]; ok {
		return nil, err
	}
	a, ok := f.archives[rel]
	if !ok {
		return nil, errors.New(errors.ErrCodeSourceDownload, "unexpected status").WithDetail(rel)
	}
	return a, nil
}

// serve registers an archive whose entries are written to a temp dir.
func (f *fakeSource) serve(t interface{ TempDir() string }, rel, name string, files map[string]string) {
	dir := t.TempDir()
	a := &bulkdata.Archive{Name: name, Dir: dir}
	for fn, body := range files {
		p := filepath.Join(dir, fn)
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			panic(err)
		}
		a.Entries = append(a.Entries, bulkdata.Entry{Name: fn, Size: int64(len(body)), Path: p})
	}
	f.archives[rel] = a
}

type ReconcilerSuite struct {
	suite.Suite
	db     *testutil.MemoryDB
	store  *artifact.Store
	source *fakeSource
	scrape func() string
	xml    *XMLReconciler
	csv    *CSVReconciler
}

func (s *ReconcilerSuite) SetupTest() {
	s.db = testutil.NewMemoryDB()
	s.store = artifact.NewStore(testutil.NewMemoryBackend(), logging.NewNopLogger())
	s.source = newFakeSource()
	metrics, scrape := testutil.NewPipelineMetrics(s.T())
	s.scrape = scrape
	s.xml = NewXMLReconciler(s.source, "assignment/", s.db.Patents(), s.db, metrics, logging.NewNopLogger())
	s.csv = NewCSVReconciler(s.source, "assignment/economics/2019/csv.zip", s.db.Patents(), s.store, metrics, logging.NewNopLogger())
}

func TestReconcilerSuite(t *testing.T) {
	suite.Run(t, new(ReconcilerSuite))
}

func (s *ReconcilerSuite) patent(number string) patent.Patent {
	p, ok := s.db.PatentByNumber(number)
	s.Require().True(ok, number)
	return p
}

// ---------------------------------------------------------------------------
// Resolve
// ---------------------------------------------------------------------------

func (s *ReconcilerSuite) TestResolve_SingleByApplicationThenPatent() {
	byApp := s.db.Seed(patent.Patent{PatentNumber: "7000001", ApplicationNumber: "12345678"})
	byNum := s.db.Seed(patent.Patent{PatentNumber: "7000002", ApplicationNumber: "22222222"})
	ctx := context.Background()

	p, found, err := s.xml.Resolve(ctx, []string{"12345678"})
	s.Require().NoError(err)
	s.True(found)
	s.Equal(byApp, p.ID)

	p, found, err = s.xml.Resolve(ctx, []string{"07000002"})
	s.Require().NoError(err)
	s.True(found)
	s.Equal(byNum, p.ID)
}

func (s *ReconcilerSuite) TestResolve_PairBothOrders() {
	id := s.db.Seed(patent.Patent{PatentNumber: "7000001", ApplicationNumber: "12345678"})
	ctx := context.Background()

	p, found, err := s.xml.Resolve(ctx, []string{"12345678", "7000001"})
	s.Require().NoError(err)
	s.True(found)
	s.Equal(id, p.ID)

	p, found, err = s.xml.Resolve(ctx, []string{"7000001", "12345678"})
	s.Require().NoError(err)
	s.True(found)
	s.Equal(id, p.ID)
}

func (s *ReconcilerSuite) TestResolve_NotFound() {
	s.db.Seed(patent.Patent{PatentNumber: "7000001", ApplicationNumber: "12345678"})
	ctx := context.Background()

	for _, group := range [][]string{
		{"99999999"},
		{},
		{"12345678", "7000001", "1"},
		{"12345678", "7000009"},
	} {
		p, found, err := s.xml.Resolve(ctx, group)
		s.NoError(err)
		s.False(found, "%v", group)
		s.Nil(p)
	}
}

func (s *ReconcilerSuite) TestResolve_AmbiguousIsMiss() {
	s.db.Seed(patent.Patent{PatentNumber: "1", ApplicationNumber: "12345678"})
	s.db.Seed(patent.Patent{PatentNumber: "2", ApplicationNumber: "12345678"})

	_, found, err := s.xml.Resolve(context.Background(), []string{"12345678"})
	s.NoError(err)
	s.False(found)
}

// ---------------------------------------------------------------------------
// XML apply
// ---------------------------------------------------------------------------

func (s *ReconcilerSuite) TestProcessArchive_FillsEmptyCorrespondent() {
	s.db.Seed(patent.Patent{PatentNumber: "7000001", ApplicationNumber: "12345678"})
	s.db.Seed(patent.Patent{PatentNumber: "7000002", ApplicationNumber: "22222222"})
	s.source.serve(s.T(), "assignment/ad20200102.zip", "ad20200102.zip", map[string]string{"ad20200102.xml": sampleXML})

	res, err := s.xml.ProcessArchive(context.Background(), "ad20200102.zip")
	s.Require().NoError(err)

	s.Equal("ad20200102.zip", res.Archive)
	s.Equal(2, res.Assignments)
	s.Equal(3, res.Groups)
	s.Equal(1, res.Updated)
	s.Equal(1, res.Unresolved)

	p := s.patent("7000001")
	s.Equal("51234", p.ReelNum)
	s.Equal("100", p.FrameNum)
	s.Equal("SMITH & JONES LLP", p.CorrespondentName)
	s.Equal("ACME HOLDINGS", p.AssigneeName)

	// Second assignment has no correspondent name.
	s.Empty(s.patent("7000002").ReelNum)

	out := s.scrape()
	s.Contains(out, `test_pipeline_join_failures_total{source="xml"} 1`)
	s.Contains(out, `test_pipeline_archives_processed_total{status="ok"} 1`)
}

func (s *ReconcilerSuite) TestApply_Idempotent() {
	s.db.Seed(patent.Patent{PatentNumber: "7000001", ApplicationNumber: "12345678"})
	s.source.serve(s.T(), "assignment/ad20200102.zip", "ad20200102.zip", map[string]string{"ad20200102.xml": sampleXML})
	ctx := context.Background()

	_, err := s.xml.ProcessArchive(ctx, "ad20200102.zip")
	s.Require().NoError(err)
	first := s.db.AllPatents()

	res, err := s.xml.ProcessArchive(ctx, "ad20200102.zip")
	s.Require().NoError(err)
	s.Equal(0, res.Updated)
	s.Equal(first, s.db.AllPatents())
}

func (s *ReconcilerSuite) TestApply_ExistingCorrespondentKept() {
	s.db.Seed(patent.Patent{PatentNumber: "7000001", CorrespondentName: "EARLIER FIRM", ReelNum: "1"})

	res, err := s.xml.Apply(context.Background(), []XMLAssignment{{
		Assignment: patent.Assignment{ReelNum: "2", CorrespondentName: "LATER FIRM"},
		Groups:     [][]string{{"7000001"}},
	}})
	s.Require().NoError(err)
	s.Equal(0, res.Updated)
	s.Equal("EARLIER FIRM", s.patent("7000001").CorrespondentName)
	s.Equal("1", s.patent("7000001").ReelNum)
}

func (s *ReconcilerSuite) TestApply_UnresolvedGroupSkipped() {
	res, err := s.xml.Apply(context.Background(), []XMLAssignment{{
		Assignment: patent.Assignment{CorrespondentName: "X"},
		Groups:     [][]string{{"12345678"}},
	}})
	s.Require().NoError(err)
	s.Equal(1, res.Unresolved)
	s.Empty(s.db.AllPatents())
}

func (s *ReconcilerSuite) TestProcessArchive_Errors() {
	ctx := context.Background()

	_, err := s.xml.ProcessArchive(ctx, "ad20991231.zip")
	s.True(errors.IsCode(err, errors.ErrCodeSourceDownload))

	s.source.serve(s.T(), "assignment/ad20200103.zip", "ad20200103.zip", map[string]string{"readme.txt": "x"})
	_, err = s.xml.ProcessArchive(ctx, "ad20200103.zip")
	s.True(errors.IsCode(err, errors.ErrCodeSourceMissing))

	s.Contains(s.scrape(), `test_pipeline_archives_processed_total{status="error"} 2`)
}

func (s *ReconcilerSuite) TestXMLEntry_FallsBackToAnyXML() {
	s.db.Seed(patent.Patent{PatentNumber: "7000002"})
	s.source.serve(s.T(), "assignment/ad19800101-20191231-01.zip", "ad19800101-20191231-01.zip",
		map[string]string{"ad19800101-20191231-01-renamed.xml": sampleXML})

	_, err := s.xml.ProcessArchive(context.Background(), "ad19800101-20191231-01.zip")
	s.NoError(err)
}

// ---------------------------------------------------------------------------
// CSV bootstrap
// ---------------------------------------------------------------------------

func (s *ReconcilerSuite) TestCSVRun_OverwritesUnconditionally() {
	s.db.Seed(patent.Patent{PatentNumber: "7000002", CorrespondentName: "OLD", AssigneeName: "OLD"})
	s.source.serve(s.T(), "assignment/economics/2019/csv.zip", "csv.zip", map[string]string{
		"assignment.csv": assignmentCSV,
		"documentid.csv": documentCSV,
		"assignee.csv":   assigneeCSV,
	})
	ctx := context.Background()

	res, err := s.csv.Run(ctx)
	s.Require().NoError(err)
	s.Equal(2, res.Records)
	s.Equal(1, res.Applied)

	p := s.patent("7000002")
	s.Equal("SMITH & CO", p.CorrespondentName)
	s.Equal("ACME HOLDINGS", p.AssigneeName)
	s.Equal("12345", p.ReelNum)

	mapped, err := LoadMapped(ctx, s.store)
	s.Require().NoError(err)
	s.Len(mapped, 2)
}

func (s *ReconcilerSuite) TestCSVApply_MissingPatentSkipped() {
	res, err := s.csv.Apply(context.Background(), []*Record{
		{ID: "1", PatentNumber: "0999"},
		{ID: "2"},
	})
	s.Require().NoError(err)
	s.Equal(1, res.Missing)
	s.Equal(0, res.Applied)
	s.Contains(s.scrape(), `test_pipeline_join_failures_total{source="csv"} 1`)
}

func (s *ReconcilerSuite) TestCSVRun_MissingFile() {
	s.source.serve(s.T(), "assignment/economics/2019/csv.zip", "csv.zip", map[string]string{
		"assignment.csv": assignmentCSV,
	})
	_, err := s.csv.Run(context.Background())
	s.True(errors.IsCode(err, errors.ErrCodeSourceMissing))
}
