package fees

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/jeffrey-bowles/uspto/internal/domain/patent"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/bulkdata"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/monitoring/logging"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/storage/artifact"
	"github.com/jeffrey-bowles/uspto/internal/testutil"
	"github.com/jeffrey-bowles/uspto/pkg/errors"
)

type fakeSource struct {
	archive *bulkdata.Archive
	err     error
	kind    string
	rel     string
}

func (f *fakeSource) Fetch(ctx context.Context, kind, rel string) (*bulkdata.Archive, error) {
	f.kind, f.rel = kind, rel
	return f.archive, f.err
}

type ReconcilerSuite struct {
	suite.Suite
	db      *testutil.MemoryDB
	backend *testutil.MemoryBackend
	store   *artifact.Store
	source  *fakeSource
	scrape  func() string
	rec     *Reconciler
}

func (s *ReconcilerSuite) SetupTest() {
	s.db = testutil.NewMemoryDB()
	s.backend = testutil.NewMemoryBackend()
	s.store = artifact.NewStore(s.backend, logging.NewNopLogger())
	s.source = &fakeSource{}
	metrics, scrape := testutil.NewPipelineMetrics(s.T())
	s.scrape = scrape
	s.rec = NewReconciler(Deps{
		Source:      s.source,
		ArchivePath: "maintenancefee/MaintFeeEvents.zip",
		Patents:     s.db.Patents(),
		Events:      s.db.FeeEvents(),
		Tx:          s.db,
		Store:       s.store,
		Metrics:     metrics,
		Logger:      logging.NewNopLogger(),
	})
}

func TestReconcilerSuite(t *testing.T) {
	suite.Run(t, new(ReconcilerSuite))
}

func (s *ReconcilerSuite) apply(lines ...string) *Result {
	res, err := s.rec.Apply(context.Background(), lines, CodeTable{"M1551": "Payment of Maintenance Fee, 4th Year, Large Entity"})
	s.Require().NoError(err)
	return res
}

func (s *ReconcilerSuite) TestBootstrap_SingleLine() {
	res := s.apply("0123456 87654321 1 20100101 20150101 20160101 M155H")

	s.True(res.Bootstrap)
	s.Equal(1, res.PatentsCreated)
	s.Equal(1, res.EventsCreated)

	p, ok := s.db.PatentByNumber("123456")
	s.Require().True(ok)
	s.Equal("87654321", p.ApplicationNumber)
	s.Equal("1", p.EntityStatus)
	s.Equal(testutil.Day("2010-01-01"), p.ApplicationDate)
	s.Equal(testutil.Day("2015-01-01"), p.IssueDate)

	events := s.db.AllEvents()
	s.Require().Len(events, 1)
	s.Equal(p.ID, events[0].PatentID)
	s.Equal(testutil.Day("2016-01-01"), events[0].MaintenanceDate)
	s.Equal("M155H", events[0].MaintenanceCode)
}

func (s *ReconcilerSuite) TestBootstrap_GroupsByPatentAndDefaults() {
	res := s.apply(
		"5000001 11111111 N 20000101 20020101 20060101 M1551",
		"5000001 11111111 Y 20000101 20020101",
		"5000002 59000001 N 20000101 20020101 20060101 M1551",
		"05000003 22222222 N 20010101 20030101",
	)

	s.Equal(2, res.PatentsCreated)
	s.Equal(3, res.EventsCreated)
	s.Equal(1, res.Discarded)

	first, ok := s.db.PatentByNumber("5000001")
	s.Require().True(ok)
	s.Equal("N", first.EntityStatus, "first line defines the patent row")
	_, ok = s.db.PatentByNumber("5000002")
	s.False(ok)

	third, ok := s.db.PatentByNumber("5000003")
	s.Require().True(ok)
	evs, err := s.db.FeeEvents().ListByPatent(context.Background(), third.ID)
	s.Require().NoError(err)
	s.Require().Len(evs, 1)
	s.Equal(testutil.Day("2003-01-01"), evs[0].MaintenanceDate)
	s.Equal(patent.NoMaintenanceCode, evs[0].MaintenanceCode)
}

func (s *ReconcilerSuite) TestIncremental_AppliesOnlyNewLines() {
	a := "6000001 33333333 N 20000101 20020101 20060101 M1551"
	b := "6000002 44444444 N 20000101 20020101 20060101 M1551"
	s.apply(a, b)
	s.Require().Len(s.db.AllEvents(), 2)

	c := "6000001 33333333 Y 20000101 20020101 20100101 M2552"
	d := "6000009 55555555 N 20000101 20020101"
	res := s.apply(b, a, c, d)

	s.False(res.Bootstrap)
	s.Equal(2, res.NewLines)
	s.Equal(1, res.PatentsUpdated)
	s.Equal(1, res.PatentsCreated)
	s.Equal(2, res.EventsCreated)
	s.Len(s.db.AllEvents(), 4)
	s.Len(s.db.AllPatents(), 3)

	p, _ := s.db.PatentByNumber("6000001")
	s.Equal("Y", p.EntityStatus)
}

func (s *ReconcilerSuite) TestIncremental_ExistingEventNotDuplicated() {
	a := "7000001 66666666 N 20000101 20020101 20060101 M1551"
	s.apply(a)
	// Same event reappearing with different spacing is a new line but not a new event.
	res := s.apply(a, "7000001  66666666 N 20000101 20020101 20060101 M1551")

	s.Equal(1, res.NewLines)
	s.Equal(0, res.EventsCreated)
	s.Len(s.db.AllEvents(), 1)
}

func (s *ReconcilerSuite) TestMalformedDateIsFatal() {
	s.apply("8000001 77777777 N 20000101 20020101 20060101 M1551")
	before, err := s.backend.Read(context.Background(), artifact.KeyFeeSnapshot)
	s.Require().NoError(err)

	_, err = s.rec.Apply(context.Background(), []string{
		"8000002 88888888 N 20000101 20020101 20060101 M1551",
		"8000003 99999999 N 2000011 20020101",
	}, CodeTable{})

	s.True(errors.IsCode(err, errors.ErrCodeParseFeeLine))
	s.Len(s.db.AllPatents(), 1)
	after, err := s.backend.Read(context.Background(), artifact.KeyFeeSnapshot)
	s.Require().NoError(err)
	s.Equal(before, after)
	s.Contains(s.scrape(), `test_pipeline_stage_runs_total{stage="fees",status="error"} 1`)
}

func (s *ReconcilerSuite) TestCodeTableWriteFailureKeepsSnapshot() {
	a := "9000001 12121212 N 20000101 20020101 20060101 M1551"
	b := "9000002 13131314 N 20000101 20020101 20060101 M1551"
	s.apply(a)
	before, err := s.backend.Read(context.Background(), artifact.KeyFeeSnapshot)
	s.Require().NoError(err)

	s.backend.FailWrites[artifact.KeyFeeCodes] = errors.New(errors.ErrCodeArtifactWriteFailed, "disk full")
	_, err = s.rec.Apply(context.Background(), []string{a, b}, CodeTable{})
	s.True(errors.IsCode(err, errors.ErrCodeArtifactWriteFailed))

	after, err := s.backend.Read(context.Background(), artifact.KeyFeeSnapshot)
	s.Require().NoError(err)
	s.Equal(before, after)

	delete(s.backend.FailWrites, artifact.KeyFeeCodes)
	res := s.apply(a, b)
	s.False(res.Bootstrap)
	s.Equal(1, res.NewLines)
	s.Equal(0, res.PatentsCreated)
	s.Equal(0, res.EventsCreated)
	s.Len(s.db.AllPatents(), 2)
	s.Len(s.db.AllEvents(), 2)
}

func (s *ReconcilerSuite) TestBootstrapRetriedAfterSnapshotWriteFailure() {
	a := "9100001 21212121 N 20000101 20020101 20060101 M1551"
	b := "9100001 21212121 N 20000101 20020101 20100101 M2552"
	s.backend.FailWrites[artifact.KeyFeeSnapshot] = errors.New(errors.ErrCodeArtifactWriteFailed, "disk full")

	_, err := s.rec.Apply(context.Background(), []string{a}, CodeTable{})
	s.True(errors.IsCode(err, errors.ErrCodeArtifactWriteFailed))
	exists, err := s.backend.Exists(context.Background(), artifact.KeyFeeSnapshot)
	s.Require().NoError(err)
	s.False(exists)

	delete(s.backend.FailWrites, artifact.KeyFeeSnapshot)
	res := s.apply(a, b)
	s.True(res.Bootstrap)
	s.Equal(0, res.PatentsCreated)
	s.Equal(1, res.EventsCreated)
	s.Len(s.db.AllPatents(), 1)
	s.Len(s.db.AllEvents(), 2)
}

func (s *ReconcilerSuite) TestBootstrap_RepeatedLineCountsOnce() {
	a := "9200001 31313131 N 20000101 20020101 20060101 M1551"

	res := s.apply(a, a, "9200001  31313131 N 20000101 20020101 20060101 M1551")

	s.Equal(2, res.Lines)
	s.Equal(1, res.PatentsCreated)
	s.Equal(1, res.EventsCreated)
	s.Len(s.db.AllEvents(), 1)
}

func (s *ReconcilerSuite) TestMetrics() {
	s.apply("4000001 13131313 N 20000101 20020101 20060101 M1551")

	out := s.scrape()
	s.Contains(out, `test_pipeline_records_processed_total{source="fees"} 1`)
	s.Contains(out, `test_pipeline_patents_created_total{source="fees"} 1`)
	s.Contains(out, "test_pipeline_fee_events_created_total 1")
}

func (s *ReconcilerSuite) TestRun_ReadsArchiveEntries() {
	dir := s.T().TempDir()
	feed := filepath.Join(dir, "MaintFeeEvents_20240101.txt")
	desc := filepath.Join(dir, "MaintFeeEventsFileDescription.txt")
	s.Require().NoError(os.WriteFile(feed, []byte("4287053 06218378 N 19800327 19810901 19841227 M170\n\n"), 0o644))
	s.Require().NoError(os.WriteFile(desc, []byte("M170 Payment of Maintenance Fee, 4th Year, PL 96-517.\n\n"), 0o644))
	s.source.archive = &bulkdata.Archive{Name: "MaintFeeEvents.zip", Entries: []bulkdata.Entry{
		{Name: "MaintFeeEventsFileDescription.txt", Size: 10, Path: desc},
		{Name: "MaintFeeEvents_20240101.txt", Size: 100, Path: feed},
	}}

	res, err := s.rec.Run(context.Background())
	s.Require().NoError(err)

	s.Equal(bulkdata.KindFees, s.source.kind)
	s.Equal("maintenancefee/MaintFeeEvents.zip", s.source.rel)
	s.Equal(1, res.Lines)
	codes, err := LoadCodes(context.Background(), s.store)
	s.Require().NoError(err)
	s.Equal("Payment of Maintenance Fee, 4th Year, PL 96-517.", codes.Describe("M170"))
}

func (s *ReconcilerSuite) TestRun_FetchErrorPropagates() {
	s.source.err = errors.New(errors.ErrCodeSourceDownload, "unexpected status")

	_, err := s.rec.Run(context.Background())
	s.True(errors.IsCode(err, errors.ErrCodeSourceDownload))
	s.Empty(s.backend.Keys())
}

func TestParseLine(t *testing.T) {
	line, keep, err := ParseLine("0123456 87654321 1 20100101 20150101 20160101 M155H")
	require.NoError(t, err)
	assert.True(t, keep)
	assert.Equal(t, "123456", line.PatentNumber)
	assert.Equal(t, "M155H", line.MaintenanceCode)

	_, keep, err = ParseLine("1 59123456 N 20100101 20150101")
	require.NoError(t, err)
	assert.False(t, keep)

	_, _, err = ParseLine("1 2 3 4")
	assert.True(t, errors.IsCode(err, errors.ErrCodeParseFeeLine))

	_, _, err = ParseLine("1 2 N 2010010a 20150101")
	assert.True(t, errors.IsCode(err, errors.ErrCodeParseFeeLine))
}

func TestParseCodes(t *testing.T) {
	table, err := ParseCodes(strings.NewReader("M1551 Payment of Maintenance Fee, 4th Year, Large Entity.\n\nEXP.   Patent Expired for Failure to Pay Maintenance Fees.\nORPHAN\n"))
	require.NoError(t, err)
	assert.Len(t, table, 2)
	assert.Equal(t, "Patent Expired for Failure to Pay Maintenance Fees.", table.Describe("EXP."))
	assert.Equal(t, "", table.Describe("M9999"))
}

func TestLoadCodes_MissingIsEmpty(t *testing.T) {
	store := artifact.NewStore(testutil.NewMemoryBackend(), logging.NewNopLogger())
	codes, err := LoadCodes(context.Background(), store)
	require.NoError(t, err)
	assert.Empty(t, codes)
}

func TestDifference(t *testing.T) {
	assert.Equal(t, []string{"c", "d"}, difference([]string{"a", "c", "b", "d", "c"}, []string{"b", "a"}))
	assert.Nil(t, difference([]string{"a"}, []string{"a"}))
}
