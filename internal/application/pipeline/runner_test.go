package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/jeffrey-bowles/uspto/internal/application/assignment"
	"github.com/jeffrey-bowles/uspto/internal/application/enrichment"
	"github.com/jeffrey-bowles/uspto/internal/application/fees"
	"github.com/jeffrey-bowles/uspto/internal/application/indexing"
	"github.com/jeffrey-bowles/uspto/internal/config"
	"github.com/jeffrey-bowles/uspto/internal/domain/patent"
	"github.com/jeffrey-bowles/uspto/internal/domain/reporting"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/database/redis"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/messaging/kafka"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/monitoring/logging"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/storage/artifact"
	"github.com/jeffrey-bowles/uspto/internal/testutil"
	"github.com/jeffrey-bowles/uspto/pkg/errors"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type stageLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *stageLog) add(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, s)
}

func (l *stageLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type mockFees struct {
	log   *stageLog
	runFn func(ctx context.Context) (*fees.Result, error)
}

func (m *mockFees) Run(ctx context.Context) (*fees.Result, error) {
	m.log.add("fees")
	if m.runFn != nil {
		return m.runFn(ctx)
	}
	return &fees.Result{Lines: 1}, nil
}

type mockCSV struct{ log *stageLog }

func (m *mockCSV) Run(ctx context.Context) (*assignment.CSVResult, error) {
	m.log.add("csv")
	return &assignment.CSVResult{Records: 3, Applied: 2, Missing: 1}, nil
}

type mockArchives struct {
	log       *stageLog
	processFn func(ctx context.Context, name string) (*assignment.XMLResult, error)
}

func (m *mockArchives) ProcessArchive(ctx context.Context, name string) (*assignment.XMLResult, error) {
	m.log.add("archive:" + name)
	if m.processFn != nil {
		return m.processFn(ctx, name)
	}
	return &assignment.XMLResult{Archive: name}, nil
}

type mockSync struct{ log *stageLog }

func (m *mockSync) Run(ctx context.Context) (*assignment.LoopResult, error) {
	m.log.add("sync")
	return &assignment.LoopResult{Targets: 2, Processed: []string{"ad20240101.zip"}}, nil
}

type mockEnricher struct{ log *stageLog }

func (m *mockEnricher) Run(ctx context.Context, sets []reporting.Set) (*enrichment.Result, error) {
	m.log.add("enrich")
	return &enrichment.Result{SubWindows: len(sets)}, nil
}

type mockIndexer struct {
	log  *stageLog
	sets []reporting.Set
}

func (m *mockIndexer) Build(ctx context.Context, sets []reporting.Set) (*indexing.Result, error) {
	m.log.add("index")
	m.sets = sets
	return &indexing.Result{
		BuiltAt: time.Now(),
		Sizes:   map[reporting.SetName]int{reporting.FourYear: 7},
	}, nil
}

type publishedEvent struct {
	topic, eventType string
	payload          interface{}
}

type mockPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (m *mockPublisher) PublishEvent(ctx context.Context, topic, eventType string, payload interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, publishedEvent{topic, eventType, payload})
	return nil
}

// ---------------------------------------------------------------------------
// Suite
// ---------------------------------------------------------------------------

type RunnerSuite struct {
	suite.Suite
	ctx       context.Context
	log       *stageLog
	db        *testutil.MemoryDB
	store     *artifact.Store
	fees      *mockFees
	archives  *mockArchives
	indexer   *mockIndexer
	publisher *mockPublisher
	scrape    func() string
	now       time.Time
	deps      Deps
	runner    *Runner
}

func TestRunnerSuite(t *testing.T) {
	suite.Run(t, new(RunnerSuite))
}

func (s *RunnerSuite) SetupTest() {
	s.ctx = context.Background()
	s.log = &stageLog{}
	s.db = testutil.NewMemoryDB()
	s.store = artifact.NewStore(testutil.NewMemoryBackend(), logging.NewNopLogger())
	s.fees = &mockFees{log: s.log}
	s.archives = &mockArchives{log: s.log}
	s.indexer = &mockIndexer{log: s.log}
	s.publisher = &mockPublisher{}
	s.now = testutil.Day("2024-06-15").Add(time.Hour)
	metrics, scrape := testutil.NewPipelineMetrics(s.T())
	s.scrape = scrape

	s.deps = Deps{
		Fees:       s.fees,
		CSV:        &mockCSV{log: s.log},
		Archives:   s.archives,
		Sync:       &mockSync{log: s.log},
		Enricher:   &mockEnricher{log: s.log},
		Indexer:    s.indexer,
		Patents:    s.db.Patents(),
		Store:      s.store,
		Publisher:  s.publisher,
		IndexTopic: "test.index",
		Clock:      func() time.Time { return s.now },
		Metrics:    metrics,
		Logger:     logging.NewNopLogger(),
	}
	s.runner = NewRunner(s.deps)
}

func (s *RunnerSuite) stamped(key string) time.Time {
	var ts artifact.Timestamp
	s.Require().NoError(s.store.Get(s.ctx, key, artifact.SchemaTimestamp, indexing.SchemaVersion, &ts))
	return ts.At
}

func (s *RunnerSuite) TestCycle_Order() {
	rep, err := s.runner.Cycle(s.ctx)
	s.Require().NoError(err)

	s.Equal([]string{"fees", "enrich", "index"}, s.log.all())
	s.Equal(JobCycle, rep.Job)
	s.NotEmpty(rep.RunID)
	s.NotNil(rep.Fees)
	s.NotNil(rep.Enrichment)
	s.True(rep.Published)
	s.True(s.now.Equal(s.stamped(artifact.KeyLastFeeUpdate)))
	s.Len(s.indexer.sets, len(reporting.OrderedSets))

	s.Require().Len(s.publisher.events, 1)
	ev := s.publisher.events[0]
	s.Equal("test.index", ev.topic)
	s.Equal(kafka.EventIndexRebuilt, ev.eventType)
	payload, ok := ev.payload.(kafka.IndexRebuiltPayload)
	s.Require().True(ok)
	s.Equal(rep.RunID, payload.RunID)
	s.Equal(7, payload.Sets["four_year"])

	s.Contains(s.scrape(), `test_pipeline_stage_runs_total{stage="cycle",status="ok"} 1`)
}

func (s *RunnerSuite) TestCycle_FeeFailureStops() {
	s.fees.runFn = func(ctx context.Context) (*fees.Result, error) {
		return nil, errors.New(errors.ErrCodeParseFeeLine, "bad date")
	}
	_, err := s.runner.Cycle(s.ctx)
	s.True(errors.IsCode(err, errors.ErrCodeParseFeeLine))
	s.Equal([]string{"fees"}, s.log.all())
	s.Empty(s.publisher.events)

	ok, err := s.store.Exists(s.ctx, artifact.KeyLastFeeUpdate)
	s.Require().NoError(err)
	s.False(ok)
	s.Contains(s.scrape(), `test_pipeline_stage_runs_total{stage="cycle",status="error"} 1`)
}

func (s *RunnerSuite) TestPublishFailureDoesNotFailBuild() {
	s.publisher.err = errors.New(errors.ErrCodeMessagingError, "broker down")
	rep, err := s.runner.BuildIndex(s.ctx)
	s.Require().NoError(err)
	s.False(rep.Published)
	s.NotNil(rep.Index)
}

func (s *RunnerSuite) TestDaily_PrunesThenAppliesYesterday() {
	cutoff := reporting.YearsAgo(reporting.Day(s.now), 12, 0)
	oldID := s.db.Seed(patent.Patent{PatentNumber: "7000001", IssueDate: cutoff.AddDate(0, 0, -1)})
	s.db.SeedEvent(patent.FeeEvent{PatentID: oldID, MaintenanceCode: "M1551"})
	keep := s.db.Seed(patent.Patent{PatentNumber: "7000002", IssueDate: cutoff})

	rep, err := s.runner.Daily(s.ctx)
	s.Require().NoError(err)

	s.Equal([]string{"archive:ad20240614.zip", "index"}, s.log.all())
	s.EqualValues(1, rep.Pruned)
	s.Equal("ad20240614.zip", rep.Archive.Archive)

	_, ok := s.db.PatentByNumber("7000001")
	s.False(ok)
	_, ok = s.db.PatentByNumber("7000002")
	s.True(ok)
	s.Empty(s.db.AllEvents())
	s.NotZero(keep)

	var backup PrunedBackup
	s.Require().NoError(s.store.Get(s.ctx, artifact.PrunedKey(reporting.Day(s.now)), SchemaPruned, SchemaPrunedVersion, &backup))
	s.Require().Len(backup.Patents, 1)
	s.Equal("7000001", backup.Patents[0].PatentNumber)
	s.True(cutoff.Equal(backup.Cutoff))

	s.True(s.now.Equal(s.stamped(artifact.KeyLastAssignmentUpdate)))
	s.Contains(s.scrape(), `test_pipeline_patents_pruned_total 1`)
}

func (s *RunnerSuite) TestDaily_FetchFailureAborts() {
	s.archives.processFn = func(ctx context.Context, name string) (*assignment.XMLResult, error) {
		return nil, errors.New(errors.ErrCodeSourceDownload, "404")
	}
	_, err := s.runner.Daily(s.ctx)
	s.True(errors.IsCode(err, errors.ErrCodeSourceDownload))
	s.NotContains(s.log.all(), "index")

	ok, err := s.store.Exists(s.ctx, artifact.KeyLastAssignmentUpdate)
	s.Require().NoError(err)
	s.False(ok)
}

func (s *RunnerSuite) TestDaily_NothingToPrune() {
	rep, err := s.runner.Daily(s.ctx)
	s.Require().NoError(err)
	s.Zero(rep.Pruned)
	ok, err := s.store.Exists(s.ctx, artifact.PrunedKey(reporting.Day(s.now)))
	s.Require().NoError(err)
	s.False(ok)
}

func (s *RunnerSuite) TestSyncAndBootstrapRebuild() {
	rep, err := s.runner.Sync(s.ctx)
	s.Require().NoError(err)
	s.NotNil(rep.Sync)

	rep, err = s.runner.BootstrapCSV(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, rep.CSV.Applied)

	s.Equal([]string{"sync", "index", "csv", "index"}, s.log.all())
	s.Len(s.publisher.events, 2)
}

func (s *RunnerSuite) TestRun_Dispatch() {
	for job, want := range map[string][]string{
		JobFees:   {"fees"},
		JobEnrich: {"enrich"},
		JobIndex:  {"index"},
	} {
		s.log.calls = nil
		_, err := s.runner.Run(s.ctx, job)
		s.Require().NoError(err, job)
		s.Equal(want, s.log.all(), job)
	}

	_, err := s.runner.Run(s.ctx, "reticulate")
	s.True(errors.IsCode(err, errors.ErrCodePipelineJobUnknown))
}

func (s *RunnerSuite) TestLockHeldFailsFast() {
	mr := miniredis.RunT(s.T())
	client, err := redis.NewClient(config.RedisConfig{Addr: mr.Addr()}, logging.NewNopLogger())
	s.Require().NoError(err)
	defer client.Close()

	other := redis.NewMutex(client, "pipeline", logging.NewNopLogger())
	s.Require().NoError(other.Lock(s.ctx))

	deps := s.deps
	deps.Lock = redis.NewMutex(client, "pipeline", logging.NewNopLogger())
	runner := NewRunner(deps)

	_, err = runner.Cycle(s.ctx)
	s.True(errors.IsCode(err, errors.ErrCodePipelineLocked))
	s.Empty(s.log.all())

	s.Require().NoError(other.Unlock(s.ctx))
	_, err = runner.BuildIndex(s.ctx)
	s.Require().NoError(err)
	s.False(mr.Exists(redis.LockKey("pipeline")))
}

// ---------------------------------------------------------------------------
// Jobs
// ---------------------------------------------------------------------------

func jobMessage(t *testing.T, eventType string, payload interface{}) *kafka.Message {
	t.Helper()
	env, err := kafka.NewEventEnvelope(eventType, kafka.SourceCLI, payload)
	require.NoError(t, err)
	pm, err := env.ToMessage(kafka.DefaultJobsTopic)
	require.NoError(t, err)
	return &kafka.Message{Topic: pm.Topic, Value: pm.Value}
}

func (s *RunnerSuite) TestHandleJob() {
	err := s.runner.HandleJob(s.ctx, jobMessage(s.T(), kafka.EventPipelineJob, kafka.JobPayload{Kind: kafka.JobIndex}))
	s.Require().NoError(err)
	s.Equal([]string{"index"}, s.log.all())

	s.NoError(s.runner.HandleJob(s.ctx, jobMessage(s.T(), kafka.EventPipelineJob, kafka.JobPayload{Kind: "nope"})))
	s.NoError(s.runner.HandleJob(s.ctx, jobMessage(s.T(), kafka.EventIndexRebuilt, kafka.IndexRebuiltPayload{})))
	s.NoError(s.runner.HandleJob(s.ctx, &kafka.Message{Value: []byte("{")}))
	s.Equal([]string{"index"}, s.log.all())
}

func (s *RunnerSuite) TestHandleJob_ReturnsRunError() {
	s.archives.processFn = func(ctx context.Context, name string) (*assignment.XMLResult, error) {
		return nil, errors.New(errors.ErrCodeSourceExtract, "corrupt zip")
	}
	err := s.runner.HandleJob(s.ctx, jobMessage(s.T(), kafka.EventPipelineJob, kafka.JobPayload{Kind: kafka.JobDaily}))
	s.True(errors.IsCode(err, errors.ErrCodeSourceExtract))
}

func TestSubmitJob(t *testing.T) {
	pub := &mockPublisher{}
	require.NoError(t, SubmitJob(context.Background(), pub, "jobs", kafka.JobSync, "alice"))
	require.Len(t, pub.events, 1)
	assert.Equal(t, kafka.EventPipelineJob, pub.events[0].eventType)
	job, ok := pub.events[0].payload.(kafka.JobPayload)
	require.True(t, ok)
	assert.Equal(t, kafka.JobSync, job.Kind)
	assert.Equal(t, "alice", job.RequestedBy)

	err := SubmitJob(context.Background(), pub, "jobs", "fees", "alice")
	assert.True(t, errors.IsCode(err, errors.ErrCodePipelineJobUnknown))
	assert.Len(t, pub.events, 1)
}
