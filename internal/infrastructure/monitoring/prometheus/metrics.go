package prometheus

import (
	"strconv"
	"time"
)

// Record sources used as the "source" label.
const (
	SourceFees       = "fees"
	SourceCSV        = "csv"
	SourceXML        = "xml"
	SourceEnrichment = "patentsview"
)

var (
	DefaultHTTPDurationBuckets  = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5}
	DefaultStageDurationBuckets = []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600, 7200}
)

// PipelineMetrics holds counters for the ETL stages and the index build.
type PipelineMetrics struct {
	StageDuration      HistogramVec
	StageRuns          CounterVec
	RecordsProcessed   CounterVec
	PatentsCreated     CounterVec
	PatentsUpdated     CounterVec
	FeeEventsCreated   CounterVec
	JoinFailures       CounterVec
	EnrichmentRequests CounterVec
	EnrichmentUpdates  CounterVec
	ArchivesProcessed  CounterVec
	ArchiveDuration    HistogramVec
	PatentsPruned      CounterVec
	IndexSize          GaugeVec
	ArtifactWrites     CounterVec
	LastSuccess        GaugeVec
}

// NewPipelineMetrics registers the pipeline series on collector.
func NewPipelineMetrics(collector MetricsCollector) *PipelineMetrics {
	return &PipelineMetrics{
		StageDuration:      collector.RegisterHistogram("pipeline_stage_duration_seconds", "Pipeline stage duration", DefaultStageDurationBuckets, "stage"),
		StageRuns:          collector.RegisterCounter("pipeline_stage_runs_total", "Pipeline stage runs by outcome", "stage", "status"),
		RecordsProcessed:   collector.RegisterCounter("pipeline_records_processed_total", "Source records processed", "source"),
		PatentsCreated:     collector.RegisterCounter("pipeline_patents_created_total", "Patents created", "source"),
		PatentsUpdated:     collector.RegisterCounter("pipeline_patents_updated_total", "Patents updated", "source"),
		FeeEventsCreated:   collector.RegisterCounter("pipeline_fee_events_created_total", "Maintenance fee events created"),
		JoinFailures:       collector.RegisterCounter("pipeline_join_failures_total", "Assignment records that resolved to no single patent", "source"),
		EnrichmentRequests: collector.RegisterCounter("pipeline_enrichment_requests_total", "PatentsView requests by outcome", "status"),
		EnrichmentUpdates:  collector.RegisterCounter("pipeline_enrichment_updates_total", "Assignees filled from PatentsView"),
		ArchivesProcessed:  collector.RegisterCounter("pipeline_archives_processed_total", "Assignment archives by outcome", "status"),
		ArchiveDuration:    collector.RegisterHistogram("pipeline_archive_duration_seconds", "Assignment archive processing duration", DefaultStageDurationBuckets),
		PatentsPruned:      collector.RegisterCounter("pipeline_patents_pruned_total", "Patents removed by the retention prune"),
		IndexSize:          collector.RegisterGauge("index_set_size", "Patents per reporting set", "set"),
		ArtifactWrites:     collector.RegisterCounter("artifact_writes_total", "Artifact store writes by outcome", "status"),
		LastSuccess:        collector.RegisterGauge("pipeline_last_success_timestamp_seconds", "Unix time of the last successful job", "job"),
	}
}

// ObserveStage records a finished stage with its outcome.
func (m *PipelineMetrics) ObserveStage(stage string, d time.Duration, err error) {
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
	m.StageRuns.WithLabelValues(stage, status(err)).Inc()
}

// ObserveArchive records one assignment archive.
func (m *PipelineMetrics) ObserveArchive(d time.Duration, err error) {
	if err == nil {
		m.ArchiveDuration.WithLabelValues().Observe(d.Seconds())
	}
	m.ArchivesProcessed.WithLabelValues(status(err)).Inc()
}

// ObserveArtifactWrite matches the artifact store's write observer signature.
func (m *PipelineMetrics) ObserveArtifactWrite(_ string, _ int, err error) {
	m.ArtifactWrites.WithLabelValues(status(err)).Inc()
}

// MarkSuccess stamps job as last succeeding at t.
func (m *PipelineMetrics) MarkSuccess(job string, t time.Time) {
	m.LastSuccess.WithLabelValues(job).Set(float64(t.Unix()))
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// HTTPMetrics holds the read API request series.
type HTTPMetrics struct {
	RequestsTotal   CounterVec
	RequestDuration HistogramVec
	ActiveRequests  GaugeVec
	CacheAccess     CounterVec
	StateReloads    CounterVec
}

// NewHTTPMetrics registers the read API series on collector.
func NewHTTPMetrics(collector MetricsCollector) *HTTPMetrics {
	return &HTTPMetrics{
		RequestsTotal:   collector.RegisterCounter("http_requests_total", "Total HTTP requests", "method", "path", "status_code"),
		RequestDuration: collector.RegisterHistogram("http_request_duration_seconds", "HTTP request duration", DefaultHTTPDurationBuckets, "method", "path"),
		ActiveRequests:  collector.RegisterGauge("http_active_requests", "Active HTTP requests"),
		CacheAccess:     collector.RegisterCounter("query_cache_access_total", "Query cache lookups", "cache", "result"),
		StateReloads:    collector.RegisterCounter("query_state_reloads_total", "Index state reloads by outcome", "status"),
	}
}

// RecordRequest records one finished request.
func (m *HTTPMetrics) RecordRequest(method, path string, statusCode int, d time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// RecordCache records a hit or miss on the named cache.
func (m *HTTPMetrics) RecordCache(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheAccess.WithLabelValues(cache, result).Inc()
}

// RecordReload records a state reload.
func (m *HTTPMetrics) RecordReload(err error) {
	m.StateReloads.WithLabelValues(status(err)).Inc()
}
