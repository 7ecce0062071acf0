package prometheus

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPipelineMetrics_ObserveStage(t *testing.T) {
	c := newTestCollector(t)
	m := NewPipelineMetrics(c)

	m.ObserveStage("fees", 2*time.Second, nil)
	m.ObserveStage("fees", time.Second, errors.New("boom"))

	output := scrapeMetrics(t, c)
	assert.Contains(t, output, `test_unit_pipeline_stage_runs_total{stage="fees",status="ok"} 1`)
	assert.Contains(t, output, `test_unit_pipeline_stage_runs_total{stage="fees",status="error"} 1`)
	assert.Contains(t, output, `test_unit_pipeline_stage_duration_seconds_count{stage="fees"} 2`)
}

func TestPipelineMetrics_ObserveArchive(t *testing.T) {
	c := newTestCollector(t)
	m := NewPipelineMetrics(c)

	m.ObserveArchive(3*time.Second, nil)
	m.ObserveArchive(0, errors.New("fetch failed"))

	output := scrapeMetrics(t, c)
	assert.Contains(t, output, `test_unit_pipeline_archives_processed_total{status="ok"} 1`)
	assert.Contains(t, output, `test_unit_pipeline_archives_processed_total{status="error"} 1`)
	assert.Contains(t, output, "test_unit_pipeline_archive_duration_seconds_count 1")
}

func TestPipelineMetrics_CountersAndGauges(t *testing.T) {
	c := newTestCollector(t)
	m := NewPipelineMetrics(c)

	m.RecordsProcessed.WithLabelValues(SourceFees).Add(3)
	m.JoinFailures.WithLabelValues(SourceXML).Inc()
	m.IndexSize.WithLabelValues("eight_year_late").Set(42)
	m.ObserveArtifactWrite("index/paid", 10, nil)
	m.MarkSuccess("cycle", time.Unix(1700000000, 0))

	output := scrapeMetrics(t, c)
	assert.Contains(t, output, `test_unit_pipeline_records_processed_total{source="fees"} 3`)
	assert.Contains(t, output, `test_unit_pipeline_join_failures_total{source="xml"} 1`)
	assert.Contains(t, output, `test_unit_index_set_size{set="eight_year_late"} 42`)
	assert.Contains(t, output, `test_unit_artifact_writes_total{status="ok"} 1`)
	assert.Contains(t, output, `test_unit_pipeline_last_success_timestamp_seconds{job="cycle"} 1.7e+09`)
}

func TestHTTPMetrics(t *testing.T) {
	c := newTestCollector(t)
	m := NewHTTPMetrics(c)

	m.RecordRequest(http.MethodGet, "/update_patents", http.StatusOK, 20*time.Millisecond)
	m.RecordCache("page", true)
	m.RecordCache("page", false)
	m.RecordReload(nil)

	output := scrapeMetrics(t, c)
	assert.Contains(t, output, `test_unit_http_requests_total{method="GET",path="/update_patents",status_code="200"} 1`)
	assert.Contains(t, output, `test_unit_query_cache_access_total{cache="page",result="hit"} 1`)
	assert.Contains(t, output, `test_unit_query_cache_access_total{cache="page",result="miss"} 1`)
	assert.Contains(t, output, `test_unit_query_state_reloads_total{status="ok"} 1`)
}

func TestMetrics_NoopCollector(t *testing.T) {
	m := NewPipelineMetrics(NewNoopCollector())
	h := NewHTTPMetrics(NewNoopCollector())
	assert.NotPanics(t, func() {
		m.ObserveStage("index", time.Second, nil)
		m.ObserveArchive(time.Second, nil)
		h.RecordRequest("GET", "/", 200, time.Millisecond)
	})
}
