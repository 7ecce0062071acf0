package prometheus

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeffrey-bowles/uspto/internal/config"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/monitoring/logging"
	"github.com/jeffrey-bowles/uspto/pkg/errors"
)

func newTestCollector(t *testing.T) MetricsCollector {
	c, err := NewMetricsCollector(CollectorConfig{Namespace: "test", Subsystem: "unit"}, logging.NewNopLogger())
	require.NoError(t, err)
	return c
}

func scrapeMetrics(t *testing.T, collector MetricsCollector) string {
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	collector.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	return w.Body.String()
}

func TestNewMetricsCollector_EmptyNamespace(t *testing.T) {
	_, err := NewMetricsCollector(CollectorConfig{Subsystem: "unit"}, logging.NewNopLogger())
	assert.True(t, errors.IsValidation(err))
}

func TestNewMetricsCollector_WithProcessMetrics(t *testing.T) {
	c, err := NewMetricsCollector(CollectorConfig{Namespace: "test", EnableProcessMetrics: true, EnableGoMetrics: true}, logging.NewNopLogger())
	require.NoError(t, err)
	output := scrapeMetrics(t, c)
	assert.Contains(t, output, "go_goroutines")
}

func TestCollectorConfigFrom(t *testing.T) {
	cc := CollectorConfigFrom(config.MetricsConfig{Namespace: "uspto"}, "apiserver")
	assert.Equal(t, "uspto", cc.Namespace)
	assert.Equal(t, "apiserver", cc.ConstLabels["service"])

	assert.Nil(t, CollectorConfigFrom(config.MetricsConfig{Namespace: "uspto"}, "").ConstLabels)
}

func TestRegisterCounter_WithLabels(t *testing.T) {
	c := newTestCollector(t)
	c.RegisterCounter("records_total", "Records", "source").WithLabelValues("fees").Add(5)

	output := scrapeMetrics(t, c)
	assert.Contains(t, output, `test_unit_records_total{source="fees"} 5`)
}

func TestRegisterCounter_DuplicateSharesSeries(t *testing.T) {
	c := newTestCollector(t)
	c.RegisterCounter("dup_counter", "help").WithLabelValues().Inc()
	c.RegisterCounter("dup_counter", "help").WithLabelValues().Inc()

	assert.Contains(t, scrapeMetrics(t, c), "test_unit_dup_counter 2")
}

func TestRegisterGauge(t *testing.T) {
	c := newTestCollector(t)
	g := c.RegisterGauge("index_size", "Index size", "set")
	g.WithLabelValues("four_year").Set(10)
	g.WithLabelValues("four_year").Inc()
	g.WithLabelValues("four_year").Dec()

	assert.Contains(t, scrapeMetrics(t, c), `test_unit_index_size{set="four_year"} 10`)
}

func TestRegisterHistogram_DefaultBuckets(t *testing.T) {
	c := newTestCollector(t)
	c.RegisterHistogram("latency", "Latency", nil).WithLabelValues().Observe(0.1)

	output := scrapeMetrics(t, c)
	assert.Contains(t, output, "test_unit_latency_bucket")
	assert.Contains(t, output, "test_unit_latency_count 1")
}

func TestTypeConflictReturnsNoop(t *testing.T) {
	c := newTestCollector(t)
	c.RegisterCounter("conflict", "help").WithLabelValues().Inc()

	gauge := c.RegisterGauge("conflict", "help")
	assert.NotPanics(t, func() { gauge.WithLabelValues().Set(10) })

	assert.Contains(t, scrapeMetrics(t, c), "# TYPE test_unit_conflict counter")
}

func TestConcurrentRegistration(t *testing.T) {
	c := newTestCollector(t)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.RegisterCounter("concurrent_metric", "help", "id").WithLabelValues("1").Inc()
		}()
	}
	wg.Wait()

	assert.Contains(t, scrapeMetrics(t, c), `test_unit_concurrent_metric{id="1"} 50`)
}

func TestNoopCollector(t *testing.T) {
	c := NewNoopCollector()
	assert.NotPanics(t, func() {
		c.RegisterCounter("a", "a").WithLabelValues().Inc()
		c.RegisterGauge("b", "b").WithLabelValues().Set(1)
		c.RegisterHistogram("c", "c", nil).WithLabelValues().Observe(1)
	})

	w := httptest.NewRecorder()
	c.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
