package testutil

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jeffrey-bowles/uspto/internal/infrastructure/monitoring/logging"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/monitoring/prometheus"
)

// NewPipelineMetrics returns metrics on a private registry together with a
// function that scrapes it in text exposition format. Series are prefixed
// "test_".
func NewPipelineMetrics(t *testing.T) (*prometheus.PipelineMetrics, func() string) {
	t.Helper()
	c, scrape := newCollector(t)
	return prometheus.NewPipelineMetrics(c), scrape
}

// NewHTTPMetrics is NewPipelineMetrics for the read API series.
func NewHTTPMetrics(t *testing.T) (*prometheus.HTTPMetrics, func() string) {
	t.Helper()
	c, scrape := newCollector(t)
	return prometheus.NewHTTPMetrics(c), scrape
}

func newCollector(t *testing.T) (prometheus.MetricsCollector, func() string) {
	c, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{Namespace: "test"}, logging.NewNopLogger())
	require.NoError(t, err)
	scrape := func() string {
		w := httptest.NewRecorder()
		c.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		require.Equal(t, http.StatusOK, w.Code)
		return w.Body.String()
	}
	return c, scrape
}
