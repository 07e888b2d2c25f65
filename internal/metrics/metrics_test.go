package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piwi3910/GantryGuard/internal/model"
)

func TestCollectorCountsResults(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)

	c.ObserveResult("couch", model.LevelCollision)
	c.ObserveResult("couch", model.LevelCollision)
	c.ObserveResult("patient", model.LevelNone)
	c.ObserveSkipped("couch_rotation")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.Results.WithLabelValues("couch", "Collision")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Results.WithLabelValues("patient", "None")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Skipped.WithLabelValues("couch_rotation")))
}

func TestCollectorRecordsDuration(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)

	c.ObserveDuration(3 * time.Millisecond)
	assert.Equal(t, uint64(1), histogramSampleCount(t, c.Duration))
}

func TestNewCollectorTwiceReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := NewCollector(reg)
	require.NoError(t, err)
	b, err := NewCollector(reg)
	require.NoError(t, err)

	a.ObserveSkipped("orientation")
	assert.Equal(t, 1.0, testutil.ToFloat64(b.Skipped.WithLabelValues("orientation")))
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.ObserveResult("couch", model.LevelWarning)
		c.ObserveSkipped("x")
		c.ObserveDuration(time.Second)
	})
}

func TestHandlerExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)
	c.ObserveResult("patient", model.LevelWarning)
	c.ObserveSkipped("beam_error")
	c.ObserveDuration(time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	c.Handler().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	for _, name := range []string{
		"gantryguard_control_points_total",
		"gantryguard_skipped_total",
		"gantryguard_plan_check_duration_seconds",
	} {
		assert.Contains(t, body, name)
	}
}

func histogramSampleCount(t *testing.T, h prometheus.Histogram) uint64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, h.Write(&m))
	return m.GetHistogram().GetSampleCount()
}
