package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_ObserveTick(t *testing.T) {
	m := New()

	m.ObserveTick(TickSample{
		Duration:   2 * time.Millisecond,
		Entities:   12,
		LocalAgent: true,
		Executed:   []string{"move", "cast"},
		Failed:     []string{"cast"},
	})
	m.ObserveTick(TickSample{Duration: time.Millisecond, RefreshFailed: true})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ticks))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.cachedEntities))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.localAgent))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.refreshFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dispatched.WithLabelValues("move")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failed.WithLabelValues("cast")))
}

func TestMetrics_EngineRunning(t *testing.T) {
	m := New()

	m.SetEngineRunning("follow", true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.engineRunning.WithLabelValues("follow")))

	m.SetEngineRunning("follow", false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.engineRunning.WithLabelValues("follow")))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveTick(TickSample{Entities: 3})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "autopilot_ticks_total 1")
	assert.Contains(t, rec.Body.String(), "autopilot_cached_entities 3")
}
