package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.ObserveAgent("safety_triage", "completed", 2*time.Second)
	m.ObserveAgent("safety_triage", "completed", time.Second)
	m.AgentFault("risk_assessment")
	m.Event("TRANSCRIPT_READY")
	m.Directive("RESOLVED")
	m.SessionStatus("paused")
	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.agentRuns.WithLabelValues("safety_triage", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.agentFaults.WithLabelValues("risk_assessment")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("TRANSCRIPT_READY")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.directives.WithLabelValues("RESOLVED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessions.WithLabelValues("paused")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeSessions))
	assert.Equal(t, 1, testutil.CollectAndCount(m.agentDuration))
}

func TestMetrics_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)

	_, err = New(reg)
	assert.Error(t, err)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveAgent("a", "completed", time.Second)
		m.AgentFault("a")
		m.Event("x")
		m.Directive("STOP")
		m.SessionStatus("completed")
		m.SessionOpened()
		m.SessionClosed()
	})
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)
	m.Event("SAFETY_CLEARED")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `crucible_events_published_total{topic="SAFETY_CLEARED"} 1`))
}
