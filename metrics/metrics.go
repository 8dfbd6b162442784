// Package metrics exposes Prometheus collectors for runs, agent executions,
// bus traffic and administrator rulings.
//
// A nil *Metrics is valid and records nothing, so callers never need to
// check whether metrics are enabled.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "crucible"

// Metrics holds the collectors.
type Metrics struct {
	agentRuns      *prometheus.CounterVec
	agentDuration  *prometheus.HistogramVec
	agentFaults    *prometheus.CounterVec
	events         *prometheus.CounterVec
	directives     *prometheus.CounterVec
	sessions       *prometheus.CounterVec
	activeSessions prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		agentRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_executions_total",
			Help:      "Agent executions by agent and output status.",
		}, []string{"agent", "status"}),
		agentDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_execution_duration_seconds",
			Help:      "Agent execution latency.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"agent"}),
		agentFaults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_faults_total",
			Help:      "Agent branches aborted by an unhandled fault.",
		}, []string{"agent"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Events published on the bus by topic.",
		}, []string{"topic"}),
		directives: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "administrator_directives_total",
			Help:      "Administrator rulings by directive.",
		}, []string{"directive"}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_transitions_total",
			Help:      "Session lifecycle transitions by resulting status.",
		}, []string{"status"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Sessions held by the engine.",
		}),
	}

	for _, c := range []prometheus.Collector{m.agentRuns, m.agentDuration, m.agentFaults, m.events, m.directives, m.sessions, m.activeSessions} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}

	return m, nil
}

// ObserveAgent records one finished execution.
func (m *Metrics) ObserveAgent(agentID, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.agentRuns.WithLabelValues(agentID, status).Inc()
	m.agentDuration.WithLabelValues(agentID).Observe(d.Seconds())
}

// AgentFault records an aborted branch.
func (m *Metrics) AgentFault(agentID string) {
	if m == nil {
		return
	}
	m.agentFaults.WithLabelValues(agentID).Inc()
}

// Event records a published event.
func (m *Metrics) Event(topic string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(topic).Inc()
}

// Directive records an administrator ruling.
func (m *Metrics) Directive(kind string) {
	if m == nil {
		return
	}
	m.directives.WithLabelValues(kind).Inc()
}

// SessionStatus records a session entering status.
func (m *Metrics) SessionStatus(status string) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(status).Inc()
}

// SessionOpened increments the active session gauge.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

// SessionClosed decrements the active session gauge.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
