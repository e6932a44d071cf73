// Package metrics exposes process metrics in Prometheus format.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "wamcp"

// Tool call outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeQueued   = "queued"
	OutcomeRejected = "rejected"
)

// MetricsManager owns the Prometheus registry and every collector the
// process reports.
type MetricsManager struct {
	registry *prometheus.Registry

	toolCalls          *prometheus.CounterVec
	authFailures       *prometheus.CounterVec
	sessionState       prometheus.Gauge
	sessionTransitions *prometheus.CounterVec
	outboxDepth        prometheus.Gauge
	outboxDrained      *prometheus.CounterVec
	proxyRequests      *prometheus.CounterVec
	reconnectAttempts  prometheus.Counter
}

var (
	instance *MetricsManager
	once     sync.Once
)

// GetInstance returns the process-wide metrics manager.
func GetInstance() *MetricsManager {
	once.Do(func() {
		instance = NewManager()
	})
	return instance
}

// NewManager creates a manager with its own registry. Tests use this to
// avoid sharing counters.
func NewManager() *MetricsManager {
	m := &MetricsManager{
		registry: prometheus.NewRegistry(),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool dispatches by tool name and outcome.",
		}, []string{"tool", "outcome"}),
		authFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Rejected requests at the MCP key gate.",
		}, []string{"reason"}),
		sessionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_state",
			Help:      "Current session state (0 pairing, 1 ready, 2 degraded).",
		}),
		sessionTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_transitions_total",
			Help:      "Session state transitions.",
		}, []string{"from", "to"}),
		outboxDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "outbox_depth",
			Help:      "Messages waiting for the session to become ready.",
		}),
		outboxDrained: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_drained_total",
			Help:      "Queued messages processed by drains, by outcome.",
		}, []string{"outcome"}),
		proxyRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proxy_requests_total",
			Help:      "Gateway calls forwarded to the session host, by outcome.",
		}, []string{"outcome"}),
		reconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnect_attempts_total",
			Help:      "Transport initialization attempts after a failure or disconnect.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.toolCalls,
		m.authFailures,
		m.sessionState,
		m.sessionTransitions,
		m.outboxDepth,
		m.outboxDrained,
		m.proxyRequests,
		m.reconnectAttempts,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *MetricsManager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *MetricsManager) Registry() *prometheus.Registry {
	return m.registry
}

func (m *MetricsManager) RecordToolCall(tool, outcome string) {
	m.toolCalls.WithLabelValues(tool, outcome).Inc()
}

func (m *MetricsManager) RecordAuthFailure(reason string) {
	m.authFailures.WithLabelValues(reason).Inc()
}

// RecordTransition counts a state change and updates the state gauge.
func (m *MetricsManager) RecordTransition(from, to string, state int) {
	m.sessionTransitions.WithLabelValues(from, to).Inc()
	m.sessionState.Set(float64(state))
}

func (m *MetricsManager) SetOutboxDepth(n int) {
	m.outboxDepth.Set(float64(n))
}

func (m *MetricsManager) RecordDrained(outcome string) {
	m.outboxDrained.WithLabelValues(outcome).Inc()
}

func (m *MetricsManager) RecordProxyRequest(outcome string) {
	m.proxyRequests.WithLabelValues(outcome).Inc()
}

func (m *MetricsManager) RecordReconnectAttempt() {
	m.reconnectAttempts.Inc()
}
