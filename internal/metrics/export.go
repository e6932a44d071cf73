package metrics

import "net/http"

// Global functions for dot-import usage

// MetricToolCall counts a tool dispatch
func MetricToolCall(tool, outcome string) {
	GetInstance().RecordToolCall(tool, outcome)
}

// MetricAuthFailure counts a rejected request at the key gate
func MetricAuthFailure(reason string) {
	GetInstance().RecordAuthFailure(reason)
}

// MetricTransition records a session state change
func MetricTransition(from, to string, state int) {
	GetInstance().RecordTransition(from, to, state)
}

// MetricOutboxDepth sets the pending message gauge
func MetricOutboxDepth(n int) {
	GetInstance().SetOutboxDepth(n)
}

// MetricDrained counts one drained message
func MetricDrained(outcome string) {
	GetInstance().RecordDrained(outcome)
}

// MetricProxyRequest counts one forwarded call
func MetricProxyRequest(outcome string) {
	GetInstance().RecordProxyRequest(outcome)
}

// MetricReconnectAttempt counts a transport reinitialization
func MetricReconnectAttempt() {
	GetInstance().RecordReconnectAttempt()
}

// MetricsHandler serves the process-wide registry
func MetricsHandler() http.Handler {
	return GetInstance().Handler()
}
