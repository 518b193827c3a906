// ABOUTME: Prometheus collectors for logins, upstream calls, retries and tool invocations
// ABOUTME: All recording methods are nil-safe so components can run without metrics

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups every collector the server exports.
type Metrics struct {
	logins       *prometheus.CounterVec
	upstream     *prometheus.CounterVec
	retries      prometheus.Counter
	toolCalls    *prometheus.CounterVec
	toolDuration *prometheus.HistogramVec
	truncations  *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idgov_logins_total",
			Help: "Login exchanges against the upstream API by outcome.",
		}, []string{"outcome"}),
		upstream: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idgov_upstream_requests_total",
			Help: "Outbound API requests by method and status code.",
		}, []string{"method", "code"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "idgov_unauthorized_retries_total",
			Help: "Calls retried after a 401 and forced re-login.",
		}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idgov_tool_calls_total",
			Help: "MCP tool invocations by tool and outcome.",
		}, []string{"tool", "outcome"}),
		toolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "idgov_tool_duration_seconds",
			Help:    "MCP tool invocation latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"tool"}),
		truncations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idgov_result_truncations_total",
			Help: "Tool results reduced for transport by kind (text or structured).",
		}, []string{"kind"}),
	}
	if reg != nil {
		reg.MustRegister(m.logins, m.upstream, m.retries, m.toolCalls, m.toolDuration, m.truncations)
	}
	return m
}

// Login records one login exchange outcome ("ok" or "failed").
func (m *Metrics) Login(outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(outcome).Inc()
}

// Upstream records one outbound request. code 0 means a transport error.
func (m *Metrics) Upstream(method string, code int) {
	if m == nil {
		return
	}
	label := "error"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	m.upstream.WithLabelValues(method, label).Inc()
}

// UnauthorizedRetry records a retry after 401.
func (m *Metrics) UnauthorizedRetry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

// ToolCall records a finished tool invocation.
func (m *Metrics) ToolCall(tool, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(tool, outcome).Inc()
	m.toolDuration.WithLabelValues(tool).Observe(d.Seconds())
}

// Truncation records a result that was cut down before returning it.
func (m *Metrics) Truncation(kind string) {
	if m == nil {
		return
	}
	m.truncations.WithLabelValues(kind).Inc()
}
