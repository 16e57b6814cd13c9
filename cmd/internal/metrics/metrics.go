// Package metrics owns the Prometheus collectors shared by the session,
// request and realtime components.
//
// A nil *Metrics is valid and records nothing, so components can be built
// without a registry in tests.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "affitto"

type Metrics struct {
	registry *prometheus.Registry

	apiRequests        *prometheus.CounterVec
	apiRetries         prometheus.Counter
	refreshes          *prometheus.CounterVec
	realtimeReconnects prometheus.Counter
	realtimeMessages   *prometheus.CounterVec
	realtimeState      prometheus.Gauge
	sessionTransitions *prometheus.CounterVec
}

// New registers all collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Outbound API requests by method and status class.",
		}, []string{"method", "class"}),
		apiRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_retries_total",
			Help:      "Requests resent after a successful token refresh.",
		}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_total",
			Help:      "Token refresh outcomes.",
		}, []string{"result"}),
		realtimeReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_reconnects_total",
			Help:      "Scheduled realtime reconnect attempts.",
		}),
		realtimeMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_messages_total",
			Help:      "Realtime messages by direction and result.",
		}, []string{"direction", "result"}),
		realtimeState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "realtime_state",
			Help:      "Current realtime connection state (0 idle, 1 connecting, 2 open, 3 closed, 4 reconnecting).",
		}),
		sessionTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_transitions_total",
			Help:      "Session state transitions by resulting status.",
		}, []string{"status"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.apiRequests,
		m.apiRetries,
		m.refreshes,
		m.realtimeReconnects,
		m.realtimeMessages,
		m.realtimeState,
		m.sessionTransitions,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) APIRequest(method string, status int) {
	if m == nil {
		return
	}
	m.apiRequests.WithLabelValues(method, statusClass(status)).Inc()
}

func (m *Metrics) APIRetry() {
	if m == nil {
		return
	}
	m.apiRetries.Inc()
}

// Refresh records a refresh outcome: success, failure, shared, skipped, or
// discarded when the credentials changed under a running exchange.
func (m *Metrics) Refresh(result string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(result).Inc()
}

func (m *Metrics) RealtimeReconnect() {
	if m == nil {
		return
	}
	m.realtimeReconnects.Inc()
}

// RealtimeMessage records a message; direction is in or out.
func (m *Metrics) RealtimeMessage(direction, result string) {
	if m == nil {
		return
	}
	m.realtimeMessages.WithLabelValues(direction, result).Inc()
}

func (m *Metrics) RealtimeState(v int) {
	if m == nil {
		return
	}
	m.realtimeState.Set(float64(v))
}

func (m *Metrics) SessionTransition(status string) {
	if m == nil {
		return
	}
	m.sessionTransitions.WithLabelValues(status).Inc()
}

func statusClass(status int) string {
	switch {
	case status == 0:
		return "network"
	case status < 200:
		return "1xx"
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
