// Package metrics exposes Prometheus counters for the schedule API and for viewing contexts.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges
type Metrics struct {
	registry           *prometheus.Registry
	requestsTotal      *prometheus.CounterVec
	errorsTotal        prometheus.Counter
	syncCommandsTotal  *prometheus.CounterVec
	transitionsTotal   prometheus.Counter
	playerErrorsTotal  prometheus.Counter
	broadcastTotal     *prometheus.CounterVec
	driftSeconds       prometheus.Histogram
	syncConnections    prometheus.Gauge
	crossCheckFailures prometheus.Counter
}

// New creates and registers the metrics on a private registry
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simulcast_requests_total",
			Help: "Total number of HTTP requests by route",
		}, []string{"route"}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simulcast_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
		syncCommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simulcast_sync_commands_total",
			Help: "Player commands issued by reconciliation, by command",
		}, []string{"command"}),
		transitionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simulcast_sync_end_transitions_total",
			Help: "Program end transitions performed",
		}),
		playerErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simulcast_sync_player_errors_total",
			Help: "Player failures that triggered a reinitialization",
		}),
		broadcastTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simulcast_broadcast_messages_total",
			Help: "Cross-context sync messages by direction and outcome",
		}, []string{"direction"}),
		driftSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "simulcast_sync_drift_seconds",
			Help:    "Absolute drift between player and computed position when checked",
			Buckets: []float64{0.05, 0.1, 0.2, 0.5, 1, 2, 5, 10},
		}),
		syncConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "simulcast_sync_connections",
			Help: "Open websocket sync connections",
		}),
		crossCheckFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simulcast_crosscheck_failures_total",
			Help: "Failed position cross-check fetches",
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.syncCommandsTotal,
		m.transitionsTotal,
		m.playerErrorsTotal,
		m.broadcastTotal,
		m.driftSeconds,
		m.syncConnections,
		m.crossCheckFailures,
	)

	return m
}

// IncRequests increments the request counter for a route
func (m *Metrics) IncRequests(route string) {
	m.requestsTotal.WithLabelValues(route).Inc()
}

// IncErrors increments the errors counter
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// IncSyncCommand counts a load or seek issued to a player
func (m *Metrics) IncSyncCommand(command string) {
	m.syncCommandsTotal.WithLabelValues(command).Inc()
}

// IncTransitions counts an end transition
func (m *Metrics) IncTransitions() {
	m.transitionsTotal.Inc()
}

// IncPlayerErrors counts a player failure
func (m *Metrics) IncPlayerErrors() {
	m.playerErrorsTotal.Inc()
}

// IncBroadcast counts a sync message by direction, such as "sent", "received", "announced", "stale" or "dropped"
func (m *Metrics) IncBroadcast(direction string) {
	m.broadcastTotal.WithLabelValues(direction).Inc()
}

// ObserveDrift records a measured drift in seconds
func (m *Metrics) ObserveDrift(seconds float64) {
	if seconds < 0 {
		seconds = -seconds
	}
	m.driftSeconds.Observe(seconds)
}

// IncCrossCheckFailures counts a failed cross-check fetch
func (m *Metrics) IncCrossCheckFailures() {
	m.crossCheckFailures.Inc()
}

// SyncConnectionOpened increments the websocket gauge
func (m *Metrics) SyncConnectionOpened() {
	m.syncConnections.Inc()
}

// SyncConnectionClosed decrements the websocket gauge
func (m *Metrics) SyncConnectionClosed() {
	m.syncConnections.Dec()
}

// Registry exposes the underlying registry for tests and custom collectors
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler that serves the registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
