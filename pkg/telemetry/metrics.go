package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for berthd.
type Metrics struct {
	config MetricsConfig

	// Connection metrics
	connectAttempts   *prometheus.CounterVec
	connectionStatus  *prometheus.GaugeVec
	activeConnections prometheus.Gauge

	// Deployment metrics
	deploysStarted   *prometheus.CounterVec
	deploysCompleted *prometheus.CounterVec
	deployDuration   *prometheus.HistogramVec
	undeploys        *prometheus.CounterVec
	deploymentsKnown *prometheus.GaugeVec

	// Remote polling metrics
	deploymentRefreshes *prometheus.CounterVec

	// Event metrics
	eventsPublished *prometheus.CounterVec
	eventsDropped   prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	// Create a new registry
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		// Connection metrics
		connectAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connect_attempts_total",
				Help:      "Total number of connection attempts",
			},
			[]string{"server", "outcome"},
		),
		connectionStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "connection_status",
				Help:      "Current connection status (1 for the active status, 0 otherwise)",
			},
			[]string{"server", "status"},
		),
		activeConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_connections",
				Help:      "Current number of connected servers",
			},
		),

		// Deployment metrics
		deploysStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deploys_started_total",
				Help:      "Total number of deployments started",
			},
			[]string{"server"},
		),
		deploysCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deploys_completed_total",
				Help:      "Total number of deployments completed",
			},
			[]string{"server", "outcome"},
		),
		deployDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "deploy_duration_seconds",
				Help:      "Duration of deployment operations in seconds",
				Buckets:   buckets,
			},
			[]string{"outcome"},
		),
		undeploys: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "undeploys_total",
				Help:      "Total number of undeploy operations",
			},
			[]string{"server", "outcome"},
		),
		deploymentsKnown: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "deployments_known",
				Help:      "Current number of known deployments per server and status",
			},
			[]string{"server", "status"},
		),

		// Remote polling metrics
		deploymentRefreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deployment_refreshes_total",
				Help:      "Total number of remote deployment list refreshes",
			},
			[]string{"server", "outcome"},
		),

		// Event metrics
		eventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_published_total",
				Help:      "Total number of events published on the bus",
			},
			[]string{"kind"},
		),
		eventsDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_dropped_total",
				Help:      "Total number of events dropped due to a full buffer",
			},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.connectAttempts,
		m.connectionStatus,
		m.activeConnections,
		m.deploysStarted,
		m.deploysCompleted,
		m.deployDuration,
		m.undeploys,
		m.deploymentsKnown,
		m.deploymentRefreshes,
		m.eventsPublished,
		m.eventsDropped,
	)

	return m, nil
}

// Connection Metrics

// RecordConnectAttempt records a connection attempt and its outcome.
func (m *Metrics) RecordConnectAttempt(server, outcome string) {
	if m.connectAttempts == nil {
		return
	}
	m.connectAttempts.WithLabelValues(server, outcome).Inc()
}

// SetConnectionStatus marks the given status as active for a server and
// clears the others.
func (m *Metrics) SetConnectionStatus(server, status string, all []string) {
	if m.connectionStatus == nil {
		return
	}
	for _, s := range all {
		value := 0.0
		if s == status {
			value = 1.0
		}
		m.connectionStatus.WithLabelValues(server, s).Set(value)
	}
}

// ConnectionOpened increments the active connection gauge.
func (m *Metrics) ConnectionOpened() {
	if m.activeConnections == nil {
		return
	}
	m.activeConnections.Inc()
}

// ConnectionClosed decrements the active connection gauge.
func (m *Metrics) ConnectionClosed() {
	if m.activeConnections == nil {
		return
	}
	m.activeConnections.Dec()
}

// Deployment Metrics

// RecordDeployStarted increments the counter for started deployments.
func (m *Metrics) RecordDeployStarted(server string) {
	if m.deploysStarted == nil {
		return
	}
	m.deploysStarted.WithLabelValues(server).Inc()
}

// RecordDeployCompleted records a completed deployment with its outcome
// and duration.
func (m *Metrics) RecordDeployCompleted(server, outcome string, duration time.Duration) {
	if m.deploysCompleted == nil {
		return
	}
	m.deploysCompleted.WithLabelValues(server, outcome).Inc()
	m.deployDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordUndeploy records an undeploy operation outcome.
func (m *Metrics) RecordUndeploy(server, outcome string) {
	if m.undeploys == nil {
		return
	}
	m.undeploys.WithLabelValues(server, outcome).Inc()
}

// SetDeploymentCount sets the current count of known deployments.
func (m *Metrics) SetDeploymentCount(server, status string, count float64) {
	if m.deploymentsKnown == nil {
		return
	}
	m.deploymentsKnown.WithLabelValues(server, status).Set(count)
}

// Polling Metrics

// RecordDeploymentRefresh records a remote deployment list refresh.
func (m *Metrics) RecordDeploymentRefresh(server, outcome string) {
	if m.deploymentRefreshes == nil {
		return
	}
	m.deploymentRefreshes.WithLabelValues(server, outcome).Inc()
}

// Event Metrics

// RecordEventPublished increments the published event counter.
func (m *Metrics) RecordEventPublished(kind string) {
	if m.eventsPublished == nil {
		return
	}
	m.eventsPublished.WithLabelValues(kind).Inc()
}

// RecordEventDropped increments the dropped event counter.
func (m *Metrics) RecordEventDropped() {
	if m.eventsDropped == nil {
		return
	}
	m.eventsDropped.Inc()
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration is a helper to time an operation and record it.
func (t *Timer) ObserveDuration(observer prometheus.Observer) {
	observer.Observe(t.Duration().Seconds())
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// Log error but don't fail the application
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
