// Package monitoring exposes Prometheus metrics for the app runtime.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// Registry metrics
	AppsInstalled prometheus.Gauge
	AppsRunning   prometheus.Gauge
	InstallsTotal *prometheus.CounterVec
	StartsTotal   *prometheus.CounterVec

	// Sandbox metrics
	SandboxesActive   prometheus.Gauge
	AccessChecksTotal *prometheus.CounterVec
	ExecDuration      prometheus.Histogram

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// New creates a metrics collector registered on the default registry.
func New() *Metrics {
	return &Metrics{
		AppsInstalled: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "appos_apps_installed",
			Help: "Number of installed applications",
		}),
		AppsRunning: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "appos_apps_running",
			Help: "Number of running applications",
		}),
		InstallsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "appos_installs_total",
				Help: "Total install attempts by outcome",
			},
			[]string{"status"},
		),
		StartsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "appos_starts_total",
				Help: "Total app start attempts by outcome",
			},
			[]string{"status"},
		),
		SandboxesActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "appos_sandboxes_active",
			Help: "Number of active sandbox slots",
		}),
		AccessChecksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "appos_access_checks_total",
				Help: "Sandbox resource access checks by verdict",
			},
			[]string{"verdict"},
		),
		ExecDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "appos_script_exec_duration_seconds",
			Help:    "Script execution duration",
			Buckets: prometheus.DefBuckets,
		}),
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "appos_http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "appos_http_request_duration_seconds",
				Help:    "HTTP request duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}
}

// RecordAccessCheck records one gate verdict.
func (m *Metrics) RecordAccessCheck(allowed bool) {
	if m == nil {
		return
	}
	verdict := "denied"
	if allowed {
		verdict = "allowed"
	}
	m.AccessChecksTotal.WithLabelValues(verdict).Inc()
}

// RecordHTTPRequest records one completed HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
