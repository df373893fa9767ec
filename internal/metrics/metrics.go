// Package metrics exposes sync health as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Import results.
const (
	ImportApplied  = "applied"
	ImportStale    = "stale"
	ImportRejected = "rejected"
	ImportFailed   = "failed"
)

// Sync holds the coordinator metrics. A nil *Sync is valid and records
// nothing.
type Sync struct {
	Publishes      *prometheus.CounterVec
	Imports        *prometheus.CounterVec
	PendingChanges prometheus.Gauge
	LastSync       prometheus.Gauge
	Online         prometheus.Gauge
}

// NewSync registers the sync metrics with reg under namespace.
func NewSync(reg prometheus.Registerer, namespace string) *Sync {
	factory := promauto.With(reg)
	return &Sync{
		Publishes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publishes_total",
			Help:      "Publish attempts of the local snapshot, by result",
		}, []string{"result"}),
		Imports: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "imports_total",
			Help:      "Remote documents received, by result",
		}, []string{"result"}),
		PendingChanges: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_changes",
			Help:      "Local writes not yet published",
		}),
		LastSync: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_sync_timestamp_seconds",
			Help:      "Unix time of the last successful publish or import",
		}),
		Online: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online",
			Help:      "1 when the last transport operation succeeded",
		}),
	}
}

// ObservePublish counts a publish attempt.
func (m *Sync) ObservePublish(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Publishes.WithLabelValues(result).Inc()
}

// ObserveImport counts a received document.
func (m *Sync) ObserveImport(result string) {
	if m == nil {
		return
	}
	m.Imports.WithLabelValues(result).Inc()
}

// SetStatus updates the gauges.
func (m *Sync) SetStatus(online bool, pending int, lastSync *time.Time) {
	if m == nil {
		return
	}
	if online {
		m.Online.Set(1)
	} else {
		m.Online.Set(0)
	}
	m.PendingChanges.Set(float64(pending))
	if lastSync != nil {
		m.LastSync.Set(float64(lastSync.Unix()))
	}
}

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the metrics of reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// HTTP holds request metrics of the API server.
type HTTP struct {
	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

// NewHTTP registers the request metrics with reg under namespace.
func NewHTTP(reg prometheus.Registerer, namespace string) *HTTP {
	factory := promauto.With(reg)
	return &HTTP{
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "API requests by method, route and status",
		}, []string{"method", "path", "status"}),
		Duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "API request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}
}

// Observe records one request.
func (m *HTTP) Observe(method, path, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(method, path, status).Inc()
	m.Duration.WithLabelValues(method, path, status).Observe(d.Seconds())
}
