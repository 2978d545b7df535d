package prolink

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for both the Registry and the
// DBClient. A nil *Metrics is valid everywhere it's accepted: callers that
// don't want instrumentation simply never call AttachMetrics.
type Metrics struct {
	registrySize      prometheus.Gauge
	sweepsTotal       prometheus.Counter
	lastSweepUnixTime prometheus.Gauge

	queueDepth       prometheus.Gauge
	connectionsOpen  prometheus.Gauge
	requestsTotal    *prometheus.CounterVec // labeled by kind, outcome
	requestDuration  *prometheus.HistogramVec // labeled by kind
	cacheHitsTotal   *prometheus.CounterVec // labeled by kind
	cacheMissesTotal *prometheus.CounterVec // labeled by kind
	deferredTotal    *prometheus.CounterVec // labeled by kind
}

// NewMetrics creates and registers the collector set against the default
// Prometheus registry.
func NewMetrics() *Metrics {
	return &Metrics{
		registrySize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "prolink_registry_devices",
			Help: "Number of devices currently known to the registry.",
		}),
		sweepsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "prolink_registry_sweeps_total",
			Help: "Number of TTL expiry sweeps the registry has run.",
		}),
		lastSweepUnixTime: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "prolink_registry_last_sweep_timestamp",
			Help: "Unix timestamp of the most recent registry sweep.",
		}),
		queueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "prolink_dbclient_queue_depth",
			Help: "Number of requests currently queued in the DBClient worker.",
		}),
		connectionsOpen: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "prolink_dbclient_connections_open",
			Help: "Number of sticky per-device TCP connections currently open.",
		}),
		requestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "prolink_dbclient_requests_total",
			Help: "DBClient requests processed, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		requestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "prolink_dbclient_request_duration_seconds",
			Help:    "Time to complete a DBClient request, by kind.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		cacheHitsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "prolink_dbclient_cache_hits_total",
			Help: "CacheStore hits, by kind.",
		}, []string{"kind"}),
		cacheMissesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "prolink_dbclient_cache_misses_total",
			Help: "CacheStore misses, by kind.",
		}, []string{"kind"}),
		deferredTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "prolink_dbclient_deferred_total",
			Help: "Requests re-enqueued due to the device's play state (back-pressure), by kind.",
		}, []string{"kind"}),
	}
}

func (m *Metrics) SetRegistrySize(n int) {
	if m == nil {
		return
	}
	m.registrySize.Set(float64(n))
}

func (m *Metrics) ObserveSweep() {
	if m == nil {
		return
	}
	m.sweepsTotal.Inc()
	m.lastSweepUnixTime.Set(float64(time.Now().Unix()))
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

func (m *Metrics) SetConnectionsOpen(n int) {
	if m == nil {
		return
	}
	m.connectionsOpen.Set(float64(n))
}

func (m *Metrics) ObserveRequest(kind string, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(kind, outcome).Inc()
	m.requestDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (m *Metrics) ObserveCacheHit(kind string) {
	if m == nil {
		return
	}
	m.cacheHitsTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveCacheMiss(kind string) {
	if m == nil {
		return
	}
	m.cacheMissesTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveDeferred(kind string) {
	if m == nil {
		return
	}
	m.deferredTotal.WithLabelValues(kind).Inc()
}
