// Package metrics exposes Prometheus instruments for the cache and the
// connection-forwarding pipeline. Instrumentation here is pure observation:
// nothing in this package can influence a cache or forwarding decision.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every counter/gauge the proxy exports. A nil *Metrics is
// not valid; use NewNop in tests that don't care about metrics.
type Metrics struct {
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	cacheEvictions  prometheus.Counter
	cacheAdmissions prometheus.Counter
	cacheSizeBytes  prometheus.Gauge

	connectionsActive prometheus.Gauge
	connectionsTotal  prometheus.Counter
	upstreamErrors    *prometheus.CounterVec
	bytesForwarded    prometheus.Counter
}

// New creates and registers the proxy's metric instruments against
// Prometheus's default registry.
func New() *Metrics {
	m := &Metrics{
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proxy_cache_hits_total",
			Help: "Number of cache lookups that found a resident entry.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proxy_cache_misses_total",
			Help: "Number of cache lookups that found nothing resident.",
		}),
		cacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proxy_cache_evictions_total",
			Help: "Number of entries evicted from the tail of the LRU order.",
		}),
		cacheAdmissions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proxy_cache_admissions_total",
			Help: "Number of successful cache insertions (new entry or replacement).",
		}),
		cacheSizeBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "proxy_cache_current_size_bytes",
			Help: "Aggregate size of all resident cache entries.",
		}),
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "proxy_connections_active",
			Help: "Number of client connections currently being served.",
		}),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proxy_connections_total",
			Help: "Number of client connections accepted.",
		}),
		upstreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "proxy_upstream_errors_total",
			Help: "Number of upstream failures by stage.",
		}, []string{"stage"}),
		bytesForwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proxy_bytes_forwarded_total",
			Help: "Total bytes relayed from upstream to clients.",
		}),
	}

	prometheus.MustRegister(
		m.cacheHits, m.cacheMisses, m.cacheEvictions, m.cacheAdmissions, m.cacheSizeBytes,
		m.connectionsActive, m.connectionsTotal, m.upstreamErrors, m.bytesForwarded,
	)
	return m
}

// NewNop returns a Metrics instance with unregistered instruments,
// suitable for tests in the same process (registering the same metric
// name twice against the default registry panics).
func NewNop() *Metrics {
	return &Metrics{
		cacheHits:         prometheus.NewCounter(prometheus.CounterOpts{Name: "test_cache_hits_total"}),
		cacheMisses:       prometheus.NewCounter(prometheus.CounterOpts{Name: "test_cache_misses_total"}),
		cacheEvictions:    prometheus.NewCounter(prometheus.CounterOpts{Name: "test_cache_evictions_total"}),
		cacheAdmissions:   prometheus.NewCounter(prometheus.CounterOpts{Name: "test_cache_admissions_total"}),
		cacheSizeBytes:    prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_cache_current_size_bytes"}),
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_connections_active"}),
		connectionsTotal:  prometheus.NewCounter(prometheus.CounterOpts{Name: "test_connections_total"}),
		upstreamErrors:    prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_upstream_errors_total"}, []string{"stage"}),
		bytesForwarded:    prometheus.NewCounter(prometheus.CounterOpts{Name: "test_bytes_forwarded_total"}),
	}
}

func (m *Metrics) CacheHit()       { m.cacheHits.Inc() }
func (m *Metrics) CacheMiss()      { m.cacheMisses.Inc() }
func (m *Metrics) CacheEviction()  { m.cacheEvictions.Inc() }
func (m *Metrics) CacheAdmission() { m.cacheAdmissions.Inc() }

// SetCacheSize updates the current aggregate cache size gauge.
func (m *Metrics) SetCacheSize(bytes int) { m.cacheSizeBytes.Set(float64(bytes)) }

func (m *Metrics) ConnectionAccepted() {
	m.connectionsTotal.Inc()
	m.connectionsActive.Inc()
}
func (m *Metrics) ConnectionClosed() { m.connectionsActive.Dec() }

// UpstreamError records a forwarding failure at the given stage (connect,
// send, recv). A DNS failure surfaces from the dial and is recorded as
// connect.
func (m *Metrics) UpstreamError(stage string) { m.upstreamErrors.WithLabelValues(stage).Inc() }

// BytesForwarded adds n to the running total of relayed response bytes.
func (m *Metrics) BytesForwarded(n int) { m.bytesForwarded.Add(float64(n)) }

// Handler returns the HTTP handler that exposes these metrics for
// scraping. It is mounted on a separate listener from the raw-socket
// proxy (see cmd/proxy), since the core protocol here is not HTTP.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
