package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService owns the Prometheus registry of the service.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Histogram
	cacheWrite      prometheus.Histogram
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	resultsImported prometheus.Counter
	resultsFailed   prometheus.Counter
	importDuration  *prometheus.HistogramVec
	cleanupFailures prometheus.Counter
}

// NewMetricsService registers the HTTP, cache, import and cleanup collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	m := &MetricsService{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		cacheLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cache_latency_seconds",
			Help:    "Latency for cache lookups",
			Buckets: prometheus.DefBuckets,
		}),
		cacheWrite: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cache_write_seconds",
			Help:    "Latency for cache writes",
			Buckets: prometheus.DefBuckets,
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total cache hits",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total cache misses",
		}),
		resultsImported: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "results_imported_total",
			Help: "Student results written by CSV imports",
		}),
		resultsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "results_failed_total",
			Help: "CSV rows or cells rejected during imports",
		}),
		importDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "result_import_duration_seconds",
			Help:    "Wall-clock duration of result batch imports",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"outcome"}),
		cleanupFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "artifact_cleanup_failures_total",
			Help: "Storage artifacts that could not be deleted after all retries",
		}),
	}

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(
		m.requestDuration, m.requestTotal,
		m.cacheLatency, m.cacheWrite, m.cacheHits, m.cacheMisses,
		m.resultsImported, m.resultsFailed, m.importDuration, m.cleanupFailures,
		goroutines,
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	return m.registry
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records a cache lookup.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		return
	}
	m.cacheMisses.Inc()
}

// ObserveCacheWrite tracks the duration of cache writes.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordImport records the outcome of one batch import.
func (m *MetricsService) RecordImport(imported, failed int, duration time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "completed"
	if err != nil {
		outcome = "failed"
	}
	m.importDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	if imported > 0 {
		m.resultsImported.Add(float64(imported))
	}
	if failed > 0 {
		m.resultsFailed.Add(float64(failed))
	}
}

// RecordCleanupFailure counts an artifact given up on by the cleanup queue.
func (m *MetricsService) RecordCleanupFailure() {
	if m == nil {
		return
	}
	m.cleanupFailures.Inc()
}
