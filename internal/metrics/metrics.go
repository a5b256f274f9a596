package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all the application metrics
type Metrics struct {
	// HTTP request metrics
	HTTPRequestTotal    *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Chain operation metrics (submits, reads, event scans)
	ChainOperationTotal    *prometheus.CounterVec
	ChainOperationDuration *prometheus.HistogramVec

	// Media store operation metrics
	MediaOperationTotal    *prometheus.CounterVec
	MediaOperationDuration *prometheus.HistogramVec

	// Payload decode metrics
	DecodeTotal *prometheus.CounterVec
}

// Global metrics instance with mutex for thread safety
var (
	globalMetrics *Metrics
	metricsMutex  sync.Mutex
)

// NewMetrics creates a new Metrics instance with all required metrics
func NewMetrics() *Metrics {
	metricsMutex.Lock()
	defer metricsMutex.Unlock()

	// Return existing instance if already created
	if globalMetrics != nil {
		return globalMetrics
	}

	m := &Metrics{
		HTTPRequestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),

		ChainOperationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chain_operations_total",
			Help: "Total number of chain gateway operations",
		}, []string{"operation", "status"}),

		ChainOperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chain_operation_duration_seconds",
			Help:    "Chain gateway operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "status"}),

		MediaOperationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "media_operations_total",
			Help: "Total number of media store operations",
		}, []string{"operation", "status"}),

		MediaOperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "media_operation_duration_seconds",
			Help:    "Media store operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "status"}),

		DecodeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payload_decode_total",
			Help: "Total number of stored payload decode attempts",
		}, []string{"status"}),
	}

	// Register metrics with the default registry
	registerMetrics(m)

	// Store as global instance
	globalMetrics = m

	return m
}

// registerMetrics registers all metrics with the default registry
func registerMetrics(m *Metrics) {
	// Try to register each metric, ignore if already registered
	registerOrGet(m.HTTPRequestTotal)
	registerOrGet(m.HTTPRequestDuration)
	registerOrGet(m.ChainOperationTotal)
	registerOrGet(m.ChainOperationDuration)
	registerOrGet(m.MediaOperationTotal)
	registerOrGet(m.MediaOperationDuration)
	registerOrGet(m.DecodeTotal)
}

// registerOrGet tries to register a metric, returns the existing one if already registered
func registerOrGet(c prometheus.Collector) prometheus.Collector {
	if err := prometheus.Register(c); err != nil {
		// If already registered, return the existing collector
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector
		}
	}
	return c
}
