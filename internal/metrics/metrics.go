package metrics

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	versioncollector "github.com/prometheus/client_golang/prometheus/collectors/version"
	"github.com/prometheus/common/version"
)

var (
	// defaultRegistry is the default Prometheus registry
	defaultRegistry = prometheus.DefaultRegisterer
)

// Metrics holds all application metrics.
type Metrics struct {
	httpRequestsTotal     *prometheus.CounterVec
	httpRequestDuration   *prometheus.HistogramVec
	httpRequestBytes      *prometheus.CounterVec
	storeOperationsTotal  *prometheus.CounterVec
	storeOperationSeconds *prometheus.HistogramVec
	storeOperationErrors  *prometheus.CounterVec
	storeBytesTotal       *prometheus.CounterVec
	segmentTransfersTotal *prometheus.CounterVec
	segmentTransferBytes  *prometheus.CounterVec
	chunkedWritesTotal    prometheus.Counter
	cipherOperationsTotal *prometheus.CounterVec
	cipherErrorsTotal     *prometheus.CounterVec
	goroutines            prometheus.Gauge
	memoryAllocBytes      prometheus.Gauge
	memorySysBytes        prometheus.Gauge
}

// NewMetrics creates a new metrics instance.
func NewMetrics() *Metrics {
	return newMetricsWithRegistry(defaultRegistry)
}

// newMetricsWithRegistry creates a new metrics instance with a custom registry (for testing).
func newMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		httpRequestBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_request_bytes_total",
				Help: "Total bytes transferred in HTTP requests",
			},
			[]string{"method", "path"},
		),
		storeOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "store_operations_total",
				Help: "Total number of store operations",
			},
			[]string{"operation"}, // "write", "read", "copy", "move", "forget"
		),
		storeOperationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "store_operation_duration_seconds",
				Help:    "Store operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		storeOperationErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "store_operation_errors_total",
				Help: "Total number of store operation errors",
			},
			[]string{"operation", "error_type"},
		),
		storeBytesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "store_bytes_total",
				Help: "Total plaintext bytes written to and read from the store",
			},
			[]string{"operation"},
		),
		segmentTransfersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "segment_transfers_total",
				Help: "Total number of segment uploads and downloads",
			},
			[]string{"direction"}, // "upload" or "download"
		),
		segmentTransferBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "segment_transfer_bytes_total",
				Help: "Total bytes transferred to and from the remote store",
			},
			[]string{"direction"},
		),
		chunkedWritesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "chunked_writes_total",
				Help: "Total number of writes that took the chunked path",
			},
		),
		cipherOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cipher_operations_total",
				Help: "Total number of segment encryption/decryption operations",
			},
			[]string{"operation"}, // "encrypt" or "decrypt"
		),
		cipherErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cipher_errors_total",
				Help: "Total number of segment encryption/decryption errors",
			},
			[]string{"operation", "error_type"},
		),
		goroutines: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "goroutines_total",
				Help: "Number of goroutines",
			},
		),
		memoryAllocBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "memory_alloc_bytes",
				Help: "Number of bytes allocated and not yet freed",
			},
		),
		memorySysBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "memory_sys_bytes",
				Help: "Total bytes of memory obtained from OS",
			},
		),
	}
}

// SetVersion registers the standard build_info collector for the given
// version string.
func SetVersion(v string) {
	version.Version = v
	defaultRegistry.MustRegister(versioncollector.NewCollector("chat_storage_gateway"))
}

// RecordHTTPRequest records an HTTP request metric.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration, bytes int64) {
	m.httpRequestsTotal.WithLabelValues(method, path, http.StatusText(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, path, http.StatusText(status)).Observe(duration.Seconds())
	m.httpRequestBytes.WithLabelValues(method, path).Add(float64(bytes))
}

// RecordStoreOperation records a completed store operation.
func (m *Metrics) RecordStoreOperation(operation string, duration time.Duration, bytes int64) {
	m.storeOperationsTotal.WithLabelValues(operation).Inc()
	m.storeOperationSeconds.WithLabelValues(operation).Observe(duration.Seconds())
	m.storeBytesTotal.WithLabelValues(operation).Add(float64(bytes))
}

// RecordStoreError records a failed store operation.
func (m *Metrics) RecordStoreError(operation, errorType string) {
	m.storeOperationErrors.WithLabelValues(operation, errorType).Inc()
}

// RecordSegmentTransfer records one segment upload or download.
func (m *Metrics) RecordSegmentTransfer(direction string, bytes int64) {
	m.segmentTransfersTotal.WithLabelValues(direction).Inc()
	m.segmentTransferBytes.WithLabelValues(direction).Add(float64(bytes))
}

// RecordChunkedWrite records a write that took the chunked path.
func (m *Metrics) RecordChunkedWrite() {
	m.chunkedWritesTotal.Inc()
}

// RecordCipherOperation records a segment encryption/decryption.
func (m *Metrics) RecordCipherOperation(operation string) {
	m.cipherOperationsTotal.WithLabelValues(operation).Inc()
}

// RecordCipherError records a segment encryption/decryption error.
func (m *Metrics) RecordCipherError(operation, errorType string) {
	m.cipherErrorsTotal.WithLabelValues(operation, errorType).Inc()
}

// UpdateSystemMetrics updates system-level metrics (goroutines, memory).
func (m *Metrics) UpdateSystemMetrics() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.goroutines.Set(float64(runtime.NumGoroutine()))
	m.memoryAllocBytes.Set(float64(memStats.Alloc))
	m.memorySysBytes.Set(float64(memStats.Sys))
}

// StartSystemMetricsCollector starts a goroutine that periodically updates system metrics.
func (m *Metrics) StartSystemMetricsCollector() {
	ticker := time.NewTicker(5 * time.Second)
	go func() {
		for range ticker.C {
			m.UpdateSystemMetrics()
		}
	}()
}

// Handler returns the HTTP handler for metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
