package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "restream_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "restream_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Broadcast Metrics
	BroadcastStartsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "restream_broadcast_starts_total",
			Help: "Total number of broadcast start attempts by result",
		},
		[]string{"result"},
	)

	BroadcastExitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "restream_broadcast_exits_total",
			Help: "Total number of terminated broadcasts by exit reason",
		},
		[]string{"reason"},
	)

	BroadcastActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "restream_broadcast_active",
			Help: "1 while a broadcast is starting or running",
		},
	)

	BroadcastDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "restream_broadcast_duration_seconds",
			Help:    "Time between a broadcast entering running and terminating",
			Buckets: prometheus.ExponentialBuckets(1, 2, 16), // 1s to ~9 hours
		},
		[]string{"reason"},
	)

	BroadcastStopDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "restream_broadcast_stop_duration_seconds",
			Help:    "Time taken by stop requests to observe process exit",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	BroadcastForcedKillsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "restream_broadcast_forced_kills_total",
			Help: "Total number of broadcasts that needed SIGKILL after the grace period",
		},
	)

	EncoderLinesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "restream_encoder_output_lines_total",
			Help: "Total number of encoder output lines forwarded to sinks",
		},
	)

	// Telemetry Metrics
	StreamHealthScore = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "restream_stream_health_score",
			Help: "Last reported stream health score (0-100)",
		},
	)

	StreamViewers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "restream_stream_viewers",
			Help: "Last reported concurrent viewer count",
		},
	)

	// Event fan-out Metrics
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "restream_events_published_total",
			Help: "Total number of lifecycle events delivered to publishers",
		},
		[]string{"publisher", "status"},
	)

	EventsDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "restream_events_dropped_total",
			Help: "Total number of lifecycle events dropped because the dispatcher queue was full",
		},
	)

	// Storage Metrics
	StorageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "restream_storage_operations_total",
			Help: "Total number of storage operations",
		},
		[]string{"operation", "status"},
	)

	StorageOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "restream_storage_operation_duration_seconds",
			Help:    "Storage operation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"operation"},
	)

	StorageBytesTransferred = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "restream_storage_bytes_transferred_total",
			Help: "Total bytes transferred to/from storage",
		},
		[]string{"operation"},
	)

	// Database Metrics
	DatabaseOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "restream_database_operations_total",
			Help: "Total number of database operations",
		},
		[]string{"operation", "status"},
	)

	DatabaseOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "restream_database_operation_duration_seconds",
			Help:    "Database operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Cache Metrics
	CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "restream_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "restream_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	// Error Metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "restream_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)
)

// RecordHTTPRequest records an HTTP request
func RecordHTTPRequest(method, endpoint, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordBroadcastStart records the outcome of a start attempt
func RecordBroadcastStart(result string) {
	BroadcastStartsTotal.WithLabelValues(result).Inc()
}

// RecordBroadcastExit records a terminated broadcast and how long it ran
func RecordBroadcastExit(reason string, runSeconds float64) {
	BroadcastExitsTotal.WithLabelValues(reason).Inc()
	if runSeconds > 0 {
		BroadcastDuration.WithLabelValues(reason).Observe(runSeconds)
	}
}

// SetBroadcastActive flips the active broadcast gauge
func SetBroadcastActive(active bool) {
	if active {
		BroadcastActive.Set(1)
		return
	}
	BroadcastActive.Set(0)
}

// RecordBroadcastStop records how long a stop request took and whether it escalated to SIGKILL
func RecordBroadcastStop(duration float64, forced bool) {
	BroadcastStopDuration.Observe(duration)
	if forced {
		BroadcastForcedKillsTotal.Inc()
	}
}

// RecordEncoderLine counts one forwarded encoder output line
func RecordEncoderLine() {
	EncoderLinesTotal.Inc()
}

// UpdateStreamHealth publishes the latest telemetry snapshot
func UpdateStreamHealth(score, viewers int) {
	StreamHealthScore.Set(float64(score))
	StreamViewers.Set(float64(viewers))
}

// RecordEventPublished records a lifecycle event delivery attempt
func RecordEventPublished(publisher string, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	EventsPublishedTotal.WithLabelValues(publisher, status).Inc()
}

// RecordEventDropped counts an event discarded by a full dispatcher queue
func RecordEventDropped() {
	EventsDroppedTotal.Inc()
}

// RecordStorageOperation records a storage operation
func RecordStorageOperation(operation, status string, duration float64, bytesTransferred int64) {
	StorageOperationsTotal.WithLabelValues(operation, status).Inc()
	StorageOperationDuration.WithLabelValues(operation).Observe(duration)
	StorageBytesTransferred.WithLabelValues(operation).Add(float64(bytesTransferred))
}

// RecordDatabaseOperation records a database operation
func RecordDatabaseOperation(operation, status string, duration float64) {
	DatabaseOperationsTotal.WithLabelValues(operation, status).Inc()
	DatabaseOperationDuration.WithLabelValues(operation).Observe(duration)
}

// RecordCacheAccess records cache hit or miss
func RecordCacheAccess(cacheType string, hit bool) {
	if hit {
		CacheHitsTotal.WithLabelValues(cacheType).Inc()
	} else {
		CacheMissesTotal.WithLabelValues(cacheType).Inc()
	}
}

// RecordError records an error
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}
