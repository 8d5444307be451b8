// Package metrics provides Prometheus metrics for the drive explorer.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "explorer_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "explorer_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "explorer_operations_total",
			Help: "Drive operations issued by the browsing controller",
		},
		[]string{"op", "result"},
	)

	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "explorer_operation_duration_seconds",
			Help:    "Drive operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	uploadBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "explorer_upload_bytes_total",
			Help: "Total bytes sent by completed uploads",
		},
	)

	staleLoadsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "explorer_stale_loads_total",
			Help: "Item loads discarded because a newer load had started",
		},
	)

	thumbnailLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "explorer_thumbnail_cache_lookups_total",
			Help: "Thumbnail cache lookups",
		},
		[]string{"result"},
	)

	thumbnailEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "explorer_thumbnail_cache_evictions_total",
			Help: "Thumbnails evicted from the cache",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordOperation records one controller operation and its latency.
func RecordOperation(op string, duration time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	operationsTotal.WithLabelValues(op, result).Inc()
	operationDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordUpload adds the bytes of a completed upload.
func RecordUpload(bytes int64) {
	uploadBytes.Add(float64(bytes))
}

// RecordStaleLoad counts a discarded load response.
func RecordStaleLoad() {
	staleLoadsTotal.Inc()
}

// RecordThumbnailLookup records a cache hit or miss.
func RecordThumbnailLookup(hit bool) {
	result := "hit"
	if !hit {
		result = "miss"
	}
	thumbnailLookups.WithLabelValues(result).Inc()
}

// RecordThumbnailEviction counts an evicted thumbnail.
func RecordThumbnailEviction() {
	thumbnailEvictions.Inc()
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware records request counts and latency. Paths are left out of the
// labels since item ids would make them unbounded.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		httpRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(rw.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
	})
}
