package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics holds the HTTP-facing metrics of the catalog service.
type PrometheusMetrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Records served through the table records endpoint
	RecordsServed *prometheus.CounterVec
	RecordErrors  *prometheus.CounterVec
}

var (
	metrics     *PrometheusMetrics
	metricsOnce sync.Once
)

// InitMetrics registers the metrics. Calling it again is a no-op.
func InitMetrics() {
	metricsOnce.Do(func() {
		metrics = &PrometheusMetrics{
			HTTPRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "catalog_http_requests_total",
					Help: "Total number of HTTP requests",
				},
				[]string{"method", "endpoint", "status"},
			),
			HTTPRequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "catalog_http_request_duration_seconds",
					Help:    "HTTP request latency in seconds",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"method", "endpoint"},
			),
			HTTPResponseSize: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "catalog_http_response_size_bytes",
					Help:    "HTTP response size in bytes",
					Buckets: []float64{100, 1000, 10000, 100000, 1000000},
				},
				[]string{"method", "endpoint"},
			),
			RecordsServed: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "catalog_records_served_total",
					Help: "Records returned by the table records endpoint",
				},
				[]string{"source", "table"},
			),
			RecordErrors: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "catalog_record_errors_total",
					Help: "Failed table record reads",
				},
				[]string{"source", "table"},
			),
		}
	})
}

// PrometheusMiddleware records HTTP metrics for every request.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if metrics == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(time.Since(start).Seconds())
		if c.Writer.Size() > 0 {
			metrics.HTTPResponseSize.WithLabelValues(method, endpoint).Observe(float64(c.Writer.Size()))
		}
	}
}

// RecordTableRead counts a records request against a table.
func RecordTableRead(source, table string, records int, err error) {
	if metrics == nil {
		return
	}
	if err != nil {
		metrics.RecordErrors.WithLabelValues(source, table).Inc()
		return
	}
	metrics.RecordsServed.WithLabelValues(source, table).Add(float64(records))
}
