package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	SegmentsRecorded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "watch_segments_recorded_total",
			Help: "Watch segments persisted",
		},
	)

	SegmentsDuplicate = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "watch_segments_duplicate_total",
			Help: "Segment submissions ignored as idempotent retries",
		},
	)

	SeeksRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seek_events_recorded_total",
			Help: "Seek events persisted",
		},
		[]string{"skip"},
	)

	SessionsClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watch_sessions_closed_total",
			Help: "Watch sessions closed, by trigger (client or reaper)",
		},
		[]string{"trigger"},
	)

	AggregationConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "attempt_aggregation_conflicts_total",
			Help: "Optimistic retries while applying progress to an attempt",
		},
	)
)

func Init() {
	prometheus.MustRegister(RequestCounter)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(SegmentsRecorded)
	prometheus.MustRegister(SegmentsDuplicate)
	prometheus.MustRegister(SeeksRecorded)
	prometheus.MustRegister(SessionsClosed)
	prometheus.MustRegister(AggregationConflicts)
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
