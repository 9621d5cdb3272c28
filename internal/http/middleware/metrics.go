// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file exposes Prometheus instrumentation. Metrics() measures HTTP
// request counts, latencies, in-flight concurrency, and response sizes with
// bounded label cardinality (method, registered route path, status). On top
// of the transport metrics it defines the bot-domain counters the webhook
// handlers feed: dispatches by resolved kind and outcome, and quota
// rejections. All collectors are safe for concurrent use.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// httpReqs counts requests by method, route path, and status code.
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	// httpLat records request duration in seconds by method and route path.
	// Status is omitted to keep histogram cardinality lower.
	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// httpInflight gauges the number of in-flight requests.
	httpInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_inflight",
			Help: "Current number of in-flight HTTP requests.",
		},
	)

	// httpRespSize captures response sizes in bytes by method and route path.
	httpRespSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "http_response_size_bytes",
			Help: "Size of HTTP responses in bytes.",
			Buckets: []float64{
				200, 500, 1 << 10, 2 << 10, 5 << 10,
				10 << 10, 25 << 10, 50 << 10,
				100 << 10, 250 << 10, 500 << 10,
			},
		},
		[]string{"method", "path"},
	)

	// botDispatches counts query dispatches by resolved result kind and
	// outcome ("ok", "not_found", "quota", "auth", "empty", "error").
	botDispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_dispatches_total",
			Help: "Total query dispatches by result kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	// botQuotaRejections counts queries refused because the rolling window
	// was spent.
	botQuotaRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bot_quota_rejections_total",
			Help: "Total queries rejected by the per-user quota.",
		},
	)

	// botDuplicateUpdates counts webhook updates dropped by the deduper.
	botDuplicateUpdates = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bot_duplicate_updates_total",
			Help: "Total webhook updates dropped as redeliveries.",
		},
	)
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight, httpRespSize,
		botDispatches, botQuotaRejections, botDuplicateUpdates)
}

// ObserveDispatch records one dispatch outcome. Kind is the resolved result
// kind ("grade", "class", "student", "search", ...); outcome is the coarse
// disposition.
func ObserveDispatch(kind, outcome string) {
	botDispatches.WithLabelValues(kind, outcome).Inc()
}

// ObserveQuotaRejection records one quota refusal.
func ObserveQuotaRejection() {
	botQuotaRejections.Inc()
}

// ObserveDuplicateUpdate records one dropped webhook redelivery.
func ObserveDuplicateUpdate() {
	botDuplicateUpdates.Inc()
}

// Metrics returns a Gin middleware that instruments requests with Prometheus.
//
// Usage:
//
//	r := gin.New()
//	r.Use(middleware.Metrics())
//	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
//
// The "path" label uses the registered route (c.FullPath()) to avoid
// unbounded label cardinality from raw URLs; when no route matched (404) it
// falls back to the raw path.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		dur := time.Since(start).Seconds()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		method := c.Request.Method
		status := strconv.Itoa(c.Writer.Status())
		size := c.Writer.Size() // -1 when unknown

		httpReqs.WithLabelValues(method, path, status).Inc()
		httpLat.WithLabelValues(method, path).Observe(dur)
		if size >= 0 {
			httpRespSize.WithLabelValues(method, path).Observe(float64(size))
		}
	}
}
