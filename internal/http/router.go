// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging, panic recovery, metrics, webhook
// deduplication, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
package httpapi

import (
	"net/http"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/scoredb/studentdb-bot/internal/config"
	"github.com/scoredb/studentdb-bot/internal/http/handlers"
	"github.com/scoredb/studentdb-bot/internal/http/middleware"
	"github.com/scoredb/studentdb-bot/internal/match"
	"github.com/scoredb/studentdb-bot/internal/providers"
	"github.com/scoredb/studentdb-bot/internal/reply"
	"github.com/scoredb/studentdb-bot/internal/services"
	"github.com/scoredb/studentdb-bot/internal/store"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// Deps carries the long-lived dependencies the router wires into services.
// The caller owns construction (store restore, manifest load, provider
// clients); the router owns assembly.
type Deps struct {
	Store   *store.Store
	Search  providers.SearchProvider
	Auth    providers.AuthProvider
	Matcher *match.Matcher
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine: observability (tracing, metrics), rate limiting, health and metrics
// endpoints, and the webhook API under the configured base path.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: structured request logs
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Gzip response compression
//  7. Metrics
//  8. Rate limiter (per user/IP)
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured request logging
	r.Use(middleware.Logger())

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Compress responses; keyboard-heavy replies gain the most
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	// 7) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 8) Token-bucket rate limiter per user/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Dependency injection: services ← store/providers/matcher
	qsvc := services.NewQueryService(deps.Store, deps.Search, deps.Matcher)
	qsvc.PageSize = cfg.PageSize
	asvc := services.NewAuthService(deps.Store, deps.Auth)

	renderer := reply.NewRenderer(deps.Store)
	renderer.InlineLimit = cfg.OCInlineLimit
	renderer.PhotoLimit = cfg.PhotoPageSize

	dedup := middleware.NewDeduper(cfg.DedupTTL)
	h := handlers.New(qsvc, asvc, renderer, dedup)

	// Webhook API
	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		api.POST("/updates/message", h.HandleMessage)
		api.POST("/updates/callback", h.HandleCallback)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
