// Package telemetry provides application-level observability for the organization API.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// served by the side-channel HTTP server started by `orgapi serve`:
//
//	GET http://<host>:<ORGAPI_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090. The endpoint is not served by the Gin router.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Organization mutation counters
//   - Token issuance and login failure counters
//   - Rate limiter rejections and recovered goroutine panics
//   - Database connection pool gauge (polled every 30 s)
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template such as /api/organization/:id)
// rather than the raw request URL so organization ids never become label values.
package telemetry

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics — labelled by method, route template, and status code.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - Error rate (%):                    sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//   - p99 latency per route:             histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// OrganizationOperationsTotal counts successful organization mutations by
// operation ("create", "update", "delete").
//
// Example PromQL queries:
//   - Creation rate:  rate(organization_operations_total{operation="create"}[1h])
var OrganizationOperationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "organization_operations_total",
		Help: "Total number of successful organization mutations, by operation.",
	},
	[]string{"operation"},
)

// Credential metrics.
//
// TokensIssuedTotal has label {type} ("access" or "refresh"). A login issues
// one of each; a refresh issues one access token.
//
// LoginFailuresTotal has label {reason} ("invalid_credentials", "inactive").
// A spike usually means credential stuffing; pair it with RateLimitRejectionsTotal.
var (
	TokensIssuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_tokens_issued_total",
			Help: "Total number of signed tokens issued, by token type.",
		},
		[]string{"type"},
	)

	LoginFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_login_failures_total",
			Help: "Total number of rejected login attempts, by reason.",
		},
		[]string{"reason"},
	)
)

// RateLimitRejectionsTotal counts requests rejected with 429, by limiter backend
// ("memory" or "redis").
var RateLimitRejectionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ratelimit_rejections_total",
		Help: "Total number of requests rejected by the rate limiter, by backend.",
	},
	[]string{"backend"},
)

// GoroutinePanicsTotal counts panics recovered by safego.Go, by goroutine name.
var GoroutinePanicsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "goroutine_panics_total",
		Help: "Total number of panics recovered in background goroutines, by goroutine name.",
	},
	[]string{"name"},
)

// DBOpenConnections is a Gauge that tracks the number of open connections currently
// held by the sql.DB connection pool. It is sampled every 30 seconds by
// StartDBStatsCollector rather than per-request to avoid the overhead of sql.DB.Stats().
//
// Example PromQL queries:
//   - Pool utilisation (%): db_open_connections / <ORGAPI_DATABASE_MAX_CONNECTIONS> * 100
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// dbStatsInterval is a var so tests can shorten it.
var dbStatsInterval = 30 * time.Second

// StartDBStatsCollector launches a background goroutine that samples sql.DB connection
// pool statistics every 30 seconds and updates the DBOpenConnections gauge.
// The goroutine exits when ctx is cancelled or when the database becomes
// unreachable (db.Ping fails).
//
// Call this once, immediately after db.Connect() succeeds:
//
//	telemetry.StartDBStatsCollector(ctx, database.DB)
func StartDBStatsCollector(ctx context.Context, db *sql.DB) {
	go func() {
		ticker := time.NewTicker(dbStatsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := db.PingContext(ctx); err != nil {
					if ctx.Err() == nil {
						slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
					}
					return
				}
				DBOpenConnections.Set(float64(db.Stats().OpenConnections))
			}
		}
	}()
}
