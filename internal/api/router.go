// Package api wires together all HTTP routes for the organization API.
//
// Route groups:
//   - /api/user/ holds the credential endpoints. They are public but rate
//     limited per client IP because they check passwords and signatures.
//   - /api/organization/ requires a bearer access token. Successful mutations
//     are written to the audit log.
//   - /health, /ready and /version are unauthenticated probes.
//
// Collection routes are registered with and without the trailing slash, and
// item routes with and without it too, so clients never see a redirect.
package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/vivadrive/organization-api/internal/api/organization"
	"github.com/vivadrive/organization-api/internal/api/user"
	"github.com/vivadrive/organization-api/internal/audit"
	"github.com/vivadrive/organization-api/internal/auth"
	"github.com/vivadrive/organization-api/internal/config"
	"github.com/vivadrive/organization-api/internal/db/repositories"
	"github.com/vivadrive/organization-api/internal/middleware"
)

// Version is reported by /version and the version command. Release builds set
// it with -ldflags "-X github.com/vivadrive/organization-api/internal/api.Version=...".
var Version = "0.1.0"

// Dependencies are the collaborators the router needs from the caller.
type Dependencies struct {
	Organizations repositories.OrganizationStore
	Users         repositories.UserStore
	// Pinger backs /health and /ready.
	Pinger repositories.Pinger
	Tokens auth.TokenService
}

// BackgroundServices holds resources created for the router that must be
// released during graceful shutdown. The caller (cmd/orgapi) calls Shutdown
// after the HTTP server has drained.
type BackgroundServices struct {
	rateLimiter *middleware.RateLimiter
	redisClient *redis.Client
	auditLog    audit.Shipper
}

// Shutdown stops the rate limiter cleanup, closes the Redis client and flushes
// the audit log. Safe to call on a nil receiver.
func (bg *BackgroundServices) Shutdown() {
	if bg == nil {
		return
	}
	slog.Info("stopping background services")
	if bg.rateLimiter != nil {
		bg.rateLimiter.Stop()
	}
	if bg.redisClient != nil {
		if err := bg.redisClient.Close(); err != nil {
			slog.Warn("failed to close redis client", "error", err)
		}
	}
	if bg.auditLog != nil {
		if err := bg.auditLog.Close(); err != nil {
			slog.Warn("failed to close audit log", "error", err)
		}
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, deps Dependencies) (*gin.Engine, *BackgroundServices, error) {
	bg := &BackgroundServices{}

	auditLog, err := newAuditShipper(&cfg.Audit)
	if err != nil {
		return nil, nil, err
	}
	bg.auditLog = auditLog

	router := gin.New()
	router.RedirectTrailingSlash = false

	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig(cfg.Security.TLS.Enabled)))
	router.Use(CORSMiddleware(cfg))

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"status": false, "message": "Not found."})
	})

	router.GET("/health", healthCheckHandler(deps.Pinger))
	router.GET("/ready", readinessHandler(deps.Pinger))
	router.GET("/version", versionHandler())

	apiGroup := router.Group("/api")

	userGroup := apiGroup.Group("/user")
	if cfg.Security.RateLimiting.Enabled {
		limiter := bg.newLimiter(&cfg.Security.RateLimiting)
		userGroup.Use(middleware.RateLimitMiddleware(limiter))
	}
	userHandlers := user.NewHandlers(deps.Tokens, deps.Users)
	handleWithSlash(userGroup, http.MethodPost, "/login", userHandlers.LoginHandler())
	handleWithSlash(userGroup, http.MethodPost, "/refresh-token", userHandlers.RefreshHandler())
	handleWithSlash(userGroup, http.MethodPost, "/verify-token", userHandlers.VerifyHandler())

	orgGroup := apiGroup.Group("/organization")
	orgGroup.Use(middleware.AuthMiddleware(deps.Tokens, deps.Users))
	orgGroup.Use(middleware.AuditMiddleware(auditLog))
	orgHandlers := organization.NewHandlers(&cfg.API, deps.Organizations)
	handleWithSlash(orgGroup, http.MethodGet, "", orgHandlers.ListHandler())
	handleWithSlash(orgGroup, http.MethodPost, "", orgHandlers.CreateHandler())
	handleWithSlash(orgGroup, http.MethodGet, "/:id", orgHandlers.GetHandler())
	handleWithSlash(orgGroup, http.MethodPut, "/:id", orgHandlers.UpdateHandler())
	handleWithSlash(orgGroup, http.MethodPatch, "/:id", orgHandlers.PatchHandler())
	handleWithSlash(orgGroup, http.MethodDelete, "/:id", orgHandlers.DeleteHandler())

	return router, bg, nil
}

// handleWithSlash registers path both with and without a trailing slash.
func handleWithSlash(g *gin.RouterGroup, method, path string, h gin.HandlerFunc) {
	g.Handle(method, path, h)
	g.Handle(method, path+"/", h)
}

// newLimiter picks Redis when an address is configured and the in-memory bucket otherwise.
func (bg *BackgroundServices) newLimiter(cfg *config.RateLimitingConfig) middleware.Limiter {
	rlCfg := middleware.CredentialRateLimitConfig(cfg.RequestsPerMinute, cfg.Burst)
	if cfg.RedisAddr != "" {
		bg.redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		slog.Info("rate limiting via redis", "addr", cfg.RedisAddr)
		return middleware.NewRedisRateLimiter(bg.redisClient, rlCfg, "orgapi:ratelimit:")
	}
	bg.rateLimiter = middleware.NewRateLimiter(rlCfg)
	return bg.rateLimiter
}

// newAuditShipper returns nil when auditing is off.
func newAuditShipper(cfg *config.AuditConfig) (audit.Shipper, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	shippers := []audit.Shipper{audit.NewSlogShipper(nil)}
	if cfg.FilePath != "" {
		fs, err := audit.NewFileShipper(&audit.FileConfig{
			Path:       cfg.FilePath,
			MaxSizeMB:  cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		})
		if err != nil {
			return nil, err
		}
		shippers = append(shippers, fs)
	}
	return audit.NewMultiShipper(shippers...), nil
}

// @Summary      Health check
// @Description  Returns the health status of the service, including store connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy, error: database connection failed"
// @Router       /health [get]
// healthCheckHandler returns the health status of the service
func healthCheckHandler(store repositories.Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := store.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      Readiness check
// @Description  Returns whether the service is ready to accept traffic.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "ready: true, checks, time"
// @Failure      503  {object}  map[string]interface{}  "ready: false, error: database not ready"
// @Router       /ready [get]
// readinessHandler returns the readiness status of the service.
func readinessHandler(store repositories.Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}

		if err := store.PingContext(c.Request.Context()); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      API version
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "version, api_version"
// @Router       /version [get]
// versionHandler returns the API version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     Version,
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware writes one access log line per request through the
// request-scoped logger, so every line carries the request ID. Probe
// endpoints log at debug.
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		level := slog.LevelInfo
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			level = slog.LevelError
		case path == "/health" || path == "/ready":
			level = slog.LevelDebug
		}

		route := c.FullPath()
		attrs := []slog.Attr{
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("route", route),
			slog.Int("status", c.Writer.Status()),
			slog.Int("size", c.Writer.Size()),
			slog.Duration("latency", time.Since(start)),
			slog.String("ip", c.ClientIP()),
			slog.String("user_agent", c.Request.UserAgent()),
		}
		if query != "" {
			attrs = append(attrs, slog.String("query", query))
		}
		if v, ok := c.Get(middleware.UserIDKey); ok {
			attrs = append(attrs, slog.String("user_id", fmt.Sprint(v)))
		}

		middleware.Logger(c).LogAttrs(c.Request.Context(), level, "http request", attrs...)
	}
}

// CORSMiddleware handles CORS
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	allowMethods := strings.Join([]string{
		http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions,
	}, ", ")

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowed := false
		wildcard := false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if allowedOrigin == "*" {
				allowed, wildcard = true, true
				break
			}
			if allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin == "" || wildcard {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				// Credentials are only allowed for an explicitly listed origin.
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Access-Control-Allow-Credentials", "true")
				c.Header("Vary", "Origin")
			}
			c.Header("Access-Control-Allow-Methods", allowMethods)
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID")
			c.Header("Access-Control-Expose-Headers", "X-Request-ID, X-RateLimit-Limit, X-RateLimit-Remaining, Retry-After")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
