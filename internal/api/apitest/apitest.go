// Package apitest builds a complete router over the in-memory store for
// handler and end-to-end tests. Every record a test creates through the
// harness is removed again with t.Cleanup.
package apitest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/vivadrive/organization-api/internal/api"
	"github.com/vivadrive/organization-api/internal/auth"
	"github.com/vivadrive/organization-api/internal/config"
	"github.com/vivadrive/organization-api/internal/db/memory"
	"github.com/vivadrive/organization-api/internal/db/models"
	"github.com/vivadrive/organization-api/internal/seed"
)

// Secret signs every token issued by a Harness.
const Secret = "apitest-signing-secret-at-least-32-characters"

// Default test account, mirroring a freshly created staff user.
const (
	Username = "testuser"
	Password = "testpass123"
)

// Harness is a router plus the stores behind it.
type Harness struct {
	Router *gin.Engine
	Store  *memory.Store
	Tokens *auth.JWTService
	Config *config.Config
}

// Option adjusts the configuration before the router is built.
type Option func(*config.Config)

// WithRateLimit enables the in-memory credential limiter.
func WithRateLimit(perMinute, burst int) Option {
	return func(cfg *config.Config) {
		cfg.Security.RateLimiting = config.RateLimitingConfig{
			Enabled:           true,
			RequestsPerMinute: perMinute,
			Burst:             burst,
		}
	}
}

// WithPageSize sets the default and maximum page size.
func WithPageSize(size, maxSize int) Option {
	return func(cfg *config.Config) {
		cfg.API.PageSize = size
		cfg.API.MaxPageSize = maxSize
	}
}

// Config returns the configuration a Harness starts from: memory driver, no
// rate limiting, audit to the default logger.
func Config() *config.Config {
	return &config.Config{
		Server:   config.ServerConfig{Host: "127.0.0.1", Port: 8000},
		Database: config.DatabaseConfig{Driver: config.DriverMemory},
		Auth: config.AuthConfig{
			JWTSecret:            Secret,
			Issuer:               "organization-api",
			AccessTokenLifetime:  5 * time.Minute,
			RefreshTokenLifetime: 24 * time.Hour,
		},
		API:      config.APIConfig{PageSize: 10, MaxPageSize: 100},
		Security: config.SecurityConfig{CORS: config.CORSConfig{AllowedOrigins: []string{"*"}}},
		Logging:  config.LoggingConfig{Level: "error", Format: "json"},
		Audit:    config.AuditConfig{Enabled: true},
	}
}

// New builds a Harness. Background services are shut down with t.Cleanup.
func New(t *testing.T, opts ...Option) *Harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := Config()
	for _, opt := range opts {
		opt(cfg)
	}

	tokens, err := auth.NewJWTService(auth.JWTConfig{
		Secret:          cfg.Auth.JWTSecret,
		Issuer:          cfg.Auth.Issuer,
		AccessLifetime:  cfg.Auth.AccessTokenLifetime,
		RefreshLifetime: cfg.Auth.RefreshTokenLifetime,
	})
	require.NoError(t, err)

	store := memory.New()
	router, bg, err := api.NewRouter(cfg, api.Dependencies{
		Organizations: store.Organizations(),
		Users:         store.Users(),
		Pinger:        store,
		Tokens:        tokens,
	})
	require.NoError(t, err)
	t.Cleanup(bg.Shutdown)

	return &Harness{Router: router, Store: store, Tokens: tokens, Config: cfg}
}

// CreateUser stores an account and deletes it when the test ends.
func (h *Harness) CreateUser(t *testing.T, spec seed.UserSpec) *models.User {
	t.Helper()
	ctx := context.Background()
	user, err := seed.CreateUser(ctx, h.Store.Users(), spec)
	require.NoError(t, err)
	t.Cleanup(func() { _, _ = h.Store.Users().Delete(ctx, user.ID) })
	return user
}

// CreateDefaultUser stores the Username/Password account.
func (h *Harness) CreateDefaultUser(t *testing.T) *models.User {
	t.Helper()
	return h.CreateUser(t, seed.UserSpec{Username: Username, Password: Password, Email: "testuser@example.com"})
}

// CreateOrganization stores org directly and deletes every organization when
// the test ends.
func (h *Harness) CreateOrganization(t *testing.T, org *models.Organization) *models.Organization {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.Store.Organizations().Create(ctx, org))
	t.Cleanup(func() { _, _ = h.Store.Organizations().DeleteAll(ctx) })
	return org
}

// Fixtures loads the seed fixtures and removes them when the test ends.
func (h *Harness) Fixtures(t *testing.T) *seed.Fixtures {
	t.Helper()
	ctx := context.Background()
	fx, err := seed.Ensure(ctx, h.Store.Users(), h.Store.Organizations())
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = h.Store.Organizations().DeleteAll(ctx)
		_, _ = h.Store.Users().Delete(ctx, fx.Admin.ID)
		_, _ = h.Store.Users().Delete(ctx, fx.COO.ID)
	})
	return fx
}

// Do sends a JSON request. body may be nil, a string sent verbatim, or any
// value that is JSON encoded. token, when non-empty, is sent as a bearer token.
func (h *Harness) Do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.RemoteAddr = "192.0.2.1:1234"

	w := httptest.NewRecorder()
	h.Router.ServeHTTP(w, req)
	return w
}

// Login posts credentials to the login endpoint and returns the token pair,
// failing the test on anything but 200.
func (h *Harness) Login(t *testing.T, username, password string) *auth.TokenPair {
	t.Helper()
	w := h.Do(t, http.MethodPost, "/api/user/login/", map[string]string{
		"username": username,
		"password": password,
	}, "")
	require.Equal(t, http.StatusOK, w.Code, "login body: %s", w.Body.String())

	var pair auth.TokenPair
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pair))
	return &pair
}

// Decode unmarshals the response body into a generic map.
func Decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), "body: %s", w.Body.String())
	return out
}
