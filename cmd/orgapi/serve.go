package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/vivadrive/organization-api/internal/api"
	"github.com/vivadrive/organization-api/internal/auth"
	"github.com/vivadrive/organization-api/internal/config"
	"github.com/vivadrive/organization-api/internal/safego"
	"github.com/vivadrive/organization-api/internal/seed"
	"github.com/vivadrive/organization-api/internal/telemetry"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), opts.configPath, cfg)
		},
	}
}

// app is a fully wired API server that has not started listening yet.
type app struct {
	server  *http.Server
	bg      *api.BackgroundServices
	stores  *stores
	metrics *http.Server
}

// newApp opens the store and builds the router. The memory driver is loaded
// with the seed fixtures so a fresh process has accounts to log in with.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	secret, err := auth.ResolveSecret(cfg.Auth.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("security configuration error: %w", err)
	}
	tokens, err := auth.NewJWTService(auth.JWTConfig{
		Secret:          secret,
		Issuer:          cfg.Auth.Issuer,
		AccessLifetime:  cfg.Auth.AccessTokenLifetime,
		RefreshLifetime: cfg.Auth.RefreshTokenLifetime,
	})
	if err != nil {
		return nil, err
	}

	st, err := openStores(ctx, &cfg.Database, cfg.Database.AutoMigrate)
	if err != nil {
		return nil, err
	}
	if cfg.Database.Driver == config.DriverMemory {
		if _, err := seed.Ensure(ctx, st.users, st.orgs); err != nil {
			st.Close()
			return nil, fmt.Errorf("failed to seed memory store: %w", err)
		}
	}

	router, bg, err := api.NewRouter(cfg, api.Dependencies{
		Organizations: st.orgs,
		Users:         st.users,
		Pinger:        st.pinger,
		Tokens:        tokens,
	})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to build router: %w", err)
	}

	a := &app{
		server: &http.Server{
			Addr:              cfg.Server.GetAddress(),
			Handler:           router,
			ReadTimeout:       cfg.Server.ReadTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      cfg.Server.WriteTimeout,
		},
		bg:     bg,
		stores: st,
	}
	if cfg.Telemetry.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		a.metrics = &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Telemetry.Metrics.PrometheusPort),
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
	}
	return a, nil
}

// shutdown drains the listeners, then stops background services and closes the store.
func (a *app) shutdown(ctx context.Context) error {
	var errs []error
	if err := a.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("server forced to shutdown: %w", err))
	}
	if a.metrics != nil {
		if err := a.metrics.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server forced to shutdown: %w", err))
		}
	}
	a.bg.Shutdown()
	if err := a.stores.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close database: %w", err))
	}
	return errors.Join(errs...)
}

func serve(parent context.Context, configPath string, cfg *config.Config) error {
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}

	if a.stores.sqlDB != nil {
		telemetry.StartDBStatsCollector(ctx, a.stores.sqlDB.DB)
	}

	if err := config.Watch(configPath, func(next *config.Config) {
		telemetry.SetLevel(next.Logging.Level)
	}); err != nil {
		slog.Warn("config hot reload disabled", "error", err)
	}

	if a.metrics != nil {
		safego.Go("metrics-server", func() {
			slog.Info("starting Prometheus metrics server", "addr", a.metrics.Addr)
			if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server error", "error", err)
			}
		})
	}

	serverErr := make(chan error, 1)
	safego.Go("http-server", func() {
		slog.Info("starting server",
			"addr", a.server.Addr,
			"database", cfg.Database.Driver,
			"tls", cfg.Security.TLS.Enabled,
			"version", api.Version,
		)
		var err error
		if cfg.Security.TLS.Enabled {
			err = a.server.ListenAndServeTLS(cfg.Security.TLS.CertFile, cfg.Security.TLS.KeyFile)
		} else {
			err = a.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	})

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("shutting down server")
	case err := <-serverErr:
		runErr = fmt.Errorf("failed to start server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.shutdown(shutdownCtx); err != nil {
		return errors.Join(runErr, err)
	}
	if runErr != nil {
		return runErr
	}

	slog.Info("server stopped gracefully")
	return nil
}
