package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/nphies/bridge/internal/config"
	"github.com/nphies/bridge/internal/domain/authorization"
	"github.com/nphies/bridge/internal/domain/communication"
	"github.com/nphies/bridge/internal/observability/metrics"
	"github.com/nphies/bridge/internal/platform/auth"
	"github.com/nphies/bridge/internal/platform/db"
	"github.com/nphies/bridge/internal/platform/middleware"
	"github.com/nphies/bridge/internal/platform/nphies"
)

func main() {
	root := &cobra.Command{
		Use:   "bridge-server",
		Short: "NPHIES claims exchange bridge",
	}

	root.AddCommand(serveCmd(), migrateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}
	return logger
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger := newLogger(cfg)

			ctx := cmd.Context()
			pool, err := db.NewPool(ctx, db.PoolConfig{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			defer pool.Close()

			registry := prometheus.NewRegistry()
			registry.MustRegister(collectors.NewGoCollector())
			exchangeMetrics := metrics.NewExchangeMetrics(registry)

			client, err := nphies.NewClient(nphies.ClientConfig{
				BaseURL:    cfg.NPHIESBaseURL,
				LicenseID:  cfg.NPHIESLicenseID,
				ProviderID: cfg.ProviderID,
				Timeout:    cfg.HTTPTimeout(),
				RetryDelay: time.Second,
				Logger:     logger,
				Metrics:    exchangeMetrics,
			})
			if err != nil {
				return fmt.Errorf("create exchange client: %w", err)
			}

			authRepo := authorization.NewRequestRepoPG(pool)
			authSvc := authorization.NewService(authRepo)

			commRepo := communication.NewCommunicationRepoPG(pool)
			commReqRepo := communication.NewCommunicationRequestRepoPG(pool)
			composer := communication.NewComposer(cfg.ProviderID, cfg.PayerID, cfg.NPHIESBaseURL)
			commSvc := communication.NewService(
				commRepo, commReqRepo, authSvc, composer, client, exchangeMetrics, logger)
			scheduler := communication.NewScheduler(commSvc, cfg.PollRetryDelay(), logger)

			e := echo.New()
			e.HideBanner = true
			e.HidePort = true

			e.Use(middleware.RequestID())
			e.Use(middleware.RequestLogger(logger))
			e.Use(middleware.Recovery(logger))
			e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
				AllowOrigins: cfg.CORSOrigins,
				AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
			}))

			e.GET("/health", db.HealthHandler(pool))
			e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

			api := e.Group("/api/v1")
			api.Use(auth.Middleware(cfg.JWTSigningKey, cfg.IsDev()))

			authorization.NewHandler(authSvc).RegisterRoutes(api)
			communication.NewHandler(commSvc, scheduler).RegisterRoutes(api)

			go func() {
				logger.Info().Str("port", cfg.Port).Msg("server starting")
				if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
					logger.Fatal().Err(err).Msg("server failed")
				}
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit

			logger.Info().Msg("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return e.Shutdown(shutdownCtx)
		},
	}
}

func migrateCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
	}
	cmd.PersistentFlags().StringVar(&dir, "dir", "migrations", "migrations directory")

	withMigrator := func(run func(context.Context, *db.Migrator) error) func(*cobra.Command, []string) error {
		return func(c *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger := newLogger(cfg)

			ctx := c.Context()
			pool, err := db.NewPool(ctx, db.PoolConfig{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			defer pool.Close()

			return run(ctx, db.NewMigrator(pool, dir, logger))
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations",
			RunE: withMigrator(func(ctx context.Context, m *db.Migrator) error {
				return m.Up(ctx)
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show migration status",
			RunE: withMigrator(func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return err
				}
				for _, s := range statuses {
					state := "pending"
					if s.Applied {
						state = "applied"
					}
					fmt.Printf("%-8s %-40s %s\n", s.Version, s.Name, state)
				}
				return nil
			}),
		},
	)

	return cmd
}
