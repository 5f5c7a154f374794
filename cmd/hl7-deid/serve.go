package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/hl7deid/internal/config"
	"github.com/ehr/hl7deid/internal/platform/auth"
	"github.com/ehr/hl7deid/internal/platform/db"
	"github.com/ehr/hl7deid/internal/platform/deid"
	"github.com/ehr/hl7deid/internal/platform/hl7v2"
	"github.com/ehr/hl7deid/internal/platform/middleware"
	"github.com/ehr/hl7deid/internal/platform/report"
	"github.com/ehr/hl7deid/internal/platform/telemetry"
	"github.com/ehr/hl7deid/internal/platform/websocket"
)

const version = "0.1.0"

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and, when MLLP_ADDR is set, the MLLP listener",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := newEngine(cmd)
			if err != nil {
				return err
			}
			return runServer(cmd.Context(), eng)
		},
	}
}

func runServer(ctx context.Context, eng *engine) error {
	cfg, logger := eng.cfg, eng.logger

	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.IsDev() {
		logger.Warn().Msg("running in development mode: requests without a token are accepted as dev-user")
	}

	// Report sinks: the log and the live stream, plus Postgres when
	// configured.
	hub := websocket.NewHub(logger)
	sinks := []report.Sink{report.NewLogSink(logger), hub}
	var metrics *telemetry.Provider
	if cfg.MetricsEnabled {
		metrics = telemetry.NewProvider()
		sinks = append(sinks, metrics.Reports())
	}
	var (
		pool  *pgxpool.Pool
		store *report.Store
	)
	if cfg.HasDatabase() {
		var err error
		pool, err = db.NewPool(ctx, poolConfig(cfg))
		if err != nil {
			return err
		}
		defer pool.Close()
		logger.Info().Msg("connected to report database")

		store = report.NewStore(pool, logger, 256)
		defer store.Close()
		sinks = append(sinks, store)
	}
	sink := report.Multi(sinks...)

	limiter := newLimiter(cfg)
	e := newServer(cfg, logger, eng, sink, hub, limiter, pool, store, metrics)

	// HL7v2 MLLP TCP listener (optional, started when MLLP_ADDR is set)
	if cfg.MLLPAddr != "" {
		gw := deid.NewGateway(eng.items, eng.registry, sink, cfg.OutboxDir, logger)
		if metrics != nil {
			gw.WithObserver(metrics)
		}
		mllpServer := hl7v2.NewMLLPServer(cfg.MLLPAddr, gw.Handler(), logger)
		if err := mllpServer.Start(); err != nil {
			return err
		}
		defer mllpServer.Stop()
		logger.Info().Str("addr", mllpServer.Addr()).Str("outbox", cfg.OutboxDir).Msg("MLLP server started")
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if limiter != nil {
		go pruneLoop(sigCtx, limiter, time.Minute)
	}

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-sigCtx.Done()

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newServer assembles the echo instance. limiter, pool, store and metrics
// may be nil.
func newServer(cfg *config.Config, logger zerolog.Logger, eng *engine, sink report.Sink, hub *websocket.Hub, limiter *middleware.Limiter, pool *pgxpool.Pool, store *report.Store, metrics *telemetry.Provider) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	if metrics != nil {
		e.Use(metrics.MetricsMiddleware())
	}
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	if len(cfg.CORSOrigins) > 0 {
		e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
			AllowOrigins: cfg.CORSOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost},
			AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		}))
	}

	// Auth middleware
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware(auth.AuthSkipper))
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.AuthSigningKey),
			Skipper:    auth.AuthSkipper,
		}))
	}
	if limiter != nil {
		e.Use(limiter.Middleware())
	}

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	if pool != nil {
		e.GET("/health/db", db.HealthHandler(pool))
	}
	if metrics != nil {
		e.GET("/metrics", metrics.PrometheusHandler())
	}

	apiV1 := e.Group("/api/v1")

	deidGroup := apiV1.Group("", auth.RequireScope(auth.ScopeDeidentify))
	hl7v2.NewHandler().RegisterRoutes(deidGroup)
	deidHandler := deid.NewHandler(eng.items, eng.registry, sink)
	if metrics != nil {
		deidHandler.WithObserver(metrics)
	}
	deidHandler.RegisterRoutes(deidGroup)

	reportGroup := apiV1.Group("", auth.RequireScope(auth.ScopeReportsRead))
	websocket.NewHandler(hub).RegisterRoutes(reportGroup)
	if store != nil {
		report.NewHandler(store).RegisterRoutes(reportGroup)
	}

	return e
}

// newLimiter returns nil when rate limiting is disabled with RATE_LIMIT_RPS=0.
func newLimiter(cfg *config.Config) *middleware.Limiter {
	if cfg.RateLimitRPS <= 0 {
		return nil
	}
	rl := middleware.DefaultRateLimitConfig()
	rl.RequestsPerSecond = cfg.RateLimitRPS
	if cfg.RateLimitBurst > 0 {
		rl.BurstSize = cfg.RateLimitBurst
	}
	return middleware.NewLimiter(rl)
}

func pruneLoop(ctx context.Context, l *middleware.Limiter, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Prune()
		}
	}
}
