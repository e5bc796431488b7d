package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/config"
	"github.com/clinic/clinic/internal/domain/attendance"
	"github.com/clinic/clinic/internal/domain/directory"
	"github.com/clinic/clinic/internal/platform/audit"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/lock"
	"github.com/clinic/clinic/internal/platform/middleware"
)

const version = "0.1.0"

// routes is everything newRouter mounts. dbHealth may be nil.
type routes struct {
	directory  *directory.Handler
	attendance *attendance.Handler
	dbHealth   echo.HandlerFunc
}

func authMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	jwksURL := cfg.AuthJWKSURL
	if jwksURL == "" && cfg.AuthIssuer != "" {
		jwksURL = strings.TrimSuffix(cfg.AuthIssuer, "/") + "/.well-known/jwks.json"
	}

	var verify echo.MiddlewareFunc
	if cfg.AuthSigningKey != "" || jwksURL != "" {
		verify = auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    jwksURL,
			SigningKey: []byte(cfg.AuthSigningKey),
			Skipper:    auth.AuthSkipper,
		})
	}
	if cfg.IsDev() {
		return auth.DevAuthMiddleware(verify)
	}
	if verify == nil {
		// Validate rejects this configuration outside development.
		return func(echo.HandlerFunc) echo.HandlerFunc {
			return func(echo.Context) error {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication is not configured")
			}
		}
	}
	return verify
}

func newRouter(cfg *config.Config, logger zerolog.Logger, r routes) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.RequestID())
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(middleware.BodyLimit("64K"))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	if r.dbHealth != nil {
		e.GET("/health/db", r.dbHealth)
	}

	apiV1 := e.Group("/api/v1")
	apiV1.Use(authMiddleware(cfg))

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))
	apiV1.Use(middleware.Audit(logger))

	r.directory.RegisterRoutes(apiV1)
	r.attendance.RegisterRoutes(apiV1)
	return e
}

func newLocker(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (lock.Locker, func(), error) {
	if cfg.RedisURL == "" {
		return lock.NewLocal(cfg.LockWait), func() {}, nil
	}
	client, err := lock.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	return lock.NewRedis(client, cfg.LockTTL, cfg.LockWait, logger), func() { client.Close() }, nil
}

// newAuditSink always logs. It also publishes to the queue when AMQP_URL is
// set and posts to AUDIT_WEBHOOK_URLS when configured.
func newAuditSink(cfg *config.Config, logger zerolog.Logger) (*audit.Async, func(), error) {
	sinks := audit.Multi{audit.NewLogSink(logger)}
	if len(cfg.WebhookURLs) > 0 {
		hooks, err := audit.NewWebhookSink(cfg.WebhookURLs, cfg.WebhookSecret)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, hooks)
	}
	closeQueue := func() {}
	if cfg.AMQPURL != "" {
		queue, err := audit.DialAMQP(cfg.AMQPURL, cfg.AuditQueue)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, queue)
		closeQueue = func() {
			if err := queue.Close(); err != nil {
				logger.Warn().Err(err).Msg("failed to close audit queue")
			}
		}
	}
	async := audit.NewAsync(sinks, 1024, 15*time.Second, logger)
	return async, func() {
		async.Close()
		closeQueue()
	}, nil
}

func runServer() error {
	logger := newLogger(os.Getenv("ENV"))

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, db.PoolOptions{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	migrator, err := db.NewMigrator(pool)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open migrator")
	}
	defer migrator.Close()

	locker, closeLocker, err := newLocker(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer closeLocker()

	auditSink, closeAudit, err := newAuditSink(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to audit queue")
	}
	defer closeAudit()

	dirSvc := directory.NewService(directory.NewBranchRepoPG(pool), directory.NewDoctorRepoPG(pool))
	mgr := attendance.NewManager(
		attendance.NewScheduleRepoPG(pool),
		attendance.NewEntryRepoPG(pool),
		db.NewTxRunner(pool),
		dirSvc, dirSvc,
		attendance.WithLocker(locker),
		attendance.WithAuditSink(auditSink),
		attendance.WithLogger(logger.With().Str("component", "attendance").Logger()),
	)

	e := newRouter(cfg, logger, routes{
		directory:  directory.NewHandler(dirSvc),
		attendance: attendance.NewHandler(mgr),
		dbHealth:   db.HealthHandler(pool, migrator),
	})

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
