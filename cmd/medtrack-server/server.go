package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/medtrack/medtrack/internal/config"
	"github.com/medtrack/medtrack/internal/domain/device"
	"github.com/medtrack/medtrack/internal/domain/implant"
	"github.com/medtrack/medtrack/internal/domain/maintenance"
	"github.com/medtrack/medtrack/internal/domain/performance"
	"github.com/medtrack/medtrack/internal/domain/prescription"
	"github.com/medtrack/medtrack/internal/domain/recall"
	"github.com/medtrack/medtrack/internal/platform/auth"
	"github.com/medtrack/medtrack/internal/platform/db"
	"github.com/medtrack/medtrack/internal/platform/middleware"
	"github.com/medtrack/medtrack/internal/platform/notification"
	"github.com/medtrack/medtrack/internal/platform/telemetry"
	"github.com/medtrack/medtrack/internal/platform/vault"
	"github.com/medtrack/medtrack/internal/platform/webhook"
	"github.com/medtrack/medtrack/internal/platform/websocket"
)

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	return db.NewPool(ctx, db.PoolConfig{
		URL:             cfg.DatabaseURL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnLifetime: cfg.DBConnMaxLifetime,
		MaxConnIdleTime: cfg.DBConnMaxIdleTime,
	})
}

func healthHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version,
	})
}

func runServer() error {
	logger := newLogger(os.Getenv("ENV"))

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config load failed")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("config invalid")
	}

	ctx := context.Background()
	pool, err := openPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("database connect failed")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	runner := db.NewRunner(pool)

	tp := telemetry.NewProvider(telemetry.Config{
		ServiceVersion: version,
		Environment:    cfg.Env,
	})
	defer tp.Shutdown(context.Background())

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Request pipeline
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(tp.TracingMiddleware())
	e.Use(tp.MetricsMiddleware())
	e.Use(middleware.SecurityHeaders())
	cors := echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Break-Glass", "X-Actor-ID"},
	}
	e.Use(echomw.CORSWithConfig(cors))
	e.Use(middleware.RequestTimeout(30 * time.Second))
	e.Use(middleware.BodyLimit("1M", "100M"))

	// Identity
	switch cfg.ResolvedAuthMode() {
	case "development":
		e.Use(auth.DevAuthMiddleware(auth.AuthSkipper))
	case "hmac":
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.AuthSigningKey),
			Skipper:    auth.AuthSkipper,
		}))
	default:
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:   cfg.AuthIssuer,
			Audience: cfg.AuthAudience,
			JWKSURL:  cfg.AuthJWKSURL,
			Skipper:  auth.AuthSkipper,
		}))
	}
	e.Use(middleware.BreakGlass(logger))
	e.Use(middleware.Audit(logger))

	apiV1 := e.Group("/api/v1")

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	// Probes and metrics stay outside the versioned group.
	e.GET("/health", healthHandler)
	e.GET("/health/db", db.HealthHandler(pool))
	e.GET("/metrics", tp.PrometheusHandler())

	// Real-time event feed
	hub := websocket.NewHub(logger)
	wsHandler := websocket.NewHandler(hub)
	wsHandler.RegisterRoutes(e.Group(""))

	// Webhook endpoint management (admin only)
	webhookStore := webhook.NewMemoryStore()
	webhookMgr := webhook.NewManager(webhookStore,
		webhook.WithHTTPClient(&http.Client{Timeout: cfg.WebhookTimeout}))
	webhookHandler := webhook.NewHandler(webhookMgr)
	webhookHandler.RegisterRoutes(apiV1.Group("/webhooks", auth.RequireRole("admin")))

	// Patient notifications. The roster template is rendered once per
	// affected implant when a recall notification run executes.
	gateway := &logGateway{logger: logger}
	catalog := notification.NewCatalog()
	catalog.Register(notification.Template{
		ID:       "recall-roster-notice",
		Name:     "Recall Roster Notice",
		Subject:  "Urgent: recall notice for your implanted device",
		Body:     "A recall affecting one of your implanted devices was issued on {{recall_date}}. Reason: {{reason}}. Required action: {{action_required}}. Please contact your care team to arrange a review.",
		Channel:  notification.ChannelEmail,
		Priority: "urgent",
	})
	notifMgr := notification.NewManager(catalog, map[notification.Channel]notification.Gateway{
		notification.ChannelEmail: gateway,
		notification.ChannelSMS:   gateway,
	})
	notifHandler := notification.NewHandler(notifMgr)
	notifHandler.RegisterRoutes(apiV1.Group("", auth.RequireRole("admin")))

	// Document vault
	docStore, err := vault.NewDiskStore(cfg.VaultDir)
	if err != nil {
		logger.Fatal().Err(err).Str("dir", cfg.VaultDir).Msg("failed to open document vault")
	}
	vaultHandler := vault.NewHandler(docStore)
	vaultHandler.RegisterRoutes(apiV1)

	events := &eventPublisher{
		webhooks: webhookMgr,
		hub:      hub,
		tp:       tp,
		logger:   logger,
	}

	// Domain slices: repo, service, handler, wired to the shared pool and
	// the event fan-out.
	deviceRepo := device.NewPostgresRepository(pool)
	deviceSvc := device.NewService(runner, deviceRepo)
	deviceSvc.SetPublisher(events)
	device.NewHandler(deviceSvc).RegisterRoutes(apiV1)

	implantRepo := implant.NewPostgresRepository(pool)
	implantSvc := implant.NewService(runner, implantRepo, deviceRepo)
	implantSvc.SetPublisher(events)
	implant.NewHandler(implantSvc).RegisterRoutes(apiV1)

	maintRepo := maintenance.NewPostgresRepository(pool)
	maintSvc := maintenance.NewService(runner, maintRepo, implantRepo)
	maintSvc.SetPublisher(events)
	maintenance.NewHandler(maintSvc).RegisterRoutes(apiV1)

	perfRepo := performance.NewPostgresRepository(pool)
	perfSvc := performance.NewService(runner, perfRepo, implantRepo)
	perfSvc.SetPublisher(events)
	performance.NewHandler(perfSvc).RegisterRoutes(apiV1)

	rxRepo := prescription.NewPostgresRepository(pool)
	rxSvc := prescription.NewService(runner, rxRepo)
	rxSvc.SetPublisher(events)
	prescription.NewHandler(rxSvc).RegisterRoutes(apiV1)

	recallRepo := recall.NewPostgresRepository(pool)
	recallSvc := recall.NewService(runner, recallRepo, implantRepo)
	recallSvc.SetPublisher(events)
	recallSvc.SetNotifier(&recallNotifier{manager: notifMgr, logger: logger})
	recall.NewHandler(recallSvc).RegisterRoutes(apiV1)

	go sampleGauges(pool, tp)

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if cfg.TLSEnabled {
			errCh <- e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			errCh <- e.Start(addr)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-quit:
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

// sampleGauges feeds pool occupancy and registry totals to the health
// gauges until the provider shuts down.
func sampleGauges(pool *pgxpool.Pool, tp *telemetry.Provider) {
	health := tp.Health()
	ticker := time.NewTicker(tp.MetricsInterval())
	defer ticker.Stop()
	for {
		select {
		case <-tp.Done():
			return
		case <-ticker.C:
			stat := pool.Stat()
			health.SetDBPoolActive(int64(stat.AcquiredConns()))
			health.SetDBPoolIdle(int64(stat.IdleConns()))

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			var devices, implants int64
			if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM devices`).Scan(&devices); err == nil {
				health.SetDevicesTotal(devices)
			}
			if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM implants WHERE active`).Scan(&implants); err == nil {
				health.SetImplantsActive(implants)
			}
			cancel()
		}
	}
}
