package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	httpapi "github.com/i474232898/terrain-invest/internal/api/http"
	"github.com/i474232898/terrain-invest/internal/config"
	"github.com/i474232898/terrain-invest/internal/observability"
	"github.com/i474232898/terrain-invest/internal/risk"
	"github.com/i474232898/terrain-invest/internal/scheduler"
	"github.com/i474232898/terrain-invest/internal/store"
	"github.com/i474232898/terrain-invest/internal/terrain"
	"github.com/i474232898/terrain-invest/internal/terrain/providers"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zl, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zl.Sync() //nolint:errcheck
	logger := zl.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatalw("failed to open store", "driver", cfg.DBDriver, "error", err)
	}
	defer st.Close()

	for _, site := range cfg.Sites {
		if err := st.AddSite(ctx, site); err != nil && !errors.Is(err, store.ErrDuplicateSite) {
			logger.Fatalw("failed to seed site", "site", site.ID, "error", err)
		}
	}

	metrics := observability.NewMetrics()

	// Shared HTTP client for outbound upstream calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}
	backoff := providers.DefaultBackoff(cfg.UpstreamMaxRetries)

	elevation := providers.NewOpenTopoDataProvider(httpClient, cfg.ElevationURL, backoff, metrics)
	overpassClient := &http.Client{
		Timeout: cfg.OverpassTimeout,
	}
	features := providers.NewOverpassProvider(overpassClient, cfg.OverpassURL, cfg.OverpassMinInterval, backoff, metrics)
	meteo := providers.NewOpenMeteoProvider(httpClient, cfg.OpenMeteoURL, backoff, metrics)

	terrainSvc := terrain.NewService(elevation, features, meteo, st, metrics, logger,
		terrain.WithRadius(cfg.SearchRadiusM))
	riskSvc := risk.NewService(meteo, st, cfg.Regions, cfg.DefaultRequestedBy, nil, metrics, logger)

	sched := scheduler.New(cfg.RefreshInterval, terrainSvc, logger)
	if err := sched.Start(); err != nil {
		logger.Fatalw("failed to start scheduler", "error", err)
	}
	defer sched.Stop()

	// Batches run strictly sequentially, so analysis requests can take minutes.
	app := fiber.New(fiber.Config{
		AppName:               "terrain-invest",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          5 * time.Minute,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	// Global middleware
	app.Use(fiberlogger.New())
	app.Use(recover.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "terrain-invest",
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// API routes.
	httpapi.RegisterRoutes(app, terrainSvc, riskSvc, logger)

	go func() {
		logger.Infow("starting server", "port", cfg.Port, "store", cfg.DBDriver)
		if err := app.Listen(":" + cfg.Port); err != nil {
			logger.Warnw("fiber server stopped", "error", err)
		}
	}()

	// Wait for termination signal
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Errorw("error during shutdown", "error", err)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}

func openStore(ctx context.Context, cfg *config.AppConfig) (store.Store, error) {
	switch cfg.DBDriver {
	case store.DriverPostgres, store.DriverSQLite:
		return store.OpenSQL(ctx, cfg.DBDriver, cfg.DatabaseURL)
	default:
		return store.NewMemoryStore(cfg.StoreMaxHistory), nil
	}
}
