package main // Entry point package

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4" // Echo web framework
	"go.uber.org/zap"

	"github.com/iliyamo/exam-seating/internal/app"
	"github.com/iliyamo/exam-seating/internal/config" // Internal config loader
	"github.com/iliyamo/exam-seating/internal/handler"
	"github.com/iliyamo/exam-seating/internal/logger"
	"github.com/iliyamo/exam-seating/internal/middleware"
	"github.com/iliyamo/exam-seating/internal/queue"
	"github.com/iliyamo/exam-seating/internal/router" // Internal router setup
	"github.com/iliyamo/exam-seating/internal/service"
)

func main() {
	config.LoadDotEnv()
	cfg := config.Load() // Load environment config

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat, "exam-seating")
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, err := app.OpenStores(ctx, cfg.StoreDriver, cfg.DB, cfg.DBMigrate, log)
	if err != nil {
		log.Fatal("open store failed", zap.Error(err))
	}
	defer stores.Close()

	// Redis is optional: without it lookups are neither cached nor rate limited.
	rdb, err := config.NewRedisClient()
	if err != nil {
		log.Warn("redis unavailable; cache and rate limit disabled", zap.Error(err))
		rdb = nil
	}
	if rdb != nil {
		defer rdb.Close()
	}

	cacheCfg := config.LoadCacheConfig()
	flusher := middleware.NewCacheFlusher(cacheCfg, rdb)
	publisher := queue.NewPublisher(cfg.RabbitURL, cfg.AuditQueueEnabled, log)

	seating := service.NewSeatingService(stores.Rooms, stores.Seats, flusher, publisher, log)
	importer := service.NewImporter(stores.Rooms, stores.Seats, flusher, publisher, log)
	auth := service.NewAuthService(cfg.AdminPasswordHash, stores.Admins, cfg.JWTSecret, cfg.AccessTTLMin, log)
	if cfg.AdminPasswordHash == "" && stores.Admins == nil {
		log.Warn("no admin credentials configured; admin login is impossible")
	}

	e := echo.New() // Create Echo instance
	e.HideBanner = true
	e.Use(middleware.RequestID(), middleware.RequestLogger(log))
	router.Setup(e, router.Handlers{
		Health: handler.NewHealthHandler(stores.Pinger()),
		Lookup: handler.NewLookupHandler(seating, log),
		Auth:   handler.NewAuthHandler(auth, log),
		Admin:  handler.NewAdminHandler(seating, importer, cfg.ImportMaxBytes, cfg.PDFCellGap, log),
	}, router.Options{
		JWTSecret: cfg.JWTSecret,
		Redis:     rdb,
		RateLimit: config.LoadRateLimitConfig(),
		Cache:     cacheCfg,
	}, log)

	if cfg.AuditConsumerEnabled {
		consumer := &queue.Consumer{URL: cfg.RabbitURL, Dir: cfg.AuditLogDir, Log: log}
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("audit consumer stopped", zap.Error(err))
			}
		}()
	}

	addr := ":" + cfg.Port // Address string with port
	go func() {
		log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env), zap.String("store", cfg.StoreDriver))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown failed", zap.Error(err))
	}
}
