package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/runforge/runforge/api"
	"github.com/runforge/runforge/config"
	"github.com/runforge/runforge/hub"
	"github.com/runforge/runforge/logger"
	"github.com/runforge/runforge/registry"
	"github.com/runforge/runforge/sequence"
	"github.com/runforge/runforge/service"
	"github.com/runforge/runforge/store"
	"github.com/runforge/runforge/supervisor"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zlog, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zlog.Sync()

	zlog.Info("starting runforge",
		zap.Int("http_port", cfg.Server.HTTPPort),
		zap.String("database", cfg.Store.DSN))

	// Initialize store
	db, err := store.NewSQLiteStore(cfg.Store)
	if err != nil {
		zlog.Fatal("failed to initialize store", zap.Error(err))
	}
	defer db.Close()

	// Initialize pipeline components
	seq := sequence.New(db)
	liveHub := hub.New(zlog, cfg.Live.SendBuffer)
	reg := registry.New(cfg.Registry.MaxRuns, cfg.Registry.MaxTailLines, cfg.Registry.CompletedTTL)

	svc := service.New(db, seq, liveHub, reg, cfg, zlog)
	sup := supervisor.New(svc, reg, cfg.Supervisor.FallbackShell, zlog)

	// Initialize handler
	h := api.NewHandler(svc, sup, cfg, zlog)

	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	h.RegisterRoutes(e)

	// Start server
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.HTTPPort)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			zlog.Fatal("failed to start server", zap.Error(err))
		}
	}()

	zlog.Info("API started", zap.Int("port", cfg.Server.HTTPPort))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zlog.Info("shutting down")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		zlog.Error("failed to shutdown server gracefully", zap.Error(err))
	}

	zlog.Info("stopped")
}
