// Command publisher owns the shared trade region and accepts trades over an
// OAuth2-protected HTTP API, writing each one into its symbol's slot.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"jotacomputing/trade-shm/config"
	"jotacomputing/trade-shm/handlers"
	"jotacomputing/trade-shm/logger"
	"jotacomputing/trade-shm/writer"
)

const service = "shm-publisher"

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.New(service, "info", "").Fatal("failed to load config", zap.Error(err))
	}

	log := logger.New(service, cfg.Log.Level, cfg.Log.File)
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Error("publisher exited", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w, err := writer.Create(cfg.Region.Path, cfg.Region.Symbols)
	if err != nil {
		return err
	}
	defer func() {
		if err := w.Close(); err != nil {
			log.Warn("failed to close region", zap.Error(err))
		}
	}()
	log.Info("region ready",
		zap.String("path", cfg.Region.Path),
		zap.Strings("symbols", w.Symbols()))

	if err := handlers.InitOAuth(cfg.OAuth.ClientID, cfg.OAuth.ClientSecret, cfg.OAuth.Domain); err != nil {
		return err
	}

	e := echo.New()
	e.HideBanner = true
	handlers.RegisterPublisher(e, &handlers.PublishHandlers{Writer: w})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	errc := make(chan error, 1)
	go func() {
		log.Info("http listening", zap.String("addr", cfg.HTTP.Addr))
		if err := e.Start(cfg.HTTP.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errc:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
