package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"jotacomputing/trade-shm/config"
	"jotacomputing/trade-shm/db"
	"jotacomputing/trade-shm/handlers"
	"jotacomputing/trade-shm/latency"
	"jotacomputing/trade-shm/logger"
	"jotacomputing/trade-shm/poller"
	"jotacomputing/trade-shm/reader"
)

const service = "shm-reader"

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.New(service, "info", "").Fatal("failed to load config", zap.Error(err))
	}

	log := logger.New(service, cfg.Log.Level, cfg.Log.File)
	defer func() { _ = log.Sync() }()
	log.Info("config loaded", zap.Stringer("config", cfg))

	if err := run(cfg, log); err != nil {
		log.Error("reader exited", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rd, err := reader.Open(cfg.Region.Path, cfg.Region.Symbols)
	if err != nil {
		return err
	}
	defer rd.Close()
	log.Info("attached to region",
		zap.String("path", cfg.Region.Path),
		zap.Strings("symbols", rd.Symbols()))

	store, err := db.Open(cfg.DB.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	tracker := latency.NewTracker(cfg.Latency.Window, latency.SystemClock)
	p := poller.New(rd, tracker, cfg.Region.Symbols, cfg.Poll.Interval, log.Named("poller"))

	e := echo.New()
	e.HideBanner = true
	(&handlers.ReaderHandlers{Trades: p, Latency: tracker, History: store}).Register(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// buffered so the error is queued before stop() ends the poll loop
	httpErrc := make(chan error, 1)
	go func() {
		log.Info("http listening", zap.String("addr", cfg.HTTP.Addr))
		if err := e.Start(cfg.HTTP.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErrc <- fmt.Errorf("http server: %w", err)
			stop()
		}
	}()

	go report(ctx, store, tracker, cfg.Latency.ReportInterval, log)

	pollErr := p.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}

	// final snapshot so the last window is not lost
	saveSummaries(shutdownCtx, store, tracker, log)

	select {
	case err := <-httpErrc:
		return err
	default:
	}
	if errors.Is(pollErr, context.Canceled) {
		log.Info("shutting down")
		return nil
	}
	return pollErr
}

// report persists and logs a summary for every symbol each interval.
func report(ctx context.Context, store *db.Store, tracker *latency.Tracker, every time.Duration, log *zap.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			saveSummaries(ctx, store, tracker, log)
		}
	}
}

func saveSummaries(ctx context.Context, store *db.Store, tracker *latency.Tracker, log *zap.Logger) {
	sums := tracker.Summaries()
	if len(sums) == 0 {
		return
	}
	for _, s := range sums {
		log.Info("latency",
			zap.String("symbol", s.Symbol),
			zap.Int("count", s.Count),
			zap.Float64("mean_ms", s.Mean),
			zap.Float64("median_ms", s.Median),
			zap.Float64("stddev_ms", s.StdDev),
			zap.Float64("p95_ms", s.P95),
			zap.Float64("p99_ms", s.P99),
			zap.Float64("min_ms", s.Min),
			zap.Float64("max_ms", s.Max))
	}
	if err := store.SaveSummaries(ctx, time.Now(), sums); err != nil {
		log.Warn("failed to persist latency summaries", zap.Error(err))
	}
}
