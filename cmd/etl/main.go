package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/storm-mosaic-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/storm-mosaic-etl/internal/adapter/kafka"
	"github.com/couchcryptid/storm-mosaic-etl/internal/adapter/mapbox"
	mqttadapter "github.com/couchcryptid/storm-mosaic-etl/internal/adapter/mqtt"
	"github.com/couchcryptid/storm-mosaic-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/storm-mosaic-etl/internal/config"
	"github.com/couchcryptid/storm-mosaic-etl/internal/domain"
	"github.com/couchcryptid/storm-mosaic-etl/internal/observability"
	"github.com/couchcryptid/storm-mosaic-etl/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize geocoder (feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN).
	var geocoder domain.Geocoder
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, cfg.MapboxRateLimit, metrics, logger)
		geocoder = mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)
		metrics.GeocodeEnabled.Set(1)
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize,
			"timeout", cfg.MapboxTimeout, "rate_limit", cfg.MapboxRateLimit)
	} else {
		logger.Info("mapbox geocoding disabled")
	}

	reader := kafkaadapter.NewReader(cfg, logger)
	writer := kafkaadapter.NewWriter(cfg, logger)
	transformer := pipeline.NewTransformer(geocoder, logger, metrics)

	var opts []pipeline.Option

	var catalog *sqlite.Catalog
	if cfg.CatalogEnabled() {
		catalog, err = sqlite.Open(ctx, cfg.CatalogPath, logger)
		if err != nil {
			logger.Error("failed to open product catalog", "error", err)
			os.Exit(1)
		}
		opts = append(opts, pipeline.WithDeduper(catalog))
	}

	var alerts *mqttadapter.Publisher
	if cfg.AlertsEnabled() {
		alerts = mqttadapter.NewPublisher(cfg, logger)
		if err := alerts.Connect(ctx); err != nil {
			// Connect gives up after a short wait; the client keeps retrying.
			logger.Warn("mqtt connect failed, continuing without alerts until reconnect", "error", err)
		}
		opts = append(opts, pipeline.WithNotifier(alerts))
	}

	p := pipeline.New(reader, transformer, writer, logger, metrics, cfg.BatchSize, opts...)

	var latest httpadapter.LatestProductSource = p
	if catalog != nil {
		latest = catalog
	}
	srv := httpadapter.NewServer(cfg.HTTPAddr, p, latest, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start ETL pipeline.
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("pipeline did not stop before shutdown timeout")
	}

	if err := reader.Close(); err != nil {
		logger.Error("kafka reader close error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}
	if alerts != nil {
		alerts.Disconnect()
	}
	if catalog != nil {
		if err := catalog.Close(); err != nil {
			logger.Error("catalog close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
