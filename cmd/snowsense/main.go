package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/snowsense/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/snowsense/internal/adapter/kafka"
	"github.com/couchcryptid/snowsense/internal/adapter/mapbox"
	"github.com/couchcryptid/snowsense/internal/analysis"
	"github.com/couchcryptid/snowsense/internal/catalog"
	"github.com/couchcryptid/snowsense/internal/config"
	"github.com/couchcryptid/snowsense/internal/domain"
	"github.com/couchcryptid/snowsense/internal/gridio"
	"github.com/couchcryptid/snowsense/internal/observability"
	"github.com/couchcryptid/snowsense/internal/pipeline"
	"github.com/couchcryptid/snowsense/internal/preprocess"
	"github.com/couchcryptid/snowsense/internal/session"
	"github.com/couchcryptid/snowsense/internal/stacker"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	// Initialize geocoder (feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN).
	var geocoder domain.Geocoder
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, metrics, logger)
		geocoder = mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)
		metrics.GeocodeEnabled.Set(1)
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled")
	}

	cat, err := loadCatalog(cfg, geocoder, logger)
	if err != nil {
		logger.Error("failed to load region catalog", "error", err)
		os.Exit(1)
	}
	manifest, err := loadManifest(cfg)
	if err != nil {
		logger.Error("failed to load band manifest", "error", err)
		os.Exit(1)
	}
	store, err := newSessionStore(cfg, metrics)
	if err != nil {
		logger.Error("failed to open session store", "error", err)
		os.Exit(1)
	}

	sweeper := session.NewSweeper(store, cfg.SessionSweepInterval, logger)
	if err := sweeper.Start(); err != nil {
		logger.Error("failed to start session sweeper", "error", err)
		os.Exit(1)
	}

	st := stacker.New(manifest, gridio.Reader{}, logger, stacker.WithWorkers(cfg.StackWorkers))
	analyzer := analysis.New(cat, st, cfg.DataDir, logger,
		analysis.WithSettings(analysis.Settings{
			NDSIThreshold: cfg.NDSIThreshold,
			NIRThreshold:  cfg.NIRThreshold,
			Resolution:    cfg.PixelResolution,
			Sigma:         preprocess.DefaultSigma,
			AllTouched:    cfg.ClipAllTouched,
		}),
		analysis.WithSessionStore(store),
		analysis.WithRecorder(metrics),
	)

	ready := readiness{dataDir(cfg.DataDir)}

	var (
		p      *pipeline.Pipeline
		reader *kafkaadapter.Reader
		writer *kafkaadapter.Writer
	)
	if cfg.KafkaEnabled {
		reader = kafkaadapter.NewReader(cfg, logger)
		writer = kafkaadapter.NewWriter(cfg, logger)
		p = pipeline.New(reader, pipeline.NewTransformer(analyzer, logger), writer, logger, metrics, cfg.BatchSize)
		ready = append(ready, p)
	}

	api := httpadapter.API{Analyzer: analyzer, Regions: cat, Sessions: store}
	srv := httpadapter.NewServer(cfg.HTTPAddr, ready, api, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	// Start analysis pipeline.
	pipelineDone := make(chan struct{})
	go func() {
		defer close(pipelineDone)
		if p == nil {
			return
		}
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
	case <-pipelineDone:
	case <-shutdownCtx.Done():
		logger.Warn("pipeline did not stop before shutdown timeout")
	}
	if reader != nil {
		if err := reader.Close(); err != nil {
			logger.Error("kafka reader close error", "error", err)
		}
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	sweeper.Stop()

	logger.Info("shutdown complete")
}

func loadCatalog(cfg *config.Config, geocoder domain.Geocoder, logger *slog.Logger) (*catalog.Catalog, error) {
	regions := catalog.Builtin()
	if cfg.RegionCatalog != "" {
		var err error
		if regions, err = catalog.LoadRegions(cfg.RegionCatalog); err != nil {
			return nil, err
		}
	}
	opts := []catalog.Option{catalog.WithLogger(logger)}
	if geocoder != nil {
		opts = append(opts, catalog.WithGeocoder(geocoder))
	}
	return catalog.New(regions, opts...)
}

func loadManifest(cfg *config.Config) (stacker.Manifest, error) {
	if cfg.BandManifest == "" {
		return stacker.Sentinel2(), nil
	}
	return stacker.LoadManifest(cfg.BandManifest)
}

func newSessionStore(cfg *config.Config, metrics *observability.Metrics) (session.Store, error) {
	gauge := session.WithLiveGauge(metrics.SessionsLive)
	if cfg.SessionDir == "" {
		return session.NewMemoryStore(cfg.SessionMaxEntries, cfg.SessionMaxAge, gauge), nil
	}
	return session.NewDiskStore(cfg.SessionDir, cfg.SessionMaxEntries, cfg.SessionMaxAge, gauge)
}

// readiness is ready when every check passes.
type readiness []sharedobs.ReadinessChecker

func (r readiness) CheckReadiness(ctx context.Context) error {
	for _, c := range r {
		if err := c.CheckReadiness(ctx); err != nil {
			return err
		}
	}
	return nil
}

// dataDir is ready once the tile directory exists.
type dataDir string

func (d dataDir) CheckReadiness(_ context.Context) error {
	info, err := os.Stat(string(d))
	if err != nil {
		return fmt.Errorf("data dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("data dir %s is not a directory", d)
	}
	return nil
}
