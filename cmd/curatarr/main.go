package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gorm.io/gorm"

	"github.com/curatarr/curatarr/internal/config"
	"github.com/curatarr/curatarr/internal/database"
	"github.com/curatarr/curatarr/internal/events"
	"github.com/curatarr/curatarr/internal/logger"
	"github.com/curatarr/curatarr/internal/mediaprobe"
	"github.com/curatarr/curatarr/internal/modules/cachemodule"
	"github.com/curatarr/curatarr/internal/modules/enrichmentmodule"
	"github.com/curatarr/curatarr/internal/modules/jobmodule"
	"github.com/curatarr/curatarr/internal/modules/jobmodule/handlers"
	"github.com/curatarr/curatarr/internal/modules/modulemanager"
	"github.com/curatarr/curatarr/internal/modules/playermodule"
	"github.com/curatarr/curatarr/internal/modules/publishmodule"
	"github.com/curatarr/curatarr/internal/modules/scannermodule"
	"github.com/curatarr/curatarr/internal/modules/scannermodule/scanner"
	"github.com/curatarr/curatarr/internal/modules/wsmodule"
	"github.com/curatarr/curatarr/internal/server"
)

const playerRPCTimeout = 10 * time.Second

func main() {
	configPath := os.Getenv("CURATARR_CONFIG_PATH")
	if configPath == "" {
		if _, err := os.Stat("./curatarr.yaml"); err == nil {
			configPath = "./curatarr.yaml"
		}
	}
	if err := config.Load(configPath); err != nil {
		logger.Warn("Failed to load configuration from %s, using defaults: %v", configPath, err)
	} else if configPath != "" {
		logger.Info("Configuration loaded", "path", configPath)
	}
	cfg := config.Get()

	db, err := database.Connect(&cfg.Database)
	if err != nil {
		logger.Error("Database connection failed: %v", err)
		os.Exit(1)
	}
	if err := database.MigrateCore(db); err != nil {
		logger.Error("Core migration failed: %v", err)
		os.Exit(1)
	}

	settings := database.NewSettings(db)
	if err := settings.SeedDefaults(); err != nil {
		logger.Error("Settings seeding failed: %v", err)
		os.Exit(1)
	}
	if err := scannermodule.SeedIgnorePatterns(db, settings); err != nil {
		logger.Error("Ignore pattern seeding failed: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bus := events.NewEventBus(256)
	if err := bus.Start(ctx); err != nil {
		logger.Error("Event bus start failed: %v", err)
		os.Exit(1)
	}

	store, err := cachemodule.NewStore(cfg.Cache.RootDir)
	if err != nil {
		logger.Error("Cache store init failed: %v", err)
		os.Exit(1)
	}
	cache := cachemodule.NewService(store, db)

	matcher, err := scannermodule.NewIgnoreMatcher(db)
	if err != nil {
		logger.Error("Ignore matcher init failed: %v", err)
		os.Exit(1)
	}

	prober := mediaprobe.NewVideoProber(cfg.Scanner.FFprobePath)
	gatherer := scanner.NewFactGatherer(prober, cache.Repo(), cfg.Scanner.ProbeTimeout, int(cfg.Scanner.TextReadLimit))
	gatherer.SetIgnore(matcher.Match)

	queue := jobmodule.NewQueue(db, bus)
	publisher := publishmodule.NewPublisher(db, cache, bus)

	providerCfg, err := loadProviderConfig(db)
	if err != nil {
		logger.Error("Provider configuration failed: %v", err)
		os.Exit(1)
	}
	provider := enrichmentmodule.NewTMDBProvider(providerCfg, cfg.Enrichment.RequestTimeout)
	catalog := enrichmentmodule.NewCatalog(db, cfg.Enrichment)
	enricher := enrichmentmodule.NewEnricher(db, provider, catalog, cache, settings, bus, cfg.Enrichment)

	// Registration order is migration order; core modules first.
	jobs := jobmodule.Register(queue, cfg.Jobs)
	cachemodule.Register(db, cache)
	scannerMod := scannermodule.Register(db, queue, bus, matcher)
	enrichmentmodule.Register(enricher)
	ws := wsmodule.Register(bus)
	players := playermodule.Register(db, bus, playerRPCTimeout)

	if err := modulemanager.LoadAll(db); err != nil {
		logger.Error("Module initialization failed: %v", err)
		os.Exit(1)
	}
	if err := database.InstallTriggers(db); err != nil {
		logger.Error("Trigger installation failed: %v", err)
		os.Exit(1)
	}

	handlers.RegisterAll(jobs.Registry(), &handlers.Deps{
		DB:        db,
		Queue:     queue,
		Gatherer:  gatherer,
		Cache:     cache,
		Publisher: publisher,
		Enricher:  enricher,
		Players:   players,
		Scanner:   scannerMod,
		Settings:  settings,
		Bus:       bus,
		Cfg:       cfg,
	})

	if err := ws.Start(); err != nil {
		logger.Error("WebSocket broadcaster start failed: %v", err)
		os.Exit(1)
	}
	if err := jobs.Start(ctx); err != nil {
		logger.Error("Job workers start failed: %v", err)
		os.Exit(1)
	}
	if cfg.Scanner.WatcherEnabled {
		if err := scannerMod.AttachWatcher(cfg.Scanner.WatchDebounce); err != nil {
			logger.Warn("Filesystem watcher unavailable: %v", err)
		}
	}

	srv := server.New(cfg, db, settings, scannerMod, queue, ws, bus)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("HTTP server failed: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown: %v", err)
	}
	scannerMod.Stop()
	jobs.Stop()
	ws.Stop()
	if err := bus.Stop(shutdownCtx); err != nil {
		logger.Warn("Event bus shutdown: %v", err)
	}
	logger.Info("Shutdown complete")
}

// loadProviderConfig returns the TMDB row, creating it on first run. The API
// key always follows the environment so rotating it needs no DB edit.
func loadProviderConfig(db *gorm.DB) (*database.ProviderConfig, error) {
	row := database.ProviderConfig{
		Name:            "tmdb",
		Enabled:         true,
		Priority:        5,
		RateLimitPerSec: 4,
	}
	if err := db.Where(database.ProviderConfig{Name: "tmdb"}).FirstOrCreate(&row).Error; err != nil {
		return nil, err
	}
	if key := os.Getenv("TMDB_API_KEY"); key != "" {
		row.APIKey = key
	}
	if row.APIKey == "" {
		logger.Warn("TMDB_API_KEY is not set; enrichment jobs will fail until it is")
	}
	return &row, nil
}
