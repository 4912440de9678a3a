// Kestrel - Declarative credit scoring over transaction history.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opensource-finance/kestrel/internal/api"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/catalog"
	"github.com/opensource-finance/kestrel/internal/decision"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("KESTREL_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for cluster mode via environment
	if os.Getenv("KESTREL_CLUSTER") == "true" {
		cfg = domain.ClusterConfig()
		slog.Info("running in cluster mode")
	}
	if path := os.Getenv("KESTREL_CATALOG"); path != "" {
		cfg.Catalog.Path = path
	}

	slog.Info("configuration loaded",
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"catalog_path", cfg.Catalog.Path,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize catalog store. A bad document does not stop startup: the
	// built-in default catalog serves until a valid one is supplied.
	store := bootstrapCatalog(ctx, cfg.Catalog, repo)
	slog.Info("catalog loaded",
		"version", store.Version(),
		"warnings", len(store.Current().Warnings),
	)

	// Initialize Decision Processor
	processor := decision.NewProcessor()

	// Initialize rescore worker
	rescoreWorker := worker.NewWorker(busImpl, repo, store, processor, worker.Config{
		Concurrency: 5,
	})
	if err := rescoreWorker.Start(); err != nil {
		slog.Error("failed to start rescore worker", "error", err)
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, store, processor, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version, store.Version())

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop worker first so in-flight rescores finish
	if err := rescoreWorker.Stop(); err != nil {
		slog.Error("failed to stop rescore worker", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

// bootstrapCatalog builds the catalog store from the configured source:
// a file path when set, otherwise the most recently stored document in the
// repository, otherwise the built-in default.
func bootstrapCatalog(ctx context.Context, cfg domain.CatalogConfig, repo domain.Repository) *catalog.Store {
	if cfg.Path != "" {
		snap, err := catalog.LoadFile(cfg.Path)
		if err != nil {
			slog.Warn("catalog file failed to load, serving built-in default",
				"path", cfg.Path,
				"error", err,
			)
		}
		source := func(ctx context.Context) ([]byte, error) {
			return os.ReadFile(cfg.Path)
		}
		return catalog.NewStore(snap, source)
	}

	source := func(ctx context.Context) ([]byte, error) {
		_, doc, err := repo.GetLatestCatalogDocument(ctx)
		return doc, err
	}

	_, doc, err := repo.GetLatestCatalogDocument(ctx)
	if err != nil {
		slog.Info("no stored catalog, serving built-in default")
		return catalog.NewStore(catalog.DefaultSnapshot(), source)
	}

	snap, err := catalog.Load(doc)
	if err != nil {
		slog.Warn("stored catalog failed to load, serving built-in default",
			"error", err,
		)
	}
	return catalog.NewStore(snap, source)
}

func printBanner(cfg *domain.Config, version, catalogVersion string) {
	fmt.Println()
	fmt.Println("  KESTREL - Credit Scoring Engine")
	fmt.Println("  Every rupee of history, weighed.")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Catalog:  %s\n", catalogVersion)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /applicants/{id}/transactions - Ingest transaction history")
	fmt.Println("    POST /evaluate                     - Evaluate an applicant")
	fmt.Println("    POST /rescore                      - Rescore applicants async")
	fmt.Println("    GET  /decisions/{id}               - Get decision by ID")
	fmt.Println("    GET  /applicants/{id}/decision     - Latest decision for applicant")
	fmt.Println("    GET  /catalog                      - Active rule catalog")
	fmt.Println("    PUT  /catalog                      - Install a new catalog")
	fmt.Println("    POST /catalog/reload               - Reload catalog from source")
	fmt.Println("    GET  /health                       - Health check")
	fmt.Println()
}
