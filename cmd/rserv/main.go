package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"rserv/internal/config"
	"rserv/internal/fsutil"
	"rserv/internal/graphidx"
	"rserv/internal/httpapi"
	"rserv/internal/idalloc"
	"rserv/internal/jobs"
	"rserv/internal/logging"
	"rserv/internal/query"
	"rserv/internal/schema"
	"rserv/internal/store"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(false)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if err := os.MkdirAll(filepath.Join(cfg.DataDir, cfg.Schema), 0755); err != nil {
		logger.Fatalf("failed to create data directory: %v", err)
	}

	layout := fsutil.NewLayout(cfg.DataDir, cfg.Schema)
	registry := schema.NewRegistry("schema", cfg.Schema)
	if err := registry.Load(); err != nil {
		logger.Warnw("schema registry load failed, continuing schemaless", "error", err)
	}
	allocator := idalloc.New(layout)

	var index *graphidx.Index
	if cfg.GraphEnabled {
		persisted := cfg.GraphMode == config.GraphIndexed
		index = graphidx.New(persisted, layout.GraphIndexPath(), logger)
	}

	jobManager := jobs.NewManager(jobs.Config{
		Runner:        query.New(index),
		WorkerCount:   cfg.QueryWorkerCount,
		CacheCapacity: 256,
		CacheTTL:      time.Duration(cfg.CacheTTLSeconds) * time.Second,
		QueryTimeout:  time.Duration(cfg.QueryTimeoutSecs) * time.Second,
		Logger:        logger,
	})

	documentStore := store.New(store.Config{
		Layout:         layout,
		Registry:       registry,
		Allocator:      allocator,
		Index:          index,
		Invalidator:    jobManager.Cache(),
		CacheTTL:       time.Duration(cfg.CacheTTLSeconds) * time.Second,
		PatchNull:      store.PatchNullPolicy(cfg.PatchNull),
		CascadeEnabled: cfg.CascadingDelete,
		Logger:         logger,
	})

	if cfg.GraphEnabled {
		entities, err := documentStore.Entities()
		if err != nil {
			logger.Warnw("failed to list entities for graph boot scan", "error", err)
		} else if err := index.LoadOrRebuild(entities, documentStore.ScanEntity); err != nil {
			logger.Warnw("graph index boot scan failed, starting with an empty index", "error", err)
		}
	}

	srv := httpapi.New(httpapi.Config{
		Store:           documentStore,
		Index:           index,
		Jobs:            jobManager,
		Logger:          logger,
		DefaultPageSize: cfg.DefaultPageSize,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	go func() {
		if err := srv.Start(addr); err != nil {
			logger.Infow("http server stopped", "error", err)
		}
	}()
	logger.Infow("rserv listening", "addr", addr, "schema", cfg.Schema, "data_dir", cfg.DataDir)

	shutdownSignal := make(chan os.Signal, 1)
	signal.Notify(shutdownSignal, syscall.SIGINT, syscall.SIGTERM)
	<-shutdownSignal

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnw("error stopping http server", "error", err)
	}
	jobManager.Shutdown()
}
