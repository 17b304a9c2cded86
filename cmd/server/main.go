package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"siteflow/internal/api"
	"siteflow/internal/config"
	"siteflow/internal/engine"
	"siteflow/internal/handler/sitehandlers"
	"siteflow/internal/history"
	"siteflow/internal/registry"
	"siteflow/internal/site"
)

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	cfgPath := flag.String("config", "configs/siteflow.yaml", "Path to service YAML config")
	histPath := flag.String("history", "siteflow-runs.db", "Path to run-history SQLite db (empty disables)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// ── Load config ──────────────────────────────────────────────────────────
	loader, err := config.NewLoader(*cfgPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	cfg := loader.Config()
	if err := config.Validate(cfg); err != nil {
		slog.Error("config validation failed", "err", err)
		os.Exit(1)
	}

	// ── Handler factory table ─────────────────────────────────────────────────
	table := registry.NewTable()
	sitehandlers.Register(table)

	// ── Registry snapshot + site catalog ──────────────────────────────────────
	snap, err := registry.Build(cfg, table)
	if err != nil {
		slog.Error("failed to build registry", "err", err)
		os.Exit(1)
	}
	sites := site.NewCatalog(cfg.Sites)
	slog.Info("registry built", "events", snap.Len(), "sites", sites.Len(), "handlers", len(table.Names()))

	// ── Run history ───────────────────────────────────────────────────────────
	var store *history.Store
	if *histPath != "" {
		store, err = history.Open(*histPath)
		if err != nil {
			slog.Error("failed to open run history", "err", err)
			os.Exit(1)
		}
		defer store.Close()
	}

	// ── Engine ────────────────────────────────────────────────────────────────
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng := engine.New(ctx, snap, sites, cfg.Engine, os.Stdout, store, logger)

	// ── Hot-reload watcher ────────────────────────────────────────────────────
	loader.OnChange(func(newCfg *config.ServiceConfig) {
		if err := config.Validate(newCfg); err != nil {
			slog.Warn("hot-reload skipped: config invalid", "err", err)
			return
		}
		newSnap, err := registry.Build(newCfg, table)
		if err != nil {
			slog.Warn("hot-reload skipped: registry build failed", "err", err)
			return
		}
		eng.Swap(newSnap, site.NewCatalog(newCfg.Sites))
		slog.Info("registry hot-reloaded", "events", newSnap.Len(), "sites", len(newCfg.Sites))
	})
	stopWatch, err := loader.Watch()
	if err != nil {
		slog.Warn("config watcher unavailable (hot-reload disabled)", "err", err)
	} else {
		defer stopWatch()
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	srv := &http.Server{
		Addr:         *addr,
		Handler:      api.New(eng, loader, table, store),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down…")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()
	_ = srv.Shutdown(shutCtx)
	cancel() // stop the worker pool
	eng.Shutdown()
	slog.Info("goodbye")
}
