// Package main provides the AIDEFEND MCP server entry point.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/aidefend/aidefend-mcp/internal/config"
	"github.com/aidefend/aidefend-mcp/internal/corpus"
	"github.com/aidefend/aidefend-mcp/internal/embedding"
	"github.com/aidefend/aidefend-mcp/internal/engine"
	ghclient "github.com/aidefend/aidefend-mcp/internal/github"
	"github.com/aidefend/aidefend-mcp/internal/indexer"
	mcpserver "github.com/aidefend/aidefend-mcp/internal/mcp"
	"github.com/aidefend/aidefend-mcp/internal/state"
	"github.com/aidefend/aidefend-mcp/internal/storage"
)

func main() {
	// Load .env if present (local development), ignore if missing.
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	store, err := storage.NewQdrantStore(cfg.QdrantHost, cfg.QdrantPort)
	if err != nil {
		return err
	}
	defer store.Close()

	stateStore, err := state.Open(cfg.DataDir, logger)
	if err != nil {
		return err
	}
	defer stateStore.Close()

	embeddingClient, err := embedding.NewClient()
	if err != nil {
		return err
	}
	embedder, err := embedding.NewEmbedder(embeddingClient, 0)
	if err != nil {
		return err
	}

	gh, err := ghclient.NewClient(ctx)
	if err != nil {
		return err
	}
	fetcher := ghclient.NewFetcher(gh, cfg.CorpusOwner, cfg.CorpusRepo, cfg.CorpusBranch, cfg.TacticsPath)

	eng := engine.New(store, embedder, logger)
	builder := indexer.NewBuilder(embedder, store, logger)
	orchestrator := indexer.NewOrchestrator(
		fetcher,
		corpus.NewExtractor(logger),
		builder,
		store,
		stateStore,
		eng,
		cfg.SyncPoolSize,
		logger,
	)

	// Recover whatever the last completed sync left behind. A fresh
	// deployment has nothing yet; the engine stays warming until the
	// first sync swaps a generation in.
	if err := loadPersistedGeneration(ctx, eng, store, stateStore, logger); err != nil {
		return err
	}
	if err := orchestrator.CleanupOrphans(ctx); err != nil {
		logger.Warn("orphan cleanup failed", "error", err)
	}

	// Background sync loop. An immediate sync warms a cold index; after
	// that the ticker keeps the corpus fresh. Failures are logged and the
	// serving generation is untouched.
	if cfg.SyncInterval > 0 {
		go syncLoop(ctx, orchestrator, cfg.SyncInterval, logger)
	}

	server := mcpserver.NewServer(&mcpserver.Config{
		Engine: eng,
		Syncer: orchestrator,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/health", mcpserver.NewHealthHandler(store, eng))
	mux.Handle("/mcp", mcpserver.NewHTTPHandler(server, nil))
	mux.HandleFunc("/", mcpserver.NewLandingHandler())

	addr := "0.0.0.0:" + cfg.HTTPPort
	if cfg.ServerMode {
		logger.Info("starting HTTP server", "addr", addr)
		return http.ListenAndServe(addr, mux)
	}

	// Stdio mode still serves /health in the background for probes.
	go func() {
		logger.Info("starting health server", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("health server error", "error", err)
		}
	}()

	logger.Info("starting MCP server (stdio mode)")
	return server.Run(ctx)
}

// loadPersistedGeneration restores the engine from the slots recorded by
// the last completed sync, if any.
func loadPersistedGeneration(ctx context.Context, eng *engine.Engine, store *storage.QdrantStore, stateStore *state.Store, logger *slog.Logger) error {
	slots, err := stateStore.Slots()
	if err != nil {
		return err
	}
	if slots.Current == "" {
		logger.Info("no persisted generation, index will warm on first sync")
		return nil
	}

	exists, err := store.GenerationExists(ctx, slots.Current)
	if err != nil {
		return err
	}
	if !exists {
		logger.Warn("persisted generation missing from qdrant, waiting for next sync", "generation", slots.Current)
		return nil
	}

	version, err := stateStore.Version()
	if err != nil {
		return err
	}
	info := engine.VersionInfo{}
	if version != nil {
		info = engine.VersionInfo{
			Commit:      version.Commit,
			SyncedAt:    version.SyncedAt,
			MemberCount: version.MemberCount,
		}
	}
	return eng.Load(ctx, slots.Current, info)
}

// syncLoop runs one sync immediately, then on every tick until ctx ends.
func syncLoop(ctx context.Context, orchestrator *indexer.Orchestrator, interval time.Duration, logger *slog.Logger) {
	runOnce := func() {
		result, err := orchestrator.RunSync(ctx, false)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("background sync failed", "error", err)
			return
		}
		if result != nil {
			logger.Info("background sync", "status", string(result.Status))
		}
	}

	runOnce()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}
