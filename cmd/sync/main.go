// Package main provides the CLI for managing the AIDEFEND index.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/aidefend/aidefend-mcp/internal/config"
	"github.com/aidefend/aidefend-mcp/internal/corpus"
	"github.com/aidefend/aidefend-mcp/internal/embedding"
	"github.com/aidefend/aidefend-mcp/internal/engine"
	ghclient "github.com/aidefend/aidefend-mcp/internal/github"
	"github.com/aidefend/aidefend-mcp/internal/indexer"
	"github.com/aidefend/aidefend-mcp/internal/state"
	"github.com/aidefend/aidefend-mcp/internal/storage"
)

var forceSync bool

var rootCmd = &cobra.Command{
	Use:   "aidefend-sync",
	Short: "AIDEFEND index management tool",
	Long:  "CLI tool for building and inspecting the AIDEFEND index in Qdrant",
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Build a new index generation from the upstream corpus",
	Long: `Fetches the AIDEFEND corpus from GitHub, builds a fresh index
generation, and swaps it live. The previous generation is kept for
rollback. If the upstream commit has not changed since the last sync,
nothing is rebuilt unless --force is given.

Environment variables:
  QDRANT_HOST    Qdrant hostname (default: localhost)
  QDRANT_PORT    Qdrant gRPC port (default: 6334)
  DATA_DIR       Local state directory (default: ./data)
  OPENAI_API_KEY OpenAI API key for embeddings (required)
  GITHUB_TOKEN   GitHub token for higher rate limits (optional)`,
	RunE: runSync,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show what the index was built from",
	RunE:  runStatus,
}

func init() {
	syncCmd.Flags().BoolVar(&forceSync, "force", false, "rebuild even if the upstream commit is unchanged")
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
}

func main() {
	// Load .env if present (local development), ignore if missing.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	logger := slog.Default()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	fmt.Printf("Connecting to Qdrant at %s:%d...\n", cfg.QdrantHost, cfg.QdrantPort)
	store, err := storage.NewQdrantStore(cfg.QdrantHost, cfg.QdrantPort)
	if err != nil {
		return fmt.Errorf("failed to connect to Qdrant: %w", err)
	}
	defer store.Close()
	fmt.Println("Qdrant healthy")

	stateStore, err := state.Open(cfg.DataDir, logger)
	if err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}
	defer stateStore.Close()

	embeddingClient, err := embedding.NewClient()
	if err != nil {
		return fmt.Errorf("failed to create embedding client: %w", err)
	}
	embedder, err := embedding.NewEmbedder(embeddingClient, 0)
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}

	gh, err := ghclient.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("failed to create GitHub client: %w", err)
	}
	fetcher := ghclient.NewFetcher(gh, cfg.CorpusOwner, cfg.CorpusRepo, cfg.CorpusBranch, cfg.TacticsPath)

	// The CLI has no query engine to reload; a no-op reloader satisfies
	// the swap. The server picks up the new slots at next startup or
	// its own next sync.
	orchestrator := indexer.NewOrchestrator(
		fetcher,
		corpus.NewExtractor(logger),
		indexer.NewBuilder(embedder, store, logger),
		store,
		stateStore,
		noopReloader{},
		cfg.SyncPoolSize,
		logger,
	)

	fmt.Println()
	fmt.Println("Syncing corpus from GitHub...")
	result, err := orchestrator.RunSync(ctx, forceSync)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	fmt.Println()
	switch result.Status {
	case indexer.StatusUnchanged:
		fmt.Printf("Corpus unchanged at commit %.8s, nothing to do (use --force to rebuild)\n", result.Commit)
		return nil
	case indexer.StatusSkipped:
		fmt.Println("Another sync is already running")
		return nil
	}

	fmt.Println("Sync complete!")
	fmt.Printf("  Status:     %s\n", result.Status)
	fmt.Printf("  Generation: %s\n", result.Generation)
	fmt.Printf("  Members:    %d\n", result.Members)
	fmt.Printf("  Records:    %d\n", result.Records)
	fmt.Printf("  Commit:     %s\n", result.Commit)
	fmt.Printf("  Duration:   %s\n", result.Duration.Round(time.Second))

	if len(result.FailedMembers) > 0 {
		fmt.Println()
		fmt.Println("Failed members:")
		for _, failed := range result.FailedMembers {
			fmt.Printf("  - %s: %s\n", failed.Path, failed.Reason)
		}
	}
	if result.SkippedUnits > 0 {
		fmt.Printf("\nSkipped %d malformed units (see logs)\n", result.SkippedUnits)
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	stateStore, err := state.Open(cfg.DataDir, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}
	defer stateStore.Close()

	slots, err := stateStore.Slots()
	if err != nil {
		return err
	}
	version, err := stateStore.Version()
	if err != nil {
		return err
	}

	if slots.Current == "" {
		fmt.Println("No index has been built yet")
		return nil
	}

	fmt.Printf("Current generation:  %s\n", slots.Current)
	if slots.Rollback != "" {
		fmt.Printf("Rollback generation: %s\n", slots.Rollback)
	}
	if version != nil {
		fmt.Printf("Source commit:       %s\n", version.Commit)
		fmt.Printf("Synced at:           %s (%s ago)\n",
			version.SyncedAt.Format(time.RFC3339),
			time.Since(version.SyncedAt).Round(time.Second))
		fmt.Printf("Records:             %d\n", version.RecordCount)
		fmt.Printf("Members:             %d\n", version.MemberCount)
	}
	return nil
}

type noopReloader struct{}

func (noopReloader) Load(ctx context.Context, generation string, version engine.VersionInfo) error {
	return nil
}

// Generation always reports empty: the CLI never holds an index in memory,
// so the recovery reload is a no-op for it too.
func (noopReloader) Generation() string { return "" }
