// Package indexer builds index generations and orchestrates the sync cycle
// that swaps them live.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aidefend/aidefend-mcp/internal/corpus"
)

var (
	// ErrNoContent means a build produced zero records. An empty
	// generation must never go live, so this aborts the sync.
	ErrNoContent = errors.New("no records to index")

	// ErrDuplicateSourceID means two extracted records claim the same ID.
	// The corpus guarantees ID uniqueness, so this indicates upstream
	// breakage and aborts the sync rather than silently dropping one.
	ErrDuplicateSourceID = errors.New("duplicate source id")
)

// TextEmbedder generates one vector per input text, in input order.
type TextEmbedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// GenerationWriter is the slice of the storage layer a build writes to.
type GenerationWriter interface {
	CreateGeneration(ctx context.Context, name string) error
	UpsertRecords(ctx context.Context, generation string, records []*corpus.Record) error
	CountRecords(ctx context.Context, generation string) (uint64, error)
}

// Builder turns extracted records into a populated index generation.
type Builder struct {
	embedder TextEmbedder
	store    GenerationWriter
	logger   *slog.Logger
}

// NewBuilder creates a generation builder.
func NewBuilder(embedder TextEmbedder, store GenerationWriter, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		embedder: embedder,
		store:    store,
		logger:   logger,
	}
}

// Build embeds the records and writes them into a fresh generation. The
// generation is created here and verified to hold every record before Build
// returns; callers own cleanup of the generation if Build fails.
func (b *Builder) Build(ctx context.Context, generation string, records []*corpus.Record) error {
	if len(records) == 0 {
		return ErrNoContent
	}

	seen := make(map[string]struct{}, len(records))
	for _, rec := range records {
		if _, dup := seen[rec.SourceID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateSourceID, rec.SourceID)
		}
		seen[rec.SourceID] = struct{}{}
	}

	texts := make([]string, len(records))
	for i, rec := range records {
		texts[i] = rec.Text
	}

	embeddings, err := b.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed records: %w", err)
	}
	if len(embeddings) != len(records) {
		return fmt.Errorf("embedding count mismatch: %d records, %d vectors", len(records), len(embeddings))
	}
	for i, rec := range records {
		rec.Embedding = embeddings[i]
	}

	if err := b.store.CreateGeneration(ctx, generation); err != nil {
		return err
	}

	if err := b.store.UpsertRecords(ctx, generation, records); err != nil {
		return err
	}

	count, err := b.store.CountRecords(ctx, generation)
	if err != nil {
		return fmt.Errorf("verify generation %s: %w", generation, err)
	}
	if count != uint64(len(records)) {
		return fmt.Errorf("generation %s holds %d records, expected %d", generation, count, len(records))
	}

	b.logger.Info("generation built", "generation", generation, "records", len(records))
	return nil
}
