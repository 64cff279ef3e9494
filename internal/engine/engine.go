// Package engine serves queries against the live index generation. All
// reads go through a single RWMutex-guarded generation handle; a sync swaps
// the handle atomically, so every query observes exactly one generation.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aidefend/aidefend-mcp/internal/corpus"
	"github.com/aidefend/aidefend-mcp/internal/storage"
)

const (
	// MaxQueryLen bounds search input length in bytes.
	MaxQueryLen = 2000

	// MaxTopK caps how many hits one search may request.
	MaxTopK = 20

	// DefaultTopK applies when the caller does not specify a limit.
	DefaultTopK = 5
)

// Index is the slice of the storage layer the engine reads from.
type Index interface {
	Search(ctx context.Context, generation string, embedding []float32, limit int, filters storage.Filters) ([]*storage.ScoredRecord, error)
	ScrollRecords(ctx context.Context, generation string) ([]*corpus.Record, error)
}

// Embedder turns query text into a vector.
type Embedder interface {
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

// VersionInfo describes what the live generation was built from.
type VersionInfo struct {
	Commit      string
	SyncedAt    time.Time
	MemberCount int
}

// generation is one immutable loaded index. Once installed it is never
// mutated, so readers holding a reference need no further locking.
type generation struct {
	name      string
	version   VersionInfo
	byID      map[string]*corpus.Record
	sortedIDs []string
}

// Engine answers search and lookup queries against the current generation.
type Engine struct {
	index    Index
	embedder Embedder
	logger   *slog.Logger

	mu  sync.RWMutex
	gen *generation
}

// New creates an engine with no generation loaded. Queries return
// ErrNotReady until the first Load.
func New(index Index, embedder Embedder, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		index:    index,
		embedder: embedder,
		logger:   logger,
	}
}

// Load builds the in-memory snapshot for a generation and installs it as
// the live one. The expensive scroll happens outside the lock; only the
// pointer swap holds the write lock, so in-flight queries are never stalled
// behind a reload.
func (e *Engine) Load(ctx context.Context, generationName string, version VersionInfo) error {
	records, err := e.index.ScrollRecords(ctx, generationName)
	if err != nil {
		return fmt.Errorf("load generation %s: %w", generationName, err)
	}

	byID := make(map[string]*corpus.Record, len(records))
	sortedIDs := make([]string, 0, len(records))
	for _, rec := range records {
		byID[rec.SourceID] = rec
		sortedIDs = append(sortedIDs, rec.SourceID)
	}
	sort.Strings(sortedIDs)

	next := &generation{
		name:      generationName,
		version:   version,
		byID:      byID,
		sortedIDs: sortedIDs,
	}

	e.mu.Lock()
	prev := e.gen
	e.gen = next
	e.mu.Unlock()

	prevName := ""
	if prev != nil {
		prevName = prev.name
	}
	e.logger.Info("generation loaded",
		"generation", generationName,
		"records", len(records),
		"commit", version.Commit,
		"previous", prevName,
	)
	return nil
}

// current returns the live generation, or ErrNotReady before first Load.
func (e *Engine) current() (*generation, error) {
	e.mu.RLock()
	gen := e.gen
	e.mu.RUnlock()
	if gen == nil {
		return nil, ErrNotReady
	}
	return gen, nil
}

// Ready reports whether a generation is loaded.
func (e *Engine) Ready() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.gen != nil
}

// Generation returns the live generation's name, or "" before first Load.
func (e *Engine) Generation() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.gen == nil {
		return ""
	}
	return e.gen.name
}

// Version returns what the live generation was built from.
func (e *Engine) Version() (VersionInfo, error) {
	gen, err := e.current()
	if err != nil {
		return VersionInfo{}, err
	}
	return gen.version, nil
}

// SearchHit is one semantic search result.
type SearchHit struct {
	Record *corpus.Record
	Score  float64
}

// Search embeds the query and runs similarity search in the live
// generation. TopK is clamped to [1, MaxTopK]; zero means DefaultTopK. The
// generation is pinned before embedding, so a swap mid-search cannot mix
// results from two generations.
func (e *Engine) Search(ctx context.Context, query string, topK int, filters storage.Filters) ([]SearchHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if len(query) > MaxQueryLen {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrQueryTooLong, len(query), MaxQueryLen)
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	if topK > MaxTopK {
		topK = MaxTopK
	}

	gen, err := e.current()
	if err != nil {
		return nil, err
	}

	embedding, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	scored, err := e.index.Search(ctx, gen.name, embedding, topK, filters)
	if err != nil {
		return nil, err
	}

	hits := make([]SearchHit, 0, len(scored))
	for _, s := range scored {
		hits = append(hits, SearchHit{Record: s.Record, Score: s.Score})
	}
	return hits, nil
}

// GetByID returns the record with the given source ID from the live
// generation.
func (e *Engine) GetByID(id string) (*corpus.Record, error) {
	gen, err := e.current()
	if err != nil {
		return nil, err
	}
	rec, ok := gen.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, nil
}

// Children returns the records whose parent is the given source ID, in
// source ID order.
func (e *Engine) Children(id string) ([]*corpus.Record, error) {
	gen, err := e.current()
	if err != nil {
		return nil, err
	}
	var children []*corpus.Record
	for _, childID := range gen.sortedIDs {
		if gen.byID[childID].ParentID == id {
			children = append(children, gen.byID[childID])
		}
	}
	return children, nil
}

// ScanAll returns the records of the live generation that satisfy the
// predicate, in source ID order. A nil predicate matches everything. The
// generation is pinned once, so results are consistent even if a sync swaps
// it mid-scan.
func (e *Engine) ScanAll(predicate func(*corpus.Record) bool) ([]*corpus.Record, error) {
	gen, err := e.current()
	if err != nil {
		return nil, err
	}
	matched := make([]*corpus.Record, 0, len(gen.sortedIDs))
	for _, id := range gen.sortedIDs {
		rec := gen.byID[id]
		if predicate == nil || predicate(rec) {
			matched = append(matched, rec)
		}
	}
	return matched, nil
}

// IsStale reports whether the live generation was synced longer ago than the
// threshold. An engine with nothing loaded is always stale. Informational
// only; nothing is enforced from it.
func (e *Engine) IsStale(threshold time.Duration) bool {
	gen, err := e.current()
	if err != nil {
		return true
	}
	if gen.version.SyncedAt.IsZero() {
		return true
	}
	return time.Since(gen.version.SyncedAt) > threshold
}

// Statistics summarizes the live generation.
type Statistics struct {
	Generation   string
	Version      VersionInfo
	TotalRecords int
	ByType       map[corpus.RecordType]int
	ByTactic     map[string]int
	WithCode     int
}

// Stats counts records in the live generation by type and tactic.
func (e *Engine) Stats() (*Statistics, error) {
	gen, err := e.current()
	if err != nil {
		return nil, err
	}

	stats := &Statistics{
		Generation:   gen.name,
		Version:      gen.version,
		TotalRecords: len(gen.byID),
		ByType:       make(map[corpus.RecordType]int),
		ByTactic:     make(map[string]int),
	}
	for _, id := range gen.sortedIDs {
		rec := gen.byID[id]
		stats.ByType[rec.Type]++
		stats.ByTactic[rec.Tactic]++
		if rec.HasCode {
			stats.WithCode++
		}
	}
	return stats, nil
}
