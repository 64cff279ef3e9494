package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/aidefend/aidefend-mcp/internal/corpus"
	"github.com/aidefend/aidefend-mcp/internal/engine"
	"github.com/aidefend/aidefend-mcp/internal/github"
	"github.com/aidefend/aidefend-mcp/internal/jsparser"
	"github.com/aidefend/aidefend-mcp/internal/state"
	"github.com/aidefend/aidefend-mcp/internal/storage"
)

// SyncStatus is the outcome of one sync attempt.
type SyncStatus string

const (
	// StatusCompleted means a new generation went live with every member
	// extracted.
	StatusCompleted SyncStatus = "completed"

	// StatusPartial means a new generation went live but some members
	// failed and their records are missing.
	StatusPartial SyncStatus = "partial"

	// StatusUnchanged means upstream has not moved since the last sync,
	// so nothing was rebuilt.
	StatusUnchanged SyncStatus = "unchanged"

	// StatusSkipped means another sync was already running. The running
	// sync's outcome stands; this attempt did nothing.
	StatusSkipped SyncStatus = "skipped"

	// StatusFailed means no new generation went live. The previous
	// generation keeps serving.
	StatusFailed SyncStatus = "failed"
)

// FailedMember records why one corpus member contributed nothing.
type FailedMember struct {
	Path   string
	Reason string
}

// SyncResult reports what one sync attempt did.
type SyncResult struct {
	Status        SyncStatus
	Commit        string
	Generation    string
	Members       int
	Records       int
	FailedMembers []FailedMember
	SkippedUnits  int
	Duration      time.Duration
}

// CorpusFetcher retrieves the manifest and member sources.
type CorpusFetcher interface {
	FetchManifest(ctx context.Context) (*github.Manifest, error)
	FetchMember(ctx context.Context, manifest *github.Manifest, member github.Member) (*github.FetchedModule, error)
}

// GenerationStore extends GenerationWriter with the lifecycle operations
// the swap needs.
type GenerationStore interface {
	GenerationWriter
	DropGeneration(ctx context.Context, name string) error
	ListGenerations(ctx context.Context) ([]string, error)
}

// StateStore persists sync bookkeeping between runs.
type StateStore interface {
	Version() (*state.Version, error)
	Slots() (state.Slots, error)
	CommitSwap(slots state.Slots, version state.Version) error
	CacheRawModule(commit, path string, source []byte) error
	RawModule(commit, path string) ([]byte, error)
}

// Reloader is the engine's swap hook. Generation reports what the engine
// currently serves, so a retried sync can tell a healthy engine from one
// that missed a reload.
type Reloader interface {
	Load(ctx context.Context, generation string, version engine.VersionInfo) error
	Generation() string
}

// memberTimeout bounds one member's fetch, including its retries. A single
// hung remote file must never wedge the whole sync behind the gate.
const memberTimeout = 3 * time.Minute

// Orchestrator runs the sync cycle: fetch, parse, extract, build, swap. A
// mutex gate guarantees at most one sync at a time; concurrent attempts are
// reported as skipped rather than queued.
type Orchestrator struct {
	fetcher   CorpusFetcher
	extractor *corpus.Extractor
	builder   *Builder
	store     GenerationStore
	state     StateStore
	engine    Reloader
	poolSize  int
	fetchWait time.Duration
	logger    *slog.Logger

	gate sync.Mutex
}

// NewOrchestrator wires the sync cycle. poolSize bounds per-member
// concurrency; zero means half the CPUs, minimum one.
func NewOrchestrator(
	fetcher CorpusFetcher,
	extractor *corpus.Extractor,
	builder *Builder,
	store GenerationStore,
	stateStore StateStore,
	eng Reloader,
	poolSize int,
	logger *slog.Logger,
) *Orchestrator {
	if poolSize <= 0 {
		poolSize = runtime.NumCPU() / 2
		if poolSize < 1 {
			poolSize = 1
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		fetcher:   fetcher,
		extractor: extractor,
		builder:   builder,
		store:     store,
		state:     stateStore,
		engine:    eng,
		poolSize:  poolSize,
		fetchWait: memberTimeout,
		logger:    logger,
	}
}

// RunSync performs one sync attempt. With force unset, an unchanged
// upstream commit short-circuits without rebuilding. RunSync never takes
// the engine offline: queries keep hitting the previous generation until
// the new one is fully built and verified.
func (o *Orchestrator) RunSync(ctx context.Context, force bool) (*SyncResult, error) {
	if !o.gate.TryLock() {
		o.logger.Info("sync already running, skipping")
		return &SyncResult{Status: StatusSkipped}, nil
	}
	defer o.gate.Unlock()

	start := time.Now()

	manifest, err := o.fetcher.FetchManifest(ctx)
	if err != nil {
		return &SyncResult{Status: StatusFailed, Duration: time.Since(start)}, fmt.Errorf("fetch manifest: %w", err)
	}

	result := &SyncResult{
		Commit:  manifest.Commit,
		Members: len(manifest.Members),
	}

	if !force {
		version, err := o.state.Version()
		if err != nil {
			result.Status = StatusFailed
			result.Duration = time.Since(start)
			return result, err
		}
		if version != nil && version.Commit == manifest.Commit {
			// The slots may name a generation the engine never loaded, if a
			// previous run crashed or failed between persisting the swap and
			// reloading. Unchanged upstream must still repair that.
			if err := o.ensureLoaded(ctx); err != nil {
				result.Status = StatusFailed
				result.Duration = time.Since(start)
				return result, err
			}
			o.logger.Info("corpus unchanged", "commit", shortCommit(manifest.Commit))
			result.Status = StatusUnchanged
			result.Duration = time.Since(start)
			return result, nil
		}
	}

	o.logger.Info("sync started",
		"commit", shortCommit(manifest.Commit),
		"members", len(manifest.Members),
		"force", force,
	)

	records, failed, skippedUnits, err := o.extractAll(ctx, manifest)
	if err != nil {
		result.Status = StatusFailed
		result.Duration = time.Since(start)
		return result, err
	}
	result.FailedMembers = failed
	result.SkippedUnits = skippedUnits
	result.Records = len(records)

	if len(records) == 0 {
		result.Status = StatusFailed
		result.Duration = time.Since(start)
		return result, ErrNoContent
	}

	// Nanosecond resolution so rapid rebuilds of the same commit can never
	// collide with the live generation's name.
	generationName := fmt.Sprintf("%s%s_%d", storage.GenerationPrefix, shortCommit(manifest.Commit), time.Now().UnixNano())
	result.Generation = generationName

	if err := o.builder.Build(ctx, generationName, records); err != nil {
		o.cleanup(generationName)
		result.Status = StatusFailed
		result.Duration = time.Since(start)
		return result, fmt.Errorf("build generation: %w", err)
	}

	if persisted, err := o.swap(ctx, generationName, manifest, len(records)); err != nil {
		// Once the slots name the new generation it is the durable current,
		// even if the in-process reload failed; dropping it would leave the
		// slots pointing at nothing. The retry path in ensureLoaded finishes
		// the job.
		if !persisted {
			o.cleanup(generationName)
		}
		result.Status = StatusFailed
		result.Duration = time.Since(start)
		return result, err
	}

	result.Status = StatusCompleted
	if len(failed) > 0 {
		result.Status = StatusPartial
	}
	result.Duration = time.Since(start)

	o.logger.Info("sync finished",
		"status", string(result.Status),
		"generation", generationName,
		"records", result.Records,
		"failed_members", len(failed),
		"duration", result.Duration,
	)
	return result, nil
}

// extractAll fetches, parses, and extracts every manifest member, bounded
// by the worker pool. A failing member costs only its own records.
func (o *Orchestrator) extractAll(ctx context.Context, manifest *github.Manifest) ([]*corpus.Record, []FailedMember, int, error) {
	pool, err := ants.NewPool(o.poolSize)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	type memberOutcome struct {
		records []*corpus.Record
		skipped int
		failure *FailedMember
	}

	outcomes := make([]memberOutcome, len(manifest.Members))
	var wg sync.WaitGroup

	for i, member := range manifest.Members {
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			records, skipped, err := o.processMember(ctx, manifest, member)
			if err != nil {
				o.logger.Warn("member failed", "path", member.Path, "error", err)
				outcomes[i] = memberOutcome{failure: &FailedMember{Path: member.Path, Reason: err.Error()}}
				return
			}
			outcomes[i] = memberOutcome{records: records, skipped: skipped}
		})
		if submitErr != nil {
			wg.Done()
			return nil, nil, 0, fmt.Errorf("submit member %s: %w", member.Path, submitErr)
		}
	}
	wg.Wait()

	var records []*corpus.Record
	var failed []FailedMember
	skippedUnits := 0
	for _, outcome := range outcomes {
		if outcome.failure != nil {
			failed = append(failed, *outcome.failure)
			continue
		}
		records = append(records, outcome.records...)
		skippedUnits += outcome.skipped
	}
	return records, failed, skippedUnits, nil
}

// processMember handles one corpus file end to end. The raw source cache is
// checked first so a retried sync at the same commit skips refetching.
func (o *Orchestrator) processMember(ctx context.Context, manifest *github.Manifest, member github.Member) ([]*corpus.Record, int, error) {
	source, err := o.state.RawModule(manifest.Commit, member.Path)
	if err != nil {
		o.logger.Warn("raw cache read failed", "path", member.Path, "error", err)
		source = nil
	}

	if source == nil {
		fetchCtx, cancel := context.WithTimeout(ctx, o.fetchWait)
		fetched, err := o.fetcher.FetchMember(fetchCtx, manifest, member)
		cancel()
		if err != nil {
			return nil, 0, fmt.Errorf("fetch: %w", err)
		}
		source = fetched.Source
		if err := o.state.CacheRawModule(manifest.Commit, member.Path, source); err != nil {
			o.logger.Warn("raw cache write failed", "path", member.Path, "error", err)
		}
	}

	mod, err := jsparser.Parse(source)
	if err != nil {
		return nil, 0, fmt.Errorf("parse: %w", err)
	}

	extracted := o.extractor.Extract(member.TacticName, mod)
	o.logger.Debug("member extracted",
		"path", member.Path,
		"records", len(extracted.Records),
		"skipped", len(extracted.Skipped),
	)

	records := make([]*corpus.Record, len(extracted.Records))
	for i := range extracted.Records {
		records[i] = &extracted.Records[i]
	}
	return records, len(extracted.Skipped), nil
}

// swap makes the freshly built generation the live one. Order matters: the
// outgoing rollback is dropped first, then the new slots and version are
// persisted in one transaction, then the engine reloads. The returned flag
// reports whether the slots were persisted; after that point the new
// generation is the durable current regardless of what the reload did, and
// ensureLoaded (or the next startup) finishes the install.
func (o *Orchestrator) swap(ctx context.Context, generationName string, manifest *github.Manifest, recordCount int) (bool, error) {
	slots, err := o.state.Slots()
	if err != nil {
		return false, fmt.Errorf("read slots: %w", err)
	}

	if slots.Rollback != "" {
		if err := o.store.DropGeneration(ctx, slots.Rollback); err != nil {
			o.logger.Warn("failed to drop rollback generation", "generation", slots.Rollback, "error", err)
		}
	}

	newSlots := state.Slots{
		Current:  generationName,
		Rollback: slots.Current,
	}
	version := state.Version{
		Commit:      manifest.Commit,
		SyncedAt:    time.Now().UTC(),
		RecordCount: recordCount,
		MemberCount: len(manifest.Members),
	}
	if err := o.state.CommitSwap(newSlots, version); err != nil {
		return false, fmt.Errorf("persist swap: %w", err)
	}

	if err := o.engine.Load(ctx, generationName, engine.VersionInfo{
		Commit:      version.Commit,
		SyncedAt:    version.SyncedAt,
		MemberCount: version.MemberCount,
	}); err != nil {
		return true, fmt.Errorf("reload engine: %w", err)
	}
	return true, nil
}

// ensureLoaded reloads the engine when the persisted slots name a generation
// it is not serving. This heals a sync that failed between CommitSwap and
// the reload without rebuilding anything.
func (o *Orchestrator) ensureLoaded(ctx context.Context) error {
	slots, err := o.state.Slots()
	if err != nil {
		return fmt.Errorf("read slots: %w", err)
	}
	if slots.Current == "" || o.engine.Generation() == slots.Current {
		return nil
	}

	version, err := o.state.Version()
	if err != nil {
		return fmt.Errorf("read version: %w", err)
	}
	var info engine.VersionInfo
	if version != nil {
		info = engine.VersionInfo{
			Commit:      version.Commit,
			SyncedAt:    version.SyncedAt,
			MemberCount: version.MemberCount,
		}
	}

	if err := o.engine.Load(ctx, slots.Current, info); err != nil {
		return fmt.Errorf("reload engine: %w", err)
	}
	o.logger.Info("recovered unloaded generation", "generation", slots.Current)
	return nil
}

// cleanup drops a generation that failed to go live. It refuses to touch a
// generation the slots still name; correcting those is the recovery path's
// job, not cleanup's. Best effort; an orphan that survives is removed by
// CleanupOrphans at next startup.
func (o *Orchestrator) cleanup(generationName string) {
	if slots, err := o.state.Slots(); err == nil {
		if generationName == slots.Current || generationName == slots.Rollback {
			o.logger.Warn("refusing to drop slot-referenced generation", "generation", generationName)
			return
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := o.store.DropGeneration(ctx, generationName); err != nil {
		o.logger.Warn("failed to drop abandoned generation", "generation", generationName, "error", err)
	}
}

// CleanupOrphans drops every generation not named by the slots. Run at
// startup to reclaim leftovers from crashed syncs.
func (o *Orchestrator) CleanupOrphans(ctx context.Context) error {
	slots, err := o.state.Slots()
	if err != nil {
		return fmt.Errorf("read slots: %w", err)
	}

	generations, err := o.store.ListGenerations(ctx)
	if err != nil {
		return err
	}

	for _, name := range generations {
		if name == slots.Current || name == slots.Rollback {
			continue
		}
		o.logger.Info("dropping orphaned generation", "generation", name)
		if err := o.store.DropGeneration(ctx, name); err != nil {
			o.logger.Warn("failed to drop orphaned generation", "generation", name, "error", err)
		}
	}
	return nil
}

func shortCommit(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
