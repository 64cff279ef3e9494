package indexer

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidefend/aidefend-mcp/internal/corpus"
	"github.com/aidefend/aidefend-mcp/internal/engine"
	"github.com/aidefend/aidefend-mcp/internal/github"
	"github.com/aidefend/aidefend-mcp/internal/state"
)

const hardenSource = `export const tactic = {
  name: "Harden",
  techniques: [
    {
      id: "AID-H-001",
      name: "Adversarial Training",
      description: "Train models on adversarial examples.",
      pillar: "model",
      phase: "building",
      subTechniques: []
    }
  ]
};`

const detectSource = `export const tactic = {
  name: "Detect",
  techniques: [
    {
      id: "AID-D-001",
      name: "Anomaly Detection",
      description: "Monitor model inputs for anomalies.",
      pillar: "infrastructure",
      phase: "operation",
      subTechniques: []
    }
  ]
};`

// fakeFetcher serves scripted member sources for a fixed commit.
type fakeFetcher struct {
	mu      sync.Mutex
	commit  string
	sources map[string]string // path -> source; missing entry fails the fetch
	fetches int
}

func (f *fakeFetcher) FetchManifest(ctx context.Context) (*github.Manifest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	manifest := &github.Manifest{Commit: f.commit}
	for path := range f.sources {
		manifest.Members = append(manifest.Members, github.Member{
			Path:       path,
			TacticName: "tactic",
		})
	}
	return manifest, nil
}

func (f *fakeFetcher) FetchMember(ctx context.Context, manifest *github.Manifest, member github.Member) (*github.FetchedModule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	source, ok := f.sources[member.Path]
	if ok && source == "" {
		return nil, fmt.Errorf("upstream returned 500")
	}
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return &github.FetchedModule{
		Member: member,
		Commit: manifest.Commit,
		Source: []byte(source),
	}, nil
}

// fakeReloader records engine reloads and can fail the next one.
type fakeReloader struct {
	mu       sync.Mutex
	loaded   []string
	current  string
	version  engine.VersionInfo
	failNext bool
}

func (f *fakeReloader) Load(ctx context.Context, generation string, version engine.VersionInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return fmt.Errorf("connection reset during scroll")
	}
	f.loaded = append(f.loaded, generation)
	f.current = generation
	f.version = version
	return nil
}

func (f *fakeReloader) Generation() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func newTestOrchestrator(t *testing.T, fetcher *fakeFetcher) (*Orchestrator, *fakeStore, *state.Store, *fakeReloader) {
	t.Helper()
	stateStore, err := state.OpenInMemory(nil)
	require.NoError(t, err)
	t.Cleanup(func() { stateStore.Close() })

	store := newFakeStore()
	reloader := &fakeReloader{}
	builder := NewBuilder(&fakeEmbedder{}, store, nil)
	orch := NewOrchestrator(fetcher, corpus.NewExtractor(nil), builder, store, stateStore, reloader, 2, nil)
	return orch, store, stateStore, reloader
}

func TestRunSync_Completed(t *testing.T) {
	fetcher := &fakeFetcher{
		commit: "abc123def456",
		sources: map[string]string{
			"tactics/harden.js": hardenSource,
			"tactics/detect.js": detectSource,
		},
	}
	orch, store, stateStore, reloader := newTestOrchestrator(t, fetcher)

	result, err := orch.RunSync(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, 2, result.Members)
	assert.Equal(t, 2, result.Records)
	assert.Empty(t, result.FailedMembers)

	slots, err := stateStore.Slots()
	require.NoError(t, err)
	assert.Equal(t, result.Generation, slots.Current)
	assert.Empty(t, slots.Rollback)

	version, err := stateStore.Version()
	require.NoError(t, err)
	require.NotNil(t, version)
	assert.Equal(t, "abc123def456", version.Commit)
	assert.Equal(t, 2, version.RecordCount)

	require.Len(t, reloader.loaded, 1)
	assert.Equal(t, result.Generation, reloader.loaded[0])

	count, err := store.CountRecords(context.Background(), result.Generation)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)
}

func TestRunSync_UnchangedCommitShortCircuits(t *testing.T) {
	fetcher := &fakeFetcher{
		commit:  "abc123def456",
		sources: map[string]string{"tactics/harden.js": hardenSource},
	}
	orch, _, _, reloader := newTestOrchestrator(t, fetcher)

	first, err := orch.RunSync(context.Background(), false)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, first.Status)

	second, err := orch.RunSync(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, StatusUnchanged, second.Status)
	assert.Empty(t, second.Generation)

	// The engine was reloaded exactly once.
	assert.Len(t, reloader.loaded, 1)
}

func TestRunSync_ForceRebuildsSameCommit(t *testing.T) {
	fetcher := &fakeFetcher{
		commit:  "abc123def456",
		sources: map[string]string{"tactics/harden.js": hardenSource},
	}
	orch, _, stateStore, reloader := newTestOrchestrator(t, fetcher)

	first, err := orch.RunSync(context.Background(), false)
	require.NoError(t, err)

	second, err := orch.RunSync(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, second.Status)
	assert.NotEqual(t, first.Generation, second.Generation)
	assert.Len(t, reloader.loaded, 2)

	slots, err := stateStore.Slots()
	require.NoError(t, err)
	assert.Equal(t, second.Generation, slots.Current)
	assert.Equal(t, first.Generation, slots.Rollback)
}

// A reload failure after the slots are persisted must not drop the new
// generation: it is the durable current, and the next run at the same
// commit finishes the install by reloading only.
func TestRunSync_ReloadFailureKeepsGenerationAndHeals(t *testing.T) {
	fetcher := &fakeFetcher{
		commit:  "abc123def456",
		sources: map[string]string{"tactics/harden.js": hardenSource},
	}
	orch, store, stateStore, reloader := newTestOrchestrator(t, fetcher)
	reloader.failNext = true

	first, err := orch.RunSync(context.Background(), false)
	require.Error(t, err)
	assert.Equal(t, StatusFailed, first.Status)

	slots, err := stateStore.Slots()
	require.NoError(t, err)
	assert.Equal(t, first.Generation, slots.Current)

	names, err := store.ListGenerations(context.Background())
	require.NoError(t, err)
	assert.Contains(t, names, first.Generation)

	second, err := orch.RunSync(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, StatusUnchanged, second.Status)
	assert.Equal(t, slots.Current, reloader.Generation())
}

// slowFetcher never returns a member until its context expires.
type slowFetcher struct {
	commit string
}

func (f *slowFetcher) FetchManifest(ctx context.Context) (*github.Manifest, error) {
	return &github.Manifest{
		Commit:  f.commit,
		Members: []github.Member{{Path: "tactics/slow.js", TacticName: "tactic"}},
	}, nil
}

func (f *slowFetcher) FetchMember(ctx context.Context, manifest *github.Manifest, member github.Member) (*github.FetchedModule, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRunSync_MemberFetchIsTimeBounded(t *testing.T) {
	stateStore, err := state.OpenInMemory(nil)
	require.NoError(t, err)
	t.Cleanup(func() { stateStore.Close() })

	store := newFakeStore()
	orch := NewOrchestrator(
		&slowFetcher{commit: "abc123def456"},
		corpus.NewExtractor(nil),
		NewBuilder(&fakeEmbedder{}, store, nil),
		store, stateStore, &fakeReloader{}, 2, nil,
	)
	orch.fetchWait = 50 * time.Millisecond

	start := time.Now()
	result, err := orch.RunSync(context.Background(), false)
	require.ErrorIs(t, err, ErrNoContent)
	assert.Equal(t, StatusFailed, result.Status)
	assert.Len(t, result.FailedMembers, 1)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRunSync_PartialOnMemberFailure(t *testing.T) {
	fetcher := &fakeFetcher{
		commit: "abc123def456",
		sources: map[string]string{
			"tactics/harden.js": hardenSource,
			"tactics/broken.js": "", // fetch fails
			"tactics/bad.js":    "function nope() {}",
		},
	}
	orch, _, _, _ := newTestOrchestrator(t, fetcher)

	result, err := orch.RunSync(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, StatusPartial, result.Status)
	assert.Equal(t, 1, result.Records)
	assert.Len(t, result.FailedMembers, 2)
}

func TestRunSync_FailedWhenNothingExtracts(t *testing.T) {
	fetcher := &fakeFetcher{
		commit:  "abc123def456",
		sources: map[string]string{"tactics/bad.js": "not javascript at all {{{"},
	}
	orch, store, stateStore, reloader := newTestOrchestrator(t, fetcher)

	result, err := orch.RunSync(context.Background(), false)
	require.ErrorIs(t, err, ErrNoContent)
	assert.Equal(t, StatusFailed, result.Status)

	// Nothing went live.
	slots, slotsErr := stateStore.Slots()
	require.NoError(t, slotsErr)
	assert.Empty(t, slots.Current)
	assert.Empty(t, reloader.loaded)
	assert.Empty(t, store.generations)
}

func TestRunSync_SkippedWhileAnotherRuns(t *testing.T) {
	fetcher := &fakeFetcher{
		commit:  "abc123def456",
		sources: map[string]string{"tactics/harden.js": hardenSource},
	}
	orch, _, _, _ := newTestOrchestrator(t, fetcher)

	orch.gate.Lock()
	defer orch.gate.Unlock()

	result, err := orch.RunSync(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, result.Status)
}

func TestRunSync_RawCacheAvoidsRefetch(t *testing.T) {
	fetcher := &fakeFetcher{
		commit:  "abc123def456",
		sources: map[string]string{"tactics/harden.js": hardenSource},
	}
	orch, _, _, _ := newTestOrchestrator(t, fetcher)

	_, err := orch.RunSync(context.Background(), false)
	require.NoError(t, err)
	firstFetches := fetcher.fetches

	_, err = orch.RunSync(context.Background(), true)
	require.NoError(t, err)

	// Same commit, so the forced rebuild read the cached source.
	assert.Equal(t, firstFetches, fetcher.fetches)
}

func TestCleanupOrphans(t *testing.T) {
	fetcher := &fakeFetcher{
		commit:  "abc123def456",
		sources: map[string]string{"tactics/harden.js": hardenSource},
	}
	orch, store, _, _ := newTestOrchestrator(t, fetcher)

	result, err := orch.RunSync(context.Background(), false)
	require.NoError(t, err)

	// Simulate a crashed build that left a generation behind.
	require.NoError(t, store.CreateGeneration(context.Background(), "aidefend_orphan_1"))

	require.NoError(t, orch.CleanupOrphans(context.Background()))

	names, err := store.ListGenerations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{result.Generation}, names)
}
