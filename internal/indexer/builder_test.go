package indexer

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidefend/aidefend-mcp/internal/corpus"
)

// fakeEmbedder returns a fixed-size vector per text.
type fakeEmbedder struct {
	calls int
	fail  bool
}

func (f *fakeEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.fail {
		return nil, fmt.Errorf("embedding backend down")
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = make([]float32, 4)
	}
	return vectors, nil
}

// fakeStore keeps generations in memory.
type fakeStore struct {
	mu          sync.Mutex
	generations map[string][]*corpus.Record
	dropped     []string
	failCreate  bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{generations: make(map[string][]*corpus.Record)}
}

func (f *fakeStore) CreateGeneration(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate {
		return fmt.Errorf("create refused")
	}
	if _, exists := f.generations[name]; exists {
		return fmt.Errorf("generation %s already exists", name)
	}
	f.generations[name] = nil
	return nil
}

func (f *fakeStore) UpsertRecords(ctx context.Context, generation string, records []*corpus.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.generations[generation]; !exists {
		return fmt.Errorf("generation %s does not exist", generation)
	}
	f.generations[generation] = append(f.generations[generation], records...)
	return nil
}

func (f *fakeStore) CountRecords(ctx context.Context, generation string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	records, exists := f.generations[generation]
	if !exists {
		return 0, fmt.Errorf("generation %s does not exist", generation)
	}
	return uint64(len(records)), nil
}

func (f *fakeStore) DropGeneration(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.generations, name)
	f.dropped = append(f.dropped, name)
	return nil
}

func (f *fakeStore) ListGenerations(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for name := range f.generations {
		names = append(names, name)
	}
	return names, nil
}

func buildRecords(ids ...string) []*corpus.Record {
	records := make([]*corpus.Record, len(ids))
	for i, id := range ids {
		records[i] = &corpus.Record{
			SourceID: id,
			Tactic:   "harden",
			Name:     "Technique " + id,
			Type:     corpus.TypeTechnique,
			Text:     "Technique: " + id,
		}
	}
	return records
}

func TestBuilder_Build(t *testing.T) {
	store := newFakeStore()
	builder := NewBuilder(&fakeEmbedder{}, store, nil)

	records := buildRecords("AID-H-001", "AID-H-002")
	err := builder.Build(context.Background(), "aidefend_abc_1", records)
	require.NoError(t, err)

	count, err := store.CountRecords(context.Background(), "aidefend_abc_1")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)

	for _, rec := range records {
		assert.Len(t, rec.Embedding, 4)
	}
}

func TestBuilder_EmptyInputRejected(t *testing.T) {
	builder := NewBuilder(&fakeEmbedder{}, newFakeStore(), nil)

	err := builder.Build(context.Background(), "aidefend_abc_1", nil)
	assert.ErrorIs(t, err, ErrNoContent)
}

func TestBuilder_DuplicateSourceIDRejected(t *testing.T) {
	embedder := &fakeEmbedder{}
	store := newFakeStore()
	builder := NewBuilder(embedder, store, nil)

	err := builder.Build(context.Background(), "aidefend_abc_1", buildRecords("AID-H-001", "AID-H-001"))
	assert.ErrorIs(t, err, ErrDuplicateSourceID)

	// Rejected before any embedding or storage work.
	assert.Zero(t, embedder.calls)
	assert.Empty(t, store.generations)
}

func TestBuilder_EmbedderFailurePropagates(t *testing.T) {
	store := newFakeStore()
	builder := NewBuilder(&fakeEmbedder{fail: true}, store, nil)

	err := builder.Build(context.Background(), "aidefend_abc_1", buildRecords("AID-H-001"))
	require.Error(t, err)
	assert.Empty(t, store.generations)
}
