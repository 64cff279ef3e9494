package mcp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidefend/aidefend-mcp/internal/corpus"
	"github.com/aidefend/aidefend-mcp/internal/engine"
	"github.com/aidefend/aidefend-mcp/internal/storage"
)

// stubIndex serves a fixed record set, honoring the has_code filter.
type stubIndex struct {
	records []*corpus.Record
}

func (s *stubIndex) Search(ctx context.Context, generation string, embedding []float32, limit int, filters storage.Filters) ([]*storage.ScoredRecord, error) {
	var out []*storage.ScoredRecord
	for i, rec := range s.records {
		if filters.HasCode != nil && rec.HasCode != *filters.HasCode {
			continue
		}
		out = append(out, &storage.ScoredRecord{Record: rec, Score: 1.0 - float64(i)*0.1})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *stubIndex) ScrollRecords(ctx context.Context, generation string) ([]*corpus.Record, error) {
	return s.records, nil
}

type stubEmbedder struct{}

func (stubEmbedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	return make([]float32, 4), nil
}

func snippetEngine(t *testing.T) *engine.Engine {
	t.Helper()
	records := []*corpus.Record{
		{
			SourceID: "AID-H-001", Name: "Input Hardening", Tactic: "harden",
			Type: corpus.TypeTechnique, Text: "Technique: Input Hardening",
		},
		{
			SourceID: "AID-H-001.001", Name: "Prompt Validation", Tactic: "harden",
			Type: corpus.TypeSubtechnique, ParentID: "AID-H-001",
			Text: "Sub-Technique: Prompt Validation", HasCode: true,
			CodeBlocks: []corpus.CodeBlock{
				{Language: "python", Code: "check(x)"},
				{Language: "bash", Code: "make audit"},
			},
		},
	}
	eng := engine.New(&stubIndex{records: records}, stubEmbedder{}, nil)
	require.NoError(t, eng.Load(context.Background(), "aidefend_abc12345_1", engine.VersionInfo{Commit: "abc"}))
	return eng
}

func TestGetCodeSnippets_ByIDIncludesChildren(t *testing.T) {
	handler := makeCodeSnippetsHandler(snippetEngine(t))

	_, out, err := handler(context.Background(), nil, GetCodeSnippetsInput{ID: "AID-H-001"})
	require.NoError(t, err)
	require.Len(t, out.Snippets, 2)
	assert.Equal(t, "AID-H-001.001", out.Snippets[0].SourceID)
	assert.Equal(t, "python", out.Snippets[0].Language)
	assert.Equal(t, "check(x)", out.Snippets[0].Code)
}

func TestGetCodeSnippets_LanguageFilterIsCaseInsensitive(t *testing.T) {
	handler := makeCodeSnippetsHandler(snippetEngine(t))

	_, out, err := handler(context.Background(), nil, GetCodeSnippetsInput{ID: "AID-H-001", Language: "Bash"})
	require.NoError(t, err)
	require.Len(t, out.Snippets, 1)
	assert.Equal(t, "make audit", out.Snippets[0].Code)
}

func TestGetCodeSnippets_ByTopic(t *testing.T) {
	handler := makeCodeSnippetsHandler(snippetEngine(t))

	_, out, err := handler(context.Background(), nil, GetCodeSnippetsInput{Topic: "prompt validation"})
	require.NoError(t, err)
	require.NotEmpty(t, out.Snippets)
	assert.Equal(t, "AID-H-001.001", out.Snippets[0].SourceID)
}

func TestGetCodeSnippets_RespectsLimit(t *testing.T) {
	handler := makeCodeSnippetsHandler(snippetEngine(t))

	_, out, err := handler(context.Background(), nil, GetCodeSnippetsInput{ID: "AID-H-001", MaxSnippets: 1})
	require.NoError(t, err)
	assert.Len(t, out.Snippets, 1)
}

func TestGetCodeSnippets_UnknownID(t *testing.T) {
	handler := makeCodeSnippetsHandler(snippetEngine(t))

	_, out, err := handler(context.Background(), nil, GetCodeSnippetsInput{ID: "AID-H-777"})
	require.NoError(t, err)
	assert.Empty(t, out.Snippets)
	assert.Contains(t, out.Message, "AID-H-777")
}

func TestGetCodeSnippets_NeedsIDOrTopic(t *testing.T) {
	handler := makeCodeSnippetsHandler(snippetEngine(t))

	_, out, err := handler(context.Background(), nil, GetCodeSnippetsInput{})
	require.NoError(t, err)
	assert.Contains(t, out.Message, "id or a topic")
}

func TestGetCodeSnippets_ColdEngineReportsWarming(t *testing.T) {
	eng := engine.New(&stubIndex{}, stubEmbedder{}, nil)
	handler := makeCodeSnippetsHandler(eng)

	_, out, err := handler(context.Background(), nil, GetCodeSnippetsInput{ID: "AID-H-001"})
	require.NoError(t, err)
	assert.Empty(t, out.Snippets)
	assert.Equal(t, warmingMessage, out.Message)
}
