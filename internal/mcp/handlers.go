package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/aidefend/aidefend-mcp/internal/corpus"
	"github.com/aidefend/aidefend-mcp/internal/engine"
	"github.com/aidefend/aidefend-mcp/internal/indexer"
	"github.com/aidefend/aidefend-mcp/internal/storage"
)

// Syncer triggers a sync cycle on demand.
type Syncer interface {
	RunSync(ctx context.Context, force bool) (*indexer.SyncResult, error)
}

const warmingMessage = "index is still warming up; try again shortly or run sync_now"

// makeSearchHandler creates the search_defenses tool handler.
func makeSearchHandler(eng *engine.Engine) func(
	context.Context, *mcp.CallToolRequest, SearchDefensesInput,
) (*mcp.CallToolResult, SearchDefensesOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SearchDefensesInput) (
		*mcp.CallToolResult, SearchDefensesOutput, error,
	) {
		filters := storage.Filters{
			Tactic:  input.Tactic,
			Type:    corpus.RecordType(input.Type),
			HasCode: input.HasCode,
		}

		hits, err := eng.Search(ctx, input.Query, input.TopK, filters)
		if err != nil {
			if errors.Is(err, engine.ErrNotReady) {
				return nil, SearchDefensesOutput{Message: warmingMessage}, nil
			}
			return nil, SearchDefensesOutput{}, fmt.Errorf("search failed: %w", err)
		}

		results := make([]DefenseHit, 0, len(hits))
		for _, hit := range hits {
			results = append(results, DefenseHit{
				SourceID: hit.Record.SourceID,
				Name:     hit.Record.Name,
				Type:     string(hit.Record.Type),
				Tactic:   hit.Record.Tactic,
				Score:    hit.Score,
				Content:  hit.Record.Text,
				HasCode:  hit.Record.HasCode,
				Pillar:   hit.Record.Pillar,
				Phase:    hit.Record.Phase,
				ParentID: hit.Record.ParentID,
			})
		}

		if len(results) == 0 {
			return nil, SearchDefensesOutput{
				Results: []DefenseHit{},
				Message: "No matching defenses found. Try broader search terms or drop filters.",
			}, nil
		}
		return nil, SearchDefensesOutput{Results: results}, nil
	}
}

// makeGetTechniqueHandler creates the get_technique tool handler.
func makeGetTechniqueHandler(eng *engine.Engine) func(
	context.Context, *mcp.CallToolRequest, GetTechniqueInput,
) (*mcp.CallToolResult, GetTechniqueOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input GetTechniqueInput) (
		*mcp.CallToolResult, GetTechniqueOutput, error,
	) {
		rec, err := eng.GetByID(input.ID)
		if err != nil {
			if errors.Is(err, engine.ErrNotReady) {
				return nil, GetTechniqueOutput{Message: warmingMessage}, nil
			}
			if errors.Is(err, engine.ErrNotFound) {
				return nil, GetTechniqueOutput{
					Found:   false,
					Message: fmt.Sprintf("no record with ID %q; use validate_technique_id for suggestions", input.ID),
				}, nil
			}
			return nil, GetTechniqueOutput{}, err
		}

		output := GetTechniqueOutput{
			Found:  true,
			Record: toTechniqueRecord(rec),
		}

		if input.IncludeChildren {
			children, err := eng.Children(input.ID)
			if err != nil {
				return nil, GetTechniqueOutput{}, err
			}
			for _, child := range children {
				output.Children = append(output.Children, *toTechniqueRecord(child))
			}
		}
		return nil, output, nil
	}
}

// makeValidateHandler creates the validate_technique_id tool handler.
func makeValidateHandler(eng *engine.Engine) func(
	context.Context, *mcp.CallToolRequest, ValidateIDInput,
) (*mcp.CallToolResult, ValidateIDOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ValidateIDInput) (
		*mcp.CallToolResult, ValidateIDOutput, error,
	) {
		result, err := eng.ValidateID(input.ID)
		if err != nil {
			if errors.Is(err, engine.ErrNotReady) {
				return nil, ValidateIDOutput{Message: warmingMessage}, nil
			}
			return nil, ValidateIDOutput{}, err
		}

		output := ValidateIDOutput{
			Input:       result.Input,
			FormatValid: result.FormatValid,
			Exists:      result.Exists,
		}
		if result.Record != nil {
			output.Name = result.Record.Name
		}
		for _, suggestion := range result.Suggestions {
			output.Suggestions = append(output.Suggestions, IDSuggestion{
				SourceID: suggestion.SourceID,
				Name:     suggestion.Name,
				Score:    suggestion.Score,
			})
		}
		if !result.Exists && len(output.Suggestions) == 0 {
			output.Message = "ID not found and nothing similar in the index"
		}
		return nil, output, nil
	}
}

// makeStatisticsHandler creates the get_statistics tool handler.
func makeStatisticsHandler(eng *engine.Engine) func(
	context.Context, *mcp.CallToolRequest, StatisticsInput,
) (*mcp.CallToolResult, StatisticsOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input StatisticsInput) (
		*mcp.CallToolResult, StatisticsOutput, error,
	) {
		stats, err := eng.Stats()
		if err != nil {
			if errors.Is(err, engine.ErrNotReady) {
				return nil, StatisticsOutput{}, fmt.Errorf("%s", warmingMessage)
			}
			return nil, StatisticsOutput{}, err
		}

		byType := make(map[string]int, len(stats.ByType))
		for typ, count := range stats.ByType {
			byType[string(typ)] = count
		}

		return nil, StatisticsOutput{
			TotalRecords: stats.TotalRecords,
			ByType:       byType,
			ByTactic:     stats.ByTactic,
			WithCode:     stats.WithCode,
			Generation:   stats.Generation,
			SourceCommit: stats.Version.Commit,
			SyncedAt:     stats.Version.SyncedAt,
		}, nil
	}
}

// makeStatusHandler creates the get_index_status tool handler. Unlike the
// other tools it never errors on a cold index; reporting "not ready" is its
// job.
func makeStatusHandler(eng *engine.Engine) func(
	context.Context, *mcp.CallToolRequest, StatusInput,
) (*mcp.CallToolResult, StatusOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input StatusInput) (
		*mcp.CallToolResult, StatusOutput, error,
	) {
		if !eng.Ready() {
			return nil, StatusOutput{
				Ready:   false,
				Message: "no index generation loaded yet",
			}, nil
		}

		stats, err := eng.Stats()
		if err != nil {
			return nil, StatusOutput{}, err
		}

		output := StatusOutput{
			Ready:        true,
			Generation:   stats.Generation,
			SourceCommit: stats.Version.Commit,
			SyncedAt:     stats.Version.SyncedAt,
			Records:      stats.TotalRecords,
			Members:      stats.Version.MemberCount,
		}
		if !stats.Version.SyncedAt.IsZero() {
			output.IndexAge = time.Since(stats.Version.SyncedAt).Round(time.Second).String()
		}
		return nil, output, nil
	}
}

const (
	defaultMaxSnippets = 10
	maxSnippetsCap     = 50
)

// makeCodeSnippetsHandler creates the get_code_snippets tool handler. An ID
// pulls snippets from that record and its children; a topic finds
// snippet-bearing records by semantic search.
func makeCodeSnippetsHandler(eng *engine.Engine) func(
	context.Context, *mcp.CallToolRequest, GetCodeSnippetsInput,
) (*mcp.CallToolResult, GetCodeSnippetsOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input GetCodeSnippetsInput) (
		*mcp.CallToolResult, GetCodeSnippetsOutput, error,
	) {
		limit := input.MaxSnippets
		if limit <= 0 {
			limit = defaultMaxSnippets
		}
		if limit > maxSnippetsCap {
			limit = maxSnippetsCap
		}

		var records []*corpus.Record
		switch {
		case input.ID != "":
			rec, err := eng.GetByID(input.ID)
			if err != nil {
				if errors.Is(err, engine.ErrNotReady) {
					return nil, GetCodeSnippetsOutput{Message: warmingMessage}, nil
				}
				if errors.Is(err, engine.ErrNotFound) {
					return nil, GetCodeSnippetsOutput{
						Message: fmt.Sprintf("no record with ID %q; use validate_technique_id for suggestions", input.ID),
					}, nil
				}
				return nil, GetCodeSnippetsOutput{}, err
			}
			children, err := eng.Children(input.ID)
			if err != nil {
				return nil, GetCodeSnippetsOutput{}, err
			}
			records = append(records, rec)
			records = append(records, children...)
		case input.Topic != "":
			withCode := true
			hits, err := eng.Search(ctx, input.Topic, engine.MaxTopK, storage.Filters{HasCode: &withCode})
			if err != nil {
				if errors.Is(err, engine.ErrNotReady) {
					return nil, GetCodeSnippetsOutput{Message: warmingMessage}, nil
				}
				return nil, GetCodeSnippetsOutput{}, fmt.Errorf("search failed: %w", err)
			}
			for _, hit := range hits {
				records = append(records, hit.Record)
			}
		default:
			return nil, GetCodeSnippetsOutput{Message: "provide either an id or a topic"}, nil
		}

		snippets := collectSnippets(records, input.Language, limit)
		if len(snippets) == 0 {
			return nil, GetCodeSnippetsOutput{
				Snippets: []CodeSnippet{},
				Message:  "no code snippets found; drop the language filter or try a broader topic",
			}, nil
		}
		return nil, GetCodeSnippetsOutput{Snippets: snippets}, nil
	}
}

// collectSnippets flattens code blocks across records in record order,
// filtering by language when one is given.
func collectSnippets(records []*corpus.Record, language string, limit int) []CodeSnippet {
	var snippets []CodeSnippet
	for _, rec := range records {
		for _, block := range rec.CodeBlocks {
			if language != "" && !strings.EqualFold(block.Language, language) {
				continue
			}
			snippets = append(snippets, CodeSnippet{
				SourceID: rec.SourceID,
				Name:     rec.Name,
				Language: block.Language,
				Code:     block.Code,
			})
			if len(snippets) == limit {
				return snippets
			}
		}
	}
	return snippets
}

// makeSyncHandler creates the sync_now tool handler.
func makeSyncHandler(syncer Syncer) func(
	context.Context, *mcp.CallToolRequest, SyncNowInput,
) (*mcp.CallToolResult, SyncNowOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SyncNowInput) (
		*mcp.CallToolResult, SyncNowOutput, error,
	) {
		result, err := syncer.RunSync(ctx, input.Force)
		if result == nil {
			return nil, SyncNowOutput{}, err
		}

		output := SyncNowOutput{
			Status:     string(result.Status),
			Commit:     result.Commit,
			Generation: result.Generation,
			Records:    result.Records,
			Members:    result.Members,
			Duration:   result.Duration.Round(time.Millisecond).String(),
		}
		for _, failed := range result.FailedMembers {
			output.FailedMembers = append(output.FailedMembers, fmt.Sprintf("%s: %s", failed.Path, failed.Reason))
		}

		switch result.Status {
		case indexer.StatusSkipped:
			output.Message = "another sync is already running"
		case indexer.StatusUnchanged:
			output.Message = "upstream corpus unchanged; pass force=true to rebuild anyway"
		case indexer.StatusFailed:
			if err != nil {
				output.Message = err.Error()
			}
		}

		// A failed sync is still a valid tool response; the previous
		// index keeps serving.
		return nil, output, nil
	}
}

func toTechniqueRecord(rec *corpus.Record) *TechniqueRecord {
	return &TechniqueRecord{
		SourceID:        rec.SourceID,
		Name:            rec.Name,
		Type:            string(rec.Type),
		Tactic:          rec.Tactic,
		Content:         rec.Text,
		HasCode:         rec.HasCode,
		Pillar:          rec.Pillar,
		Phase:           rec.Phase,
		ParentID:        rec.ParentID,
		DefendsAgainst:  rec.DefendsAgainst,
		ToolsOpenSource: rec.ToolsOpenSource,
		ToolsCommercial: rec.ToolsCommercial,
	}
}
