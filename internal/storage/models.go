// Package storage persists index generations in Qdrant. Each generation is
// its own collection, so a rebuild never touches the generation currently
// serving queries.
package storage

import (
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/aidefend/aidefend-mcp/internal/corpus"
)

// VectorDimension is the embedding size for text-embedding-3-small.
const VectorDimension = 1536

// vectorName is the named vector slot holding record embeddings.
const vectorName = "content"

// GenerationPrefix namespaces this service's collections so generation
// listing and orphan cleanup never touch collections owned by others.
const GenerationPrefix = "aidefend_"

// pointNamespace seeds deterministic point IDs. The same source ID always
// maps to the same point UUID, so re-upserting a record overwrites rather
// than duplicates.
var pointNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// PointID derives the stable Qdrant point UUID for a source ID.
func PointID(sourceID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(sourceID)).String()
}

// ScoredRecord pairs a record with its similarity score from a search.
type ScoredRecord struct {
	Record *corpus.Record
	Score  float64
}

// Filters narrows a search to records matching the set fields. Zero values
// mean "any".
type Filters struct {
	Tactic  string
	Type    corpus.RecordType
	HasCode *bool
}

// recordPayload flattens a record into the Qdrant payload map.
func recordPayload(rec *corpus.Record) map[string]any {
	return map[string]any{
		"source_id":         rec.SourceID,
		"tactic":            rec.Tactic,
		"name":              rec.Name,
		"type":              string(rec.Type),
		"content":           rec.Text,
		"has_code":          rec.HasCode,
		"code_langs":        toAnySlice(codeLanguages(rec.CodeBlocks)),
		"code_snippets":     toAnySlice(codeTexts(rec.CodeBlocks)),
		"pillar":            rec.Pillar,
		"phase":             rec.Phase,
		"parent_id":         rec.ParentID,
		"defends_against":   toAnySlice(rec.DefendsAgainst),
		"tools_open_source": toAnySlice(rec.ToolsOpenSource),
		"tools_commercial":  toAnySlice(rec.ToolsCommercial),
	}
}

// recordFromPayload rebuilds a record from a point payload. Embeddings are
// not carried back; readers never need them.
func recordFromPayload(payload map[string]*qdrant.Value) *corpus.Record {
	return &corpus.Record{
		SourceID:        payload["source_id"].GetStringValue(),
		Tactic:          payload["tactic"].GetStringValue(),
		Name:            payload["name"].GetStringValue(),
		Type:            corpus.RecordType(payload["type"].GetStringValue()),
		Text:            payload["content"].GetStringValue(),
		HasCode:         payload["has_code"].GetBoolValue(),
		CodeBlocks:      codeBlocksFromPayload(payload["code_langs"], payload["code_snippets"]),
		Pillar:          payload["pillar"].GetStringValue(),
		Phase:           payload["phase"].GetStringValue(),
		ParentID:        payload["parent_id"].GetStringValue(),
		DefendsAgainst:  toStringSlice(payload["defends_against"]),
		ToolsOpenSource: toStringSlice(payload["tools_open_source"]),
		ToolsCommercial: toStringSlice(payload["tools_commercial"]),
	}
}

// Code blocks travel as two parallel string lists; Qdrant payloads have no
// struct list type worth the nesting.
func codeLanguages(blocks []corpus.CodeBlock) []string {
	out := make([]string, len(blocks))
	for i, b := range blocks {
		out[i] = b.Language
	}
	return out
}

func codeTexts(blocks []corpus.CodeBlock) []string {
	out := make([]string, len(blocks))
	for i, b := range blocks {
		out[i] = b.Code
	}
	return out
}

func codeBlocksFromPayload(langs, snippets *qdrant.Value) []corpus.CodeBlock {
	codes := toStringSlice(snippets)
	if len(codes) == 0 {
		return nil
	}
	languages := toStringSlice(langs)
	blocks := make([]corpus.CodeBlock, len(codes))
	for i, code := range codes {
		lang := ""
		if i < len(languages) {
			lang = languages[i]
		}
		blocks[i] = corpus.CodeBlock{Language: lang, Code: code}
	}
	return blocks
}

func toAnySlice(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func toStringSlice(value *qdrant.Value) []string {
	list := value.GetListValue()
	if list == nil {
		return nil
	}
	out := make([]string, 0, len(list.Values))
	for _, v := range list.Values {
		out = append(out, v.GetStringValue())
	}
	return out
}
