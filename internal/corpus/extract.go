package corpus

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/aidefend/aidefend-mcp/internal/jsparser"
)

// ExtractResult carries the records produced from one tactic module plus the
// units that were skipped along the way.
type ExtractResult struct {
	Records []Record
	Skipped []SkippedUnit
}

// SkippedUnit identifies a technique or sub-technique that could not be
// turned into a record, with the reason. Skips are soft failures: the rest of
// the tactic is still extracted.
type SkippedUnit struct {
	Name   string
	Reason string
}

// Extractor flattens parsed tactic modules into Records. It performs no I/O.
type Extractor struct {
	logger *slog.Logger
}

// NewExtractor creates an extractor. A nil logger falls back to slog.Default.
func NewExtractor(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{logger: logger}
}

// Extract walks one parsed tactic module and emits one record per technique,
// sub-technique, and implementation strategy. Units with a missing or
// malformed identifier are skipped individually; shape mismatches anywhere in
// the tree skip the affected subtree rather than failing the tactic.
func (e *Extractor) Extract(tacticName string, mod *jsparser.Module) *ExtractResult {
	result := &ExtractResult{}

	root := mod.Root
	if name := root.StringField("name"); name != "" {
		tacticName = name
	}

	for _, techniqueValue := range root.SeqField("techniques") {
		if techniqueValue.Kind != jsparser.KindMapping {
			result.skip("", "technique is not an object")
			continue
		}
		e.extractTechnique(tacticName, techniqueValue, result)
	}

	e.logger.Info("extracted tactic",
		"tactic", tacticName,
		"records", len(result.Records),
		"skipped", len(result.Skipped),
	)
	return result
}

func (e *Extractor) extractTechnique(tactic string, technique jsparser.Value, result *ExtractResult) {
	id := strings.TrimSpace(technique.StringField("id"))
	name := technique.StringField("name")
	if !validSourceID(id) {
		e.logSkip(result, name, fmt.Sprintf("missing or malformed technique id %q", id))
	} else {
		description := technique.StringField("description")
		blocks := ExtractCodeBlocks(description)
		result.Records = append(result.Records, Record{
			SourceID: id,
			Tactic:   tactic,
			Name:     name,
			Type:     TypeTechnique,
			Text: fmt.Sprintf("Technique: %s\nID: %s\nDescription: %s",
				name, id, FlattenHTML(description)),
			HasCode:         len(blocks) > 0,
			CodeBlocks:      blocks,
			Pillar:          technique.StringField("pillar"),
			Phase:           technique.StringField("phase"),
			DefendsAgainst:  referenceList(technique, "defendsAgainst"),
			ToolsOpenSource: referenceList(technique, "toolsOpenSource"),
			ToolsCommercial: referenceList(technique, "toolsCommercial"),
		})
	}

	for _, subValue := range technique.SeqField("subTechniques") {
		if subValue.Kind != jsparser.KindMapping {
			e.logSkip(result, name, "sub-technique is not an object")
			continue
		}
		e.extractSubTechnique(tactic, name, subValue, result)
	}
}

func (e *Extractor) extractSubTechnique(tactic, parentName string, sub jsparser.Value, result *ExtractResult) {
	id := strings.TrimSpace(sub.StringField("id"))
	name := sub.StringField("name")
	pillar := sub.StringField("pillar")
	phase := sub.StringField("phase")

	if !validSourceID(id) {
		e.logSkip(result, name, fmt.Sprintf("missing or malformed sub-technique id %q", id))
		return
	}

	description := sub.StringField("description")
	blocks := ExtractCodeBlocks(description)
	result.Records = append(result.Records, Record{
		SourceID: id,
		Tactic:   tactic,
		Name:     name,
		Type:     TypeSubtechnique,
		Text: fmt.Sprintf("Sub-Technique: %s\nID: %s\nParent: %s\nPillar: %s\nPhase: %s\nDescription: %s",
			name, id, parentName, pillar, phase, FlattenHTML(description)),
		HasCode:         len(blocks) > 0,
		CodeBlocks:      blocks,
		Pillar:          pillar,
		Phase:           phase,
		ParentID:        parentTechniqueID(id),
		DefendsAgainst:  referenceList(sub, "defendsAgainst"),
		ToolsOpenSource: referenceList(sub, "toolsOpenSource"),
		ToolsCommercial: referenceList(sub, "toolsCommercial"),
	})

	for i, strategyValue := range sub.SeqField("implementationStrategies") {
		if strategyValue.Kind != jsparser.KindMapping {
			e.logSkip(result, name, "implementation strategy is not an object")
			continue
		}
		strategyName := strategyValue.StringField("strategy")
		if strategyName == "" {
			strategyName = "Strategy"
		}
		howTo := strategyValue.StringField("howTo")
		strategyID := fmt.Sprintf("%s.S%d", id, i+1)
		blocks := ExtractCodeBlocks(howTo)

		result.Records = append(result.Records, Record{
			SourceID: strategyID,
			Tactic:   tactic,
			Name:     fmt.Sprintf("%s - %s", name, strategyName),
			Type:     TypeStrategy,
			Text: fmt.Sprintf("Implementation Strategy for %s\nStrategy: %s\nID: %s\nHow-To: %s",
				name, strategyName, strategyID, FlattenHTML(howTo)),
			HasCode:    len(blocks) > 0,
			CodeBlocks: blocks,
			Pillar:     pillar,
			Phase:      phase,
			ParentID:   id,
		})
	}
}

func (e *Extractor) logSkip(result *ExtractResult, name, reason string) {
	e.logger.Warn("skipping corpus unit", "name", name, "reason", reason)
	result.skip(name, reason)
}

func (r *ExtractResult) skip(name, reason string) {
	r.Skipped = append(r.Skipped, SkippedUnit{Name: name, Reason: reason})
}

func validSourceID(id string) bool {
	return SourceIDPattern.MatchString(id)
}

// parentTechniqueID derives "AID-H-001" from "AID-H-001.001"; returns ""
// when the id has no sub-technique suffix.
func parentTechniqueID(id string) string {
	if i := strings.Index(id, "."); i > 0 {
		return id[:i]
	}
	return ""
}

// referenceList collects threat/tool references, which appear in the corpus
// either as plain strings or as objects with an id or name field.
func referenceList(v jsparser.Value, key string) []string {
	var out []string
	for _, element := range v.SeqField(key) {
		switch element.Kind {
		case jsparser.KindString:
			out = append(out, element.Str)
		case jsparser.KindMapping:
			if id := element.StringField("id"); id != "" {
				out = append(out, id)
			} else if name := element.StringField("name"); name != "" {
				out = append(out, name)
			}
		}
	}
	return out
}
