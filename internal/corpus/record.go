// Package corpus turns parsed AIDEFEND tactic modules into flat, indexable
// records: one per technique, sub-technique, and implementation strategy.
package corpus

import "regexp"

// RecordType classifies the granularity of an indexed unit.
type RecordType string

const (
	TypeTechnique    RecordType = "technique"
	TypeSubtechnique RecordType = "subtechnique"
	TypeStrategy     RecordType = "strategy"
)

// SourceIDPattern matches AIDEFEND identifiers:
// AID-{TACTIC}-### for techniques, .### suffixes for sub-techniques, and
// .S# suffixes for implementation strategies. The tactic code is a single
// uppercase letter; the set of tactics is owned by the upstream corpus, so it
// is not pinned here.
var SourceIDPattern = regexp.MustCompile(`^AID-[A-Z]-\d{3}(\.\d{3})*(\.S\d+)?$`)

// Record is one indexable unit of the corpus. Embedding is populated by the
// index builder; everything else comes from extraction.
type Record struct {
	SourceID string
	Tactic   string
	Name     string
	Type     RecordType
	Text     string
	HasCode  bool

	// CodeBlocks holds the snippets extracted from the unit's rich text, in
	// document order. HasCode is true exactly when this is non-empty.
	CodeBlocks []CodeBlock

	// Analytics metadata carried through to the index payload. Not used by
	// the search ranking itself.
	Pillar          string
	Phase           string
	ParentID        string
	DefendsAgainst  []string
	ToolsOpenSource []string
	ToolsCommercial []string

	Embedding []float32
}
