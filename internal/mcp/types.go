// Package mcp exposes the AIDEFEND retrieval engine over the Model Context
// Protocol.
package mcp

import "time"

// SearchDefensesInput defines the input for the search_defenses tool.
type SearchDefensesInput struct {
	// Query is the semantic search query.
	Query string `json:"query" jsonschema:"required,description=Natural language description of the AI threat or defense to search for"`
	// TopK is the maximum number of results to return.
	TopK int `json:"top_k,omitempty" jsonschema:"minimum=1,maximum=20,default=5,description=Maximum number of results to return"`
	// Tactic restricts results to one defensive tactic (e.g. harden, detect).
	Tactic string `json:"tactic,omitempty" jsonschema:"description=Restrict results to one defensive tactic"`
	// Type restricts results to one record granularity.
	Type string `json:"type,omitempty" jsonschema:"enum=technique,enum=subtechnique,enum=strategy,description=Restrict results to techniques, sub-techniques, or implementation strategies"`
	// HasCode restricts results by whether the guidance includes code.
	HasCode *bool `json:"has_code,omitempty" jsonschema:"description=Only return records whose guidance does (true) or does not (false) include code examples"`
}

// DefenseHit is one search result.
type DefenseHit struct {
	SourceID string  `json:"source_id"`
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Tactic   string  `json:"tactic"`
	Score    float64 `json:"score"`
	Content  string  `json:"content"`
	HasCode  bool    `json:"has_code"`
	Pillar   string  `json:"pillar,omitempty"`
	Phase    string  `json:"phase,omitempty"`
	ParentID string  `json:"parent_id,omitempty"`
}

// SearchDefensesOutput contains search results.
type SearchDefensesOutput struct {
	Results []DefenseHit `json:"results"`
	// Message provides context when there is nothing to return.
	Message string `json:"message,omitempty"`
}

// GetTechniqueInput defines the input for the get_technique tool.
type GetTechniqueInput struct {
	// ID is the AIDEFEND identifier to retrieve.
	ID string `json:"id" jsonschema:"required,description=AIDEFEND identifier (e.g. AID-H-001 or AID-H-001.002)"`
	// IncludeChildren also returns sub-techniques and strategies under the ID.
	IncludeChildren bool `json:"include_children,omitempty" jsonschema:"description=Also return the records nested under this ID"`
}

// TechniqueRecord is a full record as returned by lookup tools.
type TechniqueRecord struct {
	SourceID        string   `json:"source_id"`
	Name            string   `json:"name"`
	Type            string   `json:"type"`
	Tactic          string   `json:"tactic"`
	Content         string   `json:"content"`
	HasCode         bool     `json:"has_code"`
	Pillar          string   `json:"pillar,omitempty"`
	Phase           string   `json:"phase,omitempty"`
	ParentID        string   `json:"parent_id,omitempty"`
	DefendsAgainst  []string `json:"defends_against,omitempty"`
	ToolsOpenSource []string `json:"tools_open_source,omitempty"`
	ToolsCommercial []string `json:"tools_commercial,omitempty"`
}

// GetTechniqueOutput contains the retrieved record.
type GetTechniqueOutput struct {
	Found    bool              `json:"found"`
	Record   *TechniqueRecord  `json:"record,omitempty"`
	Children []TechniqueRecord `json:"children,omitempty"`
	Message  string            `json:"message,omitempty"`
}

// ValidateIDInput defines the input for the validate_technique_id tool.
type ValidateIDInput struct {
	// ID is the identifier to validate.
	ID string `json:"id" jsonschema:"required,description=AIDEFEND identifier to validate"`
}

// IDSuggestion is a near-miss candidate for an unknown identifier.
type IDSuggestion struct {
	SourceID string  `json:"source_id"`
	Name     string  `json:"name"`
	Score    float64 `json:"score"`
}

// ValidateIDOutput reports format validity, existence, and suggestions.
type ValidateIDOutput struct {
	Input       string         `json:"input"`
	FormatValid bool           `json:"format_valid"`
	Exists      bool           `json:"exists"`
	Name        string         `json:"name,omitempty"`
	Suggestions []IDSuggestion `json:"suggestions,omitempty"`
	Message     string         `json:"message,omitempty"`
}

// StatisticsInput takes no parameters.
type StatisticsInput struct{}

// StatisticsOutput summarizes the live index.
type StatisticsOutput struct {
	TotalRecords int            `json:"total_records"`
	ByType       map[string]int `json:"by_type"`
	ByTactic     map[string]int `json:"by_tactic"`
	WithCode     int            `json:"with_code"`
	Generation   string         `json:"generation"`
	SourceCommit string         `json:"source_commit"`
	SyncedAt     time.Time      `json:"synced_at"`
}

// StatusInput takes no parameters.
type StatusInput struct{}

// StatusOutput reports index readiness and provenance.
type StatusOutput struct {
	Ready        bool      `json:"ready"`
	Generation   string    `json:"generation,omitempty"`
	SourceCommit string    `json:"source_commit,omitempty"`
	SyncedAt     time.Time `json:"synced_at,omitzero"`
	IndexAge     string    `json:"index_age,omitempty"`
	Records      int       `json:"records"`
	Members      int       `json:"members"`
	Message      string    `json:"message,omitempty"`
}

// GetCodeSnippetsInput defines the input for the get_code_snippets tool.
// Exactly one of ID or Topic selects the records to pull snippets from.
type GetCodeSnippetsInput struct {
	// ID pulls snippets from one record and everything nested under it.
	ID string `json:"id,omitempty" jsonschema:"description=AIDEFEND identifier to pull code snippets from, including its sub-techniques and strategies"`
	// Topic finds snippet-bearing records by semantic search instead.
	Topic string `json:"topic,omitempty" jsonschema:"description=Natural language topic to search snippet-bearing records for, used when no id is given"`
	// Language keeps only snippets declared in this language.
	Language string `json:"language,omitempty" jsonschema:"description=Only return snippets declared in this language (e.g. python)"`
	// MaxSnippets caps the number of snippets returned.
	MaxSnippets int `json:"max_snippets,omitempty" jsonschema:"minimum=1,maximum=50,default=10,description=Maximum number of snippets to return"`
}

// CodeSnippet is one extracted code block with its provenance.
type CodeSnippet struct {
	SourceID string `json:"source_id"`
	Name     string `json:"name"`
	Language string `json:"language,omitempty"`
	Code     string `json:"code"`
}

// GetCodeSnippetsOutput contains the retrieved snippets.
type GetCodeSnippetsOutput struct {
	Snippets []CodeSnippet `json:"snippets"`
	Message  string        `json:"message,omitempty"`
}

// SyncNowInput defines the input for the sync_now tool.
type SyncNowInput struct {
	// Force rebuilds even when the upstream commit is unchanged.
	Force bool `json:"force,omitempty" jsonschema:"description=Rebuild even if the upstream corpus commit has not changed"`
}

// SyncNowOutput reports the sync attempt's outcome.
type SyncNowOutput struct {
	Status        string   `json:"status"`
	Commit        string   `json:"commit,omitempty"`
	Generation    string   `json:"generation,omitempty"`
	Records       int      `json:"records"`
	Members       int      `json:"members"`
	FailedMembers []string `json:"failed_members,omitempty"`
	Duration      string   `json:"duration"`
	Message       string   `json:"message,omitempty"`
}
