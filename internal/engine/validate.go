package engine

import (
	"sort"
	"strings"

	"github.com/hbollon/go-edlib"

	"github.com/aidefend/aidefend-mcp/internal/corpus"
)

const (
	// suggestionThreshold is the minimum Jaro-Winkler similarity for an ID
	// to be offered as a "did you mean" candidate.
	suggestionThreshold = 0.80

	// maxSuggestions bounds the candidate list.
	maxSuggestions = 3
)

// Suggestion is a near-miss candidate for an unknown source ID.
type Suggestion struct {
	SourceID string
	Name     string
	Score    float64
}

// ValidationResult reports whether a source ID is well formed, whether it
// exists in the live generation, and near-miss candidates when it does not.
type ValidationResult struct {
	Input       string
	FormatValid bool
	Exists      bool
	Record      *corpus.Record
	Suggestions []Suggestion
}

// ValidateID checks an ID against the AIDEFEND format and the live
// generation. Unknown but well formed IDs get fuzzy-matched suggestions
// ranked by Jaro-Winkler similarity, ties broken lexicographically.
func (e *Engine) ValidateID(id string) (*ValidationResult, error) {
	gen, err := e.current()
	if err != nil {
		return nil, err
	}

	id = strings.TrimSpace(id)
	result := &ValidationResult{
		Input:       id,
		FormatValid: corpus.SourceIDPattern.MatchString(id),
	}

	if rec, ok := gen.byID[id]; ok {
		result.Exists = true
		result.Record = rec
		return result, nil
	}

	result.Suggestions = suggestIDs(gen, id)
	return result, nil
}

func suggestIDs(gen *generation, id string) []Suggestion {
	var candidates []Suggestion
	for _, candidateID := range gen.sortedIDs {
		similarity, err := edlib.StringsSimilarity(id, candidateID, edlib.JaroWinkler)
		if err != nil {
			continue
		}
		score := float64(similarity)
		if score < suggestionThreshold {
			continue
		}
		candidates = append(candidates, Suggestion{
			SourceID: candidateID,
			Name:     gen.byID[candidateID].Name,
			Score:    score,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].SourceID < candidates[j].SourceID
	})

	if len(candidates) > maxSuggestions {
		candidates = candidates[:maxSuggestions]
	}
	return candidates
}
