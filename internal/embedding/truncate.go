package embedding

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// MaxInputTokens is the context window of text-embedding-3-small. Inputs
// longer than this are rejected by the API, so they are truncated client
// side before submission.
const MaxInputTokens = 8192

// Truncator bounds text to the embedding model's token limit using the
// model's own tokenizer, so the cut is exact rather than a byte estimate.
type Truncator struct {
	encoding *tiktoken.Tiktoken
}

// NewTruncator loads the tokenizer for the embedding model.
func NewTruncator() (*Truncator, error) {
	encoding, err := tiktoken.EncodingForModel(EmbeddingModel)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer for %s: %w", EmbeddingModel, err)
	}
	return &Truncator{encoding: encoding}, nil
}

// Truncate returns text cut to at most MaxInputTokens tokens. Text already
// within the limit is returned unchanged.
func (t *Truncator) Truncate(text string) string {
	tokens := t.encoding.Encode(text, nil, nil)
	if len(tokens) <= MaxInputTokens {
		return text
	}
	return t.encoding.Decode(tokens[:MaxInputTokens])
}

// TokenCount reports how many tokens text occupies for the embedding model.
func (t *Truncator) TokenCount(text string) int {
	return len(t.encoding.Encode(text, nil, nil))
}
