package storage

import (
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"

	"github.com/aidefend/aidefend-mcp/internal/corpus"
)

func TestPointIDDeterministic(t *testing.T) {
	a := PointID("AID-H-001")
	b := PointID("AID-H-001")
	c := PointID("AID-H-002")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestPayloadRoundTrip(t *testing.T) {
	original := &corpus.Record{
		SourceID:        "AID-H-001.002.S1",
		Tactic:          "harden",
		Name:            "Gradient Masking Review",
		Type:            corpus.TypeStrategy,
		Text:            "Implementation Strategy for ...",
		HasCode: true,
		CodeBlocks: []corpus.CodeBlock{
			{Language: "python", Code: "model.eval()"},
			{Language: "", Code: "make audit"},
		},
		Pillar:          "model",
		Phase:           "building",
		ParentID:        "AID-H-001.002",
		DefendsAgainst:  []string{"AML.T0043", "AML.T0015"},
		ToolsOpenSource: []string{"art"},
		ToolsCommercial: []string{"vendor-x"},
	}

	payload := qdrant.NewValueMap(recordPayload(original))
	got := recordFromPayload(payload)

	assert.Equal(t, original.SourceID, got.SourceID)
	assert.Equal(t, original.Tactic, got.Tactic)
	assert.Equal(t, original.Name, got.Name)
	assert.Equal(t, original.Type, got.Type)
	assert.Equal(t, original.Text, got.Text)
	assert.Equal(t, original.HasCode, got.HasCode)
	assert.Equal(t, original.CodeBlocks, got.CodeBlocks)
	assert.Equal(t, original.Pillar, got.Pillar)
	assert.Equal(t, original.Phase, got.Phase)
	assert.Equal(t, original.ParentID, got.ParentID)
	assert.Equal(t, original.DefendsAgainst, got.DefendsAgainst)
	assert.Equal(t, original.ToolsOpenSource, got.ToolsOpenSource)
	assert.Equal(t, original.ToolsCommercial, got.ToolsCommercial)
}
