package corpus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlattenHTML(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "plain text",
			in:   "  just   some\ntext  ",
			want: "just some text",
		},
		{
			name: "markup stripped",
			in:   "<h5>Concept:</h5><p>Validate <strong>all</strong> inputs.</p>",
			want: "Concept: Validate all inputs.",
		},
		{
			name: "nested lists",
			in:   "<ul><li>first</li><li>second</li></ul>",
			want: "first second",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, FlattenHTML(tc.in))
		})
	}
}

func TestHasCodeBlock(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want bool
	}{
		{"empty", "", false},
		{"prose", "Validate inputs before inference.", false},
		{"html pre code", `<p>Example:</p><pre><code class="language-python">print("ok")</code></pre>`, true},
		{"bare pre", "<pre>ls -la</pre>", true},
		{"inline code single line", "<p>use <code>strict mode</code> here</p>", false},
		{"markdown fence", "Run this:\n```bash\nmake check\n```\n", true},
		{"mentions code without block", "write code carefully", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, HasCodeBlock(tc.in))
		})
	}
}

// The tag applied at index time and any later re-check must come from the
// same detector: HasCodeBlock is true exactly when ExtractCodeBlocks finds
// something.
func TestHasCodeBlock_AgreesWithExtraction(t *testing.T) {
	samples := []string{
		"",
		"plain prose about secure coding",
		`<pre><code class="language-go">package main</code></pre>`,
		"<p>text</p><pre>raw block</pre>",
		"```python\nimport os\n```",
		"<p>inline <code>x</code> only</p>",
		"<code>line one\nline two</code>",
	}

	for _, s := range samples {
		assert.Equal(t, HasCodeBlock(s), len(ExtractCodeBlocks(s)) > 0,
			"detector disagreement on %q", s)
	}
}

func TestExtractCodeBlocks_Language(t *testing.T) {
	blocks := ExtractCodeBlocks(`<pre><code class="language-python">print("x")</code></pre>`)
	require.Len(t, blocks, 1)
	assert.Equal(t, "python", blocks[0].Language)
	assert.Equal(t, `print("x")`, blocks[0].Code)

	blocks = ExtractCodeBlocks("```go\nfmt.Println(1)\n```")
	require.Len(t, blocks, 1)
	assert.Equal(t, "go", blocks[0].Language)
}

// inline code single line above relies on this: a bare <code> without
// newlines is not a block.
func TestHasCodeBlock_MultilineInlineCode(t *testing.T) {
	assert.True(t, HasCodeBlock("<code>a\nb</code>"))
}
