package corpus

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// The corpus embeds rich HTML in its description and howTo fields, and some
// descriptions carry fenced markdown instead. Both flavors are handled
// structurally: goquery walks the HTML fragment tree, goldmark walks the
// markdown AST. No regexes over raw text — that class of heuristic is exactly
// what drifts between index time and query time.

var markdown = goldmark.New()

// FlattenHTML strips markup from an HTML fragment and returns readable text
// with normalized whitespace. Element boundaries become spaces, so adjacent
// block texts never fuse into one word. Plain text passes through unchanged
// apart from whitespace normalization.
func FlattenHTML(fragment string) string {
	if !strings.ContainsRune(fragment, '<') {
		return normalizeSpace(fragment)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return normalizeSpace(fragment)
	}
	var parts []string
	collectText(doc.Selection, &parts)
	return normalizeSpace(strings.Join(parts, " "))
}

// collectText gathers trimmed text nodes in document order.
func collectText(sel *goquery.Selection, parts *[]string) {
	sel.Contents().Each(func(_ int, node *goquery.Selection) {
		if goquery.NodeName(node) == "#text" {
			if t := strings.TrimSpace(node.Text()); t != "" {
				*parts = append(*parts, t)
			}
			return
		}
		collectText(node, parts)
	})
}

// HasCodeBlock reports whether content contains at least one structural code
// block: an HTML <pre> element, a multi-line <code> element, or a markdown
// fenced code block. This is the single detector used both when tagging
// records at index time and when re-checking at query time.
func HasCodeBlock(content string) bool {
	if hasHTMLCodeBlock(content) {
		return true
	}
	return hasMarkdownCodeBlock(content)
}

// CodeBlock is one extracted snippet with its declared language, if any.
type CodeBlock struct {
	Language string
	Code     string
}

// ExtractCodeBlocks returns the code blocks found by the same structural
// analysis HasCodeBlock uses. HasCodeBlock(c) is true exactly when
// len(ExtractCodeBlocks(c)) > 0.
func ExtractCodeBlocks(content string) []CodeBlock {
	blocks := htmlCodeBlocks(content)
	blocks = append(blocks, markdownCodeBlocks(content)...)
	return blocks
}

// hasHTMLCodeBlock applies exactly the block rule htmlCodeBlocks extracts
// by, so the flag and the extraction can never disagree.
func hasHTMLCodeBlock(content string) bool {
	return len(htmlCodeBlocks(content)) > 0
}

func htmlCodeBlocks(content string) []CodeBlock {
	if !strings.ContainsRune(content, '<') {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil
	}

	var blocks []CodeBlock
	doc.Find("pre").Each(func(_ int, pre *goquery.Selection) {
		lang := ""
		code := pre.Find("code").First()
		if code.Length() > 0 {
			lang = languageFromClass(code.AttrOr("class", ""))
		} else {
			lang = languageFromClass(pre.AttrOr("class", ""))
		}
		blocks = append(blocks, CodeBlock{Language: lang, Code: strings.TrimSpace(pre.Text())})
	})
	// <code> outside <pre> is inline; only standalone <code> with newlines is
	// treated as a block.
	doc.Find("code").Each(func(_ int, code *goquery.Selection) {
		if code.ParentsFiltered("pre").Length() > 0 {
			return
		}
		body := code.Text()
		if strings.ContainsRune(body, '\n') {
			blocks = append(blocks, CodeBlock{
				Language: languageFromClass(code.AttrOr("class", "")),
				Code:     strings.TrimSpace(body),
			})
		}
	})
	return blocks
}

func hasMarkdownCodeBlock(content string) bool {
	found := false
	walkMarkdown(content, func(lang, code string) {
		found = true
	})
	return found
}

func markdownCodeBlocks(content string) []CodeBlock {
	var blocks []CodeBlock
	walkMarkdown(content, func(lang, code string) {
		blocks = append(blocks, CodeBlock{Language: lang, Code: strings.TrimSpace(code)})
	})
	return blocks
}

// walkMarkdown parses content as markdown and visits each fenced code block
// in the AST. Indented code blocks are ignored: HTML-heavy fragments indent
// freely and would over-detect.
func walkMarkdown(content string, visit func(lang, code string)) {
	source := []byte(content)
	doc := markdown.Parser().Parse(text.NewReader(source))
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if block, ok := n.(*ast.FencedCodeBlock); ok {
			visit(string(block.Language(source)), blockText(block, source))
		}
		return ast.WalkContinue, nil
	})
}

func blockText(n ast.Node, source []byte) string {
	var b strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		segment := lines.At(i)
		b.Write(segment.Value(source))
	}
	return b.String()
}

func languageFromClass(class string) string {
	for _, c := range strings.Fields(class) {
		if lang, ok := strings.CutPrefix(c, "language-"); ok {
			return lang
		}
	}
	return ""
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
