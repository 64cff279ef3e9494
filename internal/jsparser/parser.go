package jsparser

import (
	"fmt"
	"strconv"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
)

// Module is the result of parsing one tactic file: the name of the exported
// binding and the plain data tree assigned to it.
type Module struct {
	ExportName string
	Root       Value
}

// ParseError reports why a module could not be parsed. It is a per-file
// error; callers skip the file and continue with the rest of the corpus.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("jsparser: %s", e.Reason)
}

// Parse extracts the first exported object or array literal from JavaScript
// source text. Only literal forms are interpreted: object and array literals,
// strings, template strings, numbers, booleans, null/undefined, simple unary
// expressions, and `+` on two literals. Any other syntax node — function
// definitions, calls, computed access, spreads, imports — becomes a null
// placeholder at its position. Template interpolations of identifiers are
// recorded as "<Identifier:name>" markers; the runtime value is intentionally
// lost.
//
// Parse performs no I/O and never executes the input. A panic from the
// tree-sitter runtime is recovered and reported as a ParseError.
func Parse(src []byte) (mod *Module, err error) {
	defer func() {
		if r := recover(); r != nil {
			mod = nil
			err = &ParseError{Reason: fmt.Sprintf("tree-sitter panic: %v", r)}
		}
	}()

	parser := tree_sitter.NewParser()
	defer parser.Close()

	language := tree_sitter.NewLanguage(tree_sitter_javascript.Language())
	if setErr := parser.SetLanguage(language); setErr != nil {
		return nil, &ParseError{Reason: fmt.Sprintf("set language: %v", setErr)}
	}

	// The tree-sitter C library may mutate its input buffer via CGO, so parse
	// a defensive copy.
	buf := make([]byte, len(src))
	copy(buf, src)

	tree := parser.Parse(buf, nil)
	if tree == nil {
		return nil, &ParseError{Reason: "tree-sitter produced no syntax tree"}
	}
	defer tree.Close()

	root := tree.RootNode()
	for i := uint(0); i < root.NamedChildCount(); i++ {
		stmt := root.NamedChild(i)
		if stmt.Kind() != "export_statement" {
			continue
		}
		if m := exportedModule(stmt, buf); m != nil {
			return m, nil
		}
	}

	return nil, &ParseError{Reason: "no exported object or array literal found"}
}

// exportedModule inspects one export statement for a usable data literal.
// Handles `export const name = {...}` and `export default {...}`.
func exportedModule(stmt *tree_sitter.Node, src []byte) *Module {
	if decl := stmt.ChildByFieldName("declaration"); decl != nil {
		if decl.Kind() != "lexical_declaration" && decl.Kind() != "variable_declaration" {
			return nil
		}
		for i := uint(0); i < decl.NamedChildCount(); i++ {
			declarator := decl.NamedChild(i)
			if declarator.Kind() != "variable_declarator" {
				continue
			}
			name := declarator.ChildByFieldName("name")
			value := declarator.ChildByFieldName("value")
			if name == nil || value == nil {
				continue
			}
			if value.Kind() != "object" && value.Kind() != "array" {
				continue
			}
			return &Module{
				ExportName: nodeText(name, src),
				Root:       buildValue(value, src),
			}
		}
		return nil
	}

	if value := stmt.ChildByFieldName("value"); value != nil {
		if value.Kind() == "object" || value.Kind() == "array" {
			return &Module{ExportName: "default", Root: buildValue(value, src)}
		}
	}
	return nil
}

// buildValue converts one syntax node into a Value, bottom-up. Unrecognized
// node kinds map to null rather than failing the parse.
func buildValue(node *tree_sitter.Node, src []byte) Value {
	switch node.Kind() {
	case "object":
		return buildObject(node, src)
	case "array":
		return buildArray(node, src)
	case "string":
		return String(decodeString(node, src))
	case "template_string":
		return String(decodeTemplate(node, src))
	case "number":
		return Number(parseNumber(nodeText(node, src)))
	case "true":
		return Bool(true)
	case "false":
		return Bool(false)
	case "null", "undefined":
		return Null()
	case "unary_expression":
		return buildUnary(node, src)
	case "binary_expression":
		return buildBinary(node, src)
	case "parenthesized_expression":
		if inner := firstDataChild(node); inner != nil {
			return buildValue(inner, src)
		}
		return Null()
	default:
		return Null()
	}
}

func buildObject(node *tree_sitter.Node, src []byte) Value {
	m := NewMapping()
	for i := uint(0); i < node.NamedChildCount(); i++ {
		member := node.NamedChild(i)
		switch member.Kind() {
		case "pair":
			keyNode := member.ChildByFieldName("key")
			valueNode := member.ChildByFieldName("value")
			if keyNode == nil || valueNode == nil {
				continue
			}
			key, ok := propertyKey(keyNode, src)
			if !ok {
				// Computed keys are outside the literal grammar.
				continue
			}
			m.Set(key, buildValue(valueNode, src))
		case "shorthand_property_identifier":
			// The bound value is a runtime concern; record the key with a
			// null placeholder.
			m.Set(nodeText(member, src), Null())
		case "method_definition":
			if nameNode := member.ChildByFieldName("name"); nameNode != nil {
				if key, ok := propertyKey(nameNode, src); ok {
					m.Set(key, Null())
				}
			}
		case "comment", "spread_element":
			// Spreads have no static key to attach a placeholder to.
		}
	}
	return Map(m)
}

func buildArray(node *tree_sitter.Node, src []byte) Value {
	var seq []Value
	for i := uint(0); i < node.NamedChildCount(); i++ {
		element := node.NamedChild(i)
		if element.Kind() == "comment" {
			continue
		}
		seq = append(seq, buildValue(element, src))
	}
	return Sequence(seq)
}

func buildUnary(node *tree_sitter.Node, src []byte) Value {
	argNode := node.ChildByFieldName("argument")
	opNode := node.ChildByFieldName("operator")
	if argNode == nil || opNode == nil {
		return Null()
	}
	arg := buildValue(argNode, src)
	switch nodeText(opNode, src) {
	case "-":
		if arg.Kind == KindNumber {
			return Number(-arg.Num)
		}
	case "+":
		if arg.Kind == KindNumber {
			return arg
		}
	case "!":
		if arg.Kind == KindBool {
			return Bool(!arg.Bool)
		}
	}
	return Null()
}

func buildBinary(node *tree_sitter.Node, src []byte) Value {
	opNode := node.ChildByFieldName("operator")
	leftNode := node.ChildByFieldName("left")
	rightNode := node.ChildByFieldName("right")
	if opNode == nil || leftNode == nil || rightNode == nil {
		return Null()
	}
	if nodeText(opNode, src) != "+" {
		return Null()
	}
	left := buildValue(leftNode, src)
	right := buildValue(rightNode, src)
	switch {
	case left.Kind == KindString && right.Kind == KindString:
		return String(left.Str + right.Str)
	case left.Kind == KindNumber && right.Kind == KindNumber:
		return Number(left.Num + right.Num)
	}
	return Null()
}

// propertyKey extracts an object key from identifier or literal syntax.
// Numeric and string keys are coerced to string, matching JavaScript's own
// property-key semantics.
func propertyKey(node *tree_sitter.Node, src []byte) (string, bool) {
	switch node.Kind() {
	case "property_identifier", "identifier":
		return nodeText(node, src), true
	case "string":
		return decodeString(node, src), true
	case "number":
		return nodeText(node, src), true
	default:
		return "", false
	}
}

// decodeString reassembles a string literal from its fragment and escape
// children.
func decodeString(node *tree_sitter.Node, src []byte) string {
	var b strings.Builder
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		switch child.Kind() {
		case "string_fragment":
			b.WriteString(nodeText(child, src))
		case "escape_sequence":
			b.WriteString(decodeEscape(nodeText(child, src)))
		}
	}
	return b.String()
}

// decodeTemplate flattens a template string. Literal fragments are kept;
// identifier interpolations become "<Identifier:name>" markers; literal
// interpolations keep their value; anything else becomes "<Expression>".
func decodeTemplate(node *tree_sitter.Node, src []byte) string {
	var b strings.Builder
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		switch child.Kind() {
		case "string_fragment":
			b.WriteString(nodeText(child, src))
		case "escape_sequence":
			b.WriteString(decodeEscape(nodeText(child, src)))
		case "template_substitution":
			b.WriteString(substitutionText(child, src))
		}
	}
	return b.String()
}

func substitutionText(node *tree_sitter.Node, src []byte) string {
	expr := firstDataChild(node)
	if expr == nil {
		return "<Expression>"
	}
	switch expr.Kind() {
	case "identifier":
		return "<Identifier:" + nodeText(expr, src) + ">"
	case "string":
		return decodeString(expr, src)
	case "template_string":
		return decodeTemplate(expr, src)
	case "number", "true", "false":
		return nodeText(expr, src)
	default:
		return "<Expression>"
	}
}

// firstDataChild returns the first named child that is not a comment.
func firstDataChild(node *tree_sitter.Node) *tree_sitter.Node {
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		if child.Kind() != "comment" {
			return child
		}
	}
	return nil
}

// decodeEscape interprets one JavaScript escape sequence. Unknown sequences
// decode to the escaped character itself, which is how JS treats them.
func decodeEscape(esc string) string {
	if len(esc) < 2 || esc[0] != '\\' {
		return esc
	}
	switch esc[1] {
	case 'n':
		return "\n"
	case 't':
		return "\t"
	case 'r':
		return "\r"
	case 'b':
		return "\b"
	case 'f':
		return "\f"
	case 'v':
		return "\v"
	case '0':
		if len(esc) == 2 {
			return "\x00"
		}
	case 'x':
		if len(esc) == 4 {
			if n, err := strconv.ParseUint(esc[2:], 16, 8); err == nil {
				return string(rune(n))
			}
		}
	case 'u':
		body := esc[2:]
		if strings.HasPrefix(body, "{") && strings.HasSuffix(body, "}") {
			body = body[1 : len(body)-1]
		}
		if n, err := strconv.ParseUint(body, 16, 32); err == nil {
			return string(rune(n))
		}
	}
	return esc[1:]
}

// parseNumber handles decimal, hex, octal, and binary literals, including
// numeric separators. Unparseable text yields 0, consistent with the
// null-placeholder policy of keeping the parse alive.
func parseNumber(text string) float64 {
	text = strings.ReplaceAll(text, "_", "")
	lower := strings.ToLower(text)
	for prefix, base := range map[string]int{"0x": 16, "0o": 8, "0b": 2} {
		if strings.HasPrefix(lower, prefix) {
			if n, err := strconv.ParseUint(lower[2:], base, 64); err == nil {
				return float64(n)
			}
			return 0
		}
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0
	}
	return f
}

func nodeText(node *tree_sitter.Node, src []byte) string {
	return string(src[node.StartByte():node.EndByte()])
}
