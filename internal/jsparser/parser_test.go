package jsparser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_LiteralRoundTrip(t *testing.T) {
	src := `export const sample = {
		name: "Sample Tactic",
		"quoted key": "value",
		42: true,
		count: 3,
		ratio: -0.5,
		empty: null,
		missing: undefined,
		nested: {
			items: [1, 2, "three", false, [null]],
		},
	};`

	mod, err := Parse([]byte(src))
	require.NoError(t, err)
	require.Equal(t, "sample", mod.ExportName)

	want := NewMapping()
	want.Set("name", String("Sample Tactic"))
	want.Set("quoted key", String("value"))
	want.Set("42", Bool(true))
	want.Set("count", Number(3))
	want.Set("ratio", Number(-0.5))
	want.Set("empty", Null())
	want.Set("missing", Null())
	nested := NewMapping()
	nested.Set("items", Sequence([]Value{
		Number(1), Number(2), String("three"), Bool(false),
		Sequence([]Value{Null()}),
	}))
	want.Set("nested", Map(nested))

	assert.True(t, Equal(Map(want), mod.Root),
		"parsed tree should reproduce the literal tree exactly")
}

func TestParse_TestTacticScenario(t *testing.T) {
	src := "export const testTactic = { name: \"Test Tactic\", id: \"AID-T-001\", " +
		"description: `This is a test`, " +
		"techniques: [{id: \"AID-T-001.001\", name: \"Test Technique\"}] };"

	mod, err := Parse([]byte(src))
	require.NoError(t, err)

	assert.Equal(t, "Test Tactic", mod.Root.StringField("name"))
	assert.Equal(t, "AID-T-001", mod.Root.StringField("id"))
	assert.Equal(t, "This is a test", mod.Root.StringField("description"))

	techniques := mod.Root.SeqField("techniques")
	require.Len(t, techniques, 1)
	assert.Equal(t, "AID-T-001.001", techniques[0].StringField("id"))
	assert.Equal(t, "Test Technique", techniques[0].StringField("name"))
}

func TestParse_TemplateInterpolation(t *testing.T) {
	src := "export const m = { msg: `hello ${target} at ${3} via ${call()}` };"

	mod, err := Parse([]byte(src))
	require.NoError(t, err)

	// Identifier interpolations keep the referenced name as a marker, literal
	// interpolations keep their value, and anything else is opaque.
	assert.Equal(t, "hello <Identifier:target> at 3 via <Expression>",
		mod.Root.StringField("msg"))
}

func TestParse_StringConcatAndEscapes(t *testing.T) {
	src := `export const m = {
		joined: "line one\n" + "line two",
		sum: 1 + 2,
		tab: "a\tb",
		unicode: "é",
		negated: !true,
	};`

	mod, err := Parse([]byte(src))
	require.NoError(t, err)

	assert.Equal(t, "line one\nline two", mod.Root.StringField("joined"))
	sum, _ := mod.Root.Field("sum")
	assert.Equal(t, Number(3), sum)
	assert.Equal(t, "a\tb", mod.Root.StringField("tab"))
	assert.Equal(t, "é", mod.Root.StringField("unicode"))
	negated, _ := mod.Root.Field("negated")
	assert.Equal(t, Bool(false), negated)
}

func TestParse_NonLiteralFormsBecomeNull(t *testing.T) {
	src := `export const m = {
		fn: function() { return process.env; },
		arrow: () => require("child_process"),
		call: eval("1+1"),
		computed: obj[key],
		imported: import("fs"),
		ident: someBinding,
	};`

	mod, err := Parse([]byte(src))
	require.NoError(t, err)

	for _, key := range []string{"fn", "arrow", "call", "computed", "imported", "ident"} {
		v, ok := mod.Root.Field(key)
		require.True(t, ok, "key %q should be present", key)
		assert.Equal(t, KindNull, v.Kind, "key %q should be a null placeholder", key)
	}
}

func TestParse_NoExportedObject(t *testing.T) {
	cases := []struct {
		name string
		src  string
	}{
		{"empty", ""},
		{"garbage bytes", "\x00\xff\xfe{{{{"},
		{"statements only", "const x = 1; console.log(x);"},
		{"exported function", "export function f() { return {}; }"},
		{"exported scalar", "export const n = 42;"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.src))
			require.Error(t, err)
			var perr *ParseError
			require.ErrorAs(t, err, &perr)
		})
	}
}

// TestParse_HostileInputsReturnWithoutSideEffects feeds inputs that would be
// dangerous if the module text were ever evaluated. The only acceptable
// outcomes are a value or a ParseError.
func TestParse_HostileInputsReturnWithoutSideEffects(t *testing.T) {
	hostile := []string{
		`export const x = { run: require("child_process").execSync("id") };`,
		`export const x = (() => { while(true){} })();`,
		`import fs from "fs"; fs.rmSync("/", {recursive: true}); export const x = {a: 1};`,
		`export const x = { p: __proto__, q: constructor.constructor("return 1")() };`,
		strings.Repeat("{[", 5000),
		"export const x = {" + strings.Repeat(`a:"b",`, 2000) + "};",
	}

	for i, src := range hostile {
		mod, err := Parse([]byte(src))
		if err != nil {
			var perr *ParseError
			assert.ErrorAs(t, err, &perr, "input %d", i)
			continue
		}
		require.NotNil(t, mod, "input %d", i)
	}
}

func TestParse_ExportDefault(t *testing.T) {
	mod, err := Parse([]byte(`export default { name: "Defaulted" };`))
	require.NoError(t, err)
	assert.Equal(t, "default", mod.ExportName)
	assert.Equal(t, "Defaulted", mod.Root.StringField("name"))
}

func TestMapping_OrderAndDuplicates(t *testing.T) {
	m := NewMapping()
	m.Set("b", Number(1))
	m.Set("a", Number(2))
	m.Set("b", Number(3))

	assert.Equal(t, []string{"b", "a"}, m.Keys())
	v, ok := m.Get("b")
	require.True(t, ok)
	assert.Equal(t, Number(3), v)
}
