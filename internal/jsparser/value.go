// Package jsparser converts AIDEFEND tactic modules (JavaScript source with
// export-style data declarations) into plain data trees using tree-sitter
// syntax analysis. The input is never evaluated: parsing is a pure function of
// the source text, which is the whole point — the corpus is fetched from an
// external repository and must be treated as untrusted.
package jsparser

// Kind identifies the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindSequence
	KindMapping
)

// String returns the kind name for logging and error messages.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	default:
		return "unknown"
	}
}

// Value is one node of a parsed data tree. Exactly one variant field is
// meaningful, selected by Kind. Values contain only plain data — no closures,
// no handles, nothing executable.
type Value struct {
	Kind Kind
	Bool bool
	Num  float64
	Str  string
	Seq  []Value
	Map  *Mapping
}

// Entry is a single key/value member of a Mapping.
type Entry struct {
	Key   string
	Value Value
}

// Mapping is an ordered string-keyed map. Keys preserve source declaration
// order; duplicate keys keep the last value but the original position.
type Mapping struct {
	entries []Entry
	index   map[string]int
}

// NewMapping returns an empty ordered mapping.
func NewMapping() *Mapping {
	return &Mapping{index: make(map[string]int)}
}

// Set inserts or replaces the value for key.
func (m *Mapping) Set(key string, v Value) {
	if i, ok := m.index[key]; ok {
		m.entries[i].Value = v
		return
	}
	m.index[key] = len(m.entries)
	m.entries = append(m.entries, Entry{Key: key, Value: v})
}

// Get returns the value for key and whether it was present.
func (m *Mapping) Get(key string) (Value, bool) {
	if m == nil {
		return Null(), false
	}
	if i, ok := m.index[key]; ok {
		return m.entries[i].Value, true
	}
	return Null(), false
}

// Keys returns the keys in declaration order.
func (m *Mapping) Keys() []string {
	if m == nil {
		return nil
	}
	keys := make([]string, len(m.entries))
	for i, e := range m.entries {
		keys[i] = e.Key
	}
	return keys
}

// Entries returns the members in declaration order.
func (m *Mapping) Entries() []Entry {
	if m == nil {
		return nil
	}
	return m.entries
}

// Len returns the number of members.
func (m *Mapping) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}

// Constructors for the six variants.

func Null() Value               { return Value{Kind: KindNull} }
func Bool(b bool) Value         { return Value{Kind: KindBool, Bool: b} }
func Number(f float64) Value    { return Value{Kind: KindNumber, Num: f} }
func String(s string) Value     { return Value{Kind: KindString, Str: s} }
func Sequence(vs []Value) Value { return Value{Kind: KindSequence, Seq: vs} }
func Map(m *Mapping) Value      { return Value{Kind: KindMapping, Map: m} }

// Field returns the mapping member named key. Returns a null value with
// ok=false when the receiver is not a mapping or the key is absent, so
// extraction code can chain lookups without nil checks.
func (v Value) Field(key string) (Value, bool) {
	if v.Kind != KindMapping {
		return Null(), false
	}
	return v.Map.Get(key)
}

// StringField returns the string member named key, or "" when absent or not
// a string.
func (v Value) StringField(key string) string {
	f, ok := v.Field(key)
	if !ok || f.Kind != KindString {
		return ""
	}
	return f.Str
}

// SeqField returns the sequence member named key, or nil when absent or not
// a sequence.
func (v Value) SeqField(key string) []Value {
	f, ok := v.Field(key)
	if !ok || f.Kind != KindSequence {
		return nil
	}
	return f.Seq
}

// StringSeqField returns the string elements of the sequence member named
// key, skipping non-string elements.
func (v Value) StringSeqField(key string) []string {
	var out []string
	for _, e := range v.SeqField(key) {
		if e.Kind == KindString {
			out = append(out, e.Str)
		}
	}
	return out
}

// Equal reports deep structural equality between two values, including
// mapping key order.
func Equal(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindNull:
		return true
	case KindBool:
		return a.Bool == b.Bool
	case KindNumber:
		return a.Num == b.Num
	case KindString:
		return a.Str == b.Str
	case KindSequence:
		if len(a.Seq) != len(b.Seq) {
			return false
		}
		for i := range a.Seq {
			if !Equal(a.Seq[i], b.Seq[i]) {
				return false
			}
		}
		return true
	case KindMapping:
		if a.Map.Len() != b.Map.Len() {
			return false
		}
		ae, be := a.Map.Entries(), b.Map.Entries()
		for i := range ae {
			if ae[i].Key != be[i].Key || !Equal(ae[i].Value, be[i].Value) {
				return false
			}
		}
		return true
	}
	return false
}
