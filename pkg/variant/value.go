// Package variant implements the self-describing variant encoding used to
// store schema-less JSON-like values inside a Parquet column: a shared
// string dictionary ("metadata") plus a recursive binary value sequence
// that references dictionary entries by integer index.
package variant

// Kind tags the type of a Value in the universal JSON data model this
// package encodes: null, bool, number (int or float, tracked separately so
// the distinction survives a round trip), string, bytes, sequence, and
// mapping.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindBytes
	KindSequence
	KindMapping
)

// Entry is one key/value pair of a Mapping value. Mappings are represented
// as an ordered slice of entries, not a Go map, so that insertion order
// survives construction and decoding alike.
type Entry struct {
	Key   string
	Value Value
}

// Value is a single node of the universal JSON data model.
type Value struct {
	Kind    Kind
	boolean bool
	integer int64
	float   float64
	str     string
	bytes   []byte
	seq     []Value
	mapping []Entry
}

func Null() Value             { return Value{Kind: KindNull} }
func Bool(b bool) Value       { return Value{Kind: KindBool, boolean: b} }
func Int(i int64) Value       { return Value{Kind: KindInt, integer: i} }
func Float(f float64) Value   { return Value{Kind: KindFloat, float: f} }
func String(s string) Value   { return Value{Kind: KindString, str: s} }
func Bytes(b []byte) Value    { return Value{Kind: KindBytes, bytes: append([]byte(nil), b...)} }
func Sequence(vs ...Value) Value {
	return Value{Kind: KindSequence, seq: append([]Value(nil), vs...)}
}
func Mapping(entries ...Entry) Value {
	return Value{Kind: KindMapping, mapping: append([]Entry(nil), entries...)}
}

func (v Value) AsBool() bool       { return v.boolean }
func (v Value) AsInt() int64       { return v.integer }
func (v Value) AsFloat() float64   { return v.float }
func (v Value) AsString() string   { return v.str }
func (v Value) AsBytes() []byte    { return v.bytes }
func (v Value) AsSequence() []Value { return v.seq }
func (v Value) AsMapping() []Entry { return v.mapping }

// Get returns the value bound to key in a Mapping, and whether it was
// present. Missing intermediate mappings never panic.
func (v Value) Get(key string) (Value, bool) {
	if v.Kind != KindMapping {
		return Value{}, false
	}
	for _, e := range v.mapping {
		if e.Key == key {
			return e.Value, true
		}
	}
	return Value{}, false
}

// Equal reports deep, order-sensitive equality between two values.
func Equal(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindNull:
		return true
	case KindBool:
		return a.boolean == b.boolean
	case KindInt:
		return a.integer == b.integer
	case KindFloat:
		return a.float == b.float
	case KindString:
		return a.str == b.str
	case KindBytes:
		if len(a.bytes) != len(b.bytes) {
			return false
		}
		for i := range a.bytes {
			if a.bytes[i] != b.bytes[i] {
				return false
			}
		}
		return true
	case KindSequence:
		if len(a.seq) != len(b.seq) {
			return false
		}
		for i := range a.seq {
			if !Equal(a.seq[i], b.seq[i]) {
				return false
			}
		}
		return true
	case KindMapping:
		if len(a.mapping) != len(b.mapping) {
			return false
		}
		for i := range a.mapping {
			if a.mapping[i].Key != b.mapping[i].Key || !Equal(a.mapping[i].Value, b.mapping[i].Value) {
				return false
			}
		}
		return true
	}
	return false
}

// FromJSON converts a value produced by encoding/json (or goccy/go-json)
// unmarshalled into `any` into a Value. A Go map carries no key order, so
// the entries of a Mapping built from one follow Go's map iteration order.
func FromJSON(v interface{}) Value {
	switch t := v.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(t)
	case float64:
		if t == float64(int64(t)) {
			return Int(int64(t))
		}
		return Float(t)
	case int64:
		return Int(t)
	case int:
		return Int(int64(t))
	case string:
		return String(t)
	case []byte:
		return Bytes(t)
	case []interface{}:
		seq := make([]Value, len(t))
		for i, e := range t {
			seq[i] = FromJSON(e)
		}
		return Sequence(seq...)
	case map[string]interface{}:
		entries := make([]Entry, 0, len(t))
		for k, e := range t {
			entries = append(entries, Entry{Key: k, Value: FromJSON(e)})
		}
		return Mapping(entries...)
	default:
		return Null()
	}
}

// ToJSON converts a Value back into the plain interface{} shapes
// encoding/json understands, for callers that just want a generic tree.
func ToJSON(v Value) interface{} {
	switch v.Kind {
	case KindNull:
		return nil
	case KindBool:
		return v.boolean
	case KindInt:
		return v.integer
	case KindFloat:
		return v.float
	case KindString:
		return v.str
	case KindBytes:
		return v.bytes
	case KindSequence:
		out := make([]interface{}, len(v.seq))
		for i, e := range v.seq {
			out[i] = ToJSON(e)
		}
		return out
	case KindMapping:
		out := make(map[string]interface{}, len(v.mapping))
		for _, e := range v.mapping {
			out[e.Key] = ToJSON(e.Value)
		}
		return out
	}
	return nil
}
