package luasrc

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Kind is the variant tag of a Value.
type Kind int

const (
	KindNil Kind = iota
	KindNumber
	KindString
	KindBoolean
	// KindSequence is a table whose keys form a dense 1..N run.
	KindSequence
	// KindMapping is any other table, keyed by string.
	KindMapping
	// KindOpaque carries raw source text the extractor does not interpret.
	KindOpaque
)

func (k Kind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBoolean:
		return "boolean"
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	case KindOpaque:
		return "opaque"
	default:
		return "unknown"
	}
}

// IsTable reports whether the kind is one of the two table variants.
func (k Kind) IsTable() bool {
	return k == KindSequence || k == KindMapping
}

// Value is an extracted Lua value. Only the field matching Kind is set.
type Value struct {
	Kind Kind
	Num  float64
	Str  string
	Bool bool
	Seq  []Value
	Map  map[string]Value
	Raw  string
}

func Nil() Value { return Value{Kind: KindNil} }

func Number(f float64) Value { return Value{Kind: KindNumber, Num: f} }

func String(s string) Value { return Value{Kind: KindString, Str: s} }

func Bool(b bool) Value { return Value{Kind: KindBoolean, Bool: b} }

func Sequence(vs ...Value) Value { return Value{Kind: KindSequence, Seq: vs} }

// Mapping builds a mapping value; m is used as-is.
func Mapping(m map[string]Value) Value { return Value{Kind: KindMapping, Map: m} }

// Raw wraps pre-formatted Lua source. The patcher writes it verbatim.
func Raw(text string) Value { return Value{Kind: KindOpaque, Raw: text} }

// FromNative converts a plain Go value, as decoded from JSON or built by a
// caller, into a Value. Every JSON object becomes a mapping, including one
// shaped like an opaque value from Native; raw source is only ever built
// with Raw. Types without a Lua counterpart become Raw text via their
// default formatting.
func FromNative(v interface{}) Value {
	switch x := v.(type) {
	case nil:
		return Nil()
	case Value:
		return x
	case bool:
		return Bool(x)
	case string:
		return String(x)
	case float64:
		return Number(x)
	case float32:
		return Number(float64(x))
	case int:
		return Number(float64(x))
	case int8:
		return Number(float64(x))
	case int16:
		return Number(float64(x))
	case int32:
		return Number(float64(x))
	case int64:
		return Number(float64(x))
	case uint:
		return Number(float64(x))
	case uint8:
		return Number(float64(x))
	case uint16:
		return Number(float64(x))
	case uint32:
		return Number(float64(x))
	case uint64:
		return Number(float64(x))
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return Number(f)
		}
		return Raw(x.String())
	case []interface{}:
		seq := make([]Value, len(x))
		for i, item := range x {
			seq[i] = FromNative(item)
		}
		return Sequence(seq...)
	case map[string]interface{}:
		m := make(map[string]Value, len(x))
		for k, item := range x {
			m[k] = FromNative(item)
		}
		return Mapping(m)
	case fmt.Stringer:
		return Raw(x.String())
	default:
		return Raw(fmt.Sprint(x))
	}
}

// Equal reports whether two values are the same Lua value. Opaque values
// compare by their raw text.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindNil:
		return true
	case KindNumber:
		return v.Num == o.Num
	case KindString:
		return v.Str == o.Str
	case KindBoolean:
		return v.Bool == o.Bool
	case KindOpaque:
		return v.Raw == o.Raw
	case KindSequence:
		if len(v.Seq) != len(o.Seq) {
			return false
		}
		for i := range v.Seq {
			if !v.Seq[i].Equal(o.Seq[i]) {
				return false
			}
		}
		return true
	case KindMapping:
		if len(v.Map) != len(o.Map) {
			return false
		}
		for k, item := range v.Map {
			other, ok := o.Map[k]
			if !ok || !item.Equal(other) {
				return false
			}
		}
		return true
	}
	return false
}

// Native returns the value as plain Go data: nil, float64, string, bool,
// []interface{}, map[string]interface{}. Opaque values come back as
// map[string]interface{}{"opaque": raw} so they are never mistaken for
// strings.
func (v Value) Native() interface{} {
	switch v.Kind {
	case KindNumber:
		if math.IsNaN(v.Num) || math.IsInf(v.Num, 0) {
			return FormatNumber(v.Num)
		}
		return v.Num
	case KindString:
		return v.Str
	case KindBoolean:
		return v.Bool
	case KindSequence:
		out := make([]interface{}, len(v.Seq))
		for i, item := range v.Seq {
			out[i] = item.Native()
		}
		return out
	case KindMapping:
		out := make(map[string]interface{}, len(v.Map))
		for k, item := range v.Map {
			out[k] = item.Native()
		}
		return out
	case KindOpaque:
		return map[string]interface{}{"opaque": v.Raw}
	}
	return nil
}

// MarshalJSON encodes the value in its native JSON shape.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Native())
}

func (v Value) String() string {
	switch v.Kind {
	case KindOpaque:
		return v.Raw
	case KindString:
		return strconv.Quote(v.Str)
	case KindSequence, KindMapping:
		data, err := json.Marshal(v.Native())
		if err != nil {
			return v.Kind.String()
		}
		return string(data)
	}
	return fmt.Sprint(v.Native())
}
