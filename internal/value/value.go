// Package value implements the dynamically typed JSON value used by the
// config store: a tagged variant over Null, Bool, Number, String, Array
// and Object, parsed with gjson and re-serialized with sjson/encoding-json.
package value

import (
	"fmt"
	"math"
	"sort"

	"github.com/tidwall/gjson"
)

// Kind discriminates the variant a Value currently holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

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
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Value is a dynamically typed JSON value.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	arr  []Value
	obj  map[string]Value
}

// Null returns the null Value. The zero Value is already null.
func Null() Value { return Value{kind: KindNull} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number wraps a float64-backed JSON number.
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// Int wraps a signed integer as a JSON number.
func Int(n int64) Value { return Number(float64(n)) }

// UInt wraps an unsigned integer as a JSON number.
func UInt(n uint64) Value { return Number(float64(n)) }

// String wraps a string.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Array wraps a JSON array.
func Array(vs []Value) Value { return Value{kind: KindArray, arr: vs} }

// Object wraps a JSON object. Members are held in a map, so member
// order is not preserved (FromJSON builds the same map-backed value);
// no caller of this package depends on member order.
func Object(m map[string]Value) Value { return Value{kind: KindObject, obj: m} }

// FromJSON parses a single JSON document (object, array, or scalar) into
// a Value using gjson.
func FromJSON(data []byte) Value {
	return fromGJSON(gjson.ParseBytes(data))
}

func fromGJSON(r gjson.Result) Value {
	switch r.Type {
	case gjson.Null:
		return Null()
	case gjson.False:
		return Bool(false)
	case gjson.True:
		return Bool(true)
	case gjson.Number:
		return Number(r.Num)
	case gjson.String:
		return String(r.Str)
	default:
		if r.IsArray() {
			var arr []Value
			r.ForEach(func(_, v gjson.Result) bool {
				arr = append(arr, fromGJSON(v))
				return true
			})
			return Array(arr)
		}
		if r.IsObject() {
			obj := make(map[string]Value)
			r.ForEach(func(k, v gjson.Result) bool {
				obj[k.String()] = fromGJSON(v)
				return true
			})
			return Object(obj)
		}
		return Null()
	}
}

// Kind reports the variant currently held.
func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool   { return v.kind == KindNull }
func (v Value) IsBool() bool   { return v.kind == KindBool }
func (v Value) IsNumber() bool { return v.kind == KindNumber }
func (v Value) IsString() bool { return v.kind == KindString }
func (v Value) IsArray() bool  { return v.kind == KindArray }
func (v Value) IsObject() bool { return v.kind == KindObject }

// Interface converts v into the native Go representation
// (nil/bool/float64/string/[]any/map[string]any) that encoding/json and
// sjson know how to marshal.
func (v Value) Interface() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	case KindArray:
		out := make([]any, len(v.arr))
		for i, e := range v.arr {
			out[i] = e.Interface()
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.obj))
		for k, e := range v.obj {
			out[k] = e.Interface()
		}
		return out
	default:
		return nil
	}
}

// AsBool returns the boolean value and whether v is exactly a bool.
func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// AsFloat returns the numeric value and whether v is exactly a number.
func (v Value) AsFloat() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.n, true
}

// ObjectEntries returns the backing map and whether v is exactly an
// object. The returned map is shared with v; callers must not mutate it.
func (v Value) ObjectEntries() (map[string]Value, bool) {
	if v.kind != KindObject {
		return nil, false
	}
	return v.obj, true
}

// ArrayElements returns the backing slice and whether v is exactly an
// array. The returned slice is shared with v; callers must not mutate it.
func (v Value) ArrayElements() ([]Value, bool) {
	if v.kind != KindArray {
		return nil, false
	}
	return v.arr, true
}

// AsString returns the string value and whether v is exactly a string.
func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

// ConvertibleToInt reports whether v can stand in for a signed integer
// config value: it must be a number whose magnitude fits in an int64.
// Fractional numbers are convertible (and truncate on read) — this is
// a range check only, not an integrality check.
func (v Value) ConvertibleToInt() bool {
	if v.kind != KindNumber {
		return false
	}
	return v.n >= math.MinInt64 && v.n <= math.MaxInt64
}

// ConvertibleToUInt reports whether v can stand in for an unsigned
// integer config value.
func (v Value) ConvertibleToUInt() bool {
	if v.kind != KindNumber {
		return false
	}
	return v.n >= 0 && v.n <= math.MaxUint64
}

// AsInt truncates a convertible number to int64.
func (v Value) AsInt() int64 { return int64(v.n) }

// AsUInt truncates a convertible number to uint64.
func (v Value) AsUInt() uint64 { return uint64(v.n) }

// Equal reports deep structural equality, used by tests and by the
// reconnect-trigger comparison (url/proxy_url changed?).
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindNumber:
		return a.n == b.n
	case KindString:
		return a.s == b.s
	case KindArray:
		if len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if !Equal(a.arr[i], b.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(a.obj) != len(b.obj) {
			return false
		}
		for k, av := range a.obj {
			bv, ok := b.obj[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// String implements fmt.Stringer for debugging and log lines.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	case KindNumber:
		return fmt.Sprintf("%g", v.n)
	case KindString:
		return v.s
	case KindArray:
		keys := make([]string, len(v.arr))
		for i, e := range v.arr {
			keys[i] = e.String()
		}
		return fmt.Sprintf("%v", keys)
	case KindObject:
		keys := make([]string, 0, len(v.obj))
		for k := range v.obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return fmt.Sprintf("object(%v)", keys)
	default:
		return "<unknown>"
	}
}
