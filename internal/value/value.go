// Package value models semi-structured configuration data.
//
// Every value is one of four tagged variants:
//
//   - Record: an ordered mapping of string keys to values
//   - Sequence: an ordered list of values
//   - Scalar: a string, bool, int64 or float64
//   - Null: an explicit null
//
// The zero Value is absent. Absent is what a lookup of a missing key returns
// and what a merge treats as "no opinion".
//
// Values are immutable. Accessors hand out copies and the With/Without
// helpers return new records, so subtrees can be shared freely between
// merged results.
package value

import (
	"math"
	"strconv"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	// KindAbsent is the zero Value: no value at all.
	KindAbsent Kind = iota
	// KindNull is an explicit null.
	KindNull
	// KindScalar is a string, bool, int64 or float64.
	KindScalar
	// KindSequence is an ordered list.
	KindSequence
	// KindRecord is an ordered string-keyed mapping.
	KindRecord
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindAbsent:
		return "absent"
	case KindNull:
		return "null"
	case KindScalar:
		return "scalar"
	case KindSequence:
		return "sequence"
	case KindRecord:
		return "record"
	default:
		return "unknown"
	}
}

// Value is a semi-structured value. See the package documentation.
type Value struct {
	kind   Kind
	scalar any
	items  []Value
	keys   []string
	fields map[string]Value
}

// Field is a single key/value pair of a record.
type Field struct {
	Key   string
	Value Value
}

// F is shorthand for constructing a Field.
func F(key string, v Value) Field {
	return Field{Key: key, Value: v}
}

// Null returns an explicit null.
func Null() Value {
	return Value{kind: KindNull}
}

// String returns a string scalar.
func String(s string) Value {
	return Value{kind: KindScalar, scalar: s}
}

// Int returns an integer scalar.
func Int(i int64) Value {
	return Value{kind: KindScalar, scalar: i}
}

// Float returns a floating point scalar.
func Float(f float64) Value {
	return Value{kind: KindScalar, scalar: f}
}

// Bool returns a boolean scalar.
func Bool(b bool) Value {
	return Value{kind: KindScalar, scalar: b}
}

// Seq returns a sequence holding a copy of items.
func Seq(items ...Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: KindSequence, items: cp}
}

// Record returns a record with the given fields in order.
// A repeated key keeps its first position and its last value.
// Fields with absent values are skipped.
func Record(fields ...Field) Value {
	v := Value{
		kind:   KindRecord,
		keys:   make([]string, 0, len(fields)),
		fields: make(map[string]Value, len(fields)),
	}
	for _, f := range fields {
		if f.Value.IsAbsent() {
			continue
		}
		if _, exists := v.fields[f.Key]; !exists {
			v.keys = append(v.keys, f.Key)
		}
		v.fields[f.Key] = f.Value
	}
	return v
}

// Kind returns the variant tag.
func (v Value) Kind() Kind { return v.kind }

// IsAbsent reports whether v is the zero Value.
func (v Value) IsAbsent() bool { return v.kind == KindAbsent }

// IsNull reports whether v is an explicit null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsScalar reports whether v is a scalar.
func (v Value) IsScalar() bool { return v.kind == KindScalar }

// IsSequence reports whether v is a sequence.
func (v Value) IsSequence() bool { return v.kind == KindSequence }

// IsRecord reports whether v is a record.
func (v Value) IsRecord() bool { return v.kind == KindRecord }

// Scalar returns the underlying scalar, or nil when v is not a scalar.
func (v Value) Scalar() any {
	if v.kind != KindScalar {
		return nil
	}
	return v.scalar
}

// AsString returns the string held by a string scalar.
func (v Value) AsString() (string, bool) {
	s, ok := v.Scalar().(string)
	return s, ok
}

// AsBool returns the bool held by a boolean scalar.
func (v Value) AsBool() (bool, bool) {
	b, ok := v.Scalar().(bool)
	return b, ok
}

// AsInt returns the integer held by a numeric scalar. Floats convert only
// when they are integral.
func (v Value) AsInt() (int64, bool) {
	switch n := v.Scalar().(type) {
	case int64:
		return n, true
	case float64:
		if n == math.Trunc(n) && n >= math.MinInt64 && n <= math.MaxInt64 {
			return int64(n), true
		}
	}
	return 0, false
}

// AsFloat returns the number held by a numeric scalar.
func (v Value) AsFloat() (float64, bool) {
	switch n := v.Scalar().(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// IsNumber reports whether v is an int64 or float64 scalar.
func (v Value) IsNumber() bool {
	_, ok := v.AsFloat()
	return ok
}

// Len returns the number of items of a sequence or fields of a record.
func (v Value) Len() int {
	switch v.kind {
	case KindSequence:
		return len(v.items)
	case KindRecord:
		return len(v.keys)
	default:
		return 0
	}
}

// Items returns a copy of the items of a sequence.
func (v Value) Items() []Value {
	if v.kind != KindSequence {
		return nil
	}
	cp := make([]Value, len(v.items))
	copy(cp, v.items)
	return cp
}

// Index returns the i-th item of a sequence, or absent when out of range.
func (v Value) Index(i int) Value {
	if v.kind != KindSequence || i < 0 || i >= len(v.items) {
		return Value{}
	}
	return v.items[i]
}

// Keys returns the record keys in order.
func (v Value) Keys() []string {
	if v.kind != KindRecord {
		return nil
	}
	cp := make([]string, len(v.keys))
	copy(cp, v.keys)
	return cp
}

// Fields returns the record fields in order.
func (v Value) Fields() []Field {
	if v.kind != KindRecord {
		return nil
	}
	out := make([]Field, len(v.keys))
	for i, k := range v.keys {
		out[i] = Field{Key: k, Value: v.fields[k]}
	}
	return out
}

// Get returns the field stored under key, or absent.
func (v Value) Get(key string) Value {
	if v.kind != KindRecord {
		return Value{}
	}
	return v.fields[key]
}

// Has reports whether a record holds key.
func (v Value) Has(key string) bool {
	if v.kind != KindRecord {
		return false
	}
	_, ok := v.fields[key]
	return ok
}

// Lookup walks nested records by key.
func (v Value) Lookup(path ...string) Value {
	cur := v
	for _, key := range path {
		cur = cur.Get(key)
		if cur.IsAbsent() {
			return Value{}
		}
	}
	return cur
}

// With returns a copy of the record with key set to val. An existing key
// keeps its position; a new key is appended. Setting an absent value removes
// the key. Called on a non-record, With starts from an empty record.
func (v Value) With(key string, val Value) Value {
	if val.IsAbsent() {
		return v.Without(key)
	}
	out := Value{kind: KindRecord}
	if v.kind == KindRecord {
		out.keys = make([]string, len(v.keys), len(v.keys)+1)
		copy(out.keys, v.keys)
		out.fields = make(map[string]Value, len(v.fields)+1)
		for k, fv := range v.fields {
			out.fields[k] = fv
		}
	} else {
		out.fields = make(map[string]Value, 1)
	}
	if _, exists := out.fields[key]; !exists {
		out.keys = append(out.keys, key)
	}
	out.fields[key] = val
	return out
}

// Without returns a copy of the record without key.
func (v Value) Without(key string) Value {
	if v.kind != KindRecord {
		return v
	}
	if _, ok := v.fields[key]; !ok {
		return v
	}
	out := Value{
		kind:   KindRecord,
		keys:   make([]string, 0, len(v.keys)-1),
		fields: make(map[string]Value, len(v.fields)-1),
	}
	for _, k := range v.keys {
		if k == key {
			continue
		}
		out.keys = append(out.keys, k)
		out.fields[k] = v.fields[k]
	}
	return out
}

// Equal reports whether a and b hold the same data. Record key order is
// ignored; numbers compare by numeric value.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindAbsent, KindNull:
		return true
	case KindScalar:
		return scalarEqual(a.scalar, b.scalar)
	case KindSequence:
		if len(a.items) != len(b.items) {
			return false
		}
		for i := range a.items {
			if !Equal(a.items[i], b.items[i]) {
				return false
			}
		}
		return true
	case KindRecord:
		if len(a.keys) != len(b.keys) {
			return false
		}
		for k, av := range a.fields {
			bv, ok := b.fields[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	}
	return false
}

func scalarEqual(a, b any) bool {
	af, aNum := numeric(a)
	bf, bNum := numeric(b)
	if aNum && bNum {
		if ai, ok := a.(int64); ok {
			if bi, ok := b.(int64); ok {
				return ai == bi
			}
		}
		return af == bf
	}
	return a == b
}

func numeric(x any) (float64, bool) {
	switch n := x.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// Text renders a scalar as the text an author would have written.
// Non-scalars render as their JSON encoding.
func (v Value) Text() string {
	switch s := v.Scalar().(type) {
	case string:
		return s
	case bool:
		return strconv.FormatBool(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case float64:
		return strconv.FormatFloat(s, 'g', -1, 64)
	}
	if v.kind == KindNull {
		return "null"
	}
	if v.kind == KindAbsent {
		return ""
	}
	return v.String()
}
