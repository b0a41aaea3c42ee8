// Package value defines the dynamic value union that silo stores.
//
// A Value is one of: null, bool, int, float, string, bytes, an ordered
// sequence of Values, a set of distinct Values, or a map from Value keys
// to Value values, closed under nesting. The union is built only through
// the constructors below, so a Value is acyclic by construction — the
// codec never has to guard against encoding a caller-supplied cycle.
package value

import (
	"bytes"
	"fmt"
	"sort"
)

// Kind discriminates the shape held by a Value.
type Kind int

const (
	KNull Kind = iota
	KBool
	KInt
	KFloat
	KString
	KBytes
	KSeq
	KSet
	KMap
)

func (k Kind) String() string {
	switch k {
	case KNull:
		return "null"
	case KBool:
		return "bool"
	case KInt:
		return "int"
	case KFloat:
		return "float"
	case KString:
		return "string"
	case KBytes:
		return "bytes"
	case KSeq:
		return "seq"
	case KSet:
		return "set"
	case KMap:
		return "map"
	default:
		return "unknown"
	}
}

// Pair is one entry of a Map, kept as a slice rather than a Go map so
// that Map can hold a canonical (sorted) order deterministically.
type Pair struct {
	Key Value
	Val Value
}

// Value is a tagged union over silo's documented value universe.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	by   []byte
	seq  []Value
	set  []Value
	m    []Pair
}

// Kind reports which shape v holds.
func (v Value) Kind() Kind { return v.kind }

func Null() Value                 { return Value{kind: KNull} }
func NewBool(b bool) Value        { return Value{kind: KBool, b: b} }
func NewInt(i int64) Value        { return Value{kind: KInt, i: i} }
func NewFloat(f float64) Value    { return Value{kind: KFloat, f: f} }
func NewString(s string) Value    { return Value{kind: KString, s: s} }
func NewBytes(b []byte) Value     { return Value{kind: KBytes, by: append([]byte(nil), b...)} }

// NewSeq builds an ordered sequence, preserving caller order.
func NewSeq(items ...Value) Value {
	return Value{kind: KSeq, seq: append([]Value(nil), items...)}
}

// NewSet builds a set, deduplicating and canonically ordering its
// members so that encoding is deterministic regardless of the order the
// caller supplied them in.
func NewSet(items ...Value) Value {
	items = append([]Value(nil), items...)
	sort.Slice(items, func(i, j int) bool { return Less(items[i], items[j]) })
	deduped := items[:0]
	for i, it := range items {
		if i == 0 || !Equal(deduped[len(deduped)-1], it) {
			deduped = append(deduped, it)
		}
	}
	return Value{kind: KSet, set: deduped}
}

// NewMap builds a map, canonically ordered by key so that encoding is
// deterministic regardless of insertion order. Duplicate keys: the last
// writer wins, matching Go's own map literal semantics.
func NewMap(pairs ...Pair) Value {
	byKey := make(map[string]Pair, len(pairs))
	order := make([]string, 0, len(pairs))
	for _, p := range pairs {
		k := sortKey(p.Key)
		if _, ok := byKey[k]; !ok {
			order = append(order, k)
		}
		byKey[k] = p
	}
	sort.Strings(order)
	out := make([]Pair, 0, len(order))
	for _, k := range order {
		out = append(out, byKey[k])
	}
	return Value{kind: KMap, m: out}
}

// Accessors. Each panics if called against the wrong Kind — callers are
// expected to switch on Kind() first, the same discipline a decoder uses.

func (v Value) Bool() bool      { v.mustBe(KBool); return v.b }
func (v Value) Int() int64      { v.mustBe(KInt); return v.i }
func (v Value) Float() float64  { v.mustBe(KFloat); return v.f }
func (v Value) String() string  { v.mustBe(KString); return v.s }
func (v Value) Bytes() []byte   { v.mustBe(KBytes); return v.by }
func (v Value) Seq() []Value    { v.mustBe(KSeq); return v.seq }
func (v Value) Set() []Value    { v.mustBe(KSet); return v.set }
func (v Value) Map() []Pair     { v.mustBe(KMap); return v.m }

func (v Value) mustBe(k Kind) {
	if v.kind != k {
		panic(fmt.Sprintf("value: called %s accessor on a %s", k, v.kind))
	}
}

// sortKey produces a total-order byte key for a Value, used to sort Set
// members and Map keys deterministically. It is not part of the wire
// format; only Less/Equal rely on it.
func sortKey(v Value) string {
	var buf bytes.Buffer
	writeSortKey(&buf, v)
	return buf.String()
}

func writeSortKey(buf *bytes.Buffer, v Value) {
	fmt.Fprintf(buf, "%02d:", v.kind)
	switch v.kind {
	case KNull:
	case KBool:
		if v.b {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	case KInt:
		fmt.Fprintf(buf, "%020d", v.i)
	case KFloat:
		fmt.Fprintf(buf, "%g", v.f)
	case KString:
		buf.WriteString(v.s)
	case KBytes:
		buf.Write(v.by)
	case KSeq:
		for _, e := range v.seq {
			writeSortKey(buf, e)
			buf.WriteByte(0)
		}
	case KSet:
		for _, e := range v.set {
			writeSortKey(buf, e)
			buf.WriteByte(0)
		}
	case KMap:
		for _, p := range v.m {
			writeSortKey(buf, p.Key)
			buf.WriteByte(0)
			writeSortKey(buf, p.Val)
			buf.WriteByte(0)
		}
	}
}

// Less defines the total order used to canonicalize Set and Map.
func Less(a, b Value) bool { return sortKey(a) < sortKey(b) }

// Equal reports whether a and b represent the same value.
func Equal(a, b Value) bool { return sortKey(a) == sortKey(b) }
