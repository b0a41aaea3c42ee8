package main

import (
	"encoding/base64"
	"fmt"

	"github.com/cuemby/silo/pkg/value"
)

// jsonToValue maps a decoded JSON tree onto value.Value. JSON has no set
// type and no byte-string type, so this direction only ever produces
// KNull/KBool/KInt-or-KFloat/KString/KSeq/KMap. The insert-file and
// insert-url commands store KBytes values; no CLI command builds a KSet.
func jsonToValue(v any) value.Value {
	switch t := v.(type) {
	case nil:
		return value.Null()
	case bool:
		return value.NewBool(t)
	case float64:
		if t == float64(int64(t)) {
			return value.NewInt(int64(t))
		}
		return value.NewFloat(t)
	case string:
		return value.NewString(t)
	case []any:
		items := make([]value.Value, len(t))
		for i, e := range t {
			items[i] = jsonToValue(e)
		}
		return value.NewSeq(items...)
	case map[string]any:
		pairs := make([]value.Pair, 0, len(t))
		for k, e := range t {
			pairs = append(pairs, value.Pair{Key: value.NewString(k), Val: jsonToValue(e)})
		}
		return value.NewMap(pairs...)
	default:
		return value.Null()
	}
}

// valueToJSON is jsonToValue's inverse for the purpose of printing a
// retrieved Value as a structured JSON line (spec.md's Non-goals exclude
// a pretty-printer; this is the machine-readable replacement, see
// SPEC_FULL.md §12). KBytes is base64-encoded since JSON has no binary
// type; KSet prints as a JSON array in its canonical sorted order.
func valueToJSON(v value.Value) any {
	switch v.Kind() {
	case value.KNull:
		return nil
	case value.KBool:
		return v.Bool()
	case value.KInt:
		return v.Int()
	case value.KFloat:
		return v.Float()
	case value.KString:
		return v.String()
	case value.KBytes:
		return base64.StdEncoding.EncodeToString(v.Bytes())
	case value.KSeq:
		items := v.Seq()
		out := make([]any, len(items))
		for i, e := range items {
			out[i] = valueToJSON(e)
		}
		return out
	case value.KSet:
		items := v.Set()
		out := make([]any, len(items))
		for i, e := range items {
			out[i] = valueToJSON(e)
		}
		return out
	case value.KMap:
		pairs := v.Map()
		out := make(map[string]any, len(pairs))
		for _, p := range pairs {
			out[fmt.Sprint(valueToJSON(p.Key))] = valueToJSON(p.Val)
		}
		return out
	default:
		return nil
	}
}
