package core

import (
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// asMap returns v as a plain map when it is one of the map shapes callers
// hand us (bson.M or map[string]any).
func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case bson.M:
		return m, true
	case map[string]any:
		return m, true
	}
	return nil, false
}

// entries flattens a document value (bson.M, map[string]any or bson.D) into
// ordered key/value pairs. Maps come back sorted by key.
func entries(v any) ([]bson.E, bool) {
	if d, ok := v.(bson.D); ok {
		return d, true
	}
	m, ok := asMap(v)
	if !ok {
		return nil, false
	}
	keys := sortedKeys(m)
	out := make([]bson.E, len(keys))
	for i, k := range keys {
		out[i] = bson.E{Key: k, Value: m[k]}
	}
	return out, true
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// isOperator reports whether a document is an expression node rather than a
// nested field specification. bson.D is judged by its first key, maps by any
// key.
func isOperator(ents []bson.E, ordered bool) bool {
	if len(ents) == 0 {
		return false
	}
	if ordered {
		return strings.HasPrefix(ents[0].Key, "$")
	}
	for _, e := range ents {
		if strings.HasPrefix(e.Key, "$") {
			return true
		}
	}
	return false
}

// cloneValue deep copies documents and arrays so payloads never share
// mutable state with caller supplied specs.
func cloneValue(v any) any {
	switch t := v.(type) {
	case bson.M:
		return bson.M(cloneMap(t))
	case map[string]any:
		return cloneMap(t)
	case bson.D:
		d := make(bson.D, len(t))
		for i, e := range t {
			d[i] = bson.E{Key: e.Key, Value: cloneValue(e.Value)}
		}
		return d
	case bson.A:
		a := make(bson.A, len(t))
		for i, e := range t {
			a[i] = cloneValue(e)
		}
		return a
	case []any:
		a := make([]any, len(t))
		for i, e := range t {
			a[i] = cloneValue(e)
		}
		return a
	}
	return v
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

// deepMerge copies src into dst. Keys holding documents on both sides are
// merged recursively, anything else is overwritten by src.
func deepMerge(dst, src bson.M) {
	for k, v := range src {
		sv, srcIsMap := asMap(v)
		dv, dstIsMap := asMap(dst[k])
		if srcIsMap && dstIsMap {
			merged := bson.M(cloneMap(dv))
			deepMerge(merged, bson.M(sv))
			dst[k] = merged
			continue
		}
		dst[k] = cloneValue(v)
	}
}
