package core

import (
	"github.com/egorgvo/mongoagg/core/internal/fpath"
	"go.mongodb.org/mongo-driver/v2/bson"
)

type hnode struct {
	val    any
	prefix fpath.Path
}

// hierarchyFields lists the output paths a $project or $group payload
// defines. Nested field documents are walked. Operator documents and plain
// values are leaves, except {"$literal": {...}} which is walked as the
// document it wraps. For arrays only the first document element is
// inspected. Keys that are not valid paths are skipped.
func hierarchyFields(payload any) fpath.Set {
	out := fpath.Set{}
	st := []hnode{{val: payload}}

	for len(st) != 0 {
		n := st[len(st)-1]
		st = st[:len(st)-1]

		_, ordered := n.val.(bson.D)
		ents, isDoc := entries(n.val)

		if !isDoc {
			if n.prefix != "" {
				out.Add(n.prefix)
			}
			continue
		}

		if n.prefix != "" {
			if len(ents) == 0 {
				out.Add(n.prefix)
				continue
			}
			if isOperator(ents, ordered) {
				if lit, ok := literalDoc(ents); ok {
					st = append(st, hnode{val: lit, prefix: n.prefix})
				} else {
					out.Add(n.prefix)
				}
				continue
			}
		}

		for _, e := range ents {
			if e.Key == "" || (n.prefix == "" && e.Key[0] == '$') {
				continue
			}
			child := n.prefix.Child(dotted(e.Key))
			if _, ok := fpath.Parse(string(child)); !ok {
				continue
			}
			if el, ok := firstDocElem(e.Value); ok {
				st = append(st, hnode{val: el, prefix: child})
				continue
			}
			st = append(st, hnode{val: e.Value, prefix: child})
		}
	}
	return out
}

// literalDoc returns the document wrapped by a lone "$literal" operator.
func literalDoc(ents []bson.E) (any, bool) {
	if len(ents) != 1 || ents[0].Key != "$literal" {
		return nil, false
	}
	v := ents[0].Value
	if inner, ok := entries(v); ok && len(inner) != 0 {
		return v, true
	}
	return nil, false
}

// firstDocElem returns the first document inside an array value. Arrays
// without one are reported as not found and treated as plain values.
func firstDocElem(v any) (any, bool) {
	var arr []any
	switch t := v.(type) {
	case bson.A:
		arr = t
	case []any:
		arr = t
	case []bson.M:
		if len(t) != 0 {
			return t[0], true
		}
		return nil, false
	case []bson.D:
		if len(t) != 0 {
			return t[0], true
		}
		return nil, false
	default:
		return nil, false
	}
	for _, el := range arr {
		if _, ok := entries(el); ok {
			return el, true
		}
	}
	return nil, false
}
