package core

import (
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
)

const nameSep = "__"

// suffixes turned into comparison operators inside filters.
var filterOps = map[string]struct{}{
	"eq": {}, "ne": {}, "gt": {}, "gte": {},
	"lt": {}, "lte": {}, "in": {}, "nin": {},
}

// dotted rewrites "a__b__c" to "a.b.c". Names that start or end with "__"
// are left alone.
func dotted(name string) string {
	if !strings.Contains(name, nameSep) ||
		strings.HasPrefix(name, nameSep) ||
		strings.HasSuffix(name, nameSep) {
		return name
	}
	return strings.ReplaceAll(name, nameSep, ".")
}

// normalizeSpec returns a deep copy of spec with dotted top level keys.
// Keys are visited in sorted order so collisions resolve the same way on
// every run.
func normalizeSpec(spec map[string]any) bson.M {
	out := make(bson.M, len(spec))
	for _, k := range sortedKeys(spec) {
		out[dotted(k)] = cloneValue(spec[k])
	}
	return out
}

// normalizeSort does the same for an ordered sort specification.
func normalizeSort(spec bson.D) bson.D {
	out := make(bson.D, 0, len(spec))
	for _, e := range spec {
		out = append(out, bson.E{Key: dotted(e.Key), Value: e.Value})
	}
	return out
}

// normalizeFilter dots the keys of a filter and turns trailing comparison
// suffixes into operator documents: "age__gt" and "age.gt" both become
// {"age": {"$gt": v}}. Several suffixes on one field share a document.
func normalizeFilter(filter map[string]any) bson.M {
	out := make(bson.M, len(filter))
	for _, k := range sortedKeys(filter) {
		v := cloneValue(filter[k])
		name := dotted(k)

		field, op, ok := splitFilterOp(name)
		if !ok {
			if prev, isMap := asMap(out[name]); isMap {
				if next, nextIsMap := asMap(v); nextIsMap {
					merged := bson.M(cloneMap(prev))
					deepMerge(merged, bson.M(next))
					out[name] = merged
					continue
				}
			}
			out[name] = v
			continue
		}

		var ops bson.M
		switch prev := out[field].(type) {
		case nil:
			ops = bson.M{}
		case bson.M:
			ops = prev
		case map[string]any:
			ops = bson.M(prev)
		default:
			ops = bson.M{"$eq": prev}
		}
		ops["$"+op] = v
		out[field] = ops
	}
	return out
}

func splitFilterOp(name string) (field, op string, ok bool) {
	if strings.HasPrefix(name, "$") {
		return "", "", false
	}
	i := strings.LastIndex(name, ".")
	if i <= 0 {
		return "", "", false
	}
	if _, known := filterOps[name[i+1:]]; !known {
		return "", "", false
	}
	return name[:i], name[i+1:], true
}
