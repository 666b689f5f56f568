package core

import (
	"strings"

	"github.com/egorgvo/mongoagg/core/internal/fpath"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// GroupOpts controls Group. Every accumulator list maps field f to
// {"<op>": "$f"} under the key f.
type GroupOpts struct {
	// By lists the grouping fields. One field groups by its value, several
	// build an _id document keyed by each field's last segment.
	By Fields

	// ByExpr is used as the _id document verbatim and takes precedence
	// over By.
	ByExpr bson.M

	First    Fields
	Min      Fields
	Max      Fields
	Sum      Fields
	Avg      Fields
	Push     Fields
	AddToSet Fields

	// Counter fields become {"$sum": 1}.
	Counter Fields

	// DefaultOp, when set (e.g. "$first"), is applied to every top level
	// tracked field that the payload and grouping do not already cover.
	DefaultOp string

	// Exclude keeps fields out of the DefaultOp pass.
	Exclude Fields
}

// Group adds a $group. The tracked fields become the _id (or its keys for a
// multi-field grouping), every other payload key, and whatever was tracked
// below a $first, $push or $addToSet field.
func (b *Builder) Group(opts GroupOpts, specs ...bson.M) *Builder {
	payload := bson.M{}
	for _, s := range specs {
		for k, v := range normalizeSpec(s) {
			payload[k] = v
		}
	}

	accumulators := []struct {
		op     string
		fields Fields
	}{
		{"$first", opts.First},
		{"$min", opts.Min},
		{"$max", opts.Max},
		{"$sum", opts.Sum},
		{"$avg", opts.Avg},
		{"$push", opts.Push},
		{"$addToSet", opts.AddToSet},
	}
	for _, acc := range accumulators {
		for _, p := range acc.fields.paths() {
			payload[string(p)] = bson.M{acc.op: p.Ref()}
		}
	}
	for _, p := range opts.Counter.paths() {
		payload[string(p)] = bson.M{"$sum": 1}
	}

	id, idKeys, grouping := groupID(opts)
	payload[idField] = id

	if opts.DefaultOp != "" {
		b.applyDefaultOp(payload, opts, grouping)
	}

	next := fpath.Set{}
	if id != nil {
		if len(idKeys) == 0 {
			next.Add(idField)
		}
		for _, k := range idKeys {
			next.Add(fpath.Path(idField).Child(k))
		}
	}
	for k := range payload {
		if k == idField || strings.HasPrefix(k, "$") {
			continue
		}
		if p, ok := fpath.Parse(k); ok {
			next.Add(p)
		}
	}
	for _, fields := range []Fields{opts.First, opts.Push, opts.AddToSet} {
		for _, p := range fields.paths() {
			for d := range b.fields.Descendants(p) {
				next.Add(d)
			}
		}
	}

	return b.push(GroupStage(payload), next)
}

// groupID builds the _id of a $group. It returns the _id value, the _id
// document keys when there are any, and the paths the grouping reads.
func groupID(opts GroupOpts) (any, []string, fpath.Set) {
	grouping := fpath.Set{}

	if len(opts.ByExpr) != 0 {
		id := normalizeSpec(opts.ByExpr)
		keys := sortedKeys(id)
		for _, k := range keys {
			if p, ok := fpath.Parse(k); ok {
				grouping.Add(p)
			}
		}
		return id, keys, grouping
	}

	by := opts.By.paths()
	switch len(by) {
	case 0:
		return nil, nil, grouping
	case 1:
		grouping.Add(by[0])
		return by[0].Ref(), nil, grouping
	}

	id := bson.M{}
	keys := make([]string, 0, len(by))
	for _, p := range by {
		key := p.Leaf()
		if _, taken := id[key]; taken {
			key = strings.ReplaceAll(string(p), fpath.Sep, "_")
		}
		id[key] = p.Ref()
		keys = append(keys, key)
		grouping.Add(p)
		grouping.Add(fpath.Path(key))
	}
	return id, keys, grouping
}

// applyDefaultOp fills payload with DefaultOp for each top level tracked
// field not already covered by a payload key, the grouping or Exclude.
func (b *Builder) applyDefaultOp(payload bson.M, opts GroupOpts, grouping fpath.Set) {
	taken := make([]fpath.Path, 0, len(payload))
	for k := range payload {
		if p, ok := fpath.Parse(k); ok {
			taken = append(taken, p)
		}
	}
	exclude := opts.Exclude.paths()

	for _, c := range b.fields.TopLevel().Sorted() {
		if c == idField || grouping.Has(c) || containsPath(exclude, c) || overlapsAny(c, taken) {
			continue
		}
		payload[string(c)] = bson.M{opts.DefaultOp: c.Ref()}
	}
}
