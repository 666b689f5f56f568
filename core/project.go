package core

import (
	"strings"

	"github.com/egorgvo/mongoagg/core/internal/fpath"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// ProjectOpts controls SmartProject.
type ProjectOpts struct {
	// Include adds fields to the projection. Tracked ancestors of an
	// included field are dropped so only the named sub-field is kept.
	Include Fields

	// Exclude drops fields. An exact match is removed, otherwise every
	// tracked descendant, otherwise the nearest tracked ancestor.
	// Excluding "_id" projects it out explicitly.
	Exclude Fields

	// StartEmpty ignores the tracked fields and projects only Include and
	// the explicit specs.
	StartEmpty bool
}

// SmartProject adds a $project that keeps every tracked field unless told
// otherwise. Explicit specs win over tracked fields. Tracked fields that do
// not overlap any path the specs define are added with 1. The tracked
// fields become the paths the resulting payload defines.
//
// A projection with nothing left to keep adds no stage, since the server
// rejects an empty $project, but the tracked fields are still cleared.
func (b *Builder) SmartProject(opts ProjectOpts, specs ...bson.M) *Builder {
	exclude := opts.Exclude.paths()
	excludeID := containsPath(exclude, idField)

	work := fpath.Set{}
	if !opts.StartEmpty {
		work = excludeFields(b.fields, exclude)
	}
	work = includeFields(work, opts.Include.paths())

	payload := bson.M{}
	for _, s := range specs {
		for k, v := range normalizeSpec(s) {
			payload[k] = v
		}
	}

	covered := hierarchyFields(payload).Sorted()
	auto := fpath.Set{}
	for p := range work {
		if !overlapsAny(p, covered) {
			auto.Add(p)
		}
	}
	for _, p := range auto.MinimalCover().Sorted() {
		setDefault(payload, p, 1)
	}

	if excludeID {
		payload[idField] = 0
	}
	if len(payload) == 0 {
		b.fields = fpath.Set{}
		return b
	}

	next := hierarchyFields(payload)
	if excludeID {
		next.Remove(idField)
	}
	return b.push(ProjectStage(payload), next)
}

func excludeFields(live fpath.Set, exclude []fpath.Path) fpath.Set {
	out := live.Clone()
	for _, e := range exclude {
		if out.Has(e) {
			out.Remove(e)
			continue
		}
		if out.HasDescendantOf(e) {
			out = out.WithoutDescendantsOf(e)
			continue
		}
		for _, a := range e.Ancestors(true) {
			if out.Has(a) {
				out.Remove(a)
				break
			}
		}
	}
	return out
}

func includeFields(work fpath.Set, include []fpath.Path) fpath.Set {
	out := work.Clone()
	for a := range fpath.NewSet(include...).Ancestors(true) {
		out.Remove(a)
	}
	for _, p := range include {
		out.Add(p)
	}
	return out
}

func overlapsAny(p fpath.Path, paths []fpath.Path) bool {
	for _, q := range paths {
		if p.Overlaps(q) {
			return true
		}
	}
	return false
}

// setDefault stores v under p unless something is already there. When a
// leading part of p names a nested field document in doc, v is placed inside
// it instead of beside it. A leading part holding a value or an operator
// expression, $literal included, defines that whole subtree, so nothing is
// added under it.
func setDefault(doc bson.M, p fpath.Path, v any) {
	segs := p.Segments()
	cur := map[string]any(doc)
	i := 0
	for ; i < len(segs)-1; i++ {
		val, exists := cur[segs[i]]
		if !exists {
			break
		}
		sub, ok := asMap(val)
		if !ok {
			return
		}
		ents, _ := entries(sub)
		if len(ents) == 0 || isOperator(ents, false) {
			return
		}
		cur = sub
	}
	key := strings.Join(segs[i:], fpath.Sep)
	if _, exists := cur[key]; !exists {
		cur[key] = v
	}
}
