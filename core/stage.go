package core

import (
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Kind is an aggregation stage operator such as "$match".
type Kind string

const (
	KindMatch   Kind = "$match"
	KindLookup  Kind = "$lookup"
	KindUnwind  Kind = "$unwind"
	KindSort    Kind = "$sort"
	KindSkip    Kind = "$skip"
	KindLimit   Kind = "$limit"
	KindProject Kind = "$project"
	KindGroup   Kind = "$group"
)

// Stage is one step of a pipeline: a single operator and its payload.
type Stage struct {
	Kind Kind
	Body any
}

// Doc returns the stage as a one key document.
func (s Stage) Doc() bson.D {
	return bson.D{{Key: string(s.Kind), Value: s.Body}}
}

// Raw wraps an arbitrary operator and payload. The payload is used as is.
func Raw(kind string, body any) Stage {
	return Stage{Kind: Kind(kind), Body: body}
}

// MatchStage returns {$match: filter}.
func MatchStage(filter bson.M) Stage {
	return Stage{Kind: KindMatch, Body: filter}
}

// LookupStage returns a $lookup joining localField to foreignField of from.
func LookupStage(from, localField, as, foreignField string) Stage {
	return Stage{Kind: KindLookup, Body: bson.M{
		"from":         from,
		"localField":   localField,
		"foreignField": foreignField,
		"as":           as,
	}}
}

// UnwindStage builds an $unwind on field. With preserve set, documents whose
// array is missing or empty are kept.
func UnwindStage(field string, preserve bool) Stage {
	path := "$" + field
	if !preserve {
		return Stage{Kind: KindUnwind, Body: path}
	}
	return Stage{Kind: KindUnwind, Body: bson.M{
		"path":                       path,
		"preserveNullAndEmptyArrays": true,
	}}
}

// SortStage returns {$sort: spec}. Key order is kept.
func SortStage(spec bson.D) Stage {
	return Stage{Kind: KindSort, Body: spec}
}

// SkipStage returns {$skip: n}.
func SkipStage(n int64) Stage {
	return Stage{Kind: KindSkip, Body: n}
}

// LimitStage returns {$limit: n}.
func LimitStage(n int64) Stage {
	return Stage{Kind: KindLimit, Body: n}
}

// ProjectStage returns {$project: spec}.
func ProjectStage(spec bson.M) Stage {
	return Stage{Kind: KindProject, Body: spec}
}

// GroupStage returns {$group: spec}. spec must hold _id.
func GroupStage(spec bson.M) Stage {
	return Stage{Kind: KindGroup, Body: spec}
}

// HideFields moves hide into a sub-document of concealer (default "_id") and
// keeps visible at the top level. The concealer's own value is kept under
// the same name inside the sub-document. UnhideFields reverses it.
func HideFields(hide, visible Fields, concealer string) Stage {
	if concealer == "" {
		concealer = idField
	}
	hidden := bson.M{}
	for _, p := range hide.paths() {
		hidden[string(p)] = p.Ref()
	}
	hidden[concealer] = "$" + concealer

	spec := bson.M{concealer: hidden}
	for _, p := range visible.paths() {
		spec[string(p)] = 1
	}
	return ProjectStage(spec)
}

// UnhideFields restores fields stashed by HideFields. When the concealer is
// "_id" and was not itself restored it is dropped from the output.
func UnhideFields(hidden, visible Fields, concealer string) Stage {
	if concealer == "" {
		concealer = idField
	}
	spec := bson.M{}
	restored := hidden.paths()
	for _, p := range restored {
		spec[string(p)] = "$" + concealer + "." + string(p)
	}
	for _, p := range visible.paths() {
		spec[string(p)] = 1
	}
	if concealer == idField && !containsPath(restored, idField) {
		spec[idField] = 0
	}
	return ProjectStage(spec)
}
