package core

import (
	"fmt"
	"strings"

	"github.com/egorgvo/mongoagg/core/internal/fpath"
	"go.mongodb.org/mongo-driver/v2/bson"
)

const idField = "_id"

// Fields is a list of field names. An entry may hold several names separated
// by commas and may use either "a.b" or "a__b" notation.
type Fields []string

// ParseFields accepts the loose shapes field lists arrive in from config
// files and callers: a comma separated string, a list of strings, or a
// document whose keys are field names.
func ParseFields(v any) Fields {
	switch t := v.(type) {
	case nil:
		return nil
	case Fields:
		return t
	case string:
		return Fields{t}
	case []string:
		return Fields(t)
	case []any:
		out := make(Fields, 0, len(t))
		for _, e := range t {
			out = append(out, fmt.Sprint(e))
		}
		return out
	case bson.A:
		return ParseFields([]any(t))
	case bson.D:
		out := make(Fields, 0, len(t))
		for _, e := range t {
			out = append(out, e.Key)
		}
		return out
	}
	if m, ok := asMap(v); ok {
		return Fields(sortedKeys(m))
	}
	return Fields{fmt.Sprint(v)}
}

// paths returns the canonical paths named by f, in order and without
// duplicates.
func (f Fields) paths() []fpath.Path {
	names := make([]string, 0, len(f))
	for _, entry := range f {
		for _, n := range strings.Split(entry, ",") {
			names = append(names, dotted(strings.TrimSpace(n)))
		}
	}
	return fpath.ParseAll(names)
}

func containsPath(paths []fpath.Path, p fpath.Path) bool {
	for _, x := range paths {
		if x == p {
			return true
		}
	}
	return false
}

func parsePath(name string) (fpath.Path, bool) {
	return fpath.Parse(dotted(name))
}

// withKnown returns live extended by names. A name is skipped when the set
// already tracks it, one of its ancestors, or one of its descendants.
func withKnown(live fpath.Set, names ...string) fpath.Set {
	next := live.Clone()
	for _, n := range names {
		if strings.HasPrefix(n, "$") {
			continue
		}
		p, ok := parsePath(n)
		if !ok || next.Has(p) || next.HasAncestorOf(p) || next.HasDescendantOf(p) {
			continue
		}
		next.Add(p)
	}
	return next
}
