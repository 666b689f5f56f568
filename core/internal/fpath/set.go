package fpath

import "sort"

// Set is an unordered collection of paths.
type Set map[Path]struct{}

// NewSet returns a set holding paths.
func NewSet(paths ...Path) Set {
	s := make(Set, len(paths))
	for _, p := range paths {
		s.Add(p)
	}
	return s
}

func (s Set) Add(p Path) {
	if p != "" {
		s[p] = struct{}{}
	}
}

func (s Set) Remove(p Path) {
	delete(s, p)
}

func (s Set) Has(p Path) bool {
	_, ok := s[p]
	return ok
}

func (s Set) Len() int { return len(s) }

// Clone returns an independent copy of s.
func (s Set) Clone() Set {
	c := make(Set, len(s))
	for p := range s {
		c[p] = struct{}{}
	}
	return c
}

// Union returns a new set holding the members of s and o.
func (s Set) Union(o Set) Set {
	c := s.Clone()
	for p := range o {
		c[p] = struct{}{}
	}
	return c
}

// Sorted returns the members in lexical order.
func (s Set) Sorted() []Path {
	out := make([]Path, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Strings returns the members in lexical order as plain strings.
func (s Set) Strings() []string {
	sorted := s.Sorted()
	out := make([]string, len(sorted))
	for i, p := range sorted {
		out[i] = string(p)
	}
	return out
}

// Descendants returns the members lying strictly below p.
func (s Set) Descendants(p Path) Set {
	out := Set{}
	for m := range s {
		if m.IsChildOf(p) {
			out[m] = struct{}{}
		}
	}
	return out
}

// WithoutDescendantsOf returns a copy of s with every strict descendant of p
// removed.
func (s Set) WithoutDescendantsOf(p Path) Set {
	out := make(Set, len(s))
	for m := range s {
		if !m.IsChildOf(p) {
			out[m] = struct{}{}
		}
	}
	return out
}

// HasAncestorOf reports whether some member encloses p.
func (s Set) HasAncestorOf(p Path) bool {
	for _, a := range p.Ancestors(true) {
		if s.Has(a) {
			return true
		}
	}
	return false
}

// HasDescendantOf reports whether some member lies below p.
func (s Set) HasDescendantOf(p Path) bool {
	for m := range s {
		if m.IsChildOf(p) {
			return true
		}
	}
	return false
}

// Ancestors collects the enclosing paths of every member.
func (s Set) Ancestors(allLevels bool) Set {
	out := Set{}
	for m := range s {
		for _, a := range m.Ancestors(allLevels) {
			out[a] = struct{}{}
		}
	}
	return out
}

// TopLevel collects the first segment of every member.
func (s Set) TopLevel() Set {
	out := make(Set, len(s))
	for m := range s {
		out[m.Top()] = struct{}{}
	}
	return out
}

// MinimalCover returns the members that have no ancestor in s.
func (s Set) MinimalCover() Set {
	out := make(Set, len(s))
	for m := range s {
		if !s.HasAncestorOf(m) {
			out[m] = struct{}{}
		}
	}
	return out
}
