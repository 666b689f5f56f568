// Package fpath implements dotted document field paths and sets of them.
package fpath

import "strings"

// Sep separates path segments.
const Sep = "."

// RefPrefix marks a field reference inside an expression ("$a.b").
const RefPrefix = "$"

// Path is a canonical dotted field path such as "menu.elements.option".
type Path string

// Parse returns the canonical path for s. A leading "$" is dropped.
// It reports false when s is empty or has an empty segment.
func Parse(s string) (Path, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), RefPrefix)
	if s == "" {
		return "", false
	}
	for _, seg := range strings.Split(s, Sep) {
		if seg == "" {
			return "", false
		}
	}
	return Path(s), true
}

// ParseAll parses each name and drops the invalid ones, keeping order and
// removing duplicates.
func ParseAll(names []string) []Path {
	seen := make(map[Path]struct{}, len(names))
	out := make([]Path, 0, len(names))
	for _, n := range names {
		p, ok := Parse(n)
		if !ok {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

func (p Path) String() string { return string(p) }

// Ref returns the field reference form of p ("$" + p).
func (p Path) Ref() string { return RefPrefix + string(p) }

// Segments splits p at its dots.
func (p Path) Segments() []string {
	if p == "" {
		return nil
	}
	return strings.Split(string(p), Sep)
}

// Depth is the number of segments, 0 for the empty path.
func (p Path) Depth() int {
	if p == "" {
		return 0
	}
	return strings.Count(string(p), Sep) + 1
}

// Leaf returns the last segment.
func (p Path) Leaf() string {
	if i := strings.LastIndex(string(p), Sep); i != -1 {
		return string(p[i+1:])
	}
	return string(p)
}

// Top returns the first segment.
func (p Path) Top() Path {
	if i := strings.Index(string(p), Sep); i != -1 {
		return p[:i]
	}
	return p
}

// Parent returns the enclosing path. Top level paths have no parent.
func (p Path) Parent() (Path, bool) {
	i := strings.LastIndex(string(p), Sep)
	if i == -1 {
		return "", false
	}
	return p[:i], true
}

// Child appends name to p.
func (p Path) Child(name string) Path {
	if p == "" {
		return Path(name)
	}
	return p + Sep + Path(name)
}

// IsChildOf reports whether p lies strictly below b, at any depth.
func (p Path) IsChildOf(b Path) bool {
	return len(p) > len(b) && strings.HasPrefix(string(p), string(b)+Sep)
}

// Overlaps reports whether p and b are equal or one contains the other.
func (p Path) Overlaps(b Path) bool {
	return p == b || p.IsChildOf(b) || b.IsChildOf(p)
}

// Ancestors returns the enclosing paths of p, nearest first. With allLevels
// false only the immediate parent is returned.
func (p Path) Ancestors(allLevels bool) []Path {
	var out []Path
	cur := p
	for {
		parent, ok := cur.Parent()
		if !ok {
			return out
		}
		out = append(out, parent)
		if !allLevels {
			return out
		}
		cur = parent
	}
}
