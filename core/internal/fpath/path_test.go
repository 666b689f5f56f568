package fpath

import (
	"reflect"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in     string
		want   Path
		wantOK bool
	}{
		{in: "a", want: "a", wantOK: true},
		{in: "a.b.c", want: "a.b.c", wantOK: true},
		{in: "$a.b", want: "a.b", wantOK: true},
		{in: " a ", want: "a", wantOK: true},
		{in: "", wantOK: false},
		{in: "$", wantOK: false},
		{in: "a..b", wantOK: false},
		{in: ".a", wantOK: false},
		{in: "a.", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := Parse(tt.in)
			if ok != tt.wantOK {
				t.Fatalf("Parse(%q) ok = %v, want %v", tt.in, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseAll(t *testing.T) {
	got := ParseAll([]string{"b", "a", "", "b", "$c.d"})
	want := []Path{"b", "a", "c.d"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseAll() = %v, want %v", got, want)
	}
}

func TestPathAlgebra(t *testing.T) {
	p := Path("menu.elements.option")

	if got := p.Leaf(); got != "option" {
		t.Errorf("Leaf() = %q", got)
	}
	if got := p.Top(); got != "menu" {
		t.Errorf("Top() = %q", got)
	}
	if got := p.Depth(); got != 3 {
		t.Errorf("Depth() = %d", got)
	}
	if got := p.Ref(); got != "$menu.elements.option" {
		t.Errorf("Ref() = %q", got)
	}

	parent, ok := p.Parent()
	if !ok || parent != "menu.elements" {
		t.Errorf("Parent() = %q, %v", parent, ok)
	}
	if _, ok := Path("menu").Parent(); ok {
		t.Errorf("top level path must not have a parent")
	}

	if got := p.Ancestors(true); !reflect.DeepEqual(got, []Path{"menu.elements", "menu"}) {
		t.Errorf("Ancestors(true) = %v", got)
	}
	if got := p.Ancestors(false); !reflect.DeepEqual(got, []Path{"menu.elements"}) {
		t.Errorf("Ancestors(false) = %v", got)
	}
	if got := Path("menu").Ancestors(true); len(got) != 0 {
		t.Errorf("Ancestors of top level = %v", got)
	}
}

func TestIsChildOf(t *testing.T) {
	tests := []struct {
		a, b Path
		want bool
	}{
		{"a.b", "a", true},
		{"a.b.c", "a", true},
		{"a", "a", false},
		{"ab", "a", false},
		{"a", "a.b", false},
	}
	for _, tt := range tests {
		if got := tt.a.IsChildOf(tt.b); got != tt.want {
			t.Errorf("%q.IsChildOf(%q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}

	if !Path("a").Overlaps("a.b") || !Path("a.b").Overlaps("a") || !Path("a").Overlaps("a") {
		t.Errorf("Overlaps must hold for equal and nested paths")
	}
	if Path("a").Overlaps("ab") {
		t.Errorf("Overlaps must not match on a shared string prefix")
	}
}

func TestSetOperations(t *testing.T) {
	s := NewSet("menu.elements.option", "menu.elements.count", "count", "menu.title")

	if got := s.WithoutDescendantsOf("menu.elements").Strings(); !reflect.DeepEqual(got, []string{"count", "menu.title"}) {
		t.Errorf("WithoutDescendantsOf() = %v", got)
	}
	if got := s.Descendants("menu").Len(); got != 3 {
		t.Errorf("Descendants() len = %d", got)
	}
	if got := s.Ancestors(true).Strings(); !reflect.DeepEqual(got, []string{"menu", "menu.elements"}) {
		t.Errorf("Ancestors(true) = %v", got)
	}
	if got := s.TopLevel().Strings(); !reflect.DeepEqual(got, []string{"count", "menu"}) {
		t.Errorf("TopLevel() = %v", got)
	}
	if !s.HasDescendantOf("menu") || s.HasDescendantOf("count") {
		t.Errorf("HasDescendantOf() mismatch")
	}
	if !NewSet("menu").HasAncestorOf("menu.title") {
		t.Errorf("HasAncestorOf() mismatch")
	}

	c := s.Clone()
	c.Remove("count")
	if !s.Has("count") {
		t.Errorf("Clone() must not share storage")
	}
}

func TestMinimalCover(t *testing.T) {
	tests := []struct {
		name string
		in   Set
		want []string
	}{
		{name: "empty", in: Set{}, want: []string{}},
		{name: "no nesting", in: NewSet("a", "b"), want: []string{"a", "b"}},
		{name: "parent wins", in: NewSet("a", "a.b", "a.b.c", "c"), want: []string{"a", "c"}},
		{name: "siblings kept", in: NewSet("a.b", "a.c"), want: []string{"a.b", "a.c"}},
		{name: "string prefix is not nesting", in: NewSet("a", "ab"), want: []string{"a", "ab"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.MinimalCover().Strings()
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("MinimalCover() = %v, want %v", got, tt.want)
			}
		})
	}
}
