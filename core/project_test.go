package core

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestSmartProject(t *testing.T) {
	tests := []struct {
		name        string
		tracked     bson.M
		opts        ProjectOpts
		specs       []bson.M
		wantPayload bson.M
		wantFields  []string
	}{
		{
			name:        "keeps tracked fields",
			tracked:     bson.M{"a": 1, "b": 1, "c.d": 1},
			specs:       []bson.M{{"e": "$a"}},
			wantPayload: bson.M{"a": 1, "b": 1, "c.d": 1, "e": "$a"},
			wantFields:  []string{"a", "b", "c.d", "e"},
		},
		{
			name:        "exact exclude and _id",
			tracked:     bson.M{"_id": 1, "a": 1, "b": 1},
			opts:        ProjectOpts{Exclude: Fields{"b,_id"}},
			wantPayload: bson.M{"a": 1, "_id": 0},
			wantFields:  []string{"a"},
		},
		{
			name:        "exclude drops descendants",
			tracked:     bson.M{"m.a": 1, "m.b": 1, "x": 1},
			opts:        ProjectOpts{Exclude: Fields{"m"}},
			wantPayload: bson.M{"x": 1},
			wantFields:  []string{"x"},
		},
		{
			name:        "exclude unknown field is ignored",
			tracked:     bson.M{"x": 1},
			opts:        ProjectOpts{Exclude: Fields{"nope.deep"}},
			wantPayload: bson.M{"x": 1},
			wantFields:  []string{"x"},
		},
		{
			name:        "include narrows a tracked ancestor",
			tracked:     bson.M{"menu": 1, "x": 1},
			opts:        ProjectOpts{Include: Fields{"menu__title"}},
			wantPayload: bson.M{"menu.title": 1, "x": 1},
			wantFields:  []string{"menu.title", "x"},
		},
		{
			name:        "explicit spec covers descendants",
			tracked:     bson.M{"a.b": 1, "a.c": 1, "z": 1},
			specs:       []bson.M{{"a": "$other"}},
			wantPayload: bson.M{"a": "$other", "z": 1},
			wantFields:  []string{"a", "z"},
		},
		{
			name:        "tracked sibling joins a nested spec",
			tracked:     bson.M{"a.c": 1, "d": 1},
			specs:       []bson.M{{"a": bson.M{"b": "$x"}}},
			wantPayload: bson.M{"a": bson.M{"b": "$x", "c": 1}, "d": 1},
			wantFields:  []string{"a.b", "a.c", "d"},
		},
		{
			name:        "explicit operator keeps its key",
			tracked:     bson.M{"total": 1, "n": 1},
			specs:       []bson.M{{"total": bson.M{"$sum": "$items.price"}}},
			wantPayload: bson.M{"total": bson.M{"$sum": "$items.price"}, "n": 1},
			wantFields:  []string{"n", "total"},
		},
		{
			name:        "literal document owns its subtree",
			tracked:     bson.M{"a.x": 1, "d": 1},
			specs:       []bson.M{{"a": bson.M{"$literal": bson.M{"b": 1}}}},
			wantPayload: bson.M{"a": bson.M{"$literal": bson.M{"b": 1}}, "d": 1},
			wantFields:  []string{"a.b", "d"},
		},
		{
			name:        "expression owns its subtree",
			tracked:     bson.M{"a.x": 1},
			specs:       []bson.M{{"a": bson.M{"$mergeObjects": bson.A{"$p", "$q"}}}},
			wantPayload: bson.M{"a": bson.M{"$mergeObjects": bson.A{"$p", "$q"}}},
			wantFields:  []string{"a"},
		},
		{
			name:        "start empty ignores tracked fields and excludes",
			tracked:     bson.M{"a": 1},
			opts:        ProjectOpts{StartEmpty: true, Include: Fields{"b"}, Exclude: Fields{"a"}},
			wantPayload: bson.M{"b": 1},
			wantFields:  []string{"b"},
		},
		{
			name:        "parent and child collapse",
			tracked:     bson.M{"a": 1, "a.b": 1},
			wantPayload: bson.M{"a": 1},
			wantFields:  []string{"a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New().Project(tt.tracked).SmartProject(tt.opts, tt.specs...)

			require.Equal(t, 2, b.Len())
			last, err := b.LastStage()
			require.NoError(t, err)
			assert.Equal(t, "$project", last.Name())
			if diff := cmp.Diff(tt.wantPayload, last.Statement()); diff != "" {
				t.Errorf("payload mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, tt.wantFields, b.Fields())
			assertMinimalCover(t, b.Fields())
		})
	}
}

func TestSmartProjectExcludeCollapsesAncestor(t *testing.T) {
	b := New().
		Project(bson.M{"menu.elements": 1}).
		SmartProject(ProjectOpts{Exclude: Fields{"menu.elements.option"}})

	assert.Empty(t, b.Fields())
	assert.Equal(t, 1, b.Len(), "an empty projection adds no stage")
}

func TestSmartProjectLeavesSpecsUntouched(t *testing.T) {
	spec := bson.M{"a": bson.M{"b": "$x"}}
	New().Project(bson.M{"a.c": 1}).SmartProject(ProjectOpts{}, spec)

	assert.Equal(t, bson.M{"a": bson.M{"b": "$x"}}, spec)
}

func assertMinimalCover(t *testing.T, fields []string) {
	t.Helper()
	for _, f := range fields {
		for _, g := range fields {
			if len(g) > len(f) && g[:len(f)+1] == f+"." {
				t.Errorf("both %q and its descendant %q are tracked", f, g)
			}
		}
	}
}
