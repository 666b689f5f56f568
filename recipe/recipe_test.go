package recipe

import (
	"testing"

	"github.com/egorgvo/mongoagg/core"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

const ordersRecipe = `
collection: orders
allow_disk_use: true
collation: {locale: en, strength: 2}
stages:
  - match: {status: A, total__gte: 100}
  - lookup_unwind: {from: users, local_field: user, preserve: true}
  - smart_project: {include: "user.name,total", exclude: _id}
  - group: {by: user.name, sum: total, counter: orders}
  - sort: {total: -1, _id: 1}
  - skip: 5
  - limit: 10
`

func TestParseAndBuild(t *testing.T) {
	r, err := Parse([]byte(ordersRecipe))
	require.NoError(t, err)

	assert.Equal(t, "orders", r.Collection)
	assert.True(t, r.AllowDiskUse)
	require.NotNil(t, r.Collation)
	assert.Equal(t, "en", r.Collation.Locale)
	assert.Len(t, r.Steps, 7)

	b, err := r.Build()
	require.NoError(t, err)

	assert.Equal(t, "orders", b.Collection())
	assert.True(t, b.AllowDiskUse())
	assert.Equal(t, 2, b.CollationOptions().Strength)

	want := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"status": "A", "total": bson.M{"$gte": 100}}}},
		{{Key: "$lookup", Value: bson.M{
			"from":         "users",
			"localField":   "user",
			"foreignField": "_id",
			"as":           "user",
		}}},
		{{Key: "$unwind", Value: bson.M{"path": "$user", "preserveNullAndEmptyArrays": true}}},
		{{Key: "$project", Value: bson.M{
			"user.name": 1,
			"total":     1,
			"status":    1,
			"_id":       0,
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":    "$user.name",
			"total":  bson.M{"$sum": "$total"},
			"orders": bson.M{"$sum": 1},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "total", Value: -1}, {Key: "_id", Value: 1}}}},
		{{Key: "$skip", Value: int64(5)}},
		{{Key: "$limit", Value: int64(10)}},
	}
	if diff := cmp.Diff(want, b.Pipeline()); diff != "" {
		t.Errorf("pipeline mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"_id", "orders", "total"}, b.Fields())
}

func TestBuildOptionsOverride(t *testing.T) {
	r, err := Parse([]byte("collection: a\nstages:\n  - limit: 1\n"))
	require.NoError(t, err)

	b, err := r.Build(core.WithCollection("b"))
	require.NoError(t, err)
	assert.Equal(t, "b", b.Collection())
}

func TestSteps(t *testing.T) {
	tests := []struct {
		name   string
		stages string
		want   mongo.Pipeline
	}{
		{
			name:   "match list",
			stages: "- match: [{a: 1}, {b__in: [1, 2]}]",
			want: mongo.Pipeline{
				{{Key: "$match", Value: bson.M{"a": 1, "b": bson.M{"$in": []any{1, 2}}}}},
			},
		},
		{
			name:   "unwind scalar",
			stages: "- unwind: tags",
			want:   mongo.Pipeline{{{Key: "$unwind", Value: "$tags"}}},
		},
		{
			name:   "unwind mapping",
			stages: "- unwind: {field: tags, preserve: true}",
			want: mongo.Pipeline{
				{{Key: "$unwind", Value: bson.M{"path": "$tags", "preserveNullAndEmptyArrays": true}}},
			},
		},
		{
			name:   "lookup defaults",
			stages: "- lookup: {from: users}",
			want: mongo.Pipeline{
				{{Key: "$lookup", Value: bson.M{
					"from": "users", "localField": "_id", "foreignField": "_id", "as": "_id",
				}}},
			},
		},
		{
			name:   "sort list",
			stages: "- sort: [{a: 1}, {b: -1}]",
			want: mongo.Pipeline{
				{{Key: "$sort", Value: bson.D{{Key: "a", Value: 1}}}},
				{{Key: "$sort", Value: bson.D{{Key: "b", Value: -1}}}},
			},
		},
		{
			name:   "project",
			stages: "- project: {a: 1, b__c: $x}",
			want: mongo.Pipeline{
				{{Key: "$project", Value: bson.M{"a": 1, "b.c": "$x"}}},
			},
		},
		{
			name:   "smart project start empty",
			stages: "- project: {a: 1}\n- smart_project: {start_empty: true, include: [b, c], fields: {d: $a}}",
			want: mongo.Pipeline{
				{{Key: "$project", Value: bson.M{"a": 1}}},
				{{Key: "$project", Value: bson.M{"b": 1, "c": 1, "d": "$a"}}},
			},
		},
		{
			name:   "group expression",
			stages: "- group: {by: {y: {$year: $date}}, push: items, fields: {n: {$sum: 1}}}",
			want: mongo.Pipeline{
				{{Key: "$group", Value: bson.M{
					"_id":   bson.M{"y": map[string]any{"$year": "$date"}},
					"items": bson.M{"$push": "$items"},
					"n":     map[string]any{"$sum": 1},
				}}},
			},
		},
		{
			name:   "raw keeps key order",
			stages: "- raw: {$sort: {b: 1, a: 1}}",
			want: mongo.Pipeline{
				{{Key: "$sort", Value: bson.D{{Key: "b", Value: 1}, {Key: "a", Value: 1}}}},
			},
		},
		{
			name:   "skip zero",
			stages: "- skip: 0",
			want:   mongo.Pipeline{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Parse([]byte("stages:\n" + indent(tt.stages)))
			require.NoError(t, err)

			b, err := r.Build()
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, b.Pipeline()); diff != "" {
				t.Errorf("pipeline mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"bad yaml", "stages: [\n"},
		{"unknown step", "stages:\n  - explode: {}\n"},
		{"two step names", "stages:\n  - {match: {a: 1}, limit: 1}\n"},
		{"unknown argument", "stages:\n  - group: {by: a, sums: b}\n"},
		{"lookup without from", "stages:\n  - lookup: {local_field: a}\n"},
		{"bad limit", "stages:\n  - limit: many\n"},
		{"sort scalar", "stages:\n  - sort: a\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func indent(s string) string {
	out := "  "
	for _, c := range s {
		out += string(c)
		if c == '\n' {
			out += "  "
		}
	}
	return out + "\n"
}
