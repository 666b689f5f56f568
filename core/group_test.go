package core

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestGroup(t *testing.T) {
	tests := []struct {
		name        string
		tracked     bson.M
		opts        GroupOpts
		specs       []bson.M
		wantPayload bson.M
		wantFields  []string
	}{
		{
			name:        "several grouping fields",
			opts:        GroupOpts{By: Fields{"a,b"}},
			wantPayload: bson.M{"_id": bson.M{"a": "$a", "b": "$b"}},
			wantFields:  []string{"_id.a", "_id.b"},
		},
		{
			name:        "single grouping field",
			opts:        GroupOpts{By: Fields{"a"}},
			wantPayload: bson.M{"_id": "$a"},
			wantFields:  []string{"_id"},
		},
		{
			name:        "no grouping",
			opts:        GroupOpts{Sum: Fields{"total"}},
			wantPayload: bson.M{"_id": nil, "total": bson.M{"$sum": "$total"}},
			wantFields:  []string{"total"},
		},
		{
			name: "leaf name collision",
			opts: GroupOpts{By: Fields{"user.name", "org__name"}},
			wantPayload: bson.M{"_id": bson.M{
				"name":     "$user.name",
				"org_name": "$org.name",
			}},
			wantFields: []string{"_id.name", "_id.org_name"},
		},
		{
			name: "grouping expression",
			opts: GroupOpts{ByExpr: bson.M{"y": bson.M{"$year": "$date"}}},
			wantPayload: bson.M{
				"_id": bson.M{"y": bson.M{"$year": "$date"}},
			},
			wantFields: []string{"_id.y"},
		},
		{
			name: "accumulators and counter",
			opts: GroupOpts{
				By:       Fields{"shop"},
				First:    Fields{"name"},
				Min:      Fields{"lo"},
				Max:      Fields{"hi"},
				Avg:      Fields{"score"},
				AddToSet: Fields{"tags"},
				Counter:  Fields{"n"},
			},
			specs: []bson.M{{"revenue": bson.M{"$sum": "$price"}}},
			wantPayload: bson.M{
				"_id":     "$shop",
				"name":    bson.M{"$first": "$name"},
				"lo":      bson.M{"$min": "$lo"},
				"hi":      bson.M{"$max": "$hi"},
				"score":   bson.M{"$avg": "$score"},
				"tags":    bson.M{"$addToSet": "$tags"},
				"n":       bson.M{"$sum": 1},
				"revenue": bson.M{"$sum": "$price"},
			},
			wantFields: []string{"_id", "hi", "lo", "n", "name", "revenue", "score", "tags"},
		},
		{
			name:    "default operator",
			tracked: bson.M{"a": 1, "b.c": 1, "d": 1, "e": 1},
			opts: GroupOpts{
				By:        Fields{"a"},
				Sum:       Fields{"d"},
				DefaultOp: "$first",
				Exclude:   Fields{"e"},
			},
			wantPayload: bson.M{
				"_id": "$a",
				"b":   bson.M{"$first": "$b"},
				"d":   bson.M{"$sum": "$d"},
			},
			wantFields: []string{"_id", "b", "d"},
		},
		{
			name:    "push carries nested fields",
			tracked: bson.M{"items.name": 1, "items.qty": 1, "x": 1},
			opts:    GroupOpts{By: Fields{"x"}, Push: Fields{"items"}},
			wantPayload: bson.M{
				"_id":   "$x",
				"items": bson.M{"$push": "$items"},
			},
			wantFields: []string{"_id", "items", "items.name", "items.qty"},
		},
		{
			name:    "sum does not carry nested fields",
			tracked: bson.M{"price.net": 1},
			opts:    GroupOpts{Sum: Fields{"price"}},
			wantPayload: bson.M{
				"_id":   nil,
				"price": bson.M{"$sum": "$price"},
			},
			wantFields: []string{"price"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New()
			if tt.tracked != nil {
				b.Project(tt.tracked)
			}
			b.Group(tt.opts, tt.specs...)

			last, err := b.LastStage()
			require.NoError(t, err)
			assert.Equal(t, "$group", last.Name())
			if diff := cmp.Diff(tt.wantPayload, last.Statement()); diff != "" {
				t.Errorf("payload mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, tt.wantFields, b.Fields())
		})
	}
}
