package mongodriver

import (
	"errors"
	"fmt"

	"github.com/egorgvo/mongoagg/core"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// OpAggregate is the only operation the driver executes.
const OpAggregate = "aggregate"

// rootColumn names the single JSON column every result row carries.
const rootColumn = "__root"

var errMissingOperation = errors.New("mongodriver: query has no operation")

// QueryDSL is the Extended JSON document accepted as a SQL query string:
//
//	{"operation":"aggregate","collection":"users",
//	 "pipeline":[{"$match":{"age":{"$gt":"$1"}}}],"params":["$1"]}
//
// String values equal to one of Params are replaced by the matching query
// argument before execution.
type QueryDSL struct {
	Operation    string          `bson:"operation"`
	Collection   string          `bson:"collection,omitempty"`
	Pipeline     []bson.D        `bson:"pipeline"`
	AllowDiskUse bool            `bson:"allow_disk_use,omitempty"`
	Collation    *core.Collation `bson:"collation,omitempty"`
	Stream       bool            `bson:"stream,omitempty"`
	Params       []string        `bson:"params,omitempty"`
}

// ParseQuery decodes a query DSL document. Relaxed and canonical Extended
// JSON are both accepted.
func ParseQuery(query string) (*QueryDSL, error) {
	var q QueryDSL
	if err := bson.UnmarshalExtJSON([]byte(query), false, &q); err != nil {
		return nil, fmt.Errorf("mongodriver: parsing query: %w", err)
	}
	if q.Operation == "" {
		return nil, errMissingOperation
	}
	return &q, nil
}

// SubstituteParams replaces every placeholder listed in Params with the
// argument at the same position.
func (q *QueryDSL) SubstituteParams(args []any) error {
	if len(q.Params) == 0 {
		return nil
	}
	if len(args) < len(q.Params) {
		return fmt.Errorf("mongodriver: query expects %d params, got %d", len(q.Params), len(args))
	}

	vals := make(map[string]any, len(q.Params))
	for i, p := range q.Params {
		vals[p] = args[i]
	}
	for i, stage := range q.Pipeline {
		q.Pipeline[i] = substitute(stage, vals).(bson.D)
	}
	return nil
}

func substitute(v any, vals map[string]any) any {
	switch t := v.(type) {
	case string:
		if r, ok := vals[t]; ok {
			return r
		}
		return t
	case bson.D:
		for i := range t {
			t[i].Value = substitute(t[i].Value, vals)
		}
		return t
	case bson.M:
		for k, e := range t {
			t[k] = substitute(e, vals)
		}
		return t
	case map[string]any:
		for k, e := range t {
			t[k] = substitute(e, vals)
		}
		return t
	case bson.A:
		for i := range t {
			t[i] = substitute(t[i], vals)
		}
		return t
	case []any:
		for i := range t {
			t[i] = substitute(t[i], vals)
		}
		return t
	}
	return v
}

// Aggregation returns q in the form the Executor runs.
func (q *QueryDSL) Aggregation() Aggregation {
	return dslAggregation{q: q}
}

type dslAggregation struct {
	q *QueryDSL
}

func (a dslAggregation) Collection() string { return a.q.Collection }

func (a dslAggregation) Pipeline() mongo.Pipeline { return mongo.Pipeline(a.q.Pipeline) }

func (a dslAggregation) AllowDiskUse() bool { return a.q.AllowDiskUse }

func (a dslAggregation) CollationOptions() *options.Collation { return a.q.Collation.Options() }
