// Package core builds MongoDB aggregation pipelines stage by stage while
// tracking which document fields exist after each stage.
package core

import (
	"errors"
	"strings"

	"github.com/egorgvo/mongoagg/core/internal/fpath"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
)

// ErrNoStages is returned by LastStage on an empty pipeline.
var ErrNoStages = errors.New("mongoagg: pipeline has no stages")

// Builder accumulates pipeline stages together with the set of fields known
// to exist in documents flowing out of the last stage. A Builder is not safe
// for concurrent use.
type Builder struct {
	stages       []Stage
	fields       fpath.Set
	collection   string
	allowDiskUse bool
	collation    *Collation
	log          *zap.Logger
}

// Option configures a Builder created with New.
type Option func(*Builder)

// WithCollection sets the collection the pipeline runs against.
func WithCollection(name string) Option {
	return func(b *Builder) { b.collection = name }
}

// WithAllowDiskUse lets the server spill large stages to disk.
func WithAllowDiskUse(allow bool) Option {
	return func(b *Builder) { b.allowDiskUse = allow }
}

// WithCollation sets the collation used for string comparisons.
func WithCollation(c *Collation) Option {
	return func(b *Builder) { b.collation = c }
}

// WithLogger sets the logger used to trace stage and field set changes at
// debug level.
func WithLogger(log *zap.Logger) Option {
	return func(b *Builder) {
		if log != nil {
			b.log = log
		}
	}
}

// New returns an empty builder.
func New(opts ...Option) *Builder {
	b := &Builder{
		fields: fpath.Set{},
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Collection is the collection the pipeline is meant to run on.
func (b *Builder) Collection() string { return b.collection }

func (b *Builder) AllowDiskUse() bool { return b.allowDiskUse }

func (b *Builder) Collation() *Collation { return b.collation }

// CollationOptions returns the collation in driver form, or nil.
func (b *Builder) CollationOptions() *options.Collation {
	return b.collation.Options()
}

// Len is the number of stages.
func (b *Builder) Len() int { return len(b.stages) }

// Stages returns a copy of the stage list.
func (b *Builder) Stages() []Stage {
	out := make([]Stage, len(b.stages))
	copy(out, b.stages)
	return out
}

// Pipeline returns the stages in driver form.
func (b *Builder) Pipeline() mongo.Pipeline {
	p := make(mongo.Pipeline, 0, len(b.stages))
	for _, s := range b.stages {
		p = append(p, s.Doc())
	}
	return p
}

// Fields returns the tracked fields in lexical order.
func (b *Builder) Fields() []string {
	return b.fields.Strings()
}

// Clone returns an independent copy. Stage payloads are deep copied.
func (b *Builder) Clone() *Builder {
	c := &Builder{
		stages:       make([]Stage, len(b.stages)),
		fields:       b.fields.Clone(),
		collection:   b.collection,
		allowDiskUse: b.allowDiskUse,
		log:          b.log,
	}
	for i, s := range b.stages {
		c.stages[i] = Stage{Kind: s.Kind, Body: cloneValue(s.Body)}
	}
	if b.collation != nil {
		col := *b.collation
		c.collation = &col
	}
	return c
}

// push appends s and, when next is non-nil, replaces the live field set.
// Every stage operation ends here.
func (b *Builder) push(s Stage, next fpath.Set) *Builder {
	b.stages = append(b.stages, s)
	if next != nil {
		b.fields = next
	}
	if ce := b.log.Check(zap.DebugLevel, "stage added"); ce != nil {
		ce.Write(
			zap.String("stage", string(s.Kind)),
			zap.Int("position", len(b.stages)-1),
			zap.Strings("fields", b.fields.Strings()),
		)
	}
	return b
}

// Match adds a single $match built from the merged filters. Keys written as
// "a__b" become "a.b" and a trailing eq, ne, gt, gte, lt, lte, in or nin
// becomes the matching query operator. Filtered field names are recorded as
// known fields. Calling Match without filters does nothing.
func (b *Builder) Match(filters ...bson.M) *Builder {
	if len(filters) == 0 {
		return b
	}
	body := bson.M{}
	for _, f := range filters {
		deepMerge(body, normalizeFilter(f))
	}
	return b.push(MatchStage(body), withKnown(b.fields, sortedKeys(body)...))
}

// Lookup adds a $lookup joining from on localField = foreignField into as.
// Empty arguments default to "_id" for both fields and to localField for as.
func (b *Builder) Lookup(from, localField, as, foreignField string) *Builder {
	if localField == "" {
		localField = idField
	}
	if as == "" {
		as = localField
	}
	if foreignField == "" {
		foreignField = idField
	}
	localField, as, foreignField = dotted(localField), dotted(as), dotted(foreignField)
	return b.push(
		LookupStage(from, localField, as, foreignField),
		withKnown(b.fields, localField, as),
	)
}

// LookupUnwind is Lookup followed by an Unwind of the joined array.
func (b *Builder) LookupUnwind(from, localField, as, foreignField string, preserve bool) *Builder {
	b.Lookup(from, localField, as, foreignField)
	body := b.stages[len(b.stages)-1].Body.(bson.M)
	return b.Unwind(body["as"].(string), preserve)
}

// Unwind adds an $unwind of field. An empty field is ignored.
func (b *Builder) Unwind(field string, preserve bool) *Builder {
	field = dotted(strings.TrimPrefix(strings.TrimSpace(field), "$"))
	if field == "" {
		return b
	}
	return b.push(UnwindStage(field, preserve), withKnown(b.fields, field))
}

// Sort adds one $sort per non-empty spec, keeping key order.
func (b *Builder) Sort(specs ...bson.D) *Builder {
	for _, spec := range specs {
		if len(spec) == 0 {
			continue
		}
		s := normalizeSort(spec)
		keys := make([]string, len(s))
		for i, e := range s {
			keys[i] = e.Key
		}
		b.push(SortStage(s), withKnown(b.fields, keys...))
	}
	return b
}

// Skip adds a $skip. Non-positive counts are ignored.
func (b *Builder) Skip(n int64) *Builder {
	if n <= 0 {
		return b
	}
	return b.push(SkipStage(n), nil)
}

// Limit adds a $limit. Non-positive counts are ignored.
func (b *Builder) Limit(n int64) *Builder {
	if n <= 0 {
		return b
	}
	return b.push(LimitStage(n), nil)
}

// Project adds a $project merged from specs, as given. The tracked fields
// become exactly the payload keys.
func (b *Builder) Project(specs ...bson.M) *Builder {
	body := bson.M{}
	for _, s := range specs {
		for k, v := range normalizeSpec(s) {
			body[k] = v
		}
	}
	if len(body) == 0 {
		return b
	}
	next := fpath.Set{}
	for k := range body {
		if p, ok := fpath.Parse(k); ok {
			next.Add(p)
		}
	}
	return b.push(ProjectStage(body), next)
}

// Append adds prebuilt stages. The tracked fields are left unchanged.
func (b *Builder) Append(stages ...Stage) *Builder {
	for _, s := range stages {
		b.push(s, nil)
	}
	return b
}

// Extend appends every stage of other, and of any further builders, in
// order. Tracked fields are left unchanged.
func (b *Builder) Extend(others ...*Builder) *Builder {
	for _, o := range others {
		if o == nil {
			continue
		}
		for _, s := range o.Stages() {
			b.push(Stage{Kind: s.Kind, Body: cloneValue(s.Body)}, nil)
		}
	}
	return b
}

// LastStage is a handle on the most recently added stage.
type LastStage struct {
	b *Builder
	i int
}

// LastStage returns a handle on the final stage, or ErrNoStages.
func (b *Builder) LastStage() (*LastStage, error) {
	if len(b.stages) == 0 {
		return nil, ErrNoStages
	}
	return &LastStage{b: b, i: len(b.stages) - 1}, nil
}

func (ls *LastStage) Name() string { return string(ls.b.stages[ls.i].Kind) }

func (ls *LastStage) Statement() any { return ls.b.stages[ls.i].Body }

// SetName replaces the operator. The payload and tracked fields stay as they
// are.
func (ls *LastStage) SetName(name string) {
	ls.b.stages[ls.i].Kind = Kind(name)
}

// SetStatement replaces the payload. The tracked fields stay as they are.
func (ls *LastStage) SetStatement(body any) {
	ls.b.stages[ls.i].Body = body
}
