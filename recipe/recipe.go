// Package recipe describes aggregation pipelines in YAML and replays them
// onto a core.Builder.
//
//	collection: orders
//	allow_disk_use: true
//	stages:
//	  - match: {status: A, total__gte: 100}
//	  - lookup_unwind: {from: users, local_field: user}
//	  - smart_project: {include: "user.name,total", exclude: _id}
//	  - group: {by: user.name, sum: total, counter: orders}
//	  - sort: {total: -1}
//	  - limit: 10
package recipe

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/egorgvo/mongoagg/core"
	"github.com/mitchellh/mapstructure"
	"go.mongodb.org/mongo-driver/v2/bson"
	"gopkg.in/yaml.v3"
)

// Recipe is a parsed recipe file.
type Recipe struct {
	Name         string
	Collection   string
	AllowDiskUse bool
	Collation    *core.Collation
	Steps        []Step
}

// Step is one entry of the stages list: a step name and its raw arguments.
type Step struct {
	Op   string
	args yaml.Node
}

type document struct {
	Collection   string          `yaml:"collection"`
	AllowDiskUse bool            `yaml:"allow_disk_use"`
	Collation    *core.Collation `yaml:"collation"`
	Stages       []yaml.Node     `yaml:"stages"`
}

type stepFunc func(b *core.Builder, n *yaml.Node) error

var steps = map[string]stepFunc{
	"match":         stepMatch,
	"lookup":        stepLookup,
	"lookup_unwind": stepLookupUnwind,
	"unwind":        stepUnwind,
	"sort":          stepSort,
	"skip":          stepSkip,
	"limit":         stepLimit,
	"project":       stepProject,
	"smart_project": stepSmartProject,
	"group":         stepGroup,
	"raw":           stepRaw,
}

// Parse decodes a recipe and checks every step by building it once.
func Parse(data []byte) (*Recipe, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("recipe: %w", err)
	}

	r := &Recipe{
		Collection:   doc.Collection,
		AllowDiskUse: doc.AllowDiskUse,
		Collation:    doc.Collation,
		Steps:        make([]Step, 0, len(doc.Stages)),
	}

	for i, n := range doc.Stages {
		if n.Kind != yaml.MappingNode || len(n.Content) != 2 {
			return nil, fmt.Errorf("recipe: stage %d: expected a single step name", i)
		}
		op := n.Content[0].Value
		if _, ok := steps[op]; !ok {
			return nil, fmt.Errorf("recipe: stage %d: unknown step %q", i, op)
		}
		r.Steps = append(r.Steps, Step{Op: op, args: *n.Content[1]})
	}

	if _, err := r.Build(); err != nil {
		return nil, err
	}
	return r, nil
}

// Build replays the recipe onto a new builder. opts are applied after the
// recipe's own collection, disk use and collation settings.
func (r *Recipe) Build(opts ...core.Option) (*core.Builder, error) {
	base := []core.Option{
		core.WithCollection(r.Collection),
		core.WithAllowDiskUse(r.AllowDiskUse),
	}
	if r.Collation != nil {
		c := *r.Collation
		base = append(base, core.WithCollation(&c))
	}
	b := core.New(append(base, opts...)...)

	for i := range r.Steps {
		s := &r.Steps[i]
		if err := steps[s.Op](b, &s.args); err != nil {
			return nil, fmt.Errorf("recipe: stage %d (%s): %w", i, s.Op, err)
		}
	}
	return b, nil
}

func stepMatch(b *core.Builder, n *yaml.Node) error {
	filters, err := decodeDocs(n)
	if err != nil {
		return err
	}
	b.Match(filters...)
	return nil
}

type lookupArgs struct {
	From         string `mapstructure:"from"`
	LocalField   string `mapstructure:"local_field"`
	As           string `mapstructure:"as"`
	ForeignField string `mapstructure:"foreign_field"`
	Preserve     bool   `mapstructure:"preserve"`
}

func decodeLookup(n *yaml.Node) (lookupArgs, error) {
	var args lookupArgs
	if err := decodeArgs(n, &args); err != nil {
		return args, err
	}
	if args.From == "" {
		return args, errors.New("from is required")
	}
	return args, nil
}

func stepLookup(b *core.Builder, n *yaml.Node) error {
	a, err := decodeLookup(n)
	if err != nil {
		return err
	}
	b.Lookup(a.From, a.LocalField, a.As, a.ForeignField)
	return nil
}

func stepLookupUnwind(b *core.Builder, n *yaml.Node) error {
	a, err := decodeLookup(n)
	if err != nil {
		return err
	}
	b.LookupUnwind(a.From, a.LocalField, a.As, a.ForeignField, a.Preserve)
	return nil
}

type unwindArgs struct {
	Field    string `mapstructure:"field"`
	Preserve bool   `mapstructure:"preserve"`
}

func stepUnwind(b *core.Builder, n *yaml.Node) error {
	var a unwindArgs
	if n.Kind == yaml.ScalarNode {
		a.Field = n.Value
	} else if err := decodeArgs(n, &a); err != nil {
		return err
	}
	b.Unwind(a.Field, a.Preserve)
	return nil
}

func stepSort(b *core.Builder, n *yaml.Node) error {
	nodes := []*yaml.Node{n}
	if n.Kind == yaml.SequenceNode {
		nodes = n.Content
	}
	for _, sn := range nodes {
		v, err := decodeOrdered(sn)
		if err != nil {
			return err
		}
		spec, ok := v.(bson.D)
		if !ok {
			return fmt.Errorf("sort expects a mapping, got %s", sn.Tag)
		}
		b.Sort(spec)
	}
	return nil
}

func stepSkip(b *core.Builder, n *yaml.Node) error {
	var v int64
	if err := n.Decode(&v); err != nil {
		return err
	}
	b.Skip(v)
	return nil
}

func stepLimit(b *core.Builder, n *yaml.Node) error {
	var v int64
	if err := n.Decode(&v); err != nil {
		return err
	}
	b.Limit(v)
	return nil
}

func stepProject(b *core.Builder, n *yaml.Node) error {
	specs, err := decodeDocs(n)
	if err != nil {
		return err
	}
	b.Project(specs...)
	return nil
}

type projectArgs struct {
	Include    core.Fields    `mapstructure:"include"`
	Exclude    core.Fields    `mapstructure:"exclude"`
	StartEmpty bool           `mapstructure:"start_empty"`
	Fields     map[string]any `mapstructure:"fields"`
}

func stepSmartProject(b *core.Builder, n *yaml.Node) error {
	var a projectArgs
	if err := decodeArgs(n, &a); err != nil {
		return err
	}
	b.SmartProject(core.ProjectOpts{
		Include:    a.Include,
		Exclude:    a.Exclude,
		StartEmpty: a.StartEmpty,
	}, specsOf(a.Fields)...)
	return nil
}

type groupArgs struct {
	By        any            `mapstructure:"by"`
	First     core.Fields    `mapstructure:"first"`
	Min       core.Fields    `mapstructure:"min"`
	Max       core.Fields    `mapstructure:"max"`
	Sum       core.Fields    `mapstructure:"sum"`
	Avg       core.Fields    `mapstructure:"avg"`
	Push      core.Fields    `mapstructure:"push"`
	AddToSet  core.Fields    `mapstructure:"add_to_set"`
	Counter   core.Fields    `mapstructure:"counter"`
	DefaultOp string         `mapstructure:"default_op"`
	Exclude   core.Fields    `mapstructure:"exclude"`
	Fields    map[string]any `mapstructure:"fields"`
}

func stepGroup(b *core.Builder, n *yaml.Node) error {
	var a groupArgs
	if err := decodeArgs(n, &a); err != nil {
		return err
	}

	opts := core.GroupOpts{
		First:     a.First,
		Min:       a.Min,
		Max:       a.Max,
		Sum:       a.Sum,
		Avg:       a.Avg,
		Push:      a.Push,
		AddToSet:  a.AddToSet,
		Counter:   a.Counter,
		DefaultOp: a.DefaultOp,
		Exclude:   a.Exclude,
	}
	if m, ok := a.By.(map[string]any); ok {
		opts.ByExpr = bson.M(m)
	} else {
		opts.By = core.ParseFields(a.By)
	}

	b.Group(opts, specsOf(a.Fields)...)
	return nil
}

func stepRaw(b *core.Builder, n *yaml.Node) error {
	nodes := []*yaml.Node{n}
	if n.Kind == yaml.SequenceNode {
		nodes = n.Content
	}
	for _, rn := range nodes {
		if rn.Kind != yaml.MappingNode || len(rn.Content) != 2 {
			return errors.New("raw expects a single stage operator")
		}
		body, err := decodeOrdered(rn.Content[1])
		if err != nil {
			return err
		}
		b.Append(core.Raw(rn.Content[0].Value, body))
	}
	return nil
}

func specsOf(m map[string]any) []bson.M {
	if len(m) == 0 {
		return nil
	}
	return []bson.M{m}
}

// decodeDocs reads a mapping, or a list of mappings, as documents.
func decodeDocs(n *yaml.Node) ([]bson.M, error) {
	if n.Kind == yaml.SequenceNode {
		var ms []map[string]any
		if err := n.Decode(&ms); err != nil {
			return nil, err
		}
		out := make([]bson.M, len(ms))
		for i, m := range ms {
			out[i] = m
		}
		return out, nil
	}

	var m map[string]any
	if err := n.Decode(&m); err != nil {
		return nil, err
	}
	return []bson.M{m}, nil
}

// decodeOrdered converts a node to bson values keeping mapping key order.
func decodeOrdered(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.MappingNode:
		d := make(bson.D, 0, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			v, err := decodeOrdered(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			d = append(d, bson.E{Key: n.Content[i].Value, Value: v})
		}
		return d, nil
	case yaml.SequenceNode:
		a := make(bson.A, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := decodeOrdered(c)
			if err != nil {
				return nil, err
			}
			a = append(a, v)
		}
		return a, nil
	case yaml.AliasNode:
		return decodeOrdered(n.Alias)
	}

	var v any
	if err := n.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

var fieldsType = reflect.TypeOf(core.Fields{})

// fieldsHook lets field lists be written as "a,b" or as a YAML list.
func fieldsHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != fieldsType {
		return data, nil
	}
	return core.ParseFields(data), nil
}

func decodeArgs(n *yaml.Node, out any) error {
	var raw map[string]any
	if err := n.Decode(&raw); err != nil {
		return err
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       fieldsHook,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(raw)
}
