package core

import (
	"fmt"

	"github.com/mitchellh/hashstructure/v2"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Collation mirrors the server collation document. It decodes from config
// and recipe files as well as BSON.
type Collation struct {
	Locale          string `json:"locale" yaml:"locale" mapstructure:"locale" bson:"locale"`
	CaseLevel       bool   `json:"caseLevel,omitempty" yaml:"case_level" mapstructure:"case_level" bson:"caseLevel,omitempty"`
	CaseFirst       string `json:"caseFirst,omitempty" yaml:"case_first" mapstructure:"case_first" bson:"caseFirst,omitempty"`
	Strength        int    `json:"strength,omitempty" yaml:"strength" mapstructure:"strength" bson:"strength,omitempty"`
	NumericOrdering bool   `json:"numericOrdering,omitempty" yaml:"numeric_ordering" mapstructure:"numeric_ordering" bson:"numericOrdering,omitempty"`
	Alternate       string `json:"alternate,omitempty" yaml:"alternate" mapstructure:"alternate" bson:"alternate,omitempty"`
	MaxVariable     string `json:"maxVariable,omitempty" yaml:"max_variable" mapstructure:"max_variable" bson:"maxVariable,omitempty"`
	Normalization   bool   `json:"normalization,omitempty" yaml:"normalization" mapstructure:"normalization" bson:"normalization,omitempty"`
	Backwards       bool   `json:"backwards,omitempty" yaml:"backwards" mapstructure:"backwards" bson:"backwards,omitempty"`
}

// Options converts c to the driver type. A nil collation stays nil.
func (c *Collation) Options() *options.Collation {
	if c == nil {
		return nil
	}
	return &options.Collation{
		Locale:          c.Locale,
		CaseLevel:       c.CaseLevel,
		CaseFirst:       c.CaseFirst,
		Strength:        c.Strength,
		NumericOrdering: c.NumericOrdering,
		Alternate:       c.Alternate,
		MaxVariable:     c.MaxVariable,
		Normalization:   c.Normalization,
		Backwards:       c.Backwards,
	}
}

// query is the JSON form of a pipeline accepted by the mongodb database/sql
// driver.
type query struct {
	Operation    string     `bson:"operation"`
	Collection   string     `bson:"collection,omitempty"`
	Pipeline     []bson.D   `bson:"pipeline"`
	AllowDiskUse bool       `bson:"allow_disk_use,omitempty"`
	Collation    *Collation `bson:"collation,omitempty"`
}

// Query renders the builder as a relaxed Extended JSON aggregate query, the
// format the mongodb database/sql driver executes.
func (b *Builder) Query() (string, error) {
	q := query{
		Operation:    "aggregate",
		Collection:   b.collection,
		Pipeline:     make([]bson.D, 0, len(b.stages)),
		AllowDiskUse: b.allowDiskUse,
		Collation:    b.collation,
	}
	for _, s := range b.stages {
		q.Pipeline = append(q.Pipeline, s.Doc())
	}

	out, err := bson.MarshalExtJSON(q, false, false)
	if err != nil {
		return "", fmt.Errorf("mongoagg: encoding query: %w", err)
	}
	return string(out), nil
}

// Fingerprint hashes the collection, options and stages. Builders that
// produce the same pipeline share a fingerprint regardless of map key order.
func (b *Builder) Fingerprint() (uint64, error) {
	v := struct {
		Collection   string
		AllowDiskUse bool
		Collation    *Collation
		Stages       []bson.D
	}{
		Collection:   b.collection,
		AllowDiskUse: b.allowDiskUse,
		Collation:    b.collation,
		Stages:       b.Pipeline(),
	}
	h, err := hashstructure.Hash(v, hashstructure.FormatV2, nil)
	if err != nil {
		return 0, fmt.Errorf("mongoagg: fingerprint: %w", err)
	}
	return h, nil
}
