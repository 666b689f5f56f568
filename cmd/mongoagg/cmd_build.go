package main

import (
	"fmt"
	"strings"

	"github.com/egorgvo/mongoagg/core"
	"github.com/egorgvo/mongoagg/recipe"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/v2/bson"
)

var buildJSON bool

func buildCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "build <recipe>",
		Short: "Print the pipeline a recipe produces",
		Long: `Build the pipeline for a recipe without connecting to MongoDB.

Prints every stage as Extended JSON followed by the fields known to exist
after the last stage and the pipeline fingerprint. With --json only the
query document accepted by the mongodb database/sql driver is printed.`,
		Args: cobra.ExactArgs(1),
		RunE: cmdBuild,
	}
	c.Flags().BoolVar(&buildJSON, "json", false, "Print the driver query document only")
	return c
}

func cmdBuild(cmd *cobra.Command, args []string) error {
	setup(cpath)

	r, err := loadRecipe(args[0])
	if err != nil {
		return err
	}

	b, err := buildRecipe(r)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if buildJSON {
		q, err := b.Query()
		if err != nil {
			return err
		}
		fmt.Fprintln(out, q)
		return nil
	}

	fmt.Fprintf(out, "collection: %s\n", b.Collection())
	for i, s := range b.Stages() {
		js, err := bson.MarshalExtJSON(s.Doc(), false, false)
		if err != nil {
			return errors.Wrapf(err, "stage %d", i)
		}
		fmt.Fprintf(out, "%2d  %s\n", i, js)
	}

	h, err := b.Fingerprint()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "fields: %s\n", strings.Join(b.Fields(), ", "))
	fmt.Fprintf(out, "fingerprint: %016x\n", h)
	return nil
}

// buildRecipe applies the config wide aggregation defaults the recipe does
// not set itself.
func buildRecipe(r *recipe.Recipe) (*core.Builder, error) {
	opts := []core.Option{core.WithLogger(zlog)}
	if cfg.Aggregation.AllowDiskUse {
		opts = append(opts, core.WithAllowDiskUse(true))
	}
	if r.Collation == nil && cfg.Aggregation.Collation != nil {
		opts = append(opts, core.WithCollation(cfg.Aggregation.Collation))
	}

	b, err := r.Build(opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "building recipe %s", r.Name)
	}
	return b, nil
}
