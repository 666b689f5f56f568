// Command mongoagg builds and runs aggregation pipelines described by
// recipe files.
package main

import (
	"os"
	"path/filepath"

	"github.com/egorgvo/mongoagg/conf"
	"github.com/egorgvo/mongoagg/internal/util"
	"github.com/egorgvo/mongoagg/recipe"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	log   *zap.SugaredLogger
	zlog  *zap.Logger
	cfg   *conf.Config
	cpath string
	rpath string
)

func main() {
	zlog = util.NewLogger(false, zap.InfoLevel)
	log = zlog.Sugar()

	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	c := &cobra.Command{
		Use:           "mongoagg",
		Short:         "Build and run MongoDB aggregation pipelines from recipe files",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	c.PersistentFlags().StringVarP(&cpath, "config", "c", "./config", "Path to the config folder")
	c.PersistentFlags().StringVar(&rpath, "recipes", "", "Path to the recipes folder (overrides recipes_path)")

	c.AddCommand(buildCmd())
	c.AddCommand(runCmd())
	c.AddCommand(listCmd())
	return c
}

// setup reads <cpath>/<MONGOAGG_ENV>.yml (dev.yml by default) and rebuilds
// the logger from it.
func setup(cpath string) {
	env := os.Getenv("MONGOAGG_ENV")
	if env == "" {
		env = "dev"
	}

	c, err := conf.ReadInConfig(filepath.Join(cpath, env+".yml"))
	if err != nil {
		log.Fatalf("failed to read config: %s", err)
	}
	cfg = c

	zlog, _ = util.Build(util.LogOptions{
		JSON:  cfg.LogFormat == "json",
		Level: util.ParseLevel(cfg.LogLevel),
		Name:  cfg.AppName,
	})
	log = zlog.Sugar()
}

func newRegistry() (*recipe.Registry, error) {
	p := rpath
	if p == "" {
		p = cfg.AbsRecipesPath()
	}
	reg, err := recipe.NewRegistry(recipe.NewOsFS(p), cfg.RecipeCacheSize, zlog)
	if err != nil {
		return nil, errors.Wrap(err, "recipe registry")
	}
	return reg, nil
}

func loadRecipe(name string) (*recipe.Recipe, error) {
	reg, err := newRegistry()
	if err != nil {
		return nil, err
	}
	r, err := reg.Get(name)
	if err != nil {
		return nil, errors.Wrapf(err, "loading recipe %s", name)
	}
	return r, nil
}
