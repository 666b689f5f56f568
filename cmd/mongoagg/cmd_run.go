package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/avast/retry-go"
	"github.com/egorgvo/mongoagg/mongodriver"
	"github.com/pkg/errors"
	"github.com/rs/xid"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.uber.org/zap"
)

var (
	runAll        bool
	runCollection string
)

func runCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "run <recipe>",
		Short: "Run a recipe against MongoDB",
		Long: `Build the pipeline for a recipe and run it against the database set
in the config. Result documents are printed as Extended JSON, one per line.`,
		Args: cobra.ExactArgs(1),
		RunE: cmdRun,
	}
	c.Flags().BoolVar(&runAll, "all", false, "Read all results before printing")
	c.Flags().StringVar(&runCollection, "collection", "", "Collection to run against (overrides the recipe)")
	return c
}

func cmdRun(cmd *cobra.Command, args []string) error {
	setup(cpath)

	r, err := loadRecipe(args[0])
	if err != nil {
		return err
	}
	b, err := buildRecipe(r)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	rlog := zlog.With(zap.String("run", xid.New().String()), zap.String("recipe", r.Name))

	client, err := connect(ctx, rlog)
	if err != nil {
		return err
	}
	defer client.Disconnect(context.WithoutCancel(ctx)) //nolint:errcheck

	exec := mongodriver.NewExecutor(client.Database(cfg.Mongo.Database),
		mongodriver.WithLogger(rlog))
	out := cmd.OutOrStdout()

	if runAll {
		docs, err := exec.AggregateAll(ctx, b, runCollection)
		if err != nil {
			return err
		}
		for _, d := range docs {
			js, err := bson.MarshalExtJSON(d, false, false)
			if err != nil {
				return errors.Wrap(err, "encoding result")
			}
			fmt.Fprintln(out, string(js))
		}
		rlog.Info("aggregation finished", zap.Int("documents", len(docs)))
		return nil
	}

	cur, err := exec.Aggregate(ctx, b, runCollection)
	if err != nil {
		return err
	}
	defer cur.Close(context.WithoutCancel(ctx)) //nolint:errcheck

	n := 0
	for cur.Next(ctx) {
		fmt.Fprintln(out, cur.Current.String())
		n++
	}
	if err := cur.Err(); err != nil {
		return errors.Wrap(err, "reading results")
	}
	rlog.Info("aggregation finished", zap.Int("documents", n))
	return nil
}

// connect opens the client and pings the primary, retrying up to the
// configured number of attempts.
func connect(ctx context.Context, rlog *zap.Logger) (*mongo.Client, error) {
	if cfg.Mongo.Database == "" {
		return nil, errors.New("mongo.database is not set")
	}

	opts := options.Client().ApplyURI(cfg.Mongo.URI)
	if cfg.Mongo.ConnectTimeout > 0 {
		opts.SetConnectTimeout(cfg.Mongo.ConnectTimeout)
	}

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, errors.Wrap(err, "connecting to mongodb")
	}

	attempts := cfg.Mongo.PingAttempts
	if attempts == 0 {
		attempts = 1
	}

	err = retry.Do(
		func() error { return client.Ping(ctx, readpref.Primary()) },
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.OnRetry(func(n uint, err error) {
			rlog.Warn("mongodb ping failed", zap.Uint("attempt", n+1), zap.Error(err))
		}),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		client.Disconnect(context.WithoutCancel(ctx)) //nolint:errcheck
		return nil, errors.Wrap(err, "pinging mongodb")
	}
	return client, nil
}
