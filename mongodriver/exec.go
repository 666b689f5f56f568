package mongodriver

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/egorgvo/mongoagg/mongodriver"

// ErrNoCollection is returned when neither the caller nor the aggregation
// names a collection. Nothing is sent to the server.
var ErrNoCollection = errors.New("mongodriver: no collection specified")

// Aggregation is a pipeline ready to run. *core.Builder implements it.
type Aggregation interface {
	Collection() string
	Pipeline() mongo.Pipeline
	AllowDiskUse() bool
	CollationOptions() *options.Collation
}

type settings struct {
	log    *zap.Logger
	tracer trace.Tracer
}

// Option configures an Executor, or every connection of a Connector.
type Option func(*settings)

// WithLogger sets the logger for executed aggregations.
func WithLogger(log *zap.Logger) Option {
	return func(s *settings) {
		if log != nil {
			s.log = log
		}
	}
}

// WithTracerProvider sets where spans go. The global provider is used
// otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *settings) {
		if tp != nil {
			s.tracer = tp.Tracer(tracerName)
		}
	}
}

// Executor runs aggregations against one database.
type Executor struct {
	db *mongo.Database
	settings
}

// NewExecutor returns an executor for db. It is safe for concurrent use.
func NewExecutor(db *mongo.Database, opts ...Option) *Executor {
	e := &Executor{
		db: db,
		settings: settings{
			log:    zap.NewNop(),
			tracer: otel.Tracer(tracerName),
		},
	}
	for _, opt := range opts {
		opt(&e.settings)
	}
	return e
}

// Aggregate starts the aggregation and returns its cursor. collection,
// when set, overrides the aggregation's own collection.
func (e *Executor) Aggregate(ctx context.Context, a Aggregation, collection string) (*mongo.Cursor, error) {
	if collection == "" {
		collection = a.Collection()
	}
	if collection == "" {
		return nil, ErrNoCollection
	}

	pipeline := a.Pipeline()
	ctx, span := e.tracer.Start(ctx, "mongodb.aggregate",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "mongodb"),
			attribute.String("db.collection.name", collection),
			attribute.Int("db.pipeline.stages", len(pipeline)),
		))
	defer span.End()

	opts := options.Aggregate().SetAllowDiskUse(a.AllowDiskUse())
	if c := a.CollationOptions(); c != nil {
		opts.SetCollation(c)
	}

	e.log.Debug("aggregate",
		zap.String("collection", collection),
		zap.Int("stages", len(pipeline)),
		zap.Bool("allow_disk_use", a.AllowDiskUse()))

	cur, err := e.db.Collection(collection).Aggregate(ctx, pipeline, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.log.Error("aggregate failed", zap.String("collection", collection), zap.Error(err))
		return nil, fmt.Errorf("mongodriver: aggregate %s: %w", collection, err)
	}
	return cur, nil
}

// AggregateAll runs the aggregation and reads every result document.
func (e *Executor) AggregateAll(ctx context.Context, a Aggregation, collection string) ([]bson.M, error) {
	cur, err := e.Aggregate(ctx, a, collection)
	if err != nil {
		return nil, err
	}

	docs := []bson.M{}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongodriver: reading results: %w", err)
	}
	return docs, nil
}
