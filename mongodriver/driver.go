package mongodriver

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// DriverName is the name the driver is registered under with database/sql.
const DriverName = "mongodb"

var (
	drv = &Driver{}

	errNotSupported = errors.New("mongodriver: not supported")
)

func init() {
	sql.Register(DriverName, drv)
}

// Driver is the database/sql driver. It cannot open connections from a DSN
// string; pass a Connector to sql.OpenDB instead.
type Driver struct{}

// Open always fails. Use sql.OpenDB(NewConnector(...)).
func (d *Driver) Open(string) (driver.Conn, error) {
	return nil, fmt.Errorf("%w: open by name, use sql.OpenDB with NewConnector", errNotSupported)
}

// Connector hands out connections bound to one database of an existing
// client. All connections share a single Executor.
type Connector struct {
	client   *mongo.Client
	database string
	exec     *Executor
}

// NewConnector returns a connector for database. opts configure the shared
// Executor.
func NewConnector(client *mongo.Client, database string, opts ...Option) *Connector {
	return &Connector{
		client:   client,
		database: database,
		exec:     NewExecutor(client.Database(database), opts...),
	}
}

// Connect implements driver.Connector. It never dials; the client manages
// its own pool.
func (c *Connector) Connect(context.Context) (driver.Conn, error) {
	return &Conn{c: c}, nil
}

// Driver implements driver.Connector.
func (c *Connector) Driver() driver.Driver { return drv }

// Client returns the client the connector was created with.
func (c *Connector) Client() *mongo.Client { return c.client }

// Database returns the database name.
func (c *Connector) Database() string { return c.database }

// Conn executes query DSL documents. Only QueryContext is supported,
// there are no prepared statements or transactions.
type Conn struct {
	c *Connector
}

// Prepare is not supported.
func (c *Conn) Prepare(string) (driver.Stmt, error) {
	return nil, errNotSupported
}

// Begin is not supported.
func (c *Conn) Begin() (driver.Tx, error) {
	return nil, errNotSupported
}

// Close is a no-op. The client belongs to whoever created the Connector.
func (c *Conn) Close() error {
	return nil
}

// Ping checks the primary is reachable.
func (c *Conn) Ping(ctx context.Context) error {
	return c.c.client.Ping(ctx, nil)
}

// QueryContext parses query as a query DSL document, binds args to its
// params and runs it. Aggregates return one JSON array row unless the
// query sets "stream", in which case every document is its own row.
func (c *Conn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	q, err := ParseQuery(query)
	if err != nil {
		return nil, err
	}

	if len(args) != 0 {
		vals := make([]any, len(args))
		for i, a := range args {
			vals[i] = a.Value
		}
		if err := q.SubstituteParams(vals); err != nil {
			return nil, err
		}
	}

	if q.Operation != OpAggregate {
		return nil, fmt.Errorf("mongodriver: unsupported operation %q", q.Operation)
	}

	cur, err := c.c.exec.Aggregate(ctx, q.Aggregation(), "")
	if err != nil {
		return nil, err
	}
	if q.Stream {
		return newCursorRows(ctx, cur), nil
	}

	var docs []bson.D
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongodriver: reading results: %w", err)
	}
	b, err := marshalDocs(docs)
	if err != nil {
		return nil, err
	}
	return newBufferedRows(b), nil
}
