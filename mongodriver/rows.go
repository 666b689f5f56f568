package mongodriver

import (
	"bytes"
	"context"
	"database/sql/driver"
	"fmt"
	"io"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

var rowColumns = []string{rootColumn}

// cursorRows reads one document per row from a live cursor, as relaxed
// Extended JSON.
type cursorRows struct {
	ctx    context.Context
	cursor *mongo.Cursor
	done   bool
}

func newCursorRows(ctx context.Context, cur *mongo.Cursor) *cursorRows {
	return &cursorRows{ctx: ctx, cursor: cur}
}

func (r *cursorRows) Columns() []string { return rowColumns }

// Close releases the cursor even when the query context is already done.
func (r *cursorRows) Close() error {
	if r.done {
		return nil
	}
	r.done = true
	return r.cursor.Close(context.WithoutCancel(r.ctx))
}

func (r *cursorRows) Next(dest []driver.Value) error {
	if r.done {
		return io.EOF
	}
	if !r.cursor.Next(r.ctx) {
		if err := r.cursor.Err(); err != nil {
			return err
		}
		return io.EOF
	}

	var doc bson.D
	if err := r.cursor.Decode(&doc); err != nil {
		return err
	}
	b, err := bson.MarshalExtJSON(doc, false, false)
	if err != nil {
		return fmt.Errorf("mongodriver: encoding result: %w", err)
	}
	dest[0] = b
	return nil
}

// bufferedRows serves JSON values already held in memory, one per row.
type bufferedRows struct {
	values [][]byte
}

func newBufferedRows(values ...[]byte) *bufferedRows {
	return &bufferedRows{values: values}
}

func (r *bufferedRows) Columns() []string { return rowColumns }

func (r *bufferedRows) Close() error {
	r.values = nil
	return nil
}

func (r *bufferedRows) Next(dest []driver.Value) error {
	if len(r.values) == 0 {
		return io.EOF
	}
	dest[0], r.values = r.values[0], r.values[1:]
	return nil
}

// marshalDocs encodes docs as a JSON array of relaxed Extended JSON
// documents.
func marshalDocs(docs []bson.D) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, d := range docs {
		if i != 0 {
			buf.WriteByte(',')
		}
		b, err := bson.MarshalExtJSON(d, false, false)
		if err != nil {
			return nil, fmt.Errorf("mongodriver: encoding result %d: %w", i, err)
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}
