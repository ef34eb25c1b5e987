package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"sync"
	"testing"
)

// fakeResult is what the fake database answers for one statement.
type fakeResult struct {
	columns []string
	rows    [][]driver.Value
	err     error
}

type call struct {
	query    string
	args     []driver.Value
	readOnly bool
}

// fakeDB is a minimal database/sql driver answering statements from a
// handler and recording every call.
type fakeDB struct {
	mu       sync.Mutex
	calls    []call
	handler  func(query string, args []driver.Value) fakeResult
	beginErr error
	readOnly bool
}

func newFakeDB(t *testing.T, handler func(query string, args []driver.Value) fakeResult) (*sql.DB, *fakeDB) {
	f := &fakeDB{handler: handler}
	db := sql.OpenDB(f)
	t.Cleanup(func() { db.Close() })
	return db, f
}

func (f *fakeDB) Connect(context.Context) (driver.Conn, error) { return &fakeConn{db: f}, nil }
func (f *fakeDB) Driver() driver.Driver                        { return fakeDriver{} }

func (f *fakeDB) recorded() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

type fakeDriver struct{}

func (fakeDriver) Open(string) (driver.Conn, error) { return nil, errors.New("use the connector") }

type fakeConn struct {
	db *fakeDB
}

func (c *fakeConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("prepare not supported") }
func (c *fakeConn) Close() error                        { return nil }
func (c *fakeConn) Begin() (driver.Tx, error)           { return fakeTx{}, nil }

func (c *fakeConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if c.db.beginErr != nil {
		return nil, c.db.beginErr
	}
	c.db.mu.Lock()
	c.db.readOnly = opts.ReadOnly
	c.db.mu.Unlock()
	return fakeTx{}, nil
}

func (c *fakeConn) QueryContext(ctx context.Context, query string, named []driver.NamedValue) (driver.Rows, error) {
	res := c.answer(query, named)
	if res.err != nil {
		return nil, res.err
	}
	return &fakeRows{columns: res.columns, rows: res.rows}, nil
}

func (c *fakeConn) ExecContext(ctx context.Context, query string, named []driver.NamedValue) (driver.Result, error) {
	res := c.answer(query, named)
	if res.err != nil {
		return nil, res.err
	}
	return driver.RowsAffected(1), nil
}

func (c *fakeConn) answer(query string, named []driver.NamedValue) fakeResult {
	args := make([]driver.Value, len(named))
	for i, nv := range named {
		args[i] = nv.Value
	}
	c.db.mu.Lock()
	c.db.calls = append(c.db.calls, call{query: query, args: args, readOnly: c.db.readOnly})
	c.db.mu.Unlock()
	return c.db.handler(query, args)
}

type fakeTx struct{}

func (fakeTx) Commit() error   { return nil }
func (fakeTx) Rollback() error { return nil }

type fakeRows struct {
	columns []string
	rows    [][]driver.Value
	pos     int
}

func (r *fakeRows) Columns() []string { return r.columns }
func (r *fakeRows) Close() error      { return nil }

func (r *fakeRows) Next(dest []driver.Value) error {
	if r.pos >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.pos])
	r.pos++
	return nil
}
