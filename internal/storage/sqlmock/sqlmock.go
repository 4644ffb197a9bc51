// Package sqlmock provides a scripted database/sql driver for store tests.
// Each expected operation is consumed in order; a query mismatch fails the call.
package sqlmock

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"testing"
)

type operationType int

const (
	opExec operationType = iota
	opQuery
)

func (o operationType) String() string {
	if o == opExec {
		return "exec"
	}
	return "query"
}

// Operation 是一次预期的数据库调用。
type Operation struct {
	typ    operationType
	query  string
	result Result
	rows   Rows
	err    error
	args   func([]driver.NamedValue) error
}

// Result 模拟 driver.Result。
type Result struct {
	LastInsertID int64
	Affected     int64
}

// LastInsertId 实现 driver.Result。
func (r Result) LastInsertId() (int64, error) { return r.LastInsertID, nil }

// RowsAffected 实现 driver.Result。
func (r Result) RowsAffected() (int64, error) { return r.Affected, nil }

// Rows 描述查询返回的数据。
type Rows struct {
	Columns []string
	Values  [][]driver.Value
}

// Exec 期望一次写操作。
func Exec(query string, result Result) Operation {
	return Operation{typ: opExec, query: query, result: result}
}

// Query 期望一次查询。
func Query(query string, rows Rows) Operation {
	return Operation{typ: opQuery, query: query, rows: rows}
}

// WithError 让该操作返回错误。
func (o Operation) WithError(err error) Operation {
	o.err = err
	return o
}

// WithArgs 校验调用参数。
func (o Operation) WithArgs(check func([]driver.NamedValue) error) Operation {
	o.args = check
	return o
}

// Driver 按顺序回放预期操作。
type Driver struct {
	ops []Operation
	idx atomic.Int32
}

var driverSeq atomic.Int32

// Open 注册一个新的驱动实例并返回连接池。
func Open(t *testing.T, ops ...Operation) (*sql.DB, *Driver) {
	t.Helper()

	drv := &Driver{ops: ops}
	name := fmt.Sprintf("sqlmock-%d", driverSeq.Add(1))
	sql.Register(name, drv)

	db, err := sql.Open(name, "")
	if err != nil {
		t.Fatalf("open mock db failed: %v", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	t.Cleanup(func() { db.Close() })
	return db, drv
}

// AssertConsumed 确认所有预期操作都已发生。
func (d *Driver) AssertConsumed(t *testing.T) {
	t.Helper()
	if got := int(d.idx.Load()); got != len(d.ops) {
		t.Fatalf("not all operations consumed: %d/%d", got, len(d.ops))
	}
}

// Open 实现 driver.Driver。
func (d *Driver) Open(string) (driver.Conn, error) {
	return &conn{driver: d}, nil
}

func (d *Driver) next(expected operationType, query string, args []driver.NamedValue) (*Operation, error) {
	idx := int(d.idx.Load())
	if idx >= len(d.ops) {
		return nil, fmt.Errorf("unexpected %s: %s", expected, normalize(query))
	}
	op := &d.ops[idx]
	if op.typ != expected {
		return nil, fmt.Errorf("expected %s, got %s", op.typ, expected)
	}
	d.idx.Add(1)
	if op.query != "" && normalize(op.query) != normalize(query) {
		return nil, fmt.Errorf("unexpected query. want %q got %q", normalize(op.query), normalize(query))
	}
	if op.args != nil {
		if err := op.args(args); err != nil {
			return nil, err
		}
	}
	return op, nil
}

type conn struct {
	driver *Driver
}

func (c *conn) Prepare(query string) (driver.Stmt, error) {
	return nil, fmt.Errorf("prepare not supported: %s", query)
}

func (c *conn) Close() error { return nil }

func (c *conn) Begin() (driver.Tx, error) {
	return nil, fmt.Errorf("transactions not supported")
}

func (c *conn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	op, err := c.driver.next(opExec, query, args)
	if err != nil {
		return nil, err
	}
	if op.err != nil {
		return nil, op.err
	}
	return op.result, nil
}

func (c *conn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	op, err := c.driver.next(opQuery, query, args)
	if err != nil {
		return nil, err
	}
	if op.err != nil {
		return nil, op.err
	}
	return &rows{columns: op.rows.Columns, values: op.rows.Values}, nil
}

func (c *conn) Ping(context.Context) error { return nil }

type rows struct {
	columns []string
	values  [][]driver.Value
	idx     int
}

func (r *rows) Columns() []string { return r.columns }
func (r *rows) Close() error      { return nil }

func (r *rows) Next(dest []driver.Value) error {
	if r.idx >= len(r.values) {
		return io.EOF
	}
	copy(dest, r.values[r.idx])
	r.idx++
	return nil
}

func normalize(query string) string {
	return strings.Join(strings.Fields(query), " ")
}
