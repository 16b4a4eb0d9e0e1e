// Package testutil provides an in-memory database/sql driver that understands
// the statements issued by the postgres record backend.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// StubConn records normalized statements and keeps table contents in memory.
type StubConn struct {
	mu        sync.Mutex
	Execs     []string
	Tables    map[string]*StubTable
	FailPing  bool
	FailExec  bool
	FailQuery bool
}

// StubTable is one table: its column names and rows keyed by id.
type StubTable struct {
	Columns []string
	Rows    map[string]map[string]any
}

var registered atomic.Int64

// NewStubDB registers a sql.DB backed by a fresh stub connection.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{Tables: make(map[string]*StubTable)}
	name := fmt.Sprintf("stubpg%d", registered.Add(1))
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

// AddTable seeds a table with the given columns and no rows.
func (c *StubConn) AddTable(name string, columns ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Tables[strings.ToLower(name)] = &StubTable{Columns: columns, Rows: make(map[string]map[string]any)}
}

// Row returns a copy of the row stored under id.
func (c *StubConn) Row(table, id string) (map[string]any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tbl, ok := c.Tables[strings.ToLower(table)]
	if !ok {
		return nil, false
	}
	row, ok := tbl.Rows[id]
	if !ok {
		return nil, false
	}
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out, true
}

type stubDriver struct {
	conn *StubConn
}

func (d *stubDriver) Open(string) (driver.Conn, error) {
	return d.conn, nil
}

// Prepare implements driver.Conn.
func (c *StubConn) Prepare(string) (driver.Stmt, error) { return nil, fmt.Errorf("not implemented") }

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) { return nil, fmt.Errorf("transactions not supported") }

// Ping implements driver.Pinger.
func (c *StubConn) Ping(context.Context) error {
	if c.FailPing {
		return fmt.Errorf("ping fail")
	}
	return nil
}

// ExecContext implements driver.ExecerContext.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	query = normalize(query)
	c.Execs = append(c.Execs, query)
	if c.FailExec {
		return nil, fmt.Errorf("exec fail")
	}
	fields := strings.Fields(query)
	upper := strings.ToUpper(query)
	switch {
	case strings.HasPrefix(upper, "CREATE TABLE IF NOT EXISTS "):
		name := strings.ToLower(fields[5])
		if _, ok := c.Tables[name]; !ok {
			c.Tables[name] = &StubTable{
				Columns: []string{"id", "metadata", "created_at", "updated_at"},
				Rows:    make(map[string]map[string]any),
			}
		}
		return driver.RowsAffected(0), nil
	case strings.HasPrefix(upper, "ALTER TABLE "):
		tbl, err := c.table(fields[2])
		if err != nil {
			return nil, err
		}
		col := fields[len(fields)-3]
		if !slices.Contains(tbl.Columns, col) {
			tbl.Columns = append(tbl.Columns, col)
		}
		return driver.RowsAffected(0), nil
	case strings.HasPrefix(upper, "INSERT INTO "):
		tbl, err := c.table(fields[2])
		if err != nil {
			return nil, err
		}
		if len(args) != 3 {
			return nil, fmt.Errorf("insert expects 3 args, got %d", len(args))
		}
		id := fmt.Sprint(args[0].Value)
		if _, exists := tbl.Rows[id]; exists {
			return driver.RowsAffected(0), nil
		}
		tbl.Rows[id] = map[string]any{"id": id, "metadata": nil, "created_at": args[1].Value, "updated_at": args[2].Value}
		return driver.RowsAffected(1), nil
	case strings.HasPrefix(upper, "UPDATE "):
		tbl, err := c.table(fields[1])
		if err != nil {
			return nil, err
		}
		if len(args) != 3 {
			return nil, fmt.Errorf("update expects 3 args, got %d", len(args))
		}
		row, ok := tbl.Rows[fmt.Sprint(args[2].Value)]
		if !ok {
			return driver.RowsAffected(0), nil
		}
		row["metadata"] = args[0].Value
		row["updated_at"] = args[1].Value
		return driver.RowsAffected(1), nil
	case strings.HasPrefix(upper, "DELETE FROM "):
		tbl, err := c.table(fields[2])
		if err != nil {
			return nil, err
		}
		id := fmt.Sprint(args[0].Value)
		if _, ok := tbl.Rows[id]; !ok {
			return driver.RowsAffected(0), nil
		}
		delete(tbl.Rows, id)
		return driver.RowsAffected(1), nil
	}
	return nil, fmt.Errorf("unsupported statement: %s", query)
}

// QueryContext implements driver.QueryerContext.
func (c *StubConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	query = normalize(query)
	if c.FailQuery {
		return nil, fmt.Errorf("query fail")
	}
	fields := strings.Fields(query)
	lower := strings.ToLower(query)
	if strings.Contains(lower, "information_schema.columns") {
		var rows [][]driver.Value
		if tbl, ok := c.Tables[strings.ToLower(fmt.Sprint(args[0].Value))]; ok {
			for _, col := range tbl.Columns {
				rows = append(rows, []driver.Value{col})
			}
		}
		return &stubRows{cols: []string{"column_name"}, rows: rows}, nil
	}
	if len(fields) < 4 || !strings.EqualFold(fields[0], "SELECT") || !strings.EqualFold(fields[2], "FROM") {
		return nil, fmt.Errorf("unsupported query: %s", query)
	}
	col := strings.ToLower(fields[1])
	tbl, err := c.table(fields[3])
	if err != nil {
		return nil, err
	}
	var ids []string
	if strings.Contains(lower, " where id = ") {
		id := fmt.Sprint(args[0].Value)
		if _, ok := tbl.Rows[id]; ok {
			ids = append(ids, id)
		}
	} else {
		for id := range tbl.Rows {
			ids = append(ids, id)
		}
		sort.Strings(ids)
	}
	rows := make([][]driver.Value, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, []driver.Value{tbl.Rows[id][col]})
	}
	return &stubRows{cols: []string{col}, rows: rows}, nil
}

func (c *StubConn) table(name string) (*StubTable, error) {
	tbl, ok := c.Tables[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("relation %q does not exist", name)
	}
	return tbl, nil
}

func normalize(query string) string {
	return strings.Join(strings.Fields(query), " ")
}

type stubRows struct {
	cols []string
	rows [][]driver.Value
	idx  int
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}
