// Package postgres stores records in a PostgreSQL table through the pgx
// database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"metastore/internal/infra/record/sqltable"
	"metastore/internal/record/core"
)

const (
	defaultDriver = "pgx"
	// DefaultDSN is used when no DSN is configured.
	DefaultDSN = "postgres://localhost/metastore?sslmode=disable"
	// DefaultTable is the records table name used when none is configured.
	DefaultTable = "records"
)

// Dialect describes PostgreSQL to the shared table implementation. The
// metadata column is json rather than jsonb so stored key order survives.
var Dialect = sqltable.Dialect{
	Driver:       core.DriverPostgres,
	Bind:         func(n int) string { return "$" + strconv.Itoa(n) },
	MetadataType: "JSON",
	ColumnsQuery: `SELECT column_name FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = $1`,
	AddColumn:    `ALTER TABLE %s ADD COLUMN IF NOT EXISTS metadata %s NULL`,
}

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store is a records table inside a PostgreSQL database.
type Store struct {
	*sqltable.Table
}

var _ core.Table = (*Store)(nil)

// Open connects using dsn (falls back to DefaultDSN), pings the server and
// provisions table.
func Open(ctx context.Context, dsn, table string) (*Store, error) {
	if table == "" {
		table = DefaultTable
	}
	if err := sqltable.ValidateName(table); err != nil {
		return nil, err
	}
	db, err := OpenDB(ctx, dsn)
	if err != nil {
		return nil, err
	}
	tbl, err := sqltable.New(db, table, Dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := tbl.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{Table: tbl}, nil
}

// OpenDB opens and pings a raw handle.
func OpenDB(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// EnsureMetadataColumn adds the nullable metadata column to an existing table.
func EnsureMetadataColumn(ctx context.Context, db *sql.DB, table string) (bool, error) {
	return sqltable.EnsureMetadataColumn(ctx, db, table, Dialect)
}

// OverrideSQLOpen swaps the sql.Open implementation for tests and returns a
// restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	prev := sqlOpen
	sqlOpen = fn
	openMu.Unlock()
	return func() {
		openMu.Lock()
		sqlOpen = prev
		openMu.Unlock()
	}
}
