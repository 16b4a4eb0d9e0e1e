// Package sqlite stores records in an embedded SQLite database file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"metastore/internal/infra/record/sqltable"
	"metastore/internal/record/core"
)

const (
	driverName = "sqlite"
	// DefaultPath is used when no database path is configured.
	DefaultPath = "metastore.db"
	// DefaultTable is the records table name used when none is configured.
	DefaultTable = "records"
)

// Dialect describes SQLite to the shared table implementation.
var Dialect = sqltable.Dialect{
	Driver:       core.DriverSQLite,
	Bind:         func(int) string { return "?" },
	MetadataType: "TEXT",
	ColumnsQuery: `SELECT name FROM pragma_table_info(?)`,
	AddColumn:    `ALTER TABLE %s ADD COLUMN metadata %s NULL`,
}

var sqlOpen = sql.Open

// Store is a records table inside one SQLite file.
type Store struct {
	*sqltable.Table
	path string
}

var _ core.Table = (*Store)(nil)

// Open opens (creating when needed) the database at path and provisions table.
func Open(ctx context.Context, path, table string) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if table == "" {
		table = DefaultTable
	}
	if err := sqltable.ValidateName(table); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := OpenDB(path)
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
	return &Store{Table: tbl, path: path}, nil
}

// OpenDB opens a raw handle on the database file. SQLite serializes writers,
// so the pool is capped at one connection.
func OpenDB(path string) (*sql.DB, error) {
	db, err := sqlOpen(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// EnsureMetadataColumn adds the nullable metadata column to an existing table.
func EnsureMetadataColumn(ctx context.Context, db *sql.DB, table string) (bool, error) {
	return sqltable.EnsureMetadataColumn(ctx, db, table, Dialect)
}

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
