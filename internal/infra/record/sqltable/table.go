// Package sqltable implements core.Table on top of database/sql. The sqlite
// and postgres backends supply a Dialect and share the statements below.
package sqltable

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"time"

	"metastore/internal/record/core"
)

// MetadataColumn is the attribute column holding the serialized document.
const MetadataColumn = "metadata"

const (
	createdColumn = "created_at"
	updatedColumn = "updated_at"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ErrInvalidTable is returned for table names that are not plain identifiers.
var ErrInvalidTable = errors.New("sqltable: invalid table name")

// Dialect captures the per-engine differences.
type Dialect struct {
	Driver core.Driver
	// Bind renders the n-th (1-based) positional parameter.
	Bind func(n int) string
	// MetadataType is the column type used for the metadata attribute.
	MetadataType string
	// ColumnsQuery lists a table's column names; it takes the table name as
	// its only parameter.
	ColumnsQuery string
	// AddColumn is a format string taking the table name and column type.
	AddColumn string
}

// Table is a core.Table over one SQL table.
type Table struct {
	db      *sql.DB
	name    string
	dialect Dialect
	now     func() time.Time
	// stamped is false for tables without created_at/updated_at columns.
	stamped bool
}

var _ core.Table = (*Table)(nil)

// New validates name and binds the table to db. It does not touch the schema.
func New(db *sql.DB, name string, dialect Dialect) (*Table, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	return &Table{db: db, name: name, dialect: dialect, now: time.Now, stamped: true}, nil
}

// ValidateName rejects table names that cannot be interpolated into SQL.
func ValidateName(name string) error {
	if !identPattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidTable, name)
	}
	return nil
}

// EnsureSchema creates the records table when missing and provisions the
// metadata column on tables created by other tools. Such tables must have a
// unique text id column; timestamps are only written when both created_at and
// updated_at exist.
func (t *Table) EnsureSchema(ctx context.Context) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		metadata %s NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`, t.name, t.dialect.MetadataType)
	if _, err := t.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("%s: create table %s: %w", t.dialect.Driver, t.name, err)
	}
	cols, err := columns(ctx, t.db, t.name, t.dialect)
	if err != nil {
		return err
	}
	if !slices.Contains(cols, MetadataColumn) {
		if err := addMetadataColumn(ctx, t.db, t.name, t.dialect); err != nil {
			return err
		}
	}
	t.stamped = slices.Contains(cols, createdColumn) && slices.Contains(cols, updatedColumn)
	return nil
}

// EnsureMetadataColumn adds a nullable metadata column to an existing table,
// reporting whether the column was added.
func EnsureMetadataColumn(ctx context.Context, db *sql.DB, table string, dialect Dialect) (bool, error) {
	if err := ValidateName(table); err != nil {
		return false, err
	}
	cols, err := columns(ctx, db, table, dialect)
	if err != nil {
		return false, err
	}
	if len(cols) == 0 {
		return false, fmt.Errorf("%s: table %s has no columns or does not exist", dialect.Driver, table)
	}
	if slices.Contains(cols, MetadataColumn) {
		return false, nil
	}
	if err := addMetadataColumn(ctx, db, table, dialect); err != nil {
		return false, err
	}
	return true, nil
}

func addMetadataColumn(ctx context.Context, db *sql.DB, table string, dialect Dialect) error {
	stmt := fmt.Sprintf(dialect.AddColumn, table, dialect.MetadataType)
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("%s: add metadata column to %s: %w", dialect.Driver, table, err)
	}
	return nil
}

func columns(ctx context.Context, db *sql.DB, table string, dialect Dialect) (cols []string, retErr error) {
	rows, err := db.QueryContext(ctx, dialect.ColumnsQuery, table)
	if err != nil {
		return nil, fmt.Errorf("%s: inspect %s: %w", dialect.Driver, table, err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil && retErr == nil {
			retErr = cerr
		}
	}()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("%s: scan column: %w", dialect.Driver, err)
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

// DB exposes the underlying handle.
func (t *Table) DB() *sql.DB { return t.db }

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// Driver returns the record driver identifier.
func (t *Table) Driver() core.Driver { return t.dialect.Driver }

// Close closes the database handle.
func (t *Table) Close() error { return t.db.Close() }

// Create inserts a record under a generated id.
func (t *Table) Create(ctx context.Context) (*core.Handle, error) {
	return t.CreateWithID(ctx, core.NewID())
}

// CreateWithID inserts a record with NULL metadata.
func (t *Table) CreateWithID(ctx context.Context, id string) (*core.Handle, error) {
	if err := core.ValidateID(id); err != nil {
		return nil, err
	}
	stmt := fmt.Sprintf(`INSERT INTO %s (id, metadata) VALUES (%s, NULL) ON CONFLICT (id) DO NOTHING`, t.name, t.bind(1))
	args := []any{id}
	if t.stamped {
		stamp := t.stamp()
		stmt = fmt.Sprintf(`INSERT INTO %s (id, metadata, created_at, updated_at) VALUES (%s, NULL, %s, %s) ON CONFLICT (id) DO NOTHING`,
			t.name, t.bind(1), t.bind(2), t.bind(3))
		args = append(args, stamp, stamp)
	}
	res, err := t.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: create %s: %w", t.dialect.Driver, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("%s: create %s: %w", t.dialect.Driver, id, err)
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: %s", core.ErrExists, id)
	}
	return t.handle(id), nil
}

// Open returns a handle on an existing record.
func (t *Table) Open(ctx context.Context, id string) (*core.Handle, error) {
	stmt := fmt.Sprintf(`SELECT id FROM %s WHERE id = %s`, t.name, t.bind(1))
	var found string
	err := t.db.QueryRowContext(ctx, stmt, id).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: open %s: %w", t.dialect.Driver, id, err)
	}
	return t.handle(id), nil
}

// List returns record ids in ascending order.
func (t *Table) List(ctx context.Context) (ids []string, retErr error) {
	rows, err := t.db.QueryContext(ctx, fmt.Sprintf(`SELECT id FROM %s ORDER BY id`, t.name))
	if err != nil {
		return nil, fmt.Errorf("%s: list: %w", t.dialect.Driver, err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil && retErr == nil {
			retErr = cerr
		}
	}()
	ids = []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%s: scan id: %w", t.dialect.Driver, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Drop deletes a record, reporting whether it existed.
func (t *Table) Drop(ctx context.Context, id string) (bool, error) {
	res, err := t.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = %s`, t.name, t.bind(1)), id)
	if err != nil {
		return false, fmt.Errorf("%s: drop %s: %w", t.dialect.Driver, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: drop %s: %w", t.dialect.Driver, id, err)
	}
	return n > 0, nil
}

func (t *Table) bind(n int) string { return t.dialect.Bind(n) }

func (t *Table) stamp() string { return t.now().UTC().Format(time.RFC3339Nano) }

func (t *Table) handle(id string) *core.Handle {
	return core.NewHandle(id, row{table: t, id: id})
}

type row struct {
	table *Table
	id    string
}

func (r row) LoadMetadata(ctx context.Context) (string, bool, error) {
	t := r.table
	stmt := fmt.Sprintf(`SELECT metadata FROM %s WHERE id = %s`, t.name, t.bind(1))
	var raw sql.NullString
	err := t.db.QueryRowContext(ctx, stmt, r.id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, fmt.Errorf("%w: %s", core.ErrNotFound, r.id)
	}
	if err != nil {
		return "", false, fmt.Errorf("%s: load %s: %w", t.dialect.Driver, r.id, err)
	}
	if !raw.Valid {
		return "", false, nil
	}
	return raw.String, true, nil
}

func (r row) SaveMetadata(ctx context.Context, raw string) error {
	t := r.table
	stmt := fmt.Sprintf(`UPDATE %s SET metadata = %s WHERE id = %s`, t.name, t.bind(1), t.bind(2))
	args := []any{raw, r.id}
	if t.stamped {
		stmt = fmt.Sprintf(`UPDATE %s SET metadata = %s, updated_at = %s WHERE id = %s`,
			t.name, t.bind(1), t.bind(2), t.bind(3))
		args = []any{raw, t.stamp(), r.id}
	}
	res, err := t.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("%s: save %s: %w", t.dialect.Driver, r.id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: save %s: %w", t.dialect.Driver, r.id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", core.ErrNotFound, r.id)
	}
	return nil
}
