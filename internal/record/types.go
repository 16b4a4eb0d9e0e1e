// Package record re-exports the host-table abstractions and opens the
// configured backend. Callers outside the backends depend on this package
// rather than on internal/infra/record.
package record

import (
	"metastore/internal/record/core"
)

type (
	// Driver identifies a record backend driver.
	Driver = core.Driver
	// Table is the interface for record storage backends.
	Table = core.Table
	// Handle is one record with metadata accessors.
	Handle = core.Handle
)

const (
	DriverMemory     = core.DriverMemory
	DriverSQLite     = core.DriverSQLite
	DriverPostgres   = core.DriverPostgres
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
)

var (
	// ErrNotFound indicates an unknown record id.
	ErrNotFound = core.ErrNotFound
	// ErrExists indicates a create collided with an existing id.
	ErrExists = core.ErrExists
	// ErrInvalidID indicates an id no backend can store.
	ErrInvalidID = core.ErrInvalidID
)
