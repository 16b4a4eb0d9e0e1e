// Package core defines the host-table abstractions shared by record storage
// backends. A Table owns records; each record carries one nullable JSON
// metadata attribute that pkg/meta reads and writes.
package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"metastore/pkg/meta"
)

// Driver identifies a concrete record storage backend implementation.
type Driver string

const (
	// DriverMemory represents the in-process implementation used in tests.
	DriverMemory Driver = "memory"
	// DriverSQLite represents the embedded sqlite implementation.
	DriverSQLite Driver = "sqlite"
	// DriverPostgres represents the PostgreSQL implementation.
	DriverPostgres Driver = "postgres"
	// DriverFilesystem represents the one-file-per-record implementation.
	DriverFilesystem Driver = "fs"
	// DriverS3 represents an S3 / MinIO compatible implementation.
	DriverS3 Driver = "s3"
)

var (
	// ErrNotFound is returned when a record id does not exist.
	ErrNotFound = errors.New("record: not found")
	// ErrExists is returned when creating a record whose id is taken.
	ErrExists = errors.New("record: already exists")
	// ErrInvalidID is returned for ids a backend cannot store.
	ErrInvalidID = errors.New("record: invalid id")
)

// Table stores host records. Implementations must be safe for concurrent
// use; they make no compare-and-swap guarantee across calls.
type Table interface {
	// Create inserts a record with absent metadata and a generated id.
	Create(ctx context.Context) (*Handle, error)
	// CreateWithID inserts a record with absent metadata under id.
	CreateWithID(ctx context.Context, id string) (*Handle, error)
	// Open returns a handle on an existing record or ErrNotFound.
	Open(ctx context.Context, id string) (*Handle, error)
	// List returns all record ids in a stable order.
	List(ctx context.Context) ([]string, error)
	// Drop removes a record, reporting whether it existed.
	Drop(ctx context.Context, id string) (bool, error)
	Driver() Driver
	Close() error
}

// Handle is one host record: its id plus the metadata attribute accessors.
// Handle implements meta.Record.
type Handle struct {
	id     string
	record meta.Record
}

// NewHandle binds id to the backend record accessor.
func NewHandle(id string, record meta.Record) *Handle {
	return &Handle{id: id, record: record}
}

// ID returns the record identifier.
func (h *Handle) ID() string { return h.id }

// PrimaryKey lets a Handle scope another record's metadata via
// meta.Store.PrefixWith.
func (h *Handle) PrimaryKey() any { return h.id }

// LoadMetadata implements meta.Record.
func (h *Handle) LoadMetadata(ctx context.Context) (string, bool, error) {
	return h.record.LoadMetadata(ctx)
}

// SaveMetadata implements meta.Record.
func (h *Handle) SaveMetadata(ctx context.Context, raw string) error {
	return h.record.SaveMetadata(ctx, raw)
}

// Meta returns a path accessor over the record's metadata.
func (h *Handle) Meta(opts ...meta.Option) *meta.Store {
	return meta.New(h, opts...)
}

// NewID returns a fresh record identifier.
func NewID() string {
	return uuid.NewString()
}

// ValidateID rejects ids that cannot be stored safely by every backend.
func ValidateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidID)
	}
	if strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}
