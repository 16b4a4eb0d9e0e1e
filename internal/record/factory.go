package record

import (
	"context"
	"errors"
	"fmt"

	"metastore/internal/config"
	"metastore/internal/infra/record/fs"
	"metastore/internal/infra/record/memory"
	"metastore/internal/infra/record/postgres"
	"metastore/internal/infra/record/s3"
	"metastore/internal/infra/record/sqlite"
)

// ErrUnsupported is returned by Provision for drivers without a schema.
var ErrUnsupported = errors.New("record: operation not supported by driver")

// Open builds the Table selected by cfg.Driver.
func Open(ctx context.Context, cfg config.Storage) (Table, error) {
	switch cfg.Driver {
	case DriverMemory:
		return memory.New(), nil
	case DriverSQLite, "":
		return sqlite.Open(ctx, cfg.SQLite.Path, cfg.SQLite.Table)
	case DriverPostgres:
		return postgres.Open(ctx, cfg.Postgres.DSN, cfg.Postgres.Table)
	case DriverFilesystem:
		return fs.New(cfg.FS.Root)
	case DriverS3:
		return s3.New(ctx, s3.Config{
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			Prefix:    cfg.S3.Prefix,
			PathStyle: cfg.S3.PathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown record driver %s", cfg.Driver)
	}
}

// Provision adds a nullable metadata column to an existing SQL table that
// was not created by this package, reporting whether the column was added.
func Provision(ctx context.Context, cfg config.Storage, table string) (bool, error) {
	switch cfg.Driver {
	case DriverSQLite, "":
		db, err := sqlite.OpenDB(cfg.SQLite.Path)
		if err != nil {
			return false, err
		}
		defer func() { _ = db.Close() }()
		return sqlite.EnsureMetadataColumn(ctx, db, table)
	case DriverPostgres:
		db, err := postgres.OpenDB(ctx, cfg.Postgres.DSN)
		if err != nil {
			return false, err
		}
		defer func() { _ = db.Close() }()
		return postgres.EnsureMetadataColumn(ctx, db, table)
	default:
		return false, fmt.Errorf("%w: provision on %s", ErrUnsupported, cfg.Driver)
	}
}
