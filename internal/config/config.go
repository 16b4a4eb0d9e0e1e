// Package config loads metastore settings from an optional YAML file overlaid
// by METASTORE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"metastore/internal/record/core"
)

// Default values applied after the file and environment are read.
const (
	DefaultDriver      = core.DriverSQLite
	DefaultSQLitePath  = "./metastore.db"
	DefaultTable       = "records"
	DefaultPostgresDSN = "postgres://localhost/metastore?sslmode=disable"
	DefaultFSRoot      = "./metadata"
	DefaultS3Region    = "us-east-1"
	DefaultS3Prefix    = "records/"
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "text"
)

// EnvConfigPath names the environment variable holding a config file path.
const EnvConfigPath = "METASTORE_CONFIG"

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Config is the full application configuration.
type Config struct {
	Storage Storage `yaml:"storage"`
	Log     Log     `yaml:"log"`
}

// Storage selects and parameterizes the record backend.
type Storage struct {
	Driver   core.Driver `yaml:"driver"`
	SQLite   SQLite      `yaml:"sqlite"`
	Postgres Postgres    `yaml:"postgres"`
	FS       FS          `yaml:"fs"`
	S3       S3          `yaml:"s3"`
}

type SQLite struct {
	Path  string `yaml:"path"`
	Table string `yaml:"table"`
}

type Postgres struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

type FS struct {
	Root string `yaml:"root"`
}

type S3 struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	Prefix    string `yaml:"prefix"`
	PathStyle bool   `yaml:"path_style"`
}

// Log configures the process logger.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads path (skipped when empty), applies the process environment,
// fills defaults and validates the result.
func Load(path string) (Config, error) {
	return LoadWith(path, os.LookupEnv)
}

// LoadWith is Load with an explicit environment lookup.
func LoadWith(path string, lookup func(string) (string, bool)) (Config, error) {
	var cfg Config
	if path == "" {
		path, _ = lookup(EnvConfigPath)
	}
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: open %s: %w", path, err)
		}
		defer func() { _ = f.Close() }()
		if cfg, err = Decode(f); err != nil {
			return Config{}, fmt.Errorf("config: %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return Config{}, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Decode parses a YAML document, rejecting unknown keys. An empty document
// yields the zero Config.
func Decode(r io.Reader) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode yaml: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	if v, ok := lookup("METASTORE_STORAGE_DRIVER"); ok && v != "" {
		c.Storage.Driver = core.Driver(strings.ToLower(v))
	}
	if v, ok := lookup("METASTORE_TABLE"); ok && v != "" {
		c.Storage.SQLite.Table = v
		c.Storage.Postgres.Table = v
	}
	str("METASTORE_SQLITE_PATH", &c.Storage.SQLite.Path)
	str("METASTORE_POSTGRES_DSN", &c.Storage.Postgres.DSN)
	str("METASTORE_FS_ROOT", &c.Storage.FS.Root)
	str("METASTORE_S3_BUCKET", &c.Storage.S3.Bucket)
	str("METASTORE_S3_REGION", &c.Storage.S3.Region)
	str("METASTORE_S3_ENDPOINT", &c.Storage.S3.Endpoint)
	str("METASTORE_S3_PREFIX", &c.Storage.S3.Prefix)
	if v, ok := lookup("METASTORE_S3_PATH_STYLE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: METASTORE_S3_PATH_STYLE=%q", ErrInvalid, v)
		}
		c.Storage.S3.PathStyle = b
	}
	str("METASTORE_LOG_LEVEL", &c.Log.Level)
	str("METASTORE_LOG_FORMAT", &c.Log.Format)
	return nil
}

func (c *Config) applyDefaults() {
	setDefault(&c.Storage.SQLite.Path, DefaultSQLitePath)
	setDefault(&c.Storage.SQLite.Table, DefaultTable)
	setDefault(&c.Storage.Postgres.DSN, DefaultPostgresDSN)
	setDefault(&c.Storage.Postgres.Table, DefaultTable)
	setDefault(&c.Storage.FS.Root, DefaultFSRoot)
	setDefault(&c.Storage.S3.Region, DefaultS3Region)
	setDefault(&c.Storage.S3.Prefix, DefaultS3Prefix)
	setDefault(&c.Log.Level, DefaultLogLevel)
	setDefault(&c.Log.Format, DefaultLogFormat)
	if c.Storage.Driver == "" {
		c.Storage.Driver = DefaultDriver
	}
}

func setDefault(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case core.DriverMemory, core.DriverSQLite, core.DriverPostgres, core.DriverFilesystem:
	case core.DriverS3:
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("%w: storage.s3.bucket required for s3 driver", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown storage driver %q", ErrInvalid, c.Storage.Driver)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: unknown log level %q", ErrInvalid, c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrInvalid, c.Log.Format)
	}
	return nil
}
