// Package s3 stores each record as one object in an S3 / MinIO bucket.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"metastore/internal/record/core"
)

const (
	// DefaultRegion is used when no region is configured.
	DefaultRegion = "us-east-1"
	// DefaultPrefix is prepended to every object key when none is configured.
	DefaultPrefix = "records/"
	ext           = ".json"
	contentType   = "application/json"
)

// Store implements core.Table on a single bucket. A record is the object
// <prefix><id>.json; an empty body means the record's metadata is absent.
type Store struct {
	client *s3.Client
	bucket string
	prefix string
}

var _ core.Table = (*Store)(nil)

// Config holds explicit construction parameters. Empty credentials fall back
// to the default AWS credential chain.
type Config struct {
	Region          string
	Bucket          string
	Prefix          string
	Endpoint        string // optional; enables a custom endpoint such as MinIO
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	PathStyle       bool
}

// Environment variables read by OpenFromEnv:
//   METASTORE_S3_BUCKET=<bucket> (required)
//   METASTORE_S3_REGION=<region> (default us-east-1)
//   METASTORE_S3_PREFIX=<key prefix> (default records/)
//   METASTORE_S3_ENDPOINT=<url> (optional, for MinIO)
//   METASTORE_S3_PATH_STYLE=true|false (default false)
//   AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY / AWS_SESSION_TOKEN (optional)

// New creates an S3 record table from cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = DefaultRegion
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3: load config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return newStore(client, cfg.Bucket, cfg.Prefix), nil
}

func newStore(client *s3.Client, bucket, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, bucket: bucket, prefix: prefix}
}

// ConfigFromEnv reads Config from the process environment.
func ConfigFromEnv() Config {
	return Config{
		Bucket:          os.Getenv("METASTORE_S3_BUCKET"),
		Region:          os.Getenv("METASTORE_S3_REGION"),
		Prefix:          os.Getenv("METASTORE_S3_PREFIX"),
		Endpoint:        os.Getenv("METASTORE_S3_ENDPOINT"),
		PathStyle:       strings.EqualFold(os.Getenv("METASTORE_S3_PATH_STYLE"), "true"),
		AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
	}
}

// OpenFromEnv constructs an S3 table from process environment.
func OpenFromEnv(ctx context.Context) (*Store, error) {
	cfg := ConfigFromEnv()
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("METASTORE_S3_BUCKET required for s3 driver")
	}
	return New(ctx, cfg)
}

// Driver returns the record driver identifier.
func (s *Store) Driver() core.Driver { return core.DriverS3 }

// Close is a no-op.
func (s *Store) Close() error { return nil }

// Bucket returns the bucket holding record objects.
func (s *Store) Bucket() string { return s.bucket }

func (s *Store) keyFor(id string) string { return s.prefix + id + ext }

// Create inserts a record under a generated id.
func (s *Store) Create(ctx context.Context) (*core.Handle, error) {
	return s.CreateWithID(ctx, core.NewID())
}

// CreateWithID writes an empty object for id. Existence is checked with a
// HEAD first, so two concurrent creators of one id may both succeed.
func (s *Store) CreateWithID(ctx context.Context, id string) (*core.Handle, error) {
	if err := core.ValidateID(id); err != nil {
		return nil, err
	}
	exists, err := s.exists(ctx, id)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", core.ErrExists, id)
	}
	if err := s.put(ctx, id, nil); err != nil {
		return nil, fmt.Errorf("s3: create %s: %w", id, err)
	}
	return s.handle(id), nil
}

// Open returns a handle on an existing record.
func (s *Store) Open(ctx context.Context, id string) (*core.Handle, error) {
	if err := core.ValidateID(id); err != nil {
		return nil, fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}
	exists, err := s.exists(ctx, id)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}
	return s.handle(id), nil
}

// List returns record ids in lexical order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	ids := []string{}
	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{Bucket: &s.bucket, Prefix: &s.prefix, ContinuationToken: token})
		if err != nil {
			return nil, fmt.Errorf("s3: list: %w", err)
		}
		for _, obj := range out.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), s.prefix)
			if strings.Contains(name, "/") || !strings.HasSuffix(name, ext) {
				continue
			}
			ids = append(ids, strings.TrimSuffix(name, ext))
		}
		if aws.ToBool(out.IsTruncated) && out.NextContinuationToken != nil {
			token = out.NextContinuationToken
			continue
		}
		break
	}
	sort.Strings(ids)
	return ids, nil
}

// Drop deletes the record object, reporting whether it existed.
func (s *Store) Drop(ctx context.Context, id string) (bool, error) {
	if core.ValidateID(id) != nil {
		return false, nil
	}
	exists, err := s.exists(ctx, id)
	if err != nil || !exists {
		return false, err
	}
	key := s.keyFor(id)
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &s.bucket, Key: &key}); err != nil {
		return false, fmt.Errorf("s3: drop %s: %w", id, err)
	}
	return true, nil
}

func (s *Store) exists(ctx context.Context, id string) (bool, error) {
	key := s.keyFor(id)
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &s.bucket, Key: &key})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("s3: head %s: %w", id, err)
}

func (s *Store) put(ctx context.Context, id string, body []byte) error {
	key := s.keyFor(id)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &s.bucket,
		Key:           &key,
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String(contentType),
	})
	return err
}

func isNotFound(err error) bool {
	var re *awshttp.ResponseError
	return errors.As(err, &re) && re.HTTPStatusCode() == http.StatusNotFound
}

func (s *Store) handle(id string) *core.Handle {
	return core.NewHandle(id, row{store: s, id: id})
}

type row struct {
	store *Store
	id    string
}

func (r row) LoadMetadata(ctx context.Context) (string, bool, error) {
	s := r.store
	key := s.keyFor(r.id)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &key})
	if isNotFound(err) {
		return "", false, fmt.Errorf("%w: %s", core.ErrNotFound, r.id)
	}
	if err != nil {
		return "", false, fmt.Errorf("s3: load %s: %w", r.id, err)
	}
	defer func() { _ = out.Body.Close() }()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return "", false, fmt.Errorf("s3: read %s: %w", r.id, err)
	}
	if len(data) == 0 {
		return "", false, nil
	}
	return string(data), true, nil
}

func (r row) SaveMetadata(ctx context.Context, raw string) error {
	exists, err := r.store.exists(ctx, r.id)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", core.ErrNotFound, r.id)
	}
	if err := r.store.put(ctx, r.id, []byte(raw)); err != nil {
		return fmt.Errorf("s3: save %s: %w", r.id, err)
	}
	return nil
}
