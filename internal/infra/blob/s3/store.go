// Package s3 keeps each blob as one object in an S3-compatible bucket (AWS S3 or MinIO).
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/atomic"

	"blobstore/internal/blob/core"
)

// Store implements core.Store on a single bucket. Keys are Path.Key() under an
// optional prefix; List returns metadata only.
type Store struct {
	client *s3.Client
	bucket string
	prefix string
	closed atomic.Bool
	log    *slog.Logger
}

// Config holds explicit construction parameters. For prod we rely primarily on
// environment variables.
type Config struct {
	Region          string
	Bucket          string
	Prefix          string // optional key prefix, e.g. "blobs/"
	Endpoint        string // optional; if set enables custom endpoint (e.g. MinIO)
	AccessKeyID     string // optional (falls back to default credentials chain)
	SecretAccessKey string // optional
	SessionToken    string // optional
	PathStyle       bool
}

// Environment variables:
//   BLOBSTORE_BLOB_S3_BUCKET=<bucket> (required)
//   BLOBSTORE_BLOB_S3_REGION=<region> (default us-east-1)
//   BLOBSTORE_BLOB_S3_PREFIX=<prefix> (optional)
//   BLOBSTORE_BLOB_S3_ENDPOINT=<url> (optional, for MinIO)
//   BLOBSTORE_BLOB_S3_PATH_STYLE=true|false (default false)
//   AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY / AWS_SESSION_TOKEN (optional)

// New creates an S3 blob store from Config.
func New(ctx context.Context, cfg Config, log *slog.Logger) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, core.E(core.KindInit, "init", "s3 bucket required", nil)
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, core.E(core.KindInit, "init", "load aws config", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return newStore(client, cfg.Bucket, cfg.Prefix, log), nil
}

func newStore(client *s3.Client, bucket, prefix string, log *slog.Logger) *Store {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	log.Info("s3 store configured", slog.String("bucket", bucket), slog.String("prefix", prefix))
	return &Store{client: client, bucket: bucket, prefix: prefix, log: log}
}

// ConfigFromEnv reads the BLOBSTORE_BLOB_S3_* variables.
func ConfigFromEnv() (Config, error) {
	bucket := os.Getenv("BLOBSTORE_BLOB_S3_BUCKET")
	if bucket == "" {
		return Config{}, core.E(core.KindInit, "init", "BLOBSTORE_BLOB_S3_BUCKET required for s3 driver", nil)
	}
	return Config{
		Bucket:    bucket,
		Region:    os.Getenv("BLOBSTORE_BLOB_S3_REGION"),
		Prefix:    os.Getenv("BLOBSTORE_BLOB_S3_PREFIX"),
		Endpoint:  os.Getenv("BLOBSTORE_BLOB_S3_ENDPOINT"),
		PathStyle: strings.EqualFold(os.Getenv("BLOBSTORE_BLOB_S3_PATH_STYLE"), "true"),
	}, nil
}

// Driver returns the blob driver identifier.
func (s *Store) Driver() core.Driver { return core.DriverS3 }

// Bucket returns the configured bucket name.
func (s *Store) Bucket() string { return s.bucket }

func (s *Store) objectKey(path core.Path, op string) (string, string, error) {
	key, err := path.Key()
	if err != nil {
		return "", "", opErr(err, op)
	}
	if s.closed.Load() {
		return "", "", core.E(core.KindUnavailable, op, "s3 store is closed", nil)
	}
	return key, s.prefix + key, nil
}

// classify maps SDK failures onto blob error kinds.
func classify(op, key string, err error) error {
	var re *awshttp.ResponseError
	if errors.As(err, &re) {
		switch code := re.HTTPStatusCode(); {
		case code == http.StatusNotFound:
			return core.NotFound(op, key)
		case code == http.StatusPreconditionFailed || code == http.StatusConflict:
			return core.E(core.KindConflict, op, "blob "+key+" already exists", err)
		case code == http.StatusServiceUnavailable || code == http.StatusTooManyRequests:
			return core.E(core.KindUnavailable, op, "s3 unavailable", err)
		default:
			return core.E(core.KindIO, op, fmt.Sprintf("s3 responded %d", code), err)
		}
	}
	return core.E(core.KindUnavailable, op, "s3 request failed", err)
}

// List pages through ListObjectsV2 and returns one metadata-only blob per object.
func (s *Store) List(ctx context.Context) ([]core.Blob, error) {
	if s.closed.Load() {
		return nil, core.E(core.KindUnavailable, "list", "s3 store is closed", nil)
	}
	input := &s3.ListObjectsV2Input{Bucket: &s.bucket}
	if s.prefix != "" {
		input.Prefix = aws.String(s.prefix)
	}
	out := []core.Blob{}
	pages := s3.NewListObjectsV2Paginator(s.client, input)
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, classify("list", s.prefix, err)
		}
		for _, obj := range page.Contents {
			out = append(out, core.Blob{Location: strings.TrimPrefix(aws.ToString(obj.Key), s.prefix)})
		}
	}
	s.log.Debug("listed objects", slog.Int("count", len(out)))
	return out, nil
}

// Get downloads the whole object.
func (s *Store) Get(ctx context.Context, path core.Path) (core.Blob, error) {
	key, obj, err := s.objectKey(path, "get")
	if err != nil {
		return core.Blob{}, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &obj})
	if err != nil {
		return core.Blob{}, classify("get", key, err)
	}
	defer func() { _ = out.Body.Close() }()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return core.Blob{}, core.E(core.KindIO, "get", "read object body", err)
	}
	if data == nil {
		data = []byte{}
	}
	return core.NewBlob(key, data), nil
}

func (s *Store) put(ctx context.Context, op, key, obj string, contents []byte, exclusive bool) (core.Blob, error) {
	input := &s3.PutObjectInput{
		Bucket:        &s.bucket,
		Key:           &obj,
		Body:          bytes.NewReader(contents),
		ContentLength: aws.Int64(int64(len(contents))),
		ContentType:   aws.String("application/octet-stream"),
	}
	if exclusive {
		input.IfNoneMatch = aws.String("*")
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return core.Blob{}, classify(op, key, err)
	}
	s.log.Debug("put object", slog.String("key", obj), slog.Int("size", len(contents)), slog.Bool("exclusive", exclusive))
	if contents == nil {
		contents = []byte{}
	}
	return core.NewBlob(key, contents), nil
}

// Create writes the object unconditionally.
func (s *Store) Create(ctx context.Context, blob core.Blob, path core.Path) (core.Blob, error) {
	key, obj, err := s.objectKey(path, "create")
	if err != nil {
		return core.Blob{}, err
	}
	return s.put(ctx, "create", key, obj, blob.Contents, false)
}

// CreateIfAbsent writes with If-None-Match: * so the bucket rejects existing keys.
func (s *Store) CreateIfAbsent(ctx context.Context, blob core.Blob, path core.Path) (core.Blob, error) {
	key, obj, err := s.objectKey(path, "create")
	if err != nil {
		return core.Blob{}, err
	}
	return s.put(ctx, "create", key, obj, blob.Contents, true)
}

// Update replaces an existing object.
func (s *Store) Update(ctx context.Context, blob core.Blob, path core.Path) (core.Blob, error) {
	key, obj, err := s.objectKey(path, "update")
	if err != nil {
		return core.Blob{}, err
	}
	if _, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &s.bucket, Key: &obj}); err != nil {
		return core.Blob{}, classify("update", key, err)
	}
	return s.put(ctx, "update", key, obj, blob.Contents, false)
}

// Delete removes the object for a single-segment path. S3 treats absent keys as success.
func (s *Store) Delete(ctx context.Context, path core.Path) error {
	if _, err := path.Single(); err != nil {
		return opErr(err, "delete")
	}
	key, obj, err := s.objectKey(path, "delete")
	if err != nil {
		return err
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &s.bucket, Key: &obj}); err != nil {
		if err := classify("delete", key, err); !core.IsNotFound(err) {
			return err
		}
	}
	return nil
}

// Close marks the store unusable. The SDK client holds no resources to release.
func (s *Store) Close() error {
	s.closed.Store(true)
	return nil
}

func opErr(err error, op string) error {
	var e *core.Error
	if errors.As(err, &e) && e.Op == "" {
		cp := *e
		cp.Op = op
		return &cp
	}
	return err
}
