// Package minio implements ObjectStore with the MinIO client, which works
// against any S3-compatible provider.
package minio

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"popkat/internal/shared/storage/object"
	"popkat/internal/shared/telemetry"
)

// Config holds connection settings for a MinIO-compatible endpoint.
type Config struct {
	Endpoint  string // host:port, no scheme
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	ACL       string
	UseSSL    bool
}

// Store implements ObjectStore using minio-go.
type Store struct {
	client *minio.Client
	bucket string
	acl    string
}

// New creates a MinIO client and ensures the bucket exists.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("minio bucket is required")
	}
	endpoint := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "https://"), "http://")
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create bucket %q: %w", cfg.Bucket, err)
		}
		telemetry.Info("storage.bucket.created", map[string]any{"bucket": cfg.Bucket})
	}

	return &Store{client: client, bucket: cfg.Bucket, acl: strings.TrimSpace(cfg.ACL)}, nil
}

// unknownSizePartSize bounds the buffer minio-go allocates per part when the
// length is unknown. Its default sizes parts for a 5TiB object.
const unknownSizePartSize = 16 << 20

// Put streams r to the bucket. With size -1 minio-go switches to multipart upload.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	opts := minio.PutObjectOptions{ContentType: contentType}
	if size < 0 {
		opts.PartSize = unknownSizePartSize
	}
	if s.acl != "" {
		opts.UserMetadata = map[string]string{"x-amz-acl": s.acl}
	}
	if _, err := s.client.PutObject(ctx, s.bucket, key, r, size, opts); err != nil {
		return fmt.Errorf("minio put object bucket=%s key=%s: %w", s.bucket, key, err)
	}
	return nil
}

// Get opens the object for streaming. minio-go defers the request until the
// first read, so Stat is issued up front to surface missing keys here.
func (s *Store) Get(ctx context.Context, key string) (object.Object, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return object.Object{}, s.mapErr("get", key, err)
	}
	info, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		return object.Object{}, s.mapErr("get", key, err)
	}
	return object.Object{Body: obj, ContentType: info.ContentType, Size: info.Size}, nil
}

// Delete removes the object. Missing keys are not reported by the backend.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return s.mapErr("delete", key, err)
	}
	return nil
}

// List returns every key in the bucket.
func (s *Store) List(ctx context.Context) ([]string, error) {
	var keys []string
	for info := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Recursive: true}) {
		if info.Err != nil {
			return nil, fmt.Errorf("minio list objects bucket=%s: %w", s.bucket, info.Err)
		}
		keys = append(keys, info.Key)
	}
	return keys, nil
}

func (s *Store) mapErr(op, key string, err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == 404 {
		return object.ErrNotFound
	}
	return fmt.Errorf("minio %s object bucket=%s key=%s: %w", op, s.bucket, key, err)
}

var _ object.ObjectStore = (*Store)(nil)
