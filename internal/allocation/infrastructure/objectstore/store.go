package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	allocation "netgen-allocation/internal/allocation/domain"
)

// LocalStore copies report archives under a root directory.
type LocalStore struct {
	root string
}

// NewLocalStore constructs a LocalStore.
func NewLocalStore(root string) (*LocalStore, error) {
	if root == "" {
		return nil, errors.New("allocation objectstore: empty root")
	}
	return &LocalStore{root: root}, nil
}

// Put copies the file at path to root/key and returns the stored path.
func (s *LocalStore) Put(ctx context.Context, key, path string) (string, error) {
	_ = ctx
	dest := filepath.Join(s.root, filepath.FromSlash(key))
	if filepath.Clean(dest) == filepath.Clean(path) {
		return dest, nil
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", err
	}
	src, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer src.Close()
	out, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return "", err
	}
	return dest, out.Close()
}

// Open opens a stored archive.
func (s *LocalStore) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	_ = ctx
	file, err := os.Open(location)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, allocation.ErrReportNotFound
		}
		return nil, err
	}
	return file, nil
}

const s3Scheme = "s3://"

// MinioStore keeps report archives in an S3-compatible bucket.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore connects to endpoint and ensures the bucket exists.
func NewMinioStore(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinioStore, error) {
	if endpoint == "" || bucket == "" {
		return nil, errors.New("allocation objectstore: endpoint and bucket required")
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, err
	}
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}
	return &MinioStore{client: client, bucket: bucket}, nil
}

// Put uploads the file at path and returns an s3:// location.
func (s *MinioStore) Put(ctx context.Context, key, path string) (string, error) {
	if _, err := s.client.FPutObject(ctx, s.bucket, key, path, minio.PutObjectOptions{ContentType: "application/zip"}); err != nil {
		return "", fmt.Errorf("failed to upload archive: %w", err)
	}
	return Location(s.bucket, key), nil
}

// Open downloads a stored archive.
func (s *MinioStore) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	bucket, key, err := ParseLocation(location)
	if err != nil {
		return nil, err
	}
	if _, err := s.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, allocation.ErrReportNotFound
		}
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	return obj, nil
}

// Location renders a bucket key as s3://bucket/key.
func Location(bucket, key string) string {
	return s3Scheme + bucket + "/" + strings.TrimPrefix(key, "/")
}

// ParseLocation splits an s3://bucket/key location.
func ParseLocation(location string) (string, string, error) {
	rest, ok := strings.CutPrefix(location, s3Scheme)
	if !ok {
		return "", "", fmt.Errorf("allocation objectstore: not an s3 location: %q", location)
	}
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("allocation objectstore: malformed location: %q", location)
	}
	return bucket, key, nil
}
