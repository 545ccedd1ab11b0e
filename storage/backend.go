// Package storage reads and writes objects in a cloud bucket. OCI Object
// Storage and S3 are reached through the S3 API, GCS through its own client,
// and a local directory tree stands in for a bucket in tests and offline runs.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	ErrNotFound = errors.New("object not found")
	ErrNoBucket = errors.New("no bucket specified and no default bucket configured")
)

// ObjectInfo describes a stored object
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	ETag         string
	ContentType  string
}

// MultipartOptions tunes a multipart upload
type MultipartOptions struct {
	PartSize    int64
	Concurrency int
}

// Backend abstracts one object storage service. Keys are slash separated.
type Backend interface {
	// Put writes data to bucket/key, replacing any existing object
	Put(ctx context.Context, bucket, key string, data []byte) error

	// Get reads bucket/key; a missing object is reported as ErrNotFound
	Get(ctx context.Context, bucket, key string) ([]byte, error)

	// List returns up to limit object names with the given prefix, sorted
	List(ctx context.Context, bucket, prefix string, limit int) ([]string, error)

	// Delete removes bucket/key
	Delete(ctx context.Context, bucket, key string) error

	Stat(ctx context.Context, bucket, key string) (ObjectInfo, error)

	// UploadMultipart streams r to bucket/key in parts uploaded in parallel
	UploadMultipart(ctx context.Context, bucket, key string, r io.Reader, opts MultipartOptions) error

	Close() error
}
