package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"k8s.io/klog/v2"

	"github.com/SusheelSathyaraj/CloudDataManager/config"
)

// GCSStore implements Backend using Google Cloud Storage
type GCSStore struct {
	client *storage.Client
}

var _ Backend = (*GCSStore)(nil)

// NewGCSStore creates a GCS client. key_file selects a service account key,
// otherwise application default credentials are used.
func NewGCSStore(ctx context.Context, cloud config.CloudConfig) (*GCSStore, error) {
	var opts []option.ClientOption
	if cloud.KeyFile != "" {
		opts = append(opts, option.WithCredentialsFile(cloud.KeyFile))
	}
	if cloud.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cloud.Endpoint))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating GCS client: %w", err)
	}
	klog.V(2).InfoS("Created GCS client", "endpoint", cloud.Endpoint)
	return &GCSStore{client: client}, nil
}

func (s *GCSStore) Put(ctx context.Context, bucket, key string, data []byte) error {
	obj := s.client.Bucket(bucket).Object(key)
	open := func(ctx context.Context) io.WriteCloser { return obj.NewWriter(ctx) }
	if err := writeObject(ctx, open, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("writing GCS object %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *GCSStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	r, err := s.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading GCS object %s/%s: %w", bucket, key, gcsError(err))
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading GCS object body %s/%s: %w", bucket, key, err)
	}
	return data, nil
}

// List walks every object under prefix without a delimiter, matching the
// flat listing of the S3 backend
func (s *GCSStore) List(ctx context.Context, bucket, prefix string, limit int) ([]string, error) {
	query := &storage.Query{Prefix: prefix}
	if err := query.SetAttrSelection([]string{"Name"}); err != nil {
		return nil, err
	}

	var keys []string
	it := s.client.Bucket(bucket).Objects(ctx, query)
	for limit <= 0 || len(keys) < limit {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("listing GCS objects %s/%s: %w", bucket, prefix, gcsError(err))
		}
		keys = append(keys, attrs.Name)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *GCSStore) Delete(ctx context.Context, bucket, key string) error {
	err := s.client.Bucket(bucket).Object(key).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("deleting GCS object %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *GCSStore) Stat(ctx context.Context, bucket, key string) (ObjectInfo, error) {
	attrs, err := s.client.Bucket(bucket).Object(key).Attrs(ctx)
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("stat GCS object %s/%s: %w", bucket, key, gcsError(err))
	}
	return ObjectInfo{
		Key:          attrs.Name,
		Size:         attrs.Size,
		LastModified: attrs.Updated,
		ETag:         attrs.Etag,
		ContentType:  attrs.ContentType,
	}, nil
}

// UploadMultipart streams through a resumable upload. GCS has no parallel
// parts, so Concurrency is ignored and PartSize sets the chunk size.
func (s *GCSStore) UploadMultipart(ctx context.Context, bucket, key string, r io.Reader, opts MultipartOptions) error {
	obj := s.client.Bucket(bucket).Object(key)
	open := func(ctx context.Context) io.WriteCloser {
		w := obj.NewWriter(ctx)
		if opts.PartSize > 0 {
			// chunk size must be a multiple of 256 KiB
			const quantum = 256 * 1024
			w.ChunkSize = int((opts.PartSize + quantum - 1) / quantum * quantum)
		}
		return w
	}
	if err := writeObject(ctx, open, r); err != nil {
		return fmt.Errorf("uploading GCS object %s/%s: %w", bucket, key, err)
	}
	return nil
}

// writeObject copies r into a writer opened on its own context. A failed copy
// cancels that context before Close so the partial object is never committed.
func writeObject(ctx context.Context, open func(context.Context) io.WriteCloser, r io.Reader) error {
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := open(wctx)
	if _, err := io.Copy(w, r); err != nil {
		cancel()
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing writer: %w", err)
	}
	return nil
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}

func gcsError(err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}
