package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/SusheelSathyaraj/CloudDataManager/config"
	"github.com/SusheelSathyaraj/CloudDataManager/frame"
	"github.com/SusheelSathyaraj/CloudDataManager/monitoring"
)

const mib = 1024 * 1024

// Client performs bucket operations against the configured provider. Every
// operation takes a bucket name; an empty one means storage.default_bucket.
type Client struct {
	backend Backend
	cfg     config.StorageConfig
}

// UploadResult reports how UploadFile stored a file
type UploadResult struct {
	ObjectName string
	Bucket     string
	Size       int64
	Multipart  bool
	Duration   time.Duration
}

// NewBackend builds the backend for the configured provider
func NewBackend(ctx context.Context, cloud config.CloudConfig, namespace string) (Backend, error) {
	switch cloud.Provider {
	case config.ProviderOCI, config.ProviderS3, "":
		return NewS3Store(ctx, cloud, namespace)
	case config.ProviderGCS:
		return NewGCSStore(ctx, cloud)
	case config.ProviderFS:
		return NewFSStore(cloud.RootDir), nil
	}
	return nil, fmt.Errorf("unsupported storage provider %q", cloud.Provider)
}

// NewClient creates a storage client from a loaded config
func NewClient(ctx context.Context, cfg *config.Config) (*Client, error) {
	if !cfg.HasStorage() {
		return nil, &config.ValidationError{Section: "storage", Message: `missing "storage" section`}
	}
	sc := cfg.StorageConfig()
	backend, err := NewBackend(ctx, cfg.CloudConfig(), sc.Namespace)
	if err != nil {
		return nil, err
	}
	return NewClientWithBackend(backend, sc), nil
}

func NewClientWithBackend(backend Backend, cfg config.StorageConfig) *Client {
	return &Client{backend: backend, cfg: cfg}
}

func (c *Client) Namespace() string     { return c.cfg.Namespace }
func (c *Client) DefaultBucket() string { return c.cfg.DefaultBucket }

func (c *Client) bucket(name string) (string, error) {
	if name != "" {
		return name, nil
	}
	if c.cfg.DefaultBucket != "" {
		return c.cfg.DefaultBucket, nil
	}
	return "", ErrNoBucket
}

// ListObjects returns object names under prefix; limit <= 0 uses storage.list_limit
func (c *Client) ListObjects(ctx context.Context, bucket, prefix string, limit int) ([]string, error) {
	b, err := c.bucket(bucket)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = c.cfg.ListLimit
	}
	return c.backend.List(ctx, b, prefix, limit)
}

func (c *Client) ReadObject(ctx context.Context, name, bucket string) ([]byte, error) {
	b, err := c.bucket(bucket)
	if err != nil {
		return nil, err
	}
	return c.backend.Get(ctx, b, name)
}

func (c *Client) WriteObject(ctx context.Context, name string, data []byte, bucket string) error {
	b, err := c.bucket(bucket)
	if err != nil {
		return err
	}
	if err := c.backend.Put(ctx, b, name, data); err != nil {
		return err
	}
	klog.V(2).InfoS("Wrote object", "bucket", b, "object", name, "bytes", len(data))
	return nil
}

// WriteString stores s as UTF-8 text
func (c *Client) WriteString(ctx context.Context, name, s, bucket string) error {
	return c.WriteObject(ctx, name, []byte(s), bucket)
}

func (c *Client) DeleteObject(ctx context.Context, name, bucket string) error {
	b, err := c.bucket(bucket)
	if err != nil {
		return err
	}
	return c.backend.Delete(ctx, b, name)
}

func (c *Client) StatObject(ctx context.Context, name, bucket string) (ObjectInfo, error) {
	b, err := c.bucket(bucket)
	if err != nil {
		return ObjectInfo{}, err
	}
	return c.backend.Stat(ctx, b, name)
}

func (c *Client) ObjectExists(ctx context.Context, name, bucket string) (bool, error) {
	_, err := c.StatObject(ctx, name, bucket)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// ReadCSV parses a CSV object; .gz objects are decompressed first. Without
// an explicit delimiter .tsv objects are read tab separated.
func (c *Client) ReadCSV(ctx context.Context, name, bucket string, opts frame.CSVOptions) (*frame.Frame, error) {
	if opts.Delimiter == 0 {
		opts.Delimiter = csvDelimiter(name)
	}
	data, err := c.ReadObject(ctx, name, bucket)
	if err != nil {
		return nil, err
	}
	r, err := decode(name, data)
	if err != nil {
		return nil, err
	}
	return frame.ReadCSV(r, opts)
}

// WriteCSV stores df as CSV without an index column; .gz names are compressed
// and .tsv names are tab separated
func (c *Client) WriteCSV(ctx context.Context, df *frame.Frame, name, bucket string, opts frame.CSVOptions) error {
	if opts.Delimiter == 0 {
		opts.Delimiter = csvDelimiter(name)
	}
	data, err := encode(name, func(w io.Writer) error { return df.WriteCSV(w, opts) })
	if err != nil {
		return err
	}
	return c.WriteObject(ctx, name, data, bucket)
}

func (c *Client) ReadParquet(ctx context.Context, name, bucket string) (*frame.Frame, error) {
	data, err := c.ReadObject(ctx, name, bucket)
	if err != nil {
		return nil, err
	}
	if isGzip(name) {
		r, err := decode(name, data)
		if err != nil {
			return nil, err
		}
		if data, err = io.ReadAll(r); err != nil {
			return nil, err
		}
	}
	return frame.ReadParquet(data)
}

// WriteParquet stores df as parquet compressed with storage.parquet_compression
func (c *Client) WriteParquet(ctx context.Context, df *frame.Frame, name, bucket string) error {
	opts := frame.ParquetOptions{Compression: c.cfg.ParquetCompression}
	data, err := encode(name, func(w io.Writer) error { return df.WriteParquet(w, opts) })
	if err != nil {
		return err
	}
	return c.WriteObject(ctx, name, data, bucket)
}

func (c *Client) ReadJSON(ctx context.Context, name, bucket string) (*frame.Frame, error) {
	data, err := c.ReadObject(ctx, name, bucket)
	if err != nil {
		return nil, err
	}
	r, err := decode(name, data)
	if err != nil {
		return nil, err
	}
	return frame.ReadJSON(r)
}

// WriteJSON stores df as JSON lines
func (c *Client) WriteJSON(ctx context.Context, df *frame.Frame, name, bucket string) error {
	data, err := encode(name, df.WriteJSON)
	if err != nil {
		return err
	}
	return c.WriteObject(ctx, name, data, bucket)
}

// ReadFrame reads a table object in the given format, detecting it from
// the name when format is empty
func (c *Client) ReadFrame(ctx context.Context, name, bucket string, format Format) (*frame.Frame, error) {
	format, err := resolveFormat(name, format)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatParquet:
		return c.ReadParquet(ctx, name, bucket)
	case FormatJSON:
		return c.ReadJSON(ctx, name, bucket)
	default:
		return c.ReadCSV(ctx, name, bucket, frame.CSVOptions{})
	}
}

// WriteFrame is the write side of ReadFrame
func (c *Client) WriteFrame(ctx context.Context, df *frame.Frame, name, bucket string, format Format) error {
	format, err := resolveFormat(name, format)
	if err != nil {
		return err
	}
	switch format {
	case FormatParquet:
		return c.WriteParquet(ctx, df, name, bucket)
	case FormatJSON:
		return c.WriteJSON(ctx, df, name, bucket)
	default:
		return c.WriteCSV(ctx, df, name, bucket, frame.CSVOptions{})
	}
}

func resolveFormat(name string, format Format) (Format, error) {
	if format == "" {
		return DetectFormat(name)
	}
	return ParseFormat(string(format))
}

// MultipartThreshold is the file size above which UploadFile goes multipart
func (c *Client) MultipartThreshold() int64 {
	return c.cfg.MultipartThresholdMB * mib
}

// UploadFile stores a local file. Files larger than the multipart threshold
// are uploaded in parts in parallel, smaller ones in a single write. An empty
// objectName uses the file's base name.
func (c *Client) UploadFile(ctx context.Context, path, objectName, bucket string) (*UploadResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("file not found: %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	if objectName == "" {
		objectName = filepath.Base(path)
	}
	b, err := c.bucket(bucket)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	result := &UploadResult{
		ObjectName: objectName,
		Bucket:     b,
		Size:       info.Size(),
		Multipart:  info.Size() > c.MultipartThreshold(),
	}
	tracker := monitoring.NewProgressTracker("upload "+objectName, 0, info.Size())
	tracker.SetCurrentTask(path)
	body := monitoring.NewProgressReader(f, tracker)

	if result.Multipart {
		opts := MultipartOptions{
			PartSize:    c.cfg.PartSizeMB * mib,
			Concurrency: c.cfg.ParallelUploads,
		}
		klog.V(1).InfoS("Starting multipart upload", "file", path, "bucket", b, "object", objectName,
			"bytes", info.Size(), "partSize", opts.PartSize, "parallel", opts.Concurrency)

		stop := tracker.StartProgressMonitor(10 * time.Second)
		err = c.backend.UploadMultipart(ctx, b, objectName, body, opts)
		stop()
	} else {
		var data []byte
		data, err = io.ReadAll(body)
		if err == nil {
			err = c.backend.Put(ctx, b, objectName, data)
		}
	}
	if err != nil {
		tracker.AddError(err)
		return nil, fmt.Errorf("uploading %s to %s/%s: %w", path, b, objectName, err)
	}

	result.Duration = tracker.GetMetrics().ElapsedTime
	tracker.LogFinalSummary()
	return result, nil
}

// DownloadFile writes an object to path, creating parent directories. The
// content lands in a temporary file that is renamed into place.
func (c *Client) DownloadFile(ctx context.Context, name, path, bucket string) error {
	data, err := c.ReadObject(ctx, name, bucket)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	tmp := filepath.Join(dir, "."+filepath.Base(path)+"."+uuid.NewString()+".tmp")
	if err := writeFile(tmp, data); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming download into %s: %w", path, err)
	}
	klog.V(2).InfoS("Downloaded object", "object", name, "path", path, "bytes", len(data))
	return nil
}

func writeFile(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, bytes.NewReader(data)); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (c *Client) Close() error {
	return c.backend.Close()
}
