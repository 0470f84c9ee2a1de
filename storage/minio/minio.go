// Package minio stores a collection as a single object in MinIO or any S3
// compatible service.
package minio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/guyvdb/docstore/fault"
	"github.com/guyvdb/docstore/storage"
	"github.com/guyvdb/docstore/store"
)

// DefaultTimeout bounds each object request.
const DefaultTimeout = 30 * time.Second

var _ store.Storage = (*Storage)(nil)

type Options struct {
	Compress bool
	Timeout  time.Duration
	Log      *slog.Logger
}

// Storage keeps the whole table of a collection in the object
// <prefix>/<collection>.json of a bucket. A missing object reads as an
// empty table.
type Storage struct {
	client   *minio.Client
	bucket   string
	key      string
	compress bool
	timeout  time.Duration
	closed   atomic.Bool
	log      *slog.Logger
}

// Dial creates a client for endpoint using static credentials.
func Dial(endpoint, accessKey, secretKey string, secure bool) (*minio.Client, error) {
	return minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
	})
}

// New creates the storage of collection inside bucket.
func New(client *minio.Client, bucket, prefix, collection string, opts *Options) *Storage {
	if opts == nil {
		opts = &Options{}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	key := path.Join(prefix, collection+".json")
	return &Storage{
		client:   client,
		bucket:   bucket,
		key:      key,
		compress: opts.Compress,
		timeout:  timeout,
		log:      log.With("bucket", bucket, "key", key),
	}
}

// Key returns the object key of the collection.
func (s *Storage) Key() string {
	return s.key
}

func (s *Storage) Read() (store.Table, error) {
	if s.closed.Load() {
		return nil, fault.ErrClosed
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if _, err := s.client.StatObject(ctx, s.bucket, s.key, minio.StatObjectOptions{}); err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to stat %s: %w", s.key, err)
	}

	obj, err := s.client.GetObject(ctx, s.bucket, s.key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", s.key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.key, err)
	}
	return storage.DecodeTable(data)
}

func (s *Storage) Write(t store.Table) error {
	if s.closed.Load() {
		return fault.ErrClosed
	}
	data, err := storage.EncodeTable(t, s.compress)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	contentType := "application/json"
	if s.compress {
		contentType = "application/zstd"
	}
	_, err = s.client.PutObject(ctx, s.bucket, s.key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("failed to put %s: %w", s.key, err)
	}

	s.log.Debug("Storage.Write() - wrote table", "documents", len(t), "size", humanize.Bytes(uint64(len(data))))
	return nil
}

// Close marks the storage closed. The client is shared and stays open.
func (s *Storage) Close() error {
	s.closed.Store(true)
	return nil
}

func isNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}
