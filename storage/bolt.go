package storage

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	gojson "github.com/goccy/go-json"
	"go.etcd.io/bbolt"

	"github.com/guyvdb/docstore/fault"
	"github.com/guyvdb/docstore/store"
)

// BoltFile is an open bbolt database shared by the collections stored in it.
// bbolt holds an exclusive file lock, so every collection in one process must
// go through the same handle. The file is closed when the last collection
// opened from it is closed.
type BoltFile struct {
	mu   sync.Mutex
	db   *bbolt.DB
	path string
	refs int
	log  *slog.Logger
}

// OpenBoltFile opens the bbolt database at path, waiting up to a second for
// the file lock.
func OpenBoltFile(path string, log *slog.Logger) (*BoltFile, error) {
	if log == nil {
		log = slog.Default()
	}
	log.Debug("OpenBoltFile - open bolt db", "path", path)

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}
	return &BoltFile{db: db, path: path, log: log}, nil
}

// Collection returns the storage of one collection inside the file. Each
// collection lives in its own bucket.
func (f *BoltFile) Collection(name string) *BoltStorage {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refs++
	return &BoltStorage{file: f, bucket: []byte("Collection." + name), log: f.log.With("bucket", "Collection."+name)}
}

// Closed reports whether the last collection of f has been closed.
func (f *BoltFile) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.db == nil
}

func (f *BoltFile) release() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.refs--
	if f.refs > 0 || f.db == nil {
		return nil
	}
	f.log.Debug("BoltFile.release() - close db", "path", f.path)
	err := f.db.Close()
	f.db = nil
	return err
}

var _ store.Storage = (*BoltStorage)(nil)

// BoltStorage keeps one collection in a bbolt bucket, one key per document.
// Keys are the decimal identity and values the JSON encoded fields.
type BoltStorage struct {
	file   *BoltFile
	bucket []byte
	closed bool
	log    *slog.Logger
}

func (bs *BoltStorage) Read() (store.Table, error) {
	if bs.closed {
		return nil, fault.ErrClosed
	}

	var t store.Table
	err := bs.file.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bs.bucket)
		if bucket == nil {
			// Nothing has been written to this collection yet.
			return nil
		}

		t = store.Table{}
		cursor := bucket.Cursor()
		for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
			id, err := store.IdFromString(string(k))
			if err != nil {
				return err
			}

			fields := store.Fields{}
			if err := gojson.Unmarshal(v, &fields); err != nil {
				return fmt.Errorf("%w: document %s: %w", fault.ErrUnmarshalFailed, id, err)
			}
			t[id] = fields
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Write replaces the bucket contents with t in a single transaction.
func (bs *BoltStorage) Write(t store.Table) error {
	if bs.closed {
		return fault.ErrClosed
	}

	var size int
	err := bs.file.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bs.bucket) != nil {
			if err := tx.DeleteBucket(bs.bucket); err != nil {
				return fmt.Errorf("failed to clear bucket %s: %w", string(bs.bucket), err)
			}
		}

		bucket, err := tx.CreateBucket(bs.bucket)
		if err != nil {
			return fmt.Errorf("failed to create bucket %s: %w: %w", string(bs.bucket), fault.ErrBucketCreateFailed, err)
		}

		size, err = putDocuments(bucket, t)
		return err
	})
	if err != nil {
		return err
	}

	bs.log.Debug("BoltStorage.Write() - wrote table", "documents", len(t), "size", humanize.Bytes(uint64(size)))
	return nil
}

// putDocuments stores every document of t under its decimal identity and
// returns the number of bytes written.
func putDocuments(bucket *bbolt.Bucket, t store.Table) (int, error) {
	var size int
	for _, id := range t.Ids() {
		data, err := gojson.Marshal(t[id])
		if err != nil {
			return 0, fmt.Errorf("%w: document %s: %w", fault.ErrMarshalFailed, id, err)
		}
		if err := bucket.Put([]byte(id.String()), data); err != nil {
			return 0, fmt.Errorf("failed to put document %s: %w: %w", id, fault.ErrPutFailed, err)
		}
		size += len(data)
	}
	return size, nil
}

// Close releases the shared file. Closing twice is a no-op.
func (bs *BoltStorage) Close() error {
	if bs.closed {
		return nil
	}
	bs.closed = true
	return bs.file.release()
}
