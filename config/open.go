package config

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/minio/minio-go/v7"

	"github.com/guyvdb/docstore/catalog"
	"github.com/guyvdb/docstore/storage"
	miniostorage "github.com/guyvdb/docstore/storage/minio"
	"github.com/guyvdb/docstore/store"
)

// Opener opens collection storages. Workers of one process share bolt files,
// memory tables and MinIO clients through it, since bbolt allows a single
// open handle per file and a memory table exists only once per process.
type Opener struct {
	mu       sync.Mutex
	bolts    map[string]*storage.BoltFile
	memories map[string]*storage.MemoryStorage
	clients  map[string]*minio.Client
	log      *slog.Logger
}

func NewOpener(log *slog.Logger) *Opener {
	if log == nil {
		log = slog.Default()
	}
	return &Opener{
		bolts:    make(map[string]*storage.BoltFile),
		memories: make(map[string]*storage.MemoryStorage),
		clients:  make(map[string]*minio.Client),
		log:      log,
	}
}

// Storage opens the backend of collection name.
func (o *Opener) Storage(name string, c *Collection) (store.Storage, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch c.Backend {
	case BackendMemory:
		mem, found := o.memories[name]
		if !found {
			mem = storage.NewMemoryStorage()
			o.memories[name] = mem
		}
		return mem.Handle(), nil
	case "", BackendJSON:
		path := c.Path
		if path == "" {
			path = name + ".json"
		}
		return storage.NewJSONStorage(path, &storage.JSONOptions{CreateDirs: c.CreateDirs, Compress: c.Compress, Log: o.log})
	case BackendBolt:
		path := c.Path
		if path == "" {
			path = "docstore.bolt"
		}
		key, err := filepath.Abs(path)
		if err != nil {
			return nil, err
		}
		file, found := o.bolts[key]
		if !found || file.Closed() {
			if file, err = storage.OpenBoltFile(path, o.log); err != nil {
				return nil, err
			}
			o.bolts[key] = file
		}
		return file.Collection(name), nil
	case BackendMinio:
		client, found := o.clients[c.Endpoint]
		if !found {
			var err error
			if client, err = miniostorage.Dial(c.Endpoint, c.AccessKey, c.SecretKey, c.Secure); err != nil {
				return nil, fmt.Errorf("failed to create minio client for %s: %w", c.Endpoint, err)
			}
			o.clients[c.Endpoint] = client
		}
		return miniostorage.New(client, c.Bucket, c.Prefix, name, &miniostorage.Options{Compress: c.Compress, Log: o.log}), nil
	}
	return nil, fmt.Errorf("unknown backend %q", c.Backend)
}

// Catalog opens every configured collection. On failure the collections
// opened so far are closed again.
func (o *Opener) Catalog(cfg *Config) (*catalog.Catalog, error) {
	cat := catalog.New(o.log)
	for name, c := range cfg.Collections {
		backend, err := o.Storage(name, c)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("collection %s: %w", name, err), cat.Close())
		}

		st, err := store.Open(name, backend, &store.Options{CacheSize: c.CacheSize, Log: o.log})
		if err != nil {
			return nil, errors.Join(fmt.Errorf("collection %s: %w", name, err), backend.Close(), cat.Close())
		}
		if err := cat.Register(st); err != nil {
			return nil, errors.Join(err, st.Close(), cat.Close())
		}
	}
	return cat, nil
}
