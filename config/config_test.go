package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guyvdb/docstore/store"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	srv := cfg.Server(0)
	assert.Equal(t, "127.0.0.1:5560", srv.Addr)
	assert.Equal(t, "127.0.0.1:5558", srv.LockAddr)
	assert.Equal(t, 100*time.Millisecond, srv.PollInterval)
	assert.Equal(t, BackendJSON, cfg.Collections["db"].Backend)
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
client_addr: 0.0.0.0:7000
worker_addrs:
  - 127.0.0.1:7001
  - 127.0.0.1:7002
lock_addr: 127.0.0.1:7100
read_only: true
poll_interval: 250ms
debug: true
log:
  level: debug
  format: json
collections:
  users:
    backend: bolt
    path: /var/lib/docstore/users.bolt
    cache_size: 32
  events:
    backend: minio
    bucket: docs
    prefix: prod
    endpoint: minio:9000
    access_key: key
    secret_key: secret
    compress: true
`))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:7000", cfg.ClientAddr)
	assert.True(t, cfg.ReadOnly)
	assert.Equal(t, Log{Level: "debug", Format: "json"}, cfg.Log)
	require.Len(t, cfg.Collections, 2)
	assert.Equal(t, 32, cfg.Collections["users"].CacheSize)
	assert.Equal(t, "minio:9000", cfg.Collections["events"].Endpoint)
	assert.True(t, cfg.Collections["events"].Compress)

	second := cfg.Server(1)
	assert.Equal(t, "127.0.0.1:7002", second.Addr)
	assert.Equal(t, "127.0.0.1:7101", second.LockAddr)
	assert.Equal(t, 250*time.Millisecond, second.PollInterval)
	assert.True(t, second.ReadOnly)
	assert.True(t, second.Debug)
}

func TestParseConfigKeepsDefaultCollection(t *testing.T) {
	cfg, err := ParseConfig([]byte("debug: true\n"))
	require.NoError(t, err)
	assert.Contains(t, cfg.Collections, "db")
}

func TestValidate(t *testing.T) {
	tests := map[string]string{
		"unknown backend":  "collections: {db: {backend: redis}}",
		"minio w/o bucket": "collections: {db: {backend: minio, endpoint: x:9000}}",
		"bad poll":         "poll_interval: soon",
		"negative cache":   "collections: {db: {cache_size: -1}}",
		"no workers":       "worker_addrs: []",
		"lock equals addr": "worker_addrs: [127.0.0.1:9000]\nlock_addr: 127.0.0.1:9000",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseConfig([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docstore.yaml")
	require.NoError(t, os.WriteFile(path, []byte("client_addr: 127.0.0.1:6000\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:6000", cfg.ClientAddr)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewLogger(Log{Level: "warn", Format: "json"}, &buf)
	require.NoError(t, err)

	log.Info("hidden")
	log.Warn("shown", "key", "value")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"key":"value"`)

	buf.Reset()
	log, err = NewLogger(Log{Level: "debug"}, &buf)
	require.NoError(t, err)
	log.Debug("Store.Insert() - insert document", "id", 1)
	assert.Contains(t, buf.String(), "Store.Insert() - insert document")
	assert.NotContains(t, buf.String(), "\x1b[")

	_, err = NewLogger(Log{Level: "loud"}, &buf)
	assert.Error(t, err)
	_, err = NewLogger(Log{Format: "xml"}, &buf)
	assert.Error(t, err)
}

func TestOpenerSharesMemoryCollections(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WorkerAddrs = []string{"127.0.0.1:0", "127.0.0.1:0"}
	cfg.Collections = map[string]*Collection{"mem": {Backend: BackendMemory}}

	opener := NewOpener(nil)
	worker0, err := opener.Catalog(cfg)
	require.NoError(t, err)
	worker1, err := opener.Catalog(cfg)
	require.NoError(t, err)

	mem0, err := worker0.Get("mem")
	require.NoError(t, err)
	_, err = mem0.Insert(store.Fields{"name": "he"})
	require.NoError(t, err)

	mem1, err := worker1.Get("mem")
	require.NoError(t, err)
	n, err := mem1.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// one worker shutting down does not take the table with it
	require.NoError(t, worker0.Close())
	n, err = mem1.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NoError(t, worker1.Close())
}

func TestOpenerCatalog(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Collections = map[string]*Collection{
		"mem":   {Backend: BackendMemory},
		"file":  {Backend: BackendJSON, Path: filepath.Join(dir, "nested", "file.json"), CreateDirs: true},
		"users": {Backend: BackendBolt, Path: filepath.Join(dir, "db.bolt")},
		"posts": {Backend: BackendBolt, Path: filepath.Join(dir, "db.bolt")},
	}
	require.NoError(t, cfg.Validate())

	opener := NewOpener(nil)
	cat, err := opener.Catalog(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"file", "mem", "posts", "users"}, cat.Names())

	for _, name := range cat.Names() {
		st, err := cat.Get(name)
		require.NoError(t, err)
		id, err := st.Insert(store.Fields{"collection": name})
		require.NoError(t, err)
		assert.Equal(t, store.Id(1), id)
	}
	require.NoError(t, cat.Close())

	// a second worker reopening the same files sees the data
	cat, err = NewOpener(nil).Catalog(cfg)
	require.NoError(t, err)
	defer cat.Close()

	users, err := cat.Get("users")
	require.NoError(t, err)
	assert.Equal(t, store.Id(1), users.LastId())
	file, err := cat.Get("file")
	require.NoError(t, err)
	n, err := file.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
