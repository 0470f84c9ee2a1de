package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"
	berrors "go.etcd.io/bbolt/errors"

	"github.com/guyvdb/docstore/fault"
	"github.com/guyvdb/docstore/query"
	"github.com/guyvdb/docstore/store"
)

func sampleTable() store.Table {
	return store.Table{
		1:  {"name": "he", "age": 30.0},
		2:  {"name": "she", "tags": []any{"a", "b"}},
		10: {"nested": map[string]any{"x": 1.0}},
	}
}

// exerciseStorage checks the contract every backend shares.
func exerciseStorage(t *testing.T, s store.Storage) {
	t.Helper()

	tbl, err := s.Read()
	require.NoError(t, err)
	assert.Empty(t, tbl)

	require.NoError(t, s.Write(sampleTable()))
	tbl, err = s.Read()
	require.NoError(t, err)
	assert.Equal(t, sampleTable(), tbl)

	// a smaller table fully replaces a larger one
	require.NoError(t, s.Write(store.Table{2: {"name": "she"}}))
	tbl, err = s.Read()
	require.NoError(t, err)
	assert.Equal(t, store.Table{2: {"name": "she"}}, tbl)

	require.NoError(t, s.Close())
	_, err = s.Read()
	assert.Error(t, err)
}

func TestMemoryStorage(t *testing.T) {
	exerciseStorage(t, NewMemoryStorage())
}

func TestMemoryStorageCopies(t *testing.T) {
	m := NewMemoryStorage()
	tbl := store.Table{1: {"name": "he"}}
	require.NoError(t, m.Write(tbl))

	tbl[1]["name"] = "changed"
	got, err := m.Read()
	require.NoError(t, err)
	assert.Equal(t, "he", got[1]["name"])
}

func TestMemoryStorageHandles(t *testing.T) {
	m := NewMemoryStorage()
	first, second := m.Handle(), m.Handle()

	require.NoError(t, first.Write(store.Table{1: {"name": "he"}}))
	tbl, err := second.Read()
	require.NoError(t, err)
	assert.Equal(t, store.Table{1: {"name": "he"}}, tbl)

	// closing one handle leaves the table to the others
	require.NoError(t, first.Close())
	_, err = first.Read()
	assert.ErrorIs(t, err, fault.ErrClosed)
	tbl, err = second.Read()
	require.NoError(t, err)
	assert.Len(t, tbl, 1)
}

func TestJSONStorage(t *testing.T) {
	s, err := NewJSONStorage(filepath.Join(t.TempDir(), "db.json"), nil)
	require.NoError(t, err)
	exerciseStorage(t, s)
}

func TestJSONStorageCompressed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json.zst")
	s, err := NewJSONStorage(path, &JSONOptions{Compress: true})
	require.NoError(t, err)
	require.NoError(t, s.Write(sampleTable()))
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, zstdMagic, data[:4])

	// a plain reader decodes compressed content transparently
	s, err = NewJSONStorage(path, nil)
	require.NoError(t, err)
	defer s.Close()
	tbl, err := s.Read()
	require.NoError(t, err)
	assert.Equal(t, sampleTable(), tbl)
}

func TestJSONStorageFileFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")
	s, err := NewJSONStorage(path, nil)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Write(store.Table{1: {"name": "he"}}))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"1":{"name":"he"}}`, string(data))
}

func TestJSONStorageCreateDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "db.json")

	_, err := NewJSONStorage(path, nil)
	require.Error(t, err)

	s, err := NewJSONStorage(path, &JSONOptions{CreateDirs: true})
	require.NoError(t, err)
	defer s.Close()
	assert.FileExists(t, path)
}

func TestJSONStorageRejectsBadKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"one":{}}`), 0o644))

	s, err := NewJSONStorage(path, nil)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Read()
	assert.ErrorIs(t, err, fault.ErrInvalidIdFormat)
}

func TestBoltStorage(t *testing.T) {
	f, err := OpenBoltFile(filepath.Join(t.TempDir(), "db.bolt"), nil)
	require.NoError(t, err)
	exerciseStorage(t, f.Collection("db"))
}

func TestBoltStorageWriteErrorsKeepCause(t *testing.T) {
	f, err := OpenBoltFile(filepath.Join(t.TempDir(), "db.bolt"), nil)
	require.NoError(t, err)
	users := f.Collection("users")
	defer users.Close()
	require.NoError(t, users.Write(store.Table{1: {"name": "he"}}))

	// a read only transaction makes bbolt refuse the put
	err = f.db.View(func(tx *bbolt.Tx) error {
		_, err := putDocuments(tx.Bucket(users.bucket), store.Table{2: {"name": "she"}})
		return err
	})
	assert.ErrorIs(t, err, fault.ErrPutFailed)
	assert.ErrorIs(t, err, berrors.ErrTxNotWritable)
}

func TestBoltStorageSharedFile(t *testing.T) {
	f, err := OpenBoltFile(filepath.Join(t.TempDir(), "db.bolt"), nil)
	require.NoError(t, err)

	users := f.Collection("users")
	posts := f.Collection("posts")

	require.NoError(t, users.Write(store.Table{1: {"name": "he"}}))
	require.NoError(t, posts.Write(store.Table{7: {"title": "hello"}}))

	tbl, err := users.Read()
	require.NoError(t, err)
	assert.Equal(t, store.Table{1: {"name": "he"}}, tbl)

	// closing one collection keeps the file open for the other
	require.NoError(t, users.Close())
	tbl, err = posts.Read()
	require.NoError(t, err)
	assert.Len(t, tbl, 1)
	require.NoError(t, posts.Close())
}

func TestStoreOverBackends(t *testing.T) {
	dir := t.TempDir()
	jsonStorage, err := NewJSONStorage(filepath.Join(dir, "db.json"), nil)
	require.NoError(t, err)
	boltFile, err := OpenBoltFile(filepath.Join(dir, "db.bolt"), nil)
	require.NoError(t, err)

	backends := map[string]store.Storage{
		"memory": NewMemoryStorage(),
		"json":   jsonStorage,
		"bolt":   boltFile.Collection("db"),
	}

	for name, backend := range backends {
		t.Run(name, func(t *testing.T) {
			s, err := store.Open("db", backend, nil)
			require.NoError(t, err)
			defer s.Close()

			_, err = s.InsertMany([]store.Fields{{"name": "he"}, {"name": "she"}})
			require.NoError(t, err)

			docs, err := s.Search(query.Where("name").Eq("he"))
			require.NoError(t, err)
			require.Len(t, docs, 1)
			assert.Equal(t, store.Id(1), docs[0].Id)
		})
	}
}
