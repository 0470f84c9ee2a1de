package client

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guyvdb/docstore/broker"
	"github.com/guyvdb/docstore/catalog"
	"github.com/guyvdb/docstore/fault"
	"github.com/guyvdb/docstore/server"
	"github.com/guyvdb/docstore/storage"
	"github.com/guyvdb/docstore/store"
	"github.com/guyvdb/docstore/wire"
)

// startStack runs one worker behind a broker and returns the broker address.
func startStack(t *testing.T) string {
	t.Helper()

	cat := catalog.New(nil)
	for _, name := range []string{"db", "users"} {
		st, err := store.Open(name, storage.NewMemoryStorage(), nil)
		require.NoError(t, err)
		require.NoError(t, cat.Register(st))
	}

	cfg := server.DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	cfg.LockAddr = "127.0.0.1:0"
	srv := server.New(&server.Spec{Config: cfg, Catalog: cat})
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	go srv.Run(ctx)

	b, err := broker.New("127.0.0.1:0", []string{srv.Addr()}, nil)
	require.NoError(t, err)
	go b.Serve()

	t.Cleanup(func() {
		b.Close()
		cancel()
		srv.Close()
		cat.Close()
	})
	return b.Addr()
}

func connect(t *testing.T, addr, db string) *Client {
	t.Helper()
	c, err := Dial(addr, db, nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestScenario(t *testing.T) {
	c := connect(t, startStack(t), "db")

	ids, err := c.Insert(store.Fields{"name": "he"}, store.Fields{"name": "she"})
	require.NoError(t, err)
	assert.Equal(t, []store.Id{1, 2}, ids)

	he := wire.Where("name").Eq("he")
	docs, err := c.Search(he)
	require.NoError(t, err)
	assert.Equal(t, []store.Document{{Id: 1, Fields: store.Fields{"name": "he"}}}, docs)

	removed, err := c.Remove(he)
	require.NoError(t, err)
	assert.Equal(t, []store.Id{1}, removed)

	docs, err = c.Search(he)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestOperations(t *testing.T) {
	c := connect(t, startStack(t), "db")

	ids, err := c.InsertMultiple([]store.Fields{
		{"name": "he", "age": 30, "address": map[string]any{"city": "Paris"}},
		{"name": "she", "age": 25},
		{"name": "it"},
	})
	require.NoError(t, err)
	assert.Equal(t, []store.Id{1, 2, 3}, ids)

	n, err := c.Len()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = c.Count(wire.Where("age").Exists())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	doc, err := c.Get(wire.Where("address").Field("city").Eq("Paris"))
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, store.Id(1), doc.Id)

	doc, err = c.GetId(42)
	require.NoError(t, err)
	assert.Nil(t, doc)

	found, err := c.ContainsMatching(store.Fields{"name": "she", "age": 25})
	require.NoError(t, err)
	assert.True(t, found)

	found, err = c.ContainsIds(7, 8)
	require.NoError(t, err)
	assert.False(t, found)

	updated, err := c.Update(store.Increment("age", 1), wire.Where("age").Ge(25))
	require.NoError(t, err)
	assert.Equal(t, []store.Id{1, 2}, updated)

	updated, err = c.UpdateIds(store.Merge(store.Fields{"address": map[string]any{"zip": "75001"}}), 1)
	require.NoError(t, err)
	assert.Equal(t, []store.Id{1}, updated)

	doc, err = c.GetId(1)
	require.NoError(t, err)
	assert.Equal(t, 31.0, doc.Fields["age"])
	assert.Equal(t, map[string]any{"city": "Paris", "zip": "75001"}, doc.Fields["address"])

	removed, err := c.RemoveMatching(store.Fields{"name": "it"})
	require.NoError(t, err)
	assert.Equal(t, []store.Id{3}, removed)

	removed, err = c.RemoveIds(2, 99)
	require.NoError(t, err)
	assert.Equal(t, []store.Id{2}, removed)

	all, err := c.All()
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, c.Purge())
	ids, err = c.Insert(store.Fields{"name": "again"})
	require.NoError(t, err)
	assert.Equal(t, []store.Id{1}, ids)

	users, err := c.Collection("users")
	require.NoError(t, err)
	defer users.Close()
	_, err = users.Insert(store.Fields{"name": "u"})
	require.NoError(t, err)

	everything, err := c.ReadAll()
	require.NoError(t, err)
	assert.Len(t, everything["db"], 1)
	assert.Len(t, everything["users"], 1)
}

func TestLocalValidation(t *testing.T) {
	c := connect(t, startStack(t), "db")

	_, err := c.InsertMultiple(nil)
	assert.ErrorIs(t, err, fault.ErrNotSequence)

	_, err = c.Insert(store.Fields{"a": 1}, nil)
	assert.ErrorIs(t, err, fault.ErrNotDocument)

	_, err = c.Search(wire.QueryInfo{})
	assert.ErrorIs(t, err, fault.ErrMissingCondition)

	_, err = c.Remove(wire.Where().Eq(1))
	assert.ErrorIs(t, err, fault.ErrEmptyPath)

	nested := wire.Where("a").Eq(1).And(wire.Where("b").Eq(2)).Or(wire.Where("c").Eq(3).Not())
	_, err = c.Search(nested)
	assert.ErrorIs(t, err, fault.ErrUnsupportedNesting)

	_, err = c.Update(store.Increment("", 1), wire.Where("a").Exists())
	assert.ErrorIs(t, err, fault.ErrUnknownUpdateOp)

	_, err = c.RemoveMatching(nil)
	assert.ErrorIs(t, err, fault.ErrNotDocument)

	// nothing above reached the server
	n, err := c.Len()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestServerErrors(t *testing.T) {
	c := connect(t, startStack(t), "missing")

	_, err := c.Len()
	assert.ErrorIs(t, err, &wire.Error{Code: wire.CodeUnknownCollection})
}

func TestLock(t *testing.T) {
	addr := startStack(t)
	owner := connect(t, addr, "db")
	other := connect(t, addr, "db")

	uri, err := owner.Lock()
	require.NoError(t, err)
	assert.NotEmpty(t, uri)

	_, err = owner.Insert(store.Fields{"name": "exclusive"})
	require.NoError(t, err)

	served := make(chan int, 1)
	go func() {
		n, err := other.Len()
		if err == nil {
			served <- n
		}
	}()

	select {
	case <-served:
		t.Fatal("request served while locked")
	case <-time.After(200 * time.Millisecond):
	}

	require.NoError(t, owner.Unlock())

	select {
	case n := <-served:
		assert.Equal(t, 1, n)
	case <-time.After(2 * time.Second):
		t.Fatal("request not served after unlock")
	}

	// the owner is back on the standard connection
	n, err := owner.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestClosed(t *testing.T) {
	c, err := Dial(startStack(t), "db", nil)
	require.NoError(t, err)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err = c.Len()
	assert.ErrorIs(t, err, fault.ErrClosed)
}
