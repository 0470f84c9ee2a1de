// Package client talks to a docstore server or broker. Arguments are checked
// locally, so malformed requests never reach the wire.
package client

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/guyvdb/docstore/fault"
	"github.com/guyvdb/docstore/store"
	"github.com/guyvdb/docstore/wire"
)

// Client issues requests against one collection. A Client is safe for
// concurrent use; requests are serialized on its connection.
type Client struct {
	mu   sync.Mutex
	db   string
	addr string
	conn *wire.Conn
	// parked holds the standard connection while the client holds a lock.
	parked *wire.Conn
	log    *slog.Logger
}

type Options struct {
	Log *slog.Logger
}

// Dial connects to addr and binds the client to collection db.
func Dial(addr, db string, opts *Options) (*Client, error) {
	if opts == nil {
		opts = &Options{}
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	log.Debug("client.Dial - connecting", "addr", addr, "db", db)
	conn, err := wire.Dial(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	return &Client{db: db, addr: addr, conn: conn, log: log.With("db", db)}, nil
}

// DB returns the collection the client is bound to.
func (c *Client) DB() string {
	return c.db
}

// Collection returns a client for another collection on a fresh
// connection to the same address.
func (c *Client) Collection(db string) (*Client, error) {
	return Dial(c.addr, db, &Options{Log: c.log})
}

func (c *Client) send(req *wire.Request, out any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return fault.ErrClosed
	}
	resp, err := c.conn.Call(req)
	if err != nil {
		return err
	}
	return resp.Decode(out)
}

func (c *Client) run(fn string, q *wire.QueryInfo, kwargs map[string]any, out any) error {
	req := &wire.Request{Mode: wire.ModeRun, DB: c.db, Func: fn, Kwargs: kwargs}
	if q != nil {
		if err := q.Err(); err != nil {
			return err
		}
		req.SetQuery(*q)
	}
	c.log.Debug("Client.run() - send", "func", fn, "query", req.Query().String())
	return c.send(req, out)
}

func checkCondition(q wire.QueryInfo) error {
	if err := q.Err(); err != nil {
		return err
	}
	if q.Empty() {
		return fault.ErrMissingCondition
	}
	return nil
}

func toItems(docs []store.Fields) ([]any, error) {
	if docs == nil {
		return nil, fault.ErrNotSequence
	}
	items := make([]any, 0, len(docs))
	for _, doc := range docs {
		if doc == nil {
			return nil, fault.ErrNotDocument
		}
		items = append(items, map[string]any(doc))
	}
	return items, nil
}

func (c *Client) insert(fn string, docs []store.Fields) ([]store.Id, error) {
	items, err := toItems(docs)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return []store.Id{}, nil
	}

	var ids []store.Id
	req := &wire.Request{Mode: wire.ModeRun, DB: c.db, Func: fn, InsertItem: items}
	if err := c.send(req, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// Insert stores docs one at a time on the server. If it fails part way the
// earlier documents remain stored.
func (c *Client) Insert(docs ...store.Fields) ([]store.Id, error) {
	if docs == nil {
		docs = []store.Fields{}
	}
	return c.insert("insert", docs)
}

// InsertMultiple stores docs in a single server side cycle: all or none.
func (c *Client) InsertMultiple(docs []store.Fields) ([]store.Id, error) {
	return c.insert("insert_multiple", docs)
}

// Remove deletes the documents matching q.
func (c *Client) Remove(q wire.QueryInfo) ([]store.Id, error) {
	if err := checkCondition(q); err != nil {
		return nil, err
	}
	var ids []store.Id
	err := c.run("remove", &q, nil, &ids)
	return ids, err
}

// RemoveIds deletes the listed documents.
func (c *Client) RemoveIds(ids ...store.Id) ([]store.Id, error) {
	var out []store.Id
	err := c.run("remove", nil, map[string]any{"eids": idList(ids)}, &out)
	return out, err
}

// RemoveMatching deletes the documents whose fields equal every entry of
// fields.
func (c *Client) RemoveMatching(fields store.Fields) ([]store.Id, error) {
	if fields == nil {
		return nil, fault.ErrNotDocument
	}
	return c.Remove(wire.Matching(fields))
}

// Update applies op to the documents matching q.
func (c *Client) Update(op store.UpdateOp, q wire.QueryInfo) ([]store.Id, error) {
	if err := checkCondition(q); err != nil {
		return nil, err
	}
	name, kwargs, err := encodeOp(op)
	if err != nil {
		return nil, err
	}

	var ids []store.Id
	req := &wire.Request{Mode: wire.ModeRun, DB: c.db, Func: "update", UpdateOp: name, Kwargs: kwargs}
	req.SetQuery(q)
	err = c.send(req, &ids)
	return ids, err
}

// UpdateIds applies op to the listed documents.
func (c *Client) UpdateIds(op store.UpdateOp, ids ...store.Id) ([]store.Id, error) {
	name, kwargs, err := encodeOp(op)
	if err != nil {
		return nil, err
	}
	kwargs["eids"] = idList(ids)

	var out []store.Id
	err = c.send(&wire.Request{Mode: wire.ModeRun, DB: c.db, Func: "update", UpdateOp: name, Kwargs: kwargs}, &out)
	return out, err
}

// encodeOp validates op the way the server will.
func encodeOp(op store.UpdateOp) (string, map[string]any, error) {
	name, kwargs := wire.EncodeUpdateOp(op)
	if _, err := wire.ParseUpdateOp(name, kwargs); err != nil {
		return "", nil, err
	}
	return name, kwargs, nil
}

func idList(ids []store.Id) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}

// Search returns the documents matching q ordered by identity.
func (c *Client) Search(q wire.QueryInfo) ([]store.Document, error) {
	if err := checkCondition(q); err != nil {
		return nil, err
	}
	var docs []store.Document
	err := c.run("search", &q, nil, &docs)
	return docs, err
}

// Get returns the first document matching q, or nil.
func (c *Client) Get(q wire.QueryInfo) (*store.Document, error) {
	if err := checkCondition(q); err != nil {
		return nil, err
	}
	var doc *store.Document
	err := c.run("get", &q, nil, &doc)
	return doc, err
}

// GetId returns the document stored under id, or nil.
func (c *Client) GetId(id store.Id) (*store.Document, error) {
	var doc *store.Document
	err := c.run("get", nil, map[string]any{"eid": int64(id)}, &doc)
	return doc, err
}

func (c *Client) Count(q wire.QueryInfo) (int, error) {
	if err := checkCondition(q); err != nil {
		return 0, err
	}
	var n int
	err := c.run("count", &q, nil, &n)
	return n, err
}

func (c *Client) Contains(q wire.QueryInfo) (bool, error) {
	if err := checkCondition(q); err != nil {
		return false, err
	}
	var found bool
	err := c.run("contains", &q, nil, &found)
	return found, err
}

// ContainsIds reports whether any of ids is stored.
func (c *Client) ContainsIds(ids ...store.Id) (bool, error) {
	var found bool
	err := c.run("contains", nil, map[string]any{"eids": idList(ids)}, &found)
	return found, err
}

// ContainsMatching reports whether a document's fields equal every entry of
// fields.
func (c *Client) ContainsMatching(fields store.Fields) (bool, error) {
	if fields == nil {
		return false, fault.ErrNotDocument
	}
	return c.Contains(wire.Matching(fields))
}

func (c *Client) All() ([]store.Document, error) {
	var docs []store.Document
	err := c.run("all", nil, nil, &docs)
	return docs, err
}

func (c *Client) Len() (int, error) {
	var n int
	err := c.run("len", nil, nil, &n)
	return n, err
}

// Purge removes every document and restarts identities at 1.
func (c *Client) Purge() error {
	return c.run("purge", nil, nil, nil)
}

// ReadAll returns the documents of every collection on the server.
func (c *Client) ReadAll() (map[string][]store.Document, error) {
	var out map[string][]store.Document
	err := c.send(&wire.Request{Mode: wire.ModeReadAll}, &out)
	return out, err
}

// Lock asks the server for exclusive access. On success the client moves to
// the advertised lock endpoint; the standard connection is kept for Unlock.
func (c *Client) Lock() (string, error) {
	var lock wire.LockResult
	if err := c.send(&wire.Request{Mode: wire.ModeLock}, &lock); err != nil {
		return "", err
	}

	conn, err := wire.Dial(lock.URI)
	if err != nil {
		return "", fmt.Errorf("failed to connect to lock endpoint %s: %w", lock.URI, err)
	}

	c.mu.Lock()
	c.parked, c.conn = c.conn, conn
	c.mu.Unlock()

	c.log.Debug("Client.Lock() - locked", "uri", lock.URI)
	return lock.URI, nil
}

// Unlock releases the lock and returns to the standard connection.
func (c *Client) Unlock() error {
	var lock wire.LockResult
	if err := c.send(&wire.Request{Mode: wire.ModeUnlock}, &lock); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.parked != nil {
		c.conn.Close()
		c.conn, c.parked = c.parked, nil
	}
	c.log.Debug("Client.Unlock() - unlocked")
	return nil
}

// Close closes the connection. A held lock is not released.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	if c.parked != nil {
		c.parked.Close()
		c.parked = nil
	}
	c.conn = nil
	return err
}
