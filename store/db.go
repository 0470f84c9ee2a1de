package store

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/guyvdb/docstore/fault"
)

// DefaultCacheSize is the number of search results a Store remembers when
// Options.CacheSize is not set.
const DefaultCacheSize = 10

type Options struct {
	// CacheSize bounds the result cache. Zero selects DefaultCacheSize and a
	// negative value disables eviction.
	CacheSize int
	Log       *slog.Logger
}

// Store runs read-modify-write cycles for one collection. Every operation
// reads the whole table from its Storage and every mutation writes it back;
// no table is kept in memory between operations. Only the identity counter
// lives in process memory.
//
// A Store is meant to be driven by a single goroutine. Two Stores over the
// same backing file (for example in two workers) race on that file: the
// last writer wins and identities may be issued twice.
type Store struct {
	name    string
	storage Storage
	cache   *ResultCache
	lastId  Id
	opened  bool
	log     *slog.Logger
}

// Open creates a Store over storage. The identity counter starts from the
// largest identity already stored, or zero.
func Open(name string, storage Storage, opts *Options) (*Store, error) {
	if opts == nil {
		opts = &Options{}
	}
	size := opts.CacheSize
	if size == 0 {
		size = DefaultCacheSize
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	s := &Store{
		name:    name,
		storage: storage,
		cache:   NewResultCache(size),
		opened:  true,
		log:     log.With("collection", name),
	}

	t, err := s.read()
	if err != nil {
		return nil, err
	}
	s.lastId = t.MaxId()

	s.log.Debug("Store.Open() - open collection", "documents", len(t), "lastId", s.lastId)
	return s, nil
}

// Name returns the collection name.
func (s *Store) Name() string {
	return s.name
}

// LastId returns the most recently issued identity.
func (s *Store) LastId() Id {
	return s.lastId
}

// Cache exposes the result cache, mostly for inspection.
func (s *Store) Cache() *ResultCache {
	return s.cache
}

func (s *Store) nextId() Id {
	s.lastId++
	return s.lastId
}

func (s *Store) read() (Table, error) {
	if !s.opened {
		return nil, fault.ErrClosed
	}
	t, err := s.storage.Read()
	if err != nil {
		return nil, err
	}
	if t == nil {
		t = Table{}
	}
	return t, nil
}

func (s *Store) write(t Table) error {
	s.cache.Clear()
	return s.storage.Write(t)
}

// processElements is the traversal shared by remove and update. It loads the
// table, applies mutate to each identity selected by ids (when non nil) or
// by cond, persists once and returns the affected identities in ascending
// order. If mutate fails nothing is written.
func (s *Store) processElements(mutate func(t Table, id Id) error, cond Predicate, ids []Id) ([]Id, error) {
	if !s.opened {
		return nil, fault.ErrClosed
	}
	s.cache.Clear()

	if ids == nil && cond == nil {
		return nil, fault.ErrMissingCondition
	}

	t, err := s.read()
	if err != nil {
		return nil, err
	}

	affected := make([]Id, 0)
	if ids != nil {
		// each identity is affected once, however often it is listed
		ids = slices.Clone(ids)
		SortIds(ids)
		for _, id := range slices.Compact(ids) {
			if _, found := t[id]; !found {
				continue
			}
			if err := mutate(t, id); err != nil {
				return nil, err
			}
			affected = append(affected, id)
		}
	} else {
		for _, id := range t.Ids() {
			if !cond.Match(t[id]) {
				continue
			}
			if err := mutate(t, id); err != nil {
				return nil, err
			}
			affected = append(affected, id)
		}
	}

	if err := s.write(t); err != nil {
		return nil, err
	}
	return affected, nil
}

// Insert stores doc under the next identity and returns it.
func (s *Store) Insert(doc Fields) (Id, error) {
	if doc == nil {
		return 0, fault.ErrNotDocument
	}
	t, err := s.read()
	if err != nil {
		return 0, err
	}

	id := s.nextId()
	t[id] = doc
	if err := s.write(t); err != nil {
		return 0, err
	}

	s.log.Debug("Store.Insert() - insert document", "id", id)
	return id, nil
}

// InsertEach inserts docs one at a time, each in its own read-modify-write
// cycle. A failure part way leaves the earlier documents stored and returns
// their identities along with the error, so a crash loses at most a suffix
// of the batch.
func (s *Store) InsertEach(docs []Fields) ([]Id, error) {
	if err := validateDocuments(docs); err != nil {
		return nil, err
	}

	ids := make([]Id, 0, len(docs))
	for _, doc := range docs {
		id, err := s.Insert(doc)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// InsertMany inserts docs in a single read-modify-write cycle. Either the
// whole batch is persisted or none of it is. Identities allocated for a
// batch that failed to persist are not reused.
func (s *Store) InsertMany(docs []Fields) ([]Id, error) {
	if err := validateDocuments(docs); err != nil {
		return nil, err
	}

	t, err := s.read()
	if err != nil {
		return nil, err
	}

	ids := make([]Id, 0, len(docs))
	for _, doc := range docs {
		id := s.nextId()
		t[id] = doc
		ids = append(ids, id)
	}

	if err := s.write(t); err != nil {
		return nil, err
	}

	s.log.Debug("Store.InsertMany() - insert documents", "count", len(ids))
	return ids, nil
}

func validateDocuments(docs []Fields) error {
	if docs == nil {
		return fault.ErrNotSequence
	}
	for _, doc := range docs {
		if doc == nil {
			return fault.ErrNotDocument
		}
	}
	return nil
}

// Remove deletes every document matching cond.
func (s *Store) Remove(cond Predicate) ([]Id, error) {
	ids, err := s.processElements(removeElement, cond, nil)
	if err == nil {
		s.log.Debug("Store.Remove() - removed documents", "ids", ids)
	}
	return ids, err
}

// RemoveIds deletes the listed documents. Identities that are not stored are
// ignored.
func (s *Store) RemoveIds(ids []Id) ([]Id, error) {
	if ids == nil {
		ids = []Id{}
	}
	return s.processElements(removeElement, nil, ids)
}

func removeElement(t Table, id Id) error {
	delete(t, id)
	return nil
}

// Update applies op to every document matching cond.
func (s *Store) Update(op UpdateOp, cond Predicate) ([]Id, error) {
	if !op.Kind.valid() {
		return nil, fmt.Errorf("%w: %s", fault.ErrUnknownUpdateOp, op.Kind)
	}
	ids, err := s.processElements(op.apply, cond, nil)
	if err == nil {
		s.log.Debug("Store.Update() - updated documents", "op", op.Kind.String(), "ids", ids)
	}
	return ids, err
}

// UpdateIds applies op to the listed documents.
func (s *Store) UpdateIds(op UpdateOp, ids []Id) ([]Id, error) {
	if !op.Kind.valid() {
		return nil, fmt.Errorf("%w: %s", fault.ErrUnknownUpdateOp, op.Kind)
	}
	if ids == nil {
		ids = []Id{}
	}
	return s.processElements(op.apply, nil, ids)
}

// UpdateFunc runs fn for every document matching cond. fn is handed the
// whole table so it can touch other documents too; it is trusted not to
// break the identity invariants.
func (s *Store) UpdateFunc(fn func(t Table, id Id) error, cond Predicate) ([]Id, error) {
	return s.processElements(fn, cond, nil)
}

// Search returns every document matching cond, ordered by identity. Results
// are served from the result cache until the next write. The returned
// documents share their fields with the cache and must not be modified.
func (s *Store) Search(cond Predicate) ([]Document, error) {
	if !s.opened {
		return nil, fault.ErrClosed
	}
	if cond == nil {
		return nil, fault.ErrMissingCondition
	}

	key := cond.Key()
	if docs, ok := s.cache.Get(key); ok {
		s.log.Debug("Store.Search() - cache hit", "key", key)
		return append([]Document(nil), docs...), nil
	}

	t, err := s.read()
	if err != nil {
		return nil, err
	}

	docs := make([]Document, 0)
	for _, id := range t.Ids() {
		if cond.Match(t[id]) {
			docs = append(docs, Document{Id: id, Fields: t[id]})
		}
	}
	s.cache.Put(key, docs)

	return append([]Document(nil), docs...), nil
}

// Get returns the first document matching cond, or nil.
func (s *Store) Get(cond Predicate) (*Document, error) {
	if cond == nil {
		return nil, fault.ErrMissingCondition
	}
	t, err := s.read()
	if err != nil {
		return nil, err
	}
	for _, id := range t.Ids() {
		if cond.Match(t[id]) {
			return &Document{Id: id, Fields: t[id]}, nil
		}
	}
	return nil, nil
}

// GetId returns the document stored under id, or nil.
func (s *Store) GetId(id Id) (*Document, error) {
	t, err := s.read()
	if err != nil {
		return nil, err
	}
	fields, found := t[id]
	if !found {
		return nil, nil
	}
	return &Document{Id: id, Fields: fields}, nil
}

// Count returns the number of documents matching cond.
func (s *Store) Count(cond Predicate) (int, error) {
	docs, err := s.Search(cond)
	if err != nil {
		return 0, err
	}
	return len(docs), nil
}

// Contains reports whether any document matches cond.
func (s *Store) Contains(cond Predicate) (bool, error) {
	doc, err := s.Get(cond)
	if err != nil {
		return false, err
	}
	return doc != nil, nil
}

// ContainsIds reports whether any of ids is stored.
func (s *Store) ContainsIds(ids []Id) (bool, error) {
	t, err := s.read()
	if err != nil {
		return false, err
	}
	for _, id := range ids {
		if _, found := t[id]; found {
			return true, nil
		}
	}
	return false, nil
}

// All returns every document ordered by identity.
func (s *Store) All() ([]Document, error) {
	t, err := s.read()
	if err != nil {
		return nil, err
	}
	return t.Documents(), nil
}

// Len returns the number of stored documents.
func (s *Store) Len() (int, error) {
	t, err := s.read()
	if err != nil {
		return 0, err
	}
	return len(t), nil
}

// Purge removes every document and resets the identity counter, so the next
// insert is issued identity 1.
func (s *Store) Purge() error {
	if !s.opened {
		return fault.ErrClosed
	}
	if err := s.write(Table{}); err != nil {
		return err
	}
	s.lastId = 0
	s.log.Debug("Store.Purge() - purged collection")
	return nil
}

// Reload drops cached results and advances the identity counter past any
// identity written by another process. Read only workers call it while idle.
func (s *Store) Reload() error {
	t, err := s.read()
	if err != nil {
		return err
	}
	s.cache.Clear()
	if last := t.MaxId(); last > s.lastId {
		s.lastId = last
	}
	return nil
}

// Close closes the underlying storage. Every later operation fails with
// fault.ErrClosed.
func (s *Store) Close() error {
	if !s.opened {
		return nil
	}
	s.opened = false
	s.cache.Clear()
	s.log.Debug("Store.Close() - close collection")
	return s.storage.Close()
}
