package server

import (
	"fmt"
	"math"

	"github.com/guyvdb/docstore/dyno"
	"github.com/guyvdb/docstore/fault"
	"github.com/guyvdb/docstore/store"
	"github.com/guyvdb/docstore/wire"
)

// call is a decoded run request bound to its collection.
type call struct {
	store *store.Store
	req   *wire.Request
	cond  store.Predicate
	// ids is set when the request names identities through the eids option.
	ids []store.Id
}

type handler func(c *call) (any, error)

// handlers is the closed set of functions a run request may name.
var handlers = map[string]handler{
	"insert":          insertEach,
	"insert_multiple": insertMany,
	"remove":          remove,
	"update":          update,
	"search":          search,
	"get":             get,
	"count":           count,
	"contains":        contains,
	"all":             all,
	"len":             length,
	"__len__":         length,
	"purge":           purge,
}

var mutators = map[string]bool{
	"insert":          true,
	"insert_multiple": true,
	"remove":          true,
	"update":          true,
	"purge":           true,
}

func (s *Server) run(req *wire.Request) (any, error) {
	st, err := s.Spec.Catalog.Get(req.DB)
	if err != nil {
		return nil, err
	}

	h, found := handlers[req.Func]
	if !found {
		return nil, fmt.Errorf("%w: '%s'", fault.ErrUnknownFunc, req.Func)
	}
	if s.Spec.Config.ReadOnly && mutators[req.Func] {
		return nil, fmt.Errorf("%w: '%s'", fault.ErrReadOnly, req.Func)
	}

	c := &call{store: st, req: req}

	pred, err := req.Query().Reconstruct()
	if err != nil {
		return nil, err
	}
	if pred != nil {
		c.cond = pred
	}

	if raw, found := req.Kwargs["eids"]; found {
		if c.ids, err = parseIds(raw); err != nil {
			return nil, err
		}
	}
	return h(c)
}

func parseIds(raw any) ([]store.Id, error) {
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: eids must be a list", fault.ErrNotSequence)
	}
	ids := make([]store.Id, 0, len(list))
	for _, v := range list {
		id, err := parseId(v)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseId(v any) (store.Id, error) {
	n, ok := dyno.Number(v)
	if !ok || n != math.Trunc(n) {
		return 0, fmt.Errorf("%w: %v", fault.ErrInvalidIdFormat, v)
	}
	if n < 1 {
		return 0, fmt.Errorf("%w: %v", fault.ErrInvalidId, v)
	}
	return store.Id(n), nil
}

func documents(items []any) ([]store.Fields, error) {
	if items == nil {
		return nil, fault.ErrNotSequence
	}
	docs := make([]store.Fields, 0, len(items))
	for i, item := range items {
		doc, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: element %d is %T", fault.ErrNotDocument, i, item)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// insertEach persists every document in its own cycle.
func insertEach(c *call) (any, error) {
	docs, err := documents(c.req.InsertItem)
	if err != nil {
		return nil, err
	}
	return c.store.InsertEach(docs)
}

// insertMany persists the whole batch in one cycle.
func insertMany(c *call) (any, error) {
	docs, err := documents(c.req.InsertItem)
	if err != nil {
		return nil, err
	}
	return c.store.InsertMany(docs)
}

func remove(c *call) (any, error) {
	if c.ids != nil {
		return c.store.RemoveIds(c.ids)
	}
	return c.store.Remove(c.cond)
}

func update(c *call) (any, error) {
	op, err := wire.ParseUpdateOp(c.req.UpdateOp, c.req.Kwargs)
	if err != nil {
		return nil, err
	}
	if c.ids != nil {
		return c.store.UpdateIds(op, c.ids)
	}
	return c.store.Update(op, c.cond)
}

func search(c *call) (any, error) {
	return c.store.Search(c.cond)
}

// get returns one document, chosen by the eid option or the condition.
func get(c *call) (any, error) {
	if raw, found := c.req.Kwargs["eid"]; found {
		id, err := parseId(raw)
		if err != nil {
			return nil, err
		}
		return c.store.GetId(id)
	}
	return c.store.Get(c.cond)
}

func count(c *call) (any, error) {
	return c.store.Count(c.cond)
}

func contains(c *call) (any, error) {
	if c.ids != nil {
		return c.store.ContainsIds(c.ids)
	}
	return c.store.Contains(c.cond)
}

func all(c *call) (any, error) {
	return c.store.All()
}

func length(c *call) (any, error) {
	return c.store.Len()
}

func purge(c *call) (any, error) {
	if err := c.store.Purge(); err != nil {
		return nil, err
	}
	return true, nil
}
