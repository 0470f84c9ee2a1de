// Package catalog maps collection names to their stores. The session server
// owns one Catalog and resolves the db field of every request through it.
package catalog

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/guyvdb/docstore/fault"
	"github.com/guyvdb/docstore/store"
)

// Catalog is a registry of open collections.
type Catalog struct {
	mu        sync.RWMutex
	items     []*store.Store // in registration order
	nameIndex map[string]*store.Store
	log       *slog.Logger
}

func New(log *slog.Logger) *Catalog {
	if log == nil {
		log = slog.Default()
	}
	log.Debug("catalog.New - create catalog")
	return &Catalog{
		items:     make([]*store.Store, 0),
		nameIndex: make(map[string]*store.Store),
		log:       log,
	}
}

// Register adds s under its name. Names are unique.
func (c *Catalog) Register(s *store.Store) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, found := c.nameIndex[s.Name()]; found {
		return fmt.Errorf("collection '%s' is already registered", s.Name())
	}
	c.items = append(c.items, s)
	c.nameIndex[s.Name()] = s

	c.log.Debug("Catalog.Register() - register collection", "name", s.Name())
	return nil
}

// Get returns the store registered under name.
func (c *Catalog) Get(name string) (*store.Store, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, found := c.nameIndex[name]
	if !found {
		return nil, fmt.Errorf("%w: '%s'", fault.ErrUnknownCollection, name)
	}
	return s, nil
}

// Names returns the registered names in sorted order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.items))
	for _, s := range c.items {
		names = append(names, s.Name())
	}
	slices.Sort(names)
	return names
}

// ReloadAll reloads every store, see store.Store.Reload.
func (c *Catalog) ReloadAll() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var errs []error
	for _, s := range c.items {
		if err := s.Reload(); err != nil {
			errs = append(errs, fmt.Errorf("reload %s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every store and empties the catalog.
func (c *Catalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for _, s := range c.items {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", s.Name(), err))
		}
	}
	c.items = c.items[:0]
	clear(c.nameIndex)
	return errors.Join(errs...)
}
