package storage

import (
	"sync"
	"sync/atomic"

	"github.com/guyvdb/docstore/dyno"
	"github.com/guyvdb/docstore/fault"
	"github.com/guyvdb/docstore/store"
)

var _ store.Storage = (*MemoryStorage)(nil)

// MemoryStorage keeps the table in process memory. Reads and writes copy the
// table so callers never share maps with the stored state.
type MemoryStorage struct {
	mu     sync.RWMutex
	table  store.Table
	closed bool
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (m *MemoryStorage) Read() (store.Table, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fault.ErrClosed
	}
	if m.table == nil {
		return nil, nil
	}
	return copyTable(m.table), nil
}

func (m *MemoryStorage) Write(t store.Table) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fault.ErrClosed
	}
	m.table = copyTable(t)
	return nil
}

func (m *MemoryStorage) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Handle returns a view of m for one more owner. Closing the handle detaches
// that owner only; the table stays readable through m and its other handles.
func (m *MemoryStorage) Handle() store.Storage {
	return &memoryHandle{m: m}
}

type memoryHandle struct {
	m      *MemoryStorage
	closed atomic.Bool
}

func (h *memoryHandle) Read() (store.Table, error) {
	if h.closed.Load() {
		return nil, fault.ErrClosed
	}
	return h.m.Read()
}

func (h *memoryHandle) Write(t store.Table) error {
	if h.closed.Load() {
		return fault.ErrClosed
	}
	return h.m.Write(t)
}

func (h *memoryHandle) Close() error {
	h.closed.Store(true)
	return nil
}

func copyTable(t store.Table) store.Table {
	out := make(store.Table, len(t))
	for id, fields := range t {
		out[id] = dyno.CopyMap(fields)
	}
	return out
}
