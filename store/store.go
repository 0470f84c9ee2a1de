package store

// Fields is the field mapping of a document. Nested values are the
// map[string]any / []any / scalar trees produced by decoding JSON.
type Fields = map[string]any

// Document is a field mapping together with the identity it is stored
// under. The identity is metadata and never appears among the fields.
type Document struct {
	Id     Id     `json:"id"`
	Fields Fields `json:"fields"`
}

// Table holds every document of a collection keyed by identity.
type Table map[Id]Fields

// Storage persists and retrieves the whole Table of one collection as a
// single unit.
type Storage interface {
	// Read returns the stored table, or nil when nothing was stored yet.
	Read() (Table, error)
	// Write replaces the stored table.
	Write(t Table) error
	Close() error
}

// Predicate is a boolean test over a document's fields. Key is a structural
// key: predicates built the same way report the same Key and the result
// cache relies on that.
type Predicate interface {
	Match(fields Fields) bool
	Key() string
}
