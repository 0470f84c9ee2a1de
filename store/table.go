package store

import "slices"

// Ids returns the identities of the table in ascending order.
func (t Table) Ids() []Id {
	ids := make([]Id, 0, len(t))
	for id := range t {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// MaxId returns the largest identity in the table, or zero if it is empty.
func (t Table) MaxId() Id {
	var last Id
	for id := range t {
		if id > last {
			last = id
		}
	}
	return last
}

// Documents returns every document of the table ordered by identity.
func (t Table) Documents() []Document {
	docs := make([]Document, 0, len(t))
	for _, id := range t.Ids() {
		docs = append(docs, Document{Id: id, Fields: t[id]})
	}
	return docs
}
