package store

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/guyvdb/docstore/fault"
)

// Id is the identity of a document inside one collection. Identities are
// positive, allocated once at insertion and never reused.
type Id int64

// IdFromString parses the base 10 form produced by Id.String. It is the key
// format used by the storage backends.
func IdFromString(s string) (Id, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w '%s': %w", fault.ErrInvalidIdFormat, s, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%w: %d", fault.ErrInvalidId, n)
	}
	return Id(n), nil
}

func (id Id) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// SortIds sorts ids in ascending order in place.
func SortIds(ids []Id) {
	slices.Sort(ids)
}
