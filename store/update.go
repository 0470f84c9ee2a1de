package store

import (
	"fmt"

	jsonpatch "github.com/evanphx/json-patch"
	gojson "github.com/goccy/go-json"

	"github.com/guyvdb/docstore/dyno"
	"github.com/guyvdb/docstore/fault"
)

// UpdateKind names one of the closed set of update operations.
type UpdateKind int

const (
	// UpdateSet copies the given fields over the document's top level fields.
	UpdateSet UpdateKind = iota
	// UpdateMerge applies the given fields as an RFC 7386 merge patch, so
	// nested objects merge and null values delete keys.
	UpdateMerge
	// UpdateDelete removes the document.
	UpdateDelete
	// UpdateIncrement adds By to a numeric field. A missing field counts as 0.
	UpdateIncrement
	// UpdateDecrement subtracts By from a numeric field. A missing field counts as 0.
	UpdateDecrement
)

var updateKindNames = [...]string{"set", "merge", "delete", "increment", "decrement"}

func (k UpdateKind) String() string {
	if k < 0 || int(k) >= len(updateKindNames) {
		return fmt.Sprintf("UpdateKind(%d)", int(k))
	}
	return updateKindNames[k]
}

func (k UpdateKind) valid() bool {
	return k >= 0 && int(k) < len(updateKindNames)
}

// UpdateOp is an update operation applied to each matching document.
type UpdateOp struct {
	Kind   UpdateKind
	Fields Fields
	Field  string
	By     float64
}

func Set(fields Fields) UpdateOp {
	return UpdateOp{Kind: UpdateSet, Fields: fields}
}

func Merge(patch Fields) UpdateOp {
	return UpdateOp{Kind: UpdateMerge, Fields: patch}
}

func Delete() UpdateOp {
	return UpdateOp{Kind: UpdateDelete}
}

func Increment(field string, by float64) UpdateOp {
	return UpdateOp{Kind: UpdateIncrement, Field: field, By: by}
}

func Decrement(field string, by float64) UpdateOp {
	return UpdateOp{Kind: UpdateDecrement, Field: field, By: by}
}

// apply mutates the document stored under id. It receives the whole table
// so that UpdateDelete can drop the entry.
func (op UpdateOp) apply(t Table, id Id) error {
	doc := t[id]

	switch op.Kind {
	case UpdateSet:
		for k, v := range op.Fields {
			doc[k] = v
		}
	case UpdateMerge:
		merged, err := mergePatch(doc, op.Fields)
		if err != nil {
			return fmt.Errorf("merge into document %s: %w", id, err)
		}
		t[id] = merged
	case UpdateDelete:
		delete(t, id)
	case UpdateIncrement, UpdateDecrement:
		if op.Field == "" {
			return fmt.Errorf("%s requires a field: %w", op.Kind, fault.ErrUnknownUpdateOp)
		}
		var current float64
		if v, found := doc[op.Field]; found {
			n, ok := dyno.Number(v)
			if !ok {
				return fmt.Errorf("%w: '%s' of document %s", fault.ErrNotNumeric, op.Field, id)
			}
			current = n
		}
		if op.Kind == UpdateIncrement {
			doc[op.Field] = current + op.By
		} else {
			doc[op.Field] = current - op.By
		}
	default:
		return fmt.Errorf("%w: %d", fault.ErrUnknownUpdateOp, op.Kind)
	}
	return nil
}

func mergePatch(doc, patch Fields) (Fields, error) {
	original, err := gojson.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", fault.ErrMarshalFailed, err)
	}
	patchBytes, err := gojson.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", fault.ErrMarshalFailed, err)
	}

	merged, err := jsonpatch.MergePatch(original, patchBytes)
	if err != nil {
		return nil, err
	}

	out := Fields{}
	if err := gojson.Unmarshal(merged, &out); err != nil {
		return nil, fmt.Errorf("%w: %w", fault.ErrUnmarshalFailed, err)
	}
	return out, nil
}
