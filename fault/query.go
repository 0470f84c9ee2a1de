package fault

import "errors"

// Errors raised while building or rebuilding predicates.
var (
	ErrEmptyPath          = errors.New("query has no path")
	ErrUnknownOperator    = errors.New("unknown query operator")
	ErrUnknownConnection  = errors.New("unknown query connection")
	ErrInconsistentQuery  = errors.New("query sequences are inconsistent")
	ErrMissingLeaf        = errors.New("query connection has no remaining leaf")
	ErrInvalidRegex       = errors.New("invalid regular expression")
	ErrInvalidOperand     = errors.New("invalid query operand")
	ErrUnsupportedNesting = errors.New("query nesting cannot be flattened")
)
