package query

import (
	"fmt"

	"github.com/guyvdb/docstore/fault"
)

// Build creates the leaf predicate named by op. It is how a predicate
// received in serialized form is turned back into an executable one, so it
// refuses OpTest: a custom function cannot be described by data alone.
func Build(op Op, path []string, operand any) (*Predicate, error) {
	where := Where(path...)

	var pred *Predicate
	switch op {
	case OpEq:
		pred = where.Eq(operand)
	case OpNe:
		pred = where.Ne(operand)
	case OpLt:
		pred = where.Lt(operand)
	case OpLe:
		pred = where.Le(operand)
	case OpGt:
		pred = where.Gt(operand)
	case OpGe:
		pred = where.Ge(operand)
	case OpExists:
		pred = where.Exists()
	case OpMatches, OpSearch, OpExpr:
		s, ok := operand.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s needs a string, got %T", fault.ErrInvalidOperand, op, operand)
		}
		switch op {
		case OpMatches:
			pred = where.Matches(s)
		case OpSearch:
			pred = where.Search(s)
		default:
			pred = where.Expr(s)
		}
	default:
		return nil, fmt.Errorf("%w: '%s'", fault.ErrUnknownOperator, op)
	}

	if err := pred.Err(); err != nil {
		return nil, err
	}
	return pred, nil
}
