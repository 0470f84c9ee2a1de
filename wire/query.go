// Package wire is the message protocol spoken between clients and the
// session server.
//
// A predicate travels as four parallel sequences: the field path of every
// leaf, its operator name, its operand, and the connection tokens that join
// the leaves. The server folds them strictly left to right: the first leaf
// starts the accumulator, a binary token combines it with the next leaf and
// a unary token negates it. There is no precedence or grouping.
//
// Every message is a single JSON document terminated by a newline.
package wire

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/guyvdb/docstore/fault"
	"github.com/guyvdb/docstore/query"
)

// Connection tokens.
const (
	ConnAnd    = "__and__"
	ConnOr     = "__or__"
	ConnInvert = "__invert__"
)

// Operator names as they appear on the wire.
var opNames = map[string]query.Op{
	"__eq__":  query.OpEq,
	"__ne__":  query.OpNe,
	"__lt__":  query.OpLt,
	"__le__":  query.OpLe,
	"__gt__":  query.OpGt,
	"__ge__":  query.OpGe,
	"exists":  query.OpExists,
	"matches": query.OpMatches,
	"search":  query.OpSearch,
	"expr":    query.OpExpr,
}

// QueryInfo is the serialized form of a predicate. Values are immutable:
// combinators return a new QueryInfo and leave their operands untouched.
type QueryInfo struct {
	Entry      [][]string
	Op         []string
	Args       []any
	Connection []string

	err error
}

// Err reports an error recorded while building q, such as an empty path or
// a combination that left to right folding cannot express. Clients check it
// before anything is sent.
func (q QueryInfo) Err() error {
	return q.err
}

// Empty reports whether q has no leaves.
func (q QueryInfo) Empty() bool {
	return len(q.Entry) == 0 && len(q.Connection) == 0
}

func (q QueryInfo) composite() bool {
	return len(q.Connection) > 0
}

func (q QueryInfo) String() string {
	return fmt.Sprintf("QueryInfo%q,%q,%v,%q", q.Entry, q.Op, q.Args, q.Connection)
}

// And joins q and other with ConnAnd.
func (q QueryInfo) And(other QueryInfo) QueryInfo {
	return q.join(ConnAnd, other)
}

// Or joins q and other with ConnOr.
func (q QueryInfo) Or(other QueryInfo) QueryInfo {
	return q.join(ConnOr, other)
}

// Not negates q.
func (q QueryInfo) Not() QueryInfo {
	out := q.clone()
	out.Connection = append(out.Connection, ConnInvert)
	return out
}

// join appends other's leaves and one token. Folding only ever combines the
// accumulator with a single leaf, so when other is composite the operands
// are swapped, which AND and OR allow. Two composite operands cannot be
// flattened and the result carries fault.ErrUnsupportedNesting.
func (q QueryInfo) join(token string, other QueryInfo) QueryInfo {
	left, right := q, other
	if right.composite() {
		if left.composite() {
			out := q.clone()
			out.err = fmt.Errorf("%w: %s of two composite queries", fault.ErrUnsupportedNesting, token)
			return out
		}
		left, right = right, left
	}

	out := left.clone()
	if out.err == nil {
		out.err = right.err
	}
	out.Entry = append(out.Entry, cloneEntry(right.Entry)...)
	out.Op = append(out.Op, right.Op...)
	out.Args = append(out.Args, right.Args...)
	out.Connection = append(out.Connection, right.Connection...)
	out.Connection = append(out.Connection, token)
	return out
}

func (q QueryInfo) clone() QueryInfo {
	return QueryInfo{
		Entry:      cloneEntry(q.Entry),
		Op:         slices.Clone(q.Op),
		Args:       slices.Clone(q.Args),
		Connection: slices.Clone(q.Connection),
		err:        q.err,
	}
}

func cloneEntry(entry [][]string) [][]string {
	out := make([][]string, len(entry))
	for i, path := range entry {
		out[i] = slices.Clone(path)
	}
	return out
}

// Reconstruct folds q back into an executable predicate. An empty QueryInfo
// yields a nil predicate and no error.
func (q QueryInfo) Reconstruct() (*query.Predicate, error) {
	n := len(q.Entry)
	if len(q.Op) != n || len(q.Args) != n {
		return nil, fmt.Errorf("%w: %d paths, %d operators, %d operands", fault.ErrInconsistentQuery, n, len(q.Op), len(q.Args))
	}
	if n == 0 {
		if len(q.Connection) > 0 {
			return nil, fault.ErrMissingLeaf
		}
		return nil, nil
	}

	next := 0
	leaf := func() (*query.Predicate, error) {
		i := next
		next++
		op, ok := opNames[q.Op[i]]
		if !ok {
			return nil, fmt.Errorf("%w: '%s'", fault.ErrUnknownOperator, q.Op[i])
		}
		if len(q.Entry[i]) == 0 {
			return nil, fault.ErrEmptyPath
		}
		return query.Build(op, q.Entry[i], q.Args[i])
	}

	acc, err := leaf()
	if err != nil {
		return nil, err
	}

	for pos, token := range q.Connection {
		switch token {
		case ConnAnd, ConnOr:
			if next >= n {
				return nil, fmt.Errorf("%w: '%s' at position %d", fault.ErrMissingLeaf, token, pos)
			}
			right, err := leaf()
			if err != nil {
				return nil, err
			}
			if token == ConnAnd {
				acc = acc.And(right)
			} else {
				acc = acc.Or(right)
			}
		case ConnInvert:
			acc = acc.Not()
		default:
			return nil, fmt.Errorf("%w: '%s'", fault.ErrUnknownConnection, token)
		}
	}

	if next != n {
		return nil, fmt.Errorf("%w: %d leaves left unconnected", fault.ErrInconsistentQuery, n-next)
	}
	return acc, nil
}

// Field accumulates a field path on the client side. Nothing is evaluated
// until a comparator is applied.
//
//	wire.Where("name").Eq("he").Or(wire.Where("age").Gt(30))
type Field struct {
	path []string
}

func Where(segments ...string) Field {
	return Field{path: slices.Clone(segments)}
}

// Field extends the path by a map key.
func (f Field) Field(name string) Field {
	return Field{path: append(slices.Clone(f.path), name)}
}

// Index extends the path by a list index.
func (f Field) Index(i int) Field {
	return f.Field(strconv.Itoa(i))
}

func (f Field) Eq(rhs any) QueryInfo { return f.leaf("__eq__", rhs) }
func (f Field) Ne(rhs any) QueryInfo { return f.leaf("__ne__", rhs) }
func (f Field) Lt(rhs any) QueryInfo { return f.leaf("__lt__", rhs) }
func (f Field) Le(rhs any) QueryInfo { return f.leaf("__le__", rhs) }
func (f Field) Gt(rhs any) QueryInfo { return f.leaf("__gt__", rhs) }
func (f Field) Ge(rhs any) QueryInfo { return f.leaf("__ge__", rhs) }

func (f Field) Exists() QueryInfo { return f.leaf("exists", nil) }

// Matches requires the whole string value to match pattern.
func (f Field) Matches(pattern string) QueryInfo { return f.leaf("matches", pattern) }

// Search looks for pattern anywhere in the string value.
func (f Field) Search(pattern string) QueryInfo { return f.leaf("search", pattern) }

// Expr sends an expr-lang boolean expression over `value`. It is the remote
// counterpart of a custom test function.
func (f Field) Expr(source string) QueryInfo { return f.leaf("expr", source) }

func (f Field) leaf(op string, operand any) QueryInfo {
	q := QueryInfo{
		Entry: [][]string{slices.Clone(f.path)},
		Op:    []string{op},
		Args:  []any{operand},
	}
	if len(f.path) == 0 {
		q.err = fault.ErrEmptyPath
	}
	return q
}

// Matching builds the AND of equality leaves over fields, in key order.
func Matching(fields map[string]any) QueryInfo {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var q QueryInfo
	for i, k := range keys {
		leaf := Where(k).Eq(fields[k])
		if i == 0 {
			q = leaf
		} else {
			q = q.And(leaf)
		}
	}
	return q
}
