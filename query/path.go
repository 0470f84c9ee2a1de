package query

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/guyvdb/docstore/dyno"
	"github.com/guyvdb/docstore/fault"
)

// Op is a leaf comparator.
type Op string

const (
	OpEq      Op = "=="
	OpNe      Op = "!="
	OpLt      Op = "<"
	OpLe      Op = "<="
	OpGt      Op = ">"
	OpGe      Op = ">="
	OpExists  Op = "exists"
	OpMatches Op = "matches"
	OpSearch  Op = "search"
	OpTest    Op = "test"
	OpExpr    Op = "expr"
)

// Path names a field inside a document. Extending a path never evaluates
// anything; a predicate is produced once a comparator is applied.
type Path struct {
	segments []string
}

// Where starts a path at the given segments.
//
//	query.Where("name").Eq("he")
//	query.Where("address").Field("city").Ne("Paris")
func Where(segments ...string) Path {
	return Path{segments: slices.Clone(segments)}
}

// Field extends the path by a map key.
func (p Path) Field(name string) Path {
	return Path{segments: append(slices.Clone(p.segments), name)}
}

// Index extends the path by a list index.
func (p Path) Index(i int) Path {
	return p.Field(strconv.Itoa(i))
}

// Segments returns the path segments.
func (p Path) Segments() []string {
	return slices.Clone(p.segments)
}

func (p Path) Eq(rhs any) *Predicate {
	return p.leaf(OpEq, rhs, func(v any) bool { return dyno.Equal(v, rhs) })
}

func (p Path) Ne(rhs any) *Predicate {
	return p.leaf(OpNe, rhs, func(v any) bool { return !dyno.Equal(v, rhs) })
}

func (p Path) Lt(rhs any) *Predicate {
	return p.leaf(OpLt, rhs, ordered(rhs, func(c int) bool { return c < 0 }))
}

func (p Path) Le(rhs any) *Predicate {
	return p.leaf(OpLe, rhs, ordered(rhs, func(c int) bool { return c <= 0 }))
}

func (p Path) Gt(rhs any) *Predicate {
	return p.leaf(OpGt, rhs, ordered(rhs, func(c int) bool { return c > 0 }))
}

func (p Path) Ge(rhs any) *Predicate {
	return p.leaf(OpGe, rhs, ordered(rhs, func(c int) bool { return c >= 0 }))
}

// Exists matches when the path resolves to any value, null included.
func (p Path) Exists() *Predicate {
	return p.leaf(OpExists, nil, func(any) bool { return true })
}

// Matches tests a string value against a regular expression that must match
// the whole value.
func (p Path) Matches(pattern string) *Predicate {
	re, err := regexp.Compile(`^(?:` + pattern + `)$`)
	if err != nil {
		return p.failed(OpMatches, pattern, fmt.Errorf("%w: %w", fault.ErrInvalidRegex, err))
	}
	return p.leaf(OpMatches, pattern, regexTest(re))
}

// Search tests a string value for a regular expression match anywhere in it.
func (p Path) Search(pattern string) *Predicate {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return p.failed(OpSearch, pattern, fmt.Errorf("%w: %w", fault.ErrInvalidRegex, err))
	}
	return p.leaf(OpSearch, pattern, regexTest(re))
}

// Test applies a custom function to the value. Only name enters the
// predicate key: two different functions given the same name are treated
// as the same predicate by equality and by the result cache.
func (p Path) Test(name string, fn func(v any) bool) *Predicate {
	return p.leaf(OpTest, name, fn)
}

// Expr evaluates an expr-lang boolean expression against the value, which
// the expression sees as `value`. Unlike Test it can be sent to a server,
// since only its source text travels.
func (p Path) Expr(source string) *Predicate {
	program, err := expr.Compile(source, expr.AsBool())
	if err != nil {
		return p.failed(OpExpr, source, fmt.Errorf("%w: %w", fault.ErrInvalidOperand, err))
	}
	return p.leaf(OpExpr, source, exprTest(program))
}

// leaf wraps test with the path walk. A path that cannot be resolved never
// matches.
func (p Path) leaf(op Op, operand any, test func(v any) bool) *Predicate {
	pred := &Predicate{
		kind:    KindLeaf,
		op:      op,
		path:    slices.Clone(p.segments),
		operand: operand,
		key:     leafKey(op, p.segments, operand),
	}
	if len(p.segments) == 0 {
		pred.err = fault.ErrEmptyPath
		return pred
	}

	path := pred.path
	pred.test = func(v any) bool {
		value, ok := dyno.Lookup(v, path)
		if !ok {
			return false
		}
		return test(value)
	}
	return pred
}

func (p Path) failed(op Op, operand any, err error) *Predicate {
	pred := p.leaf(op, operand, func(any) bool { return false })
	if pred.err == nil {
		pred.err = err
	}
	return pred
}

func leafKey(op Op, path []string, operand any) string {
	if op == OpExists {
		return fmt.Sprintf("(%s,%q)", op, path)
	}
	return fmt.Sprintf("(%s,%q,%#v)", op, path, operand)
}

func ordered(rhs any, accept func(c int) bool) func(v any) bool {
	return func(v any) bool {
		c, ok := dyno.Compare(v, rhs)
		return ok && accept(c)
	}
}

func regexTest(re *regexp.Regexp) func(v any) bool {
	return func(v any) bool {
		s, ok := v.(string)
		return ok && re.MatchString(s)
	}
}

func exprTest(program *vm.Program) func(v any) bool {
	return func(v any) bool {
		out, err := expr.Run(program, map[string]any{"value": v})
		if err != nil {
			return false
		}
		b, ok := out.(bool)
		return ok && b
	}
}
