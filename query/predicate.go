// Package query builds and evaluates predicates over documents.
//
// A predicate is either a leaf, which tests the value found at a field path,
// or an AND/OR/NOT node over other predicates. Every predicate carries a
// structural key derived from how it was built, so two predicates built the
// same way compare equal and share result cache entries.
package query

import (
	"slices"
	"strings"
)

// Kind tags the variant of a Predicate.
type Kind int

const (
	KindLeaf Kind = iota
	KindAnd
	KindOr
	KindNot
)

// Predicate is an executable boolean test over a document's fields.
type Predicate struct {
	kind Kind

	// leaf
	op      Op
	path    []string
	operand any
	test    func(v any) bool

	// composites; NOT uses left only
	left, right *Predicate

	key string
	err error
}

// Kind returns the variant of p.
func (p *Predicate) Kind() Kind {
	return p.kind
}

// Op returns the comparator of a leaf.
func (p *Predicate) Op() Op {
	return p.op
}

// Path returns the field path of a leaf.
func (p *Predicate) Path() []string {
	return slices.Clone(p.path)
}

// Operand returns the operand of a leaf.
func (p *Predicate) Operand() any {
	return p.operand
}

// Children returns the operands of a composite predicate.
func (p *Predicate) Children() []*Predicate {
	switch p.kind {
	case KindAnd, KindOr:
		return []*Predicate{p.left, p.right}
	case KindNot:
		return []*Predicate{p.left}
	}
	return nil
}

// Err reports the first error met while building p or any of its children,
// such as an empty path or an invalid regular expression. A predicate with
// an error never matches.
func (p *Predicate) Err() error {
	return p.err
}

// Key returns the structural key of p.
func (p *Predicate) Key() string {
	return p.key
}

// Equal reports whether p and other have the same structural key.
//
// Keys of custom test predicates only record the name given to Path.Test,
// so two different functions registered under one name compare equal and
// share cache entries.
func (p *Predicate) Equal(other *Predicate) bool {
	return p != nil && other != nil && p.key == other.key
}

func (p *Predicate) String() string {
	return p.key
}

// Match evaluates p against a document's fields. Missing fields and type
// mismatches evaluate to false rather than failing.
func (p *Predicate) Match(fields map[string]any) bool {
	if p == nil || p.err != nil {
		return false
	}
	switch p.kind {
	case KindLeaf:
		return p.test(fields)
	case KindAnd:
		return p.left.Match(fields) && p.right.Match(fields)
	case KindOr:
		return p.left.Match(fields) || p.right.Match(fields)
	case KindNot:
		return !p.left.Match(fields)
	}
	return false
}

// And returns a predicate matching documents matched by both p and other.
func (p *Predicate) And(other *Predicate) *Predicate {
	return p.combine(KindAnd, "and", other)
}

// Or returns a predicate matching documents matched by p or other.
func (p *Predicate) Or(other *Predicate) *Predicate {
	return p.combine(KindOr, "or", other)
}

// Not returns the negation of p.
func (p *Predicate) Not() *Predicate {
	return &Predicate{
		kind: KindNot,
		left: p,
		key:  "not(" + p.key + ")",
		err:  p.err,
	}
}

// combine builds an AND/OR node. The key treats the two child keys as an
// unordered pair, matching the commutativity of the operators.
func (p *Predicate) combine(kind Kind, tag string, other *Predicate) *Predicate {
	pair := []string{p.key, other.key}
	slices.Sort(pair)

	err := p.err
	if err == nil {
		err = other.err
	}
	return &Predicate{
		kind:  kind,
		left:  p,
		right: other,
		key:   tag + "{" + strings.Join(pair, ",") + "}",
		err:   err,
	}
}
