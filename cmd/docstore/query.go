package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	gojson "github.com/goccy/go-json"
	"github.com/lmittmann/tint"
	"github.com/scott-cotton/cli"

	"github.com/guyvdb/docstore/wire"
)

// parseQuery reads terms of the form `path op [value]` joined by and/or,
// each optionally followed by not. Terms fold left to right, exactly as the
// server folds them. Paths are dot separated; values are JSON when they
// parse as JSON and plain strings otherwise.
//
//	name == he or age '>' 30 not
func parseQuery(args []string) (wire.QueryInfo, error) {
	var q wire.QueryInfo
	join := ""
	for len(args) > 0 {
		if len(args) < 2 {
			return q, fmt.Errorf("%w: incomplete term %q", cli.ErrUsage, strings.Join(args, " "))
		}
		field := wire.Where(strings.Split(args[0], ".")...)
		op := args[1]
		args = args[2:]

		var term wire.QueryInfo
		if op == "exists" {
			term = field.Exists()
		} else {
			if len(args) == 0 {
				return q, fmt.Errorf("%w: %s needs a value", cli.ErrUsage, op)
			}
			var err error
			if term, err = leaf(field, op, args[0]); err != nil {
				return q, err
			}
			args = args[1:]
		}

		switch join {
		case "":
			q = term
		case "and":
			q = q.And(term)
		case "or":
			q = q.Or(term)
		}

		for len(args) > 0 && args[0] == "not" {
			q = q.Not()
			args = args[1:]
		}
		if len(args) == 0 {
			break
		}
		join = args[0]
		if join != "and" && join != "or" {
			return q, fmt.Errorf("%w: expected and/or, got %q", cli.ErrUsage, join)
		}
		args = args[1:]
		if len(args) == 0 {
			return q, fmt.Errorf("%w: dangling %q", cli.ErrUsage, join)
		}
	}
	if q.Empty() {
		return q, fmt.Errorf("%w: empty query", cli.ErrUsage)
	}
	return q, q.Err()
}

func leaf(field wire.Field, op, raw string) (wire.QueryInfo, error) {
	switch op {
	case "matches":
		return field.Matches(raw), nil
	case "search":
		return field.Search(raw), nil
	case "expr":
		return field.Expr(raw), nil
	}

	var value any
	if err := gojson.Unmarshal([]byte(raw), &value); err != nil {
		value = raw
	}
	switch op {
	case "==":
		return field.Eq(value), nil
	case "!=":
		return field.Ne(value), nil
	case "<":
		return field.Lt(value), nil
	case "<=":
		return field.Le(value), nil
	case ">":
		return field.Gt(value), nil
	case ">=":
		return field.Ge(value), nil
	}
	return wire.QueryInfo{}, fmt.Errorf("%w: unknown operator %q", cli.ErrUsage, op)
}

// newQuietLogger logs client diagnostics to stderr, warnings and above
// unless a level is configured.
func newQuietLogger(level string) (*slog.Logger, error) {
	l := slog.LevelWarn
	if level != "" && level != "info" {
		if err := l.UnmarshalText([]byte(level)); err != nil {
			return nil, err
		}
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: l})), nil
}
