// Package query provides the query-composition surface the rule compiler
// targets, and a SQL implementation of it.
//
// The compiler depends only on the Scope interface: attach a column
// predicate with a boolean joiner, open a nested group, attach a correlated
// "has related rows" constraint, attach a correlated "count of related rows"
// comparison. Builder implements Scope by rendering parameterized SQL for
// SQLite or PostgreSQL; values are never interpolated.
package query

import (
	"fmt"
	"regexp"
)

// Boolean joins a clause to the clauses before it in the same scope.
type Boolean int

const (
	And Boolean = iota
	Or
)

func (b Boolean) String() string {
	if b == Or {
		return "OR"
	}
	return "AND"
}

// Op is a native predicate operator.
type Op int

const (
	OpEq Op = iota + 1
	OpNe
	OpGt
	OpLt
	OpGte
	OpLte
	OpLike    // Args[0] is a LIKE pattern using '\' as escape
	OpIn      // Args is the value list
	OpBetween // inclusive, Args[0] <= x <= Args[1]
	OpRange   // half-open, Args[0] <= x < Args[1]
	OpIsNull
	OpEmpty // NULL or empty string
)

var opNames = map[Op]string{
	OpEq: "eq", OpNe: "ne", OpGt: "gt", OpLt: "lt", OpGte: "gte", OpLte: "lte",
	OpLike: "like", OpIn: "in", OpBetween: "between", OpRange: "range",
	OpIsNull: "is_null", OpEmpty: "empty",
}

func (o Op) String() string {
	if n, ok := opNames[o]; ok {
		return n
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// arity returns the exact argument count for o, or -1 for "one or more".
func (o Op) arity() int {
	switch o {
	case OpIsNull, OpEmpty:
		return 0
	case OpBetween, OpRange:
		return 2
	case OpIn:
		return -1
	default:
		return 1
	}
}

// Predicate is a single column comparison. Column is either a bare
// identifier, which the scope qualifies with its table alias, or an
// expression using {t} as the alias placeholder ("lower({t}.name)").
//
// A negated comparison also matches rows where the column is NULL, so a
// predicate and its negation always partition the rows. NonNull marks an
// expression that can never be NULL and skips that guard.
type Predicate struct {
	Column  string
	Op      Op
	Args    []any
	Negate  bool
	NonNull bool
}

// Validate checks the argument count against the operator.
func (p Predicate) Validate() error {
	want := p.Op.arity()
	switch {
	case opNames[p.Op] == "":
		return fmt.Errorf("query: unknown predicate operator %d", int(p.Op))
	case want < 0 && len(p.Args) == 0:
		return fmt.Errorf("query: %s on %q requires at least one argument", p.Op, p.Column)
	case want >= 0 && len(p.Args) != want:
		return fmt.Errorf("query: %s on %q requires %d arguments, got %d", p.Op, p.Column, want, len(p.Args))
	}
	return nil
}

// Relation describes how related rows correlate with the enclosing scope:
// related.ForeignKey = parent.LocalKey. This covers has-many (LocalKey "id")
// and belongs-to (ForeignKey "id") relationships.
type Relation struct {
	Name       string
	Table      string
	LocalKey   string
	ForeignKey string
}

// Validate checks that every identifier is safe to render verbatim.
func (r Relation) Validate() error {
	for _, ident := range []string{r.Table, r.LocalKey, r.ForeignKey} {
		if !ValidIdentifier(ident) {
			return fmt.Errorf("query: relation %q has invalid identifier %q", r.Name, ident)
		}
	}
	return nil
}

// Scope is the narrow contract the rule compiler composes constraints on.
// Every method joins its clause to the preceding clauses of the scope with
// joiner; the first clause of a scope ignores its joiner.
type Scope interface {
	// Where attaches a column predicate.
	Where(p Predicate, joiner Boolean) error

	// Group opens a nested, independently parenthesized scope.
	Group(joiner Boolean, fn func(Scope) error) error

	// WhereHas requires at least one related row satisfying the nested scope,
	// or none when negate is set.
	WhereHas(rel Relation, joiner Boolean, negate bool, fn func(Scope) error) error

	// WhereCount compares the number of related rows satisfying the nested
	// scope using cmp; cmp.Column is ignored.
	WhereCount(rel Relation, cmp Predicate, joiner Boolean, fn func(Scope) error) error
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether s is a plain SQL identifier.
func ValidIdentifier(s string) bool {
	return identPattern.MatchString(s)
}
