package query

import (
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

/*
 * SQL rendering for Scope.
 *
 * A Builder owns a root scope over one table (alias t0). Nested groups share
 * the alias of their parent; every relation scope gets a fresh alias (r1, r2,
 * ...) allocated in call order, so identical call sequences render identical
 * SQL.
 *
 * Joiners fold left to right: "A AND B OR C" renders as "(A AND B) OR C".
 * Empty groups render to nothing and are dropped from their parent.
 *
 * All values are bound as "?" params in textual order; time.Time args are
 * encoded by the dialect. sqlx.In expands list params for SQLite and
 * sqlx.Rebind converts placeholders for PostgreSQL.
 */

// Builder is a SELECT over a single table and the query handle that rule
// filters and other criteria are attached to.
type Builder struct {
	dialect Dialect
	table   string
	orderBy string
	limit   int
	root    *scope
}

// NewBuilder creates a query handle over table. The table name must be a
// plain identifier.
func NewBuilder(d Dialect, table string) (*Builder, error) {
	if !ValidIdentifier(table) {
		return nil, fmt.Errorf("query: invalid table name %q", table)
	}
	return &Builder{
		dialect: d,
		table:   table,
		orderBy: "id",
		root:    &scope{dialect: d, alias: "t0", seq: new(int)},
	}, nil
}

// Dialect returns the dialect the builder renders for.
func (b *Builder) Dialect() Dialect { return b.dialect }

// OrderBy sets the ordering column (default "id").
func (b *Builder) OrderBy(column string) *Builder {
	b.orderBy = column
	return b
}

// Limit caps the number of returned rows; zero means unlimited.
func (b *Builder) Limit(n int) *Builder {
	b.limit = n
	return b
}

func (b *Builder) Where(p Predicate, joiner Boolean) error {
	return b.root.Where(p, joiner)
}

func (b *Builder) Group(joiner Boolean, fn func(Scope) error) error {
	return b.root.Group(joiner, fn)
}

func (b *Builder) WhereHas(rel Relation, joiner Boolean, negate bool, fn func(Scope) error) error {
	return b.root.WhereHas(rel, joiner, negate, fn)
}

func (b *Builder) WhereCount(rel Relation, cmp Predicate, joiner Boolean, fn func(Scope) error) error {
	return b.root.WhereCount(rel, cmp, joiner, fn)
}

// WhereSQL renders the WHERE body with "?" placeholders and unexpanded
// list args. Returns an empty string when no constraints are attached.
func (b *Builder) WhereSQL() (string, []any) {
	r := &renderer{dialect: b.dialect}
	return r.scope(b.root), r.args
}

// SQL renders the full SELECT with driver-specific bindvars.
func (b *Builder) SQL() (string, []any, error) {
	if !ValidIdentifier(b.orderBy) {
		return "", nil, fmt.Errorf("query: invalid order column %q", b.orderBy)
	}
	where, args := b.WhereSQL()

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT t0.* FROM %s AS t0", b.table)
	if where != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(where)
	}
	fmt.Fprintf(&sb, " ORDER BY t0.%s", b.orderBy)
	if b.limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", b.limit)
	}
	return b.finalize(sb.String(), args)
}

// CountSQL renders a COUNT(*) over the same constraints.
func (b *Builder) CountSQL() (string, []any, error) {
	where, args := b.WhereSQL()
	q := fmt.Sprintf("SELECT COUNT(*) FROM %s AS t0", b.table)
	if where != "" {
		q += " WHERE " + where
	}
	return b.finalize(q, args)
}

func (b *Builder) finalize(q string, args []any) (string, []any, error) {
	if b.dialect.ExpandsLists() && len(args) > 0 {
		expanded, expandedArgs, err := sqlx.In(q, args...)
		if err != nil {
			return "", nil, fmt.Errorf("query: expand list params: %w", err)
		}
		q, args = expanded, expandedArgs
	}
	return sqlx.Rebind(b.dialect.BindType(), q), args, nil
}

// scope is one parenthesized level of clauses sharing a table alias.
type scope struct {
	dialect Dialect
	alias   string
	seq     *int // relation alias counter shared by the whole builder
	items   []item
}

type item struct {
	joiner Boolean
	clause clause
}

type clause interface {
	render(r *renderer) string
}

func (s *scope) add(joiner Boolean, c clause) {
	s.items = append(s.items, item{joiner: joiner, clause: c})
}

func (s *scope) child(alias string) *scope {
	return &scope{dialect: s.dialect, alias: alias, seq: s.seq}
}

func (s *scope) nextAlias() string {
	*s.seq++
	return fmt.Sprintf("r%d", *s.seq)
}

func (s *scope) Where(p Predicate, joiner Boolean) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.add(joiner, predicateClause{alias: s.alias, pred: p})
	return nil
}

func (s *scope) Group(joiner Boolean, fn func(Scope) error) error {
	sub := s.child(s.alias)
	if err := fn(sub); err != nil {
		return err
	}
	s.add(joiner, groupClause{sub: sub})
	return nil
}

func (s *scope) WhereHas(rel Relation, joiner Boolean, negate bool, fn func(Scope) error) error {
	if err := rel.Validate(); err != nil {
		return err
	}
	sub := s.child(s.nextAlias())
	if fn != nil {
		if err := fn(sub); err != nil {
			return err
		}
	}
	s.add(joiner, existsClause{parent: s.alias, rel: rel, sub: sub, negate: negate})
	return nil
}

func (s *scope) WhereCount(rel Relation, cmp Predicate, joiner Boolean, fn func(Scope) error) error {
	if err := rel.Validate(); err != nil {
		return err
	}
	if err := cmp.Validate(); err != nil {
		return err
	}
	sub := s.child(s.nextAlias())
	if fn != nil {
		if err := fn(sub); err != nil {
			return err
		}
	}
	s.add(joiner, countClause{parent: s.alias, rel: rel, sub: sub, cmp: cmp})
	return nil
}

type predicateClause struct {
	alias string
	pred  Predicate
}

func (c predicateClause) render(r *renderer) string {
	return r.predicate(qualify(c.alias, c.pred.Column), c.pred)
}

type groupClause struct {
	sub *scope
}

func (c groupClause) render(r *renderer) string {
	inner := r.scope(c.sub)
	if inner == "" {
		return ""
	}
	return "(" + inner + ")"
}

type existsClause struct {
	parent string
	rel    Relation
	sub    *scope
	negate bool
}

func (c existsClause) render(r *renderer) string {
	s := "EXISTS (SELECT 1 FROM " + r.correlated(c.parent, c.rel, c.sub) + ")"
	if c.negate {
		return "NOT " + s
	}
	return s
}

type countClause struct {
	parent string
	rel    Relation
	sub    *scope
	cmp    Predicate
}

func (c countClause) render(r *renderer) string {
	expr := "(SELECT COUNT(*) FROM " + r.correlated(c.parent, c.rel, c.sub) + ")"
	cmp := c.cmp
	cmp.NonNull = true
	return r.predicate(expr, cmp)
}

// renderer accumulates args in the order placeholders appear in the text.
type renderer struct {
	dialect Dialect
	args    []any
}

// bind records args, encoding time.Time values for the dialect.
func (r *renderer) bind(args ...any) {
	for _, a := range args {
		if t, ok := a.(time.Time); ok {
			a = r.dialect.TimeParam(t)
		}
		r.args = append(r.args, a)
	}
}

func (r *renderer) scope(s *scope) string {
	var (
		out   string
		prev  Boolean
		parts int
	)
	for _, it := range s.items {
		rendered := it.clause.render(r)
		if rendered == "" {
			continue
		}
		switch {
		case parts == 0:
			out = rendered
		case parts >= 2 && it.joiner != prev:
			out = "(" + out + ") " + it.joiner.String() + " " + rendered
		default:
			out = out + " " + it.joiner.String() + " " + rendered
		}
		if parts >= 1 {
			prev = it.joiner
		} else {
			prev = And
		}
		parts++
	}
	return out
}

// correlated renders "<table> AS <alias> WHERE <alias>.<fk> = <parent>.<lk> [AND (<sub>)]".
func (r *renderer) correlated(parent string, rel Relation, sub *scope) string {
	s := fmt.Sprintf("%s AS %s WHERE %s.%s = %s.%s",
		rel.Table, sub.alias, sub.alias, rel.ForeignKey, parent, rel.LocalKey)
	if inner := r.scope(sub); inner != "" {
		s += " AND (" + inner + ")"
	}
	return s
}

func (r *renderer) predicate(expr string, p Predicate) string {
	switch p.Op {
	case OpIsNull:
		if p.Negate {
			return expr + " IS NOT NULL"
		}
		return expr + " IS NULL"
	case OpEmpty:
		if p.Negate {
			return "(" + expr + " IS NOT NULL AND " + expr + " <> '')"
		}
		return "(" + expr + " IS NULL OR " + expr + " = '')"
	}
	s := r.comparison(expr, p)
	if p.Negate && !p.NonNull {
		return "(" + expr + " IS NULL OR " + s + ")"
	}
	return s
}

// comparison renders a value comparison, negated in SQL when p.Negate is
// set. A NULL operand leaves the result NULL either way.
func (r *renderer) comparison(expr string, p Predicate) string {
	var s string
	switch p.Op {
	case OpEq:
		s = expr + " = ?"
	case OpNe:
		s = expr + " <> ?"
	case OpGt:
		s = expr + " > ?"
	case OpLt:
		s = expr + " < ?"
	case OpGte:
		s = expr + " >= ?"
	case OpLte:
		s = expr + " <= ?"
	case OpLike:
		kw := r.dialect.LikeKeyword()
		if p.Negate {
			kw = "NOT " + kw
		}
		r.bind(p.Args...)
		return expr + " " + kw + ` ? ESCAPE '\'`
	case OpIn:
		sql, args := r.dialect.ListPredicate(expr, p.Args, p.Negate)
		r.bind(args...)
		return sql
	case OpBetween:
		r.bind(p.Args...)
		if p.Negate {
			return expr + " NOT BETWEEN ? AND ?"
		}
		return expr + " BETWEEN ? AND ?"
	case OpRange:
		r.bind(p.Args...)
		s = "(" + expr + " >= ? AND " + expr + " < ?)"
		if p.Negate {
			return "NOT " + s
		}
		return s
	}
	r.bind(p.Args...)
	if p.Negate {
		return "NOT (" + s + ")"
	}
	return s
}

// qualify prefixes bare identifiers with the scope alias and substitutes
// the {t} placeholder in expressions.
func qualify(alias, column string) string {
	if ValidIdentifier(column) {
		return alias + "." + column
	}
	return strings.ReplaceAll(column, "{t}", alias)
}
