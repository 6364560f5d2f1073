package rules

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/solatis/sieve/internal/query"
	"github.com/solatis/sieve/internal/types"
)

// Compiler turns rule trees into query constraints. It is immutable after
// construction and safe for concurrent use; each Compile call owns its own
// Compilation.
type Compiler struct {
	operators *OperatorTable
	clock     Clock
	loc       *time.Location
	limits    types.Limits
	logger    *slog.Logger
	byType    map[OperandType]typeCompiler
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithClock sets the clock used for relative dates.
func WithClock(clock Clock) Option {
	return func(c *Compiler) { c.clock = clock }
}

// WithLocation sets the application timezone.
func WithLocation(loc *time.Location) Option {
	return func(c *Compiler) {
		if loc != nil {
			c.loc = loc
		}
	}
}

// WithLimits overrides the default resource limits.
func WithLimits(limits types.Limits) Option {
	return func(c *Compiler) { c.limits = limits }
}

// WithLogger sets the logger for per-compilation debug lines.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Compiler) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithOperators replaces the operator table.
func WithOperators(t *OperatorTable) Option {
	return func(c *Compiler) { c.operators = t }
}

// NewCompiler creates a compiler with the default operator table, the
// system clock, UTC and the default limits.
func NewCompiler(opts ...Option) *Compiler {
	c := &Compiler{
		operators: DefaultOperators(),
		clock:     SystemClock{},
		loc:       time.UTC,
		limits:    types.DefaultLimits(),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.byType = map[OperandType]typeCompiler{
		TypeText:           compileColumn,
		TypeNumber:         compileColumn,
		TypeNumeric:        compileColumn,
		TypeBoolean:        compileColumn,
		TypeSelect:         compileColumn,
		TypeEnum:           compileColumn,
		TypeDate:           compileDate,
		TypeDateTime:       compileDateTime,
		TypeMultiSelect:    compileMultiSelect,
		TypeRelationCount:  compileCount,
		TypeRelationExists: compileExists,
	}
	return c
}

// Limits returns the configured limits.
func (c *Compiler) Limits() types.Limits { return c.limits }

// Location returns the application timezone.
func (c *Compiler) Location() *time.Location { return c.loc }

// target carries one resolved condition to its type compiler. negate is
// the effective negation: operator negation toggled by the condition flag.
type target struct {
	scope  query.Scope
	joiner query.Boolean
	def    *OperandDefinition
	spec   OperatorSpec
	cond   *types.Condition
	value  any
	negate bool
}

func (t target) where(op query.Op, args ...any) error {
	return t.scope.Where(query.Predicate{Column: t.def.Column, Op: op, Args: args, Negate: t.negate}, t.joiner)
}

// typeCompiler is the default compile function for one operand type.
type typeCompiler func(c *Compilation, t target) error

// compileColumn handles plain column types: coerce, transform, attach.
func compileColumn(c *Compilation, t target) error {
	switch t.spec.Arity {
	case ArityNone:
		return t.where(t.spec.Native)

	case ArityScalar:
		v, err := coerce(t.def, t.value, c.Location())
		if err != nil {
			return invalidValue(t.cond, err)
		}
		if t.spec.Transform != nil {
			s, ok := v.(string)
			if !ok {
				return &types.OperatorTypeMismatchError{Operand: t.cond.OperandKey, Operator: t.cond.Operator, Type: string(t.def.Type)}
			}
			v = t.spec.Transform(s)
		}
		return t.where(t.spec.Native, v)

	case ArityPair, ArityList:
		args, err := coerceAll(t.def, t.value.([]any), c.Location())
		if err != nil {
			return invalidValue(t.cond, err)
		}
		return t.where(t.spec.Native, args...)
	}
	return invalidValue(t.cond, errUnsupportedArity(t.spec))
}

// compileDate compares "YYYY-MM-DD" strings; relative windows become a
// half-open range of dates.
func compileDate(c *Compilation, t target) error {
	if t.spec.Relative {
		w, err := c.window(t)
		if err != nil {
			return err
		}
		return t.where(query.OpRange, w.Start.Format(dateLayout), w.End.Format(dateLayout))
	}
	return compileColumn(c, t)
}

// compileDateTime compares instants. A date-only value covers the whole
// local day: equal becomes [day, next day), between covers both end days,
// greater_than starts after the day and less_than ends before it.
func compileDateTime(c *Compilation, t target) error {
	loc := c.Location()
	if t.spec.Relative {
		w, err := c.window(t)
		if err != nil {
			return err
		}
		return t.where(query.OpRange, w.Start, w.End)
	}

	switch t.spec.Arity {
	case ArityScalar:
		at, dateOnly, err := coerceDateTime(t.value, loc)
		if err != nil {
			return invalidValue(t.cond, err)
		}
		if !dateOnly {
			return t.where(t.spec.Native, at)
		}
		next := addDays(at, 1)
		switch t.spec.Native {
		case query.OpEq:
			return t.where(query.OpRange, at, next)
		case query.OpGt:
			return t.where(query.OpGte, next)
		default:
			return t.where(t.spec.Native, at)
		}

	case ArityPair:
		bounds := t.value.([]any)
		// A date-only lower bound parses to local midnight, already inclusive.
		lo, _, err := coerceDateTime(bounds[0], loc)
		if err != nil {
			return invalidValue(t.cond, err)
		}
		hi, hiDate, err := coerceDateTime(bounds[1], loc)
		if err != nil {
			return invalidValue(t.cond, err)
		}
		if !hiDate {
			return t.where(query.OpBetween, lo, hi)
		}
		return t.where(query.OpRange, lo, addDays(hi, 1))
	}
	return compileColumn(c, t)
}

// multiSelectSep separates values stored in a multiselect column.
const multiSelectSep = ","

// compileMultiSelect matches values in a separator-delimited column.
// in: any listed value present; not_in: none present.
func compileMultiSelect(c *Compilation, t target) error {
	if t.spec.Arity == ArityNone {
		return t.where(t.spec.Native)
	}

	values, err := coerceAll(t.def, t.value.([]any), c.Location())
	if err != nil {
		return invalidValue(t.cond, err)
	}
	expr := "('" + multiSelectSep + "' || COALESCE(" + qualified(t.def.Column) + ", '') || '" + multiSelectSep + "')"
	inner := query.Or
	if t.negate {
		inner = query.And
	}
	return t.scope.Group(t.joiner, func(s query.Scope) error {
		for _, v := range values {
			pattern := "%" + multiSelectSep + likeEscaper.Replace(v.(string)) + multiSelectSep + "%"
			p := query.Predicate{Column: expr, Op: query.OpLike, Args: []any{pattern}, Negate: t.negate, NonNull: true}
			if err := s.Where(p, inner); err != nil {
				return err
			}
		}
		return nil
	})
}

// compileCount compares the correlated count of related rows matching the
// operand's filters.
func compileCount(c *Compilation, t target) error {
	var args []any
	switch t.spec.Arity {
	case ArityScalar:
		n, err := coerce(t.def, t.value, c.Location())
		if err != nil {
			return invalidValue(t.cond, err)
		}
		args = []any{n}
	case ArityPair:
		var err error
		args, err = coerceAll(t.def, t.value.([]any), c.Location())
		if err != nil {
			return invalidValue(t.cond, err)
		}
	default:
		return invalidValue(t.cond, errUnsupportedArity(t.spec))
	}
	cmp := query.Predicate{Op: t.spec.Native, Args: args, Negate: t.negate}
	return t.scope.WhereCount(*t.def.Relation, cmp, t.joiner, c.relationScope(t.def, t.cond))
}

// compileExists requires at least one (or no) related row matching the
// operand's filters.
func compileExists(c *Compilation, t target) error {
	var want bool
	switch t.spec.Native {
	case query.OpEq:
		v, err := coerce(t.def, t.value, c.Location())
		if err != nil {
			return invalidValue(t.cond, err)
		}
		want = v.(bool)
	case query.OpEmpty:
		want = false
	default:
		return &types.OperatorTypeMismatchError{Operand: t.cond.OperandKey, Operator: t.cond.Operator, Type: string(t.def.Type)}
	}
	// t.negate already folds is_not_empty and the condition's negate flag.
	if t.negate {
		want = !want
	}
	return t.scope.WhereHas(*t.def.Relation, t.joiner, !want, c.relationScope(t.def, t.cond))
}

func (c *Compilation) window(t target) (Window, error) {
	days, _ := t.value.(int)
	w, err := RelativeWindow(t.spec.Key, c.Now(), c.Location(), days)
	if err != nil {
		return Window{}, invalidValue(t.cond, err)
	}
	return w, nil
}

func coerceAll(def *OperandDefinition, values []any, loc *time.Location) ([]any, error) {
	out := make([]any, len(values))
	for i, v := range values {
		cv, err := coerce(def, v, loc)
		if err != nil {
			return nil, err
		}
		out[i] = cv
	}
	return out, nil
}

// qualified turns a bare column into a {t} expression for use inside
// larger expressions.
func qualified(column string) string {
	if query.ValidIdentifier(column) {
		return "{t}." + column
	}
	return column
}

func errUnsupportedArity(spec OperatorSpec) error {
	return fmt.Errorf("operator %s expects %s", spec.Key, spec.Arity)
}
