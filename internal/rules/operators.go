// internal/rules/operators.go
package rules

import (
	"strings"

	"github.com/solatis/sieve/internal/query"
	"github.com/solatis/sieve/internal/types"
)

/*
 * Operator table.
 *
 * Maps an operator key to its native predicate, value arity, the operand
 * types it is legal for, and an optional value transform. Negated operators
 * (not_equal, not_in, is_not_null, ...) share the native predicate of their
 * positive form and set Negated; a condition's own negate flag toggles it.
 *
 * Operators:
 *   - equal/not_equal, greater_than, less_than: scalar comparisons
 *   - contains/begins_with/ends_with (+ not_contains): LIKE with escaped value
 *   - between/not_between: inclusive pair
 *   - in/not_in: non-empty list
 *   - is_null/is_empty (+ negations): value ignored
 *   - today/this_week: relative window, value ignored
 *   - in_past/in_next: relative window over a day count
 *
 * The table is built once and never mutated; lookup is a single map access.
 */

// Arity is the value shape an operator accepts.
type Arity int

const (
	ArityNone   Arity = iota // value ignored
	ArityScalar              // one non-null scalar
	ArityPair                // array of exactly two scalars
	ArityList                // non-empty array of scalars
	ArityDays                // positive whole number of days
)

func (a Arity) String() string {
	switch a {
	case ArityNone:
		return "no value"
	case ArityScalar:
		return "a single value"
	case ArityPair:
		return "an array of two values"
	case ArityList:
		return "a non-empty array"
	case ArityDays:
		return "a positive day count"
	default:
		return "unknown"
	}
}

// OperatorSpec is one row of the operator table.
type OperatorSpec struct {
	Key       string
	Native    query.Op
	Negated   bool
	Arity     Arity
	Types     map[OperandType]bool
	Transform func(string) string // LIKE pattern builder, text only
	Relative  bool                // resolved against the clock at compile time
}

// Applies reports whether the operator is legal for t.
func (s OperatorSpec) Applies(t OperandType) bool {
	return s.Types[t]
}

// OperatorTable is an immutable operator registry.
type OperatorTable struct {
	specs map[string]OperatorSpec
	order []string
}

// NewOperatorTable builds a table from specs. Later specs with the same key
// replace earlier ones.
func NewOperatorTable(specs ...OperatorSpec) *OperatorTable {
	t := &OperatorTable{specs: make(map[string]OperatorSpec, len(specs))}
	for _, s := range specs {
		if _, dup := t.specs[s.Key]; !dup {
			t.order = append(t.order, s.Key)
		}
		t.specs[s.Key] = s
	}
	return t
}

// Resolve looks up an operator. Unknown keys are a hard error.
func (t *OperatorTable) Resolve(key string) (OperatorSpec, error) {
	s, ok := t.specs[key]
	if !ok {
		return OperatorSpec{}, &types.UnknownOperatorError{Operator: key}
	}
	return s, nil
}

// Keys returns the operator keys legal for an operand type, in table order.
func (t *OperatorTable) Keys(ot OperandType) []string {
	var keys []string
	for _, k := range t.order {
		if s, ok := t.specs[k]; ok && s.Applies(ot) {
			keys = append(keys, k)
		}
	}
	return keys
}

func typeSet(ts ...OperandType) map[OperandType]bool {
	m := make(map[OperandType]bool, len(ts))
	for _, t := range ts {
		m[t] = true
	}
	return m
}

var (
	textTypes    = []OperandType{TypeText}
	numberTypes  = []OperandType{TypeNumber, TypeNumeric}
	dateTypes    = []OperandType{TypeDate, TypeDateTime}
	choiceTypes  = []OperandType{TypeSelect, TypeEnum}
	countTypes   = []OperandType{TypeRelationCount}
	existsTypes  = []OperandType{TypeRelationExists}
	multiTypes   = []OperandType{TypeMultiSelect}
	booleanTypes = []OperandType{TypeBoolean}
)

func join(groups ...[]OperandType) []OperandType {
	var out []OperandType
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// likeEscaper escapes LIKE metacharacters for ESCAPE '\'.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func containsPattern(v string) string   { return "%" + likeEscaper.Replace(v) + "%" }
func beginsWithPattern(v string) string { return likeEscaper.Replace(v) + "%" }
func endsWithPattern(v string) string   { return "%" + likeEscaper.Replace(v) }

// DefaultOperators returns the standard operator table.
func DefaultOperators() *OperatorTable {
	eq := typeSet(join(textTypes, numberTypes, dateTypes, choiceTypes, booleanTypes, countTypes, existsTypes)...)
	neq := typeSet(join(textTypes, numberTypes, dateTypes, choiceTypes, booleanTypes, countTypes)...)
	ordered := typeSet(join(numberTypes, dateTypes, countTypes)...)
	null := typeSet(join(textTypes, numberTypes, dateTypes, choiceTypes, multiTypes, booleanTypes)...)
	empty := typeSet(join(textTypes, choiceTypes, multiTypes, existsTypes)...)
	list := typeSet(join(textTypes, numberTypes, choiceTypes, multiTypes)...)
	like := typeSet(textTypes...)
	relative := typeSet(dateTypes...)

	return NewOperatorTable(
		OperatorSpec{Key: "equal", Native: query.OpEq, Arity: ArityScalar, Types: eq},
		OperatorSpec{Key: "not_equal", Native: query.OpEq, Negated: true, Arity: ArityScalar, Types: neq},
		OperatorSpec{Key: "contains", Native: query.OpLike, Arity: ArityScalar, Types: like, Transform: containsPattern},
		OperatorSpec{Key: "not_contains", Native: query.OpLike, Negated: true, Arity: ArityScalar, Types: like, Transform: containsPattern},
		OperatorSpec{Key: "begins_with", Native: query.OpLike, Arity: ArityScalar, Types: like, Transform: beginsWithPattern},
		OperatorSpec{Key: "ends_with", Native: query.OpLike, Arity: ArityScalar, Types: like, Transform: endsWithPattern},
		OperatorSpec{Key: "greater_than", Native: query.OpGt, Arity: ArityScalar, Types: ordered},
		OperatorSpec{Key: "less_than", Native: query.OpLt, Arity: ArityScalar, Types: ordered},
		OperatorSpec{Key: "between", Native: query.OpBetween, Arity: ArityPair, Types: ordered},
		OperatorSpec{Key: "not_between", Native: query.OpBetween, Negated: true, Arity: ArityPair, Types: ordered},
		OperatorSpec{Key: "is_null", Native: query.OpIsNull, Arity: ArityNone, Types: null},
		OperatorSpec{Key: "is_not_null", Native: query.OpIsNull, Negated: true, Arity: ArityNone, Types: null},
		OperatorSpec{Key: "is_empty", Native: query.OpEmpty, Arity: ArityNone, Types: empty},
		OperatorSpec{Key: "is_not_empty", Native: query.OpEmpty, Negated: true, Arity: ArityNone, Types: empty},
		OperatorSpec{Key: "in", Native: query.OpIn, Arity: ArityList, Types: list},
		OperatorSpec{Key: "not_in", Native: query.OpIn, Negated: true, Arity: ArityList, Types: list},
		OperatorSpec{Key: "today", Native: query.OpRange, Arity: ArityNone, Types: relative, Relative: true},
		OperatorSpec{Key: "this_week", Native: query.OpRange, Arity: ArityNone, Types: relative, Relative: true},
		OperatorSpec{Key: "in_past", Native: query.OpRange, Arity: ArityDays, Types: relative, Relative: true},
		OperatorSpec{Key: "in_next", Native: query.OpRange, Arity: ArityDays, Types: relative, Relative: true},
	)
}
