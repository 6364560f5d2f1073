package catalog

import (
	"fmt"

	"github.com/solatis/sieve/internal/query"
	"github.com/solatis/sieve/internal/rules"
	"github.com/solatis/sieve/internal/types"
)

// DefaultOverrides returns the overrides the embedded catalog refers to.
func DefaultOverrides() map[string]rules.CompileOverride {
	return map[string]rules.CompileOverride{
		"deal_keywords":    KeywordSearch("name", "notes"),
		"account_keywords": KeywordSearch("name", "industry", "country"),
	}
}

// KeywordSearch matches one text value against several columns: a
// positive operator matches when any column matches, a negated one when
// none does. Supports the LIKE operators and equal/not_equal.
func KeywordSearch(columns ...string) rules.CompileOverride {
	return func(scope query.Scope, value any, conj types.Conjunction, op rules.OperatorSpec, cond *types.Condition, _ *rules.Compilation) error {
		if op.Transform == nil && op.Native != query.OpEq {
			return &types.OperatorTypeMismatchError{Operand: cond.OperandKey, Operator: cond.Operator, Type: string(rules.TypeText)}
		}
		s, ok := value.(string)
		if !ok {
			return &types.InvalidValueShapeError{
				Operand:  cond.OperandKey,
				Operator: cond.Operator,
				Reason:   fmt.Sprintf("expected a string, got %T", value),
			}
		}
		arg := s
		if op.Transform != nil {
			arg = op.Transform(s)
		}

		negate := op.Negated != cond.Negate
		inner := query.Or
		if negate {
			inner = query.And
		}
		joiner := query.And
		if conj == types.Or {
			joiner = query.Or
		}
		return scope.Group(joiner, func(s query.Scope) error {
			for _, col := range columns {
				p := query.Predicate{Column: col, Op: op.Native, Args: []any{arg}, Negate: negate}
				if err := s.Where(p, inner); err != nil {
					return err
				}
			}
			return nil
		})
	}
}
