// internal/rules/compile.go
package rules

import (
	"log/slog"
	"time"

	"github.com/solatis/sieve/internal/query"
	"github.com/solatis/sieve/internal/types"
)

/*
 * Rule tree compilation.
 *
 * Compile attaches a rule tree to a caller-owned query.Scope:
 *   1. Validate shape and limits (CheckLimits) before any recursion
 *   2. Capture "now" once so relative dates agree across the whole tree
 *   3. Walk the tree: groups open nested scopes joined with the parent's
 *      conjunction, conditions resolve their operand and operator and
 *      attach one constraint
 *
 * Empty groups are skipped entirely, so an empty tree is a strict no-op.
 * Unknown operands and operators always fail; nothing is dropped or
 * defaulted. Errors from compile overrides propagate unchanged.
 *
 * Dotted keys ("products.sku") wrap the leaf in one EXISTS scope per
 * traversed grouped operand; negate applies to the outermost scope only.
 */

// Compile attaches root to scope, joined by AND with whatever the scope
// already holds. A nil or empty tree attaches nothing.
func (c *Compiler) Compile(scope query.Scope, root types.Node, reg *Registry) error {
	start := time.Now()

	stats, err := CheckLimits(root, c.limits)
	if err != nil {
		return err
	}
	if types.IsEmptyTree(root) {
		return nil
	}

	comp := &Compilation{
		compiler: c,
		now:      c.clock.Now().In(c.loc),
	}
	if err := comp.Compile(scope, root, reg, types.And); err != nil {
		return err
	}

	c.logger.Debug("rule tree compiled",
		slog.Int("nodes", stats.Nodes),
		slog.Int("depth", stats.Depth),
		slog.Int("conditions", stats.Conditions),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// Compilation is the state of one Compile call. Compile overrides use it
// to delegate nested trees back into the compiler.
type Compilation struct {
	compiler *Compiler
	now      time.Time
}

// Now returns the instant captured when compilation started, in the
// application timezone.
func (c *Compilation) Now() time.Time { return c.now }

// Location returns the application timezone.
func (c *Compilation) Location() *time.Location { return c.compiler.loc }

// Operators returns the operator table in use.
func (c *Compilation) Operators() *OperatorTable { return c.compiler.operators }

// Compile attaches node to scope using conj as the joiner. Trees passed
// here by overrides are not re-checked against limits.
func (c *Compilation) Compile(scope query.Scope, node types.Node, reg *Registry, conj types.Conjunction) error {
	switch n := node.(type) {
	case *types.Group:
		return c.group(scope, n, reg, joiner(conj))
	case *types.Condition:
		return c.condition(scope, n, reg, joiner(conj))
	case nil:
		return nil
	default:
		return &types.InvalidValueShapeError{Reason: "unsupported node"}
	}
}

func (c *Compilation) group(scope query.Scope, g *types.Group, reg *Registry, j query.Boolean) error {
	if g == nil {
		return nil
	}
	if !g.Conjunction.Valid() {
		return &types.InvalidValueShapeError{Reason: "unknown condition " + string(g.Conjunction)}
	}
	if types.IsEmptyTree(g) {
		return nil
	}
	return scope.Group(j, func(s query.Scope) error {
		for _, child := range g.Children {
			if err := c.Compile(s, child, reg, g.Conjunction); err != nil {
				return err
			}
		}
		return nil
	})
}

func (c *Compilation) condition(scope query.Scope, cond *types.Condition, reg *Registry, j query.Boolean) error {
	if cond == nil {
		return &types.InvalidValueShapeError{Reason: "nil condition"}
	}
	res, err := reg.Resolve(cond.OperandKey)
	if err != nil {
		return err
	}
	def := res.Operand
	if cond.OperandType != "" && OperandType(cond.OperandType) != def.Type {
		return &types.InvalidValueShapeError{
			Operand: cond.OperandKey,
			Reason:  "declared type " + cond.OperandType + " does not match operand type " + string(def.Type),
		}
	}

	if len(res.Path) == 0 {
		return c.leaf(scope, def, cond, cond.Negate, j)
	}
	return c.nest(scope, res.Path, cond.Negate, j, func(s query.Scope) error {
		return c.leaf(s, def, cond, false, query.And)
	})
}

// nest wraps leaf in one EXISTS scope per grouped operand on path.
func (c *Compilation) nest(scope query.Scope, path []*OperandDefinition, negate bool, j query.Boolean, leaf func(query.Scope) error) error {
	head := path[0]
	return scope.WhereHas(*head.Relation, j, negate, func(s query.Scope) error {
		if err := c.subFilter(s, head); err != nil {
			return err
		}
		if len(path) == 1 {
			return leaf(s)
		}
		return c.nest(s, path[1:], false, query.And, leaf)
	})
}

func (c *Compilation) leaf(scope query.Scope, def *OperandDefinition, cond *types.Condition, negate bool, j query.Boolean) error {
	if cond.Filter != nil && !def.Grouped() {
		return &types.InvalidValueShapeError{
			Operand:  cond.OperandKey,
			Operator: cond.Operator,
			Reason:   "filter is only supported on relation operands",
		}
	}

	spec, err := c.compiler.operators.Resolve(cond.Operator)
	if err != nil {
		return err
	}
	if !spec.Applies(def.Type) {
		return &types.OperatorTypeMismatchError{Operand: cond.OperandKey, Operator: cond.Operator, Type: string(def.Type)}
	}
	value, err := shapeValue(spec, cond.Value, c.compiler.limits.MaxInValues)
	if err != nil {
		return invalidValue(cond, err)
	}

	if def.Override != nil {
		effective := cond
		if negate != cond.Negate {
			copied := *cond
			copied.Negate = negate
			effective = &copied
		}
		return def.Override(scope, value, conjunction(j), spec, effective, c)
	}

	compile, ok := c.compiler.byType[def.Type]
	if !ok {
		return &types.OperatorTypeMismatchError{Operand: cond.OperandKey, Operator: cond.Operator, Type: string(def.Type)}
	}
	return compile(c, target{
		scope:  scope,
		joiner: j,
		def:    def,
		spec:   spec,
		cond:   cond,
		value:  value,
		negate: spec.Negated != negate,
	})
}

// subFilter applies a grouped operand's static filter inside its relation scope.
func (c *Compilation) subFilter(s query.Scope, def *OperandDefinition) error {
	if types.IsEmptyTree(def.SubFilter) {
		return nil
	}
	return c.Compile(s, def.SubFilter, def.subFilterRegistry, types.And)
}

// relationScope applies the static and per-request filters of a grouped operand.
func (c *Compilation) relationScope(def *OperandDefinition, cond *types.Condition) func(query.Scope) error {
	return func(s query.Scope) error {
		if err := c.subFilter(s, def); err != nil {
			return err
		}
		if types.IsEmptyTree(cond.Filter) {
			return nil
		}
		return c.Compile(s, cond.Filter, def.Children, types.And)
	}
}

func invalidValue(cond *types.Condition, err error) error {
	return &types.InvalidValueShapeError{Operand: cond.OperandKey, Operator: cond.Operator, Reason: err.Error()}
}

func joiner(conj types.Conjunction) query.Boolean {
	if conj == types.Or {
		return query.Or
	}
	return query.And
}

func conjunction(j query.Boolean) types.Conjunction {
	if j == query.Or {
		return types.Or
	}
	return types.And
}
