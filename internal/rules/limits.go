// internal/rules/limits.go
package rules

import (
	"fmt"

	"github.com/solatis/sieve/internal/types"
)

/*
 * Pre-compilation limit checks.
 *
 * CheckLimits walks the tree iteratively (explicit stack, no recursion) and
 * fails on the first node past MaxDepth or MaxNodes, so an adversarial tree
 * costs at most MaxNodes steps before it is rejected. Per-condition relation
 * filters count toward both limits: a condition's filter group sits one
 * level below the condition.
 *
 * The walk also rejects structurally invalid nodes (nil children, unknown
 * conjunctions) so the recursive compiler only ever sees well-formed trees.
 */

// TreeStats summarizes a rule tree.
type TreeStats struct {
	Nodes      int
	Depth      int
	Conditions int
}

type frame struct {
	node  types.Node
	depth int
}

// CheckLimits validates tree shape and limits. A nil root yields zero stats.
func CheckLimits(root types.Node, limits types.Limits) (TreeStats, error) {
	var stats TreeStats
	if root == nil {
		return stats, nil
	}

	stack := []frame{{node: root, depth: 1}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		stats.Nodes++
		if limits.MaxNodes > 0 && stats.Nodes > limits.MaxNodes {
			return stats, &types.MaxNodeCountExceededError{Count: stats.Nodes, Limit: limits.MaxNodes}
		}
		if limits.MaxDepth > 0 && f.depth > limits.MaxDepth {
			return stats, &types.MaxDepthExceededError{Depth: f.depth, Limit: limits.MaxDepth}
		}
		if f.depth > stats.Depth {
			stats.Depth = f.depth
		}

		switch n := f.node.(type) {
		case *types.Group:
			if n == nil {
				return stats, &types.InvalidValueShapeError{Reason: "nil group"}
			}
			if !n.Conjunction.Valid() {
				return stats, &types.InvalidValueShapeError{Reason: fmt.Sprintf("unknown condition %q, expected \"and\" or \"or\"", n.Conjunction)}
			}
			for i := len(n.Children) - 1; i >= 0; i-- {
				stack = append(stack, frame{node: n.Children[i], depth: f.depth + 1})
			}
		case *types.Condition:
			if n == nil {
				return stats, &types.InvalidValueShapeError{Reason: "nil condition"}
			}
			stats.Conditions++
			if n.Filter != nil {
				stack = append(stack, frame{node: n.Filter, depth: f.depth + 1})
			}
		default:
			return stats, &types.InvalidValueShapeError{Reason: fmt.Sprintf("unsupported node %T", f.node)}
		}
	}
	return stats, nil
}
