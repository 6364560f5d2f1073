// internal/types/rules.go
package types

/*
 * Rule tree domain types.
 *
 * A rule tree is a tagged union of Group and Condition. Groups carry a
 * conjunction and ordered children; conditions reference an operand key,
 * an operator key and a raw client value. Trees are built per request from
 * untrusted input, compiled once and discarded.
 *
 * Key types:
 *   - Node: sealed interface implemented by *Group and *Condition
 *   - Group: AND/OR over ordered children (empty = no-op)
 *   - Condition: operand/operator/value leaf, optionally negated
 */

// Conjunction joins the children of a group.
type Conjunction string

const (
	And Conjunction = "and"
	Or  Conjunction = "or"
)

// Valid reports whether c is one of the two recognized conjunctions.
func (c Conjunction) Valid() bool {
	return c == And || c == Or
}

// Node is a rule tree node. The marker method seals the interface to this package.
type Node interface {
	ruleNode()
}

// Group is a conjunction over child nodes.
type Group struct {
	Conjunction Conjunction
	Children    []Node
}

func (*Group) ruleNode() {}

// Empty reports whether the group has no children.
func (g *Group) Empty() bool {
	return g == nil || len(g.Children) == 0
}

// Condition is a single typed comparison against an operand.
type Condition struct {
	OperandKey  string // operand key, dotted keys traverse grouped operands
	OperandType string // type declared by the client, empty when not supplied
	Operator    string // operator key from the operator table
	Value       any    // raw client value (json.Number for numbers)
	Negate      bool   // wrap the compiled predicate in NOT
	Filter      *Group // per-request sub-filter, grouped operands only
}

func (*Condition) ruleNode() {}

// NewGroup is shorthand for building trees in code.
func NewGroup(conj Conjunction, children ...Node) *Group {
	return &Group{Conjunction: conj, Children: children}
}

// NewCondition is shorthand for building trees in code.
func NewCondition(key, operator string, value any) *Condition {
	return &Condition{OperandKey: key, Operator: operator, Value: value}
}

// IsEmptyTree reports whether compiling n would be a no-op: n is absent or is
// a group whose subtree contains no conditions.
func IsEmptyTree(n Node) bool {
	switch v := n.(type) {
	case nil:
		return true
	case *Group:
		if v == nil {
			return true
		}
		for _, child := range v.Children {
			if !IsEmptyTree(child) {
				return false
			}
		}
		return true
	case *Condition:
		return v == nil
	default:
		return false
	}
}
