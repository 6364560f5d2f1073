// internal/rules/wire.go
package rules

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/solatis/sieve/internal/types"
)

/*
 * Rule-builder wire format.
 *
 *   {"condition": "and"|"or", "children": [ <child>, ... ]}
 *   child := {"type": "rule", "query": {"type", "rule", "operator", "value",
 *                                        "negate"?, "filter"?}}
 *          | <group>
 *
 * Each level is decoded on its own with children kept raw, so depth and
 * node limits are enforced while descending instead of after a full
 * unbounded unmarshal. Values are decoded with UseNumber to keep numeric
 * precision for decimal operands.
 */

type wireNode struct {
	Type      string            `json:"type"`
	Condition *string           `json:"condition"`
	Children  []json.RawMessage `json:"children"`
	Query     *wireQuery        `json:"query"`
}

type wireQuery struct {
	Type     string          `json:"type"`
	Rule     string          `json:"rule"`
	Operator string          `json:"operator"`
	Value    json.RawMessage `json:"value"`
	Negate   bool            `json:"negate"`
	Filter   json.RawMessage `json:"filter"`
}

type treeDecoder struct {
	limits types.Limits
	nodes  int
}

// ParseTree decodes a rule tree. Empty input and JSON null yield a nil tree,
// which compiles to a no-op.
func ParseTree(data []byte, limits types.Limits) (types.Node, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}
	d := &treeDecoder{limits: limits}
	return d.group(data, 1)
}

func (d *treeDecoder) enter(depth int) error {
	d.nodes++
	if d.limits.MaxNodes > 0 && d.nodes > d.limits.MaxNodes {
		return &types.MaxNodeCountExceededError{Count: d.nodes, Limit: d.limits.MaxNodes}
	}
	if d.limits.MaxDepth > 0 && depth > d.limits.MaxDepth {
		return &types.MaxDepthExceededError{Depth: depth, Limit: d.limits.MaxDepth}
	}
	return nil
}

func (d *treeDecoder) node(raw json.RawMessage, depth int) (types.Node, error) {
	var w wireNode
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, &types.InvalidValueShapeError{Reason: fmt.Sprintf("malformed node: %v", err)}
	}
	switch {
	case w.Type == "rule":
		return d.condition(w.Query, depth)
	case w.Condition != nil:
		return d.groupFrom(&w, depth)
	default:
		return nil, &types.InvalidValueShapeError{Reason: `node is neither a rule ("type":"rule") nor a group ("condition")`}
	}
}

func (d *treeDecoder) group(raw json.RawMessage, depth int) (*types.Group, error) {
	var w wireNode
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, &types.InvalidValueShapeError{Reason: fmt.Sprintf("malformed group: %v", err)}
	}
	if w.Condition == nil {
		return nil, &types.InvalidValueShapeError{Reason: `group requires "condition"`}
	}
	return d.groupFrom(&w, depth)
}

func (d *treeDecoder) groupFrom(w *wireNode, depth int) (*types.Group, error) {
	if err := d.enter(depth); err != nil {
		return nil, err
	}
	conj := types.Conjunction(*w.Condition)
	if !conj.Valid() {
		return nil, &types.InvalidValueShapeError{Reason: fmt.Sprintf("unknown condition %q, expected \"and\" or \"or\"", *w.Condition)}
	}
	g := &types.Group{Conjunction: conj, Children: make([]types.Node, 0, len(w.Children))}
	for _, raw := range w.Children {
		child, err := d.node(raw, depth+1)
		if err != nil {
			return nil, err
		}
		g.Children = append(g.Children, child)
	}
	return g, nil
}

func (d *treeDecoder) condition(q *wireQuery, depth int) (*types.Condition, error) {
	if err := d.enter(depth); err != nil {
		return nil, err
	}
	if q == nil {
		return nil, &types.InvalidValueShapeError{Reason: `rule requires "query"`}
	}
	if q.Rule == "" {
		return nil, &types.InvalidValueShapeError{Reason: `rule requires "query.rule"`}
	}
	if q.Operator == "" {
		return nil, &types.InvalidValueShapeError{Operand: q.Rule, Reason: `rule requires "query.operator"`}
	}

	cond := &types.Condition{
		OperandKey:  q.Rule,
		OperandType: q.Type,
		Operator:    q.Operator,
		Negate:      q.Negate,
	}

	if len(q.Value) > 0 {
		dec := json.NewDecoder(bytes.NewReader(q.Value))
		dec.UseNumber()
		if err := dec.Decode(&cond.Value); err != nil {
			return nil, &types.InvalidValueShapeError{Operand: q.Rule, Operator: q.Operator, Reason: fmt.Sprintf("malformed value: %v", err)}
		}
	}

	if filter := bytes.TrimSpace(q.Filter); len(filter) > 0 && !bytes.Equal(filter, []byte("null")) {
		g, err := d.group(filter, depth+1)
		if err != nil {
			return nil, err
		}
		cond.Filter = g
	}
	return cond, nil
}
