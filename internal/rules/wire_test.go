package rules

import (
	"errors"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solatis/sieve/internal/types"
)

func TestParseTree(t *testing.T) {
	tree, err := ParseTree([]byte(`{
		"condition": "or",
		"children": [
			{"type": "rule", "query": {"type": "number", "rule": "amount", "operator": "between", "value": [1, 2.50]}},
			{"type": "rule", "query": {"rule": "status", "operator": "is_null", "negate": true}},
			{"type": "rule", "query": {"rule": "total_count", "operator": "greater_than", "value": 0,
				"filter": {"condition": "and", "children": [
					{"type": "rule", "query": {"rule": "sku", "operator": "equal", "value": "X"}}
				]}}},
			{"condition": "and", "children": []}
		]
	}`), types.DefaultLimits())
	require.NoError(t, err)

	g, ok := tree.(*types.Group)
	require.True(t, ok, "root is %T", tree)
	assert.Equal(t, types.Or, g.Conjunction)
	require.Len(t, g.Children, 4)

	amount := g.Children[0].(*types.Condition)
	assert.Equal(t, "amount", amount.OperandKey)
	assert.Equal(t, "number", amount.OperandType)
	assert.Equal(t, []any{json.Number("1"), json.Number("2.50")}, amount.Value)

	status := g.Children[1].(*types.Condition)
	assert.True(t, status.Negate)
	assert.Nil(t, status.Value)

	count := g.Children[2].(*types.Condition)
	require.NotNil(t, count.Filter)
	assert.Equal(t, "sku", count.Filter.Children[0].(*types.Condition).OperandKey)

	assert.True(t, types.IsEmptyTree(g.Children[3]))
}

func TestParseTree_Empty(t *testing.T) {
	for _, in := range []string{"", "  ", "null"} {
		tree, err := ParseTree([]byte(in), types.DefaultLimits())
		assert.NoError(t, err, "input %q", in)
		assert.Nil(t, tree, "input %q", in)
	}
}

func TestParseTree_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"malformed json", `{"condition":`, types.ErrInvalidValueShape},
		{"root without condition", `{"children": []}`, types.ErrInvalidValueShape},
		{"root is a rule", `{"type":"rule","query":{"rule":"a","operator":"equal","value":1}}`, types.ErrInvalidValueShape},
		{"unknown conjunction", `{"condition":"xor","children":[]}`, types.ErrInvalidValueShape},
		{"child neither rule nor group", `{"condition":"and","children":[{"type":"other"}]}`, types.ErrInvalidValueShape},
		{"rule without query", `{"condition":"and","children":[{"type":"rule"}]}`, types.ErrInvalidValueShape},
		{"rule without operand", `{"condition":"and","children":[{"type":"rule","query":{"operator":"equal"}}]}`, types.ErrInvalidValueShape},
		{"rule without operator", `{"condition":"and","children":[{"type":"rule","query":{"rule":"a"}}]}`, types.ErrInvalidValueShape},
		{"filter is not a group", `{"condition":"and","children":[{"type":"rule","query":{"rule":"a","operator":"equal","value":1,"filter":[1]}}]}`, types.ErrInvalidValueShape},
		{"too deep", strings.Repeat(`{"condition":"and","children":[`, 20) + strings.Repeat(`]}`, 20), types.ErrMaxDepthExceeded},
		{"too many nodes", `{"condition":"and","children":[` + strings.TrimSuffix(strings.Repeat(`{"condition":"and","children":[]},`, 300), ",") + `]}`, types.ErrMaxNodeCountExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTree([]byte(tt.input), types.DefaultLimits())
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ParseTree() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseTree_LimitsMatchCheckLimits(t *testing.T) {
	// A tree the decoder accepts must also pass the pre-compilation walk.
	limits := types.Limits{MaxDepth: 3, MaxNodes: 10}
	tree, err := ParseTree([]byte(`{"condition":"and","children":[
		{"condition":"or","children":[{"type":"rule","query":{"rule":"a","operator":"equal","value":1}}]}
	]}`), limits)
	require.NoError(t, err)

	stats, err := CheckLimits(tree, limits)
	require.NoError(t, err)
	assert.Equal(t, TreeStats{Nodes: 3, Depth: 3, Conditions: 1}, stats)
}
