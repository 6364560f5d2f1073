package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solatis/sieve/internal/query"
	"github.com/solatis/sieve/internal/rules"
	"github.com/solatis/sieve/internal/types"
)

func TestDefault(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	assert.Equal(t, []string{"accounts", "deals", "products"}, c.Names())

	deals, err := c.Resource("deals")
	require.NoError(t, err)
	assert.Equal(t, "deals", deals.Table)
	assert.Equal(t, "owner_id", deals.VisibilityColumn)

	res, err := deals.Registry.Resolve("products.sku")
	require.NoError(t, err)
	assert.Equal(t, rules.TypeText, res.Operand.Type)

	count, ok := deals.Registry.Lookup("bulk_product_count")
	require.True(t, ok)
	assert.Equal(t, rules.AggregateCount, count.Aggregation())
	require.NotNil(t, count.SubFilter)
	assert.Equal(t, "quantity", count.SubFilter.Children[0].(*types.Condition).OperandKey)

	products, err := c.Resource("products")
	require.NoError(t, err)
	assert.Equal(t, "deal_products", products.Table)
}

func TestResource_Unknown(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	_, err = c.Resource("invoices")
	assert.ErrorIs(t, err, types.ErrUnknownResource)
}

func TestResource_BuilderUsesOrderColumn(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	accounts, err := c.Resource("accounts")
	require.NoError(t, err)

	b, err := accounts.Builder(query.SQLite)
	require.NoError(t, err)
	q, _, err := b.SQL()
	require.NoError(t, err)
	assert.Equal(t, "SELECT t0.* FROM accounts AS t0 ORDER BY t0.created_at", q)
}

func TestDefault_SubFilterCompiles(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	accounts, err := c.Resource("accounts")
	require.NoError(t, err)

	b, err := accounts.Builder(query.SQLite)
	require.NoError(t, err)
	tree := types.NewGroup(types.And, types.NewCondition("open_deal_count", "greater_than", 1))
	require.NoError(t, rules.NewCompiler().Compile(b, tree, accounts.Registry))

	where, args := b.WhereSQL()
	assert.Equal(t, "((SELECT COUNT(*) FROM deals AS r1 WHERE r1.account_id = t0.id AND ((r1.status = ?))) > ?)", where)
	assert.Equal(t, []any{"open", int64(1)}, args)
}

func TestKeywordSearch(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	deals, err := c.Resource("deals")
	require.NoError(t, err)

	tests := []struct {
		name     string
		cond     *types.Condition
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "contains matches any column",
			cond:     types.NewCondition("search", "contains", "acme"),
			wantSQL:  `((t0.name LIKE ? ESCAPE '\' OR t0.notes LIKE ? ESCAPE '\'))`,
			wantArgs: []any{"%acme%", "%acme%"},
		},
		{
			name:     "not_contains matches no column",
			cond:     types.NewCondition("search", "not_contains", "acme"),
			wantSQL:  `((t0.name IS NULL OR t0.name NOT LIKE ? ESCAPE '\') AND (t0.notes IS NULL OR t0.notes NOT LIKE ? ESCAPE '\'))`,
			wantArgs: []any{"%acme%", "%acme%"},
		},
		{
			name:     "equal",
			cond:     types.NewCondition("search", "equal", "Acme"),
			wantSQL:  `((t0.name = ? OR t0.notes = ?))`,
			wantArgs: []any{"Acme", "Acme"},
		},
		{
			name: "negated begins_with",
			cond: func() *types.Condition {
				c := types.NewCondition("search", "begins_with", "ac")
				c.Negate = true
				return c
			}(),
			wantSQL:  `((t0.name IS NULL OR t0.name NOT LIKE ? ESCAPE '\') AND (t0.notes IS NULL OR t0.notes NOT LIKE ? ESCAPE '\'))`,
			wantArgs: []any{"ac%", "ac%"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := deals.Builder(query.SQLite)
			require.NoError(t, err)
			require.NoError(t, rules.NewCompiler().Compile(b, types.NewGroup(types.And, tt.cond), deals.Registry))
			where, args := b.WhereSQL()
			assert.Equal(t, tt.wantSQL, where)
			assert.Equal(t, tt.wantArgs, args)
		})
	}

	t.Run("unsupported operator", func(t *testing.T) {
		b, _ := deals.Builder(query.SQLite)
		err := rules.NewCompiler().Compile(b, types.NewGroup(types.And, types.NewCondition("search", "in", []any{"a"})), deals.Registry)
		assert.ErrorIs(t, err, types.ErrOperatorTypeMismatch)
	})
}

func TestWithOverride_ReplacesBuiltin(t *testing.T) {
	errBlocked := errors.New("search disabled")
	c, err := Default(WithOverride("deal_keywords", func(query.Scope, any, types.Conjunction, rules.OperatorSpec, *types.Condition, *rules.Compilation) error {
		return errBlocked
	}))
	require.NoError(t, err)
	deals, err := c.Resource("deals")
	require.NoError(t, err)

	b, _ := deals.Builder(query.SQLite)
	err = rules.NewCompiler().Compile(b, types.NewGroup(types.And, types.NewCondition("search", "contains", "x")), deals.Registry)
	assert.Same(t, errBlocked, err)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty", ``},
		{"malformed", `resources: [`},
		{"unknown field", "resources:\n  - name: a\n    tabel: a\n"},
		{"no name", "resources:\n  - table: a\n"},
		{"bad table", "resources:\n  - name: a\n    table: \"a b\"\n"},
		{"bad visibility column", "resources:\n  - name: a\n    visibility_column: \"x;y\"\n"},
		{"duplicate resource", "resources:\n  - name: a\n  - name: a\n"},
		{"unknown type", "resources:\n  - name: a\n    operands:\n      - {key: x, type: money}\n"},
		{"unknown override", "resources:\n  - name: a\n    operands:\n      - {key: x, type: text, override: nope}\n"},
		{"children without relation", "resources:\n  - name: a\n    operands:\n      - key: x\n        type: text\n        children: [{key: y, type: text}]\n"},
		{"grouped without relation", "resources:\n  - name: a\n    operands:\n      - {key: x, type: relation_count}\n"},
		{
			"sub_filter with unknown key",
			"resources:\n  - name: a\n    operands:\n      - key: x\n        type: relation_count\n" +
				"        relation: {table: b, local_key: id, foreign_key: a_id}\n" +
				"        children: [{key: y, type: text}]\n" +
				"        sub_filter: {condition: and, children: [{type: rule, query: {rule: z, operator: equal, value: 1}}]}\n",
		},
		{
			"sub_filter not a group",
			"resources:\n  - name: a\n    operands:\n      - key: x\n        type: relation_count\n" +
				"        relation: {table: b, local_key: id, foreign_key: a_id}\n" +
				"        sub_filter: {type: rule}\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load([]byte(tt.yaml))
			assert.ErrorIs(t, err, types.ErrInvalidCatalog)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
resources:
  - name: tickets
    operands:
      - {key: subject, type: text}
      - {key: priority, type: select, options: [low, high]}
`), 0o644))

	c, err := LoadFile(path)
	require.NoError(t, err)
	tickets, err := c.Resource("tickets")
	require.NoError(t, err)
	assert.Equal(t, "tickets", tickets.Table)
	assert.Equal(t, 2, tickets.Registry.Len())

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	c, err = LoadFile("")
	require.NoError(t, err)
	assert.Len(t, c.Names(), 3)
}
