// Package catalog loads resource and operand definitions from YAML and
// builds one immutable operand registry per resource.
//
// The catalog is read once at startup and shared read-only by every
// request. Compile overrides are Go functions, so catalog files refer to
// them by name and the names are bound with WithOverride.
package catalog

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/solatis/sieve/internal/query"
	"github.com/solatis/sieve/internal/rules"
	"github.com/solatis/sieve/internal/types"
)

//go:embed default.yaml
var defaultCatalog []byte

// Resource is one filterable table.
type Resource struct {
	Name             string
	Table            string
	VisibilityColumn string
	OrderBy          string
	Registry         *rules.Registry
}

// Builder returns a fresh query handle over the resource's table.
func (r *Resource) Builder(d query.Dialect) (*query.Builder, error) {
	b, err := query.NewBuilder(d, r.Table)
	if err != nil {
		return nil, err
	}
	if r.OrderBy != "" {
		b.OrderBy(r.OrderBy)
	}
	return b, nil
}

// Catalog maps resource names to resources.
type Catalog struct {
	resources map[string]*Resource
	order     []string
}

// Resource looks up a resource by name.
func (c *Catalog) Resource(name string) (*Resource, error) {
	r, ok := c.resources[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", types.ErrUnknownResource, name)
	}
	return r, nil
}

// Names returns resource names in file order.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.order...)
}

// Option configures loading.
type Option func(*loader)

// WithOverride binds a compile override to the name catalog files use in
// an operand's "override" field.
func WithOverride(name string, fn rules.CompileOverride) Option {
	return func(l *loader) { l.overrides[name] = fn }
}

type loader struct {
	overrides map[string]rules.CompileOverride
}

type fileCatalog struct {
	Resources []fileResource `yaml:"resources"`
}

type fileResource struct {
	Name             string        `yaml:"name"`
	Table            string        `yaml:"table"`
	VisibilityColumn string        `yaml:"visibility_column"`
	OrderBy          string        `yaml:"order_by"`
	Operands         []fileOperand `yaml:"operands"`
}

type fileOperand struct {
	Key       string         `yaml:"key"`
	Label     string         `yaml:"label"`
	Type      string         `yaml:"type"`
	Column    string         `yaml:"column"`
	ValueKey  string         `yaml:"value_key"`
	LabelKey  string         `yaml:"label_key"`
	Options   []string       `yaml:"options"`
	Relation  *fileRelation  `yaml:"relation"`
	Children  []fileOperand  `yaml:"children"`
	SubFilter map[string]any `yaml:"sub_filter"`
	Override  string         `yaml:"override"`
}

type fileRelation struct {
	Name       string `yaml:"name"`
	Table      string `yaml:"table"`
	LocalKey   string `yaml:"local_key"`
	ForeignKey string `yaml:"foreign_key"`
}

// Default loads the embedded demo catalog with the built-in overrides.
func Default(opts ...Option) (*Catalog, error) {
	return Load(defaultCatalog, withBuiltins(opts)...)
}

// LoadFile reads a catalog file. An empty path loads the embedded default.
func LoadFile(path string, opts ...Option) (*Catalog, error) {
	if path == "" {
		return Default(opts...)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	return Load(data, withBuiltins(opts)...)
}

// withBuiltins puts the built-in overrides first so callers can replace them.
func withBuiltins(opts []Option) []Option {
	builtins := DefaultOverrides()
	all := make([]Option, 0, len(builtins)+len(opts))
	for name, fn := range builtins {
		all = append(all, WithOverride(name, fn))
	}
	return append(all, opts...)
}

// Load parses and validates catalog YAML. Unknown fields are rejected.
// Every error wraps types.ErrInvalidCatalog.
func Load(data []byte, opts ...Option) (*Catalog, error) {
	l := &loader{overrides: make(map[string]rules.CompileOverride)}
	for _, opt := range opts {
		opt(l)
	}

	var file fileCatalog
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("%w: failed to parse YAML: %v", types.ErrInvalidCatalog, err)
	}
	if len(file.Resources) == 0 {
		return nil, fmt.Errorf("%w: no resources defined", types.ErrInvalidCatalog)
	}

	c := &Catalog{resources: make(map[string]*Resource, len(file.Resources))}
	for _, fr := range file.Resources {
		r, err := l.resource(fr)
		if err != nil {
			return nil, err
		}
		if _, dup := c.resources[r.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate resource %q", types.ErrInvalidCatalog, r.Name)
		}
		c.resources[r.Name] = r
		c.order = append(c.order, r.Name)
	}
	return c, nil
}

func (l *loader) resource(fr fileResource) (*Resource, error) {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: resource %q: %s", types.ErrInvalidCatalog, fr.Name, fmt.Sprintf(format, args...))
	}

	if fr.Name == "" {
		return nil, fmt.Errorf("%w: resource name is required", types.ErrInvalidCatalog)
	}
	if fr.Table == "" {
		fr.Table = fr.Name
	}
	if !query.ValidIdentifier(fr.Table) {
		return nil, invalid("invalid table %q", fr.Table)
	}
	for _, col := range []string{fr.VisibilityColumn, fr.OrderBy} {
		if col != "" && !query.ValidIdentifier(col) {
			return nil, invalid("invalid column %q", col)
		}
	}

	reg, err := l.registry(fr.Operands, 1)
	if err != nil {
		return nil, fmt.Errorf("resource %q: %w", fr.Name, err)
	}
	return &Resource{
		Name:             fr.Name,
		Table:            fr.Table,
		VisibilityColumn: fr.VisibilityColumn,
		OrderBy:          fr.OrderBy,
		Registry:         reg,
	}, nil
}

// registry builds one registry level. depth bounds children nesting the
// same way dotted keys are bounded.
func (l *loader) registry(operands []fileOperand, depth int) (*rules.Registry, error) {
	if depth > types.MaxOperandPathDepth {
		return nil, fmt.Errorf("%w: children nested deeper than %d", types.ErrInvalidCatalog, types.MaxOperandPathDepth)
	}

	defs := make([]rules.OperandDefinition, 0, len(operands))
	for _, fo := range operands {
		def, err := l.operand(fo, depth)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	reg, err := rules.NewRegistry(defs...)
	if err != nil {
		return nil, err
	}

	// Sub-filters are compiled once against their relation table so bad
	// keys fail at load time rather than on the first request.
	for _, def := range reg.Definitions() {
		if def.SubFilter == nil {
			continue
		}
		b, err := query.NewBuilder(query.SQLite, def.Relation.Table)
		if err != nil {
			return nil, fmt.Errorf("%w: operand %q: %v", types.ErrInvalidCatalog, def.Key, err)
		}
		if err := rules.NewCompiler().Compile(b, def.SubFilter, def.Children); err != nil {
			return nil, fmt.Errorf("%w: operand %q sub_filter: %v", types.ErrInvalidCatalog, def.Key, err)
		}
	}
	return reg, nil
}

func (l *loader) operand(fo fileOperand, depth int) (rules.OperandDefinition, error) {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: operand %q: %s", types.ErrInvalidCatalog, fo.Key, fmt.Sprintf(format, args...))
	}

	ot, err := rules.ParseOperandType(fo.Type)
	if err != nil {
		return rules.OperandDefinition{}, invalid("%v", err)
	}
	def := rules.OperandDefinition{
		Key:      fo.Key,
		Label:    fo.Label,
		Type:     ot,
		Column:   fo.Column,
		ValueKey: fo.ValueKey,
		LabelKey: fo.LabelKey,
		Options:  fo.Options,
	}

	if fo.Override != "" {
		fn, ok := l.overrides[fo.Override]
		if !ok {
			return rules.OperandDefinition{}, invalid("unknown override %q", fo.Override)
		}
		def.Override = fn
	}

	if fo.Relation != nil {
		def.Relation = &query.Relation{
			Name:       fo.Relation.Name,
			Table:      fo.Relation.Table,
			LocalKey:   fo.Relation.LocalKey,
			ForeignKey: fo.Relation.ForeignKey,
		}
		children, err := l.registry(fo.Children, depth+1)
		if err != nil {
			return rules.OperandDefinition{}, err
		}
		def.Children = children
	} else if len(fo.Children) > 0 {
		return rules.OperandDefinition{}, invalid("children require a relation")
	}

	if len(fo.SubFilter) > 0 {
		g, err := parseSubFilter(fo.SubFilter)
		if err != nil {
			return rules.OperandDefinition{}, invalid("sub_filter: %v", err)
		}
		def.SubFilter = g
	}
	return def, nil
}

// parseSubFilter converts a YAML mapping in rule-builder shape into a group
// through the same decoder client trees use.
func parseSubFilter(raw map[string]any) (*types.Group, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	node, err := rules.ParseTree(data, types.DefaultLimits())
	if err != nil {
		return nil, err
	}
	g, ok := node.(*types.Group)
	if !ok {
		return nil, fmt.Errorf("expected a group")
	}
	return g, nil
}
