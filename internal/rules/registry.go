// internal/rules/registry.go
package rules

import (
	"fmt"
	"strings"

	"github.com/solatis/sieve/internal/query"
	"github.com/solatis/sieve/internal/types"
)

/*
 * Operand registry.
 *
 * A Registry maps operand keys to definitions for one resource. Grouped
 * operands own a child Registry for the related table, so registries nest
 * by relation name and dotted keys walk down the nesting (see fieldpath.go).
 *
 * Registries are validated once at construction and never mutated. They
 * are shared read-only by every concurrent compilation; Restrict returns a
 * new view instead of editing the receiver.
 */

// Registry is an immutable operand catalog for one table.
type Registry struct {
	defs  map[string]*OperandDefinition
	order []string

	// pathOnly holds grouped operands a restricted view exposes only as the
	// prefix of a dotted key.
	pathOnly map[string]bool
}

// NewRegistry validates defs and builds a registry. Definitions are copied;
// later changes to the arguments do not affect the registry.
func NewRegistry(defs ...OperandDefinition) (*Registry, error) {
	r := &Registry{defs: make(map[string]*OperandDefinition, len(defs))}
	for i := range defs {
		def := defs[i]
		if err := validateDefinition(&def); err != nil {
			return nil, err
		}
		if _, dup := r.defs[def.Key]; dup {
			return nil, fmt.Errorf("%w: duplicate operand %q", types.ErrInvalidCatalog, def.Key)
		}
		r.defs[def.Key] = &def
		r.order = append(r.order, def.Key)
	}
	return r, nil
}

// MustRegistry is NewRegistry for static definitions; panics on error.
func MustRegistry(defs ...OperandDefinition) *Registry {
	r, err := NewRegistry(defs...)
	if err != nil {
		panic(err)
	}
	return r
}

func validateDefinition(def *OperandDefinition) error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: operand %q: %s", types.ErrInvalidCatalog, def.Key, fmt.Sprintf(format, args...))
	}

	if def.Key == "" || strings.Contains(def.Key, ".") {
		return invalid("key must be non-empty and must not contain '.'")
	}
	if !knownTypes[def.Type] {
		return invalid("unknown type %q", def.Type)
	}
	if def.Label == "" {
		def.Label = def.Key
	}

	if def.Type.Grouped() {
		if def.Relation == nil {
			return invalid("%s operand requires a relation", def.Type)
		}
		if err := def.Relation.Validate(); err != nil {
			return invalid("%v", err)
		}
		if def.Relation.Name == "" {
			rel := *def.Relation
			rel.Name = def.Key
			def.Relation = &rel
		}
		if def.Children == nil {
			def.Children = &Registry{defs: map[string]*OperandDefinition{}}
		}
		def.subFilterRegistry = def.Children
		return nil
	}

	if def.Relation != nil || def.Children != nil || def.SubFilter != nil {
		return invalid("only relation operands may declare a relation, children or sub-filter")
	}
	if def.Column == "" {
		def.Column = def.Key
	}
	if !query.ValidIdentifier(def.Column) && !strings.Contains(def.Column, "{t}") {
		return invalid("column %q must be an identifier or a {t} expression", def.Column)
	}
	return nil
}

// Lookup returns the definition registered under key, without dotted
// resolution.
func (r *Registry) Lookup(key string) (*OperandDefinition, bool) {
	if r.pathOnly[key] {
		return nil, false
	}
	def, ok := r.defs[key]
	return def, ok
}

// Len returns the number of top-level operands.
func (r *Registry) Len() int {
	return len(r.order)
}

// Definitions returns the top-level definitions in registration order.
// The returned values are copies.
func (r *Registry) Definitions() []OperandDefinition {
	out := make([]OperandDefinition, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, *r.defs[k])
	}
	return out
}
