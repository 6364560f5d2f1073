// internal/rules/fieldpath.go
package rules

import (
	"strings"

	"github.com/solatis/sieve/internal/types"
)

/*
 * Dotted operand key resolution.
 *
 * "products.sku" splits on the first '.': when "products" is a grouped
 * operand, resolution continues with "sku" in its child registry; otherwise
 * the full key is looked up directly. Enforces MaxOperandPathDepth so
 * cyclic registries cannot recurse forever.
 *
 * Key functions:
 *   - Resolve: key -> grouped path + leaf definition + leaf registry
 *   - Restrict: registry view limited to permitted (possibly dotted) keys;
 *     a prefix permitted only through dotted keys is not itself a leaf
 */

// Resolution is the outcome of resolving an operand key.
type Resolution struct {
	// Path lists the grouped operands traversed by a dotted key, outermost
	// first. Empty for plain keys.
	Path []*OperandDefinition

	// Operand is the leaf definition.
	Operand *OperandDefinition

	// Registry is the registry the leaf was found in.
	Registry *Registry
}

// Resolve maps an operand key to its definition. Returns
// *types.UnknownOperandError when any segment fails to resolve.
func (r *Registry) Resolve(key string) (Resolution, error) {
	var res Resolution
	reg, rest := r, key

	for depth := 1; depth <= types.MaxOperandPathDepth; depth++ {
		if prefix, remainder, dotted := strings.Cut(rest, "."); dotted {
			if def, ok := reg.defs[prefix]; ok && def.Grouped() {
				res.Path = append(res.Path, def)
				reg, rest = def.Children, remainder
				continue
			}
		}
		def, ok := reg.Lookup(rest)
		if !ok {
			return Resolution{}, &types.UnknownOperandError{Key: key}
		}
		res.Operand = def
		res.Registry = reg
		return res, nil
	}
	return Resolution{}, &types.UnknownOperandError{Key: key}
}

// Restrict returns a registry exposing only the permitted keys. A plain key
// permits the whole operand (including a grouped operand's children); a
// dotted key permits traversal through its grouped prefix into a child
// registry restricted to the remainder, but not the prefix as a condition
// on its own unless the plain prefix is permitted too. The receiver is not
// modified.
func (r *Registry) Restrict(keys ...string) *Registry {
	whole := make(map[string]bool)
	nested := make(map[string][]string)
	for _, k := range keys {
		if prefix, remainder, dotted := strings.Cut(k, "."); dotted {
			nested[prefix] = append(nested[prefix], remainder)
			continue
		}
		whole[k] = true
	}

	out := &Registry{defs: make(map[string]*OperandDefinition)}
	for _, k := range r.order {
		def := r.defs[k]
		switch {
		case def.Grouped() && len(nested[k]) > 0:
			view := *def
			view.Children = def.Children.Restrict(nested[k]...)
			out.defs[k] = &view
			if !whole[k] {
				if out.pathOnly == nil {
					out.pathOnly = make(map[string]bool)
				}
				out.pathOnly[k] = true
			}
		case whole[k]:
			out.defs[k] = def
		default:
			continue
		}
		out.order = append(out.order, k)
	}
	return out
}
