// Package criteria composes independent constraints on one query handle.
//
// Each Criteria is attached inside its own nested scope joined by AND, so
// an OR inside a user's rule filter can never widen a visibility
// restriction applied next to it.
package criteria

import (
	"errors"
	"fmt"

	"github.com/solatis/sieve/internal/query"
	"github.com/solatis/sieve/internal/rules"
	"github.com/solatis/sieve/internal/types"
)

// ErrNoVisibleValues is returned when a visibility restriction names no
// values; a caller that can see nothing must not query at all.
var ErrNoVisibleValues = errors.New("criteria: visibility requires at least one value")

// Criteria attaches one independent constraint to a scope.
type Criteria interface {
	Apply(scope query.Scope) error
}

// Apply attaches every criteria in order, each in its own AND-joined group.
// Criteria that attach nothing leave no trace in the rendered query.
func Apply(scope query.Scope, cs ...Criteria) error {
	for _, c := range cs {
		if c == nil {
			continue
		}
		if err := scope.Group(query.And, c.Apply); err != nil {
			return err
		}
	}
	return nil
}

// Filters attaches a rule tree compiled against a registry.
type Filters struct {
	Compiler *rules.Compiler
	Registry *rules.Registry
	Tree     types.Node
}

func (f Filters) Apply(scope query.Scope) error {
	if types.IsEmptyTree(f.Tree) {
		return nil
	}
	if f.Compiler == nil || f.Registry == nil {
		return fmt.Errorf("criteria: filters need a compiler and a registry")
	}
	return f.Compiler.Compile(scope, f.Tree, f.Registry)
}

// Visibility restricts rows to those whose Column holds one of Values.
type Visibility struct {
	Column string
	Values []string
}

func (v Visibility) Apply(scope query.Scope) error {
	if !query.ValidIdentifier(v.Column) {
		return fmt.Errorf("criteria: invalid visibility column %q", v.Column)
	}
	if len(v.Values) == 0 {
		return ErrNoVisibleValues
	}
	args := make([]any, len(v.Values))
	for i, val := range v.Values {
		args[i] = val
	}
	return scope.Where(query.Predicate{Column: v.Column, Op: query.OpIn, Args: args}, query.And)
}

// ApplyFilters attaches tree to scope in its own nested group. An empty or
// absent tree is a strict no-op. The registry is only read.
func ApplyFilters(scope query.Scope, tree types.Node, reg *rules.Registry, compiler *rules.Compiler) error {
	return Apply(scope, Filters{Compiler: compiler, Registry: reg, Tree: tree})
}
