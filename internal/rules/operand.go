// internal/rules/operand.go
package rules

import (
	"fmt"

	"github.com/solatis/sieve/internal/query"
	"github.com/solatis/sieve/internal/types"
)

/*
 * Operand types and definitions.
 *
 * OperandType is a closed set. Every type maps to one default compile
 * function in the compiler's dispatch table; operands needing bespoke SQL
 * register a CompileOverride instead of adding a type.
 *
 * Grouped operands (relation_count, relation_exists) carry a Relation and a
 * child Registry describing the related table's own operands. Their
 * aggregation mode follows from the type.
 */

// OperandType selects coercion rules, legal operators and the default
// compile function for an operand.
type OperandType string

const (
	TypeText           OperandType = "text"
	TypeNumber         OperandType = "number"
	TypeNumeric        OperandType = "numeric"
	TypeDate           OperandType = "date"
	TypeDateTime       OperandType = "datetime"
	TypeSelect         OperandType = "select"
	TypeMultiSelect    OperandType = "multiselect"
	TypeBoolean        OperandType = "boolean"
	TypeEnum           OperandType = "enum"
	TypeRelationCount  OperandType = "relation_count"
	TypeRelationExists OperandType = "relation_exists"
)

var knownTypes = map[OperandType]bool{
	TypeText: true, TypeNumber: true, TypeNumeric: true, TypeDate: true,
	TypeDateTime: true, TypeSelect: true, TypeMultiSelect: true, TypeBoolean: true,
	TypeEnum: true, TypeRelationCount: true, TypeRelationExists: true,
}

// ParseOperandType validates a type name from catalog data.
func ParseOperandType(s string) (OperandType, error) {
	t := OperandType(s)
	if !knownTypes[t] {
		return "", fmt.Errorf("unknown operand type %q", s)
	}
	return t, nil
}

// Grouped reports whether t addresses related rows rather than a column.
func (t OperandType) Grouped() bool {
	return t == TypeRelationCount || t == TypeRelationExists
}

// Aggregation is how a grouped operand summarizes related rows.
type Aggregation int

const (
	AggregateNone Aggregation = iota
	AggregateCount
	AggregateExists
)

func (a Aggregation) String() string {
	switch a {
	case AggregateCount:
		return "COUNT"
	case AggregateExists:
		return "EXISTS"
	default:
		return "NONE"
	}
}

// CompileOverride replaces the default compile function for one operand.
// It receives the scope to attach to, the shape-checked value, the joiner
// for the produced constraint, the resolved operator, the raw condition and
// the running compilation for recursive delegation. Errors propagate
// unchanged to the caller of Compile.
type CompileOverride func(scope query.Scope, value any, conj types.Conjunction, op OperatorSpec, cond *types.Condition, c *Compilation) error

// OperandDefinition describes one filterable operand of a resource.
type OperandDefinition struct {
	Key   string
	Label string
	Type  OperandType

	// Column is a bare column name or an expression using {t} for the table
	// alias. Defaults to Key.
	Column string

	// ValueKey and LabelKey name the option value/label fields for
	// rule-builder clients; the compiler does not read them.
	ValueKey string
	LabelKey string

	// Options restricts select and enum values when non-empty.
	Options []string

	// Relation and Children are set for grouped operands only.
	Relation *query.Relation
	Children *Registry

	// SubFilter is always applied inside the relation scope. It is compiled
	// against the unrestricted child registry, so Restrict never breaks it.
	SubFilter         *types.Group
	subFilterRegistry *Registry

	Override CompileOverride
}

// Grouped reports whether the operand owns a nested registry.
func (d *OperandDefinition) Grouped() bool {
	return d.Relation != nil
}

// Aggregation returns the aggregation mode of a grouped operand.
func (d *OperandDefinition) Aggregation() Aggregation {
	switch d.Type {
	case TypeRelationCount:
		return AggregateCount
	case TypeRelationExists:
		return AggregateExists
	default:
		return AggregateNone
	}
}

func (d *OperandDefinition) allowsOption(v string) bool {
	if len(d.Options) == 0 {
		return true
	}
	for _, o := range d.Options {
		if o == v {
			return true
		}
	}
	return false
}
