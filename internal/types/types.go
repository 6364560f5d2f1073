// Package types provides domain models shared across sieve components.
//
// The rule tree in rules.go is wire-format agnostic: JSON decoding happens in
// internal/rules and protobuf conversion at the API boundary. errors.go holds
// the compile-time error taxonomy. ids.go is the only file with an external
// dependency (uuid).
package types

// Resource limits enforced by the rule compiler to bound worst-case compile time.
const (
	// DefaultMaxDepth caps rule tree nesting. Groups, conditions and
	// per-condition relation filters each add one level.
	DefaultMaxDepth = 16

	// DefaultMaxNodes caps the total number of groups and conditions in one tree.
	// 256 covers hand-built rule-builder trees with a wide margin.
	DefaultMaxNodes = 256

	// DefaultMaxInValues limits in / not_in lists to keep placeholder counts bounded.
	DefaultMaxInValues = 64

	// MaxOperandPathDepth limits dotted operand keys ("orders.items.sku") to prevent
	// unbounded recursion through nested registries.
	MaxOperandPathDepth = 8

	// MaxRelativeDays bounds the day count accepted by in_past / in_next (about ten years).
	MaxRelativeDays = 3660
)

// Limits bundles the per-compilation resource limits.
type Limits struct {
	MaxDepth    int
	MaxNodes    int
	MaxInValues int
}

// DefaultLimits returns the compiled-in limits.
func DefaultLimits() Limits {
	return Limits{
		MaxDepth:    DefaultMaxDepth,
		MaxNodes:    DefaultMaxNodes,
		MaxInValues: DefaultMaxInValues,
	}
}
