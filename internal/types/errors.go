package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for rule compilation. Every typed error below unwraps to
// exactly one of these so callers can branch with errors.Is.
var (
	// ErrUnknownOperand indicates an operand key that does not resolve in the active registry.
	ErrUnknownOperand = errors.New("unknown operand")

	// ErrUnknownOperator indicates an operator key absent from the operator table.
	ErrUnknownOperator = errors.New("unknown operator")

	// ErrOperatorTypeMismatch indicates an operator that is not legal for the operand's type.
	ErrOperatorTypeMismatch = errors.New("operator not applicable to operand type")

	// ErrInvalidValueShape indicates a value (or node) whose shape does not match what the operator expects.
	ErrInvalidValueShape = errors.New("invalid value shape")

	// ErrMaxDepthExceeded indicates a rule tree nested deeper than the configured limit.
	ErrMaxDepthExceeded = errors.New("rule tree exceeds maximum depth")

	// ErrMaxNodeCountExceeded indicates a rule tree with more nodes than the configured limit.
	ErrMaxNodeCountExceeded = errors.New("rule tree exceeds maximum node count")

	// ErrUnknownResource indicates a resource name absent from the catalog.
	ErrUnknownResource = errors.New("unknown resource")

	// ErrInvalidCatalog indicates a malformed resource/field catalog.
	ErrInvalidCatalog = errors.New("invalid catalog")
)

// UnknownOperandError reports the operand key that failed to resolve.
type UnknownOperandError struct {
	Key string
}

func (e *UnknownOperandError) Error() string {
	return fmt.Sprintf("unknown operand %q", e.Key)
}

func (e *UnknownOperandError) Unwrap() error { return ErrUnknownOperand }

// UnknownOperatorError reports an operator key absent from the operator table.
type UnknownOperatorError struct {
	Operator string
}

func (e *UnknownOperatorError) Error() string {
	return fmt.Sprintf("unknown operator %q", e.Operator)
}

func (e *UnknownOperatorError) Unwrap() error { return ErrUnknownOperator }

// OperatorTypeMismatchError reports an operator used on an operand type it does not support.
type OperatorTypeMismatchError struct {
	Operand  string
	Operator string
	Type     string
}

func (e *OperatorTypeMismatchError) Error() string {
	return fmt.Sprintf("operator %q is not applicable to %s operand %q", e.Operator, e.Type, e.Operand)
}

func (e *OperatorTypeMismatchError) Unwrap() error { return ErrOperatorTypeMismatch }

// InvalidValueShapeError reports a malformed value or node.
type InvalidValueShapeError struct {
	Operand  string
	Operator string
	Reason   string
}

func (e *InvalidValueShapeError) Error() string {
	switch {
	case e.Operand != "" && e.Operator != "":
		return fmt.Sprintf("invalid value for %q %s: %s", e.Operand, e.Operator, e.Reason)
	case e.Operand != "":
		return fmt.Sprintf("invalid value for %q: %s", e.Operand, e.Reason)
	default:
		return "invalid rule tree: " + e.Reason
	}
}

func (e *InvalidValueShapeError) Unwrap() error { return ErrInvalidValueShape }

// MaxDepthExceededError reports the depth at which the limit was crossed.
type MaxDepthExceededError struct {
	Depth int
	Limit int
}

func (e *MaxDepthExceededError) Error() string {
	return fmt.Sprintf("rule tree depth %d exceeds limit %d", e.Depth, e.Limit)
}

func (e *MaxDepthExceededError) Unwrap() error { return ErrMaxDepthExceeded }

// MaxNodeCountExceededError reports the node count at which the limit was crossed.
type MaxNodeCountExceededError struct {
	Count int
	Limit int
}

func (e *MaxNodeCountExceededError) Error() string {
	return fmt.Sprintf("rule tree node count %d exceeds limit %d", e.Count, e.Limit)
}

func (e *MaxNodeCountExceededError) Unwrap() error { return ErrMaxNodeCountExceeded }

// IsValidationError reports whether err belongs to the compile-time taxonomy,
// i.e. the caller submitted a tree that cannot be compiled.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrUnknownOperand) ||
		errors.Is(err, ErrUnknownOperator) ||
		errors.Is(err, ErrOperatorTypeMismatch) ||
		errors.Is(err, ErrInvalidValueShape) ||
		errors.Is(err, ErrMaxDepthExceeded) ||
		errors.Is(err, ErrMaxNodeCountExceeded)
}
