package api

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/solatis/sieve/internal/core/auth"
	"github.com/solatis/sieve/internal/criteria"
	"github.com/solatis/sieve/internal/types"
)

// Error mapping for every handler:
// malformed requests and compile errors map to INVALID_ARGUMENT.
// Unknown resources map to NOT_FOUND.
// A missing principal maps to UNAUTHENTICATED.
// Database errors map to UNAVAILABLE.
// Context timeouts map to DEADLINE_EXCEEDED.
var (
	errRequest  = errors.New("invalid request")
	errDatabase = errors.New("database error")
)

func errBadRequest(msg string) error {
	return fmt.Errorf("%w: %s", errRequest, msg)
}

func databaseError(err error) error {
	return fmt.Errorf("%w: %w", errDatabase, err)
}

// toStatus converts a handler error to a gRPC status error.
func toStatus(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "request timed out")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request cancelled")
	case errors.Is(err, errRequest), types.IsValidationError(err):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, types.ErrUnknownResource):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, auth.ErrMissingPrincipal), errors.Is(err, criteria.ErrNoVisibleValues):
		return status.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, errDatabase):
		return status.Error(codes.Unavailable, "database unavailable")
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

// errorKind names the taxonomy entry of err for logs.
func errorKind(err error) string {
	switch {
	case errors.Is(err, errRequest):
		return "invalid_request"
	case errors.Is(err, types.ErrUnknownOperand):
		return "unknown_operand"
	case errors.Is(err, types.ErrUnknownOperator):
		return "unknown_operator"
	case errors.Is(err, types.ErrOperatorTypeMismatch):
		return "operator_type_mismatch"
	case errors.Is(err, types.ErrInvalidValueShape):
		return "invalid_value_shape"
	case errors.Is(err, types.ErrMaxDepthExceeded):
		return "max_depth_exceeded"
	case errors.Is(err, types.ErrMaxNodeCountExceeded):
		return "max_node_count_exceeded"
	case errors.Is(err, types.ErrUnknownResource):
		return "unknown_resource"
	case errors.Is(err, auth.ErrMissingPrincipal), errors.Is(err, criteria.ErrNoVisibleValues):
		return "missing_principal"
	case errors.Is(err, errDatabase):
		return "database"
	default:
		return "internal"
	}
}
