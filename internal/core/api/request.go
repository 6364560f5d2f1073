package api

import (
	"context"
	"fmt"
	"math"

	"github.com/goccy/go-json"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/sieve/internal/core/auth"
	"github.com/solatis/sieve/internal/criteria"
	"github.com/solatis/sieve/internal/query"
	"github.com/solatis/sieve/internal/rules"
	"github.com/solatis/sieve/internal/types"
)

// request is a decoded {resource, filter, limit} message.
type request struct {
	resource string
	filter   types.Node
	limit    int
}

// decodeRequest reads the request struct. filter may be an object or a
// JSON string; absent or null means no filtering. Numbers inside a
// filter object arrive as doubles, so exact decimals for numeric operands
// need the JSON string form or a string value.
func decodeRequest(in *structpb.Struct, limits types.Limits, maxRows int) (request, error) {
	var req request
	fields := in.GetFields()

	res, ok := fields["resource"].GetKind().(*structpb.Value_StringValue)
	if !ok || res.StringValue == "" {
		return req, errBadRequest("resource is required")
	}
	req.resource = res.StringValue

	var raw []byte
	switch f := fields["filter"].GetKind().(type) {
	case nil, *structpb.Value_NullValue:
	case *structpb.Value_StringValue:
		raw = []byte(f.StringValue)
	case *structpb.Value_StructValue:
		data, err := json.Marshal(f.StructValue.AsMap())
		if err != nil {
			return req, errBadRequest("filter is not valid JSON")
		}
		raw = data
	default:
		return req, errBadRequest("filter must be an object")
	}
	tree, err := rules.ParseTree(raw, limits)
	if err != nil {
		return req, err
	}
	req.filter = tree

	req.limit = maxRows
	switch l := fields["limit"].GetKind().(type) {
	case nil, *structpb.Value_NullValue:
	case *structpb.Value_NumberValue:
		n := l.NumberValue
		if n < 0 || n != math.Trunc(n) {
			return req, errBadRequest("limit must be a non-negative integer")
		}
		if n > 0 && n < float64(maxRows) {
			req.limit = int(n)
		}
	default:
		return req, errBadRequest("limit must be a number")
	}
	return req, nil
}

// prepare resolves the resource and attaches visibility and filters to a
// fresh builder.
func (s *FilterService) prepare(ctx context.Context, req request) (*query.Builder, error) {
	p, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		return nil, auth.ErrMissingPrincipal
	}

	res, err := s.catalog.Resource(req.resource)
	if err != nil {
		return nil, err
	}

	reg := res.Registry
	if p.Restricted() {
		reg = reg.Restrict(p.Operands...)
	}

	b, err := res.Builder(s.dialect)
	if err != nil {
		return nil, fmt.Errorf("failed to create query builder: %w", err)
	}

	var visibility criteria.Criteria
	if res.VisibilityColumn != "" {
		visibility = criteria.Visibility{Column: res.VisibilityColumn, Values: p.Owners}
	}
	err = criteria.Apply(b, visibility, criteria.Filters{Compiler: s.compiler, Registry: reg, Tree: req.filter})
	if err != nil {
		return nil, err
	}
	return b, nil
}
