package api

import (
	"context"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
)

// Preview renders the SQL Query would run, with its bind arguments. It
// applies the same visibility and operand restrictions as Query.
func (s *FilterService) Preview(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	logger := s.requestLogger("Preview")

	req, err := decodeRequest(in, s.compiler.Limits(), s.cfg.MaxRows)
	if err != nil {
		return nil, s.fail(logger, err)
	}
	logger = logger.With("resource", req.resource)

	b, err := s.prepare(ctx, req)
	if err != nil {
		return nil, s.fail(logger, err)
	}

	q, args, err := b.Limit(req.limit).SQL()
	if err != nil {
		return nil, s.fail(logger, fmt.Errorf("failed to render query: %w", err))
	}

	values := make([]any, len(args))
	for i, a := range args {
		values[i] = plain(a)
	}
	resp, err := structpb.NewStruct(map[string]any{
		"sql":     q,
		"args":    values,
		"dialect": s.dialect.Name(),
	})
	if err != nil {
		return nil, s.fail(logger, fmt.Errorf("failed to encode preview: %w", err))
	}
	return resp, nil
}
