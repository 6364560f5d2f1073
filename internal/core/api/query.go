package api

import (
	"context"
	"database/sql/driver"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/sieve/internal/types"
)

// Query returns the rows of a resource visible to the caller that match
// the filter, plus the total match count ignoring the limit.
func (s *FilterService) Query(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	start := time.Now()
	logger := s.requestLogger("Query")

	if s.db == nil {
		return nil, status.Error(codes.FailedPrecondition, "service has no database")
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	req, err := decodeRequest(in, s.compiler.Limits(), s.cfg.MaxRows)
	if err != nil {
		return nil, s.fail(logger, err)
	}
	logger = logger.With("resource", req.resource)

	b, err := s.prepare(ctx, req)
	if err != nil {
		return nil, s.fail(logger, err)
	}

	count, err := b.Count(ctx, s.db)
	if err != nil {
		return nil, s.fail(logger, databaseError(err))
	}
	rows, err := b.Limit(req.limit).Select(ctx, s.db)
	if err != nil {
		return nil, s.fail(logger, databaseError(err))
	}

	list := make([]any, len(rows))
	for i, row := range rows {
		for k, v := range row {
			row[k] = plain(v)
		}
		list[i] = map[string]any(row)
	}
	resp, err := structpb.NewStruct(map[string]any{
		"rows":  list,
		"count": count,
	})
	if err != nil {
		return nil, s.fail(logger, fmt.Errorf("failed to encode rows: %w", err))
	}

	logger.Debug("query served",
		"rows", len(rows),
		"count", count,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return resp, nil
}

func (s *FilterService) requestLogger(method string) *slog.Logger {
	return s.logger.With("request_id", string(types.NewRequestID()), "method", method)
}

func (s *FilterService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.RequestTimeout)
}

// fail logs err by kind and converts it to a status. Rejected filters are
// logged without their values.
func (s *FilterService) fail(logger *slog.Logger, err error) error {
	kind := errorKind(err)
	switch kind {
	case "internal", "database":
		logger.Error("request failed", "error_kind", kind, "error", err)
	default:
		logger.Info("request rejected", "error_kind", kind)
	}
	return toStatus(err)
}

// plain converts database and bind values to types structpb accepts.
func plain(v any) any {
	switch x := v.(type) {
	case nil, bool, string, int64, float64:
		return x
	case []byte:
		return string(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case driver.Valuer:
		dv, err := x.Value()
		if err != nil {
			return fmt.Sprint(x)
		}
		return plain(dv)
	case int, int32, float32:
		return x
	default:
		return fmt.Sprint(x)
	}
}
