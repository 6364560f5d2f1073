// Package api provides the gRPC filter service.
//
// Messages are google.protobuf.Struct so the rule tree travels in the same
// JSON shape browser rule builders emit; the service descriptor is declared
// here instead of generated from a .proto file.
package api

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/sieve/internal/catalog"
	"github.com/solatis/sieve/internal/core/config"
	"github.com/solatis/sieve/internal/query"
	"github.com/solatis/sieve/internal/rules"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "sieve.filter.v1.FilterService"

// Full method names.
const (
	QueryMethod   = "/" + ServiceName + "/Query"
	PreviewMethod = "/" + ServiceName + "/Preview"
)

// FilterServer is the server API for FilterService.
type FilterServer interface {
	// Query returns {rows, count} for {resource, filter, limit}.
	Query(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// Preview returns {sql, args} without touching the database.
	Preview(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// FilterServiceDesc describes FilterService for grpc.Server.RegisterService.
var FilterServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*FilterServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Query", Handler: queryHandler},
		{MethodName: "Preview", Handler: previewHandler},
	},
	Streams: []grpc.StreamDesc{},
}

// RegisterFilterServer registers srv on s.
func RegisterFilterServer(s grpc.ServiceRegistrar, srv FilterServer) {
	s.RegisterService(&FilterServiceDesc, srv)
}

func queryHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return unary(srv, ctx, dec, interceptor, QueryMethod, FilterServer.Query)
}

func previewHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return unary(srv, ctx, dec, interceptor, PreviewMethod, FilterServer.Preview)
}

func unary(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor,
	method string, call func(FilterServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return call(srv.(FilterServer), ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
	handler := func(ctx context.Context, req any) (any, error) {
		return call(srv.(FilterServer), ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// FilterClient calls FilterService over a client connection.
type FilterClient struct {
	cc grpc.ClientConnInterface
}

// NewFilterClient creates a client on cc.
func NewFilterClient(cc grpc.ClientConnInterface) *FilterClient {
	return &FilterClient{cc: cc}
}

// Query invokes FilterService.Query.
func (c *FilterClient) Query(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, QueryMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Preview invokes FilterService.Preview.
func (c *FilterClient) Preview(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, PreviewMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// FilterService implements FilterServer.
// Thin orchestration layer delegating to catalog, rules, criteria and query packages.
type FilterService struct {
	db       *sqlx.DB
	dialect  query.Dialect
	catalog  *catalog.Catalog
	compiler *rules.Compiler
	cfg      config.ServerConfig
	logger   *slog.Logger
}

// NewFilterService creates service instance with dependencies. db may be
// nil for a preview-only service.
func NewFilterService(db *sqlx.DB, dialect query.Dialect, cat *catalog.Catalog, compiler *rules.Compiler, cfg config.ServerConfig, logger *slog.Logger) (*FilterService, error) {
	if dialect == nil {
		return nil, fmt.Errorf("dialect cannot be nil")
	}
	if cat == nil {
		return nil, fmt.Errorf("catalog cannot be nil")
	}
	if compiler == nil {
		return nil, fmt.Errorf("compiler cannot be nil")
	}
	if cfg.MaxRows <= 0 {
		return nil, fmt.Errorf("max_rows must be positive, got %d", cfg.MaxRows)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &FilterService{
		db:       db,
		dialect:  dialect,
		catalog:  cat,
		compiler: compiler,
		cfg:      cfg,
		logger:   logger,
	}, nil
}
