// Package auth extracts the caller principal for gRPC services.
//
// Credentials are verified by the gateway in front of sieve; the gateway
// forwards who the caller is and what they may see as request metadata.
// This package only parses and carries that information.
package auth

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// Metadata keys set by the upstream gateway.
const (
	OwnerHeader    = "x-sieve-owner"
	OperandsHeader = "x-sieve-operands"
)

// contextKey is a typed key for context values to avoid collisions.
type contextKey string

// principalKey is the context key for storing the caller principal.
const principalKey = contextKey("principal")

// Principal is the caller as described by the gateway.
type Principal struct {
	// Owners lists the owner IDs whose rows the caller may see.
	Owners []string

	// Operands lists the operand keys the caller may filter on. Nil means
	// unrestricted; an empty non-nil slice permits nothing.
	Operands []string
}

// Restricted reports whether the caller has an operand allow-list.
func (p Principal) Restricted() bool {
	return p.Operands != nil
}

// ParsePrincipal reads the principal from incoming metadata.
func ParsePrincipal(md metadata.MD) (Principal, error) {
	owners := splitList(md.Get(OwnerHeader))
	if len(owners) == 0 {
		return Principal{}, ErrMissingPrincipal
	}

	p := Principal{Owners: owners}
	if values := md.Get(OperandsHeader); len(values) > 0 {
		p.Operands = splitList(values)
		if p.Operands == nil {
			p.Operands = []string{}
		}
	}
	return p, nil
}

// splitList flattens comma separated metadata values, trimming blanks
// and dropping duplicates while keeping first-seen order.
func splitList(values []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" || seen[part] {
				continue
			}
			seen[part] = true
			out = append(out, part)
		}
	}
	return out
}

// Extractor attaches the caller principal to requests for the services it guards.
type Extractor struct {
	services map[string]bool
}

// NewExtractor guards the named gRPC services ("sieve.filter.v1.FilterService").
// With no names every method is guarded.
func NewExtractor(services ...string) *Extractor {
	e := &Extractor{services: make(map[string]bool, len(services))}
	for _, s := range services {
		e.services[s] = true
	}
	return e
}

func (e *Extractor) guards(fullMethod string) bool {
	if len(e.services) == 0 {
		return true
	}
	// FullMethod is "/package.Service/Method"
	svc := strings.TrimPrefix(fullMethod, "/")
	if i := strings.LastIndex(svc, "/"); i >= 0 {
		svc = svc[:i]
	}
	return e.services[svc]
}

// UnaryInterceptor returns gRPC interceptor that extracts the principal.
func (e *Extractor) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !e.guards(info.FullMethod) {
			return handler(ctx, req)
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}
		p, err := ParsePrincipal(md)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}

		return handler(WithPrincipal(ctx, p), req)
	}
}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext extracts the principal from context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}
