package auth

import "errors"

// ErrMissingPrincipal maps to UNAUTHENTICATED: the gateway did not say who
// the caller is, so no rows can be scoped.
var ErrMissingPrincipal = errors.New("caller principal required in x-sieve-owner metadata")
