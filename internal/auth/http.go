package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrUnauthenticated marks requests with a missing or invalid token.
var ErrUnauthenticated = errors.New("unauthenticated")

// ErrForbidden marks callers whose kind does not permit the action.
var ErrForbidden = errors.New("forbidden")

// Middleware returns an HTTP middleware that extracts and validates a Bearer
// JWT from the Authorization header and injects the Principal into the request
// context. Paths with a prefix listed in allowUnauthenticated bypass
// authentication (e.g., health checks, phone verification).
func Middleware(secret string, allowUnauthenticated ...string) func(http.Handler) http.Handler {
	allow := make([]string, 0, len(allowUnauthenticated))
	for _, p := range allowUnauthenticated {
		allow = append(allow, strings.TrimSpace(p))
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, prefix := range allow {
				if strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}
			p, err := ParseFromRequest(r, secret)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				fmt.Fprintf(w, `{"error":"auth error: %s"}`+"\n", err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// RequirePrincipal ensures a principal is present in context.
func RequirePrincipal(r *http.Request) (*Principal, error) {
	p, ok := FromContext(r.Context())
	if !ok {
		return nil, fmt.Errorf("%w: missing principal", ErrUnauthenticated)
	}
	return p, nil
}

// RequireKind ensures the principal has the given kind (lowercased compare).
func RequireKind(r *http.Request, kind string) (*Principal, error) {
	p, err := RequirePrincipal(r)
	if err != nil {
		return nil, err
	}
	if p.Kind != strings.ToLower(kind) {
		return nil, fmt.Errorf("%w: only %s can perform this action", ErrForbidden, strings.ToLower(kind))
	}
	return p, nil
}

// RequireAdmin ensures the caller is an admin.
func RequireAdmin(r *http.Request) (*Principal, error) {
	return RequireKind(r, KindAdmin)
}

// RequireCustomerOrAdmin ensures the caller is a customer or admin.
func RequireCustomerOrAdmin(r *http.Request) (*Principal, error) {
	p, err := RequirePrincipal(r)
	if err != nil {
		return nil, err
	}
	if p.Kind != KindCustomer && p.Kind != KindAdmin {
		return nil, fmt.Errorf("%w: only customer or admin can perform this action", ErrForbidden)
	}
	return p, nil
}
