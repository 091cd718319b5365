package authz

import (
	"context"
	"net/http"

	"github.com/powerdeck/powerdeck/internal/platform/httpx"
)

type principalContextKey struct{}

// ContextWithPrincipal stores the allowed principal in the request context.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal set by the middleware.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey{}).(*Principal)
	return p
}

// Middleware wires the Gate into chi handler chains.
type Middleware struct {
	Gate *Gate
}

// Authenticated requires a valid session backed by a live user record.
func (m Middleware) Authenticated() func(http.Handler) http.Handler {
	return m.guard(func(ctx context.Context) (*Principal, *Denial) {
		return m.Gate.RequireAuth(ctx)
	})
}

// MinRole requires the persisted role to satisfy the privilege order.
func (m Middleware) MinRole(min Role) func(http.Handler) http.Handler {
	return m.guard(func(ctx context.Context) (*Principal, *Denial) {
		return m.Gate.RequireRole(ctx, min)
	})
}

// AdminOnly requires the exact ADMIN role.
func (m Middleware) AdminOnly() func(http.Handler) http.Handler {
	return m.guard(func(ctx context.Context) (*Principal, *Denial) {
		return m.Gate.RequireAdmin(ctx)
	})
}

// OperatorOrAdmin requires OPERATOR privilege or better.
func (m Middleware) OperatorOrAdmin() func(http.Handler) http.Handler {
	return m.guard(func(ctx context.Context) (*Principal, *Denial) {
		return m.Gate.RequireOperatorOrAdmin(ctx)
	})
}

func (m Middleware) guard(check func(context.Context) (*Principal, *Denial)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, denial := check(r.Context())
			if denial != nil {
				httpx.Error(w, denial.Status, denial.Code, denial.Message)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
		})
	}
}
