package auth

import (
	"context"
	"net/http"
	"strings"
)

// Scope is the authenticated business context of a request. It is passed
// explicitly into every domain call instead of being read from globals.
type Scope struct {
	BusinessID string
	UserID     string
	Role       string
	EmployeeID string
}

// EmployeeOnly reports whether the caller may only see their own appointments.
func (s Scope) EmployeeOnly() bool {
	return s.Role == RoleEmployee
}

func ScopeFromClaims(c *Claims) Scope {
	return Scope{
		BusinessID: c.BusinessID,
		UserID:     c.Subject,
		Role:       c.Role,
		EmployeeID: c.EmployeeID,
	}
}

type ctxKey int

const ctxKeyScope ctxKey = iota

func WithScope(ctx context.Context, s Scope) context.Context {
	return context.WithValue(ctx, ctxKeyScope, s)
}

func ScopeFromContext(ctx context.Context) (Scope, bool) {
	s, ok := ctx.Value(ctxKeyScope).(Scope)
	return s, ok
}

// Require rejects requests without a valid bearer token and stores the
// caller's Scope in the request context.
func Require(v *Verifier, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				http.Error(w, "missing token", http.StatusUnauthorized)
				return
			}
			claims, err := v.Verify(token)
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			if len(roles) > 0 && !hasRole(claims.Role, roles) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithScope(r.Context(), ScopeFromClaims(claims))))
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

func hasRole(role string, allowed []string) bool {
	for _, a := range allowed {
		if role == a {
			return true
		}
	}
	return false
}
