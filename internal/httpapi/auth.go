// Package httpapi serves the public HTTP surface — ingress, categories,
// query, and the liveness/readiness probes — on top of net/http's
// pattern-matching ServeMux.
package httpapi

import (
	"context"
	"net/http"
	"strings"

	"noema/internal/model"
	"noema/internal/store"
)

type userCtxKey struct{}

// WithUser attaches the authenticated user to ctx.
func WithUser(ctx context.Context, u model.User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// CurrentUser recovers the user Middleware attached to r's context.
func CurrentUser(ctx context.Context) (model.User, bool) {
	u, ok := ctx.Value(userCtxKey{}).(model.User)
	return u, ok
}

// extractAPIKey pulls the caller's key from X-API-Key first, then
// Authorization: Bearer <token>.
func extractAPIKey(r *http.Request) string {
	if k := r.Header.Get("X-API-Key"); k != "" {
		return k
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// AuthMiddleware resolves the caller's api key to a User and attaches it to
// the request context. Neither header present, or no User with that key,
// is a 401.
func AuthMiddleware(s *store.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := extractAPIKey(r)
			if key == "" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			user, ok, err := s.GetUserByAPIKey(r.Context(), key)
			if err != nil || !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}
