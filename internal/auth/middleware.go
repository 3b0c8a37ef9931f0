package auth

import (
	"context"
	"net/http"

	"github.com/shaun/gitrelay/internal/logging"
)

// Header carries the shared admin secret.
const Header = "x-admin-key"

type adminKey struct{}

// RequireKey rejects requests whose Header value is not one of keys with 401,
// before any handler runs. Accepted requests carry the admin name in their
// context.
func RequireKey(keys Keys) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			admin, ok := keys.Authenticate(r.Header.Get(Header))
			if !ok {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			logging.FromRequest(r).Add("admin", admin)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), adminKey{}, admin)))
		})
	}
}

// AdminFromContext returns the admin name stored by RequireKey, or "".
func AdminFromContext(ctx context.Context) string {
	admin, _ := ctx.Value(adminKey{}).(string)
	return admin
}
