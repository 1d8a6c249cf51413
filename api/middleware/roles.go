package middleware

import (
	"net/http"

	"github.com/lucasferreyra/webshop-backend/api/responses"
	pkgerrors "github.com/lucasferreyra/webshop-backend/pkg/errors"
	"github.com/lucasferreyra/webshop-backend/pkg/logger"
)

// RequireRole gates a route group on the role claim minted into the
// access token. Must run after Auth, which seeds the role into context;
// an absent role reads as "" and is rejected like any mismatch.
func RequireRole(role string, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := RoleFromContext(r.Context())
			if got != role {
				err := pkgerrors.New(pkgerrors.CodeForbidden, "role required")
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
