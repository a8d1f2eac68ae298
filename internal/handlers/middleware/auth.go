package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/paloma-health/paloma-server/internal/handlers"
	"github.com/paloma-health/paloma-server/internal/handlers/render"
	"github.com/paloma-health/paloma-server/internal/models"
	"github.com/paloma-health/paloma-server/internal/service/auth"
)

type authService interface {
	Authenticate(ctx context.Context, r *http.Request) (auth.Identity, error)
}

type roleService interface {
	HasRole(ctx context.Context, userID uuid.UUID, role models.RoleType) (bool, error)
}

// Auth resolves the bearer token and puts the identity into the request context
// Every failure is the same generic 401: the reason (missing, expired,
// malformed, forged) must not leak to the client
func Auth(as authService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := as.Authenticate(r.Context(), r)
			if err != nil {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := handlers.NewContextWithIdentity(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects authenticated callers missing the role with 403
// Must run inside Auth so the identity is already in the context
func RequireRole(rs roleService, role models.RoleType) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := handlers.IdentityFromContext(r.Context())
			if !ok {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			has, err := rs.HasRole(r.Context(), identity.UserID, role)
			if err != nil {
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
				return
			}
			if !has {
				render.ServiceError(w, "Forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
