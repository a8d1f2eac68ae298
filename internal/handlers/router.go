package handlers

import (
	"net/http"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

// NewRouter mounts the whole HTTP surface
// authMW resolves the bearer token, requireUserRole additionally demands the
// USER role (role mutations), outer middlewares wrap the complete mux
func NewRouter(
	authHandler *AuthHandler,
	roleHandler *RoleHandler,
	profileHandler *ProfileHandler,
	authMW func(next http.Handler) http.Handler,
	requireUserRole func(next http.Handler) http.Handler,
	outer ...func(next http.Handler) http.Handler,
) http.Handler {
	withAuth := func(h http.HandlerFunc) http.Handler {
		return authMW(h)
	}
	withUserRole := func(h http.HandlerFunc) http.Handler {
		return authMW(requireUserRole(h))
	}

	mux := http.NewServeMux()

	// Credential lifecycle
	mux.HandleFunc("POST /auth/register", authHandler.register)
	mux.HandleFunc("POST /auth/login", authHandler.login)
	mux.HandleFunc("POST /auth/refresh", authHandler.refresh)
	mux.Handle("POST /auth/logout", withAuth(authHandler.logout))

	// Role management
	mux.Handle("POST /api/roles/add", withUserRole(roleHandler.add))
	mux.Handle("DELETE /api/roles/remove/{userId}/{roleType}", withUserRole(roleHandler.remove))
	mux.Handle("POST /api/roles/make-trusted-contact/{userId}", withUserRole(roleHandler.makeTrustedContact))
	mux.Handle("GET /api/roles/user/{userId}", withAuth(roleHandler.userRoles))
	mux.Handle("GET /api/roles/check/{userId}/has-both-roles", withAuth(roleHandler.hasBothRoles))
	mux.Handle("GET /api/roles/check/{userId}/has-role/{roleType}", withAuth(roleHandler.hasRole))

	// In-session profile management
	mux.Handle("GET /insession/me", withAuth(profileHandler.me))
	mux.Handle("PUT /insession/update/email", withAuth(profileHandler.updateEmail))
	mux.Handle("PUT /insession/update/username", withAuth(profileHandler.updateUsername))
	mux.Handle("PUT /insession/update/password", withAuth(profileHandler.updatePassword))

	return chain(mux, outer...)
}
