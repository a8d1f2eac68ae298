package handlers_test

import (
	"net/http/httptest"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/paloma-health/paloma-server/internal/handlers"
	"github.com/paloma-health/paloma-server/internal/handlers/middleware"
	"github.com/paloma-health/paloma-server/internal/models"
	"github.com/paloma-health/paloma-server/internal/repository/postgres"
	"github.com/paloma-health/paloma-server/internal/service/auth"
	"github.com/paloma-health/paloma-server/internal/service/auth/tokenmanager"
	"github.com/paloma-health/paloma-server/internal/service/role"
	"github.com/paloma-health/paloma-server/internal/service/user"
	"github.com/paloma-health/paloma-server/internal/testutil"
)

type testServices struct {
	Auth *auth.AuthService
	Role *role.RoleService
	User *user.UserService
}

// Run http server with the production router and services bound to one transaction
// Rollback transaction when test stops
func serveWithTx(dbpool *pgxpool.Pool, t *testing.T, fn func(url string, s testServices)) {
	testutil.WithTx(dbpool, t, func(tx pgx.Tx) {
		storage := postgres.NewStorage(tx)

		tokenManager, err := tokenmanager.New(tokenmanager.Config{SecretKey: "test-secret"}, storage.Refresh())
		require.NoError(t, err, "token manager should be created without errors")

		as, err := auth.NewService(auth.Config{}, tokenManager, storage)
		require.NoError(t, err, "auth service starting error")
		rs, err := role.NewService(storage)
		require.NoError(t, err, "role service starting error")
		us, err := user.NewService(auth.DefaultHasher, storage)
		require.NoError(t, err, "user service starting error")

		router := handlers.NewRouter(
			handlers.NewAuth(as),
			handlers.NewRole(rs),
			handlers.NewProfile(us),
			middleware.Auth(as),
			middleware.RequireRole(rs, models.RoleUser),
		)

		srv := httptest.NewServer(router)
		defer srv.Close()

		fn(srv.URL, testServices{Auth: as, Role: rs, User: us})
	})
}

// Register a user and log in, returning the user and a live token pair
func registerAndLogin(t *testing.T, s testServices, username string) (models.User, models.TokenPair) {
	t.Helper()

	_, err := s.Auth.Register(t.Context(), auth.RegisterParams{
		Username: username,
		Email:    username + "@example.com",
		Password: "StrongEnoughPassword",
	})
	require.NoError(t, err)

	user, pair, err := s.Auth.Login(t.Context(), username, "StrongEnoughPassword")
	require.NoError(t, err)
	return user, pair
}
