package e2e

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

type Services struct {
	AuthService *auth.AuthService
	RoleService *role.RoleService
	UserService *user.UserService
}

// Create db transaction and run server with that connection (one connection cause one transaction)
// The created transaction passed to inner function: so, you can safely use testutil.WithTx with it
func ServeWithTx(dbpool *pgxpool.Pool, t *testing.T, fn func(tx pgx.Tx, srvURL string, services Services)) {
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

		// Complete all together as router, same shape as production
		router := handlers.NewRouter(
			handlers.NewAuth(as),
			handlers.NewRole(rs),
			handlers.NewProfile(us),
			middleware.Auth(as),
			middleware.RequireRole(rs, models.RoleUser),
		)

		// Run http server with the router in transaction
		srv := httptest.NewServer(router)
		defer srv.Close()

		fn(tx, srv.URL, Services{
			AuthService: as,
			RoleService: rs,
			UserService: us,
		})
	})
}
