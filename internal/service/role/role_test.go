package role

import (
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/paloma-health/paloma-server/internal/apperrors"
	"github.com/paloma-health/paloma-server/internal/models"
	"github.com/paloma-health/paloma-server/internal/repository"
	"github.com/paloma-health/paloma-server/internal/repository/postgres"
	"github.com/paloma-health/paloma-server/internal/testutil"
)

func Test_RoleService(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	createUser := func(t *testing.T, storage *postgres.Storage, username string) models.User {
		t.Helper()

		user, err := storage.User().CreateUser(t.Context(), repository.CreateUserParams{
			Username:       username,
			Email:          username + "@example.com",
			FullName:       "Test User",
			HashedPassword: "irrelevant-digest",
		})
		require.NoError(t, err, "user should be created")
		return user
	}

	// Begin new db transaction and create new RoleService
	// Rollback transaction when test stops
	withTx := func(t *testing.T, fn func(s *RoleService, storage *postgres.Storage)) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			s, err := NewService(storage)
			require.NoError(t, err, "role service couldn't be started")
			fn(s, storage)
		})
	}

	t.Run("Grant", func(t *testing.T) {
		t.Run("ok", func(t *testing.T) {
			withTx(t, func(s *RoleService, storage *postgres.Storage) {
				user := createUser(t, storage, "alice")

				roles, err := s.Grant(t.Context(), user.ID, models.RoleUser, false)

				require.NoError(t, err)
				require.Equal(t, []models.RoleType{models.RoleUser}, roles.Roles)
				require.Empty(t, roles.Primary, "non-primary grant must not set primary")
			})
		})

		t.Run("fail if already granted", func(t *testing.T) {
			withTx(t, func(s *RoleService, storage *postgres.Storage) {
				user := createUser(t, storage, "alice")

				_, err := s.Grant(t.Context(), user.ID, models.RoleUser, false)
				require.NoError(t, err)

				_, err = s.Grant(t.Context(), user.ID, models.RoleUser, false)
				require.Error(t, err)
				require.ErrorIs(t, err, apperrors.ErrRoleAlreadyGranted)
			})
		})

		t.Run("fail if user not exists", func(t *testing.T) {
			withTx(t, func(s *RoleService, _ *postgres.Storage) {
				_, err := s.Grant(t.Context(), uuid.New(), models.RoleUser, false)
				require.Error(t, err)
				require.ErrorIs(t, err, apperrors.ErrUserNotFound)
			})
		})

		t.Run("new primary demotes previous", func(t *testing.T) {
			withTx(t, func(s *RoleService, storage *postgres.Storage) {
				user := createUser(t, storage, "alice")

				_, err := s.Grant(t.Context(), user.ID, models.RoleUser, true)
				require.NoError(t, err)

				roles, err := s.Grant(t.Context(), user.ID, models.RoleTrustedContact, true)
				require.NoError(t, err)
				require.Equal(t, models.RoleTrustedContact, roles.Primary, "latest primary wins")

				grants, err := storage.Role().ListForUser(t.Context(), user.ID)
				require.NoError(t, err)
				primaries := 0
				for _, g := range grants {
					if g.IsPrimary {
						primaries++
					}
				}
				require.Equal(t, 1, primaries, "at most one primary role per user")
			})
		})
	})

	t.Run("Revoke", func(t *testing.T) {
		t.Run("ok", func(t *testing.T) {
			withTx(t, func(s *RoleService, storage *postgres.Storage) {
				user := createUser(t, storage, "alice")
				_, err := s.Grant(t.Context(), user.ID, models.RoleUser, false)
				require.NoError(t, err)

				roles, err := s.Revoke(t.Context(), user.ID, models.RoleUser)

				require.NoError(t, err)
				require.Empty(t, roles.Roles)
			})
		})

		t.Run("fail if not granted", func(t *testing.T) {
			withTx(t, func(s *RoleService, storage *postgres.Storage) {
				user := createUser(t, storage, "alice")

				_, err := s.Revoke(t.Context(), user.ID, models.RoleUser)
				require.Error(t, err)
				require.ErrorIs(t, err, apperrors.ErrRoleNotGranted)
			})
		})

		t.Run("revoking primary leaves no primary", func(t *testing.T) {
			withTx(t, func(s *RoleService, storage *postgres.Storage) {
				user := createUser(t, storage, "alice")
				_, err := s.Grant(t.Context(), user.ID, models.RoleUser, true)
				require.NoError(t, err)
				_, err = s.Grant(t.Context(), user.ID, models.RoleTrustedContact, false)
				require.NoError(t, err)

				roles, err := s.Revoke(t.Context(), user.ID, models.RoleUser)

				require.NoError(t, err)
				// Remaining roles are not promoted automatically
				require.Empty(t, roles.Primary)
				require.Equal(t, []models.RoleType{models.RoleTrustedContact}, roles.Roles)
			})
		})
	})

	t.Run("HasRole", func(t *testing.T) {
		withTx(t, func(s *RoleService, storage *postgres.Storage) {
			user := createUser(t, storage, "alice")
			_, err := s.Grant(t.Context(), user.ID, models.RoleUser, false)
			require.NoError(t, err)

			has, err := s.HasRole(t.Context(), user.ID, models.RoleUser)
			require.NoError(t, err)
			require.True(t, has)

			has, err = s.HasRole(t.Context(), user.ID, models.RoleTrustedContact)
			require.NoError(t, err)
			require.False(t, has)

			has, err = s.HasRole(t.Context(), uuid.New(), models.RoleUser)
			require.NoError(t, err)
			require.False(t, has, "unknown user simply has no roles")
		})
	})

	t.Run("HasAllRoles", func(t *testing.T) {
		withTx(t, func(s *RoleService, storage *postgres.Storage) {
			user := createUser(t, storage, "alice")
			_, err := s.Grant(t.Context(), user.ID, models.RoleUser, false)
			require.NoError(t, err)

			has, err := s.HasAllRoles(t.Context(), user.ID, models.RoleUser)
			require.NoError(t, err)
			require.True(t, has)

			has, err = s.HasAllRoles(t.Context(), user.ID, models.RoleUser, models.RoleTrustedContact)
			require.NoError(t, err)
			require.False(t, has)

			_, err = s.Grant(t.Context(), user.ID, models.RoleTrustedContact, false)
			require.NoError(t, err)

			has, err = s.HasAllRoles(t.Context(), user.ID, models.RoleUser, models.RoleTrustedContact)
			require.NoError(t, err)
			require.True(t, has)
		})
	})

	t.Run("HasBothRoles", func(t *testing.T) {
		withTx(t, func(s *RoleService, storage *postgres.Storage) {
			user := createUser(t, storage, "alice")
			_, err := s.Grant(t.Context(), user.ID, models.RoleUser, true)
			require.NoError(t, err)

			has, err := s.HasBothRoles(t.Context(), user.ID)
			require.NoError(t, err)
			require.False(t, has)

			_, err = s.MakeTrustedContact(t.Context(), user.ID)
			require.NoError(t, err)

			has, err = s.HasBothRoles(t.Context(), user.ID)
			require.NoError(t, err)
			require.True(t, has)
		})
	})

	t.Run("MakeTrustedContact", func(t *testing.T) {
		t.Run("keeps existing primary", func(t *testing.T) {
			withTx(t, func(s *RoleService, storage *postgres.Storage) {
				user := createUser(t, storage, "alice")
				_, err := s.Grant(t.Context(), user.ID, models.RoleUser, true)
				require.NoError(t, err)

				roles, err := s.MakeTrustedContact(t.Context(), user.ID)

				require.NoError(t, err)
				require.Equal(t, models.RoleUser, roles.Primary, "promotion must not steal primary")
				require.ElementsMatch(t, []models.RoleType{models.RoleUser, models.RoleTrustedContact}, roles.Roles)
			})
		})

		t.Run("fail if already trusted contact", func(t *testing.T) {
			withTx(t, func(s *RoleService, storage *postgres.Storage) {
				user := createUser(t, storage, "alice")
				_, err := s.MakeTrustedContact(t.Context(), user.ID)
				require.NoError(t, err)

				_, err = s.MakeTrustedContact(t.Context(), user.ID)
				require.Error(t, err)
				require.ErrorIs(t, err, apperrors.ErrRoleAlreadyGranted)
			})
		})
	})
}
