package postgres

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paloma-health/paloma-server/internal/apperrors"
	"github.com/paloma-health/paloma-server/internal/models"
	"github.com/paloma-health/paloma-server/internal/testutil"
)

func mustParseTime(value string) time.Time {
	dt, err := time.Parse("2006-01-02 15:04:05Z07:00", value)
	if err != nil {
		panic(err)
	}
	return dt
}

func Test_RefreshTokenRepo(t *testing.T) {
	t.Parallel() // It's ok to run in parallel with other tests, but not with subtests

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	// Every token needs an owning user row
	newToken := func(t *testing.T, tx pgx.Tx, value string) models.RefreshToken {
		user := createTestUser(t, tx, "owner-"+value)
		return models.RefreshToken{
			ID:        uuid.New(),
			UserID:    user.ID,
			Token:     value,
			CreatedAt: mustParseTime("2024-01-01 19:00:01Z"),
			ExpiresAt: mustParseTime("2200-01-01 03:00:02Z"),
			UsedAt:    nil,
		}
	}

	t.Run("save token ok", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := RefreshTokenRepo{DB: tx}
			token := newToken(t, tx, "secret-token")

			got, err := repo.Save(t.Context(), token)

			require.NoError(t, err)
			require.Equal(t, token.ID, got.ID)
			require.Equal(t, token.UserID, got.UserID)
			require.Equal(t, token.Token, got.Token)
			require.WithinDuration(t, token.CreatedAt, got.CreatedAt, time.Microsecond)
			require.WithinDuration(t, token.ExpiresAt, got.ExpiresAt, time.Microsecond)
			require.Nil(t, got.UsedAt, "UsedAt should be nil cause original token has UsedAt as nil")
		})
	})

	t.Run("save token for not existed user", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := RefreshTokenRepo{DB: tx}

			_, err := repo.Save(t.Context(), models.RefreshToken{
				ID:        uuid.New(),
				UserID:    uuid.New(),
				Token:     "orphan-token",
				CreatedAt: time.Now(),
				ExpiresAt: time.Now().Add(time.Hour),
			})

			require.Error(t, err, "token must reference an existing user")
		})
	})

	t.Run("get token ok", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := RefreshTokenRepo{DB: tx}
			token := newToken(t, tx, "secret-token")
			_, err := repo.Save(t.Context(), token)
			require.NoError(t, err)

			got, err := repo.Get(t.Context(), token.Token)

			require.NoError(t, err)
			require.Equal(t, token.Token, got.Token)
			require.Equal(t, token.UserID, got.UserID)
			require.WithinDuration(t, token.CreatedAt, got.CreatedAt, 0)
			require.WithinDuration(t, token.ExpiresAt, got.ExpiresAt, 0)
			require.Nil(t, got.UsedAt)
		})
	})

	t.Run("get not existed token", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := RefreshTokenRepo{DB: tx}

			_, err := repo.Get(t.Context(), "no-such-token")

			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrRefreshTokenNotFound)
		})
	})

	t.Run("mark token used", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := RefreshTokenRepo{DB: tx}
			token := newToken(t, tx, "secret-token")
			_, err := repo.Save(t.Context(), token)
			require.NoError(t, err)

			got, err := repo.GetAndMarkUsed(t.Context(), token.Token)

			require.NoError(t, err, "No error must be happen when marking used existed token")
			require.NotNil(t, got.UsedAt, "token must marked used")
			require.WithinDuration(t, time.Now(), *got.UsedAt, 50*time.Millisecond, "should marked as used close to now() enough")
			require.Equal(t, token.Token, got.Token)
			require.Equal(t, token.UserID, got.UserID)
			require.WithinDuration(t, token.CreatedAt, got.CreatedAt, 0)
			require.WithinDuration(t, token.ExpiresAt, got.ExpiresAt, 0)
		})
	})

	t.Run("mark used not existed token", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := RefreshTokenRepo{DB: tx}

			_, err := repo.GetAndMarkUsed(t.Context(), "no-such-token")

			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrRefreshTokenNotFound)
		})
	})

	t.Run("mark used keeps first timestamp", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := RefreshTokenRepo{DB: tx}
			token := newToken(t, tx, "secret-token")
			_, err := repo.Save(t.Context(), token)
			require.NoError(t, err)

			tokenFirst, err := repo.GetAndMarkUsed(t.Context(), token.Token)
			require.NoError(t, err, "No error should happen on make used")

			time.Sleep(100 * time.Millisecond)
			tokenSecond, err := repo.GetAndMarkUsed(t.Context(), token.Token)
			require.Error(t, err, "Mark used already used token has to return error")
			require.ErrorIs(t, err, apperrors.ErrRefreshTokenIsUsed, "should return ErrRefreshTokenIsUsed error")

			assert.WithinDuration(t, *tokenFirst.UsedAt, *tokenSecond.UsedAt, 0, "should return same time for already used token")
		})
	})

	t.Run("immediate reuse loses", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := RefreshTokenRepo{DB: tx}
			token := newToken(t, tx, "secret-token")
			_, err := repo.Save(t.Context(), token)
			require.NoError(t, err)

			tokenFirst, err := repo.GetAndMarkUsed(t.Context(), token.Token)
			require.NoError(t, err)

			// No pause between the calls: even when both callers compute the
			// same microsecond-truncated timestamp the second one must lose
			tokenSecond, err := repo.GetAndMarkUsed(t.Context(), token.Token)

			require.Error(t, err)
			require.ErrorIs(t, err, apperrors.ErrRefreshTokenIsUsed)
			assert.WithinDuration(t, *tokenFirst.UsedAt, *tokenSecond.UsedAt, 0, "the first mark must stay untouched")
		})
	})

	t.Run("spent token never returned as fresh", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := RefreshTokenRepo{DB: tx}
			token := newToken(t, tx, "secret-token")
			_, err := repo.Save(t.Context(), token)
			require.NoError(t, err)

			usedAt := time.Now().Truncate(time.Microsecond)
			_, err = tx.Exec(t.Context(), "UPDATE refresh_tokens SET used_at = $2 WHERE token = $1", token.Token, usedAt)
			require.NoError(t, err)

			got, err := repo.GetAndMarkUsed(t.Context(), token.Token)

			require.Error(t, err)
			require.ErrorIs(t, err, apperrors.ErrRefreshTokenIsUsed)
			require.NotNil(t, got.UsedAt)
			assert.WithinDuration(t, usedAt, *got.UsedAt, 0, "used_at must keep the value of the first spend")
		})
	})

	t.Run("revoke active", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := RefreshTokenRepo{DB: tx}
			user := createTestUser(t, tx, "alice")
			other := createTestUser(t, tx, "bob")

			save := func(userID uuid.UUID, value string) models.RefreshToken {
				saved, err := repo.Save(t.Context(), models.RefreshToken{
					ID:        uuid.New(),
					UserID:    userID,
					Token:     value,
					CreatedAt: time.Now(),
					ExpiresAt: time.Now().Add(time.Hour),
				})
				require.NoError(t, err)
				return saved
			}

			save(user.ID, "token-one")
			save(user.ID, "token-two")
			otherToken := save(other.ID, "token-three")

			// One of the tokens is spent already
			_, err := repo.GetAndMarkUsed(t.Context(), "token-one")
			require.NoError(t, err)

			revoked, err := repo.RevokeActive(t.Context(), user.ID)

			require.NoError(t, err)
			assert.Equal(t, int64(1), revoked, "only the remaining unused token should be revoked")

			got, err := repo.Get(t.Context(), "token-two")
			require.NoError(t, err)
			assert.NotNil(t, got.UsedAt)

			got, err = repo.Get(t.Context(), otherToken.Token)
			require.NoError(t, err)
			assert.Nil(t, got.UsedAt, "other user's tokens must stay active")
		})
	})

	t.Run("revoke active when nothing to revoke", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := RefreshTokenRepo{DB: tx}

			revoked, err := repo.RevokeActive(t.Context(), uuid.New())

			require.NoError(t, err)
			assert.Zero(t, revoked)
		})
	})
}
