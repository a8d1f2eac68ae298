package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/paloma-health/paloma-server/internal/apperrors"
	"github.com/paloma-health/paloma-server/internal/models"
	"github.com/paloma-health/paloma-server/internal/repository"
)

type UserRepo struct {
	DB DBTX
}

const createUser = `-- name: CreateUser
INSERT INTO users (id, username, email, full_name, password_hash)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, created_at, username, email, full_name, password_hash, last_login_at
`

func (r *UserRepo) CreateUser(ctx context.Context, params repository.CreateUserParams) (models.User, error) {
	rows, _ := r.DB.Query(ctx, createUser, uuid.New(), params.Username, params.Email, params.FullName, params.HashedPassword)
	user, err := pgx.CollectOneRow(rows, rowToUser)
	if err != nil {
		return user, translateUserError(err)
	}

	return user, nil
}

const getUserByID = `-- name: GetUserByID
SELECT id, created_at, username, email, full_name, password_hash, last_login_at
FROM users
WHERE id = $1
`

func (r *UserRepo) GetUserByID(ctx context.Context, id uuid.UUID) (models.User, error) {
	rows, _ := r.DB.Query(ctx, getUserByID, id)
	user, err := pgx.CollectOneRow(rows, rowToUser)

	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, pgx.ErrNoRows):
		return user, apperrors.ErrUserNotFound
	default:
		return user, fmt.Errorf("db error: %w", err)
	}
}

const getUserByLogin = `-- name: GetUserByLogin
SELECT id, created_at, username, email, full_name, password_hash, last_login_at
FROM users
WHERE username = $1 OR email = $1
`

func (r *UserRepo) GetUserByLogin(ctx context.Context, login string) (models.User, error) {
	rows, _ := r.DB.Query(ctx, getUserByLogin, login)
	user, err := pgx.CollectOneRow(rows, rowToUser)

	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, pgx.ErrNoRows):
		return user, apperrors.ErrUserNotFound
	default:
		return user, fmt.Errorf("db error: %w", err)
	}
}

const updateUsername = `-- name: UpdateUsername
UPDATE users
SET username = $2
WHERE id = $1
RETURNING id, created_at, username, email, full_name, password_hash, last_login_at
`

func (r *UserRepo) UpdateUsername(ctx context.Context, userID uuid.UUID, username string) (models.User, error) {
	rows, _ := r.DB.Query(ctx, updateUsername, userID, username)
	user, err := pgx.CollectOneRow(rows, rowToUser)
	if err != nil {
		return user, translateUserError(err)
	}

	return user, nil
}

const updateEmail = `-- name: UpdateEmail
UPDATE users
SET email = $2
WHERE id = $1
RETURNING id, created_at, username, email, full_name, password_hash, last_login_at
`

func (r *UserRepo) UpdateEmail(ctx context.Context, userID uuid.UUID, email string) (models.User, error) {
	rows, _ := r.DB.Query(ctx, updateEmail, userID, email)
	user, err := pgx.CollectOneRow(rows, rowToUser)
	if err != nil {
		return user, translateUserError(err)
	}

	return user, nil
}

const updatePassword = `-- name: UpdatePassword
UPDATE users
SET password_hash = $2
WHERE id = $1
`

func (r *UserRepo) UpdatePassword(ctx context.Context, userID uuid.UUID, hashedPassword string) error {
	tag, err := r.DB.Exec(ctx, updatePassword, userID, hashedPassword)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrUserNotFound
	}

	return nil
}

const setLastLogin = `-- name: SetLastLogin
UPDATE users
SET last_login_at = $2
WHERE id = $1
`

func (r *UserRepo) SetLastLogin(ctx context.Context, userID uuid.UUID, at time.Time) error {
	tag, err := r.DB.Exec(ctx, setLastLogin, userID, at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrUserNotFound
	}

	return nil
}

// Translate unique violations to taxonomy errors
// The constraint name tells which uniqueness was hit
func translateUserError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		switch pgErr.ConstraintName {
		case "users_username_key":
			return apperrors.ErrUsernameTaken
		case "users_email_key":
			return apperrors.ErrEmailTaken
		}
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.ErrUserNotFound
	}

	return fmt.Errorf("db error: %w", err)
}

func rowToUser(row pgx.CollectableRow) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.CreatedAt, &u.Username, &u.Email, &u.FullName, &u.HashedPassword, &u.LastLoginAt)
	return u, err
}
