package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/paloma-health/paloma-server/internal/models"
)

// Storage aggregates all repositories over a single db handle
// InTx runs fn with a Storage bound to one transaction
type Storage interface {
	User() UserRepo
	Refresh() RefreshTokenRepo
	Role() RoleRepo

	InTx(ctx context.Context, fn func(s Storage) error) error
}

type CreateUserParams struct {
	Username       string
	Email          string
	FullName       string
	HashedPassword string
}

// User repository interface
type UserRepo interface {
	// Create user
	// On username or email conflict has to return apperrors.ErrUsernameTaken or apperrors.ErrEmailTaken
	CreateUser(ctx context.Context, params CreateUserParams) (models.User, error)

	// Get user by id or by login (username or email, the original allows both)
	// If user not found must return apperrors.ErrUserNotFound
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	GetUserByLogin(ctx context.Context, login string) (models.User, error)

	// Profile updates. Conflict errors same as CreateUser
	UpdateUsername(ctx context.Context, userID uuid.UUID, username string) (models.User, error)
	UpdateEmail(ctx context.Context, userID uuid.UUID, email string) (models.User, error)
	UpdatePassword(ctx context.Context, userID uuid.UUID, hashedPassword string) error

	SetLastLogin(ctx context.Context, userID uuid.UUID, at time.Time) error
}

// RefreshToken repository interface
type RefreshTokenRepo interface {
	// Save token in repository
	Save(ctx context.Context, token models.RefreshToken) (models.RefreshToken, error)

	// Return the token even if it is expired or used already
	// If the token does not exist must return apperrors.ErrRefreshTokenNotFound
	Get(ctx context.Context, tokenString string) (models.RefreshToken, error)

	// Mark token used and return it
	// Single atomic statement: exactly one caller may observe the transition,
	// concurrent callers must get apperrors.ErrRefreshTokenIsUsed
	GetAndMarkUsed(ctx context.Context, tokenString string) (models.RefreshToken, error)

	// Mark every unused token of the user as used
	// Returns the number of revoked tokens
	RevokeActive(ctx context.Context, userID uuid.UUID) (int64, error)
}

// RoleGrant repository interface
type RoleRepo interface {
	// Grant role to user
	// If the (user, role) pair exists must return apperrors.ErrRoleAlreadyGranted
	Grant(ctx context.Context, grant models.RoleGrant) (models.RoleGrant, error)

	// Revoke role from user
	// If the pair does not exist must return apperrors.ErrRoleNotGranted
	Revoke(ctx context.Context, userID uuid.UUID, role models.RoleType) error

	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.RoleGrant, error)
	HasRole(ctx context.Context, userID uuid.UUID, role models.RoleType) (bool, error)

	// Drop the primary flag from every grant of the user
	ClearPrimary(ctx context.Context, userID uuid.UUID) error
}
