package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/paloma-health/paloma-server/internal/apperrors"
	"github.com/paloma-health/paloma-server/internal/models"
)

type RoleRepo struct {
	DB DBTX
}

// clock_timestamp() not now(): grants made in one transaction must still order
const grantRole = `-- name: GrantRole
INSERT INTO user_roles (user_id, role, is_primary, granted_at)
VALUES ($1, $2, $3, clock_timestamp())
RETURNING user_id, role, is_primary, granted_at
`

func (r *RoleRepo) Grant(ctx context.Context, grant models.RoleGrant) (models.RoleGrant, error) {
	rows, _ := r.DB.Query(ctx, grantRole, grant.UserID, grant.Role, grant.IsPrimary)
	saved, err := pgx.CollectOneRow(rows, rowToRoleGrant)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return saved, apperrors.ErrRoleAlreadyGranted
		}
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return saved, apperrors.ErrUserNotFound
		}

		return saved, fmt.Errorf("db error: %w", err)
	}

	return saved, nil
}

const revokeRole = `-- name: RevokeRole
DELETE FROM user_roles
WHERE user_id = $1 AND role = $2
`

func (r *RoleRepo) Revoke(ctx context.Context, userID uuid.UUID, role models.RoleType) error {
	tag, err := r.DB.Exec(ctx, revokeRole, userID, role)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrRoleNotGranted
	}

	return nil
}

const listRolesForUser = `-- name: ListRolesForUser
SELECT user_id, role, is_primary, granted_at
FROM user_roles
WHERE user_id = $1
ORDER BY granted_at, role
`

func (r *RoleRepo) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.RoleGrant, error) {
	rows, _ := r.DB.Query(ctx, listRolesForUser, userID)
	grants, err := pgx.CollectRows(rows, rowToRoleGrant)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return grants, nil
}

const hasRole = `-- name: HasRole
SELECT EXISTS (
    SELECT 1 FROM user_roles
    WHERE user_id = $1 AND role = $2
)
`

func (r *RoleRepo) HasRole(ctx context.Context, userID uuid.UUID, role models.RoleType) (bool, error) {
	rows, _ := r.DB.Query(ctx, hasRole, userID, role)
	exists, err := pgx.CollectOneRow(rows, pgx.RowTo[bool])
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	return exists, nil
}

const clearPrimaryRole = `-- name: ClearPrimaryRole
UPDATE user_roles
SET is_primary = false
WHERE user_id = $1 AND is_primary
`

func (r *RoleRepo) ClearPrimary(ctx context.Context, userID uuid.UUID) error {
	_, err := r.DB.Exec(ctx, clearPrimaryRole, userID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func rowToRoleGrant(row pgx.CollectableRow) (models.RoleGrant, error) {
	var g models.RoleGrant
	err := row.Scan(&g.UserID, &g.Role, &g.IsPrimary, &g.GrantedAt)
	return g, err
}
