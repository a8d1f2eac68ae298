package role

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/paloma-health/paloma-server/internal/models"
	"github.com/paloma-health/paloma-server/internal/repository"
)

type RoleService struct {
	storage repository.Storage
}

func NewService(storage repository.Storage) (*RoleService, error) {
	if storage == nil {
		return nil, errors.New("storage must not be nil")
	}

	return &RoleService{storage: storage}, nil
}

// Grant gives the user a role
// When primary is requested the current primary grant (if any) is demoted in
// the same transaction, so at no point two primary grants coexist
func (s *RoleService) Grant(ctx context.Context, userID uuid.UUID, role models.RoleType, isPrimary bool) (models.UserRoles, error) {
	// Make sure the user exists so the caller gets ErrUserNotFound
	// instead of a raw constraint violation
	if _, err := s.storage.User().GetUserByID(ctx, userID); err != nil {
		return models.UserRoles{}, err
	}

	err := s.storage.InTx(ctx, func(store repository.Storage) error {
		if isPrimary {
			if err := store.Role().ClearPrimary(ctx, userID); err != nil {
				return err
			}
		}

		_, err := store.Role().Grant(ctx, models.RoleGrant{
			UserID:    userID,
			Role:      role,
			IsPrimary: isPrimary,
		})
		return err
	})
	if err != nil {
		return models.UserRoles{}, err
	}

	return s.UserRoles(ctx, userID)
}

// Revoke removes the grant
// Revoking the primary role does not promote another grant: the user may
// end up with no primary role at all
func (s *RoleService) Revoke(ctx context.Context, userID uuid.UUID, role models.RoleType) (models.UserRoles, error) {
	if _, err := s.storage.User().GetUserByID(ctx, userID); err != nil {
		return models.UserRoles{}, err
	}

	if err := s.storage.Role().Revoke(ctx, userID, role); err != nil {
		return models.UserRoles{}, err
	}

	return s.UserRoles(ctx, userID)
}

func (s *RoleService) UserRoles(ctx context.Context, userID uuid.UUID) (models.UserRoles, error) {
	if _, err := s.storage.User().GetUserByID(ctx, userID); err != nil {
		return models.UserRoles{}, err
	}

	grants, err := s.storage.Role().ListForUser(ctx, userID)
	if err != nil {
		return models.UserRoles{}, fmt.Errorf("error while listing roles. Err: %w", err)
	}

	roles := models.UserRoles{UserID: userID, Roles: make([]models.RoleType, 0, len(grants))}
	for _, grant := range grants {
		roles.Roles = append(roles.Roles, grant.Role)
		if grant.IsPrimary {
			roles.Primary = grant.Role
		}
	}

	return roles, nil
}

func (s *RoleService) HasRole(ctx context.Context, userID uuid.UUID, role models.RoleType) (bool, error) {
	return s.storage.Role().HasRole(ctx, userID, role)
}

func (s *RoleService) HasAllRoles(ctx context.Context, userID uuid.UUID, roles ...models.RoleType) (bool, error) {
	for _, role := range roles {
		ok, err := s.storage.Role().HasRole(ctx, userID, role)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}

	return true, nil
}

// HasBothRoles answers the trusted contact authorization query:
// the user holds USER and TRUSTED_CONTACT at the same time
func (s *RoleService) HasBothRoles(ctx context.Context, userID uuid.UUID) (bool, error) {
	return s.HasAllRoles(ctx, userID, models.RoleUser, models.RoleTrustedContact)
}

// MakeTrustedContact grants TRUSTED_CONTACT keeping the existing primary role
func (s *RoleService) MakeTrustedContact(ctx context.Context, userID uuid.UUID) (models.UserRoles, error) {
	return s.Grant(ctx, userID, models.RoleTrustedContact, false)
}
