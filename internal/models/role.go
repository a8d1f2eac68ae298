package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/paloma-health/paloma-server/internal/apperrors"
)

type RoleType string

const (
	RoleUser           RoleType = "USER"
	RoleTrustedContact RoleType = "TRUSTED_CONTACT"
)

// ParseRoleType validates user provided role name against the closed role set
func ParseRoleType(value string) (RoleType, error) {
	switch RoleType(value) {
	case RoleUser:
		return RoleUser, nil
	case RoleTrustedContact:
		return RoleTrustedContact, nil
	default:
		return "", apperrors.ErrRoleUnknown
	}
}

type RoleGrant struct {
	UserID    uuid.UUID
	Role      RoleType
	IsPrimary bool
	GrantedAt time.Time
}

// UserRoles is the answer to "what roles does this user hold"
// Primary is empty when no grant is flagged primary
type UserRoles struct {
	UserID  uuid.UUID
	Roles   []RoleType
	Primary RoleType
}

func (r UserRoles) Has(role RoleType) bool {
	for _, granted := range r.Roles {
		if granted == role {
			return true
		}
	}
	return false
}
