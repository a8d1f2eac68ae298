package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/paloma-health/paloma-server/internal/apperrors"
	"github.com/paloma-health/paloma-server/internal/handlers/render"
	"github.com/paloma-health/paloma-server/internal/models"
)

type roleService interface {
	Grant(ctx context.Context, userID uuid.UUID, role models.RoleType, isPrimary bool) (models.UserRoles, error)
	Revoke(ctx context.Context, userID uuid.UUID, role models.RoleType) (models.UserRoles, error)
	UserRoles(ctx context.Context, userID uuid.UUID) (models.UserRoles, error)
	HasRole(ctx context.Context, userID uuid.UUID, role models.RoleType) (bool, error)
	HasBothRoles(ctx context.Context, userID uuid.UUID) (bool, error)
	MakeTrustedContact(ctx context.Context, userID uuid.UUID) (models.UserRoles, error)
}

type userRolesResponse struct {
	UserID  uuid.UUID         `json:"userId"`
	Roles   []models.RoleType `json:"roles"`
	Primary models.RoleType   `json:"primaryRole,omitempty"`
}

func newUserRolesResponse(roles models.UserRoles) userRolesResponse {
	return userRolesResponse{
		UserID:  roles.UserID,
		Roles:   roles.Roles,
		Primary: roles.Primary,
	}
}

type RoleHandler struct {
	roleService roleService
}

func NewRole(rs roleService) *RoleHandler {
	return &RoleHandler{roleService: rs}
}

func (h *RoleHandler) add(w http.ResponseWriter, r *http.Request) {
	type AddRoleRequest struct {
		UserID   uuid.UUID `json:"userId" validate:"required"`
		RoleType string    `json:"roleType" validate:"required,oneof=USER TRUSTED_CONTACT"`
		Primary  bool      `json:"primary"`
	}

	data, err := render.BindAndValidate[AddRoleRequest](w, r)
	if err != nil {
		return
	}

	roles, err := h.roleService.Grant(r.Context(), data.UserID, models.RoleType(data.RoleType), data.Primary)
	if err != nil {
		writeRoleError(w, err)
		return
	}

	render.JSON(w, newUserRolesResponse(roles))
}

func (h *RoleHandler) remove(w http.ResponseWriter, r *http.Request) {
	userID, role, err := rolePathValues(r)
	if err != nil {
		render.ServiceError(w, "Invalid path parameters", http.StatusBadRequest)
		return
	}

	roles, err := h.roleService.Revoke(r.Context(), userID, role)
	if err != nil {
		writeRoleError(w, err)
		return
	}

	render.JSON(w, newUserRolesResponse(roles))
}

func (h *RoleHandler) userRoles(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.PathValue("userId"))
	if err != nil {
		render.ServiceError(w, "Invalid path parameters", http.StatusBadRequest)
		return
	}

	roles, err := h.roleService.UserRoles(r.Context(), userID)
	if err != nil {
		writeRoleError(w, err)
		return
	}

	render.JSON(w, newUserRolesResponse(roles))
}

func (h *RoleHandler) hasRole(w http.ResponseWriter, r *http.Request) {
	type HasRoleResponse struct {
		UserID  uuid.UUID       `json:"userId"`
		Role    models.RoleType `json:"roleType"`
		HasRole bool            `json:"hasRole"`
	}

	userID, role, err := rolePathValues(r)
	if err != nil {
		render.ServiceError(w, "Invalid path parameters", http.StatusBadRequest)
		return
	}

	has, err := h.roleService.HasRole(r.Context(), userID, role)
	if err != nil {
		writeRoleError(w, err)
		return
	}

	render.JSON(w, HasRoleResponse{UserID: userID, Role: role, HasRole: has})
}

func (h *RoleHandler) hasBothRoles(w http.ResponseWriter, r *http.Request) {
	type HasBothRolesResponse struct {
		UserID       uuid.UUID `json:"userId"`
		HasBothRoles bool      `json:"hasBothRoles"`
	}

	userID, err := uuid.Parse(r.PathValue("userId"))
	if err != nil {
		render.ServiceError(w, "Invalid path parameters", http.StatusBadRequest)
		return
	}

	has, err := h.roleService.HasBothRoles(r.Context(), userID)
	if err != nil {
		writeRoleError(w, err)
		return
	}

	render.JSON(w, HasBothRolesResponse{UserID: userID, HasBothRoles: has})
}

func (h *RoleHandler) makeTrustedContact(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.PathValue("userId"))
	if err != nil {
		render.ServiceError(w, "Invalid path parameters", http.StatusBadRequest)
		return
	}

	roles, err := h.roleService.MakeTrustedContact(r.Context(), userID)
	if err != nil {
		writeRoleError(w, err)
		return
	}

	render.JSON(w, newUserRolesResponse(roles))
}

func rolePathValues(r *http.Request) (uuid.UUID, models.RoleType, error) {
	userID, err := uuid.Parse(r.PathValue("userId"))
	if err != nil {
		return uuid.Nil, "", err
	}

	role, err := models.ParseRoleType(r.PathValue("roleType"))
	if err != nil {
		return uuid.Nil, "", err
	}

	return userID, role, nil
}

func writeRoleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		render.ServiceError(w, "User not found", http.StatusNotFound)
	case errors.Is(err, apperrors.ErrRoleAlreadyGranted):
		render.ServiceError(w, "User already has this role", http.StatusConflict)
	case errors.Is(err, apperrors.ErrRoleNotGranted):
		render.ServiceError(w, "User does not have this role", http.StatusNotFound)
	case errors.Is(err, apperrors.ErrRoleUnknown):
		render.ServiceError(w, "Unknown role type", http.StatusBadRequest)
	default:
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
	}
}
