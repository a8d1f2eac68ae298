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

type userService interface {
	GetUser(ctx context.Context, userID uuid.UUID) (models.User, error)
	UpdateEmail(ctx context.Context, userID uuid.UUID, email string) (models.User, error)
	UpdateUsername(ctx context.Context, userID uuid.UUID, username string) (models.User, error)
	UpdatePassword(ctx context.Context, userID uuid.UUID, oldPassword string, newPassword string) error
}

// ProfileHandler serves the in-session profile endpoints
// All routes run behind the auth middleware
type ProfileHandler struct {
	userService userService
}

func NewProfile(us userService) *ProfileHandler {
	return &ProfileHandler{userService: us}
}

func (h *ProfileHandler) me(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	user, err := h.userService.GetUser(r.Context(), identity.UserID)
	if err != nil {
		writeProfileError(w, err)
		return
	}

	render.JSON(w, newUserResponse(user))
}

func (h *ProfileHandler) updateEmail(w http.ResponseWriter, r *http.Request) {
	type UpdateEmailRequest struct {
		NewEmail string `json:"newEmail" validate:"required,email"`
	}

	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	data, err := render.BindAndValidate[UpdateEmailRequest](w, r)
	if err != nil {
		return
	}

	user, err := h.userService.UpdateEmail(r.Context(), identity.UserID, data.NewEmail)
	if err != nil {
		writeProfileError(w, err)
		return
	}

	render.JSON(w, newUserResponse(user))
}

func (h *ProfileHandler) updateUsername(w http.ResponseWriter, r *http.Request) {
	type UpdateUsernameRequest struct {
		NewUsername string `json:"newUsername" validate:"required,min=2,max=50"`
	}

	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	data, err := render.BindAndValidate[UpdateUsernameRequest](w, r)
	if err != nil {
		return
	}

	user, err := h.userService.UpdateUsername(r.Context(), identity.UserID, data.NewUsername)
	if err != nil {
		writeProfileError(w, err)
		return
	}

	render.JSON(w, newUserResponse(user))
}

func (h *ProfileHandler) updatePassword(w http.ResponseWriter, r *http.Request) {
	type UpdatePasswordRequest struct {
		OldPassword string `json:"oldPassword" validate:"required"`
		NewPassword string `json:"newPassword" validate:"required,min=8"`
	}
	type UpdatePasswordResponse struct {
		Message string `json:"message"`
	}

	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	data, err := render.BindAndValidate[UpdatePasswordRequest](w, r)
	if err != nil {
		return
	}

	err = h.userService.UpdatePassword(r.Context(), identity.UserID, data.OldPassword, data.NewPassword)
	if err != nil {
		writeProfileError(w, err)
		return
	}

	render.JSON(w, UpdatePasswordResponse{Message: "Password updated successfully"})
}

func writeProfileError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		render.ServiceError(w, "User not found", http.StatusNotFound)
	case errors.Is(err, apperrors.ErrUsernameTaken):
		render.ServiceError(w, "Username already taken", http.StatusConflict)
	case errors.Is(err, apperrors.ErrEmailTaken):
		render.ServiceError(w, "Email already taken", http.StatusConflict)
	case errors.Is(err, apperrors.ErrInvalidCredentials):
		render.ServiceError(w, "Old password does not match", http.StatusUnauthorized)
	default:
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
	}
}
