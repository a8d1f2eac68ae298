package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/paloma-health/paloma-server/internal/apperrors"
	"github.com/paloma-health/paloma-server/internal/handlers/render"
	"github.com/paloma-health/paloma-server/internal/models"
	"github.com/paloma-health/paloma-server/internal/service/auth"
)

type authService interface {
	// Register user, has to return apperrors.ErrUsernameTaken or
	// apperrors.ErrEmailTaken on uniqueness conflict
	Register(ctx context.Context, params auth.RegisterParams) (models.User, error)

	// Login with username or email
	// Has to return apperrors.ErrInvalidCredentials on any credential mismatch
	Login(ctx context.Context, login string, password string) (models.User, models.TokenPair, error)

	// Rotate tokens using the refresh token
	// Has to return apperrors.ErrRefreshToken* when the token can't be used
	RefreshPair(ctx context.Context, refresh string) (models.TokenPair, error)

	// Revoke the user's refresh tokens
	Logout(ctx context.Context, userID uuid.UUID) error
}

// Canonical token pair shape
// One shape only: earlier API drift (token/authToken/accessAuthToken) is gone
type tokenPairResponse struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

func newTokenPairResponse(pair models.TokenPair) tokenPairResponse {
	return tokenPairResponse{
		AccessToken:      pair.Access.Value,
		RefreshToken:     pair.Refresh.Value,
		AccessExpiresAt:  pair.Access.ExpiresAt,
		RefreshExpiresAt: pair.Refresh.ExpiresAt,
	}
}

type userResponse struct {
	ID          uuid.UUID  `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	FullName    string     `json:"fullName"`
	CreatedAt   time.Time  `json:"createdAt"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
}

func newUserResponse(user models.User) userResponse {
	return userResponse{
		ID:          user.ID,
		Username:    user.Username,
		Email:       user.Email,
		FullName:    user.FullName,
		CreatedAt:   user.CreatedAt,
		LastLoginAt: user.LastLoginAt,
	}
}

type AuthHandler struct {
	authService authService
}

func NewAuth(auth authService) *AuthHandler {
	return &AuthHandler{authService: auth}
}

func (h *AuthHandler) register(w http.ResponseWriter, r *http.Request) {
	type RegisterRequest struct {
		Username string `json:"username" validate:"required,min=2,max=50"`
		Email    string `json:"email" validate:"required,email"`
		FullName string `json:"fullName" validate:"max=100"`
		Password string `json:"password" validate:"required,min=8"`
		RoleType string `json:"roleType" validate:"omitempty,oneof=USER TRUSTED_CONTACT"`
	}
	type RegisterSuccessResponse struct {
		Message string       `json:"message"`
		User    userResponse `json:"user"`
	}

	data, err := render.BindAndValidate[RegisterRequest](w, r)
	if err != nil {
		return
	}

	user, err := h.authService.Register(r.Context(), auth.RegisterParams{
		Username: data.Username,
		Email:    data.Email,
		FullName: data.FullName,
		Password: data.Password,
		Role:     models.RoleType(data.RoleType),
	})
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrUsernameTaken):
			render.ServiceError(w, "Username already taken", http.StatusConflict)
		case errors.Is(err, apperrors.ErrEmailTaken):
			render.ServiceError(w, "Email already taken", http.StatusConflict)
		default:
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	render.JSONWithStatus(w, RegisterSuccessResponse{
		Message: "User registered successfully",
		User:    newUserResponse(user),
	}, http.StatusCreated)
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	type LoginRequest struct {
		EmailOrUsername string `json:"emailOrUsername" validate:"required"`
		Password        string `json:"password" validate:"required"`
	}
	type LoginSuccessResponse struct {
		tokenPairResponse
		User userResponse `json:"user"`
	}

	data, err := render.BindAndValidate[LoginRequest](w, r)
	if err != nil {
		return
	}

	user, pair, err := h.authService.Login(r.Context(), data.EmailOrUsername, data.Password)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrInvalidCredentials):
			render.ServiceError(w, "Invalid credentials", http.StatusUnauthorized)
		default:
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	render.JSON(w, LoginSuccessResponse{
		tokenPairResponse: newTokenPairResponse(pair),
		User:              newUserResponse(user),
	})
}

func (h *AuthHandler) refresh(w http.ResponseWriter, r *http.Request) {
	type RefreshRequest struct {
		RefreshToken string `json:"refreshToken" validate:"required"`
	}

	data, err := render.BindAndValidate[RefreshRequest](w, r)
	if err != nil {
		return
	}

	pair, err := h.authService.RefreshPair(r.Context(), data.RefreshToken)
	if err != nil {
		switch {
		// Not found, reused and expired all answer the same way:
		// a refresh token holder must not learn why the token was rejected
		case errors.Is(err, apperrors.ErrRefreshTokenNotFound),
			errors.Is(err, apperrors.ErrRefreshTokenIsUsed),
			errors.Is(err, apperrors.ErrRefreshTokenExpired):
			render.ServiceError(w, "Invalid refresh token", http.StatusUnauthorized)
		default:
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	render.JSON(w, newTokenPairResponse(pair))
}

// logout runs behind the auth middleware, identity is always in the context
func (h *AuthHandler) logout(w http.ResponseWriter, r *http.Request) {
	type LogoutSuccessResponse struct {
		Message string `json:"message"`
	}

	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.authService.Logout(r.Context(), identity.UserID); err != nil {
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	render.JSON(w, LogoutSuccessResponse{Message: "Logged out, refresh tokens revoked"})
}
