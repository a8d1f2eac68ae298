package apperrors

import (
	"errors"
)

var (
	ErrUsernameTaken = errors.New("username already taken")
	ErrEmailTaken    = errors.New("email already taken")
	ErrUserNotFound  = errors.New("user not found")

	// Login failures are collapsed into one error on purpose:
	// "no such user" and "wrong password" must be indistinguishable
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrRefreshTokenIsUsed   = errors.New("refresh token is used")
	ErrRefreshTokenExpired  = errors.New("refresh token is expired")

	ErrAccessTokenInvalid = errors.New("access token is invalid")

	ErrRoleAlreadyGranted = errors.New("role already granted")
	ErrRoleNotGranted     = errors.New("role not granted")
	ErrRoleUnknown        = errors.New("unknown role type")
)
